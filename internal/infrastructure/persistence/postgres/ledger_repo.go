package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/study-match/internal/domain/matching"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// The unordered-pair unique index is the last line of defence behind
// HistoryGuard: a concurrent duplicate surfaces as ErrPairingExists.
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements matching.Ledger for PostgreSQL.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

const pairingColumns = `
	id::text, user_a_id, user_b_id, pairing_type, status, score_breakdown, created_at, ended_at
`

// HasPair checks the pair in either order.
func (r *LedgerRepository) HasPair(ctx context.Context, userAID, userBID string) (bool, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := r.conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pairings
			WHERE LEAST(user_a_id, user_b_id) = LEAST($1::text, $2::text)
			  AND GREATEST(user_a_id, user_b_id) = GREATEST($1::text, $2::text)
		)
	`, userAID, userBID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pair: %w", err)
	}
	return exists, nil
}

// Create stores the pairing and returns its ID.
func (r *LedgerRepository) Create(ctx context.Context, p *matching.PairingRecord) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	breakdown, err := json.Marshal(p.Breakdown)
	if err != nil {
		return "", fmt.Errorf("failed to marshal breakdown: %w", err)
	}

	var id string
	err = r.conn.QueryRow(ctx, `
		INSERT INTO pairings (
			id, user_a_id, user_b_id, pairing_type, status,
			score_breakdown, adjusted_score, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text
	`,
		p.ID,
		p.UserAID,
		p.UserBID,
		string(p.Type),
		string(p.Status),
		breakdown,
		p.Breakdown.Adjusted,
		p.CreatedAt,
	).Scan(&id)
	if err != nil {
		if IsUniqueViolation(err) {
			return "", shared.ErrPairingExists
		}
		if IsCheckViolation(err) {
			return "", shared.WrapError("matching", "CreatePairing", shared.ErrInvalidInput, "pairing rejected by store", err)
		}
		return "", fmt.Errorf("failed to create pairing: %w", err)
	}

	return id, nil
}

// GetByID returns a pairing by ID.
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*matching.PairingRecord, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	row := r.conn.QueryRow(ctx, `SELECT `+pairingColumns+` FROM pairings WHERE id::text = $1`, id)
	p, err := scanPairing(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrPairingNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListByUser returns the user's pairings in creation order.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID string) ([]*matching.PairingRecord, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.Query(ctx, `
		SELECT `+pairingColumns+`
		FROM pairings
		WHERE user_a_id = $1 OR user_b_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pairings: %w", err)
	}
	defer rows.Close()

	var pairings []*matching.PairingRecord
	for rows.Next() {
		p, err := scanPairing(rows)
		if err != nil {
			return nil, err
		}
		pairings = append(pairings, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pairings: %w", err)
	}

	return pairings, nil
}

// ListParticipants returns every user with at least one pairing.
func (r *LedgerRepository) ListParticipants(ctx context.Context) ([]string, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.Query(ctx, `
		SELECT user_a_id FROM pairings
		UNION
		SELECT user_b_id FROM pairings
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect participants: %w", err)
	}
	return ids, nil
}

func scanPairing(row pgx.Row) (*matching.PairingRecord, error) {
	var (
		p         matching.PairingRecord
		pType     string
		status    string
		breakdown []byte
	)

	err := row.Scan(
		&p.ID,
		&p.UserAID,
		&p.UserBID,
		&pType,
		&status,
		&breakdown,
		&p.CreatedAt,
		&p.EndedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan pairing: %w", err)
	}

	p.Type = matching.PairingType(pType)
	p.Status = matching.PairingStatus(status)
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &p.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to unmarshal breakdown of %s: %w", p.ID, err)
		}
	}

	return &p, nil
}
