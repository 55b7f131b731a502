package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alem-hub/study-match/internal/domain/engagement"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGAGEMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// EngagementRepository implements engagement.Store for PostgreSQL.
type EngagementRepository struct {
	conn *Connection
}

// NewEngagementRepository creates a new EngagementRepository.
func NewEngagementRepository(conn *Connection) *EngagementRepository {
	return &EngagementRepository{conn: conn}
}

// SignalsFor returns the stored signals of the given pairings.
func (r *EngagementRepository) SignalsFor(ctx context.Context, pairingIDs []string) (map[string]engagement.Signal, error) {
	signals := make(map[string]engagement.Signal, len(pairingIDs))
	if len(pairingIDs) == 0 {
		return signals, nil
	}

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.Query(ctx, `
		SELECT pairing_id::text, message_count, session_scheduled, unmatched_at, updated_at
		FROM pairing_engagement
		WHERE pairing_id::text = ANY($1)
	`, pairingIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query engagement: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s engagement.Signal
		if err := rows.Scan(&s.PairingID, &s.MessageCount, &s.SessionScheduled, &s.UnmatchedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan engagement: %w", err)
		}
		signals[s.PairingID] = s
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate engagement: %w", err)
	}

	return signals, nil
}

// Apply folds the update into the stored signal in one statement.
// The first unmatch timestamp wins.
func (r *EngagementRepository) Apply(ctx context.Context, update engagement.Update) (engagement.Signal, error) {
	if err := update.Validate(); err != nil {
		return engagement.Signal{}, err
	}

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	initial := update.ApplyTo(engagement.Signal{})

	var s engagement.Signal
	err := r.conn.QueryRow(ctx, `
		INSERT INTO pairing_engagement (pairing_id, message_count, session_scheduled, unmatched_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5)
		ON CONFLICT (pairing_id) DO UPDATE SET
			message_count = pairing_engagement.message_count + EXCLUDED.message_count,
			session_scheduled = pairing_engagement.session_scheduled OR EXCLUDED.session_scheduled,
			unmatched_at = COALESCE(pairing_engagement.unmatched_at, EXCLUDED.unmatched_at),
			updated_at = GREATEST(pairing_engagement.updated_at, EXCLUDED.updated_at)
		RETURNING pairing_id::text, message_count, session_scheduled, unmatched_at, updated_at
	`,
		update.PairingID,
		initial.MessageCount,
		initial.SessionScheduled,
		initial.UnmatchedAt,
		initial.UpdatedAt,
	).Scan(&s.PairingID, &s.MessageCount, &s.SessionScheduled, &s.UnmatchedAt, &s.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) || isInvalidText(err) {
			return engagement.Signal{}, shared.ErrPairingNotFound
		}
		return engagement.Signal{}, fmt.Errorf("failed to apply engagement: %w", err)
	}

	return s, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}

func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02" // invalid_text_representation
	}
	return false
}
