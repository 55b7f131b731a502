package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements profile.Store for PostgreSQL.
type ProfileRepository struct {
	conn *Connection
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

const profileColumns = `
	id, university, preferred_subjects, availability,
	study_style, study_goal, academic_year, profile_complete,
	last_match_cycle_at, total_matches, successful_matches, avg_messages_per_match,
	created_at
`

// GetEligibleCandidates returns the cycle pool ordered by created_at, id.
func (r *ProfileRepository) GetEligibleCandidates(ctx context.Context, filter profile.CandidateFilter) ([]*profile.UserRecord, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	// LIMIT NULL means no limit
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	query := `SELECT ` + profileColumns + `
		FROM user_profiles
		WHERE profile_complete
		  AND (last_match_cycle_at IS NULL OR last_match_cycle_at <= $1)
		ORDER BY created_at, id
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, filter.Now.Add(-filter.Cooldown), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var users []*profile.UserRecord
	for rows.Next() {
		u, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}

	return users, nil
}

// GetByID returns a profile by ID.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*profile.UserRecord, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	row := r.conn.QueryRow(ctx, `SELECT `+profileColumns+` FROM user_profiles WHERE id = $1`, id)
	u, err := scanProfile(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, err
	}
	return u, nil
}

// UpdateLastCycle stamps the user's last cycle time.
func (r *ProfileRepository) UpdateLastCycle(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	tag, err := r.conn.Exec(ctx, `
		UPDATE user_profiles
		SET last_match_cycle_at = $1, updated_at = NOW()
		WHERE id = $2
	`, at, id)
	if err != nil {
		return fmt.Errorf("failed to update last cycle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProfileNotFound
	}
	return nil
}

// UpdateMatchStats overwrites the user's counters.
func (r *ProfileRepository) UpdateMatchStats(ctx context.Context, id string, stats profile.MatchStats) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	tag, err := r.conn.Exec(ctx, `
		UPDATE user_profiles
		SET total_matches = $1,
			successful_matches = $2,
			avg_messages_per_match = $3,
			updated_at = NOW()
		WHERE id = $4
	`, stats.TotalMatches, stats.SuccessfulMatches, stats.AvgMessagesPerMatch, id)
	if err != nil {
		if IsCheckViolation(err) {
			return shared.WrapError("profile", "UpdateMatchStats", shared.ErrValueOutOfRange, "counters rejected by store", err)
		}
		return fmt.Errorf("failed to update match stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProfileNotFound
	}
	return nil
}

// Upsert inserts or replaces a profile. Used by seeding and tests; onboarding
// owns the table in production.
func (r *ProfileRepository) Upsert(ctx context.Context, u *profile.UserRecord) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	availability, err := json.Marshal(u.Availability)
	if err != nil {
		return fmt.Errorf("failed to marshal availability: %w", err)
	}

	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO user_profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			university = EXCLUDED.university,
			preferred_subjects = EXCLUDED.preferred_subjects,
			availability = EXCLUDED.availability,
			study_style = EXCLUDED.study_style,
			study_goal = EXCLUDED.study_goal,
			academic_year = EXCLUDED.academic_year,
			profile_complete = EXCLUDED.profile_complete,
			updated_at = NOW()
	`,
		u.ID,
		u.University,
		nonNilStrings(u.PreferredSubjects),
		availability,
		string(u.StudyStyle),
		string(u.StudyGoal),
		string(u.AcademicYear),
		u.ProfileComplete,
		u.LastMatchCycleAt,
		u.TotalMatches,
		u.SuccessfulMatches,
		u.AvgMessagesPerMatch,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanProfile(row pgx.Row) (*profile.UserRecord, error) {
	var (
		u            profile.UserRecord
		availability []byte
		style        string
		goal         string
		year         string
	)

	err := row.Scan(
		&u.ID,
		&u.University,
		&u.PreferredSubjects,
		&availability,
		&style,
		&goal,
		&year,
		&u.ProfileComplete,
		&u.LastMatchCycleAt,
		&u.TotalMatches,
		&u.SuccessfulMatches,
		&u.AvgMessagesPerMatch,
		&u.CreatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}

	u.StudyStyle = profile.StudyStyle(style)
	u.StudyGoal = profile.StudyGoal(goal)
	u.AcademicYear = profile.AcademicYear(year)

	// Malformed availability degrades to "unset" and scores neutral.
	if len(availability) > 0 {
		var a profile.Availability
		if err := json.Unmarshal(availability, &a); err == nil {
			u.Availability = a
		}
	}

	return &u, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
