package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: USER PROFILES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Matching view of the user profile. Written by onboarding,
-- the engine only stamps last_match_cycle_at and the counters.
CREATE TABLE IF NOT EXISTS user_profiles (
    id TEXT PRIMARY KEY,
    university TEXT NOT NULL DEFAULT '',
    preferred_subjects TEXT[] NOT NULL DEFAULT '{}',

    -- {"monday": "morning", "tuesday": "none", ...}
    availability JSONB NOT NULL DEFAULT '{}'::jsonb,

    study_style TEXT NOT NULL DEFAULT '',
    study_goal TEXT NOT NULL DEFAULT '',
    academic_year TEXT NOT NULL DEFAULT '',
    profile_complete BOOLEAN NOT NULL DEFAULT FALSE,

    last_match_cycle_at TIMESTAMP WITH TIME ZONE,
    total_matches INTEGER NOT NULL DEFAULT 0,
    successful_matches INTEGER NOT NULL DEFAULT 0,
    avg_messages_per_match DOUBLE PRECISION NOT NULL DEFAULT 0,

    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_counters CHECK (
        total_matches >= 0
        AND successful_matches >= 0
        AND successful_matches <= total_matches
        AND avg_messages_per_match >= 0
    )
);

-- Candidate pool scan
CREATE INDEX IF NOT EXISTS idx_user_profiles_pool
    ON user_profiles(created_at, id)
    WHERE profile_complete;
CREATE INDEX IF NOT EXISTS idx_user_profiles_last_cycle
    ON user_profiles(last_match_cycle_at);
`

const migration001Down = `
DROP TABLE IF EXISTS user_profiles;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: PAIRINGS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS pairings (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_a_id TEXT NOT NULL,
    user_b_id TEXT NOT NULL,
    pairing_type TEXT NOT NULL DEFAULT 'cycle',
    status TEXT NOT NULL DEFAULT 'active',
    score_breakdown JSONB NOT NULL DEFAULT '{}'::jsonb,
    adjusted_score INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    ended_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT no_self_pairing CHECK (user_a_id <> user_b_id),
    CONSTRAINT valid_pairing_type CHECK (pairing_type IN ('cycle', 'user_initiated')),
    CONSTRAINT valid_pairing_status CHECK (status IN ('active', 'ended'))
);

-- One row per unordered pair, ever
CREATE UNIQUE INDEX IF NOT EXISTS uq_pairings_unordered
    ON pairings (LEAST(user_a_id, user_b_id), GREATEST(user_a_id, user_b_id));

CREATE INDEX IF NOT EXISTS idx_pairings_user_a ON pairings(user_a_id, created_at);
CREATE INDEX IF NOT EXISTS idx_pairings_user_b ON pairings(user_b_id, created_at);
`

const migration002Down = `
DROP TABLE IF EXISTS pairings;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PAIRING ENGAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Aggregated signals pushed by the chat service.
CREATE TABLE IF NOT EXISTS pairing_engagement (
    pairing_id UUID PRIMARY KEY REFERENCES pairings(id) ON DELETE CASCADE,
    message_count INTEGER NOT NULL DEFAULT 0,
    session_scheduled BOOLEAN NOT NULL DEFAULT FALSE,
    unmatched_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_message_count CHECK (message_count >= 0)
);
`

const migration003Down = `
DROP TABLE IF EXISTS pairing_engagement;
`
