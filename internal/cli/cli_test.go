package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-match/config"
	"github.com/alem-hub/study-match/internal/app"
	"github.com/alem-hub/study-match/internal/domain/profile"
	"github.com/alem-hub/study-match/internal/infrastructure/persistence/memory"
)

var cliNow = time.Date(2025, 4, 10, 6, 0, 0, 0, time.UTC)

// memoryOpener builds a fresh in-memory engine with two compatible users.
func memoryOpener(t *testing.T) Opener {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("REDIS_DISABLED", "true")
	t.Setenv("CONVERSATION_BASE_URL", "")

	return func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		a, err := app.New(ctx, cfg, nil, app.Options{})
		if err != nil {
			return nil, err
		}
		store := a.Profiles.(*memory.ProfileStore)
		for i, id := range []string{"u-1", "u-2"} {
			store.Put(&profile.UserRecord{
				ID:                id,
				University:        "SDU",
				PreferredSubjects: []string{"algorithms"},
				AcademicYear:      profile.YearSenior,
				ProfileComplete:   true,
				CreatedAt:         cliNow.Add(-time.Duration(5-i) * time.Hour),
			})
		}
		return a, nil
	}
}

func execute(t *testing.T, open Opener, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCycleCommand(t *testing.T) {
	out, err := execute(t, memoryOpener(t), "run-cycle", "--now", cliNow.Format(time.RFC3339))
	require.NoError(t, err)

	var got cycleOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "completed", got.Outcome)
	assert.Equal(t, 2, got.PoolSize)
	assert.Equal(t, 1, got.MatchesCreated)
	require.Len(t, got.Pairings, 1)
	assert.ElementsMatch(t, []string{"u-1", "u-2"}, []string{got.Pairings[0].UserAID, got.Pairings[0].UserBID})
}

func TestRunCycleCommand_InvalidNow(t *testing.T) {
	_, err := execute(t, memoryOpener(t), "run-cycle", "--now", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--now")
}

func TestScoreCommand(t *testing.T) {
	out, err := execute(t, memoryOpener(t), "score", "u-1", "u-2")
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, true, got["same_university"])
	assert.Equal(t, true, got["would_match"])
	assert.Equal(t, false, got["previously_paired"])
}

func TestScoreCommand_Errors(t *testing.T) {
	_, err := execute(t, memoryOpener(t), "score", "u-1")
	assert.Error(t, err)

	_, err = execute(t, memoryOpener(t), "score", "u-1", "u-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "themselves")

	_, err = execute(t, memoryOpener(t), "score", "u-1", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown user")
}

func TestRecomputeStatsCommand(t *testing.T) {
	out, err := execute(t, memoryOpener(t), "recompute-stats", "--user", "u-1")
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.EqualValues(t, 1, got["users"])
}

func TestMigrateCommand_WithoutDatabase(t *testing.T) {
	_, err := execute(t, memoryOpener(t), "migrate")
	assert.ErrorIs(t, err, app.ErrNoDatabase)
}
