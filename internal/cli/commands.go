package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/alem-hub/study-match/internal/app"
	"github.com/alem-hub/study-match/internal/application/command"
	"github.com/alem-hub/study-match/internal/application/query"
	"github.com/alem-hub/study-match/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATE
// ══════════════════════════════════════════════════════════════════════════════

func newMigrateCommand(withApp appRunner) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			if status {
				migrations, err := a.MigrationStatus(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED AT")
				for _, m := range migrations {
					applied := "pending"
					if m.IsApplied {
						applied = m.AppliedAt.UTC().Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\n", m.Version, m.Name, applied)
				}
				return tw.Flush()
			}

			applied, err := a.Migrate(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&status, "status", false, "list migrations instead of applying them")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN CYCLE
// ══════════════════════════════════════════════════════════════════════════════

type pairingOutput struct {
	ID      string `json:"id"`
	UserAID string `json:"user_a_id"`
	UserBID string `json:"user_b_id"`
	Score   int    `json:"score"`
}

type cycleOutput struct {
	RunID               string          `json:"run_id"`
	Outcome             string          `json:"outcome"`
	PoolSize            int             `json:"pool_size"`
	MatchesCreated      int             `json:"matches_created"`
	ConversationsOpened int             `json:"conversations_opened"`
	Errors              []string        `json:"errors,omitempty"`
	Pairings            []pairingOutput `json:"pairings"`
	StartedAt           time.Time       `json:"started_at"`
	Duration            string          `json:"duration"`
}

func newRunCycleCommand(withApp appRunner) *cobra.Command {
	var now string

	cmd := &cobra.Command{
		Use:   "run-cycle",
		Short: "Run one matching cycle now",
		Long:  "Runs one matching cycle under the shared cycle lock. --now replays a cycle at an RFC3339 timestamp.",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			runCmd := command.RunCycleCommand{
				Trigger:       "cli",
				CorrelationID: uuid.NewString(),
			}
			if now != "" {
				at, err := time.Parse(time.RFC3339, now)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
				runCmd.Now = at
			}

			result, err := a.Cycles.Handle(ctx, runCmd)
			if err != nil && result == nil {
				return err
			}

			out := cycleOutput{
				RunID:               result.RunID,
				Outcome:             result.Outcome(),
				PoolSize:            result.PoolSize,
				MatchesCreated:      result.MatchesCreated,
				ConversationsOpened: result.ConversationsOpened,
				Errors:              result.Errors,
				Pairings:            make([]pairingOutput, 0, len(result.Pairings)),
				StartedAt:           result.StartedAt,
				Duration:            result.Duration.String(),
			}
			for _, p := range result.Pairings {
				out.Pairings = append(out.Pairings, pairingOutput{
					ID:      p.ID,
					UserAID: p.UserAID,
					UserBID: p.UserBID,
					Score:   p.Breakdown.Adjusted,
				})
			}
			if printErr := printJSON(cmd.OutOrStdout(), out); printErr != nil {
				return printErr
			}
			if err != nil {
				return err
			}
			if result.Skipped {
				return shared.ErrCycleInProgress
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&now, "now", "", "cycle timestamp in RFC3339 (default: current time)")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// RECOMPUTE STATS
// ══════════════════════════════════════════════════════════════════════════════

type statsOutput struct {
	Users    int         `json:"users"`
	Updated  int         `json:"updated"`
	Failures []string    `json:"failures,omitempty"`
	Stats    interface{} `json:"stats,omitempty"`
	Duration string      `json:"duration"`
}

func newRecomputeStatsCommand(withApp appRunner) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "recompute-stats",
		Short: "Recompute match statistics from the ledger",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
			result, err := a.Stats.Handle(ctx, command.RecomputeStatsCommand{UserID: userID})
			if err != nil {
				return err
			}

			out := statsOutput{
				Users:    result.Users,
				Updated:  result.Updated,
				Failures: result.Failures,
				Duration: result.Duration.String(),
			}
			if result.Stats != nil {
				out.Stats = result.Stats
			}
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if len(result.Failures) > 0 {
				return fmt.Errorf("%d user(s) failed", len(result.Failures))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&userID, "user", "", "recompute a single user")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORE
// ══════════════════════════════════════════════════════════════════════════════

func newScoreCommand(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "score USER_A USER_B",
		Short: "Explain the compatibility score of two users",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
			result, err := a.Scores.Handle(ctx, query.ScorePairQuery{UserAID: args[0], UserBID: args[1]})
			if err != nil {
				if shared.IsNotFound(err) {
					return fmt.Errorf("unknown user: %w", err)
				}
				if errors.Is(err, shared.ErrSelfPairing) {
					return errors.New("a user cannot be paired with themselves")
				}
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		}),
	}
}
