// Package cli implements matchctl, the operator command line of the
// matching engine.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alem-hub/study-match/config"
	"github.com/alem-hub/study-match/internal/app"
	"github.com/alem-hub/study-match/pkg/logger"
)

// Set via -ldflags at build time.
var Version = "dev"

// Opener builds the engine for one command.
type Opener func(ctx context.Context) (*app.App, error)

// OpenFromEnv loads .env and the environment, logs to stderr and connects
// the configured backends.
func OpenFromEnv(ctx context.Context) (*app.App, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Options{
		Level:   cfg.Observability.LogLevel,
		Format:  logger.FormatText,
		Output:  os.Stderr,
		Service: "matchctl",
		Version: Version,
	})

	return app.New(ctx, cfg, log, app.Options{ConnectAttempts: 1})
}

// NewRootCommand assembles matchctl. open is called once per command.
func NewRootCommand(open Opener) *cobra.Command {
	var timeout time.Duration

	root := &cobra.Command{
		Use:           "matchctl",
		Short:         "Operate the study partner matching engine",
		Long:          "matchctl runs migrations and matching cycles, recomputes match statistics and explains pair scores.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "abort the command after this long")

	withApp := func(run func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return run(ctx, cmd, a, args)
		}
	}

	root.AddCommand(
		newMigrateCommand(withApp),
		newRunCycleCommand(withApp),
		newRecomputeStatsCommand(withApp),
		newScoreCommand(withApp),
	)
	return root
}

// Execute runs matchctl against the environment configuration.
func Execute(ctx context.Context) error {
	return NewRootCommand(OpenFromEnv).ExecuteContext(ctx)
}

type appRunner func(run func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
