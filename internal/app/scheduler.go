package app

import (
	"fmt"

	"github.com/alem-hub/study-match/config"
	"github.com/alem-hub/study-match/internal/infrastructure/scheduler"
	"github.com/alem-hub/study-match/internal/infrastructure/scheduler/jobs"
)

// NewScheduler registers the periodic jobs of the worker. The cycle job is
// aligned to the offset when one is configured, so cycles land on the same
// wall-clock times after a restart.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	cfg := a.Config

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:         a.Logger,
		Timezone:       cfg.App.Location,
		TickInterval:   scheduler.DefaultSchedulerConfig().TickInterval,
		JobTimeout:     cfg.Scheduler.JobTimeout,
		MaxHistorySize: 200,
		Observer:       a.Metrics,
	})

	var cycleSchedule scheduler.Schedule
	if cfg.Scheduler.CycleOffset > 0 {
		cycleSchedule = scheduler.NewAlignedSchedule(cfg.Scheduler.CycleInterval, cfg.Scheduler.CycleOffset)
	} else {
		cycleSchedule = scheduler.NewIntervalSchedule(cfg.Scheduler.CycleInterval)
	}

	cycleJob := jobs.NewMatchingCycleJob(a.Cycles, func() bool {
		return cfg.Features.IsEnabled(config.FeatureAutoMatching)
	}, a.Logger)
	if err := sched.Register(cycleJob, cycleSchedule); err != nil {
		return nil, fmt.Errorf("register %s: %w", cycleJob.Name(), err)
	}

	statsJob := jobs.NewRecomputeStatsJob(a.Stats, func() bool {
		return cfg.Features.IsEnabled(config.FeatureScheduledStats)
	}, a.Logger)
	if err := sched.Register(statsJob, scheduler.NewIntervalSchedule(cfg.Scheduler.StatsInterval)); err != nil {
		return nil, fmt.Errorf("register %s: %w", statsJob.Name(), err)
	}

	return sched, nil
}
