package engine

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// RunPoll drives cycles on a fixed interval using a cron schedule. It blocks
// until the context is done. SkipIfStillRunning guarantees cycles never
// overlap even when one outlives the interval.
func (e *Engine) RunPoll(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = "@every 90s"
	}
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := scheduler.AddFunc(schedule, func() {
		e.RunCycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid poll schedule %q: %w", schedule, err)
	}
	e.log.Info().Str("schedule", schedule).Msg("Starting poll loop")
	scheduler.Start()
	<-ctx.Done()
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	return nil
}

// RunPush drives cycles from a blocking push source (webhook queue or
// stream): each delivered batch becomes one cycle, processed in arrival
// order with no overlap.
func (e *Engine) RunPush(ctx context.Context) error {
	e.log.Info().Msg("Starting push loop")
	for {
		batch, err := e.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.log.Warn().Err(err).Msg("Push source failed")
			continue
		}
		e.counters.CycleRun()
		e.processBatch(ctx, batch, e.log)
	}
}
