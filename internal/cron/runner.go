// Package cronrunner schedules background jobs on cron specs with a seconds field.
package cronrunner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Runner wraps cron.Cron, handing every job a shared base context
type Runner struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	baseCtx context.Context
}

// New creates a runner evaluating specs in loc. Panicking jobs are recovered
// and a job still running when its next tick fires is skipped.
func New(logger zerolog.Logger, baseCtx context.Context, loc *time.Location) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{logger}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers job under spec ("sec min hour dom month dow")
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() {
		start := time.Now()
		r.logger.Info().Str("job", name).Msg("cron job started")
		job(r.baseCtx)
		r.logger.Info().Str("job", name).Dur("elapsed", time.Since(start)).Msg("cron job finished")
	})
	if err != nil {
		return 0, err
	}
	r.logger.Info().Str("job", name).Str("spec", spec).Msg("cron job registered")
	return id, nil
}

// Len returns the number of registered jobs
func (r *Runner) Len() int {
	return len(r.cron.Entries())
}

// Start runs the scheduler in its own goroutine
func (r *Runner) Start() {
	r.logger.Info().Msg("cron started")
	r.cron.Start()
}

// Stop stops scheduling and waits for running jobs to finish
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info().Msg("cron stopped")
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
