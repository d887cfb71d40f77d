package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bharathbbg/parcel-hub/internal/model"
)

// LockerSweeper releases closets whose access code expired.
type LockerSweeper interface {
	CleanupExpired(ctx context.Context) (*model.CleanupResult, error)
}

// Scheduler runs the periodic maintenance jobs. A run still in progress
// when the next one is due is skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	timeout time.Duration
}

func New(log *zap.Logger) *Scheduler {
	log = log.Named("scheduler")
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{log}),
			cron.SkipIfStillRunning(cronLogger{log}),
		)),
		log:     log,
		timeout: 5 * time.Minute,
	}
}

// AddLockerCleanup schedules sweeper on spec, e.g. "@every 10m".
func (s *Scheduler) AddLockerCleanup(spec string, sweeper LockerSweeper) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		RunLockerCleanup(ctx, sweeper, s.log)
	})
	return err
}

// RunLockerCleanup performs one sweep and logs its outcome.
func RunLockerCleanup(ctx context.Context, sweeper LockerSweeper, log *zap.Logger) *model.CleanupResult {
	res, err := sweeper.CleanupExpired(ctx)
	if err != nil {
		log.Error("locker cleanup failed", zap.String("fn", "RunLockerCleanup"), zap.Error(err))
		return nil
	}
	if len(res.Errors) > 0 {
		log.Warn("locker cleanup finished with errors", zap.Int("released", res.Released), zap.Int("errors", len(res.Errors)))
	}
	return res
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts zap to cron's logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
