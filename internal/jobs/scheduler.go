package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/byefat/backend/internal/service"
)

// Scheduler runs periodic maintenance on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

func NewScheduler(log *zap.Logger) *Scheduler {
	log = log.Named("jobs")
	logger := zapCronLogger{log: log}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		)),
		log: log,
	}
}

// AddReconcile repairs counter drift of the last days days on the cron schedule.
func (s *Scheduler) AddReconcile(spec string, r service.IReconciler, days int, timeout time.Duration) error {
	_, err := s.cron.AddFunc(spec, func() {
		ReconcileOnce(context.Background(), r, days, timeout, s.log)
	})
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running job up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stopped before running jobs finished")
	}
}

// ReconcileOnce runs one reconciliation pass and logs what it fixed.
func ReconcileOnce(ctx context.Context, r service.IReconciler, days int, timeout time.Duration, log *zap.Logger) []service.Drift {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	drifts, err := r.ReconcileRecent(ctx, days, true)
	if err != nil {
		log.Error("reconciliation failed", zap.Int("days", days), zap.Error(err))
		return drifts
	}
	for _, d := range drifts {
		log.Warn("day reconciled",
			zap.String("user_id", d.UserID),
			zap.String("date", d.Date),
			zap.Bool("drift", d.HasDrift()),
			zap.Bool("flagged", d.Flagged),
			zap.Float64("stored_consumed", d.StoredConsumed),
			zap.Float64("computed_consumed", d.ComputedConsumed),
			zap.Float64("stored_active", d.StoredActive),
			zap.Float64("computed_active", d.ComputedActive),
		)
	}
	log.Info("reconciliation finished",
		zap.Int("days", days),
		zap.Int("reconciled", len(drifts)),
		zap.Duration("took", time.Since(start)),
	)
	return drifts
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	log *zap.Logger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
