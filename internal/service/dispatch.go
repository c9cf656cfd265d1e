package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/byefat/backend/internal/logger"
)

var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Task is a follow-up write that runs after the request that caused it has
// already answered.
type Task struct {
	Name      string
	UserID    string
	Run       func(ctx context.Context) error
	OnSuccess func()
	OnFailure func(err error)
}

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	// Backoff is multiplied by the attempt number between retries.
	Backoff     time.Duration
	TaskTimeout time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:     4,
		QueueSize:   256,
		MaxAttempts: 3,
		Backoff:     time.Second,
		TaskTimeout: 10 * time.Second,
	}
}

// Dispatcher runs tasks on a bounded worker pool and retries failures.
type Dispatcher struct {
	cfg      DispatcherConfig
	tasks    chan Task
	log      *zap.Logger
	reporter logger.PermissionReporter

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	closed   bool
	workers  sync.WaitGroup
	inflight sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig, log *zap.Logger, reporter logger.PermissionReporter) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:      cfg,
		tasks:    make(chan Task, cfg.QueueSize),
		log:      log.Named("dispatcher"),
		reporter: reporter,
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.workers.Add(1)
		go d.worker()
	}
	return d
}

// Submit queues t. It blocks while the queue is full.
func (d *Dispatcher) Submit(t Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.inflight.Add(1)
	d.tasks <- t
	return nil
}

// Wait blocks until every submitted task has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Close drains queued tasks and stops the workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	d.workers.Wait()
	d.cancel()
}

func (d *Dispatcher) worker() {
	defer d.workers.Done()
	for t := range d.tasks {
		d.run(t)
		d.inflight.Done()
	}
}

func (d *Dispatcher) run(t Task) {
	var err error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(d.ctx, d.cfg.TaskTimeout)
		err = t.Run(ctx)
		cancel()
		if err == nil {
			if t.OnSuccess != nil {
				t.OnSuccess()
			}
			return
		}

		if IsPermissionError(err) {
			if d.reporter != nil {
				d.reporter.Report(t.Name, t.UserID, err)
			}
			d.fail(t, err)
			return
		}

		d.log.Warn("task attempt failed",
			zap.String("task", t.Name),
			zap.String("user_id", t.UserID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", d.cfg.MaxAttempts),
			zap.Error(err),
		)
		if attempt < d.cfg.MaxAttempts {
			select {
			case <-time.After(time.Duration(attempt) * d.cfg.Backoff):
			case <-d.ctx.Done():
				d.fail(t, d.ctx.Err())
				return
			}
		}
	}

	d.log.Error("task failed permanently",
		zap.String("task", t.Name),
		zap.String("user_id", t.UserID),
		zap.Error(err),
	)
	d.fail(t, err)
}

func (d *Dispatcher) fail(t Task, err error) {
	if t.OnFailure != nil {
		t.OnFailure(err)
	}
}
