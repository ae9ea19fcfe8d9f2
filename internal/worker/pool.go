package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cityofhelsinki/mvj/internal/observability"
	"go.uber.org/zap"
)

var ErrUnknownJob = errors.New("unknown_job")

const lockPrefix = "mvj:job:"

type registration struct {
	handle  HandleFunc
	timeout time.Duration
}

// Pool dispatches queued messages to registered job handlers. A job name runs on at most
// one worker at a time across all processes sharing the locker.
type Pool struct {
	queue    Queue
	locker   Locker
	log      *zap.Logger
	metrics  *observability.Metrics
	lockTTL  time.Duration
	handlers map[string]registration
}

func NewPool(queue Queue, locker Locker, log *zap.Logger, metrics *observability.Metrics, lockTTL time.Duration) *Pool {
	return &Pool{
		queue:    queue,
		locker:   locker,
		log:      log.Named("worker.pool"),
		metrics:  metrics,
		lockTTL:  lockTTL,
		handlers: map[string]registration{},
	}
}

func (p *Pool) Register(job string, timeout time.Duration, handle HandleFunc) {
	p.handlers[job] = registration{handle: handle, timeout: timeout}
}

func (p *Pool) Jobs() []string {
	out := make([]string, 0, len(p.handlers))
	for job := range p.handlers {
		out = append(out, job)
	}
	return out
}

func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("worker started", zap.Strings("jobs", p.Jobs()))
	return p.queue.Consume(ctx, p.Handle)
}

// Handle runs one message. Errors are logged and returned; the message is never retried.
func (p *Pool) Handle(ctx context.Context, msg Message) error {
	reg, ok := p.handlers[msg.Job]
	if !ok {
		p.log.Error("unknown job", zap.String("job", msg.Job), zap.String("run_id", msg.RunID))
		return ErrUnknownJob
	}

	lockTTL := p.lockTTL
	if reg.timeout > lockTTL {
		lockTTL = reg.timeout
	}
	release, acquired, err := p.locker.Acquire(ctx, lockPrefix+msg.Job, lockTTL)
	if err != nil {
		p.log.Error("job lock failed", zap.String("job", msg.Job), zap.String("run_id", msg.RunID), zap.Error(err))
		p.metrics.ObserveJob(msg.Job, "lock_error", 0)
		return err
	}
	if !acquired {
		p.log.Info("job already running, skipping", zap.String("job", msg.Job), zap.String("run_id", msg.RunID))
		p.metrics.ObserveJob(msg.Job, "skipped", 0)
		return nil
	}
	defer release()

	jobCtx, cancel := context.WithTimeout(ctx, reg.timeout)
	defer cancel()

	started := time.Now()
	p.log.Info("job started", zap.String("job", msg.Job), zap.String("run_id", msg.RunID))
	err = reg.handle(jobCtx, msg)
	elapsed := time.Since(started)

	status := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "failed"
	}
	p.metrics.ObserveJob(msg.Job, status, elapsed.Seconds())

	if err != nil {
		p.log.Error("job failed",
			zap.String("job", msg.Job),
			zap.String("run_id", msg.RunID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return err
	}
	p.log.Info("job finished", zap.String("job", msg.Job), zap.String("run_id", msg.RunID), zap.Duration("elapsed", elapsed))
	return nil
}
