package scheduler

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type jobRun struct {
	name      string
	id        string
	batches   int
	processed int
	started   time.Time
}

func (r *jobRun) AddProcessed(n int) {
	if r == nil {
		return
	}
	r.processed += n
}

type jobRunKey struct{}

// ensureJobRun reuses a run already on ctx. owner is true when this call created it.
func (s *Scheduler) ensureJobRun(ctx context.Context, name string, batches int) (context.Context, *jobRun, bool) {
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok && run != nil {
		return ctx, run, false
	}
	run := &jobRun{
		name:    name,
		id:      ulid.Make().String(),
		batches: batches,
		started: s.clock.Now(ctx),
	}
	return context.WithValue(ctx, jobRunKey{}, run), run, true
}

func (s *Scheduler) logJobStart(_ context.Context, run *jobRun) {
	s.log.Info("scheduler job started",
		zap.String("job", run.name),
		zap.String("run_id", run.id),
		zap.Int("batches", run.batches),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	elapsed := s.clock.Now(ctx).Sub(run.started)
	s.metrics.ObserveJob(run.name, "ok", elapsed.Seconds())
	s.log.Info("scheduler job finished",
		zap.String("job", run.name),
		zap.String("run_id", run.id),
		zap.Int("processed", run.processed),
		zap.Duration("elapsed", elapsed),
	)
}

func (s *Scheduler) logSchedulerError(_ context.Context, run *jobRun, event, job string, processed int, err error) {
	s.metrics.ObserveJob(job, "failed", 0)
	fields := []zap.Field{
		zap.String("event", event),
		zap.String("job", job),
		zap.Int("processed", processed),
		zap.Error(err),
	}
	if run != nil {
		fields = append(fields, zap.String("run_id", run.id))
	}
	s.log.Error("scheduler job error", fields...)
}
