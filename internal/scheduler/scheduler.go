// Package scheduler enqueues periodic jobs and runs housekeeping.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cityofhelsinki/mvj/internal/clock"
	"github.com/cityofhelsinki/mvj/internal/config"
	"github.com/cityofhelsinki/mvj/internal/observability"
	"github.com/cityofhelsinki/mvj/internal/worker"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const slotPrefix = "mvj:schedule:"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Config  config.Config
	Queue   worker.Queue
	Locker  worker.Locker
	Metrics *observability.Metrics `optional:"true"`
}

type schedule struct {
	job      string
	interval time.Duration
	run      func(ctx context.Context) error
}

// Scheduler fires each job once per interval slot. Slots are multiples of the interval since the zero
// time and are claimed through the locker, so replicas share one schedule.
type Scheduler struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	cfg     config.SchedulerConfig
	queue   worker.Queue
	locker  worker.Locker
	metrics *observability.Metrics

	schedules []schedule
}

func New(p Params) *Scheduler {
	s := &Scheduler{
		db:      p.DB,
		log:     p.Log.Named("scheduler"),
		clock:   p.Clock,
		cfg:     p.Config.Scheduler,
		queue:   p.Queue,
		locker:  p.Locker,
		metrics: p.Metrics,
	}
	s.schedules = []schedule{
		{job: worker.JobIndexImport, interval: s.cfg.IndexImportInterval},
		{job: worker.JobInvoiceGeneration, interval: s.cfg.InvoiceGenerationInterval},
		{job: worker.JobEqualization, interval: s.cfg.EqualizationInterval},
		{job: worker.JobPayableRentReport, interval: s.cfg.ReportInterval},
		{job: jobCleanupDecrements, interval: 24 * time.Hour, run: s.CleanupDecrementsJob},
	}
	return s
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.cfg.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("tick", interval))
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick fires every schedule whose current slot has not been claimed yet.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now(ctx)
	for _, sc := range s.schedules {
		if sc.interval <= 0 {
			continue
		}
		slot := now.Truncate(sc.interval)
		key := fmt.Sprintf("%s%s:%d", slotPrefix, sc.job, slot.Unix())
		_, claimed, err := s.locker.Acquire(ctx, key, sc.interval)
		if err != nil {
			s.log.Error("claim schedule slot failed", zap.String("job", sc.job), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		if sc.run != nil {
			if err := sc.run(ctx); err != nil {
				s.log.Error("scheduled job failed", zap.String("job", sc.job), zap.Error(err))
			}
			continue
		}
		if err := s.Enqueue(ctx, sc.job, nil); err != nil {
			s.log.Error("enqueue failed", zap.String("job", sc.job), zap.Error(err))
		}
	}
}

// Enqueue publishes one job message immediately.
func (s *Scheduler) Enqueue(ctx context.Context, job string, payload any) error {
	msg, err := worker.NewMessage(job, payload, s.clock.Now(ctx))
	if err != nil {
		return err
	}
	if err := s.queue.Publish(ctx, msg); err != nil {
		return err
	}
	s.log.Info("job enqueued", zap.String("job", job), zap.String("run_id", msg.RunID))
	return nil
}
