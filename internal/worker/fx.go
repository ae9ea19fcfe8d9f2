package worker

import (
	"context"

	"github.com/cityofhelsinki/mvj/internal/config"
	"github.com/cityofhelsinki/mvj/internal/index/importer"
	"github.com/cityofhelsinki/mvj/internal/observability"
	mvjredis "github.com/cityofhelsinki/mvj/internal/redis"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("worker",
	fx.Provide(NewQueue),
	fx.Provide(NewLocker),
	fx.Provide(NewPoolFromConfig),
	fx.Provide(func(im *importer.Importer) IndexImporter { return im }),
	fx.Provide(NewJobs),
	fx.Invoke(func(pool *Pool, jobs *Jobs, cfg config.Config) {
		RegisterJobs(pool, jobs, cfg.Scheduler)
	}),
)

// Runner consumes the queue for the lifetime of the fx app.
var Runner = fx.Invoke(StartPool)

// NewQueue uses RabbitMQ when amqp.url is set and an in-process queue otherwise.
func NewQueue(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Queue, error) {
	var q Queue
	if cfg.AMQP.URL == "" {
		log.Info("amqp not configured, using in-process job queue")
		q = NewMemoryQueue(64)
	} else {
		aq, err := NewAMQPQueue(cfg.AMQP, log)
		if err != nil {
			return nil, err
		}
		q = aq
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return q.Close() },
	})
	return q, nil
}

func NewLocker(lc fx.Lifecycle, cfg config.Config) (Locker, error) {
	if cfg.Redis.Addr == "" {
		return NewLocalLocker(), nil
	}
	client, err := mvjredis.NewClient(lc, cfg)
	if err != nil {
		return nil, err
	}
	return NewRedisLocker(client), nil
}

type PoolParams struct {
	fx.In

	Queue   Queue
	Locker  Locker
	Log     *zap.Logger
	Config  config.Config
	Metrics *observability.Metrics `optional:"true"`
}

func NewPoolFromConfig(p PoolParams) *Pool {
	return NewPool(p.Queue, p.Locker, p.Log, p.Metrics, p.Config.Scheduler.LockTTL)
}

func StartPool(lc fx.Lifecycle, pool *Pool, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := pool.Run(ctx); err != nil {
					log.Error("worker stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
