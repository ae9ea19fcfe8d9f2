package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cityofhelsinki/mvj/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPQueue keeps job messages in a durable RabbitMQ queue. Every delivery is acked after
// its handler returns; failed jobs are not requeued.
type AMQPQueue struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	prefetch int
	log      *zap.Logger
}

func NewAMQPQueue(cfg config.AMQPConfig, log *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch, queue: cfg.Queue, prefetch: prefetch, log: log.Named("worker.amqp")}, nil
}

func (q *AMQPQueue) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	publishCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return q.ch.PublishWithContext(publishCtx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.RunID,
		Type:         msg.Job,
		Timestamp:    msg.EnqueuedAt,
		Body:         body,
	})
}

func (q *AMQPQueue) Consume(ctx context.Context, handle HandleFunc) error {
	deliveries, err := q.ch.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.queue, err)
	}
	closed := q.conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return nil
			}
			return fmt.Errorf("amqp connection closed: %w", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				q.log.Error("dropping malformed job message", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = handle(ctx, msg)
			if err := d.Ack(false); err != nil {
				q.log.Warn("ack failed", zap.String("job", msg.Job), zap.String("run_id", msg.RunID), zap.Error(err))
			}
		}
	}
}

func (q *AMQPQueue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	return q.conn.Close()
}
