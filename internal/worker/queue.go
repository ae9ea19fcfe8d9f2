// Package worker runs background jobs taken from a message queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

var ErrQueueClosed = errors.New("queue_closed")

// Message is one job request. RunID is a ULID so runs sort by enqueue time.
type Message struct {
	Job        string          `json:"job"`
	RunID      string          `json:"run_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

func NewMessage(job string, payload any, now time.Time) (Message, error) {
	msg := Message{
		Job:        job,
		RunID:      ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		EnqueuedAt: now,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal %s payload: %w", job, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// Decode unmarshals the payload into out.
func (m Message) Decode(out any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Job)
	}
	return json.Unmarshal(m.Payload, out)
}

type HandleFunc func(ctx context.Context, msg Message) error

type Queue interface {
	Publish(ctx context.Context, msg Message) error
	// Consume blocks, calling handle for each message until ctx is done.
	Consume(ctx context.Context, handle HandleFunc) error
	Close() error
}

// MemoryQueue is an in-process queue for single-binary runs and tests.
type MemoryQueue struct {
	ch     chan Message
	closed chan struct{}
}

func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{
		ch:     make(chan Message, size),
		closed: make(chan struct{}),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, msg Message) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- msg:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, handle HandleFunc) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.closed:
			return nil
		case msg := <-q.ch:
			_ = handle(ctx, msg)
		}
	}
}

// Len reports queued messages.
func (q *MemoryQueue) Len() int { return len(q.ch) }

func (q *MemoryQueue) Close() error {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
	return nil
}
