// Package notify carries rendered messages from trigger evaluation to the
// external Notifier collaborator. The handoff is a bounded queue drained by
// a small worker pool, so Notifier latency or outages never slow down the
// event path or the scanner.
package notify

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jemiko1/crm-triggers/internal/domain"
)

// Channel is an outbound notification channel.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
)

// Message is one rendered notification for a set of recipients on a single
// channel. TriggerName travels along purely for log traceability.
type Message struct {
	TriggerName string
	WorkOrderID uuid.UUID

	Channel    Channel
	Recipients []domain.Employee

	Subject string
	Body    string
}

// Outcome is the per-recipient delivery result reported by a Notifier.
type Outcome struct {
	RecipientID uuid.UUID
	Err         error
}

// Notifier is the external delivery collaborator (SMTP/SMS gateway). The
// engine treats it fire-and-forget: outcomes are logged, never retried.
type Notifier interface {
	Send(ctx context.Context, msg Message) []Outcome
}

// ErrQueueFull is returned by Enqueue when the buffer is saturated. The
// message is dropped; delivery is best-effort.
var ErrQueueFull = errors.New("notify queue full")

// Queue is a bounded in-memory handoff between dispatch and the worker
// pool.
type Queue struct {
	ch chan Message
}

// NewQueue creates a queue with the given buffer capacity.
func NewQueue(buffer int) *Queue {
	return &Queue{ch: make(chan Message, buffer)}
}

// Enqueue hands a message to the worker pool without blocking. When the
// buffer is full the message is dropped and ErrQueueFull returned; callers
// log and continue, they never wait.
func (q *Queue) Enqueue(msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Channel exposes the receive side for the worker pool.
func (q *Queue) Channel() <-chan Message {
	return q.ch
}

// Depth returns the number of buffered messages.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Capacity returns the buffer capacity.
func (q *Queue) Capacity() int {
	return cap(q.ch)
}
