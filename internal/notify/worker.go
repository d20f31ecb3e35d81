package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jemiko1/crm-triggers/internal/circuitbreaker"
)

// DrainTimeout bounds how long workers keep sending buffered messages after
// shutdown is requested.
const DrainTimeout = 30 * time.Second

// MetricsSink records worker pool metrics. Implementations must be
// non-blocking and must not propagate errors.
type MetricsSink interface {
	DispatchOutcome(channel, outcome string)
	QueueDepth(depth int)
}

// WorkerPool drains a Queue and invokes the Notifier. Each message is
// independent: a failed send is logged per recipient and never retried, and
// a channel whose breaker is open is skipped until its cooldown passes.
type WorkerPool struct {
	queue    *Queue
	notifier Notifier
	breaker  *circuitbreaker.Breaker // optional, nil = no breaker
	metrics  MetricsSink             // optional, nil = disabled
	logger   *zap.Logger
	workers  int
}

// NewWorkerPool creates a pool with the given number of workers. workers
// below 1 is treated as 1.
func NewWorkerPool(queue *Queue, notifier Notifier, workers int, logger *zap.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		queue:    queue,
		notifier: notifier,
		logger:   logger,
		workers:  workers,
	}
}

// WithBreaker attaches a per-channel circuit breaker.
func (p *WorkerPool) WithBreaker(b *circuitbreaker.Breaker) *WorkerPool {
	p.breaker = b
	return p
}

// WithMetrics attaches a metrics sink.
func (p *WorkerPool) WithMetrics(sink MetricsSink) *WorkerPool {
	p.metrics = sink
	return p
}

// Run starts the workers and blocks until ctx is cancelled and the buffered
// messages are drained (or the drain timeout passes).
func (p *WorkerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(p.workers)

	p.logger.Info("notify: worker pool started", zap.Int("workers", p.workers))

	for i := 0; i < p.workers; i++ {
		go func() {
			defer wg.Done()
			p.run(ctx)
		}()
	}

	wg.Wait()
	p.logger.Info("notify: worker pool stopped")
}

func (p *WorkerPool) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case msg := <-p.queue.Channel():
			p.send(ctx, msg)
		}
	}
}

// drain sends remaining buffered messages with a background context, since
// the run context is already cancelled.
func (p *WorkerPool) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			p.logger.Warn("notify: drain timeout", zap.Int("remaining", p.queue.Depth()))
			return
		case msg := <-p.queue.Channel():
			p.send(ctx, msg)
		default:
			return
		}
	}
}

func (p *WorkerPool) send(ctx context.Context, msg Message) {
	if p.metrics != nil {
		p.metrics.QueueDepth(p.queue.Depth())
	}

	if p.breaker != nil {
		if err := p.breaker.Allow(string(msg.Channel)); err != nil {
			p.logger.Warn("notify: channel breaker open, message skipped",
				zap.String("channel", string(msg.Channel)),
				zap.String("trigger", msg.TriggerName),
				zap.String("work_order_id", msg.WorkOrderID.String()))
			if p.metrics != nil {
				p.metrics.DispatchOutcome(string(msg.Channel), "skipped")
			}
			return
		}
	}

	outcomes := p.notifier.Send(ctx, msg)

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			p.logger.Warn("notify: delivery failed",
				zap.String("channel", string(msg.Channel)),
				zap.String("trigger", msg.TriggerName),
				zap.String("recipient_id", o.RecipientID.String()),
				zap.Error(o.Err))
		}
	}

	if p.breaker != nil {
		if failed > 0 {
			p.breaker.Failure(string(msg.Channel))
		} else {
			p.breaker.Success(string(msg.Channel))
		}
	}

	outcome := "success"
	if failed > 0 {
		outcome = "failed"
	}
	if p.metrics != nil {
		p.metrics.DispatchOutcome(string(msg.Channel), outcome)
	}

	p.logger.Debug("notify: message processed",
		zap.String("channel", string(msg.Channel)),
		zap.String("trigger", msg.TriggerName),
		zap.Int("recipients", len(msg.Recipients)),
		zap.Int("failed", failed))
}

// LogNotifier is a Notifier that only logs. It stands in when no real
// delivery collaborator is wired up.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Send(_ context.Context, msg Message) []Outcome {
	outcomes := make([]Outcome, 0, len(msg.Recipients))
	for _, r := range msg.Recipients {
		n.Logger.Info("notify: would send",
			zap.String("channel", string(msg.Channel)),
			zap.String("recipient", r.Name),
			zap.String("subject", msg.Subject))
		outcomes = append(outcomes, Outcome{RecipientID: r.ID})
	}
	return outcomes
}
