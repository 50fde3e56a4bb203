package notify

import (
	"context"
	"errors"
	"time"

	"github.com/pvzzle/buywatch/internal/metrics"
	"github.com/pvzzle/buywatch/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultBuffer  = 256
)

type Config struct {
	Buffer  int
	Timeout time.Duration
	// Limit caps sends per second towards the chat. Zero means unlimited.
	Limit rate.Limit
	Burst int
}

// Dispatcher owns the outbound chat connection. A single worker drains a
// bounded queue, so at most one send is in flight and producers never share
// rate-limit state.
type Dispatcher struct {
	sender  Sender
	repo    storage.Repository
	log     *zap.SugaredLogger
	limiter *rate.Limiter
	timeout time.Duration
	queue   chan Message
}

func NewDispatcher(sender Sender, repo storage.Repository, log *zap.SugaredLogger, cfg Config) *Dispatcher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Limit == 0 {
		cfg.Limit = rate.Inf
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if repo == nil {
		repo = storage.Nop{}
	}

	return &Dispatcher{
		sender:  sender,
		repo:    repo,
		log:     log,
		limiter: rate.NewLimiter(cfg.Limit, cfg.Burst),
		timeout: cfg.Timeout,
		queue:   make(chan Message, cfg.Buffer),
	}
}

// Enqueue blocks until the message is queued or ctx ends.
func (d *Dispatcher) Enqueue(ctx context.Context, m Message) error {
	m = stamp(m)
	select {
	case d.queue <- m:
		metrics.NotifyQueueDepth.Set(float64(len(d.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Offer queues the message unless the queue is full.
func (d *Dispatcher) Offer(m Message) bool {
	m = stamp(m)
	select {
	case d.queue <- m:
		metrics.NotifyQueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		metrics.NotificationsDropped.WithLabelValues(string(m.Kind), "queue_full").Inc()
		return false
	}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-d.queue:
			metrics.NotifyQueueDepth.Set(float64(len(d.queue)))
			if err := d.deliver(ctx, m); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				d.log.Warnw("notification dropped", "id", m.ID, "kind", m.Kind, "tx", m.TxHash, "error", err)
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, m Message) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return &DispatchError{MessageID: m.ID, Kind: m.Kind, Err: err}
	}

	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	start := time.Now()
	err := d.sender.Send(sctx, m)
	cancel()
	metrics.NotifySendLatency.Observe(time.Since(start).Seconds())

	rec := storage.DeliveryRecord{
		MessageID: m.ID,
		Kind:      string(m.Kind),
		Status:    storage.DeliverySent,
		At:        time.Now().UTC(),
	}
	if m.TxHash != "" {
		h := m.TxHash
		rec.TxHash = &h
	}

	if err != nil {
		reason := "send_error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.NotificationsDropped.WithLabelValues(string(m.Kind), reason).Inc()

		msg := err.Error()
		rec.Status = storage.DeliveryDropped
		rec.Error = &msg
		d.journal(ctx, rec)
		return &DispatchError{MessageID: m.ID, Kind: m.Kind, Err: err}
	}

	metrics.NotificationsSent.WithLabelValues(string(m.Kind)).Inc()
	d.log.Infow("notification sent", "id", m.ID, "kind", m.Kind, "tx", m.TxHash)
	d.journal(ctx, rec)
	return nil
}

func (d *Dispatcher) journal(ctx context.Context, rec storage.DeliveryRecord) {
	if err := d.repo.AddDelivery(ctx, rec); err != nil {
		d.log.Warnw("journal delivery failed", "id", rec.MessageID, "error", err)
	}
}

func stamp(m Message) Message {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return m
}
