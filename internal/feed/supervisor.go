package feed

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pvzzle/buywatch/internal/chain"
	"github.com/pvzzle/buywatch/internal/clock"
	"github.com/pvzzle/buywatch/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const DefaultReconnectDelay = 5 * time.Second

type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

type HeadSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

type SupervisorConfig struct {
	Backoff backoff.BackOff
	// Fallback takes over when the endpoint turns out not to support
	// subscriptions at all.
	Fallback Source
	Clock    clock.Clock
	OnState  func(State)
}

// Supervisor keeps a newHeads subscription alive. Every failure moves it to
// Disconnected, and each reconnect waits one backoff step. It only returns
// when ctx ends or after handing over to the fallback.
type Supervisor struct {
	sub      HeadSubscriber
	backoff  backoff.BackOff
	fallback Source
	clock    clock.Clock
	onState  func(State)
	log      *zap.SugaredLogger

	state atomic.Int32
}

// NewBackoff is a fixed delay, or a capped exponential one when maxDelay > delay.
func NewBackoff(delay, maxDelay time.Duration) backoff.BackOff {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	if maxDelay <= delay {
		return backoff.NewConstantBackOff(delay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = delay
	b.MaxInterval = maxDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func NewSupervisor(sub HeadSubscriber, log *zap.SugaredLogger, cfg SupervisorConfig) *Supervisor {
	if cfg.Backoff == nil {
		cfg.Backoff = NewBackoff(DefaultReconnectDelay, 0)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	return &Supervisor{
		sub:      sub,
		backoff:  cfg.Backoff,
		fallback: cfg.Fallback,
		clock:    cfg.Clock,
		onState:  cfg.OnState,
		log:      log,
	}
}

func (s *Supervisor) Name() string { return "push" }

func (s *Supervisor) State() State { return State(s.state.Load()) }

func (s *Supervisor) Run(ctx context.Context, out *Mailbox) error {
	s.setState(Disconnected)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.setState(Connecting)
		headers := make(chan *types.Header, 16)
		sub, err := s.sub.SubscribeNewHead(ctx, headers)
		if err != nil {
			s.setState(Disconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, rpc.ErrNotificationsUnsupported) && s.fallback != nil {
				s.log.Warnw("endpoint has no subscriptions, switching to polling", "error", err)
				return s.fallback.Run(ctx, out)
			}
			if err := s.wait(ctx, err); err != nil {
				return err
			}
			continue
		}

		s.setState(Subscribed)
		s.backoff.Reset()
		s.log.Infow("subscribed to new block headers")

		err = s.forward(ctx, sub, headers, out)
		sub.Unsubscribe()
		s.setState(Disconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.wait(ctx, err); err != nil {
			return err
		}
	}
}

func (s *Supervisor) forward(ctx context.Context, sub ethereum.Subscription, headers <-chan *types.Header, out *Mailbox) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed")
			}
			return &chain.ConnectionError{Err: err}

		case h := <-headers:
			if h == nil || h.Number == nil {
				continue
			}
			out.Offer(Tick{Height: h.Number.Uint64(), Source: s.Name()})
			metrics.FeedTicks.WithLabelValues(s.Name()).Inc()
		}
	}
}

func (s *Supervisor) wait(ctx context.Context, cause error) error {
	d := s.backoff.NextBackOff()
	if d == backoff.Stop {
		s.backoff.Reset()
		d = s.backoff.NextBackOff()
	}
	metrics.FeedReconnects.Inc()
	s.log.Warnw("head subscription down, reconnecting", "in", d, "error", cause)
	return clock.Sleep(ctx, s.clock, d)
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
	metrics.FeedState.Set(float64(st))
	if s.onState != nil {
		s.onState(st)
	}
}

// Select picks the push supervisor when the endpoint can carry
// subscriptions and the poller otherwise. The poller stays the
// supervisor's fallback.
func Select(endpoint string, sub HeadSubscriber, poller *Poller, log *zap.SugaredLogger, cfg SupervisorConfig) Source {
	if !SupportsPush(endpoint) {
		log.Infow("endpoint has no push transport, using polling", "interval", poller.interval)
		return poller
	}
	cfg.Fallback = poller
	return NewSupervisor(sub, log, cfg)
}
