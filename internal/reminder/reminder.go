// Package reminder posts a fixed promotional message on a schedule,
// independent of chain activity.
package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/pvzzle/buywatch/internal/clock"
	"github.com/pvzzle/buywatch/internal/metrics"
	"github.com/pvzzle/buywatch/internal/notify"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultFirstDelay = 5 * time.Second
	DefaultInterval   = 30 * time.Minute
)

type State int

const (
	Idle State = iota
	Waiting
)

func (s State) String() string {
	if s == Waiting {
		return "waiting"
	}
	return "idle"
}

// Offerer accepts a message without blocking.
type Offerer interface {
	Offer(m notify.Message) bool
}

type Config struct {
	FirstDelay time.Duration
	Interval   time.Duration
	Clock      clock.Clock
}

type Scheduler struct {
	out   Offerer
	build func() notify.Message
	clock clock.Clock
	log   *zap.SugaredLogger

	first    time.Duration
	interval time.Duration

	mu    sync.Mutex
	state State
}

// New returns a scheduler that posts build() after FirstDelay and then every
// Interval. build runs on each fire.
func New(out Offerer, build func() notify.Message, log *zap.SugaredLogger, cfg Config) *Scheduler {
	if cfg.FirstDelay <= 0 {
		cfg.FirstDelay = DefaultFirstDelay
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	return &Scheduler{
		out:      out,
		build:    build,
		clock:    cfg.Clock,
		log:      log,
		first:    cfg.FirstDelay,
		interval: cfg.Interval,
	}
}

// Text wraps a fixed text into a reminder message builder.
func Text(text string) func() notify.Message {
	return func() notify.Message {
		return notify.Message{Kind: notify.KindReminder, Text: text}
	}
}

// Run fires until ctx ends. A full dispatcher queue skips that fire only.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.setState(Idle)

	wait := s.first
	for {
		s.setState(Waiting)
		if err := clock.Sleep(ctx, s.clock, wait); err != nil {
			return err
		}
		wait = s.interval

		s.setState(Idle)
		s.fire()
	}
}

func (s *Scheduler) fire() {
	m := s.build()
	m.Kind = notify.KindReminder
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	if !s.out.Offer(m) {
		s.log.Warnw("reminder skipped, queue full", "id", m.ID, "next_in", s.interval)
		return
	}
	metrics.RemindersFired.Inc()
	s.log.Infow("reminder queued", "id", m.ID, "next_in", s.interval)
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
