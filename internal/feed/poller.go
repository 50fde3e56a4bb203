package feed

import (
	"context"
	"time"

	"github.com/pvzzle/buywatch/internal/clock"
	"github.com/pvzzle/buywatch/internal/metrics"

	"go.uber.org/zap"
)

const DefaultPollInterval = 180 * time.Second

// Poller ticks on a fixed timer. It is the degraded-but-correct mode for
// endpoints without subscriptions.
type Poller struct {
	interval time.Duration
	clock    clock.Clock
	log      *zap.SugaredLogger
}

func NewPoller(interval time.Duration, clk clock.Clock, log *zap.SugaredLogger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Poller{interval: interval, clock: clk, log: log}
}

func (p *Poller) Name() string { return "poll" }

func (p *Poller) Run(ctx context.Context, out *Mailbox) error {
	p.log.Infow("polling for new blocks", "interval", p.interval)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		out.Offer(Tick{Source: p.Name()})
		metrics.FeedTicks.WithLabelValues(p.Name()).Inc()

		if err := clock.Sleep(ctx, p.clock, p.interval); err != nil {
			return err
		}
	}
}
