// Package feed tells the monitoring loop when the chain may have moved,
// either from a live newHeads subscription or from a polling timer.
package feed

import (
	"context"
	"net/url"
	"strings"
)

// Tick asks the monitoring loop to run a cycle. Height is the announced
// head, or zero when the loop must query it itself.
type Tick struct {
	Height uint64
	Source string
}

// Source produces ticks until ctx ends. Implementations never return on
// transient upstream failures.
type Source interface {
	Name() string
	Run(ctx context.Context, out *Mailbox) error
}

// Mailbox is a one-slot tick channel where a newer tick replaces an
// undelivered one, so a slow cycle never builds a backlog.
type Mailbox struct {
	ch chan Tick
}

func NewMailbox() *Mailbox { return &Mailbox{ch: make(chan Tick, 1)} }

func (m *Mailbox) C() <-chan Tick { return m.ch }

func (m *Mailbox) Offer(t Tick) {
	for {
		select {
		case m.ch <- t:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

// SupportsPush reports whether the endpoint can carry eth_subscribe.
func SupportsPush(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
		return true
	case "", "file":
		// IPC socket path
		return strings.HasSuffix(endpoint, ".ipc")
	default:
		return false
	}
}
