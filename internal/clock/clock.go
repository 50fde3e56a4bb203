// Package clock is the time seam shared by the schedulers and retry loops.
package clock

import (
	"context"
	"time"
)

type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type Real struct{}

func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Sleep waits d on c or returns ctx.Err() when ctx ends first.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}
