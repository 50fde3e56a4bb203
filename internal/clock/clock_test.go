package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type instant struct{ waits []time.Duration }

func (c *instant) After(d time.Duration) <-chan time.Time {
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestSleep_UsesClock(t *testing.T) {
	c := &instant{}
	require.NoError(t, Sleep(context.Background(), c, 5*time.Second))
	assert.Equal(t, []time.Duration{5 * time.Second}, c.waits)
}

func TestSleep_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, Real{}, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleep_ZeroDuration(t *testing.T) {
	c := &instant{}
	require.NoError(t, Sleep(context.Background(), c, 0))
	assert.Empty(t, c.waits)
}
