// Package cursor tracks how far the monitoring loop has scanned the chain.
package cursor

import "github.com/pvzzle/buywatch/internal/chain"

const DefaultLookback = 100

// Cursor is the last-processed-block watermark. It is a value: NextRange and
// Advance never mutate the receiver, so a failed cycle simply keeps using the
// previous Cursor.
type Cursor struct {
	lookback uint64
	lastTo   uint64
	seeded   bool
}

func New(lookback uint64) Cursor {
	return Cursor{lookback: lookback}
}

// NextRange returns the window to scan for the given chain height. The
// first window reaches lookback blocks into the past. A height below the
// watermark yields an empty window at the watermark.
func (c Cursor) NextRange(height uint64) chain.BlockRange {
	if !c.seeded {
		from := uint64(0)
		if height > c.lookback {
			from = height - c.lookback
		}
		return chain.BlockRange{From: from, To: height}
	}
	if height < c.lastTo {
		return chain.BlockRange{From: c.lastTo, To: c.lastTo}
	}
	return chain.BlockRange{From: c.lastTo, To: height}
}

// Advance commits a fully processed range.
func (c Cursor) Advance(r chain.BlockRange) Cursor {
	c.lastTo = r.To
	c.seeded = true
	return c
}

// LastTo reports the watermark and whether one exists yet.
func (c Cursor) LastTo() (uint64, bool) { return c.lastTo, c.seeded }
