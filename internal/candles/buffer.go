// Package candles builds fixed-interval OHLC periods from live ticks.
//
// A Buffer is pull-driven: the monitor loop feeds it ticks and asks once per
// iteration whether the current period has closed. Period boundaries come
// from pure arithmetic on the market open, never from "now minus last
// check", so a stalled loop cannot drift the grid.
package candles

import (
	"time"

	"breakout-trader/internal/markethours"
	"breakout-trader/internal/model"
)

type pricePoint struct {
	ts    time.Time
	price float64
}

// Buffer accumulates ticks for one instrument into the currently open
// period. Not safe for concurrent use; each monitor owns its buffers.
type Buffer struct {
	token    uint32
	interval time.Duration
	start    time.Time
	end      time.Time
	ticks    []pricePoint
}

// NewBuffer opens a buffer whose first period is the interval-aligned
// period containing now (or the 09:15 open when now is pre-market).
func NewBuffer(token uint32, interval time.Duration, now time.Time) *Buffer {
	start := markethours.AlignPeriodStart(now, interval)
	return &Buffer{
		token:    token,
		interval: interval,
		start:    start,
		end:      start.Add(interval),
	}
}

// Period returns the open period's boundaries.
func (b *Buffer) Period() (start, end time.Time) { return b.start, b.end }

// TickCount returns the number of ticks collected in the open period.
func (b *Buffer) TickCount() int { return len(b.ticks) }

// Add records a tick into the open period.
func (b *Buffer) Add(price float64, ts time.Time) {
	b.ticks = append(b.ticks, pricePoint{ts: ts, price: price})
}

// CloseIfDue finalises the open period once now has reached its end,
// returning the candle, or nil when the period is still open or collected
// no ticks. Zero-tick periods advance the window without emitting; a gap
// spanning several periods fast-forwards to the period containing now.
func (b *Buffer) CloseIfDue(now time.Time) *model.Candle {
	if now.Before(b.end) {
		return nil
	}

	var c *model.Candle
	if len(b.ticks) > 0 {
		c = &model.Candle{
			Token:       b.token,
			PeriodStart: b.start,
			PeriodEnd:   b.end,
			Open:        b.ticks[0].price,
			High:        b.ticks[0].price,
			Low:         b.ticks[0].price,
			Close:       b.ticks[len(b.ticks)-1].price,
			TickCount:   len(b.ticks),
		}
		for _, p := range b.ticks[1:] {
			if p.price > c.High {
				c.High = p.price
			}
			if p.price < c.Low {
				c.Low = p.price
			}
		}
	}

	for !now.Before(b.end) {
		b.start = b.end
		b.end = b.end.Add(b.interval)
	}
	b.ticks = b.ticks[:0]
	return c
}
