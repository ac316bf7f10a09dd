package model

import "time"

// Tick is the coalesced market snapshot for one instrument token.
// Prices are in rupees; the feed's paise values are converted at parse time.
// Ticks are published immutably: the feed builds a fresh Tick per merge and
// swaps the store entry, so a reader never observes a half-written record.
type Tick struct {
	Token     uint32    `json:"instrument_token"`
	LastPrice float64   `json:"last_price"`
	OHLC      OHLC      `json:"ohlc"`
	Volume    int64     `json:"volume"`
	Depth     *Depth    `json:"depth,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OHLC carries the session open/high/low and the previous session's close.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Depth is the five-level order book ladder, merged per side.
type Depth struct {
	Buy  []DepthItem `json:"buy"`
	Sell []DepthItem `json:"sell"`
}

// DepthItem is one price level of the order book.
type DepthItem struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Orders   int64   `json:"orders"`
}

// Clone returns a deep copy. The feed mutates the copy during a merge and
// publishes it, leaving the original visible to concurrent readers.
func (t *Tick) Clone() *Tick {
	cp := *t
	if t.Depth != nil {
		d := Depth{
			Buy:  append([]DepthItem(nil), t.Depth.Buy...),
			Sell: append([]DepthItem(nil), t.Depth.Sell...),
		}
		cp.Depth = &d
	}
	return &cp
}
