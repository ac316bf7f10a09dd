package model

import (
	"encoding/json"
	"time"
)

// Candle is one closed fixed-interval OHLC period for a single instrument.
// Period starts are aligned to market open (09:15 IST) plus whole intervals.
type Candle struct {
	Token       uint32    `json:"instrument_token"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	TickCount   int       `json:"tick_count"`
}

// JSON returns the JSON-encoded candle (ignoring errors for log/stream usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
