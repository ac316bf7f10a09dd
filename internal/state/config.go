package state

import (
	"fmt"

	"breakout-trader/internal/markethours"
)

// TradingConfig is the mutable strategy configuration. It is edited over the
// API while the engine is idle and snapshotted once per monitor iteration, so
// changes apply from the next iteration onward.
type TradingConfig struct {
	TargetPercent         float64 `json:"target_percent"`
	MaxMargin             float64 `json:"max_margin"`
	CandleIntervalMinutes int     `json:"candle_interval_minutes"`
	SquareoffTime         string  `json:"squareoff_time"`
	SessionMaxSeconds     int     `json:"session_max_seconds"`
}

// DefaultTradingConfig returns the stock defaults. MaxMargin has no usable
// default: a start request is rejected until it is set.
func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		TargetPercent:         0.01,
		MaxMargin:             0,
		CandleIntervalMinutes: 15,
		SquareoffTime:         "15:00",
		SessionMaxSeconds:     4 * 60 * 60,
	}
}

// Validate rejects values the monitors cannot run with.
func (c TradingConfig) Validate() error {
	if c.TargetPercent <= 0 || c.TargetPercent >= 1 {
		return fmt.Errorf("target_percent must be in (0, 1), got %v", c.TargetPercent)
	}
	if c.MaxMargin < 0 {
		return fmt.Errorf("max_margin must be >= 0, got %v", c.MaxMargin)
	}
	if c.CandleIntervalMinutes < 1 {
		return fmt.Errorf("candle_interval_minutes must be >= 1, got %d", c.CandleIntervalMinutes)
	}
	if _, _, err := markethours.ParseClock(c.SquareoffTime); err != nil {
		return fmt.Errorf("squareoff_time: %w", err)
	}
	if c.SessionMaxSeconds < 1 {
		return fmt.Errorf("session_max_seconds must be >= 1, got %d", c.SessionMaxSeconds)
	}
	return nil
}
