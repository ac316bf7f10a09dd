package model

import "time"

// Classification reasons recorded on non-eligible and errored rows.
const (
	ReasonOpenAboveHigh = "open > high"
	ReasonOpenEqualsLow = "open == low"
	ReasonNoTick        = "No tick"
	ReasonBadTick       = "Bad tick"
	ReasonUncategorized = "Uncategorized"
)

// StockView is one classified watchlist row as it appears in the
// eligibility snapshot and the price feed.
type StockView struct {
	Symbol  string  `json:"symbol"`
	Token   uint32  `json:"instrument_token"`
	High    float64 `json:"high"`
	Low     float64 `json:"low"`
	Open    float64 `json:"open"`
	Last    float64 `json:"last"`
	Percent float64 `json:"percent,omitempty"` // (high-last)/last*100, eligible rows only
	Reason  string  `json:"reason,omitempty"`  // not-eligible rows only
}

// StockError is a watchlist row that could not be classified.
type StockError struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// EligibilityResult is the outcome of one classifier pass over today's
// watchlist. The JSON shape doubles as the on-disk snapshot schema.
type EligibilityResult struct {
	Success         bool         `json:"success"`
	Eligible        []StockView  `json:"eligible"`
	NotEligible     []StockView  `json:"not_eligible"`
	Doji            []StockView  `json:"doji_eligible"`
	Errors          []StockError `json:"errors"`
	TotalChecked    int          `json:"total_checked"`
	WebsocketStatus string       `json:"websocket_status"`
	CheckedAt       time.Time    `json:"checked_at"`
}

// EligibleRow returns the eligible entry for token, if any.
func (r *EligibilityResult) EligibleRow(token uint32) (StockView, bool) {
	for _, s := range r.Eligible {
		if s.Token == token {
			return s, true
		}
	}
	return StockView{}, false
}
