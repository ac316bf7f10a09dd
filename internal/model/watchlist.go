package model

// WatchlistRow is one candidate symbol for a session date with its
// pre-computed reference levels. Rows are immutable for the session.
type WatchlistRow struct {
	Symbol string  `json:"symbol"`
	Token  uint32  `json:"instrument_token"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Date   string  `json:"date"` // YYYY-MM-DD
}

// Valid reports whether the row carries usable reference levels.
func (r WatchlistRow) Valid() bool {
	return r.Symbol != "" && r.Token != 0 && r.Low > 0 && r.Low < r.High
}
