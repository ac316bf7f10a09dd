package telemetry

import (
	"time"

	"breakout-trader/internal/feed"
	"breakout-trader/internal/markethours"
	"breakout-trader/internal/state"

	"github.com/shopspring/decimal"
)

// misLeverage is the intraday margin multiplier used for the indicative
// quantity column. The entry monitor computes the real order size from
// live broker margins at fire time.
const misLeverage = 5

// PositionRow is the price frame while a position is open.
type PositionRow struct {
	Symbol        string  `json:"symbol"`
	Quantity      int     `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
	PnL           float64 `json:"pnl"`
	PnLPercent    float64 `json:"pnl_percent"`
	TargetPrice   float64 `json:"target_price"`
	TargetPercent float64 `json:"target_percent_remaining"`
	Time          string  `json:"time"`
}

// QuoteRow is one eligible stock in the price frame while flat.
type QuoteRow struct {
	Symbol           string  `json:"symbol"`
	Last             float64 `json:"last"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	Change           float64 `json:"change"`
	Quantity         int     `json:"quantity"`
	ToTriggerPoints  float64 `json:"to_trigger_points"`
	ToTriggerPercent float64 `json:"to_trigger_percent"`
	Time             string  `json:"time"`
}

// PricePayload is one /ws/price frame. Feed holds PositionRow values
// while a position is open, QuoteRow values otherwise.
type PricePayload struct {
	Feed         []interface{} `json:"feed"`
	IsRunning    bool          `json:"is_running"`
	CurrentStep  string        `json:"current_step"`
	EngineStatus string        `json:"engine_status"`
}

// StatusPayload is one /ws/status frame.
type StatusPayload struct {
	LoggedIn         bool                `json:"logged_in"`
	UserName         string              `json:"user_name"`
	IsRunning        bool                `json:"is_running"`
	EngineStatus     string              `json:"engine_status"`
	CurrentStep      string              `json:"current_step"`
	OrderPlaced      bool                `json:"order_placed"`
	Positions        *state.PositionView `json:"positions"`
	RunID            string              `json:"run_id"`
	EligibleCount    int                 `json:"eligible_stocks_count"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	MarketOpen       bool                `json:"market_open"`
}

// PriceFeed returns the /ws/price payload builder.
func PriceFeed(st *state.State, store *feed.Store) PayloadFunc {
	return func(now time.Time) interface{} {
		return BuildPricePayload(st, store, now)
	}
}

// StatusFeed returns the /ws/status payload builder.
func StatusFeed(st *state.State) PayloadFunc {
	return func(now time.Time) interface{} {
		return BuildStatusPayload(st, now)
	}
}

// BuildPricePayload assembles one price frame from live state.
func BuildPricePayload(st *state.State, store *feed.Store, now time.Time) PricePayload {
	payload := PricePayload{
		Feed:         []interface{}{},
		IsRunning:    st.IsRunning(),
		CurrentStep:  string(st.Step()),
		EngineStatus: string(st.Status()),
	}

	if pos, ok := st.Position(); ok && !pos.Closed {
		payload.Feed = append(payload.Feed, positionRow(pos, store, now))
		return payload
	}

	res, ok := st.Eligibility()
	if !ok {
		return payload
	}

	margin := st.Config().MaxMargin
	clock := now.Format("15:04:05")

	for _, s := range res.Eligible {
		tick, ok := store.Get(s.Token)
		if !ok {
			continue
		}
		last := tick.LastPrice
		if last <= 0 || s.High <= 0 {
			continue
		}

		var change float64
		if prev := tick.OHLC.Close; prev > 0 {
			change = round2((last - prev) / prev * 100)
		}

		qty := 0
		if margin > 0 {
			qty = int(margin * misLeverage / last)
		}

		payload.Feed = append(payload.Feed, QuoteRow{
			Symbol:           s.Symbol,
			Last:             round2(last),
			Open:             round2(tick.OHLC.Open),
			High:             round2(s.High),
			Low:              round2(s.Low),
			Change:           change,
			Quantity:         qty,
			ToTriggerPoints:  round2(s.High - last),
			ToTriggerPercent: round2((s.High - last) / s.High * 100),
			Time:             clock,
		})
	}
	return payload
}

// BuildStatusPayload assembles one status frame from live state.
func BuildStatusPayload(st *state.State, now time.Time) StatusPayload {
	_, _, userName := st.User()

	payload := StatusPayload{
		LoggedIn:         st.LoggedIn(),
		UserName:         userName,
		IsRunning:        st.IsRunning(),
		EngineStatus:     string(st.Status()),
		CurrentStep:      string(st.Step()),
		OrderPlaced:      st.OrderPlaced(),
		RunID:            st.RunID(),
		RemainingSeconds: st.RemainingSeconds(now),
		MarketOpen:       markethours.IsMarketOpen(now),
	}
	if pos, ok := st.Position(); ok {
		payload.Positions = &pos
	}
	if res, ok := st.Eligibility(); ok {
		payload.EligibleCount = len(res.Eligible)
	}
	return payload
}

// positionRow prices the managed position against the latest tick. When
// no tick has arrived yet the entry price stands in and the P&L shows
// flat rather than a bogus full loss.
func positionRow(pos state.PositionView, store *feed.Store, now time.Time) PositionRow {
	last := pos.EntryPrice
	if tick, ok := store.Get(pos.Token); ok && tick.LastPrice > 0 {
		last = tick.LastPrice
	}

	// Signed move per unit: positive means the trade is in profit.
	move := last - pos.EntryPrice
	remaining := pos.TargetPrice - last
	qty := pos.Quantity
	if pos.Side == "SELL" {
		move = -move
		remaining = -remaining
		qty = -qty
	}

	var pnlPct, targetPct float64
	if pos.EntryPrice > 0 {
		pnlPct = round2(move / pos.EntryPrice * 100)
	}
	if last > 0 {
		targetPct = round2(remaining / last * 100)
	}

	return PositionRow{
		Symbol:        pos.Symbol,
		Quantity:      qty,
		AveragePrice:  round2(pos.EntryPrice),
		LastPrice:     round2(last),
		PnL:           round2(move * float64(pos.Quantity)),
		PnLPercent:    pnlPct,
		TargetPrice:   pos.TargetPrice,
		TargetPercent: targetPct,
		Time:          now.Format("15:04:05"),
	}
}

// round2 matches the dashboard's two-decimal display convention.
func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
