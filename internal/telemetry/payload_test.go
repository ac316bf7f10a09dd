package telemetry

import (
	"testing"
	"time"

	"breakout-trader/internal/feed"
	"breakout-trader/internal/markethours"
	"breakout-trader/internal/model"
	"breakout-trader/internal/state"
)

func newTestState(maxMargin float64) *state.State {
	cfg := state.DefaultTradingConfig()
	cfg.MaxMargin = maxMargin
	return state.New(cfg)
}

// tuesdayIST is a regular trading-hours instant.
var tuesdayIST = time.Date(2026, 8, 25, 10, 30, 0, 0, markethours.IST)

func TestPricePayloadQuoteRows(t *testing.T) {
	st := newTestState(50000)
	st.SetEligibility(model.EligibilityResult{
		Success: true,
		Eligible: []model.StockView{
			{Symbol: "RELIANCE", Token: 738561, High: 2500, Low: 2400, Percent: 2.04},
			{Symbol: "TATASTEEL", Token: 895745, High: 550, Low: 500, Percent: 4.2},
		},
	}, tuesdayIST)

	store := feed.NewStore()
	store.Apply(feed.Packet{
		Token:     738561,
		Fields:    feed.FieldLastPrice | feed.FieldOpen | feed.FieldClose,
		LastPrice: 2450,
		OHLC:      model.OHLC{Open: 2390, Close: 2400},
	})

	payload := BuildPricePayload(st, store, tuesdayIST)

	if payload.EngineStatus != "Idle" || payload.IsRunning {
		t.Fatalf("unexpected engine fields: %+v", payload)
	}
	if len(payload.Feed) != 1 {
		t.Fatalf("want 1 row (TATASTEEL has no tick yet), got %d", len(payload.Feed))
	}

	row, ok := payload.Feed[0].(QuoteRow)
	if !ok {
		t.Fatalf("feed row type = %T, want QuoteRow", payload.Feed[0])
	}
	if row.Symbol != "RELIANCE" || row.Last != 2450 || row.Open != 2390 || row.High != 2500 || row.Low != 2400 {
		t.Errorf("row prices wrong: %+v", row)
	}
	if row.Change != 2.08 {
		t.Errorf("change = %v, want 2.08", row.Change)
	}
	if row.Quantity != 102 {
		// 50000 * 5 / 2450 floored
		t.Errorf("quantity = %d, want 102", row.Quantity)
	}
	if row.ToTriggerPoints != 50 {
		t.Errorf("to_trigger_points = %v, want 50", row.ToTriggerPoints)
	}
	if row.ToTriggerPercent != 2 {
		t.Errorf("to_trigger_percent = %v, want 2", row.ToTriggerPercent)
	}
	if row.Time != "10:30:00" {
		t.Errorf("time = %q, want 10:30:00", row.Time)
	}
}

func TestPricePayloadSkipsBadTicks(t *testing.T) {
	st := newTestState(50000)
	st.SetEligibility(model.EligibilityResult{
		Success:  true,
		Eligible: []model.StockView{{Symbol: "ZEROED", Token: 11, High: 100, Low: 90}},
	}, tuesdayIST)

	store := feed.NewStore()
	store.Apply(feed.Packet{Token: 11, Fields: feed.FieldOpen, OHLC: model.OHLC{Open: 95}})

	payload := BuildPricePayload(st, store, tuesdayIST)
	if len(payload.Feed) != 0 {
		t.Fatalf("tick without a last price must be skipped, got %+v", payload.Feed)
	}
}

func TestPricePayloadPositionRow(t *testing.T) {
	st := newTestState(50000)
	st.SetPosition(&state.PositionView{
		Symbol:      "RELIANCE",
		Token:       738561,
		Quantity:    100,
		EntryPrice:  2500,
		Side:        "SELL",
		TargetPrice: 2475,
		StopLoss:    2500,
	})

	store := feed.NewStore()
	store.Apply(feed.Packet{Token: 738561, Fields: feed.FieldLastPrice, LastPrice: 2480})

	payload := BuildPricePayload(st, store, tuesdayIST)
	if len(payload.Feed) != 1 {
		t.Fatalf("want position row, got %+v", payload.Feed)
	}
	row, ok := payload.Feed[0].(PositionRow)
	if !ok {
		t.Fatalf("feed row type = %T, want PositionRow", payload.Feed[0])
	}

	if row.Quantity != -100 {
		t.Errorf("quantity = %d, want -100 (short position)", row.Quantity)
	}
	if row.AveragePrice != 2500 || row.LastPrice != 2480 {
		t.Errorf("prices wrong: %+v", row)
	}
	if row.PnL != 2000 {
		// short 100 @ 2500, now 2480: 20 points * 100
		t.Errorf("pnl = %v, want 2000", row.PnL)
	}
	if row.PnLPercent != 0.8 {
		t.Errorf("pnl_percent = %v, want 0.8", row.PnLPercent)
	}
	if row.TargetPrice != 2475 {
		t.Errorf("target_price = %v, want 2475", row.TargetPrice)
	}
	if row.TargetPercent != 0.2 {
		// (2480 - 2475) / 2480 * 100 = 0.2016 -> 0.2
		t.Errorf("target_percent_remaining = %v, want 0.2", row.TargetPercent)
	}
}

func TestPricePayloadPositionWithoutTick(t *testing.T) {
	st := newTestState(50000)
	st.SetPosition(&state.PositionView{
		Symbol: "TATASTEEL", Token: 895745, Quantity: 50,
		EntryPrice: 550, Side: "SELL", TargetPrice: 544.5,
	})

	payload := BuildPricePayload(st, feed.NewStore(), tuesdayIST)
	row := payload.Feed[0].(PositionRow)
	if row.LastPrice != 550 || row.PnL != 0 || row.PnLPercent != 0 {
		t.Errorf("no tick yet: P&L should be flat at entry, got %+v", row)
	}
}

func TestPricePayloadClosedPositionFallsBack(t *testing.T) {
	st := newTestState(50000)
	st.SetPosition(&state.PositionView{Symbol: "RELIANCE", Token: 738561, Quantity: 100, EntryPrice: 2500, Side: "SELL"})
	st.MarkPositionClosed()

	payload := BuildPricePayload(st, feed.NewStore(), tuesdayIST)
	if len(payload.Feed) != 0 {
		t.Fatalf("closed position must not be fed, got %+v", payload.Feed)
	}
}

func TestStatusPayloadFields(t *testing.T) {
	st := newTestState(50000)
	st.SetLogin("trader1", "AB1234", "Test Trader")
	st.SetEligibility(model.EligibilityResult{
		Success:  true,
		Eligible: []model.StockView{{Symbol: "A", Token: 1}, {Symbol: "B", Token: 2}},
	}, tuesdayIST)
	st.BeginRun("run-42", tuesdayIST)
	st.SetStep(state.StepOrderMonitoringStarted)

	got := BuildStatusPayload(st, tuesdayIST.Add(100*time.Second))

	if !got.LoggedIn || got.UserName != "Test Trader" {
		t.Errorf("login fields wrong: %+v", got)
	}
	if !got.IsRunning || got.EngineStatus != "Running" || got.CurrentStep != "OrderMonitoringStarted" {
		t.Errorf("engine fields wrong: %+v", got)
	}
	if got.RunID != "run-42" {
		t.Errorf("run_id = %q", got.RunID)
	}
	if got.EligibleCount != 2 {
		t.Errorf("eligible_stocks_count = %d, want 2", got.EligibleCount)
	}
	if want := state.DefaultTradingConfig().SessionMaxSeconds - 100; got.RemainingSeconds != want {
		t.Errorf("remaining_seconds = %d, want %d", got.RemainingSeconds, want)
	}
	if !got.MarketOpen {
		t.Error("tuesday 10:30 IST should be market-open")
	}
	if got.Positions != nil {
		t.Errorf("positions should be nil while flat, got %+v", got.Positions)
	}
}

func TestStatusPayloadIdle(t *testing.T) {
	st := newTestState(0)

	// Saturday, well outside market hours.
	saturday := time.Date(2026, 8, 29, 11, 0, 0, 0, markethours.IST)
	got := BuildStatusPayload(st, saturday)

	if got.LoggedIn || got.IsRunning || got.OrderPlaced {
		t.Errorf("fresh state must be idle: %+v", got)
	}
	if got.EngineStatus != "Idle" || got.CurrentStep != "Idle" {
		t.Errorf("engine fields wrong: %+v", got)
	}
	if got.RemainingSeconds != 0 {
		t.Errorf("remaining_seconds = %d, want 0", got.RemainingSeconds)
	}
	if got.MarketOpen {
		t.Error("saturday must not be market-open")
	}
	if got.EligibleCount != 0 {
		t.Errorf("eligible_stocks_count = %d, want 0", got.EligibleCount)
	}

	st.SetPosition(&state.PositionView{Symbol: "X", Token: 9, Quantity: 1, EntryPrice: 10, Side: "SELL"})
	got = BuildStatusPayload(st, saturday)
	if got.Positions == nil || got.Positions.Symbol != "X" {
		t.Errorf("positions should carry the tracked view, got %+v", got.Positions)
	}
}
