package engine

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"breakout-trader/internal/broker"
	"breakout-trader/internal/candles"
	"breakout-trader/internal/markethours"
	"breakout-trader/internal/notification"
	"breakout-trader/internal/state"
	"breakout-trader/pkg/kiteconnect"
)

// Exit reasons recorded on the close notification.
const (
	exitStopLoss   = "STOPLOSS"
	exitTarget     = "TARGET"
	exitSquareoff  = "SQUAREOFF_EOD"
	exitManualStop = "MANUAL_STOP"
)

// runPosition monitors the open intraday position until a stop-loss, the
// target, the square-off clock or an external stop closes it.
//
// Stop-loss is judged on closed candles only: a wick through the level does
// not trigger, the close must. The target is live against the last trade.
// Within one pass the precedence is stop-loss, then target, then square-off.
func (e *Engine) runPosition(ctx context.Context, runID string, gw broker.Gateway, orderID string) {
	st := e.cfg.State
	st.SetStep(state.StepPositionMonitoringStarted)

	book, err := gw.Positions()
	if err != nil {
		log.Printf("[engine] run %s: position query failed: %v", runID, err)
		e.teardown(runID, state.StatusIdle)
		return
	}
	pos := activePosition(book.Net)
	if pos == nil {
		log.Printf("[engine] run %s: no open position to monitor", runID)
		e.teardown(runID, state.StatusIdle)
		return
	}

	symbol := pos.TradingSymbol
	token := pos.InstrumentToken
	entry := pos.AveragePrice
	qty := pos.Quantity
	side := kiteconnect.TransactionTypeBuy
	sign := 1.0
	if qty < 0 {
		qty = -qty
		side = kiteconnect.TransactionTypeSell
		sign = -1
	}

	sl, haveSL := e.stopLossFor(token)
	if !haveSL {
		log.Printf("[engine] WARNING: no watchlist high for %s, stop-loss disabled", symbol)
	}

	cfg := st.Config()
	target := targetPrice(entry, sign, cfg.TargetPercent)

	st.SetPosition(&state.PositionView{
		Symbol:      symbol,
		Token:       token,
		Quantity:    qty,
		EntryPrice:  entry,
		Side:        side,
		TargetPrice: target,
		StopLoss:    sl,
		OrderID:     orderID,
	})
	e.notify(ctx, notification.PositionMonitorStarted(symbol, side, entry, qty, target))
	log.Printf("[engine] run %s: monitoring %s %s qty %d entry %.2f target %.4f sl %.2f",
		runID, symbol, side, qty, entry, target, sl)

	interval := time.Duration(cfg.CandleIntervalMinutes) * time.Minute
	buf := candles.NewBuffer(token, interval, time.Now())
	e.cfg.Session.Subscribe([]uint32{token})

	store := e.cfg.Session.Store()
	ticker := time.NewTicker(e.cfg.Poll)
	defer ticker.Stop()

	var last float64

	for {
		if st.RunID() != runID {
			log.Printf("[engine] run %s superseded, exiting position monitor", runID)
			return
		}
		if !st.IsRunning() {
			st.SetStep(state.StepManualStop)
			st.MarkPositionClosed()
			e.countExit(exitManualStop)
			e.notify(ctx, notification.PositionClosed(symbol, qty, last, exitManualStop))
			e.teardown(runID, state.StatusIdle)
			return
		}

		now := time.Now()
		cfg = st.Config() // mutable settings reload once per pass

		// An interval change drops the partial candle and realigns.
		if iv := time.Duration(cfg.CandleIntervalMinutes) * time.Minute; iv != interval {
			interval = iv
			buf = candles.NewBuffer(token, interval, now)
			log.Printf("[engine] run %s: candle interval now %s", runID, interval)
		}

		if tick, ok := store.Get(token); ok && tick.LastPrice > 0 {
			last = tick.LastPrice
			buf.Add(last, now)
		}

		if candle := buf.CloseIfDue(now); candle != nil {
			if e.cfg.Metrics != nil {
				e.cfg.Metrics.CandlesClosed.Inc()
			}
			if haveSL && stopLossTripped(side, candle.Close, sl) {
				log.Printf("[engine] run %s: stop-loss on %s candle close %.2f vs %.2f",
					runID, symbol, candle.Close, sl)
				st.SetStep(state.StepStopLossTriggered)
				e.notify(ctx, notification.StopLossHit(symbol, side, qty, candle.Close, sl))
				e.exitPosition(ctx, runID, gw, symbol, token, side, candle.Close, exitStopLoss)
				return
			}
		}

		target = targetPrice(entry, sign, cfg.TargetPercent)
		if last > 0 && targetTripped(side, last, target) {
			log.Printf("[engine] run %s: target on %s at %.2f (target %.4f)",
				runID, symbol, last, target)
			st.SetStep(state.StepTargetHit)
			e.notify(ctx, notification.TargetHit(symbol, qty, last))
			e.exitPosition(ctx, runID, gw, symbol, token, side, last, exitTarget)
			return
		}

		if h, m, err := markethours.ParseClock(cfg.SquareoffTime); err == nil && markethours.PastClock(now, h, m) {
			log.Printf("[engine] run %s: square-off time %s reached", runID, cfg.SquareoffTime)
			st.SetStep(state.StepAutoSquareOff)
			e.exitPosition(ctx, runID, gw, symbol, token, side, last, exitSquareoff)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// exitPosition flattens whatever quantity the broker still reports and ends
// the run. The broker book, not local state, is the source of truth for the
// remaining quantity.
func (e *Engine) exitPosition(ctx context.Context, runID string, gw broker.Gateway, symbol string, token uint32, side string, price float64, reason string) {
	st := e.cfg.State
	defer e.teardown(runID, state.StatusIdle)

	remaining := 0
	book, err := gw.Positions()
	if err != nil {
		if pv, ok := st.Position(); ok {
			remaining = pv.Quantity
		}
		log.Printf("[engine] WARNING: requery before exit failed, using tracked qty %d: %v", remaining, err)
	} else {
		for _, p := range book.Net {
			if p.InstrumentToken == token && p.Quantity != 0 {
				remaining = p.Quantity
				if remaining < 0 {
					remaining = -remaining
				}
				break
			}
		}
	}

	if remaining == 0 {
		log.Printf("[engine] run %s: %s already flat at broker", runID, symbol)
		st.SetStep(state.StepPositionClosed)
		st.MarkPositionClosed()
		e.countExit(reason)
		e.notify(ctx, notification.PositionClosed(symbol, 0, price, reason))
		return
	}

	exitSide := kiteconnect.TransactionTypeBuy
	if side == kiteconnect.TransactionTypeBuy {
		exitSide = kiteconnect.TransactionTypeSell
	}

	if _, err := e.placeOrder(ctx, gw, symbol, exitSide, remaining); err != nil {
		// Leave the position to the operator rather than retry blind.
		log.Printf("[engine] run %s: exit order failed, %s position remains OPEN", runID, symbol)
		return
	}

	st.SetStep(state.StepPositionClosed)
	st.MarkPositionClosed()
	e.countExit(reason)
	e.notify(ctx, notification.PositionClosed(symbol, remaining, price, reason))
	log.Printf("[engine] run %s: %s closed (%s) qty %d at %.2f", runID, symbol, reason, remaining, price)
}

func (e *Engine) countExit(reason string) {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.ExitsTotal.WithLabelValues(reason).Inc()
	}
}

// stopLossFor looks up the watchlist reference high for token, which doubles
// as the stop level.
func (e *Engine) stopLossFor(token uint32) (float64, bool) {
	rows, err := e.cfg.Rows.RowsForDate(markethours.SessionDate(time.Now()))
	if err != nil {
		log.Printf("[engine] WARNING: watchlist lookup failed: %v", err)
		return 0, false
	}
	for _, r := range rows {
		if r.Token == token {
			return r.High, true
		}
	}
	return 0, false
}

// targetPrice books profit sign-adjusted from entry: a short targets below,
// a long above. Rounded to four decimal places.
func targetPrice(entry, sign, pct float64) float64 {
	v := decimal.NewFromFloat(entry).Mul(decimal.NewFromFloat(1 + sign*pct))
	f, _ := v.Round(4).Float64()
	return f
}

// stopLossTripped reports whether a candle close breaches the stop level.
// An intra-candle wick through the level does not count.
func stopLossTripped(side string, close, sl float64) bool {
	if side == kiteconnect.TransactionTypeSell {
		return close > sl
	}
	return close < sl
}

// targetTripped reports whether the last trade reached the target.
func targetTripped(side string, last, target float64) bool {
	if side == kiteconnect.TransactionTypeSell {
		return last <= target
	}
	return last >= target
}
