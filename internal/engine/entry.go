package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"breakout-trader/internal/broker"
	"breakout-trader/internal/model"
	"breakout-trader/internal/notification"
	"breakout-trader/internal/state"
	"breakout-trader/pkg/kiteconnect"
)

// Fixed buffer held back from deployable capital, and the intraday leverage
// multiple applied to it.
const (
	capitalBuffer = 500
	leverage      = 5
)

// runEntry scans the eligible list in watchlist order until a last trade
// touches its reference high, fires the breakout short, and continues in
// this goroutine as the position monitor.
func (e *Engine) runEntry(ctx context.Context, runID string, gw broker.Gateway, eligible []model.StockView) {
	st := e.cfg.State
	store := e.cfg.Session.Store()
	log.Printf("[engine] run %s: watching %d symbols for breakout", runID, len(eligible))

	e.notify(ctx, notification.EligibilitySummary(eligible))

	// Safety net: re-subscribe in case the transport was rebuilt between
	// the controller's subscribe and this goroutine starting.
	tokens := make([]uint32, 0, len(eligible))
	for _, s := range eligible {
		tokens = append(tokens, s.Token)
	}
	e.cfg.Session.Subscribe(tokens)

	ticker := time.NewTicker(e.cfg.Poll)
	defer ticker.Stop()

	for {
		if st.RunID() != runID {
			log.Printf("[engine] run %s superseded, exiting entry monitor", runID)
			return
		}
		if !st.IsRunning() {
			st.SetStep(state.StepManualStop)
			e.teardown(runID, state.StatusIdle)
			return
		}
		if st.RemainingSeconds(time.Now()) <= 0 {
			log.Printf("[engine] run %s: session limit reached without entry", runID)
			e.teardown(runID, state.StatusTimeout)
			return
		}

		for _, s := range eligible {
			tick, ok := store.Get(s.Token)
			if !ok || tick.LastPrice <= 0 {
				continue
			}
			if tick.LastPrice >= s.High {
				log.Printf("[engine] run %s: entry signal %s last %.2f >= high %.2f",
					runID, s.Symbol, tick.LastPrice, s.High)
				e.fireEntry(ctx, runID, gw, s, tick.LastPrice)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// fireEntry sizes and places the breakout order, then hands this goroutine
// over to the position monitor.
func (e *Engine) fireEntry(ctx context.Context, runID string, gw broker.Gateway, s model.StockView, last float64) {
	st := e.cfg.State

	qty, err := e.entryQuantity(gw, last)
	if err != nil {
		log.Printf("[engine] run %s: order sizing failed: %v", runID, err)
		e.notify(ctx, notification.OrderFailed(s.Symbol, kiteconnect.TransactionTypeSell, 0))
		e.teardown(runID, state.StatusIdle)
		return
	}

	orderID, err := e.placeOrder(ctx, gw, s.Symbol, kiteconnect.TransactionTypeSell, qty)
	if err != nil {
		e.teardown(runID, state.StatusIdle)
		return
	}

	st.SetOrderPlaced(true)
	st.SetStep(state.StepOrderPlaced)
	e.runPosition(ctx, runID, gw, orderID)
}

// entryQuantity sizes the order from deployable capital: available cash
// capped at the configured margin ceiling, less a fixed buffer, at intraday
// leverage. Quantities round up to odd.
func (e *Engine) entryQuantity(gw broker.Gateway, last float64) (int, error) {
	margins, err := gw.Margins()
	if err != nil {
		return 0, fmt.Errorf("query margins: %w", err)
	}
	capital := math.Min(margins.AvailableCash(), e.cfg.State.Config().MaxMargin) - capitalBuffer
	qty := int(capital * leverage / last)
	if qty < 1 {
		qty = 1
	}
	return qty | 1, nil
}

// placeOrder submits a MIS market order and reports the outcome on the
// notification channel.
func (e *Engine) placeOrder(ctx context.Context, gw broker.Gateway, symbol, transaction string, qty int) (string, error) {
	orderID, err := gw.PlaceOrder(kiteconnect.OrderParams{
		Variety:         kiteconnect.VarietyRegular,
		Exchange:        kiteconnect.ExchangeNSE,
		TradingSymbol:   symbol,
		TransactionType: transaction,
		Quantity:        qty,
		Product:         kiteconnect.ProductMIS,
		OrderType:       kiteconnect.OrderTypeMarket,
		Validity:        kiteconnect.ValidityDay,
		Tag:             e.cfg.OrderTag,
	})
	if err != nil {
		log.Printf("[engine] order rejected: %s %s x%d: %v", transaction, symbol, qty, err)
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.OrderFailures.Inc()
		}
		e.notify(ctx, notification.OrderFailed(symbol, transaction, qty))
		return "", fmt.Errorf("%w: %v", ErrOrderSubmissionFailed, err)
	}
	log.Printf("[engine] order placed: %s %s x%d id %s", transaction, symbol, qty, orderID)
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.OrdersPlaced.WithLabelValues(transaction).Inc()
	}
	e.notify(ctx, notification.OrderPlaced(symbol, transaction, qty, orderID))
	return orderID, nil
}
