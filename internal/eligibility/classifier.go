// Package eligibility classifies the day's watchlist into sell-side
// eligible, not-eligible and doji buckets from live opening-range ticks.
//
// A run is expensive (it brings the tick session up and down), so results
// are cached in engine state and reused until the watchlist changes or the
// caller forces a re-check. The classifier owns the whole feed lifecycle
// for its run: stop anything stale, set up, start, subscribe, classify,
// tear down. It never leaves the session connected.
package eligibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"breakout-trader/internal/feed"
	"breakout-trader/internal/markethours"
	"breakout-trader/internal/metrics"
	"breakout-trader/internal/model"
	"breakout-trader/internal/notification"
	"breakout-trader/internal/state"
)

// Classification failures surfaced to the run controller and the API.
var (
	ErrNoStocksForToday   = errors.New("no stocks for today")
	ErrFeedSetupFailed    = errors.New("websocket setup failed")
	ErrFeedConnectTimeout = errors.New("websocket not connected")
	ErrFirstTickTimeout   = errors.New("no ticks received")
)

// RowSource yields the validated watchlist rows for a session date.
type RowSource interface {
	RowsForDate(date string) ([]model.WatchlistRow, error)
}

// CredentialFunc returns the live feed credentials when a broker session
// exists. ok=false makes the run fail with ErrFeedSetupFailed.
type CredentialFunc func() (userID, enctoken string, ok bool)

// Config wires a Classifier. Wait durations default to the production
// values when zero; tests shrink them.
type Config struct {
	Rows     RowSource
	Session  *feed.Session
	State    *state.State
	Notifier notification.Notifier
	Sink     model.EligibilitySink // optional snapshot mirror
	Creds    CredentialFunc

	APIKey       string
	SnapshotPath string        // default eligibility_state.json
	ConnectWait  time.Duration // default 10s
	TickWait     time.Duration // default 10s
	Poll         time.Duration // default 500ms

	Metrics *metrics.Metrics // optional
}

// Classifier runs eligibility checks over the live feed.
type Classifier struct {
	cfg Config
}

// New creates a Classifier, filling in default wait durations.
func New(cfg Config) *Classifier {
	if cfg.ConnectWait <= 0 {
		cfg.ConnectWait = 10 * time.Second
	}
	if cfg.TickWait <= 0 {
		cfg.TickWait = 10 * time.Second
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 500 * time.Millisecond
	}
	if cfg.SnapshotPath == "" {
		cfg.SnapshotPath = "eligibility_state.json"
	}
	return &Classifier{cfg: cfg}
}

// Run classifies today's watchlist. Unless force is set, a cached result is
// returned while the watchlist is unchanged since the last check.
func (c *Classifier) Run(ctx context.Context, force bool) (model.EligibilityResult, error) {
	res, outcome, err := c.run(ctx, force)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.EligibilityRuns.WithLabelValues(outcome).Inc()
	}
	return res, err
}

func (c *Classifier) run(ctx context.Context, force bool) (model.EligibilityResult, string, error) {
	today := markethours.SessionDate(time.Now())
	rows, err := c.cfg.Rows.RowsForDate(today)
	if err != nil {
		return model.EligibilityResult{}, "error", fmt.Errorf("load watchlist: %w", err)
	}
	if len(rows) == 0 {
		return model.EligibilityResult{}, "error", ErrNoStocksForToday
	}

	if !force && !c.cfg.State.EligibilityStale() {
		if cached, ok := c.cfg.State.Eligibility(); ok {
			log.Printf("[eligibility] watchlist unchanged, returning result from %s",
				c.cfg.State.LastEligibilityCheck().Format(time.RFC3339))
			return cached, "cached", nil
		}
	}
	log.Printf("[eligibility] running fresh check for %s (%d rows)", today, len(rows))

	userID, enctoken, ok := c.cfg.Creds()
	if !ok {
		return model.EligibilityResult{}, "error", ErrFeedSetupFailed
	}

	// Always rebuild the session so the run starts from a known state.
	c.cfg.Session.Stop()
	if !c.cfg.Session.Setup(c.cfg.APIKey, enctoken, userID) {
		return model.EligibilityResult{}, "error", ErrFeedSetupFailed
	}
	if !c.cfg.Session.Start() {
		return model.EligibilityResult{}, "error", ErrFeedSetupFailed
	}
	defer c.cfg.Session.Stop()

	if !c.waitFor(ctx, c.cfg.ConnectWait, c.cfg.Session.Connected) {
		if err := ctx.Err(); err != nil {
			return model.EligibilityResult{}, "error", err
		}
		return model.EligibilityResult{}, "error", ErrFeedConnectTimeout
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.FeedConnects.Inc()
	}

	tokens := make([]uint32, 0, len(rows))
	for _, r := range rows {
		tokens = append(tokens, r.Token)
	}
	c.cfg.Session.Subscribe(tokens)

	store := c.cfg.Session.Store()
	if !c.waitFor(ctx, c.cfg.TickWait, func() bool { return store.Len() > 0 }) {
		if err := ctx.Err(); err != nil {
			return model.EligibilityResult{}, "error", err
		}
		return model.EligibilityResult{}, "error", ErrFirstTickTimeout
	}

	now := time.Now().UTC()
	res := c.classify(rows, store)
	res.WebsocketStatus = c.cfg.Session.WebsocketStatus()
	res.CheckedAt = now

	if c.cfg.Notifier != nil {
		if err := c.cfg.Notifier.Send(ctx, notification.EligibilitySummary(res.Eligible)); err != nil {
			log.Printf("[eligibility] WARNING: summary notification failed: %v", err)
		}
	}

	c.writeSnapshot(res)
	c.cfg.State.SetEligibility(res, now)
	if c.cfg.Sink != nil {
		if err := c.cfg.Sink.SetEligibility(ctx, &res); err != nil {
			log.Printf("[eligibility] WARNING: snapshot mirror failed: %v", err)
		}
	}

	log.Printf("[eligibility] checked %d rows: %d eligible, %d not eligible, %d doji, %d errors",
		res.TotalChecked, len(res.Eligible), len(res.NotEligible), len(res.Doji), len(res.Errors))
	return res, "fresh", nil
}

// classify buckets each row against its opening tick. Slices are allocated
// non-nil so the snapshot serializes empty buckets as [].
func (c *Classifier) classify(rows []model.WatchlistRow, store *feed.Store) model.EligibilityResult {
	res := model.EligibilityResult{
		Success:      true,
		Eligible:     []model.StockView{},
		NotEligible:  []model.StockView{},
		Doji:         []model.StockView{},
		Errors:       []model.StockError{},
		TotalChecked: len(rows),
	}

	for _, row := range rows {
		tick, ok := store.Get(row.Token)
		if !ok {
			res.Errors = append(res.Errors, model.StockError{Symbol: row.Symbol, Reason: model.ReasonNoTick})
			continue
		}
		open, last := tick.OHLC.Open, tick.LastPrice
		if open <= 0 || last <= 0 {
			res.Errors = append(res.Errors, model.StockError{Symbol: row.Symbol, Reason: model.ReasonBadTick})
			continue
		}

		view := model.StockView{
			Symbol: row.Symbol,
			Token:  row.Token,
			High:   row.High,
			Low:    row.Low,
			Open:   open,
			Last:   last,
		}
		switch {
		case open >= row.High:
			view.Reason = model.ReasonOpenAboveHigh
			res.NotEligible = append(res.NotEligible, view)
		case open == row.Low:
			view.Reason = model.ReasonOpenEqualsLow
			res.NotEligible = append(res.NotEligible, view)
		case open > row.Low && open < row.High:
			res.Doji = append(res.Doji, view)
		case open < row.Low:
			view.Percent = round2((row.High - last) / last * 100)
			res.Eligible = append(res.Eligible, view)
		default:
			res.Errors = append(res.Errors, model.StockError{Symbol: row.Symbol, Reason: model.ReasonUncategorized})
		}
	}
	return res
}

// waitFor polls cond until it holds, the limit elapses or ctx is cancelled.
func (c *Classifier) waitFor(ctx context.Context, limit time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(limit)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.cfg.Poll):
		}
	}
}

func (c *Classifier) writeSnapshot(res model.EligibilityResult) {
	data, err := json.MarshalIndent(res, "", "    ")
	if err != nil {
		log.Printf("[eligibility] snapshot marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(c.cfg.SnapshotPath, data, 0o644); err != nil {
		log.Printf("[eligibility] snapshot write failed: %v", err)
		return
	}
	log.Printf("[eligibility] snapshot saved to %s", c.cfg.SnapshotPath)
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
