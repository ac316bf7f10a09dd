// Package engine drives the intraday breakout run: precheck, eligibility,
// entry hunt, position management and teardown.
//
// A run is one background goroutine stamped with a uuid run id. The
// goroutine starts as the entry monitor and, once an order fills, continues
// as the position monitor; only ever one of the two is scanning. Every loop
// iteration re-checks that its run id still owns the engine state, so a
// superseded or stopped run dies silently instead of fighting its successor
// over the shared session.
//
// The engine never reconnects the feed on its own. Session teardown and
// rebuild happen at run boundaries, which keeps the websocket lifecycle
// deterministic at the cost of a few seconds of startup.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"breakout-trader/internal/broker"
	"breakout-trader/internal/eligibility"
	"breakout-trader/internal/feed"
	"breakout-trader/internal/metrics"
	"breakout-trader/internal/model"
	"breakout-trader/internal/notification"
	"breakout-trader/internal/state"
	"breakout-trader/pkg/kiteconnect"
)

// BrokerSource yields an authenticated gateway and the live feed credentials.
// *broker.Manager satisfies it.
type BrokerSource interface {
	Ensure() (broker.Gateway, error)
	FeedCredentials() (userID, enctoken string, ok bool)
}

// EligibilityRunner classifies today's watchlist. *eligibility.Classifier
// satisfies it.
type EligibilityRunner interface {
	Run(ctx context.Context, force bool) (model.EligibilityResult, error)
}

// Config wires an Engine. Durations default to production values when zero.
type Config struct {
	State    *state.State
	Session  *feed.Session
	Broker   BrokerSource
	Runner   EligibilityRunner
	Rows     eligibility.RowSource
	Notifier notification.Notifier
	Metrics  *metrics.Metrics // optional

	APIKey      string
	OrderTag    string        // default ALGO_BREAKOUT
	ConnectWait time.Duration // default 10s
	ConnectPoll time.Duration // default 500ms
	Poll        time.Duration // monitor cadence, default 1s
}

// Engine is the run controller. One instance per process.
type Engine struct {
	cfg Config

	mu     sync.Mutex
	cancel context.CancelFunc // cancels the active monitor goroutine
}

// New creates an Engine, filling in default durations.
func New(cfg Config) *Engine {
	if cfg.ConnectWait <= 0 {
		cfg.ConnectWait = 10 * time.Second
	}
	if cfg.ConnectPoll <= 0 {
		cfg.ConnectPoll = 500 * time.Millisecond
	}
	if cfg.Poll <= 0 {
		cfg.Poll = time.Second
	}
	if cfg.OrderTag == "" {
		cfg.OrderTag = "ALGO_BREAKOUT"
	}
	return &Engine{cfg: cfg}
}

// StartResult reports what kind of run a successful Start launched.
type StartResult struct {
	Message       string `json:"message"`
	RunID         string `json:"run_id"`
	EligibleCount int    `json:"eligible_count,omitempty"`
}

// Start launches a trading run: with an open position at the broker it goes
// straight to position monitoring, otherwise it classifies the watchlist and
// hunts for a breakout entry. Rejected while a run is active.
func (e *Engine) Start(ctx context.Context) (StartResult, error) {
	st := e.cfg.State

	e.mu.Lock()
	if st.IsRunning() || st.Status() == state.StatusStarting {
		e.mu.Unlock()
		return StartResult{}, ErrEngineAlreadyRunning
	}
	st.SetStatus(state.StatusStarting)
	st.SetStep(state.StepPreCheck)
	e.mu.Unlock()

	res, err := e.start(ctx)
	if err != nil {
		st.SetStatus(state.StatusIdle)
		st.SetStep(state.StepIdle)
	}
	return res, err
}

func (e *Engine) start(ctx context.Context) (StartResult, error) {
	st := e.cfg.State
	log.Printf("[engine] start requested")

	if st.Config().MaxMargin <= 0 {
		return StartResult{}, ErrMaxMarginNotSet
	}

	gw, err := e.cfg.Broker.Ensure()
	if err != nil {
		return StartResult{}, err
	}

	book, err := gw.Positions()
	if err != nil {
		return StartResult{}, fmt.Errorf("query positions: %w", err)
	}
	if activePosition(book.Net) != nil {
		return e.startPositionOnly(gw)
	}

	result, err := e.cfg.Runner.Run(ctx, true)
	if err != nil {
		return StartResult{}, err
	}
	if len(result.Eligible) == 0 {
		return StartResult{}, ErrNoEligibleStocks
	}

	tokens := make([]uint32, 0, len(result.Eligible))
	for _, s := range result.Eligible {
		tokens = append(tokens, s.Token)
	}
	if err := e.resetFeed(tokens); err != nil {
		return StartResult{}, err
	}

	runID := uuid.NewString()
	runCtx, ok := e.begin(runID)
	if !ok {
		e.cfg.Session.Stop()
		return StartResult{}, fmt.Errorf("start aborted: engine stopped during startup")
	}
	st.SetStep(state.StepOrderMonitoringStarted)

	go e.runEntry(runCtx, runID, gw, result.Eligible)

	log.Printf("[engine] run %s: entry monitor started over %d stocks", runID, len(result.Eligible))
	return StartResult{
		Message:       "Trading monitoring started",
		RunID:         runID,
		EligibleCount: len(result.Eligible),
	}, nil
}

// startPositionOnly resumes monitoring of a position that already exists at
// the broker, skipping eligibility and entry entirely. The book is re-read
// here: a position that vanished since the precheck is an error, not a
// silent empty monitor.
func (e *Engine) startPositionOnly(gw broker.Gateway) (StartResult, error) {
	st := e.cfg.State

	book, err := gw.Positions()
	if err != nil {
		return StartResult{}, fmt.Errorf("query positions: %w", err)
	}
	pos := activePosition(book.Net)
	if pos == nil {
		return StartResult{}, ErrNoOpenPosition
	}
	log.Printf("[engine] open position detected (%s qty %d), monitoring directly",
		pos.TradingSymbol, pos.Quantity)

	if err := e.resetFeed([]uint32{pos.InstrumentToken}); err != nil {
		return StartResult{}, err
	}

	runID := uuid.NewString()
	runCtx, ok := e.begin(runID)
	if !ok {
		e.cfg.Session.Stop()
		return StartResult{}, fmt.Errorf("start aborted: engine stopped during startup")
	}
	st.SetOrderPlaced(true)
	st.SetStep(state.StepPositionMonitoringStarted)

	go e.runPosition(runCtx, runID, gw, "")

	return StartResult{Message: "Position monitor started", RunID: runID}, nil
}

// Stop halts the active run, tears the feed down and returns the engine to
// idle. Safe to call at any time, including with nothing running.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.cfg.State
	log.Printf("[engine] stop requested")

	st.SetStatus(state.StatusStopping)
	st.SetStep(state.StepManualStop)
	st.SetRunning(false)
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.cfg.Session.Stop()
	st.EndRun()
	st.SetStatus(state.StatusIdle)
}

// begin flips the engine into a running state. It fails when a concurrent
// Stop landed between the precheck and the launch.
func (e *Engine) begin(runID string) (context.Context, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.State.Status() != state.StatusStarting {
		return nil, false
	}
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.cfg.State.BeginRun(runID, time.Now())
	return ctx, true
}

// teardown releases the run if this goroutine still owns it. final is the
// status left behind: Idle normally, Timeout when the session clock ran out.
func (e *Engine) teardown(runID string, final state.EngineStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.cfg.State
	if st.RunID() != runID {
		return // superseded, or Stop already cleaned up
	}
	if final == state.StatusIdle {
		st.SetStatus(state.StatusStopping)
	}
	e.cfg.Session.Stop()
	st.EndRun()
	st.SetStatus(final)
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	log.Printf("[engine] run %s torn down (status %s)", runID, final)
}

// resetFeed rebuilds the tick session and subscribes the given tokens.
func (e *Engine) resetFeed(tokens []uint32) error {
	userID, enctoken, ok := e.cfg.Broker.FeedCredentials()
	if !ok {
		return ErrFeedUnavailable
	}

	s := e.cfg.Session
	s.Stop()
	if !s.Setup(e.cfg.APIKey, enctoken, userID) {
		return fmt.Errorf("%w: setup rejected", ErrFeedUnavailable)
	}
	if !s.Start() {
		return fmt.Errorf("%w: dial failed", ErrFeedUnavailable)
	}

	deadline := time.Now().Add(e.cfg.ConnectWait)
	for !s.Connected() {
		if time.Now().After(deadline) {
			s.Stop()
			return fmt.Errorf("%w: connect timeout", ErrFeedUnavailable)
		}
		time.Sleep(e.cfg.ConnectPoll)
	}
	s.Subscribe(tokens)
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.FeedConnects.Inc()
	}
	return nil
}

func (e *Engine) notify(ctx context.Context, a notification.Alert) {
	if e.cfg.Notifier == nil {
		return
	}
	if err := e.cfg.Notifier.Send(ctx, a); err != nil {
		log.Printf("[engine] WARNING: notification failed: %v", err)
	}
}

// activePosition returns the first net position with a non-zero quantity.
func activePosition(net []kiteconnect.Position) *kiteconnect.Position {
	for i := range net {
		if net[i].Quantity != 0 {
			return &net[i]
		}
	}
	return nil
}
