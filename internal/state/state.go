// Package state holds the process-wide trading session record.
//
// One State exists per process. Engines read and mutate it through typed
// accessors; the run controller hands write ownership of the engine fields to
// exactly one background task per phase, so the RWMutex only arbitrates
// between that writer and read-only consumers (telemetry, handlers).
package state

import (
	"sync"
	"time"

	"breakout-trader/internal/model"
)

// EngineStatus is the engine lifecycle state.
type EngineStatus string

const (
	StatusIdle     EngineStatus = "Idle"
	StatusStarting EngineStatus = "Starting"
	StatusRunning  EngineStatus = "Running"
	StatusStopping EngineStatus = "Stopping"
	StatusStopped  EngineStatus = "Stopped"
	StatusTimeout  EngineStatus = "Timeout"
)

// Step is the human-readable breadcrumb shown in the UI.
type Step string

const (
	StepIdle                      Step = "Idle"
	StepPreCheck                  Step = "PreCheck"
	StepOrderMonitoringStarted    Step = "OrderMonitoringStarted"
	StepPositionMonitoringStarted Step = "PositionMonitoringStarted"
	StepOrderPlaced               Step = "OrderPlaced"
	StepStopLossTriggered         Step = "StopLossTriggered"
	StepTargetHit                 Step = "TargetHit"
	StepAutoSquareOff             Step = "AutoSquareOff"
	StepManualStop                Step = "ManualStop"
	StepPositionClosed            Step = "PositionClosed"
)

// PositionView is the state-facing snapshot of the managed position.
type PositionView struct {
	Symbol      string  `json:"symbol"`
	Token       uint32  `json:"instrument_token"`
	Quantity    int     `json:"quantity"`
	EntryPrice  float64 `json:"entry_price"`
	Side        string  `json:"transaction_type"`
	TargetPrice float64 `json:"target_price"`
	StopLoss    float64 `json:"stop_loss"`
	OrderID     string  `json:"order_id"`
	Closed      bool    `json:"closed"`
}

// State is the session record.
type State struct {
	mu sync.RWMutex

	// construction defaults, restored by Reset
	defaults TradingConfig

	loggedIn bool
	username string
	userID   string
	userName string
	brokerOK bool

	status       EngineStatus
	step         Step
	runID        string
	isRunning    bool
	orderPlaced  bool
	sessionStart time.Time

	config TradingConfig

	eligibility          *model.EligibilityResult
	lastEligibilityCheck time.Time
	watchlistUpdated     time.Time

	position *PositionView
}

// New builds a State initialised to defaults. cfg becomes both the live
// config and the config Reset restores.
func New(cfg TradingConfig) *State {
	return &State{
		defaults: cfg,
		status:   StatusIdle,
		step:     StepIdle,
		config:   cfg,
	}
}

// Reset restores construction defaults. Idempotent.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = false
	s.username = ""
	s.userID = ""
	s.userName = ""
	s.brokerOK = false
	s.status = StatusIdle
	s.step = StepIdle
	s.runID = ""
	s.isRunning = false
	s.orderPlaced = false
	s.sessionStart = time.Time{}
	s.config = s.defaults
	s.eligibility = nil
	s.lastEligibilityCheck = time.Time{}
	s.watchlistUpdated = time.Time{}
	s.position = nil
}

// ---- auth / user session ----

func (s *State) SetLogin(username, userID, userName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = true
	s.username = username
	s.userID = userID
	s.userName = userName
	s.brokerOK = true
}

func (s *State) ClearLogin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = false
	s.username = ""
	s.userID = ""
	s.userName = ""
	s.brokerOK = false
}

func (s *State) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// User returns (app username, broker user id, display name).
func (s *State) User() (string, string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username, s.userID, s.userName
}

func (s *State) SetBrokerSession(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brokerOK = ok
}

func (s *State) BrokerSession() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.brokerOK
}

// ---- engine lifecycle ----

func (s *State) Status() EngineStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *State) SetStatus(st EngineStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

func (s *State) Step() Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

func (s *State) SetStep(st Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = st
}

func (s *State) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

func (s *State) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// BeginRun marks the engine running under a fresh run id.
func (s *State) BeginRun(runID string, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = runID
	s.isRunning = true
	s.orderPlaced = false
	s.sessionStart = start
	s.status = StatusRunning
}

// EndRun clears the run identity and timing. The caller sets the final
// status (Idle, Stopped, Timeout) separately.
func (s *State) EndRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = ""
	s.isRunning = false
	s.sessionStart = time.Time{}
}

func (s *State) SetRunning(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isRunning = v
}

func (s *State) OrderPlaced() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderPlaced
}

func (s *State) SetOrderPlaced(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderPlaced = v
}

func (s *State) SessionStart() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionStart
}

// RemainingSeconds returns the seconds left before the session limit, or 0
// when no run is active or the limit has passed.
func (s *State) RemainingSeconds(now time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning || s.sessionStart.IsZero() {
		return 0
	}
	left := s.config.SessionMaxSeconds - int(now.Sub(s.sessionStart).Seconds())
	if left < 0 {
		return 0
	}
	return left
}

// ---- trading config ----

func (s *State) Config() TradingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func (s *State) SetConfig(cfg TradingConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
}

// ---- eligibility / watchlist ----

// SetEligibility stores the latest classification and stamps the check time.
func (s *State) SetEligibility(res model.EligibilityResult, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eligibility = &res
	s.lastEligibilityCheck = at
}

// Eligibility returns a copy of the latest result, if any.
func (s *State) Eligibility() (model.EligibilityResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.eligibility == nil {
		return model.EligibilityResult{}, false
	}
	return *s.eligibility, true
}

func (s *State) LastEligibilityCheck() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEligibilityCheck
}

// MarkWatchlistUpdated invalidates the eligibility cache.
func (s *State) MarkWatchlistUpdated(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchlistUpdated = at
}

func (s *State) WatchlistUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watchlistUpdated
}

// EligibilityStale reports whether a cached result is missing or older than
// the last watchlist mutation.
func (s *State) EligibilityStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.eligibility == nil {
		return true
	}
	return s.watchlistUpdated.After(s.lastEligibilityCheck)
}

// ---- position ----

func (s *State) SetPosition(p *PositionView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		s.position = nil
		return
	}
	cp := *p
	s.position = &cp
}

func (s *State) Position() (PositionView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.position == nil {
		return PositionView{}, false
	}
	return *s.position, true
}

// MarkPositionClosed flips the closed flag on the stored position, if any.
func (s *State) MarkPositionClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.position != nil {
		s.position.Closed = true
	}
}
