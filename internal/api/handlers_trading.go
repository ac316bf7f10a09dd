package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"breakout-trader/internal/engine"
	"breakout-trader/internal/state"
)

// handleCheckEligibility runs (or re-serves) the day's classification.
// The body is optional; {"force": true} bypasses the cached result.
func (s *Server) handleCheckEligibility(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Force bool `json:"force"`
	}
	// Body is optional; force defaults to false.
	_ = json.NewDecoder(r.Body).Decode(&req)

	res, err := s.cfg.Classifier.Run(r.Context(), req.Force)
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStartTrading(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	res, err := s.cfg.Engine.Start(r.Context())
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		engine.StartResult
	}{true, res})
}

func (s *Server) handleStopTrading(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	s.cfg.Engine.Stop()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Trading stopped",
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
		state.TradingConfig
	}{true, s.cfg.State.Config()})
}

// handleUpdateConfig applies a partial config update. Absent fields keep
// their current values, so the frontend can send only the edited knobs.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	cfg := s.cfg.State.Config()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := cfg.Validate(); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	s.cfg.State.SetConfig(cfg)
	s.persistConfig(r.Context(), cfg)
	log.Printf("[api] trading config updated: target=%v max_margin=%v interval=%dm squareoff=%s",
		cfg.TargetPercent, cfg.MaxMargin, cfg.CandleIntervalMinutes, cfg.SquareoffTime)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Successfully Updated",
	})
}

// persistConfig mirrors the config to the persistent store, fire-and-forget.
func (s *Server) persistConfig(ctx context.Context, cfg state.TradingConfig) {
	if s.cfg.ConfigStore == nil {
		return
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		log.Printf("[api] WARNING: config marshal failed: %v", err)
		return
	}
	if err := s.cfg.ConfigStore.SaveConfigJSON(ctx, data); err != nil {
		log.Printf("[api] WARNING: config persist failed: %v", err)
	}
}

// handleResetState restores the session state to construction defaults.
// Rejected mid-run: stop trading first.
func (s *Server) handleResetState(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if s.cfg.State.IsRunning() {
		fail(w, http.StatusBadRequest, "cannot reset state while trading is running")
		return
	}
	s.cfg.State.Reset()
	log.Printf("[api] state reset to defaults")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "State reset to defaults",
	})
}

// handleState is the diagnostic dump of the shared session state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	st := s.cfg.State
	username, userID, userName := st.User()
	out := map[string]interface{}{
		"success":           true,
		"logged_in":         st.LoggedIn(),
		"username":          username,
		"user_id":           userID,
		"user_name":         userName,
		"engine_status":     st.Status(),
		"current_step":      st.Step(),
		"is_running":        st.IsRunning(),
		"order_placed":      st.OrderPlaced(),
		"run_id":            st.RunID(),
		"config":            st.Config(),
		"remaining_seconds": st.RemainingSeconds(time.Now()),
	}
	if res, ok := st.Eligibility(); ok {
		out["eligible_stocks_count"] = len(res.Eligible)
		out["last_eligibility_check"] = st.LastEligibilityCheck().Format(time.RFC3339)
	}
	if pos, ok := st.Position(); ok {
		out["position"] = pos
	}
	if t := st.WatchlistUpdated(); !t.IsZero() {
		out["watchlist_updated"] = t.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, out)
}
