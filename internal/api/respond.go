package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"breakout-trader/internal/broker"
	"breakout-trader/internal/eligibility"
	"breakout-trader/internal/engine"
	"breakout-trader/internal/store/sqlite"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] response encode failed: %v", err)
	}
}

// fail writes the uniform error envelope.
func fail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]interface{}{"success": false, "error": msg})
}

// failErr maps a domain error onto the transport. Broker session failures
// get the uniform "broker setup issue" wrapper regardless of where in the
// handler stack they surfaced.
func failErr(w http.ResponseWriter, err error) {
	if errors.Is(err, broker.ErrSessionUnavailable) {
		fail(w, http.StatusInternalServerError, "broker setup issue: "+err.Error())
		return
	}
	fail(w, statusFor(err), err.Error())
}

// statusFor buckets domain sentinels: requests the engine cannot act on are
// the caller's problem (400), a named missing row is 404, everything else
// is an internal failure (500).
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrEngineAlreadyRunning),
		errors.Is(err, engine.ErrMaxMarginNotSet),
		errors.Is(err, engine.ErrNoEligibleStocks),
		errors.Is(err, engine.ErrNoOpenPosition),
		errors.Is(err, eligibility.ErrNoStocksForToday):
		return http.StatusBadRequest
	case errors.Is(err, sqlite.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// requireMethod guards a handler to one HTTP method. CORS preflights never
// reach here; the cors wrapper answers them.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		fail(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}
