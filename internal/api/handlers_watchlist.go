package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"breakout-trader/internal/model"
	"breakout-trader/internal/store/sqlite"
)

type stockRequest struct {
	Symbol         string  `json:"symbol"`
	Token          uint32  `json:"instrument_token"`
	High           float64 `json:"high"`
	Low            float64 `json:"low"`
	Date           string  `json:"date"`
	OriginalSymbol string  `json:"original_symbol"`
	OriginalDate   string  `json:"original_date"`
}

func (req stockRequest) row() model.WatchlistRow {
	return model.WatchlistRow{
		Symbol: req.Symbol,
		Token:  req.Token,
		High:   req.High,
		Low:    req.Low,
		Date:   req.Date,
	}
}

func (req stockRequest) complete() bool {
	return req.Symbol != "" && req.Token != 0 && req.High > 0 && req.Low > 0 && req.Date != ""
}

// handleAddStock upserts a watchlist row keyed by (symbol, date).
func (s *Server) handleAddStock(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.complete() {
		fail(w, http.StatusBadRequest, "All fields are required: symbol, instrument_token, high, low, date")
		return
	}
	if _, err := sqlite.NormalizeDate(req.Date); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.cfg.Watchlist.Add(req.row())
	if err != nil {
		failErr(w, err)
		return
	}

	message := fmt.Sprintf("Stock %s updated for %s", req.Symbol, req.Date)
	if created {
		message = fmt.Sprintf("Stock %s added for %s", req.Symbol, req.Date)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
		"stock":   req.row(),
	})
}

// handleGetStocks lists the watchlist, optionally filtered by ?date=.
func (s *Server) handleGetStocks(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	dateFilter := r.URL.Query().Get("date")
	if dateFilter != "" {
		if _, err := sqlite.NormalizeDate(dateFilter); err != nil {
			fail(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	rows, err := s.cfg.Watchlist.List(dateFilter)
	if err != nil {
		failErr(w, err)
		return
	}
	if rows == nil {
		rows = []model.WatchlistRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stocks":  rows,
		"count":   len(rows),
	})
}

// handleUpdateStock rewrites a row. original_symbol/original_date identify
// the row being edited when the identifiers themselves change.
func (s *Server) handleUpdateStock(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.complete() {
		fail(w, http.StatusBadRequest, "All fields are required: symbol, instrument_token, high, low, date")
		return
	}

	origSymbol := req.OriginalSymbol
	if origSymbol == "" {
		origSymbol = req.Symbol
	}
	origDate := req.OriginalDate
	if origDate == "" {
		origDate = req.Date
	}
	for _, d := range []string{req.Date, origDate} {
		if _, err := sqlite.NormalizeDate(d); err != nil {
			fail(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := s.cfg.Watchlist.Update(origSymbol, origDate, req.row()); err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("%s updated successfully", req.Symbol),
	})
}

func (s *Server) handleDeleteStock(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Symbol string `json:"symbol"`
		Date   string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Symbol == "" || req.Date == "" {
		fail(w, http.StatusBadRequest, "Symbol and date are required")
		return
	}
	if _, err := sqlite.NormalizeDate(req.Date); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.cfg.Watchlist.Delete(req.Symbol, req.Date); err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Stock %s deleted for %s", req.Symbol, req.Date),
	})
}
