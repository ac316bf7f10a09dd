package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"breakout-trader/internal/broker"
)

// UI projections of the broker books. Prices are rounded to 2 decimals the
// way the dashboard displays them.

type orderRow struct {
	OrderID         string  `json:"order_id"`
	OrderTimestamp  string  `json:"order_timestamp"`
	TransactionType string  `json:"transaction_type"`
	TradingSymbol   string  `json:"tradingsymbol"`
	Product         string  `json:"product"`
	Quantity        int     `json:"quantity"`
	Price           float64 `json:"price"`
	AveragePrice    float64 `json:"average_price"`
	Status          string  `json:"status"`
}

type positionRow struct {
	Product       string  `json:"product"`
	TradingSymbol string  `json:"tradingsymbol"`
	Quantity      int     `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
	PnL           float64 `json:"pnl"`
}

type holdingRow struct {
	TradingSymbol string  `json:"tradingsymbol"`
	Quantity      int     `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
	PnL           float64 `json:"pnl"`
	DayChange     float64 `json:"day_change"`
	DayChangePct  float64 `json:"day_change_percentage"`
}

func (s *Server) handleOrderDetails(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	gw, ok := s.gateway(w)
	if !ok {
		return
	}

	rows, err := orderRows(gw)
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"order_details": rows,
	})
}

func (s *Server) handlePositionDetails(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	gw, ok := s.gateway(w)
	if !ok {
		return
	}

	rows, err := positionRows(gw)
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"position_details": rows,
	})
}

func (s *Server) handleHoldingDetails(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	gw, ok := s.gateway(w)
	if !ok {
		return
	}

	rows, err := holdingRows(gw)
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"holding_details": rows,
	})
}

// handleAccountDetails aggregates all three books in one round trip for the
// dashboard's initial load.
func (s *Server) handleAccountDetails(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	gw, ok := s.gateway(w)
	if !ok {
		return
	}

	orders, err := orderRows(gw)
	if err != nil {
		failErr(w, err)
		return
	}
	positions, err := positionRows(gw)
	if err != nil {
		failErr(w, err)
		return
	}
	holdings, err := holdingRows(gw)
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"order_details":    orders,
		"position_details": positions,
		"holding_details":  holdings,
	})
}

func (s *Server) gateway(w http.ResponseWriter) (broker.Gateway, bool) {
	gw, ok := s.cfg.Sessions.Current()
	if !ok {
		fail(w, http.StatusBadRequest, "Missing broker session")
		return nil, false
	}
	return gw, true
}

func orderRows(gw broker.Gateway) ([]orderRow, error) {
	orders, err := gw.Orders()
	if err != nil {
		return nil, err
	}
	rows := make([]orderRow, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, orderRow{
			OrderID:         o.OrderID,
			OrderTimestamp:  o.OrderTimestamp,
			TransactionType: o.TransactionType,
			TradingSymbol:   o.TradingSymbol,
			Product:         o.Product,
			Quantity:        o.Quantity,
			Price:           o.Price,
			AveragePrice:    o.AveragePrice,
			Status:          o.Status,
		})
	}
	return rows, nil
}

func positionRows(gw broker.Gateway) ([]positionRow, error) {
	book, err := gw.Positions()
	if err != nil {
		return nil, err
	}
	rows := make([]positionRow, 0, len(book.Net))
	for _, p := range book.Net {
		rows = append(rows, positionRow{
			Product:       p.Product,
			TradingSymbol: p.TradingSymbol,
			Quantity:      p.Quantity,
			AveragePrice:  round2(p.AveragePrice),
			LastPrice:     round2(p.LastPrice),
			PnL:           round2(p.PnL),
		})
	}
	return rows, nil
}

func holdingRows(gw broker.Gateway) ([]holdingRow, error) {
	holdings, err := gw.Holdings()
	if err != nil {
		return nil, err
	}
	rows := make([]holdingRow, 0, len(holdings))
	for _, h := range holdings {
		rows = append(rows, holdingRow{
			TradingSymbol: h.TradingSymbol,
			Quantity:      h.Quantity,
			AveragePrice:  h.AveragePrice,
			LastPrice:     h.LastPrice,
			PnL:           round2(h.PnL),
			DayChange:     round2(h.DayChange),
			DayChangePct:  round2(h.DayChangePct),
		})
	}
	return rows, nil
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
