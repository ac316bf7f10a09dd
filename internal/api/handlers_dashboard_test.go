package api

import (
	"fmt"
	"net/http"
	"testing"

	"breakout-trader/pkg/kiteconnect"
)

func seedBooks(ts *testServer) {
	ts.sessions.gw.orders = []kiteconnect.Order{{
		OrderID:         "240825000001",
		Status:          "COMPLETE",
		TradingSymbol:   "RELIANCE",
		TransactionType: kiteconnect.TransactionTypeSell,
		Product:         kiteconnect.ProductMIS,
		Quantity:        10,
		AveragePrice:    2500.456,
		OrderTimestamp:  "2026-08-25 09:20:01",
	}}
	ts.sessions.gw.positions = kiteconnect.Positions{
		Net: []kiteconnect.Position{{
			TradingSymbol: "RELIANCE",
			Product:       kiteconnect.ProductMIS,
			Quantity:      -10,
			AveragePrice:  2500.456,
			LastPrice:     2490.1,
			PnL:           103.55999999,
		}},
	}
	ts.sessions.gw.holdings = []kiteconnect.Holding{{
		TradingSymbol: "TCS",
		Quantity:      5,
		AveragePrice:  3900,
		LastPrice:     4010.5,
		PnL:           552.4999,
		DayChange:     12.345,
		DayChangePct:  0.3086,
	}}
}

func TestOrderDetails(t *testing.T) {
	ts := newTestServer(t)
	seedBooks(ts)

	rec := ts.do(t, http.MethodGet, "/api/dashboard/order-details", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	rows := body["order_details"].([]interface{})
	if len(rows) != 1 {
		t.Fatalf("order rows = %d, want 1", len(rows))
	}
	row := rows[0].(map[string]interface{})
	if row["order_id"] != "240825000001" || row["transaction_type"] != "SELL" {
		t.Fatalf("order row = %v", row)
	}
}

func TestPositionDetailsRounding(t *testing.T) {
	ts := newTestServer(t)
	seedBooks(ts)

	rec := ts.do(t, http.MethodGet, "/api/dashboard/position-details", "", true)
	body := decodeBody(t, rec)
	rows := body["position_details"].([]interface{})
	if len(rows) != 1 {
		t.Fatalf("position rows = %d, want 1", len(rows))
	}
	row := rows[0].(map[string]interface{})
	if row["average_price"] != 2500.46 {
		t.Fatalf("average_price = %v, want 2500.46", row["average_price"])
	}
	if row["pnl"] != 103.56 {
		t.Fatalf("pnl = %v, want 103.56", row["pnl"])
	}
	if row["quantity"] != float64(-10) {
		t.Fatalf("quantity = %v, want -10", row["quantity"])
	}
}

func TestHoldingDetails(t *testing.T) {
	ts := newTestServer(t)
	seedBooks(ts)

	rec := ts.do(t, http.MethodGet, "/api/dashboard/holding-details", "", true)
	body := decodeBody(t, rec)
	rows := body["holding_details"].([]interface{})
	row := rows[0].(map[string]interface{})
	if row["pnl"] != 552.5 {
		t.Fatalf("pnl = %v, want 552.5", row["pnl"])
	}
	if row["day_change"] != 12.35 || row["day_change_percentage"] != 0.31 {
		t.Fatalf("day change fields = %v / %v", row["day_change"], row["day_change_percentage"])
	}
}

func TestAccountDetails(t *testing.T) {
	ts := newTestServer(t)
	seedBooks(ts)

	rec := ts.do(t, http.MethodGet, "/api/dashboard/account-details", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	for _, key := range []string{"order_details", "position_details", "holding_details"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("response missing %s: %v", key, body)
		}
	}
}

func TestDashboardWithoutBrokerSession(t *testing.T) {
	ts := newTestServer(t)
	ts.sessions.gw = nil

	rec := ts.do(t, http.MethodGet, "/api/dashboard/account-details", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "Missing broker session" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestDashboardBrokerError(t *testing.T) {
	ts := newTestServer(t)
	seedBooks(ts)
	ts.sessions.gw.positionsErr = fmt.Errorf("kite api: 502")

	rec := ts.do(t, http.MethodGet, "/api/dashboard/position-details", "", true)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
