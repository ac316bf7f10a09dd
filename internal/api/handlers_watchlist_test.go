package api

import (
	"net/http"
	"testing"

	"breakout-trader/internal/model"
)

func TestWatchlistCRUD(t *testing.T) {
	ts := newTestServer(t)

	addBody := `{"symbol":"RELIANCE","instrument_token":738561,"high":2500,"low":2400,"date":"2026-08-25"}`

	t.Run("add", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/stocks/add-stock", addBody, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		body := decodeBody(t, rec)
		if body["message"] != "Stock RELIANCE added for 2026-08-25" {
			t.Fatalf("message = %v", body["message"])
		}
	})

	t.Run("add again reports update", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/stocks/add-stock", addBody, true)
		body := decodeBody(t, rec)
		if body["message"] != "Stock RELIANCE updated for 2026-08-25" {
			t.Fatalf("message = %v", body["message"])
		}
	})

	t.Run("list with date filter", func(t *testing.T) {
		ts.watch.Add(model.WatchlistRow{Symbol: "TCS", Token: 2953217, High: 4000, Low: 3900, Date: "2026-08-26"})

		rec := ts.do(t, http.MethodGet, "/api/stocks/get-stocks?date=2026-08-25", "", true)
		body := decodeBody(t, rec)
		if body["count"] != float64(1) {
			t.Fatalf("count = %v, want 1", body["count"])
		}

		rec = ts.do(t, http.MethodGet, "/api/stocks/get-stocks", "", true)
		body = decodeBody(t, rec)
		if body["count"] != float64(2) {
			t.Fatalf("unfiltered count = %v, want 2", body["count"])
		}
	})

	t.Run("update with renamed identifiers", func(t *testing.T) {
		body := `{"symbol":"RELIANCE-BE","instrument_token":738561,"high":2550,"low":2450,` +
			`"date":"2026-08-25","original_symbol":"RELIANCE","original_date":"2026-08-25"}`
		rec := ts.do(t, http.MethodPost, "/api/stocks/update-stock", body, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		rows, _ := ts.watch.List("2026-08-25")
		if len(rows) != 1 || rows[0].Symbol != "RELIANCE-BE" || rows[0].High != 2550 {
			t.Fatalf("rows after update = %+v", rows)
		}
	})

	t.Run("update missing row", func(t *testing.T) {
		body := `{"symbol":"GHOST","instrument_token":1,"high":10,"low":5,"date":"2026-08-25"}`
		rec := ts.do(t, http.MethodPost, "/api/stocks/update-stock", body, true)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("delete", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/stocks/delete-stock", `{"symbol":"RELIANCE-BE","date":"2026-08-25"}`, true)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		rec = ts.do(t, http.MethodPost, "/api/stocks/delete-stock", `{"symbol":"RELIANCE-BE","date":"2026-08-25"}`, true)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("second delete status = %d, want 404", rec.Code)
		}
	})
}

func TestWatchlistValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name, path, body string
	}{
		{"add missing fields", "/api/stocks/add-stock", `{"symbol":"X","high":10}`},
		{"add bad date", "/api/stocks/add-stock", `{"symbol":"X","instrument_token":1,"high":10,"low":5,"date":"25-08-2026"}`},
		{"add bad json", "/api/stocks/add-stock", `{`},
		{"update missing fields", "/api/stocks/update-stock", `{"symbol":"X"}`},
		{"delete missing date", "/api/stocks/delete-stock", `{"symbol":"X"}`},
		{"delete bad date", "/api/stocks/delete-stock", `{"symbol":"X","date":"yesterday"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tc.path, tc.body, true)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
		})
	}

	t.Run("bad date filter on list", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/stocks/get-stocks?date=tomorrow", "", true)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}
