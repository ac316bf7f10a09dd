package sqlite

import (
	"errors"
	"path/filepath"
	"testing"

	"breakout-trader/internal/model"
)

func testStore(t *testing.T) (*Store, *int) {
	t.Helper()
	changes := 0
	s, err := New(Config{
		Path:     filepath.Join(t.TempDir(), "stocks.db"),
		OnChange: func() { changes++ },
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, &changes
}

func row(symbol string, token uint32, high, low float64, date string) model.WatchlistRow {
	return model.WatchlistRow{Symbol: symbol, Token: token, High: high, Low: low, Date: date}
}

func TestAddUpsertsBySymbolAndDate(t *testing.T) {
	s, changes := testStore(t)

	created, err := s.Add(row("RELI", 100, 100, 90, "2026-08-25"))
	if err != nil || !created {
		t.Fatalf("first add: created=%v err=%v", created, err)
	}

	// Same (symbol, date) updates in place; count stays 1.
	created, err = s.Add(row("RELI", 100, 105, 92, "2026-08-25"))
	if err != nil || created {
		t.Fatalf("second add: created=%v err=%v", created, err)
	}

	rows, err := s.List("2026-08-25")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].High != 105 || rows[0].Low != 92 {
		t.Errorf("row not updated: %+v", rows[0])
	}
	if *changes != 2 {
		t.Errorf("onChange fired %d times, want 2", *changes)
	}
}

func TestAddRejectsBadDate(t *testing.T) {
	s, changes := testStore(t)
	if _, err := s.Add(row("RELI", 100, 100, 90, "25/08/2026")); err == nil {
		t.Error("expected date format error")
	}
	if *changes != 0 {
		t.Error("failed add must not fire onChange")
	}
}

func TestUpdateByOriginalIdentifiers(t *testing.T) {
	s, _ := testStore(t)
	s.Add(row("RELI", 100, 100, 90, "2026-08-25"))

	// Rename the symbol while changing levels.
	err := s.Update("RELI", "2026-08-25", row("RELIANCE", 100, 101, 91, "2026-08-25"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	rows, _ := s.List("")
	if len(rows) != 1 || rows[0].Symbol != "RELIANCE" || rows[0].High != 101 {
		t.Fatalf("rows after rename = %+v", rows)
	}

	err = s.Update("GHOST", "2026-08-25", row("GHOST", 1, 2, 1, "2026-08-25"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("update of missing row: %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s, _ := testStore(t)
	s.Add(row("RELI", 100, 100, 90, "2026-08-25"))

	if err := s.Delete("RELI", "2026-08-25"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rows, _ := s.List(""); len(rows) != 0 {
		t.Fatalf("rows after delete = %+v", rows)
	}
	if err := s.Delete("RELI", "2026-08-25"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v, want ErrNotFound", err)
	}
}

func TestListDateFilter(t *testing.T) {
	s, _ := testStore(t)
	s.Add(row("RELI", 100, 100, 90, "2026-08-25"))
	s.Add(row("SBIN", 101, 50, 45, "2026-08-25"))
	s.Add(row("TCS", 102, 80, 70, "2026-08-26"))

	all, _ := s.List("")
	if len(all) != 3 {
		t.Fatalf("all rows = %d, want 3", len(all))
	}
	day, _ := s.List("2026-08-25")
	if len(day) != 2 {
		t.Fatalf("filtered rows = %d, want 2", len(day))
	}
	// Insertion order preserved for deterministic downstream scans.
	if day[0].Symbol != "RELI" || day[1].Symbol != "SBIN" {
		t.Errorf("order = %s, %s", day[0].Symbol, day[1].Symbol)
	}
}

func TestRowsForDateDropsBadRows(t *testing.T) {
	s, _ := testStore(t)
	s.Add(row("GOOD", 100, 100, 90, "2026-08-25"))

	// Junk rows planted directly, bypassing API validation.
	mustExec := func(q string, args ...any) {
		t.Helper()
		if _, err := s.DB().Exec(q, args...); err != nil {
			t.Fatal(err)
		}
	}
	const ins = `INSERT INTO watchlist (symbol, instrument_token, high, low, date, updated_at) VALUES (?, ?, ?, ?, ?, '')`
	mustExec(ins, "BADTOKEN", "not-a-number", 100.0, 90.0, "2026-08-25")
	mustExec(ins, "INVERTED", 103, 90.0, 100.0, "2026-08-25") // low > high
	mustExec(ins, "COMMAS", "2,714,625", "1,100", "1,000", "2026-08-25")

	rows, err := s.RowsForDate("2026-08-25")
	if err != nil {
		t.Fatalf("RowsForDate: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v, want GOOD and COMMAS", rows)
	}
	if rows[0].Symbol != "GOOD" {
		t.Errorf("first row = %s", rows[0].Symbol)
	}
	// Comma-grouped numerics are accepted after normalisation.
	if rows[1].Symbol != "COMMAS" || rows[1].Token != 2714625 || rows[1].High != 1100 {
		t.Errorf("comma row = %+v", rows[1])
	}
}
