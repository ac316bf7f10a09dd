package markethours

import (
	"testing"
	"time"
)

func ist(h, m, s int) time.Time {
	return time.Date(2026, 3, 4, h, m, s, 0, IST) // a Wednesday
}

func TestAlignPeriodStart(t *testing.T) {
	cases := []struct {
		name     string
		now      time.Time
		interval time.Duration
		want     time.Time
	}{
		{"before open", ist(8, 50, 0), 15 * time.Minute, ist(9, 15, 0)},
		{"at open", ist(9, 15, 0), 15 * time.Minute, ist(9, 15, 0)},
		{"mid first period", ist(9, 29, 59), 15 * time.Minute, ist(9, 15, 0)},
		{"period boundary", ist(9, 30, 0), 15 * time.Minute, ist(9, 30, 0)},
		{"late session", ist(14, 47, 12), 15 * time.Minute, ist(14, 45, 0)},
		{"3m interval", ist(10, 7, 30), 3 * time.Minute, ist(10, 6, 0)},
	}
	for _, tc := range cases {
		got := AlignPeriodStart(tc.now, tc.interval)
		if !got.Equal(tc.want) {
			t.Errorf("%s: AlignPeriodStart(%v, %v) = %v, want %v",
				tc.name, tc.now, tc.interval, got, tc.want)
		}
	}
}

func TestAlignPeriodStartStaysOnOpenGrid(t *testing.T) {
	interval := 15 * time.Minute
	open := MarketOpen(ist(12, 0, 0))
	for m := 0; m < 360; m += 7 {
		now := open.Add(time.Duration(m) * time.Minute)
		start := AlignPeriodStart(now, interval)
		if off := start.Sub(open); off%interval != 0 {
			t.Fatalf("period start %v is %v past open, not a multiple of %v", start, off, interval)
		}
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("15:00")
	if err != nil || h != 15 || m != 0 {
		t.Fatalf("ParseClock(15:00) = %d,%d,%v", h, m, err)
	}
	if _, _, err := ParseClock("25:99"); err == nil {
		t.Fatal("ParseClock(25:99) should fail")
	}
}

func TestPastClock(t *testing.T) {
	if PastClock(ist(14, 59, 59), 15, 0) {
		t.Error("14:59:59 should not be past 15:00")
	}
	if !PastClock(ist(15, 0, 0), 15, 0) {
		t.Error("15:00:00 should be past 15:00")
	}
}

func TestIsMarketOpen(t *testing.T) {
	if !IsMarketOpen(ist(10, 0, 0)) {
		t.Error("Wednesday 10:00 IST should be open")
	}
	if IsMarketOpen(ist(15, 30, 0)) {
		t.Error("15:30 IST should be closed")
	}
	sat := time.Date(2026, 3, 7, 10, 0, 0, 0, IST)
	if IsMarketOpen(sat) {
		t.Error("Saturday should be closed")
	}
	republicDay := time.Date(2026, 1, 26, 10, 0, 0, 0, IST) // a Monday
	if IsMarketOpen(republicDay) {
		t.Error("exchange holiday should be closed")
	}
	if !IsHoliday(republicDay) {
		t.Error("2026-01-26 should be a holiday")
	}
}
