package eligibility

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"breakout-trader/internal/feed"
	"breakout-trader/internal/markethours"
	"breakout-trader/internal/model"
	"breakout-trader/internal/notification"
	"breakout-trader/internal/state"
)

type fakeRows struct {
	rows []model.WatchlistRow
	err  error
}

func (f *fakeRows) RowsForDate(date string) ([]model.WatchlistRow, error) {
	return f.rows, f.err
}

// fakeTicker connects on demand and replays its canned packets as soon as
// the session subscribes, so Run's tick wait resolves without a goroutine.
type fakeTicker struct {
	hooks   feed.Hooks
	connect bool
	packets []feed.Packet

	mu         sync.Mutex
	subscribed []uint32
	closed     bool
}

func (f *fakeTicker) Connect() error {
	if !f.connect {
		return nil
	}
	f.hooks.OnConnect()
	return nil
}

func (f *fakeTicker) Subscribe(tokens []uint32) error {
	f.mu.Lock()
	f.subscribed = append([]uint32(nil), tokens...)
	f.mu.Unlock()
	for _, p := range f.packets {
		f.hooks.OnPacket(p)
	}
	return nil
}

func (f *fakeTicker) SetMode(mode string, tokens []uint32) error { return nil }

func (f *fakeTicker) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notification.Alert
}

func (r *recordingNotifier) Send(ctx context.Context, a notification.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingNotifier) SendFile(ctx context.Context, path, caption string) error { return nil }

type recordingSink struct {
	mu    sync.Mutex
	calls int
	last  model.EligibilityResult
}

func (r *recordingSink) SetEligibility(ctx context.Context, res *model.EligibilityResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = *res
	return nil
}

func quotePacket(token uint32, open, last float64) feed.Packet {
	return feed.Packet{
		Token:     token,
		Fields:    feed.FieldLastPrice | feed.FieldOpen | feed.FieldHigh | feed.FieldLow | feed.FieldClose,
		LastPrice: last,
		OHLC:      model.OHLC{Open: open, High: last + 1, Low: open - 1, Close: open},
	}
}

type harness struct {
	classifier *Classifier
	state      *state.State
	notifier   *recordingNotifier
	sink       *recordingSink
	session    *feed.Session
	dials      *int
	snapshot   string
}

func newHarness(t *testing.T, rows []model.WatchlistRow, tick func() *fakeTicker) *harness {
	t.Helper()
	dials := 0
	dial := func(apiKey, sessionToken, userID string, h feed.Hooks) feed.TickerClient {
		dials++
		ft := tick()
		ft.hooks = h
		return ft
	}
	st := state.New(state.DefaultTradingConfig())
	session := feed.NewSession(feed.NewStore(), dial)
	notifier := &recordingNotifier{}
	sink := &recordingSink{}
	snapshot := filepath.Join(t.TempDir(), "eligibility_state.json")

	c := New(Config{
		Rows:         &fakeRows{rows: rows},
		Session:      session,
		State:        st,
		Notifier:     notifier,
		Sink:         sink,
		Creds:        func() (string, string, bool) { return "AB1234", "enctoken-1", true },
		APIKey:       "trader",
		SnapshotPath: snapshot,
		ConnectWait:  200 * time.Millisecond,
		TickWait:     200 * time.Millisecond,
		Poll:         5 * time.Millisecond,
	})
	return &harness{classifier: c, state: st, notifier: notifier, sink: sink,
		session: session, dials: &dials, snapshot: snapshot}
}

func todayRows() []model.WatchlistRow {
	today := markethours.SessionDate(time.Now())
	return []model.WatchlistRow{
		{Symbol: "RELI", Token: 738561, High: 2500, Low: 2400, Date: today},
		{Symbol: "ABOVE", Token: 100, High: 550, Low: 500, Date: today},
		{Symbol: "ATHIGH", Token: 101, High: 550, Low: 500, Date: today},
		{Symbol: "ATLOW", Token: 102, High: 550, Low: 500, Date: today},
		{Symbol: "DOJI", Token: 103, High: 550, Low: 500, Date: today},
		{Symbol: "NOTICK", Token: 104, High: 550, Low: 500, Date: today},
		{Symbol: "BADTICK", Token: 105, High: 550, Low: 500, Date: today},
	}
}

func classifyPackets() []feed.Packet {
	return []feed.Packet{
		quotePacket(738561, 2350, 2450), // open < low → eligible
		quotePacket(100, 600, 590),      // open > high
		quotePacket(101, 550, 540),      // open == high → treated as above
		quotePacket(102, 500, 505),      // open == low
		quotePacket(103, 525, 530),      // low < open < high → doji
		quotePacket(105, 0, 505),        // missing open → bad tick
	}
}

func TestRunClassifiesRows(t *testing.T) {
	h := newHarness(t, todayRows(), func() *fakeTicker {
		return &fakeTicker{connect: true, packets: classifyPackets()}
	})

	res, err := h.classifier.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !res.Success || res.TotalChecked != 7 {
		t.Fatalf("success=%v total=%d", res.Success, res.TotalChecked)
	}
	if len(res.Eligible) != 1 || res.Eligible[0].Symbol != "RELI" {
		t.Fatalf("eligible = %+v", res.Eligible)
	}
	// (2500-2450)/2450*100 = 2.0408... → 2.04
	if res.Eligible[0].Percent != 2.04 {
		t.Errorf("percent = %v, want 2.04", res.Eligible[0].Percent)
	}

	wantNot := map[string]string{
		"ABOVE":  model.ReasonOpenAboveHigh,
		"ATHIGH": model.ReasonOpenAboveHigh,
		"ATLOW":  model.ReasonOpenEqualsLow,
	}
	if len(res.NotEligible) != len(wantNot) {
		t.Fatalf("not eligible = %+v", res.NotEligible)
	}
	for _, sv := range res.NotEligible {
		if sv.Reason != wantNot[sv.Symbol] {
			t.Errorf("%s reason = %q, want %q", sv.Symbol, sv.Reason, wantNot[sv.Symbol])
		}
	}

	if len(res.Doji) != 1 || res.Doji[0].Symbol != "DOJI" {
		t.Errorf("doji = %+v", res.Doji)
	}

	wantErrs := map[string]string{
		"NOTICK":  model.ReasonNoTick,
		"BADTICK": model.ReasonBadTick,
	}
	if len(res.Errors) != len(wantErrs) {
		t.Fatalf("errors = %+v", res.Errors)
	}
	for _, se := range res.Errors {
		if se.Reason != wantErrs[se.Symbol] {
			t.Errorf("%s reason = %q, want %q", se.Symbol, se.Reason, wantErrs[se.Symbol])
		}
	}

	if res.WebsocketStatus != feed.StatusConnected {
		t.Errorf("websocket status = %q", res.WebsocketStatus)
	}
	if h.session.Running() || h.session.Connected() {
		t.Error("session not torn down after run")
	}
	if h.state.LastEligibilityCheck().IsZero() {
		t.Error("check time not stamped")
	}
	if h.sink.calls != 1 {
		t.Errorf("sink calls = %d", h.sink.calls)
	}
	if len(h.notifier.alerts) != 1 || !strings.Contains(h.notifier.alerts[0].Message, "RELI") {
		t.Errorf("summary alert = %+v", h.notifier.alerts)
	}
}

func TestRunWritesIndentedSnapshot(t *testing.T) {
	h := newHarness(t, todayRows(), func() *fakeTicker {
		return &fakeTicker{connect: true, packets: classifyPackets()}
	})
	if _, err := h.classifier.Run(context.Background(), true); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(h.snapshot)
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if !strings.Contains(string(data), "\n    \"success\": true") {
		t.Error("snapshot is not 4-space indented")
	}
	var roundtrip model.EligibilityResult
	if err := json.Unmarshal(data, &roundtrip); err != nil {
		t.Fatalf("snapshot does not parse: %v", err)
	}
	if roundtrip.TotalChecked != 7 || len(roundtrip.Eligible) != 1 {
		t.Errorf("snapshot content = %+v", roundtrip)
	}
}

func TestRunNoStocksForToday(t *testing.T) {
	h := newHarness(t, nil, func() *fakeTicker { return &fakeTicker{connect: true} })
	if _, err := h.classifier.Run(context.Background(), true); !errors.Is(err, ErrNoStocksForToday) {
		t.Fatalf("err = %v, want ErrNoStocksForToday", err)
	}
}

func TestRunCachedUnlessForcedOrStale(t *testing.T) {
	h := newHarness(t, todayRows(), func() *fakeTicker {
		return &fakeTicker{connect: true, packets: classifyPackets()}
	})
	ctx := context.Background()

	if _, err := h.classifier.Run(ctx, false); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if *h.dials != 1 {
		t.Fatalf("dials after first run = %d", *h.dials)
	}

	// Unchanged watchlist → cached, no new dial.
	if _, err := h.classifier.Run(ctx, false); err != nil {
		t.Fatalf("cached run: %v", err)
	}
	if *h.dials != 1 {
		t.Errorf("cached run dialed the feed (dials=%d)", *h.dials)
	}

	// force bypasses the cache.
	if _, err := h.classifier.Run(ctx, true); err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if *h.dials != 2 {
		t.Errorf("forced run did not dial (dials=%d)", *h.dials)
	}

	// A watchlist mutation invalidates the cache.
	h.state.MarkWatchlistUpdated(time.Now().UTC())
	if _, err := h.classifier.Run(ctx, false); err != nil {
		t.Fatalf("stale run: %v", err)
	}
	if *h.dials != 3 {
		t.Errorf("stale run did not dial (dials=%d)", *h.dials)
	}
}

func TestRunConnectTimeout(t *testing.T) {
	h := newHarness(t, todayRows(), func() *fakeTicker {
		return &fakeTicker{connect: false}
	})
	if _, err := h.classifier.Run(context.Background(), true); !errors.Is(err, ErrFeedConnectTimeout) {
		t.Fatalf("err = %v, want ErrFeedConnectTimeout", err)
	}
	if h.session.Running() {
		t.Error("session left running after connect timeout")
	}
}

func TestRunFirstTickTimeout(t *testing.T) {
	h := newHarness(t, todayRows(), func() *fakeTicker {
		return &fakeTicker{connect: true} // connects but never ticks
	})
	if _, err := h.classifier.Run(context.Background(), true); !errors.Is(err, ErrFirstTickTimeout) {
		t.Fatalf("err = %v, want ErrFirstTickTimeout", err)
	}
	if h.session.Running() {
		t.Error("session left running after tick timeout")
	}
}

func TestRunSetupFailureWithoutCredentials(t *testing.T) {
	h := newHarness(t, todayRows(), func() *fakeTicker { return &fakeTicker{connect: true} })
	h.classifier.cfg.Creds = func() (string, string, bool) { return "", "", false }

	if _, err := h.classifier.Run(context.Background(), true); !errors.Is(err, ErrFeedSetupFailed) {
		t.Fatalf("err = %v, want ErrFeedSetupFailed", err)
	}
}
