package telemetry

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"
)

func nopPayload(time.Time) interface{} { return nil }

func TestBroadcastDropsWhenQueueFull(t *testing.T) {
	h := NewHub("price", time.Hour, nopPayload)
	fast := &Client{hub: h, send: make(chan []byte, 4)}
	slow := &Client{hub: h, send: make(chan []byte, 1)}
	h.addClient(fast)
	h.addClient(slow)

	slow.send <- []byte("stuck")

	h.broadcast([]byte("a"))
	h.broadcast([]byte("b"))

	if got := len(fast.send); got != 2 {
		t.Errorf("fast client queued %d frames, want 2", got)
	}
	if got := len(slow.send); got != 1 {
		t.Errorf("slow client queued %d frames, want 1 (broadcasts dropped)", got)
	}
}

func TestFeedLoopEmitsEnvelopes(t *testing.T) {
	var builds int32
	h := NewHub("status", 5*time.Millisecond, func(now time.Time) interface{} {
		atomic.AddInt32(&builds, 1)
		return map[string]bool{"is_running": true}
	})
	c := &Client{hub: h, send: make(chan []byte, 16)}
	h.addClient(c)

	h.StartFeed()
	h.StartFeed() // second call is a no-op
	defer h.StopFeed()

	var frame []byte
	select {
	case frame = <-c.send:
	case <-time.After(2 * time.Second):
		t.Fatal("no frame within 2s")
	}

	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("frame is not valid JSON: %v\nraw: %s", err, frame)
	}
	if env.Type != "feed_update" {
		t.Errorf("type = %q, want feed_update", env.Type)
	}
	var data struct {
		IsRunning bool `json:"is_running"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || !data.IsRunning {
		t.Errorf("data payload wrong: %s (err %v)", env.Data, err)
	}
	if atomic.LoadInt32(&builds) == 0 {
		t.Error("payload builder never called")
	}
}

func TestStopFeedHaltsLoop(t *testing.T) {
	h := NewHub("status", time.Millisecond, nopPayload)
	c := &Client{hub: h, send: make(chan []byte, 64)}
	h.addClient(c)

	h.StartFeed()
	if !h.Feeding() {
		t.Fatal("feed should be live after StartFeed")
	}
	h.StopFeed()
	h.StopFeed() // idempotent
	if h.Feeding() {
		t.Fatal("feed should be stopped")
	}

	// Give an in-flight tick time to land, then verify silence.
	time.Sleep(20 * time.Millisecond)
	for len(c.send) > 0 {
		<-c.send
	}
	time.Sleep(20 * time.Millisecond)
	if got := len(c.send); got != 0 {
		t.Errorf("loop still emitting after stop: %d frames", got)
	}
}

func TestLastClientLeavingStopsFeed(t *testing.T) {
	h := NewHub("price", time.Hour, nopPayload)
	a := &Client{hub: h, send: make(chan []byte, 1)}
	b := &Client{hub: h, send: make(chan []byte, 1)}
	h.addClient(a)
	h.addClient(b)

	h.StartFeed()

	h.RemoveClient(a)
	if !h.Feeding() {
		t.Fatal("feed must survive while a client remains")
	}
	h.RemoveClient(b)
	if h.Feeding() {
		t.Fatal("feed must stop when the last client leaves")
	}

	h.RemoveClient(b) // double remove is a no-op
	if got := h.ClientCount(); got != 0 {
		t.Errorf("client count = %d, want 0", got)
	}
}
