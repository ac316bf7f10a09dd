// Package feed maintains the single live market-data session and the
// coalesced tick table behind it.
//
// A Session owns at most one transport at a time. Its lifecycle is the
// three-flag machine (ticker, running, connected): Setup installs a
// transport, Start dials, the connect callback flips connected, and Stop or
// a connection failure drops everything back to (nil, false, false). The
// session never reconnects on its own; the run controller tears down and
// rebuilds when it needs a guaranteed-fresh feed.
package feed

import (
	"log"
	"sync"

	"breakout-trader/pkg/kiteconnect"
)

// Websocket status strings surfaced in eligibility results and telemetry.
const (
	StatusConnected    = "Connected"
	StatusDisconnected = "Disconnected"
)

// TickerClient is the transport behind a Session.
type TickerClient interface {
	Connect() error
	Subscribe(tokens []uint32) error
	SetMode(mode string, tokens []uint32) error
	Close()
}

// Hooks are the session callbacks a DialFunc wires into the transport it
// builds. They must not be invoked during construction, only from the
// transport's own goroutines after Connect.
type Hooks struct {
	OnPacket  func(Packet)
	OnConnect func()
	OnError   func(error)
	OnClose   func()
}

// DialFunc builds the transport for one session generation.
type DialFunc func(apiKey, sessionToken, userID string, h Hooks) TickerClient

func dialKite(apiKey, sessionToken, userID string, h Hooks) TickerClient {
	t := kiteconnect.NewTicker(kiteconnect.TickerConfig{
		APIKey:   apiKey,
		Enctoken: sessionToken,
		UserID:   userID,
	})
	t.OnTick = func(kt kiteconnect.Tick) { h.OnPacket(FromTick(kt)) }
	t.OnConnect = h.OnConnect
	t.OnError = h.OnError
	t.OnClose = h.OnClose
	return t
}

// Session is the process-wide tick session.
type Session struct {
	store *Store
	dial  DialFunc

	mu         sync.Mutex
	ticker     TickerClient
	running    bool
	connected  bool
	subscribed []uint32
}

// NewSession builds a Session over store. A nil dial uses the broker feed.
func NewSession(store *Store, dial DialFunc) *Session {
	if dial == nil {
		dial = dialKite
	}
	return &Session{store: store, dial: dial}
}

// Store returns the live tick table.
func (s *Session) Store() *Store { return s.store }

// Setup installs a fresh transport for the given credentials, tearing down
// any existing one first. The transport is not connected yet.
func (s *Session) Setup(apiKey, sessionToken, userID string) bool {
	if sessionToken == "" || userID == "" {
		log.Printf("[feed] setup rejected: missing session token or user id")
		return false
	}

	s.mu.Lock()
	old := s.clearLocked()

	var tk TickerClient
	hooks := Hooks{
		OnPacket:  func(p Packet) { s.apply(tk, p) },
		OnConnect: func() { s.markConnected(tk) },
		OnError:   func(err error) { log.Printf("[feed] ticker error: %v", err) },
		OnClose:   func() { s.markClosed(tk) },
	}
	tk = s.dial(apiKey, sessionToken, userID, hooks)
	s.ticker = tk
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	log.Printf("[feed] session set up for user %s", userID)
	return true
}

// Start dials the feed. Non-blocking: the transport's goroutines deliver
// ticks and the connect callback from here on.
func (s *Session) Start() bool {
	s.mu.Lock()
	tk := s.ticker
	if tk == nil {
		s.mu.Unlock()
		log.Printf("[feed] start rejected: no session set up")
		return false
	}
	if s.running {
		s.mu.Unlock()
		return true
	}
	s.running = true
	s.mu.Unlock()

	// Connect may fire OnConnect synchronously; the mutex is not held here.
	if err := tk.Connect(); err != nil {
		log.Printf("[feed] start failed: %v", err)
		s.markClosed(tk)
		tk.Close()
		return false
	}
	return true
}

// Subscribe registers tokens with the live feed in quote mode. No-op unless
// connected.
func (s *Session) Subscribe(tokens []uint32) bool {
	s.mu.Lock()
	tk := s.ticker
	connected := s.connected
	if connected && tk != nil {
		s.subscribed = append(s.subscribed, tokens...)
	}
	s.mu.Unlock()

	if tk == nil || !connected {
		log.Printf("[feed] subscribe skipped: not connected")
		return false
	}
	if err := tk.Subscribe(tokens); err != nil {
		log.Printf("[feed] subscribe failed: %v", err)
		return false
	}
	if err := tk.SetMode(kiteconnect.ModeQuote, tokens); err != nil {
		log.Printf("[feed] set mode failed: %v", err)
		return false
	}
	log.Printf("[feed] subscribed %d tokens", len(tokens))
	return true
}

// Stop tears the session down to (nil, false, false) and clears the tick
// table and subscriptions. Returns true if there was a transport to stop.
func (s *Session) Stop() bool {
	s.mu.Lock()
	old := s.clearLocked()
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	s.store.Clear()
	if old != nil {
		log.Printf("[feed] session stopped")
	}
	return old != nil
}

// Running reports whether Start has been called on the current transport.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Connected reports whether the current transport has an open connection.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// WebsocketStatus returns the UI-facing connection status string.
func (s *Session) WebsocketStatus() string {
	if s.Connected() {
		return StatusConnected
	}
	return StatusDisconnected
}

// Subscribed returns a copy of the tokens subscribed on the current
// transport.
func (s *Session) Subscribed() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.subscribed...)
}

// clearLocked resets flags to (nil, false, false) and hands back the old
// transport for closing outside the lock.
func (s *Session) clearLocked() TickerClient {
	old := s.ticker
	s.ticker = nil
	s.running = false
	s.connected = false
	s.subscribed = nil
	return old
}

// apply feeds a packet into the store if tk is still the live transport.
func (s *Session) apply(tk TickerClient, p Packet) {
	s.mu.Lock()
	current := s.ticker == tk && tk != nil
	s.mu.Unlock()
	if current {
		s.store.Apply(p)
	}
}

func (s *Session) markConnected(tk TickerClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == tk && tk != nil {
		s.connected = true
		log.Printf("[feed] connected")
	}
}

// markClosed handles a connection failure: flags drop to (nil, false,
// false) but the tick table keeps its last known prices.
func (s *Session) markClosed(tk TickerClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker == tk && tk != nil {
		s.ticker = nil
		s.running = false
		s.connected = false
		s.subscribed = nil
		log.Printf("[feed] connection closed")
	}
}
