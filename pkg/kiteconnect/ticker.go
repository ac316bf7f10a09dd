package kiteconnect

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultTickerRoot = "wss://ws.zerodha.com"
	tickerAPIKey      = "kitefront"

	// The feed emits a one-byte heartbeat every second; a stalled read
	// deadline therefore means the connection is gone.
	readTimeout       = 15 * time.Second
	heartbeatInterval = 10 * time.Second
	writeTimeout      = 5 * time.Second
)

// TickerConfig configures the market feed client.
type TickerConfig struct {
	UserID   string
	Enctoken string
	APIKey   string // default "kitefront"
	RootURL  string // default wss://ws.zerodha.com
}

// Ticker is the websocket side of the Kite API. Callbacks must be set
// before Connect. The ticker does not reconnect on its own: a read failure
// fires OnError and OnClose and the owner decides whether to rebuild.
type Ticker struct {
	userID   string
	enctoken string
	apiKey   string
	rootURL  string

	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	OnTick    func(Tick)
	OnConnect func()
	OnError   func(error)
	OnClose   func()

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTicker builds a Ticker for the given session.
func NewTicker(cfg TickerConfig) *Ticker {
	if cfg.APIKey == "" {
		cfg.APIKey = tickerAPIKey
	}
	if cfg.RootURL == "" {
		cfg.RootURL = defaultTickerRoot
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Ticker{
		userID:   cfg.UserID,
		enctoken: cfg.Enctoken,
		apiKey:   cfg.APIKey,
		rootURL:  cfg.RootURL,
		dialer:   websocket.DefaultDialer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Connect dials the feed and starts the read and heartbeat loops.
func (t *Ticker) Connect() error {
	q := url.Values{}
	q.Set("api_key", t.apiKey)
	q.Set("user_id", t.userID)
	q.Set("enctoken", t.enctoken)

	conn, resp, err := t.dialer.Dial(t.rootURL+"/?"+q.Encode(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("ticker dial: %w (status %s)", err, resp.Status)
		}
		return fmt.Errorf("ticker dial: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	go t.heartbeatLoop(conn)

	if t.OnConnect != nil {
		t.OnConnect()
	}
	return nil
}

// Subscribe registers instrument tokens with the feed.
func (t *Ticker) Subscribe(tokens []uint32) error {
	return t.writeJSON(map[string]any{"a": "subscribe", "v": tokens})
}

// SetMode switches the packet detail level for the given tokens.
func (t *Ticker) SetMode(mode string, tokens []uint32) error {
	return t.writeJSON(map[string]any{"a": "mode", "v": []any{mode, tokens}})
}

// Close shuts the connection down and stops the loops.
func (t *Ticker) Close() {
	t.cancel()
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		conn.Close()
	}
}

func (t *Ticker) writeJSON(msg any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return fmt.Errorf("ticker: not connected")
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteJSON(msg)
}

func (t *Ticker) readLoop(conn *websocket.Conn) {
	defer func() {
		if t.OnClose != nil {
			t.OnClose()
		}
	}()
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if t.ctx.Err() == nil {
				log.Printf("[ticker] read error: %v", err)
				if t.OnError != nil {
					t.OnError(err)
				}
			}
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			// one-byte frames are heartbeats
			if len(msg) < 2 {
				continue
			}
			for _, tick := range ParsePackets(msg) {
				if t.OnTick != nil {
					t.OnTick(tick)
				}
			}
		case websocket.TextMessage:
			t.handleTextMessage(msg)
		}
	}
}

// handleTextMessage surfaces feed-side error notices; postbacks and other
// JSON messages are ignored by this engine.
func (t *Ticker) handleTextMessage(msg []byte) {
	var m struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}
	if err := json.Unmarshal(msg, &m); err != nil {
		return
	}
	if m.Type == "error" && t.OnError != nil {
		t.OnError(fmt.Errorf("feed error: %v", m.Data))
	}
}

func (t *Ticker) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
		}
	}
}

// ---- Binary protocol ----

// Packet sizes on the equity feed. Anything else (index packets and
// future extensions) is skipped.
const (
	packetLTP   = 8
	packetQuote = 44
	packetFull  = 184
)

// ParsePackets splits a binary frame into packets and parses each one.
// Frame layout: int16 packet count, then per packet an int16 length and
// the packet bytes. All integers are big-endian; prices are in paise.
func ParsePackets(b []byte) []Tick {
	if len(b) < 2 {
		return nil
	}
	count := int(binary.BigEndian.Uint16(b[0:2]))
	ticks := make([]Tick, 0, count)
	offset := 2
	for i := 0; i < count; i++ {
		if offset+2 > len(b) {
			break
		}
		size := int(binary.BigEndian.Uint16(b[offset : offset+2]))
		offset += 2
		if offset+size > len(b) {
			break
		}
		if tick, ok := parsePacket(b[offset : offset+size]); ok {
			ticks = append(ticks, tick)
		}
		offset += size
	}
	return ticks
}

func parsePacket(b []byte) (Tick, bool) {
	switch len(b) {
	case packetLTP:
		return Tick{
			Mode:      ModeLTP,
			Token:     binary.BigEndian.Uint32(b[0:4]),
			LastPrice: paise(b[4:8]),
		}, true
	case packetQuote, packetFull:
		tick := Tick{
			Mode:         ModeQuote,
			Token:        binary.BigEndian.Uint32(b[0:4]),
			LastPrice:    paise(b[4:8]),
			LastQuantity: int64(binary.BigEndian.Uint32(b[8:12])),
			AveragePrice: paise(b[12:16]),
			Volume:       int64(binary.BigEndian.Uint32(b[16:20])),
			BuyQuantity:  int64(binary.BigEndian.Uint32(b[20:24])),
			SellQuantity: int64(binary.BigEndian.Uint32(b[24:28])),
			Open:         paise(b[28:32]),
			High:         paise(b[32:36]),
			Low:          paise(b[36:40]),
			Close:        paise(b[40:44]),
		}
		if len(b) == packetFull {
			tick.Mode = ModeFull
			if ts := binary.BigEndian.Uint32(b[60:64]); ts > 0 {
				tick.Timestamp = time.Unix(int64(ts), 0)
			}
			tick.Depth = parseDepth(b[64:184])
		}
		return tick, true
	default:
		return Tick{}, false
	}
}

// parseDepth reads ten 12-byte levels: five buy then five sell.
func parseDepth(b []byte) *TickDepth {
	var d TickDepth
	for i := 0; i < 10; i++ {
		p := b[i*12 : i*12+12]
		level := DepthLevel{
			Quantity: int64(binary.BigEndian.Uint32(p[0:4])),
			Price:    paise(p[4:8]),
			Orders:   int64(binary.BigEndian.Uint16(p[8:10])),
		}
		if i < 5 {
			d.Buy[i] = level
		} else {
			d.Sell[i-5] = level
		}
	}
	return &d
}

func paise(b []byte) float64 {
	return float64(int32(binary.BigEndian.Uint32(b))) / 100
}
