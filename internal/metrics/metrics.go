package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"breakout-trader/internal/feed"
	"breakout-trader/internal/markethours"
	"breakout-trader/internal/state"
	"breakout-trader/internal/telemetry"
)

// Metrics holds all Prometheus metrics for the trading engine.
type Metrics struct {
	// Event counters, incremented at the call sites.
	EligibilityRuns *prometheus.CounterVec // result: fresh|cached|error
	FeedConnects    prometheus.Counter
	OrdersPlaced    *prometheus.CounterVec // side: BUY|SELL
	OrderFailures   prometheus.Counter
	ExitsTotal      *prometheus.CounterVec // reason: TARGET|STOPLOSS|...
	CandlesClosed   prometheus.Counter

	// Gauges refreshed by the state sampler.
	EngineRunning    prometheus.Gauge
	EligibleStocks   prometheus.Gauge
	FeedConnected    prometheus.Gauge
	FeedTokensLive   prometheus.Gauge
	MarketOpen       prometheus.Gauge
	RemainingSeconds prometheus.Gauge
	TelemetryClients *prometheus.GaugeVec // stream: price|status
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		EligibilityRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breakout_eligibility_runs_total",
			Help: "Eligibility classifications by outcome",
		}, []string{"result"}),
		FeedConnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breakout_feed_connects_total",
			Help: "Market data websocket sessions established",
		}),
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breakout_orders_placed_total",
			Help: "Orders accepted by the broker, by side",
		}, []string{"side"}),
		OrderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breakout_order_failures_total",
			Help: "Order submissions rejected or failed",
		}),
		ExitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "breakout_position_exits_total",
			Help: "Position exits by reason",
		}, []string{"reason"}),
		CandlesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "breakout_candles_closed_total",
			Help: "Stop-loss candles completed by the position monitor",
		}),

		EngineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breakout_engine_running",
			Help: "Whether a trading run is active (0/1)",
		}),
		EligibleStocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breakout_eligible_stocks",
			Help: "Eligible stocks in the latest classification",
		}),
		FeedConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breakout_feed_connected",
			Help: "Market data websocket connectivity (0/1)",
		}),
		FeedTokensLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breakout_feed_tokens_live",
			Help: "Instruments with at least one tick in the live store",
		}),
		MarketOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breakout_market_open",
			Help: "NSE session state (0=closed, 1=open)",
		}),
		RemainingSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "breakout_session_remaining_seconds",
			Help: "Seconds left before the run hits its session limit",
		}),
		TelemetryClients: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "breakout_telemetry_clients",
			Help: "Connected dashboard websocket clients per stream",
		}, []string{"stream"}),
	}

	prometheus.MustRegister(
		m.EligibilityRuns,
		m.FeedConnects,
		m.OrdersPlaced,
		m.OrderFailures,
		m.ExitsTotal,
		m.CandlesClosed,
		m.EngineRunning,
		m.EligibleStocks,
		m.FeedConnected,
		m.FeedTokensLive,
		m.MarketOpen,
		m.RemainingSeconds,
		m.TelemetryClients,
	)

	return m
}

// StartStateSampler refreshes the gauges from live state every interval
// until ctx is cancelled. hubs maps stream names to their telemetry hubs.
func (m *Metrics) StartStateSampler(ctx context.Context, st *state.State, sess *feed.Session, hubs map[string]*telemetry.Hub, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.sample(st, sess, hubs, now)
			}
		}
	}()
}

func (m *Metrics) sample(st *state.State, sess *feed.Session, hubs map[string]*telemetry.Hub, now time.Time) {
	m.EngineRunning.Set(boolGauge(st.IsRunning()))
	m.RemainingSeconds.Set(float64(st.RemainingSeconds(now)))
	m.MarketOpen.Set(boolGauge(markethours.IsMarketOpen(now)))

	if res, ok := st.Eligibility(); ok {
		m.EligibleStocks.Set(float64(len(res.Eligible)))
	} else {
		m.EligibleStocks.Set(0)
	}

	if sess != nil {
		m.FeedConnected.Set(boolGauge(sess.Connected()))
		m.FeedTokensLive.Set(float64(sess.Store().Len()))
	}

	for name, hub := range hubs {
		m.TelemetryClients.WithLabelValues(name).Set(float64(hub.ClientCount()))
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// HealthStatus tracks dependency health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool
	LastTickTime   time.Time
	RedisEnabled   bool
	RedisConnected bool
	SQLiteOK       bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), SQLiteOK: true}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the watchlist database and records latency and health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency probes. Either handle may
// be nil when the dependency is not configured.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db *sql.DB, sess *feed.Session, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if db != nil {
					h.CheckSQLite(probeCtx, db)
				}
				if sess != nil {
					h.SetFeedConnected(sess.Connected())
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. SQLite is load-bearing (the
// watchlist lives there), so losing it makes the process unhealthy;
// a down Redis or feed only degrades it.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall := "healthy"
	httpCode := http.StatusOK
	if h.RedisEnabled && !h.RedisConnected {
		overall = "degraded"
	}
	if !h.SQLiteOK {
		overall = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		TickAge         string  `json:"tick_age,omitempty"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at,omitempty"`
	}{
		Status:          overall,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		TickAge:         tickAge,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     formatCheckAt(h.LastCheckAt),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

func formatCheckAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
