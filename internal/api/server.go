// Package api is the HTTP control surface of the trading server: login and
// session checks, engine start/stop, trading configuration, watchlist CRUD,
// account dashboards, log management and the telemetry websockets. Handlers
// return a uniform JSON envelope: {success: true, ...} on success and
// {success: false, error} on failure.
package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"breakout-trader/internal/auth"
	"breakout-trader/internal/broker"
	"breakout-trader/internal/engine"
	"breakout-trader/internal/model"
	"breakout-trader/internal/notification"
	"breakout-trader/internal/state"
	"breakout-trader/internal/telemetry"
	"breakout-trader/pkg/kiteconnect"
)

// EngineControl is the run-controller surface the handlers drive.
type EngineControl interface {
	Start(ctx context.Context) (engine.StartResult, error)
	Stop()
}

// EligibilityRunner runs a watchlist classification pass on demand.
type EligibilityRunner interface {
	Run(ctx context.Context, force bool) (model.EligibilityResult, error)
}

// BrokerSessions is the broker session-manager surface: derive a session at
// login, hand out the current gateway for probes and dashboards, drop it at
// logout.
type BrokerSessions interface {
	Login(creds broker.Credentials) (kiteconnect.Profile, error)
	Current() (broker.Gateway, bool)
	Logout()
}

// WatchlistStore is the watchlist CRUD surface backed by the SQLite store.
type WatchlistStore interface {
	Add(row model.WatchlistRow) (bool, error)
	Update(origSymbol, origDate string, row model.WatchlistRow) error
	Delete(symbol, date string) error
	List(dateFilter string) ([]model.WatchlistRow, error)
}

// Config wires a Server. Notifier, ConfigStore, Health and the hubs are
// optional; their endpoints degrade gracefully when absent.
type Config struct {
	State      *state.State
	Users      auth.Users
	Issuer     *auth.Issuer
	Sessions   BrokerSessions
	Engine     EngineControl
	Classifier EligibilityRunner
	Watchlist  WatchlistStore
	Notifier   notification.Notifier

	ConfigStore model.ConfigJSONStore // persisted trading config, optional
	Health      http.Handler          // /healthz, optional
	PriceHub    *telemetry.Hub        // /ws/price, optional
	StatusHub   *telemetry.Hub        // /ws/status, optional

	LogDir       string // log directory served by the /api/logs endpoints
	SnapshotPath string // eligibility snapshot sent by test-alert

	AllowedOrigins []string // CORS origins for the frontend
}

// Server carries the wired dependencies for the HTTP handlers.
type Server struct {
	cfg Config
}

// NewServer creates a Server around the given dependencies.
func NewServer(cfg Config) *Server {
	return &Server{cfg: cfg}
}

// Handler assembles the full route table wrapped in CORS. Routes mirror the
// frontend's blueprint layout: /api/auth, /api/trading, /api/stocks,
// /api/dashboard, /api/logs, plus the ops and websocket endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// auth
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/auth/logout", s.handleLogout)
	mux.HandleFunc("/api/auth/check-session", s.handleCheckSession)
	mux.Handle("/api/auth/test-alert", s.protected(s.handleTestAlert))

	// trading control
	mux.Handle("/api/trading/check-eligibility", s.protected(s.handleCheckEligibility))
	mux.Handle("/api/trading/start-trading", s.protected(s.handleStartTrading))
	mux.Handle("/api/trading/stop-trading", s.protected(s.handleStopTrading))
	mux.Handle("/api/trading/trading-config", s.protected(s.handleGetConfig))
	mux.Handle("/api/trading/trading-config-update", s.protected(s.handleUpdateConfig))
	mux.Handle("/api/trading/reset-state", s.protected(s.handleResetState))
	mux.Handle("/api/trading/state", s.protected(s.handleState))

	// watchlist
	mux.Handle("/api/stocks/add-stock", s.protected(s.handleAddStock))
	mux.Handle("/api/stocks/get-stocks", s.protected(s.handleGetStocks))
	mux.Handle("/api/stocks/update-stock", s.protected(s.handleUpdateStock))
	mux.Handle("/api/stocks/delete-stock", s.protected(s.handleDeleteStock))

	// dashboards
	mux.Handle("/api/dashboard/order-details", s.protected(s.handleOrderDetails))
	mux.Handle("/api/dashboard/position-details", s.protected(s.handlePositionDetails))
	mux.Handle("/api/dashboard/holding-details", s.protected(s.handleHoldingDetails))
	mux.Handle("/api/dashboard/account-details", s.protected(s.handleAccountDetails))

	// log management
	mux.Handle("/api/logs", s.protected(s.handleLogs))
	mux.Handle("/api/logs/files", s.protected(s.handleLogFiles))
	mux.Handle("/api/logs/download", s.protected(s.handleLogDownload))
	mux.Handle("/api/logs/stats", s.protected(s.handleLogStats))
	mux.Handle("/api/logs/clear", s.protected(s.handleLogClear))

	// ops
	if s.cfg.Health != nil {
		mux.Handle("/healthz", s.cfg.Health)
	}
	mux.Handle("/metrics", promhttp.Handler())

	// telemetry streams; auth happens at the frontend, not here
	if s.cfg.PriceHub != nil {
		mux.HandleFunc("/ws/price", s.cfg.PriceHub.ServeWS)
	}
	if s.cfg.StatusHub != nil {
		mux.HandleFunc("/ws/status", s.cfg.StatusHub.ServeWS)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(mux)
}

func (s *Server) protected(h http.HandlerFunc) http.Handler {
	return s.cfg.Issuer.Middleware(h)
}
