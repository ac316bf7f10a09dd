package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"breakout-trader/config"
	"breakout-trader/internal/api"
	"breakout-trader/internal/auth"
	"breakout-trader/internal/broker"
	"breakout-trader/internal/eligibility"
	"breakout-trader/internal/engine"
	"breakout-trader/internal/feed"
	"breakout-trader/internal/logger"
	"breakout-trader/internal/metrics"
	"breakout-trader/internal/notification"
	"breakout-trader/internal/state"
	redisstore "breakout-trader/internal/store/redis"
	"breakout-trader/internal/store/sqlite"
	"breakout-trader/internal/telemetry"
	"breakout-trader/pkg/kiteconnect"
)

// sessionTTL bounds the dashboard login cookie. Broker sessions expire on
// their own schedule; Ensure re-derives them when a probe fails.
const sessionTTL = 12 * time.Hour

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// .env is a dev convenience; absence is normal in production.
	_ = godotenv.Load()
	cfg := config.Load()

	_, logPath := logger.Init(logger.Options{Service: "breakout-trader", Dir: cfg.LogDir})
	if logPath != "" {
		log.Printf("[main] logging to %s", logPath)
	}
	log.Printf("[main] starting...")

	users, err := auth.LoadUsers(cfg.UserCredentialsFile)
	if err != nil {
		log.Fatalf("[main] credentials: %v", err)
	}

	secret := cfg.SecretKey
	if secret == "" {
		log.Printf("[main] WARNING: SECRET_KEY not set, using insecure development key")
		secret = "dev-secret-change-me"
	}
	issuer := auth.NewIssuer(secret, sessionTTL)

	initial := state.DefaultTradingConfig()
	if cfg.MaxMargin > 0 {
		initial.MaxMargin = cfg.MaxMargin
	}
	st := state.New(initial)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is optional: a nil store no-ops persistence, so nothing below
	// branches on whether it connected.
	var persist *redisstore.Store
	if cfg.RedisAddr != "" {
		persist, err = redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[main] WARNING: redis unavailable, running without persistence: %v", err)
			persist = nil
		}
	}
	restoreConfig(ctx, st, persist)

	watch, err := sqlite.New(sqlite.Config{
		Path:     cfg.StocksDatabaseFile,
		OnChange: func() { st.MarkWatchlistUpdated(time.Now()) },
	})
	if err != nil {
		log.Fatalf("[main] watchlist store: %v", err)
	}
	defer watch.Close()

	notifier := buildNotifier(cfg)

	brokers := broker.NewManager(kiteconnect.Config{})
	session := feed.NewSession(feed.NewStore(), nil)

	m := metrics.NewMetrics()

	classifier := eligibility.New(eligibility.Config{
		Rows:         watch,
		Session:      session,
		State:        st,
		Notifier:     notifier,
		Sink:         persist,
		Creds:        brokers.FeedCredentials,
		SnapshotPath: cfg.EligibilitySnapshot,
		Metrics:      m,
	})

	eng := engine.New(engine.Config{
		State:    st,
		Session:  session,
		Broker:   brokers,
		Runner:   classifier,
		Rows:     watch,
		Notifier: notifier,
		Metrics:  m,
	})

	priceHub := telemetry.NewHub("price", time.Second, telemetry.PriceFeed(st, session.Store()))
	statusHub := telemetry.NewHub("status", 2*time.Second, telemetry.StatusFeed(st))

	health := metrics.NewHealthStatus()
	health.StartLivenessChecker(ctx, persist.Client(), watch.DB(), session, 15*time.Second)
	m.StartStateSampler(ctx, st, session, map[string]*telemetry.Hub{
		"price":  priceHub,
		"status": statusHub,
	}, 5*time.Second)

	server := api.NewServer(api.Config{
		State:          st,
		Users:          users,
		Issuer:         issuer,
		Sessions:       brokers,
		Engine:         eng,
		Classifier:     classifier,
		Watchlist:      watch,
		Notifier:       notifier,
		ConfigStore:    persist,
		Health:         health,
		PriceHub:       priceHub,
		StatusHub:      statusHub,
		LogDir:         cfg.LogDir,
		SnapshotPath:   cfg.EligibilitySnapshot,
		AllowedOrigins: cfg.Origins(),
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: server.Handler()}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[main] serving at http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	<-sigCh
	log.Printf("[main] shutting down...")
	cancel()
	eng.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] WARNING: http shutdown: %v", err)
	}
	if err := persist.Close(); err != nil {
		log.Printf("[main] WARNING: redis close: %v", err)
	}
	log.Printf("[main] stopped")
}

// restoreConfig reapplies the persisted trading config so strategy knobs
// survive a restart. Anything unreadable or invalid is logged and skipped.
func restoreConfig(ctx context.Context, st *state.State, persist *redisstore.Store) {
	data, err := persist.LoadConfigJSON(ctx)
	if err != nil {
		log.Printf("[main] WARNING: trading config restore failed: %v", err)
		return
	}
	if data == nil {
		return
	}

	cfg := st.Config()
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("[main] WARNING: persisted trading config unreadable: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("[main] WARNING: persisted trading config invalid: %v", err)
		return
	}
	st.SetConfig(cfg)
	log.Printf("[main] trading config restored from redis")
}

// buildNotifier wires Telegram and the alert webhook when configured, with
// the process log as the always-on fallback channel.
func buildNotifier(cfg *config.Config) notification.Notifier {
	channels := notification.Multi{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChannelID != "" {
		tg, err := notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChannelID)
		if err != nil {
			log.Printf("[main] WARNING: telegram setup failed: %v", err)
		} else {
			channels = append(channels, tg)
		}
	}
	if cfg.AlertWebhookURL != "" {
		channels = append(channels, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}
	if len(channels) == 1 {
		log.Printf("[main] no external alert channel configured, alerts go to the log only")
		return channels[0]
	}
	return channels
}
