package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// HTTP surface
	Port            string
	SecretKey       string
	FrontendOrigins string

	// Data files
	UserCredentialsFile string
	StocksDatabaseFile  string
	EligibilitySnapshot string
	LogDir              string

	// Notification
	TelegramBotToken  string
	TelegramChannelID string
	AlertWebhookURL   string

	// Optional infrastructure
	RedisAddr     string
	RedisPassword string

	// Trading defaults (max margin stays zero unless configured; the run
	// controller refuses to start without it)
	MaxMargin float64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "5000"),
		SecretKey:       getEnv("SECRET_KEY", ""),
		FrontendOrigins: getEnv("FRONTEND_ORIGINS", "http://localhost:3000"),

		UserCredentialsFile: getEnv("USER_CREDENTIALS_FILE", "user_credentials.json"),
		StocksDatabaseFile:  getEnv("STOCKS_DATABASE_FILE", "data/stocks.db"),
		EligibilitySnapshot: getEnv("ELIGIBILITY_SNAPSHOT_FILE", "eligibility_state.json"),
		LogDir:              getEnv("LOG_DIR", "logs"),

		TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChannelID: getEnv("TELEGRAM_CHANNEL_ID", ""),
		AlertWebhookURL:   getEnv("ALERT_WEBHOOK_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		MaxMargin: getEnvFloat("TRADING_MAX_MARGIN", 0),
	}
}

// Origins splits FrontendOrigins into the CORS allow-list.
func (c *Config) Origins() []string {
	parts := strings.Split(c.FrontendOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return f
}
