package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret string
	SessionMaxAge int

	// QR Token
	QRTokenSecret string
	QRTokenTTL    time.Duration

	// Chain
	ChainID int64

	// Stripe
	StripeAPIKey     string
	WebhookSecret    string
	BackfillInterval time.Duration
	BackfillPageSize int

	// Live Sync
	LiveFeedURL      string
	LiveSyncInterval time.Duration
	LiveFetchTimeout time.Duration
	LiveFetchMaxSize int64

	// Rate Limit
	RateLimitGeneral int
	RateLimitRedeem  int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// STRIPE_API_KEYとLIVE_FEED_URLは任意で、未設定の場合は
// 対応するワーカージョブが起動時にスキップされる。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.QRTokenSecret = os.Getenv("QR_TOKEN_SECRET")
	if cfg.QRTokenSecret == "" {
		missing = append(missing, "QR_TOKEN_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.QRTokenTTL = getEnvDuration("QR_TOKEN_TTL", 60*time.Second)
	cfg.ChainID = getEnvInt64("CHAIN_ID", 68840142)
	cfg.StripeAPIKey = getEnvString("STRIPE_API_KEY", "")
	cfg.WebhookSecret = getEnvString("WEBHOOK_SECRET", "")
	cfg.BackfillInterval = getEnvDuration("BACKFILL_INTERVAL", 15*time.Minute)
	cfg.BackfillPageSize = getEnvInt("BACKFILL_PAGE_SIZE", 100)
	cfg.LiveFeedURL = getEnvString("LIVE_FEED_URL", "")
	cfg.LiveSyncInterval = getEnvDuration("LIVE_SYNC_INTERVAL", 30*time.Minute)
	cfg.LiveFetchTimeout = getEnvDuration("LIVE_FETCH_TIMEOUT", 10*time.Second)
	cfg.LiveFetchMaxSize = getEnvInt64("LIVE_FETCH_MAX_SIZE", 5242880)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRedeem = getEnvInt("RATE_LIMIT_REDEEM", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
