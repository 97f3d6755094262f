package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the rule engine.
type Config struct {
	Port string

	// Market data
	MarketWSURL string
	UseMockFeed bool
	Symbols     []string

	// User activity stream
	UserWSURL string

	// Rule parser backend
	BackendURL   string
	BackendToken string

	// Broker account (Alpaca)
	AlpacaAPIKey    string
	AlpacaAPISecret string
	AlpacaPaper     bool

	// Local playbook definitions
	PlaybookFile string

	// Database
	DBPath string

	// Auth
	JWTSecret string

	// Evaluation
	IndicatorWindow int
	EvalMinInterval int // milliseconds between evaluations per symbol
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8080"),
		MarketWSURL:     getEnv("MARKET_WS_URL", ""),
		UseMockFeed:     getEnv("USE_MOCK_FEED", "true") == "true",
		Symbols:         splitAndTrim(getEnv("SYMBOLS", "AAPL,TSLA")),
		UserWSURL:       getEnv("USER_WS_URL", ""),
		BackendURL:      getEnv("BACKEND_URL", ""),
		BackendToken:    os.Getenv("BACKEND_TOKEN"),
		AlpacaAPIKey:    os.Getenv("ALPACA_API_KEY"),
		AlpacaAPISecret: os.Getenv("ALPACA_API_SECRET"),
		AlpacaPaper:     getEnv("ALPACA_PAPER", "true") == "true",
		PlaybookFile:    getEnv("PLAYBOOK_FILE", "playbooks.yaml"),
		DBPath:          getEnv("DB_PATH", "./data/rulecore.db"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		IndicatorWindow: getEnvInt("INDICATOR_WINDOW", 500),
		EvalMinInterval: getEnvInt("EVAL_MIN_INTERVAL_MS", 250),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
