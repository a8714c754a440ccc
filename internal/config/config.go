package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	DatabaseURL      string
	ClerkSecretKey   string
	DefaultTimezone  string
	SweepInterval    time.Duration
	LedgerWindowDays int
	FCMCredentials   string
	FCMKeyFile       string
	MetricsUser      string
	MetricsPass      string
	PprofSecret      string
	RateLimitRPS     float64
	RateLimitBurst   int
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	return &Config{
		Port:             getEnv("PORT", "3333"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		ClerkSecretKey:   os.Getenv("CLERK_SECRET_KEY"),
		DefaultTimezone:  os.Getenv("DEFAULT_TIMEZONE"),
		SweepInterval:    getDuration("SWEEP_INTERVAL", time.Minute),
		LedgerWindowDays: getInt("LEDGER_WINDOW_DAYS", 30),
		FCMCredentials:   os.Getenv("FCM_SERVICE_ACCOUNT_JSON"),
		FCMKeyFile:       getEnv("FCM_CREDENTIALS_FILE", "./serviceAccountKey.json"),
		MetricsUser:      os.Getenv("METRICS_USER"),
		MetricsPass:      os.Getenv("METRICS_PASS"),
		PprofSecret:      os.Getenv("PPROF_SECRET"),
		RateLimitRPS:     getFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:   getInt("RATE_LIMIT_BURST", 30),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("Invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("Invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
