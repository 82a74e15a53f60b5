package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"wallet-tracker/internal/domain"
)

// Config carries all process configuration, sourced from the environment
// with an optional .env file.
type Config struct {
	// Geyser stream.
	GeyserEndpoint string
	GeyserAPIKey   string

	// Solana JSON-RPC endpoint, used by the oracle and the monitor.
	RPCEndpoint string

	// Outbound message bus.
	RedisURL        string
	EventChannel    string
	NewTokenChannel string

	// Persistence. Empty DSNs disable the corresponding store.
	PostgresDSN   string
	ClickhouseDSN string

	// Subscription watchlist.
	WatchAddresses []string

	// Pipeline tuning.
	QueueSize     int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxAttempts   int
	LookupTimeout time.Duration
	Commitment    string

	MetricsAddr string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (*Config, error) {
	// Missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	cfg := &Config{
		GeyserEndpoint:  os.Getenv("GEYSER_ENDPOINT"),
		GeyserAPIKey:    os.Getenv("GEYSER_API_KEY"),
		RPCEndpoint:     getEnv("RPC_ENDPOINT", "https://api.mainnet-beta.solana.com"),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		EventChannel:    getEnv("NEW_MINT_DETAIL_CHANNEL", "new_mint_detail"),
		NewTokenChannel: getEnv("NEW_PUMP_TOKEN_CHANNEL", "new_pump_token"),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN:   os.Getenv("CLICKHOUSE_DSN"),
		Commitment:      getEnv("COMMITMENT", "confirmed"),
		MetricsAddr:     getEnv("METRICS_ADDR", ":9090"),
	}

	var err error
	if cfg.QueueSize, err = getEnvInt("QUEUE_SIZE", 1024); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts, err = getEnvInt("RECONNECT_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.BaseDelay, err = getEnvDuration("RECONNECT_BASE_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxDelay, err = getEnvDuration("RECONNECT_MAX_DELAY", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.LookupTimeout, err = getEnvDuration("LOOKUP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	watch := getEnv("WATCH_ADDRESSES", domain.PumpFunProgramID)
	for _, addr := range strings.Split(watch, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			cfg.WatchAddresses = append(cfg.WatchAddresses, addr)
		}
	}

	if cfg.GeyserEndpoint == "" {
		return nil, fmt.Errorf("GEYSER_ENDPOINT is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
