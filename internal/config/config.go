// Package config loads facilitator configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Facilitator modes.
const (
	ModeManaged       = "managed"
	ModeDecentralized = "decentralized"
)

// rpcEnvVars maps network slugs to their RPC URL environment variables.
var rpcEnvVars = map[string]string{
	"base-sepolia":       "BASE_SEPOLIA_RPC_URL",
	"ethereum-sepolia":   "ETHEREUM_SEPOLIA_RPC_URL",
	"base":               "BASE_MAINNET_RPC_URL",
	"ethereum":           "ETHEREUM_MAINNET_RPC_URL",
	"0g-mainnet":         "ZG_MAINNET_RPC_URL",
	"0g-testnet":         "ZG_TESTNET_RPC_URL",
	"skale-base-sepolia": "SKALE_BASE_SEPOLIA_RPC_URL",
}

// Config is the process-wide configuration, read once at startup.
type Config struct {
	Port         int
	LogLevel     slog.Level
	Mode         string
	DefaultChain string

	PrivateKey      string // facilitator signing key; empty allows verify-only operation
	TreasuryAddress string // fee recipient for the relayer strategy

	RPCURLs map[string]string // network slug -> RPC URL override

	StorePath      string // sqlite path for the transaction store; empty disables persistence
	IdempotencyTTL time.Duration

	RateLimitMax    int
	RateLimitWindow time.Duration

	ChaosChainEnabled bool
	ChaosChainAPIURL  string
}

// FromEnv reads configuration from the environment, applying defaults.
// Validation failures name the offending variable.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:         8402,
		LogLevel:     slog.LevelInfo,
		Mode:         ModeManaged,
		DefaultChain: "base-sepolia",
		RPCURLs:      make(map[string]string),

		PrivateKey:      os.Getenv("FACILITATOR_PRIVATE_KEY"),
		TreasuryAddress: os.Getenv("TREASURY_ADDRESS"),
		StorePath:       os.Getenv("TRANSACTION_STORE_PATH"),
		IdempotencyTTL:  5 * time.Minute,
		RateLimitMax:    60,
		RateLimitWindow: time.Minute,

		ChaosChainAPIURL: os.Getenv("CHAOSCHAIN_API_URL"),
	}

	if port := os.Getenv("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return nil, fmt.Errorf("invalid PORT: %q", port)
		}
		cfg.Port = n
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		parsed, err := parseLogLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = parsed
	}

	if mode := os.Getenv("FACILITATOR_MODE"); mode != "" {
		if mode != ModeManaged && mode != ModeDecentralized {
			return nil, fmt.Errorf("invalid FACILITATOR_MODE: %q (expected %s or %s)", mode, ModeManaged, ModeDecentralized)
		}
		cfg.Mode = mode
	}

	if chain := os.Getenv("DEFAULT_CHAIN"); chain != "" {
		cfg.DefaultChain = chain
	}

	for slug, envVar := range rpcEnvVars {
		if url := os.Getenv(envVar); url != "" {
			cfg.RPCURLs[slug] = url
		}
	}

	if ttl := os.Getenv("IDEMPOTENCY_TTL_SECONDS"); ttl != "" {
		n, err := strconv.Atoi(ttl)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid IDEMPOTENCY_TTL_SECONDS: %q", ttl)
		}
		cfg.IdempotencyTTL = time.Duration(n) * time.Second
	}

	if max := os.Getenv("RATE_LIMIT_MAX_REQUESTS"); max != "" {
		n, err := strconv.Atoi(max)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_MAX_REQUESTS: %q", max)
		}
		cfg.RateLimitMax = n
	}

	if window := os.Getenv("RATE_LIMIT_WINDOW_SECONDS"); window != "" {
		n, err := strconv.Atoi(window)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW_SECONDS: %q", window)
		}
		cfg.RateLimitWindow = time.Duration(n) * time.Second
	}

	if enabled := os.Getenv("CHAOSCHAIN_ENABLED"); enabled != "" {
		parsed, err := strconv.ParseBool(enabled)
		if err != nil {
			return nil, fmt.Errorf("invalid CHAOSCHAIN_ENABLED: %q", enabled)
		}
		cfg.ChaosChainEnabled = parsed
	}

	return cfg, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid LOG_LEVEL: %q (expected debug, info, warn or error)", level)
	}
}
