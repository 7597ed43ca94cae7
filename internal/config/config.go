// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbd888/riskmesh/internal/validation"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"
	LogFile   string // optional rotating file sink

	// Database (optional, in-memory stores when empty)
	DatabaseURL string

	// Payout chain. Without PayoutPrivateKey claims are recorded, not broadcast.
	RPCURL           string
	ChainID          int64
	PayoutPrivateKey string
	// How long a claim waits for its receipt. Zero returns once broadcast.
	PayoutConfirmTimeout time.Duration

	// Security
	AdminSecret    string
	APIKeyTTL      time.Duration // zero: issued keys never expire
	RateLimitRPM   int
	RateLimitBurst int

	// Seed capability grants (lower-case hex addresses)
	AdminAddresses         []string
	AssessorAddresses      []string
	OracleManagerAddresses []string
	OperatorAddresses      []string
	VerifierAddresses      []string

	OTLPEndpoint string

	StalenessWindow time.Duration
	ResultValidity  time.Duration
}

const (
	DefaultRPCURL          = "https://sepolia.base.org"
	DefaultChainID         = 84532 // Base Sepolia
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultRateLimitRPM    = 600
	DefaultRateLimitBurst  = 50
	DefaultStalenessWindow = time.Hour
	DefaultResultValidity  = 30 * time.Minute

	DefaultPayoutConfirmTimeout = 30 * time.Second
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", DefaultPort),
		Env:                    getEnv("ENV", DefaultEnv),
		LogLevel:               getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:              getEnv("LOG_FORMAT", DefaultLogFormat),
		LogFile:                os.Getenv("LOG_FILE"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RPCURL:                 getEnv("RPC_URL", DefaultRPCURL),
		ChainID:                getEnvInt64("CHAIN_ID", DefaultChainID),
		PayoutPrivateKey:       os.Getenv("PAYOUT_PRIVATE_KEY"),
		AdminSecret:            os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:           int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		RateLimitBurst:         int(getEnvInt64("RATE_LIMIT_BURST", DefaultRateLimitBurst)),
		AdminAddresses:         getEnvList("ADMIN_ADDRESSES"),
		AssessorAddresses:      getEnvList("ASSESSOR_ADDRESSES"),
		OracleManagerAddresses: getEnvList("ORACLE_MANAGER_ADDRESSES"),
		OperatorAddresses:      getEnvList("OPERATOR_ADDRESSES"),
		VerifierAddresses:      getEnvList("VERIFIER_ADDRESSES"),
		OTLPEndpoint:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	var err error
	if cfg.StalenessWindow, err = getEnvDuration("STALENESS_WINDOW", DefaultStalenessWindow); err != nil {
		return nil, err
	}
	if cfg.ResultValidity, err = getEnvDuration("RESULT_VALIDITY", DefaultResultValidity); err != nil {
		return nil, err
	}
	if cfg.APIKeyTTL, err = getEnvDuration("API_KEY_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.PayoutConfirmTimeout, err = getEnvDuration("PAYOUT_CONFIRM_TIMEOUT", DefaultPayoutConfirmTimeout); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that configuration values are well formed
func (c *Config) Validate() error {
	if c.PayoutPrivateKey != "" {
		key := strings.TrimPrefix(c.PayoutPrivateKey, "0x")
		if len(key) != 64 {
			return fmt.Errorf("PAYOUT_PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
		}
		if c.RPCURL == "" {
			return fmt.Errorf("RPC_URL is required when PAYOUT_PRIVATE_KEY is set")
		}
		if c.ChainID <= 0 {
			return fmt.Errorf("CHAIN_ID must be positive")
		}
	}

	for env, addrs := range map[string][]string{
		"ADMIN_ADDRESSES":          c.AdminAddresses,
		"ASSESSOR_ADDRESSES":       c.AssessorAddresses,
		"ORACLE_MANAGER_ADDRESSES": c.OracleManagerAddresses,
		"OPERATOR_ADDRESSES":       c.OperatorAddresses,
		"VERIFIER_ADDRESSES":       c.VerifierAddresses,
	} {
		for _, a := range addrs {
			if !validation.IsValidEthAddress(a) {
				return fmt.Errorf("%s: invalid address %q", env, a)
			}
		}
	}

	if c.StalenessWindow <= 0 {
		return fmt.Errorf("STALENESS_WINDOW must be positive")
	}
	if c.ResultValidity <= 0 {
		return fmt.Errorf("RESULT_VALIDITY must be positive")
	}
	if c.APIKeyTTL < 0 {
		return fmt.Errorf("API_KEY_TTL must not be negative")
	}
	if c.PayoutConfirmTimeout < 0 {
		return fmt.Errorf("PAYOUT_CONFIRM_TIMEOUT must not be negative")
	}
	if c.RateLimitRPM <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// PayoutsEnabled reports whether claims are broadcast on chain.
func (c *Config) PayoutsEnabled() bool {
	return c.PayoutPrivateKey != ""
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// getEnvList splits a comma-separated list, trimming and lower-casing entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
