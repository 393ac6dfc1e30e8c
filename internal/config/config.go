// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr         string
	DBPath             string
	SecretKey          []byte
	JWTSecret          []byte
	PolicyPath         string
	ProviderTimeout    time.Duration
	ResetSchedule      string
	QuotaRetentionDays int
}

// Load reads configuration from environment variables and returns a validated
// Config. AIBROKER_SECRET_KEY (64 hex characters) and AIBROKER_JWT_SECRET are
// required; the process refuses to start without them. Optional variables with
// defaults: AIBROKER_LISTEN_ADDR (127.0.0.1:8080), AIBROKER_DB_PATH
// (aibroker.db), AIBROKER_PROVIDER_TIMEOUT (30s), AIBROKER_RESET_SCHEDULE
// (0 0 * * *), AIBROKER_QUOTA_RETENTION_DAYS (30), AIBROKER_POLICY_PATH (none).
func Load() (*Config, error) {
	rawKey := os.Getenv("AIBROKER_SECRET_KEY")
	if rawKey == "" {
		return nil, fmt.Errorf("AIBROKER_SECRET_KEY is required")
	}
	secretKey, err := hex.DecodeString(rawKey)
	if err != nil {
		return nil, fmt.Errorf("AIBROKER_SECRET_KEY is not valid hex: %w", err)
	}
	if len(secretKey) != 32 {
		return nil, fmt.Errorf("AIBROKER_SECRET_KEY must decode to 32 bytes, got %d", len(secretKey))
	}

	jwtSecret := os.Getenv("AIBROKER_JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("AIBROKER_JWT_SECRET is required")
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("AIBROKER_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "aibroker.db"
	if v, ok := os.LookupEnv("AIBROKER_DB_PATH"); ok {
		dbPath = v
	}

	providerTimeout := 30 * time.Second
	if v, ok := os.LookupEnv("AIBROKER_PROVIDER_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("AIBROKER_PROVIDER_TIMEOUT has invalid duration %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("AIBROKER_PROVIDER_TIMEOUT must be positive, got %q", v)
		}
		providerTimeout = parsed
	}

	resetSchedule := "0 0 * * *"
	if v, ok := os.LookupEnv("AIBROKER_RESET_SCHEDULE"); ok {
		resetSchedule = v
	}

	retentionDays := 30
	if v, ok := os.LookupEnv("AIBROKER_QUOTA_RETENTION_DAYS"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("AIBROKER_QUOTA_RETENTION_DAYS must be a positive integer, got %q", v)
		}
		retentionDays = parsed
	}

	return &Config{
		ListenAddr:         listenAddr,
		DBPath:             dbPath,
		SecretKey:          secretKey,
		JWTSecret:          []byte(jwtSecret),
		PolicyPath:         os.Getenv("AIBROKER_POLICY_PATH"),
		ProviderTimeout:    providerTimeout,
		ResetSchedule:      resetSchedule,
		QuotaRetentionDays: retentionDays,
	}, nil
}
