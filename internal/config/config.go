// Package config loads the staking daemon's runtime configuration: the
// frequently-changed settings from environment variables (grounded on
// services/escrow-gateway/config.go's LoadConfigFromEnv), and the
// less-frequently-changed pool/term/reward defaults from a static TOML file
// (grounded on config/config.go's BurntSushi/toml usage).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config captures runtime configuration for the staking daemon.
type Config struct {
	ListenAddress string
	Environment   string

	DatabasePath string
	IndexDBPath  string

	LedgerNodeURL      string
	LedgerAuthToken    string
	PayCenterURL       string
	PayCenterAuthToken string
	PayCenterAccount   string

	CanisterID string

	BadgeGatewayURL   string
	BadgeGatewayToken string

	NeuronGatewayURL   string
	NeuronGatewayToken string
	RewardTxTag        uint8

	JWTSigningKey string

	OTLPEndpoint string
	OTLPInsecure bool
	OTLPHeaders  map[string]string

	LogFilePath   string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	BadgeQueueWorkers int

	StaticDefaultsPath string
	StaticDefaults     StaticDefaults
}

// StaticDefaults holds the TOML-sourced pool/term/reward defaults that
// LoadFromEnv loads into Config. Pool creation does not read them, and the
// scheduler does not read SchedulerIntervalSeconds.
type StaticDefaults struct {
	DefaultMinTermDays         int64   `toml:"DefaultMinTermDays"`
	DefaultMaxTermDays         int64   `toml:"DefaultMaxTermDays"`
	DefaultMinEarlyUnstakeDays int64   `toml:"DefaultMinEarlyUnstakeDays"`
	DefaultDailyRateE8s        int64   `toml:"DefaultDailyRateE8s"`
	DefaultRewardCrypto        string  `toml:"DefaultRewardCrypto"`
	SchedulerIntervalSeconds   int64  `toml:"SchedulerIntervalSeconds"`
}

// LoadFromEnv builds a Config using environment variables, falling back to
// sane defaults the way LoadConfigFromEnv does for escrow-gateway.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		ListenAddress:      getenvDefault("STAKING_LISTEN", ":8090"),
		Environment:        strings.TrimSpace(os.Getenv("STAKING_ENV")),
		DatabasePath:       getenvDefault("STAKING_DB_PATH", "staking-entities.sqlite"),
		IndexDBPath:        getenvDefault("STAKING_INDEX_PATH", "staking-index"),
		LedgerNodeURL:      os.Getenv("STAKING_LEDGER_URL"),
		LedgerAuthToken:    os.Getenv("STAKING_LEDGER_TOKEN"),
		PayCenterURL:       os.Getenv("STAKING_PAYCENTER_URL"),
		PayCenterAuthToken: os.Getenv("STAKING_PAYCENTER_TOKEN"),
		PayCenterAccount:   os.Getenv("STAKING_PAYCENTER_ACCOUNT"),
		CanisterID:         getenvDefault("STAKING_CANISTER_ID", "staking-engine"),
		BadgeGatewayURL:    os.Getenv("STAKING_BADGE_URL"),
		BadgeGatewayToken:  os.Getenv("STAKING_BADGE_TOKEN"),
		NeuronGatewayURL:   os.Getenv("STAKING_NEURON_URL"),
		NeuronGatewayToken: os.Getenv("STAKING_NEURON_TOKEN"),
		RewardTxTag:        3,
		JWTSigningKey:      os.Getenv("STAKING_JWT_SIGNING_KEY"),
		OTLPEndpoint:       strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTLPInsecure:       true,
		LogFilePath:        os.Getenv("STAKING_LOG_FILE"),
		LogMaxSizeMB:        100,
		LogMaxBackups:       7,
		LogMaxAgeDays:       28,
		BadgeQueueWorkers:   2,
		StaticDefaultsPath: getenvDefault("STAKING_STATIC_DEFAULTS", "staking-defaults.toml"),
	}

	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.OTLPInsecure = parsed
		}
	}
	cfg.OTLPHeaders = parseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))

	if cfg.LedgerNodeURL == "" {
		return Config{}, errors.New("STAKING_LEDGER_URL is required")
	}
	if cfg.PayCenterURL == "" {
		return Config{}, errors.New("STAKING_PAYCENTER_URL is required")
	}
	if cfg.PayCenterAccount == "" {
		return Config{}, errors.New("STAKING_PAYCENTER_ACCOUNT is required")
	}
	if cfg.JWTSigningKey == "" {
		return Config{}, errors.New("STAKING_JWT_SIGNING_KEY is required")
	}

	if raw := strings.TrimSpace(os.Getenv("STAKING_BADGE_WORKERS")); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse STAKING_BADGE_WORKERS: %w", err)
		}
		if val <= 0 {
			return Config{}, errors.New("STAKING_BADGE_WORKERS must be positive")
		}
		cfg.BadgeQueueWorkers = val
	}

	defaults, err := loadStaticDefaults(cfg.StaticDefaultsPath)
	if err != nil {
		return Config{}, fmt.Errorf("load static defaults: %w", err)
	}
	cfg.StaticDefaults = defaults

	return cfg, nil
}

func loadStaticDefaults(path string) (StaticDefaults, error) {
	defaults := StaticDefaults{
		DefaultMinTermDays:         30,
		DefaultMaxTermDays:         365,
		DefaultMinEarlyUnstakeDays: 7,
		DefaultDailyRateE8s:        27_397,
		DefaultRewardCrypto:        "ICP",
		SchedulerIntervalSeconds:   60,
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, createErr := os.Create(path)
		if createErr != nil {
			return StaticDefaults{}, createErr
		}
		defer f.Close()
		if err := toml.NewEncoder(f).Encode(defaults); err != nil {
			return StaticDefaults{}, err
		}
		return defaults, nil
	}
	if _, err := toml.DecodeFile(path, &defaults); err != nil {
		return StaticDefaults{}, err
	}
	return defaults, nil
}

func getenvDefault(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// parseOTLPHeaders mirrors telemetry.ParseHeaders: it splits a
// comma-separated key=value list into a map, skipping (not rejecting) pairs
// without '=' or with an empty key. Its result is the header map
// cmd/stakingd hands to the telemetry exporter.
func parseOTLPHeaders(raw string) map[string]string {
	headers := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(pair)
		if trimmed == "" {
			continue
		}
		key, value, found := strings.Cut(trimmed, "=")
		if !found {
			continue
		}
		if key = strings.TrimSpace(key); key != "" {
			headers[key] = strings.TrimSpace(value)
		}
	}
	return headers
}

// RewardConfigOverridesFromEnv parses the JSON-array env var carrying
// per-pool reward-config overrides, mirroring escrow-gateway's
// ESCROW_GATEWAY_API_KEYS JSON-array convention.
func RewardConfigOverridesFromEnv() ([]RewardConfigOverride, error) {
	raw := strings.TrimSpace(os.Getenv("STAKING_REWARD_OVERRIDES"))
	if raw == "" {
		return nil, nil
	}
	var overrides []RewardConfigOverride
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		return nil, fmt.Errorf("parse STAKING_REWARD_OVERRIDES: %w", err)
	}
	return overrides, nil
}

// RewardConfigOverride is one pool's reward-configuration override as parsed
// from STAKING_REWARD_OVERRIDES. cmd/stakingd does not apply these overrides.
type RewardConfigOverride struct {
	PoolID       uint64 `json:"pool_id"`
	DailyRateE8s int64  `json:"daily_rate_e8s"`
	RewardCrypto string `json:"reward_crypto"`
	MinDays      int64  `json:"min_days"`
	MaxDays      int64  `json:"max_days"`
}
