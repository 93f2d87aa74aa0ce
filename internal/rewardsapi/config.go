package rewardsapi

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr    = ":9090"
	defaultDatabaseURL   = "sqlite:///tmp/rewards.db"
	defaultCatalogPath   = "catalog.yaml"
	defaultAllowedOrigin = "http://localhost:8000"
	defaultTimezone      = "UTC"
	walletHistoryLimit   = 10
)

// Config aggregates runtime settings for the rewards API.
type Config struct {
	ListenAddr     string
	DatabaseURL    string
	CatalogPath    string
	AllowedOrigins []string
	Timezone       string
	RandomSeed     int64
}

// Validate fills in defaults and ensures the configuration contains
// sane values. The reference timezone must resolve to a real location.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.CatalogPath = defaultIfEmpty(cfg.CatalogPath, defaultCatalogPath)
	cfg.Timezone = defaultIfEmpty(cfg.Timezone, defaultTimezone)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

// Location resolves the configured reference timezone.
func (cfg *Config) Location() (*time.Location, error) {
	return time.LoadLocation(cfg.Timezone)
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

// WalletHistoryLimit returns how many ledger entries are fetched for the UI.
func WalletHistoryLimit() int {
	return walletHistoryLimit
}
