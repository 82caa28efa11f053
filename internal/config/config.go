package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type DSE struct {
	Enabled              bool   `json:"enabled"`
	APIKey               string `json:"api_key"`
	BaseURL              string `json:"base_url"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute"`
	MaxConcurrency       int    `json:"max_concurrency"`
	MinDelayMs           int    `json:"min_delay_ms"`
}

type Metalprice struct {
	Enabled              bool   `json:"enabled"`
	APIKey               string `json:"api_key"`
	BaseURL              string `json:"base_url"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute"`
	MaxConcurrency       int    `json:"max_concurrency"`
	MinDelayMs           int    `json:"min_delay_ms"`
	RateTTLSec           int    `json:"rate_ttl_sec"`
}

type Config struct {
	Server     Server     `json:"server"`
	DSE        DSE        `json:"dse"`
	Metalprice Metalprice `json:"metalprice"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 30},
		DSE: DSE{
			Enabled:              true,
			BaseURL:              "",
			MaxRequestsPerMinute: 120,
			MaxConcurrency:       5,
			MinDelayMs:           100,
		},
		Metalprice: Metalprice{
			Enabled:              false,
			MaxRequestsPerMinute: 60,
			MaxConcurrency:       2,
			MinDelayMs:           250,
			RateTTLSec:           60,
		},
	}
}

// Load reads JSON config from path. If path is empty or file does not exist,
// it returns defaults. Environment variables override select fields for secrecy.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Server.RequestTimeoutSec = x
		}
	}

	if v := os.Getenv("DSE_ENABLED"); v != "" {
		cfg.DSE.Enabled = parseBool(v, cfg.DSE.Enabled)
	}
	if v := os.Getenv("DSE_API_KEY"); v != "" {
		cfg.DSE.APIKey = v
	}
	if v := os.Getenv("DSE_API_URL"); v != "" {
		cfg.DSE.BaseURL = v
	}
	if v := os.Getenv("DSE_MAX_RPM"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.DSE.MaxRequestsPerMinute = x
		}
	}
	if v := os.Getenv("DSE_MAX_CONCURRENCY"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.DSE.MaxConcurrency = x
		}
	}
	if v := os.Getenv("DSE_MIN_DELAY_MS"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.DSE.MinDelayMs = x
		}
	}

	if v := os.Getenv("METALPRICE_ENABLED"); v != "" {
		cfg.Metalprice.Enabled = parseBool(v, cfg.Metalprice.Enabled)
	}
	if v := os.Getenv("METALPRICE_API_KEY"); v != "" {
		cfg.Metalprice.APIKey = v
	}
	if v := os.Getenv("METALPRICE_API_URL"); v != "" {
		cfg.Metalprice.BaseURL = v
	}
	if v := os.Getenv("METALPRICE_MAX_RPM"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.Metalprice.MaxRequestsPerMinute = x
		}
	}
	if v := os.Getenv("METALPRICE_MAX_CONCURRENCY"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Metalprice.MaxConcurrency = x
		}
	}
	if v := os.Getenv("METALPRICE_MIN_DELAY_MS"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x >= 0 {
			cfg.Metalprice.MinDelayMs = x
		}
	}
	if v := os.Getenv("METALPRICE_RATE_TTL_SEC"); v != "" {
		var x int
		fmt.Sscanf(v, "%d", &x)
		if x > 0 {
			cfg.Metalprice.RateTTLSec = x
		}
	}
}

func parseBool(v string, def bool) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return def
}
