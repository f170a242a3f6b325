package config

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultPort          = ":8000"
	DefaultTarget        = "https://wolfholo-gcli.zeabur.app"
	DefaultMaxBytes      = 32768
	DefaultListLimit     = 50
	DefaultMaxListLimit  = 200
	DefaultSQLitePath    = "data/auditrelay.db"
	DefaultRetentionDays = 30
	DefaultPruneSchedule = "0 3 * * *"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server::port", DefaultPort)
	v.SetDefault("proxy::target", DefaultTarget)
	v.SetDefault("proxy::key", "")
	v.SetDefault("auth::token", "")
	v.SetDefault("capture::max_bytes", DefaultMaxBytes)
	v.SetDefault("capture::log_response", true)
	v.SetDefault("capture::count_tokens", false)
	v.SetDefault("listing::default_limit", DefaultListLimit)
	v.SetDefault("listing::max_limit", DefaultMaxListLimit)
	v.SetDefault("storage::backend", "sqlite")
	v.SetDefault("storage::sqlite_path", DefaultSQLitePath)
	v.SetDefault("storage::retention_days", DefaultRetentionDays)
	v.SetDefault("storage::prune_schedule", DefaultPruneSchedule)
	v.SetDefault("redis::address", "localhost:6379")
	v.SetDefault("redis::password", "")
	v.SetDefault("redis::db", 0)
	v.SetDefault("ratelimit::enabled", false)
	v.SetDefault("ratelimit::requests_per_second", 10)
	v.SetDefault("ratelimit::burst", 20)
	v.SetDefault("breaker::enabled", false)
	v.SetDefault("breaker::consecutive_failures", 5)
	v.SetDefault("breaker::open_seconds", 30)
}

// Environment variables win over the config file.
var envBindings = map[string]string{
	"server::port":                   "PORT",
	"proxy::target":                  "UPSTREAM_BASE_URL",
	"proxy::key":                     "UPSTREAM_KEY",
	"auth::token":                    "PROXY_TOKEN",
	"capture::max_bytes":             "MAX_LOG_BYTES",
	"capture::log_response":          "LOG_RESPONSE",
	"capture::count_tokens":          "COUNT_TOKENS",
	"listing::default_limit":         "LIST_DEFAULT_LIMIT",
	"listing::max_limit":             "LIST_MAX_LIMIT",
	"storage::backend":               "STORAGE_BACKEND",
	"storage::sqlite_path":           "SQLITE_PATH",
	"storage::retention_days":        "RETENTION_DAYS",
	"storage::prune_schedule":        "PRUNE_SCHEDULE",
	"redis::address":                 "REDIS_ADDR",
	"redis::password":                "REDIS_PASSWORD",
	"redis::db":                      "REDIS_DB",
	"ratelimit::enabled":             "RATE_LIMIT_ENABLED",
	"ratelimit::requests_per_second": "RATE_LIMIT_RPS",
	"ratelimit::burst":               "RATE_LIMIT_BURST",
	"breaker::enabled":               "BREAKER_ENABLED",
	"breaker::consecutive_failures":  "BREAKER_FAILURES",
	"breaker::open_seconds":          "BREAKER_OPEN_SECONDS",
}

func bindEnv(v *viper.Viper) {
	for key, env := range envBindings {
		// BindEnv only errors when called without a key.
		_ = v.BindEnv(key, env)
	}
}

func normalize(cfg *Config) {
	cfg.Proxy.Target = strings.TrimRight(strings.TrimSpace(cfg.Proxy.Target), "/")
	if cfg.Proxy.Target == "" {
		cfg.Proxy.Target = DefaultTarget
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = DefaultPort
	} else if !strings.Contains(cfg.Server.Port, ":") {
		cfg.Server.Port = ":" + cfg.Server.Port
	}
	if cfg.Capture.MaxBytes < 0 {
		cfg.Capture.MaxBytes = 0
	}
	if cfg.Listing.MaxLimit < 1 {
		cfg.Listing.MaxLimit = DefaultMaxListLimit
	}
	if cfg.Listing.DefaultLimit < 1 {
		cfg.Listing.DefaultLimit = DefaultListLimit
	}
	cfg.Listing.DefaultLimit = min(cfg.Listing.DefaultLimit, cfg.Listing.MaxLimit)
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
}
