package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all the configuration for our application
// The structure tags (mapstructure) tell Viper which YAML field maps to which Go struct field.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Listing   ListingConfig   `mapstructure:"listing"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// ProxyConfig addresses the single upstream API.
type ProxyConfig struct {
	Target string `mapstructure:"target"`
	Key    string `mapstructure:"key"`
}

type AuthConfig struct {
	Token string `mapstructure:"token"`
}

// CaptureConfig bounds what is kept from each body.
type CaptureConfig struct {
	MaxBytes    int  `mapstructure:"max_bytes"`
	LogResponse bool `mapstructure:"log_response"`
	CountTokens bool `mapstructure:"count_tokens"`
}

type ListingConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

type StorageConfig struct {
	Backend       string `mapstructure:"backend"` // "sqlite", "redis" or "memory"
	SQLitePath    string `mapstructure:"sqlite_path"`
	RetentionDays int    `mapstructure:"retention_days"`
	PruneSchedule string `mapstructure:"prune_schedule"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"requests_per_second"`
	Burst   int     `mapstructure:"burst"`
}

type BreakerConfig struct {
	Enabled             bool `mapstructure:"enabled"`
	ConsecutiveFailures int  `mapstructure:"consecutive_failures"`
	OpenSeconds         int  `mapstructure:"open_seconds"`
}

// Source hands out the current configuration.
type Source interface {
	Get() *Config
}

// Store wraps configuration with thread-safe access and hot-reload updates.
type Store struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewStore returns a Store pinned to cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.set(cfg)
	return s
}

func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil
	}
	cpy := *s.cfg
	return &cpy
}

func (s *Store) set(cfg *Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// LoadAndWatch loads the config and watches for on-disk changes.
func LoadAndWatch() (*Store, error) {
	return LoadAndWatchFrom("./configs")
}

// LoadAndWatchFrom reads config.yaml from dir when present, layers the
// environment on top and reloads whenever the file changes.
func LoadAndWatchFrom(dir string) (*Store, error) {
	v := newViper(dir)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	store := &Store{}
	if err := refresh(v, store); err != nil {
		return nil, err
	}

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			if err := refresh(v, store); err != nil {
				log.Printf("[CONFIG] reload failed: %v", err)
			} else {
				log.Printf("[CONFIG] reloaded from %s", e.Name)
			}
		})
	}

	return store, nil
}

// Load preserves the old API: it loads once and does not watch.
func Load() (*Config, error) {
	return LoadFrom("./configs")
}

// LoadFrom loads once from dir without watching.
func LoadFrom(dir string) (*Config, error) {
	v := newViper(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	store := &Store{}
	if err := refresh(v, store); err != nil {
		return nil, err
	}
	return store.Get(), nil
}

func newViper(dir string) *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)
	bindEnv(v)
	return v
}

func refresh(v *viper.Viper, store *Store) error {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return err
	}
	normalize(&cfg)
	store.set(&cfg)
	return nil
}

// EnvFile is where relay-admin writes generated secrets.
const EnvFile = ".env"

// LoadEnvFile exports the variables in the dotenv file at path into the
// process environment. Variables that are already set win; a missing file
// is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
