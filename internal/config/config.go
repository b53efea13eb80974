// Package config loads relay sets, timeouts and service endpoints from a
// JSON or YAML file, a .env file and the environment, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"nostr-universe/internal/cache"
	"nostr-universe/internal/nostr"
	"nostr-universe/internal/relay"
	"nostr-universe/internal/wallet"
)

// DefaultPath is used when neither the caller nor UNIVERSE_CONFIG names a file.
const DefaultPath = "config/universe.json"

// Config is the resolved client configuration. Slices in the environment
// are separated by semicolons, durations use time.ParseDuration syntax.
type Config struct {
	ReadRelays     []string      `env:"UNIVERSE_READ_RELAYS"`
	SearchRelays   []string      `env:"UNIVERSE_SEARCH_RELAYS"`
	FetchTimeout   time.Duration `env:"UNIVERSE_FETCH_TIMEOUT"`
	EOSETimeout    time.Duration `env:"UNIVERSE_EOSE_TIMEOUT"`
	PaymentTimeout time.Duration `env:"UNIVERSE_PAYMENT_TIMEOUT"`
	ReqPerSecond   float64       `env:"UNIVERSE_REQ_PER_SECOND"`
	RedisURL       string        `env:"REDIS_URL"`
	WalletURI      string        `env:"NWC_URI"`
	LogLevel       string        `env:"LOG_LEVEL"`
	MetricsAddr    string        `env:"METRICS_ADDR"`
}

// fileConfig is the on-disk shape. Durations are strings such as "8s".
type fileConfig struct {
	ReadRelays     []string `json:"readRelays" yaml:"readRelays"`
	SearchRelays   []string `json:"searchRelays" yaml:"searchRelays"`
	FetchTimeout   string   `json:"fetchTimeout" yaml:"fetchTimeout"`
	EOSETimeout    string   `json:"eoseTimeout" yaml:"eoseTimeout"`
	PaymentTimeout string   `json:"paymentTimeout" yaml:"paymentTimeout"`
	ReqPerSecond   *float64 `json:"reqPerSecond" yaml:"reqPerSecond"`
	RedisURL       string   `json:"redisUrl" yaml:"redisUrl"`
	WalletURI      string   `json:"walletUri" yaml:"walletUri"`
	LogLevel       string   `json:"logLevel" yaml:"logLevel"`
	MetricsAddr    string   `json:"metricsAddr" yaml:"metricsAddr"`
}

// Default returns the built-in relay sets and timeouts.
func Default() *Config {
	pool := relay.DefaultPoolConfig()
	fetch := relay.DefaultFetcherConfig()
	return &Config{
		ReadRelays:     fetch.ReadRelays,
		SearchRelays:   fetch.SearchRelays,
		FetchTimeout:   pool.FetchTimeout,
		EOSETimeout:    pool.EOSETimeout,
		PaymentTimeout: wallet.PaymentTimeout,
		ReqPerSecond:   pool.ReqPerSecond,
		LogLevel:       "info",
		MetricsAddr:    ":9090",
	}
}

// Load builds a Config from defaults, the file at path, a .env file in the
// working directory and the process environment. An empty path falls back
// to UNIVERSE_CONFIG, then DefaultPath. A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not read .env", "error", err)
	}

	if path == "" {
		path = os.Getenv("UNIVERSE_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()
	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("loaded configuration",
		"path", path,
		"read", len(cfg.ReadRelays),
		"search", len(cfg.SearchRelays),
		"redis", cfg.RedisURL != "",
		"wallet", cfg.WalletURI != "")
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("config file not found, using defaults", "path", path)
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if len(fc.ReadRelays) > 0 {
		c.ReadRelays = fc.ReadRelays
	}
	if len(fc.SearchRelays) > 0 {
		c.SearchRelays = fc.SearchRelays
	}
	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"fetchTimeout", fc.FetchTimeout, &c.FetchTimeout},
		{"eoseTimeout", fc.EOSETimeout, &c.EOSETimeout},
		{"paymentTimeout", fc.PaymentTimeout, &c.PaymentTimeout},
	} {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.name, err)
		}
		*d.dst = v
	}
	if fc.ReqPerSecond != nil {
		c.ReqPerSecond = *fc.ReqPerSecond
	}
	setIfNotEmpty(&c.RedisURL, fc.RedisURL)
	setIfNotEmpty(&c.WalletURI, fc.WalletURI)
	setIfNotEmpty(&c.LogLevel, fc.LogLevel)
	setIfNotEmpty(&c.MetricsAddr, fc.MetricsAddr)
	return nil
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func normalizeRelays(relays []string) ([]string, error) {
	for _, r := range relays {
		if nostr.NormalizeRelayURL(r) == "" {
			return nil, fmt.Errorf("config: relay %q is not a websocket url", r)
		}
	}
	return nostr.NormalizeRelayURLs(relays), nil
}

// Validate rejects configurations the client cannot run with and
// normalizes relay urls.
func (c *Config) Validate() error {
	if len(c.ReadRelays) == 0 {
		return errors.New("config: no read relays")
	}
	if len(c.SearchRelays) == 0 {
		return errors.New("config: no search relays")
	}
	var err error
	if c.ReadRelays, err = normalizeRelays(c.ReadRelays); err != nil {
		return err
	}
	if c.SearchRelays, err = normalizeRelays(c.SearchRelays); err != nil {
		return err
	}
	if c.FetchTimeout <= 0 || c.EOSETimeout <= 0 || c.PaymentTimeout <= 0 {
		return errors.New("config: timeouts must be positive")
	}
	return nil
}

func (c *Config) PoolConfig() relay.PoolConfig {
	pc := relay.DefaultPoolConfig()
	pc.FetchTimeout = c.FetchTimeout
	pc.EOSETimeout = c.EOSETimeout
	pc.ReqPerSecond = c.ReqPerSecond
	return pc
}

func (c *Config) FetcherConfig() relay.FetcherConfig {
	fc := relay.DefaultFetcherConfig()
	fc.ReadRelays = c.ReadRelays
	fc.SearchRelays = c.SearchRelays
	return fc
}

func (c *Config) CacheConfig() cache.CacheConfig {
	return cache.DefaultCacheConfig()
}
