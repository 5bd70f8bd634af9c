package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// DefaultConfigFile is read when PRICECHECK_CONFIG is not set
const DefaultConfigFile = "config.toml"

// Config is the server configuration. Values come from DefaultConfig, then an
// optional TOML file, then environment variables (a .env file is loaded first).
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Trade    TradeConfig    `toml:"trade"`
	Scout    ScoutConfig    `toml:"scout"`
	Search   SearchConfig   `toml:"search"`
	Tiers    TiersConfig    `toml:"tiers"`
	History  HistoryConfig  `toml:"history"`
	App      AppConfig      `toml:"app"`
}

type ServerConfig struct {
	Port        string   `toml:"port"`
	AdminKey    string   `toml:"admin_key"`    // empty leaves admin endpoints open
	CORSOrigins []string `toml:"cors_origins"` // empty allows all origins
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type TradeConfig struct {
	BaseURL        string `toml:"base_url"`
	League         string `toml:"league"`
	POESESSID      string `toml:"poesessid"`
	OnlineOnly     bool   `toml:"online_only"`
	Timeout        string `toml:"timeout"`         // e.g. "15s"
	SearchInterval string `toml:"search_interval"` // minimum gap between searches
	FetchInterval  string `toml:"fetch_interval"`  // minimum gap between fetches
}

type ScoutConfig struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
}

type SearchConfig struct {
	MinListings int    `toml:"min_listings"`
	MaxRetries  int    `toml:"max_retries"`
	CacheSize   int    `toml:"cache_size"` // 0 disables the search cache
	CacheTTL    string `toml:"cache_ttl"`
}

type TiersConfig struct {
	CatalogPath string `toml:"catalog_path"`
	Watch       bool   `toml:"watch"`
}

type HistoryConfig struct {
	IconDir   string `toml:"icon_dir"`
	Retention string `toml:"retention"` // e.g. "720h"
	MaxScans  int    `toml:"max_scans"`
}

type AppConfig struct {
	Debug bool `toml:"debug"`
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Database: DatabaseConfig{
			Path: "./data/pricecheck.db",
		},
		Trade: TradeConfig{
			BaseURL:        "https://www.pathofexile.com/api/trade2",
			League:         "Standard",
			OnlineOnly:     true,
			Timeout:        "15s",
			SearchInterval: "2500ms",
			FetchInterval:  "1500ms",
		},
		Scout: ScoutConfig{
			Enabled: true,
			BaseURL: "https://poe2scout.com/api",
		},
		Search: SearchConfig{
			MinListings: 5,
			MaxRetries:  2,
			CacheSize:   100,
			CacheTTL:    "5m",
		},
		Tiers: TiersConfig{
			CatalogPath: "./data/tier_catalog.json",
			Watch:       true,
		},
		History: HistoryConfig{
			IconDir:   "./data/icons",
			Retention: "720h",
			MaxScans:  50,
		},
	}
}

// Load reads .env, the TOML file named by PRICECHECK_CONFIG (or DefaultConfigFile
// when present) and the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("PRICECHECK_CONFIG")
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	return LoadFile(path)
}

// LoadFile applies the TOML file at path (skipped when empty) and then the
// environment over the defaults. The result is validated.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.AdminKey = getEnv("ADMIN_KEY", c.Server.AdminKey)
	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}

	c.Database.Path = getEnv("DB_PATH", c.Database.Path)

	c.Trade.BaseURL = getEnv("TRADE_API_BASE", c.Trade.BaseURL)
	c.Trade.League = getEnv("LEAGUE", c.Trade.League)
	c.Trade.POESESSID = getEnv("POESESSID", c.Trade.POESESSID)
	c.Trade.OnlineOnly = getEnvBool("ONLINE_ONLY", c.Trade.OnlineOnly)
	c.Trade.Timeout = getEnv("TRADE_TIMEOUT", c.Trade.Timeout)

	c.Scout.Enabled = getEnvBool("POE2SCOUT_ENABLED", c.Scout.Enabled)
	c.Scout.BaseURL = getEnv("POE2SCOUT_API_BASE", c.Scout.BaseURL)

	c.Search.MinListings = getEnvInt("SEARCH_MIN_LISTINGS", c.Search.MinListings)
	c.Search.CacheSize = getEnvInt("SEARCH_CACHE_SIZE", c.Search.CacheSize)
	c.Search.CacheTTL = getEnv("SEARCH_CACHE_TTL", c.Search.CacheTTL)

	c.Tiers.CatalogPath = getEnv("TIER_CATALOG_PATH", c.Tiers.CatalogPath)
	c.Tiers.Watch = getEnvBool("TIER_CATALOG_WATCH", c.Tiers.Watch)

	c.History.IconDir = getEnv("ICON_DIR", c.History.IconDir)
	c.History.Retention = getEnv("HISTORY_RETENTION", c.History.Retention)
	c.History.MaxScans = getEnvInt("HISTORY_MAX_SCANS", c.History.MaxScans)

	c.App.Debug = getEnvBool("PRICECHECK_DEBUG", c.App.Debug)
}

// Validate checks durations and numeric limits
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Port) == "" {
		errs = append(errs, errors.New("port must not be empty"))
	}
	if strings.TrimSpace(c.Trade.League) == "" {
		errs = append(errs, errors.New("league must not be empty"))
	}

	for name, value := range map[string]string{
		"trade timeout":         c.Trade.Timeout,
		"trade search interval": c.Trade.SearchInterval,
		"trade fetch interval":  c.Trade.FetchInterval,
		"search cache TTL":      c.Search.CacheTTL,
		"history retention":     c.History.Retention,
	} {
		if d, err := time.ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", name, value, err))
		} else if d < 0 {
			errs = append(errs, fmt.Errorf("%s cannot be negative: %s", name, value))
		}
	}

	if c.Search.MinListings < 1 {
		errs = append(errs, fmt.Errorf("min listings must be at least 1: %d", c.Search.MinListings))
	}
	if c.Search.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries cannot be negative: %d", c.Search.MaxRetries))
	}
	if c.Search.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("search cache size cannot be negative: %d", c.Search.CacheSize))
	}
	if c.History.MaxScans < 1 {
		errs = append(errs, fmt.Errorf("max scans must be at least 1: %d", c.History.MaxScans))
	}

	return errors.Join(errs...)
}

// TradeTimeout returns the trade HTTP timeout; call after Validate
func (c *Config) TradeTimeout() time.Duration {
	return mustDuration(c.Trade.Timeout)
}

func (c *Config) SearchInterval() time.Duration {
	return mustDuration(c.Trade.SearchInterval)
}

func (c *Config) FetchInterval() time.Duration {
	return mustDuration(c.Trade.FetchInterval)
}

func (c *Config) SearchCacheTTL() time.Duration {
	return mustDuration(c.Search.CacheTTL)
}

func (c *Config) HistoryRetention() time.Duration {
	return mustDuration(c.History.Retention)
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
