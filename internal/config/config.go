// Package config provides configuration management for healthiq: defaults,
// the settings.json file, HEALTHIQ_* environment overrides and optional hot
// reload of the analytics thresholds.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/sentiq/healthiq/internal/analytics/alerts"
	"github.com/sentiq/healthiq/internal/analytics/graph"
	"github.com/sentiq/healthiq/internal/analytics/hsi"
)

const (
	// DefaultPort is the default HTTP port for the API service.
	DefaultPort = 8787

	// DefaultLLMModel is the default Gemini model for drafting tasks.
	DefaultLLMModel = "gemini-1.5-flash"
)

// Config holds the application configuration.
type Config struct {
	// Server settings
	Port        int      `json:"port"`
	CORSOrigins []string `json:"cors_origins"`

	// Database settings. A postgres:// DSN selects PostgreSQL, anything
	// else is a SQLite file path.
	DBDSN    string `json:"db_dsn"`
	MaxConns int    `json:"max_conns"`

	// Logging
	LogLevel string `json:"log_level"`

	// Analytics thresholds; the only section the file watcher hot-reloads.
	Analytics AnalyticsConfig `json:"analytics"`

	// LLM gateway settings
	LLM LLMConfig `json:"llm"`

	// Optional Neo4j graph mirror
	Neo4j Neo4jConfig `json:"neo4j"`
}

// AnalyticsConfig bundles the tunable analytics parameters.
type AnalyticsConfig struct {
	// WindowDays is the scoring window (default 30).
	WindowDays int `json:"window_days"`
	// TopN is the default graph summary size.
	TopN   int            `json:"top_n"`
	Graph  *graph.Config  `json:"graph"`
	HSI    *hsi.Config    `json:"hsi"`
	Alerts *alerts.Config `json:"alerts"`
}

// LLMConfig holds the LLM gateway settings.
type LLMConfig struct {
	// Provider is "gemini" or "simulation". With no API keys configured the
	// gateway falls back to simulation regardless.
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	RequestsPerMinute int    `json:"requests_per_minute"`
	CacheTTLSeconds   int    `json:"cache_ttl_seconds"`
	TokenBudget       int    `json:"token_budget"`
}

// Neo4jConfig holds the optional graph mirror settings.
type Neo4jConfig struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
	Enabled  bool   `json:"enabled"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// DataDir returns the data directory path (~/.healthiq), overridable via
// HEALTHIQ_DATA_DIR.
func DataDir() string {
	if dir := os.Getenv("HEALTHIQ_DATA_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".healthiq")
}

// DBPath returns the default SQLite database file path.
func DBPath() string {
	return filepath.Join(DataDir(), "healthiq.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Port:     DefaultPort,
		DBDSN:    DBPath(),
		MaxConns: 10,
		LogLevel: "info",
		CORSOrigins: []string{
			"http://localhost",
			"http://localhost:5173",
			"http://127.0.0.1",
			"http://127.0.0.1:5173",
		},
		Analytics: AnalyticsConfig{
			WindowDays: 30,
			TopN:       15,
			Graph:      graph.DefaultConfig(),
			HSI:        hsi.DefaultConfig(),
			Alerts:     alerts.DefaultConfig(),
		},
		LLM: LLMConfig{
			Provider:          "gemini",
			Model:             DefaultLLMModel,
			RequestsPerMinute: 120,
			CacheTTLSeconds:   3600,
			TokenBudget:       6000,
		},
	}
}

// Validate rejects configurations no component could run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Analytics.WindowDays <= 0 {
		return fmt.Errorf("invalid analytics window %d days", c.Analytics.WindowDays)
	}
	if c.Analytics.Graph != nil {
		if err := c.Analytics.Graph.Validate(); err != nil {
			return err
		}
	}
	if c.Analytics.HSI != nil {
		if err := c.Analytics.HSI.Validate(); err != nil {
			return err
		}
	}
	if c.Analytics.Alerts != nil {
		if err := c.Analytics.Alerts.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Load loads configuration from the default settings file, merging file
// values over defaults and environment overrides over both.
func Load() (*Config, error) {
	return LoadFile(SettingsPath())
}

// LoadFile loads configuration from a specific settings file. A missing
// file yields the defaults; an unreadable or invalid file is an error, so
// a typo never silently reverts the whole config.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps HEALTHIQ_* environment variables onto the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HEALTHIQ_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Port = port
		}
	}
	if v := os.Getenv("HEALTHIQ_DB_DSN"); v != "" {
		cfg.DBDSN = v
	}
	if v := os.Getenv("HEALTHIQ_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HEALTHIQ_MAX_CONNS"); v != "" {
		if conns, err := strconv.Atoi(v); err == nil && conns > 0 {
			cfg.MaxConns = conns
		}
	}
	if v := os.Getenv("HEALTHIQ_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("HEALTHIQ_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("HEALTHIQ_LLM_RPM"); v != "" {
		if rpm, err := strconv.Atoi(v); err == nil && rpm > 0 {
			cfg.LLM.RequestsPerMinute = rpm
		}
	}
	if v := os.Getenv("HEALTHIQ_NEO4J_URI"); v != "" {
		cfg.Neo4j.URI = v
		cfg.Neo4j.Enabled = true
	}
	if v := os.Getenv("HEALTHIQ_NEO4J_USERNAME"); v != "" {
		cfg.Neo4j.Username = v
	}
	if v := os.Getenv("HEALTHIQ_NEO4J_PASSWORD"); v != "" {
		cfg.Neo4j.Password = v
	}
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		loaded, err := Load()
		if err != nil {
			loaded = Default()
			applyEnvOverrides(loaded)
		}
		setGlobal(loaded)
	})

	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

func setGlobal(cfg *Config) {
	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
}
