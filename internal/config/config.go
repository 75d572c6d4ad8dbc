// Package config holds all aura configuration: a YAML file with
// struct-per-concern sections, overridable through the environment. The
// default language and converse timeout can be hot-reloaded via Watcher.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	// Lang is the process-wide default BCP-47 language code, lower-cased.
	Lang string `yaml:"lang" env:"AURA_LANG"`

	Websocket WebsocketConfig `yaml:"websocket" envPrefix:"AURA_WS_"`
	Converse  ConverseConfig  `yaml:"converse" envPrefix:"AURA_CONVERSE_"`
	Padatious PadatiousConfig `yaml:"padatious"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"AURA_METRICS_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"AURA_LOG_"`
	QA        QAConfig        `yaml:"qa" envPrefix:"AURA_QA_"`
}

// WebsocketConfig locates the platform messagebus.
type WebsocketConfig struct {
	Host  string `yaml:"host" env:"HOST"`
	Port  int    `yaml:"port" env:"PORT"`
	Route string `yaml:"route" env:"ROUTE"`
	SSL   bool   `yaml:"ssl" env:"SSL"`
}

// ConverseConfig tunes the active-skill registry.
type ConverseConfig struct {
	// TimeoutMinutes is how long a skill stays converse-eligible after its
	// last activation.
	TimeoutMinutes int `yaml:"timeout_minutes" env:"TIMEOUT_MINUTES"`

	// RequestTimeout bounds a single converse round trip on the bus.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// PadatiousConfig carries the per-tier confidence thresholds.
type PadatiousConfig struct {
	HighConfidence   float64 `yaml:"high_confidence"`
	MediumConfidence float64 `yaml:"medium_confidence"`
	LowConfidence    float64 `yaml:"low_confidence"`
}

// MetricsConfig controls the prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Addr    string `yaml:"addr" env:"ADDR"`
}

// LoggingConfig controls the zap logger built at startup.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose" env:"VERBOSE"`
}

// QAConfig configures the persona question-answering engine.
type QAConfig struct {
	APIKey string `yaml:"api_key" env:"API_KEY"`
	Model  string `yaml:"model" env:"MODEL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Lang: "en-us",
		Websocket: WebsocketConfig{
			Host:  "localhost",
			Port:  8181,
			Route: "/core",
		},
		Converse: ConverseConfig{
			TimeoutMinutes: 10,
			RequestTimeout: 10 * time.Second,
		},
		Padatious: PadatiousConfig{
			HighConfidence:   0.95,
			MediumConfidence: 0.8,
			LowConfidence:    0.5,
		},
		Metrics: MetricsConfig{Addr: ":9464"},
		QA:      QAConfig{Model: "gemini-2.0-flash"},
	}
}

// Load reads the YAML file at path (a missing file means defaults), then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults only.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

// normalize repairs values that would break downstream consumers.
func (c *Config) normalize() {
	c.Lang = strings.ToLower(strings.TrimSpace(c.Lang))
	if c.Lang == "" {
		c.Lang = "en-us"
	}
	if c.Converse.TimeoutMinutes <= 0 {
		c.Converse.TimeoutMinutes = 10
	}
	if c.Converse.RequestTimeout <= 0 {
		c.Converse.RequestTimeout = 10 * time.Second
	}
	if c.Padatious.HighConfidence == 0 {
		c.Padatious.HighConfidence = 0.95
	}
	if c.Padatious.MediumConfidence == 0 {
		c.Padatious.MediumConfidence = 0.8
	}
	if c.Padatious.LowConfidence == 0 {
		c.Padatious.LowConfidence = 0.5
	}
}

// ConverseTimeout returns the active-skill expiry window as a duration.
func (c *Config) ConverseTimeout() time.Duration {
	return time.Duration(c.Converse.TimeoutMinutes) * time.Minute
}

// BusURL assembles the websocket address of the messagebus.
func (c *Config) BusURL() string {
	scheme := "ws"
	if c.Websocket.SSL {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, c.Websocket.Host, c.Websocket.Port, c.Websocket.Route)
}
