package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/citycab/dispatch/core/model"
	"github.com/citycab/dispatch/metrics"
)

// DriverSeed describes one fleet roster entry.
type DriverSeed struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Vehicle string `json:"vehicle"`
}

// FleetConfig holds the seed roster loaded at startup.
type FleetConfig struct {
	Drivers []DriverSeed `json:"drivers"`
}

// DispatchConfig tunes the dispatcher.
type DispatchConfig struct {
	// MaxRetries bounds reservation retries when a selection loses the
	// race for a driver.
	MaxRetries int `json:"max_retries"`
	// Seed fixes the selection and passenger-label RNGs; 0 means
	// time-based.
	Seed int64 `json:"seed"`
}

// CompletionConfig bounds the randomized completion delay.
type CompletionConfig struct {
	MinDelay time.Duration `json:"min_delay"`
	MaxDelay time.Duration `json:"max_delay"`
}

// AuditConfig controls the JSONL audit export of the event log.
type AuditConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// APIConfig holds the HTTP boundary settings.
type APIConfig struct {
	Addr string `json:"addr"`
}

type Config struct {
	Fleet      FleetConfig      `json:"fleet"`
	Dispatch   DispatchConfig   `json:"dispatch"`
	Completion CompletionConfig `json:"completion"`
	Metrics    metrics.Config   `json:"metrics"`
	Audit      AuditConfig      `json:"audit"`
	API        APIConfig        `json:"api"`
}

// Load reads the configuration file (YAML or JSON by extension) and applies
// CAB_ environment overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("CAB_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "cab_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultRoster is the fleet used when no drivers are configured.
func DefaultRoster() []DriverSeed {
	return []DriverSeed{
		{ID: "d1", Name: "Alice", Vehicle: "Toyota Camry"},
		{ID: "d2", Name: "Bob", Vehicle: "Honda Civic"},
		{ID: "d3", Name: "Charlie", Vehicle: "Tesla Model 3"},
		{ID: "d4", Name: "Diana", Vehicle: "Ford Escape"},
		{ID: "d5", Name: "Eve", Vehicle: "Nissan Altima"},
	}
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if len(c.Fleet.Drivers) == 0 {
		c.Fleet.Drivers = DefaultRoster()
	}
	if c.Dispatch.MaxRetries == 0 {
		c.Dispatch.MaxRetries = 3
	}
	if c.Completion.MinDelay == 0 {
		c.Completion.MinDelay = 5 * time.Second
	}
	if c.Completion.MaxDelay == 0 {
		c.Completion.MaxDelay = 10 * time.Second
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		c.Audit.Path = "rides.log"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Fleet.Drivers))
	for _, d := range c.Fleet.Drivers {
		if d.ID == "" || d.Name == "" {
			return fmt.Errorf("fleet: driver id and name are required")
		}
		if seen[d.ID] {
			return fmt.Errorf("fleet: duplicate driver id %s", d.ID)
		}
		seen[d.ID] = true
	}
	if c.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("dispatch: max_retries must not be negative")
	}
	if c.Completion.MinDelay <= 0 {
		return fmt.Errorf("completion: min_delay must be positive")
	}
	if c.Completion.MaxDelay < c.Completion.MinDelay {
		return fmt.Errorf("completion: max_delay must be >= min_delay")
	}
	return nil
}

// Roster converts the configured seed list into model drivers.
func (c Config) Roster() []model.Driver {
	out := make([]model.Driver, 0, len(c.Fleet.Drivers))
	for _, d := range c.Fleet.Drivers {
		out = append(out, model.Driver{ID: d.ID, Name: d.Name, Vehicle: d.Vehicle})
	}
	return out
}
