// Package config holds all configuration types and loading logic for EpochSim.
// Config structure never shrinks: fields are only added, never renamed or removed.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for an EpochSim server instance.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Simulation SimulationConfig `yaml:"simulation"`
	Auth       AuthConfig       `yaml:"auth"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

// ServerConfig holds network settings and the directory for scenario presets.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// SimulationConfig sets defaults and limits that apply to every session.
type SimulationConfig struct {
	// DefaultTickPeriodMs is the autoplay period for scenarios that set none.
	DefaultTickPeriodMs int `yaml:"default_tick_period_ms"`
	// MinTickPeriodMs is the fastest autoplay a client may request.
	MinTickPeriodMs int `yaml:"min_tick_period_ms"`
	MaxSessions     int `yaml:"max_sessions"`
	// MaxProcesses caps processes per session, initial and created.
	MaxProcesses int `yaml:"max_processes"`
	// MaxStepsPerRequest caps n in a single tick or back request.
	MaxStepsPerRequest int `yaml:"max_steps_per_request"`
	// MaxHistory caps the number of ticks a session can be rewound, which is
	// also how far past its start it can be stepped.
	MaxHistory int `yaml:"max_history"`
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// RateLimitConfig sets the per-client-IP request rate.
type RateLimitConfig struct {
	// RPS is requests per second per client IP. 0 disables limiting.
	RPS float64 `yaml:"rps"`
	// Burst allows temporary spikes above RPS.
	Burst int `yaml:"burst"`
}

// Default returns a Config populated with safe, sensible defaults.
// It is the canonical source of truth for default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			DataDir: "./data",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Simulation: SimulationConfig{
			DefaultTickPeriodMs: 500,
			MinTickPeriodMs:     20,
			MaxSessions:         256,
			MaxProcesses:        1_000,
			MaxStepsPerRequest:  10_000,
			MaxHistory:          100_000,
		},
		Auth: AuthConfig{
			Enabled: false,
			APIKey:  "",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		RateLimit: RateLimitConfig{
			RPS:   50,
			Burst: 100,
		},
	}
}

// Load reads a YAML config file at path and overlays it on top of Default().
// If the file does not exist the default config is returned without error,
// making it easy to run EpochSim with no config file at all.
//
// After loading the file, environment variables are applied as overrides:
//
//	EPOCHSIM_AUTH_API_KEY   sets auth.api_key and enables auth (auth.enabled = true)
//	EPOCHSIM_DATA_DIR       sets server.data_dir
//	EPOCHSIM_PORT           sets server.port
//	EPOCHSIM_LOG_LEVEL      sets log.level
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays environment variable overrides onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("EPOCHSIM_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("EPOCHSIM_DATA_DIR"); v != "" {
		cfg.Server.DataDir = v
	}
	if v := os.Getenv("EPOCHSIM_PORT"); v != "" {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("EPOCHSIM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate checks that the config values are consistent and within acceptable
// ranges. It returns the first error found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Server.DataDir == "" {
		return errors.New("server.data_dir must not be empty")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return errors.New(`log.level must be one of "debug", "info", "warn", "error"`)
	}
	switch c.Log.Format {
	case "text", "json":
		// valid
	default:
		return errors.New(`log.format must be one of "text", "json"`)
	}
	if c.Simulation.MinTickPeriodMs < 1 {
		return errors.New("simulation.min_tick_period_ms must be at least 1")
	}
	if c.Simulation.DefaultTickPeriodMs < c.Simulation.MinTickPeriodMs {
		return errors.New("simulation.default_tick_period_ms must not be below simulation.min_tick_period_ms")
	}
	if c.Simulation.MaxSessions < 1 {
		return errors.New("simulation.max_sessions must be at least 1")
	}
	if c.Simulation.MaxProcesses < 1 {
		return errors.New("simulation.max_processes must be at least 1")
	}
	if c.Simulation.MaxStepsPerRequest < 1 {
		return errors.New("simulation.max_steps_per_request must be at least 1")
	}
	if c.Simulation.MaxHistory < 1 {
		return errors.New("simulation.max_history must be at least 1")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth.enabled is true")
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return errors.New("metrics.port must be between 1 and 65535")
	}
	if c.RateLimit.RPS < 0 {
		return errors.New("rate_limit.rps must be >= 0")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst < 1 {
		return errors.New("rate_limit.burst must be at least 1 when rate limiting is enabled")
	}
	return nil
}
