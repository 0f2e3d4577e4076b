package config

import "time"

// Config is the root of courier.yaml.
type Config struct {
	Service  ServiceConfig   `yaml:"service"`
	Pool     PoolConfig      `yaml:"pool"`
	State    StateConfig     `yaml:"state"`
	API      APIConfig       `yaml:"api"`
	Sessions []SessionConfig `yaml:"sessions"`

	// Path is the absolute path the config was loaded from.
	Path string `yaml:"-"`
	// Verified is true when a .checksums manifest vouched for the file.
	Verified bool `yaml:"-"`
}

// ServiceConfig holds process-wide settings.
type ServiceConfig struct {
	Name               string        `yaml:"name"`
	LogLevel           string        `yaml:"log_level"`
	LogFormat          string        `yaml:"log_format"`
	StatsFlushInterval time.Duration `yaml:"stats_flush_interval"`
}

// PoolConfig sizes the shared dispatch pool.
type PoolConfig struct {
	Workers             int           `yaml:"workers"`
	MaxIterationsPerRun int           `yaml:"max_iterations_per_run"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
}

// StateConfig locates the statistics database.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig configures the admin HTTP API.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

type APIAuthConfig struct {
	APIKey string        `yaml:"api_key"`
	Tokens []TokenConfig `yaml:"tokens"`
}

// TokenConfig is a bearer token restricted to Scopes.
type TokenConfig struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// SessionConfig declares a session created at startup.
type SessionConfig struct {
	Name             string           `yaml:"name"`
	AsyncDispatch    bool             `yaml:"async_dispatch"`
	DispatchedByPool bool             `yaml:"dispatched_by_pool"`
	Consumers        []ConsumerConfig `yaml:"consumers"`
}

// ConsumerConfig declares a consumer and where its messages go.
type ConsumerConfig struct {
	ID   string `yaml:"id"`
	Sink string `yaml:"sink"`
}

// Defaults returns a Config with every optional field filled in.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:               "courier",
			LogLevel:           "info",
			LogFormat:          "json",
			StatsFlushInterval: 10 * time.Second,
		},
		Pool: PoolConfig{
			Workers:             4,
			MaxIterationsPerRun: 1000,
			ShutdownTimeout:     30 * time.Second,
		},
		State: StateConfig{
			Path: "./data/courier.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}
