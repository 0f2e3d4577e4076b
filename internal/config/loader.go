package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/courier/internal/auth"
)

const DefaultFilename = "courier.yaml"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"json", "text"}
	validSinks      = []string{"log", "events", "discard"}
)

// Load reads the config at path (a file, or a directory holding
// courier.yaml), interpolates ${VAR} references, fills defaults, applies
// COURIER_* environment overrides, verifies the .checksums manifest when one
// exists and validates the result.
func Load(path string) (*Config, error) {
	absPath, err := Resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", absPath, err)
	}
	cfg.Path = absPath
	applyDefaults(cfg)

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	verified, err := verifyChecksum(absPath)
	if err != nil {
		return nil, err
	}
	cfg.Verified = verified

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Resolve returns the absolute path of the config file named by path, which
// may be the file itself or the directory holding courier.yaml.
func Resolve(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve config path %q: %w", path, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, DefaultFilename)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", absPath)
		}
	}
	return absPath, nil
}

func applyDefaults(cfg *Config) {
	d := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = d.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = d.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = d.Service.LogFormat
	}
	if cfg.Service.StatsFlushInterval == 0 {
		cfg.Service.StatsFlushInterval = d.Service.StatsFlushInterval
	}
	if cfg.Pool.Workers == 0 {
		cfg.Pool.Workers = d.Pool.Workers
	}
	if cfg.Pool.MaxIterationsPerRun == 0 {
		cfg.Pool.MaxIterationsPerRun = d.Pool.MaxIterationsPerRun
	}
	if cfg.Pool.ShutdownTimeout == 0 {
		cfg.Pool.ShutdownTimeout = d.Pool.ShutdownTimeout
	}
	if cfg.State.Path == "" {
		cfg.State.Path = d.State.Path
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = d.API.Listen
	}
	for i := range cfg.Sessions {
		for j := range cfg.Sessions[i].Consumers {
			if cfg.Sessions[i].Consumers[j].Sink == "" {
				cfg.Sessions[i].Consumers[j].Sink = "log"
			}
		}
	}
}

// envOverrides mirrors the settings that may be overridden from the
// environment. Unset variables leave the loaded value alone.
type envOverrides struct {
	ServiceName        string        `env:"COURIER_SERVICE_NAME"`
	LogLevel           string        `env:"COURIER_LOG_LEVEL"`
	LogFormat          string        `env:"COURIER_LOG_FORMAT"`
	StatsFlushInterval time.Duration `env:"COURIER_STATS_FLUSH_INTERVAL"`
	PoolWorkers        int           `env:"COURIER_POOL_WORKERS"`
	MaxIterations      int           `env:"COURIER_POOL_MAX_ITERATIONS_PER_RUN"`
	ShutdownTimeout    time.Duration `env:"COURIER_POOL_SHUTDOWN_TIMEOUT"`
	StatePath          string        `env:"COURIER_STATE_PATH"`
	APIEnabled         bool          `env:"COURIER_API_ENABLED"`
	APIListen          string        `env:"COURIER_API_LISTEN"`
	APIKey             string        `env:"COURIER_API_KEY"`
}

func applyEnvOverrides(cfg *Config) error {
	ov := envOverrides{
		ServiceName:        cfg.Service.Name,
		LogLevel:           cfg.Service.LogLevel,
		LogFormat:          cfg.Service.LogFormat,
		StatsFlushInterval: cfg.Service.StatsFlushInterval,
		PoolWorkers:        cfg.Pool.Workers,
		MaxIterations:      cfg.Pool.MaxIterationsPerRun,
		ShutdownTimeout:    cfg.Pool.ShutdownTimeout,
		StatePath:          cfg.State.Path,
		APIEnabled:         cfg.API.Enabled,
		APIListen:          cfg.API.Listen,
		APIKey:             cfg.API.Auth.APIKey,
	}
	if err := envdecode.Decode(&ov); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return fmt.Errorf("environment overrides: %w", err)
	}

	cfg.Service.Name = ov.ServiceName
	cfg.Service.LogLevel = ov.LogLevel
	cfg.Service.LogFormat = ov.LogFormat
	cfg.Service.StatsFlushInterval = ov.StatsFlushInterval
	cfg.Pool.Workers = ov.PoolWorkers
	cfg.Pool.MaxIterationsPerRun = ov.MaxIterations
	cfg.Pool.ShutdownTimeout = ov.ShutdownTimeout
	cfg.State.Path = ov.StatePath
	cfg.API.Enabled = ov.APIEnabled
	cfg.API.Listen = ov.APIListen
	cfg.API.Auth.APIKey = ov.APIKey
	return nil
}

// interpolateEnv replaces ${VAR} with the variable's value. Undefined
// variables are left in place and caught by validation where they matter.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	if !slices.Contains(validLogLevels, cfg.Service.LogLevel) {
		return fmt.Errorf("service.log_level must be one of %v (got %q)", validLogLevels, cfg.Service.LogLevel)
	}
	if !slices.Contains(validLogFormats, cfg.Service.LogFormat) {
		return fmt.Errorf("service.log_format must be one of %v (got %q)", validLogFormats, cfg.Service.LogFormat)
	}
	if cfg.Service.StatsFlushInterval < 0 {
		return fmt.Errorf("service.stats_flush_interval must be positive")
	}
	if cfg.Pool.Workers < 1 {
		return fmt.Errorf("pool.workers must be at least 1 (got %d)", cfg.Pool.Workers)
	}
	if cfg.Pool.MaxIterationsPerRun < 1 {
		return fmt.Errorf("pool.max_iterations_per_run must be at least 1 (got %d)", cfg.Pool.MaxIterationsPerRun)
	}
	if cfg.Pool.ShutdownTimeout < 0 {
		return fmt.Errorf("pool.shutdown_timeout must be positive")
	}
	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when the api is enabled")
		}
		if m := envVarPattern.FindStringSubmatch(cfg.API.Auth.APIKey); m != nil {
			return fmt.Errorf("api.auth.api_key: environment variable ${%s} is not set", m[1])
		}
		if cfg.API.Auth.APIKey == "" {
			return fmt.Errorf("api.auth.api_key is required when the api is enabled")
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if tok.Token == "" {
				return fmt.Errorf("api.auth.tokens[%d].token is required", i)
			}
			if len(tok.Scopes) == 0 {
				return fmt.Errorf("api.auth.tokens[%d].scopes must not be empty", i)
			}
			for _, sc := range tok.Scopes {
				if !slices.Contains(auth.KnownScopes, sc) {
					return fmt.Errorf("api.auth.tokens[%d]: unknown scope %q", i, sc)
				}
			}
		}
	}

	sessions := make(map[string]bool, len(cfg.Sessions))
	for i, s := range cfg.Sessions {
		if s.Name == "" {
			return fmt.Errorf("sessions[%d].name is required", i)
		}
		if sessions[s.Name] {
			return fmt.Errorf("sessions[%d]: duplicate session name %q", i, s.Name)
		}
		sessions[s.Name] = true

		consumers := make(map[string]bool, len(s.Consumers))
		for j, c := range s.Consumers {
			if c.ID == "" {
				return fmt.Errorf("sessions[%d].consumers[%d].id is required", i, j)
			}
			if consumers[c.ID] {
				return fmt.Errorf("session %q: duplicate consumer id %q", s.Name, c.ID)
			}
			consumers[c.ID] = true
			if !slices.Contains(validSinks, c.Sink) {
				return fmt.Errorf("session %q consumer %q: sink must be one of %v (got %q)", s.Name, c.ID, validSinks, c.Sink)
			}
		}
	}
	return nil
}
