package config

import (
	"log/slog"
	"net"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	TransportModeBlocking = "blocking"
	TransportModeAsync    = "async"
)

// ServerConfig controls the example admin HTTP server (cmd/server), not the
// routing transport itself -- the transport has no listen address of its
// own, it is a RoundTripper.
type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

// HealthProbeConfig controls the optional active prober
// (internal/healthprobe). Disabled by default: the reactive 429/5xx path
// works with no probing at all.
type HealthProbeConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	Interval         string `mapstructure:"interval"`
	Path             string `mapstructure:"path"`
	FailureThreshold int    `mapstructure:"failure_threshold"`
	ResetTimeout     string `mapstructure:"reset_timeout"`
	BackoffSeconds   int    `mapstructure:"backoff_seconds"`
}

// TransportConfig selects between the blocking and cooperative-suspension
// transport variants (spec.md Section 5).
type TransportConfig struct {
	Mode          string `mapstructure:"mode"`
	MaxGoroutines int    `mapstructure:"max_goroutines"`
}

// BackendConfig is one entry in the prioritized backend pool. APIKey is
// optional: when empty, outbound requests keep whatever Authorization
// header the caller set (spec.md Section 6).
type BackendConfig struct {
	Host     string `mapstructure:"host"`
	Priority int    `mapstructure:"priority"`
	APIKey   string `mapstructure:"api_key"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	HealthProbe HealthProbeConfig `mapstructure:"health_probe"`
	Transport   TransportConfig   `mapstructure:"transport"`
	Backends    []BackendConfig   `mapstructure:"backends"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// Load reads configuration from config.yaml in ./config or the working
// directory (falling back to defaults and environment variables when no file
// is present) and validates the result. Each call starts from a fresh viper
// state, so nothing read by an earlier call carries over.
func Load() (*Config, error) {
	viper.Reset()
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("health_probe.enabled", false)
	viper.SetDefault("health_probe.interval", "30s")
	viper.SetDefault("health_probe.path", "/")
	viper.SetDefault("health_probe.failure_threshold", 3)
	viper.SetDefault("health_probe.reset_timeout", "60s")
	viper.SetDefault("health_probe.backoff_seconds", 30)
	viper.SetDefault("transport.mode", TransportModeBlocking)
	viper.SetDefault("transport.max_goroutines", 16)
	viper.SetDefault("logging.level", LogLevelInfo)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Transport,
			validation.Required,
			validation.By(func(value interface{}) error {
				tc, ok := value.(TransportConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a TransportConfig")
				}
				return validation.ValidateStruct(&tc,
					validation.Field(&tc.Mode,
						validation.Required,
						validation.In(TransportModeBlocking, TransportModeAsync),
					),
					validation.Field(&tc.MaxGoroutines,
						validation.Min(0),
					),
				)
			}),
		),
		validation.Field(&c.HealthProbe,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthProbeConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthProbeConfig")
				}
				if !hc.Enabled {
					return nil
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval, validation.Required, validation.By(validateDuration)),
					validation.Field(&hc.ResetTimeout, validation.Required, validation.By(validateDuration)),
					validation.Field(&hc.FailureThreshold, validation.Required, validation.Min(1)),
					validation.Field(&hc.BackoffSeconds, validation.Required, validation.Min(1)),
				)
			}),
		),
		validation.Field(&c.Backends,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateBackendConfig)),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}
	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}
	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateBackendConfig(value interface{}) error {
	b, ok := value.(BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendConfig")
	}

	if b.Host == "" {
		return validation.NewError("validation_empty_host", "backend host cannot be empty")
	}
	if err := is.Host.Validate(b.Host); err != nil {
		return validation.NewError("validation_invalid_host", "invalid backend host")
	}
	if b.Priority < 1 {
		return validation.NewError("validation_invalid_priority", "priority must be at least 1")
	}

	return nil
}
