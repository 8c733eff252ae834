// Package config loads the sambamount configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (SAMBAMOUNT_*, "." replaced by "_")
//  2. Configuration file (~/.sambamount/config.yaml or --config)
//  3. Defaults
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	envPrefix = "SAMBAMOUNT"

	// DefaultDir holds the config file and the registry.
	DefaultDir = "~/.sambamount"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Mount     MountConfig     `mapstructure:"mount"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port      int    `mapstructure:"port" validate:"min=1,max=65535"`
	StaticDir string `mapstructure:"static_dir"`

	// MaxRemoteClients caps non-loopback Socket.io clients. 0 is unlimited.
	MaxRemoteClients int `mapstructure:"max_remote_clients" validate:"gte=0"`
}

// RegistryConfig locates the mount registry file.
type RegistryConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// MountConfig controls how shares are mounted and unmounted.
type MountConfig struct {
	BaseDir        string        `mapstructure:"base_dir" validate:"required,startswith=/"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	UnmountTimeout time.Duration `mapstructure:"unmount_timeout" validate:"gt=0"`
	Options        []string      `mapstructure:"options" validate:"dive,required,excludes=0x2C"`
	UseSudo        bool          `mapstructure:"use_sudo"`
	FileMode       string        `mapstructure:"file_mode" validate:"omitempty,numeric,len=4"`
	DirMode        string        `mapstructure:"dir_mode" validate:"omitempty,numeric,len=4"`
}

// ReconcileConfig controls the background drift check.
type ReconcileConfig struct {
	Interval   time.Duration `mapstructure:"interval" validate:"gt=0"`
	StaleGrace time.Duration `mapstructure:"stale_grace" validate:"gte=0"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from configPath (or the default location),
// the environment and defaults. A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if err := setupViper(v, configPath); err != nil {
		return nil, err
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks()))
	_ = cfg.expandPaths()
	return &cfg
}

// Validate checks struct tags on cfg.
func Validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q check (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		p, err := homedir.Expand(configPath)
		if err != nil {
			return fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(p)
		return nil
	}

	dir, err := homedir.Expand(DefaultDir)
	if err != nil {
		return fmt.Errorf("failed to resolve home directory: %w", err)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.max_remote_clients", 0)

	v.SetDefault("registry.path", filepath.Join(DefaultDir, "registry.jsonl"))

	v.SetDefault("mount.base_dir", "/mnt")
	v.SetDefault("mount.timeout", "30s")
	v.SetDefault("mount.unmount_timeout", "10s")
	v.SetDefault("mount.options", []string{"vers=3.0", "iocharset=utf8", "soft", "noperm"})
	v.SetDefault("mount.use_sudo", false)
	v.SetDefault("mount.file_mode", "0644")
	v.SetDefault("mount.dir_mode", "0755")

	v.SetDefault("reconcile.interval", "60s")
	v.SetDefault("reconcile.stale_grace", "2m")

	v.SetDefault("log.level", "info")

	v.SetDefault("metrics.enabled", true)
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Registry.Path, &c.Server.StaticDir} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// configDecodeHooks lets durations be written as "30s" and string lists be
// given as comma separated environment values.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Bare integers are seconds.
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v * float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}
