package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/labops/rigctl/internal/activity"
	"github.com/labops/rigctl/internal/logger"
)

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Store    StoreConfig    `toml:"store" mapstructure:"store"`
	Behavior BehaviorConfig `toml:"behavior" mapstructure:"behavior"`
	Log      *logger.Config `toml:"log" mapstructure:"log"`
	Auth     AuthConfig     `toml:"auth" mapstructure:"auth"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
	Sched    SchedConfig    `toml:"sched" mapstructure:"sched"`
	Reboot   RebootConfig   `toml:"reboot" mapstructure:"reboot"`
}

type ServerConfig struct {
	Listen        string        `toml:"listen" mapstructure:"listen"`
	BasePath      string        `toml:"base_path" mapstructure:"base_path"`
	ReadTimeout   time.Duration `toml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `toml:"write_timeout" mapstructure:"write_timeout"`
	EnableMetrics bool          `toml:"enable_metrics" mapstructure:"enable_metrics"`
	MetricsPath   string        `toml:"metrics_path" mapstructure:"metrics_path"`
}

type StoreConfig struct {
	// DSN selects the control store: postgres://..., sqlite://path or a
	// bare sqlite path.
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// BehaviorConfig wires the event aggregator: where the behavior tables
// live and which types exist. Types listed here populate the registry
// at startup.
type BehaviorConfig struct {
	DSN   string                `toml:"dsn" mapstructure:"dsn"`
	Types []activity.TypeConfig `toml:"types" mapstructure:"types"`
}

type AuthConfig struct {
	Enabled     bool          `toml:"enabled" mapstructure:"enabled"`
	JWTSecret   string        `toml:"jwt_secret" mapstructure:"jwt_secret"`
	TokenExpiry time.Duration `toml:"token_expiry" mapstructure:"token_expiry"`
}

type HistoryConfig struct {
	// DSNs of transition sinks: sqlite/postgres/clickhouse URLs.
	Sinks []string `toml:"sinks" mapstructure:"sinks"`
}

// SchedConfig controls the start/stop-hint scheduler loop.
type SchedConfig struct {
	Enabled  bool          `toml:"enabled" mapstructure:"enabled"`
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
}

// RebootConfig holds SSH credentials for remote setup reboots.
type RebootConfig struct {
	User           string        `toml:"user" mapstructure:"user"`
	PrivateKeyPath string        `toml:"private_key_path" mapstructure:"private_key_path"`
	Timeout        time.Duration `toml:"timeout" mapstructure:"timeout"`
}

// Load reads and validates a TOML config file.
func Load(path string) (FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return FileConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return FileConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	fc.applyEnvOverrides()
	fc.applyDefaults()
	if err := fc.validate(); err != nil {
		return FileConfig{}, err
	}
	return fc, nil
}

// applyEnvOverrides lets credentials live outside the config file.
// Environment values win over file values.
func (fc *FileConfig) applyEnvOverrides() {
	if dsn := os.Getenv("RIGCTL_STORE_DSN"); dsn != "" {
		fc.Store.DSN = dsn
	}
	if dsn := os.Getenv("RIGCTL_BEHAVIOR_DSN"); dsn != "" {
		fc.Behavior.DSN = dsn
	}
	if secret := os.Getenv("RIGCTL_JWT_SECRET"); secret != "" {
		fc.Auth.JWTSecret = secret
	}
}

func (fc *FileConfig) applyDefaults() {
	if fc.Server.Listen == "" {
		fc.Server.Listen = ":8080"
	}
	if fc.Server.BasePath == "" {
		fc.Server.BasePath = "/api"
	}
	if fc.Server.MetricsPath == "" {
		fc.Server.MetricsPath = "/metrics"
	}
	if fc.Store.DSN == "" {
		fc.Store.DSN = "rigctl.db"
	}
	if fc.Auth.TokenExpiry <= 0 {
		fc.Auth.TokenExpiry = 24 * time.Hour
	}
	if fc.Sched.Interval <= 0 {
		fc.Sched.Interval = time.Minute
	}
	if fc.Reboot.Timeout <= 0 {
		fc.Reboot.Timeout = 10 * time.Second
	}
}

func (fc *FileConfig) validate() error {
	if fc.Auth.Enabled && fc.Auth.JWTSecret == "" {
		return fmt.Errorf("auth enabled but jwt_secret is empty")
	}
	seen := make(map[string]bool, len(fc.Behavior.Types))
	for _, tc := range fc.Behavior.Types {
		if tc.Name == "" {
			return fmt.Errorf("behavior type with empty name")
		}
		if seen[tc.Name] {
			return fmt.Errorf("behavior type %q configured twice", tc.Name)
		}
		seen[tc.Name] = true
	}
	return nil
}
