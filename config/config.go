package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Capacity   CapacityConfig   `yaml:"capacity"`
	Sync       SyncConfig       `yaml:"sync"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port                  int     `yaml:"port" validate:"min=1,max=65535"`
	AdminToken            string  `yaml:"admin_token"`
	RateLimitPerSec       float64 `yaml:"rate_limit_per_sec" validate:"gt=0"`
	RateLimitBurst        int     `yaml:"rate_limit_burst" validate:"min=1"`
	IdempotencyTTLSeconds int     `yaml:"idempotency_ttl_seconds" validate:"min=1"`

	IdempotencyTTL time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" validate:"oneof=postgres sqlite"`
	DSN                    string `yaml:"dsn" validate:"required"`
	MaxOpenConns           int    `yaml:"max_open_conns" validate:"min=0"`
	MaxIdleConns           int    `yaml:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" validate:"min=0"`
	LogLevel               string `yaml:"log_level" validate:"omitempty,oneof=silent error warn info"`
}

// CapacityConfig holds the headcount defaults.
type CapacityConfig struct {
	DefaultLimit int `yaml:"default_limit" validate:"min=1"`
}

// SyncConfig drives the month view client used by timeoffctl.
type SyncConfig struct {
	BaseURL               string `yaml:"base_url" validate:"omitempty,url"`
	MaxAttempts           int    `yaml:"max_attempts" validate:"min=1,max=10"`
	BaseDelayMillis       int    `yaml:"base_delay_ms" validate:"min=1"`
	MaxDelayMillis        int    `yaml:"max_delay_ms" validate:"min=1,gtefield=BaseDelayMillis"`
	SettleDelayMillis     int    `yaml:"settle_delay_ms" validate:"min=0"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" validate:"min=1"`

	BaseDelay      time.Duration `yaml:"-"`
	MaxDelay       time.Duration `yaml:"-"`
	SettleDelay    time.Duration `yaml:"-"`
	RequestTimeout time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size" validate:"min=1"`
	QueueSize int `yaml:"queue_size" validate:"min=1"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Env   string `yaml:"env"`
	// FileDir enables a JSON log file next to console output when set.
	FileDir string `yaml:"file_dir"`
}

// Load reads the configuration from the given path, applies environment
// overrides and defaults, then validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and an
// in-process SQLite database.
func Default() *Config {
	cfg := &Config{Database: DatabaseConfig{Driver: "sqlite", DSN: "file:timeoff.db"}}
	applyDefaults(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TIMEOFF_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("TIMEOFF_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("TIMEOFF_BASE_URL"); v != "" {
		cfg.Sync.BaseURL = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.IdempotencyTTLSeconds <= 0 {
		cfg.Server.IdempotencyTTLSeconds = 600
	}
	cfg.Server.IdempotencyTTL = time.Duration(cfg.Server.IdempotencyTTLSeconds) * time.Second

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Capacity.DefaultLimit <= 0 {
		cfg.Capacity.DefaultLimit = 3
	}

	if cfg.Sync.MaxAttempts <= 0 {
		cfg.Sync.MaxAttempts = 3
	}
	if cfg.Sync.BaseDelayMillis <= 0 {
		cfg.Sync.BaseDelayMillis = 250
	}
	if cfg.Sync.MaxDelayMillis <= 0 {
		cfg.Sync.MaxDelayMillis = 2000
	}
	if cfg.Sync.SettleDelayMillis <= 0 {
		cfg.Sync.SettleDelayMillis = 1500
	}
	if cfg.Sync.RequestTimeoutSeconds <= 0 {
		cfg.Sync.RequestTimeoutSeconds = 15
	}
	if cfg.Sync.BaseURL == "" {
		cfg.Sync.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	cfg.Sync.BaseDelay = time.Duration(cfg.Sync.BaseDelayMillis) * time.Millisecond
	cfg.Sync.MaxDelay = time.Duration(cfg.Sync.MaxDelayMillis) * time.Millisecond
	cfg.Sync.SettleDelay = time.Duration(cfg.Sync.SettleDelayMillis) * time.Millisecond
	cfg.Sync.RequestTimeout = time.Duration(cfg.Sync.RequestTimeoutSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Env == "" {
		cfg.Log.Env = "timeoffd"
	}
}

var validate = validator.New()

// Validate checks the configuration against its struct tags.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config validation failed: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
