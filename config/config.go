// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names.
const (
	EnvAppEnv          = "OPTOM_APP_ENV"
	EnvHTTPAddr        = "OPTOM_HTTP_ADDR"
	EnvReadTimeout     = "OPTOM_READ_TIMEOUT"
	EnvWriteTimeout    = "OPTOM_WRITE_TIMEOUT"
	EnvShutdownTimeout = "OPTOM_SHUTDOWN_TIMEOUT"
	EnvCORSOrigins     = "OPTOM_CORS_ORIGINS"
	EnvRateLimit       = "OPTOM_RATE_LIMIT"
	EnvDBPath          = "OPTOM_DB_PATH"
	EnvAutoMigrate     = "OPTOM_AUTO_MIGRATE"
	EnvLogLevel        = "OPTOM_LOG_LEVEL"
	EnvLogFormat       = "OPTOM_LOG_FORMAT"
	EnvDriftInterval   = "OPTOM_DRIFT_CHECK_INTERVAL"
	EnvSeedScenario    = "OPTOM_SEED_SCENARIO"
)

type Config struct {
	App  AppConfig
	HTTP HTTPConfig
	DB   DBConfig
	Log  LogConfig
}

type AppConfig struct {
	Env string `envconfig:"OPTOM_APP_ENV" default:"dev"`

	// DriftCheckInterval is how often serve compares stored stock with the
	// ledger; 0 disables the background check.
	DriftCheckInterval time.Duration `envconfig:"OPTOM_DRIFT_CHECK_INTERVAL" default:"1h"`

	// SeedScenario, when set, is loaded into an empty database on serve.
	SeedScenario string `envconfig:"OPTOM_SEED_SCENARIO"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

type HTTPConfig struct {
	Addr            string        `envconfig:"OPTOM_HTTP_ADDR" default:":3001"`
	ReadTimeout     time.Duration `envconfig:"OPTOM_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"OPTOM_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"OPTOM_SHUTDOWN_TIMEOUT" default:"10s"`
	CORSOrigins     []string      `envconfig:"OPTOM_CORS_ORIGINS" default:"*"`

	// RateLimit is mutation requests per minute per client IP; 0 disables it.
	RateLimit int `envconfig:"OPTOM_RATE_LIMIT" default:"120"`
}

type DBConfig struct {
	Path        string `envconfig:"OPTOM_DB_PATH" default:"optom.db"`
	AutoMigrate bool   `envconfig:"OPTOM_AUTO_MIGRATE" default:"true"`
}

type LogConfig struct {
	Level  string `envconfig:"OPTOM_LOG_LEVEL" default:"info"`
	Format string `envconfig:"OPTOM_LOG_FORMAT" default:"json"`
}

// Load reads the environment. When envFile is set it is loaded first and
// must exist; otherwise a ./.env file is used if present. Variables already
// set in the process environment win over file values.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures that required configuration fields are usable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("%s must be provided", EnvHTTPAddr)
	}
	if strings.TrimSpace(c.DB.Path) == "" {
		return fmt.Errorf("%s must be provided", EnvDBPath)
	}
	if c.App.DriftCheckInterval < 0 {
		return fmt.Errorf("%s must be >= 0", EnvDriftInterval)
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("%s must be >= 0", EnvRateLimit)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%s must be json or console, got %q", EnvLogFormat, c.Log.Format)
	}
	return nil
}
