package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Build  BuildConfig  `yaml:"build" mapstructure:"build"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// BuildConfig configures statement extraction from feeds.
type BuildConfig struct {
	MaxWorkers        int    `yaml:"max_workers" mapstructure:"max_workers"`
	FilingsDir        string `yaml:"filings_dir" mapstructure:"filings_dir"`
	Currency          string `yaml:"currency" mapstructure:"currency"`
	Recompute         bool   `yaml:"recompute" mapstructure:"recompute"`
	StoreFactMappings bool   `yaml:"store_fact_mappings" mapstructure:"store_fact_mappings"`
	CIK               int64  `yaml:"cik" mapstructure:"cik"`
	TickersFile       string `yaml:"tickers_file" mapstructure:"tickers_file"`
	ReportsDir        string `yaml:"reports_dir" mapstructure:"reports_dir"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	return LoadWith(viper.New())
}

// LoadWith reads configuration into v, which may already carry bound flags.
func LoadWith(v *viper.Viper) (*Config, error) {
	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SECDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "sec.db3")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("build.max_workers", 8)
	v.SetDefault("build.filings_dir", "filings")
	v.SetDefault("build.currency", "USD")
	v.SetDefault("build.recompute", false)
	v.SetDefault("build.store_fact_mappings", false)
	v.SetDefault("build.cik", 0)
	v.SetDefault("build.tickers_file", "data/tickers.csv")
	v.SetDefault("build.reports_dir", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "build":
		if c.Build.MaxWorkers < 1 || c.Build.MaxWorkers > 64 {
			errs = append(errs, "build.max_workers must be between 1 and 64")
		}
		if c.Build.FilingsDir == "" {
			errs = append(errs, "build.filings_dir is required")
		}
		if c.Build.Currency == "" {
			errs = append(errs, "build.currency is required")
		}
	case "migrate":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
