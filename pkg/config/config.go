package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"StockCast/pkg/util"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Instruments []string `yaml:"instruments"`
	Data        struct {
		DBPath         string `yaml:"db_path"`
		HistoryDays    int    `yaml:"history_days"`
		LookbackWindow int    `yaml:"lookback_window"`
		// RetentionDays prunes bars older than the horizon after each
		// scheduled refresh; 0 keeps the full history.
		RetentionDays int `yaml:"retention_days"`
	} `yaml:"data"`
	Provider struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
		MaxRPS  float64       `yaml:"max_rps"`
		Retry   struct {
			MaxAttempts        int           `yaml:"max_attempts"`
			BaseDelay          time.Duration `yaml:"base_delay"`
			MaxDelay           time.Duration `yaml:"max_delay"`
			UnavailableRetries int           `yaml:"unavailable_retries"`
		} `yaml:"retry"`
	} `yaml:"provider"`
	Training struct {
		Epochs         int    `yaml:"epochs"`
		BatchSize      int    `yaml:"batch_size"`
		ModelsDir      string `yaml:"models_dir"`
		Workers        int    `yaml:"workers"`
		ModelCacheSize int    `yaml:"model_cache_size"`
	} `yaml:"training"`
	Scheduler struct {
		RefreshCron   string        `yaml:"refresh_cron"`
		RetrainCron   string        `yaml:"retrain_cron"`
		RefreshMinGap time.Duration `yaml:"refresh_min_gap"`
	} `yaml:"scheduler"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("INSTRUMENTS"); v != "" {
		c.Instruments = strings.Split(v, ",")
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Data.DBPath = v
	}
	if v := os.Getenv("MODELS_DIR"); v != "" {
		c.Training.ModelsDir = v
	}
	if v := os.Getenv("PROVIDER_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("instruments cannot be empty")
	}
	if c.Data.LookbackWindow <= 0 {
		return fmt.Errorf("data.lookback_window must be positive")
	}
	if c.Data.HistoryDays <= c.Data.LookbackWindow {
		return fmt.Errorf("data.history_days must exceed data.lookback_window")
	}
	if c.Data.DBPath == "" {
		return fmt.Errorf("data.db_path is required")
	}
	if c.Training.ModelsDir == "" {
		return fmt.Errorf("training.models_dir is required")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Provider.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("provider.retry.max_attempts must be positive")
	}
	return nil
}

// Supported reports whether an instrument belongs to the configured universe.
func (c *Config) Supported(instrument string) bool {
	for _, in := range c.Instruments {
		if strings.EqualFold(in, instrument) {
			return true
		}
	}
	return false
}
