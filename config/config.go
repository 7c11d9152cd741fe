package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/corosback/models"
)

// EnvPrefix is the prefix for all environment variable overrides,
// e.g. COROSBACK_BACKUP_DIR or COROSBACK_LOG_LEVEL.
const EnvPrefix = "COROSBACK_"

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "COROSBACK_CONFIG"

// defaultConfigPaths are searched in order; the first file found wins.
var defaultConfigPaths = []string{
	"corosback.yaml",
	"corosback.yml",
	"/etc/corosback/corosback.yaml",
}

// Config holds everything the tool needs for one run. Precedence is
// env > config file > defaults.
type Config struct {
	Email    string `koanf:"email"`
	Password string `koanf:"password"`

	BackupDir string   `koanf:"backup_dir"`
	Formats   []string `koanf:"formats"`

	BaseURL           string        `koanf:"base_url"`
	PageSize          int           `koanf:"page_size"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	RetryAttempts     int           `koanf:"retry_attempts"`
	RetryDelay        time.Duration `koanf:"retry_delay"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Workers           int           `koanf:"workers"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	LogFile   string `koanf:"log_file"`
}

func defaultConfig() *Config {
	return &Config{
		BackupDir:         "./coros_activities",
		Formats:           []string{"fit", "tcx"},
		BaseURL:           "https://teameuapi.coros.com",
		PageSize:          200, // the query endpoint caps size at 200
		RequestTimeout:    30 * time.Second,
		RetryAttempts:     5,
		RetryDelay:        1 * time.Second,
		RequestsPerSecond: 4,
		Workers:           1,
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// COROSBACK_BACKUP_DIR -> backup_dir. Keys are flat, so the
	// underscores survive untouched.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Formats arrive as a comma separated string from the environment.
	if v, ok := k.Get("formats").(string); ok {
		parts := strings.Split(v, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set("formats", trimmed); err != nil {
			return nil, fmt.Errorf("failed to normalize formats: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and format names. Credentials are checked later,
// at the point of use, so `corosback report` works without them.
func (c *Config) Validate() error {
	if c.BackupDir == "" {
		return fmt.Errorf("backup_dir must not be empty")
	}
	if c.PageSize < 1 || c.PageSize > 200 {
		return fmt.Errorf("page_size must be between 1 and 200, got %d", c.PageSize)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must not be negative, got %d", c.RetryAttempts)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive, got %g", c.RequestsPerSecond)
	}
	if _, err := models.ParseFormats(c.Formats); err != nil {
		return err
	}
	return nil
}

// ExportFormats returns the validated export formats.
func (c *Config) ExportFormats() []models.ExportFormat {
	formats, err := models.ParseFormats(c.Formats)
	if err != nil {
		// Validate runs before any caller gets here.
		panic(err)
	}
	return formats
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range defaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
