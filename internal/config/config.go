// Package config loads and saves batchtrack settings.
//
// Settings come from a YAML file (ConfigPath by default) with BATCHTRACK_
// environment variables taking precedence, e.g. BATCHTRACK_ENVIRONMENT or
// BATCHTRACK_DATE_LAYOUT.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/afraponix/batchtrack/internal/batch"
	"github.com/afraponix/batchtrack/internal/storage"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// ErrInvalid is returned by Validate and Load for unusable settings.
var ErrInvalid = errors.New("invalid configuration")

// Config holds batchtrack settings.
type Config struct {
	Environment string         `mapstructure:"environment" yaml:"environment"`
	LogLevel    string         `mapstructure:"log_level" yaml:"log_level,omitempty"`
	Database    string         `mapstructure:"database" yaml:"database"`
	Timezone    string         `mapstructure:"timezone" yaml:"timezone,omitempty"`
	DateLayout  string         `mapstructure:"date_layout" yaml:"date_layout"`
	HarvestDays map[string]int `mapstructure:"harvest_days" yaml:"harvest_days"`
	Editor      string         `mapstructure:"editor" yaml:"editor,omitempty"`
}

// DefaultHarvestDays are typical days from planting to harvest in an
// aquaponic grow bed.
func DefaultHarvestDays() map[string]int {
	return map[string]int{
		"lettuce":         35,
		"basil":           45,
		"spinach":         40,
		"kale":            55,
		"cherry_tomatoes": 75,
		"peppers":         80,
		"strawberries":    90,
	}
}

// Default returns the built-in configuration.
func Default() Config {
	dbPath, err := storage.DefaultDBPath()
	if err != nil {
		dbPath = filepath.Join(".batchtrack", "batchtrack.db")
	}
	return Config{
		Environment: EnvDevelopment,
		Database:    dbPath,
		DateLayout:  batch.DefaultDateLayout,
		HarvestDays: DefaultHarvestDays(),
	}
}

// ConfigDir returns the directory holding config.yaml.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "batchtrack"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	return filepath.Join(home, ".config", "batchtrack"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	defaults := Default()
	v.SetDefault("environment", defaults.Environment)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("database", defaults.Database)
	v.SetDefault("timezone", defaults.Timezone)
	v.SetDefault("date_layout", defaults.DateLayout)
	v.SetDefault("editor", defaults.Editor)
	// A map[string]any default lets file entries merge per crop.
	harvestDays := make(map[string]any, len(defaults.HarvestDays))
	for crop, days := range defaults.HarvestDays {
		harvestDays[crop] = days
	}
	v.SetDefault("harvest_days", harvestDays)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BATCHTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (ConfigPath when empty). A missing file yields defaults.
func Load(path string) (Config, error) {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return Default(), err
		}
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Default(), fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Default(), fmt.Errorf("load config: unmarshal: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to path (ConfigPath when empty), creating the directory.
func Save(cfg Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save config: create dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("environment", cfg.Environment)
	if cfg.LogLevel != "" {
		v.Set("log_level", cfg.LogLevel)
	}
	v.Set("database", cfg.Database)
	if cfg.Timezone != "" {
		v.Set("timezone", cfg.Timezone)
	}
	v.Set("date_layout", cfg.DateLayout)
	v.Set("harvest_days", cfg.HarvestDays)
	if cfg.Editor != "" {
		v.Set("editor", cfg.Editor)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.Timezone = strings.TrimSpace(c.Timezone)
	c.Editor = strings.TrimSpace(c.Editor)
	if c.DateLayout == "" {
		c.DateLayout = batch.DefaultDateLayout
	}
	if c.HarvestDays == nil {
		c.HarvestDays = map[string]int{}
	}
	normalized := make(map[string]int, len(c.HarvestDays))
	for crop, days := range c.HarvestDays {
		normalized[normalizeCrop(crop)] = days
	}
	c.HarvestDays = normalized
}

func normalizeCrop(crop string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(crop)), " ", "_")
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("%w: environment %q (want %s or %s)", ErrInvalid, c.Environment, EnvDevelopment, EnvProduction)
	}
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("%w: database path is empty", ErrInvalid)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("%w: timezone %q: %v", ErrInvalid, c.Timezone, err)
		}
	}
	for _, crop := range c.Crops() {
		if days := c.HarvestDays[crop]; days <= 0 || days > batch.MaxDaysToHarvest {
			return fmt.Errorf("%w: harvest_days.%s must be between 1 and %d", ErrInvalid, crop, batch.MaxDaysToHarvest)
		}
	}
	return nil
}

// Development reports whether development logging is enabled.
func (c Config) Development() bool { return c.Environment != EnvProduction }

// Location returns the configured time zone, or time.Local.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// HarvestDaysFor returns the default days to harvest for crop, or 0.
func (c Config) HarvestDaysFor(crop string) int {
	return c.HarvestDays[normalizeCrop(crop)]
}

// Crops lists crops with a configured harvest timeline, sorted.
func (c Config) Crops() []string {
	crops := make([]string, 0, len(c.HarvestDays))
	for crop := range c.HarvestDays {
		crops = append(crops, crop)
	}
	sort.Strings(crops)
	return crops
}
