// Package config loads billcast settings from a YAML file, an optional .env
// file and the process environment, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/awsl-project/billcast/internal/domain"
)

// Environment profiles.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Source kinds.
const (
	SourceDatabase = "database"
	SourceCSV      = "csv"
)

type Config struct {
	Env       string    `yaml:"env"`
	Source    Source    `yaml:"source"`
	Reconcile Reconcile `yaml:"reconcile"`
	Forecast  Forecast  `yaml:"forecast"`
	Logging   Logging   `yaml:"logging"`
	Storage   Storage   `yaml:"storage"`
}

type Source struct {
	Kind    string            `yaml:"kind"`
	DSN     string            `yaml:"dsn"`
	Schema  string            `yaml:"schema"`
	DataDir string            `yaml:"data_dir"`
	Tables  domain.TableNames `yaml:"tables"`
	Pool    Pool              `yaml:"pool"`
}

// Pool mirrors the sizing knobs of the warehouse connection pool.
type Pool struct {
	Size        int           `yaml:"size"`
	MaxOverflow int           `yaml:"max_overflow"`
	Timeout     time.Duration `yaml:"timeout"`
	Recycle     time.Duration `yaml:"recycle"`
}

type Reconcile struct {
	DateLayout string `yaml:"date_layout"`
	// Fees priced above this are left out of term_total_cost.
	TermCostMaxUnitPrice float64 `yaml:"term_cost_max_unit_price"`
}

type Forecast struct {
	CategoryMaxUnitPrice float64 `yaml:"category_max_unit_price"`
	MinTrainingSamples   int     `yaml:"min_training_samples"`
	TestSplitRatio       float64 `yaml:"test_split_ratio"`
	RandomSeed           int64   `yaml:"random_seed"`
	OutlierIQRMultiplier float64 `yaml:"outlier_iqr_multiplier"`
	Trees                int     `yaml:"trees"`
	MaxDepth             int     `yaml:"max_depth"`
	FallbackUnitPrice    float64 `yaml:"fallback_unit_price"`
	InitialUnitPrice     float64 `yaml:"initial_unit_price"`
	Epsilon              float64 `yaml:"epsilon"`
	Currency             string  `yaml:"currency"`
	Horizon              Horizon `yaml:"horizon"`
}

type Horizon struct {
	Min     int `yaml:"min"`
	Max     int `yaml:"max"`
	Default int `yaml:"default"`
}

type Logging struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type Storage struct {
	// ModelPath is where trained model snapshots are written.
	ModelPath string `yaml:"model_path"`
	// RunsDSN records training runs; empty falls back to the source DSN.
	RunsDSN string `yaml:"runs_dsn"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Env: EnvDevelopment,
		Source: Source{
			Kind:    SourceDatabase,
			Schema:  "public",
			DataDir: "data",
			Tables:  domain.DefaultTableNames(),
			Pool: Pool{
				Size:        5,
				MaxOverflow: 10,
				Timeout:     30 * time.Second,
				Recycle:     time.Hour,
			},
		},
		Reconcile: Reconcile{
			DateLayout:           "20060102150405",
			TermCostMaxUnitPrice: 5.0,
		},
		Forecast: Forecast{
			CategoryMaxUnitPrice: 10.0,
			MinTrainingSamples:   10,
			TestSplitRatio:       0.1,
			RandomSeed:           42,
			OutlierIQRMultiplier: 5.0,
			Trees:                100,
			MaxDepth:             10,
			FallbackUnitPrice:    6.59,
			InitialUnitPrice:     6.34,
			Epsilon:              1e-6,
			Currency:             "TL",
			Horizon:              Horizon{Min: 1, Max: 12, Default: 6},
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Storage: Storage{
			ModelPath: "models/latest.json.zst",
		},
	}
}

// Load builds the configuration. path may be empty; a missing .env is fine.
// Overrides run after the environment, so command-line flags win.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg.applyEnv(os.Getenv)
	for _, o := range overrides {
		o(cfg)
	}
	cfg.applyProfile()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ENV"); v != "" {
		c.Env = strings.ToLower(v)
	}
	if v := getenv("BILLCAST_SOURCE"); v != "" {
		c.Source.Kind = v
	}
	if v := getenv("BILLCAST_DATA_DIR"); v != "" {
		c.Source.DataDir = v
	}
	if v := getenv("BILLCAST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("DB_SCHEMA"); v != "" {
		c.Source.Schema = v
	}
	if v := getenv("BILLCAST_DSN"); v != "" {
		c.Source.DSN = v
	} else if c.Source.DSN == "" && getenv("DB_HOST") != "" {
		c.Source.DSN = postgresDSN(getenv)
	}

	setInt(getenv, "DB_POOL_SIZE", &c.Source.Pool.Size)
	setInt(getenv, "DB_MAX_OVERFLOW", &c.Source.Pool.MaxOverflow)
	setSeconds(getenv, "DB_POOL_TIMEOUT", &c.Source.Pool.Timeout)
	setSeconds(getenv, "DB_POOL_RECYCLE", &c.Source.Pool.Recycle)
}

// applyProfile adjusts settings for the ENV profile.
func (c *Config) applyProfile() {
	switch c.Env {
	case EnvTest:
		c.Forecast.MinTrainingSamples = 5
	case EnvProduction:
		if c.Logging.Level == "info" || c.Logging.Level == "debug" {
			c.Logging.Level = "warn"
		}
	}
}

// postgresDSN assembles a libpq connection string from DB_* variables.
func postgresDSN(getenv func(string) string) string {
	port := getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	parts := []string{
		"host=" + getenv("DB_HOST"),
		"port=" + port,
	}
	if v := getenv("DB_NAME"); v != "" {
		parts = append(parts, "dbname="+v)
	}
	if v := getenv("DB_USER"); v != "" {
		parts = append(parts, "user="+v)
	}
	if v := getenv("DB_PASSWORD"); v != "" {
		parts = append(parts, "password="+quoteLibpq(v))
	}
	parts = append(parts, "sslmode=disable")
	return strings.Join(parts, " ")
}

func quoteLibpq(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func setInt(getenv func(string) string, key string, dst *int) {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setSeconds(getenv func(string) string, key string, dst *time.Duration) {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}

// Validate checks the settings and returns a *domain.ConfigError listing every problem.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		add("env %q must be development, production or test", c.Env)
	}

	switch c.Source.Kind {
	case SourceDatabase:
		if c.Source.DSN == "" {
			add("source.dsn is required for the database source (or set DB_HOST)")
		}
	case SourceCSV:
		if c.Source.DataDir == "" {
			add("source.data_dir is required for the csv source")
		}
	default:
		add("source.kind %q must be %s or %s", c.Source.Kind, SourceDatabase, SourceCSV)
	}
	if c.Source.Pool.Size < 1 {
		add("source.pool.size must be at least 1")
	}
	if c.Source.Pool.MaxOverflow < 0 {
		add("source.pool.max_overflow must not be negative")
	}

	if c.Reconcile.DateLayout == "" {
		add("reconcile.date_layout is required")
	}
	if c.Reconcile.TermCostMaxUnitPrice <= 0 {
		add("reconcile.term_cost_max_unit_price must be positive")
	}

	f := c.Forecast
	if f.CategoryMaxUnitPrice <= 0 {
		add("forecast.category_max_unit_price must be positive")
	}
	if f.MinTrainingSamples < 2 {
		add("forecast.min_training_samples must be at least 2")
	}
	if f.TestSplitRatio <= 0 || f.TestSplitRatio >= 1 {
		add("forecast.test_split_ratio must be in (0, 1)")
	}
	if f.OutlierIQRMultiplier <= 0 {
		add("forecast.outlier_iqr_multiplier must be positive")
	}
	if f.Trees < 1 {
		add("forecast.trees must be at least 1")
	}
	if f.MaxDepth < 1 {
		add("forecast.max_depth must be at least 1")
	}
	if f.FallbackUnitPrice <= 0 {
		add("forecast.fallback_unit_price must be positive")
	}
	if f.Horizon.Min < 1 || f.Horizon.Max < f.Horizon.Min {
		add("forecast.horizon must satisfy 1 <= min <= max")
	} else if f.Horizon.Default < f.Horizon.Min || f.Horizon.Default > f.Horizon.Max {
		add("forecast.horizon.default must be within [min, max]")
	}

	if len(problems) > 0 {
		return &domain.ConfigError{Problems: problems}
	}
	return nil
}

// RedactedDSN hides the password of a DSN so it can be logged or stored.
func RedactedDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			return u.String()
		}
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=xxxxx"
		}
	}
	return strings.Join(fields, " ")
}
