package taxclean

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "TAXCLEAN_"

// Config is the runtime configuration of the pipeline and the CLI.
type Config struct {
	StateFile     string `yaml:"state_file"`
	LogLevel      string `yaml:"log_level"`
	LogJSON       bool   `yaml:"log_json"`
	TaxRate       string `yaml:"tax_rate"`
	Jurisdiction  string `yaml:"jurisdiction"`
	Currency      string `yaml:"currency"`
	Tolerance     string `yaml:"tolerance"`
	ReconcileFees bool   `yaml:"reconcile_fees"`
	Timeout       string `yaml:"timeout"`
	Workers       int    `yaml:"workers"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		StateFile:    "taxclean.jsonl",
		LogLevel:     "info",
		TaxRate:      "25%",
		Jurisdiction: "Israel",
		Currency:     DefaultCurrency,
		Tolerance:    DefaultTolerance.String(),
		Timeout:      DefaultTimeout.String(),
		Workers:      4,
	}
}

// LoadConfig returns the defaults, overridden in turn by the YAML file at
// path (when path is not empty), by a .env file in the working directory and
// by TAXCLEAN_* environment variables.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("could not read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("invalid config %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, fmt.Errorf("could not load .env: %w", err)
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(p *string) func(string) error { return func(v string) error { *p = v; return nil } }
	boolean := func(p *bool) func(string) error {
		return func(v string) (err error) { *p, err = strconv.ParseBool(v); return }
	}
	vars := []struct {
		name string
		set  func(string) error
	}{
		{"STATE_FILE", str(&c.StateFile)},
		{"LOG_LEVEL", str(&c.LogLevel)},
		{"LOG_JSON", boolean(&c.LogJSON)},
		{"TAX_RATE", str(&c.TaxRate)},
		{"JURISDICTION", str(&c.Jurisdiction)},
		{"CURRENCY", str(&c.Currency)},
		{"TOLERANCE", str(&c.Tolerance)},
		{"RECONCILE_FEES", boolean(&c.ReconcileFees)},
		{"TIMEOUT", str(&c.Timeout)},
		{"WORKERS", func(v string) (err error) { c.Workers, err = strconv.Atoi(v); return }},
	}
	for _, v := range vars {
		val, ok := lookup(EnvPrefix + v.name)
		if !ok || val == "" {
			continue
		}
		if err := v.set(val); err != nil {
			return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, v.name, val, err)
		}
	}
	return nil
}

// Validate checks every value can be used.
func (c Config) Validate() error {
	if _, err := c.Rules(); err != nil {
		return err
	}
	if _, err := c.Reconcile(); err != nil {
		return err
	}
	if d, err := c.TimeoutDuration(); err != nil {
		return err
	} else if d <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", d)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

// Rules returns the tax rules: the Israeli rules with the configured rate,
// jurisdiction and currency.
func (c Config) Rules() (TaxRules, error) {
	r := IsraeliRules()
	if c.TaxRate != "" {
		rate, err := ParseRate(c.TaxRate)
		if err != nil {
			return r, fmt.Errorf("invalid tax_rate: %w", err)
		}
		r.Rate = rate
	}
	if c.Jurisdiction != "" {
		r.Jurisdiction = c.Jurisdiction
	}
	if c.Currency != "" {
		r.Currency = c.Currency
	}
	return r, nil
}

// Reconcile returns the reconciliation options.
func (c Config) Reconcile() (ReconcileOptions, error) {
	o := DefaultReconcileOptions()
	if c.Tolerance != "" {
		t, err := decimal.NewFromString(c.Tolerance)
		if err != nil {
			return o, fmt.Errorf("invalid tolerance: %w", err)
		}
		if t.IsNegative() {
			return o, fmt.Errorf("invalid tolerance %s: must not be negative", t)
		}
		o.Tolerance = t
	}
	if c.ReconcileFees {
		o = o.WithFees()
	}
	return o, nil
}

// TimeoutDuration returns the per-submission timeout.
func (c Config) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return DefaultTimeout, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %w", err)
	}
	return d, nil
}

// Logger builds the configured logger.
func (c Config) Logger() (*zap.Logger, error) {
	return NewLogger(LogConfig{Level: c.LogLevel, JSON: c.LogJSON, Color: !c.LogJSON})
}

// Options returns the pipeline options of c, logging to log.
func (c Config) Options(log *zap.Logger) ([]Option, error) {
	rules, err := c.Rules()
	if err != nil {
		return nil, err
	}
	rec, err := c.Reconcile()
	if err != nil {
		return nil, err
	}
	timeout, err := c.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	return []Option{WithLogger(log), WithTaxRules(rules), WithReconcileOptions(rec), WithTimeout(timeout)}, nil
}
