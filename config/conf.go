package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/rs/zerolog/log"
)

const (
	DefaultModel          = "gpt-3.5-turbo-1106"
	DefaultGeminiModel    = "gemini-2.0-flash"
	DefaultTemperature    = 0.1
	DefaultRatesURL       = "https://open.er-api.com/v6/latest/USD"
	DefaultDatastoreTable = "transactions"
)

type extraction struct {
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxRetries  int     `yaml:"max_retries"`
	RetryBase   string  `yaml:"retry_base"`
}

type rates struct {
	URL        string `yaml:"url"`
	Timeout    string `yaml:"timeout"`
	MaxRetries int    `yaml:"max_retries"`
	RetryBase  string `yaml:"retry_base"`
}

type datastore struct {
	Driver string `yaml:"driver"`
	Table  string `yaml:"table"`
}

type bigQuery struct {
	Dataset string `yaml:"dataset"`
	Table   string `yaml:"table"`
}

type MasterConfig struct {
	Extraction extraction `yaml:"extraction"`
	Rates      rates      `yaml:"rates"`
	Pacing     string     `yaml:"pacing"`
	Datastore  datastore  `yaml:"datastore"`
	BigQuery   bigQuery   `yaml:"bigquery"`
}

// Defaults returns the settings used when no config file is present.
func Defaults() *MasterConfig {
	return &MasterConfig{
		Extraction: extraction{
			Model:       DefaultModel,
			Temperature: DefaultTemperature,
			MaxRetries:  3,
			RetryBase:   "20s",
		},
		Rates: rates{
			URL:        DefaultRatesURL,
			Timeout:    "10s",
			MaxRetries: 3,
			RetryBase:  "2s",
		},
		Pacing: "2s",
		Datastore: datastore{
			Driver: "postgres",
			Table:  DefaultDatastoreTable,
		},
		BigQuery: bigQuery{
			Table: DefaultDatastoreTable,
		},
	}
}

// InitConfig loads the YAML settings at file on top of Defaults. A missing file
// is not an error; a malformed one is.
func InitConfig(file string) (*MasterConfig, error) {
	init := Defaults()
	if err := init.getConf(file); err != nil {
		return nil, err
	}
	if err := init.Validate(); err != nil {
		return nil, err
	}
	return init, nil
}

func (c *MasterConfig) getConf(file string) error {
	yamlFile, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", file).Msg("Config file not found, using defaults")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config %s: %w", file, err)
	}
	if err = yaml.Unmarshal(yamlFile, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", file, err)
	}
	return nil
}

// Validate collects every invalid setting into one error.
func (c *MasterConfig) Validate() error {
	var errs []error

	for name, v := range map[string]string{
		"extraction.retry_base": c.Extraction.RetryBase,
		"rates.timeout":         c.Rates.Timeout,
		"rates.retry_base":      c.Rates.RetryBase,
		"pacing":                c.Pacing,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", name, v))
		}
	}
	if c.Extraction.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("extraction.max_retries cannot be negative"))
	}
	if c.Rates.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("rates.max_retries cannot be negative"))
	}
	if c.Rates.URL == "" {
		errs = append(errs, fmt.Errorf("rates.url is required"))
	}
	switch c.Datastore.Driver {
	case "postgres", "pgx":
	default:
		errs = append(errs, fmt.Errorf("datastore.driver must be postgres or pgx, got %q", c.Datastore.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

func (c *MasterConfig) ExtractionRetryBase() time.Duration { return mustDuration(c.Extraction.RetryBase) }
func (c *MasterConfig) RatesRetryBase() time.Duration { return mustDuration(c.Rates.RetryBase) }
func (c *MasterConfig) RatesTimeout() time.Duration { return mustDuration(c.Rates.Timeout) }
func (c *MasterConfig) PacingDelay() time.Duration { return mustDuration(c.Pacing) }

// mustDuration is only called on values that passed Validate.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("config: unvalidated duration %q", s))
	}
	return d
}
