// Package config loads config.yaml, applies environment overrides and
// validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTolerance       = "0.01"
	DefaultMaxRows         = 500
	DefaultQueryTimeout    = 5 * time.Second
	DefaultLLMTimeout      = 30 * time.Second
	DefaultLLMModel        = "deepseek-chat"
	DefaultLLMBaseURL      = "https://api.deepseek.com"
	DefaultLLMTemperature  = 0.3
	DefaultLLMMaxTokens    = 1000
	DefaultMaxUploadMB     = 20
	DefaultMaxStatementLen = 4000
	DefaultSchema          = "public"
	DefaultHTTPAddr        = ":8080"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Query     QueryConfig     `yaml:"query"`
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
}

type DatabaseConfig struct {
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Host     string `yaml:"host" validate:"required"`
	Port     string `yaml:"port" validate:"required,numeric"`
	Name     string `yaml:"name" validate:"required"`
	SSLMode  string `yaml:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	Schema   string `yaml:"schema"`
	MaxConns int32  `yaml:"max_conns" validate:"gte=0"`
}

// DSN is the keyword/value connection string understood by lib/pq and pgx.
func (d DatabaseConfig) DSN() string {
	ssl := d.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, ssl,
	)
}

type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url"`
	Model       string        `yaml:"model" validate:"required"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	Temperature float32       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `yaml:"max_tokens" validate:"gt=0"`
}

type IngestionConfig struct {
	Tolerance   string `yaml:"tolerance" validate:"numeric"`
	MaxUploadMB int    `yaml:"max_upload_mb" validate:"gt=0"`
	KeepContent bool   `yaml:"keep_content"`
}

// ToleranceDecimal is the reconciliation tolerance as a decimal.
func (c IngestionConfig) ToleranceDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(c.Tolerance)
	if err != nil {
		return decimal.RequireFromString(DefaultTolerance)
	}
	return d.Abs()
}

type QueryConfig struct {
	MaxRows            int           `yaml:"max_rows" validate:"gt=0,lte=100000"`
	Timeout            time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxStatementLength int           `yaml:"max_statement_length" validate:"gt=0"`
	// MaxTables caps table references in one statement; 0 means the number
	// of queryable catalog tables.
	MaxTables int `yaml:"max_tables" validate:"gte=0"`
	// Interpret renders answers through a second model call.
	Interpret bool `yaml:"interpret"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Host: "localhost", Port: "5432", SSLMode: "disable", Schema: DefaultSchema},
		LLM: LLMConfig{
			BaseURL:     DefaultLLMBaseURL,
			Model:       DefaultLLMModel,
			Timeout:     DefaultLLMTimeout,
			Temperature: DefaultLLMTemperature,
			MaxTokens:   DefaultLLMMaxTokens,
		},
		Ingestion: IngestionConfig{Tolerance: DefaultTolerance, MaxUploadMB: DefaultMaxUploadMB, KeepContent: true},
		Query: QueryConfig{
			MaxRows:            DefaultMaxRows,
			Timeout:            DefaultQueryTimeout,
			MaxStatementLength: DefaultMaxStatementLen,
		},
		Log:  LogConfig{Level: "info"},
		HTTP: HTTPConfig{Addr: DefaultHTTPAddr},
	}
}

// LoadEnv reads .env files for local runs; missing files are ignored.
func LoadEnv(paths ...string) {
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// Load reads path over the defaults (a missing file is fine), then applies
// environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	set(&c.Database.User, "DB_USER")
	set(&c.Database.Password, "DB_PASSWORD")
	set(&c.Database.Host, "DB_HOST")
	set(&c.Database.Port, "DB_PORT")
	set(&c.Database.Name, "DB_NAME")
	set(&c.Database.SSLMode, "DB_SSLMODE")
	set(&c.LLM.APIKey, "LLM_API_KEY", "DEEPSEEK_API_KEY")
	set(&c.LLM.BaseURL, "LLM_BASE_URL")
	set(&c.LLM.Model, "LLM_MODEL")
	set(&c.HTTP.Addr, "HTTP_ADDR")
	set(&c.Log.Level, "LOG_LEVEL")
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
