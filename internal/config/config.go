// Package config loads process-wide settings once at startup.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Egold-Exchange/uigisc-be/pkg/database"
	"github.com/Egold-Exchange/uigisc-be/pkg/utilities"
)

const minSecretLength = 32

// devSecretKey is the envDefault for SECRET_KEY. It is public, so only
// development may sign with it.
const devSecretKey = "your-secret-key-change-in-production-min-32-chars"

// Config is the full service configuration.
type Config struct {
	Environment   string   `env:"ENVIRONMENT" envDefault:"development"`
	HTTPAddr      string   `env:"HTTP_ADDR" envDefault:"0.0.0.0:8000"`
	SnowflakeNode int64    `env:"SNOWFLAKE_NODE" envDefault:"1"`
	AdminEmails   []string `env:"ADMIN_EMAILS" envSeparator:"," envDefault:"admin@uigisc.com"`

	Token    TokenConfig
	Codes    CodeConfig
	SMTP     SMTPConfig
	Database database.Config
	Log      utilities.Config
}

// TokenConfig controls bearer token signing.
type TokenConfig struct {
	SecretKey     string `env:"SECRET_KEY" envDefault:"your-secret-key-change-in-production-min-32-chars"`
	ExpireMinutes int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"1440"`
	Issuer        string `env:"TOKEN_ISSUER"`
}

// TTL is the lifetime of an issued access token.
func (c TokenConfig) TTL() time.Duration {
	return time.Duration(c.ExpireMinutes) * time.Minute
}

// CodeConfig controls the one-time code store.
type CodeConfig struct {
	VerifyTTL     time.Duration `env:"VERIFY_CODE_TTL" envDefault:"10m"`
	ResetTTL      time.Duration `env:"RESET_CODE_TTL" envDefault:"15m"`
	MaxAttempts   int           `env:"CODE_MAX_ATTEMPTS" envDefault:"5"`
	Length        int           `env:"CODE_LENGTH" envDefault:"6"`
	SweepInterval time.Duration `env:"CODE_SWEEP_INTERVAL" envDefault:"1m"`
}

// SMTPConfig is used by the code delivery mailer.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"EMAIL_FROM" envDefault:"noreply@uigisc.com"`
}

// Configured reports whether credentials were supplied.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.User != "" && c.Password != ""
}

// IsDevelopment reports whether the service runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Load reads an optional .env file, then parses the environment.
func Load() (Config, error) {
	// best-effort: a missing .env is fine, real env vars still apply
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that would make the auth core unsafe or unusable.
func (c Config) Validate() error {
	var errs []error
	if c.Token.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	} else if !c.IsDevelopment() {
		switch {
		case c.Token.SecretKey == devSecretKey:
			errs = append(errs, errors.New("SECRET_KEY must be set outside development"))
		case len(c.Token.SecretKey) < minSecretLength:
			errs = append(errs, fmt.Errorf("SECRET_KEY must be at least %d bytes", minSecretLength))
		}
	}
	if c.Token.ExpireMinutes <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive"))
	}
	if c.Codes.VerifyTTL <= 0 || c.Codes.ResetTTL <= 0 {
		errs = append(errs, errors.New("code TTLs must be positive"))
	}
	if c.Codes.SweepInterval <= 0 {
		errs = append(errs, errors.New("CODE_SWEEP_INTERVAL must be positive"))
	}
	if c.Codes.MaxAttempts <= 0 {
		errs = append(errs, errors.New("CODE_MAX_ATTEMPTS must be positive"))
	}
	if c.Codes.Length < 4 || c.Codes.Length > 10 {
		errs = append(errs, errors.New("CODE_LENGTH must be between 4 and 10"))
	}
	return errors.Join(errs...)
}
