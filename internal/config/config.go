// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

// Package config loads TaskMaster settings from defaults, a YAML file,
// TASKMASTER_* environment variables and command-line flags, in that order.
package config

import (
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/taskmaster/taskmaster/internal/logging"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TASKMASTER_"

// CodeInvalid marks configuration that fails validation.
const CodeInvalid = "CONFIG_INVALID"

const masked = "********"

// Config is the full TaskMaster configuration.
type Config struct {
	Environment string         `koanf:"environment" yaml:"environment" json:"environment,omitempty" jsonschema:"enum=development,enum=production"`
	Log         LogConfig      `koanf:"log" yaml:"log" json:"log,omitempty"`
	HTTP        HTTPConfig     `koanf:"http" yaml:"http" json:"http,omitempty"`
	Metrics     MetricsConfig  `koanf:"metrics" yaml:"metrics" json:"metrics,omitempty"`
	DataDir     string         `koanf:"data_dir" yaml:"data_dir" json:"data_dir,omitempty" jsonschema:"description=Directory for the file store; ignored when database.url is set"`
	Database    DatabaseConfig `koanf:"database" yaml:"database" json:"database,omitempty"`
	Email       EmailConfig    `koanf:"email" yaml:"email" json:"email,omitempty"`
	Supabase    SupabaseConfig `koanf:"supabase" yaml:"supabase" json:"supabase,omitempty"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" yaml:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// HTTPConfig controls the API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr" json:"addr,omitempty"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout,omitempty" jsonschema:"type=string,description=Go duration such as 10s"`
}

// MetricsConfig controls the metrics and health listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr" json:"addr,omitempty"`
}

// DatabaseConfig selects PostgreSQL storage when URL is set.
type DatabaseConfig struct {
	URL string `koanf:"url" yaml:"url" json:"url,omitempty" jsonschema:"description=postgres:// connection URL"`
}

// EmailConfig controls outgoing mail.
type EmailConfig struct {
	From     string     `koanf:"from" yaml:"from" json:"from,omitempty"`
	FromName string     `koanf:"from_name" yaml:"from_name" json:"from_name,omitempty"`
	SMTP     SMTPConfig `koanf:"smtp" yaml:"smtp" json:"smtp,omitempty"`
}

// SMTPConfig is the relay. Empty Host means mail is only logged.
type SMTPConfig struct {
	Host     string `koanf:"host" yaml:"host" json:"host,omitempty"`
	Port     int    `koanf:"port" yaml:"port" json:"port,omitempty" jsonschema:"minimum=1,maximum=65535"`
	Username string `koanf:"username" yaml:"username" json:"username,omitempty"`
	Password string `koanf:"password" yaml:"password" json:"password,omitempty"`
	SSL      bool   `koanf:"ssl" yaml:"ssl" json:"ssl,omitempty"`
}

// SupabaseConfig enables OAuth sign-in when both fields are set.
type SupabaseConfig struct {
	URL            string `koanf:"url" yaml:"url" json:"url,omitempty"`
	ServiceRoleKey string `koanf:"service_role_key" yaml:"service_role_key" json:"service_role_key,omitempty"`
}

// IsProduction reports whether Environment is production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// SMTPConfigured reports whether a relay host is set.
func (c *Config) SMTPConfigured() bool {
	return c.Email.SMTP.Host != ""
}

// OAuthEnabled reports whether the Supabase identity provider is configured.
func (c *Config) OAuthEnabled() bool {
	return c.Supabase.URL != "" && c.Supabase.ServiceRoleKey != ""
}

// Validate checks field values and cross-field rules.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return oops.Code(CodeInvalid).With("key", "environment").
			Errorf("environment must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Environment)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code(CodeInvalid).With("key", "log.format").
			Errorf("log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code(CodeInvalid).With("key", "log.level").Wrap(err)
	}
	if c.HTTP.Addr == "" {
		return oops.Code(CodeInvalid).With("key", "http.addr").Errorf("http address is required")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return oops.Code(CodeInvalid).With("key", "http.shutdown_timeout").Errorf("shutdown timeout must be positive")
	}
	if c.Database.URL == "" && c.DataDir == "" {
		return oops.Code(CodeInvalid).With("key", "data_dir").Errorf("data_dir is required without database.url")
	}
	if c.SMTPConfigured() && (c.Email.SMTP.Port < 1 || c.Email.SMTP.Port > 65535) {
		return oops.Code(CodeInvalid).With("key", "email.smtp.port").
			Errorf("smtp port must be between 1 and 65535, got %d", c.Email.SMTP.Port)
	}
	if c.IsProduction() && !c.SMTPConfigured() {
		return oops.Code(CodeInvalid).With("key", "email.smtp.host").
			Errorf("SMTP is not configured; production requires email.smtp.host")
	}
	if (c.Supabase.URL == "") != (c.Supabase.ServiceRoleKey == "") {
		return oops.Code(CodeInvalid).With("key", "supabase").
			Errorf("supabase.url and supabase.service_role_key must be set together")
	}
	return nil
}

// Redacted returns a copy safe to print: secrets are masked and the
// database URL loses its password.
func (c Config) Redacted() Config {
	if c.Email.SMTP.Password != "" {
		c.Email.SMTP.Password = masked
	}
	if c.Supabase.ServiceRoleKey != "" {
		c.Supabase.ServiceRoleKey = masked
	}
	c.Database.URL = redactURL(c.Database.URL)
	return c
}

func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return masked
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), masked)
	}
	return u.String()
}
