// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TaskMaster Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/taskmaster/taskmaster/internal/email"
	"github.com/taskmaster/taskmaster/internal/xdg"
)

// Built-in defaults.
const (
	DefaultHTTPAddr        = "127.0.0.1:3000"
	DefaultMetricsAddr     = "127.0.0.1:9100"
	DefaultShutdownTimeout = "10s"
	DefaultSMTPPort        = 587
)

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"environment":  "environment",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"data-dir":     "data_dir",
	"database-url": "database.url",
}

// Options controls Load.
type Options struct {
	// File is an explicit config path that must exist. When empty, the XDG
	// default is read if present.
	File string
	// Flags holds flags registered with RegisterFlags. Only flags the user
	// set override lower layers.
	Flags *pflag.FlagSet
}

// RegisterFlags declares the flags Load understands on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("environment", "", "development or production")
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("http-addr", "", "API listen address (default "+DefaultHTTPAddr+")")
	fs.String("metrics-addr", "", "metrics/health listen address, empty disables (default "+DefaultMetricsAddr+")")
	fs.String("data-dir", "", "file store directory (default XDG_DATA_HOME/taskmaster)")
	fs.String("database-url", "", "PostgreSQL URL; selects the database store")
}

func defaults() map[string]any {
	// Without a home directory data_dir stays empty and Validate reports it.
	dataDir, _ := xdg.DataDir()
	return map[string]any{
		"environment":               EnvDevelopment,
		"log.format":                "json",
		"log.level":                 "info",
		"http.addr":                 DefaultHTTPAddr,
		"http.shutdown_timeout":     DefaultShutdownTimeout,
		"metrics.addr":              DefaultMetricsAddr,
		"data_dir":                  dataDir,
		"database.url":              "",
		"email.from":                email.DefaultFrom,
		"email.from_name":           email.DefaultFromName,
		"email.smtp.host":           "",
		"email.smtp.port":           DefaultSMTPPort,
		"email.smtp.username":       "",
		"email.smtp.password":       "",
		"email.smtp.ssl":            false,
		"supabase.url":              "",
		"supabase.service_role_key": "",
	}
}

// Load builds the configuration and validates it.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	defs := defaults()
	if err := k.Load(confmap.Provider(defs, "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "defaults").Wrap(err)
	}

	path, err := configPath(opts.File)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, err
		}
	}

	envKeys := make(map[string]string, len(defs))
	for key := range defs {
		envKeys[strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	}
	envProvider := env.Provider(EnvPrefix, ".", func(name string) string {
		return envKeys[strings.TrimPrefix(name, EnvPrefix)]
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
	}

	if opts.Flags != nil {
		if err := loadFlags(k, opts.Flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code(CodeInvalid).With("operation", "decode config").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// configPath returns the file to read, or "" when the default is absent.
func configPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	path, err := xdg.ConfigFile()
	if err != nil {
		return "", nil //nolint:nilerr // no home directory means no default file
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return path, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateYAML(data); err != nil {
		return oops.Code(CodeInvalid).With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

func loadFlags(k *koanf.Koanf, flags *pflag.FlagSet) error {
	known := pflag.NewFlagSet("config", pflag.ContinueOnError)
	flags.VisitAll(func(f *pflag.Flag) {
		if _, ok := flagKeys[f.Name]; ok {
			known.AddFlag(f)
		}
	})

	provider := posflag.ProviderWithFlag(known, ".", k, func(f *pflag.Flag) (string, any) {
		return flagKeys[f.Name], posflag.FlagVal(known, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
	}
	return nil
}
