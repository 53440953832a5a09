// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package main

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/xdg"
)

// Config is the CLI configuration. Values come from the YAML file named by
// --config, or $XDG_CONFIG_HOME/escapepod/config.yaml when present, and are
// overridden by flags set on the command line.
type Config struct {
	Addr           string        `koanf:"addr"`
	LogFormat      string        `koanf:"log-format"`
	LogLevel       string        `koanf:"log-level"`
	Timeout        time.Duration `koanf:"timeout"`
	ConnectRetries int           `koanf:"connect-retries"`
	KeepAlive      int64         `koanf:"keep-alive"`
	ProxyVersion   string        `koanf:"proxy-version"`
	MetricsAddr    string        `koanf:"metrics-addr"`
	TLSCA          string        `koanf:"tls-ca"`
}

// defaultConfigFile returns the XDG config file if it exists.
func defaultConfigFile() string {
	path, err := xdg.ConfigFile()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// loadConfig merges the config file and flags. Flags changed on the command
// line win over the file; unchanged flags only fill keys the file lacks.
func loadConfig(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path := configFile
	if path == "" {
		path = defaultConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrapf(err, "load config file")
		}
	}
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "load flags")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "decode config")
	}
	if cfg.Addr == "" {
		return nil, oops.Code("CONFIG_INVALID").
			Hint("pass --addr or set addr in the config file").
			Errorf("extension proxy address is required")
	}
	return &cfg, nil
}
