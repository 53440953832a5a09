// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/certs"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/logging"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/escapepod"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/proxyerr"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the escapepod CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escapepod",
		Short: "EscapePod extension proxy client",
		Long: `escapepod talks to a Cyb3rVector EscapePod extension proxy: it reports
the proxy status, watches the event stream and manages the intents
routed to extensions.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path")
	flags.String("addr", "", "extension proxy address (host or host:port)")
	flags.String("log-format", "text", "log format (text or json)")
	flags.String("log-level", "", "log level (defaults to $"+logging.LevelEnv+" or INFO)")
	flags.Duration("timeout", 10*time.Second, "connect timeout")
	flags.Int("connect-retries", 3, "connect attempts after the first one fails")
	flags.String("proxy-version", "", "semver constraint the proxy version must satisfy")
	flags.String("tls-ca", "", "PEM CA bundle; connects over TLS when set")

	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewIntentsCmd())
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewCertsCmd())

	return cmd
}

func newLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Leveler
	if cfg.LogLevel != "" {
		level = logging.ParseLevel(cfg.LogLevel)
	}
	return logging.Setup("escapepod", version, cfg.LogFormat, level, w)
}

// connect creates a client from cfg and connects it.
func connect(ctx context.Context, cmd *cobra.Command, cfg *Config, opts ...escapepod.Option) (*escapepod.Client, error) {
	client, err := newClient(cmd, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := dial(ctx, client, cfg); err != nil {
		return nil, err
	}
	return client, nil
}

// newClient creates an unconnected client from cfg.
func newClient(cmd *cobra.Command, cfg *Config, opts ...escapepod.Option) (*escapepod.Client, error) {
	logger := newLogger(cfg, cmd.ErrOrStderr())
	opts = append([]escapepod.Option{escapepod.WithLogger(logger)}, opts...)
	if cfg.KeepAlive > 0 {
		opts = append(opts, escapepod.WithKeepAlive(cfg.KeepAlive))
	}
	if cfg.ProxyVersion != "" {
		opts = append(opts, escapepod.WithProxyVersion(cfg.ProxyVersion))
	}
	if cfg.TLSCA != "" {
		tlsConfig, err := certs.LoadClientTLS(cfg.TLSCA)
		if err != nil {
			return nil, err
		}
		opts = append(opts, escapepod.WithTLS(tlsConfig))
	}
	return escapepod.New(cfg.Addr, opts...)
}

// dial connects client, retrying with exponential backoff while the proxy
// is unreachable.
func dial(ctx context.Context, client *escapepod.Client, cfg *Config) error {
	retries := max(cfg.ConnectRetries, 0)
	b := retry.WithMaxRetries(uint64(retries), retry.NewExponential(250*time.Millisecond))
	return retry.Do(ctx, b, func(context.Context) error {
		err := client.Connect(cfg.Timeout)
		if proxyerr.HasCode(err, proxyerr.CodeNotFound) || proxyerr.IsConnection(err) {
			client.Logger().Warn("connect failed, retrying", "addr", client.Address(), "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}
