// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/observability"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/errutil"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/escapepod"
)

// watchConfig holds configuration for the watch command.
type watchConfig struct {
	filter   string
	duration time.Duration
	jsonOut  bool
}

// NewWatchCmd creates the watch subcommand.
func NewWatchCmd() *cobra.Command {
	cfg := &watchConfig{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print events pushed by the extension proxy",
		Long: `Subscribe to the extension proxy event stream and print every event whose
name matches --filter until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.filter, "filter", "*", "glob matched against event names")
	cmd.Flags().DurationVar(&cfg.duration, "for", 0, "stop after this long (0 waits for a signal)")
	cmd.Flags().BoolVar(&cfg.jsonOut, "json", false, "print events as JSON lines")
	cmd.Flags().Int64("keep-alive", 0, "keep-alive interval in seconds requested from the proxy")
	cmd.Flags().String("metrics-addr", "", "serve /metrics and health probes on this address")

	return cmd
}

// eventPrinter writes matching events to w.
type eventPrinter struct {
	match glob.Glob
	json  bool

	mu sync.Mutex
	w  io.Writer
}

func (p *eventPrinter) HandleEvent(_ context.Context, e escapepod.Event) error {
	if !p.match.Match(e.Name) {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		line, err := json.Marshal(struct {
			Event string `json:"event"`
			Data  any    `json:"data"`
		}{e.Name, e.Data})
		if err != nil {
			return oops.With("event", e.Name).Wrapf(err, "encode event")
		}
		_, err = fmt.Fprintln(p.w, string(line))
		return err
	}
	_, err := fmt.Fprintf(p.w, "%s\t%+v\n", e.Name, e.Data)
	return err
}

func runWatch(cmd *cobra.Command, cfg *watchConfig) error {
	match, err := glob.Compile(cfg.filter)
	if err != nil {
		return oops.Code("INVALID_FILTER").With("filter", cfg.filter).Wrapf(err, "compile filter")
	}
	conf, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}

	var (
		opts   []escapepod.Option
		active atomic.Pointer[escapepod.Client]
	)
	logger := newLogger(conf, cmd.ErrOrStderr())
	if conf.MetricsAddr != "" {
		metrics := observability.NewServer(conf.MetricsAddr, func() bool {
			c := active.Load()
			return c != nil && c.Subscribed()
		})
		errCh, err := metrics.Start()
		if err != nil {
			return err
		}
		go func() {
			for err := range errCh {
				errutil.LogError(logger, "metrics server failed", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metrics.Stop(shutdownCtx); err != nil {
				errutil.LogWarn(logger, "stopping metrics server", err)
			}
		}()
		opts = append(opts, escapepod.WithMetrics(metrics.Metrics()))
	}

	client, err := newClient(cmd, conf, opts...)
	if err != nil {
		return err
	}
	printer := &eventPrinter{match: match, json: cfg.jsonOut, w: cmd.OutOrStdout()}
	for _, event := range escapepod.AllEvents {
		if _, err := client.Subscribe(printer, event); err != nil {
			return err
		}
	}
	if err := dial(ctx, client, conf); err != nil {
		return err
	}
	defer client.Disconnect()
	active.Store(client)

	logger.Info("watching events", "addr", client.Address(), "filter", cfg.filter)
	<-ctx.Done()
	logger.Info("stopping")
	return nil
}
