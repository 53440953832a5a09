// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// ProxyStatus is the status reported by the status command.
type ProxyStatus struct {
	Addr       string `json:"addr"`
	Version    string `json:"version"`
	Subscribed bool   `json:"subscribed"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the extension proxy status",
		Long:  `Connect to the extension proxy and show its version and whether the event stream is subscribed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	conf, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	client, err := connect(cmd.Context(), cmd, conf)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	resp, err := client.GetStatus(cmd.Context()).Result()
	if err != nil {
		return err
	}
	status := ProxyStatus{
		Addr:       client.Address(),
		Version:    resp.GetVersion(),
		Subscribed: resp.GetSubscribed(),
	}

	if cfg.jsonOutput {
		out, err := formatStatusJSON(status)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), formatStatusTable(status))
	return nil
}

func formatStatusTable(status ProxyStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ADDRESS\tVERSION\tSUBSCRIBED")
	_, _ = fmt.Fprintf(w, "%s\t%s\t%t\n", status.Addr, status.Version, status.Subscribed)

	_ = w.Flush()
	return string(buf)
}

func formatStatusJSON(status ProxyStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", oops.Wrapf(err, "marshal status")
	}
	return string(data), nil
}

// byteWriter is an io.Writer that appends to a byte slice.
type byteWriter []byte

func (w *byteWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
