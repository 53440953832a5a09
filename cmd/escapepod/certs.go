// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/certs"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/xdg"
)

// NewCertsCmd creates the certs subcommand.
func NewCertsCmd() *cobra.Command {
	var (
		dir   string
		hosts []string
	)

	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Generate a CA and certificate for a TLS-terminated proxy",
		Long: `Generate a private CA and a certificate for the extension proxy signed by
it. Serve the proxy behind TLS with proxy.crt and proxy.key, and pass
ca.crt to --tls-ca.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				d, err := xdg.CertsDir()
				if err != nil {
					return err
				}
				dir = d
			}
			ca, err := certs.GenerateCA("extension proxy")
			if err != nil {
				return err
			}
			server, err := certs.GenerateServerCert(ca, hosts...)
			if err != nil {
				return err
			}
			if err := certs.Save(dir, ca, server); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(dir, certs.CAFile))
			return err
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "output directory (defaults to the XDG config dir)")
	cmd.Flags().StringSliceVar(&hosts, "host", nil, "extra DNS name or IP for the proxy certificate")
	return cmd
}
