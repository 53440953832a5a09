// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyb3rdog/escapepod-sdk-go/internal/certs"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/proxytest"
)

func TestCerts_GenerateAndConnect(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "certs", "--dir", dir, "--host", "pod.local")
	require.NoError(t, err)
	caPath := strings.TrimSpace(out)
	assert.Equal(t, filepath.Join(dir, certs.CAFile), caPath)

	cfg, err := certs.LoadClientTLS(caPath)
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
}

func TestCerts_DefaultDir(t *testing.T) {
	configFile = ""
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)

	cmd := NewRootCmd()
	buf := new(strings.Builder)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"certs"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, filepath.Join(home, "escapepod", "certs", certs.CAFile), strings.TrimSpace(buf.String()))
}

func TestLoadConfig_XDGDefaultFile(t *testing.T) {
	srv := proxytest.New()
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	configFile = ""
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	writeFile(t, filepath.Join(home, "escapepod", "config.yaml"), "addr: "+srv.Addr()+"\n")

	cmd := NewRootCmd()
	buf := new(strings.Builder)
	cmd.SetOut(buf)
	cmd.SetErr(new(strings.Builder))
	cmd.SetArgs([]string{"status"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), srv.Addr())
}
