// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestLoad_LayersDefaultRunModeAndLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "default.hcl", `
hostname = "0.0.0.0"
port = 9000
ca_cert_path = "ca.pem"
client_cert_path = "client.pem"
client_key_path = "client.key"
revocation_list_path = "crl.pem"
temp_template_path = "templates"
max_rendering_threads = 4
`)
	writeFile(t, dir, "staging.hcl", `port = 9100`)
	writeFile(t, dir, "local.hcl", `max_rendering_threads = 8`)

	cfg, err := Load(dir, "staging")
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0", cfg.Hostname)
	require.Equal(t, 9100, cfg.Port, "run-mode overlay should win over default")
	require.Equal(t, 8, cfg.MaxRenderingThreads, "local overlay should win over default")
}

func TestLoad_MissingOptionalLayersAreSkipped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "default.hcl", `
hostname = "127.0.0.1"
port = 9000
ca_cert_path = "ca.pem"
client_cert_path = "client.pem"
client_key_path = "client.key"
revocation_list_path = "crl.pem"
temp_template_path = "templates"
max_rendering_threads = 2
`)

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Hostname)
	require.Equal(t, 2, cfg.MaxRenderingThreads)
}

func TestLoad_EnvOverlayWinsOverFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "default.hcl", `
hostname = "127.0.0.1"
port = 9000
ca_cert_path = "ca.pem"
client_cert_path = "client.pem"
client_key_path = "client.key"
revocation_list_path = "crl.pem"
temp_template_path = "templates"
max_rendering_threads = 2
`)

	t.Setenv("APP_PORT", "9999")

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Port)
}
