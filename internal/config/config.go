// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package config loads the worker's settings the way the teacher loads
// Nomad agent configuration: a base file, an optional environment-named
// overlay, an optional local override, and finally an APP_-prefixed
// environment variable overlay. Each file layer is merged over the previous
// one field by field; the environment overlay is decoded onto the result
// with mapstructure. Grounded on the original source's settings.rs, which
// reads the same settings plus RUN_MODE-based file selection.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the fully resolved worker configuration.
type Config struct {
	Hostname          string `hcl:"hostname" mapstructure:"hostname"`
	BindToHost        bool   `hcl:"bind_to_host,optional" mapstructure:"bind_to_host"`
	Port              int    `hcl:"port" mapstructure:"port"`
	CACertPath        string `hcl:"ca_cert_path" mapstructure:"ca_cert_path"`
	ClientCertPath    string `hcl:"client_cert_path" mapstructure:"client_cert_path"`
	ClientKeyPath     string `hcl:"client_key_path" mapstructure:"client_key_path"`
	RevocationListPath string `hcl:"revocation_list_path" mapstructure:"revocation_list_path"`
	TempTemplatePath  string `hcl:"temp_template_path" mapstructure:"temp_template_path"`
	MaxRenderingThreads int  `hcl:"max_rendering_threads" mapstructure:"max_rendering_threads"`
	LogLevel          string `hcl:"log_level,optional" mapstructure:"log_level"`
}

// rawConfig mirrors Config but with every field optional, so each layer
// only needs to supply the keys it overrides.
type rawConfig struct {
	Hostname            *string `hcl:"hostname,optional"`
	BindToHost           *bool   `hcl:"bind_to_host,optional"`
	Port                 *int    `hcl:"port,optional"`
	CACertPath           *string `hcl:"ca_cert_path,optional"`
	ClientCertPath       *string `hcl:"client_cert_path,optional"`
	ClientKeyPath        *string `hcl:"client_key_path,optional"`
	RevocationListPath   *string `hcl:"revocation_list_path,optional"`
	TempTemplatePath     *string `hcl:"temp_template_path,optional"`
	MaxRenderingThreads  *int    `hcl:"max_rendering_threads,optional"`
	LogLevel             *string `hcl:"log_level,optional"`
}

func (r *rawConfig) mergeInto(c *Config) {
	if r.Hostname != nil {
		c.Hostname = *r.Hostname
	}
	if r.BindToHost != nil {
		c.BindToHost = *r.BindToHost
	}
	if r.Port != nil {
		c.Port = *r.Port
	}
	if r.CACertPath != nil {
		c.CACertPath = *r.CACertPath
	}
	if r.ClientCertPath != nil {
		c.ClientCertPath = *r.ClientCertPath
	}
	if r.ClientKeyPath != nil {
		c.ClientKeyPath = *r.ClientKeyPath
	}
	if r.RevocationListPath != nil {
		c.RevocationListPath = *r.RevocationListPath
	}
	if r.TempTemplatePath != nil {
		c.TempTemplatePath = *r.TempTemplatePath
	}
	if r.MaxRenderingThreads != nil {
		c.MaxRenderingThreads = *r.MaxRenderingThreads
	}
	if r.LogLevel != nil {
		c.LogLevel = *r.LogLevel
	}
}

// Load resolves configuration from configDir/default.hcl, an optional
// configDir/<runMode>.hcl, an optional configDir/local.hcl, and finally
// APP_-prefixed environment variables, in that order of increasing
// precedence.
func Load(configDir, runMode string) (*Config, error) {
	var cfg Config

	layers := []string{"default.hcl"}
	if runMode != "" {
		layers = append(layers, runMode+".hcl")
	}
	layers = append(layers, "local.hcl")

	for _, name := range layers {
		path := filepath.Join(configDir, name)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("statting %s: %w", path, err)
		}

		var raw rawConfig
		if err := hclsimple.DecodeFile(path, nil, &raw); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		raw.mergeInto(&cfg)
	}

	if err := applyEnvOverlay(&cfg); err != nil {
		return nil, fmt.Errorf("applying APP_ environment overlay: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverlay overlays APP_-prefixed environment variables onto cfg,
// matching field names case-insensitively the way the teacher's env-based
// overrides do (e.g. APP_PORT, APP_MAX_RENDERING_THREADS).
func applyEnvOverlay(cfg *Config) error {
	const prefix = "APP_"
	overlay := map[string]any{}
	for _, kv := range os.Environ() {
		key, val, ok := splitEnv(kv)
		if !ok || len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		overlay[key[len(prefix):]] = val
	}
	if len(overlay) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(overlay)
}

func splitEnv(kv string) (key, val string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}
