// Package testutil provides test utilities and helpers for felix tests.
//
// This package contains shared test infrastructure including configuration
// builders, logger helpers, output assertions and the key store contract
// suite.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/systmms/felix/internal/config"
	"github.com/systmms/felix/pkg/plugin"
	"gopkg.in/yaml.v3"
)

// TestConfigBuilder provides a fluent API for building felix.yaml files in
// tests without hand-writing YAML.
//
// Example usage:
//
//	path := testutil.NewTestConfig(t).
//	    WithUserPath("/service/").
//	    WithPlugin("travis", plugin.Settings{"token": "t0k3n", "url": srv.URL}).
//	    WithHistoryDir(dir).
//	    Write()
type TestConfigBuilder struct {
	def     *config.Definition
	tempDir string
	t       *testing.T
}

// NewTestConfig creates a builder starting from an empty configuration.
func NewTestConfig(t *testing.T) *TestConfigBuilder {
	t.Helper()

	return &TestConfigBuilder{
		def: &config.Definition{
			Plugins: make(map[string]plugin.Settings),
		},
		tempDir: t.TempDir(),
		t:       t,
	}
}

// WithUserPath sets aws.user_path.
func (b *TestConfigBuilder) WithUserPath(path string) *TestConfigBuilder {
	b.def.AWS.UserPath = path
	return b
}

// WithSNSTopic sets aws.sns_topic.
func (b *TestConfigBuilder) WithSNSTopic(arn string) *TestConfigBuilder {
	b.def.AWS.SNSTopic = arn
	return b
}

// WithParameterPath sets aws.parameter_path.
func (b *TestConfigBuilder) WithParameterPath(path string) *TestConfigBuilder {
	b.def.AWS.ParameterPath = path
	return b
}

// WithPlugin sets the settings of one plugin.
func (b *TestConfigBuilder) WithPlugin(name string, settings plugin.Settings) *TestConfigBuilder {
	b.def.Plugins[name] = settings
	return b
}

// WithConcurrency sets the rotation concurrency limit.
func (b *TestConfigBuilder) WithConcurrency(n int) *TestConfigBuilder {
	b.def.Concurrency = n
	return b
}

// WithHistoryDir points the run history at dir.
func (b *TestConfigBuilder) WithHistoryDir(dir string) *TestConfigBuilder {
	b.def.History.Dir = dir
	return b
}

// WithoutHistory disables the run history.
func (b *TestConfigBuilder) WithoutHistory() *TestConfigBuilder {
	b.def.History.Disabled = true
	return b
}

// WithMetricsTextfile writes Prometheus metrics to path after each run.
func (b *TestConfigBuilder) WithMetricsTextfile(path string) *TestConfigBuilder {
	b.def.Metrics.Textfile = path
	return b
}

// Build returns the configuration definition.
func (b *TestConfigBuilder) Build() *config.Definition {
	return b.def
}

// Write marshals the configuration to felix.yaml in a temporary directory
// and returns its path.
func (b *TestConfigBuilder) Write() string {
	b.t.Helper()

	data, err := yaml.Marshal(b.def)
	if err != nil {
		b.t.Fatalf("Failed to marshal test config: %v", err)
	}
	return writeConfigFile(b.t, filepath.Join(b.tempDir, config.DefaultPath), data)
}

// WriteTestConfig writes yamlContent to felix.yaml in a temporary directory
// and returns its path.
//
// Example:
//
//	path := testutil.WriteTestConfig(t, `
//	aws:
//	  user_path: /service/
//	plugins:
//	  gitlab:
//	    token: glpat-test
//	`)
func WriteTestConfig(t *testing.T, yamlContent string) string {
	t.Helper()
	return writeConfigFile(t, filepath.Join(t.TempDir(), config.DefaultPath), []byte(yamlContent))
}

// LoadTestConfig loads and validates the configuration at path, failing
// the test on any error.
func LoadTestConfig(t *testing.T, path string) *config.Definition {
	t.Helper()

	cfg := &config.Config{Path: path}
	if err := cfg.Load(); err != nil {
		t.Fatalf("Failed to load config %s: %v", path, err)
	}
	return cfg.Definition
}

func writeConfigFile(t *testing.T, path string, data []byte) string {
	t.Helper()

	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}
