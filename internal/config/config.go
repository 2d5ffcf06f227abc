package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	_ "embed"

	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/internal/logging"
	"github.com/systmms/felix/pkg/plugin"
	"github.com/systmms/felix/pkg/rotation"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up when --config is not set.
const DefaultPath = "felix.yaml"

//go:embed schema.json
var schemaJSON string

// Config holds the runtime configuration
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition
}

// Definition represents the felix.yaml structure
type Definition struct {
	Version       int                        `yaml:"version"`
	AWS           AWSConfig                  `yaml:"aws"`
	ServiceDepth  int                        `yaml:"service_depth,omitempty"`
	Concurrency   int                        `yaml:"concurrency,omitempty"`
	Plugins       map[string]plugin.Settings `yaml:"plugins,omitempty"`
	HTTP          HTTPConfig                 `yaml:"http,omitempty"`
	Notifications NotificationConfig         `yaml:"notifications,omitempty"`
	History       HistoryConfig              `yaml:"history,omitempty"`
	Metrics       MetricsConfig              `yaml:"metrics,omitempty"`
}

// AWSConfig selects the account and identities felix works on.
type AWSConfig struct {
	Region     string `yaml:"region,omitempty"`
	Profile    string `yaml:"profile,omitempty"`
	AssumeRole string `yaml:"assume_role,omitempty"`

	// UserPath is the IAM path prefix of the managed users.
	UserPath string `yaml:"user_path,omitempty"`

	// SNSTopic receives the run report when set.
	SNSTopic string `yaml:"sns_topic,omitempty"`

	// ParameterPath is the Parameter Store prefix holding plugin settings
	// as <path>/<plugin>/<setting>.
	ParameterPath string `yaml:"parameter_path,omitempty"`
}

// HTTPConfig tunes the client shared by the plugins.
type HTTPConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
	MaxRetries     uint64 `yaml:"max_retries,omitempty"`
}

// HistoryConfig controls the local run history.
type HistoryConfig struct {
	Disabled      bool   `yaml:"disabled,omitempty"`
	Dir           string `yaml:"dir,omitempty"`
	RetentionDays int    `yaml:"retention_days,omitempty"`
}

// MetricsConfig controls the Prometheus textfile written after each run.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// Load reads, validates and parses the felix.yaml file. A missing file is
// only an error when the path was given explicitly.
func (c *Config) Load() error {
	path := c.Path
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if c.Path == "" {
				c.Definition = &Definition{}
				return nil
			}
			return ferrors.ConfigurationError{
				Field:      "path",
				Message:    fmt.Sprintf("configuration file %s not found", path),
				Suggestion: "Create felix.yaml or pass --config with the correct path",
			}
		}
		return ferrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def, err := Parse(data)
	if err != nil {
		return err
	}
	c.Definition = def
	return nil
}

// Parse validates data against the configuration schema and decodes it.
func Parse(data []byte) (*Definition, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ferrors.ConfigurationError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	if raw == nil {
		return &Definition{}, nil
	}

	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, ferrors.ConfigurationError{
			Message:    fmt.Sprintf("invalid configuration: %v", err),
			Suggestion: "Compare your felix.yaml against the documented layout",
		}
	}

	if def.Version != 0 {
		return nil, ferrors.ConfigurationError{
			Field:      "version",
			Message:    fmt.Sprintf("unsupported configuration version %d", def.Version),
			Suggestion: "Set 'version: 0' at the top of your felix.yaml file",
		}
	}

	return &def, nil
}

func validateSchema(raw interface{}) error {
	// yaml.v3 decodes mappings as map[string]interface{}; the schema loader
	// needs plain JSON types.
	doc, err := json.Marshal(raw)
	if err != nil {
		return ferrors.ConfigurationError{Message: fmt.Sprintf("configuration is not representable as JSON: %v", err)}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		sort.Strings(msgs)
		return ferrors.ConfigurationError{
			Message:    "configuration does not match schema:\n  - " + strings.Join(msgs, "\n  - "),
			Suggestion: "Fix the listed fields in felix.yaml",
		}
	}
	return nil
}

// PluginSettings returns a copy of the configured settings, keyed by plugin
// name.
func (d *Definition) PluginSettings() map[string]plugin.Settings {
	out := make(map[string]plugin.Settings, len(d.Plugins))
	for name, s := range d.Plugins {
		out[name] = s.Clone()
	}
	return out
}

// UserPath returns the IAM path prefix, "/" when unset.
func (d *Definition) UserPath() string {
	if d.AWS.UserPath == "" {
		return "/"
	}
	return d.AWS.UserPath
}

// EffectiveServiceDepth returns the path segment holding the service name.
func (d *Definition) EffectiveServiceDepth() int {
	if d.ServiceDepth <= 0 {
		return rotation.DefaultServiceDepth
	}
	return d.ServiceDepth
}

// HTTPTimeout returns the plugin request timeout, zero meaning the client
// default.
func (d *Definition) HTTPTimeout() time.Duration {
	return time.Duration(d.HTTP.TimeoutSeconds) * time.Second
}

// Retention returns how long run history is kept; zero keeps everything.
func (d *Definition) Retention() time.Duration {
	return time.Duration(d.History.RetentionDays) * 24 * time.Hour
}

// Prepare runs every post-parse step in order: environment overrides,
// Parameter Store settings and secret references.
func (c *Config) Prepare(ctx context.Context, env Env, params SSMAPI, refs *RefResolver) error {
	if c.Definition == nil {
		return ferrors.UserError{
			Message:    "Configuration not loaded",
			Suggestion: "This is an internal error. Please report it",
		}
	}

	env.Apply(c.Definition)

	if c.Definition.AWS.ParameterPath != "" && params != nil {
		loaded, err := LoadParameterSettings(ctx, params, c.Definition.AWS.ParameterPath)
		if err != nil {
			return err
		}
		c.Definition.Plugins = MergeSettings(loaded, c.Definition.Plugins)
		if c.Logger != nil {
			c.Logger.Debug("Loaded settings for %d plugins from %s", len(loaded), c.Definition.AWS.ParameterPath)
		}
	}

	if refs != nil {
		if err := refs.ResolveDefinition(ctx, c.Definition); err != nil {
			return err
		}
	}
	return nil
}
