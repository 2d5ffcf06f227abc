package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Env holds the environment variables that override felix.yaml.
type Env struct {
	Region        string `env:"AWS_REGION"`
	Profile       string `env:"AWS_PROFILE"`
	UserPath      string `env:"FELIX_USER_PATH"`
	SNSTopic      string `env:"FELIX_SNS_TOPIC"`
	ParameterPath string `env:"FELIX_PARAMETER_PATH"`
	HistoryDir    string `env:"FELIX_HISTORY_DIR"`
	Concurrency   int    `env:"FELIX_CONCURRENCY"`
}

// LoadEnv reads Env through l. Use envconfig.OsLookuper() for the process
// environment and envconfig.MapLookuper in tests.
func LoadEnv(ctx context.Context, l envconfig.Lookuper) (Env, error) {
	var env Env
	if err := envconfig.ProcessWith(ctx, &env, l); err != nil {
		return Env{}, fmt.Errorf("failed to process environment: %w", err)
	}
	return env, nil
}

// Apply overrides d with every variable that is set.
func (e Env) Apply(d *Definition) {
	if e.Region != "" {
		d.AWS.Region = e.Region
	}
	if e.Profile != "" {
		d.AWS.Profile = e.Profile
	}
	if e.UserPath != "" {
		d.AWS.UserPath = e.UserPath
	}
	if e.SNSTopic != "" {
		d.AWS.SNSTopic = e.SNSTopic
	}
	if e.ParameterPath != "" {
		d.AWS.ParameterPath = e.ParameterPath
	}
	if e.HistoryDir != "" {
		d.History.Dir = e.HistoryDir
	}
	if e.Concurrency > 0 {
		d.Concurrency = e.Concurrency
	}
}
