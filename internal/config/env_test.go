package config_test

import (
	"context"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/felix/internal/config"
)

func TestLoadEnv_Overrides(t *testing.T) {
	t.Parallel()

	env, err := config.LoadEnv(context.Background(), envconfig.MapLookuper(map[string]string{
		"AWS_REGION":           "us-west-2",
		"FELIX_USER_PATH":      "/ci/",
		"FELIX_SNS_TOPIC":      "arn:aws:sns:us-west-2:123456789012:rotations",
		"FELIX_PARAMETER_PATH": "/felix-prod",
		"FELIX_HISTORY_DIR":    "/tmp/felix",
		"FELIX_CONCURRENCY":    "8",
	}))
	require.NoError(t, err)

	def, err := config.Parse([]byte(fullConfig))
	require.NoError(t, err)
	env.Apply(def)

	assert.Equal(t, "us-west-2", def.AWS.Region)
	assert.Equal(t, "ops", def.AWS.Profile)
	assert.Equal(t, "/ci/", def.AWS.UserPath)
	assert.Equal(t, "arn:aws:sns:us-west-2:123456789012:rotations", def.AWS.SNSTopic)
	assert.Equal(t, "/felix-prod", def.AWS.ParameterPath)
	assert.Equal(t, "/tmp/felix", def.History.Dir)
	assert.Equal(t, 8, def.Concurrency)
}

func TestLoadEnv_UnsetLeavesFileValues(t *testing.T) {
	t.Parallel()

	env, err := config.LoadEnv(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	def, err := config.Parse([]byte(fullConfig))
	require.NoError(t, err)
	env.Apply(def)

	assert.Equal(t, "eu-west-1", def.AWS.Region)
	assert.Equal(t, "/service/", def.AWS.UserPath)
	assert.Equal(t, 4, def.Concurrency)
}

func TestLoadEnv_InvalidNumber(t *testing.T) {
	t.Parallel()

	_, err := config.LoadEnv(context.Background(), envconfig.MapLookuper(map[string]string{
		"FELIX_CONCURRENCY": "many",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process environment")
}
