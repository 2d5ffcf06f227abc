package commands_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/felix/internal/report"
	"github.com/systmms/felix/pkg/rotation"
	"github.com/systmms/felix/tests/testutil"
)

func TestPluginsCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	path := h.writeConfig(t, `
aws:
  parameter_path: /felix
plugins:
  gitlab:
    url: https://gitlab.example.com
    token: abc
  bitbucket:
    token: x
`)

	out, err := h.run(t, "--config", path, "plugins")
	require.NoError(t, err)

	for _, name := range []string{"commercetools", "gitlab", "jenkins", "sumologic", "travis"} {
		assert.Contains(t, out, name)
	}
	assert.Contains(t, out, "[token url]")
	assert.Contains(t, out, "not configured")
	assert.Contains(t, out, "Parameter Store under /felix")
}

func TestHistoryCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	path := h.writeConfig(t, fmt.Sprintf("history:\n  dir: %s\n", h.historyDir()))

	out, err := h.run(t, "--config", path, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No rotation runs recorded")

	store := report.NewFileHistory(h.historyDir())
	require.NoError(t, store.Publish(context.Background(), &rotation.Summary{
		RunID:      "run-abc",
		PathPrefix: "/felix/",
		Status:     rotation.AggregateErrors,
		Count:      1,
		StartedAt:  fixedNow,
		FinishedAt: fixedNow,
		Reports: []rotation.Report{{
			Identity:   "arn:aws:iam::123456789012:user/felix/travis/org/repo",
			Name:       "repo",
			Service:    "travis",
			Status:     rotation.StatusError,
			FinishedAt: fixedNow,
			Error:      "The active key does not match the one used by the service!",
		}},
	}))

	out, err = h.run(t, "--config", path, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "run-abc")
	assert.Contains(t, out, "Errors")

	out, err = h.run(t, "--config", path, "history", "--user", "repo")
	require.NoError(t, err)
	assert.Contains(t, out, "travis")
	assert.Contains(t, out, "The active key does not match the one used by the service!")
	assert.Contains(t, out, "never")

	_, err = h.run(t, "--config", path, "history", "--user", "nobody")
	require.Error(t, err)
}

func TestDoctorCommand_Healthy(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.IAM.AddUser("/felix/travis/org/", "repo")
	h.SSM.AddSecureStringParameter("/felix/travis/token", "from-ssm")
	path := testutil.NewTestConfig(t).
		WithUserPath("/felix/").
		WithParameterPath("/felix").
		Write()

	out, err := h.run(t, "--config", path, "doctor")
	require.NoError(t, err)
	testutil.AssertLinesContain(t, out,
		"arn:aws:iam::123456789012:user/ops/felix",
		"1 users under /felix/",
		"plugin travis",
		"Summary: 4/4 checks passed")
}

func TestDoctorCommand_Failures(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.STS.Err = fmt.Errorf("ExpiredToken: the security token included in the request is expired")
	h.IAM.AddUser("/felix/gitlab/group/", "project")
	h.IAM.AddUser("/felix/", "orphan")
	path := h.writeConfig(t, "aws:\n  user_path: /felix/\n")

	out, err := h.run(t, "--config", path, "doctor", "--verbose")
	testutil.AssertErrorContains(t, err, "some checks failed")
	assert.Contains(t, out, "ExpiredToken")
	assert.Contains(t, out, "Plugin gitlab has no configuration!")
	assert.Contains(t, out, "Add a plugins.gitlab section")
	assert.Contains(t, out, "orphan")
}

func TestCompletionCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	out, err := h.run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "felix")

	_, err = h.run(t, "completion", "tcsh")
	require.Error(t, err)
}
