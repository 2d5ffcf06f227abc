package report_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/felix/internal/report"
	"github.com/systmms/felix/pkg/rotation"
)

func TestFileHistory_PublishAndList(t *testing.T) {
	t.Parallel()

	h := report.NewFileHistory(t.TempDir())
	assert.Equal(t, "history", h.Name())

	first := successSummary()
	second := mixedSummary()
	second.RunID = "run-2"
	second.StartedAt = first.StartedAt.Add(time.Hour)
	second.FinishedAt = first.FinishedAt.Add(time.Hour)

	require.NoError(t, h.Publish(context.Background(), first))
	require.NoError(t, h.Publish(context.Background(), second))

	runs, err := h.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, "run-1", runs[1].RunID)
	assert.Len(t, runs[0].Reports, 3)

	limited, err := h.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-2", limited[0].RunID)

	info, err := os.Stat(filepath.Join(h.Dir(), "runs"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestFileHistory_StatusKeepsLastSuccess(t *testing.T) {
	t.Parallel()

	h := report.NewFileHistory(t.TempDir())
	ok := successSummary()
	require.NoError(t, h.Publish(context.Background(), ok))

	failed := successSummary()
	failed.RunID = "run-2"
	failed.Reports[0].Status = rotation.StatusError
	failed.Reports[0].Error = "Key found in service not same as active key!"
	failed.Reports[0].FinishedAt = ok.Reports[0].FinishedAt.Add(time.Hour)
	require.NoError(t, h.Publish(context.Background(), failed))

	status, err := h.GetStatus("deploy")
	require.NoError(t, err)
	assert.Equal(t, rotation.StatusError, status.Status)
	assert.Equal(t, "run-2", status.LastRunID)
	assert.Equal(t, "AKIANEW", status.ActiveKey)
	assert.True(t, status.LastSuccess.Equal(ok.Reports[0].FinishedAt))
	assert.Equal(t, "Key found in service not same as active key!", status.Error)
}

func TestFileHistory_GetStatusMissing(t *testing.T) {
	t.Parallel()

	_, err := report.NewFileHistory(t.TempDir()).GetStatus("nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no status found for identity nobody")
}

func TestFileHistory_ListRunsEmpty(t *testing.T) {
	t.Parallel()

	runs, err := report.NewFileHistory(filepath.Join(t.TempDir(), "missing")).ListRuns(10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestFileHistory_Cleanup(t *testing.T) {
	t.Parallel()

	h := report.NewFileHistory(t.TempDir())

	old := successSummary()
	old.RunID = "old"
	old.StartedAt = runTime.Add(-40 * 24 * time.Hour)
	recent := successSummary()
	recent.RunID = "recent"

	require.NoError(t, h.Publish(context.Background(), old))
	require.NoError(t, h.Publish(context.Background(), recent))

	removed, err := h.Cleanup(30*24*time.Hour, runTime)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	runs, err := h.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "recent", runs[0].RunID)
}

func TestDefaultHistoryDir(t *testing.T) {
	t.Setenv("FELIX_HISTORY_DIR", "/var/lib/felix")
	assert.Equal(t, "/var/lib/felix", report.DefaultHistoryDir())

	t.Setenv("FELIX_HISTORY_DIR", "")
	t.Setenv("XDG_DATA_HOME", "/data")
	assert.Equal(t, filepath.Join("/data", "felix", "history"), report.DefaultHistoryDir())
}
