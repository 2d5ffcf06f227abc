package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/systmms/felix/pkg/rotation"
)

const runFileLayout = "20060102-150405"

// IdentityStatus is the last known rotation outcome for one identity.
type IdentityStatus struct {
	Name        string                `json:"name"`
	Identity    string                `json:"identity"`
	Service     string                `json:"service,omitempty"`
	Status      rotation.ReportStatus `json:"status"`
	ActiveKey   string                `json:"activeKey,omitempty"`
	LastRunID   string                `json:"lastRunId"`
	LastAttempt time.Time             `json:"lastAttempt"`
	LastSuccess time.Time             `json:"lastSuccess,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// FileHistory keeps run summaries and per-identity status on the local
// filesystem.
//
//	<dir>/runs/<timestamp>-<runID>.json
//	<dir>/status/<identity>.json
type FileHistory struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileHistory creates a history store rooted at baseDir.
func NewFileHistory(baseDir string) *FileHistory {
	return &FileHistory{baseDir: baseDir}
}

// DefaultHistoryDir returns the default history directory
func DefaultHistoryDir() string {
	if dir := os.Getenv("FELIX_HISTORY_DIR"); dir != "" {
		return dir
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "felix", "history")
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "felix", "history")
	}

	return filepath.Join(os.TempDir(), "felix", "history")
}

// Dir returns the history root.
func (h *FileHistory) Dir() string {
	return h.baseDir
}

// Name identifies the sink in logs.
func (h *FileHistory) Name() string {
	return "history"
}

// Publish records the run and updates the status of every identity in it.
func (h *FileHistory) Publish(_ context.Context, summary *rotation.Summary) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.saveRun(summary); err != nil {
		return err
	}
	for _, r := range summary.Reports {
		if err := h.saveStatus(summary.RunID, r); err != nil {
			return err
		}
	}
	return nil
}

func (h *FileHistory) saveRun(summary *rotation.Summary) error {
	runDir := filepath.Join(h.baseDir, "runs")
	if err := os.MkdirAll(runDir, 0700); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", summary.StartedAt.UTC().Format(runFileLayout), sanitizeFilename(summary.RunID))
	return writeJSON(filepath.Join(runDir, name), summary)
}

func (h *FileHistory) saveStatus(runID string, r rotation.Report) error {
	statusDir := filepath.Join(h.baseDir, "status")
	if err := os.MkdirAll(statusDir, 0700); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	filename := filepath.Join(statusDir, sanitizeFilename(r.Name)+".json")
	status := IdentityStatus{}
	if prev, err := readStatus(filename); err == nil {
		status = *prev
	}

	status.Name = r.Name
	status.Identity = r.Identity
	status.Service = r.Service
	status.Status = r.Status
	status.LastRunID = runID
	status.LastAttempt = r.FinishedAt
	status.Error = r.Error
	if r.Status == rotation.StatusSuccess {
		status.LastSuccess = r.FinishedAt
		status.ActiveKey = r.NewKey
	}

	return writeJSON(filename, status)
}

// GetStatus returns the last recorded status for an identity.
func (h *FileHistory) GetStatus(name string) (*IdentityStatus, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status, err := readStatus(filepath.Join(h.baseDir, "status", sanitizeFilename(name)+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no status found for identity %s", name)
		}
		return nil, err
	}
	return status, nil
}

// ListRuns returns recorded runs, newest first. A limit of zero or less
// returns every run.
func (h *FileHistory) ListRuns(limit int) ([]rotation.Summary, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	runDir := filepath.Join(h.baseDir, "runs")
	files, err := os.ReadDir(runDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []rotation.Summary{}, nil
		}
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name() > files[j].Name()
	})

	runs := []rotation.Summary{}
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(runDir, file.Name()))
		if err != nil {
			continue
		}
		var summary rotation.Summary
		if err := json.Unmarshal(data, &summary); err != nil {
			continue
		}
		runs = append(runs, summary)
		if limit > 0 && len(runs) >= limit {
			break
		}
	}
	return runs, nil
}

// Cleanup removes runs started before now minus retention and returns how
// many were removed.
func (h *FileHistory) Cleanup(retention time.Duration, now time.Time) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	runDir := filepath.Join(h.baseDir, "runs")
	files, err := os.ReadDir(runDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read history directory: %w", err)
	}

	cutoff := now.Add(-retention)
	removed := 0
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || len(name) < len(runFileLayout) {
			continue
		}
		started, err := time.Parse(runFileLayout, name[:len(runFileLayout)])
		if err != nil || !started.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(runDir, name)); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

func readStatus(filename string) (*IdentityStatus, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var status IdentityStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &status, nil
}

func writeJSON(filename string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(filename), err)
	}
	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

// sanitizeFilename replaces characters that might be problematic in filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "-",
		"<", "-",
		">", "-",
		"|", "-",
		" ", "_",
	)
	return replacer.Replace(name)
}
