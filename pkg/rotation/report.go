package rotation

import (
	"time"
)

// ReportStatus is the outcome of one identity's rotation.
type ReportStatus string

const (
	StatusStarted ReportStatus = "started"
	StatusSuccess ReportStatus = "success"
	StatusError   ReportStatus = "error"
)

// Step names a state of the rotation workflow.
type Step string

const (
	StepStarted           Step = "STARTED"
	StepPluginResolved    Step = "PLUGIN_RESOLVED"
	StepKeysListed        Step = "KEYS_LISTED"
	StepActiveKeyVerified Step = "ACTIVE_KEY_VERIFIED"
	StepNewKeyCreated     Step = "NEW_KEY_CREATED"
	StepPropagated        Step = "PROPAGATED"
	StepOldKeyDeactivated Step = "OLD_KEY_DEACTIVATED"
	StepSuccess           Step = "SUCCESS"
	StepError             Step = "ERROR"
)

// Report is the outcome record of one identity's rotation pass. It is owned
// by the rotation that created it until FinishedAt is set.
type Report struct {
	Identity   string       `json:"user"`
	Name       string       `json:"userName,omitempty"`
	Service    string       `json:"service,omitempty"`
	Locator    string       `json:"locator,omitempty"`
	Status     ReportStatus `json:"status"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	OldKey     string       `json:"oldKey,omitempty"`
	NewKey     string       `json:"newKey,omitempty"`
	Error      string       `json:"error,omitempty"`
	PurgeError string       `json:"purgeError,omitempty"`
	Steps      []Step       `json:"steps,omitempty"`
}

// Duration returns how long the rotation took.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// LastStep returns the last state the rotation reached before finishing.
func (r Report) LastStep() Step {
	for i := len(r.Steps) - 1; i >= 0; i-- {
		if s := r.Steps[i]; s != StepSuccess && s != StepError {
			return s
		}
	}
	return ""
}

// NeedsAttention reports whether the rotation stopped after mutating keys:
// a new key exists that was not propagated, or the old key is still Active.
func (r Report) NeedsAttention() bool {
	if r.Status != StatusError {
		return false
	}
	switch r.LastStep() {
	case StepNewKeyCreated, StepPropagated:
		return true
	}
	return false
}

func (r *Report) enter(step Step) {
	r.Steps = append(r.Steps, step)
}

// AggregateStatus summarises a whole run.
type AggregateStatus string

const (
	AggregateSuccess AggregateStatus = "Success"
	AggregateErrors  AggregateStatus = "Errors"
)

// Summary is what a run hands to its ReportSink.
type Summary struct {
	RunID      string          `json:"runId"`
	PathPrefix string          `json:"pathPrefix"`
	Status     AggregateStatus `json:"status"`
	Count      int             `json:"count"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Reports    []Report        `json:"reports"`
}

// Aggregate returns Errors if any report failed, Success otherwise.
func Aggregate(reports []Report) AggregateStatus {
	for _, r := range reports {
		if r.Status == StatusError {
			return AggregateErrors
		}
	}
	return AggregateSuccess
}

// Failed returns the reports with status error.
func (s *Summary) Failed() []Report {
	var failed []Report
	for _, r := range s.Reports {
		if r.Status == StatusError {
			failed = append(failed, r)
		}
	}
	return failed
}
