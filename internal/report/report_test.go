package report_test

import (
	"time"

	"github.com/systmms/felix/pkg/rotation"
)

var runTime = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func mixedSummary() *rotation.Summary {
	return &rotation.Summary{
		RunID:      "run-1",
		PathPrefix: "/felix/",
		Status:     rotation.AggregateErrors,
		Count:      3,
		StartedAt:  runTime.Add(-time.Minute),
		FinishedAt: runTime,
		Reports: []rotation.Report{
			{
				Identity:   "arn:aws:iam::123456789012:user/felix/gitlab/group/deploy",
				Name:       "deploy",
				Service:    "gitlab",
				Locator:    "group/deploy",
				Status:     rotation.StatusSuccess,
				StartedAt:  runTime.Add(-time.Minute),
				FinishedAt: runTime.Add(-50 * time.Second),
				OldKey:     "AKIAOLD",
				NewKey:     "AKIANEW",
				Steps:      []rotation.Step{rotation.StepStarted, rotation.StepPropagated, rotation.StepSuccess},
			},
			{
				Identity:   "arn:aws:iam::123456789012:user/felix/travis/org/ci",
				Name:       "ci",
				Service:    "travis",
				Status:     rotation.StatusError,
				StartedAt:  runTime.Add(-time.Minute),
				FinishedAt: runTime.Add(-40 * time.Second),
				NewKey:     "AKIAORPHAN",
				Error:      "travis update failed with status 500",
				Steps:      []rotation.Step{rotation.StepStarted, rotation.StepKeysListed, rotation.StepNewKeyCreated, rotation.StepError},
			},
			{
				Identity:   "arn:aws:iam::123456789012:user/felix/jenkins/build",
				Name:       "build",
				Service:    "jenkins",
				Status:     rotation.StatusError,
				StartedAt:  runTime.Add(-time.Minute),
				FinishedAt: runTime.Add(-30 * time.Second),
				Error:      "User has multiple active keys! Skipping...",
				Steps:      []rotation.Step{rotation.StepStarted, rotation.StepPluginResolved, rotation.StepError},
			},
		},
	}
}

func successSummary() *rotation.Summary {
	s := mixedSummary()
	s.Reports = s.Reports[:1]
	s.Count = 1
	s.Status = rotation.AggregateSuccess
	return s
}
