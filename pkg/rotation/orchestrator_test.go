package rotation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/felix/internal/logging"
	"github.com/systmms/felix/pkg/plugin"
	"github.com/systmms/felix/pkg/rotation"
	"github.com/systmms/felix/tests/fakes"
)

type capturingSink struct {
	mu        sync.Mutex
	summaries []*rotation.Summary
	err       error
}

func (s *capturingSink) Publish(_ context.Context, summary *rotation.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summary)
	return s.err
}

func newOrchestrator(t *testing.T, store *fakes.FakeKeyStore, sink rotation.ReportSink, plugins ...*fakes.FakePlugin) *rotation.Orchestrator {
	t.Helper()

	settings := map[string]plugin.Settings{}
	for _, p := range plugins {
		settings[p.Name] = plugin.Settings{}
	}
	logger := logging.NewWithWriter(&bytes.Buffer{}, false)
	engine := rotation.NewEngine(store, fakes.NewFakeResolver(plugins...), settings, logger)
	return rotation.NewOrchestrator(store, engine, sink, logger, rotation.WithRunID(func() string { return "run-1" }))
}

func TestOrchestratorRunMixedOutcomes(t *testing.T) {
	t.Parallel()

	log := &fakes.CallLog{}
	store := fakes.NewFakeKeyStore(log)
	gitlab := fakes.NewFakePlugin("gitlab", log)
	sink := &capturingSink{}

	// A: no keys, fresh downstream
	store.AddIdentity(fakes.Identity("/service/gitlab/group/", "fresh"))
	// B: downstream holds a different key
	store.AddIdentity(fakes.Identity("/service/gitlab/group/", "drifted"))
	store.AddKey("drifted", "AKIAK1", rotation.KeyStatusActive)
	gitlab.Downstream["group/drifted"] = "AKIAK2"
	// C: two active keys
	store.AddIdentity(fakes.Identity("/service/gitlab/group/", "doubled"))
	store.AddKey("doubled", "AKIAA", rotation.KeyStatusActive)
	store.AddKey("doubled", "AKIAB", rotation.KeyStatusActive)

	summary, err := newOrchestrator(t, store, sink, gitlab).Run(context.Background(), "/service/")
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, "/service/", summary.PathPrefix)
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, rotation.AggregateErrors, summary.Status)
	require.Len(t, summary.Reports, 3)
	assert.Len(t, summary.Failed(), 2)

	fresh, drifted, doubled := summary.Reports[0], summary.Reports[1], summary.Reports[2]

	assert.Equal(t, "fresh", fresh.Name)
	assert.Equal(t, rotation.StatusSuccess, fresh.Status)
	assert.NotEmpty(t, fresh.NewKey)
	assert.Empty(t, fresh.OldKey)

	assert.Equal(t, "drifted", drifted.Name)
	assert.Equal(t, rotation.StatusError, drifted.Status)
	assert.Equal(t, "Key found in service not same as active key!", drifted.Error)

	assert.Equal(t, "doubled", doubled.Name)
	assert.Equal(t, rotation.StatusError, doubled.Status)
	assert.Equal(t, "User has multiple active keys! Skipping...", doubled.Error)

	raw, err := json.Marshal(drifted)
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.NotContains(t, fields, "newKey")
	assert.Equal(t, "error", fields["status"])

	require.Len(t, sink.summaries, 1)
	assert.Same(t, summary, sink.summaries[0])
}

func TestOrchestratorAllSucceed(t *testing.T) {
	t.Parallel()

	log := &fakes.CallLog{}
	store := fakes.NewFakeKeyStore(log)
	gitlab := fakes.NewFakePlugin("gitlab", log)
	jenkins := fakes.NewFakePlugin("jenkins", log)

	store.AddIdentity(
		fakes.Identity("/service/gitlab/group/", "one"),
		fakes.Identity("/service/jenkins/", "two"),
	)

	summary, err := newOrchestrator(t, store, nil, gitlab, jenkins).Run(context.Background(), "/service/")
	require.NoError(t, err)

	assert.Equal(t, rotation.AggregateSuccess, summary.Status)
	assert.Equal(t, 2, summary.Count)
	assert.Empty(t, summary.Failed())
	assert.NotEmpty(t, gitlab.Holds("group/one"))
	assert.NotEmpty(t, jenkins.Holds("two"))
}

func TestOrchestratorNoIdentities(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeKeyStore(nil)
	store.AddIdentity(fakes.Identity("/other/gitlab/", "ignored"))
	sink := &capturingSink{}

	summary, err := newOrchestrator(t, store, sink).Run(context.Background(), "/service/")
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Count)
	assert.Empty(t, summary.Reports)
	assert.Equal(t, rotation.AggregateSuccess, summary.Status)
	require.Len(t, sink.summaries, 1)
}

func TestOrchestratorDiscoveryFailure(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeKeyStore(nil)
	store.ListIdentitiesErr = errors.New("AccessDenied: iam:ListUsers")
	sink := &capturingSink{}

	summary, err := newOrchestrator(t, store, sink).Run(context.Background(), "/service/")

	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, err.Error(), "AccessDenied")
	assert.Empty(t, sink.summaries)
}

func TestOrchestratorSinkFailure(t *testing.T) {
	t.Parallel()

	log := &fakes.CallLog{}
	store := fakes.NewFakeKeyStore(log)
	gitlab := fakes.NewFakePlugin("gitlab", log)
	store.AddIdentity(fakes.Identity("/service/gitlab/group/", "project"))
	sink := &capturingSink{err: errors.New("NotFound: Topic does not exist")}

	summary, err := newOrchestrator(t, store, sink, gitlab).Run(context.Background(), "/service/")

	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Contains(t, err.Error(), "failed to publish rotation report")
	assert.Equal(t, rotation.StatusSuccess, summary.Reports[0].Status)
}

// slowRotator tracks how many rotations run at the same time.
type slowRotator struct {
	active  int32
	maxSeen int32
}

func (r *slowRotator) RotateIdentity(_ context.Context, identity rotation.Identity) rotation.Report {
	n := atomic.AddInt32(&r.active, 1)
	for {
		seen := atomic.LoadInt32(&r.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&r.maxSeen, seen, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	atomic.AddInt32(&r.active, -1)
	return rotation.Report{Identity: identity.ARN, Name: identity.Name, Status: rotation.StatusSuccess}
}

func TestOrchestratorConcurrencyLimit(t *testing.T) {
	t.Parallel()

	store := fakes.NewFakeKeyStore(nil)
	for i := 0; i < 12; i++ {
		store.AddIdentity(fakes.Identity("/service/gitlab/group/", fmt.Sprintf("project-%02d", i)))
	}
	rotator := &slowRotator{}
	orchestrator := rotation.NewOrchestrator(store, rotator, nil,
		logging.NewWithWriter(&bytes.Buffer{}, false), rotation.WithMaxConcurrency(3))

	summary, err := orchestrator.Run(context.Background(), "/service/")
	require.NoError(t, err)

	assert.LessOrEqual(t, atomic.LoadInt32(&rotator.maxSeen), int32(3))
	require.Len(t, summary.Reports, 12)
	for i, r := range summary.Reports {
		assert.Equal(t, fmt.Sprintf("project-%02d", i), r.Name, "reports keep discovery order")
	}
}

func TestOrchestratorClock(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := fakes.NewFakeKeyStore(nil)
	orchestrator := rotation.NewOrchestrator(store, &slowRotator{}, nil,
		logging.NewWithWriter(&bytes.Buffer{}, false),
		rotation.WithOrchestratorClock(func() time.Time { return fixed }))

	summary, err := orchestrator.Run(context.Background(), "/service/")
	require.NoError(t, err)
	assert.Equal(t, fixed, summary.StartedAt)
	assert.Equal(t, fixed, summary.FinishedAt)
	assert.NotEmpty(t, summary.RunID)
}

func TestReportSinkFunc(t *testing.T) {
	t.Parallel()

	var got *rotation.Summary
	sink := rotation.ReportSinkFunc(func(_ context.Context, s *rotation.Summary) error {
		got = s
		return nil
	})

	summary := &rotation.Summary{RunID: "x"}
	require.NoError(t, sink.Publish(context.Background(), summary))
	assert.Same(t, summary, got)
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, rotation.AggregateSuccess, rotation.Aggregate(nil))
	assert.Equal(t, rotation.AggregateSuccess, rotation.Aggregate([]rotation.Report{{Status: rotation.StatusSuccess}}))
	assert.Equal(t, rotation.AggregateErrors, rotation.Aggregate([]rotation.Report{
		{Status: rotation.StatusSuccess},
		{Status: rotation.StatusError},
	}))
}
