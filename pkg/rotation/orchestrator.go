package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/systmms/felix/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Orchestrator rotates every identity under a path prefix and publishes the
// outcome.
type Orchestrator struct {
	store          KeyStore
	rotator        Rotator
	sink           ReportSink
	logger         *logging.Logger
	maxConcurrency int
	now            func() time.Time
	newRunID       func() string
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithMaxConcurrency bounds the number of identities rotated at once.
// Zero or less means one goroutine per identity.
func WithMaxConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.maxConcurrency = n
	}
}

// WithRunID fixes the run id generator, for tests.
func WithRunID(fn func() string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.newRunID = fn
	}
}

// WithOrchestratorClock replaces time.Now, for tests.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(store KeyStore, rotator Rotator, sink ReportSink, logger *logging.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		rotator:  rotator,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run discovers identities once, rotates them all and publishes the summary.
// Individual rotation failures are part of the summary; only discovery and
// publishing failures are returned as errors.
func (o *Orchestrator) Run(ctx context.Context, pathPrefix string) (*Summary, error) {
	summary := &Summary{
		RunID:      o.newRunID(),
		PathPrefix: pathPrefix,
		StartedAt:  o.now(),
	}

	identities, err := o.store.ListIdentities(ctx, pathPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities under %s: %w", pathPrefix, err)
	}
	o.logger.Debug("Discovered %d identities under %s", len(identities), pathPrefix)

	summary.Reports = o.rotateAll(ctx, identities)
	summary.Count = len(summary.Reports)
	summary.Status = Aggregate(summary.Reports)
	summary.FinishedAt = o.now()

	failed := len(summary.Failed())
	o.logger.Info("Rotation run %s finished: %d identities, %d failed [%s]",
		summary.RunID, summary.Count, failed, summary.Status)

	if o.sink != nil {
		if err := o.sink.Publish(ctx, summary); err != nil {
			return summary, fmt.Errorf("failed to publish rotation report: %w", err)
		}
	}

	return summary, nil
}

// rotateAll rotates identities concurrently. Each goroutine writes only its
// own slot, so the result keeps discovery order.
func (o *Orchestrator) rotateAll(ctx context.Context, identities []Identity) []Report {
	reports := make([]Report, len(identities))

	var g errgroup.Group
	if o.maxConcurrency > 0 {
		g.SetLimit(o.maxConcurrency)
	}

	for i, identity := range identities {
		i, identity := i, identity
		g.Go(func() error {
			reports[i] = o.rotator.RotateIdentity(ctx, identity)
			return nil
		})
	}

	// Goroutines never return errors; a failed rotation lives in its report.
	_ = g.Wait()

	return reports
}
