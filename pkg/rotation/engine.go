package rotation

import (
	"context"
	"time"

	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/internal/logging"
	"github.com/systmms/felix/pkg/plugin"
)

// Engine rotates one identity at a time. It holds no per-identity state and
// is safe for concurrent use.
type Engine struct {
	store        KeyStore
	plugins      PluginResolver
	settings     map[string]plugin.Settings
	serviceDepth int
	logger       *logging.Logger
	now          func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithServiceDepth sets the path segment index holding the service name.
func WithServiceDepth(depth int) EngineOption {
	return func(e *Engine) {
		e.serviceDepth = depth
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a rotation engine.
func NewEngine(store KeyStore, plugins PluginResolver, settings map[string]plugin.Settings, logger *logging.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:        store,
		plugins:      plugins,
		settings:     settings,
		serviceDepth: DefaultServiceDepth,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RotateIdentity runs the rotation workflow for identity. Every failure is
// recorded in the returned report; it never returns early with an error.
func (e *Engine) RotateIdentity(ctx context.Context, identity Identity) Report {
	logger := e.logger.Named(identity.Name)

	report := Report{
		Identity:  identity.ARN,
		Name:      identity.Name,
		Status:    StatusStarted,
		StartedAt: e.now(),
	}
	report.enter(StepStarted)

	err := e.rotate(ctx, logger, identity, &report)

	report.FinishedAt = e.now()
	if err != nil {
		report.Status = StatusError
		report.Error = err.Error()
		report.enter(StepError)
		if report.NeedsAttention() {
			logger.Error("Rotation stopped after %s and needs manual follow-up: %v", report.LastStep(), err)
		} else {
			logger.Warn("Rotation failed: %v", err)
		}
		return report
	}

	report.Status = StatusSuccess
	report.enter(StepSuccess)
	logger.Info("Rotated key %s -> %s", displayKey(report.OldKey), report.NewKey)
	return report
}

// rotate performs the steps in order and stops at the first failure.
func (e *Engine) rotate(ctx context.Context, logger *logging.Logger, identity Identity, report *Report) error {
	service, locator, err := ParseLocator(identity.Path, identity.Name, e.serviceDepth)
	if err != nil {
		return err
	}
	report.Service = service
	report.Locator = locator

	p, err := e.plugins.Resolve(service, e.settings)
	if err != nil {
		return err
	}
	report.enter(StepPluginResolved)
	logger.Debug("Resolved plugin %s for locator %s", service, locator)

	// Keys deactivated by the previous run are removed now; a failure here
	// leaves stale keys behind but does not stop the rotation.
	if err := e.store.PurgeInactiveKeys(ctx, identity); err != nil {
		report.PurgeError = err.Error()
		logger.Warn("Failed to purge inactive keys: %v", err)
	}

	keys, err := e.store.ListKeys(ctx, identity)
	if err != nil {
		return err
	}
	prior, err := activeKey(identity, keys)
	if err != nil {
		return err
	}
	report.enter(StepKeysListed)

	if prior != nil {
		report.OldKey = prior.ID
		if err := p.CheckForActiveKey(ctx, locator, prior.ID); err != nil {
			return err
		}
		report.enter(StepActiveKeyVerified)
		logger.Debug("Downstream %s holds active key %s", service, prior.ID)
	} else {
		logger.Debug("No active key, skipping downstream verification")
	}

	newKey, err := e.store.CreateKey(ctx, identity)
	if err != nil {
		return err
	}
	defer newKey.Destroy()
	report.NewKey = newKey.ID
	report.enter(StepNewKeyCreated)
	logger.Debug("Created key %s", newKey.ID)

	if err := p.CreateOrUpdateKey(ctx, locator, newKey); err != nil {
		return err
	}
	report.enter(StepPropagated)
	logger.Debug("Propagated key %s to %s", newKey.ID, service)

	if prior != nil {
		if err := e.store.DeactivateKey(ctx, identity, *prior); err != nil {
			return err
		}
		report.enter(StepOldKeyDeactivated)
		logger.Debug("Deactivated key %s", prior.ID)
	}

	return nil
}

// activeKey returns the identity's only Active key, nil when there is none,
// or MultipleActiveKeysError.
func activeKey(identity Identity, keys []AccessKey) (*AccessKey, error) {
	var active []AccessKey
	for _, k := range keys {
		if k.Status == KeyStatusActive {
			active = append(active, k)
		}
	}

	switch len(active) {
	case 0:
		return nil, nil
	case 1:
		return &active[0], nil
	default:
		return nil, ferrors.MultipleActiveKeysError{Identity: identity.Name, Count: len(active)}
	}
}

func displayKey(id string) string {
	if id == "" {
		return "(none)"
	}
	return id
}
