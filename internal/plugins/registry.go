package plugins

import (
	"fmt"
	"sort"
	"sync"

	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/pkg/plugin"
	"github.com/systmms/felix/pkg/rotation"
)

// Registry maps service names to plugin factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]plugin.Factory
	client    *Client
}

var _ rotation.PluginResolver = (*Registry)(nil)

// NewRegistry creates a registry with the built-in integrations. They share
// client for all downstream requests; nil means NewClient().
func NewRegistry(client *Client) *Registry {
	if client == nil {
		client = NewClient()
	}

	r := &Registry{
		factories: make(map[string]plugin.Factory),
		client:    client,
	}

	r.Register("gitlab", func(s plugin.Settings) (plugin.Plugin, error) { return NewGitLab(s, r.client) })
	r.Register("sumologic", func(s plugin.Settings) (plugin.Plugin, error) { return NewSumoLogic(s, r.client) })
	r.Register("travis", func(s plugin.Settings) (plugin.Plugin, error) { return NewTravis(s, r.client) })
	r.Register("jenkins", func(s plugin.Settings) (plugin.Plugin, error) { return NewJenkins(s, r.client) })
	r.Register("commercetools", func(s plugin.Settings) (plugin.Plugin, error) { return NewCommercetools(s, r.client) })

	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, factory plugin.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Has reports whether a factory is registered for name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered service names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve builds a fresh plugin for service. Configuration is checked
// before the registry so a typo in the path reports the missing settings.
func (r *Registry) Resolve(service string, settings map[string]plugin.Settings) (plugin.Plugin, error) {
	cfg, ok := settings[service]
	if !ok {
		return nil, ferrors.ConfigurationError{
			Field:   service,
			Message: fmt.Sprintf("Plugin %s has no configuration!", service),
		}
	}

	r.mu.RLock()
	factory, ok := r.factories[service]
	r.mu.RUnlock()
	if !ok {
		return nil, ferrors.ConfigurationError{
			Field:   service,
			Message: fmt.Sprintf("Unable to find requested plugin %s.", service),
		}
	}

	if cfg == nil {
		cfg = plugin.Settings{}
	}
	return factory(cfg.Clone())
}
