package rotation

import (
	"context"
	"time"

	"github.com/systmms/felix/pkg/plugin"
)

// Identity is a managed principal whose access key is rotated.
type Identity struct {
	Name      string    `json:"name"`
	ID        string    `json:"id,omitempty"`
	Path      string    `json:"path"`
	ARN       string    `json:"arn"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// KeyStatus is the provider-side state of an access key.
type KeyStatus string

const (
	KeyStatusActive   KeyStatus = "Active"
	KeyStatusInactive KeyStatus = "Inactive"
)

// AccessKey is an access key as reported by the identity provider. It never
// carries secret material.
type AccessKey struct {
	ID        string    `json:"id"`
	Status    KeyStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// KeyStore is the identity/key provider.
type KeyStore interface {
	// ListIdentities returns the identities under pathPrefix. No match is not an error.
	ListIdentities(ctx context.Context, pathPrefix string) ([]Identity, error)

	// ListKeys returns every key of the identity, Active or not.
	ListKeys(ctx context.Context, identity Identity) ([]AccessKey, error)

	// CreateKey creates a new Active key and returns it with its secret.
	CreateKey(ctx context.Context, identity Identity) (plugin.Key, error)

	// DeactivateKey marks key Inactive.
	DeactivateKey(ctx context.Context, identity Identity, key AccessKey) error

	// DeleteKey removes a key.
	DeleteKey(ctx context.Context, identity Identity, keyID string) error

	// PurgeInactiveKeys deletes every Inactive key of the identity.
	PurgeInactiveKeys(ctx context.Context, identity Identity) error
}

// PluginResolver builds a fresh plugin for a service from the configured settings.
type PluginResolver interface {
	Resolve(service string, settings map[string]plugin.Settings) (plugin.Plugin, error)
}

// Rotator rotates a single identity.
type Rotator interface {
	RotateIdentity(ctx context.Context, identity Identity) Report
}

// ReportSink receives the outcome of a run.
type ReportSink interface {
	Publish(ctx context.Context, summary *Summary) error
}

// ReportSinkFunc adapts a function to ReportSink.
type ReportSinkFunc func(ctx context.Context, summary *Summary) error

// Publish calls f.
func (f ReportSinkFunc) Publish(ctx context.Context, summary *Summary) error {
	return f(ctx, summary)
}
