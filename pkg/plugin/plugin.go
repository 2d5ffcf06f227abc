package plugin

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/internal/secure"
)

// Plugin is the two-method capability a downstream integration provides.
type Plugin interface {
	// CheckForActiveKey fails when the service's recorded key id differs from keyID.
	CheckForActiveKey(ctx context.Context, locator, keyID string) error

	// CreateOrUpdateKey ensures the service holds key.
	CreateOrUpdateKey(ctx context.Context, locator string, key Key) error
}

// Factory builds a plugin instance from its settings.
type Factory func(settings Settings) (Plugin, error)

// Key is an access key on its way to a downstream service.
type Key struct {
	ID     string
	secret *secure.SecureBuffer
}

// NewKey seals secret and returns a Key for id.
func NewKey(id, secret string) Key {
	return Key{ID: id, secret: secure.NewSecureString(secret)}
}

// Secret returns the secret access key.
func (k Key) Secret() (string, error) {
	if k.secret == nil {
		return "", fmt.Errorf("key %s has no secret material", k.ID)
	}
	return k.secret.Reveal()
}

// Destroy wipes the secret material.
func (k Key) Destroy() {
	if k.secret != nil {
		k.secret.Destroy()
	}
}

// String returns the key id only.
func (k Key) String() string {
	return k.ID
}

// GoString keeps %#v from printing the enclave pointer.
func (k Key) GoString() string {
	return fmt.Sprintf("plugin.Key{ID: %q}", k.ID)
}

// Settings holds one plugin's configuration as decoded from YAML or SSM.
type Settings map[string]interface{}

// Has reports whether key is present.
func (s Settings) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// String returns the setting as a string, or "" when absent.
func (s Settings) String(key string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// StringOr returns the setting or def when it is absent or empty.
func (s Settings) StringOr(key, def string) string {
	if v := s.String(key); v != "" {
		return v
	}
	return def
}

// Required returns the setting or a ConfigurationError when it is missing.
func (s Settings) Required(key string) (string, error) {
	v := s.String(key)
	if v == "" {
		return "", ferrors.ConfigurationError{
			Field:   key,
			Message: fmt.Sprintf("missing required setting '%s'", key),
		}
	}
	return v, nil
}

// Bool accepts YAML booleans and the strings "true"/"True".
func (s Settings) Bool(key string) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "True"
	default:
		return false
	}
}

// Int returns an integer setting, or def when absent or unparsable.
func (s Settings) Int(key string, def int) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Duration parses a Go duration string, falling back to seconds for numbers.
func (s Settings) Duration(key string, def time.Duration) time.Duration {
	switch v := s[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}

// Keys returns the setting names in sorted order.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
