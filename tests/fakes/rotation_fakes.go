package fakes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/pkg/plugin"
	"github.com/systmms/felix/pkg/rotation"
)

// CallLog records operations in the order they happened.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

// Record appends a call.
func (l *CallLog) Record(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

// Calls returns a copy of the recorded calls.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// Count returns how many calls start with prefix.
func (l *CallLog) Count(prefix string) int {
	n := 0
	for _, c := range l.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Index returns the position of the first call starting with prefix, or -1.
func (l *CallLog) Index(prefix string) int {
	for i, c := range l.Calls() {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

// Identity builds an identity the way IAM reports a user.
func Identity(path, name string) rotation.Identity {
	return rotation.Identity{
		Name: name,
		ID:   "AIDA" + strings.ToUpper(strings.NewReplacer("@", "", "-", "", ".", "").Replace(name)),
		Path: path,
		ARN:  fmt.Sprintf("arn:aws:iam::123456789012:user%s%s", path, name),
	}
}

// FakeKeyStore is an in-memory rotation.KeyStore.
type FakeKeyStore struct {
	mu sync.Mutex

	Identities []rotation.Identity
	Keys       map[string][]rotation.AccessKey
	Secrets    map[string]string

	// ListIdentitiesErr fails discovery.
	ListIdentitiesErr error
	// Errors maps "<Op>" or "<Op>:<identity>" to an error to return.
	Errors map[string]error

	Log     *CallLog
	created int
}

// NewFakeKeyStore creates an empty store.
func NewFakeKeyStore(log *CallLog) *FakeKeyStore {
	return &FakeKeyStore{
		Keys:    make(map[string][]rotation.AccessKey),
		Secrets: make(map[string]string),
		Errors:  make(map[string]error),
		Log:     log,
	}
}

// AddIdentity registers identities.
func (f *FakeKeyStore) AddIdentity(ids ...rotation.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Identities = append(f.Identities, ids...)
}

// AddKey attaches a key to the named identity.
func (f *FakeKeyStore) AddKey(name, id string, status rotation.KeyStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Keys[name] = append(f.Keys[name], rotation.AccessKey{ID: id, Status: status, CreatedAt: time.Now()})
}

// KeysFor returns a copy of the identity's keys.
func (f *FakeKeyStore) KeysFor(name string) []rotation.AccessKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rotation.AccessKey{}, f.Keys[name]...)
}

func (f *FakeKeyStore) fail(op, name string) error {
	f.Log.Record("store." + op + ":" + name)
	if err, ok := f.Errors[op+":"+name]; ok {
		return err
	}
	if err, ok := f.Errors[op]; ok {
		return err
	}
	return nil
}

// ListIdentities returns identities whose path starts with pathPrefix.
func (f *FakeKeyStore) ListIdentities(_ context.Context, pathPrefix string) ([]rotation.Identity, error) {
	f.Log.Record("store.ListIdentities:" + pathPrefix)
	if f.ListIdentitiesErr != nil {
		return nil, f.ListIdentitiesErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := []rotation.Identity{}
	for _, id := range f.Identities {
		if strings.HasPrefix(id.Path, pathPrefix) {
			out = append(out, id)
		}
	}
	return out, nil
}

// ListKeys returns the identity's keys.
func (f *FakeKeyStore) ListKeys(_ context.Context, identity rotation.Identity) ([]rotation.AccessKey, error) {
	if identity.Name == "" {
		return nil, ferrors.ValidationError{Op: "ListKeys", Message: "Please specify a user to get the keys for."}
	}
	if err := f.fail("ListKeys", identity.Name); err != nil {
		return nil, err
	}
	return f.KeysFor(identity.Name), nil
}

// CreateKey adds a new Active key.
func (f *FakeKeyStore) CreateKey(_ context.Context, identity rotation.Identity) (plugin.Key, error) {
	if identity.Name == "" {
		return plugin.Key{}, ferrors.ValidationError{Op: "CreateKey", Message: "Please specify a user to create the key for."}
	}
	if err := f.fail("CreateKey", identity.Name); err != nil {
		return plugin.Key{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	id := fmt.Sprintf("AKIANEW%04d", f.created)
	secret := fmt.Sprintf("secret-%04d", f.created)
	f.Keys[identity.Name] = append(f.Keys[identity.Name], rotation.AccessKey{ID: id, Status: rotation.KeyStatusActive, CreatedAt: time.Now()})
	f.Secrets[id] = secret
	return plugin.NewKey(id, secret), nil
}

// DeactivateKey marks key Inactive.
func (f *FakeKeyStore) DeactivateKey(_ context.Context, identity rotation.Identity, key rotation.AccessKey) error {
	if identity.Name == "" || key.ID == "" {
		return ferrors.ValidationError{Op: "DeactivateKey", Message: "Username and key must both be specified."}
	}
	if err := f.fail("DeactivateKey", identity.Name); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, k := range f.Keys[identity.Name] {
		if k.ID == key.ID {
			f.Keys[identity.Name][i].Status = rotation.KeyStatusInactive
			return nil
		}
	}
	return fmt.Errorf("NoSuchEntity: key %s not found", key.ID)
}

// DeleteKey removes a key.
func (f *FakeKeyStore) DeleteKey(_ context.Context, identity rotation.Identity, keyID string) error {
	if identity.Name == "" || keyID == "" {
		return ferrors.ValidationError{Op: "DeleteKey", Message: "Username and key must both be specified."}
	}
	if err := f.fail("DeleteKey", identity.Name); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	keys := f.Keys[identity.Name]
	for i, k := range keys {
		if k.ID == keyID {
			f.Keys[identity.Name] = append(keys[:i:i], keys[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("NoSuchEntity: key %s not found", keyID)
}

// PurgeInactiveKeys deletes every Inactive key.
func (f *FakeKeyStore) PurgeInactiveKeys(ctx context.Context, identity rotation.Identity) error {
	if err := f.fail("PurgeInactiveKeys", identity.Name); err != nil {
		return err
	}
	for _, k := range f.KeysFor(identity.Name) {
		if k.Status == rotation.KeyStatusInactive {
			if err := f.DeleteKey(ctx, identity, k.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// FakePlugin is a downstream service that stores one key id per locator.
type FakePlugin struct {
	mu sync.Mutex

	Name string
	// Downstream maps locator to the key id the service holds.
	Downstream map[string]string
	// Secrets maps locator to the secret the service holds.
	Secrets map[string]string

	CheckErr  error
	UpdateErr error
	// RequireExisting makes CheckForActiveKey fail when the locator is unknown.
	RequireExisting bool

	Log *CallLog
}

// NewFakePlugin creates an empty downstream service.
func NewFakePlugin(name string, log *CallLog) *FakePlugin {
	return &FakePlugin{
		Name:       name,
		Downstream: make(map[string]string),
		Secrets:    make(map[string]string),
		Log:        log,
	}
}

// Holds returns the key id recorded for locator.
func (f *FakePlugin) Holds(locator string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Downstream[locator]
}

// CheckForActiveKey compares the recorded key id with keyID.
func (f *FakePlugin) CheckForActiveKey(_ context.Context, locator, keyID string) error {
	f.Log.Record(f.Name + ".CheckForActiveKey:" + locator)
	if f.CheckErr != nil {
		return f.CheckErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	held, ok := f.Downstream[locator]
	if !ok {
		if f.RequireExisting {
			return ferrors.PluginError{Plugin: f.Name, Op: "check", Message: "Could not find AWS keys in " + locator}
		}
		return nil
	}
	if held != keyID {
		return ferrors.VerificationMismatchError{Service: f.Name, Locator: locator}
	}
	return nil
}

// CreateOrUpdateKey records key for locator.
func (f *FakePlugin) CreateOrUpdateKey(_ context.Context, locator string, key plugin.Key) error {
	f.Log.Record(f.Name + ".CreateOrUpdateKey:" + locator)
	if f.UpdateErr != nil {
		return f.UpdateErr
	}

	secret, err := key.Secret()
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Downstream[locator] = key.ID
	f.Secrets[locator] = secret
	return nil
}

// FakeResolver resolves services to fixed plugins.
type FakeResolver struct {
	mu       sync.Mutex
	Plugins  map[string]plugin.Plugin
	Resolved []string
}

// NewFakeResolver registers the given fake plugins under their names.
func NewFakeResolver(plugins ...*FakePlugin) *FakeResolver {
	r := &FakeResolver{Plugins: make(map[string]plugin.Plugin)}
	for _, p := range plugins {
		r.Plugins[p.Name] = p
	}
	return r
}

// Resolve mirrors the registry's configuration checks.
func (r *FakeResolver) Resolve(service string, settings map[string]plugin.Settings) (plugin.Plugin, error) {
	r.mu.Lock()
	r.Resolved = append(r.Resolved, service)
	r.mu.Unlock()

	if _, ok := settings[service]; !ok {
		return nil, ferrors.ConfigurationError{Field: service, Message: fmt.Sprintf("Plugin %s has no configuration!", service)}
	}
	p, ok := r.Plugins[service]
	if !ok {
		return nil, ferrors.ConfigurationError{Field: service, Message: fmt.Sprintf("Unable to find requested plugin %s.", service)}
	}
	return p, nil
}
