package testutil

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/pkg/rotation"
)

// KeyStoreTestCase defines a key store under test.
type KeyStoreTestCase struct {
	// Name is a descriptive name for this test case
	Name string

	// Store is the implementation under test
	Store rotation.KeyStore

	// Identity must exist in Store, under PathPrefix, with no access keys.
	Identity rotation.Identity

	// PathPrefix is a prefix Identity is listed under
	PathPrefix string

	// MissingPrefix is a prefix nothing is listed under
	MissingPrefix string
}

// RunKeyStoreContractTests runs the behaviour every rotation.KeyStore must
// share:
//   - identities are listed by path prefix, and no match is an empty list
//   - calls without an identity fail with ValidationError
//   - the create, deactivate, purge and delete lifecycle
//   - concurrent reads are safe
//
// The suite mutates Identity's keys; give each call its own store.
func RunKeyStoreContractTests(t *testing.T, tc KeyStoreTestCase) {
	t.Helper()

	require.NotNil(t, tc.Store, "Store cannot be nil")
	require.NotEmpty(t, tc.Name, "test case name cannot be empty")
	require.NotEmpty(t, tc.Identity.Name, "Identity must be named")

	t.Run(tc.Name+"/ListIdentities", func(t *testing.T) {
		testListIdentities(t, tc)
	})
	t.Run(tc.Name+"/Validation", func(t *testing.T) {
		testValidation(t, tc)
	})
	t.Run(tc.Name+"/Lifecycle", func(t *testing.T) {
		testLifecycle(t, tc)
	})
	t.Run(tc.Name+"/ConcurrentReads", func(t *testing.T) {
		testConcurrentReads(t, tc)
	})
}

func testListIdentities(t *testing.T, tc KeyStoreTestCase) {
	ctx := context.Background()

	identities, err := tc.Store.ListIdentities(ctx, tc.PathPrefix)
	require.NoError(t, err)

	var found *rotation.Identity
	for i := range identities {
		if identities[i].Name == tc.Identity.Name {
			found = &identities[i]
		}
	}
	require.NotNil(t, found, "%s should be listed under %s", tc.Identity.Name, tc.PathPrefix)
	assert.Equal(t, tc.Identity.Path, found.Path)
	assert.Equal(t, tc.Identity.ARN, found.ARN)

	if tc.MissingPrefix != "" {
		none, err := tc.Store.ListIdentities(ctx, tc.MissingPrefix)
		require.NoError(t, err)
		assert.NotNil(t, none, "no match must be an empty list, not nil")
		assert.Empty(t, none)
	}
}

func testValidation(t *testing.T, tc KeyStoreTestCase) {
	ctx := context.Background()
	nobody := rotation.Identity{}

	var ve ferrors.ValidationError

	_, err := tc.Store.ListKeys(ctx, nobody)
	assert.True(t, stderrors.As(err, &ve), "ListKeys without identity: %v", err)

	_, err = tc.Store.CreateKey(ctx, nobody)
	assert.True(t, stderrors.As(err, &ve), "CreateKey without identity: %v", err)

	err = tc.Store.DeactivateKey(ctx, nobody, rotation.AccessKey{ID: "AKIAUNKNOWN"})
	assert.True(t, stderrors.As(err, &ve), "DeactivateKey without identity: %v", err)

	err = tc.Store.DeactivateKey(ctx, tc.Identity, rotation.AccessKey{})
	assert.True(t, stderrors.As(err, &ve), "DeactivateKey without key: %v", err)

	err = tc.Store.DeleteKey(ctx, nobody, "AKIAUNKNOWN")
	assert.True(t, stderrors.As(err, &ve), "DeleteKey without identity: %v", err)
}

func testLifecycle(t *testing.T, tc KeyStoreTestCase) {
	ctx := context.Background()
	id := tc.Identity

	keys, err := tc.Store.ListKeys(ctx, id)
	require.NoError(t, err)
	require.Empty(t, keys, "Identity must start without keys")

	first, err := tc.Store.CreateKey(ctx, id)
	require.NoError(t, err)
	defer first.Destroy()
	require.NotEmpty(t, first.ID)

	secret, err := first.Secret()
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	AssertNoSecretLeak(t, fmt.Sprintf("%v %+v %#v", first, first, first), secret)

	keys, err = tc.Store.ListKeys(ctx, id)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, first.ID, keys[0].ID)
	assert.Equal(t, rotation.KeyStatusActive, keys[0].Status)

	require.NoError(t, tc.Store.DeactivateKey(ctx, id, keys[0]))

	second, err := tc.Store.CreateKey(ctx, id)
	require.NoError(t, err)
	defer second.Destroy()
	assert.NotEqual(t, first.ID, second.ID)

	keys, err = tc.Store.ListKeys(ctx, id)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	statuses := map[string]rotation.KeyStatus{}
	for _, k := range keys {
		statuses[k.ID] = k.Status
	}
	assert.Equal(t, rotation.KeyStatusInactive, statuses[first.ID])
	assert.Equal(t, rotation.KeyStatusActive, statuses[second.ID])

	require.NoError(t, tc.Store.PurgeInactiveKeys(ctx, id))

	keys, err = tc.Store.ListKeys(ctx, id)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, second.ID, keys[0].ID)

	// Nothing left to purge is not an error.
	require.NoError(t, tc.Store.PurgeInactiveKeys(ctx, id))

	require.NoError(t, tc.Store.DeleteKey(ctx, id, second.ID))
	keys, err = tc.Store.ListKeys(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, keys)

	assert.Error(t, tc.Store.DeleteKey(ctx, id, second.ID), "deleting a missing key should fail")
}

func testConcurrentReads(t *testing.T, tc KeyStoreTestCase) {
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tc.Store.ListIdentities(ctx, tc.PathPrefix); err != nil {
				errs <- err
			}
			if _, err := tc.Store.ListKeys(ctx, tc.Identity); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
