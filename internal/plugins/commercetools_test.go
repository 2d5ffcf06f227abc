package plugins_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/felix/internal/plugins"
	"github.com/systmms/felix/pkg/plugin"
)

type fakeCommercetools struct {
	mu          sync.Mutex
	tokenScopes []string
	gets        int
	destination map[string]interface{}
	update      map[string]interface{}
}

func newFakeCommercetools(t *testing.T) (*fakeCommercetools, *httptest.Server) {
	t.Helper()

	f := &fakeCommercetools{
		destination: map[string]interface{}{
			"type":         "SQS",
			"queueUrl":     "https://sqs.eu-west-1.amazonaws.com/123/orders",
			"accessKey":    "AKIAOLD",
			"accessSecret": "old-secret",
			"region":       "eu-west-1",
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case r.URL.Path == "/oauth/token":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "client" || pass != "secret" || r.URL.Query().Get("grant_type") != "client_credentials" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			f.tokenScopes = append(f.tokenScopes, r.URL.Query().Get("scope"))
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "ct-token", "expires_in": 172800})
		case r.URL.Path == "/shop/subscriptions/key=orders":
			if r.Header.Get("Authorization") != "Bearer ct-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if r.Method == http.MethodGet {
				f.gets++
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "sub-1", "key": "orders", "version": 3, "destination": f.destination})
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&f.update)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"version": 4})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func newCommercetools(t *testing.T, url, delay string) *plugins.Commercetools {
	t.Helper()
	c, err := plugins.NewCommercetools(plugin.Settings{
		"clientId":         "client",
		"clientSecret":     "secret",
		"oauthHost":        url + "/",
		"apiHost":          url,
		"propagationDelay": delay,
	}, plugins.NewClient())
	require.NoError(t, err)
	return c
}

func TestCommercetoolsRotation(t *testing.T) {
	t.Parallel()

	fake, srv := newFakeCommercetools(t)
	c := newCommercetools(t, srv.URL, "0s")
	ctx := context.Background()

	require.NoError(t, c.CheckForActiveKey(ctx, "shop/orders", "AKIAOLD"))
	require.NoError(t, c.CreateOrUpdateKey(ctx, "shop/orders", plugin.NewKey("AKIANEW", "new-secret")))

	fake.mu.Lock()
	defer fake.mu.Unlock()

	assert.Equal(t, []string{"manage_subscriptions:shop"}, fake.tokenScopes)
	assert.Equal(t, 1, fake.gets, "subscription is memoized")
	require.NotNil(t, fake.update)
	assert.EqualValues(t, 3, fake.update["version"])

	actions := fake.update["actions"].([]interface{})
	require.Len(t, actions, 1)
	action := actions[0].(map[string]interface{})
	assert.Equal(t, "changeDestination", action["action"])
	dest := action["destination"].(map[string]interface{})
	assert.Equal(t, "AKIANEW", dest["accessKey"])
	assert.Equal(t, "new-secret", dest["accessSecret"])
	assert.Equal(t, "SQS", dest["type"])
}

func TestCommercetoolsMismatch(t *testing.T) {
	t.Parallel()

	_, srv := newFakeCommercetools(t)
	err := newCommercetools(t, srv.URL, "0s").CheckForActiveKey(context.Background(), "shop/orders", "AKIAOTHER")
	require.Error(t, err)
	assert.Equal(t, "Key found in service not same as active key!", err.Error())
}

func TestCommercetoolsDelayHonoursContext(t *testing.T) {
	t.Parallel()

	fake, srv := newFakeCommercetools(t)
	c := newCommercetools(t, srv.URL, "1h")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.CreateOrUpdateKey(ctx, "shop/orders", plugin.NewKey("AKIANEW", "new-secret"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Nil(t, fake.update)
}
