package plugins_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/internal/plugins"
	"github.com/systmms/felix/pkg/plugin"
)

// fakeGitLab serves one project (id 42, "group/project") and its variables.
type fakeGitLab struct {
	mu        sync.Mutex
	vars      map[string]map[string]interface{}
	requests  []string
	tokenSeen string
}

func newFakeGitLab(t *testing.T) (*fakeGitLab, *httptest.Server) {
	t.Helper()
	f := &fakeGitLab{vars: map[string]map[string]interface{}{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGitLab) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.EscapedPath())
	f.tokenSeen = r.Header.Get("PRIVATE-TOKEN")

	switch {
	case r.Method == http.MethodGet && r.URL.EscapedPath() == "/api/v4/projects/group%2Fproject":
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": 42, "path_with_namespace": "group/project"})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/v4/projects/") && !strings.HasSuffix(r.URL.Path, "/variables"):
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"404 Project Not Found"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/v4/projects/42/variables":
		list := []map[string]interface{}{}
		for _, v := range f.vars {
			list = append(list, v)
		}
		_ = json.NewEncoder(w).Encode(list)
	case r.Method == http.MethodPost && r.URL.Path == "/api/v4/projects/42/variables":
		var v map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&v)
		key, _ := v["key"].(string)
		if _, exists := f.vars[key]; exists {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":{"key":["has already been taken"]}}`))
			return
		}
		f.vars[key] = v
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(v)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/api/v4/projects/42/variables/"):
		key := strings.TrimPrefix(r.URL.Path, "/api/v4/projects/42/variables/")
		var v map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&v)
		f.vars[key] = v
		_ = json.NewEncoder(w).Encode(v)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeGitLab) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeGitLab) value(key string) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.vars[key]; ok {
		return v["value"]
	}
	return nil
}

func newGitLab(t *testing.T, url string, extra plugin.Settings) *plugins.GitLab {
	t.Helper()
	settings := plugin.Settings{"url": url, "token": "glpat-secret"}
	for k, v := range extra {
		settings[k] = v
	}
	g, err := plugins.NewGitLab(settings, plugins.NewClient())
	require.NoError(t, err)
	return g
}

func TestGitLabCreatesVariablesForFreshProject(t *testing.T) {
	t.Parallel()

	fake, srv := newFakeGitLab(t)
	g := newGitLab(t, srv.URL, nil)

	key := plugin.NewKey("AKIANEW", "new-secret")
	defer key.Destroy()

	require.NoError(t, g.CreateOrUpdateKey(context.Background(), "group/project", key))

	assert.Equal(t, 2, fake.count("POST /api/v4/projects/42/variables"))
	assert.Equal(t, 0, fake.count("PUT "))
	assert.Equal(t, "AKIANEW", fake.value("AWS_ACCESS_KEY_ID"))
	assert.Equal(t, "new-secret", fake.value("AWS_SECRET_ACCESS_KEY"))
	assert.Equal(t, "glpat-secret", fake.tokenSeen)
	assert.Equal(t, false, fake.vars["AWS_ACCESS_KEY_ID"]["protected"])
}

func TestGitLabUpdatesExistingVariables(t *testing.T) {
	t.Parallel()

	fake, srv := newFakeGitLab(t)
	fake.vars["AWS_ACCESS_KEY_ID"] = map[string]interface{}{"key": "AWS_ACCESS_KEY_ID", "value": "AKIAOLD"}
	fake.vars["AWS_SECRET_ACCESS_KEY"] = map[string]interface{}{"key": "AWS_SECRET_ACCESS_KEY", "value": "old-secret"}
	g := newGitLab(t, srv.URL, plugin.Settings{"protectedKeys": "True"})

	require.NoError(t, g.CheckForActiveKey(context.Background(), "group/project", "AKIAOLD"))
	require.NoError(t, g.CreateOrUpdateKey(context.Background(), "group/project", plugin.NewKey("AKIANEW", "new-secret")))

	assert.Equal(t, 0, fake.count("POST "))
	assert.Equal(t, 1, fake.count("PUT /api/v4/projects/42/variables/AWS_ACCESS_KEY_ID"))
	assert.Equal(t, 1, fake.count("PUT /api/v4/projects/42/variables/AWS_SECRET_ACCESS_KEY"))
	assert.Equal(t, "AKIANEW", fake.value("AWS_ACCESS_KEY_ID"))
	assert.Equal(t, true, fake.vars["AWS_SECRET_ACCESS_KEY"]["protected"])
}

func TestGitLabCheckForActiveKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		vars    map[string]string
		keyID   string
		wantErr bool
	}{
		{name: "matching", vars: map[string]string{"AWS_ACCESS_KEY_ID": "AKIA1"}, keyID: "AKIA1"},
		{name: "different", vars: map[string]string{"AWS_ACCESS_KEY_ID": "AKIA2"}, keyID: "AKIA1", wantErr: true},
		{name: "missing", vars: map[string]string{"OTHER": "x"}, keyID: "AKIA1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake, srv := newFakeGitLab(t)
			for k, v := range tt.vars {
				fake.vars[k] = map[string]interface{}{"key": k, "value": v}
			}

			err := newGitLab(t, srv.URL, nil).CheckForActiveKey(context.Background(), "group/project", tt.keyID)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, "Key found in service not same as active key!", err.Error())
			var mismatch ferrors.VerificationMismatchError
			assert.ErrorAs(t, err, &mismatch)
		})
	}
}

func TestGitLabUnknownProject(t *testing.T) {
	t.Parallel()

	_, srv := newFakeGitLab(t)
	err := newGitLab(t, srv.URL, nil).CheckForActiveKey(context.Background(), "group/missing", "AKIA1")

	require.Error(t, err)
	assert.Equal(t, "404 Project Not Found", err.Error())
	var pe ferrors.PluginError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusNotFound, pe.StatusCode)
}

func TestGitLabRejectsBadLocator(t *testing.T) {
	t.Parallel()

	fake, srv := newFakeGitLab(t)
	err := newGitLab(t, srv.URL, nil).CheckForActiveKey(context.Background(), "project", "AKIA1")

	require.Error(t, err)
	assert.Equal(t, 0, fake.count(""))
}

func TestNewGitLabRequiresSettings(t *testing.T) {
	t.Parallel()

	_, err := plugins.NewGitLab(plugin.Settings{"url": "https://gitlab.example.com"}, plugins.NewClient())
	require.Error(t, err)
	var ce ferrors.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "token", ce.Field)
}
