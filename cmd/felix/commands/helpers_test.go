package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/require"
	"github.com/systmms/felix/cmd/felix/commands"
	"github.com/systmms/felix/internal/config"
	"github.com/systmms/felix/tests/fakes"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// harness holds the fakes behind one command invocation.
type harness struct {
	IAM     *fakes.FakeIAMClient
	SSM     *fakes.FakeSSMClient
	Secrets *fakes.FakeSecretsManagerClient
	SNS     *fakes.FakeSNSClient
	STS     *fakes.FakeSTSClient
	Env     map[string]string
	Dir     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		IAM:     fakes.NewFakeIAMClient(),
		SSM:     fakes.NewFakeSSMClient(),
		Secrets: fakes.NewFakeSecretsManagerClient(),
		SNS:     &fakes.FakeSNSClient{},
		STS:     &fakes.FakeSTSClient{Account: "123456789012", Arn: "arn:aws:iam::123456789012:user/ops/felix"},
		Env:     map[string]string{},
		Dir:     t.TempDir(),
	}
}

func (h *harness) deps() *commands.Deps {
	return &commands.Deps{
		Lookuper: envconfig.MapLookuper(h.Env),
		AWSConfig: func(ctx context.Context, def *config.Definition) (aws.Config, error) {
			return aws.Config{Region: "us-east-1"}, nil
		},
		NewClients: func(cfg aws.Config) commands.Clients {
			return commands.Clients{
				IAM:            h.IAM,
				SSM:            h.SSM,
				SecretsManager: h.Secrets,
				SNS:            h.SNS,
				STS:            h.STS,
			}
		},
		Now: func() time.Time { return fixedNow },
	}
}

// writeConfig writes felix.yaml into the harness directory. %s in body is
// replaced with the history directory.
func (h *harness) writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(h.Dir, "felix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func (h *harness) historyDir() string {
	return filepath.Join(h.Dir, "history")
}

// run executes the root command and returns stdout.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := commands.NewRootCommand(&config.Config{}, h.deps(), "test")
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// fakeTravis serves the Travis v3 env var endpoints for any repository.
type fakeTravis struct {
	mu       sync.Mutex
	vars     map[string][]map[string]interface{}
	requests []string
}

func newFakeTravis(t *testing.T) (*fakeTravis, *httptest.Server) {
	t.Helper()
	f := &fakeTravis{vars: map[string][]map[string]interface{}{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeTravis) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	repo := strings.TrimPrefix(r.URL.Path, "/repo/")
	repo = repo[:strings.LastIndex(repo, "/")]

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/env_vars"):
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"env_vars": f.vars[repo]})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/env_vars"):
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.vars[repo] = append(f.vars[repo], map[string]interface{}{
			"id":     fmt.Sprintf("var-%d", len(f.vars[repo])+1),
			"name":   body["env_var.name"],
			"value":  body["env_var.value"],
			"public": body["env_var.public"],
		})
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error_message":"not found"}`))
	}
}

func (f *fakeTravis) value(repo, name string) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.vars[repo] {
		if v["name"] == name {
			return v["value"]
		}
	}
	return nil
}
