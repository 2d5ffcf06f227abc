package plugins

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/pkg/plugin"
	"github.com/systmms/felix/pkg/rotation"
	"golang.org/x/sync/errgroup"
)

// DefaultTravisURL is the Travis CI API endpoint used when no url is set.
const DefaultTravisURL = "https://api.travis-ci.org"

// Travis stores the key as repository environment variables. Locator:
// <owner>/<repo>.
type Travis struct {
	baseURL string
	token   string
	client  *Client
}

type travisEnvVar struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Value  string `json:"value,omitempty"`
	Public bool   `json:"public"`
}

// NewTravis creates the Travis integration. Settings: token and optionally url.
func NewTravis(settings plugin.Settings, client *Client) (*Travis, error) {
	token, err := settings.Required("token")
	if err != nil {
		return nil, err
	}
	return &Travis{
		baseURL: strings.TrimSuffix(settings.StringOr("url", DefaultTravisURL), "/"),
		token:   token,
		client:  client,
	}, nil
}

// CheckForActiveKey passes when the repository has no AWS_ACCESS_KEY_ID yet
// or it equals keyID.
func (t *Travis) CheckForActiveKey(ctx context.Context, locator, keyID string) error {
	vars, err := t.envVars(ctx, locator)
	if err != nil {
		return err
	}

	for _, v := range vars {
		if v.Name == accessKeyIDVar && v.Value != keyID {
			return ferrors.VerificationMismatchError{
				Service: "travis",
				Locator: locator,
				Message: "The active key does not match the one used by the service!",
			}
		}
	}
	return nil
}

// CreateOrUpdateKey writes the key id as a public variable and the secret as
// a private one.
func (t *Travis) CreateOrUpdateKey(ctx context.Context, locator string, key plugin.Key) error {
	secret, err := key.Secret()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, v := range []travisEnvVar{
		{Name: accessKeyIDVar, Value: key.ID, Public: true},
		{Name: secretAccessKeyVar, Value: secret, Public: false},
	} {
		v := v
		g.Go(func() error {
			return t.createOrUpdate(ctx, locator, v)
		})
	}
	return g.Wait()
}

func (t *Travis) createOrUpdate(ctx context.Context, locator string, v travisEnvVar) error {
	vars, err := t.envVars(ctx, locator)
	if err != nil {
		return err
	}

	body := map[string]interface{}{
		"env_var.name":   v.Name,
		"env_var.value":  v.Value,
		"env_var.public": v.Public,
	}

	ns := url.PathEscape(locator)
	for _, existing := range vars {
		if existing.Name == v.Name {
			req := t.request("update env var", "/repo/"+ns+"/env_var/"+url.PathEscape(existing.ID))
			req.method = http.MethodPatch
			_, err := t.client.sendJSON(ctx, req, body)
			return err
		}
	}

	req := t.request("create env var", "/repo/"+ns+"/env_vars")
	req.method = http.MethodPost
	_, err = t.client.sendJSON(ctx, req, body)
	return err
}

func (t *Travis) envVars(ctx context.Context, locator string) ([]travisEnvVar, error) {
	if _, _, err := rotation.SplitLocator(locator); err != nil {
		return nil, err
	}

	var payload struct {
		EnvVars []travisEnvVar `json:"env_vars"`
	}
	if _, err := t.client.getJSON(ctx, t.request("list env vars", "/repo/"+url.PathEscape(locator)+"/env_vars"), &payload); err != nil {
		return nil, err
	}
	return payload.EnvVars, nil
}

func (t *Travis) request(op, path string) request {
	return request{
		plugin: "travis",
		op:     op,
		url:    t.baseURL + path,
		header: http.Header{
			"Travis-Api-Version": []string{"3"},
			"Authorization":      []string{"token " + t.token},
		},
	}
}
