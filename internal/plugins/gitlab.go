package plugins

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/pkg/plugin"
	"github.com/systmms/felix/pkg/rotation"
)

const (
	accessKeyIDVar     = "AWS_ACCESS_KEY_ID"
	secretAccessKeyVar = "AWS_SECRET_ACCESS_KEY"
)

// GitLab stores the key as two project CI/CD variables. Locator:
// <group>/<project>.
type GitLab struct {
	baseURL   string
	token     string
	protected bool
	client    *Client
}

type gitlabProject struct {
	ID int `json:"id"`
}

type gitlabVariable struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Protected bool   `json:"protected"`
}

// NewGitLab creates the GitLab integration. Settings: url, token and
// optionally protectedKeys.
func NewGitLab(settings plugin.Settings, client *Client) (*GitLab, error) {
	baseURL, err := settings.Required("url")
	if err != nil {
		return nil, err
	}
	token, err := settings.Required("token")
	if err != nil {
		return nil, err
	}

	return &GitLab{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		token:     token,
		protected: settings.Bool("protectedKeys"),
		client:    client,
	}, nil
}

// CheckForActiveKey fails unless the project's AWS_ACCESS_KEY_ID is keyID.
func (g *GitLab) CheckForActiveKey(ctx context.Context, locator, keyID string) error {
	projectID, err := g.project(ctx, locator)
	if err != nil {
		return err
	}
	vars, err := g.variables(ctx, projectID)
	if err != nil {
		return err
	}

	if vars[accessKeyIDVar] != keyID {
		return ferrors.VerificationMismatchError{Service: "gitlab", Locator: locator}
	}
	return nil
}

// CreateOrUpdateKey writes both variables, updating them when the project
// already has AWS_ACCESS_KEY_ID and creating them otherwise.
func (g *GitLab) CreateOrUpdateKey(ctx context.Context, locator string, key plugin.Key) error {
	secret, err := key.Secret()
	if err != nil {
		return err
	}

	projectID, err := g.project(ctx, locator)
	if err != nil {
		return err
	}
	vars, err := g.variables(ctx, projectID)
	if err != nil {
		return err
	}

	_, exists := vars[accessKeyIDVar]
	for _, v := range []gitlabVariable{
		{Key: accessKeyIDVar, Value: key.ID, Protected: g.protected},
		{Key: secretAccessKeyVar, Value: secret, Protected: g.protected},
	} {
		if exists {
			err = g.updateVariable(ctx, projectID, v)
		} else {
			err = g.createVariable(ctx, projectID, v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *GitLab) project(ctx context.Context, locator string) (int, error) {
	group, name, err := rotation.SplitLocator(locator)
	if err != nil {
		return 0, err
	}

	var p gitlabProject
	_, err = g.client.getJSON(ctx, g.request("get project", "/api/v4/projects/"+url.PathEscape(group+"/"+name)), &p)
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}

func (g *GitLab) variables(ctx context.Context, projectID int) (map[string]string, error) {
	var list []gitlabVariable
	_, err := g.client.getJSON(ctx, g.request("list variables", fmt.Sprintf("/api/v4/projects/%d/variables", projectID)), &list)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]string, len(list))
	for _, v := range list {
		if v.Key == accessKeyIDVar || v.Key == secretAccessKeyVar {
			vars[v.Key] = v.Value
		}
	}
	return vars, nil
}

func (g *GitLab) createVariable(ctx context.Context, projectID int, v gitlabVariable) error {
	req := g.request("create variable", fmt.Sprintf("/api/v4/projects/%d/variables", projectID))
	req.method = http.MethodPost
	_, err := g.client.sendJSON(ctx, req, v)
	return err
}

func (g *GitLab) updateVariable(ctx context.Context, projectID int, v gitlabVariable) error {
	req := g.request("update variable", fmt.Sprintf("/api/v4/projects/%d/variables/%s", projectID, v.Key))
	req.method = http.MethodPut
	_, err := g.client.sendJSON(ctx, req, v)
	return err
}

func (g *GitLab) request(op, path string) request {
	return request{
		plugin: "gitlab",
		op:     op,
		url:    g.baseURL + path,
		header: http.Header{"Private-Token": []string{g.token}},
	}
}
