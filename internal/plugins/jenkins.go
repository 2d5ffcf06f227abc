package plugins

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/pkg/plugin"
)

const jenkinsCredentialsPlugin = "aws-credentials@1.17"

// Jenkins stores the key in one AWS credentials entry, named by the
// credentialId setting. The locator only appears in the description of a
// newly created credential.
type Jenkins struct {
	baseURL      string
	userName     string
	apiKey       string
	credentialID string
	client       *Client
}

type jenkinsCredential struct {
	XMLName     xml.Name `xml:"com.cloudbees.jenkins.plugins.awscredentials.AWSCredentialsImpl"`
	Plugin      string   `xml:"plugin,attr,omitempty"`
	ID          string   `xml:"id"`
	Description string   `xml:"description"`
	AccessKey   string   `xml:"accessKey"`
	SecretKey   string   `xml:"secretKey,omitempty"`
}

// NewJenkins creates the Jenkins integration. Settings: baseUrl, userName,
// APIKey and credentialId. baseUrl without a scheme is reached over https.
func NewJenkins(settings plugin.Settings, client *Client) (*Jenkins, error) {
	j := &Jenkins{client: client}
	for key, dst := range map[string]*string{
		"baseUrl":      &j.baseURL,
		"userName":     &j.userName,
		"APIKey":       &j.apiKey,
		"credentialId": &j.credentialID,
	} {
		v, err := settings.Required(key)
		if err != nil {
			return nil, err
		}
		*dst = v
	}

	if !strings.Contains(j.baseURL, "://") {
		j.baseURL = "https://" + j.baseURL
	}
	j.baseURL = strings.TrimSuffix(j.baseURL, "/")
	return j, nil
}

// CheckForActiveKey fails only when the credential exists with another key.
func (j *Jenkins) CheckForActiveKey(ctx context.Context, locator, keyID string) error {
	cred, err := j.credential(ctx)
	if err != nil {
		return err
	}
	if cred != nil && cred.AccessKey != keyID {
		return ferrors.VerificationMismatchError{Service: "jenkins", Locator: locator}
	}
	return nil
}

// CreateOrUpdateKey rewrites the credential, or creates it when Jenkins
// does not know it yet.
func (j *Jenkins) CreateOrUpdateKey(ctx context.Context, locator string, key plugin.Key) error {
	secret, err := key.Secret()
	if err != nil {
		return err
	}

	existing, err := j.credential(ctx)
	if err != nil {
		return err
	}

	cred := jenkinsCredential{
		Plugin:    jenkinsCredentialsPlugin,
		AccessKey: key.ID,
		SecretKey: secret,
	}
	req := j.request("", "")
	req.method = http.MethodPost

	if existing != nil {
		cred.ID = existing.ID
		cred.Description = existing.Description
		req.op = "update credential"
		req.url = j.credentialURL()
	} else {
		cred.ID = j.credentialID
		cred.Description = fmt.Sprintf("AWS credentials managed through Felix, created by %s", locator)
		req.op = "create credential"
		req.url = j.baseURL + "/createCredentials"
	}

	body, err := xml.Marshal(cred)
	if err != nil {
		return ferrors.PluginError{Plugin: "jenkins", Op: req.op, Err: err}
	}
	req.body = append([]byte(xml.Header), body...)

	resp, err := j.client.do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		verb := "update"
		if existing == nil {
			verb = "create"
		}
		return ferrors.PluginError{
			Plugin:     "jenkins",
			Op:         req.op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Unable to %s key. Error: %d", verb, resp.StatusCode),
		}
	}
	return nil
}

// credential returns nil, nil when Jenkins answers 404.
func (j *Jenkins) credential(ctx context.Context) (*jenkinsCredential, error) {
	req := j.request("get credential", j.credentialURL())
	req.method = http.MethodGet

	resp, err := j.client.do(ctx, req)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var cred jenkinsCredential
		if err := xml.Unmarshal(resp.Body, &cred); err != nil {
			return nil, ferrors.PluginError{Plugin: "jenkins", Op: req.op, Err: fmt.Errorf("failed to parse credential: %w", err)}
		}
		return &cred, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, ferrors.PluginError{
			Plugin:     "jenkins",
			Op:         req.op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Error connecting to Jenkins. Status: %d", resp.StatusCode),
		}
	}
}

func (j *Jenkins) credentialURL() string {
	return j.baseURL + "/credential/" + url.PathEscape(j.credentialID) + "/config.xml"
}

func (j *Jenkins) request(op, u string) request {
	return request{
		plugin: "jenkins",
		op:     op,
		url:    u,
		header: http.Header{
			"Content-Type":  []string{"application/xml"},
			"Authorization": []string{basicAuth(j.userName, j.apiKey)},
		},
	}
}
