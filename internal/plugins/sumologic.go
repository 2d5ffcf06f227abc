package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/pkg/plugin"
	"github.com/systmms/felix/pkg/rotation"
)

const (
	sumoPageSize         = 300
	sumoMaxCollectorPage = 3300
	sumoMaxSourcePage    = 200
)

// SumoLogic stores the key in the AWS authentication of a polling source.
// Locator: <collector name>/<source name>. The resolved collector and
// source configuration are memoized for the lifetime of the instance.
type SumoLogic struct {
	baseURL   string
	keyID     string
	secretKey string
	client    *Client

	collector *sumoCollector
	source    *sumoSourceConfig
}

type sumoCollector struct {
	ID            json.Number `json:"id"`
	Name          string      `json:"name"`
	CollectorType string      `json:"collectorType"`
}

type sumoSource struct {
	ID          json.Number `json:"id"`
	Name        string      `json:"name"`
	SourceType  string      `json:"sourceType"`
	ContentType string      `json:"contentType"`
}

type sumoSourceConfig struct {
	collectorID string
	sourceID    string
	etag        string
	config      map[string]interface{}
}

// NewSumoLogic creates the SumoLogic integration. Settings: url, keyId and
// secretKey.
func NewSumoLogic(settings plugin.Settings, client *Client) (*SumoLogic, error) {
	baseURL, err := settings.Required("url")
	if err != nil {
		return nil, err
	}
	keyID, err := settings.Required("keyId")
	if err != nil {
		return nil, err
	}
	secretKey, err := settings.Required("secretKey")
	if err != nil {
		return nil, err
	}

	return &SumoLogic{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		keyID:     keyID,
		secretKey: secretKey,
		client:    client,
	}, nil
}

// CheckForActiveKey compares the source's awsId with keyID.
func (s *SumoLogic) CheckForActiveKey(ctx context.Context, locator, keyID string) error {
	src, err := s.findSourceConfig(ctx, locator)
	if err != nil {
		return err
	}

	auth, err := sourceAuthentication(src.config)
	if err != nil {
		return err
	}
	if awsID, _ := auth["awsId"].(string); awsID != keyID {
		return ferrors.VerificationMismatchError{Service: "sumologic", Locator: locator}
	}
	return nil
}

// CreateOrUpdateKey replaces awsId and awsKey and writes the source back
// guarded by its ETag.
func (s *SumoLogic) CreateOrUpdateKey(ctx context.Context, locator string, key plugin.Key) error {
	secret, err := key.Secret()
	if err != nil {
		return err
	}

	src, err := s.findSourceConfig(ctx, locator)
	if err != nil {
		return err
	}

	auth, err := sourceAuthentication(src.config)
	if err != nil {
		return err
	}
	auth["awsId"] = key.ID
	auth["awsKey"] = secret

	req := s.request("update source", fmt.Sprintf("/collectors/%s/sources/%s", src.collectorID, src.sourceID))
	req.method = http.MethodPut
	req.header.Set("If-Match", strconv.Quote(src.etag))
	_, err = s.client.sendJSON(ctx, req, src.config)
	return err
}

func (s *SumoLogic) findSourceConfig(ctx context.Context, locator string) (*sumoSourceConfig, error) {
	if s.source != nil {
		return s.source, nil
	}

	collectorName, sourceName, err := rotation.SplitLocator(locator)
	if err != nil {
		return nil, err
	}

	collector, err := s.findCollector(ctx, collectorName)
	if err != nil {
		return nil, err
	}
	source, err := s.findSource(ctx, collector.ID.String(), sourceName)
	if err != nil {
		return nil, err
	}

	req := s.request("get source", fmt.Sprintf("/collectors/%s/sources/%s", collector.ID, source.ID))
	resp, err := s.client.getJSON(ctx, req, nil)
	if err != nil {
		return nil, err
	}

	var config map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	dec.UseNumber()
	if err := dec.Decode(&config); err != nil {
		return nil, ferrors.PluginError{Plugin: "sumologic", Op: "get source", Err: fmt.Errorf("failed to decode source: %w", err)}
	}

	s.source = &sumoSourceConfig{
		collectorID: collector.ID.String(),
		sourceID:    source.ID.String(),
		etag:        unquoteETag(resp.Header.Get("ETag")),
		config:      config,
	}
	return s.source, nil
}

func (s *SumoLogic) findCollector(ctx context.Context, name string) (*sumoCollector, error) {
	if s.collector != nil {
		return s.collector, nil
	}

	for offset := 0; ; offset += sumoPageSize {
		var page struct {
			Collectors []sumoCollector `json:"collectors"`
		}
		req := s.request("list collectors", fmt.Sprintf("/collectors?limit=%d&offset=%d", sumoPageSize, offset))
		if _, err := s.client.getJSON(ctx, req, &page); err != nil {
			return nil, err
		}
		if len(page.Collectors) == 0 {
			return nil, ferrors.PluginError{Plugin: "sumologic", Op: "find collector", Message: fmt.Sprintf("Couldn't find collector %s!", name)}
		}

		for i := range page.Collectors {
			c := page.Collectors[i]
			if c.Name != name {
				continue
			}
			if c.CollectorType != "Hosted" {
				return nil, ferrors.PluginError{Plugin: "sumologic", Op: "find collector", Message: fmt.Sprintf("Collector %s doesn't seem to be a Hosted collector!", name)}
			}
			s.collector = &c
			return s.collector, nil
		}

		if offset > sumoMaxCollectorPage {
			return nil, ferrors.PluginError{Plugin: "sumologic", Op: "find collector", Message: fmt.Sprintf("Couldn't find collector %s!", name)}
		}
	}
}

func (s *SumoLogic) findSource(ctx context.Context, collectorID, name string) (*sumoSource, error) {
	for offset := 0; ; offset += sumoPageSize {
		var page struct {
			Sources []sumoSource `json:"sources"`
		}
		req := s.request("list sources", fmt.Sprintf("/collectors/%s/sources?limit=%d&offset=%d", collectorID, sumoPageSize, offset))
		if _, err := s.client.getJSON(ctx, req, &page); err != nil {
			return nil, err
		}
		if len(page.Sources) == 0 {
			return nil, ferrors.PluginError{Plugin: "sumologic", Op: "find source", Message: fmt.Sprintf("Couldn't find source %s!", name)}
		}

		for i := range page.Sources {
			src := page.Sources[i]
			if src.Name != name {
				continue
			}
			if src.SourceType != "Polling" || !strings.HasPrefix(src.ContentType, "Aws") {
				return nil, ferrors.PluginError{Plugin: "sumologic", Op: "find source", Message: fmt.Sprintf("Source %s doesn't seem to require IAM keys.", name)}
			}
			return &src, nil
		}

		if offset > sumoMaxSourcePage {
			return nil, ferrors.PluginError{Plugin: "sumologic", Op: "find source", Message: fmt.Sprintf("Couldn't find source %s", name)}
		}
	}
}

func (s *SumoLogic) request(op, path string) request {
	req := request{
		plugin: "sumologic",
		op:     op,
		url:    s.baseURL + path,
		header: http.Header{},
	}
	req.header.Set("Authorization", basicAuth(s.keyID, s.secretKey))
	return req
}

// sourceAuthentication returns source.thirdPartyRef.resources[0].authentication.
func sourceAuthentication(config map[string]interface{}) (map[string]interface{}, error) {
	notFound := ferrors.PluginError{Plugin: "sumologic", Op: "check", Message: "Could not find AWS keys in source"}

	source, ok := config["source"].(map[string]interface{})
	if !ok {
		return nil, notFound
	}
	ref, ok := source["thirdPartyRef"].(map[string]interface{})
	if !ok {
		return nil, notFound
	}
	resources, ok := ref["resources"].([]interface{})
	if !ok || len(resources) == 0 {
		return nil, notFound
	}
	resource, ok := resources[0].(map[string]interface{})
	if !ok {
		return nil, notFound
	}
	auth, ok := resource["authentication"].(map[string]interface{})
	if !ok {
		return nil, notFound
	}
	return auth, nil
}

// unquoteETag strips the quotes SumoLogic wraps around the ETag value.
func unquoteETag(etag string) string {
	if v, err := strconv.Unquote(etag); err == nil {
		return v
	}
	return strings.Trim(etag, `"`)
}
