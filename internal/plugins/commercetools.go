package plugins

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/pkg/plugin"
	"github.com/systmms/felix/pkg/rotation"
)

// DefaultPropagationDelay is how long commercetools waits for a new IAM key
// to become usable before the subscription is switched to it.
const DefaultPropagationDelay = 12 * time.Second

// Commercetools stores the key in a subscription's destination. Locator:
// <projectKey>/<subscriptionKey>. The token and the subscription are
// memoized for the lifetime of the instance.
type Commercetools struct {
	authURL      string
	apiHost      string
	clientID     string
	clientSecret string
	delay        time.Duration
	client       *Client

	token        string
	subscription *ctSubscription
}

type ctSubscription struct {
	projectKey      string
	subscriptionKey string
	version         int64
	destination     map[string]interface{}
}

// NewCommercetools creates the commercetools integration. Settings:
// clientId, clientSecret, oauthHost, apiHost and optionally propagationDelay.
func NewCommercetools(settings plugin.Settings, client *Client) (*Commercetools, error) {
	c := &Commercetools{
		client: client,
		delay:  settings.Duration("propagationDelay", DefaultPropagationDelay),
	}
	var oauthHost string
	for key, dst := range map[string]*string{
		"clientId":     &c.clientID,
		"clientSecret": &c.clientSecret,
		"oauthHost":    &oauthHost,
		"apiHost":      &c.apiHost,
	} {
		v, err := settings.Required(key)
		if err != nil {
			return nil, err
		}
		*dst = v
	}

	c.authURL = strings.TrimSuffix(oauthHost, "/") + "/oauth/token"
	c.apiHost = strings.TrimSuffix(c.apiHost, "/")
	return c, nil
}

// CheckForActiveKey compares the destination's accessKey with keyID.
func (c *Commercetools) CheckForActiveKey(ctx context.Context, locator, keyID string) error {
	sub, err := c.getSubscription(ctx, locator)
	if err != nil {
		return err
	}
	if sub.destination == nil {
		return ferrors.PluginError{Plugin: "commercetools", Op: "check", Message: "Could not find AWS keys in subscription"}
	}
	if accessKey, _ := sub.destination["accessKey"].(string); accessKey != keyID {
		return ferrors.VerificationMismatchError{Service: "commercetools", Locator: locator}
	}
	return nil
}

// CreateOrUpdateKey waits for the key to propagate in AWS, then changes the
// subscription destination to use it.
func (c *Commercetools) CreateOrUpdateKey(ctx context.Context, locator string, key plugin.Key) error {
	secret, err := key.Secret()
	if err != nil {
		return err
	}

	sub, err := c.getSubscription(ctx, locator)
	if err != nil {
		return err
	}
	if sub.destination == nil {
		sub.destination = map[string]interface{}{}
	}
	sub.destination["accessKey"] = key.ID
	sub.destination["accessSecret"] = secret

	update := map[string]interface{}{
		"version": sub.version,
		"actions": []map[string]interface{}{
			{
				"action":      "changeDestination",
				"destination": sub.destination,
			},
		},
	}

	if err := sleepContext(ctx, c.delay); err != nil {
		return err
	}

	req := c.request("update subscription", sub.projectKey, sub.subscriptionKey)
	req.method = http.MethodPost
	_, err = c.client.sendJSON(ctx, req, update)
	return err
}

func (c *Commercetools) getSubscription(ctx context.Context, locator string) (*ctSubscription, error) {
	if c.subscription != nil {
		return c.subscription, nil
	}

	projectKey, subscriptionKey, err := rotation.SplitLocator(locator)
	if err != nil {
		return nil, err
	}
	if err := c.authenticate(ctx, projectKey); err != nil {
		return nil, err
	}

	var payload struct {
		Version     int64                  `json:"version"`
		Destination map[string]interface{} `json:"destination"`
	}
	if _, err := c.client.getJSON(ctx, c.request("get subscription", projectKey, subscriptionKey), &payload); err != nil {
		return nil, err
	}

	c.subscription = &ctSubscription{
		projectKey:      projectKey,
		subscriptionKey: subscriptionKey,
		version:         payload.Version,
		destination:     payload.Destination,
	}
	return c.subscription, nil
}

func (c *Commercetools) authenticate(ctx context.Context, projectKey string) error {
	if c.token != "" {
		return nil
	}

	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("scope", "manage_subscriptions:"+projectKey)

	req := request{
		plugin: "commercetools",
		op:     "authenticate",
		method: http.MethodPost,
		url:    c.authURL + "?" + q.Encode(),
		header: http.Header{"Authorization": []string{basicAuth(c.clientID, c.clientSecret)}},
	}
	resp, err := c.client.do(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return statusError(req, resp)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := resp.Decode(&token); err != nil || token.AccessToken == "" {
		return ferrors.PluginError{Plugin: "commercetools", Op: "authenticate", Message: "no access token in OAuth response"}
	}
	c.token = token.AccessToken
	return nil
}

func (c *Commercetools) request(op, projectKey, subscriptionKey string) request {
	return request{
		plugin: "commercetools",
		op:     op,
		url:    c.apiHost + "/" + url.PathEscape(projectKey) + "/subscriptions/key=" + url.PathEscape(subscriptionKey),
		header: http.Header{"Authorization": []string{bearer(c.token)}},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
