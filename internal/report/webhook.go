package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/systmms/felix/pkg/rotation"
)

// WebhookConfig holds configuration for webhook notifications.
type WebhookConfig struct {
	// Name is a human-readable name for this webhook.
	Name string `yaml:"name"`

	// URL is the webhook endpoint URL.
	URL string `yaml:"url"`

	// Method is the HTTP method to use (default: POST).
	Method string `yaml:"method,omitempty"`

	// Headers are additional HTTP headers to include.
	Headers map[string]string `yaml:"headers,omitempty"`

	// OnlyOnErrors skips runs where every rotation succeeded.
	OnlyOnErrors bool `yaml:"only_on_errors,omitempty"`

	// PayloadTemplate is a Go template for the request body, executed with
	// the run summary. If empty, the summary is sent as JSON.
	PayloadTemplate string `yaml:"payload_template,omitempty"`

	// Timeout for the HTTP request.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	Retry *RetryConfig `yaml:"-"`
}

// WebhookSink sends the run summary to an HTTP endpoint.
type WebhookSink struct {
	config   WebhookConfig
	client   *http.Client
	template *template.Template
}

// NewWebhookSink creates a new webhook sink.
func NewWebhookSink(config WebhookConfig) (*WebhookSink, error) {
	if config.Method == "" {
		config.Method = http.MethodPost
	}
	if config.Timeout == 0 {
		config.Timeout = defaultHTTPTimeout
	}

	s := &WebhookSink{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}

	if config.PayloadTemplate != "" {
		tmpl, err := template.New("payload").Parse(config.PayloadTemplate)
		if err != nil {
			return nil, fmt.Errorf("invalid payload template for webhook %s: %w", config.Name, err)
		}
		s.template = tmpl
	}
	return s, nil
}

// Name returns the sink name.
func (s *WebhookSink) Name() string {
	if s.config.Name != "" {
		return "webhook:" + s.config.Name
	}
	return "webhook"
}

// Validate checks if the sink configuration is valid.
func (s *WebhookSink) Validate() error {
	if err := validateURL(s.config.URL); err != nil {
		return err
	}

	switch strings.ToUpper(s.config.Method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return nil
	default:
		return fmt.Errorf("invalid method: %s (must be POST, PUT, or PATCH)", s.config.Method)
	}
}

// Publish sends the summary.
func (s *WebhookSink) Publish(ctx context.Context, summary *rotation.Summary) error {
	if s.config.OnlyOnErrors && summary.Status == rotation.AggregateSuccess {
		return nil
	}

	payload, err := s.buildPayload(summary)
	if err != nil {
		return fmt.Errorf("failed to build payload: %w", err)
	}

	rc := s.config.Retry.withDefaults()
	if err := post(ctx, s.client, strings.ToUpper(s.config.Method), s.config.URL, s.config.Headers, payload, rc); err != nil {
		return fmt.Errorf("%s failed after %d attempts: %w", s.Name(), rc.MaxAttempts, err)
	}
	return nil
}

func (s *WebhookSink) buildPayload(summary *rotation.Summary) ([]byte, error) {
	if s.template == nil {
		return json.Marshal(summary)
	}

	var buf bytes.Buffer
	if err := s.template.Execute(&buf, summary); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
