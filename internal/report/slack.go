package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/systmms/felix/pkg/rotation"
)

// maxSlackFailures caps the failures listed in one message.
const maxSlackFailures = 10

// SlackConfig holds configuration for Slack webhook notifications.
type SlackConfig struct {
	// WebhookURL is the Slack incoming webhook URL.
	WebhookURL string `yaml:"webhook_url"`

	// Channel is the Slack channel to post to (optional, uses webhook default).
	Channel string `yaml:"channel,omitempty"`

	// OnlyOnErrors skips runs where every rotation succeeded.
	OnlyOnErrors bool `yaml:"only_on_errors,omitempty"`

	// MentionOnFailure lists Slack handles to mention when a rotation fails.
	MentionOnFailure []string `yaml:"mention_on_failure,omitempty"`

	Retry *RetryConfig `yaml:"-"`
}

// SlackSink posts a run summary to Slack.
type SlackSink struct {
	config SlackConfig
	client *http.Client
}

// NewSlackSink creates a new Slack sink.
func NewSlackSink(config SlackConfig) *SlackSink {
	return &SlackSink{
		config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the sink name.
func (s *SlackSink) Name() string {
	return "slack"
}

// Validate checks if the sink configuration is valid.
func (s *SlackSink) Validate() error {
	if err := validateURL(s.config.WebhookURL); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}

// Publish posts the summary unless the run succeeded and OnlyOnErrors is set.
func (s *SlackSink) Publish(ctx context.Context, summary *rotation.Summary) error {
	if s.config.OnlyOnErrors && summary.Status == rotation.AggregateSuccess {
		return nil
	}

	body, err := json.Marshal(s.buildMessage(summary))
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	if err := post(ctx, s.client, http.MethodPost, s.config.WebhookURL, nil, body, s.config.Retry.withDefaults()); err != nil {
		return fmt.Errorf("failed to send Slack notification: %w", err)
	}
	return nil
}

// buildMessage creates a Block Kit formatted Slack message.
func (s *SlackSink) buildMessage(summary *rotation.Summary) map[string]interface{} {
	failed := summary.Failed()
	blocks := make([]map[string]interface{}, 0)

	emoji := ":white_check_mark:"
	if len(failed) > 0 {
		emoji = ":x:"
	}
	blocks = append(blocks, map[string]interface{}{
		"type": "header",
		"text": map[string]interface{}{
			"type":  "plain_text",
			"text":  fmt.Sprintf("%s Felix rotated %d keys [%s]", emoji, summary.Count, summary.Status),
			"emoji": true,
		},
	})

	blocks = append(blocks, map[string]interface{}{
		"type": "section",
		"fields": []map[string]interface{}{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Path:*\n%s", summary.PathPrefix),
			},
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Succeeded:*\n%d", summary.Count-len(failed)),
			},
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Failed:*\n%d", len(failed)),
			},
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("*Duration:*\n%s", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond)),
			},
		},
	})

	if len(failed) > 0 {
		var lines []string
		for i, r := range failed {
			if i == maxSlackFailures {
				lines = append(lines, fmt.Sprintf("…and %d more", len(failed)-maxSlackFailures))
				break
			}
			marker := ""
			if r.NeedsAttention() {
				marker = " :rotating_light: needs manual follow-up"
			}
			lines = append(lines, fmt.Sprintf("• `%s` (%s): %s%s", r.Name, r.Service, r.Error, marker))
		}
		blocks = append(blocks, map[string]interface{}{
			"type": "section",
			"text": map[string]interface{}{
				"type": "mrkdwn",
				"text": ":warning: *Failures:*\n" + strings.Join(lines, "\n"),
			},
		})

		if len(s.config.MentionOnFailure) > 0 {
			blocks = append(blocks, map[string]interface{}{
				"type": "section",
				"text": map[string]interface{}{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Attention:* %s", strings.Join(s.config.MentionOnFailure, " ")),
				},
			})
		}
	}

	blocks = append(blocks, map[string]interface{}{
		"type": "context",
		"elements": []map[string]interface{}{
			{
				"type": "mrkdwn",
				"text": fmt.Sprintf("Run %s · <!date^%d^{date_short_pretty} at {time}|%s>",
					summary.RunID, summary.FinishedAt.Unix(), summary.FinishedAt.Format(time.RFC3339)),
			},
		},
	})

	message := map[string]interface{}{
		"blocks": blocks,
	}
	if s.config.Channel != "" {
		message["channel"] = s.config.Channel
	}
	return message
}
