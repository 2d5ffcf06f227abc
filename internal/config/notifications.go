package config

import (
	"fmt"

	"github.com/systmms/felix/internal/report"
)

// NotificationConfig holds configuration for run notifications besides SNS.
type NotificationConfig struct {
	// Slack configuration for Slack webhook notifications.
	Slack *report.SlackConfig `yaml:"slack,omitempty"`

	// Webhooks configuration for custom webhook notifications.
	Webhooks []report.WebhookConfig `yaml:"webhooks,omitempty"`
}

// Sinks builds the configured Slack and webhook sinks, validated.
func (n NotificationConfig) Sinks() ([]report.Sink, error) {
	var sinks []report.Sink

	if n.Slack != nil {
		slack := report.NewSlackSink(*n.Slack)
		if err := slack.Validate(); err != nil {
			return nil, fmt.Errorf("notifications.slack: %w", err)
		}
		sinks = append(sinks, slack)
	}

	for i, wc := range n.Webhooks {
		hook, err := report.NewWebhookSink(wc)
		if err != nil {
			return nil, fmt.Errorf("notifications.webhooks[%d]: %w", i, err)
		}
		if err := hook.Validate(); err != nil {
			return nil, fmt.Errorf("notifications.webhooks[%d] (%s): %w", i, wc.Name, err)
		}
		sinks = append(sinks, hook)
	}

	return sinks, nil
}
