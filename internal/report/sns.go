package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/pkg/rotation"
)

// maxSubjectLength is the SNS limit for e-mail subjects.
const maxSubjectLength = 100

const snsBodyTemplate = `Felix attempted to rotate %d keys at %s!

For each successfully-rotated user listed below, new keys have been created
and updated on the configured services. Old keys have been deactivated.

Failed rotations listed below are in an unknown state and may require manual
intervention. If you discover a problem, manually re-enable the key in question.

Deactivated keys will be deleted in the next Felix run.

Verbose report below:

%s`

// SNSAPI defines the SNS operations used by the publisher.
// This allows for mocking in tests
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes the run summary to an SNS topic.
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
}

// SNSOption is a functional option for configuring the publisher
type SNSOption func(*SNSPublisher)

// WithSNSClient sets a custom SNS client (for testing)
func WithSNSClient(client SNSAPI) SNSOption {
	return func(p *SNSPublisher) {
		p.client = client
	}
}

// NewSNSPublisher creates a publisher for topicARN.
func NewSNSPublisher(cfg aws.Config, topicARN string, opts ...SNSOption) *SNSPublisher {
	p := &SNSPublisher{topicARN: topicARN}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = sns.NewFromConfig(cfg)
	}
	return p
}

// Name identifies the sink in logs.
func (p *SNSPublisher) Name() string {
	return "sns"
}

// Publish sends one message per run with a plain-text body for every
// protocol.
func (p *SNSPublisher) Publish(ctx context.Context, summary *rotation.Summary) error {
	subject, message, err := snsMessage(summary)
	if err != nil {
		return err
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:         aws.String(p.topicARN),
		Subject:          aws.String(subject),
		Message:          aws.String(message),
		MessageStructure: aws.String("json"),
	})
	return ferrors.NewProviderError("sns", "Publish", err)
}

func snsMessage(summary *rotation.Summary) (subject, message string, err error) {
	at := summary.FinishedAt
	if at.IsZero() {
		at = time.Now()
	}
	stamp := at.UTC().Format(time.RFC1123)

	reports, err := json.MarshalIndent(summary.Reports, "", "   ")
	if err != nil {
		return "", "", fmt.Errorf("failed to encode reports: %w", err)
	}

	body, err := json.Marshal(map[string]string{
		"default": fmt.Sprintf(snsBodyTemplate, summary.Count, stamp, reports),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to encode message: %w", err)
	}

	subject = fmt.Sprintf("[%s] Felix rotated %d keys at %s!", summary.Status, summary.Count, stamp)
	if len(subject) > maxSubjectLength {
		subject = subject[:maxSubjectLength]
	}
	return subject, string(body), nil
}
