package config

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ferrors "github.com/systmms/felix/internal/errors"
)

const (
	secretsManagerScheme = "secretsmanager://"
	ssmScheme            = "ssm://"
)

// SecretsManagerAPI defines the Secrets Manager operations used for references.
// This allows for mocking in tests
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// RefResolver replaces secretsmanager://<id> and ssm://<name> setting
// values with the referenced secret.
type RefResolver struct {
	secrets SecretsManagerAPI
	params  SSMAPI
}

// NewRefResolver creates a resolver. Either client may be nil; a reference
// to a missing backend is a configuration error.
func NewRefResolver(secrets SecretsManagerAPI, params SSMAPI) *RefResolver {
	return &RefResolver{secrets: secrets, params: params}
}

// IsReference reports whether v names a secret to resolve.
func IsReference(v string) bool {
	return strings.HasPrefix(v, secretsManagerScheme) || strings.HasPrefix(v, ssmScheme)
}

// Resolve returns the secret v refers to, or v itself when it is not a reference.
func (r *RefResolver) Resolve(ctx context.Context, v string) (string, error) {
	switch {
	case strings.HasPrefix(v, secretsManagerScheme):
		id := strings.TrimPrefix(v, secretsManagerScheme)
		if r.secrets == nil {
			return "", ferrors.ConfigurationError{Message: fmt.Sprintf("cannot resolve %s: Secrets Manager is not configured", v)}
		}
		out, err := r.secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
		if err != nil {
			return "", ferrors.NewProviderError("secretsmanager", "GetSecretValue", err)
		}
		if out.SecretString == nil {
			return "", ferrors.ConfigurationError{Message: fmt.Sprintf("secret %s has no string value", id)}
		}
		return *out.SecretString, nil

	case strings.HasPrefix(v, ssmScheme):
		name := strings.TrimPrefix(v, ssmScheme)
		if !strings.HasPrefix(name, "/") {
			name = "/" + name
		}
		if r.params == nil {
			return "", ferrors.ConfigurationError{Message: fmt.Sprintf("cannot resolve %s: Parameter Store is not configured", v)}
		}
		out, err := r.params.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(name), WithDecryption: aws.Bool(true)})
		if err != nil {
			return "", ferrors.NewProviderError("ssm", "GetParameter", err)
		}
		return aws.ToString(out.Parameter.Value), nil
	}
	return v, nil
}

// ResolveDefinition resolves references in plugin settings and notification
// endpoints in place.
func (r *RefResolver) ResolveDefinition(ctx context.Context, d *Definition) error {
	names := make([]string, 0, len(d.Plugins))
	for name := range d.Plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		settings := d.Plugins[name]
		for _, key := range settings.Keys() {
			v, ok := settings[key].(string)
			if !ok || !IsReference(v) {
				continue
			}
			resolved, err := r.Resolve(ctx, v)
			if err != nil {
				return fmt.Errorf("plugins.%s.%s: %w", name, key, err)
			}
			settings[key] = resolved
		}
	}

	if s := d.Notifications.Slack; s != nil {
		url, err := r.Resolve(ctx, s.WebhookURL)
		if err != nil {
			return fmt.Errorf("notifications.slack.webhook_url: %w", err)
		}
		s.WebhookURL = url
	}

	for i := range d.Notifications.Webhooks {
		hook := &d.Notifications.Webhooks[i]
		for k, v := range hook.Headers {
			resolved, err := r.Resolve(ctx, v)
			if err != nil {
				return fmt.Errorf("notifications.webhooks[%d].headers.%s: %w", i, k, err)
			}
			hook.Headers[k] = resolved
		}
	}

	return nil
}
