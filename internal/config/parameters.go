package config

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/pkg/plugin"
)

// SSMAPI defines the Parameter Store operations used for settings.
// This allows for mocking in tests
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// LoadParameterSettings reads plugin settings stored as <path>/<plugin>/<setting>.
// SecureString values are decrypted. Parameters at any other depth are ignored.
func LoadParameterSettings(ctx context.Context, client SSMAPI, path string) (map[string]plugin.Settings, error) {
	prefix := strings.TrimSuffix(path, "/") + "/"
	settings := make(map[string]plugin.Settings)

	paginator := ssm.NewGetParametersByPathPaginator(client, &ssm.GetParametersByPathInput{
		Path:           aws.String(prefix),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, ferrors.NewProviderError("ssm", "GetParametersByPath", err)
		}

		for _, p := range page.Parameters {
			rel := strings.TrimPrefix(aws.ToString(p.Name), prefix)
			parts := strings.Split(rel, "/")
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				continue
			}
			if settings[parts[0]] == nil {
				settings[parts[0]] = plugin.Settings{}
			}
			settings[parts[0]][parts[1]] = aws.ToString(p.Value)
		}
	}

	return settings, nil
}

// MergeSettings layers override on top of base, one setting at a time.
// Neither input is modified.
func MergeSettings(base, override map[string]plugin.Settings) map[string]plugin.Settings {
	out := make(map[string]plugin.Settings, len(base)+len(override))
	for name, s := range base {
		out[name] = s.Clone()
	}
	for name, s := range override {
		merged := out[name]
		if merged == nil {
			merged = plugin.Settings{}
		}
		for k, v := range s {
			merged[k] = v
		}
		out[name] = merged
	}
	return out
}
