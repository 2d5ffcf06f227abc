package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ferrors "github.com/systmms/felix/internal/errors"
)

// roleSessionName tags sessions created through assume_role.
const roleSessionName = "felix-rotation"

// LoadAWSConfig builds the SDK configuration from the aws section. When
// assume_role is set, the loaded credentials are used to assume it.
func (d *Definition) LoadAWSConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if d.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(d.AWS.Region))
	}
	if d.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(d.AWS.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, ferrors.NewProviderError("aws", "LoadDefaultConfig", fmt.Errorf("failed to load AWS credentials: %w", err))
	}

	if d.AWS.AssumeRole != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), d.AWS.AssumeRole, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = roleSessionName
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return cfg, nil
}
