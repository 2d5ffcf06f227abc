// Package iam implements the rotation key store on top of AWS IAM users and
// their access keys.
package iam

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/hashicorp/go-multierror"
	ferrors "github.com/systmms/felix/internal/errors"
	"github.com/systmms/felix/internal/logging"
	"github.com/systmms/felix/pkg/plugin"
	"github.com/systmms/felix/pkg/rotation"
)

const providerName = "iam"

// IAMAPI defines the IAM operations used by the store.
// This allows for mocking in tests
type IAMAPI interface {
	ListUsers(ctx context.Context, params *iam.ListUsersInput, optFns ...func(*iam.Options)) (*iam.ListUsersOutput, error)
	ListAccessKeys(ctx context.Context, params *iam.ListAccessKeysInput, optFns ...func(*iam.Options)) (*iam.ListAccessKeysOutput, error)
	CreateAccessKey(ctx context.Context, params *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error)
	UpdateAccessKey(ctx context.Context, params *iam.UpdateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.UpdateAccessKeyOutput, error)
	DeleteAccessKey(ctx context.Context, params *iam.DeleteAccessKeyInput, optFns ...func(*iam.Options)) (*iam.DeleteAccessKeyOutput, error)
}

// Store is a rotation.KeyStore backed by IAM.
type Store struct {
	client IAMAPI
	logger *logging.Logger
}

var _ rotation.KeyStore = (*Store)(nil)

// Option is a functional option for configuring the store
type Option func(*Store)

// WithIAMClient sets a custom IAM client (for testing)
func WithIAMClient(client IAMAPI) Option {
	return func(s *Store) {
		s.client = client
	}
}

// WithLogger sets the store's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store using cfg unless a client is injected.
func NewStore(cfg aws.Config, opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = iam.NewFromConfig(cfg)
	}
	if s.logger == nil {
		s.logger = logging.New(false, false)
	}
	return s
}

// ListIdentities returns every IAM user under pathPrefix, following pagination.
func (s *Store) ListIdentities(ctx context.Context, pathPrefix string) ([]rotation.Identity, error) {
	if pathPrefix == "" {
		pathPrefix = "/"
	}

	identities := []rotation.Identity{}
	paginator := iam.NewListUsersPaginator(s.client, &iam.ListUsersInput{
		PathPrefix: aws.String(pathPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, ferrors.NewProviderError(providerName, "ListUsers", err)
		}
		for _, u := range page.Users {
			identities = append(identities, toIdentity(u))
		}
	}

	s.logger.Debug("Found %d users under %s", len(identities), pathPrefix)
	return identities, nil
}

// ListKeys returns the user's access keys, oldest first.
func (s *Store) ListKeys(ctx context.Context, identity rotation.Identity) ([]rotation.AccessKey, error) {
	if identity.Name == "" {
		return nil, ferrors.ValidationError{Op: "ListKeys", Message: "Please specify a user to get the keys for."}
	}

	keys := []rotation.AccessKey{}
	paginator := iam.NewListAccessKeysPaginator(s.client, &iam.ListAccessKeysInput{
		UserName: aws.String(identity.Name),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, ferrors.NewProviderError(providerName, "ListAccessKeys", err)
		}
		for _, k := range page.AccessKeyMetadata {
			keys = append(keys, rotation.AccessKey{
				ID:        aws.ToString(k.AccessKeyId),
				Status:    rotation.KeyStatus(k.Status),
				CreatedAt: aws.ToTime(k.CreateDate),
			})
		}
	}

	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i].CreatedAt.Before(keys[j].CreatedAt)
	})
	return keys, nil
}

// CreateKey creates an Active access key. The secret is moved into an
// enclave before the SDK response is dropped.
func (s *Store) CreateKey(ctx context.Context, identity rotation.Identity) (plugin.Key, error) {
	if identity.Name == "" {
		return plugin.Key{}, ferrors.ValidationError{Op: "CreateKey", Message: "Please specify a user to create the key for."}
	}

	out, err := s.client.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{
		UserName: aws.String(identity.Name),
	})
	if err != nil {
		return plugin.Key{}, ferrors.NewProviderError(providerName, "CreateAccessKey", err)
	}
	if out.AccessKey == nil {
		return plugin.Key{}, ferrors.NewProviderError(providerName, "CreateAccessKey",
			fmt.Errorf("no access key returned for %s", identity.Name))
	}

	key := plugin.NewKey(aws.ToString(out.AccessKey.AccessKeyId), aws.ToString(out.AccessKey.SecretAccessKey))
	out.AccessKey.SecretAccessKey = nil
	return key, nil
}

// DeactivateKey sets the key's status to Inactive.
func (s *Store) DeactivateKey(ctx context.Context, identity rotation.Identity, key rotation.AccessKey) error {
	if identity.Name == "" || key.ID == "" {
		return ferrors.ValidationError{Op: "DeactivateKey", Message: "Username and key must both be specified."}
	}

	_, err := s.client.UpdateAccessKey(ctx, &iam.UpdateAccessKeyInput{
		AccessKeyId: aws.String(key.ID),
		UserName:    aws.String(identity.Name),
		Status:      types.StatusTypeInactive,
	})
	return ferrors.NewProviderError(providerName, "UpdateAccessKey", err)
}

// DeleteKey deletes an access key.
func (s *Store) DeleteKey(ctx context.Context, identity rotation.Identity, keyID string) error {
	if identity.Name == "" || keyID == "" {
		return ferrors.ValidationError{Op: "DeleteKey", Message: "Username and key must both be specified."}
	}

	_, err := s.client.DeleteAccessKey(ctx, &iam.DeleteAccessKeyInput{
		AccessKeyId: aws.String(keyID),
		UserName:    aws.String(identity.Name),
	})
	return ferrors.NewProviderError(providerName, "DeleteAccessKey", err)
}

// PurgeInactiveKeys deletes every Inactive key of the user concurrently.
// All deletions are attempted; failures are combined.
func (s *Store) PurgeInactiveKeys(ctx context.Context, identity rotation.Identity) error {
	keys, err := s.ListKeys(ctx, identity)
	if err != nil {
		return err
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)
	for _, k := range keys {
		if k.Status != rotation.KeyStatusInactive {
			continue
		}
		wg.Add(1)
		go func(keyID string) {
			defer wg.Done()
			if err := s.DeleteKey(ctx, identity, keyID); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
				return
			}
			s.logger.Debug("Deleted inactive key %s of %s", keyID, identity.Name)
		}(k.ID)
	}
	wg.Wait()

	return result.ErrorOrNil()
}

func toIdentity(u types.User) rotation.Identity {
	return rotation.Identity{
		Name:      aws.ToString(u.UserName),
		ID:        aws.ToString(u.UserId),
		Path:      aws.ToString(u.Path),
		ARN:       aws.ToString(u.Arn),
		CreatedAt: aws.ToTime(u.CreateDate),
	}
}
