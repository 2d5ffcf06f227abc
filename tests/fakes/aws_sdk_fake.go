package fakes

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// FakeIAMClient is an in-memory IAM supporting the user and access key
// operations used by the key store.
type FakeIAMClient struct {
	mu sync.Mutex

	// Users in listing order
	Users []iamtypes.User
	// Keys maps user names to their access keys
	Keys map[string][]iamtypes.AccessKeyMetadata
	// Errors maps "<Operation>" or "<Operation>:<user>" to an error to return
	Errors map[string]error
	// PageSize limits ListUsers and ListAccessKeys pages; zero returns everything
	PageSize int
	// Calls records every operation as "<Operation>:<user>"
	Calls []string

	created int
}

// NewFakeIAMClient creates an empty IAM fake
func NewFakeIAMClient() *FakeIAMClient {
	return &FakeIAMClient{
		Keys:   make(map[string][]iamtypes.AccessKeyMetadata),
		Errors: make(map[string]error),
	}
}

// AddUser adds a user at path
func (f *FakeIAMClient) AddUser(path, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	f.Users = append(f.Users, iamtypes.User{
		UserName:   aws.String(name),
		UserId:     aws.String("AIDA" + strings.ToUpper(name)),
		Path:       aws.String(path),
		Arn:        aws.String(fmt.Sprintf("arn:aws:iam::123456789012:user%s%s", path, name)),
		CreateDate: &now,
	})
}

// AddKey attaches an access key to a user
func (f *FakeIAMClient) AddKey(user, id string, status iamtypes.StatusType, created time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Keys[user] = append(f.Keys[user], iamtypes.AccessKeyMetadata{
		AccessKeyId: aws.String(id),
		UserName:    aws.String(user),
		Status:      status,
		CreateDate:  aws.Time(created),
	})
}

// KeyStatus returns the status of a key, or "" if it does not exist
func (f *FakeIAMClient) KeyStatus(user, id string) iamtypes.StatusType {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.Keys[user] {
		if aws.ToString(k.AccessKeyId) == id {
			return k.Status
		}
	}
	return ""
}

// CallCount returns how many calls start with prefix
func (f *FakeIAMClient) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *FakeIAMClient) record(op, user string) error {
	f.Calls = append(f.Calls, op+":"+user)
	if err, ok := f.Errors[op+":"+user]; ok {
		return err
	}
	return f.Errors[op]
}

func (f *FakeIAMClient) page(total int, marker *string) (start, end int, next *string) {
	if marker != nil {
		start, _ = strconv.Atoi(*marker)
	}
	end = total
	if f.PageSize > 0 && start+f.PageSize < total {
		end = start + f.PageSize
		next = aws.String(strconv.Itoa(end))
	}
	return start, end, next
}

func (f *FakeIAMClient) noSuchUser(user string) error {
	return &iamtypes.NoSuchEntityException{
		Message: aws.String(fmt.Sprintf("The user with name %s cannot be found.", user)),
	}
}

func (f *FakeIAMClient) hasUser(user string) bool {
	for _, u := range f.Users {
		if aws.ToString(u.UserName) == user {
			return true
		}
	}
	return false
}

// ListUsers mocks the ListUsers operation
func (f *FakeIAMClient) ListUsers(ctx context.Context, params *iam.ListUsersInput, optFns ...func(*iam.Options)) (*iam.ListUsersOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(params.PathPrefix)
	if err := f.record("ListUsers", prefix); err != nil {
		return nil, err
	}

	var matched []iamtypes.User
	for _, u := range f.Users {
		if strings.HasPrefix(aws.ToString(u.Path), prefix) {
			matched = append(matched, u)
		}
	}

	start, end, next := f.page(len(matched), params.Marker)
	return &iam.ListUsersOutput{
		Users:       matched[start:end],
		IsTruncated: next != nil,
		Marker:      next,
	}, nil
}

// ListAccessKeys mocks the ListAccessKeys operation
func (f *FakeIAMClient) ListAccessKeys(ctx context.Context, params *iam.ListAccessKeysInput, optFns ...func(*iam.Options)) (*iam.ListAccessKeysOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user := aws.ToString(params.UserName)
	if err := f.record("ListAccessKeys", user); err != nil {
		return nil, err
	}
	if !f.hasUser(user) {
		return nil, f.noSuchUser(user)
	}

	keys := append([]iamtypes.AccessKeyMetadata{}, f.Keys[user]...)
	start, end, next := f.page(len(keys), params.Marker)
	return &iam.ListAccessKeysOutput{
		AccessKeyMetadata: keys[start:end],
		IsTruncated:       next != nil,
		Marker:            next,
	}, nil
}

// CreateAccessKey mocks the CreateAccessKey operation, enforcing the
// two-keys-per-user quota
func (f *FakeIAMClient) CreateAccessKey(ctx context.Context, params *iam.CreateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user := aws.ToString(params.UserName)
	if err := f.record("CreateAccessKey", user); err != nil {
		return nil, err
	}
	if !f.hasUser(user) {
		return nil, f.noSuchUser(user)
	}
	if len(f.Keys[user]) >= 2 {
		return nil, &iamtypes.LimitExceededException{
			Message: aws.String("Cannot exceed quota for AccessKeysPerUser: 2"),
		}
	}

	f.created++
	id := fmt.Sprintf("AKIAFAKE%08d", f.created)
	now := time.Now()
	f.Keys[user] = append(f.Keys[user], iamtypes.AccessKeyMetadata{
		AccessKeyId: aws.String(id),
		UserName:    aws.String(user),
		Status:      iamtypes.StatusTypeActive,
		CreateDate:  &now,
	})

	return &iam.CreateAccessKeyOutput{
		AccessKey: &iamtypes.AccessKey{
			AccessKeyId:     aws.String(id),
			SecretAccessKey: aws.String(fmt.Sprintf("fake-secret-%08d", f.created)),
			Status:          iamtypes.StatusTypeActive,
			UserName:        aws.String(user),
			CreateDate:      &now,
		},
	}, nil
}

// UpdateAccessKey mocks the UpdateAccessKey operation
func (f *FakeIAMClient) UpdateAccessKey(ctx context.Context, params *iam.UpdateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.UpdateAccessKeyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user := aws.ToString(params.UserName)
	if err := f.record("UpdateAccessKey", user); err != nil {
		return nil, err
	}

	for i, k := range f.Keys[user] {
		if aws.ToString(k.AccessKeyId) == aws.ToString(params.AccessKeyId) {
			f.Keys[user][i].Status = params.Status
			return &iam.UpdateAccessKeyOutput{}, nil
		}
	}
	return nil, &iamtypes.NoSuchEntityException{
		Message: aws.String(fmt.Sprintf("The Access Key with id %s cannot be found.", aws.ToString(params.AccessKeyId))),
	}
}

// DeleteAccessKey mocks the DeleteAccessKey operation
func (f *FakeIAMClient) DeleteAccessKey(ctx context.Context, params *iam.DeleteAccessKeyInput, optFns ...func(*iam.Options)) (*iam.DeleteAccessKeyOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user := aws.ToString(params.UserName)
	id := aws.ToString(params.AccessKeyId)
	if err, ok := f.Errors["DeleteAccessKey:"+id]; ok {
		f.Calls = append(f.Calls, "DeleteAccessKey:"+user)
		return nil, err
	}
	if err := f.record("DeleteAccessKey", user); err != nil {
		return nil, err
	}

	keys := f.Keys[user]
	for i, k := range keys {
		if aws.ToString(k.AccessKeyId) == id {
			f.Keys[user] = append(keys[:i:i], keys[i+1:]...)
			return &iam.DeleteAccessKeyOutput{}, nil
		}
	}
	return nil, &iamtypes.NoSuchEntityException{
		Message: aws.String(fmt.Sprintf("The Access Key with id %s cannot be found.", id)),
	}
}

// FakeSNSClient records published messages
type FakeSNSClient struct {
	mu sync.Mutex
	// Published holds every successful Publish input
	Published []*sns.PublishInput
	// Err is returned from Publish when set
	Err error
}

// Publish mocks the Publish operation
func (f *FakeSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.Published = append(f.Published, params)
	return &sns.PublishOutput{MessageId: aws.String(fmt.Sprintf("msg-%d", len(f.Published)))}, nil
}

// FakeSSMClient is an in-memory Parameter Store
type FakeSSMClient struct {
	// Parameters maps parameter names to values
	Parameters map[string]string
	// Secure marks parameters stored as SecureString
	Secure map[string]bool
	// Errors maps parameter names or paths to errors to return
	Errors map[string]error
	// PageSize limits GetParametersByPath pages; zero returns everything
	PageSize int
	// GetParameterFunc allows custom behavior for GetParameter
	GetParameterFunc func(ctx context.Context, params *ssm.GetParameterInput) (*ssm.GetParameterOutput, error)
}

// NewFakeSSMClient creates a new mock SSM client
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{
		Parameters: make(map[string]string),
		Secure:     make(map[string]bool),
		Errors:     make(map[string]error),
	}
}

// AddStringParameter adds a String parameter
func (f *FakeSSMClient) AddStringParameter(name, value string) {
	f.Parameters[name] = value
}

// AddSecureStringParameter adds a SecureString parameter
func (f *FakeSSMClient) AddSecureStringParameter(name, value string) {
	f.Parameters[name] = value
	f.Secure[name] = true
}

func (f *FakeSSMClient) parameter(name string, decrypt bool) ssmtypes.Parameter {
	value := f.Parameters[name]
	typ := ssmtypes.ParameterTypeString
	if f.Secure[name] {
		typ = ssmtypes.ParameterTypeSecureString
		if !decrypt {
			value = "AQICAHh" + strings.Repeat("x", 16)
		}
	}
	return ssmtypes.Parameter{
		Name:    aws.String(name),
		Type:    typ,
		Value:   aws.String(value),
		Version: 1,
		ARN:     aws.String(fmt.Sprintf("arn:aws:ssm:us-east-1:123456789012:parameter%s", name)),
	}
}

// GetParameter mocks the GetParameter operation
func (f *FakeSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if f.GetParameterFunc != nil {
		return f.GetParameterFunc(ctx, params)
	}

	name := aws.ToString(params.Name)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	if _, exists := f.Parameters[name]; !exists {
		return nil, &ssmtypes.ParameterNotFound{
			Message: aws.String(fmt.Sprintf("Parameter %s not found", name)),
		}
	}

	p := f.parameter(name, aws.ToBool(params.WithDecryption))
	return &ssm.GetParameterOutput{Parameter: &p}, nil
}

// GetParametersByPath mocks the GetParametersByPath operation. Parameters
// are returned in name order.
func (f *FakeSSMClient) GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	path := aws.ToString(params.Path)
	if err, exists := f.Errors[path]; exists {
		return nil, err
	}

	prefix := strings.TrimSuffix(path, "/") + "/"
	var names []string
	for name := range f.Parameters {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if !aws.ToBool(params.Recursive) && strings.Contains(strings.TrimPrefix(name, prefix), "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	start := 0
	if params.NextToken != nil {
		start, _ = strconv.Atoi(*params.NextToken)
	}
	end := len(names)
	var next *string
	if f.PageSize > 0 && start+f.PageSize < len(names) {
		end = start + f.PageSize
		next = aws.String(strconv.Itoa(end))
	}

	out := &ssm.GetParametersByPathOutput{NextToken: next}
	for _, name := range names[start:end] {
		out.Parameters = append(out.Parameters, f.parameter(name, aws.ToBool(params.WithDecryption)))
	}
	return out, nil
}

// FakeSecretsManagerClient is an in-memory Secrets Manager
type FakeSecretsManagerClient struct {
	// Secrets maps secret ids to string values
	Secrets map[string]string
	// Errors maps secret ids to errors to return
	Errors map[string]error
}

// NewFakeSecretsManagerClient creates a new mock Secrets Manager client
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets: make(map[string]string),
		Errors:  make(map[string]error),
	}
}

// AddSecretString adds a string secret
func (f *FakeSecretsManagerClient) AddSecretString(name, value string) {
	f.Secrets[name] = value
}

// GetSecretValue mocks the GetSecretValue operation
func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	name := aws.ToString(params.SecretId)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}

	value, exists := f.Secrets[name]
	if !exists {
		return nil, &smtypes.ResourceNotFoundException{
			Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", name)),
		}
	}

	return &secretsmanager.GetSecretValueOutput{
		ARN:           aws.String(fmt.Sprintf("arn:aws:secretsmanager:us-east-1:123456789012:secret:%s", name)),
		Name:          params.SecretId,
		SecretString:  aws.String(value),
		VersionId:     aws.String("v1-abc123"),
		VersionStages: []string{"AWSCURRENT"},
	}, nil
}

// FakeSTSClient answers GetCallerIdentity
type FakeSTSClient struct {
	Account string
	Arn     string
	Err     error
}

// GetCallerIdentity mocks the GetCallerIdentity operation
func (f *FakeSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(f.Account),
		Arn:     aws.String(f.Arn),
		UserId:  aws.String("AIDAFELIX"),
	}, nil
}
