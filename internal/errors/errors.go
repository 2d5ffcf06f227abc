package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports missing or unusable configuration. Inside a
// rotation it is raised before any key is touched.
type ConfigurationError struct {
	Field      string
	Message    string
	Suggestion string
}

func (e ConfigurationError) Error() string {
	msg := e.Message
	if e.Field != "" && msg == "" {
		msg = fmt.Sprintf("invalid configuration for '%s'", e.Field)
	}
	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}
	return msg
}

// ValidationError reports a call made without a required argument.
type ValidationError struct {
	Op      string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// MultipleActiveKeysError is returned when an identity has more than one
// Active key before rotation. The identity is skipped without mutation.
type MultipleActiveKeysError struct {
	Identity string
	Count    int
}

func (e MultipleActiveKeysError) Error() string {
	return "User has multiple active keys! Skipping..."
}

// VerificationMismatchError is returned by a plugin when the credential
// recorded downstream is not the identity's active key.
type VerificationMismatchError struct {
	Service string
	Locator string
	// Message overrides the default text when a plugin reports the mismatch
	// in its own words.
	Message string
}

func (e VerificationMismatchError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Key found in service not same as active key!"
}

// ProviderError wraps a failure from the identity/key provider. Its message
// is the provider's message, unchanged.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s provider error during %s", e.Provider, e.Op)
	}
	return e.Err.Error()
}

func (e ProviderError) Unwrap() error {
	return e.Err
}

// Suggestion returns a remediation hint for the wrapped provider error.
func (e ProviderError) Suggestion() string {
	if e.Err == nil {
		return ""
	}
	return getProviderSuggestion(e.Provider, e.Err)
}

// PluginError wraps a failure talking to a downstream service.
type PluginError struct {
	Plugin     string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e PluginError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s failed with status %d", e.Plugin, e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s %s failed", e.Plugin, e.Op)
	}
}

func (e PluginError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err as a ProviderError for the given operation.
func NewProviderError(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	return ProviderError{Provider: provider, Op: op, Err: err}
}

// getProviderSuggestion returns helpful suggestions based on provider and error
func getProviderSuggestion(provider string, err error) string {
	errStr := err.Error()

	switch provider {
	case "iam", "aws":
		if strings.Contains(errStr, "AccessDenied") {
			return "Check IAM permissions for iam:ListUsers, iam:ListAccessKeys, iam:CreateAccessKey, iam:UpdateAccessKey and iam:DeleteAccessKey"
		}
		if strings.Contains(errStr, "LimitExceeded") {
			return "The user already has two access keys. Delete the inactive key and run again"
		}
		if strings.Contains(errStr, "NoSuchEntity") {
			return "The user or key no longer exists. It may have been removed while rotation was running"
		}
		if strings.Contains(errStr, "Throttling") {
			return "AWS rate limit exceeded. Wait a moment and try again"
		}
		if strings.Contains(errStr, "credentials") {
			return "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"
		}
	case "ssm":
		if strings.Contains(errStr, "AccessDenied") {
			return "Check IAM permissions for ssm:GetParametersByPath and kms:Decrypt"
		}
	case "sns":
		if strings.Contains(errStr, "NotFound") {
			return "Verify the SNS topic ARN and region"
		}
	}

	// Generic suggestions
	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and provider configuration"
	}

	return ""
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var pe PluginError
	if errors.As(err, &pe) && pe.StatusCode != 0 {
		return pe.StatusCode == 429 || pe.StatusCode >= 500
	}

	errStr := err.Error()
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"rate limit",
		"throttling",
		"too many requests",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(strings.ToLower(errStr), pattern) {
			return true
		}
	}

	return false
}

// SimplifyError turns errors that reach the CLI into user-facing errors
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already user-friendly
	var ue UserError
	if errors.As(err, &ue) {
		return err
	}
	var ce ConfigurationError
	if errors.As(err, &ce) {
		return err
	}

	var pe ProviderError
	if errors.As(err, &pe) {
		return UserError{
			Message:    fmt.Sprintf("%s provider error during %s", pe.Provider, pe.Op),
			Details:    pe.Error(),
			Suggestion: pe.Suggestion(),
			Err:        err,
		}
	}

	errStr := err.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigurationError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}
