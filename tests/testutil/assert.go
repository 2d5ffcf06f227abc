package testutil

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertSecretRedacted asserts that secretValue does not appear in output
// and that output carries the [REDACTED] marker instead.
//
// Example:
//
//	out := fmt.Sprintf("%v", key)
//	testutil.AssertSecretRedacted(t, out, "fake-secret-00000001")
func AssertSecretRedacted(t *testing.T, output, secretValue string) {
	t.Helper()

	assert.NotContains(t, output, secretValue, "secret value leaked into output")
	assert.Contains(t, output, "[REDACTED]", "output should contain the redaction marker")
}

// AssertNoSecretLeak asserts that none of secrets appear in output. Empty
// secrets are ignored.
func AssertNoSecretLeak(t *testing.T, output string, secrets ...string) {
	t.Helper()

	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		assert.NotContains(t, output, secret, "secret %q leaked into output", secret)
	}
}

// AssertErrorContains asserts that err is non-nil and its message contains
// substr.
func AssertErrorContains(t *testing.T, err error, substr string) {
	t.Helper()

	require.Error(t, err)
	assert.Contains(t, err.Error(), substr)
}

// AssertFileContainsAll asserts that the file at path exists and contains
// every substring.
func AssertFileContainsAll(t *testing.T, path string, substrings ...string) {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read %s", path)
	for _, s := range substrings {
		assert.Contains(t, string(data), s, "%s should contain %q", path, s)
	}
}

// AssertLinesContain asserts that expected substrings appear in output on
// lines in the given order.
func AssertLinesContain(t *testing.T, output string, expected ...string) {
	t.Helper()

	lines := strings.Split(output, "\n")
	next := 0
	for _, want := range expected {
		found := false
		for next < len(lines) {
			line := lines[next]
			next++
			if strings.Contains(line, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected a line containing %q (in order), output:\n%s", want, output)
			return
		}
	}
}
