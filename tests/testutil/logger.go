package testutil

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/systmms/felix/internal/logging"
)

// TestLogger captures log output for validation in tests.
//
// It wraps a real logging.Logger writing to an in-memory buffer, so tests
// see exactly the lines the CLI would print and can verify that secrets
// never reach them.
//
// Example usage:
//
//	logger := testutil.NewTestLogger(t, true)
//	engine := rotation.NewEngine(store, resolver, settings, logger.Logger)
//	...
//	logger.AssertContains(t, "Rotated key")
//	logger.AssertNoSecrets(t, "secret-0001")
type TestLogger struct {
	*logging.Logger
	buf *lockedBuffer
}

// NewTestLogger creates a TestLogger. Debug lines are captured when debug
// is true.
func NewTestLogger(t *testing.T, debug bool) *TestLogger {
	t.Helper()

	buf := &lockedBuffer{}
	return &TestLogger{
		Logger: logging.NewWithWriter(buf, debug),
		buf:    buf,
	}
}

// Output returns everything logged so far.
func (l *TestLogger) Output() string {
	return l.buf.String()
}

// Lines returns the logged lines without the trailing empty line.
func (l *TestLogger) Lines() []string {
	out := strings.TrimRight(l.Output(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

// AssertContains asserts that the output contains substr.
func (l *TestLogger) AssertContains(t *testing.T, substr string) {
	t.Helper()
	assert.Contains(t, l.Output(), substr, "log output should contain %q", substr)
}

// AssertNoSecrets asserts that none of secrets appear in the output.
func (l *TestLogger) AssertNoSecrets(t *testing.T, secrets ...string) {
	t.Helper()
	AssertNoSecretLeak(t, l.Output(), secrets...)
}

// AssertLineCount asserts how many lines contain substr.
func (l *TestLogger) AssertLineCount(t *testing.T, substr string, want int) {
	t.Helper()

	got := 0
	for _, line := range l.Lines() {
		if strings.Contains(line, substr) {
			got++
		}
	}
	assert.Equal(t, want, got, "expected %d log lines containing %q, output:\n%s", want, substr, l.Output())
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
