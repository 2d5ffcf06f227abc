package logging

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretRedaction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		format string
	}{
		{name: "percent s", input: "AKIA-secret-material", format: "%s"},
		{name: "percent v", input: "wJalrXUtnFEMI/K7MDENG", format: "%v"},
		{name: "percent #v", input: "password123!@#", format: "%#v"},
		{name: "empty secret", input: "", format: "%s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := fmt.Sprintf(tt.format, Secret(tt.input))
			assert.Equal(t, "[REDACTED]", out)
		})
	}
}

func TestLogger_RedactsSecretArguments(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, true)

	logger.Info("created key %s with secret %s", "AKIAEXAMPLE", Secret("very-secret-value"))
	logger.Debug("propagating %v", Secret("another-secret"))

	out := buf.String()
	assert.Contains(t, out, "AKIAEXAMPLE")
	assert.NotContains(t, out, "very-secret-value")
	assert.NotContains(t, out, "another-secret")
	assert.Equal(t, 2, strings.Count(out, "[REDACTED]"))
}

func TestLogger_DebugGate(t *testing.T) {
	t.Parallel()

	var quiet, verbose bytes.Buffer
	NewWithWriter(&quiet, false).Debug("hidden")
	NewWithWriter(&verbose, true).Debug("shown")

	assert.Empty(t, quiet.String())
	assert.Equal(t, "[DEBUG] shown\n", verbose.String())
}

func TestLogger_Levels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false)
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"✓ info message", "⚠ warn message", "✗ error message"}, lines)
}

func TestLogger_Named(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false).Named("engine").Named("deploy@gitlab")
	logger.Warn("purge failed")

	assert.Equal(t, "⚠ [engine/deploy@gitlab] purge failed\n", buf.String())
}

func TestLogger_ConcurrentWritesDoNotInterleave(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logger.Named(fmt.Sprintf("user-%d", i)).Info("rotated")
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 50)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "✓ [user-"), line)
		assert.True(t, strings.HasSuffix(line, "] rotated"), line)
	}
}

func TestRedact(t *testing.T) {
	t.Parallel()

	got := Redact("token=abcd1234 key=xyz", []string{"abcd1234", "xyz", ""})
	assert.Equal(t, "token=[REDACTED] key=xyz", got)
}
