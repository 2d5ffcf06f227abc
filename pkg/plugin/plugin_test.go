package plugin

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ferrors "github.com/systmms/felix/internal/errors"
)

func TestKey_SecretAndFormatting(t *testing.T) {
	t.Parallel()

	key := NewKey("AKIAEXAMPLE", "wJalrXUtnFEMI/K7MDENG")
	defer key.Destroy()

	secret, err := key.Secret()
	require.NoError(t, err)
	assert.Equal(t, "wJalrXUtnFEMI/K7MDENG", secret)

	for _, format := range []string{"%s", "%v", "%#v", "%+v"} {
		out := fmt.Sprintf(format, key)
		assert.Contains(t, out, "AKIAEXAMPLE", format)
		assert.NotContains(t, out, "wJalr", format)
	}
}

func TestKey_ZeroValueHasNoSecret(t *testing.T) {
	t.Parallel()

	_, err := Key{ID: "AKIA"}.Secret()
	assert.Error(t, err)
}

func TestKey_DestroyedSecret(t *testing.T) {
	t.Parallel()

	key := NewKey("AKIA", "secret")
	key.Destroy()

	_, err := key.Secret()
	assert.Error(t, err)
}

func TestSettings(t *testing.T) {
	t.Parallel()

	s := Settings{
		"url":           "https://gitlab.example.com",
		"protectedKeys": "True",
		"yamlBool":      true,
		"limit":         "300",
		"port":          8080,
		"delay":         "12s",
		"delaySeconds":  3,
		"nil":           nil,
	}

	assert.True(t, s.Has("url"))
	assert.False(t, s.Has("token"))
	assert.Equal(t, "https://gitlab.example.com", s.String("url"))
	assert.Equal(t, "8080", s.String("port"))
	assert.Equal(t, "", s.String("nil"))
	assert.Equal(t, "fallback", s.StringOr("token", "fallback"))

	assert.True(t, s.Bool("protectedKeys"))
	assert.True(t, s.Bool("yamlBool"))
	assert.False(t, s.Bool("url"))
	assert.False(t, s.Bool("missing"))

	assert.Equal(t, 300, s.Int("limit", 0))
	assert.Equal(t, 8080, s.Int("port", 0))
	assert.Equal(t, 7, s.Int("url", 7))

	assert.Equal(t, 12*time.Second, s.Duration("delay", 0))
	assert.Equal(t, 3*time.Second, s.Duration("delaySeconds", 0))
	assert.Equal(t, time.Minute, s.Duration("missing", time.Minute))

	assert.Equal(t, []string{"delay", "delaySeconds", "limit", "nil", "port", "protectedKeys", "url", "yamlBool"}, s.Keys())
}

func TestSettings_Required(t *testing.T) {
	t.Parallel()

	s := Settings{"token": "glpat-123", "empty": ""}

	v, err := s.Required("token")
	require.NoError(t, err)
	assert.Equal(t, "glpat-123", v)

	_, err = s.Required("empty")
	var ce ferrors.ConfigurationError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, "empty", ce.Field)
}

func TestSettings_Clone(t *testing.T) {
	t.Parallel()

	s := Settings{"a": "1"}
	c := s.Clone()
	c["a"] = "2"
	assert.Equal(t, "1", s.String("a"))
}
