package secure

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureBuffer_Reveal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
	}{
		{name: "aws secret access key", value: "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY"},
		{name: "empty", value: ""},
		{name: "binary-ish", value: "\x00\xff\x10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			buf := NewSecureString(tt.value)
			defer buf.Destroy()

			got, err := buf.Reveal()
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
			assert.Equal(t, len(tt.value), buf.Size())

			// revealing twice yields the same plaintext
			again, err := buf.Reveal()
			require.NoError(t, err)
			assert.Equal(t, tt.value, again)
		})
	}
}

func TestSecureBuffer_WipesSource(t *testing.T) {
	t.Parallel()

	src := []byte("source-material")
	buf := NewSecureBuffer(src)
	defer buf.Destroy()

	assert.NotEqual(t, "source-material", string(src))

	got, err := buf.Reveal()
	require.NoError(t, err)
	assert.Equal(t, "source-material", got)
}

func TestSecureBuffer_Destroy(t *testing.T) {
	t.Parallel()

	buf := NewSecureString("short-lived")
	buf.Destroy()
	buf.Destroy()

	_, err := buf.Reveal()
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.Equal(t, 0, buf.Size())
}

func TestSecureBuffer_ConcurrentReveal(t *testing.T) {
	t.Parallel()

	buf := NewSecureString("shared-secret")
	defer buf.Destroy()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := buf.Reveal()
			assert.NoError(t, err)
			assert.Equal(t, "shared-secret", got)
		}()
	}
	wg.Wait()
}
