package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a destroyed buffer is opened.
var ErrDestroyed = errors.New("secure buffer has been destroyed")

// SecureBuffer provides memory-safe storage for sensitive data.
// It wraps memguard.Enclave to encrypt secrets at rest in memory
// and protect them from swapping via mlock.
type SecureBuffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	empty     bool
	destroyed bool
}

// NewSecureBuffer creates a protected buffer from secret bytes.
// memguard wipes data once it has been sealed, so callers must not reuse it.
func NewSecureBuffer(data []byte) *SecureBuffer {
	if len(data) == 0 {
		// memguard refuses to seal an empty enclave
		return &SecureBuffer{empty: true}
	}
	return &SecureBuffer{enclave: memguard.NewEnclave(data)}
}

// NewSecureString seals a copy of s.
func NewSecureString(s string) *SecureBuffer {
	return NewSecureBuffer([]byte(s))
}

// Open decrypts the enclave into a locked buffer. The caller must Destroy it.
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return nil, ErrDestroyed
	}
	if s.empty {
		return memguard.NewBuffer(1), nil
	}
	return s.enclave.Open()
}

// Reveal returns the plaintext as a string and wipes the intermediate buffer.
func (s *SecureBuffer) Reveal() (string, error) {
	s.mu.RLock()
	empty := s.empty
	s.mu.RUnlock()

	locked, err := s.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()

	if empty {
		return "", nil
	}
	return string(locked.Bytes()), nil
}

// Size returns the plaintext length.
func (s *SecureBuffer) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.destroyed || s.empty {
		return 0
	}
	return s.enclave.Size()
}

// Destroy makes the buffer unusable. It is idempotent.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enclave = nil
	s.destroyed = true
}

// Purge wipes all memguard state. Call it once, at process exit.
func Purge() {
	memguard.Purge()
}
