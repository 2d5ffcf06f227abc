// Package secure keeps newly minted key material out of ordinary heap memory.
//
// A freshly created access key's secret lives in a memguard enclave from the
// moment the identity provider returns it until the rotation pass that owns it
// has propagated it downstream:
//
//	buf := secure.NewSecureBuffer([]byte(secretAccessKey))
//	defer buf.Destroy()
//
//	value, err := buf.Reveal()
//	if err != nil {
//	    return err
//	}
//
// The enclave is encrypted at rest (XSalsa20Poly1305). Opening it produces a
// locked, guard-paged buffer that is wiped as soon as the plaintext has been
// copied out. Reveal returns a Go string, so callers should keep its lifetime
// to the single outbound request that needs it.
//
// Call memguard.Purge (via Purge) at process exit to wipe any enclave keys.
package secure
