package websocket

// maskKey is the 4-byte key applied to client-to-server frame payloads, as
// defined in https://datatracker.ietf.org/doc/html/rfc6455#section-5.3.
type maskKey [4]byte

// applyMask XORs payload in place against key, rotating the key across the
// payload. It is its own inverse: applying it twice with the same key
// restores the original bytes, which is what lets decode unmask with the
// identical transform encode used.
func applyMask(key maskKey, payload []byte) {
	for i := range payload {
		payload[i] ^= key[i&3]
	}
}

// generateMaskKey draws a fresh masking key from r, which must be a
// cryptographically secure source. Callers inject r (defaulting to
// crypto/rand.Reader) so tests can supply a deterministic stand-in.
func generateMaskKey(r randReader) (maskKey, error) {
	var k maskKey
	if _, err := readFull(r, k[:]); err != nil {
		return k, err
	}
	return k, nil
}
