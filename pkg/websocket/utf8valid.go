package websocket

import "unicode/utf8"

// incrementalUTF8 validates a UTF-8 byte stream across multiple writes,
// so a Text message fragmented mid-code-point still validates correctly:
// a sequence that straddles a fragment boundary is buffered until its
// remaining bytes arrive, rather than being judged (incorrectly) a
// complete sequence at the fragment boundary.
type incrementalUTF8 struct {
	pending []byte // Bytes of a code point started but not yet completed.
}

// write reports whether p, appended to whatever incomplete sequence is
// pending from a previous call, is consistent with valid UTF-8 so far.
func (v *incrementalUTF8) write(p []byte) bool {
	buf := p
	if len(v.pending) > 0 {
		buf = append(append([]byte(nil), v.pending...), p...)
	}

	i := 0
	for i < len(buf) {
		r, size := utf8.DecodeRune(buf[i:])
		if r != utf8.RuneError || size > 1 {
			i += size
			continue
		}

		// r == utf8.RuneError, size <= 1: either a genuinely invalid byte,
		// or a valid lead byte whose continuation bytes haven't arrived yet.
		if utf8.FullRune(buf[i:]) {
			return false // A complete-but-invalid sequence.
		}

		v.pending = append([]byte(nil), buf[i:]...)
		return true
	}

	v.pending = nil
	return true
}

// done reports whether the stream ended on a complete code point.
func (v *incrementalUTF8) done() bool {
	return len(v.pending) == 0
}
