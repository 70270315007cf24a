package websocket

import "github.com/lithammer/shortuuid/v4"

// newConnID generates a short opaque identifier used only for structured
// log correlation across a connection's lifetime (and across the
// reconnects a Client performs); it has no wire presence and carries no
// protocol meaning.
func newConnID() string {
	return shortuuid.New()
}
