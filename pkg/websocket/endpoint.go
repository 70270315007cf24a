package websocket

import (
	"fmt"
	"net/url"
	"strings"
)

// Scheme is the connection target's URL scheme, parsed exactly once, in
// ParseEndpoint, so scheme checks downstream are typed rather than
// string comparisons.
type Scheme int

const (
	SchemeWS Scheme = iota
	SchemeWSS
)

func (s Scheme) String() string {
	if s == SchemeWSS {
		return "wss"
	}
	return "ws"
}

// defaultPort returns the implied port for a scheme when the endpoint
// doesn't specify one, used to decide whether the Host header must carry
// an explicit port (RFC 6455 §4.1: omit the port when it's the default).
func (s Scheme) defaultPort() string {
	if s == SchemeWSS {
		return "443"
	}
	return "80"
}

// httpScheme is the scheme ParseEndpoint's caller should substitute when
// handing the endpoint to an http.Client-based transport. Nothing in this
// package calls it; neither the stream-native handshake path nor the
// net/http adapter needs it.
func (s Scheme) httpScheme() string {
	if s == SchemeWSS {
		return "https"
	}
	return "http"
}

// Endpoint is the parsed connection target: scheme, host, and resource
// (path-plus-query). It holds the parse result and derives the few
// values the handshake needs, so the handshake engines themselves never
// touch a raw URL.
type Endpoint struct {
	Scheme   Scheme
	Host     string // host[:port]
	Resource string // path + "?" + query, or "/" if empty.
}

// ParseEndpoint parses a "ws://" or "wss://" URL into an Endpoint.
func ParseEndpoint(rawURL string) (Endpoint, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %w", ErrUnknownScheme, err)
	}

	var scheme Scheme
	switch strings.ToLower(u.Scheme) {
	case "ws":
		scheme = SchemeWS
	case "wss":
		scheme = SchemeWSS
	default:
		return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownScheme, u.Scheme)
	}

	if u.Host == "" {
		return Endpoint{}, ErrNoHost
	}

	resource := u.EscapedPath()
	if resource == "" {
		resource = "/"
	}
	if u.RawQuery != "" {
		resource += "?" + u.RawQuery
	}

	return Endpoint{Scheme: scheme, Host: u.Host, Resource: resource}, nil
}

// hostHeader returns the value to send as the Host header, omitting the
// port when it matches the scheme's default.
func (e Endpoint) hostHeader() string {
	host, port, ok := strings.Cut(e.Host, ":")
	if !ok {
		return e.Host
	}
	if port == e.Scheme.defaultPort() {
		return host
	}
	return e.Host
}
