package websocket

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/textproto"
	"time"

	"github.com/rs/zerolog"

	"github.com/lattice-ws/websocket/internal/wslog"
)

// clientConfig accumulates everything a DialOption may configure before
// Dial opens the underlying network connection. It is a separate type
// from Conn since there is no Conn to configure until after the
// handshake completes.
type clientConfig struct {
	header      textproto.MIMEHeader
	origin      string
	protocols   []string
	extensions  []string
	tlsConfig   *tls.Config
	dialer      net.Dialer
	nonceSource randReader
	logger      zerolog.Logger
	connOpts    []ConnOption
}

// DialOption configures a call to Dial.
type DialOption func(*clientConfig) error

// WithHeader adds a single custom header to the handshake request. Use
// WithHeaders to set several at once. The mandatory handshake headers
// (Host, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version)
// are always computed by the handshake itself; entries for them here are
// ignored.
func WithHeader(key, value string) DialOption {
	return func(c *clientConfig) error {
		if c.header == nil {
			c.header = make(textproto.MIMEHeader)
		}
		c.header.Add(key, value)
		return nil
	}
}

// WithHeaders replaces the handshake request's custom headers wholesale.
// As with WithHeader, entries for the mandatory handshake headers are
// ignored.
func WithHeaders(h textproto.MIMEHeader) DialOption {
	return func(c *clientConfig) error {
		c.header = h
		return nil
	}
}

// WithOrigin sets the Origin header sent with the handshake request.
func WithOrigin(origin string) DialOption {
	return func(c *clientConfig) error {
		c.origin = origin
		return nil
	}
}

// WithProtocols offers the given subprotocols during negotiation, most
// preferred first.
func WithProtocols(protocols ...string) DialOption {
	return func(c *clientConfig) error {
		c.protocols = protocols
		return nil
	}
}

// WithExtensions offers the given extension tokens during negotiation.
func WithExtensions(extensions ...string) DialOption {
	return func(c *clientConfig) error {
		c.extensions = extensions
		return nil
	}
}

// WithTLSConfig overrides the *tls.Config used for "wss://" endpoints.
func WithTLSConfig(cfg *tls.Config) DialOption {
	return func(c *clientConfig) error {
		c.tlsConfig = cfg
		return nil
	}
}

// WithDialTimeout bounds the time spent establishing the TCP connection,
// before the handshake itself begins.
func WithDialTimeout(d time.Duration) DialOption {
	return func(c *clientConfig) error {
		c.dialer.Timeout = d
		return nil
	}
}

// WithNonceSource overrides the CSPRNG used to generate the handshake's
// Sec-WebSocket-Key nonce and, later, frame mask keys. Intended for tests;
// production callers should leave this unset.
func WithNonceSource(r randReader) DialOption {
	return func(c *clientConfig) error {
		c.nonceSource = r
		return nil
	}
}

// WithLogger attaches a logger to the dialed connection's lifetime events.
func WithLogger(l zerolog.Logger) DialOption {
	return func(c *clientConfig) error {
		c.logger = l
		return nil
	}
}

// WithConnOptions passes ConnOptions through to the Conn constructed by
// Dial, e.g. WithConnMaxMessageSize.
func WithConnOptions(opts ...ConnOption) DialOption {
	return func(c *clientConfig) error {
		c.connOpts = append(c.connOpts, opts...)
		return nil
	}
}

// Dial establishes a TCP (or TLS, for "wss://") connection to rawURL and
// performs the WebSocket opening handshake over it. The handshake is
// spoken directly over the raw stream via ClientHandshake, with no
// net/http dependency on this path.
func Dial(ctx context.Context, rawURL string, opts ...DialOption) (*Conn, error) {
	ep, err := ParseEndpoint(rawURL)
	if err != nil {
		return nil, err
	}

	cfg := &clientConfig{logger: wslog.FromContext(ctx)}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("websocket: dial option failed: %w", err)
		}
	}

	stream, err := dialStream(ctx, ep, cfg)
	if err != nil {
		return nil, err
	}

	result, err := ClientHandshake(stream, ep, ClientHandshakeConfig{
		Header:      cfg.header,
		Origin:      cfg.origin,
		Protocols:   cfg.protocols,
		Extensions:  cfg.extensions,
		NonceSource: cfg.nonceSource,
	})
	if err != nil {
		_ = stream.Close()
		return nil, err
	}

	connOpts := append([]ConnOption{WithConnLogger(cfg.logger)}, cfg.connOpts...)
	conn := newConn(stream, RoleClient, result, connOpts...)
	if cfg.nonceSource != nil {
		conn.write.codec.randSource = cfg.nonceSource
	}
	conn.logger.Debug().Str("url", rawURL).Str("conn_id", conn.ID()).Msg("dialed WebSocket connection")

	return conn, nil
}

// dialStream opens the raw TCP/TLS connection a handshake will run over.
func dialStream(ctx context.Context, ep Endpoint, cfg *clientConfig) (net.Conn, error) {
	if ep.Scheme == SchemeWSS {
		tlsCfg := cfg.tlsConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12} //nolint:gosec // Overridable via WithTLSConfig.
		}
		tlsDialer := &tls.Dialer{NetDialer: &cfg.dialer, Config: tlsCfg}
		conn, err := tlsDialer.DialContext(ctx, "tcp", ep.Host)
		if err != nil {
			return nil, fmt.Errorf("websocket: failed to establish TLS connection: %w", err)
		}
		return conn, nil
	}

	conn, err := cfg.dialer.DialContext(ctx, "tcp", ep.Host)
	if err != nil {
		return nil, fmt.Errorf("websocket: failed to establish TCP connection: %w", err)
	}
	return conn, nil
}
