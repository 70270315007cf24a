package websocket

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/lattice-ws/websocket/internal/wslog"
)

// clients caches one Client per ID, so repeated NewOrCachedClient calls for
// the same logical endpoint reuse a single long-running connection instead
// of opening a new one each time.
var clients sync.Map

// dialGroup deduplicates concurrent NewOrCachedClient calls for the same
// ID: without it, two goroutines could both dial before either managed to
// store its Client, leaking the loser's connection.
var dialGroup singleflight.Group

// urlFunc resolves the URL to dial, evaluated fresh on every (re)connect
// so a caller can rotate credentials embedded in the URL between retries.
type urlFunc func(ctx context.Context) (string, error)

// Client is a long-running wrapper around connections to the same
// WebSocket endpoint: it normally manages a single Conn, but switches
// seamlessly to a pre-opened secondary one across a planned reconnect
// (RefreshConnectionIn) or an unplanned drop, to minimize downtime.
type Client struct {
	logger zerolog.Logger
	url    urlFunc
	opts   []DialOption

	mu      sync.Mutex
	conns   [2]*clientConn
	inMsgs  <-chan Message
	outMsgs chan Message

	refresh *time.Timer
}

// NewOrCachedClient returns the cached Client for id, dialing and caching
// a new one if none exists yet. Concurrent calls with the same id share a
// single dial attempt.
func NewOrCachedClient(ctx context.Context, url urlFunc, id string, opts ...DialOption) (*Client, error) {
	key := hash(id)
	if c, ok := clients.Load(key); ok {
		return c.(*Client), nil //nolint:errcheck // Type is always *Client; only this package stores into clients.
	}

	v, err, _ := dialGroup.Do(key, func() (any, error) {
		if c, ok := clients.Load(key); ok {
			return c.(*Client), nil //nolint:errcheck
		}

		c, err := newClient(ctx, url, opts...)
		if err != nil {
			return nil, err
		}

		clients.Store(key, c)
		go c.relayMessages(ctx)
		return c, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Client), nil //nolint:errcheck
}

// hash generates a stable-but-irreversible digest of a Client ID, so
// arbitrary caller-supplied identifiers (which may embed secrets, e.g. a
// token-bearing URL) never sit in the cache key as plaintext.
func hash(id string) string {
	h := sha256.New()
	h.Write([]byte(id))
	return hex.EncodeToString(h.Sum(nil))
}

func newClient(ctx context.Context, f urlFunc, opts ...DialOption) (*Client, error) {
	conn, err := dialFromFunc(ctx, f, opts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		logger:  wslog.FromContext(ctx),
		url:     f,
		opts:    opts,
		conns:   [2]*clientConn{conn},
		inMsgs:  conn.async.IncomingMessages(),
		outMsgs: make(chan Message),
	}, nil
}

func dialFromFunc(ctx context.Context, f urlFunc, opts ...DialOption) (*clientConn, error) {
	rawURL, err := f(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := Dial(ctx, rawURL, opts...)
	if err != nil {
		return nil, err
	}

	async, err := NewAsyncConn(ctx, conn)
	if err != nil {
		return nil, err
	}

	return &clientConn{Conn: conn, async: async}, nil
}

// clientConn pairs a Conn with the AsyncConn pump Client relies on for its
// channel-based API.
type clientConn struct {
	*Conn
	async *AsyncConn
}

// relayMessages runs as a Client goroutine, forwarding data Messages from
// the active connection to the Client's own subscriber channel, and
// swapping in a replacement connection whenever the active one's incoming
// channel closes.
func (c *Client) relayMessages(ctx context.Context) {
	for {
		msg, ok := <-c.inMsgs
		if ok {
			c.outMsgs <- msg
			continue
		}
		c.replaceConn(ctx)
	}
}

// replaceConn switches to a pre-opened secondary connection if
// RefreshConnectionIn already prepared one, or else dials a fresh one with
// unbounded retries.
func (c *Client) replaceConn(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.inMsgs = c.conns[0].async.IncomingMessages() }()

	if c.conns[1] != nil {
		c.conns[0] = c.conns[1]
		c.conns[1] = nil
		return
	}

	for retry := 0; ; retry++ {
		conn, err := dialFromFunc(ctx, c.url, c.opts...)
		if err == nil {
			c.conns[0] = conn
			return
		}
		c.logger.Error().Err(err).Int("retry", retry).Msg("failed to replace WebSocket connection")
	}
}

// IncomingMessages returns the channel that publishes data Messages as
// they're received from whichever connection is currently active.
func (c *Client) IncomingMessages() <-chan Message {
	return c.outMsgs
}

// RefreshConnectionIn instructs the Client to dial a replacement
// connection and switch to it after d, closing the current one with
// StatusGoingAway once the switch happens. Useful when a disconnection is
// known or coordinated in advance, to avoid the downtime of a reactive
// reconnect.
func (c *Client) RefreshConnectionIn(ctx context.Context, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refresh != nil {
		c.refresh.Stop()
	}

	c.refresh = time.AfterFunc(d, func() {
		conn, err := dialFromFunc(ctx, c.url, c.opts...)
		if err != nil {
			c.logger.Error().Err(err).Msg("failed to refresh WebSocket connection")
			return
		}

		c.mu.Lock()
		c.refresh = nil
		c.conns[1] = conn
		old := c.conns[0]
		c.mu.Unlock()

		old.Close(StatusGoingAway)
	})
}

// SendJSONMessage marshals v to JSON and sends it as a text message over
// the Client's active connection.
func (c *Client) SendJSONMessage(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conns[0]
	c.mu.Unlock()

	return <-conn.async.SendText(b)
}
