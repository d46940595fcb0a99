// Package oocsi implements a publish/subscribe client for the OOCSI
// protocol: newline-delimited text commands from the client, JSON event
// lines from the server, over one persistent connection.
//
// A Client does not connect on construction. Call Connect for the initial
// handshake, then either run the blocking receive loop in a goroutine:
//
//	client, _ := oocsi.New("sensor_##", oocsi.WithHost("oocsi.example.org"))
//	if err := client.Connect(ctx); err != nil { ... }
//	go client.Run(ctx)
//
// or, on cooperative hosts without goroutines to spare, drive the session
// manually by calling Poll from the main loop. Handlers are invoked one at
// a time in wire order on whichever of the two is driving the session.
package oocsi

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/oocsi/oocsi-go/internal/transport"
	"github.com/oocsi/oocsi-go/internal/wire"
)

// defaultHandle is used when no handle is given; every # becomes a random
// digit so several anonymous clients can coexist on one server.
const defaultHandle = "OOCSIClient_####"

// Client is one session with an OOCSI server. All methods are safe for
// concurrent use; the receive loop itself must be driven from a single
// place (Run or Poll, not both).
type Client struct {
	opts      Options
	requested string // handle asked for at registration, after # expansion
	log       zerolog.Logger
	registry  *registry
	rng       *rand.Rand

	mu           sync.Mutex
	state        State
	conn         transport.Conn
	dialing      transport.Conn // handshake in progress, closed by Close
	handle       string         // server-confirmed handle
	attempt      int            // upcoming reconnect attempt, 0 = connect immediately
	nextAttempt  time.Time
	lastActivity time.Time
	refused      bool

	closed    chan struct{}
	closeOnce sync.Once

	callsMu    sync.Mutex
	calls      map[string]chan map[string]any
	responders map[string]Responder
}

// New builds a client for the given handle. It stores configuration only;
// no connection is made until Connect. An empty handle defaults to
// "OOCSIClient_####", and every # in the handle is replaced with a random
// digit before registration.
func New(handle string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Host == "" && o.WebSocketURL == "" {
		return nil, fmt.Errorf("%w: no server endpoint", ErrConnectFailed)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if strings.TrimSpace(handle) == "" {
		handle = defaultHandle
	}
	handle = expandHandle(handle, rng)
	if !wire.ValidChannel(handle) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}

	logger := zerolog.Nop()
	if o.Logger != nil {
		logger = o.Logger.With().Str("component", "oocsi").Str("handle", handle).Logger()
	}

	return &Client{
		opts:       o,
		requested:  handle,
		handle:     handle,
		log:        logger,
		registry:   newRegistry(),
		rng:        rng,
		closed:     make(chan struct{}),
		calls:      make(map[string]chan map[string]any),
		responders: make(map[string]Responder),
	}, nil
}

// expandHandle replaces every # placeholder with a random decimal digit.
func expandHandle(handle string, rng *rand.Rand) string {
	if !strings.Contains(handle, "#") {
		return handle
	}
	var b strings.Builder
	for _, r := range handle {
		if r == '#' {
			b.WriteByte(byte('0' + rng.Intn(10)))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Handle returns the server-confirmed client handle. Before the first
// successful handshake it is the requested handle after # expansion.
func (c *Client) Handle() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// State returns the current connection lifecycle phase.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Connect dials the server and performs the registration handshake. On
// failure the client transitions to StateFailed and the caller owns any
// retry; disconnects after a successful Connect are retried automatically
// by the receive loop.
func (c *Client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.refused = false
	c.mu.Unlock()

	if err := c.establish(ctx); err != nil {
		if errors.Is(err, ErrClosed) || c.isClosed() {
			return ErrClosed
		}
		c.mu.Lock()
		c.state = StateFailed
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (transport.Conn, error) {
	if c.opts.WebSocketURL != "" {
		return transport.DialWebSocket(ctx, c.opts.WebSocketURL, c.opts.ConnectTimeout)
	}
	addr := fmt.Sprintf("%s:%d", c.opts.Host, c.opts.Port)
	return transport.DialTCP(ctx, addr, c.opts.ConnectTimeout)
}

// establish runs dial + handshake + channel re-announcement. On failure the
// state returns to StateDisconnected so the reconnect policy can continue;
// callers that need StateFailed set it themselves. The connection is
// exposed as dialing while the handshake is pending so Close can abort it.
func (c *Client) establish(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	c.mu.Lock()
	if c.isClosed() {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.dialing = conn
	c.state = StateRegistering
	c.mu.Unlock()

	err = c.handshake(conn)

	c.mu.Lock()
	c.dialing = nil
	c.mu.Unlock()

	if err != nil {
		conn.Close()
		c.setState(StateDisconnected)
		if errors.Is(err, ErrHandshakeRefused) {
			c.mu.Lock()
			c.refused = true
			c.mu.Unlock()
		}
		return err
	}
	return nil
}

func (c *Client) handshake(conn transport.Conn) error {
	if err := conn.WriteLine(wire.EncodeHandshake(c.requested)); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	deadline := time.Now().Add(c.opts.HandshakeTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrHandshakeTimeout
		}

		line, err := conn.ReadLine(remaining)
		if err != nil {
			if errors.Is(err, transport.ErrReadTimeout) {
				return ErrHandshakeTimeout
			}
			return fmt.Errorf("%w: %w", ErrConnectFailed, err)
		}

		ev := wire.Decode(line)
		switch ev.Kind {
		case wire.KindWelcome:
			return c.finishHandshake(conn, ev.Handle)
		case wire.KindPing:
			if err := conn.WriteLine(wire.EncodePong()); err != nil {
				return fmt.Errorf("%w: %w", ErrConnectFailed, err)
			}
		case wire.KindServerError:
			return fmt.Errorf("%w: %s", ErrHandshakeRefused, ev.Text)
		default:
			// Not part of the handshake; keep waiting.
		}
	}
}

// finishHandshake re-announces every registered channel and flips the
// session to Connected.
func (c *Client) finishHandshake(conn transport.Conn, confirmed string) error {
	if confirmed == "" {
		confirmed = c.requested
	}

	channels := c.registry.channels()
	for _, ch := range channels {
		if err := conn.WriteLine(wire.EncodeSubscribe(ch)); err != nil {
			return fmt.Errorf("%w: %w", ErrConnectFailed, err)
		}
	}

	c.mu.Lock()
	if c.isClosed() {
		// Close raced the welcome; the session must not come back up.
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.handle = confirmed
	c.state = StateConnected
	c.attempt = 0
	c.nextAttempt = time.Time{}
	c.lastActivity = time.Now()
	c.mu.Unlock()

	c.log.Info().
		Str("server", conn.RemoteAddr()).
		Str("confirmed_handle", confirmed).
		Int("channels", len(channels)).
		Msg("session established")
	return nil
}

// Run drives the receive loop until ctx is cancelled or Close is called.
// It reconnects with bounded exponential backoff after unexpected
// disconnects; the only error it returns on its own is a server that
// refuses the registration outright.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-c.closed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if c.State() == StateConnected {
			c.step(c.opts.ReadTimeout)
			continue
		}

		c.mu.Lock()
		if c.refused {
			c.mu.Unlock()
			return ErrHandshakeRefused
		}
		attempt := c.attempt
		c.attempt = attempt + 1
		c.mu.Unlock()

		if attempt > 0 {
			delay := c.opts.Backoff.Delay(attempt, c.rng)
			c.log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("waiting before reconnect")
			select {
			case <-time.After(delay):
			case <-c.closed:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.establish(ctx); err != nil {
			if errors.Is(err, ErrHandshakeRefused) {
				return err
			}
			c.log.Warn().Err(err).Msg("reconnect failed")
		}
	}
}

// Poll performs one bounded receive step, waiting up to wait for a line.
// A non-positive wait uses the configured read timeout, so the step is
// always bounded. When disconnected it attempts a reconnect once the
// backoff delay for the current attempt has elapsed, and returns without
// blocking otherwise. Hosts without a spare goroutine call this from
// their main loop instead of Run.
func (c *Client) Poll(wait time.Duration) error {
	if c.isClosed() {
		return ErrClosed
	}
	if wait <= 0 {
		wait = c.opts.ReadTimeout
	}

	switch c.State() {
	case StateConnected:
		c.step(wait)
		return nil
	case StateFailed:
		// Explicit Connect failed; retries belong to the caller.
		return ErrNotConnected
	default:
		c.mu.Lock()
		if c.refused {
			c.mu.Unlock()
			return ErrHandshakeRefused
		}
		if !c.nextAttempt.IsZero() && time.Now().Before(c.nextAttempt) {
			c.mu.Unlock()
			return nil
		}
		attempt := c.attempt
		c.attempt = attempt + 1
		c.nextAttempt = time.Now().Add(c.opts.Backoff.Delay(attempt+1, c.rng))
		c.mu.Unlock()

		if err := c.establish(context.Background()); err != nil {
			if errors.Is(err, ErrHandshakeRefused) {
				return err
			}
			c.log.Warn().Err(err).Msg("reconnect failed")
		}
		return nil
	}
}

// step reads and processes at most one line.
func (c *Client) step(wait time.Duration) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	line, err := conn.ReadLine(wait)
	if err != nil {
		if errors.Is(err, transport.ErrReadTimeout) {
			c.checkKeepAlive(conn)
			return
		}
		if !c.isClosed() {
			c.log.Warn().Err(err).Msg("connection lost")
		}
		c.dropConn(conn)
		return
	}
	c.handleLine(line)
}

// checkKeepAlive recycles a connection that has gone silent for longer
// than the keep-alive window. The server heartbeats every few seconds, so
// prolonged silence means a half-open connection.
func (c *Client) checkKeepAlive(conn transport.Conn) {
	ka := c.opts.KeepAliveTimeout
	if ka <= 0 {
		return
	}
	c.mu.Lock()
	silent := time.Since(c.lastActivity)
	c.mu.Unlock()
	if silent <= ka {
		return
	}
	c.log.Warn().Dur("silent", silent).Msg("no server traffic, recycling connection")
	c.dropConn(conn)
}

// dropConn tears down the active connection and arms the reconnect policy.
func (c *Client) dropConn(conn transport.Conn) {
	conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return // already replaced or dropped
	}
	c.conn = nil
	c.state = StateDisconnected
	c.attempt = 1
	c.nextAttempt = time.Now().Add(c.opts.Backoff.Delay(1, c.rng))
}

func (c *Client) handleLine(line []byte) {
	ev := wire.Decode(line)
	switch ev.Kind {
	case wire.KindPing:
		c.touch()
		c.write(wire.EncodePong())
	case wire.KindData:
		c.touch()
		c.routeData(ev)
	case wire.KindWelcome:
		c.touch()
	case wire.KindServerError:
		c.log.Warn().Str("text", ev.Text).Msg("server reported error")
	default:
		if ev.Raw != "" {
			c.log.Debug().Str("line", ev.Raw).Msg("unrecognized server line")
		}
	}
}

// routeData delivers one data event: call responders first, then pending
// call responses, then the subscription registry. A message that matches
// nothing is dropped silently; that is normal channel traffic, not a
// fault.
func (c *Client) routeData(ev wire.Event) {
	payload := ev.Payload

	if name, ok := payload[keyMessageHandle].(string); ok {
		if responder := c.responderFor(name); responder != nil {
			c.serveCall(ev, responder)
			// A served call still counts as channel traffic for a regular
			// subscription on the same channel.
			if handler, ok := c.registry.lookup(ev.Recipient, c.Handle()); ok && handler != nil {
				handler(ev.Sender, ev.Recipient, ev.Payload)
			}
			return
		}
	}
	if id, ok := payload[keyMessageID].(string); ok {
		if pending := c.takePendingCall(id); pending != nil {
			delete(payload, keyMessageID)
			delete(payload, keyMessageHandle)
			pending <- payload
			return
		}
	}

	handler, ok := c.registry.lookup(ev.Recipient, c.Handle())
	if !ok || handler == nil {
		c.log.Debug().
			Str("channel", ev.Recipient).
			Str("sender", ev.Sender).
			Msg("no handler for message, dropped")
		return
	}
	handler(ev.Sender, ev.Recipient, payload)
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// write sends one line on the active connection; a failure recycles the
// connection.
func (c *Client) write(line []byte) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}
	if err := conn.WriteLine(line); err != nil {
		if !c.isClosed() {
			c.log.Warn().Err(err).Msg("write failed, recycling connection")
		}
		c.dropConn(conn)
		return err
	}
	return nil
}

// Send publishes payload to a channel. The payload may be nil for an empty
// message. Fails with ErrNotConnected unless the session is established.
func (c *Client) Send(channel string, payload map[string]any) error {
	if !wire.ValidChannel(channel) {
		return ErrInvalidChannel
	}
	if c.isClosed() {
		return ErrClosed
	}

	line, err := wire.EncodeSend(channel, payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	if err := c.write(line); err != nil {
		if errors.Is(err, ErrNotConnected) {
			return ErrNotConnected
		}
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// Subscribe registers handler for a channel, replacing any previous
// handler on the same channel. Valid in any state: the subscription is
// announced to the server when connected, and re-announced automatically
// after every reconnect.
func (c *Client) Subscribe(channel string, handler Handler) error {
	if !wire.ValidChannel(channel) {
		return ErrInvalidChannel
	}
	c.registry.subscribe(channel, handler)
	if err := c.write(wire.EncodeSubscribe(channel)); err != nil && !errors.Is(err, ErrNotConnected) {
		c.log.Debug().Err(err).Str("channel", channel).Msg("subscribe announcement failed")
	}
	c.log.Debug().Str("channel", channel).Msg("subscribed")
	return nil
}

// Unsubscribe removes the channel subscription; a no-op if none exists.
func (c *Client) Unsubscribe(channel string) error {
	if !wire.ValidChannel(channel) {
		return ErrInvalidChannel
	}
	c.registry.unsubscribe(channel)
	if err := c.write(wire.EncodeUnsubscribe(channel)); err != nil && !errors.Is(err, ErrNotConnected) {
		c.log.Debug().Err(err).Str("channel", channel).Msg("unsubscribe announcement failed")
	}
	return nil
}

// Close shuts the session down: a best-effort quit to the server, then the
// transport. Idempotent, safe to call from inside a handler, and unblocks
// any in-progress read. A closed client stays closed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		conn := c.conn
		dialing := c.dialing
		c.conn = nil
		c.dialing = nil
		c.state = StateDisconnected
		c.mu.Unlock()

		if dialing != nil {
			dialing.Close()
		}
		if conn != nil {
			conn.WriteLine(wire.EncodeQuit())
			conn.Close()
		}
		c.log.Info().Msg("session closed")
	})
	return nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
