package oocsi

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/oocsi/oocsi-go/internal/backoff"
)

// Options holds client configuration. Zero values are filled in from
// defaultOptions by New; use the With* functions to override.
type Options struct {
	// Host and Port locate the OOCSI server's native TCP port.
	Host string
	Port int

	// WebSocketURL, when set, switches the client to the server's
	// websocket endpoint and Host/Port are ignored.
	WebSocketURL string

	// ConnectTimeout bounds the transport dial.
	ConnectTimeout time.Duration

	// HandshakeTimeout bounds the wait for the registration
	// acknowledgement after the dial succeeds.
	HandshakeTimeout time.Duration

	// ReadTimeout is the wait granularity of one receive step. It only
	// controls how often the loop wakes up to check liveness, not an
	// error condition.
	ReadTimeout time.Duration

	// KeepAliveTimeout declares the connection dead when no server
	// traffic (including heartbeats) arrives for this long. Zero
	// disables the check.
	KeepAliveTimeout time.Duration

	// Backoff is the reconnect schedule after an unexpected disconnect.
	Backoff backoff.Config

	// Logger receives connection lifecycle and dispatch diagnostics.
	Logger *zerolog.Logger
}

// Option mutates Options during New.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Host:             "localhost",
		Port:             4444,
		ConnectTimeout:   10 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		ReadTimeout:      time.Second,
		KeepAliveTimeout: 20 * time.Second,
		Backoff:          backoff.Default(),
	}
}

// WithHost sets the server hostname or address.
func WithHost(host string) Option {
	return func(o *Options) { o.Host = host }
}

// WithPort sets the server's native TCP port.
func WithPort(port int) Option {
	return func(o *Options) { o.Port = port }
}

// WithWebSocket routes the session over the server's websocket endpoint
// instead of the native TCP port.
func WithWebSocket(url string) Option {
	return func(o *Options) { o.WebSocketURL = url }
}

// WithConnectTimeout bounds the transport dial.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *Options) { o.ConnectTimeout = d }
}

// WithHandshakeTimeout bounds the wait for registration acknowledgement.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) { o.HandshakeTimeout = d }
}

// WithReadTimeout sets the receive-step wait granularity.
func WithReadTimeout(d time.Duration) Option {
	return func(o *Options) { o.ReadTimeout = d }
}

// WithKeepAliveTimeout sets the silent-connection threshold. Zero disables
// liveness recycling.
func WithKeepAliveTimeout(d time.Duration) Option {
	return func(o *Options) { o.KeepAliveTimeout = d }
}

// WithBackoff replaces the reconnect schedule.
func WithBackoff(cfg backoff.Config) Option {
	return func(o *Options) { o.Backoff = cfg }
}

// WithLogger attaches a logger. Without one the client is silent.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}
