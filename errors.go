package oocsi

import "errors"

// Sentinel errors returned by the client. Check with errors.Is; wrapped
// variants carry the underlying cause.
var (
	// ErrConnectFailed is returned when the server cannot be reached.
	ErrConnectFailed = errors.New("oocsi: connect failed")

	// ErrHandshakeTimeout is returned when the server accepts the
	// connection but never acknowledges the registration.
	ErrHandshakeTimeout = errors.New("oocsi: handshake timed out")

	// ErrHandshakeRefused is returned when the server answers the
	// registration with an error line. The client will not reconnect.
	ErrHandshakeRefused = errors.New("oocsi: handshake refused by server")

	// ErrNotConnected is returned for operations that need a live
	// connection while the client has none.
	ErrNotConnected = errors.New("oocsi: client not connected")

	// ErrSendFailed is returned when a send reaches the transport but the
	// write fails.
	ErrSendFailed = errors.New("oocsi: send failed")

	// ErrInvalidChannel is returned for empty or whitespace-containing
	// channel names, which cannot appear on the space-delimited wire.
	ErrInvalidChannel = errors.New("oocsi: invalid channel name")

	// ErrInvalidHandle is returned at construction for an unusable client
	// handle.
	ErrInvalidHandle = errors.New("oocsi: invalid client handle")

	// ErrClosed is returned after Close; a closed client cannot be
	// reopened.
	ErrClosed = errors.New("oocsi: client closed")

	// ErrCallTimeout is returned when no response to a call arrives in
	// time.
	ErrCallTimeout = errors.New("oocsi: call timed out")
)
