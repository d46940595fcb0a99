// Package transport provides line-delimited duplex connections to an OOCSI
// server. Two implementations exist: plain TCP (the native protocol port)
// and WebSocket (the server's browser-facing endpoint). Both present the
// same Conn contract so the session layer stays transport-agnostic.
package transport

import (
	"errors"
	"time"
)

var (
	// ErrReadTimeout reports that no full line arrived within the wait
	// window. The connection is still usable.
	ErrReadTimeout = errors.New("transport: read timed out")

	// ErrConnClosed reports that the peer closed the connection or Close
	// was called locally.
	ErrConnClosed = errors.New("transport: connection closed")

	// ErrLineTooLong reports a frame exceeding the line length cap.
	ErrLineTooLong = errors.New("transport: line exceeds maximum length")
)

// maxLineLen bounds a single wire line. OOCSI events are small JSON
// objects; anything this large means a broken peer.
const maxLineLen = 256 * 1024

// Conn is one line-delimited duplex stream.
//
// ReadLine blocks until a full line is available or timeout elapses
// (ErrReadTimeout); a non-positive timeout fails immediately with
// ErrReadTimeout, and a timeout does not lose partially received bytes.
// WriteLine sends one line, appending the terminator. Close is idempotent
// and unblocks a concurrent ReadLine.
type Conn interface {
	ReadLine(timeout time.Duration) ([]byte, error)
	WriteLine(line []byte) error
	Close() error
	RemoteAddr() string
}
