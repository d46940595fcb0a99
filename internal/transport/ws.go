package transport

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// wsConn carries OOCSI lines as individual websocket text frames, the way
// the server's browser endpoint expects them.
//
// The websocket library tears the connection down when a read context
// expires, so a dedicated reader goroutine feeds incoming frames into a
// channel and ReadLine waits on that channel instead.
type wsConn struct {
	conn *websocket.Conn
	url  string

	frames chan []byte
	done   chan struct{} // closed when the reader goroutine exits
	quit   chan struct{} // closed by Close

	closeOnce sync.Once
}

// DialWebSocket connects to the OOCSI server's websocket endpoint,
// e.g. ws://host:port/ws.
func DialWebSocket(ctx context.Context, url string, timeout time.Duration) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxLineLen)

	c := &wsConn{
		conn:   conn,
		url:    url,
		frames: make(chan []byte, 8),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
	}
	go c.readFrames()
	return c, nil
}

func (c *wsConn) readFrames() {
	defer close(c.done)
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			return
		}
		select {
		case c.frames <- data:
		case <-c.quit:
			return
		}
	}
}

func (c *wsConn) ReadLine(timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		return nil, ErrReadTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-c.frames:
		return bytes.TrimRight(data, "\r\n"), nil
	case <-c.done:
		// Drain frames that arrived before the reader stopped.
		select {
		case data := <-c.frames:
			return bytes.TrimRight(data, "\r\n"), nil
		default:
		}
		return nil, ErrConnClosed
	case <-timer.C:
		return nil, ErrReadTimeout
	}
}

func (c *wsConn) WriteLine(line []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.conn.Write(ctx, websocket.MessageText, line); err != nil {
		select {
		case <-c.done:
			return ErrConnClosed
		default:
		}
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
		c.conn.Close(websocket.StatusNormalClosure, "quit")
	})
	return nil
}

func (c *wsConn) RemoteAddr() string {
	return c.url
}
