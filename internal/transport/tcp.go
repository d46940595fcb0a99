package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

type tcpConn struct {
	conn net.Conn
	r    *bufio.Reader

	// pending holds bytes of a line that was cut short by a read
	// deadline, so the next ReadLine continues where this one stopped.
	pending []byte

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// DialTCP opens a TCP connection to addr (host:port) with a bounded
// connect timeout.
func DialTCP(ctx context.Context, addr string, timeout time.Duration) (Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &tcpConn{
		conn: conn,
		r:    bufio.NewReaderSize(conn, 4096),
	}, nil
}

func (c *tcpConn) ReadLine(timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		return nil, ErrReadTimeout
	}
	deadline := time.Now().Add(timeout)
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, ErrConnClosed
	}

	frag, err := c.r.ReadBytes('\n')
	c.pending = append(c.pending, frag...)
	if len(c.pending) > maxLineLen {
		c.pending = nil
		return nil, ErrLineTooLong
	}
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, ErrReadTimeout
		}
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return nil, ErrConnClosed
		}
		return nil, fmt.Errorf("read: %w", err)
	}

	line := bytes.TrimRight(c.pending, "\r\n")
	c.pending = nil
	return line, nil
}

func (c *tcpConn) WriteLine(line []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := c.conn.Write(buf); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			return ErrConnClosed
		}
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *tcpConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
