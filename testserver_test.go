package oocsi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// testServer speaks just enough of the OOCSI server grammar for session
// tests: it acknowledges handshakes, records every client line, and lets
// tests inject server lines or kill the connection.
type testServer struct {
	t  *testing.T
	ln net.Listener

	// refuse makes the server answer every handshake with an error line.
	refuse bool
	// confirmHandle, when set, is the handle restated in the welcome
	// (simulates server-side reassignment).
	confirmHandle string
	// holdWelcome, when set, delays the welcome line until the channel is
	// closed, leaving the client stuck mid-handshake.
	holdWelcome chan struct{}

	handshakes chan string
	lines      chan string

	mu   sync.Mutex
	conn net.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &testServer{
		t:          t,
		ln:         ln,
		handshakes: make(chan string, 8),
		lines:      make(chan string, 64),
	}
	go s.acceptLoop()
	t.Cleanup(func() {
		ln.Close()
		s.dropConn()
	})
	return s
}

func (s *testServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *testServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *testServer) serve(conn net.Conn) {
	r := bufio.NewReader(conn)

	handshake, err := r.ReadString('\n')
	if err != nil {
		conn.Close()
		return
	}
	handshake = strings.TrimRight(handshake, "\r\n")

	if s.refuse {
		fmt.Fprintf(conn, "error handle already in use\n")
		conn.Close()
		s.handshakes <- handshake
		return
	}

	confirmed := strings.TrimSuffix(handshake, "(JSON)")
	if s.confirmHandle != "" {
		confirmed = s.confirmHandle
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.handshakes <- handshake
	if s.holdWelcome != nil {
		<-s.holdWelcome
	}
	fmt.Fprintf(conn, "{\"message\":\"welcome %s\"}\n", confirmed)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		s.lines <- strings.TrimRight(line, "\r\n")
	}
}

// push injects one server line into the active connection.
func (s *testServer) push(line string) {
	s.t.Helper()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.t.Fatal("push: no active connection")
	}
	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		s.t.Fatalf("push: %v", err)
	}
}

// pushData injects a data event with the given envelope and payload.
func (s *testServer) pushData(sender, recipient string, payload map[string]any) {
	s.t.Helper()

	event := map[string]any{
		"sender":    sender,
		"recipient": recipient,
		"timestamp": time.Now().UnixMilli(),
	}
	for k, v := range payload {
		event[k] = v
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.t.Fatalf("marshal event: %v", err)
	}
	s.push(string(data))
}

// dropConn kills the active connection to simulate a network failure.
func (s *testServer) dropConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (s *testServer) expectHandshake(timeout time.Duration) string {
	s.t.Helper()

	select {
	case h := <-s.handshakes:
		return h
	case <-time.After(timeout):
		s.t.Fatal("expected handshake, got none")
		return ""
	}
}

func (s *testServer) expectLine(timeout time.Duration) string {
	s.t.Helper()

	select {
	case line := <-s.lines:
		return line
	case <-time.After(timeout):
		s.t.Fatal("expected client line, got none")
		return ""
	}
}

func (s *testServer) expectNoLine(window time.Duration) {
	s.t.Helper()

	select {
	case line := <-s.lines:
		s.t.Fatalf("unexpected client line: %q", line)
	case <-time.After(window):
	}
}
