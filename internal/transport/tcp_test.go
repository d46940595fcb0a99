package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// pipePair returns a dialed Conn plus the server side of the connection.
func pipePair(t *testing.T) (Conn, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	client, err := DialTCP(context.Background(), ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server := <-accepted:
		t.Cleanup(func() { server.Close() })
		return client, server
	case <-time.After(2 * time.Second):
		t.Fatal("accept timed out")
		return nil, nil
	}
}

func TestTCPReadLine(t *testing.T) {
	client, server := pipePair(t)

	if _, err := server.Write([]byte("hello world\n")); err != nil {
		t.Fatalf("server write: %v", err)
	}

	line, err := client.ReadLine(time.Second)
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	if string(line) != "hello world" {
		t.Fatalf("unexpected line: %q", line)
	}
}

func TestTCPReadLineSurvivesSplitWrites(t *testing.T) {
	client, server := pipePair(t)

	// First half; no newline yet, so the read times out without
	// discarding it.
	if _, err := server.Write([]byte(`{"temp":`)); err != nil {
		t.Fatalf("server write: %v", err)
	}
	if _, err := client.ReadLine(50 * time.Millisecond); !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("expected read timeout, got %v", err)
	}

	if _, err := server.Write([]byte("21}\n")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	line, err := client.ReadLine(time.Second)
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	if string(line) != `{"temp":21}` {
		t.Fatalf("partial line lost: %q", line)
	}
}

func TestTCPReadLineTimeout(t *testing.T) {
	client, _ := pipePair(t)

	start := time.Now()
	_, err := client.ReadLine(50 * time.Millisecond)
	if !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("expected ErrReadTimeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("read timeout did not fire promptly")
	}
}

func TestTCPReadLineNonPositiveTimeout(t *testing.T) {
	client, _ := pipePair(t)

	start := time.Now()
	if _, err := client.ReadLine(0); !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("expected ErrReadTimeout, got %v", err)
	}
	if _, err := client.ReadLine(-time.Second); !errors.Is(err, ErrReadTimeout) {
		t.Fatalf("expected ErrReadTimeout, got %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("non-positive timeout did not fail immediately")
	}
}

func TestTCPPeerClose(t *testing.T) {
	client, server := pipePair(t)

	server.Close()
	if _, err := client.ReadLine(time.Second); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
}

func TestTCPCloseUnblocksRead(t *testing.T) {
	client, _ := pipePair(t)

	done := make(chan error, 1)
	go func() {
		_, err := client.ReadLine(5 * time.Second)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	client.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnClosed) {
			t.Fatalf("expected ErrConnClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock ReadLine")
	}
}

func TestTCPWriteLine(t *testing.T) {
	client, server := pipePair(t)

	if err := client.WriteLine([]byte("subscribe timechannel")); err != nil {
		t.Fatalf("write line: %v", err)
	}

	buf := make([]byte, 64)
	server.SetReadDeadline(time.Now().Add(time.Second))
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if string(buf[:n]) != "subscribe timechannel\n" {
		t.Fatalf("unexpected wire bytes: %q", buf[:n])
	}
}

func TestTCPCloseIdempotent(t *testing.T) {
	client, _ := pipePair(t)

	if err := client.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
