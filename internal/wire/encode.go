package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Server command keywords. The OOCSI server parses commands as
// space-delimited tokens on a single line.
const (
	cmdSubscribe   = "subscribe"
	cmdUnsubscribe = "unsubscribe"
	cmdSendRaw     = "sendraw"
	cmdQuit        = "quit"

	// handshakeSuffix asks the server for JSON-formatted events.
	handshakeSuffix = "(JSON)"

	// pong is the client's answer to a server heartbeat.
	pong = "."
)

// EncodeHandshake builds the registration line for the given client handle.
func EncodeHandshake(handle string) []byte {
	return []byte(handle + handshakeSuffix)
}

// EncodeSubscribe builds a channel subscription announcement.
func EncodeSubscribe(channel string) []byte {
	return []byte(cmdSubscribe + " " + channel)
}

// EncodeUnsubscribe builds a channel unsubscription announcement.
func EncodeUnsubscribe(channel string) []byte {
	return []byte(cmdUnsubscribe + " " + channel)
}

// EncodeSend builds a sendraw line carrying the payload as a JSON object.
// A nil payload encodes as an empty object.
func EncodeSend(channel string, payload map[string]any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return []byte(cmdSendRaw + " " + channel + " " + string(data)), nil
}

// EncodeQuit builds the graceful disconnect line.
func EncodeQuit() []byte {
	return []byte(cmdQuit)
}

// EncodePong builds the heartbeat response line.
func EncodePong() []byte {
	return []byte(pong)
}

// ValidChannel reports whether name can appear as a channel token on the
// wire. Commands are space-delimited, so channel names must be non-empty
// and free of whitespace and newlines.
func ValidChannel(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, " \t\r\n")
}
