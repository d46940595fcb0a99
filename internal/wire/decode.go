package wire

import (
	"bytes"
	"encoding/json"
	"strings"
)

// EventKind classifies one decoded server line.
type EventKind int

const (
	// KindUnrecognized marks lines that match no known server output,
	// including malformed JSON. Never fatal to the session.
	KindUnrecognized EventKind = iota
	// KindWelcome is the handshake acknowledgement.
	KindWelcome
	// KindData is a channel message addressed to this client.
	KindData
	// KindPing is a server heartbeat that expects a pong back.
	KindPing
	// KindServerError is a fatal refusal from the server, e.g. a handle
	// collision during registration.
	KindServerError
)

// Reserved keys the server adds to every event envelope.
const (
	keySender    = "sender"
	keyRecipient = "recipient"
	keyTimestamp = "timestamp"
	keyData      = "data"
	keyMessage   = "message"

	welcomePrefix = "welcome "
)

// Event is one decoded server line.
type Event struct {
	Kind EventKind

	// Handle carries the server-confirmed client handle for KindWelcome,
	// when the server restates it.
	Handle string

	// Sender, Recipient, Timestamp and Payload are set for KindData.
	// Timestamp is server time in milliseconds since the epoch.
	Sender    string
	Recipient string
	Timestamp int64
	Payload   map[string]any

	// Text holds the server message for KindServerError.
	Text string

	// Raw is the original line for KindUnrecognized.
	Raw string
}

// Decode classifies one server line. It never fails: anything that does not
// parse becomes KindUnrecognized and the caller decides whether to log it.
func Decode(line []byte) Event {
	line = bytes.TrimRight(line, "\r\n")
	s := string(line)

	switch {
	case s == "":
		return Event{Kind: KindUnrecognized}
	case strings.HasPrefix(s, "ping"), strings.HasPrefix(s, "."):
		return Event{Kind: KindPing}
	case strings.HasPrefix(s, "error"):
		return Event{Kind: KindServerError, Text: strings.TrimSpace(strings.TrimPrefix(s, "error"))}
	case strings.HasPrefix(s, "{"):
		return decodeJSON(line, s)
	default:
		return Event{Kind: KindUnrecognized, Raw: s}
	}
}

func decodeJSON(line []byte, raw string) Event {
	var fields map[string]any
	if err := json.Unmarshal(line, &fields); err != nil {
		return Event{Kind: KindUnrecognized, Raw: raw}
	}

	sender, hasSender := fields[keySender].(string)
	recipient, hasRecipient := fields[keyRecipient].(string)
	if !hasSender || !hasRecipient {
		return Event{Kind: KindWelcome, Handle: welcomeHandle(fields)}
	}

	ev := Event{
		Kind:      KindData,
		Sender:    sender,
		Recipient: recipient,
	}
	if ts, ok := fields[keyTimestamp].(float64); ok {
		ev.Timestamp = int64(ts)
	}
	delete(fields, keySender)
	delete(fields, keyRecipient)
	delete(fields, keyTimestamp)
	delete(fields, keyData)
	ev.Payload = fields
	return ev
}

// welcomeHandle extracts the confirmed handle from a welcome envelope like
// {"message":"welcome alice"}. Empty when the server does not restate it.
func welcomeHandle(fields map[string]any) string {
	msg, ok := fields[keyMessage].(string)
	if !ok || !strings.HasPrefix(msg, welcomePrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(msg, welcomePrefix))
}
