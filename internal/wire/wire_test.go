package wire

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestEncodeHandshake(t *testing.T) {
	got := string(EncodeHandshake("bob"))
	if got != "bob(JSON)" {
		t.Fatalf("unexpected handshake line: %q", got)
	}
}

func TestEncodeSubscribeUnsubscribe(t *testing.T) {
	if got := string(EncodeSubscribe("timechannel")); got != "subscribe timechannel" {
		t.Fatalf("unexpected subscribe line: %q", got)
	}
	if got := string(EncodeUnsubscribe("timechannel")); got != "unsubscribe timechannel" {
		t.Fatalf("unexpected unsubscribe line: %q", got)
	}
}

func TestEncodeSendEmptyPayload(t *testing.T) {
	line, err := EncodeSend("ch", nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(line) != "sendraw ch {}" {
		t.Fatalf("unexpected send line: %q", line)
	}
}

func TestDecodePingVariants(t *testing.T) {
	for _, line := range []string{"ping", "ping 12345", ".", ".\r"} {
		ev := Decode([]byte(line))
		if ev.Kind != KindPing {
			t.Fatalf("line %q: expected ping, got kind %v", line, ev.Kind)
		}
	}
}

func TestDecodeWelcome(t *testing.T) {
	ev := Decode([]byte(`{"message":"welcome bob42"}`))
	if ev.Kind != KindWelcome {
		t.Fatalf("expected welcome, got kind %v", ev.Kind)
	}
	if ev.Handle != "bob42" {
		t.Fatalf("expected confirmed handle bob42, got %q", ev.Handle)
	}
}

func TestDecodeWelcomeWithoutHandle(t *testing.T) {
	ev := Decode([]byte(`{"message":"hello there"}`))
	if ev.Kind != KindWelcome || ev.Handle != "" {
		t.Fatalf("expected anonymous welcome, got %+v", ev)
	}
}

func TestDecodeData(t *testing.T) {
	line := `{"sender":"alice","recipient":"timechannel","timestamp":1712000000000,"temp":21}`
	ev := Decode([]byte(line))
	if ev.Kind != KindData {
		t.Fatalf("expected data, got kind %v", ev.Kind)
	}
	if ev.Sender != "alice" || ev.Recipient != "timechannel" {
		t.Fatalf("unexpected envelope: %+v", ev)
	}
	if ev.Timestamp != 1712000000000 {
		t.Fatalf("unexpected timestamp: %d", ev.Timestamp)
	}
	want := map[string]any{"temp": float64(21)}
	if !reflect.DeepEqual(ev.Payload, want) {
		t.Fatalf("payload = %v, want %v", ev.Payload, want)
	}
}

func TestDecodeServerError(t *testing.T) {
	ev := Decode([]byte("error handle already in use"))
	if ev.Kind != KindServerError {
		t.Fatalf("expected server error, got kind %v", ev.Kind)
	}
	if ev.Text != "handle already in use" {
		t.Fatalf("unexpected error text: %q", ev.Text)
	}
}

func TestDecodeMalformedLines(t *testing.T) {
	for _, line := range []string{"{not json", "DATA alice ch x", "???", ""} {
		ev := Decode([]byte(line))
		if ev.Kind != KindUnrecognized {
			t.Fatalf("line %q: expected unrecognized, got kind %v", line, ev.Kind)
		}
	}
}

// TestSendDecodeRoundTrip checks that a payload sent via sendraw comes back
// intact once the server wraps it into an event envelope.
func TestSendDecodeRoundTrip(t *testing.T) {
	payloads := []map[string]any{
		{"temp": float64(21)},
		{"text": "hello world", "ok": true},
		{"nested": map[string]any{"a": float64(1)}, "list": []any{"x", "y"}},
		{"spaces and {braces}": "value with } and \" quotes"},
		{},
	}

	for _, payload := range payloads {
		line, err := EncodeSend("timechannel", payload)
		if err != nil {
			t.Fatalf("encode %v: %v", payload, err)
		}

		// The server relays the payload object with its own envelope
		// fields added; rebuild that relayed line here.
		raw := strings.TrimPrefix(string(line), "sendraw timechannel ")
		var relayed map[string]any
		if err := json.Unmarshal([]byte(raw), &relayed); err != nil {
			t.Fatalf("sendraw body is not valid JSON: %v", err)
		}
		relayed["sender"] = "bob"
		relayed["recipient"] = "timechannel"
		relayed["timestamp"] = float64(1712000000000)
		wireLine, err := json.Marshal(relayed)
		if err != nil {
			t.Fatalf("marshal relayed event: %v", err)
		}

		ev := Decode(wireLine)
		if ev.Kind != KindData {
			t.Fatalf("payload %v: expected data event, got kind %v", payload, ev.Kind)
		}
		want := payload
		if len(want) == 0 {
			want = map[string]any{}
		}
		if !reflect.DeepEqual(ev.Payload, want) {
			t.Fatalf("round trip mismatch: got %v, want %v", ev.Payload, want)
		}
	}
}

func TestValidChannel(t *testing.T) {
	valid := []string{"timechannel", "heyOOCSI!", "a/b", "room-1"}
	invalid := []string{"", "two words", "tab\tchar", "new\nline"}

	for _, ch := range valid {
		if !ValidChannel(ch) {
			t.Fatalf("expected %q to be valid", ch)
		}
	}
	for _, ch := range invalid {
		if ValidChannel(ch) {
			t.Fatalf("expected %q to be invalid", ch)
		}
	}
}
