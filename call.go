package oocsi

import (
	"time"

	"github.com/google/uuid"

	"github.com/oocsi/oocsi-go/internal/wire"
)

// Reserved payload keys marking call/response traffic.
const (
	keyMessageHandle = "_MESSAGE_HANDLE"
	keyMessageID     = "_MESSAGE_ID"
)

// Responder answers one inbound call. The returned payload is sent back to
// the caller's private channel; nil means an empty response.
type Responder func(payload map[string]any) map[string]any

// Register installs a responder for calls named callName arriving on
// channel. The channel is announced to the server (and re-announced after
// reconnects) without disturbing any regular Subscribe handler on it.
func (c *Client) Register(channel, callName string, responder Responder) error {
	if !wire.ValidChannel(channel) {
		return ErrInvalidChannel
	}

	c.callsMu.Lock()
	c.responders[callName] = responder
	c.callsMu.Unlock()

	c.registry.ensure(channel)
	if err := c.write(wire.EncodeSubscribe(channel)); err != nil {
		c.log.Debug().Err(err).Str("channel", channel).Msg("responder announcement deferred")
	}
	c.log.Debug().Str("channel", channel).Str("call", callName).Msg("responder registered")
	return nil
}

// Call sends a named call to channel and waits up to timeout for the
// response. The receive loop must be running concurrently (Run in a
// goroutine); in Poll-driven hosts use Register-style messaging instead of
// blocking calls.
func (c *Client) Call(channel, callName string, payload map[string]any, timeout time.Duration) (map[string]any, error) {
	if !wire.ValidChannel(channel) {
		return nil, ErrInvalidChannel
	}

	id := uuid.NewString()
	out := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		out[k] = v
	}
	out[keyMessageHandle] = callName
	out[keyMessageID] = id

	pending := make(chan map[string]any, 1)
	c.callsMu.Lock()
	c.calls[id] = pending
	c.callsMu.Unlock()
	defer func() {
		c.callsMu.Lock()
		delete(c.calls, id)
		c.callsMu.Unlock()
	}()

	if err := c.Send(channel, out); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-pending:
		return resp, nil
	case <-timer.C:
		return nil, ErrCallTimeout
	case <-c.closed:
		return nil, ErrClosed
	}
}

func (c *Client) responderFor(callName string) Responder {
	c.callsMu.Lock()
	defer c.callsMu.Unlock()
	return c.responders[callName]
}

func (c *Client) takePendingCall(id string) chan map[string]any {
	c.callsMu.Lock()
	defer c.callsMu.Unlock()
	pending := c.calls[id]
	delete(c.calls, id)
	return pending
}

// serveCall invokes a responder and sends its answer back to the caller's
// private channel, tagged with the originating message ID.
func (c *Client) serveCall(ev wire.Event, responder Responder) {
	payload := ev.Payload
	id, _ := payload[keyMessageID].(string)
	delete(payload, keyMessageHandle)
	delete(payload, keyMessageID)

	reply := responder(payload)
	if reply == nil {
		reply = map[string]any{}
	}
	if id != "" {
		reply[keyMessageID] = id
	}
	if err := c.Send(ev.Sender, reply); err != nil {
		c.log.Warn().Err(err).Str("caller", ev.Sender).Msg("call response failed")
	}
}
