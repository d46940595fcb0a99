package oocsi

import "sync"

// Handler receives one channel message. Handlers run on the receive loop:
// a handler must return before the next line is processed, so long-running
// work belongs in the host program, not here.
type Handler func(sender, recipient string, payload map[string]any)

// registry maps channel names to handlers. One handler per channel;
// subscribing again overwrites. A nil handler keeps the channel announced
// to the server (call responders need this) without receiving dispatches.
type registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]Handler)}
}

func (r *registry) subscribe(channel string, h Handler) {
	r.mu.Lock()
	r.handlers[channel] = h
	r.mu.Unlock()
}

func (r *registry) unsubscribe(channel string) {
	r.mu.Lock()
	delete(r.handlers, channel)
	r.mu.Unlock()
}

// lookup returns the handler for channel, falling back to the client's own
// handle for directly addressed messages. The second result reports
// whether any subscription entry matched, even a nil announce-only one.
func (r *registry) lookup(channel, selfHandle string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.handlers[channel]; ok {
		return h, true
	}
	if h, ok := r.handlers[selfHandle]; ok {
		return h, true
	}
	return nil, false
}

// ensure records channel as announce-only if nothing is registered for it
// yet, so it survives reconnect re-announcement without receiving
// dispatches.
func (r *registry) ensure(channel string) {
	r.mu.Lock()
	if _, ok := r.handlers[channel]; !ok {
		r.handlers[channel] = nil
	}
	r.mu.Unlock()
}

// channels snapshots the registered channel names for re-announcement
// after a reconnect.
func (r *registry) channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.handlers))
	for ch := range r.handlers {
		out = append(out, ch)
	}
	return out
}
