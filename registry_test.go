package oocsi

import "testing"

func TestRegistryLastSubscriptionWins(t *testing.T) {
	r := newRegistry()

	var first, second int
	r.subscribe("timechannel", func(_, _ string, _ map[string]any) { first++ })
	r.subscribe("timechannel", func(_, _ string, _ map[string]any) { second++ })

	h, ok := r.lookup("timechannel", "bob")
	if !ok || h == nil {
		t.Fatal("expected a handler")
	}
	h("alice", "timechannel", nil)

	if first != 0 || second != 1 {
		t.Fatalf("expected only the last handler to fire, got first=%d second=%d", first, second)
	}
}

func TestRegistryIdentityFallback(t *testing.T) {
	r := newRegistry()

	var hits int
	r.subscribe("bob", func(_, _ string, _ map[string]any) { hits++ })

	h, ok := r.lookup("somechannel", "bob")
	if !ok || h == nil {
		t.Fatal("expected fallback to identity handler")
	}
	h("alice", "somechannel", nil)
	if hits != 1 {
		t.Fatalf("identity handler fired %d times", hits)
	}
}

func TestRegistryNoMatch(t *testing.T) {
	r := newRegistry()

	if h, ok := r.lookup("somechannel", "bob"); ok || h != nil {
		t.Fatal("expected no handler")
	}
}

func TestRegistryUnsubscribe(t *testing.T) {
	r := newRegistry()

	r.subscribe("timechannel", func(_, _ string, _ map[string]any) {})
	r.unsubscribe("timechannel")
	r.unsubscribe("timechannel") // no-op on absent channel

	if h, ok := r.lookup("timechannel", "bob"); ok || h != nil {
		t.Fatal("expected subscription removed")
	}
}

func TestRegistryEnsureKeepsExistingHandler(t *testing.T) {
	r := newRegistry()

	var hits int
	r.subscribe("mathservice", func(_, _ string, _ map[string]any) { hits++ })
	r.ensure("mathservice")

	h, ok := r.lookup("mathservice", "bob")
	if !ok || h == nil {
		t.Fatal("ensure clobbered the handler")
	}
	h("alice", "mathservice", nil)
	if hits != 1 {
		t.Fatalf("handler fired %d times", hits)
	}
}

func TestRegistryEnsureAnnounceOnly(t *testing.T) {
	r := newRegistry()

	r.ensure("mathservice")
	if h, ok := r.lookup("mathservice", "bob"); !ok || h != nil {
		t.Fatalf("expected announce-only entry, got ok=%v handler=%v", ok, h != nil)
	}

	channels := r.channels()
	if len(channels) != 1 || channels[0] != "mathservice" {
		t.Fatalf("unexpected channel snapshot: %v", channels)
	}
}
