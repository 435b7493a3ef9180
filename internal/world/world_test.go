package world

import (
	"testing"

	"lanternfall/internal/config"
	"lanternfall/internal/protocol"
)

// newTestWorld builds a stopped world with deterministic randomness and no
// persistence. Tests drive ticks and messages by hand.
func newTestWorld() *World {
	return New(Options{
		Config: config.DefaultWorld(),
		Limits: config.DefaultLimits(),
		Realms: config.DefaultRealms(),
		Seed:   42,
	})
}

// mustOpen opens a session or fails the test.
func mustOpen(t *testing.T, w *World, connID, identity, realm string) *Session {
	t.Helper()
	s, err := w.OpenSession(connID, identity, realm)
	if err != nil {
		t.Fatalf("OpenSession(%s): %v", identity, err)
	}
	return s
}

// drain empties a session's outbox without blocking.
func drain(s *Session) []protocol.Envelope {
	var out []protocol.Envelope
	for {
		select {
		case env, ok := <-s.outbox:
			if !ok {
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

// countType tallies envelopes of one type.
func countType(frames []protocol.Envelope, msgType string) int {
	n := 0
	for _, f := range frames {
		if f.Type == msgType {
			n++
		}
	}
	return n
}

// firstOfType returns the first envelope of the given type, if any.
func firstOfType(frames []protocol.Envelope, msgType string) (protocol.Envelope, bool) {
	for _, f := range frames {
		if f.Type == msgType {
			return f, true
		}
	}
	return protocol.Envelope{}, false
}
