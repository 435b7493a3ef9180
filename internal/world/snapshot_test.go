package world

import (
	"encoding/json"
	"testing"
	"time"

	"lanternfall/internal/protocol"
)

// snapshotFor runs one snapshot pass and decodes the viewer's world_state.
func snapshotFor(t *testing.T, w *World, viewer *Session) protocol.WorldState {
	t.Helper()

	w.mu.Lock()
	byRealm := make(map[string][]*Session)
	for _, s := range w.sessions {
		byRealm[s.Realm] = append(byRealm[s.Realm], s)
	}
	w.broadcastSnapshots(byRealm)
	w.mu.Unlock()

	env, ok := firstOfType(drain(viewer), protocol.TypeWorldState)
	if !ok {
		t.Fatal("Viewer received no world_state")
	}
	var state protocol.WorldState
	if err := json.Unmarshal(env.Data, &state); err != nil {
		t.Fatalf("Bad world_state payload: %v", err)
	}
	return state
}

// TestSnapshotPersonalizesTrust tests that each viewer sees their own
// directed edges
func TestSnapshotPersonalizesTrust(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	b := mustOpen(t, w, "c2", "bobby", "genesis")
	a.Trust["bobby"] = 40
	b.Trust["alice"] = 5
	drain(a)
	drain(b)

	aState := snapshotFor(t, w, a)
	if len(aState.Sessions) != 1 || aState.Sessions[0].ID != "bobby" {
		t.Fatalf("Expected alice to see exactly bobby, got %+v", aState.Sessions)
	}
	if aState.Sessions[0].TrustToViewer != 40 {
		t.Errorf("Expected alice's edge 40, got %v", aState.Sessions[0].TrustToViewer)
	}
	if aState.NotableTies != 1 {
		t.Errorf("Expected 1 notable tie for alice, got %d", aState.NotableTies)
	}

	bState := snapshotFor(t, w, b)
	if bState.Sessions[0].TrustToViewer != 5 {
		t.Errorf("Expected bobby's edge 5, got %v", bState.Sessions[0].TrustToViewer)
	}
	if bState.NotableTies != 0 {
		t.Errorf("Expected 0 notable ties for bobby, got %d", bState.NotableTies)
	}
}

// TestSnapshotScopesToRealm tests that other realms never leak in
func TestSnapshotScopesToRealm(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	mustOpen(t, w, "c2", "bobby", "ember")
	drain(a)

	w.mu.Lock()
	w.spawnWisp("ember")
	w.addObject(&WorldObject{ID: "e1", Kind: ObjectEcho, Realm: "ember"})
	w.mu.Unlock()

	state := snapshotFor(t, w, a)

	if state.Realm != "genesis" {
		t.Errorf("Expected realm genesis, got %s", state.Realm)
	}
	if len(state.Sessions) != 0 {
		t.Error("Sessions from other realms leaked into the snapshot")
	}
	if len(state.Wisps) != 0 {
		t.Error("Wisps from other realms leaked into the snapshot")
	}
	if len(state.Echoes) != 0 {
		t.Error("Echoes from other realms leaked into the snapshot")
	}
}

// TestSnapshotCarriesWispTrust tests the wisp's edge toward the viewer
func TestSnapshotCarriesWispTrust(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	drain(a)

	w.mu.Lock()
	wisp := w.spawnWisp("genesis")
	w.mu.Unlock()
	wisp.Trust["alice"] = 33

	state := snapshotFor(t, w, a)

	if len(state.Wisps) != 1 {
		t.Fatalf("Expected 1 wisp, got %d", len(state.Wisps))
	}
	if state.Wisps[0].TrustToViewer != 33 {
		t.Errorf("Expected wisp trust 33, got %v", state.Wisps[0].TrustToViewer)
	}
}

// TestSnapshotIncludesObjects tests star and echo projection
func TestSnapshotIncludesObjects(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	drain(a)

	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeEcho, protocol.Echo{
		Text: "hello future", X: 1, Y: 2,
	}))
	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeStarLit, protocol.StarLit{
		StarIDs: []string{"polaris"},
	}))
	drain(a)

	state := snapshotFor(t, w, a)

	if len(state.Echoes) != 1 || state.Echoes[0].Text != "hello future" {
		t.Errorf("Expected the planted echo, got %+v", state.Echoes)
	}
	if len(state.Stars) != 1 || state.Stars[0].ID != "polaris" {
		t.Errorf("Expected the lit star, got %+v", state.Stars)
	}
	if state.You.ID != "alice" {
		t.Errorf("Expected You to be the viewer, got %s", state.You.ID)
	}
}

// TestTickBroadcastsSnapshots tests the live loop end to end: start the
// world, wait a few ticks, and expect world_state frames to flow
func TestTickBroadcastsSnapshots(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	drain(a)

	w.Start()
	defer w.Stop()

	tick := time.Second / time.Duration(w.cfg.TickRate)
	deadline := time.After(50 * tick)
	got := 0
	for got < 2 {
		select {
		case env := <-a.Outbox():
			if env.Type == protocol.TypeWorldState {
				got++
			}
		case <-deadline:
			t.Fatalf("Expected at least 2 world_state frames, got %d", got)
		}
	}
}
