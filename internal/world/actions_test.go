package world

import (
	"encoding/json"
	"testing"
	"time"

	"lanternfall/internal/protocol"
)

// TestSanitize tests tag stripping, trimming, and idempotence
func TestSanitize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"  hello  ", "hello"},
		{"<script>hi</script>", "hi"},
		{"a<b>bold</b>c", "aboldc"},
		{"pure <3", "pure"},
		{"\x00\x1fclean\x7f", "clean"},
		{"", ""},
		{"<><><>", ""},
	}
	for _, c := range cases {
		got := sanitize(c.in, 240)
		if got != c.want {
			t.Errorf("sanitize(%q) = %q, want %q", c.in, got, c.want)
		}
		if again := sanitize(got, 240); again != got {
			t.Errorf("sanitize not idempotent: %q -> %q", got, again)
		}
	}
}

// TestSanitizeCapsLength tests the rune limit
func TestSanitizeCapsLength(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "ab"
	}
	if got := sanitize(long, 24); len([]rune(got)) != 24 {
		t.Errorf("Expected 24 runes, got %d", len([]rune(got)))
	}
}

// TestCooldownBlocksSecondSing tests that a rapid repeat performs no
// mutation and reports the remaining wait
func TestCooldownBlocksSecondSing(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	drain(a)

	sing := protocol.NewEnvelope(protocol.TypeSing, protocol.Sing{})
	w.HandleMessage("c1", sing)
	w.HandleMessage("c1", sing)

	frames := drain(a)
	if n := countType(frames, protocol.TypeSing); n != 1 {
		t.Errorf("Expected 1 sing broadcast, got %d", n)
	}
	cdFrame, ok := firstOfType(frames, protocol.TypeCooldown)
	if !ok {
		t.Fatal("Expected a cooldown reply for the second sing")
	}
	var cd protocol.Cooldown
	if err := json.Unmarshal(cdFrame.Data, &cd); err != nil {
		t.Fatalf("Bad cooldown payload: %v", err)
	}
	if cd.Action != "sing" || cd.RemainingMs <= 0 {
		t.Errorf("Expected positive remaining wait for sing, got %+v", cd)
	}
	if got := a.Counters["sing"]; got != 1 {
		t.Errorf("Expected sing counter 1, got %d", got)
	}
}

// TestSingReachesRealmAndGrowsTrust tests the ambient broadcast scenario
func TestSingReachesRealmAndGrowsTrust(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	b := mustOpen(t, w, "c2", "bobby", "genesis")
	far := mustOpen(t, w, "c3", "carol", "ember")
	b.X = 50
	drain(a)
	drain(b)
	drain(far)

	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeSing, protocol.Sing{}))

	if countType(drain(a), protocol.TypeSing) != 1 {
		t.Error("Actor should receive their own sing broadcast")
	}
	if countType(drain(b), protocol.TypeSing) != 1 {
		t.Error("Realm peer should receive the sing broadcast")
	}
	if countType(drain(far), protocol.TypeSing) != 0 {
		t.Error("Sing must not leak into other realms")
	}
	if a.Trust["bobby"] <= 0 || b.Trust["alice"] <= 0 {
		t.Error("Sing should grow trust both ways between nearby sessions")
	}
	if a.XP != actionXP["sing"] {
		t.Errorf("Expected %d XP for the sing, got %d", actionXP["sing"], a.XP)
	}
}

// TestWhisperDeliversToTargetOnly tests direct message routing
func TestWhisperDeliversToTargetOnly(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	b := mustOpen(t, w, "c2", "bobby", "genesis")
	c := mustOpen(t, w, "c3", "carol", "genesis")
	drain(a)
	drain(b)
	drain(c)

	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeWhisper, protocol.Whisper{
		TargetID: "bobby", Text: "psst",
	}))

	bFrames := drain(b)
	env, ok := firstOfType(bFrames, protocol.TypeWhisper)
	if !ok {
		t.Fatal("Target did not receive the whisper")
	}
	var wd protocol.WhisperDelivery
	json.Unmarshal(env.Data, &wd)
	if wd.FromID != "alice" || wd.Text != "psst" {
		t.Errorf("Unexpected whisper payload: %+v", wd)
	}
	if countType(drain(c), protocol.TypeWhisper) != 0 {
		t.Error("Whisper leaked to a bystander")
	}
}

// TestWhisperToMissingTarget tests the not_found error path
func TestWhisperToMissingTarget(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	drain(a)

	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeWhisper, protocol.Whisper{
		TargetID: "ghost", Text: "anyone there",
	}))

	env, ok := firstOfType(drain(a), protocol.TypeError)
	if !ok {
		t.Fatal("Expected an error reply")
	}
	var e protocol.Error
	json.Unmarshal(env.Data, &e)
	if e.Code != protocol.ErrNotFound {
		t.Errorf("Expected code %q, got %q", protocol.ErrNotFound, e.Code)
	}
}

// TestEchoCapacity tests the per-realm echo ceiling
func TestEchoCapacity(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	drain(a)

	// Fill the realm to its ceiling directly; the handler only checks the
	// count.
	w.mu.Lock()
	for i := 0; i < w.limits.MaxEchoesPerRealm; i++ {
		w.addObject(&WorldObject{
			ID: string(rune('a'+i%26)) + string(rune('0'+i/26)), Kind: ObjectEcho, Realm: "genesis",
		})
	}
	w.mu.Unlock()

	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeEcho, protocol.Echo{Text: "one too many"}))

	env, ok := firstOfType(drain(a), protocol.TypeError)
	if !ok {
		t.Fatal("Expected a capacity error")
	}
	var e protocol.Error
	json.Unmarshal(env.Data, &e)
	if e.Code != protocol.ErrCapacity {
		t.Errorf("Expected code %q, got %q", protocol.ErrCapacity, e.Code)
	}
	if got := w.countObjects("genesis", ObjectEcho); got != w.limits.MaxEchoesPerRealm {
		t.Errorf("Echo created past capacity: %d objects", got)
	}
	if a.XP != 0 {
		t.Error("Rejected echo must not award XP")
	}
}

// TestEchoPlantAndIgnite tests planting and engagement bumps
func TestEchoPlantAndIgnite(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	b := mustOpen(t, w, "c2", "bobby", "genesis")
	drain(a)
	drain(b)

	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeEcho, protocol.Echo{
		Text: "remember this place", X: 10, Y: -10,
	}))

	env, ok := firstOfType(drain(b), protocol.TypeEcho)
	if !ok {
		t.Fatal("Realm peer did not see the planted echo")
	}
	var ab protocol.ActionBroadcast
	json.Unmarshal(env.Data, &ab)
	if ab.EchoID == "" {
		t.Fatal("Echo broadcast carries no id")
	}

	w.HandleMessage("c2", protocol.NewEnvelope(protocol.TypeEchoIgnite, protocol.EchoIgnite{
		EchoID: ab.EchoID,
	}))

	w.mu.Lock()
	engagement := w.objects[ab.EchoID].Engagement
	w.mu.Unlock()
	if engagement != 1 {
		t.Errorf("Expected engagement 1 after ignite, got %d", engagement)
	}
	if a.XP != actionXP["echo"] {
		t.Errorf("Expected %d XP for planting, got %d", actionXP["echo"], a.XP)
	}
}

// TestStarLitBatch tests marker creation, relighting, and XP
func TestStarLitBatch(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	drain(a)

	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeStarLit, protocol.StarLit{
		StarIDs: []string{"north", "south"},
	}))

	if got := w.countObjects("genesis", ObjectStar); got != 2 {
		t.Fatalf("Expected 2 stars, got %d", got)
	}
	if a.XP != 2*actionXP["star_lit"] {
		t.Errorf("Expected %d XP, got %d", 2*actionXP["star_lit"], a.XP)
	}

	// Relighting an existing marker bumps engagement instead of creating.
	a.lastAct = map[string]time.Time{}
	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeStarLit, protocol.StarLit{
		StarIDs: []string{"north"},
	}))

	if got := w.countObjects("genesis", ObjectStar); got != 2 {
		t.Errorf("Relight created a duplicate: %d stars", got)
	}
	w.mu.Lock()
	engagement := w.objects["genesis/star/north"].Engagement
	w.mu.Unlock()
	if engagement != 1 {
		t.Errorf("Expected engagement 1 after relight, got %d", engagement)
	}
}

// TestFriendAddRemove tests bidirectional friendship maintenance
func TestFriendAddRemove(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	b := mustOpen(t, w, "c2", "bobby", "genesis")
	drain(a)
	drain(b)

	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeAddFriend, protocol.FriendRequest{
		TargetID: "bobby",
	}))

	if !a.Friends["bobby"] || !b.Friends["alice"] {
		t.Fatal("Friendship should be recorded on both sides when both are online")
	}
	if countType(drain(b), protocol.TypeFriendAdded) != 1 {
		t.Error("Target should be notified of the new friendship")
	}

	a.lastAct = map[string]time.Time{}
	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeRemoveFriend, protocol.FriendRequest{
		TargetID: "bobby",
	}))

	if a.Friends["bobby"] || b.Friends["alice"] {
		t.Error("Removal should clear both sides")
	}
}

// TestTeleportRequiresMutualFriendship tests the policy gate and that a
// rejected teleport leaves position untouched
func TestTeleportRequiresMutualFriendship(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	b := mustOpen(t, w, "c2", "bobby", "genesis")
	b.X, b.Y = 1000, 1000
	drain(a)
	drain(b)

	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeTeleportToFriend, protocol.TeleportRequest{
		TargetID: "bobby",
	}))

	env, ok := firstOfType(drain(a), protocol.TypeError)
	if !ok {
		t.Fatal("Expected a policy error for non-friends")
	}
	var e protocol.Error
	json.Unmarshal(env.Data, &e)
	if e.Code != protocol.ErrNotFriends {
		t.Errorf("Expected code %q, got %q", protocol.ErrNotFriends, e.Code)
	}
	if a.X != 0 || a.Y != 0 {
		t.Error("Rejected teleport must not move the requester")
	}
}

// TestTeleportLandsNearFriend tests a successful teleport's landing band
func TestTeleportLandsNearFriend(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	b := mustOpen(t, w, "c2", "bobby", "genesis")
	b.X, b.Y = 1000, 1000
	a.Friends["bobby"] = true
	b.Friends["alice"] = true
	drain(a)

	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeTeleportToFriend, protocol.TeleportRequest{
		TargetID: "bobby",
	}))

	if _, ok := firstOfType(drain(a), protocol.TypeTeleportSuccess); !ok {
		t.Fatal("Expected teleport_success")
	}
	d := dist(a.X, a.Y, b.X, b.Y)
	if d < 60 || d > 100 {
		t.Errorf("Expected landing 60-100 units from the friend, got %.1f", d)
	}
}

// TestPlayerUpdateClampsAndHops tests coordinate clamping and realm change
func TestPlayerUpdateClampsAndHops(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	b := mustOpen(t, w, "c2", "bobby", "ember")
	drain(a)
	drain(b)

	x, hue := 999999.0, 720.0
	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypePlayerUpdate, protocol.PlayerUpdate{
		X: &x, Hue: &hue, Realm: "ember",
	}))

	if a.X != w.cfg.MaxCoordinate {
		t.Errorf("Expected x clamped to %v, got %v", w.cfg.MaxCoordinate, a.X)
	}
	if a.Hue != 360 {
		t.Errorf("Expected hue clamped to 360, got %v", a.Hue)
	}
	if a.Realm != "ember" {
		t.Fatalf("Expected realm ember, got %s", a.Realm)
	}
	if countType(drain(b), protocol.TypePlayerJoined) != 1 {
		t.Error("New realm should see a join notice")
	}
}

// TestPlayerUpdateRejectsUnknownRealm tests the bad-request path
func TestPlayerUpdateRejectsUnknownRealm(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	drain(a)

	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypePlayerUpdate, protocol.PlayerUpdate{
		Realm: "atlantis",
	}))

	if a.Realm != "genesis" {
		t.Error("Unknown realm must not be applied")
	}
	if _, ok := firstOfType(drain(a), protocol.TypeError); !ok {
		t.Error("Expected an error reply for the unknown realm")
	}
}

// TestSpeakingGrowsTrustWhileActive tests the audio presence nudge
func TestSpeakingGrowsTrustWhileActive(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	b := mustOpen(t, w, "c2", "bobby", "genesis")
	b.X = 100

	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeSpeaking, protocol.Speaking{Active: true}))

	if !a.Speaking {
		t.Error("Speaking flag should be set")
	}
	if a.Trust["bobby"] <= 0 {
		t.Error("Active speaking should nudge trust toward nearby sessions")
	}

	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeSpeaking, protocol.Speaking{Active: false}))
	if a.Speaking {
		t.Error("Speaking flag should clear")
	}
}

// TestVoiceSignalRelay tests opaque payload forwarding
func TestVoiceSignalRelay(t *testing.T) {
	w := newTestWorld()
	mustOpen(t, w, "c1", "alice", "genesis")
	b := mustOpen(t, w, "c2", "bobby", "genesis")
	drain(b)

	signal := json.RawMessage(`{"sdp":"offer"}`)
	w.HandleMessage("c1", protocol.NewEnvelope(protocol.TypeVoiceSignal, protocol.VoiceSignal{
		TargetID: "bobby", Signal: signal,
	}))

	env, ok := firstOfType(drain(b), protocol.TypeVoiceSignal)
	if !ok {
		t.Fatal("Target did not receive the relay")
	}
	var relay protocol.VoiceRelay
	json.Unmarshal(env.Data, &relay)
	if string(relay.Signal) != string(signal) {
		t.Errorf("Signal altered in flight: %s", relay.Signal)
	}
	if relay.FromID != "alice" {
		t.Errorf("Expected sender alice, got %s", relay.FromID)
	}
}

// TestMalformedPayloadDropped tests that a bad payload costs nothing
func TestMalformedPayloadDropped(t *testing.T) {
	w := newTestWorld()
	a := mustOpen(t, w, "c1", "alice", "genesis")
	drain(a)

	w.HandleMessage("c1", protocol.Envelope{
		Type: protocol.TypeWhisper,
		Data: json.RawMessage(`{"targetId": 42}`),
	})

	if len(drain(a)) != 0 {
		t.Error("Malformed payload should be dropped without a reply")
	}
	if a.XP != 0 {
		t.Error("Malformed payload must not award XP")
	}
}
