package world

import (
	"encoding/json"
	"log"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"lanternfall/internal/protocol"
)

// HandleMessage is the single entry point for inbound frames. It dispatches
// by message type, holding the world lock for the whole handler so effects
// apply in arrival order. Malformed payloads drop the frame, never the
// connection.
func (w *World) HandleMessage(connID string, env protocol.Envelope) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.sessions[connID]
	if !ok {
		return
	}
	s.LastActive = time.Now()
	s.probed = false

	switch env.Type {
	case protocol.TypePing:
		s.send(protocol.NewEnvelope(protocol.TypePong, nil))
	case protocol.TypePlayerUpdate:
		var p protocol.PlayerUpdate
		if decode(env.Data, &p) {
			w.handlePlayerUpdate(s, p)
		}
	case protocol.TypeWhisper:
		var p protocol.Whisper
		if decode(env.Data, &p) {
			w.handleWhisper(s, p)
		}
	case protocol.TypeSing:
		var p protocol.Sing
		decode(env.Data, &p)
		w.handleAmbient(s, "sing", sanitize(p.Melody, maxEmoteLen))
	case protocol.TypePulse:
		var p protocol.Pulse
		decode(env.Data, &p)
		w.handleAmbient(s, "pulse", "")
	case protocol.TypeEmote:
		var p protocol.Emote
		if decode(env.Data, &p) {
			w.handleAmbient(s, "emote", sanitize(p.Gesture, maxEmoteLen))
		}
	case protocol.TypeEcho:
		var p protocol.Echo
		if decode(env.Data, &p) {
			w.handleEcho(s, p)
		}
	case protocol.TypeEchoIgnite:
		var p protocol.EchoIgnite
		if decode(env.Data, &p) {
			w.handleEchoIgnite(s, p)
		}
	case protocol.TypeStarLit:
		var p protocol.StarLit
		if decode(env.Data, &p) {
			w.handleStarLit(s, p)
		}
	case protocol.TypeAddFriend:
		var p protocol.FriendRequest
		if decode(env.Data, &p) {
			w.handleFriend(s, p.TargetID, true)
		}
	case protocol.TypeRemoveFriend:
		var p protocol.FriendRequest
		if decode(env.Data, &p) {
			w.handleFriend(s, p.TargetID, false)
		}
	case protocol.TypeTeleportToFriend:
		var p protocol.TeleportRequest
		if decode(env.Data, &p) {
			w.handleTeleport(s, p)
		}
	case protocol.TypeVoiceSignal:
		var p protocol.VoiceSignal
		if decode(env.Data, &p) {
			w.handleVoiceSignal(s, p)
		}
	case protocol.TypeSpeaking:
		var p protocol.Speaking
		if decode(env.Data, &p) {
			w.handleSpeaking(s, p)
		}
	default:
		// Unknown kinds are dropped quietly; clients may be newer than us.
	}
}

func decode(raw json.RawMessage, v interface{}) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

// checkCooldown enforces the per-kind minimum interval. On violation it
// replies with the remaining wait and reports false; the handler must
// perform no mutation. On success the ledger is stamped immediately.
func (w *World) checkCooldown(s *Session, kind string) bool {
	cd, ok := actionCooldowns[kind]
	if !ok {
		return true
	}
	if last, ok := s.lastAct[kind]; ok {
		if remaining := cd - time.Since(last); remaining > 0 {
			s.send(protocol.NewEnvelope(protocol.TypeCooldown, protocol.Cooldown{
				Action:      kind,
				RemainingMs: remaining.Milliseconds(),
			}))
			return false
		}
	}
	s.lastAct[kind] = time.Now()
	return true
}

// awardXP applies a flat reward, recomputes the level from the threshold
// table, and notifies the session. Level only ever moves up.
func (w *World) awardXP(s *Session, amount int) {
	if amount <= 0 {
		return
	}
	s.XP += amount
	s.Dirty = true
	newLevel := LevelForXP(s.XP)
	leveled := newLevel > s.Level
	if leveled {
		s.Level = newLevel
		log.Printf("🌟 %s reached level %d", s.ID, newLevel)
	}
	s.send(protocol.NewEnvelope(protocol.TypeXPGain, protocol.XPGain{
		Amount:    amount,
		Total:     s.XP,
		Level:     s.Level,
		LeveledUp: leveled,
	}))
}

// score applies the flat per-kind reward and mirrors the counter bump.
func (w *World) score(s *Session, kind string) {
	s.Counters[kind]++
	s.Dirty = true
	w.store.IncrementCounters(s.ID, map[string]int64{kind: 1})
	w.awardXP(s, actionXP[kind])
	if w.onAction != nil {
		w.onAction(kind)
	}
}

// notifyWisps lets every wisp in the actor's realm feel a nearby action.
func (w *World) notifyWisps(actor *Session, kind string) {
	for _, wisp := range w.wisps {
		if wisp.Realm != actor.Realm {
			continue
		}
		wisp.React(kind, dist(actor.X, actor.Y, wisp.X, wisp.Y), actor.ID, w.rng)
	}
}

func (w *World) sendError(s *Session, code, msg string) {
	s.send(protocol.NewEnvelope(protocol.TypeError, protocol.Error{Code: code, Message: msg}))
}

// handlePlayerUpdate applies position/name/hue changes and realm hops.
// Movement carries no cooldown or reward.
func (w *World) handlePlayerUpdate(s *Session, p protocol.PlayerUpdate) {
	if p.X != nil {
		s.X = clamp(*p.X, -w.cfg.MaxCoordinate, w.cfg.MaxCoordinate)
		s.Dirty = true
	}
	if p.Y != nil {
		s.Y = clamp(*p.Y, -w.cfg.MaxCoordinate, w.cfg.MaxCoordinate)
		s.Dirty = true
	}
	if p.Name != "" {
		if name := sanitize(p.Name, maxNameLen); name != "" {
			s.Name = name
			s.Dirty = true
		}
	}
	if p.Hue != nil {
		s.Hue = clamp(*p.Hue, 0, 360)
		s.Dirty = true
	}
	if p.Realm != "" && p.Realm != s.Realm {
		if !w.realms.Known(p.Realm) {
			w.sendError(s, protocol.ErrBadRequest, "unknown realm")
			return
		}
		old := s.Realm
		w.broadcastRealm(old, protocol.NewEnvelope(protocol.TypePlayerLeave, protocol.PlayerLeave{
			ID: s.ID, Name: s.Name, Realm: old,
		}), s.ConnID)
		s.Realm = p.Realm
		s.Dirty = true
		w.broadcastRealm(p.Realm, protocol.NewEnvelope(protocol.TypePlayerJoined, protocol.PlayerJoined{
			ID: s.ID, Name: s.Name, Realm: p.Realm,
		}), s.ConnID)
		log.Printf("🚪 %s crossed from %s to %s", s.ID, old, p.Realm)
	}
}

// handleWhisper delivers a direct message to exactly one session.
func (w *World) handleWhisper(s *Session, p protocol.Whisper) {
	text := sanitize(p.Text, maxWhisperLen)
	if text == "" || p.TargetID == "" {
		w.sendError(s, protocol.ErrBadRequest, "empty whisper")
		return
	}
	target, ok := w.byIdentity[p.TargetID]
	if !ok {
		w.sendError(s, protocol.ErrNotFound, "target not connected")
		return
	}
	if !w.checkCooldown(s, "whisper") {
		return
	}

	target.send(protocol.NewEnvelope(protocol.TypeWhisper, protocol.WhisperDelivery{
		FromID:   s.ID,
		FromName: s.Name,
		Text:     text,
	}))
	w.score(s, "whisper")
}

// handleAmbient covers sing, pulse, and emote: realm-wide broadcast
// including the actor, proximity-weighted trust, wisp reactions.
func (w *World) handleAmbient(s *Session, kind, detail string) {
	if kind == "emote" && detail == "" {
		w.sendError(s, protocol.ErrBadRequest, "empty gesture")
		return
	}
	if !w.checkCooldown(s, kind) {
		return
	}

	w.broadcastRealm(s.Realm, protocol.NewEnvelope(kind, protocol.ActionBroadcast{
		Action:  kind,
		ActorID: s.ID,
		Actor:   s.Name,
		X:       s.X,
		Y:       s.Y,
		Detail:  detail,
	}))

	if gain, ok := trustGains[kind]; ok {
		w.strengthenNearby(s, gain.Base, gain.Radius)
	}
	w.notifyWisps(s, kind)
	w.score(s, kind)
}

// handleEcho plants a message, subject to the realm's capacity ceiling.
func (w *World) handleEcho(s *Session, p protocol.Echo) {
	text := sanitize(p.Text, maxEchoLen)
	if text == "" {
		w.sendError(s, protocol.ErrBadRequest, "empty echo")
		return
	}
	if w.countObjects(s.Realm, ObjectEcho) >= w.limits.MaxEchoesPerRealm {
		w.sendError(s, protocol.ErrCapacity, "realm echo capacity reached")
		return
	}
	if !w.checkCooldown(s, "echo") {
		return
	}

	obj := &WorldObject{
		ID:        uuid.NewString(),
		Kind:      ObjectEcho,
		Realm:     s.Realm,
		OwnerID:   s.ID,
		OwnerName: s.Name,
		Content:   text,
		X:         clamp(p.X, -w.cfg.MaxCoordinate, w.cfg.MaxCoordinate),
		Y:         clamp(p.Y, -w.cfg.MaxCoordinate, w.cfg.MaxCoordinate),
		CreatedAt: time.Now(),
	}
	w.addObject(obj)

	w.broadcastRealm(s.Realm, protocol.NewEnvelope(protocol.TypeEcho, protocol.ActionBroadcast{
		Action:  "echo",
		ActorID: s.ID,
		Actor:   s.Name,
		X:       obj.X,
		Y:       obj.Y,
		Detail:  text,
		EchoID:  obj.ID,
	}))
	w.notifyWisps(s, "echo")
	w.score(s, "echo")
}

// handleEchoIgnite bumps the engagement counter on an existing echo.
func (w *World) handleEchoIgnite(s *Session, p protocol.EchoIgnite) {
	obj, ok := w.objects[p.EchoID]
	if !ok || obj.Kind != ObjectEcho || obj.Realm != s.Realm {
		w.sendError(s, protocol.ErrNotFound, "no such echo")
		return
	}
	if !w.checkCooldown(s, "echo_ignite") {
		return
	}

	obj.Engagement++
	w.store.BumpEngagement(obj.ID)

	w.broadcastRealm(s.Realm, protocol.NewEnvelope(protocol.TypeEchoIgnite, protocol.ActionBroadcast{
		Action:  "echo_ignite",
		ActorID: s.ID,
		Actor:   s.Name,
		X:       obj.X,
		Y:       obj.Y,
		EchoID:  obj.ID,
	}))
	w.score(s, "echo_ignite")
}

// handleStarLit lights a batch of markers. Lighting an already-lit marker
// bumps its engagement; only genuinely new markers count against capacity.
func (w *World) handleStarLit(s *Session, p protocol.StarLit) {
	if len(p.StarIDs) == 0 {
		return
	}
	if !w.checkCooldown(s, "star_lit") {
		return
	}
	if len(p.StarIDs) > maxStarBatch {
		p.StarIDs = p.StarIDs[:maxStarBatch]
	}

	lit := 0
	for _, raw := range p.StarIDs {
		id := sanitize(raw, maxStarIDLen)
		if id == "" {
			continue
		}
		key := s.Realm + "/star/" + id
		if obj, ok := w.objects[key]; ok {
			obj.Engagement++
			w.store.BumpEngagement(obj.ID)
			continue
		}
		if w.countObjects(s.Realm, ObjectStar) >= w.limits.MaxStarsPerRealm {
			w.sendError(s, protocol.ErrCapacity, "realm star capacity reached")
			break
		}
		w.addObject(&WorldObject{
			ID:        key,
			Kind:      ObjectStar,
			Realm:     s.Realm,
			OwnerID:   s.ID,
			OwnerName: s.Name,
			Content:   id,
			CreatedAt: time.Now(),
		})
		lit++
	}
	if lit == 0 {
		return
	}

	w.broadcastRealm(s.Realm, protocol.NewEnvelope(protocol.TypeStarLit, protocol.ActionBroadcast{
		Action:  "star_lit",
		ActorID: s.ID,
		Actor:   s.Name,
	}))
	s.Counters["star_lit"] += int64(lit)
	s.Dirty = true
	w.store.IncrementCounters(s.ID, map[string]int64{"star_lit": int64(lit)})
	w.awardXP(s, actionXP["star_lit"]*lit)
}

// handleFriend applies a bidirectional friendship change: both parties'
// sets, the durable edge, and notices to whoever is connected.
func (w *World) handleFriend(s *Session, targetID string, add bool) {
	if !ValidIdentity(targetID) || targetID == s.ID {
		w.sendError(s, protocol.ErrBadRequest, "invalid friend target")
		return
	}
	if !w.checkCooldown(s, "friend") {
		return
	}

	target := w.byIdentity[targetID] // may be offline; the edge persists anyway
	targetName := targetID
	if target != nil {
		targetName = target.Name
	}

	if add {
		s.Friends[targetID] = true
		w.store.AddFriendEdge(s.ID, targetID, "friend")
		s.send(protocol.NewEnvelope(protocol.TypeFriendAdded, protocol.FriendNotice{
			FriendID: targetID, FriendName: targetName,
		}))
		if target != nil {
			target.Friends[s.ID] = true
			target.send(protocol.NewEnvelope(protocol.TypeFriendAdded, protocol.FriendNotice{
				FriendID: s.ID, FriendName: s.Name,
			}))
		}
		w.score(s, "friend")
	} else {
		delete(s.Friends, targetID)
		w.store.RemoveFriendEdge(s.ID, targetID)
		s.send(protocol.NewEnvelope(protocol.TypeFriendRemoved, protocol.FriendNotice{
			FriendID: targetID, FriendName: targetName,
		}))
		if target != nil {
			delete(target.Friends, s.ID)
			target.send(protocol.NewEnvelope(protocol.TypeFriendRemoved, protocol.FriendNotice{
				FriendID: s.ID, FriendName: s.Name,
			}))
		}
		s.Dirty = true
	}
}

// handleTeleport relocates the requester near (never onto) a mutual friend
// in the same realm.
func (w *World) handleTeleport(s *Session, p protocol.TeleportRequest) {
	target, ok := w.byIdentity[p.TargetID]
	if !ok {
		w.sendError(s, protocol.ErrNotFound, "friend not connected")
		return
	}
	if !s.Friends[target.ID] || !target.Friends[s.ID] {
		w.sendError(s, protocol.ErrNotFriends, "mutual friendship required")
		return
	}
	if target.Realm != s.Realm {
		w.sendError(s, protocol.ErrNotFriends, "friend is in another realm")
		return
	}
	if !w.checkCooldown(s, "teleport") {
		return
	}

	bearing := w.rng.Float64() * 2 * math.Pi
	offset := 60 + w.rng.Float64()*40
	s.X = clamp(target.X+math.Cos(bearing)*offset, -w.cfg.MaxCoordinate, w.cfg.MaxCoordinate)
	s.Y = clamp(target.Y+math.Sin(bearing)*offset, -w.cfg.MaxCoordinate, w.cfg.MaxCoordinate)
	s.Dirty = true

	s.send(protocol.NewEnvelope(protocol.TypeTeleportSuccess, protocol.TeleportSuccess{
		TargetID: target.ID,
		X:        s.X,
		Y:        s.Y,
	}))
	log.Printf("🫧 %s teleported to %s", s.ID, target.ID)
}

// handleVoiceSignal forwards an opaque relay payload untouched to the named
// target within the same realm.
func (w *World) handleVoiceSignal(s *Session, p protocol.VoiceSignal) {
	target, ok := w.byIdentity[p.TargetID]
	if !ok || target.Realm != s.Realm {
		w.sendError(s, protocol.ErrNotFound, "target not reachable")
		return
	}
	target.send(protocol.NewEnvelope(protocol.TypeVoiceSignal, protocol.VoiceRelay{
		FromID: s.ID,
		Signal: p.Signal,
	}))
}

// handleSpeaking flips the transient audio flag and, while active, nudges
// trust with nearby sessions.
func (w *World) handleSpeaking(s *Session, p protocol.Speaking) {
	s.Speaking = p.Active
	if !p.Active {
		return
	}
	if !w.checkCooldown(s, "speaking") {
		return
	}
	gain := trustGains["speaking"]
	w.strengthenNearby(s, gain.Base, gain.Radius)
}

// sanitize trims, strips control characters, removes tag segments
// ("<...>", contents included), and caps the result at limit runes.
/// Idempotent: the output contains no '<', so a second pass is a no-op.
func sanitize(text string, limit int) string {
	var b strings.Builder
	b.Grow(len(text))
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case inTag:
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	runes := []rune(out)
	if len(runes) > limit {
		out = strings.TrimSpace(string(runes[:limit]))
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
