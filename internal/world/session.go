package world

import (
	"errors"
	"log"
	"regexp"
	"time"

	"lanternfall/internal/protocol"
)

// Session is the server-side authoritative state for one connected player.
type Session struct {
	ConnID string // one per websocket connection
	ID     string // stable player identity
	Name   string
	Realm  string
	X, Y   float64
	Hue    float64

	XP    int
	Level int

	Counters map[string]int64     // interactions performed, by action kind
	Trust    TrustMap             // edges toward sessions and wisps
	Friends  map[string]bool      // mutual friendship ids
	lastAct  map[string]time.Time // cooldown ledger, by action kind

	Speaking bool // transient: currently broadcasting audio

	Dirty      bool // unsaved mutations
	LastActive time.Time
	probed     bool // liveness probe sent, awaiting proof of life

	outbox chan protocol.Envelope
	closed bool

	// Transport hooks, set by the connection layer. Probe asks the peer for
	// a sign of life; Hangup tears the underlying connection down.
	Probe  func()
	Hangup func()
}

// Handshake rejection errors. The transport maps these to distinct close
// codes; they are never silently swallowed.
var (
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrUnknownRealm    = errors.New("unknown realm")
	ErrServerFull      = errors.New("server full")
)

// identityPattern is the only accepted identity shape: 3-24 word characters
// or dashes. Anything else is rejected at handshake time.
var identityPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,24}$`)

// ValidIdentity reports whether id passes the handshake identity check.
func ValidIdentity(id string) bool {
	return identityPattern.MatchString(id)
}

// OpenSession validates the claimed identity and realm, loads the durable
// record, and installs the session. A missing realm is passively corrected
// to the default; an unrecognized one is rejected. This is the only place
// sessions are created.
func (w *World) OpenSession(connID, identity, realm string) (*Session, error) {
	if !ValidIdentity(identity) {
		return nil, ErrInvalidIdentity
	}
	if realm == "" {
		realm = w.realms.Default
	} else if !w.realms.Known(realm) {
		return nil, ErrUnknownRealm
	}

	// Durable load happens before the lock; the handshake may block, the
	// simulation must not.
	rec, err := w.store.LoadOrCreateSession(identity)
	if err != nil {
		log.Printf("⚠️ load session %s: %v (starting fresh)", identity, err)
		rec = PlayerRecord{ID: identity}
	}
	friends, err := w.store.ListFriends(identity)
	if err != nil {
		log.Printf("⚠️ list friends %s: %v", identity, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.sessions) >= w.limits.MaxSessions {
		return nil, ErrServerFull
	}

	// A reconnect under the same identity replaces the old connection.
	if old, ok := w.byIdentity[identity]; ok {
		log.Printf("🔁 %s reconnected, replacing stale connection", identity)
		w.closeLocked(old, false)
	}

	name := rec.Name
	if name == "" {
		name = identity
	}
	s := &Session{
		ConnID:     connID,
		ID:         identity,
		Name:       name,
		Realm:      realm,
		X:          rec.X,
		Y:          rec.Y,
		Hue:        rec.Hue,
		XP:         rec.XP,
		Level:      LevelForXP(rec.XP),
		Counters:   rec.Counters,
		Trust:      make(TrustMap),
		Friends:    make(map[string]bool, len(friends)),
		lastAct:    make(map[string]time.Time),
		LastActive: time.Now(),
		outbox:     make(chan protocol.Envelope, w.limits.OutboxDepth),
	}
	if s.Counters == nil {
		s.Counters = make(map[string]int64)
	}
	for _, f := range friends {
		s.Friends[f] = true
	}

	w.sessions[connID] = s
	w.byIdentity[identity] = s

	w.broadcastRealm(realm, protocol.NewEnvelope(protocol.TypePlayerJoined, protocol.PlayerJoined{
		ID: s.ID, Name: s.Name, Realm: realm,
	}), s.ConnID)

	log.Printf("🌱 %s joined realm %s (%d sessions)", s.ID, realm, len(w.sessions))
	return s, nil
}

// CloseSession flushes and removes the session for connID. Safe to call for
// connections that never completed a handshake or were already swept.
func (w *World) CloseSession(connID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.sessions[connID]; ok {
		w.closeLocked(s, true)
	}
}

// closeLocked is the single teardown path: flush, departure notice, removal.
func (w *World) closeLocked(s *Session, announce bool) {
	if s.closed {
		return
	}
	s.closed = true

	if s.Dirty {
		w.store.SaveSession(w.recordFor(s))
		s.Dirty = false
	}

	delete(w.sessions, s.ConnID)
	if w.byIdentity[s.ID] == s {
		delete(w.byIdentity, s.ID)
	}
	close(s.outbox)
	if s.Hangup != nil {
		go s.Hangup()
	}

	if announce {
		w.broadcastRealm(s.Realm, protocol.NewEnvelope(protocol.TypePlayerLeave, protocol.PlayerLeave{
			ID: s.ID, Name: s.Name, Realm: s.Realm,
		}))
		log.Printf("🍂 %s left realm %s (%d sessions)", s.ID, s.Realm, len(w.sessions))
	}
}

// sweepStale probes sessions idle past the timeout and closes the ones that
// stayed silent after a probe. Runs on the tick goroutine under the lock.
func (w *World) sweepStale(now time.Time) {
	timeout := time.Duration(w.cfg.SessionTimeoutSec) * time.Second
	for _, s := range w.sessions {
		if now.Sub(s.LastActive) < timeout {
			continue
		}
		if !s.probed {
			s.probed = true
			if s.Probe != nil {
				go s.Probe()
			}
			continue
		}
		log.Printf("⏰ sweeping stale session %s (idle %s)", s.ID, now.Sub(s.LastActive).Round(time.Second))
		w.closeLocked(s, true)
	}
}

// Touch records activity on the session owning connID and clears any
// outstanding liveness probe.
func (w *World) Touch(connID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s, ok := w.sessions[connID]; ok {
		s.LastActive = time.Now()
		s.probed = false
	}
}

// Outbox exposes the session's outbound frame stream to the transport.
func (s *Session) Outbox() <-chan protocol.Envelope {
	return s.outbox
}

// send queues a frame, silently dropping it if the session's outbox is
// full. A slow reader loses frames rather than stalling the simulation.
func (s *Session) send(env protocol.Envelope) {
	if s.closed {
		return
	}
	select {
	case s.outbox <- env:
	default:
	}
}

// recordFor projects the durable slice of a session.
func (w *World) recordFor(s *Session) PlayerRecord {
	counters := make(map[string]int64, len(s.Counters))
	for k, v := range s.Counters {
		counters[k] = v
	}
	return PlayerRecord{
		ID:       s.ID,
		Name:     s.Name,
		Realm:    s.Realm,
		X:        s.X,
		Y:        s.Y,
		Hue:      s.Hue,
		XP:       s.XP,
		Counters: counters,
	}
}
