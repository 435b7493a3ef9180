// Package world is the authoritative simulation core: it owns every
// session, wisp, trust edge, and world object, advances them on a fixed
// clock, and emits per-viewer snapshots. All mutation - tick and inbound
// actions alike - is serialized under a single mutex so effects apply in
// message-arrival order.
package world

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"lanternfall/internal/config"
	"lanternfall/internal/protocol"
)

// World is the simulation context, constructed once at startup and passed
// explicitly to everything that needs it. There is no ambient state.
type World struct {
	mu sync.Mutex

	cfg    config.WorldConfig
	limits config.Limits
	realms config.RealmCatalog
	store  Store

	sessions   map[string]*Session // keyed by connection id
	byIdentity map[string]*Session // keyed by stable identity
	wisps      map[string]*Wisp
	objects    map[string]*WorldObject

	rng     *rand.Rand
	wispSeq uint64

	tickCount uint64
	running   bool
	ticker    *time.Ticker
	stopChan  chan struct{}

	// onTick, when set, observes each tick's duration (metrics hook).
	onTick func(d time.Duration, sessions, wisps int)

	// onAction, when set, observes each accepted action by kind.
	onAction func(kind string)
}

// Options carries the collaborators a World needs.
type Options struct {
	Config config.WorldConfig
	Limits config.Limits
	Realms config.RealmCatalog
	Store  Store
	Seed   int64 // 0 means time-seeded
}

// New constructs a stopped World.
func New(opts Options) *World {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	st := opts.Store
	if st == nil {
		st = NopStore{}
	}
	return &World{
		cfg:        opts.Config,
		limits:     opts.Limits,
		realms:     opts.Realms,
		store:      st,
		sessions:   make(map[string]*Session),
		byIdentity: make(map[string]*Session),
		wisps:      make(map[string]*Wisp),
		objects:    make(map[string]*WorldObject),
		rng:        rand.New(rand.NewSource(seed)),
		stopChan:   make(chan struct{}),
	}
}

// SetTickObserver installs a tick-duration hook. Call before Start.
func (w *World) SetTickObserver(fn func(d time.Duration, sessions, wisps int)) {
	w.onTick = fn
}

// SetActionObserver installs a per-action hook. Call before Start.
func (w *World) SetActionObserver(fn func(kind string)) {
	w.onAction = fn
}

// Start begins the simulation loop.
func (w *World) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.ticker = time.NewTicker(time.Second / time.Duration(w.cfg.TickRate))

	go func() {
		for {
			select {
			case <-w.ticker.C:
				w.tick()
			case <-w.stopChan:
				return
			}
		}
	}()

	log.Printf("🕯️ world started at %d TPS (%d realms)", w.cfg.TickRate, len(w.realms.Realms))
}

// Stop halts the simulation loop and flushes every dirty session.
func (w *World) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	if w.ticker != nil {
		w.ticker.Stop()
	}
	close(w.stopChan)

	for _, s := range w.sessions {
		if s.Dirty {
			w.store.SaveSession(w.recordFor(s))
			s.Dirty = false
		}
	}
	log.Println("🛑 world stopped")
}

// tick advances the whole simulation one step. Ordering matters:
// population control before broadcast so spawns and despawns land in the
// same snapshot, and decay before gravity so gravity reads this tick's
// trust values.
func (w *World) tick() {
	start := time.Now()

	w.mu.Lock()
	w.tickCount++

	w.populationControl()
	w.decayAllTrust()

	// Group sessions by realm once; the wisp update and the broadcaster
	// both consume the same lists.
	byRealm := make(map[string][]*Session, len(w.realms.Realms))
	for _, s := range w.sessions {
		byRealm[s.Realm] = append(byRealm[s.Realm], s)
	}

	for _, wisp := range w.wisps {
		wisp.update(byRealm[wisp.Realm], w.rng, w.cfg.SoftBoundary)
		wisp.applyGravity(byRealm[wisp.Realm])
	}

	// Periodic flush of dirty sessions, staggered to the sweep cadence.
	sweepTicks := uint64(w.cfg.SweepIntervalSec * w.cfg.TickRate)
	if sweepTicks > 0 && w.tickCount%sweepTicks == 0 {
		w.sweepStale(start)
		for _, s := range w.sessions {
			if s.Dirty {
				w.store.SaveSession(w.recordFor(s))
				s.Dirty = false
			}
		}
	}

	w.broadcastSnapshots(byRealm)

	sessions, wisps := len(w.sessions), len(w.wisps)
	w.mu.Unlock()

	if w.onTick != nil {
		w.onTick(time.Since(start), sessions, wisps)
	}
}

// broadcastRealm fans an envelope to every session in realm, skipping the
// connection ids listed in except. Called under the lock.
func (w *World) broadcastRealm(realm string, env protocol.Envelope, except ...string) {
	for _, s := range w.sessions {
		if s.Realm != realm {
			continue
		}
		skip := false
		for _, ex := range except {
			if s.ConnID == ex {
				skip = true
				break
			}
		}
		if !skip {
			s.send(env)
		}
	}
}

// notableConnection emits the one-shot threshold event and its reward to
// the session whose edge just crossed. Called under the lock.
func (w *World) notableConnection(owner *Session, targetID, targetName string) {
	owner.send(protocol.NewEnvelope(protocol.TypeConnectionMade, protocol.ConnectionMade{
		TargetID:   targetID,
		TargetName: targetName,
		Trust:      owner.Trust[targetID],
	}))
	w.awardXP(owner, notableConnectionXP)
	log.Printf("🤝 %s formed a notable connection with %s", owner.ID, targetID)
}

func (w *World) nextWispID() uint64 {
	w.wispSeq++
	return w.wispSeq
}

// Stats is a coarse census for the status endpoint.
type Stats struct {
	Tick     uint64         `json:"tick"`
	Sessions int            `json:"sessions"`
	Wisps    int            `json:"wisps"`
	Objects  int            `json:"objects"`
	Realms   map[string]int `json:"realms"`
}

// Snapshot-free census used by /api/status.
func (w *World) CollectStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	realms := make(map[string]int, len(w.realms.Realms))
	for _, name := range w.realms.Names() {
		realms[name] = 0
	}
	for _, s := range w.sessions {
		realms[s.Realm]++
	}
	return Stats{
		Tick:     w.tickCount,
		Sessions: len(w.sessions),
		Wisps:    len(w.wisps),
		Objects:  len(w.objects),
		Realms:   realms,
	}
}
