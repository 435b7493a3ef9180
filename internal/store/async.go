package store

import (
	"log"
	"sync/atomic"

	"lanternfall/internal/world"
)

// Async adapts DB to the simulation's fire-and-forget write contract.
// Writes are queued to a single writer goroutine; a full queue drops the
// job rather than stall the tick. Reads (handshake-time loads) go straight
// through.
var _ world.Store = (*Async)(nil)

type Async struct {
	db      *DB
	jobs    chan func()
	done    chan struct{}
	dropped atomic.Uint64

	// onError, when set, observes each failed write (metrics hook).
	onError func()
}

// NewAsync starts the writer goroutine with the given queue depth.
func NewAsync(db *DB, depth int) *Async {
	if depth <= 0 {
		depth = 256
	}
	a := &Async{
		db:   db,
		jobs: make(chan func(), depth),
		done: make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for job := range a.jobs {
		job()
	}
}

// Close drains pending writes, stops the writer, and closes the database.
func (a *Async) Close() error {
	close(a.jobs)
	<-a.done
	if n := a.dropped.Load(); n > 0 {
		log.Printf("⚠️ store: %d writes dropped under backpressure", n)
	}
	return a.db.Close()
}

// Dropped reports how many writes were discarded due to a full queue.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

func (a *Async) enqueue(job func()) {
	select {
	case a.jobs <- job:
	default:
		a.dropped.Add(1)
	}
}

// SetErrorHook installs a write-failure hook. Call before handing the
// store to the world.
func (a *Async) SetErrorHook(fn func()) {
	a.onError = fn
}

func (a *Async) logErr(op string, err error) {
	if err != nil {
		log.Printf("⚠️ store: %s failed: %v", op, err)
		if a.onError != nil {
			a.onError()
		}
	}
}

// LoadOrCreateSession blocks; it is only called at connection handshake.
func (a *Async) LoadOrCreateSession(id string) (world.PlayerRecord, error) {
	return a.db.LoadOrCreatePlayer(id)
}

// ListFriends blocks; it is only called at connection handshake.
func (a *Async) ListFriends(id string) ([]string, error) {
	return a.db.ListFriends(id)
}

func (a *Async) SaveSession(rec world.PlayerRecord) {
	a.enqueue(func() { a.logErr("save session", a.db.SavePlayer(rec)) })
}

func (a *Async) AppendWorldObject(rec world.ObjectRecord) {
	a.enqueue(func() { a.logErr("append object", a.db.InsertObject(rec)) })
}

func (a *Async) IncrementCounters(id string, deltas map[string]int64) {
	a.enqueue(func() { a.logErr("increment counters", a.db.AddCounters(id, deltas)) })
}

func (a *Async) BumpEngagement(objectID string) {
	a.enqueue(func() { a.logErr("bump engagement", a.db.BumpEngagement(objectID)) })
}

func (a *Async) AddFriendEdge(x, y, label string) {
	a.enqueue(func() { a.logErr("add friend", a.db.AddFriend(x, y, label)) })
}

func (a *Async) RemoveFriendEdge(x, y string) {
	a.enqueue(func() { a.logErr("remove friend", a.db.RemoveFriend(x, y)) })
}
