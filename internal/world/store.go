package world

import "time"

// PlayerRecord is the durable slice of a session.
type PlayerRecord struct {
	ID       string
	Name     string
	Realm    string
	X, Y     float64
	Hue      float64
	XP       int
	Counters map[string]int64
}

// ObjectRecord is the durable form of a world object.
type ObjectRecord struct {
	ID        string
	Kind      string
	Realm     string
	OwnerID   string
	Content   string
	X, Y      float64
	CreatedAt time.Time
}

// Store is the persistence collaborator. Every write is best-effort from
// the simulation's point of view: implementations must not block the caller
// beyond queueing, and failures are theirs to log. Reads are only issued
// from connection handshakes, never from the tick or action handlers.
type Store interface {
	LoadOrCreateSession(id string) (PlayerRecord, error)
	SaveSession(rec PlayerRecord)
	AppendWorldObject(rec ObjectRecord)
	IncrementCounters(id string, deltas map[string]int64)
	BumpEngagement(objectID string)
	AddFriendEdge(a, b, label string)
	RemoveFriendEdge(a, b string)
	ListFriends(id string) ([]string, error)
}

// NopStore discards everything; used by tests and by a server started
// without a database.
type NopStore struct{}

func (NopStore) LoadOrCreateSession(id string) (PlayerRecord, error) {
	return PlayerRecord{ID: id}, nil
}
func (NopStore) SaveSession(PlayerRecord)                   {}
func (NopStore) AppendWorldObject(ObjectRecord)             {}
func (NopStore) IncrementCounters(string, map[string]int64) {}
func (NopStore) BumpEngagement(string)                      {}
func (NopStore) AddFriendEdge(string, string, string)       {}
func (NopStore) RemoveFriendEdge(string, string)            {}
func (NopStore) ListFriends(string) ([]string, error)       { return nil, nil }
