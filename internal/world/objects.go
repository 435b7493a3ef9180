package world

import "time"

// World object kinds.
const (
	ObjectEcho = "echo" // planted message
	ObjectStar = "star" // lit marker
)

// WorldObject is a durable, realm-scoped artifact created by a player
// action. Append-only: after creation only the engagement counter moves,
// and only upward.
type WorldObject struct {
	ID         string
	Kind       string
	Realm      string
	OwnerID    string
	OwnerName  string
	Content    string
	X, Y       float64
	Engagement int64
	CreatedAt  time.Time
}

// countObjects tallies live objects of kind in realm. Linear scan; realms
// hold at most a few hundred objects by the capacity ceilings.
func (w *World) countObjects(realm, kind string) int {
	n := 0
	for _, obj := range w.objects {
		if obj.Realm == realm && obj.Kind == kind {
			n++
		}
	}
	return n
}

// objectsInRealm collects live objects of kind in realm, insertion order
// not guaranteed.
func (w *World) objectsInRealm(realm, kind string) []*WorldObject {
	var out []*WorldObject
	for _, obj := range w.objects {
		if obj.Realm == realm && obj.Kind == kind {
			out = append(out, obj)
		}
	}
	return out
}

// addObject installs a new world object and mirrors it to persistence,
// fire-and-forget. Capacity enforcement is the caller's job.
func (w *World) addObject(obj *WorldObject) {
	w.objects[obj.ID] = obj
	w.store.AppendWorldObject(ObjectRecord{
		ID:        obj.ID,
		Kind:      obj.Kind,
		Realm:     obj.Realm,
		OwnerID:   obj.OwnerID,
		Content:   obj.Content,
		X:         obj.X,
		Y:         obj.Y,
		CreatedAt: obj.CreatedAt,
	})
}
