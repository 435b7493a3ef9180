package store

import (
	"path/filepath"
	"testing"
	"time"

	"lanternfall/internal/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLoadOrCreatePlayer tests first-sight creation and reload
func TestLoadOrCreatePlayer(t *testing.T) {
	db := openTestDB(t)

	rec, err := db.LoadOrCreatePlayer("alice")
	if err != nil {
		t.Fatalf("LoadOrCreatePlayer: %v", err)
	}
	if rec.ID != "alice" || rec.XP != 0 {
		t.Errorf("Unexpected fresh record: %+v", rec)
	}

	rec.Name = "Alice the Bright"
	rec.Realm = "ember"
	rec.X, rec.Y = 12.5, -3
	rec.Hue = 200
	rec.XP = 77
	if err := db.SavePlayer(rec); err != nil {
		t.Fatalf("SavePlayer: %v", err)
	}

	back, err := db.LoadOrCreatePlayer("alice")
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if back.Name != "Alice the Bright" || back.Realm != "ember" || back.XP != 77 {
		t.Errorf("Round trip lost fields: %+v", back)
	}
	if back.X != 12.5 || back.Y != -3 || back.Hue != 200 {
		t.Errorf("Round trip lost position: %+v", back)
	}
}

// TestCounters tests increment accumulation across loads
func TestCounters(t *testing.T) {
	db := openTestDB(t)
	db.LoadOrCreatePlayer("alice")

	if err := db.AddCounters("alice", map[string]int64{"sing": 2, "echo": 1}); err != nil {
		t.Fatalf("AddCounters: %v", err)
	}
	if err := db.AddCounters("alice", map[string]int64{"sing": 3}); err != nil {
		t.Fatalf("AddCounters: %v", err)
	}

	rec, err := db.LoadOrCreatePlayer("alice")
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if rec.Counters["sing"] != 5 || rec.Counters["echo"] != 1 {
		t.Errorf("Unexpected counters: %+v", rec.Counters)
	}
}

// TestFriendEdges tests bidirectional persistence and removal
func TestFriendEdges(t *testing.T) {
	db := openTestDB(t)

	if err := db.AddFriend("alice", "bobby", "friend"); err != nil {
		t.Fatalf("AddFriend: %v", err)
	}

	aliceFriends, err := db.ListFriends("alice")
	if err != nil {
		t.Fatalf("ListFriends: %v", err)
	}
	bobbyFriends, _ := db.ListFriends("bobby")
	if len(aliceFriends) != 1 || aliceFriends[0] != "bobby" {
		t.Errorf("Expected alice->bobby, got %v", aliceFriends)
	}
	if len(bobbyFriends) != 1 || bobbyFriends[0] != "alice" {
		t.Errorf("Expected bobby->alice, got %v", bobbyFriends)
	}

	// Re-adding must stay idempotent.
	if err := db.AddFriend("bobby", "alice", "friend"); err != nil {
		t.Fatalf("Duplicate AddFriend: %v", err)
	}
	aliceFriends, _ = db.ListFriends("alice")
	if len(aliceFriends) != 1 {
		t.Errorf("Duplicate edge stored: %v", aliceFriends)
	}

	if err := db.RemoveFriend("alice", "bobby"); err != nil {
		t.Fatalf("RemoveFriend: %v", err)
	}
	aliceFriends, _ = db.ListFriends("alice")
	bobbyFriends, _ = db.ListFriends("bobby")
	if len(aliceFriends) != 0 || len(bobbyFriends) != 0 {
		t.Error("Removal should clear both directions")
	}
}

// TestWorldObjects tests insert, engagement, and realm listing
func TestWorldObjects(t *testing.T) {
	db := openTestDB(t)

	obj := world.ObjectRecord{
		ID:        "echo-1",
		Kind:      "echo",
		Realm:     "genesis",
		OwnerID:   "alice",
		Content:   "hello",
		X:         1,
		Y:         2,
		CreatedAt: time.Now(),
	}
	if err := db.InsertObject(obj); err != nil {
		t.Fatalf("InsertObject: %v", err)
	}
	if err := db.BumpEngagement("echo-1"); err != nil {
		t.Fatalf("BumpEngagement: %v", err)
	}

	objs, err := db.ObjectsInRealm("genesis", 10)
	if err != nil {
		t.Fatalf("ObjectsInRealm: %v", err)
	}
	if len(objs) != 1 || objs[0].Content != "hello" {
		t.Errorf("Unexpected objects: %+v", objs)
	}

	others, _ := db.ObjectsInRealm("ember", 10)
	if len(others) != 0 {
		t.Error("Objects leaked across realms")
	}
}

// TestAsyncFacade tests that queued writes land and Close drains
func TestAsyncFacade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "async.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	a := NewAsync(db, 16)

	rec, err := a.LoadOrCreateSession("alice")
	if err != nil {
		t.Fatalf("LoadOrCreateSession: %v", err)
	}
	rec.XP = 42
	a.SaveSession(rec)
	a.IncrementCounters("alice", map[string]int64{"sing": 1})
	a.AddFriendEdge("alice", "bobby", "friend")

	// Close drains the queue before closing the database.
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if a.Dropped() != 0 {
		t.Errorf("Expected no dropped writes, got %d", a.Dropped())
	}

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	defer db2.Close()

	back, err := db2.LoadOrCreatePlayer("alice")
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if back.XP != 42 || back.Counters["sing"] != 1 {
		t.Errorf("Queued writes lost: %+v", back)
	}
	friends, _ := db2.ListFriends("alice")
	if len(friends) != 1 || friends[0] != "bobby" {
		t.Errorf("Friend edge lost: %v", friends)
	}
}
