// Package store persists player progress, planted world objects, and
// friendship edges in SQLite. The simulation talks to it through the
// async facade so that tick handling never waits on disk.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"lanternfall/internal/world"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// modernc sqlite is single-writer; serialize through one connection.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		realm TEXT NOT NULL DEFAULT '',
		x REAL NOT NULL DEFAULT 0,
		y REAL NOT NULL DEFAULT 0,
		hue REAL NOT NULL DEFAULT 0,
		xp INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS player_counters (
		player_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (player_id, kind)
	);

	CREATE TABLE IF NOT EXISTS world_objects (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		realm TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		content TEXT NOT NULL,
		x REAL NOT NULL DEFAULT 0,
		y REAL NOT NULL DEFAULT 0,
		engagement INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS friends (
		player_id TEXT NOT NULL,
		friend_id TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		PRIMARY KEY (player_id, friend_id)
	);

	CREATE INDEX IF NOT EXISTS idx_objects_realm ON world_objects(realm, kind);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type playerRow struct {
	ID    string  `db:"id"`
	Name  string  `db:"name"`
	Realm string  `db:"realm"`
	X     float64 `db:"x"`
	Y     float64 `db:"y"`
	Hue   float64 `db:"hue"`
	XP    int     `db:"xp"`
}

// LoadOrCreatePlayer returns the durable record for an identity, inserting
// a fresh row on first sight.
func (db *DB) LoadOrCreatePlayer(id string) (world.PlayerRecord, error) {
	var row playerRow
	err := db.conn.Get(&row, "SELECT id, name, realm, x, y, hue, xp FROM players WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := db.conn.Exec(
			"INSERT INTO players (id, updated_at) VALUES (?, ?)", id, time.Now().Unix(),
		); err != nil {
			return world.PlayerRecord{}, fmt.Errorf("create player %s: %w", id, err)
		}
		return world.PlayerRecord{ID: id, Counters: map[string]int64{}}, nil
	}
	if err != nil {
		return world.PlayerRecord{}, fmt.Errorf("load player %s: %w", id, err)
	}

	counters := map[string]int64{}
	rows, err := db.conn.Queryx("SELECT kind, count FROM player_counters WHERE player_id = ?", id)
	if err != nil {
		return world.PlayerRecord{}, fmt.Errorf("load counters %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return world.PlayerRecord{}, err
		}
		counters[kind] = count
	}

	return world.PlayerRecord{
		ID:       row.ID,
		Name:     row.Name,
		Realm:    row.Realm,
		X:        row.X,
		Y:        row.Y,
		Hue:      row.Hue,
		XP:       row.XP,
		Counters: counters,
	}, nil
}

// SavePlayer upserts a player's durable fields.
func (db *DB) SavePlayer(rec world.PlayerRecord) error {
	_, err := db.conn.Exec(`INSERT INTO players (id, name, realm, x, y, hue, xp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, realm = excluded.realm,
			x = excluded.x, y = excluded.y, hue = excluded.hue,
			xp = excluded.xp, updated_at = excluded.updated_at`,
		rec.ID, rec.Name, rec.Realm, rec.X, rec.Y, rec.Hue, rec.XP, time.Now().Unix(),
	)
	return err
}

// InsertObject records a planted echo or lit star.
func (db *DB) InsertObject(rec world.ObjectRecord) error {
	_, err := db.conn.Exec(`INSERT OR IGNORE INTO world_objects
		(id, kind, realm, owner_id, content, x, y, engagement, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		rec.ID, rec.Kind, rec.Realm, rec.OwnerID, rec.Content, rec.X, rec.Y, rec.CreatedAt.Unix(),
	)
	return err
}

// AddCounters bumps per-kind action tallies.
func (db *DB) AddCounters(id string, deltas map[string]int64) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for kind, n := range deltas {
		if _, err := tx.Exec(`INSERT INTO player_counters (player_id, kind, count)
			VALUES (?, ?, ?)
			ON CONFLICT(player_id, kind) DO UPDATE SET count = count + excluded.count`,
			id, kind, n,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// BumpEngagement increments an object's engagement tally.
func (db *DB) BumpEngagement(objectID string) error {
	_, err := db.conn.Exec(
		"UPDATE world_objects SET engagement = engagement + 1 WHERE id = ?", objectID,
	)
	return err
}

// AddFriend records a friendship edge in both directions.
func (db *DB) AddFriend(a, b, label string) error {
	now := time.Now().Unix()
	_, err := db.conn.Exec(`INSERT OR IGNORE INTO friends (player_id, friend_id, label, created_at)
		VALUES (?, ?, ?, ?), (?, ?, ?, ?)`,
		a, b, label, now, b, a, label, now,
	)
	return err
}

// RemoveFriend deletes both directions of a friendship edge.
func (db *DB) RemoveFriend(a, b string) error {
	_, err := db.conn.Exec(
		`DELETE FROM friends WHERE (player_id = ? AND friend_id = ?) OR (player_id = ? AND friend_id = ?)`,
		a, b, b, a,
	)
	return err
}

// ListFriends returns the identities a player has friended.
func (db *DB) ListFriends(id string) ([]string, error) {
	var out []string
	err := db.conn.Select(&out, "SELECT friend_id FROM friends WHERE player_id = ? ORDER BY friend_id", id)
	return out, err
}

// ObjectsInRealm returns stored objects for a realm, newest first. Used by
// the status endpoint and tests, not by the tick path.
func (db *DB) ObjectsInRealm(realm string, limit int) ([]world.ObjectRecord, error) {
	rows, err := db.conn.Queryx(`SELECT id, kind, realm, owner_id, content, x, y, created_at
		FROM world_objects WHERE realm = ? ORDER BY created_at DESC LIMIT ?`, realm, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []world.ObjectRecord
	for rows.Next() {
		var rec world.ObjectRecord
		var created int64
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Realm, &rec.OwnerID,
			&rec.Content, &rec.X, &rec.Y, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(created, 0)
		out = append(out, rec)
	}
	return out, nil
}
