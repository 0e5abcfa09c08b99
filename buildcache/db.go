// Package buildcache persists build task signatures.
package buildcache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS signatures (
	key     TEXT PRIMARY KEY,
	sig     TEXT NOT NULL,
	updated INTEGER NOT NULL
)`

// DB is a signature store backed by an sqlite file.
type DB struct {
	db *sql.DB
}

// Open opens or creates the store at fn.
func Open(fn string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", fn)
	if err != nil {
		return nil, fmt.Errorf("opening build cache %s: %w", fn, err)
	}
	// one writer at a time; parallel tasks queue on the pool instead of
	// failing with SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing build cache %s: %w", fn, err)
	}
	return &DB{db: db}, nil
}

// Signature returns the stored signature for key.
func (d *DB) Signature(key string) (string, bool, error) {
	sig := ""
	err := d.db.QueryRow(`SELECT sig FROM signatures WHERE key = ?`, key).Scan(&sig)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return sig, true, nil
}

// Store records sig for key.
func (d *DB) Store(key, sig string) error {
	_, err := d.db.Exec(`
		INSERT INTO signatures (key, sig, updated) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET sig = excluded.sig, updated = excluded.updated`,
		key, sig, time.Now().Unix())
	return err
}

// Forget drops the signature for key.
func (d *DB) Forget(key string) error {
	_, err := d.db.Exec(`DELETE FROM signatures WHERE key = ?`, key)
	return err
}

// Len returns the number of stored signatures.
func (d *DB) Len() (int, error) {
	n := 0
	err := d.db.QueryRow(`SELECT COUNT(*) FROM signatures`).Scan(&n)
	return n, err
}

func (d *DB) Close() error {
	return d.db.Close()
}
