// Package sqlite is an optional persistent implementation of
// store.Backend, alongside the required in-memory reference backend.
//
// Grounded directly on always-cache's cache/cache-provider.go SQLiteCache:
// same CREATE TABLE IF NOT EXISTS / WAL journal mode / write-mutex-guarded
// INSERT OR REPLACE shape, adapted to store the structured store.Entry
// (gob-encoded) instead of raw HTTP/1.1 response bytes.
package sqlite

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"net/http"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/outputcache/outputcache/store"
)

func init() {
	gob.Register(http.Header{})
}

// Store is a store.Backend backed by a SQLite database.
type Store struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// New opens (or creates) the cache table in the SQLite database at
// filename. An empty filename opens a shared in-memory database, matching
// always-cache's NewSQLiteCache convention.
func New(filename string) (*Store, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		expires INTEGER,
		created INTEGER,
		status_code INTEGER,
		payload BLOB
	)`); err != nil {
		return nil, err
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS cache_entries_expires_idx ON cache_entries (expires)"); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}
	return &Store{db: db, writeMutex: &sync.Mutex{}}, nil
}

type payload struct {
	Headers http.Header
	Body    []byte
}

func (s *Store) Get(key string) (store.Entry, bool, error) {
	var expires, created int64
	var statusCode int
	var raw []byte
	err := s.db.QueryRow(
		"SELECT expires, created, status_code, payload FROM cache_entries WHERE key = ?",
		key,
	).Scan(&expires, &created, &statusCode, &raw)
	if err == sql.ErrNoRows {
		return store.Entry{}, false, nil
	}
	if err != nil {
		return store.Entry{}, false, err
	}
	if time.Now().After(time.Unix(expires, 0)) {
		s.Purge(key)
		return store.Entry{}, false, nil
	}

	var p payload
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&p); err != nil {
		return store.Entry{}, false, err
	}

	return store.Entry{
		Created:    time.Unix(created, 0),
		StatusCode: statusCode,
		Headers:    p.Headers,
		Body:       p.Body,
	}, true, nil
}

func (s *Store) Set(key string, entry store.Entry, ttl time.Duration) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload{Headers: entry.Headers, Body: entry.Body}); err != nil {
		return err
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO cache_entries (key, expires, created, status_code, payload) VALUES (?, ?, ?, ?, ?)`,
		key, time.Now().Add(ttl).Unix(), entry.Created.Unix(), entry.StatusCode, buf.Bytes(),
	)
	return err
}

// Purge removes the entry for key, if any.
func (s *Store) Purge(key string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache_entries WHERE key = ?", key)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
