// Package store is a content-addressed build cache backed by SQLite. Images
// are keyed by a hash of everything that went into building them, so an
// unchanged source is never lowered twice.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/tapec/pkg/image"
)

var log = commonlog.GetLogger("tapec.store")

// ErrNotFound indicates the key has no cached image.
var ErrNotFound = errors.New("not in cache")

// Store handles SQLite storage for built images.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Entry describes one cached image.
type Entry struct {
	Key     string
	ID      string
	Name    string
	Size    int64
	Created time.Time
}

// Open opens or creates the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent builds
	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS builds (
		key     TEXT PRIMARY KEY,
		id      TEXT NOT NULL,
		name    TEXT NOT NULL,
		image   BLOB NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Key hashes build inputs into a cache key. Parts are length-prefixed so
// that different splits of the same bytes produce different keys.
func Key(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Put stores img under key, replacing any previous entry, and returns the
// new entry's id.
func (s *Store) Put(key string, img *image.Image) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := image.Marshal(img)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO builds (key, id, name, image, created) VALUES (?, ?, ?, ?, ?)",
		key, id, img.Name, data, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("saving build: %w", err)
	}
	log.Debugf("stored %s as %s (%d bytes)", short(key), id, len(data))
	return id, nil
}

// Get returns the image cached under key.
func (s *Store) Get(key string) (*image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.db.QueryRow("SELECT image FROM builds WHERE key = ?", key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("miss %s", short(key))
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying build: %w", err)
	}
	img, err := image.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("cached build %s: %w", short(key), err)
	}
	log.Debugf("hit %s", short(key))
	return img, nil
}

// Delete removes the entry for key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM builds WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting build: %w", err)
	}
	return nil
}

// List returns every entry, newest first.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		"SELECT key, id, name, length(image), created FROM builds ORDER BY created DESC, key")
	if err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Key, &e.ID, &e.Name, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("scanning build: %w", err)
		}
		e.Created = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
