// Package cache keeps compiled chunks in a SQLite database keyed by the
// content they were compiled from.
package cache

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

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/lunac/compiler/hash"
	"github.com/chazu/lunac/vm"
)

// keyVersion is mixed into every key; bump it when code generation changes
// so stale entries are never returned.
const keyVersion = "lunac-1"

var (
	// ErrNotFound indicates the requested chunk is not cached.
	ErrNotFound = errors.New("chunk not cached")

	// ErrCorrupt indicates a stored chunk no longer matches its fingerprint.
	ErrCorrupt = errors.New("cached chunk is corrupt")
)

var log = commonlog.GetLogger("lunac.cache")

// Key derives the cache key of a compilation.
func Key(chunkName, source string, strip bool) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%t\x00", keyVersion, chunkName, strip)
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// Store is a compile cache backed by SQLite. It is safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the cache database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		key         TEXT PRIMARY KEY,
		chunk       TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		data        BLOB NOT NULL,
		created     INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores the prototype compiled for key.
func (s *Store) Put(key, chunkName string, p *vm.Prototype) error {
	data, err := MarshalPrototype(p)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", chunkName, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO chunks (key, chunk, fingerprint, data, created) VALUES (?, ?, ?, ?, ?)",
		key, chunkName, hash.Hex(p), data, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving %s: %w", chunkName, err)
	}
	log.Debugf("stored %s (%d bytes)", chunkName, len(data))
	return nil
}

// Get returns the prototype stored for key, interning its strings in
// strs. It returns ErrNotFound on a miss and ErrCorrupt when the stored
// bytes do not decode to the recorded fingerprint.
func (s *Store) Get(key string, strs *vm.StringTable) (*vm.Prototype, error) {
	var chunk, fingerprint string
	var data []byte

	s.mu.Lock()
	err := s.db.QueryRow("SELECT chunk, fingerprint, data FROM chunks WHERE key = ?", key).
		Scan(&chunk, &fingerprint, &data)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying chunk: %w", err)
	}

	p, err := UnmarshalPrototype(data, strs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", chunk, ErrCorrupt, err)
	}
	if got := hash.Hex(p); got != fingerprint {
		return nil, fmt.Errorf("%s: %w: fingerprint %s, recorded %s", chunk, ErrCorrupt, got, fingerprint)
	}
	log.Debugf("hit %s", chunk)
	return p, nil
}

// Delete removes the entry for key, if any.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM chunks WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting chunk: %w", err)
	}
	return nil
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries int
	Bytes   int64
}

// Stats counts the stored chunks and their encoded size.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(LENGTH(data)), 0) FROM chunks").Scan(&st.Entries, &st.Bytes)
	if err != nil {
		return Stats{}, fmt.Errorf("reading cache stats: %w", err)
	}
	return st, nil
}

// Prune removes entries created before cutoff and returns how many were
// removed.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec("DELETE FROM chunks WHERE created < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning cache: %w", err)
	}
	return res.RowsAffected()
}
