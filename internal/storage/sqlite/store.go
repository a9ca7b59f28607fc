// Package sqlite is the ncruces/go-sqlite3-backed implementation of
// storage.Storage: an append-only commit log plus a path-versioned
// entry table, with per-repository commits serialized by an on-disk
// advisory lock so multiple server processes never race each other's
// optimistic-concurrency check.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	// Registers the "sqlite3" driver and bundles the embedded WASM
	// SQLite build so no cgo toolchain is required at build time.
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStorage is a storage.Storage backed by a single SQLite database
// file shared by every repository it hosts.
type SQLiteStorage struct {
	db      *sql.DB
	path    string
	lockDir string

	mu    sync.Mutex
	locks map[string]*flock.Flock // repo_id -> advisory commit lock
}

// New opens (creating if necessary) the SQLite database at path and
// applies the schema. lockDir holds the per-repository ".commit.lock"
// files; if empty it defaults to the database's directory.
func New(ctx context.Context, path string, lockDir string) (*SQLiteStorage, error) {
	connStr := path
	if path != ":memory:" {
		connStr = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(on)", path)
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // the WASM driver serializes writers anyway; keep it simple

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if lockDir == "" {
		if path == ":memory:" {
			lockDir = "."
		} else {
			lockDir = filepath.Dir(path)
		}
	}

	return &SQLiteStorage{
		db:      db,
		path:    path,
		lockDir: lockDir,
		locks:   make(map[string]*flock.Flock),
	}, nil
}

// Close releases the database handle. Held repository locks are
// released by the OS when the process exits; callers are expected to
// have finished all in-flight commits first.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file path, mainly useful for diagnostics.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// DB returns the underlying connection so sibling packages (project
// admin, command log) can create their own tables in the same database
// file instead of managing a second one. Direct access bypasses this
// package's locking; callers must not touch the commits/entry_versions
// tables through it.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// repoLock returns the advisory lock guarding commits to repo,
// creating it on first use. The lock file lives outside the database
// itself so a read-only process (e.g. `dogma log`) never needs to open
// it.
func (s *SQLiteStorage) repoLock(repo string) *flock.Flock {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[repo]; ok {
		return l
	}
	name := flockSafeName(repo)
	l := flock.New(filepath.Join(s.lockDir, name+".commit.lock"))
	s.locks[repo] = l
	return l
}

// flockSafeName replaces path separators in a "project/repo" id so it
// can be used as a single file name.
func flockSafeName(repo string) string {
	out := make([]byte, len(repo))
	for i := 0; i < len(repo); i++ {
		if repo[i] == '/' {
			out[i] = '_'
		} else {
			out[i] = repo[i]
		}
	}
	return string(out)
}
