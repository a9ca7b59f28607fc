// Package storage implements the append-only commit log and entry tree
// engine every repository is built on: each Commit advances a
// repository's head revision by exactly one and the tree at any
// revision is reconstructed from the entries recorded up to it.
package storage

import (
	"context"

	"github.com/line/centraldogma-go/internal/domain"
)

// Storage is the per-project set of repositories backed by a single
// database file. Implementations must serialize concurrent commits to
// the same repository so that optimistic-concurrency checks in Commit
// are race-free.
type Storage interface {
	// EnsureRepository creates the repository's commit log if it
	// doesn't exist yet, bootstrapping revision 1 with domain.SystemAuthor.
	// It is a no-op if the repository already exists.
	EnsureRepository(ctx context.Context, repo string) error

	// RemoveRepository deletes a repository's entire commit log.
	RemoveRepository(ctx context.Context, repo string) error

	// Head returns the latest revision of repo.
	Head(ctx context.Context, repo string) (domain.Revision, error)

	// Commit appends a new commit built from changes, advancing the head
	// by one. baseRevision is the revision the caller read before
	// constructing changes; if the head has moved on since, Commit
	// attempts to rebase changes onto the new head (see rebaseChanges in
	// internal/storage/sqlite/commit.go) and
	// only fails with a *domain.ConflictError when rebase itself can't
	// reconcile a touched path.
	Commit(ctx context.Context, repo string, baseRevision domain.Revision, author, summary, detail string, markup domain.Markup, changes []domain.Change) (domain.Commit, error)

	// GetCommit returns the commit recorded at revision.
	GetCommit(ctx context.Context, repo string, revision domain.Revision) (domain.Commit, error)

	// History returns commits in the [from, to] range, both ends
	// inclusive, in the caller's
	// traversal direction (from > to walks backward).
	History(ctx context.Context, repo string, from, to domain.Revision, pathPattern string, maxCommits int) ([]domain.Commit, error)

	// Find returns the entry at path as of revision.
	Find(ctx context.Context, repo string, revision domain.Revision, path string) (domain.Entry, error)

	// ListEntries lists entries whose path has prefix pathPrefix as of
	// revision, one level deep for directories unless recursive is true.
	ListEntries(ctx context.Context, repo string, revision domain.Revision, pathPrefix string, recursive bool) ([]domain.Entry, error)

	// Diff returns the per-path changes observed between from and to
	// (from may be greater than to, same convention as History).
	Diff(ctx context.Context, repo string, from, to domain.Revision, pathPattern string) ([]domain.Change, error)

	Close() error
}

// Config configures the sqlite-backed storage engine.
type Config struct {
	// Path is the database file path. ":memory:" is accepted for tests.
	Path string

	// LockDir holds the per-repository advisory lock files used to
	// serialize Commit calls across processes. Defaults to the
	// directory containing Path.
	LockDir string
}
