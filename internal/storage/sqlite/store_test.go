package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/line/centraldogma-go/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	dir := t.TempDir()
	store, err := New(context.Background(), dir+"/test.db", dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEnsureRepositoryBootstrapsInitRevision(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	if err := s.EnsureRepository(ctx, "proj/repo"); err != nil {
		t.Fatal(err)
	}
	head, err := s.Head(ctx, "proj/repo")
	if err != nil {
		t.Fatal(err)
	}
	if head != domain.InitRevision {
		t.Fatalf("got head %d", head)
	}
	c, err := s.GetCommit(ctx, "proj/repo", domain.InitRevision)
	if err != nil {
		t.Fatal(err)
	}
	if c.Author != domain.SystemAuthor {
		t.Fatalf("got author %q", c.Author)
	}

	// idempotent
	if err := s.EnsureRepository(ctx, "proj/repo"); err != nil {
		t.Fatal(err)
	}
}

func TestCommitAndFind(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.EnsureRepository(ctx, "p/r")

	_, err := s.Commit(ctx, "p/r", domain.HeadRevision, "alice", "add a.json", "", domain.MarkupPlaintext,
		[]domain.Change{{Path: "/a.json", Type: domain.ChangeUpsertJSON, JSONContent: json.RawMessage(`{"x":1}`)}})
	if err != nil {
		t.Fatal(err)
	}

	e, err := s.Find(ctx, "p/r", domain.HeadRevision, "/a.json")
	if err != nil {
		t.Fatal(err)
	}
	if e.Type != domain.EntryJSON || string(e.Content) != `{"x":1}` {
		t.Fatalf("got %+v", e)
	}
}

func TestCommitRedundantChangeRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.EnsureRepository(ctx, "p/r")
	s.Commit(ctx, "p/r", domain.HeadRevision, "alice", "add", "", domain.MarkupPlaintext,
		[]domain.Change{{Path: "/a.txt", Type: domain.ChangeUpsertText, TextContent: "hello"}})

	_, err := s.Commit(ctx, "p/r", domain.HeadRevision, "alice", "same content", "", domain.MarkupPlaintext,
		[]domain.Change{{Path: "/a.txt", Type: domain.ChangeUpsertText, TextContent: "hello"}})
	if !errors.Is(err, domain.ErrRedundantChange) {
		t.Fatalf("got %v", err)
	}
}

func TestCommitStaleBaseConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.EnsureRepository(ctx, "p/r")

	s.Commit(ctx, "p/r", domain.HeadRevision, "alice", "add", "", domain.MarkupPlaintext,
		[]domain.Change{{Path: "/a.txt", Type: domain.ChangeUpsertText, TextContent: "v1"}})
	base, _ := s.Head(ctx, "p/r")

	s.Commit(ctx, "p/r", domain.HeadRevision, "bob", "update", "", domain.MarkupPlaintext,
		[]domain.Change{{Path: "/a.txt", Type: domain.ChangeUpsertText, TextContent: "v2"}})

	_, err := s.Commit(ctx, "p/r", base, "alice", "stale update", "", domain.MarkupPlaintext,
		[]domain.Change{{Path: "/a.txt", Type: domain.ChangeUpsertText, TextContent: "v3"}})
	if !errors.Is(err, domain.ErrChangeConflict) {
		t.Fatalf("got %v", err)
	}
}

func TestCommitRebasesJSONPatchAgainstNewHead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.EnsureRepository(ctx, "p/r")

	s.Commit(ctx, "p/r", domain.HeadRevision, "alice", "add", "", domain.MarkupPlaintext,
		[]domain.Change{{Path: "/a.json", Type: domain.ChangeUpsertJSON, JSONContent: json.RawMessage(`{"a":1,"b":2}`)}})
	base, _ := s.Head(ctx, "p/r")

	// bob touches an unrelated field
	s.Commit(ctx, "p/r", domain.HeadRevision, "bob", "update b", "", domain.MarkupPlaintext,
		[]domain.Change{{Path: "/a.json", Type: domain.ChangeApplyJSONPatch, JSONPatch: []domain.JSONPatchOp{
			{Op: "replace", Path: "/b", Value: json.RawMessage(`20`)},
		}}})

	// alice's patch, built against the stale base, still applies cleanly to /a
	commit, err := s.Commit(ctx, "p/r", base, "alice", "update a", "", domain.MarkupPlaintext,
		[]domain.Change{{Path: "/a.json", Type: domain.ChangeApplyJSONPatch, JSONPatch: []domain.JSONPatchOp{
			{Op: "replace", Path: "/a", Value: json.RawMessage(`10`)},
		}}})
	if err != nil {
		t.Fatalf("expected rebase to succeed, got %v", err)
	}

	e, err := s.Find(ctx, "p/r", commit.Revision, "/a.json")
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]int
	if err := json.Unmarshal(e.Content, &m); err != nil {
		t.Fatal(err)
	}
	if m["a"] != 10 || m["b"] != 20 {
		t.Fatalf("got %v", m)
	}
}

func TestHistoryAndDiff(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.EnsureRepository(ctx, "p/r")
	s.Commit(ctx, "p/r", domain.HeadRevision, "alice", "add a", "", domain.MarkupPlaintext,
		[]domain.Change{{Path: "/a.txt", Type: domain.ChangeUpsertText, TextContent: "1"}})
	s.Commit(ctx, "p/r", domain.HeadRevision, "alice", "add b", "", domain.MarkupPlaintext,
		[]domain.Change{{Path: "/b.txt", Type: domain.ChangeUpsertText, TextContent: "2"}})

	commits, err := s.History(ctx, "p/r", domain.InitRevision, domain.HeadRevision, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 3 { // init + 2
		t.Fatalf("got %d commits", len(commits))
	}

	changes, err := s.Diff(ctx, "p/r", domain.InitRevision, domain.HeadRevision, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d changes", len(changes))
	}
}

func TestRemoveAndListEntries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.EnsureRepository(ctx, "p/r")
	s.Commit(ctx, "p/r", domain.HeadRevision, "alice", "add", "", domain.MarkupPlaintext,
		[]domain.Change{
			{Path: "/dir/a.txt", Type: domain.ChangeUpsertText, TextContent: "a"},
			{Path: "/dir/b.txt", Type: domain.ChangeUpsertText, TextContent: "b"},
		})

	entries, err := s.ListEntries(ctx, "p/r", domain.HeadRevision, "/dir", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}

	s.Commit(ctx, "p/r", domain.HeadRevision, "alice", "remove a", "", domain.MarkupPlaintext,
		[]domain.Change{{Path: "/dir/a.txt", Type: domain.ChangeRemove}})

	_, err = s.Find(ctx, "p/r", domain.HeadRevision, "/dir/a.txt")
	if !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("got %v", err)
	}

	entries, err = s.ListEntries(ctx, "p/r", domain.HeadRevision, "/dir", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries after remove", len(entries))
	}
}
