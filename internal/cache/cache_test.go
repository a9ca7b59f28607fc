package cache

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/line/centraldogma-go/internal/domain"
)

// fakeBackend is an in-memory Backend stand-in so cache behavior (hits,
// invalidation) can be tested without spinning up sqlite.
type fakeBackend struct {
	head    domain.Revision
	content map[string][]byte
	finds   atomic.Int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{head: 1, content: map[string][]byte{}}
}

func (f *fakeBackend) Head(ctx context.Context, repo string) (domain.Revision, error) {
	return f.head, nil
}

func (f *fakeBackend) Find(ctx context.Context, repo string, revision domain.Revision, path string) (domain.Entry, error) {
	f.finds.Add(1)
	c, ok := f.content[path]
	if !ok {
		return domain.Entry{}, domain.ErrEntryNotFound
	}
	return domain.Entry{Path: path, Type: domain.EntryText, Content: c}, nil
}

func (f *fakeBackend) ListEntries(ctx context.Context, repo string, revision domain.Revision, pathPrefix string, recursive bool) ([]domain.Entry, error) {
	return nil, nil
}

func (f *fakeBackend) History(ctx context.Context, repo string, from, to domain.Revision, pathPattern string, maxCommits int) ([]domain.Commit, error) {
	return nil, nil
}

func (f *fakeBackend) Diff(ctx context.Context, repo string, from, to domain.Revision, pathPattern string) ([]domain.Change, error) {
	return nil, nil
}

func (f *fakeBackend) Commit(ctx context.Context, repo string, baseRevision domain.Revision, author, summary, detail string, markup domain.Markup, changes []domain.Change) (domain.Commit, error) {
	f.head++
	for _, ch := range changes {
		f.content[ch.Path] = []byte(ch.TextContent)
	}
	return domain.Commit{Revision: f.head}, nil
}

func TestCacheHitsOnRepeatedQuery(t *testing.T) {
	fb := newFakeBackend()
	fb.content["/a.txt"] = []byte("hello")
	c, err := New(fb, 100, 1<<20)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := c.Query(ctx, "p/r", domain.HeadRevision, domain.Identity("/a.txt"))
		if err != nil {
			t.Fatal(err)
		}
		if string(res.Content) != "hello" {
			t.Fatalf("got %q", res.Content)
		}
	}
	if fb.finds.Load() != 1 {
		t.Fatalf("expected 1 backend read, got %d", fb.finds.Load())
	}
	hits, misses := c.Stats()
	if hits != 2 || misses != 1 {
		t.Fatalf("got hits=%d misses=%d", hits, misses)
	}
}

func TestCacheInvalidatesOnCommit(t *testing.T) {
	fb := newFakeBackend()
	fb.content["/a.txt"] = []byte("v1")
	c, err := New(fb, 100, 1<<20)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	res, err := c.Query(ctx, "p/r", domain.HeadRevision, domain.Identity("/a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Content) != "v1" {
		t.Fatalf("got %q", res.Content)
	}

	if _, err := c.Commit(ctx, "p/r", domain.HeadRevision, "a", "s", "", domain.MarkupPlaintext,
		[]domain.Change{{Path: "/a.txt", Type: domain.ChangeUpsertText, TextContent: "v2"}}); err != nil {
		t.Fatal(err)
	}

	res, err = c.Query(ctx, "p/r", domain.HeadRevision, domain.Identity("/a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Content) != "v2" {
		t.Fatalf("expected fresh read after commit, got %q", res.Content)
	}
}
