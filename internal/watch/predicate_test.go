package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/query"
)

// fakeReader lets predicate tests control exactly what Diff/Query see
// at each revision without a real storage backend.
type fakeReader struct {
	mu      sync.Mutex
	diffs   map[domain.Revision][]domain.Change // keyed by "to" revision
	content map[domain.Revision]string
}

func (f *fakeReader) Diff(ctx context.Context, repo string, from, to domain.Revision, pathPattern string) ([]domain.Change, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.diffs[to], nil
}

func (f *fakeReader) Query(ctx context.Context, repo string, revision domain.Revision, q domain.Query) (query.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return query.Result{Content: []byte(f.content[revision])}, nil
}

func TestWatchPathSkipsIrrelevantRevisions(t *testing.T) {
	n := NewNotifier()
	fr := &fakeReader{diffs: map[domain.Revision][]domain.Change{
		2: nil, // unrelated commit
		3: {{Path: "/a.txt", Type: domain.ChangeUpsertText}},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resultCh := make(chan domain.Revision, 1)
	go func() {
		rev, err := WatchPath(ctx, n, fr, "p/r", "/a.txt", 1)
		if err != nil {
			t.Error(err)
			return
		}
		resultCh <- rev
	}()

	time.Sleep(20 * time.Millisecond)
	n.Signal("p/r", 2) // irrelevant, should not satisfy the watch
	time.Sleep(20 * time.Millisecond)
	n.Signal("p/r", 3) // relevant

	select {
	case rev := <-resultCh:
		if rev != 3 {
			t.Fatalf("got revision %d", rev)
		}
	case <-time.After(time.Second):
		t.Fatal("watch did not resolve")
	}
}

func TestWatchQueryWaitsForValueChange(t *testing.T) {
	n := NewNotifier()
	fr := &fakeReader{
		diffs: map[domain.Revision][]domain.Change{
			2: {{Path: "/a.json", Type: domain.ChangeUpsertJSON}},
		},
		content: map[domain.Revision]string{
			1: `{"a":1}`,
			2: `{"a":1}`, // unchanged despite the commit touching the path
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		n.Signal("p/r", 2)
	}()

	_, _, err := WatchQuery(ctx, n, fr, "p/r", domain.Identity("/a.json"), 1)
	if err == nil {
		t.Fatal("expected timeout since the value never actually changed")
	}
}
