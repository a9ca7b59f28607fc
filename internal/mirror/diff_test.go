package mirror

import (
	"context"
	"testing"

	"github.com/line/centraldogma-go/internal/domain"
)

// fakeStorage implements storage.Storage just enough for diff/state
// tests: a fixed Find table and a fixed ListEntries result.
type fakeStorage struct {
	entries map[string]domain.Entry
	list    []domain.Entry
}

func (f *fakeStorage) EnsureRepository(ctx context.Context, repo string) error { return nil }
func (f *fakeStorage) RemoveRepository(ctx context.Context, repo string) error { return nil }
func (f *fakeStorage) Head(ctx context.Context, repo string) (domain.Revision, error) {
	return 1, nil
}
func (f *fakeStorage) Commit(ctx context.Context, repo string, base domain.Revision, author, summary, detail string, markup domain.Markup, changes []domain.Change) (domain.Commit, error) {
	return domain.Commit{Revision: 2, Changes: changes}, nil
}
func (f *fakeStorage) GetCommit(ctx context.Context, repo string, rev domain.Revision) (domain.Commit, error) {
	return domain.Commit{}, domain.ErrRevisionNotFound
}
func (f *fakeStorage) History(ctx context.Context, repo string, from, to domain.Revision, pathPattern string, max int) ([]domain.Commit, error) {
	return nil, nil
}
func (f *fakeStorage) Find(ctx context.Context, repo string, rev domain.Revision, path string) (domain.Entry, error) {
	e, ok := f.entries[path]
	if !ok {
		return domain.Entry{}, domain.ErrEntryNotFound
	}
	return e, nil
}
func (f *fakeStorage) ListEntries(ctx context.Context, repo string, rev domain.Revision, prefix string, recursive bool) ([]domain.Entry, error) {
	return f.list, nil
}
func (f *fakeStorage) Diff(ctx context.Context, repo string, from, to domain.Revision, pathPattern string) ([]domain.Change, error) {
	return nil, nil
}
func (f *fakeStorage) Close() error { return nil }

func TestDiffAgainstLocalUpsertsAndRemoves(t *testing.T) {
	fs := &fakeStorage{
		list: []domain.Entry{
			{Path: "/mirror/keep.txt", Type: domain.EntryText, Content: []byte("same")},
			{Path: "/mirror/stale.txt", Type: domain.EntryText, Content: []byte("gone")},
		},
	}
	e := &Engine{storage: fs}
	spec := Spec{LocalRepo: "acme/meta", LocalPath: "/mirror"}

	files := []remoteFile{
		{path: "/keep.txt", content: []byte("same")},
		{path: "/new.json", content: []byte(`{"a":1}`)},
	}

	changes, err := e.diffAgainstLocal(context.Background(), spec, files)
	if err != nil {
		t.Fatal(err)
	}

	var sawNewUpsert, sawStaleRemove, sawKeepUpsert bool
	for _, c := range changes {
		switch c.Path {
		case "/mirror/new.json":
			sawNewUpsert = c.Type == domain.ChangeUpsertJSON
		case "/mirror/stale.txt":
			sawStaleRemove = c.Type == domain.ChangeRemove
		case "/mirror/keep.txt":
			sawKeepUpsert = true
		}
	}
	if !sawNewUpsert {
		t.Error("expected new.json to be upserted")
	}
	if !sawStaleRemove {
		t.Error("expected stale.txt to be removed")
	}
	if sawKeepUpsert {
		t.Error("keep.txt is unchanged and should not appear in the change set")
	}
}

func TestReadMirrorStateMissingIsNotAnError(t *testing.T) {
	e := &Engine{storage: &fakeStorage{entries: map[string]domain.Entry{}}}
	_, ok, err := e.readMirrorState(context.Background(), Spec{LocalRepo: "acme/meta", LocalPath: "/mirror"})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no state to be reported as absent, not an error")
	}
}
