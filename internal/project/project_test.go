package project

import (
	"context"
	"errors"
	"testing"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/storage/sqlite"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func newTestManager(t *testing.T) (*Manager, *sqlite.SQLiteStorage) {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.New(context.Background(), dir+"/test.db", dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	m, err := NewManager(context.Background(), store.DB(), store)
	if err != nil {
		t.Fatal(err)
	}
	return m, store
}

func TestCreateProjectBootstrapsMetaRepo(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t)

	if _, err := m.CreateProject(ctx, "myproj"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetRepository(ctx, "myproj", MetaRepository); err != nil {
		t.Fatalf("expected meta repo to exist: %v", err)
	}
	if _, err := store.Head(ctx, "myproj/meta"); err != nil {
		t.Fatalf("expected storage-level meta repo: %v", err)
	}
}

func TestCreateProjectCaseInsensitiveDup(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	if _, err := m.CreateProject(ctx, "Foo"); err != nil {
		t.Fatal(err)
	}
	_, err := m.CreateProject(ctx, "foo")
	if !errors.Is(err, domain.ErrProjectExists) {
		t.Fatalf("got %v", err)
	}
}

func TestDogmaProjectReserved(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	_, err := m.CreateProject(ctx, "dogma")
	if !errors.Is(err, domain.ErrProjectExists) {
		t.Fatalf("got %v", err)
	}
	if err := m.RemoveProject(ctx, "dogma"); err == nil {
		t.Fatal("expected removing dogma project to fail")
	}
}

func TestCreateRepositoryMetaReserved(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	m.CreateProject(ctx, "p")
	_, err := m.CreateRepository(ctx, "p", "meta")
	if !errors.Is(err, domain.ErrRepositoryExists) {
		t.Fatalf("got %v", err)
	}
}

func TestRemoveAndRestoreProject(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)
	m.CreateProject(ctx, "p")

	if err := m.RemoveProject(ctx, "p"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetProject(ctx, "p"); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Fatalf("got %v", err)
	}
	if err := m.RestoreProject(ctx, "p"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetProject(ctx, "p"); err != nil {
		t.Fatalf("expected restored project, got %v", err)
	}
}
