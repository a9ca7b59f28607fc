package command

import (
	"context"
	"testing"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/project"
	"github.com/line/centraldogma-go/internal/storage/sqlite"
	"github.com/line/centraldogma-go/internal/watch"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	dir := t.TempDir()
	store, err := sqlite.New(context.Background(), dir+"/dogma.db", dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	mgr, err := project.NewManager(context.Background(), store.DB(), store)
	if err != nil {
		t.Fatal(err)
	}

	ex, err := New(dir, mgr, store, watch.NewNotifier())
	if err != nil {
		t.Fatal(err)
	}
	return ex
}

func TestSubmitCreateProjectAndPush(t *testing.T) {
	ex := newTestExecutor(t)
	ctx := context.Background()

	if _, err := ex.Submit(ctx, Command{Type: TypeCreateProject, Project: &ProjectPayload{Project: "acme"}}); err != nil {
		t.Fatal(err)
	}

	res, err := ex.Submit(ctx, Command{Type: TypePush, Push: &PushPayload{
		Project:      "acme",
		Repository:   "meta",
		BaseRevision: domain.HeadRevision,
		Author:       "alice",
		Summary:      "add config",
		Changes: []domain.Change{{
			Path: "/a.txt", Type: domain.ChangeUpsertText, TextContent: "hello",
		}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Commit == nil || res.Commit.Revision != 2 {
		t.Fatalf("unexpected commit result: %+v", res)
	}
}

func TestSubmitRestoreRepository(t *testing.T) {
	ex := newTestExecutor(t)
	ctx := context.Background()

	if _, err := ex.Submit(ctx, Command{Type: TypeCreateProject, Project: &ProjectPayload{Project: "acme"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Submit(ctx, Command{Type: TypeCreateRepository, Repo: &RepositoryPayload{Project: "acme", Repository: "r1"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Submit(ctx, Command{Type: TypeRemoveRepository, Repo: &RepositoryPayload{Project: "acme", Repository: "r1"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Submit(ctx, Command{Type: TypeRestoreRepository, Repo: &RepositoryPayload{Project: "acme", Repository: "r1"}}); err != nil {
		t.Fatalf("expected restore to succeed, got %v", err)
	}
}

func TestSubmitRejectedWhenReadOnly(t *testing.T) {
	ex := newTestExecutor(t)
	ctx := context.Background()

	if _, err := ex.Submit(ctx, Command{Type: TypeUpdateServerStatus, Status: &StatusPayload{Writable: false, Replicating: true, Scope: ScopeLocal}}); err != nil {
		t.Fatal(err)
	}

	_, err := ex.Submit(ctx, Command{Type: TypeCreateProject, Project: &ProjectPayload{Project: "acme"}})
	if err == nil {
		t.Fatal("expected ErrReadOnly")
	}
}

func TestStatusPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := sqlite.New(context.Background(), dir+"/dogma.db", dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	mgr, err := project.NewManager(context.Background(), store.DB(), store)
	if err != nil {
		t.Fatal(err)
	}

	ex1, err := New(dir, mgr, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ex1.Submit(context.Background(), Command{Type: TypeUpdateServerStatus, Status: &StatusPayload{Writable: false, Replicating: false, Scope: ScopeLocal}}); err != nil {
		t.Fatal(err)
	}

	ex2, err := New(dir, mgr, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	st := ex2.Status()
	if st.Writable || st.Replicating {
		t.Fatalf("expected persisted read-only/non-replicating status, got %+v", st)
	}
}
