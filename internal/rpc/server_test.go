package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/line/centraldogma-go/internal/cache"
	"github.com/line/centraldogma-go/internal/command"
	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/project"
	"github.com/line/centraldogma-go/internal/storage/sqlite"
	"github.com/line/centraldogma-go/internal/watch"
)

func newTestServer(t *testing.T) (*Server, string) {
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
	notifier := watch.NewNotifier()
	ex, err := command.New(dir, mgr, store, notifier)
	if err != nil {
		t.Fatal(err)
	}
	reader, err := cache.New(store, 1024, 16<<20)
	if err != nil {
		t.Fatal(err)
	}

	srv := NewServer(Deps{
		Executor: ex,
		Reader:   reader,
		Store:    store,
		Projects: mgr,
		Notifier: notifier,
		Version:  "test",
	})

	socketPath := dir + "/dogma.sock"
	go func() {
		if err := srv.Start(context.Background(), socketPath); err != nil {
			t.Logf("server exited: %v", err)
		}
	}()
	select {
	case <-srv.WaitReady():
	case <-time.After(2 * time.Second):
		t.Fatal("server never became ready")
	}
	t.Cleanup(srv.Stop)
	return srv, socketPath
}

func TestPingAndStatus(t *testing.T) {
	_, socketPath := newTestServer(t)
	c, err := Dial(socketPath, "test")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ping, err := c.Ping()
	if err != nil {
		t.Fatal(err)
	}
	if ping.Message != "pong" {
		t.Fatalf("unexpected ping response: %+v", ping)
	}

	status, err := c.Status()
	if err != nil {
		t.Fatal(err)
	}
	if !status.Writable {
		t.Fatalf("expected a fresh node to be writable, got %+v", status)
	}
}

func TestCreateProjectPushAndGet(t *testing.T) {
	_, socketPath := newTestServer(t)
	c, err := Dial(socketPath, "test")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.CreateProject("acme"); err != nil {
		t.Fatal(err)
	}
	if err := c.CreateRepository("acme", "config"); err != nil {
		t.Fatal(err)
	}

	commit, err := c.Push(PushArgs{
		Project:      "acme",
		Repository:   "config",
		BaseRevision: domain.HeadRevision,
		Author:       "alice",
		Summary:      "add a.json",
		Changes: []domain.Change{{
			Path: "/a.json", Type: domain.ChangeUpsertJSON, JSONContent: []byte(`{"x":1}`),
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if commit.Revision != 2 {
		t.Fatalf("unexpected commit revision: %+v", commit)
	}

	get, err := c.Get(GetArgs{
		Project:    "acme",
		Repository: "config",
		Revision:   domain.HeadRevision,
		Query:      domain.Identity("/a.json"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(get.Content) != `{"x":1}` {
		t.Fatalf("unexpected content: %s", get.Content)
	}
}

func TestRemoveAndRestoreRepositoryOverRPC(t *testing.T) {
	_, socketPath := newTestServer(t)
	c, err := Dial(socketPath, "test")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.CreateProject("acme"); err != nil {
		t.Fatal(err)
	}
	if err := c.CreateRepository("acme", "r1"); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveRepository("acme", "r1"); err != nil {
		t.Fatal(err)
	}
	if err := c.RestoreRepository("acme", "r1"); err != nil {
		t.Fatalf("expected restore to succeed, got %v", err)
	}
}

func TestWatchWakesOnPush(t *testing.T) {
	_, socketPath := newTestServer(t)
	writer, err := Dial(socketPath, "test")
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()
	watcher, err := Dial(socketPath, "test")
	if err != nil {
		t.Fatal(err)
	}
	defer watcher.Close()

	if err := writer.CreateProject("acme"); err != nil {
		t.Fatal(err)
	}
	if err := writer.CreateRepository("acme", "config"); err != nil {
		t.Fatal(err)
	}

	type result struct {
		resp WatchResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := watcher.Watch(WatchArgs{
			Project:           "acme",
			Repository:        "config",
			PathPattern:       "/a.json",
			LastKnownRevision: 1,
			TimeoutMillis:     5000,
		})
		done <- result{resp, err}
	}()

	time.Sleep(50 * time.Millisecond)
	if _, err := writer.Push(PushArgs{
		Project:      "acme",
		Repository:   "config",
		BaseRevision: domain.HeadRevision,
		Author:       "alice",
		Summary:      "add a.json",
		Changes: []domain.Change{{
			Path: "/a.json", Type: domain.ChangeUpsertJSON, JSONContent: []byte(`{"x":1}`),
		}},
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatal(r.err)
		}
		if r.resp.Revision != 2 {
			t.Fatalf("unexpected watch revision: %+v", r.resp)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watch never woke up")
	}
}
