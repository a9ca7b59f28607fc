package server

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/rpc"
)

func TestNodeServesPushAndGetOverRPC(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(dir+"/.dogma", 0o700); err != nil {
		t.Fatal(err)
	}

	node, err := New(context.Background(), Config{WorkspacePath: dir}, "test", nil)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- node.Start(context.Background()) }()

	select {
	case <-node.WaitReady():
	case <-time.After(2 * time.Second):
		t.Fatal("node never became ready")
	}

	socketPath := rpc.SocketPath(dir)
	client, err := rpc.Dial(socketPath, "test")
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if err := client.CreateProject("acme"); err != nil {
		t.Fatal(err)
	}
	if err := client.CreateRepository("acme", "config"); err != nil {
		t.Fatal(err)
	}
	commit, err := client.Push(rpc.PushArgs{
		Project:      "acme",
		Repository:   "config",
		BaseRevision: domain.HeadRevision,
		Author:       "alice",
		Summary:      "add a.txt",
		Changes: []domain.Change{{
			Path: "/a.txt", Type: domain.ChangeUpsertText, TextContent: "hello",
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if commit.Revision != 2 {
		t.Fatalf("unexpected commit revision: %+v", commit)
	}

	get, err := client.Get(rpc.GetArgs{
		Project:    "acme",
		Repository: "config",
		Revision:   domain.HeadRevision,
		Query:      domain.IdentityText("/a.txt"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(get.Content) != "hello" {
		t.Fatalf("unexpected content: %s", get.Content)
	}

	if err := node.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatalf("node.Start returned: %v", err)
	}
}
