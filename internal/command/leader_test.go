package command

import (
	"context"
	"testing"
	"time"
)

func TestLeaderElectorSingleNodeBecomesLeader(t *testing.T) {
	dir := t.TempDir()
	e := NewLeaderElector(dir, "zone-a", 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	select {
	case v := <-e.Changes():
		if !v {
			t.Fatal("expected election, got demotion")
		}
	case <-time.After(time.Second):
		t.Fatal("never elected")
	}
	if !e.IsLeader() {
		t.Fatal("expected IsLeader true")
	}

	<-done
	if e.IsLeader() {
		t.Fatal("expected demotion after ctx cancellation")
	}
}

func TestLeaderElectorSecondNodeStandsBy(t *testing.T) {
	dir := t.TempDir()
	leader := NewLeaderElector(dir, "zone-a", 10*time.Millisecond)
	standby := NewLeaderElector(dir, "zone-a", 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	go leader.Run(ctx)
	go standby.Run(ctx)

	// Give the leader time to win the lock, well before the context
	// deadline demotes it again.
	time.Sleep(100 * time.Millisecond)

	if leader.IsLeader() == standby.IsLeader() {
		t.Fatalf("expected exactly one leader, got leader=%v standby=%v", leader.IsLeader(), standby.IsLeader())
	}
	if !leader.IsLeader() {
		t.Fatal("expected the first node to win the lock")
	}
}
