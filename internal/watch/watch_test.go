package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/line/centraldogma-go/internal/domain"
)

func TestWaitReturnsImmediatelyIfAlreadyAhead(t *testing.T) {
	n := NewNotifier()
	n.Signal("p/r", 5)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	head, err := n.Wait(ctx, "p/r", 3)
	if err != nil {
		t.Fatal(err)
	}
	if head != 5 {
		t.Fatalf("got %d", head)
	}
}

func TestWaitBlocksUntilSignal(t *testing.T) {
	n := NewNotifier()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	var gotHead domain.Revision
	var gotErr error
	go func() {
		defer wg.Done()
		gotHead, gotErr = n.Wait(ctx, "p/r", 1)
	}()

	time.Sleep(50 * time.Millisecond)
	n.Signal("p/r", 2)
	wg.Wait()

	if gotErr != nil {
		t.Fatal(gotErr)
	}
	if gotHead != 2 {
		t.Fatalf("got %d", gotHead)
	}
}

func TestWaitTimesOut(t *testing.T) {
	n := NewNotifier()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := n.Wait(ctx, "p/r", 1)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestSignalWakesMultipleWaiters(t *testing.T) {
	n := NewNotifier()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	order := make(chan int, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Wait(ctx, "p/r", 1)
			order <- i
		}()
		time.Sleep(10 * time.Millisecond) // ensure subscription order
	}
	n.Signal("p/r", 2)
	wg.Wait()
	close(order)

	var got []int
	for v := range order {
		got = append(got, v)
	}
	if len(got) != 3 {
		t.Fatalf("got %d wakeups", len(got))
	}
}
