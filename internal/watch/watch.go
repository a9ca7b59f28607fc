// Package watch implements the revision-edge long-poll primitive every
// watch request is built on: callers already holding a revision they've
// seen ask to be woken the moment a repository's head advances past it,
// with at-most-once delivery and cooperative cancellation via context.
package watch

import (
	"context"
	"sync"

	"github.com/line/centraldogma-go/internal/domain"
)

// Notifier tracks, per repository, the set of goroutines blocked in
// Wait and releases them in subscription order whenever Signal reports
// a new head revision.
type Notifier struct {
	mu    sync.Mutex
	repos map[string]*repoState
}

type repoState struct {
	head    domain.Revision
	waiters []chan domain.Revision // FIFO: appended in Wait, drained in Signal in order
}

// NewNotifier builds an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{repos: make(map[string]*repoState)}
}

// Signal records repo's new head and wakes every waiter currently
// blocked on it, oldest subscriber first. Each waiter is delivered to
// exactly once (the channel is buffered and removed from the list
// before sending), so a slow waiter can never miss being woken nor be
// woken twice for the same Signal.
func (n *Notifier) Signal(repo string, head domain.Revision) {
	n.mu.Lock()
	st, ok := n.repos[repo]
	if !ok {
		st = &repoState{}
		n.repos[repo] = st
	}
	if head <= st.head {
		n.mu.Unlock()
		return
	}
	st.head = head
	waiters := st.waiters
	st.waiters = nil
	n.mu.Unlock()

	for _, ch := range waiters {
		ch <- head
	}
}

// Wait blocks until repo's head advances past lastKnownRevision, ctx is
// cancelled, or the deadline ctx carries elapses, whichever comes
// first. It returns the new head revision, or ctx.Err() on
// cancellation/timeout.
func (n *Notifier) Wait(ctx context.Context, repo string, lastKnownRevision domain.Revision) (domain.Revision, error) {
	n.mu.Lock()
	st, ok := n.repos[repo]
	if !ok {
		st = &repoState{}
		n.repos[repo] = st
	}
	if st.head > lastKnownRevision {
		head := st.head
		n.mu.Unlock()
		return head, nil
	}
	ch := make(chan domain.Revision, 1)
	st.waiters = append(st.waiters, ch)
	n.mu.Unlock()

	select {
	case head := <-ch:
		return head, nil
	case <-ctx.Done():
		n.cancelWaiter(repo, ch)
		return 0, ctx.Err()
	}
}

// cancelWaiter removes ch from repo's waiter list so a cancelled Wait
// doesn't leak a slot that Signal would otherwise try to deliver to
// forever (the channel is never read again once Wait returns).
func (n *Notifier) cancelWaiter(repo string, ch chan domain.Revision) {
	n.mu.Lock()
	defer n.mu.Unlock()
	st, ok := n.repos[repo]
	if !ok {
		return
	}
	for i, w := range st.waiters {
		if w == ch {
			st.waiters = append(st.waiters[:i], st.waiters[i+1:]...)
			break
		}
	}
}

// Head returns the last revision Signal observed for repo, or
// domain.HeadRevision (0) if Signal has never been called for it.
func (n *Notifier) Head(repo string) domain.Revision {
	n.mu.Lock()
	defer n.mu.Unlock()
	if st, ok := n.repos[repo]; ok {
		return st.head
	}
	return domain.HeadRevision
}
