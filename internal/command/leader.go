package command

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
)

// LeaderElector makes exactly one replica in a zone the leader at any
// time, using an exclusive lock on a per-zone file as the arbiter: the
// replica holding the lock is the leader until Run's context is
// cancelled or the process exits; removing the lock file does not
// demote a running leader.
// Leader-scoped plugins (the mirror engine) subscribe via Changes to
// start when elected and stop when deposed.
type LeaderElector struct {
	lock      *flock.Flock
	pollEvery time.Duration
	isLeader  atomic.Bool
	changes   chan bool
}

// NewLeaderElector builds an elector for zone, using a lock file under
// stateDir. pollEvery controls how often a non-leader retries
// acquisition; a leader that holds the lock never polls, it blocks on
// context cancellation instead.
func NewLeaderElector(stateDir, zone string, pollEvery time.Duration) *LeaderElector {
	return &LeaderElector{
		lock:      flock.New(filepath.Join(stateDir, "zone-"+zone+".leader.lock")),
		pollEvery: pollEvery,
		changes:   make(chan bool, 1),
	}
}

// IsLeader reports whether this node currently holds zone leadership.
func (e *LeaderElector) IsLeader() bool {
	return e.isLeader.Load()
}

// Changes delivers true on election and false on demotion. It is
// buffered by 1; a slow consumer only ever sees the most recent
// transition, never a backlog of stale ones.
func (e *LeaderElector) Changes() <-chan bool {
	return e.changes
}

// Run acquires leadership when possible and holds it until ctx is
// cancelled, retrying at pollEvery while it isn't
// the leader. It returns when ctx is done.
func (e *LeaderElector) Run(ctx context.Context) error {
	defer e.setLeader(false)

	ticker := time.NewTicker(e.pollEvery)
	defer ticker.Stop()

	for {
		ok, err := e.lock.TryLock()
		if err == nil && ok {
			e.setLeader(true)
			<-ctx.Done()
			e.lock.Unlock()
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *LeaderElector) setLeader(v bool) {
	if e.isLeader.Swap(v) == v {
		return
	}
	select {
	case e.changes <- v:
	default:
		// Drain the stale pending value and replace it with the
		// current one so Changes never blocks Run.
		select {
		case <-e.changes:
		default:
		}
		e.changes <- v
	}
}
