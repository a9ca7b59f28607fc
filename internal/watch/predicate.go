package watch

import (
	"context"
	"errors"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/query"
)

// Reader is the subset of the repository read path watch predicates
// need: enough to check whether a revision edge actually touched
// something the caller cares about.
type Reader interface {
	Diff(ctx context.Context, repo string, from, to domain.Revision, pathPattern string) ([]domain.Change, error)
	Query(ctx context.Context, repo string, revision domain.Revision, q domain.Query) (query.Result, error)
}

// WatchPath blocks until a commit after lastKnownRevision touches a
// path matching pathPattern (an exact path or a "**"-glob), returning
// the revision of the first such commit. A revision bump that touches
// nothing matching is consumed silently and waiting continues, so
// pattern filtering never produces a spurious wakeup for the caller.
func WatchPath(ctx context.Context, n *Notifier, reader Reader, repo, pathPattern string, lastKnownRevision domain.Revision) (domain.Revision, error) {
	last := lastKnownRevision
	for {
		head, err := n.Wait(ctx, repo, last)
		if err != nil {
			return 0, err
		}
		changes, err := reader.Diff(ctx, repo, last, head, pathPattern)
		if err != nil {
			return 0, err
		}
		if len(changes) > 0 {
			for rev := last + 1; last >= domain.InitRevision && rev < head; rev++ {
				c, err := reader.Diff(ctx, repo, rev-1, rev, pathPattern)
				if err != nil {
					return 0, err
				}
				if len(c) > 0 {
					return rev, nil
				}
			}
			return head, nil
		}
		last = head
	}
}

// WatchQuery blocks until evaluating q produces a value different from
// the one observed at lastKnownRevision, returning the new result and
// the revision it was read at. Like WatchPath, a commit that leaves q's
// value unchanged (e.g. a JSON_PATH watch on a field nothing touched)
// is consumed silently.
func WatchQuery(ctx context.Context, n *Notifier, reader Reader, repo string, q domain.Query, lastKnownRevision domain.Revision) (query.Result, domain.Revision, error) {
	baseline, err := reader.Query(ctx, repo, lastKnownRevision, q)
	baselineOK := err == nil || errors.Is(err, domain.ErrEntryNotFound)

	last := lastKnownRevision
	for {
		head, err := WatchPath(ctx, n, reader, repo, q.Path, last)
		if err != nil {
			return query.Result{}, 0, err
		}
		res, err := reader.Query(ctx, repo, head, q)
		if err != nil && !errors.Is(err, domain.ErrEntryNotFound) {
			return query.Result{}, 0, err
		}
		if !baselineOK || !sameResult(baseline, res) {
			return res, head, nil
		}
		last = head
	}
}

func sameResult(a, b query.Result) bool {
	return string(a.Content) == string(b.Content)
}
