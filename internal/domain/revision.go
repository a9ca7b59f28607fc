package domain

import "fmt"

// Revision identifies a committed state of a repository. Positive values
// count commits from 1 (the initial, system-authored commit). Two
// sentinels are recognized by Normalize: HeadRevision means "the latest
// commit" and negative integers address from the end the same way HEAD~N
// does in git (-1 == HEAD, -N == HEAD-N+1).
type Revision int64

// InitRevision is the first commit of every repository.
const InitRevision Revision = 1

// HeadRevision is the sentinel meaning "the latest commit". It is never a
// valid concrete revision number; Normalize always resolves it away.
const HeadRevision Revision = 0

// IsRelative reports whether r needs Normalize to become a concrete,
// storage-addressable revision (HEAD or a negative offset from HEAD).
func (r Revision) IsRelative() bool {
	return r == HeadRevision || r < 0
}

// Normalize resolves r against the given head revision, returning a
// concrete positive Revision or ErrRevisionNotFound if the result falls
// outside [1, head].
func Normalize(r Revision, head Revision) (Revision, error) {
	var resolved Revision
	switch {
	case r == HeadRevision:
		resolved = head
	case r < 0:
		// -1 == head, -2 == head-1, ...
		resolved = head + r + 1
	default:
		resolved = r
	}
	if resolved < InitRevision || resolved > head {
		return 0, fmt.Errorf("%w: revision %d (head=%d)", ErrRevisionNotFound, r, head)
	}
	return resolved, nil
}

// NormalizeRange resolves each end of a (from, to) pair against head
// independently and returns them in the same positions, so the pair's
// direction is that of the resolved values: (HEAD, INIT) with head 10
// becomes (10, 1), a descending pair. Values that resolve equal collapse
// to (v, v).
func NormalizeRange(from, to Revision, head Revision) (Revision, Revision, error) {
	f, err := Normalize(from, head)
	if err != nil {
		return 0, 0, err
	}
	t, err := Normalize(to, head)
	if err != nil {
		return 0, 0, err
	}
	return f, t, nil
}

// Ascending reorders (from, to) so the lower revision comes first,
// returning whether a swap happened (i.e. the caller's range was
// descending).
func Ascending(from, to Revision) (lo, hi Revision, descending bool) {
	if from > to {
		return to, from, true
	}
	return from, to, false
}

func (r Revision) String() string {
	switch {
	case r == HeadRevision:
		return "HEAD"
	case r < 0:
		return fmt.Sprintf("HEAD%d", r+1)
	default:
		return fmt.Sprintf("%d", int64(r))
	}
}
