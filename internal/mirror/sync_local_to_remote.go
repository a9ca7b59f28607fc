package mirror

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	memstorage "github.com/go-git/go-git/v5/storage/memory"

	"github.com/line/centraldogma-go/internal/domain"
)

// maxPushAttempts bounds the refetch-and-retry loop LOCAL_TO_REMOTE
// falls back to on a non-fast-forward push rejection.
const maxPushAttempts = 3

// runLocalToRemote implements the LOCAL_TO_REMOTE steps: materialize
// the local tree into a working copy of the remote branch, commit, and
// push, retrying a bounded number of times on a non-fast-forward
// rejection before giving up with a MirrorException-equivalent error.
func (e *Engine) runLocalToRemote(ctx context.Context, spec Spec, auth transport.AuthMethod) error {
	ref, err := parseRemoteURI(spec.RemoteURI)
	if err != nil {
		return err
	}

	entries, err := e.storage.ListEntries(ctx, spec.LocalRepo, domain.HeadRevision, spec.LocalPath, true)
	if err != nil {
		return err
	}
	local := make(map[string][]byte, len(entries))
	for _, en := range entries {
		if en.Type == domain.EntryDirectory {
			continue
		}
		rel := strings.TrimPrefix(en.Path, spec.LocalPath)
		local[path.Clean("/"+rel)] = en.Content
	}

	var lastErr error
	for attempt := 0; attempt < maxPushAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		fs, repo, err := cloneForPush(ctx, ref, auth)
		if err != nil {
			return fmt.Errorf("%w: clone %s for push: %v", domain.ErrMirror, spec.RemoteURI, err)
		}

		if err := materializeWorkingTree(fs, ref.SubPath, local); err != nil {
			return fmt.Errorf("%w: materialize working tree: %v", domain.ErrMirror, err)
		}

		wt, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMirror, err)
		}
		if _, err := wt.Add("."); err != nil {
			return fmt.Errorf("%w: stage changes: %v", domain.ErrMirror, err)
		}
		status, err := wt.Status()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMirror, err)
		}
		if status.IsClean() {
			return nil // nothing to push
		}

		_, err = wt.Commit(fmt.Sprintf("Mirror update from %s", spec.LocalRepo), &git.CommitOptions{
			Author: &object.Signature{Name: "dogma", Email: "dogma@localhost", When: mirrorNow()},
		})
		if err != nil {
			return fmt.Errorf("%w: commit: %v", domain.ErrMirror, err)
		}

		pushOpts := &git.PushOptions{Auth: auth}
		if ref.Branch != "" {
			pushOpts.RefSpecs = []config.RefSpec{refSpecForBranch(ref.Branch)}
		}
		err = repo.PushContext(ctx, pushOpts)
		if err == nil {
			return nil
		}
		if err == git.NoErrAlreadyUpToDate {
			return nil
		}
		if !isNonFastForward(err) {
			return fmt.Errorf("%w: push: %v", domain.ErrMirror, err)
		}
		lastErr = err
	}
	return fmt.Errorf("%w: push to %s rejected after %d attempts: %v", domain.ErrMirror, spec.RemoteURI, maxPushAttempts, lastErr)
}

// mirrorNow exists so tests can't accidentally depend on wall-clock
// behavior leaking into commit content; production always uses the
// real clock.
var mirrorNow = time.Now

func cloneForPush(ctx context.Context, ref remoteRef, auth transport.AuthMethod) (billy.Filesystem, *git.Repository, error) {
	fs := memfs.New()
	opts := &git.CloneOptions{URL: ref.CloneURL, Auth: auth}
	if ref.Branch != "" {
		opts.ReferenceName = branchRef(ref.Branch)
		opts.SingleBranch = true
	}
	repo, err := git.CloneContext(ctx, memstorage.NewStorage(), fs, opts)
	return fs, repo, err
}

// materializeWorkingTree overwrites fs under subPath so it exactly
// matches local (path -> content, relative to the repo's sub-path),
// removing any tracked file not present in local.
func materializeWorkingTree(fs billy.Filesystem, subPath string, local map[string][]byte) error {
	root := path.Clean("/" + subPath)
	if root == "/." {
		root = "/"
	}
	existing, _ := walkBillyTree(fs, root, &ignoreMatcher{})
	for _, f := range existing {
		if _, keep := local[f.path]; !keep {
			fs.Remove(path.Join(root, f.path))
		}
	}
	for rel, content := range local {
		full := path.Join(root, rel)
		if err := fs.MkdirAll(path.Dir(full), 0o750); err != nil {
			return err
		}
		file, err := fs.Create(full)
		if err != nil {
			return err
		}
		_, werr := file.Write(content)
		cerr := file.Close()
		if werr != nil {
			return werr
		}
		if cerr != nil {
			return cerr
		}
	}
	return nil
}

func refSpecForBranch(branch string) config.RefSpec {
	return config.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch))
}

func isNonFastForward(err error) bool {
	return err != nil && strings.Contains(err.Error(), "non-fast-forward")
}
