package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	memstorage "github.com/go-git/go-git/v5/storage/memory"

	"github.com/line/centraldogma-go/internal/domain"
)

// mirrorStateFile records the last-synced remote commit so a
// REMOTE_TO_LOCAL pass can short-circuit when the remote hasn't moved.
const mirrorStateFile = "mirror_state.json"

type mirrorState struct {
	SourceRevision string `json:"sourceRevision"`
}

// runRemoteToLocal implements the four REMOTE_TO_LOCAL steps: clone or
// fetch the remote ref, walk the tree applying the gitignore filter and
// size/count caps, diff against the current local state, and commit
// the delta under author "system".
func (e *Engine) runRemoteToLocal(ctx context.Context, spec Spec, auth transport.AuthMethod) error {
	ref, err := parseRemoteURI(spec.RemoteURI)
	if err != nil {
		return err
	}

	fs, head, err := cloneToMemory(ctx, ref, auth)
	if err != nil {
		return fmt.Errorf("%w: clone %s: %v", domain.ErrMirror, spec.RemoteURI, err)
	}
	sourceRev := head.String()

	if state, ok, err := e.readMirrorState(ctx, spec); err == nil && ok && state.SourceRevision == sourceRev {
		return nil // unchanged since the last successful pass
	}

	repoRoot := path.Clean("/" + ref.SubPath)
	if repoRoot == "/." {
		repoRoot = "/"
	}

	ignore, err := newIgnoreMatcher(spec.Gitignore)
	if err != nil {
		return fmt.Errorf("%w: compile gitignore: %v", domain.ErrMirror, err)
	}

	files, err := walkBillyTree(fs, repoRoot, ignore)
	if err != nil {
		return fmt.Errorf("%w: walk remote tree: %v", domain.ErrMirror, err)
	}

	if e.Config.MaxNumFilesPerMirror > 0 && len(files) > e.Config.MaxNumFilesPerMirror {
		return fmt.Errorf("%w: mirror %s exceeds maxNumFilesPerMirror (%d > %d)",
			domain.ErrMirror, spec.ID, len(files), e.Config.MaxNumFilesPerMirror)
	}
	var totalBytes int64
	for _, f := range files {
		totalBytes += int64(len(f.content))
	}
	if e.Config.MaxNumBytesPerMirror > 0 && totalBytes > e.Config.MaxNumBytesPerMirror {
		return fmt.Errorf("%w: mirror %s exceeds maxNumBytesPerMirror (%d > %d)",
			domain.ErrMirror, spec.ID, totalBytes, e.Config.MaxNumBytesPerMirror)
	}

	changes, err := e.diffAgainstLocal(ctx, spec, files)
	if err != nil {
		return err
	}
	stateBytes, err := json.Marshal(mirrorState{SourceRevision: sourceRev})
	if err != nil {
		return err
	}
	changes = append(changes, domain.Change{
		Path:        path.Join(spec.LocalPath, mirrorStateFile),
		Type:        domain.ChangeUpsertJSON,
		JSONContent: stateBytes,
	})
	if len(changes) == 0 {
		return nil
	}

	repo := spec.LocalRepo
	baseRev, err := e.storage.Head(ctx, repo)
	if err != nil {
		return err
	}
	_, err = e.storage.Commit(ctx, repo, baseRev, domain.SystemAuthor,
		fmt.Sprintf("Mirror from %s (%s)", spec.RemoteURI, shortSHA(sourceRev)), "",
		domain.MarkupPlaintext, changes)
	if err != nil && err != domain.ErrRedundantChange {
		return err
	}
	return nil
}

type remoteFile struct {
	path    string // local-path-relative, POSIX, leading "/"
	content []byte
}

// cloneToMemory clones ref's repository into an in-memory billy
// filesystem (no working directory ever touches disk, which is what
// lets the engine run many mirrors concurrently on a bounded worker
// pool) and returns its working tree filesystem plus the resolved HEAD.
func cloneToMemory(ctx context.Context, ref remoteRef, auth transport.AuthMethod) (billy.Filesystem, plumbingHash, error) {
	fs := memfs.New()
	opts := &git.CloneOptions{URL: ref.CloneURL, Auth: auth, SingleBranch: ref.Branch != ""}
	if ref.Branch != "" {
		opts.ReferenceName = branchRef(ref.Branch)
	}
	repo, err := git.CloneContext(ctx, memstorage.NewStorage(), fs, opts)
	if err != nil {
		return nil, plumbingHash{}, err
	}
	headRef, err := repo.Head()
	if err != nil {
		return nil, plumbingHash{}, err
	}
	return fs, plumbingHash{headRef.Hash().String()}, nil
}

// plumbingHash carries a resolved commit hash as a string so callers
// outside this file don't need to depend on go-git's plumbing package.
type plumbingHash struct{ s string }

func (h plumbingHash) String() string { return h.s }

func branchRef(branch string) plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(branch)
}

func walkBillyTree(fs billy.Filesystem, root string, ignore *ignoreMatcher) ([]remoteFile, error) {
	var out []remoteFile
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := fs.ReadDir(dir)
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, info := range entries {
			if strings.HasPrefix(info.Name(), ".git") {
				continue
			}
			full := path.Join(dir, info.Name())
			rel := strings.TrimPrefix(full, root)
			if rel == "" {
				rel = "/"
			}
			if !strings.HasPrefix(rel, "/") {
				rel = "/" + rel
			}
			if ignore.Ignored(rel) {
				continue
			}
			if info.IsDir() {
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			f, err := fs.Open(full)
			if err != nil {
				return err
			}
			content, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return err
			}
			out = append(out, remoteFile{path: rel, content: content})
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) readMirrorState(ctx context.Context, spec Spec) (mirrorState, bool, error) {
	entry, err := e.storage.Find(ctx, spec.LocalRepo, domain.HeadRevision, path.Join(spec.LocalPath, mirrorStateFile))
	if err != nil {
		if err == domain.ErrEntryNotFound {
			return mirrorState{}, false, nil
		}
		return mirrorState{}, false, err
	}
	var st mirrorState
	if err := json.Unmarshal(entry.Content, &st); err != nil {
		return mirrorState{}, false, err
	}
	return st, true, nil
}

// diffAgainstLocal compares the remote tree (already filtered) against
// the repository's current entries under spec.LocalPath, producing the
// minimal set of UPSERT/REMOVE changes needed to make the local tree
// match.
func (e *Engine) diffAgainstLocal(ctx context.Context, spec Spec, files []remoteFile) ([]domain.Change, error) {
	local, err := e.storage.ListEntries(ctx, spec.LocalRepo, domain.HeadRevision, spec.LocalPath, true)
	if err != nil {
		return nil, err
	}
	localByPath := make(map[string]domain.Entry, len(local))
	for _, en := range local {
		if en.Type != domain.EntryDirectory {
			localByPath[en.Path] = en
		}
	}

	seen := make(map[string]bool, len(files))
	var changes []domain.Change
	for _, f := range files {
		localPath := path.Join(spec.LocalPath, f.path)
		seen[localPath] = true
		if existing, ok := localByPath[localPath]; ok && sameContent(existing, f.content) {
			continue
		}
		if isJSONPath(f.path) {
			changes = append(changes, domain.Change{Path: localPath, Type: domain.ChangeUpsertJSON, JSONContent: f.content})
		} else {
			changes = append(changes, domain.Change{Path: localPath, Type: domain.ChangeUpsertText, TextContent: string(f.content)})
		}
	}
	for p := range localByPath {
		if !seen[p] && path.Base(p) != mirrorStateFile {
			changes = append(changes, domain.Change{Path: p, Type: domain.ChangeRemove})
		}
	}
	return changes, nil
}

func sameContent(e domain.Entry, content []byte) bool {
	return string(e.Content) == string(content)
}

func isJSONPath(p string) bool {
	return strings.HasSuffix(p, ".json")
}

func shortSHA(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
