package mirror

import (
	"fmt"
	"net/url"
	"strings"
)

// remoteRef is a parsed remoteUri: git+http|git+https|git+ssh://host[:port]/…/x.git[/sub][#branch].
type remoteRef struct {
	CloneURL string // the bare clone URL, without the git+ scheme prefix or the sub-path/fragment
	SubPath  string // path within the repo this mirror is scoped to ("" for the whole repo)
	Branch   string // "" means the remote's default branch
}

func parseRemoteURI(remoteURI string) (remoteRef, error) {
	trimmed := strings.TrimPrefix(remoteURI, "git+")
	u, err := url.Parse(trimmed)
	if err != nil {
		return remoteRef{}, fmt.Errorf("invalid remote URI %q: %w", remoteURI, err)
	}
	branch := u.Fragment
	u.Fragment = ""

	path := u.Path
	idx := strings.Index(path, ".git")
	if idx < 0 {
		return remoteRef{}, fmt.Errorf("remote URI %q is missing a .git repository path", remoteURI)
	}
	repoPath := path[:idx+len(".git")]
	subPath := strings.TrimPrefix(path[idx+len(".git"):], "/")

	cloneURL := *u
	cloneURL.Path = repoPath
	return remoteRef{CloneURL: cloneURL.String(), SubPath: subPath, Branch: branch}, nil
}
