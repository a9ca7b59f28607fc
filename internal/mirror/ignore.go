package mirror

import (
	"strings"

	"github.com/denormal/go-gitignore"
)

// ignoreMatcher wraps a compiled gitignore pattern set. A nil or
// pattern-less matcher ignores nothing, so REMOTE_TO_LOCAL mirrors
// without a Gitignore field behave exactly like a full tree copy.
type ignoreMatcher struct {
	gi gitignore.GitIgnore
}

func newIgnoreMatcher(patterns []string) (*ignoreMatcher, error) {
	if len(patterns) == 0 {
		return &ignoreMatcher{}, nil
	}
	gi, err := gitignore.New(strings.NewReader(strings.Join(patterns, "\n")), "/", nil)
	if err != nil {
		return nil, err
	}
	return &ignoreMatcher{gi: gi}, nil
}

// Ignored reports whether path (POSIX-style, repo-root-relative) is
// excluded by the compiled patterns.
func (m *ignoreMatcher) Ignored(path string) bool {
	if m == nil || m.gi == nil {
		return false
	}
	match := m.gi.Match(path)
	return match != nil && match.Ignore()
}
