package sqlite

import (
	"path"
	"strings"
)

// matchesPattern reports whether p matches pattern, a glob extended with
// "**" to mean "any number of path segments" (as in gitignore-style
// globs elsewhere in this codebase). An exact path always matches
// itself regardless of glob metacharacters.
func matchesPattern(p, pattern string) bool {
	if p == pattern {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}
	if strings.Contains(pattern, "**") {
		prefix, _, _ := strings.Cut(pattern, "**")
		return strings.HasPrefix(p, strings.TrimSuffix(prefix, "/"))
	}
	ok, err := path.Match(pattern, p)
	return err == nil && ok
}
