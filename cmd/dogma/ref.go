package main

import (
	"fmt"
	"strings"
)

// splitRepoPath parses "<project>/<repository><path>" (e.g.
// "acme/config/a.txt") into its three parts, where path always starts
// with "/".
func splitRepoPath(ref string) (project, repo, path string, err error) {
	parts := strings.SplitN(ref, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid reference %q, expected <project>/<repository>[/path]", ref)
	}
	project = parts[0]
	repo = parts[1]
	if len(parts) == 3 {
		path = "/" + parts[2]
	} else {
		path = "/"
	}
	return project, repo, path, nil
}

// splitRepo parses "<project>/<repository>" into its two parts.
func splitRepo(ref string) (project, repo string, err error) {
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid reference %q, expected <project>/<repository>", ref)
	}
	return parts[0], parts[1], nil
}
