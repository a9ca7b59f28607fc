// Package patch implements the two patch formats the change engine
// supports: unified text diffs (APPLY_TEXT_PATCH) and RFC 6902 JSON
// patches extended with safeReplace (APPLY_JSON_PATCH).
package patch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/line/centraldogma-go/internal/domain"
)

// hunk is one `@@ -l,s +l,s @@` block of a unified diff.
type hunk struct {
	oldStart int
	lines    []diffLine
}

type diffLine struct {
	kind byte // ' ', '-', '+'
	text string
}

// ApplyText applies a unified diff to the given text content, returning
// the patched text. Conflicts (context lines that don't match the
// source) are reported as *domain.ConflictError.
//
// This is a hand-rolled, context-verifying unified-diff applier: the
// corpus's diff libraries (sergi/go-diff, pmezard/go-difflib) only
// generate diffs, they don't apply them, so there is no third-party
// applier to reuse here.
func ApplyText(path, original, unifiedDiff string) (string, error) {
	hunks, err := parseHunks(unifiedDiff)
	if err != nil {
		return "", fmt.Errorf("parse unified diff for %s: %w", path, err)
	}

	srcLines := splitLinesKeepEmpty(original)
	var out []string
	srcIdx := 0 // 0-based index into srcLines, tracks what's been consumed

	for _, h := range hunks {
		start := h.oldStart - 1
		if start < 0 {
			start = 0
		}
		if start > len(srcLines) {
			return "", domain.NewConflict(path, fmt.Sprintf("hunk starts at line %d past end of file (%d lines)", h.oldStart, len(srcLines)))
		}
		// Copy any untouched lines before this hunk verbatim.
		out = append(out, srcLines[srcIdx:start]...)
		srcIdx = start

		for _, dl := range h.lines {
			switch dl.kind {
			case ' ':
				if srcIdx >= len(srcLines) || srcLines[srcIdx] != dl.text {
					return "", domain.NewConflict(path, fmt.Sprintf("context mismatch at line %d", srcIdx+1))
				}
				out = append(out, srcLines[srcIdx])
				srcIdx++
			case '-':
				if srcIdx >= len(srcLines) || srcLines[srcIdx] != dl.text {
					return "", domain.NewConflict(path, fmt.Sprintf("removal context mismatch at line %d", srcIdx+1))
				}
				srcIdx++
			case '+':
				out = append(out, dl.text)
			}
		}
	}
	out = append(out, srcLines[srcIdx:]...)
	return strings.Join(out, "\n"), nil
}

func splitLinesKeepEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func parseHunks(diffText string) ([]hunk, error) {
	var hunks []hunk
	var cur *hunk
	for _, line := range strings.Split(strings.TrimSuffix(diffText, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			continue
		case strings.HasPrefix(line, "@@"):
			if cur != nil {
				hunks = append(hunks, *cur)
			}
			oldStart, err := parseHunkHeader(line)
			if err != nil {
				return nil, err
			}
			cur = &hunk{oldStart: oldStart}
		case cur == nil:
			// preamble before first hunk; ignore
			continue
		case strings.HasPrefix(line, " "):
			cur.lines = append(cur.lines, diffLine{' ', line[1:]})
		case strings.HasPrefix(line, "-"):
			cur.lines = append(cur.lines, diffLine{'-', line[1:]})
		case strings.HasPrefix(line, "+"):
			cur.lines = append(cur.lines, diffLine{'+', line[1:]})
		case line == "":
			cur.lines = append(cur.lines, diffLine{' ', ""})
		}
	}
	if cur != nil {
		hunks = append(hunks, *cur)
	}
	return hunks, nil
}

// parseHunkHeader extracts the old-file start line from "@@ -l,s +l,s @@".
func parseHunkHeader(line string) (int, error) {
	parts := strings.Fields(line)
	for _, p := range parts {
		if strings.HasPrefix(p, "-") {
			numPart := strings.TrimPrefix(p, "-")
			numPart, _, _ = strings.Cut(numPart, ",")
			n, err := strconv.Atoi(numPart)
			if err != nil {
				return 0, fmt.Errorf("malformed hunk header %q: %w", line, err)
			}
			return n, nil
		}
	}
	return 0, fmt.Errorf("malformed hunk header %q: no old-file range", line)
}
