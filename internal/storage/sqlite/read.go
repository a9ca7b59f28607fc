package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/line/centraldogma-go/internal/domain"
)

// Find returns the entry at path as of revision.
func (s *SQLiteStorage) Find(ctx context.Context, repo string, revision domain.Revision, path string) (domain.Entry, error) {
	head, err := s.Head(ctx, repo)
	if err != nil {
		return domain.Entry{}, err
	}
	rev, err := domain.Normalize(revision, head)
	if err != nil {
		return domain.Entry{}, err
	}
	return s.findAt(ctx, s.db, repo, rev, path)
}

// findAt looks up path's entry as of rev using q, which may be *sql.DB
// or a transaction so callers mid-Commit can read consistent state.
func (s *SQLiteStorage) findAt(ctx context.Context, q querier, repo string, rev domain.Revision, path string) (domain.Entry, error) {
	var entryType string
	var content []byte
	var removed int
	err := q.QueryRowContext(ctx, `
		SELECT entry_type, content, removed FROM entry_versions
		WHERE repo_id = ? AND path = ? AND revision <= ?
		ORDER BY revision DESC LIMIT 1`, repo, path, int64(rev)).Scan(&entryType, &content, &removed)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, fmt.Errorf("%w: %s", domain.ErrEntryNotFound, path)
	}
	if err != nil {
		return domain.Entry{}, fmt.Errorf("find %s: %w", path, err)
	}
	if removed != 0 {
		return domain.Entry{}, fmt.Errorf("%w: %s", domain.ErrEntryNotFound, path)
	}
	return domain.Entry{Path: path, Type: parseEntryType(entryType), Content: content}, nil
}

// ListEntries lists entries under pathPrefix as of revision. Directory
// entries are synthesized from the set of live file paths; they are
// never stored rows.
func (s *SQLiteStorage) ListEntries(ctx context.Context, repo string, revision domain.Revision, pathPrefix string, recursive bool) ([]domain.Entry, error) {
	head, err := s.Head(ctx, repo)
	if err != nil {
		return nil, err
	}
	rev, err := domain.Normalize(revision, head)
	if err != nil {
		return nil, err
	}

	// Latest version of every path at or before rev.
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, entry_type, content, removed FROM entry_versions ev
		WHERE repo_id = ? AND revision = (
			SELECT MAX(revision) FROM entry_versions
			WHERE repo_id = ev.repo_id AND path = ev.path AND revision <= ?
		)`, repo, int64(rev))
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	prefix := strings.TrimSuffix(pathPrefix, "/")
	seenDirs := map[string]bool{}
	var out []domain.Entry
	for rows.Next() {
		var path, entryType string
		var content []byte
		var removed int
		if err := rows.Scan(&path, &entryType, &content, &removed); err != nil {
			return nil, err
		}
		if removed != 0 {
			continue
		}
		if prefix != "" && !strings.HasPrefix(path, prefix+"/") && path != prefix {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, prefix), "/")
		if !recursive {
			if slash := strings.IndexByte(rel, '/'); slash >= 0 {
				dir := prefix + "/" + rel[:slash]
				if !seenDirs[dir] {
					seenDirs[dir] = true
					out = append(out, domain.Entry{Path: dir, Type: domain.EntryDirectory})
				}
				continue
			}
		}
		out = append(out, domain.Entry{Path: path, Type: parseEntryType(entryType), Content: content})
	}
	return out, rows.Err()
}

// GetCommit returns the commit recorded at revision.
func (s *SQLiteStorage) GetCommit(ctx context.Context, repo string, revision domain.Revision) (domain.Commit, error) {
	head, err := s.Head(ctx, repo)
	if err != nil {
		return domain.Commit{}, err
	}
	rev, err := domain.Normalize(revision, head)
	if err != nil {
		return domain.Commit{}, err
	}
	return s.getCommitAt(ctx, s.db, repo, rev)
}

func (s *SQLiteStorage) getCommitAt(ctx context.Context, q querier, repo string, rev domain.Revision) (domain.Commit, error) {
	var author, summary, detail, markup, changesJSON string
	var ts int64
	err := q.QueryRowContext(ctx, `
		SELECT author, timestamp, summary, detail, markup, changes_json
		FROM commits WHERE repo_id = ? AND revision = ?`, repo, int64(rev)).
		Scan(&author, &ts, &summary, &detail, &markup, &changesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Commit{}, fmt.Errorf("%w: revision %d", domain.ErrRevisionNotFound, rev)
	}
	if err != nil {
		return domain.Commit{}, fmt.Errorf("get commit %d: %w", rev, err)
	}
	var changes []domain.Change
	if err := json.Unmarshal([]byte(changesJSON), &changes); err != nil {
		return domain.Commit{}, fmt.Errorf("decode changes for revision %d: %w", rev, err)
	}
	return domain.Commit{
		Revision:  rev,
		Author:    author,
		Timestamp: ts,
		Summary:   summary,
		Detail:    detail,
		Markup:    parseMarkup(markup),
		Changes:   changes,
	}, nil
}

// History returns commits in the [from, to] range, both ends inclusive,
// in the caller's traversal direction. maxCommits <= 0 means unbounded.
func (s *SQLiteStorage) History(ctx context.Context, repo string, from, to domain.Revision, pathPattern string, maxCommits int) ([]domain.Commit, error) {
	head, err := s.Head(ctx, repo)
	if err != nil {
		return nil, err
	}
	f, t, err := domain.NormalizeRange(from, to, head)
	if err != nil {
		return nil, err
	}
	lo, hi, descending := domain.Ascending(f, t)

	order := "ASC"
	if descending {
		order = "DESC"
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT revision FROM commits WHERE repo_id = ? AND revision BETWEEN ? AND ?
		ORDER BY revision %s`, order), repo, int64(lo), int64(hi))
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var revisions []domain.Revision
	for rows.Next() {
		var r int64
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		revisions = append(revisions, domain.Revision(r))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []domain.Commit
	for _, r := range revisions {
		c, err := s.getCommitAt(ctx, s.db, repo, r)
		if err != nil {
			return nil, err
		}
		if pathPattern != "" && !commitTouches(c, pathPattern) {
			continue
		}
		out = append(out, c)
		if maxCommits > 0 && len(out) >= maxCommits {
			break
		}
	}
	return out, nil
}

// Diff returns the net per-path changes observed between from and to.
// Net means: if a path was touched multiple times, only the final
// removed/content state relative to the starting revision is reported.
func (s *SQLiteStorage) Diff(ctx context.Context, repo string, from, to domain.Revision, pathPattern string) ([]domain.Change, error) {
	head, err := s.Head(ctx, repo)
	if err != nil {
		return nil, err
	}
	f, t, err := domain.NormalizeRange(from, to, head)
	if err != nil {
		return nil, err
	}
	lo, hi, _ := domain.Ascending(f, t)

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT path FROM entry_versions
		WHERE repo_id = ? AND revision > ? AND revision <= ?`, repo, int64(lo), int64(hi))
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		if pathPattern == "" || matchesPattern(p, pathPattern) {
			paths = append(paths, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []domain.Change
	for _, p := range paths {
		before, beforeErr := s.findAt(ctx, s.db, repo, lo, p)
		after, afterErr := s.findAt(ctx, s.db, repo, hi, p)

		switch {
		case errors.Is(afterErr, domain.ErrEntryNotFound):
			if errors.Is(beforeErr, domain.ErrEntryNotFound) {
				continue // never existed in range, nothing net
			}
			out = append(out, domain.Change{Path: p, Type: domain.ChangeRemove})
		case after.Type == domain.EntryJSON:
			out = append(out, domain.Change{Path: p, Type: domain.ChangeUpsertJSON, JSONContent: json.RawMessage(after.Content)})
		default:
			out = append(out, domain.Change{Path: p, Type: domain.ChangeUpsertText, TextContent: string(after.Content)})
		}
		_ = before
	}
	return out, nil
}

func commitTouches(c domain.Commit, pathPattern string) bool {
	for _, ch := range c.Changes {
		if matchesPattern(ch.Path, pathPattern) {
			return true
		}
		if ch.Type == domain.ChangeRename && matchesPattern(ch.TargetPath, pathPattern) {
			return true
		}
	}
	return false
}

// querier lets read helpers run against either *sql.DB or an in-flight
// *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func parseEntryType(s string) domain.EntryType {
	switch s {
	case "JSON":
		return domain.EntryJSON
	case "DIRECTORY":
		return domain.EntryDirectory
	default:
		return domain.EntryText
	}
}

func entryTypeString(t domain.EntryType) string {
	switch t {
	case domain.EntryJSON:
		return "JSON"
	case domain.EntryDirectory:
		return "DIRECTORY"
	default:
		return "TEXT"
	}
}

func parseMarkup(s string) domain.Markup {
	if s == "MARKDOWN" {
		return domain.MarkupMarkdown
	}
	return domain.MarkupPlaintext
}
