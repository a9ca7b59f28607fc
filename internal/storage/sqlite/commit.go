package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/patch"
)

// Commit appends a new commit built from changes. If baseRevision equals
// the current head the changes apply directly; if the head has moved on,
// every touched path is checked against what changed in
// (baseRevision, head]. A path with no intervening change applies as
// declared. A path that was touched is only rebased automatically when
// the change is a patch op (APPLY_TEXT_PATCH / APPLY_JSON_PATCH) and the
// patch still applies cleanly against the new content; anything else
// that collides with an intervening change fails with
// *domain.ConflictError, forcing the caller to re-read and retry.
func (s *SQLiteStorage) Commit(ctx context.Context, repo string, baseRevision domain.Revision, author, summary, detail string, markup domain.Markup, changes []domain.Change) (domain.Commit, error) {
	if len(changes) == 0 {
		return domain.Commit{}, fmt.Errorf("%w: commit has no changes", domain.ErrRedundantChange)
	}

	lock := s.repoLock(repo)
	if err := lock.Lock(); err != nil {
		return domain.Commit{}, fmt.Errorf("acquire commit lock for %s: %w", repo, err)
	}
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Commit{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var head int64
	if err := tx.QueryRowContext(ctx, `SELECT head_revision FROM repositories WHERE repo_id = ?`, repo).Scan(&head); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Commit{}, fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, repo)
		}
		return domain.Commit{}, fmt.Errorf("read head: %w", err)
	}
	headRev := domain.Revision(head)

	base, err := domain.Normalize(baseRevision, headRev)
	if err != nil {
		return domain.Commit{}, err
	}

	resolved, err := s.rebaseChanges(ctx, tx, repo, base, headRev, changes)
	if err != nil {
		return domain.Commit{}, err
	}

	newRev := headRev + 1
	anyNetChange := false

	for _, rc := range resolved {
		prior, priorErr := s.findAt(ctx, tx, repo, headRev, rc.path)
		existed := priorErr == nil

		if rc.removed {
			if !existed {
				continue // removing something already absent: no-op, not net change
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO entry_versions (repo_id, path, revision, entry_type, content, removed)
				VALUES (?, ?, ?, ?, NULL, 1)`, repo, rc.path, int64(newRev), entryTypeString(prior.Type)); err != nil {
				return domain.Commit{}, fmt.Errorf("remove %s: %w", rc.path, err)
			}
			anyNetChange = true
			continue
		}

		if existed && prior.Type == rc.entryType && string(prior.Content) == string(rc.content) {
			continue // identical to current value: no net change
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entry_versions (repo_id, path, revision, entry_type, content, removed)
			VALUES (?, ?, ?, ?, ?, 0)`, repo, rc.path, int64(newRev), entryTypeString(rc.entryType), rc.content); err != nil {
			return domain.Commit{}, fmt.Errorf("upsert %s: %w", rc.path, err)
		}
		anyNetChange = true
	}

	if !anyNetChange {
		return domain.Commit{}, fmt.Errorf("%w: no effective change to %s", domain.ErrRedundantChange, repo)
	}

	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return domain.Commit{}, fmt.Errorf("encode changes: %w", err)
	}
	ts := nowMillis()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO commits (repo_id, revision, author, timestamp, summary, detail, markup, changes_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		repo, int64(newRev), author, ts, summary, detail, markup.String(), string(changesJSON)); err != nil {
		return domain.Commit{}, fmt.Errorf("insert commit: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE repositories SET head_revision = ? WHERE repo_id = ?`, int64(newRev), repo); err != nil {
		return domain.Commit{}, fmt.Errorf("advance head: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Commit{}, fmt.Errorf("commit transaction: %w", err)
	}

	return domain.Commit{
		Revision:  newRev,
		Author:    author,
		Timestamp: ts,
		Summary:   summary,
		Detail:    detail,
		Markup:    markup,
		Changes:   changes,
	}, nil
}

// resolvedEntry is the final path state a Change resolves to, computed
// against the actual head at commit time.
type resolvedEntry struct {
	path      string
	removed   bool
	entryType domain.EntryType
	content   []byte
}

// rebaseChanges resolves each declared Change into its final entry
// state, detecting and (where possible) reconciling collisions with
// commits made between base and head.
func (s *SQLiteStorage) rebaseChanges(ctx context.Context, tx *sql.Tx, repo string, base, head domain.Revision, changes []domain.Change) ([]resolvedEntry, error) {
	var out []resolvedEntry
	for _, ch := range changes {
		touchedSince, err := s.touchedSince(ctx, tx, repo, ch.Path, base, head)
		if err != nil {
			return nil, err
		}

		switch ch.Type {
		case domain.ChangeUpsertText:
			if touchedSince {
				return nil, domain.NewConflict(ch.Path, "path was modified concurrently")
			}
			out = append(out, resolvedEntry{path: ch.Path, entryType: domain.EntryText, content: []byte(ch.TextContent)})

		case domain.ChangeUpsertJSON:
			if touchedSince {
				return nil, domain.NewConflict(ch.Path, "path was modified concurrently")
			}
			out = append(out, resolvedEntry{path: ch.Path, entryType: domain.EntryJSON, content: []byte(ch.JSONContent)})

		case domain.ChangeRemove:
			if touchedSince {
				return nil, domain.NewConflict(ch.Path, "path was modified concurrently")
			}
			out = append(out, resolvedEntry{path: ch.Path, removed: true})

		case domain.ChangeRename:
			if touchedSince {
				return nil, domain.NewConflict(ch.Path, "path was modified concurrently")
			}
			targetTouched, err := s.touchedSince(ctx, tx, repo, ch.TargetPath, base, head)
			if err != nil {
				return nil, err
			}
			if targetTouched {
				return nil, domain.NewConflict(ch.TargetPath, "rename target was modified concurrently")
			}
			cur, err := s.findAt(ctx, tx, repo, head, ch.Path)
			if err != nil {
				return nil, err
			}
			if _, err := s.findAt(ctx, tx, repo, head, ch.TargetPath); err == nil {
				return nil, domain.NewConflict(ch.TargetPath, "rename target already exists")
			}
			out = append(out, resolvedEntry{path: ch.Path, removed: true})
			out = append(out, resolvedEntry{path: ch.TargetPath, entryType: cur.Type, content: cur.Content})

		case domain.ChangeApplyTextPatch:
			cur, err := s.findAt(ctx, tx, repo, head, ch.Path)
			if err != nil {
				return nil, err
			}
			patched, err := patch.ApplyText(ch.Path, string(cur.Content), ch.TextPatch)
			if err != nil {
				return nil, err
			}
			out = append(out, resolvedEntry{path: ch.Path, entryType: domain.EntryText, content: []byte(patched)})

		case domain.ChangeApplyJSONPatch:
			cur, err := s.findAt(ctx, tx, repo, head, ch.Path)
			if err != nil {
				return nil, err
			}
			patched, err := patch.ApplyJSON(ch.Path, cur.Content, ch.JSONPatch)
			if err != nil {
				return nil, err
			}
			out = append(out, resolvedEntry{path: ch.Path, entryType: domain.EntryJSON, content: patched})

		default:
			return nil, fmt.Errorf("unknown change type for %s", ch.Path)
		}
	}
	return out, nil
}

// touchedSince reports whether path has an entry_versions row in
// (base, head]; if base == head nothing could have changed since.
func (s *SQLiteStorage) touchedSince(ctx context.Context, tx *sql.Tx, repo, path string, base, head domain.Revision) (bool, error) {
	if base >= head {
		return false, nil
	}
	var exists int
	err := tx.QueryRowContext(ctx, `
		SELECT 1 FROM entry_versions
		WHERE repo_id = ? AND path = ? AND revision > ? AND revision <= ? LIMIT 1`,
		repo, path, int64(base), int64(head)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check concurrent changes to %s: %w", path, err)
	}
	return true, nil
}
