package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/line/centraldogma-go/internal/domain"
)

// EnsureRepository creates repo's commit log, bootstrapping it with the
// system-authored initial commit at revision 1, unless it already
// exists.
func (s *SQLiteStorage) EnsureRepository(ctx context.Context, repo string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM repositories WHERE repo_id = ?`, repo).Scan(&exists)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check repository %s: %w", repo, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO repositories (repo_id, created_at, head_revision) VALUES (?, ?, ?)`,
		repo, nowMillis(), int64(domain.InitRevision)); err != nil {
		return fmt.Errorf("create repository %s: %w", repo, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO commits (repo_id, revision, author, timestamp, summary, detail, markup, changes_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, '[]')`,
		repo, int64(domain.InitRevision), domain.SystemAuthor, nowMillis(), "Create a new repository", "", domain.MarkupPlaintext.String()); err != nil {
		return fmt.Errorf("seed initial commit for %s: %w", repo, err)
	}
	return tx.Commit()
}

// RemoveRepository deletes repo's entire commit log and entry history.
func (s *SQLiteStorage) RemoveRepository(ctx context.Context, repo string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entry_versions WHERE repo_id = ?`, repo); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM commits WHERE repo_id = ?`, repo); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM repositories WHERE repo_id = ?`, repo)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, repo)
	}
	return tx.Commit()
}

// Head returns repo's current head revision.
func (s *SQLiteStorage) Head(ctx context.Context, repo string) (domain.Revision, error) {
	var head int64
	err := s.db.QueryRowContext(ctx, `SELECT head_revision FROM repositories WHERE repo_id = ?`, repo).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, repo)
	}
	if err != nil {
		return 0, fmt.Errorf("read head for %s: %w", repo, err)
	}
	return domain.Revision(head), nil
}
