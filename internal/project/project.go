// Package project manages the lifecycle of projects and the
// repositories within them: creation, case-insensitive name
// reservation, and a soft-remove/restore window after which a restore
// fails; a removed row is kept, so its exact name stays taken.
package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/storage"
)

// RestoreWindow is how long a soft-removed project or repository can be
// restored; the removed row, and with it the exact name, is never
// released.
const RestoreWindow = 7 * 24 * time.Hour

// MetaRepository is the reserved, system-managed repository every
// project gets on creation. It holds the project's mirror
// configuration and access tokens; callers cannot create, rename or
// remove a repository by this name themselves.
const MetaRepository = "meta"

// DogmaProject is the reserved project name hosting server-wide state
// (the project/repository registry itself, server-wide tokens). It
// cannot be created, removed, or used as a user project name.
const DogmaProject = "dogma"

// Project describes a namespace containing repositories.
type Project struct {
	Name      string
	CreatedAt int64
	RemovedAt *int64
}

// Repository describes one repository within a project.
type Repository struct {
	Project   string
	Name      string
	CreatedAt int64
	RemovedAt *int64
}

// Manager owns the project/repository registry and the commit-log
// storage backing each repository's actual content.
type Manager struct {
	db      *sql.DB
	storage storage.Storage
}

// NewManager builds a Manager sharing db (for the registry tables) and
// store (for repository content) with the rest of the server.
func NewManager(ctx context.Context, db *sql.DB, store storage.Storage) (*Manager, error) {
	if _, err := db.ExecContext(ctx, registrySchema); err != nil {
		return nil, fmt.Errorf("apply project registry schema: %w", err)
	}
	m := &Manager{db: db, storage: store}
	if err := m.bootstrapDogmaProject(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

const registrySchema = `
CREATE TABLE IF NOT EXISTS projects (
    name TEXT PRIMARY KEY,
    name_lower TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    removed_at INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_name_lower ON projects(name_lower) WHERE removed_at IS NULL;

CREATE TABLE IF NOT EXISTS repositories_meta (
    project TEXT NOT NULL,
    name TEXT NOT NULL,
    name_lower TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    removed_at INTEGER,
    PRIMARY KEY (project, name)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_repos_name_lower ON repositories_meta(project, name_lower) WHERE removed_at IS NULL;
`

func (m *Manager) bootstrapDogmaProject(ctx context.Context) error {
	var exists int
	err := m.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE name = ?`, DogmaProject).Scan(&exists)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return m.createProjectRow(ctx, DogmaProject)
}

// CreateProject registers a new project and bootstraps its reserved
// "meta" repository. Names are reserved case-insensitively: "Foo" and
// "foo" cannot coexist, and "dogma" itself cannot be (re-)created.
func (m *Manager) CreateProject(ctx context.Context, name string) (Project, error) {
	if err := validateName(name); err != nil {
		return Project{}, err
	}
	if strings.EqualFold(name, DogmaProject) {
		return Project{}, fmt.Errorf("%w: %q is reserved", domain.ErrProjectExists, name)
	}
	if err := m.createProjectRow(ctx, name); err != nil {
		return Project{}, err
	}
	return m.GetProject(ctx, name)
}

func (m *Manager) createProjectRow(ctx context.Context, name string) error {
	now := time.Now().UnixMilli()
	_, err := m.db.ExecContext(ctx, `INSERT INTO projects (name, name_lower, created_at) VALUES (?, ?, ?)`,
		name, strings.ToLower(name), now)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrProjectExists, name)
	}
	if err != nil {
		return fmt.Errorf("create project %s: %w", name, err)
	}
	return m.createRepositoryRow(ctx, name, MetaRepository)
}

// GetProject returns a live (not removed) project by name.
func (m *Manager) GetProject(ctx context.Context, name string) (Project, error) {
	var p Project
	var removedAt sql.NullInt64
	err := m.db.QueryRowContext(ctx,
		`SELECT name, created_at, removed_at FROM projects WHERE name = ? AND removed_at IS NULL`, name).
		Scan(&p.Name, &p.CreatedAt, &removedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, fmt.Errorf("%w: %s", domain.ErrProjectNotFound, name)
	}
	if err != nil {
		return Project{}, err
	}
	if removedAt.Valid {
		p.RemovedAt = &removedAt.Int64
	}
	return p, nil
}

// ListProjects returns every live project.
func (m *Manager) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT name, created_at FROM projects WHERE removed_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RemoveProject soft-removes name: it stops resolving to a live
// project immediately, but RestoreProject can bring it back within
// RestoreWindow.
func (m *Manager) RemoveProject(ctx context.Context, name string) error {
	if strings.EqualFold(name, DogmaProject) {
		return fmt.Errorf("%w: %q is reserved", domain.ErrRepositoryNotAllowed, name)
	}
	res, err := m.db.ExecContext(ctx,
		`UPDATE projects SET removed_at = ? WHERE name = ? AND removed_at IS NULL`, time.Now().UnixMilli(), name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrProjectNotFound, name)
	}
	return nil
}

// RestoreProject undoes a RemoveProject within RestoreWindow.
func (m *Manager) RestoreProject(ctx context.Context, name string) error {
	var removedAt int64
	err := m.db.QueryRowContext(ctx, `SELECT removed_at FROM projects WHERE name = ? AND removed_at IS NOT NULL`, name).Scan(&removedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrProjectNotFound, name)
	}
	if err != nil {
		return err
	}
	if time.Since(time.UnixMilli(removedAt)) > RestoreWindow {
		return fmt.Errorf("%w: %s (restore window expired)", domain.ErrProjectNotFound, name)
	}
	_, err = m.db.ExecContext(ctx, `UPDATE projects SET removed_at = NULL WHERE name = ?`, name)
	return err
}

// CreateRepository registers and bootstraps a new repository within
// project. The name "meta" is reserved for the system-created
// repository every project already has.
func (m *Manager) CreateRepository(ctx context.Context, projectName, repoName string) (Repository, error) {
	if err := validateName(repoName); err != nil {
		return Repository{}, err
	}
	if strings.EqualFold(repoName, MetaRepository) {
		return Repository{}, fmt.Errorf("%w: %q is reserved", domain.ErrRepositoryExists, repoName)
	}
	if _, err := m.GetProject(ctx, projectName); err != nil {
		return Repository{}, err
	}
	if err := m.createRepositoryRow(ctx, projectName, repoName); err != nil {
		return Repository{}, err
	}
	return m.GetRepository(ctx, projectName, repoName)
}

func (m *Manager) createRepositoryRow(ctx context.Context, projectName, repoName string) error {
	now := time.Now().UnixMilli()
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO repositories_meta (project, name, name_lower, created_at) VALUES (?, ?, ?, ?)`,
		projectName, repoName, strings.ToLower(repoName), now)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s/%s", domain.ErrRepositoryExists, projectName, repoName)
	}
	if err != nil {
		return fmt.Errorf("create repository %s/%s: %w", projectName, repoName, err)
	}
	return m.storage.EnsureRepository(ctx, repoID(projectName, repoName))
}

// GetRepository returns a live repository.
func (m *Manager) GetRepository(ctx context.Context, projectName, repoName string) (Repository, error) {
	var r Repository
	var removedAt sql.NullInt64
	err := m.db.QueryRowContext(ctx,
		`SELECT project, name, created_at, removed_at FROM repositories_meta
		 WHERE project = ? AND name = ? AND removed_at IS NULL`, projectName, repoName).
		Scan(&r.Project, &r.Name, &r.CreatedAt, &removedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Repository{}, fmt.Errorf("%w: %s/%s", domain.ErrRepositoryNotFound, projectName, repoName)
	}
	if err != nil {
		return Repository{}, err
	}
	if removedAt.Valid {
		r.RemovedAt = &removedAt.Int64
	}
	return r, nil
}

// ListRepositories returns every live repository within project.
func (m *Manager) ListRepositories(ctx context.Context, projectName string) ([]Repository, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT project, name, created_at FROM repositories_meta
		 WHERE project = ? AND removed_at IS NULL ORDER BY name`, projectName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Repository
	for rows.Next() {
		var r Repository
		if err := rows.Scan(&r.Project, &r.Name, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RemoveRepository soft-removes a repository; its commit log in
// storage is untouched until the caller purges it explicitly (purge is
// irreversible and is not part of this soft-delete path).
func (m *Manager) RemoveRepository(ctx context.Context, projectName, repoName string) error {
	if strings.EqualFold(repoName, MetaRepository) {
		return fmt.Errorf("%w: %q is reserved", domain.ErrRepositoryNotAllowed, repoName)
	}
	res, err := m.db.ExecContext(ctx,
		`UPDATE repositories_meta SET removed_at = ? WHERE project = ? AND name = ? AND removed_at IS NULL`,
		time.Now().UnixMilli(), projectName, repoName)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s/%s", domain.ErrRepositoryNotFound, projectName, repoName)
	}
	return nil
}

// RestoreRepository undoes RemoveRepository within RestoreWindow.
func (m *Manager) RestoreRepository(ctx context.Context, projectName, repoName string) error {
	var removedAt int64
	err := m.db.QueryRowContext(ctx,
		`SELECT removed_at FROM repositories_meta WHERE project = ? AND name = ? AND removed_at IS NOT NULL`,
		projectName, repoName).Scan(&removedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s/%s", domain.ErrRepositoryNotFound, projectName, repoName)
	}
	if err != nil {
		return err
	}
	if time.Since(time.UnixMilli(removedAt)) > RestoreWindow {
		return fmt.Errorf("%w: %s/%s (restore window expired)", domain.ErrRepositoryNotFound, projectName, repoName)
	}
	_, err = m.db.ExecContext(ctx, `UPDATE repositories_meta SET removed_at = NULL WHERE project = ? AND name = ?`, projectName, repoName)
	return err
}

// repoID renders the (project, repository) pair as the single string
// key internal/storage partitions commit logs by.
func repoID(project, repo string) string {
	return project + "/" + repo
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			continue
		default:
			return fmt.Errorf("invalid name %q: only letters, digits, '-', '_', '.' are allowed", name)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "unique constraint")
}
