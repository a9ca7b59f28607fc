package command

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/project"
	"github.com/line/centraldogma-go/internal/storage"
	"github.com/line/centraldogma-go/internal/watch"
)

// Executor is the single point every mutation passes through. A mutex
// gives the log total order (exactly one command is dispatched at a
// time, regardless of how many callers are waiting), and the
// writable/replicating Status gates which commands are even attempted.
type Executor struct {
	mu      sync.Mutex
	status  *statusStore
	current Status

	projects *project.Manager
	storage  storage.Storage
	notifier *watch.Notifier
}

// New builds an Executor. stateDir holds the persisted status.json;
// projects and store are the already-constructed registry and
// commit-log backends this executor serializes access to. notifier is
// signaled after every successful PUSH so watchers wake promptly.
func New(stateDir string, projects *project.Manager, store storage.Storage, notifier *watch.Notifier) (*Executor, error) {
	ss, err := newStatusStore(stateDir)
	if err != nil {
		return nil, err
	}
	st, err := ss.load()
	if err != nil {
		return nil, fmt.Errorf("load persisted status: %w", err)
	}
	return &Executor{
		status:   ss,
		current:  st,
		projects: projects,
		storage:  store,
		notifier: notifier,
	}, nil
}

// Status returns the node's current writable/replicating bits.
func (e *Executor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Submit assigns cmd an ID if it doesn't have one, serializes it behind
// every other in-flight Submit call, and dispatches it to the handler
// for its Type. Mutating commands (everything but UPDATE_SERVER_STATUS
// itself) are rejected with domain.ErrReadOnly while the node is not
// writable.
func (e *Executor) Submit(ctx context.Context, cmd Command) (Result, error) {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if cmd.Type != TypeUpdateServerStatus && !e.current.Writable {
		return Result{}, fmt.Errorf("%w: command %s rejected", domain.ErrReadOnly, cmd.Type)
	}

	switch cmd.Type {
	case TypeCreateProject:
		return e.applyCreateProject(ctx, cmd)
	case TypeRemoveProject:
		return e.applyRemoveProject(ctx, cmd)
	case TypeRestoreProject:
		return e.applyRestoreProject(ctx, cmd)
	case TypeCreateRepository:
		return e.applyCreateRepository(ctx, cmd)
	case TypeRemoveRepository:
		return e.applyRemoveRepository(ctx, cmd)
	case TypeRestoreRepository:
		return e.applyRestoreRepository(ctx, cmd)
	case TypePush:
		return e.applyPush(ctx, cmd)
	case TypeUpdateServerStatus:
		return e.applyUpdateServerStatus(cmd)
	default:
		return Result{}, fmt.Errorf("unknown command type %q", cmd.Type)
	}
}

func (e *Executor) applyCreateProject(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Project == nil {
		return Result{}, fmt.Errorf("CREATE_PROJECT requires a project payload")
	}
	_, err := e.projects.CreateProject(ctx, cmd.Project.Project)
	return Result{}, err
}

func (e *Executor) applyRemoveProject(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Project == nil {
		return Result{}, fmt.Errorf("REMOVE_PROJECT requires a project payload")
	}
	return Result{}, e.projects.RemoveProject(ctx, cmd.Project.Project)
}

func (e *Executor) applyRestoreProject(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Project == nil {
		return Result{}, fmt.Errorf("RESTORE_PROJECT requires a project payload")
	}
	return Result{}, e.projects.RestoreProject(ctx, cmd.Project.Project)
}

func (e *Executor) applyCreateRepository(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Repo == nil {
		return Result{}, fmt.Errorf("CREATE_REPOSITORY requires a repository payload")
	}
	_, err := e.projects.CreateRepository(ctx, cmd.Repo.Project, cmd.Repo.Repository)
	return Result{}, err
}

func (e *Executor) applyRemoveRepository(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Repo == nil {
		return Result{}, fmt.Errorf("REMOVE_REPOSITORY requires a repository payload")
	}
	return Result{}, e.projects.RemoveRepository(ctx, cmd.Repo.Project, cmd.Repo.Repository)
}

func (e *Executor) applyRestoreRepository(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Repo == nil {
		return Result{}, fmt.Errorf("RESTORE_REPOSITORY requires a repository payload")
	}
	return Result{}, e.projects.RestoreRepository(ctx, cmd.Repo.Project, cmd.Repo.Repository)
}

func (e *Executor) applyPush(ctx context.Context, cmd Command) (Result, error) {
	p := cmd.Push
	if p == nil {
		return Result{}, fmt.Errorf("PUSH requires a push payload")
	}
	repo := p.Project + "/" + p.Repository
	commit, err := e.storage.Commit(ctx, repo, p.BaseRevision, p.Author, p.Summary, p.Detail, p.Markup, p.Changes)
	if err != nil {
		return Result{}, err
	}
	if e.notifier != nil {
		e.notifier.Signal(repo, commit.Revision)
	}
	return Result{Commit: &commit}, nil
}

// applyUpdateServerStatus sets the node's persisted writable/replicating
// bits to exactly what cmd requests. Submit's total ordering is what
// makes the two safe sequences the spec calls for actually safe:
// callers enable replicating before writable to minimize split-brain
// on recovery, and disable writable before replicating to drain
// in-flight local commits before the node stops hearing from the rest
// of the cluster — each is just two ordinary Submit calls in sequence.
func (e *Executor) applyUpdateServerStatus(cmd Command) (Result, error) {
	p := cmd.Status
	if p == nil {
		return Result{}, fmt.Errorf("UPDATE_SERVER_STATUS requires a status payload")
	}
	// Scope is surfaced to callers (a real cluster would fan ScopeAll
	// out to peers); this node always applies its own local half.
	_ = p.Scope

	next := Status{Writable: p.Writable, Replicating: p.Replicating}
	if err := e.status.save(next); err != nil {
		return Result{}, fmt.Errorf("persist status: %w", err)
	}
	e.current = next
	return Result{}, nil
}
