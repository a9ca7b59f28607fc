package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/storage"
)

// Config bounds the engine's resource usage, per the spec's
// maxNumFilesPerMirror / maxNumBytesPerMirror / numMirroringThreads.
// Zero means unbounded for the size caps, and 1 for the worker count.
type Config struct {
	MaxNumFilesPerMirror int
	MaxNumBytesPerMirror int64
	NumMirroringThreads  int
}

// Leader is the subset of command.LeaderElector the engine needs: a
// channel of election/demotion transitions. Only the zone leader runs
// mirrors.
type Leader interface {
	IsLeader() bool
	Changes() <-chan bool
}

// SpecRepository describes where a project's mirror specs, credentials,
// and access-control list live: "meta" (or "dogma") repo content read
// through internal/storage or internal/cache, per §4.9.
type SpecRepository interface {
	MirrorSpecs(ctx context.Context) ([]Spec, error)
	Credentials(ctx context.Context) ([]Credential, error)
	AccessControlRules(ctx context.Context) ([]AccessControl, error)
}

// Engine is the cron-scheduled mirror runner: it resolves due mirrors
// from every configured SpecRepository, gates them on access control
// and zone leadership, and runs them on a bounded worker pool with
// single-flight coalescing per mirror id.
type Engine struct {
	Config Config

	storage storage.Storage
	leader  Leader
	cron    *cron.Cron
	group   singleflight.Group
	sem     chan struct{}
	logger  *slog.Logger

	publisher publisher

	mu    sync.Mutex
	repos []SpecRepository
	jobs  map[string]cron.EntryID // mirror id -> scheduled entry
}

// New builds an Engine backed by store (for reading/writing repository
// content) and gated by leader (only the leader's engine actually runs
// mirrors; a non-leader keeps its scheduler idle).
func New(store storage.Storage, leader Leader, cfg Config, logger *slog.Logger) *Engine {
	if cfg.NumMirroringThreads <= 0 {
		cfg.NumMirroringThreads = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Config:  cfg,
		storage: store,
		leader:  leader,
		cron:    cron.New(cron.WithSeconds()),
		sem:     make(chan struct{}, cfg.NumMirroringThreads),
		logger:  logger,
		jobs:    make(map[string]cron.EntryID),
	}
}

// Subscribe registers a Listener for mirror lifecycle events.
func (e *Engine) Subscribe(l Listener) {
	e.publisher.Subscribe(l)
}

// AddRepository registers a project's meta/dogma repo as a source of
// mirror specs. Reconcile must be called for its specs to actually get
// scheduled.
func (e *Engine) AddRepository(repo SpecRepository) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repos = append(e.repos, repo)
}

// Start begins the engine's leadership-gated lifecycle: it reconciles
// and starts the cron scheduler whenever this node becomes leader, and
// stops the scheduler when it loses leadership. A run checks leadership
// once, before it contacts the remote; a run already past that check is
// not cancelled and runs to completion. It returns when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if e.leader.IsLeader() {
		if err := e.Reconcile(ctx); err != nil {
			e.logger.Error("mirror engine initial reconcile failed", "error", err)
		}
		e.cron.Start()
	}
	for {
		select {
		case <-ctx.Done():
			e.cron.Stop()
			return ctx.Err()
		case became := <-e.leader.Changes():
			if became {
				if err := e.Reconcile(ctx); err != nil {
					e.logger.Error("mirror engine reconcile on election failed", "error", err)
				}
				e.cron.Start()
			} else {
				e.cron.Stop()
			}
		}
	}
}

// Reconcile re-reads every registered repository's mirror specs and
// (re)schedules cron entries for them, removing entries for mirrors
// that disappeared or were disabled. Call it after a commit touching
// meta/mirrors.json, per the spec's "reacts to commits that change
// them".
func (e *Engine) Reconcile(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]bool)
	for _, repo := range e.repos {
		specs, err := repo.MirrorSpecs(ctx)
		if err != nil {
			return err
		}
		rules, err := repo.AccessControlRules(ctx)
		if err != nil {
			return err
		}
		creds, err := repo.Credentials(ctx)
		if err != nil {
			return err
		}
		for _, spec := range specs {
			seen[spec.ID] = true
			if existing, ok := e.jobs[spec.ID]; ok {
				e.cron.Remove(existing)
				delete(e.jobs, spec.ID)
			}
			if !spec.Enabled || !Allowed(rules, spec.ID) {
				continue
			}
			spec, repo, creds := spec, repo, creds
			id, err := e.cron.AddFunc(spec.EffectiveSchedule(), func() {
				e.runOnce(context.Background(), spec, creds)
			})
			if err != nil {
				return fmt.Errorf("schedule mirror %s: %w", spec.ID, err)
			}
			e.jobs[spec.ID] = id
		}
	}
	for id, entry := range e.jobs {
		if !seen[id] {
			e.cron.Remove(entry)
			delete(e.jobs, id)
		}
	}
	return nil
}

// RunNow looks up mirrorID across every registered repository and runs
// it immediately, outside its cron schedule, subject to the same
// worker-pool and singleflight bounds as a scheduled firing. It returns
// an error wrapping domain.ErrMirror if no registered repository knows
// the id.
func (e *Engine) RunNow(ctx context.Context, mirrorID string) error {
	e.mu.Lock()
	var (
		found bool
		spec  Spec
		creds []Credential
	)
	for _, repo := range e.repos {
		specs, err := repo.MirrorSpecs(ctx)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		for _, s := range specs {
			if s.ID == mirrorID {
				spec, found = s, true
				break
			}
		}
		if found {
			creds, _ = repo.Credentials(ctx)
			break
		}
	}
	e.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: unknown mirror %q", domain.ErrMirror, mirrorID)
	}
	e.runOnce(ctx, spec, creds)
	return nil
}

// runOnce runs spec at most once concurrently (singleflight keyed by
// spec.ID drops re-firings while a previous run is still in progress),
// bounded by the worker-pool semaphore.
func (e *Engine) runOnce(ctx context.Context, spec Spec, creds []Credential) {
	e.sem <- struct{}{}
	defer func() { <-e.sem }()

	e.publisher.publish(Event{Kind: EventRun, MirrorID: spec.ID})
	_, err, _ := e.group.Do(spec.ID, func() (interface{}, error) {
		return nil, e.run(ctx, spec, creds)
	})
	e.publisher.publish(Event{Kind: EventComplete, MirrorID: spec.ID, Err: err})
	if err != nil {
		e.logger.Error("mirror run failed", "mirror", spec.ID, "error", err)
	}
}

func (e *Engine) run(ctx context.Context, spec Spec, creds []Credential) error {
	cred, err := ResolveCredential(spec, creds)
	if err != nil {
		return err
	}
	auth, err := AuthMethod(cred)
	if err != nil {
		return err
	}
	if !e.leader.IsLeader() {
		// Leadership was lost between scheduling and this safe
		// checkpoint (before any network I/O); abandon the run.
		return fmt.Errorf("%w: lost zone leadership before mirror %s started", domain.ErrMirror, spec.ID)
	}

	switch spec.Direction {
	case RemoteToLocal:
		return e.runRemoteToLocal(ctx, spec, auth)
	case LocalToRemote:
		return e.runLocalToRemote(ctx, spec, auth)
	default:
		return fmt.Errorf("%w: unknown mirror direction %q", domain.ErrMirror, spec.Direction)
	}
}

// decodeSpecs parses meta/mirrors.json content, defaulting a missing
// array to empty rather than erroring (a project with no mirrors
// configured yet is the common case).
func decodeSpecs(content []byte) ([]Spec, error) {
	if len(content) == 0 {
		return nil, nil
	}
	var specs []Spec
	if err := json.Unmarshal(content, &specs); err != nil {
		return nil, fmt.Errorf("decode mirrors.json: %w", err)
	}
	return specs, nil
}

// decodeCredentials parses meta/credentials.json content.
func decodeCredentials(content []byte) ([]Credential, error) {
	if len(content) == 0 {
		return nil, nil
	}
	var creds []Credential
	if err := json.Unmarshal(content, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials.json: %w", err)
	}
	return creds, nil
}

// decodeAccessControl parses meta/mirror_access_control.json content.
func decodeAccessControl(content []byte) ([]AccessControl, error) {
	if len(content) == 0 {
		return nil, nil
	}
	var rules []AccessControl
	if err := json.Unmarshal(content, &rules); err != nil {
		return nil, fmt.Errorf("decode mirror access control: %w", err)
	}
	return rules, nil
}
