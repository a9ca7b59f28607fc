// Package server wires every component of the engine together: the
// revision/entry/query domain (C1-C3), the sqlite-backed storage engine
// (C4), the caching read path (C5), the project/repository registry
// (C6), the watch notifier (C7), the command executor and leader
// election (C8), and the mirror engine (C9), and serves the result
// over internal/rpc. This is the one package that imports all the
// others; nothing downstream imports it.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/line/centraldogma-go/internal/cache"
	"github.com/line/centraldogma-go/internal/command"
	"github.com/line/centraldogma-go/internal/logging"
	"github.com/line/centraldogma-go/internal/mirror"
	"github.com/line/centraldogma-go/internal/project"
	"github.com/line/centraldogma-go/internal/rpc"
	"github.com/line/centraldogma-go/internal/storage/sqlite"
	"github.com/line/centraldogma-go/internal/watch"
)

// Config bounds resource usage across the wired components. Zero values
// fall back to each component's own defaults (one mirroring thread, for
// example), which are not the values internal/config registers.
type Config struct {
	// WorkspacePath is the directory holding .dogma/ (db file, socket,
	// leader lock files).
	WorkspacePath string

	CacheMaxEntries    int
	CacheMaxWeightBytes int64

	Mirror mirror.Config

	MaxConnections int

	// LeaderZone scopes leader election; an empty zone is fine for a
	// single-zone deployment.
	LeaderZone         string
	LeaderPollInterval time.Duration
}

// Node owns every long-lived component for one dogma workspace: the
// storage engine, the command log, the mirror engine, and the RPC
// server in front of them. Close releases every held resource;
// Start/Stop control whether it's actively serving.
type Node struct {
	cfg Config
	log *logging.Logger

	store    *sqlite.SQLiteStorage
	cache    *cache.Cache
	projects *project.Manager
	notifier *watch.Notifier
	executor *command.Executor
	leader   *command.LeaderElector
	mirror   *mirror.Engine
	rpc      *rpc.Server

	cancel   context.CancelFunc
	doneChan chan struct{}
}

// New constructs every component and returns a Node ready to Start.
// version is the build's own version string, sent on OpPing/OpHealth
// and checked against connecting clients' ClientVersion.
func New(ctx context.Context, cfg Config, version string, log *logging.Logger) (*Node, error) {
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = 4096
	}
	if cfg.CacheMaxWeightBytes <= 0 {
		cfg.CacheMaxWeightBytes = 64 << 20
	}
	if cfg.LeaderPollInterval <= 0 {
		cfg.LeaderPollInterval = 5 * time.Second
	}
	if log == nil {
		log = logging.Default()
	}

	dbPath := cfg.WorkspacePath + "/.dogma/dogma.db"
	stateDir := cfg.WorkspacePath + "/.dogma"

	store, err := sqlite.New(ctx, dbPath, stateDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	projects, err := project.NewManager(ctx, store.DB(), store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build project manager: %w", err)
	}

	c, err := cache.New(store, cfg.CacheMaxEntries, cfg.CacheMaxWeightBytes)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build cache: %w", err)
	}

	notifier := watch.NewNotifier()

	executor, err := command.New(stateDir, projects, store, notifier)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build executor: %w", err)
	}

	leader := command.NewLeaderElector(stateDir, cfg.LeaderZone, cfg.LeaderPollInterval)

	mirrorLog := log.ForComponent("mirror")
	engine := mirror.New(store, leader, cfg.Mirror, mirrorLog.Logger)

	rpcServer := rpc.NewServer(rpc.Deps{
		Executor: executor,
		Reader:   c,
		Store:    store,
		Projects: projects,
		Notifier: notifier,
		Mirror:   engine,
		Logger:   log.ForComponent("rpc").Logger,
		MaxConns: cfg.MaxConnections,
		Version:  version,
	})

	return &Node{
		cfg:      cfg,
		log:      log,
		store:    store,
		cache:    c,
		projects: projects,
		notifier: notifier,
		executor: executor,
		leader:   leader,
		mirror:   engine,
		rpc:      rpcServer,
	}, nil
}

// Start registers every project's meta repository with the mirror
// engine, then runs the leader elector, mirror engine and RPC server
// concurrently until ctx is cancelled. It returns once every background
// goroutine has stopped.
func (n *Node) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.doneChan = make(chan struct{})
	defer close(n.doneChan)

	if err := n.registerMirrorSources(ctx); err != nil {
		cancel()
		return fmt.Errorf("register mirror sources: %w", err)
	}

	errs := make(chan error, 3)

	go func() { errs <- n.leader.Run(ctx) }()
	go func() { errs <- n.mirror.Start(ctx) }()
	go func() {
		socketPath := rpc.SocketPath(n.cfg.WorkspacePath)
		errs <- n.rpc.Start(ctx, socketPath)
	}()

	select {
	case <-n.rpc.WaitReady():
		n.log.Info("dogma server ready", "workspace", n.cfg.WorkspacePath)
	case <-ctx.Done():
	}

	var firstErr error
	for i := 0; i < 3; i++ {
		if err := <-errs; err != nil && firstErr == nil && err != context.Canceled {
			firstErr = err
		}
	}
	return firstErr
}

// WaitReady blocks until the RPC server's listener is accepting
// connections.
func (n *Node) WaitReady() <-chan struct{} {
	return n.rpc.WaitReady()
}

// Stop signals every background component to shut down, waits for
// Start's goroutines to actually return, and only then closes the
// underlying storage, so a still-running mirror or leader goroutine
// never touches storage after it's closed.
func (n *Node) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}
	n.rpc.Stop()
	if n.doneChan != nil {
		<-n.doneChan
	}
	return n.store.Close()
}

// registerMirrorSources adds every project that exists at startup as a
// mirror spec source. Nothing calls Node.RegisterMirrorSource after
// CREATE_PROJECT, so a project created while the node runs is not a
// mirror source until the next start.
func (n *Node) registerMirrorSources(ctx context.Context) error {
	projects, err := n.projects.ListProjects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		n.mirror.AddRepository(mirror.NewStorageSpecRepository(n.store, p.Name))
	}
	return nil
}

// RegisterMirrorSource adds project's meta repository as a mirror spec
// source after it's created, and reconciles immediately so its mirrors
// (if any are already configured) get scheduled without waiting for the
// engine's next triggered reconcile.
func (n *Node) RegisterMirrorSource(ctx context.Context, projectName string) error {
	n.mirror.AddRepository(mirror.NewStorageSpecRepository(n.store, projectName))
	return n.mirror.Reconcile(ctx)
}
