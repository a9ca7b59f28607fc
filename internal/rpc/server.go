package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/line/centraldogma-go/internal/command"
	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/mirror"
	"github.com/line/centraldogma-go/internal/project"
	"github.com/line/centraldogma-go/internal/storage"
	"github.com/line/centraldogma-go/internal/watch"
)

// Reader is the read path the server dispatches GET/LIST_ENTRIES/HISTORY/
// DIFF/WATCH against. internal/cache.Cache is the intended implementation;
// it adds the Query method storage.Storage alone doesn't have.
type Reader interface {
	watch.Reader
	ListEntries(ctx context.Context, repo string, revision domain.Revision, pathPrefix string, recursive bool) ([]domain.Entry, error)
	History(ctx context.Context, repo string, from, to domain.Revision, pathPattern string, maxCommits int) ([]domain.Commit, error)
}

// DefaultMaxConnections bounds how many requests the server processes at
// once before new connections queue behind the listener's backlog.
const DefaultMaxConnections = 64

// Server accepts connections on a Unix domain socket and dispatches each
// newline-delimited Request to the matching handler. One goroutine per
// connection; a connSemaphore bounds how many run concurrently so a
// burst of CLI invocations can't exhaust memory.
type Server struct {
	Version string

	executor *command.Executor
	reader   Reader
	store    storage.Storage
	projects *project.Manager
	notifier *watch.Notifier
	mirror   *mirror.Engine

	logger  *slog.Logger
	metrics *Metrics

	connSemaphore chan struct{}

	startTime        time.Time
	lastActivityTime atomic.Value // time.Time

	listener net.Listener

	readyChan    chan struct{}
	readyOnce    sync.Once
	shutdownChan chan struct{}
	doneChan     chan struct{}
	stopOnce     sync.Once

	wg sync.WaitGroup
}

// Deps bundles everything the server dispatches requests into.
type Deps struct {
	Executor  *command.Executor
	Reader    Reader          // the (usually cache-wrapped) read path for GET/LIST_ENTRIES/HISTORY/DIFF/WATCH
	Store     storage.Storage // the raw backend, used directly for mirror spec listing
	Projects  *project.Manager
	Notifier  *watch.Notifier
	Mirror    *mirror.Engine // nil if this node doesn't run the mirror engine
	Logger    *slog.Logger
	MaxConns  int
	Version   string
}

// NewServer builds a Server over deps. It does not listen until Start
// is called.
func NewServer(deps Deps) *Server {
	maxConns := deps.MaxConns
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Version:       deps.Version,
		executor:      deps.Executor,
		reader:        deps.Reader,
		store:         deps.Store,
		projects:      deps.Projects,
		notifier:      deps.Notifier,
		mirror:        deps.Mirror,
		logger:        logger,
		metrics:       NewMetrics(),
		connSemaphore: make(chan struct{}, maxConns),
		startTime:     time.Now(),
		readyChan:     make(chan struct{}),
		shutdownChan:  make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
	s.lastActivityTime.Store(s.startTime)
	return s
}

// Start listens on socketPath and serves connections until ctx is
// cancelled or Stop is called. It signals WaitReady's channel once the
// listener is up, mirroring the accept-loop shape a daemon's caller
// expects: call Start in a goroutine, then block on WaitReady before
// telling the rest of the process (or a parent CLI invocation) that the
// server is usable.
func (s *Server) Start(ctx context.Context, socketPath string) error {
	if err := EnsureSocketDir(socketPath); err != nil {
		return fmt.Errorf("ensure socket dir: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	s.listener = ln
	s.readyOnce.Do(func() { close(s.readyChan) })

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	go func() {
		<-s.shutdownChan
		ln.Close()
	}()

	defer close(s.doneChan)
	defer CleanupSocketDir(socketPath)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdownChan:
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}
		s.wg.Add(1)
		go s.serve(conn)
	}
}

// WaitReady blocks until Start's listener is accepting connections.
func (s *Server) WaitReady() <-chan struct{} {
	return s.readyChan
}

// Stop signals the accept loop to close the listener and stops accepting
// new connections; in-flight requests are allowed to finish. It is safe
// to call more than once and from any goroutine.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.shutdownChan) })
}

// Done reports when Start has fully returned (listener closed, every
// in-flight connection served).
func (s *Server) Done() <-chan struct{} {
	return s.doneChan
}

// Metrics returns a snapshot of accumulated request/error counters.
func (s *Server) Metrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	select {
	case s.connSemaphore <- struct{}{}:
		defer func() { <-s.connSemaphore }()
	case <-s.shutdownChan:
		return
	}

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return // client disconnected or sent a partial line; nothing more to do
		}
		s.lastActivityTime.Store(time.Now())

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			writeResponse(writer, Response{Success: false, Error: fmt.Sprintf("malformed request: %v", err)})
			continue
		}

		start := time.Now()
		resp := s.handleRequest(context.Background(), &req)
		s.metrics.RecordRequest(req.Operation, time.Since(start))
		if !resp.Success {
			s.metrics.RecordError(req.Operation)
		}
		if err := writeResponse(writer, resp); err != nil {
			return
		}
	}
}

func writeResponse(w *bufio.Writer, resp Response) error {
	line, err := json.Marshal(resp)
	if err != nil {
		line, _ = json.Marshal(Response{Success: false, Error: "marshal response: " + err.Error()})
	}
	if _, err := w.Write(line); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// handleRequest dispatches one Request to the handler for its
// Operation, recovering the operation's error into a Response rather
// than ever panicking the connection's goroutine.
func (s *Server) handleRequest(ctx context.Context, req *Request) Response {
	var (
		data any
		err  error
	)
	switch req.Operation {
	case OpPing:
		data = PingResponse{Message: "pong", Version: s.Version}
	case OpStatus:
		data = s.handleStatus()
	case OpHealth:
		data = s.handleHealth(req)
	case OpCreateProject:
		err = s.handleCreateProject(ctx, req)
	case OpRemoveProject:
		err = s.handleRemoveProject(ctx, req)
	case OpRestoreProject:
		err = s.handleRestoreProject(ctx, req)
	case OpListProjects:
		data, err = s.handleListProjects(ctx)
	case OpCreateRepository:
		err = s.handleCreateRepository(ctx, req)
	case OpRemoveRepository:
		err = s.handleRemoveRepository(ctx, req)
	case OpRestoreRepository:
		err = s.handleRestoreRepository(ctx, req)
	case OpListRepositories:
		data, err = s.handleListRepositories(ctx, req)
	case OpPush:
		data, err = s.handlePush(ctx, req)
	case OpGet:
		data, err = s.handleGet(ctx, req)
	case OpListEntries:
		data, err = s.handleListEntries(ctx, req)
	case OpHistory:
		data, err = s.handleHistory(ctx, req)
	case OpDiff:
		data, err = s.handleDiff(ctx, req)
	case OpWatch:
		data, err = s.handleWatch(ctx, req)
	case OpMirrorList:
		data, err = s.handleMirrorList(ctx, req)
	case OpMirrorRun:
		err = s.handleMirrorRun(ctx, req)
	case OpSetServerStatus:
		data, err = s.handleSetServerStatus(req)
	case OpShutdown:
		go s.Stop()
	default:
		err = fmt.Errorf("unknown operation %q", req.Operation)
	}

	if err != nil {
		return Response{Success: false, Error: err.Error()}
	}
	raw, merr := json.Marshal(data)
	if merr != nil {
		return Response{Success: false, Error: fmt.Sprintf("marshal %s response: %v", req.Operation, merr)}
	}
	return Response{Success: true, Data: raw}
}

func (s *Server) handleStatus() StatusResponse {
	st := s.executor.Status()
	return StatusResponse{
		Version:       s.Version,
		PID:           os.Getpid(),
		SocketPath:    s.listener.Addr().String(),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Writable:      st.Writable,
		Replicating:   st.Replicating,
	}
}

func (s *Server) handleHealth(req *Request) HealthResponse {
	resp := HealthResponse{
		Status:        "healthy",
		Version:       s.Version,
		ClientVersion: req.ClientVersion,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	}
	if req.ClientVersion != "" && req.ClientVersion != s.Version {
		resp.Status = "degraded"
		resp.Error = fmt.Sprintf("client version %s does not match server version %s", req.ClientVersion, s.Version)
	}
	return resp
}

func (s *Server) handleCreateProject(ctx context.Context, req *Request) error {
	var args ProjectArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return err
	}
	_, err := s.executor.Submit(ctx, command.Command{
		Type:    command.TypeCreateProject,
		Project: &command.ProjectPayload{Project: args.Project},
	})
	return err
}

func (s *Server) handleRemoveProject(ctx context.Context, req *Request) error {
	var args ProjectArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return err
	}
	_, err := s.executor.Submit(ctx, command.Command{
		Type:    command.TypeRemoveProject,
		Project: &command.ProjectPayload{Project: args.Project},
	})
	return err
}

func (s *Server) handleRestoreProject(ctx context.Context, req *Request) error {
	var args ProjectArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return err
	}
	_, err := s.executor.Submit(ctx, command.Command{
		Type:    command.TypeRestoreProject,
		Project: &command.ProjectPayload{Project: args.Project},
	})
	return err
}

func (s *Server) handleListProjects(ctx context.Context) (ProjectsResponse, error) {
	projects, err := s.projects.ListProjects(ctx)
	if err != nil {
		return ProjectsResponse{}, err
	}
	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Name
	}
	return ProjectsResponse{Projects: names}, nil
}

func (s *Server) handleCreateRepository(ctx context.Context, req *Request) error {
	var args RepositoryArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return err
	}
	_, err := s.executor.Submit(ctx, command.Command{
		Type: command.TypeCreateRepository,
		Repo: &command.RepositoryPayload{Project: args.Project, Repository: args.Repository},
	})
	return err
}

func (s *Server) handleRemoveRepository(ctx context.Context, req *Request) error {
	var args RepositoryArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return err
	}
	_, err := s.executor.Submit(ctx, command.Command{
		Type: command.TypeRemoveRepository,
		Repo: &command.RepositoryPayload{Project: args.Project, Repository: args.Repository},
	})
	return err
}

func (s *Server) handleRestoreRepository(ctx context.Context, req *Request) error {
	var args RepositoryArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return err
	}
	_, err := s.executor.Submit(ctx, command.Command{
		Type: command.TypeRestoreRepository,
		Repo: &command.RepositoryPayload{Project: args.Project, Repository: args.Repository},
	})
	return err
}

func (s *Server) handleListRepositories(ctx context.Context, req *Request) (RepositoriesResponse, error) {
	var args ProjectArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return RepositoriesResponse{}, err
	}
	repos, err := s.projects.ListRepositories(ctx, args.Project)
	if err != nil {
		return RepositoriesResponse{}, err
	}
	names := make([]string, len(repos))
	for i, r := range repos {
		names[i] = r.Name
	}
	return RepositoriesResponse{Repositories: names}, nil
}

func (s *Server) handlePush(ctx context.Context, req *Request) (PushResponse, error) {
	var args PushArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return PushResponse{}, err
	}
	res, err := s.executor.Submit(ctx, command.Command{
		Type: command.TypePush,
		Push: &command.PushPayload{
			Project:      args.Project,
			Repository:   args.Repository,
			BaseRevision: args.BaseRevision,
			Author:       args.Author,
			Summary:      args.Summary,
			Detail:       args.Detail,
			Markup:       args.Markup,
			Changes:      args.Changes,
		},
	})
	if err != nil {
		return PushResponse{}, err
	}
	return PushResponse{Commit: *res.Commit}, nil
}

func (s *Server) handleGet(ctx context.Context, req *Request) (GetResponse, error) {
	var args GetArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return GetResponse{}, err
	}
	repo := args.Project + "/" + args.Repository
	res, err := s.reader.Query(ctx, repo, args.Revision, args.Query)
	if err != nil {
		return GetResponse{}, err
	}
	return GetResponse{Entry: domain.Entry{Path: args.Query.Path}, Content: res.Content}, nil
}

func (s *Server) handleListEntries(ctx context.Context, req *Request) (ListEntriesResponse, error) {
	var args ListEntriesArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return ListEntriesResponse{}, err
	}
	repo := args.Project + "/" + args.Repository
	entries, err := s.reader.ListEntries(ctx, repo, args.Revision, args.PathPrefix, args.Recursive)
	if err != nil {
		return ListEntriesResponse{}, err
	}
	return ListEntriesResponse{Entries: entries}, nil
}

func (s *Server) handleHistory(ctx context.Context, req *Request) (HistoryResponse, error) {
	var args HistoryArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return HistoryResponse{}, err
	}
	repo := args.Project + "/" + args.Repository
	commits, err := s.reader.History(ctx, repo, args.From, args.To, args.PathPattern, args.MaxCommits)
	if err != nil {
		return HistoryResponse{}, err
	}
	return HistoryResponse{Commits: commits}, nil
}

func (s *Server) handleDiff(ctx context.Context, req *Request) (DiffResponse, error) {
	var args DiffArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return DiffResponse{}, err
	}
	repo := args.Project + "/" + args.Repository
	changes, err := s.reader.Diff(ctx, repo, args.From, args.To, args.PathPattern)
	if err != nil {
		return DiffResponse{}, err
	}
	return DiffResponse{Changes: changes}, nil
}

// handleWatch long-polls on the caller's behalf: it blocks inside this
// handler goroutine (one per connection, bounded by connSemaphore) until
// something the caller cares about changes or the requested timeout
// elapses, then replies with exactly one Response, matching the
// single-request-single-response framing every other operation uses.
func (s *Server) handleWatch(ctx context.Context, req *Request) (WatchResponse, error) {
	var args WatchArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return WatchResponse{}, err
	}
	repo := args.Project + "/" + args.Repository

	if args.TimeoutMillis > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(args.TimeoutMillis)*time.Millisecond)
		defer cancel()
	}

	if args.Query != nil {
		res, rev, err := watch.WatchQuery(ctx, s.notifier, s.reader, repo, *args.Query, args.LastKnownRevision)
		if err != nil {
			return WatchResponse{}, watchError(err)
		}
		return WatchResponse{Revision: rev, Content: res.Content}, nil
	}
	rev, err := watch.WatchPath(ctx, s.notifier, s.reader, repo, args.PathPattern, args.LastKnownRevision)
	if err != nil {
		return WatchResponse{}, watchError(err)
	}
	return WatchResponse{Revision: rev}, nil
}

// watchError turns a watch deadline into domain.ErrTimeout, the
// sentinel a long-polling caller recognizes as "nothing changed
// within the budget, ask again" rather than a real failure.
func watchError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout
	}
	return err
}

func (s *Server) handleMirrorList(ctx context.Context, req *Request) (MirrorListResponse, error) {
	var args MirrorListArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return MirrorListResponse{}, err
	}
	if s.store == nil {
		return MirrorListResponse{}, fmt.Errorf("mirror listing requires direct storage access")
	}
	specs, err := mirror.NewStorageSpecRepository(s.store, args.Project).MirrorSpecs(ctx)
	if err != nil {
		return MirrorListResponse{}, err
	}
	raw := make([]json.RawMessage, len(specs))
	for i, spec := range specs {
		b, err := json.Marshal(spec)
		if err != nil {
			return MirrorListResponse{}, err
		}
		raw[i] = b
	}
	return MirrorListResponse{Specs: raw}, nil
}

func (s *Server) handleMirrorRun(ctx context.Context, req *Request) error {
	var args MirrorRunArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return err
	}
	if s.mirror == nil {
		return fmt.Errorf("%w: this node does not run the mirror engine", domain.ErrMirror)
	}
	return s.mirror.RunNow(ctx, args.MirrorID)
}

func (s *Server) handleSetServerStatus(req *Request) (SetServerStatusResponse, error) {
	var args SetServerStatusArgs
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return SetServerStatusResponse{}, err
	}
	before := s.executor.Status()
	next := command.StatusPayload{
		Writable:    before.Writable,
		Replicating: before.Replicating,
		Scope:       args.Scope,
	}
	if args.Writable != nil {
		next.Writable = *args.Writable
	}
	if args.Replicating != nil {
		next.Replicating = *args.Replicating
	}
	modified := next.Writable != before.Writable || next.Replicating != before.Replicating
	if !modified {
		return SetServerStatusResponse{Writable: before.Writable, Replicating: before.Replicating, Modified: false}, nil
	}
	if _, err := s.executor.Submit(context.Background(), command.Command{
		Type:   command.TypeUpdateServerStatus,
		Status: &next,
	}); err != nil {
		return SetServerStatusResponse{}, err
	}
	return SetServerStatusResponse{Writable: next.Writable, Replicating: next.Replicating, Modified: true}, nil
}
