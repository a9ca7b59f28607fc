package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/line/centraldogma-go/internal/domain"
)

// DefaultDialTimeout bounds how long Dial waits for the daemon's
// listening socket to accept a connection.
const DefaultDialTimeout = 2 * time.Second

// Client is a connection to one dogma daemon's Unix domain socket. It
// is not safe for concurrent use by multiple goroutines: each Execute
// call writes one request and reads exactly one response line, and two
// concurrent callers would race on the same reader.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	version string
}

// Dial connects to the daemon listening on socketPath. version is sent
// as ClientVersion on every request; the daemon reports a mismatch only
// in its OpHealth answer (status "degraded") and refuses no operation
// for it.
func Dial(socketPath, version string) (*Client, error) {
	return DialTimeout(socketPath, version, DefaultDialTimeout)
}

// DialTimeout is Dial with an explicit connect timeout.
func DialTimeout(socketPath, version string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	return &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		writer:  bufio.NewWriter(conn),
		version: version,
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Execute sends one request carrying op and args (marshaled to JSON)
// and unmarshals the response's Data into result, which should be a
// pointer or nil if the caller doesn't need the payload. A
// Response.Success of false is turned into a Go error carrying the
// server's error string.
func (c *Client) Execute(op string, args any, result any) error {
	return c.execute(op, args, result, 0)
}

// ExecuteWithDeadline is Execute but with a read deadline, used for
// long-polling operations like OpWatch where the server may legitimately
// take a long time to respond.
func (c *Client) ExecuteWithDeadline(op string, args any, result any, deadline time.Time) error {
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	defer c.conn.SetDeadline(time.Time{})
	return c.execute(op, args, result, 0)
}

func (c *Client) execute(op string, args any, result any, _ time.Duration) error {
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args for %s: %w", op, err)
	}

	req := Request{
		Operation:     op,
		Args:          rawArgs,
		ClientVersion: c.version,
	}
	line, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request for %s: %w", op, err)
	}
	if _, err := c.writer.Write(line); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("flush request: %w", err)
	}

	respLine, err := c.reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%s: %s", op, resp.Error)
	}
	if result == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, result); err != nil {
		return fmt.Errorf("unmarshal %s result: %w", op, err)
	}
	return nil
}

// Ping checks that the daemon is alive and speaking the protocol.
func (c *Client) Ping() (PingResponse, error) {
	var resp PingResponse
	err := c.Execute(OpPing, struct{}{}, &resp)
	return resp, err
}

// Status fetches the daemon's current writable/replicating/leadership state.
func (c *Client) Status() (StatusResponse, error) {
	var resp StatusResponse
	err := c.Execute(OpStatus, struct{}{}, &resp)
	return resp, err
}

// Health fetches a health summary, tolerating a version mismatch with the
// daemon rather than failing outright.
func (c *Client) Health() (HealthResponse, error) {
	var resp HealthResponse
	err := c.Execute(OpHealth, struct{}{}, &resp)
	return resp, err
}

// CreateProject creates a project.
func (c *Client) CreateProject(name string) error {
	return c.Execute(OpCreateProject, ProjectArgs{Project: name}, nil)
}

// RemoveProject soft-removes a project.
func (c *Client) RemoveProject(name string) error {
	return c.Execute(OpRemoveProject, ProjectArgs{Project: name}, nil)
}

// RestoreProject undoes a soft-remove within the restore window.
func (c *Client) RestoreProject(name string) error {
	return c.Execute(OpRestoreProject, ProjectArgs{Project: name}, nil)
}

// ListProjects lists every non-removed project.
func (c *Client) ListProjects() ([]string, error) {
	var resp ProjectsResponse
	err := c.Execute(OpListProjects, struct{}{}, &resp)
	return resp.Projects, err
}

// CreateRepository creates a repository within project.
func (c *Client) CreateRepository(project, repo string) error {
	return c.Execute(OpCreateRepository, RepositoryArgs{Project: project, Repository: repo}, nil)
}

// RemoveRepository soft-removes a repository.
func (c *Client) RemoveRepository(project, repo string) error {
	return c.Execute(OpRemoveRepository, RepositoryArgs{Project: project, Repository: repo}, nil)
}

// RestoreRepository undoes a soft-remove within the restore window.
func (c *Client) RestoreRepository(project, repo string) error {
	return c.Execute(OpRestoreRepository, RepositoryArgs{Project: project, Repository: repo}, nil)
}

// ListRepositories lists every non-removed repository in project.
func (c *Client) ListRepositories(project string) ([]string, error) {
	var resp RepositoriesResponse
	err := c.Execute(OpListRepositories, ProjectArgs{Project: project}, &resp)
	return resp.Repositories, err
}

// Push submits an optimistic commit.
func (c *Client) Push(args PushArgs) (domain.Commit, error) {
	var resp PushResponse
	err := c.Execute(OpPush, args, &resp)
	return resp.Commit, err
}

// Get evaluates a query against one entry.
func (c *Client) Get(args GetArgs) (GetResponse, error) {
	var resp GetResponse
	err := c.Execute(OpGet, args, &resp)
	return resp, err
}

// ListEntries lists entries under a path prefix.
func (c *Client) ListEntries(args ListEntriesArgs) ([]domain.Entry, error) {
	var resp ListEntriesResponse
	err := c.Execute(OpListEntries, args, &resp)
	return resp.Entries, err
}

// History fetches the commit history for a path pattern.
func (c *Client) History(args HistoryArgs) ([]domain.Commit, error) {
	var resp HistoryResponse
	err := c.Execute(OpHistory, args, &resp)
	return resp.Commits, err
}

// Diff fetches the changes between two revisions.
func (c *Client) Diff(args DiffArgs) ([]domain.Change, error) {
	var resp DiffResponse
	err := c.Execute(OpDiff, args, &resp)
	return resp.Changes, err
}

// Watch blocks (server-side) until the watched path or query changes,
// up to args.TimeoutMillis, and returns the result. The client sets its
// own read deadline slightly beyond the requested server-side timeout
// so a slow-but-still-within-budget server response is never cut short
// by the transport.
func (c *Client) Watch(args WatchArgs) (WatchResponse, error) {
	var resp WatchResponse
	if args.TimeoutMillis <= 0 {
		err := c.Execute(OpWatch, args, &resp)
		return resp, err
	}
	deadline := time.Now().Add(time.Duration(args.TimeoutMillis)*time.Millisecond + DefaultDialTimeout)
	err := c.ExecuteWithDeadline(OpWatch, args, &resp, deadline)
	return resp, err
}

// MirrorList lists every mirror spec configured for project's meta
// repository, each still encoded as raw JSON (see MirrorListResponse).
func (c *Client) MirrorList(project string) ([]json.RawMessage, error) {
	var resp MirrorListResponse
	err := c.Execute(OpMirrorList, MirrorListArgs{Project: project}, &resp)
	return resp.Specs, err
}

// MirrorRun requests an immediate, out-of-schedule run of one mirror.
func (c *Client) MirrorRun(project, mirrorID string) error {
	return c.Execute(OpMirrorRun, MirrorRunArgs{Project: project, MirrorID: mirrorID}, nil)
}

// SetServerStatus applies a partial update to the node's writable/replicating bits.
func (c *Client) SetServerStatus(args SetServerStatusArgs) (SetServerStatusResponse, error) {
	var resp SetServerStatusResponse
	err := c.Execute(OpSetServerStatus, args, &resp)
	return resp, err
}

// Shutdown asks the daemon to close its RPC listener once in-flight
// requests drain; the rest of the node keeps running until its process
// is stopped.
func (c *Client) Shutdown() error {
	return c.Execute(OpShutdown, struct{}{}, nil)
}
