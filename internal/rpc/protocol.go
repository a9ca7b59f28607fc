// Package rpc is the local transport between the dogma CLI and the
// dogma server process: a newline-delimited JSON
// envelope exchanged over a Unix domain socket, the same shape teacher's
// internal/rpc uses for the CLI-to-daemon link, retargeted from issue
// operations to repository content, watch, mirror, and admin operations.
package rpc

import (
	"encoding/json"

	"github.com/line/centraldogma-go/internal/command"
	"github.com/line/centraldogma-go/internal/domain"
)

// Operation constants for every dogma server verb.
const (
	OpPing   = "ping"
	OpStatus = "status"
	OpHealth = "health"

	OpCreateProject     = "create_project"
	OpRemoveProject     = "remove_project"
	OpRestoreProject    = "restore_project"
	OpListProjects      = "list_projects"
	OpCreateRepository  = "create_repository"
	OpRemoveRepository  = "remove_repository"
	OpRestoreRepository = "restore_repository"
	OpListRepositories  = "list_repositories"

	OpPush        = "push"
	OpGet         = "get"
	OpListEntries = "list_entries"
	OpHistory     = "history"
	OpDiff        = "diff"
	OpWatch       = "watch"

	OpMirrorList = "mirror_list"
	OpMirrorRun  = "mirror_run"

	OpSetServerStatus = "set_server_status"

	OpShutdown = "shutdown"
)

// Request is one RPC call from the CLI to the server.
type Request struct {
	Operation     string          `json:"operation"`
	Args          json.RawMessage `json:"args"`
	Actor         string          `json:"actor,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
	ClientVersion string          `json:"client_version,omitempty"`
}

// Response is the server's reply to one Request.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// PingResponse answers OpPing.
type PingResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

// StatusResponse answers OpStatus: the server's identity plus the
// executor's current writable/replicating bits.
type StatusResponse struct {
	Version       string `json:"version"`
	PID           int    `json:"pid"`
	SocketPath    string `json:"socket_path"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Writable      bool   `json:"writable"`
	Replicating   bool   `json:"replicating"`
	IsLeader      bool   `json:"is_leader"`
}

// HealthResponse answers OpHealth.
type HealthResponse struct {
	Status        string  `json:"status"` // "healthy", "degraded", "unhealthy"
	Version       string  `json:"version"`
	ClientVersion string  `json:"client_version,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Error         string  `json:"error,omitempty"`
}

// ProjectArgs names a project for create/remove/restore/list-repositories.
type ProjectArgs struct {
	Project string `json:"project"`
}

// ProjectsResponse answers OpListProjects.
type ProjectsResponse struct {
	Projects []string `json:"projects"`
}

// RepositoryArgs names a repository within a project.
type RepositoryArgs struct {
	Project    string `json:"project"`
	Repository string `json:"repository"`
}

// RepositoriesResponse answers OpListRepositories.
type RepositoriesResponse struct {
	Repositories []string `json:"repositories"`
}

// PushArgs is the body of OpPush: an optimistic commit against one
// repository. BaseRevision of 0 (domain.HeadRevision) always means
// "against whatever head currently is."
type PushArgs struct {
	Project      string          `json:"project"`
	Repository   string          `json:"repository"`
	BaseRevision domain.Revision `json:"base_revision"`
	Author       string          `json:"author"`
	Summary      string          `json:"summary"`
	Detail       string          `json:"detail,omitempty"`
	Markup       domain.Markup   `json:"markup,omitempty"`
	Changes      []domain.Change `json:"changes"`
}

// PushResponse answers OpPush.
type PushResponse struct {
	Commit domain.Commit `json:"commit"`
}

// GetArgs is the body of OpGet: a single query against one repository at
// a revision (0 means HEAD).
type GetArgs struct {
	Project    string       `json:"project"`
	Repository string       `json:"repository"`
	Revision   domain.Revision `json:"revision"`
	Query      domain.Query `json:"query"`
}

// GetResponse answers OpGet.
type GetResponse struct {
	Entry   domain.Entry `json:"entry"`
	Content []byte       `json:"content"`
}

// ListEntriesArgs is the body of OpListEntries.
type ListEntriesArgs struct {
	Project    string          `json:"project"`
	Repository string          `json:"repository"`
	Revision   domain.Revision `json:"revision"`
	PathPrefix string          `json:"path_prefix"`
	Recursive  bool            `json:"recursive"`
}

// ListEntriesResponse answers OpListEntries.
type ListEntriesResponse struct {
	Entries []domain.Entry `json:"entries"`
}

// HistoryArgs is the body of OpHistory.
type HistoryArgs struct {
	Project     string          `json:"project"`
	Repository  string          `json:"repository"`
	From        domain.Revision `json:"from"`
	To          domain.Revision `json:"to"`
	PathPattern string          `json:"path_pattern,omitempty"`
	MaxCommits  int             `json:"max_commits,omitempty"`
}

// HistoryResponse answers OpHistory.
type HistoryResponse struct {
	Commits []domain.Commit `json:"commits"`
}

// DiffArgs is the body of OpDiff.
type DiffArgs struct {
	Project     string          `json:"project"`
	Repository  string          `json:"repository"`
	From        domain.Revision `json:"from"`
	To          domain.Revision `json:"to"`
	PathPattern string          `json:"path_pattern,omitempty"`
}

// DiffResponse answers OpDiff.
type DiffResponse struct {
	Changes []domain.Change `json:"changes"`
}

// WatchArgs is the body of OpWatch: either PathPattern (edge-triggered
// on any touching commit) or Query (value-triggered) is set, never both.
// TimeoutMillis bounds how long the server blocks before returning
// domain.ErrTimeout; 0 means the server applies no timeout and blocks
// until a matching change arrives or the connection's context ends.
type WatchArgs struct {
	Project           string          `json:"project"`
	Repository        string          `json:"repository"`
	LastKnownRevision domain.Revision `json:"last_known_revision"`
	PathPattern       string          `json:"path_pattern,omitempty"`
	Query             *domain.Query   `json:"query,omitempty"`
	TimeoutMillis      int64           `json:"timeout_millis,omitempty"`
}

// WatchResponse answers OpWatch.
type WatchResponse struct {
	Revision domain.Revision `json:"revision"`
	Entry    domain.Entry    `json:"entry,omitempty"`
	Content  []byte          `json:"content,omitempty"`
}

// MirrorListArgs scopes OpMirrorList to one project's meta repository.
type MirrorListArgs struct {
	Project string `json:"project"`
}

// MirrorListResponse answers OpMirrorList.
type MirrorListResponse struct {
	Specs []json.RawMessage `json:"specs"` // mirror.Spec, kept opaque to avoid an rpc->mirror import cycle risk
}

// MirrorRunArgs requests an out-of-schedule run of one mirror.
type MirrorRunArgs struct {
	Project string `json:"project"`
	MirrorID string `json:"mirror_id"`
}

// SetServerStatusArgs is the body of OpSetServerStatus: a JSON-Patch-like
// partial update of the writable/replicating bits (§6's "accepts a
// JSON-Patch document updating /writable and /replicating").
type SetServerStatusArgs struct {
	Writable    *bool              `json:"writable,omitempty"`
	Replicating *bool              `json:"replicating,omitempty"`
	Scope       command.StatusScope `json:"scope,omitempty"`
}

// SetServerStatusResponse answers OpSetServerStatus.
type SetServerStatusResponse struct {
	Writable    bool `json:"writable"`
	Replicating bool `json:"replicating"`
	Modified    bool `json:"modified"`
}
