// Package command implements the totally-ordered log every mutation
// passes through before it reaches internal/storage: a single Executor
// serializes CREATE_PROJECT, REMOVE_PROJECT, RESTORE_PROJECT,
// CREATE_REPOSITORY, REMOVE_REPOSITORY, RESTORE_REPOSITORY, PUSH and
// UPDATE_SERVER_STATUS commands, gates the mutating ones on the node's
// writable bit, and elects a per-zone leader for
// plugins (the mirror engine) that must run on exactly one replica.
package command

import (
	"github.com/line/centraldogma-go/internal/domain"
)

// Type identifies the kind of command in the log.
type Type string

const (
	TypeCreateProject      Type = "CREATE_PROJECT"
	TypeRemoveProject      Type = "REMOVE_PROJECT"
	TypeRestoreProject     Type = "RESTORE_PROJECT"
	TypeCreateRepository   Type = "CREATE_REPOSITORY"
	TypeRemoveRepository   Type = "REMOVE_REPOSITORY"
	TypeRestoreRepository  Type = "RESTORE_REPOSITORY"
	TypePush               Type = "PUSH"
	TypeUpdateServerStatus Type = "UPDATE_SERVER_STATUS"
)

// StatusScope selects which replicas an UPDATE_SERVER_STATUS command
// applies to.
type StatusScope string

const (
	ScopeLocal StatusScope = "LOCAL"
	ScopeAll   StatusScope = "ALL"
)

// PushPayload is the body of a PUSH command: an optimistic commit
// against one repository, identical in shape to what internal/storage
// expects.
type PushPayload struct {
	Project      string
	Repository   string
	BaseRevision domain.Revision
	Author       string
	Summary      string
	Detail       string
	Markup       domain.Markup
	Changes      []domain.Change
}

// ProjectPayload names a project for CREATE_PROJECT/REMOVE_PROJECT/RESTORE_PROJECT.
type ProjectPayload struct {
	Project string
}

// RepositoryPayload names a repository for
// CREATE_REPOSITORY/REMOVE_REPOSITORY/RESTORE_REPOSITORY.
type RepositoryPayload struct {
	Project    string
	Repository string
}

// StatusPayload is the body of UPDATE_SERVER_STATUS.
type StatusPayload struct {
	Writable    bool
	Replicating bool
	Scope       StatusScope
}

// Command is one entry in the totally-ordered log. Exactly one of the
// Payload fields is populated, selected by Type.
type Command struct {
	ID      string
	Type    Type
	Project *ProjectPayload
	Repo    *RepositoryPayload
	Push    *PushPayload
	Status  *StatusPayload
}

// Result is what applying a Command produced. Only one field is
// populated, matching the command's Type.
type Result struct {
	Commit *domain.Commit
}
