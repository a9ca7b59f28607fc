// Package mirror implements the cron-scheduled remote↔local Git sync
// engine: mirror specs and credentials live as JSON inside a project's
// reserved repositories, a bounded worker pool runs due mirrors with
// single-flight-per-id coalescing, and only the zone leader is allowed
// to run them at all.
package mirror

import (
	"encoding/json"
	"fmt"
)

// Direction is which way content flows for a mirror.
type Direction string

const (
	RemoteToLocal Direction = "REMOTE_TO_LOCAL"
	LocalToRemote Direction = "LOCAL_TO_REMOTE"
)

// DefaultSchedule is used when a Spec's Schedule is empty, per the wire
// format: six fields including seconds, "every minute on the minute".
const DefaultSchedule = "0 * * * * ?"

// Spec describes one configured mirror, as stored in a project's
// meta/mirrors.json.
type Spec struct {
	ID           string    `json:"id"`
	Enabled      bool      `json:"enabled"`
	Schedule     string    `json:"schedule"`
	Direction    Direction `json:"direction"`
	LocalRepo    string    `json:"localRepo"` // "project/repository"
	LocalPath    string    `json:"localPath"`
	RemoteURI    string    `json:"remoteUri"`
	CredentialID string    `json:"credentialId,omitempty"`
	Gitignore    Gitignore `json:"gitignore,omitempty"`
}

// Gitignore unmarshals either a single newline-delimited string (the
// whole file's content) or an array of individual pattern lines, per
// the wire format in meta/mirrors.json; both normalize to a slice of
// lines.
type Gitignore []string

func (g *Gitignore) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*g = splitLines(asString)
		return nil
	}
	var asLines []string
	if err := json.Unmarshal(data, &asLines); err != nil {
		return fmt.Errorf("gitignore must be a string or array of strings: %w", err)
	}
	*g = asLines
	return nil
}

func (g Gitignore) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(g))
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, trimCR(s[start:i]))
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, trimCR(s[start:]))
	}
	return lines
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}

// EffectiveSchedule returns Spec.Schedule, or DefaultSchedule if unset.
func (s Spec) EffectiveSchedule() string {
	if s.Schedule == "" {
		return DefaultSchedule
	}
	return s.Schedule
}

// CredentialType selects which fields of Credential are populated.
type CredentialType string

const (
	CredentialNone        CredentialType = "NONE"
	CredentialPassword    CredentialType = "PASSWORD"
	CredentialPublicKey   CredentialType = "PUBLIC_KEY"
	CredentialAccessToken CredentialType = "ACCESS_TOKEN"
)

// Credential is a tagged union of the ways the engine can authenticate
// to a remote. HostnamePatterns is used for resolution when a Spec
// doesn't name a CredentialID directly.
type Credential struct {
	ID               string         `json:"id"`
	Type             CredentialType `json:"type"`
	HostnamePatterns []string       `json:"hostnamePatterns,omitempty"`

	// PASSWORD
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`

	// PUBLIC_KEY
	PublicKey  string `json:"publicKey,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`

	// ACCESS_TOKEN
	Token string `json:"token,omitempty"`
}
