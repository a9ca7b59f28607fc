package command

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// Status is the node's current writable/replicating bits.
//
// writable gates PUSH and the other mutating commands: when false they
// all fail with domain.ErrReadOnly. replicating is persisted and
// reported, but no command and not the leader election look at it: a
// non-replicating node executes the same commands and still runs for
// leadership.
type Status struct {
	Writable    bool `json:"writable"`
	Replicating bool `json:"replicating"`
}

// statusStore persists Status to a JSON file next to the rest of the
// server's state, so a restart resumes in the same mode it was last
// set to rather than defaulting back to fully-open.
type statusStore struct {
	path string
	mu   sync.Mutex // in-process; the file lock below covers cross-process
}

func newStatusStore(dir string) (*statusStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create status dir: %w", err)
	}
	return &statusStore{path: filepath.Join(dir, "status.json")}, nil
}

func (s *statusStore) withFileLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock status file: %w", err)
	}
	defer lock.Unlock()

	return fn()
}

// load reads the persisted status, defaulting to fully-writable and
// replicating (the state a freshly bootstrapped node starts in) if no
// status file exists yet.
func (s *statusStore) load() (Status, error) {
	var st Status
	err := s.withFileLock(func() error {
		data, err := os.ReadFile(s.path)
		if os.IsNotExist(err) {
			st = Status{Writable: true, Replicating: true}
			return nil
		}
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &st)
	})
	return st, err
}

// save writes st atomically (write-temp, fsync, rename) so a crash
// mid-write never leaves a corrupted status file behind.
func (s *statusStore) save(st Status) error {
	return s.withFileLock(func() error {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		dir := filepath.Dir(s.path)
		tmp, err := os.CreateTemp(dir, "status-*.json.tmp")
		if err != nil {
			return fmt.Errorf("create temp status file: %w", err)
		}
		tmpPath := tmp.Name()
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("write temp status file: %w", err)
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("sync temp status file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpPath)
			return err
		}
		if err := os.Rename(tmpPath, s.path); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("rename temp status file: %w", err)
		}
		return nil
	})
}
