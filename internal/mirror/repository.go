package mirror

import (
	"context"
	"errors"

	"github.com/line/centraldogma-go/internal/domain"
	"github.com/line/centraldogma-go/internal/storage"
)

// storageSpecRepository implements SpecRepository by reading
// meta/mirrors.json, meta/credentials.json and
// meta/mirror_access_control.json out of one project's reserved
// "meta" repository through internal/storage directly, bypassing
// internal/cache. The engine reads these files only when Reconcile or
// RunNow runs.
type storageSpecRepository struct {
	store storage.Storage
	repo  string // "<project>/meta"
}

// NewStorageSpecRepository builds a SpecRepository over project's
// reserved meta repository.
func NewStorageSpecRepository(store storage.Storage, project string) SpecRepository {
	return &storageSpecRepository{store: store, repo: project + "/meta"}
}

func (r *storageSpecRepository) MirrorSpecs(ctx context.Context) ([]Spec, error) {
	content, err := r.readOrEmpty(ctx, "/mirrors.json")
	if err != nil {
		return nil, err
	}
	return decodeSpecs(content)
}

func (r *storageSpecRepository) Credentials(ctx context.Context) ([]Credential, error) {
	content, err := r.readOrEmpty(ctx, "/credentials.json")
	if err != nil {
		return nil, err
	}
	return decodeCredentials(content)
}

func (r *storageSpecRepository) AccessControlRules(ctx context.Context) ([]AccessControl, error) {
	content, err := r.readOrEmpty(ctx, "/mirror_access_control.json")
	if err != nil {
		return nil, err
	}
	return decodeAccessControl(content)
}

func (r *storageSpecRepository) readOrEmpty(ctx context.Context, path string) ([]byte, error) {
	entry, err := r.store.Find(ctx, r.repo, domain.HeadRevision, path)
	if errors.Is(err, domain.ErrEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry.Content, nil
}
