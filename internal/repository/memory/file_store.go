// Package memory contains in-process implementations of repository interfaces.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/cloudsentinel/internal/errs"
	"github.com/and161185/cloudsentinel/internal/model"
	"github.com/and161185/cloudsentinel/internal/repository"
)

type fileEntry struct {
	mu   sync.RWMutex
	rec  model.FileRecord
	gone bool
}

// FileStore keeps records in a map. The store lock guards only the map;
// each entry has its own lock so unrelated files never contend.
type FileStore struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]*fileEntry
}

var _ repository.FileRepository = (*FileStore)(nil)

// NewFileStore returns an empty store.
func NewFileStore() *FileStore {
	return &FileStore{byID: make(map[uuid.UUID]*fileEntry)}
}

func (s *FileStore) entry(id uuid.UUID) (*fileEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// Create inserts a copy of rec.
func (s *FileStore) Create(ctx context.Context, rec *model.FileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.ID == uuid.Nil {
		return errs.Validation("id", "must be set")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[rec.ID]; exists {
		return errs.ErrAlreadyExists
	}
	s.byID[rec.ID] = &fileEntry{rec: rec.Clone()}
	return nil
}

// Get returns a deep copy taken under the entry read lock.
func (s *FileStore) Get(ctx context.Context, id uuid.UUID) (*model.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entry(id)
	if !ok {
		return nil, errs.ErrNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.gone {
		return nil, errs.ErrNotFound
	}
	rec := e.rec.Clone()
	return &rec, nil
}

// ReplacePolicy replaces the policy unconditionally.
func (s *FileStore) ReplacePolicy(ctx context.Context, id uuid.UUID, requester string, p model.AccessPolicy) (model.PolicyUpdate, error) {
	return s.replace(ctx, id, requester, p, 0)
}

// ReplacePolicyIfVersion replaces the policy when the stored version equals baseVer.
func (s *FileStore) ReplacePolicyIfVersion(ctx context.Context, id uuid.UUID, requester string, p model.AccessPolicy, baseVer int64) (model.PolicyUpdate, error) {
	if baseVer <= 0 {
		return model.PolicyUpdate{}, errs.Validation("base_version", "must be positive")
	}
	return s.replace(ctx, id, requester, p, baseVer)
}

func (s *FileStore) replace(ctx context.Context, id uuid.UUID, requester string, p model.AccessPolicy, baseVer int64) (model.PolicyUpdate, error) {
	if err := ctx.Err(); err != nil {
		return model.PolicyUpdate{}, err
	}
	e, ok := s.entry(id)
	if !ok {
		return model.PolicyUpdate{}, errs.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return model.PolicyUpdate{}, errs.ErrNotFound
	}
	if e.rec.OwnerID != requester {
		return model.PolicyUpdate{}, errs.ErrForbidden
	}
	if baseVer != 0 && e.rec.PolicyVersion != baseVer {
		return model.PolicyUpdate{}, errs.ErrVersionConflict
	}

	upd := model.PolicyUpdate{
		FileID:          id,
		OwnerID:         e.rec.OwnerID,
		Previous:        e.rec.Policy.Clone(),
		PreviousVersion: e.rec.PolicyVersion,
		Current:         p.Clone(),
		Version:         e.rec.PolicyVersion + 1,
	}
	e.rec.Policy = p.Clone()
	e.rec.PolicyVersion = upd.Version
	return upd, nil
}

// Delete removes a record owned by requester.
func (s *FileStore) Delete(ctx context.Context, id uuid.UUID, requester string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := s.entry(id)
	if !ok {
		return errs.ErrNotFound
	}
	e.mu.Lock()
	if e.gone {
		e.mu.Unlock()
		return errs.ErrNotFound
	}
	if e.rec.OwnerID != requester {
		e.mu.Unlock()
		return errs.ErrForbidden
	}
	e.gone = true
	e.mu.Unlock()

	s.mu.Lock()
	if s.byID[id] == e {
		delete(s.byID, id)
	}
	s.mu.Unlock()
	return nil
}

// ListByOwner returns copies of the owner's records.
func (s *FileStore) ListByOwner(ctx context.Context, owner string) ([]model.FileRecord, error) {
	return s.list(ctx, func(r *model.FileRecord) bool { return r.OwnerID == owner })
}

// ListAll returns copies of every record.
func (s *FileStore) ListAll(ctx context.Context) ([]model.FileRecord, error) {
	return s.list(ctx, func(*model.FileRecord) bool { return true })
}

func (s *FileStore) list(ctx context.Context, keep func(*model.FileRecord) bool) ([]model.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entries := make([]*fileEntry, 0, len(s.byID))
	for _, e := range s.byID {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]model.FileRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		if !e.gone && keep(&e.rec) {
			out = append(out, e.rec.Clone())
		}
		e.mu.RUnlock()
	}
	slices.SortFunc(out, func(a, b model.FileRecord) int {
		if c := a.UploadedAt.Compare(b.UploadedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID.Bytes(), b.ID.Bytes())
	})
	return out, nil
}
