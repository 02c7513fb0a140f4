package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/cloudsentinel/internal/model"
)

// FileRepository stores file metadata. Implementations serialize writers per
// record and return copies that share no memory with stored state.
type FileRepository interface {
	// Create inserts a record. A duplicate id yields errs.ErrAlreadyExists.
	Create(ctx context.Context, rec *model.FileRecord) error

	// Get returns a snapshot of one record or errs.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*model.FileRecord, error)

	// ReplacePolicy swaps the whole policy of a file owned by requester and
	// increments its version.
	ReplacePolicy(ctx context.Context, id uuid.UUID, requester string, p model.AccessPolicy) (model.PolicyUpdate, error)

	// ReplacePolicyIfVersion is ReplacePolicy guarded by the current version;
	// a mismatch yields errs.ErrVersionConflict.
	ReplacePolicyIfVersion(ctx context.Context, id uuid.UUID, requester string, p model.AccessPolicy, baseVer int64) (model.PolicyUpdate, error)

	// Delete removes a record owned by requester.
	Delete(ctx context.Context, id uuid.UUID, requester string) error

	// ListByOwner returns the owner's records ordered by upload time.
	ListByOwner(ctx context.Context, owner string) ([]model.FileRecord, error)

	// ListAll returns every record ordered by upload time.
	ListAll(ctx context.Context) ([]model.FileRecord, error)
}
