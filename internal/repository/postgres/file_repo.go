package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/cloudsentinel/internal/errs"
	"github.com/and161185/cloudsentinel/internal/model"
	"github.com/and161185/cloudsentinel/internal/repository"
)

// FileRepo implements FileRepository using PostgreSQL. Policy writers are
// serialized by the row lock taken with SELECT ... FOR UPDATE.
type FileRepo struct{ db *DB }

var _ repository.FileRepository = (*FileRepo)(nil)

// NewFileRepo constructs a file repository.
func NewFileRepo(db *DB) *FileRepo { return &FileRepo{db: db} }

const fileColumns = `id, owner_id, original_filename, original_size, encrypted_size,
cipher_params, policy, policy_ver, uploaded_at, storage_key`

// Create inserts a new file row.
func (r *FileRepo) Create(ctx context.Context, rec *model.FileRecord) error {
	params, err := json.Marshal(rec.CipherParams)
	if err != nil {
		return err
	}
	pol, err := json.Marshal(rec.Policy)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO files (` + fileColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = r.db.Pool.Exec(ctx, q,
		rec.ID, rec.OwnerID, rec.OriginalFilename, rec.OriginalSize, rec.EncryptedSize,
		params, pol, rec.PolicyVersion, rec.UploadedAt, rec.StorageKey)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get selects one file by id.
func (r *FileRepo) Get(ctx context.Context, id uuid.UUID) (*model.FileRecord, error) {
	const q = `SELECT ` + fileColumns + ` FROM files WHERE id=$1`
	rec, err := scanFile(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ReplacePolicy replaces the policy unconditionally.
func (r *FileRepo) ReplacePolicy(ctx context.Context, id uuid.UUID, requester string, p model.AccessPolicy) (model.PolicyUpdate, error) {
	return r.replace(ctx, id, requester, p, 0)
}

// ReplacePolicyIfVersion replaces the policy when policy_ver equals baseVer.
func (r *FileRepo) ReplacePolicyIfVersion(ctx context.Context, id uuid.UUID, requester string, p model.AccessPolicy, baseVer int64) (model.PolicyUpdate, error) {
	if baseVer <= 0 {
		return model.PolicyUpdate{}, errs.Validation("base_version", "must be positive")
	}
	return r.replace(ctx, id, requester, p, baseVer)
}

func (r *FileRepo) replace(ctx context.Context, id uuid.UUID, requester string, p model.AccessPolicy, baseVer int64) (model.PolicyUpdate, error) {
	next, err := json.Marshal(p)
	if err != nil {
		return model.PolicyUpdate{}, err
	}

	const sel = `SELECT owner_id, policy, policy_ver FROM files WHERE id=$1 FOR UPDATE`
	const upd = `UPDATE files SET policy=$2, policy_ver=$3 WHERE id=$1`

	var out model.PolicyUpdate
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		var (
			owner  string
			prev   []byte
			curVer int64
		)
		if err := tx.QueryRow(ctx, sel, id).Scan(&owner, &prev, &curVer); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if owner != requester {
			return errs.ErrForbidden
		}
		if baseVer != 0 && curVer != baseVer {
			return errs.ErrVersionConflict
		}
		var prevPolicy model.AccessPolicy
		if err := json.Unmarshal(prev, &prevPolicy); err != nil {
			return fmt.Errorf("decode policy: %w", err)
		}
		newVer := curVer + 1
		if _, err := tx.Exec(ctx, upd, id, next, newVer); err != nil {
			return err
		}
		out = model.PolicyUpdate{
			FileID:          id,
			OwnerID:         owner,
			Previous:        prevPolicy,
			PreviousVersion: curVer,
			Current:         p.Clone(),
			Version:         newVer,
		}
		return nil
	})
	if err != nil {
		return model.PolicyUpdate{}, err
	}
	return out, nil
}

// Delete removes a file row owned by requester.
func (r *FileRepo) Delete(ctx context.Context, id uuid.UUID, requester string) error {
	const sel = `SELECT owner_id FROM files WHERE id=$1 FOR UPDATE`
	const del = `DELETE FROM files WHERE id=$1`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		var owner string
		if err := tx.QueryRow(ctx, sel, id).Scan(&owner); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if owner != requester {
			return errs.ErrForbidden
		}
		_, err := tx.Exec(ctx, del, id)
		return err
	})
}

// ListByOwner returns the owner's files ordered by upload time.
func (r *FileRepo) ListByOwner(ctx context.Context, owner string) ([]model.FileRecord, error) {
	const q = `SELECT ` + fileColumns + ` FROM files WHERE owner_id=$1 ORDER BY uploaded_at ASC, id ASC`
	return r.list(ctx, q, owner)
}

// ListAll returns every file ordered by upload time.
func (r *FileRepo) ListAll(ctx context.Context) ([]model.FileRecord, error) {
	const q = `SELECT ` + fileColumns + ` FROM files ORDER BY uploaded_at ASC, id ASC`
	return r.list(ctx, q)
}

func (r *FileRepo) list(ctx context.Context, q string, args ...any) ([]model.FileRecord, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanFile(row pgx.Row) (model.FileRecord, error) {
	var (
		rec    model.FileRecord
		params []byte
		pol    []byte
	)
	if err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.OriginalFilename, &rec.OriginalSize, &rec.EncryptedSize,
		&params, &pol, &rec.PolicyVersion, &rec.UploadedAt, &rec.StorageKey,
	); err != nil {
		return model.FileRecord{}, err
	}
	if err := json.Unmarshal(params, &rec.CipherParams); err != nil {
		return model.FileRecord{}, fmt.Errorf("decode cipher params: %w", err)
	}
	if err := json.Unmarshal(pol, &rec.Policy); err != nil {
		return model.FileRecord{}, fmt.Errorf("decode policy: %w", err)
	}
	return rec, nil
}
