package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/cloudsentinel/internal/audit"
	"github.com/and161185/cloudsentinel/internal/blob"
	pkgcrypto "github.com/and161185/cloudsentinel/internal/crypto"
	"github.com/and161185/cloudsentinel/internal/errs"
	"github.com/and161185/cloudsentinel/internal/geo"
	"github.com/and161185/cloudsentinel/internal/model"
	"github.com/and161185/cloudsentinel/internal/policy"
	"github.com/and161185/cloudsentinel/internal/repository"
)

// Engine is the file access facade: every operation that touches an encrypted
// file goes through it so the policy and the audit trail cannot be bypassed.
type Engine interface {
	Upload(ctx context.Context, req model.UploadRequest) (model.FileSummary, error)
	Download(ctx context.Context, req model.DownloadRequest) ([]byte, model.FileSummary, error)
	SharePolicy(ctx context.Context, req model.ShareRequest) (model.FileSummary, error)
	DeleteFile(ctx context.Context, requesterID string, fileID uuid.UUID) error

	GetFile(ctx context.Context, requesterID string, fileID uuid.UUID) (model.FileSummary, error)
	ListMyFiles(ctx context.Context, ownerID string) ([]model.FileSummary, error)
	ListAccessibleFiles(ctx context.Context, requesterID string) ([]model.FileSummary, error)
	ListAuditEvents(ctx context.Context, requesterID string, f model.AuditFilter) ([]model.AuditEvent, error)
	SecuritySummary(ctx context.Context, requesterID string, f model.AuditFilter) (model.AuditSummary, error)
}

// Limits bounds what Upload accepts.
type Limits struct {
	MinPasswordLen    int
	MaxFileSize       int64
	AllowedExtensions []string // lower-case with leading dot; empty allows any
}

// DefaultLimits mirrors the configuration defaults.
var DefaultLimits = Limits{MinPasswordLen: 6, MaxFileSize: 50 << 20}

type EngineImpl struct {
	files  repository.FileRepository
	blobs  blob.Store
	audit  *audit.Log
	cipher pkgcrypto.FileCipher
	geo    geo.Resolver
	clock  audit.Clock
	eval   policy.Evaluator
	limits Limits
	logger *zap.Logger
}

var _ Engine = (*EngineImpl)(nil)

// EngineOption customizes EngineImpl.
type EngineOption func(*EngineImpl)

// WithCipher replaces the default PasswordCipher.
func WithCipher(c pkgcrypto.FileCipher) EngineOption { return func(e *EngineImpl) { e.cipher = c } }

// WithResolver sets the region resolver used when a download carries only an address.
func WithResolver(r geo.Resolver) EngineOption { return func(e *EngineImpl) { e.geo = r } }

// WithClock sets the clock used for upload times and policy evaluation.
func WithClock(c audit.Clock) EngineOption { return func(e *EngineImpl) { e.clock = c } }

// WithLimits sets upload limits.
func WithLimits(l Limits) EngineOption { return func(e *EngineImpl) { e.limits = l } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EngineOption { return func(e *EngineImpl) { e.logger = l } }

// NewEngine wires the facade over its stores.
func NewEngine(files repository.FileRepository, blobs blob.Store, log *audit.Log, opts ...EngineOption) *EngineImpl {
	e := &EngineImpl{
		files:  files,
		blobs:  blobs,
		audit:  log,
		cipher: pkgcrypto.NewFileCipher(pkgcrypto.CurrentKDF),
		clock:  audit.SystemClock,
		limits: DefaultLimits,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// StorageKey is the blob key of a file.
func StorageKey(owner string, id uuid.UUID) string {
	return "encrypted/" + url.PathEscape(owner) + "/" + id.String()
}

// Upload validates the request, encrypts the payload and persists blob, record
// and UPLOAD event. On any failure nothing it created is left behind.
func (e *EngineImpl) Upload(ctx context.Context, req model.UploadRequest) (model.FileSummary, error) {
	name, p, err := e.validateUpload(req)
	if err != nil {
		return model.FileSummary{}, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.FileSummary{}, err
	}
	ct, params, err := e.cipher.Seal([]byte(req.Password), req.Data)
	if err != nil {
		return model.FileSummary{}, fmt.Errorf("encrypt: %w", err)
	}

	key := StorageKey(req.OwnerID, id)
	if err := e.blobs.Put(ctx, key, ct); err != nil {
		return model.FileSummary{}, err
	}

	rec := &model.FileRecord{
		ID:               id,
		OwnerID:          req.OwnerID,
		OriginalFilename: name,
		OriginalSize:     int64(len(req.Data)),
		EncryptedSize:    int64(len(ct)),
		CipherParams:     params,
		Policy:           p,
		PolicyVersion:    1,
		UploadedAt:       e.clock.Now().UTC().Truncate(time.Microsecond),
		StorageKey:       key,
	}
	if err := e.files.Create(ctx, rec); err != nil {
		e.dropBlob(key)
		return model.FileSummary{}, storageErr(err)
	}

	if _, err := e.audit.Append(ctx, model.AuditEvent{
		Type:         model.EventUpload,
		ActorID:      req.OwnerID,
		FileID:       &id,
		SourceRegion: req.Region,
		Success:      true,
		Detail:       name + " " + policy.Describe(p),
	}); err != nil {
		if derr := e.files.Delete(context.WithoutCancel(ctx), id, req.OwnerID); derr != nil {
			e.logger.Error("upload rollback: record not removed", zap.String("file_id", id.String()), zap.Error(derr))
		}
		e.dropBlob(key)
		return model.FileSummary{}, err
	}

	e.logger.Info("file uploaded",
		zap.String("file_id", id.String()),
		zap.String("owner", req.OwnerID),
		zap.Int64("size", rec.OriginalSize))
	return rec.Summary(), nil
}

func (e *EngineImpl) validateUpload(req model.UploadRequest) (string, model.AccessPolicy, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return "", model.AccessPolicy{}, errs.Validation("owner", "must not be empty")
	}
	name, err := sanitizeFilename(req.Filename)
	if err != nil {
		return "", model.AccessPolicy{}, err
	}
	if exts := e.limits.AllowedExtensions; len(exts) > 0 {
		ext := strings.ToLower(filepath.Ext(name))
		if !slices.Contains(exts, ext) {
			return "", model.AccessPolicy{}, errs.Validation("filename", "extension %q is not allowed", ext)
		}
	}
	if len(req.Data) == 0 {
		return "", model.AccessPolicy{}, errs.Validation("data", "file is empty")
	}
	if limit := e.limits.MaxFileSize; limit > 0 && int64(len(req.Data)) > limit {
		return "", model.AccessPolicy{}, errs.Validation("data", "file exceeds %d bytes", limit)
	}
	if len(req.Password) < e.limits.MinPasswordLen {
		return "", model.AccessPolicy{}, errs.Validation("password", "must be at least %d characters", e.limits.MinPasswordLen)
	}
	p := req.Policy.Normalize()
	if err := policy.ValidateWindow(p); err != nil {
		return "", model.AccessPolicy{}, err
	}
	return name, p, nil
}

// sanitizeFilename keeps only the base name of a client-supplied path.
func sanitizeFilename(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	switch base {
	case "", ".", "..", "/":
		return "", errs.Validation("filename", "must not be empty")
	}
	return base, nil
}

// Download evaluates the policy before the key is ever derived. Each denial
// appends exactly one ACCESS_DENIED event.
func (e *EngineImpl) Download(ctx context.Context, req model.DownloadRequest) ([]byte, model.FileSummary, error) {
	if req.RequesterID == "" {
		return nil, model.FileSummary{}, errs.Validation("requester", "must not be empty")
	}
	rec, err := e.files.Get(ctx, req.FileID)
	if err != nil {
		return nil, model.FileSummary{}, storageErr(err)
	}

	region, regionErr := e.requestRegion(ctx, req)
	d := e.eval.Evaluate(rec.Policy, policy.Input{
		RequesterID: req.RequesterID,
		OwnerID:     rec.OwnerID,
		Now:         e.clock.Now(),
		Region:      region,
		RegionErr:   regionErr,
	})
	if !d.Allowed {
		if err := e.record(ctx, model.EventAccessDenied, req.RequesterID, rec.ID, region, false, d.Check+": "+d.Reason); err != nil {
			return nil, model.FileSummary{}, err
		}
		e.logger.Info("download denied",
			zap.String("file_id", rec.ID.String()),
			zap.String("requester", req.RequesterID),
			zap.String("check", d.Check))
		return nil, model.FileSummary{}, d.Err()
	}

	ct, err := e.blobs.Get(ctx, rec.StorageKey)
	if err != nil {
		if aerr := e.record(ctx, model.EventDownload, req.RequesterID, rec.ID, region, false, "blob unavailable"); aerr != nil {
			return nil, model.FileSummary{}, aerr
		}
		if errors.Is(err, errs.ErrNotFound) {
			if _, gerr := e.files.Get(ctx, rec.ID); errors.Is(gerr, errs.ErrNotFound) {
				return nil, model.FileSummary{}, gerr
			}
			return nil, model.FileSummary{}, fmt.Errorf("%w: blob missing for %s", errs.ErrStorageUnavailable, rec.ID)
		}
		return nil, model.FileSummary{}, storageErr(err)
	}

	pt, err := e.cipher.Open([]byte(req.Password), ct, rec.CipherParams)
	if err != nil {
		if aerr := e.record(ctx, model.EventDownload, req.RequesterID, rec.ID, region, false, "decryption failed"); aerr != nil {
			return nil, model.FileSummary{}, aerr
		}
		return nil, model.FileSummary{}, errs.ErrDecryption
	}

	if err := e.record(ctx, model.EventDownload, req.RequesterID, rec.ID, region, true, rec.OriginalFilename); err != nil {
		clear(pt)
		return nil, model.FileSummary{}, err
	}
	return pt, rec.Summary(), nil
}

func (e *EngineImpl) requestRegion(ctx context.Context, req model.DownloadRequest) (string, error) {
	if r := strings.ToUpper(strings.TrimSpace(req.Region)); r != "" {
		return r, nil
	}
	if e.geo == nil || req.Addr == "" {
		return "", geo.ErrUnresolved
	}
	return e.geo.Resolve(ctx, req.Addr)
}

// SharePolicy replaces the file policy. Only the owner may share.
func (e *EngineImpl) SharePolicy(ctx context.Context, req model.ShareRequest) (model.FileSummary, error) {
	if req.RequesterID == "" {
		return model.FileSummary{}, errs.Validation("requester", "must not be empty")
	}
	p := req.Policy.Normalize()
	if err := policy.ValidateWindow(p); err != nil {
		return model.FileSummary{}, err
	}

	var (
		upd model.PolicyUpdate
		err error
	)
	if req.BaseVersion > 0 {
		upd, err = e.files.ReplacePolicyIfVersion(ctx, req.FileID, req.RequesterID, p, req.BaseVersion)
	} else {
		upd, err = e.files.ReplacePolicy(ctx, req.FileID, req.RequesterID, p)
	}
	if err != nil {
		if errors.Is(err, errs.ErrForbidden) || errors.Is(err, errs.ErrVersionConflict) {
			if aerr := e.record(ctx, model.EventShare, req.RequesterID, req.FileID, req.Region, false, err.Error()); aerr != nil {
				return model.FileSummary{}, aerr
			}
		}
		return model.FileSummary{}, storageErr(err)
	}

	if err := e.record(ctx, model.EventShare, req.RequesterID, req.FileID, req.Region, true, policy.Describe(upd.Current)); err != nil {
		if _, rerr := e.files.ReplacePolicyIfVersion(context.WithoutCancel(ctx), req.FileID, req.RequesterID, upd.Previous, upd.Version); rerr != nil {
			e.logger.Error("share rollback failed", zap.String("file_id", req.FileID.String()), zap.Error(rerr))
		}
		return model.FileSummary{}, err
	}

	rec, err := e.files.Get(ctx, req.FileID)
	if err != nil {
		return model.FileSummary{}, storageErr(err)
	}
	return rec.Summary(), nil
}

// DeleteFile removes the blob, appends DELETE, then removes the record. A failed
// blob delete or audit append keeps the record so the call can be retried.
func (e *EngineImpl) DeleteFile(ctx context.Context, requesterID string, fileID uuid.UUID) error {
	if requesterID == "" {
		return errs.Validation("requester", "must not be empty")
	}
	rec, err := e.files.Get(ctx, fileID)
	if err != nil {
		return storageErr(err)
	}
	if rec.OwnerID != requesterID {
		if aerr := e.record(ctx, model.EventDelete, requesterID, fileID, "", false, "not the owner"); aerr != nil {
			return aerr
		}
		return errs.ErrForbidden
	}

	if err := e.blobs.Delete(ctx, rec.StorageKey); err != nil {
		return storageErr(err)
	}
	// The record outlives a failed append so a retry can still audit the delete.
	if err := e.record(ctx, model.EventDelete, requesterID, fileID, "", true, rec.OriginalFilename); err != nil {
		return err
	}
	if err := e.files.Delete(ctx, fileID, requesterID); err != nil {
		return storageErr(err)
	}
	e.logger.Info("file deleted", zap.String("file_id", fileID.String()), zap.String("owner", requesterID))
	return nil
}

// GetFile returns file metadata to its owner or an identity-permitted user.
func (e *EngineImpl) GetFile(ctx context.Context, requesterID string, fileID uuid.UUID) (model.FileSummary, error) {
	rec, err := e.files.Get(ctx, fileID)
	if err != nil {
		return model.FileSummary{}, storageErr(err)
	}
	if !policy.PermitsIdentity(rec.Policy, rec.OwnerID, requesterID) {
		return model.FileSummary{}, errs.ErrForbidden
	}
	return rec.Summary(), nil
}

func (e *EngineImpl) ListMyFiles(ctx context.Context, ownerID string) ([]model.FileSummary, error) {
	if ownerID == "" {
		return nil, errs.Validation("owner", "must not be empty")
	}
	recs, err := e.files.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storageErr(err)
	}
	return summaries(recs, nil), nil
}

// ListAccessibleFiles lists files of other owners whose identity rule admits
// requesterID. Time and region rules are checked only on download.
func (e *EngineImpl) ListAccessibleFiles(ctx context.Context, requesterID string) ([]model.FileSummary, error) {
	if requesterID == "" {
		return nil, errs.Validation("requester", "must not be empty")
	}
	recs, err := e.files.ListAll(ctx)
	if err != nil {
		return nil, storageErr(err)
	}
	return summaries(recs, func(r model.FileRecord) bool {
		return r.OwnerID != requesterID && policy.PermitsIdentity(r.Policy, r.OwnerID, requesterID)
	}), nil
}

// ListAuditEvents returns events the requester may see: their own activity,
// or the history of a file they own or are permitted on.
func (e *EngineImpl) ListAuditEvents(ctx context.Context, requesterID string, f model.AuditFilter) ([]model.AuditEvent, error) {
	f, err := e.scopeFilter(ctx, requesterID, f)
	if err != nil {
		return nil, err
	}
	return e.audit.Query(ctx, f)
}

// SecuritySummary aggregates the requester's own activity.
func (e *EngineImpl) SecuritySummary(ctx context.Context, requesterID string, f model.AuditFilter) (model.AuditSummary, error) {
	if requesterID == "" {
		return model.AuditSummary{}, errs.Validation("requester", "must not be empty")
	}
	f.ActorID = requesterID
	return e.audit.Summary(ctx, f)
}

func (e *EngineImpl) scopeFilter(ctx context.Context, requesterID string, f model.AuditFilter) (model.AuditFilter, error) {
	if requesterID == "" {
		return f, errs.Validation("requester", "must not be empty")
	}
	for _, t := range f.Types {
		if !t.Valid() {
			return f, errs.Validation("event_type", "unknown event type %q", t)
		}
	}
	if f.FileID != nil {
		rec, err := e.files.Get(ctx, *f.FileID)
		switch {
		case err == nil:
			if policy.PermitsIdentity(rec.Policy, rec.OwnerID, requesterID) {
				return f, nil
			}
		case !errors.Is(err, errs.ErrNotFound):
			return f, storageErr(err)
		}
		// deleted or foreign files: only the requester's own events
		if f.ActorID == "" || f.ActorID == requesterID {
			f.ActorID = requesterID
			return f, nil
		}
		return f, errs.ErrForbidden
	}
	switch f.ActorID {
	case "":
		f.ActorID = requesterID
	case requesterID:
	default:
		return f, errs.ErrForbidden
	}
	return f, nil
}

// record appends one file event.
func (e *EngineImpl) record(ctx context.Context, t model.EventType, actor string, fileID uuid.UUID, region string, ok bool, detail string) error {
	_, err := e.audit.Append(ctx, model.AuditEvent{
		Type:         t,
		ActorID:      actor,
		FileID:       &fileID,
		SourceRegion: region,
		Success:      ok,
		Detail:       detail,
	})
	return err
}

func (e *EngineImpl) dropBlob(key string) {
	if err := e.blobs.Delete(context.Background(), key); err != nil {
		e.logger.Error("orphaned blob", zap.String("key", key), zap.Error(err))
	}
}

func summaries(recs []model.FileRecord, keep func(model.FileRecord) bool) []model.FileSummary {
	out := make([]model.FileSummary, 0, len(recs))
	for _, r := range recs {
		if keep != nil && !keep(r) {
			continue
		}
		out = append(out, r.Summary())
	}
	return out
}

// storageErr passes domain errors through and marks anything else retryable.
func storageErr(err error) error {
	for _, known := range []error{
		errs.ErrNotFound, errs.ErrForbidden, errs.ErrVersionConflict, errs.ErrValidation,
		errs.ErrAlreadyExists, errs.ErrStorageUnavailable, context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", errs.ErrStorageUnavailable, err)
}
