package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/cloudsentinel/internal/audit"
	"github.com/and161185/cloudsentinel/internal/blob"
	pkgcrypto "github.com/and161185/cloudsentinel/internal/crypto"
	"github.com/and161185/cloudsentinel/internal/errs"
	"github.com/and161185/cloudsentinel/internal/geo"
	"github.com/and161185/cloudsentinel/internal/model"
	"github.com/and161185/cloudsentinel/internal/policy"
	"github.com/and161185/cloudsentinel/internal/repository/memory"
)

var noon = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

type rig struct {
	e      *EngineImpl
	files  *flakyFiles
	blobs  *flakyBlobs
	sink   *flakyAudit
	cipher *countingCipher
	now    time.Time
}

func newRig(t *testing.T, opts ...EngineOption) *rig {
	t.Helper()
	r := &rig{
		files:  &flakyFiles{FileStore: memory.NewFileStore()},
		blobs:  &flakyBlobs{Memory: blob.NewMemory()},
		sink:   newFlakyAudit(),
		cipher: &countingCipher{inner: pkgcrypto.NewFileCipher(pkgcrypto.KDFPBKDF2SHA256)},
		now:    noon,
	}
	logger := zaptest.NewLogger(t)
	base := []EngineOption{
		WithCipher(r.cipher),
		WithClock(audit.ClockFunc(func() time.Time { return r.now })),
		WithResolver(geo.NewStatic("IN", []geo.Rule{{Prefix: netip.MustParsePrefix("203.0.113.0/24"), Region: "US"}})),
		WithLogger(logger),
	}
	r.e = NewEngine(r.files, r.blobs, audit.New(r.sink, nil, logger), append(base, opts...)...)
	return r
}

func (r *rig) upload(t *testing.T, owner string, p model.AccessPolicy) model.FileSummary {
	t.Helper()
	s, err := r.e.Upload(context.Background(), model.UploadRequest{
		OwnerID:  owner,
		Password: "secret1",
		Filename: "report.pdf",
		Data:     []byte("quarterly numbers"),
		Policy:   p,
	})
	require.NoError(t, err)
	return s
}

func (r *rig) download(user string, id uuid.UUID, pw, region string) ([]byte, error) {
	pt, _, err := r.e.Download(context.Background(), model.DownloadRequest{
		RequesterID: user, FileID: id, Password: pw, Region: region,
	})
	return pt, err
}

func TestEngine_ScenarioAllowedUsers(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{AllowedUsers: []string{"bob"}})

	pt, err := r.download("bob", f.ID, "secret1", "US")
	require.NoError(t, err)
	require.Equal(t, []byte("quarterly numbers"), pt)

	_, err = r.download("carol", f.ID, "secret1", "US")
	require.ErrorIs(t, err, errs.ErrPolicyDenied)
	require.Contains(t, err.Error(), policy.ReasonUserNotAuthorized)

	denied := r.sink.events(model.EventAccessDenied)
	require.Len(t, denied, 1)
	require.Equal(t, "carol", denied[0].ActorID)
	require.Equal(t, f.ID, *denied[0].FileID)
	require.False(t, denied[0].Success)

	ok := r.sink.events(model.EventDownload)
	require.Len(t, ok, 1)
	require.True(t, ok[0].Success)
	require.Equal(t, "US", ok[0].SourceRegion)
}

func TestEngine_ScenarioTimeWindow(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	t1 := noon
	t2 := noon.Add(4 * time.Hour)
	f := r.upload(t, "alice", model.AccessPolicy{Window: &model.TimeWindow{Start: t1, End: t2}})

	r.now = t1.Add(-time.Second)
	_, err := r.download("bob", f.ID, "secret1", "US")
	require.ErrorIs(t, err, errs.ErrPolicyDenied)
	require.Contains(t, err.Error(), policy.ReasonOutsideWindow)

	r.now = t1.Add(t2.Sub(t1) / 2)
	_, err = r.download("bob", f.ID, "secret1", "US")
	require.NoError(t, err)
}

func TestEngine_ScenarioDelete(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{})
	ctx := context.Background()

	require.ErrorIs(t, r.e.DeleteFile(ctx, "bob", f.ID), errs.ErrForbidden)
	require.NoError(t, r.e.DeleteFile(ctx, "alice", f.ID))
	require.Equal(t, 0, r.blobs.Len())

	_, err := r.files.Get(ctx, f.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)

	before := r.sink.Len()
	_, err = r.download("alice", f.ID, "secret1", "US")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Equal(t, before, r.sink.Len(), "download of a missing file must not be audited")

	dels := r.sink.events(model.EventDelete)
	require.Len(t, dels, 2)
	require.False(t, dels[0].Success)
	require.Equal(t, "bob", dels[0].ActorID)
	require.True(t, dels[1].Success)
}

func TestEngine_OwnerBypass(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{
		AllowedUsers:   []string{"bob"},
		Window:         &model.TimeWindow{Start: noon.Add(time.Hour), End: noon.Add(2 * time.Hour)},
		AllowedRegions: []string{"US"},
	})

	pt, _, err := r.e.Download(context.Background(), model.DownloadRequest{
		RequesterID: "alice", FileID: f.ID, Password: "secret1", Addr: "198.51.100.7:443",
	})
	require.NoError(t, err)
	require.Equal(t, []byte("quarterly numbers"), pt)
}

func TestEngine_DenyNeverDerivesKey(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{AllowedRegions: []string{"US"}})

	_, err := r.download("bob", f.ID, "secret1", "EU")
	require.ErrorIs(t, err, errs.ErrPolicyDenied)
	require.Equal(t, int32(0), r.cipher.opens.Load())

	var de *errs.DeniedError
	require.ErrorAs(t, err, &de)
	require.Equal(t, policy.CheckRegion, de.Check)
}

func TestEngine_RegionResolution(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{AllowedRegions: []string{"US"}})
	ctx := context.Background()

	_, _, err := r.e.Download(ctx, model.DownloadRequest{RequesterID: "bob", FileID: f.ID, Password: "secret1", Addr: "203.0.113.9:5000"})
	require.NoError(t, err)

	_, _, err = r.e.Download(ctx, model.DownloadRequest{RequesterID: "bob", FileID: f.ID, Password: "secret1", Addr: "198.51.100.7"})
	require.ErrorIs(t, err, errs.ErrPolicyDenied)
	require.Contains(t, err.Error(), policy.ReasonRegionUnknown)

	_, _, err = r.e.Download(ctx, model.DownloadRequest{RequesterID: "bob", FileID: f.ID, Password: "secret1"})
	require.ErrorIs(t, err, errs.ErrPolicyDenied)

	require.Len(t, r.sink.events(model.EventAccessDenied), 2)
}

func TestEngine_WrongPasswordAndTamper(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{})
	ctx := context.Background()

	_, err := r.download("bob", f.ID, "secret2", "US")
	require.ErrorIs(t, err, errs.ErrDecryption)
	require.Equal(t, errs.ErrDecryption, err, "decryption failures must be uniform")

	rec, err := r.files.Get(ctx, f.ID)
	require.NoError(t, err)
	ct, err := r.blobs.Memory.Get(ctx, rec.StorageKey)
	require.NoError(t, err)
	bad := bytes.Clone(ct)
	bad[len(bad)/2] ^= 0x01
	require.NoError(t, r.blobs.Memory.Put(ctx, rec.StorageKey, bad))

	_, err = r.download("alice", f.ID, "secret1", "US")
	require.ErrorIs(t, err, errs.ErrDecryption)

	dl := r.sink.events(model.EventDownload)
	require.Len(t, dl, 2)
	for _, e := range dl {
		require.False(t, e.Success)
	}
}

func TestEngine_UploadValidation(t *testing.T) {
	t.Parallel()
	r := newRig(t, WithLimits(Limits{MinPasswordLen: 6, MaxFileSize: 8, AllowedExtensions: []string{".txt"}}))
	inverted := &model.TimeWindow{Start: noon, End: noon.Add(-time.Hour)}

	for name, req := range map[string]model.UploadRequest{
		"no owner":        {Password: "secret1", Filename: "a.txt", Data: []byte("x")},
		"empty filename":  {OwnerID: "alice", Password: "secret1", Filename: "  ", Data: []byte("x")},
		"dot filename":    {OwnerID: "alice", Password: "secret1", Filename: "dir/..", Data: []byte("x")},
		"bad extension":   {OwnerID: "alice", Password: "secret1", Filename: "a.exe", Data: []byte("x")},
		"empty data":      {OwnerID: "alice", Password: "secret1", Filename: "a.txt"},
		"too large":       {OwnerID: "alice", Password: "secret1", Filename: "a.txt", Data: []byte("123456789")},
		"short password":  {OwnerID: "alice", Password: "pw", Filename: "a.txt", Data: []byte("x")},
		"inverted window": {OwnerID: "alice", Password: "secret1", Filename: "a.txt", Data: []byte("x"), Policy: model.AccessPolicy{Window: inverted}},
	} {
		_, err := r.e.Upload(context.Background(), req)
		if !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("%s: want ErrValidation, got %v", name, err)
		}
	}
	require.Equal(t, int32(0), r.cipher.seals.Load(), "validation must happen before crypto")
	require.Equal(t, 0, r.blobs.Len())
	require.Equal(t, 0, r.sink.Len())
}

func TestEngine_UploadSanitizesAndNormalizes(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	s, err := r.e.Upload(context.Background(), model.UploadRequest{
		OwnerID:  "alice",
		Password: "secret1",
		Filename: `C:\Users\alice\..\notes.TXT`,
		Data:     []byte("n"),
		Policy:   model.AccessPolicy{AllowedUsers: []string{" bob ", "bob", ""}, AllowedRegions: []string{"us"}},
	})
	require.NoError(t, err)
	require.Equal(t, "notes.TXT", s.OriginalFilename)
	require.Equal(t, []string{"bob"}, s.Policy.AllowedUsers)
	require.Equal(t, []string{"US"}, s.Policy.AllowedRegions)
	require.Equal(t, int64(1), s.PolicyVersion)
	require.Equal(t, noon, s.UploadedAt)
	require.Greater(t, s.EncryptedSize, s.OriginalSize)

	up := r.sink.events(model.EventUpload)
	require.Len(t, up, 1)
	require.Contains(t, up[0].Detail, "notes.TXT")
}

func TestEngine_UploadCompensation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("blob put fails", func(t *testing.T) {
		t.Parallel()
		r := newRig(t)
		r.blobs.putErr = fmt.Errorf("%w: down", errs.ErrStorageUnavailable)
		_, err := r.e.Upload(ctx, model.UploadRequest{OwnerID: "alice", Password: "secret1", Filename: "a.txt", Data: []byte("x")})
		require.ErrorIs(t, err, errs.ErrStorageUnavailable)
		all, _ := r.files.ListAll(ctx)
		require.Empty(t, all)
		require.Equal(t, 0, r.sink.Len())
	})

	t.Run("record create fails", func(t *testing.T) {
		t.Parallel()
		r := newRig(t)
		r.files.createErr = errors.New("disk full")
		_, err := r.e.Upload(ctx, model.UploadRequest{OwnerID: "alice", Password: "secret1", Filename: "a.txt", Data: []byte("x")})
		require.ErrorIs(t, err, errs.ErrStorageUnavailable)
		require.Equal(t, 0, r.blobs.Len())
	})

	t.Run("audit fails", func(t *testing.T) {
		t.Parallel()
		r := newRig(t)
		r.sink.down.Store(true)
		_, err := r.e.Upload(ctx, model.UploadRequest{OwnerID: "alice", Password: "secret1", Filename: "a.txt", Data: []byte("x")})
		require.ErrorIs(t, err, errs.ErrAuditUnavailable)
		require.Equal(t, 0, r.blobs.Len())
		all, _ := r.files.ListAll(ctx)
		require.Empty(t, all)
	})
}

func TestEngine_DownloadFailures(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{})

	r.blobs.getErr = errors.New("timeout")
	_, err := r.download("bob", f.ID, "secret1", "US")
	require.ErrorIs(t, err, errs.ErrStorageUnavailable)
	require.True(t, errs.Retryable(err))
	r.blobs.getErr = nil

	r.sink.down.Store(true)
	pt, err := r.download("bob", f.ID, "secret1", "US")
	require.ErrorIs(t, err, errs.ErrAuditUnavailable)
	require.Nil(t, pt, "plaintext must be withheld when the download cannot be audited")

	_, err = r.download("carol", f.ID, "secret1", "")
	require.ErrorIs(t, err, errs.ErrAuditUnavailable, "denial must not proceed past a failed append")

	_, err = r.download("", f.ID, "secret1", "US")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestEngine_SharePolicy(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{})
	ctx := context.Background()

	s, err := r.e.SharePolicy(ctx, model.ShareRequest{RequesterID: "alice", FileID: f.ID, Policy: model.AccessPolicy{AllowedUsers: []string{"bob"}}})
	require.NoError(t, err)
	require.Equal(t, int64(2), s.PolicyVersion)
	require.Equal(t, []string{"bob"}, s.Policy.AllowedUsers)

	_, err = r.download("carol", f.ID, "secret1", "US")
	require.ErrorIs(t, err, errs.ErrPolicyDenied)

	_, err = r.e.SharePolicy(ctx, model.ShareRequest{RequesterID: "bob", FileID: f.ID, Policy: model.AccessPolicy{}})
	require.ErrorIs(t, err, errs.ErrForbidden)

	_, err = r.e.SharePolicy(ctx, model.ShareRequest{RequesterID: "alice", FileID: f.ID, BaseVersion: 1})
	require.ErrorIs(t, err, errs.ErrVersionConflict)

	s, err = r.e.SharePolicy(ctx, model.ShareRequest{RequesterID: "alice", FileID: f.ID, BaseVersion: 2})
	require.NoError(t, err)
	require.Equal(t, int64(3), s.PolicyVersion)

	_, err = r.e.SharePolicy(ctx, model.ShareRequest{RequesterID: "alice", FileID: uuid.Must(uuid.NewV4())})
	require.ErrorIs(t, err, errs.ErrNotFound)

	shares := r.sink.events(model.EventShare)
	require.Len(t, shares, 4)
	require.True(t, shares[0].Success)
	require.False(t, shares[1].Success)
	require.False(t, shares[2].Success)
	require.True(t, shares[3].Success)
}

func TestEngine_ShareRestoresPolicyWhenAuditFails(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{AllowedUsers: []string{"bob"}})
	ctx := context.Background()

	r.sink.down.Store(true)
	_, err := r.e.SharePolicy(ctx, model.ShareRequest{RequesterID: "alice", FileID: f.ID, Policy: model.AccessPolicy{}})
	require.ErrorIs(t, err, errs.ErrAuditUnavailable)

	rec, err := r.files.Get(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, rec.Policy.AllowedUsers)
}

func TestEngine_DeleteKeepsRecordWhenBlobFails(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{})
	ctx := context.Background()

	r.blobs.deleteErr = errors.New("unreachable")
	err := r.e.DeleteFile(ctx, "alice", f.ID)
	require.ErrorIs(t, err, errs.ErrStorageUnavailable)

	_, err = r.files.Get(ctx, f.ID)
	require.NoError(t, err)

	r.blobs.deleteErr = nil
	require.NoError(t, r.e.DeleteFile(ctx, "alice", f.ID))
}

func TestEngine_DeleteKeepsRecordWhenAuditFails(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{})
	ctx := context.Background()

	r.sink.down.Store(true)
	err := r.e.DeleteFile(ctx, "alice", f.ID)
	require.ErrorIs(t, err, errs.ErrAuditUnavailable)

	_, err = r.files.Get(ctx, f.ID)
	require.NoError(t, err, "record must survive an unaudited delete")
	require.Empty(t, r.sink.events(model.EventDelete))

	r.sink.down.Store(false)
	require.NoError(t, r.e.DeleteFile(ctx, "alice", f.ID))
	_, err = r.files.Get(ctx, f.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	dels := r.sink.events(model.EventDelete)
	require.Len(t, dels, 1)
	require.True(t, dels[0].Success)
}

func TestEngine_DownloadRacingDeleteIsNotFound(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{AllowedUsers: []string{"bob"}})
	ctx := context.Background()

	// the owner deletes between the record snapshot and the blob fetch
	r.blobs.beforeGet = func() {
		r.blobs.beforeGet = nil
		assert.NoError(t, r.e.DeleteFile(ctx, "alice", f.ID))
	}
	_, err := r.download("bob", f.ID, "secret1", "US")
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.False(t, errs.Retryable(err))
}

func TestEngine_DownloadMissingBlobIsRetryable(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{AllowedUsers: []string{"bob"}})
	ctx := context.Background()

	rec, err := r.files.Get(ctx, f.ID)
	require.NoError(t, err)
	require.NoError(t, r.blobs.Memory.Delete(ctx, rec.StorageKey))

	_, err = r.download("bob", f.ID, "secret1", "US")
	require.ErrorIs(t, err, errs.ErrStorageUnavailable)
}

func TestEngine_Listings(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx := context.Background()
	a1 := r.upload(t, "alice", model.AccessPolicy{AllowedUsers: []string{"bob"}})
	a2 := r.upload(t, "alice", model.AccessPolicy{AllowedUsers: []string{"carol"}})
	open := r.upload(t, "dave", model.AccessPolicy{})

	mine, err := r.e.ListMyFiles(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)

	acc, err := r.e.ListAccessibleFiles(ctx, "bob")
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, s := range acc {
		ids = append(ids, s.ID)
	}
	require.ElementsMatch(t, []uuid.UUID{a1.ID, open.ID}, ids)

	_, err = r.e.GetFile(ctx, "bob", a2.ID)
	require.ErrorIs(t, err, errs.ErrForbidden)
	got, err := r.e.GetFile(ctx, "carol", a2.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.OwnerID)
}

func TestEngine_AuditScoping(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx := context.Background()
	f := r.upload(t, "alice", model.AccessPolicy{AllowedUsers: []string{"bob"}})
	_, _ = r.download("bob", f.ID, "secret1", "US")
	_, _ = r.download("carol", f.ID, "secret1", "US")

	own, err := r.e.ListAuditEvents(ctx, "bob", model.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, model.EventDownload, own[0].Type)

	_, err = r.e.ListAuditEvents(ctx, "bob", model.AuditFilter{ActorID: "alice"})
	require.ErrorIs(t, err, errs.ErrForbidden)

	hist, err := r.e.ListAuditEvents(ctx, "alice", model.AuditFilter{FileID: &f.ID})
	require.NoError(t, err)
	require.Len(t, hist, 3)
	for i := 1; i < len(hist); i++ {
		require.False(t, hist[i].Timestamp.Before(hist[i-1].Timestamp))
	}

	mineOnly, err := r.e.ListAuditEvents(ctx, "carol", model.AuditFilter{FileID: &f.ID})
	require.NoError(t, err)
	require.Len(t, mineOnly, 1)
	require.Equal(t, model.EventAccessDenied, mineOnly[0].Type)

	_, err = r.e.ListAuditEvents(ctx, "carol", model.AuditFilter{FileID: &f.ID, ActorID: "bob"})
	require.ErrorIs(t, err, errs.ErrForbidden)

	_, err = r.e.ListAuditEvents(ctx, "bob", model.AuditFilter{Types: []model.EventType{"BOGUS"}})
	require.ErrorIs(t, err, errs.ErrValidation)

	sum, err := r.e.SecuritySummary(ctx, "carol", model.AuditFilter{ActorID: "alice"})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Total)
	require.Equal(t, 1, sum.AccessDenied)
}

func TestEngine_ConcurrentShareEndsInOneSubmittedPolicy(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{})
	ctx := context.Background()

	const writers = 16
	submitted := make([]model.AccessPolicy, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		submitted[i] = model.AccessPolicy{AllowedUsers: []string{fmt.Sprintf("user%02d", i)}, AllowedRegions: []string{"US"}}
		wg.Add(1)
		go func(p model.AccessPolicy) {
			defer wg.Done()
			_, err := r.e.SharePolicy(ctx, model.ShareRequest{RequesterID: "alice", FileID: f.ID, Policy: p})
			assert.NoError(t, err)
		}(submitted[i])
	}
	wg.Wait()

	rec, err := r.files.Get(ctx, f.ID)
	require.NoError(t, err)
	require.Equal(t, int64(writers+1), rec.PolicyVersion)
	matched := 0
	for _, p := range submitted {
		if rec.Policy.Equal(p) {
			matched++
		}
	}
	require.Equal(t, 1, matched)
	require.Len(t, r.sink.events(model.EventShare), writers)
}

func TestEngine_ConcurrentDeniesAuditedOnce(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	f := r.upload(t, "alice", model.AccessPolicy{AllowedUsers: []string{"bob"}})

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := r.e.Download(context.Background(), model.DownloadRequest{
				RequesterID: fmt.Sprintf("intruder%02d", i), FileID: f.ID, Password: "secret1", Region: "US",
			})
			assert.ErrorIs(t, err, errs.ErrPolicyDenied)
		}(i)
	}
	wg.Wait()

	denied := r.sink.events(model.EventAccessDenied)
	require.Len(t, denied, n)
	seen := map[string]bool{}
	for _, e := range denied {
		require.False(t, seen[e.ActorID], "duplicate denial for %s", e.ActorID)
		seen[e.ActorID] = true
	}
	require.Equal(t, int32(0), r.cipher.opens.Load())
}

func TestStorageKey(t *testing.T) {
	t.Parallel()
	id := uuid.Must(uuid.FromString("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))
	require.Equal(t, "encrypted/alice/6ba7b810-9dad-11d1-80b4-00c04fd430c8", StorageKey("alice", id))
	require.Equal(t, "encrypted/a%2Fb/6ba7b810-9dad-11d1-80b4-00c04fd430c8", StorageKey("a/b", id))
}
