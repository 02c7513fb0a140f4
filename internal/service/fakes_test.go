package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/and161185/cloudsentinel/internal/blob"
	"github.com/and161185/cloudsentinel/internal/errs"
	"github.com/and161185/cloudsentinel/internal/limiter"
	"github.com/and161185/cloudsentinel/internal/model"
	"github.com/and161185/cloudsentinel/internal/repository"
	"github.com/and161185/cloudsentinel/internal/repository/memory"
	pkgcrypto "github.com/and161185/cloudsentinel/internal/crypto"
)

type fakeUsers struct {
	mu     sync.Mutex
	byName map[string]*model.User

	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.byName == nil {
		f.byName = map[string]*model.User{}
	}
	if _, exists := f.byName[u.Username]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byName[u.Username] = &cpy
	return nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(context.Context, string, []byte) (bool, time.Duration, error) {
	l.allowCalls++
	return l.allowOK, 0, l.allowErr
}
func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.successCalls++
	return l.successErr
}
func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.failureCalls++
	return l.failBlocked, 0, l.failErr
}

// flakyAudit is an in-memory audit sink that can be switched off.
type flakyAudit struct {
	*memory.AuditStore
	down atomic.Bool
}

var _ repository.AuditRepository = (*flakyAudit)(nil)

func newFlakyAudit() *flakyAudit { return &flakyAudit{AuditStore: memory.NewAuditStore()} }

func (a *flakyAudit) Append(ctx context.Context, e *model.AuditEvent) error {
	if a.down.Load() {
		return errors.New("audit sink down")
	}
	return a.AuditStore.Append(ctx, e)
}

func (a *flakyAudit) events(t model.EventType) []model.AuditEvent {
	all, _ := a.AuditStore.Query(context.Background(), model.AuditFilter{Types: []model.EventType{t}})
	return all
}

// flakyBlobs wraps blob.Memory with injectable failures.
type flakyBlobs struct {
	*blob.Memory
	putErr    error
	getErr    error
	deleteErr error
	beforeGet func()
}

var _ blob.Store = (*flakyBlobs)(nil)

func (b *flakyBlobs) Put(ctx context.Context, key string, data []byte) error {
	if b.putErr != nil {
		return b.putErr
	}
	return b.Memory.Put(ctx, key, data)
}

func (b *flakyBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	if b.beforeGet != nil {
		b.beforeGet()
	}
	if b.getErr != nil {
		return nil, b.getErr
	}
	return b.Memory.Get(ctx, key)
}

func (b *flakyBlobs) Delete(ctx context.Context, key string) error {
	if b.deleteErr != nil {
		return b.deleteErr
	}
	return b.Memory.Delete(ctx, key)
}

// flakyFiles wraps memory.FileStore with an injectable Create failure.
type flakyFiles struct {
	*memory.FileStore
	createErr error
}

func (f *flakyFiles) Create(ctx context.Context, r *model.FileRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.FileStore.Create(ctx, r)
}

// countingCipher records how often a key would be derived.
type countingCipher struct {
	inner pkgcrypto.FileCipher
	seals atomic.Int32
	opens atomic.Int32
}

func (c *countingCipher) Seal(pw, pt []byte) ([]byte, model.CipherParams, error) {
	c.seals.Add(1)
	return c.inner.Seal(pw, pt)
}

func (c *countingCipher) Open(pw, ct []byte, p model.CipherParams) ([]byte, error) {
	c.opens.Add(1)
	return c.inner.Open(pw, ct, p)
}
