// Package blob stores encrypted payloads under opaque keys.
package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/and161185/cloudsentinel/internal/errs"
)

// Store is an object store for ciphertext. Get on a missing key returns
// errs.ErrNotFound; Delete on a missing key succeeds.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout bounds every call to next by d and reports backend failures as
// errs.ErrStorageUnavailable. ErrNotFound and validation errors pass through.
func WithTimeout(next Store, d time.Duration) Store {
	return &timeoutStore{next: next, timeout: d}
}

func (s *timeoutStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.timeout)
}

func (s *timeoutStore) Put(ctx context.Context, key string, data []byte) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return classify("put", key, s.next.Put(ctx, key, data))
}

func (s *timeoutStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	data, err := s.next.Get(ctx, key)
	if err != nil {
		return nil, classify("get", key, err)
	}
	return data, nil
}

func (s *timeoutStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return classify("delete", key, s.next.Delete(ctx, key))
}

func classify(op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrStorageUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %s %q: %v", errs.ErrStorageUnavailable, op, key, err)
	}
}
