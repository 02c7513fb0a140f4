package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/and161185/cloudsentinel/internal/errs"
	"github.com/and161185/cloudsentinel/internal/model"
	"github.com/and161185/cloudsentinel/internal/repository"
)

// UserStore keeps accounts keyed by username.
type UserStore struct {
	mu     sync.RWMutex
	byName map[string]model.User
}

var _ repository.UserRepository = (*UserStore)(nil)

// NewUserStore returns an empty store.
func NewUserStore() *UserStore { return &UserStore{byName: make(map[string]model.User)} }

// Create inserts a copy of u.
func (s *UserStore) Create(ctx context.Context, u *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[u.Username]; exists {
		return errs.ErrAlreadyExists
	}
	s.byName[u.Username] = cloneUser(*u)
	return nil
}

// GetByUsername returns a copy of the stored user.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	u, ok := s.byName[username]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := cloneUser(u)
	return &c, nil
}

func cloneUser(u model.User) model.User {
	u.PwdHash = slices.Clone(u.PwdHash)
	u.SaltAuth = slices.Clone(u.SaltAuth)
	return u
}
