package limiter

import (
	"context"
	"sync"
	"time"
)

type attempts struct {
	fails        []time.Time
	blockedUntil time.Time
}

// Memory is a process-local limiter with the same semantics as PG.
type Memory struct {
	mu    sync.Mutex
	cfg   Config
	now   func() time.Time
	state map[string]*attempts
}

var _ Limiter = (*Memory)(nil)

// NewMemory returns an empty limiter.
func NewMemory(cfg Config) *Memory {
	return &Memory{cfg: cfg.withDefaults(), now: time.Now, state: make(map[string]*attempts)}
}

func key(username string, addrHash []byte) string { return username + "\x00" + string(addrHash) }

// Allow reports whether login is currently allowed and a retry-after duration.
func (m *Memory) Allow(ctx context.Context, username string, addrHash []byte) (bool, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state[key(username, addrHash)]
	if !ok {
		return true, 0, nil
	}
	if now := m.now(); a.blockedUntil.After(now) {
		return false, a.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success forgets all failures for (username, addr).
func (m *Memory) Success(ctx context.Context, username string, addrHash []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.state, key(username, addrHash))
	m.mu.Unlock()
	return nil
}

// Failure records a failed attempt and blocks once MaxFails fall inside Window.
func (m *Memory) Failure(ctx context.Context, username string, addrHash []byte) (bool, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(username, addrHash)
	a, ok := m.state[k]
	if !ok {
		a = &attempts{}
		m.state[k] = a
	}
	now := m.now()
	cutoff := now.Add(-m.cfg.Window)
	kept := a.fails[:0]
	for _, ts := range a.fails {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	a.fails = append(kept, now)
	if len(a.fails) < m.cfg.MaxFails {
		return false, 0, nil
	}
	a.blockedUntil = now.Add(m.cfg.BlockFor)
	a.fails = a.fails[:0]
	return true, m.cfg.BlockFor, nil
}
