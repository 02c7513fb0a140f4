// Package limiter throttles failed logins per (username, client address).
package limiter

import (
	"context"
	"crypto/sha256"
	"net"
	"strings"
	"time"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, username string, addrHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, username string, addrHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, username string, addrHash []byte) (bool, time.Duration, error)
}

// Config holds the sliding window and lockout parameters.
type Config struct {
	Window   time.Duration // failures older than this are forgotten
	MaxFails int           // failures within Window that trigger a block
	BlockFor time.Duration
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 15 * time.Minute
	}
	if c.MaxFails <= 0 {
		c.MaxFails = 5
	}
	if c.BlockFor <= 0 {
		c.BlockFor = 15 * time.Minute
	}
	return c
}

// HashAddr returns a stable hash of the client host so raw addresses are never
// stored. The port is dropped because it changes between connections.
func HashAddr(addr string) []byte {
	host := strings.TrimSpace(addr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	sum := sha256.Sum256([]byte(host))
	return sum[:]
}
