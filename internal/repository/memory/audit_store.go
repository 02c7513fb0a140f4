package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/and161185/cloudsentinel/internal/model"
	"github.com/and161185/cloudsentinel/internal/repository"
)

// AuditStore is an append-only in-memory event sink.
type AuditStore struct {
	mu     sync.RWMutex
	events []model.AuditEvent
	seq    int64
}

var _ repository.AuditRepository = (*AuditStore)(nil)

// NewAuditStore returns an empty sink.
func NewAuditStore() *AuditStore { return &AuditStore{} }

// Append stores a copy of e and assigns its sequence number.
func (s *AuditStore) Append(ctx context.Context, e *model.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	e.Seq = s.seq
	s.events = append(s.events, cloneEvent(*e))
	return nil
}

// Query filters, orders by (Timestamp, Seq) and applies the limit.
func (s *AuditStore) Query(ctx context.Context, f model.AuditFilter) ([]model.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.AuditEvent, 0)
	for _, e := range s.events {
		if f.Match(e) {
			out = append(out, cloneEvent(e))
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b model.AuditEvent) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// Len reports how many events were appended.
func (s *AuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func cloneEvent(e model.AuditEvent) model.AuditEvent {
	if e.FileID != nil {
		id := *e.FileID
		e.FileID = &id
	}
	return e
}
