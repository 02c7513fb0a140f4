package repository

import (
	"context"

	"github.com/and161185/cloudsentinel/internal/model"
)

// AuditRepository is an append-only event sink. No update or delete exists.
type AuditRepository interface {
	// Append persists e and sets e.Seq.
	Append(ctx context.Context, e *model.AuditEvent) error

	// Query returns matching events ordered by (Timestamp, Seq) ascending.
	Query(ctx context.Context, f model.AuditFilter) ([]model.AuditEvent, error)
}
