package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/cloudsentinel/internal/model"
	"github.com/and161185/cloudsentinel/internal/repository"
)

// AuditRepo implements AuditRepository using PostgreSQL. The table is
// protected by a trigger that rejects UPDATE and DELETE.
type AuditRepo struct{ db *DB }

var _ repository.AuditRepository = (*AuditRepo)(nil)

// NewAuditRepo constructs an audit repository.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

// Append inserts e and stores the assigned sequence in e.Seq.
func (r *AuditRepo) Append(ctx context.Context, e *model.AuditEvent) error {
	const q = `
INSERT INTO audit_events (id, event_type, actor_id, file_id, ts, source_region, success, detail)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING seq`
	var fileID *uuid.UUID
	if e.FileID != nil {
		id := *e.FileID
		fileID = &id
	}
	return r.db.Pool.QueryRow(ctx, q,
		e.ID, string(e.Type), e.ActorID, fileID, e.Timestamp, e.SourceRegion, e.Success, e.Detail,
	).Scan(&e.Seq)
}

// Query selects matching events ordered by (ts, seq). With a limit it keeps
// the most recent rows, still returned oldest first.
func (r *AuditRepo) Query(ctx context.Context, f model.AuditFilter) ([]model.AuditEvent, error) {
	q, args := buildAuditQuery(f)
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var (
			e      model.AuditEvent
			typ    string
			fileID *uuid.UUID
		)
		if err := rows.Scan(&e.Seq, &e.ID, &typ, &e.ActorID, &fileID, &e.Timestamp, &e.SourceRegion, &e.Success, &e.Detail); err != nil {
			return nil, err
		}
		e.Type = model.EventType(typ)
		e.FileID = fileID
		out = append(out, e)
	}
	return out, rows.Err()
}

func buildAuditQuery(f model.AuditFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.ActorID != "" {
		add("actor_id=$%d", f.ActorID)
	}
	if f.FileID != nil {
		add("file_id=$%d", *f.FileID)
	}
	if len(f.Types) > 0 {
		types := make([]string, len(f.Types))
		for i, t := range f.Types {
			types[i] = string(t)
		}
		add("event_type=ANY($%d)", types)
	}
	if !f.Since.IsZero() {
		add("ts>=$%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("ts<=$%d", f.Until)
	}

	var b strings.Builder
	b.WriteString(`SELECT seq, id, event_type, actor_id, file_id, ts, source_region, success, detail FROM audit_events`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		inner := b.String() + fmt.Sprintf(" ORDER BY ts DESC, seq DESC LIMIT $%d", len(args))
		return `SELECT * FROM (` + inner + `) recent ORDER BY ts ASC, seq ASC`, args
	}
	b.WriteString(" ORDER BY ts ASC, seq ASC")
	return b.String(), args
}
