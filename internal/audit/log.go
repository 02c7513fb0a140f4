// Package audit records security-relevant events in an append-only log.
package audit

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/cloudsentinel/internal/errs"
	"github.com/and161185/cloudsentinel/internal/model"
	"github.com/and161185/cloudsentinel/internal/repository"
)

// Log stamps events and writes them to a sink. Timestamps are strictly
// increasing; sink writes run concurrently and readers order by (Timestamp, Seq).
type Log struct {
	sink   repository.AuditRepository
	clock  *MonotonicClock
	logger *zap.Logger
}

// New builds a Log over sink. A nil clock uses SystemClock and a nil logger
// discards the mirror output.
func New(sink repository.AuditRepository, clock Clock, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{sink: sink, clock: NewMonotonicClock(clock), logger: logger.Named("audit")}
}

// Append validates e, assigns its ID and timestamp and persists it.
// The returned event carries the stored values.
func (l *Log) Append(ctx context.Context, e model.AuditEvent) (model.AuditEvent, error) {
	if !e.Type.Valid() {
		return model.AuditEvent{}, errs.Validation("event_type", "unknown event type %q", e.Type)
	}
	if e.ActorID == "" {
		return model.AuditEvent{}, errs.Validation("actor", "must not be empty")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.AuditEvent{}, err
	}
	e.ID = id
	e.Seq = 0

	e.Timestamp = l.clock.Now()
	err = l.sink.Append(ctx, &e)

	fields := []zap.Field{
		zap.String("event_type", string(e.Type)),
		zap.String("actor", e.ActorID),
		zap.Bool("success", e.Success),
		zap.Time("ts", e.Timestamp),
	}
	if e.FileID != nil {
		fields = append(fields, zap.String("file_id", e.FileID.String()))
	}
	if e.SourceRegion != "" {
		fields = append(fields, zap.String("region", e.SourceRegion))
	}
	if e.Detail != "" {
		fields = append(fields, zap.String("detail", e.Detail))
	}

	if err != nil {
		l.logger.Error("audit append failed", append(fields, zap.Error(err))...)
		return model.AuditEvent{}, fmt.Errorf("%w: %v", errs.ErrAuditUnavailable, err)
	}
	l.logger.Info("audit", append(fields, zap.Int64("seq", e.Seq))...)
	return e, nil
}

// Query returns matching events oldest first.
func (l *Log) Query(ctx context.Context, f model.AuditFilter) ([]model.AuditEvent, error) {
	out, err := l.sink.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrAuditUnavailable, err)
	}
	return out, nil
}

// Summary aggregates the events selected by f.
func (l *Log) Summary(ctx context.Context, f model.AuditFilter) (model.AuditSummary, error) {
	f.Limit = 0
	events, err := l.Query(ctx, f)
	if err != nil {
		return model.AuditSummary{}, err
	}
	return Summarize(events), nil
}

// Summarize counts events by outcome and type.
func Summarize(events []model.AuditEvent) model.AuditSummary {
	s := model.AuditSummary{ByType: make(map[model.EventType]int)}
	for _, e := range events {
		s.Total++
		if e.Success {
			s.Successful++
		} else {
			s.Failed++
		}
		s.ByType[e.Type]++
		switch e.Type {
		case model.EventAccessDenied:
			s.AccessDenied++
		case model.EventUpload:
			s.Uploads++
		case model.EventDownload:
			s.Downloads++
		case model.EventLogin:
			s.LoginAttempts++
		case model.EventLoginFailed:
			s.LoginAttempts++
			s.FailedLogins++
		}
	}
	return s
}
