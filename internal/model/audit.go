package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// EventType enumerates audited actions.
type EventType string

const (
	EventUpload       EventType = "UPLOAD"
	EventDownload     EventType = "DOWNLOAD"
	EventAccessDenied EventType = "ACCESS_DENIED"
	EventShare        EventType = "SHARE"
	EventDelete       EventType = "DELETE"
	EventLogin        EventType = "LOGIN"
	EventLoginFailed  EventType = "LOGIN_FAILED"
)

// EventTypes lists every known event type.
var EventTypes = []EventType{
	EventUpload, EventDownload, EventAccessDenied, EventShare, EventDelete, EventLogin, EventLoginFailed,
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, k := range EventTypes {
		if k == t {
			return true
		}
	}
	return false
}

// AuditEvent is one immutable audit entry.
type AuditEvent struct {
	ID           uuid.UUID  `json:"id"`
	Seq          int64      `json:"seq"` // assigned by the sink, breaks timestamp ties
	Type         EventType  `json:"event_type"`
	ActorID      string     `json:"actor"`
	FileID       *uuid.UUID `json:"file_id,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	SourceRegion string     `json:"source_region,omitempty"`
	Success      bool       `json:"success"`
	Detail       string     `json:"detail,omitempty"`
}

// AuditFilter selects events. Zero fields do not filter.
type AuditFilter struct {
	ActorID string
	FileID  *uuid.UUID
	Types   []EventType
	Since   time.Time
	Until   time.Time
	Limit   int // keep the most recent Limit events, still returned oldest first
}

// Match reports whether e passes the filter (Limit is not considered).
func (f AuditFilter) Match(e AuditEvent) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.FileID != nil && (e.FileID == nil || *e.FileID != *f.FileID) {
		return false
	}
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if t == e.Type {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// AuditSummary aggregates a set of events.
type AuditSummary struct {
	Total         int               `json:"total_events"`
	Successful    int               `json:"successful_events"`
	Failed        int               `json:"failed_events"`
	AccessDenied  int               `json:"access_denied"`
	Uploads       int               `json:"uploads"`
	Downloads     int               `json:"downloads"`
	LoginAttempts int               `json:"login_attempts"`
	FailedLogins  int               `json:"failed_logins"`
	ByType        map[EventType]int `json:"event_types"`
}
