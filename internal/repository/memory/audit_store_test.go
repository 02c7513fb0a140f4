package memory

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/cloudsentinel/internal/model"
)

func TestAuditStore_AppendAssignsSeqAndQueryOrders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewAuditStore()
	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	fid := uuid.Must(uuid.NewV4())

	events := []model.AuditEvent{
		{Type: model.EventUpload, ActorID: "alice", FileID: &fid, Timestamp: base.Add(2 * time.Second), Success: true},
		{Type: model.EventDownload, ActorID: "bob", FileID: &fid, Timestamp: base.Add(1 * time.Second), Success: true},
		{Type: model.EventAccessDenied, ActorID: "carol", FileID: &fid, Timestamp: base.Add(1 * time.Second)},
		{Type: model.EventLogin, ActorID: "alice", Timestamp: base, Success: true},
	}
	for i := range events {
		require.NoError(t, s.Append(ctx, &events[i]))
		require.Equal(t, int64(i+1), events[i].Seq)
	}
	require.Equal(t, 4, s.Len())

	all, err := s.Query(ctx, model.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, model.EventLogin, all[0].Type)
	require.Equal(t, model.EventDownload, all[1].Type, "equal timestamps fall back to seq")
	require.Equal(t, model.EventAccessDenied, all[2].Type)
	require.Equal(t, model.EventUpload, all[3].Type)

	byFile, err := s.Query(ctx, model.AuditFilter{FileID: &fid})
	require.NoError(t, err)
	require.Len(t, byFile, 3)

	byActor, err := s.Query(ctx, model.AuditFilter{ActorID: "alice"})
	require.NoError(t, err)
	require.Len(t, byActor, 2)

	denied, err := s.Query(ctx, model.AuditFilter{Types: []model.EventType{model.EventAccessDenied}})
	require.NoError(t, err)
	require.Len(t, denied, 1)
	require.Equal(t, "carol", denied[0].ActorID)

	window, err := s.Query(ctx, model.AuditFilter{Since: base.Add(time.Second), Until: base.Add(time.Second)})
	require.NoError(t, err)
	require.Len(t, window, 2)

	last, err := s.Query(ctx, model.AuditFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, last, 2)
	require.Equal(t, model.EventAccessDenied, last[0].Type)
	require.Equal(t, model.EventUpload, last[1].Type)
}

func TestAuditStore_StoredEventsAreImmutable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewAuditStore()
	fid := uuid.Must(uuid.NewV4())
	want := fid
	e := model.AuditEvent{Type: model.EventShare, ActorID: "alice", FileID: &fid, Timestamp: time.Now(), Detail: "orig"}
	require.NoError(t, s.Append(ctx, &e))

	e.Detail = "tampered"
	*e.FileID = uuid.Nil

	got, err := s.Query(ctx, model.AuditFilter{})
	require.NoError(t, err)
	require.Equal(t, "orig", got[0].Detail)
	require.Equal(t, want, *got[0].FileID)

	got[0].Detail = "tampered again"
	again, _ := s.Query(ctx, model.AuditFilter{})
	require.Equal(t, "orig", again[0].Detail)
}
