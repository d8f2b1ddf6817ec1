package upsert

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/tripsync/internal/clearinghouse"
	"github.com/rpattn/tripsync/internal/domain"
	"github.com/rpattn/tripsync/internal/repository"
)

type remoteCall struct {
	method   string
	remoteID int64
	body     *domain.Record
}

type stubRemote struct {
	calls    []remoteCall
	nextID   int64
	omitID   bool
	failWith error
}

func (s *stubRemote) respond(body *domain.Record) (clearinghouse.RemoteResult, error) {
	if s.failWith != nil {
		return clearinghouse.RemoteResult{}, s.failWith
	}
	data := body.Clone()
	if s.omitID {
		return clearinghouse.RemoteResult{Data: data}, nil
	}
	id := s.nextID
	data.Set(domain.FieldID, domain.Int(id))
	return clearinghouse.RemoteResult{ID: &id, Data: data}, nil
}

func (s *stubRemote) Create(_ context.Context, _ domain.EntityKind, rec *domain.Record) (clearinghouse.RemoteResult, error) {
	s.calls = append(s.calls, remoteCall{method: "POST", body: rec})
	return s.respond(rec)
}

func (s *stubRemote) Update(_ context.Context, _ domain.EntityKind, remoteID int64, rec *domain.Record) (clearinghouse.RemoteResult, error) {
	s.calls = append(s.calls, remoteCall{method: "PUT", remoteID: remoteID, body: rec})
	return s.respond(rec)
}

func row(t *testing.T, raw string) *domain.Record {
	t.Helper()
	rec, err := domain.ParseRecord([]byte(raw))
	require.NoError(t, err)
	return rec
}

func TestRouteCreatesThenUpdatesSameNaturalKey(t *testing.T) {
	mirror := repository.NewMemoryMirrorRepository()
	remote := &stubRemote{nextID: 900}
	router := NewRouter(mirror, remote, nil)
	ctx := context.Background()

	outcome, err := router.Route(ctx, row(t, `{"origin_trip_id": "123", "appointment_time": "2024-05-01 09:00:00", "status": "new"}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	outcome, err = router.Route(ctx, row(t, `{"origin_trip_id": "123", "appointment_time": "2024-05-01T09:00:00Z", "status": "changed"}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	require.Len(t, remote.calls, 2)
	assert.Equal(t, "POST", remote.calls[0].method)
	assert.Equal(t, "PUT", remote.calls[1].method)
	assert.Equal(t, int64(900), remote.calls[1].remoteID)

	rows := mirror.Rows()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsOriginated)
	require.NotNil(t, rows[0].RemoteID)
	assert.Equal(t, int64(900), *rows[0].RemoteID)
	status, _ := rows[0].Data.Get("status")
	assert.Equal(t, "changed", status.Text())
}

func TestRouteDistinctAppointmentsAreDistinctRows(t *testing.T) {
	mirror := repository.NewMemoryMirrorRepository()
	remote := &stubRemote{nextID: 1}
	router := NewRouter(mirror, remote, nil)

	for _, appointment := range []string{"2024-05-01 09:00:00", "2024-05-02 09:00:00"} {
		outcome, err := router.Route(context.Background(), row(t, `{"origin_trip_id": "123", "appointment_time": "`+appointment+`"}`))
		require.NoError(t, err)
		assert.Equal(t, OutcomeCreated, outcome)
	}
	assert.Len(t, mirror.Rows(), 2)
}

func TestRouteMissingOriginKeyIsSkipped(t *testing.T) {
	remote := &stubRemote{}
	router := NewRouter(repository.NewMemoryMirrorRepository(), remote, nil)

	outcome, err := router.Route(context.Background(), row(t, `{"origin_trip_id": "  ", "status": "x"}`))
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.ErrorIs(t, err, domain.ErrMissingOriginKey)
	assert.Empty(t, remote.calls)

	outcome, err = router.Route(context.Background(), row(t, `{"origin_trip_id": "1", "appointment_time": "next tuesday"}`))
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.ErrorIs(t, err, domain.ErrMissingOriginKey)
	assert.Empty(t, remote.calls)
}

func TestRouteResponseWithoutIDIsUnposted(t *testing.T) {
	mirror := repository.NewMemoryMirrorRepository()
	router := NewRouter(mirror, &stubRemote{omitID: true}, nil)

	outcome, err := router.Route(context.Background(), row(t, `{"origin_trip_id": "9"}`))
	assert.Equal(t, OutcomeUnposted, outcome)
	assert.ErrorIs(t, err, domain.ErrRemoteResponseMissingID)
	assert.True(t, domain.IsForeseen(err))

	rows := mirror.Rows()
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Synced(), "unposted rows stay unlinked")
}

func TestRouteTransportErrorIsFailed(t *testing.T) {
	remote := &stubRemote{failWith: &domain.TransportError{Op: "POST trip_tickets", Err: errors.New("connection refused")}}
	router := NewRouter(repository.NewMemoryMirrorRepository(), remote, nil)

	outcome, err := router.Route(context.Background(), row(t, `{"origin_trip_id": "9"}`))
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.False(t, outcome.Imported())
}
