// Package upsert pushes locally originated rows to the clearinghouse,
// choosing between create and update from the local mirror.
package upsert

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rpattn/tripsync/internal/clearinghouse"
	"github.com/rpattn/tripsync/internal/domain"
	"github.com/rpattn/tripsync/internal/repository"
)

// Outcome is the fate of one routed row.
type Outcome int

const (
	// OutcomeSkipped rows lack a usable natural key and were not submitted.
	OutcomeSkipped Outcome = iota
	// OutcomeCreated rows were posted as new clearinghouse records.
	OutcomeCreated
	// OutcomeUpdated rows were put against an existing clearinghouse record.
	OutcomeUpdated
	// OutcomeUnposted rows were accepted but the response had no id.
	OutcomeUnposted
	// OutcomeFailed rows hit a transport error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUnposted:
		return "unposted"
	case OutcomeFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Imported reports whether the row reached the clearinghouse and was
// mirrored locally.
func (o Outcome) Imported() bool {
	return o == OutcomeCreated || o == OutcomeUpdated
}

// Remote is the part of the clearinghouse client the router needs.
type Remote interface {
	Create(ctx context.Context, kind domain.EntityKind, rec *domain.Record) (clearinghouse.RemoteResult, error)
	Update(ctx context.Context, kind domain.EntityKind, remoteID int64, rec *domain.Record) (clearinghouse.RemoteResult, error)
}

// Router routes import rows to create or update calls.
type Router struct {
	mirror repository.MirrorRepository
	remote Remote
	logger *zap.Logger
}

// NewRouter wires a router.
func NewRouter(mirror repository.MirrorRepository, remote Remote, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{mirror: mirror, remote: remote, logger: logger}
}

// Route submits one trip ticket row. Foreseen failures come back as an
// error next to a non-imported outcome; any other error should abort the
// caller's batch.
func (r *Router) Route(ctx context.Context, row *domain.Record) (Outcome, error) {
	trip := domain.NewTripRecord(row)
	originID, ok := trip.OriginID()
	if !ok {
		return OutcomeSkipped, domain.ErrMissingOriginKey
	}
	appointment, err := trip.AppointmentTime()
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("%w: origin_trip_id %s: %v", domain.ErrMissingOriginKey, originID, err)
	}

	mirrorRow, err := r.mirror.FindOrCreateByOriginKey(ctx, originID, appointment)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("failed to find mirror row for origin_trip_id %s: %w", originID, err)
	}

	var (
		result  clearinghouse.RemoteResult
		outcome Outcome
	)
	if !mirrorRow.Synced() {
		result, err = r.remote.Create(ctx, domain.KindTripTicket, row)
		outcome = OutcomeCreated
		r.logger.Info("posted trip ticket", zap.String("origin_trip_id", originID), zap.Error(err))
	} else {
		result, err = r.remote.Update(ctx, domain.KindTripTicket, *mirrorRow.RemoteID, row)
		outcome = OutcomeUpdated
		r.logger.Info("put trip ticket", zap.String("origin_trip_id", originID), zap.Int64("ch_id", *mirrorRow.RemoteID), zap.Error(err))
	}
	if err != nil {
		if errors.Is(err, domain.ErrTransport) {
			return OutcomeFailed, err
		}
		return OutcomeFailed, fmt.Errorf("clearinghouse call for origin_trip_id %s: %w", originID, err)
	}
	if result.ID == nil {
		return OutcomeUnposted, fmt.Errorf("%w: origin_trip_id %s", domain.ErrRemoteResponseMissingID, originID)
	}

	updated := mirrorRow.WithPayload(domain.NewTripRecord(result.Data))
	updated.RemoteID = result.ID
	updated.IsOriginated = true
	if _, err := r.mirror.Save(ctx, updated); err != nil {
		return OutcomeFailed, fmt.Errorf("failed to save mirror row for origin_trip_id %s: %w", originID, err)
	}
	return outcome, nil
}
