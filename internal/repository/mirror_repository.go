package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rpattn/tripsync/internal/domain"
)

// pgxQuerier is the subset of pgxpool.Pool and pgx.Tx the repository uses.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type mirrorRepository struct {
	db pgxQuerier
}

// NewMirrorRepository wires a repository backed by a pgx pool or tx.
func NewMirrorRepository(db pgxQuerier) MirrorRepository {
	return &mirrorRepository{db: db}
}

const mirrorColumns = `id, ch_id, ch_updated_at, is_originated, origin_trip_id, appointment_time, ch_data, created_at, updated_at`

func (r *mirrorRepository) FindByRemoteID(ctx context.Context, remoteID int64) (*domain.MirrorRow, error) {
	if r.db == nil {
		return nil, fmt.Errorf("mirror repository not initialized")
	}

	row, err := scanMirrorRow(r.db.QueryRow(ctx,
		`SELECT `+mirrorColumns+` FROM trip_tickets WHERE ch_id = $1`,
		remoteID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find trip ticket %d: %w", remoteID, err)
	}
	return &row, nil
}

func (r *mirrorRepository) FindOrCreateByOriginKey(ctx context.Context, originID string, appointmentTime *time.Time) (domain.MirrorRow, error) {
	if r.db == nil {
		return domain.MirrorRow{}, fmt.Errorf("mirror repository not initialized")
	}

	appointment := timestamptz(appointmentTime)
	if _, err := r.db.Exec(ctx,
		`INSERT INTO trip_tickets (is_originated, origin_trip_id, appointment_time)
		 VALUES (TRUE, $1, $2)
		 ON CONFLICT (origin_trip_id, appointment_time) WHERE is_originated DO NOTHING`,
		originID, appointment,
	); err != nil {
		return domain.MirrorRow{}, fmt.Errorf("failed to create trip ticket for origin %s: %w", originID, err)
	}

	row, err := scanMirrorRow(r.db.QueryRow(ctx,
		`SELECT `+mirrorColumns+` FROM trip_tickets
		 WHERE is_originated
		   AND origin_trip_id = $1
		   AND appointment_time IS NOT DISTINCT FROM $2`,
		originID, appointment,
	))
	if err != nil {
		return domain.MirrorRow{}, fmt.Errorf("failed to load trip ticket for origin %s: %w", originID, err)
	}
	return row, nil
}

func (r *mirrorRepository) MaxKnownUpdatedAt(ctx context.Context) (*time.Time, error) {
	if r.db == nil {
		return nil, fmt.Errorf("mirror repository not initialized")
	}

	var latest pgtype.Timestamptz
	if err := r.db.QueryRow(ctx, `SELECT MAX(ch_updated_at) FROM trip_tickets`).Scan(&latest); err != nil {
		return nil, fmt.Errorf("failed to read latest updated_at: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	ts := latest.Time.UTC()
	return &ts, nil
}

func (r *mirrorRepository) Save(ctx context.Context, row domain.MirrorRow) (domain.MirrorRow, error) {
	if r.db == nil {
		return domain.MirrorRow{}, fmt.Errorf("mirror repository not initialized")
	}

	data, err := encodeData(row.Data)
	if err != nil {
		return domain.MirrorRow{}, err
	}
	args := []any{
		nullableInt8(row.RemoteID),
		timestamptz(row.RemoteUpdatedAt),
		row.IsOriginated,
		nullableText(row.OriginID),
		timestamptz(row.AppointmentTime),
		data,
	}

	var scanned domain.MirrorRow
	if row.Persisted() {
		scanned, err = scanMirrorRow(r.db.QueryRow(ctx,
			`UPDATE trip_tickets
			 SET ch_id = $1, ch_updated_at = $2, is_originated = $3,
			     origin_trip_id = $4, appointment_time = $5, ch_data = $6,
			     updated_at = NOW()
			 WHERE id = $7
			 RETURNING `+mirrorColumns,
			append(args, row.ID)...,
		))
	} else {
		scanned, err = scanMirrorRow(r.db.QueryRow(ctx,
			`INSERT INTO trip_tickets (ch_id, ch_updated_at, is_originated, origin_trip_id, appointment_time, ch_data)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (ch_id) DO UPDATE
			 SET ch_updated_at = EXCLUDED.ch_updated_at,
			     ch_data = EXCLUDED.ch_data,
			     updated_at = NOW()
			 RETURNING `+mirrorColumns,
			args...,
		))
	}
	if err != nil {
		return domain.MirrorRow{}, fmt.Errorf("failed to save trip ticket: %w", err)
	}
	return scanned, nil
}

func scanMirrorRow(row pgx.Row) (domain.MirrorRow, error) {
	var (
		out             domain.MirrorRow
		remoteID        pgtype.Int8
		remoteUpdatedAt pgtype.Timestamptz
		originID        pgtype.Text
		appointment     pgtype.Timestamptz
		data            []byte
		createdAt       pgtype.Timestamptz
		updatedAt       pgtype.Timestamptz
	)
	if err := row.Scan(
		&out.ID,
		&remoteID,
		&remoteUpdatedAt,
		&out.IsOriginated,
		&originID,
		&appointment,
		&data,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.MirrorRow{}, err
	}

	if remoteID.Valid {
		value := remoteID.Int64
		out.RemoteID = &value
	}
	out.RemoteUpdatedAt = timeFrom(remoteUpdatedAt)
	if originID.Valid {
		value := originID.String
		out.OriginID = &value
	}
	out.AppointmentTime = timeFrom(appointment)
	if createdAt.Valid {
		out.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		out.UpdatedAt = updatedAt.Time
	}

	decoded, err := decodeData(data)
	if err != nil {
		return domain.MirrorRow{}, err
	}
	out.Data = decoded
	return out, nil
}

func encodeData(data *domain.Record) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	encoded, err := data.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode ch_data: %w", err)
	}
	return encoded, nil
}

func decodeData(raw []byte) (*domain.Record, error) {
	if len(raw) == 0 {
		return domain.NewRecord(), nil
	}
	rec, err := domain.ParseRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ch_data: %w", err)
	}
	return rec, nil
}

func timestamptz(ts *time.Time) pgtype.Timestamptz {
	if ts == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: ts.UTC(), Valid: true}
}

func timeFrom(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	value := ts.Time.UTC()
	return &value
}

func nullableInt8(v *int64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *v, Valid: true}
}

func nullableText(v *string) pgtype.Text {
	if v == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *v, Valid: true}
}
