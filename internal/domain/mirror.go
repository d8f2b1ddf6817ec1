package domain

import (
	"time"
)

// MirrorRow is the locally persisted last-seen state of one trip ticket.
type MirrorRow struct {
	ID              int64      `json:"id"`
	RemoteID        *int64     `json:"ch_id,omitempty"`
	RemoteUpdatedAt *time.Time `json:"ch_updated_at,omitempty"`
	IsOriginated    bool       `json:"is_originated"`
	OriginID        *string    `json:"origin_trip_id,omitempty"`
	AppointmentTime *time.Time `json:"appointment_time,omitempty"`
	Data            *Record    `json:"ch_data"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Synced reports whether the row is linked to a clearinghouse record.
func (m MirrorRow) Synced() bool {
	return m.RemoteID != nil
}

// Persisted reports whether the row has been stored.
func (m MirrorRow) Persisted() bool {
	return m.ID != 0
}

// WithPayload returns a copy of the row refreshed from a clearinghouse
// payload. Identifier, updated_at high-water mark, natural key and the
// payload itself are taken from the trip when present.
func (m MirrorRow) WithPayload(trip TripRecord) MirrorRow {
	out := m
	out.Data = trip.Data.Clone()
	if id, ok := trip.RemoteID(); ok {
		out.RemoteID = &id
	}
	if updatedAt, err := trip.UpdatedAt(); err == nil && updatedAt != nil {
		if out.RemoteUpdatedAt == nil || updatedAt.After(*out.RemoteUpdatedAt) {
			out.RemoteUpdatedAt = updatedAt
		}
	}
	if originID, ok := trip.OriginID(); ok {
		out.OriginID = &originID
	}
	if appointment, err := trip.AppointmentTime(); err == nil && appointment != nil {
		out.AppointmentTime = appointment
	}
	return out
}

// StoredTrip returns the last-seen payload as a trip record.
func (m MirrorRow) StoredTrip() TripRecord {
	return NewTripRecord(m.Data)
}
