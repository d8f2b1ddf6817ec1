package domain

import (
	"fmt"
	"strings"
	"time"
)

// EntityKind names one of the record types exchanged with the clearinghouse.
type EntityKind string

const (
	KindTripTicket  EntityKind = "trip_ticket"
	KindTripClaim   EntityKind = "trip_claim"
	KindTripComment EntityKind = "trip_ticket_comment"
	KindTripResult  EntityKind = "trip_result"
)

// EntityKinds lists every kind in export order.
var EntityKinds = []EntityKind{KindTripTicket, KindTripClaim, KindTripComment, KindTripResult}

// Plural is the collection name used for endpoints and export file names.
func (k EntityKind) Plural() string {
	return string(k) + "s"
}

// ParseEntityKind accepts either the singular or plural form.
func ParseEntityKind(raw string) (EntityKind, error) {
	value := strings.TrimSpace(strings.ToLower(raw))
	for _, kind := range EntityKinds {
		if value == string(kind) || value == kind.Plural() {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: unknown entity kind %q", ErrConfiguration, raw)
}

// Payload field names shared by the sync stages.
const (
	FieldID              = "id"
	FieldOriginTripID    = "origin_trip_id"
	FieldAppointmentTime = "appointment_time"
	FieldUpdatedAt       = "updated_at"
	FieldClaims          = "trip_claims"
	FieldComments        = "trip_ticket_comments"
	FieldResult          = "trip_result"
	FieldNewRecord       = "new_record"
)

// TripRecord is a trip ticket payload as exchanged with the clearinghouse,
// including nested claims, comments and result.
type TripRecord struct {
	Data *Record
}

// NewTripRecord wraps a decoded payload.
func NewTripRecord(data *Record) TripRecord {
	if data == nil {
		data = NewRecord()
	}
	return TripRecord{Data: data}
}

// RemoteID returns the clearinghouse identifier when present.
func (t TripRecord) RemoteID() (int64, bool) {
	v, ok := t.Data.Get(FieldID)
	if !ok {
		return 0, false
	}
	return v.Int64()
}

// OriginID returns the local system's trip identifier as text.
func (t TripRecord) OriginID() (string, bool) {
	v, ok := t.Data.Get(FieldOriginTripID)
	if !ok || v.IsBlank() {
		return "", false
	}
	return strings.TrimSpace(v.Text()), true
}

// AppointmentTime parses the appointment time when present.
func (t TripRecord) AppointmentTime() (*time.Time, error) {
	return timeField(t.Data, FieldAppointmentTime)
}

// UpdatedAt parses the remote last-modified timestamp when present.
func (t TripRecord) UpdatedAt() (*time.Time, error) {
	return timeField(t.Data, FieldUpdatedAt)
}

// Claims returns the nested claim objects.
func (t TripRecord) Claims() []*Record { return objects(t.Data, FieldClaims) }

// Comments returns the nested comment objects.
func (t TripRecord) Comments() []*Record { return objects(t.Data, FieldComments) }

// Result returns the nested result, or nil when absent or empty.
func (t TripRecord) Result() *Record {
	v, ok := t.Data.Get(FieldResult)
	if !ok || v.Kind() != KindObject || v.Record().Len() == 0 {
		return nil
	}
	return v.Record()
}

// Clone deep-copies the payload.
func (t TripRecord) Clone() TripRecord {
	return TripRecord{Data: t.Data.Clone()}
}

func objects(r *Record, field string) []*Record {
	v, ok := r.Get(field)
	if !ok || v.Kind() != KindSequence {
		return nil
	}
	out := make([]*Record, 0, len(v.Items()))
	for _, item := range v.Items() {
		if item.Kind() == KindObject {
			out = append(out, item.Record())
		}
	}
	return out
}

func timeField(r *Record, field string) (*time.Time, error) {
	v, ok := r.Get(field)
	if !ok || v.IsBlank() {
		return nil, nil
	}
	ts, err := ParseTimestamp(v.Text())
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", field, err)
	}
	return &ts, nil
}

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05.000000000",
	"2006/01/02",
	"01/02/2006",
	"01/02/2006 15:04",
}

// ParseTimestamp accepts the timestamp layouts used by the clearinghouse
// and by operator spreadsheets. Zone-less values are read as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format %q", raw)
}
