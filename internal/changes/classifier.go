// Package changes labels incoming clearinghouse records as newly seen or
// already known relative to the locally mirrored copy.
package changes

import (
	"fmt"

	"github.com/rpattn/tripsync/internal/domain"
)

// ClassifiedRecord is an incoming trip with new_record labels applied to
// the trip and each of its nested claims, comments and result.
type ClassifiedRecord struct {
	Trip     domain.TripRecord
	RemoteID int64
	IsNew    bool
	Previous *domain.MirrorRow
}

// Classify compares incoming against previous. previous is nil when no
// mirror row exists for the remote id. The input is not modified.
func Classify(incoming domain.TripRecord, previous *domain.MirrorRow) (ClassifiedRecord, error) {
	remoteID, ok := incoming.RemoteID()
	if !ok {
		if raw, present := incoming.Data.Get(domain.FieldID); present && !raw.IsBlank() {
			return ClassifiedRecord{}, fmt.Errorf("%w: identifier %s is not an integer", domain.ErrMissingIdentifier, raw.Text())
		}
		return ClassifiedRecord{}, domain.ErrMissingIdentifier
	}

	trip := incoming.Clone()
	EnsureAssociations(trip)

	var (
		knownClaims    map[int64]struct{}
		knownComments  map[int64]struct{}
		previousResult bool
	)
	isNew := previous == nil || previous.Data == nil
	if !isNew {
		stored := previous.StoredTrip()
		knownClaims = identifierSet(stored.Claims())
		knownComments = identifierSet(stored.Comments())
		previousResult = stored.Result() != nil
	}

	trip.Data.Set(domain.FieldNewRecord, domain.Bool(isNew))
	for _, claim := range trip.Claims() {
		claim.Set(domain.FieldNewRecord, domain.Bool(isNew || !known(claim, knownClaims)))
	}
	for _, comment := range trip.Comments() {
		comment.Set(domain.FieldNewRecord, domain.Bool(isNew || !known(comment, knownComments)))
	}
	if result := trip.Result(); result != nil {
		result.Set(domain.FieldNewRecord, domain.Bool(isNew || !previousResult))
	}

	return ClassifiedRecord{
		Trip:     trip,
		RemoteID: remoteID,
		IsNew:    isNew,
		Previous: previous,
	}, nil
}

// EnsureAssociations adds empty claim, comment and result fields to trip
// when the clearinghouse omitted them.
func EnsureAssociations(trip domain.TripRecord) {
	if v, ok := trip.Data.Get(domain.FieldClaims); !ok || v.IsNull() {
		trip.Data.Set(domain.FieldClaims, domain.Sequence())
	}
	if v, ok := trip.Data.Get(domain.FieldComments); !ok || v.IsNull() {
		trip.Data.Set(domain.FieldComments, domain.Sequence())
	}
	if v, ok := trip.Data.Get(domain.FieldResult); !ok || v.IsNull() {
		trip.Data.Set(domain.FieldResult, domain.Object(domain.NewRecord()))
	}
}

func identifierSet(items []*domain.Record) map[int64]struct{} {
	set := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if id, ok := itemID(item); ok {
			set[id] = struct{}{}
		}
	}
	return set
}

func known(item *domain.Record, set map[int64]struct{}) bool {
	id, ok := itemID(item)
	if !ok {
		return false
	}
	_, found := set[id]
	return found
}

func itemID(item *domain.Record) (int64, bool) {
	v, ok := item.Get(domain.FieldID)
	if !ok {
		return 0, false
	}
	return v.Int64()
}
