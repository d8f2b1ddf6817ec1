package transform

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpattn/tripsync/internal/domain"
)

const bigTicketJSON = `{
  "id": 80,
  "status": "Active",
  "rescinded": false,
  "origin_provider_id": 2,
  "origin_customer_id": "4717",
  "origin_trip_id": 1880,
  "customer_first_name": "Walter",
  "customer_last_name": "Vasquez",
  "customer_middle_name": "James",
  "customer_gender": "M",
  "customer_identifiers": {"a": "b", "c": "d"},
  "customer_boarding_time": 0,
  "customer_service_level": "Wheelchair",
  "customer_mobility_factors": ["a_customer_mobility_factors", "b_customer_mobility_factors"],
  "customer_service_animals": null,
  "customer_eligibility_factors": ["a_customer_eligibility_factors", "b_customer_eligibility_factors"],
  "appointment_time": "2013-04-26T00:00:00-07:00",
  "time_window_before": 10,
  "time_window_after": 15,
  "trip_purpose_description": "doctor",
  "trip_funders": ["ABC", "XYZ"],
  "scheduling_priority": "dropoff",
  "updated_at": "2014-03-07 06:29:22.114344",
  "originator": {
    "id": 2,
    "name": "Yahoo",
    "address": {"id": 2, "address_1": "123 Main St", "city": "Portland", "state": "OR", "zip": "97210"}
  },
  "customer_address": {
    "id": 147,
    "address_type": "Residence",
    "address_1": "123 Main St",
    "city": "Portland",
    "state": "OR",
    "zip": "97210",
    "phone_number": "(555) 555-5555",
    "common_name": "Maple Court",
    "jurisdiction": "county"
  },
  "pick_up_location": null,
  "estimated_distance": 10
}`

const tripResultJSON = `{
  "id": 1,
  "trip_ticket_id": 11,
  "origin_trip_id": 1880,
  "actual_pick_up_time": "2000-01-01T02:45:00Z",
  "driver_id": "Fred",
  "outcome": "Completed",
  "base_fare": "123.0",
  "billable_mileage": 123.0
}`

func mustRecord(t *testing.T, raw string) *domain.Record {
	t.Helper()
	rec, err := domain.ParseRecord([]byte(raw))
	require.NoError(t, err)
	return rec
}

func sampleProfile() domain.Profile {
	return domain.Profile{
		Mappings: map[domain.EntityKind]domain.MappingTable{
			domain.KindTripTicket: {
				{Target: "clearinghouse_trip_id", Source: "id"},
				{Target: "trip_id", Source: "origin_trip_id"},
				{Target: "provider", Source: "originator.name"},
				{Target: "customer_id", Source: "origin_customer_id"},
				{Target: "customer_home_city", Source: "customer_address.city"},
				{Target: "customer_home_telephone", Source: "customer_address.phone_number"},
				{Target: "customer_sex", Source: "customer_gender"},
				{Target: "customer_middle_initial", Source: "customer_middle_name", Transform: domain.TransformFirstCharacter},
				{Target: "customer_external_id", Source: "customer_identifiers", Transform: domain.TransformPairs},
				{Target: "customer_eligibility", Source: "customer_eligibility_factors", Transform: domain.TransformJoin},
				{Target: "customer_assistance_needs", Source: "customer_mobility_factors", Transform: domain.TransformJoin},
				{Target: "trip_funding_source", Source: "trip_funders", Transform: domain.TransformJoin},
				{Target: "early_window", Source: "time_window_before"},
			},
			domain.KindTripResult: {
				{Target: "clearinghouse_trip_id", Source: "trip_ticket_id"},
				{Target: "trip_id", Source: "origin_trip_id"},
				{Target: "actual_pickup_time", Source: "actual_pick_up_time"},
				{Target: "driver_name", Source: "driver_id"},
			},
		},
		Normalizations: map[domain.EntityKind]domain.NormalizationRuleSet{
			domain.KindTripTicket: {
				{
					Field:       "customer_sex",
					OutputField: "gender",
					Rules: []domain.NormalizationRule{
						{Replacement: "Male", Match: domain.MatchSpec{Values: []string{"m", "male", "man"}}},
					},
				},
				{
					Field: "status",
					Rules: []domain.NormalizationRule{
						{Replacement: "foostatus", Match: domain.MatchSpec{Values: []string{"active"}}},
					},
				},
			},
			domain.KindTripResult: {
				{
					Field:       "driver_name",
					OutputField: "driver_last_name",
					Rules: []domain.NormalizationRule{
						{Replacement: "Smith", Match: domain.MatchSpec{Pattern: regexp.MustCompile(`(?i)sally`)}},
						{Replacement: "Jones", Match: domain.MatchSpec{Pattern: regexp.MustCompile(`(?i)fred`)}},
						{Replacement: "Adams", Match: domain.MatchSpec{Pattern: regexp.MustCompile(`(?i)bob`)}},
					},
				},
			},
		},
	}
}

func text(t *testing.T, rec *domain.Record, key string) string {
	t.Helper()
	v, ok := rec.Get(key)
	require.Truef(t, ok, "expected key %s in %v", key, rec.Keys())
	return v.Text()
}
