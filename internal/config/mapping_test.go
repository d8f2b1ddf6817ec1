package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/tripsync/internal/domain"
	"github.com/rpattn/tripsync/internal/transform"
)

const sampleMapping = `
mappings:
  trip_tickets:
    - target: customer_sex
      source: customer_gender
    - target: customer_middle_initial
      source: customer_middle_name
      transform: first_character
    - target: trip_funding_source
      source: trip_funders
      transform: array_to_string
  trip_result:
    - target: driver_name
      source: driver_id
normalizations:
  trip_ticket:
    - field: customer_sex
      output_field: gender
      rules:
        - replace_with: Male
          values: [m, male, man]
  trip_results:
    - field: driver_name
      output_field: driver_last_name
      rules:
        - replace_with: Smith
          pattern: "(?i)sally"
        - replace_with: Jones
          pattern: "(?i)fred"
`

func TestParseProfileCompilesMappingsAndRules(t *testing.T) {
	profile, err := ParseProfile([]byte(sampleMapping))
	require.NoError(t, err)

	tickets := profile.MappingFor(domain.KindTripTicket)
	require.Len(t, tickets, 3)
	assert.Equal(t, domain.TransformFirstCharacter, tickets[1].Transform)
	assert.Equal(t, domain.TransformJoin, tickets[2].Transform)

	results := profile.NormalizationsFor(domain.KindTripResult)
	require.Len(t, results, 1)
	require.Len(t, results[0].Rules, 2)
	assert.True(t, results[0].Rules[1].Match.Pattern.MatchString("FRED"))
}

func TestParsedProfileDrivesPipeline(t *testing.T) {
	profile, err := ParseProfile([]byte(sampleMapping))
	require.NoError(t, err)

	rec, err := domain.ParseRecord([]byte(`{"customer_gender": "M", "customer_middle_name": "James", "trip_funders": ["A", "B"]}`))
	require.NoError(t, err)

	out := transform.NewPipeline(profile).Prepare(domain.KindTripTicket, rec)
	gender, ok := out.Get("gender")
	require.True(t, ok)
	assert.Equal(t, "Male", gender.Text())
	initial, _ := out.Get("customer_middle_initial")
	assert.Equal(t, "J", initial.Text())
	funding, _ := out.Get("trip_funding_source")
	assert.Equal(t, "A|B", funding.Text())
}

func TestParseProfileRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown transform": "mappings:\n  trip_ticket:\n    - {target: a, source: b, transform: upcase}\n",
		"unknown kind":      "mappings:\n  trip_legs:\n    - {target: a, source: b}\n",
		"missing source":    "mappings:\n  trip_ticket:\n    - {target: a}\n",
		"bad pattern":       "normalizations:\n  trip_ticket:\n    - field: a\n      rules:\n        - {replace_with: x, pattern: \"(\"}\n",
		"no matcher":        "normalizations:\n  trip_ticket:\n    - field: a\n      rules:\n        - {replace_with: x}\n",
		"both matchers":     "normalizations:\n  trip_ticket:\n    - field: a\n      rules:\n        - {replace_with: x, values: [y], pattern: z}\n",
		"unknown key":       "mapping:\n  trip_ticket: []\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProfile([]byte(raw))
			assert.True(t, errors.Is(err, domain.ErrConfiguration), "got %v", err)
		})
	}
}

func TestLoadProfile(t *testing.T) {
	profile, err := LoadProfile("")
	require.NoError(t, err)
	assert.Nil(t, profile.MappingFor(domain.KindTripTicket))

	path := filepath.Join(t.TempDir(), "mapping.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleMapping), 0o644))
	profile, err = LoadProfile(path)
	require.NoError(t, err)
	assert.Len(t, profile.MappingFor(domain.KindTripResult), 1)

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	profile, err = ParseProfile(nil)
	require.NoError(t, err)
	assert.Empty(t, profile.Mappings)
}
