package transform

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rpattn/tripsync/internal/domain"
)

func TestNormalizeLiteralMatchWritesOutputField(t *testing.T) {
	rec := mustRecord(t, `{"customer_sex": "M", "status": "Active"}`)
	out := Normalize(rec, sampleProfile().NormalizationsFor(domain.KindTripTicket))

	assert.Equal(t, "Male", text(t, out, "gender"))
	assert.Equal(t, "M", text(t, out, "customer_sex"))
	assert.Equal(t, "foostatus", text(t, out, "status"))
}

func TestNormalizeLiteralMatchIgnoresCaseAndWhitespace(t *testing.T) {
	rules := domain.NormalizationRuleSet{{
		Field: "status",
		Rules: []domain.NormalizationRule{{Replacement: "ok", Match: domain.MatchSpec{Values: []string{"ACTIVE"}}}},
	}}
	out := Normalize(mustRecord(t, `{"status": "  active "}`), rules)
	assert.Equal(t, "ok", text(t, out, "status"))
}

func TestNormalizeLiteralMatchComposesUnicode(t *testing.T) {
	rules := domain.NormalizationRuleSet{{
		Field: "city",
		Rules: []domain.NormalizationRule{{Replacement: "Sao Jose", Match: domain.MatchSpec{Values: []string{"São José"}}}},
	}}
	out := Normalize(mustRecord(t, `{"city": "são josé"}`), rules)
	assert.Equal(t, "Sao Jose", text(t, out, "city"))
}

func TestNormalizePatternMatchFirstRuleWins(t *testing.T) {
	rec := mustRecord(t, `{"driver_name": "Fred"}`)
	out := Normalize(rec, sampleProfile().NormalizationsFor(domain.KindTripResult))
	assert.Equal(t, "Jones", text(t, out, "driver_last_name"))
	assert.Equal(t, "Fred", text(t, out, "driver_name"))

	rules := domain.NormalizationRuleSet{{
		Field: "name",
		Rules: []domain.NormalizationRule{
			{Replacement: "first", Match: domain.MatchSpec{Pattern: regexp.MustCompile(`^a`)}},
			{Replacement: "second", Match: domain.MatchSpec{Pattern: regexp.MustCompile(`b$`)}},
		},
	}}
	out = Normalize(mustRecord(t, `{"name": "ab"}`), rules)
	assert.Equal(t, "first", text(t, out, "name"))
}

func TestNormalizeUnmatchedValueIsCopiedToOutputField(t *testing.T) {
	out := Normalize(mustRecord(t, `{"customer_sex": "X"}`), sampleProfile().NormalizationsFor(domain.KindTripTicket))
	assert.Equal(t, "X", text(t, out, "gender"))
	assert.Equal(t, "X", text(t, out, "customer_sex"))
}

func TestNormalizeUnmatchedValueInPlaceIsUnchanged(t *testing.T) {
	rec := mustRecord(t, `{"status": "Pending", "other": 1}`)
	out := Normalize(rec, sampleProfile().NormalizationsFor(domain.KindTripTicket))
	assert.True(t, out.Equal(rec))
}

func TestNormalizeRuleOutputFieldOverridesFieldDestination(t *testing.T) {
	rules := domain.NormalizationRuleSet{{
		Field:       "code",
		OutputField: "code_label",
		Rules: []domain.NormalizationRule{
			{Replacement: "special", OutputField: "special_code", Match: domain.MatchSpec{Values: []string{"x"}}},
		},
	}}
	out := Normalize(mustRecord(t, `{"code": "x"}`), rules)
	assert.Equal(t, "special", text(t, out, "special_code"))
	assert.False(t, out.Has("code_label"))
}

func TestNormalizeSkipsMissingAndNonScalarFields(t *testing.T) {
	rules := domain.NormalizationRuleSet{
		{Field: "absent", OutputField: "x", Rules: []domain.NormalizationRule{{Replacement: "y", Match: domain.MatchSpec{Values: []string{""}}}}},
		{Field: "list", Rules: []domain.NormalizationRule{{Replacement: "y", Match: domain.MatchSpec{Pattern: regexp.MustCompile(`.*`)}}}},
	}
	rec := mustRecord(t, `{"list": [1, 2]}`)
	out := Normalize(rec, rules)
	assert.True(t, out.Equal(rec))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	rules := sampleProfile().NormalizationsFor(domain.KindTripTicket)
	once := Normalize(mustRecord(t, `{"customer_sex": "male", "status": "active"}`), rules)
	twice := Normalize(once, rules)
	assert.True(t, once.Equal(twice))
}
