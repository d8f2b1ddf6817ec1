package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Transform is a scalar rewrite applied after a mapping rule resolves its
// source value.
type Transform string

const (
	TransformNone           Transform = ""
	TransformJoin           Transform = "join"
	TransformPairs          Transform = "pairs"
	TransformFirstCharacter Transform = "first_character"
)

// ParseTransform validates a transform name from configuration.
func ParseTransform(raw string) (Transform, error) {
	switch Transform(strings.TrimSpace(strings.ToLower(raw))) {
	case TransformNone:
		return TransformNone, nil
	case TransformJoin, "array_to_string":
		return TransformJoin, nil
	case TransformPairs, "hash_to_string":
		return TransformPairs, nil
	case TransformFirstCharacter, "first_char":
		return TransformFirstCharacter, nil
	}
	return "", fmt.Errorf("%w: unknown transform %q", ErrConfiguration, raw)
}

// MappingRule moves the value at Source (a field name or one-level dotted
// path) to Target.
type MappingRule struct {
	Target    string    `yaml:"target" json:"target"`
	Source    string    `yaml:"source" json:"source"`
	Transform Transform `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// MappingTable is an ordered list of rules for one entity kind.
type MappingTable []MappingRule

// MatchSpec accepts a field value either by membership in a literal set or
// by a regular expression.
type MatchSpec struct {
	Values  []string
	Pattern *regexp.Regexp
}

// NormalizationRule rewrites a matching value to Replacement.
type NormalizationRule struct {
	Match       MatchSpec
	Replacement string
	OutputField string
}

// FieldNormalization is the ordered rule list for one field. OutputField,
// when set, receives the result instead of the field itself.
type FieldNormalization struct {
	Field       string
	OutputField string
	Rules       []NormalizationRule
}

// NormalizationRuleSet holds the field rules for one entity kind, in
// declaration order.
type NormalizationRuleSet []FieldNormalization

// Profile is the mapping and normalization configuration for every kind.
type Profile struct {
	Mappings       map[EntityKind]MappingTable
	Normalizations map[EntityKind]NormalizationRuleSet
}

// MappingFor returns the table for kind; nil means identity.
func (p Profile) MappingFor(kind EntityKind) MappingTable {
	if p.Mappings == nil {
		return nil
	}
	return p.Mappings[kind]
}

// NormalizationsFor returns the rule set for kind.
func (p Profile) NormalizationsFor(kind EntityKind) NormalizationRuleSet {
	if p.Normalizations == nil {
		return nil
	}
	return p.Normalizations[kind]
}
