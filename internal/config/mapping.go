package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rpattn/tripsync/internal/domain"
)

// MappingFile is the on-disk shape of the mapping and normalization file.
type MappingFile struct {
	Mappings       map[string][]MappingEntry       `yaml:"mappings"`
	Normalizations map[string][]NormalizationEntry `yaml:"normalizations"`
}

type MappingEntry struct {
	Target    string `yaml:"target"`
	Source    string `yaml:"source"`
	Transform string `yaml:"transform"`
}

type NormalizationEntry struct {
	Field       string      `yaml:"field"`
	OutputField string      `yaml:"output_field"`
	Rules       []RuleEntry `yaml:"rules"`
}

// RuleEntry matches either a literal value list or a pattern.
type RuleEntry struct {
	ReplaceWith string   `yaml:"replace_with"`
	Values      []string `yaml:"values"`
	Pattern     string   `yaml:"pattern"`
	OutputField string   `yaml:"output_field"`
}

// LoadProfile reads the mapping file at path. A blank path yields an empty
// profile, which maps and normalizes nothing.
func LoadProfile(path string) (domain.Profile, error) {
	if strings.TrimSpace(path) == "" {
		return domain.Profile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("%w: read mapping file %s: %v", domain.ErrConfiguration, path, err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and compiles a mapping file. Unknown keys, entity
// kinds, transforms and invalid patterns are configuration errors.
func ParseProfile(data []byte) (domain.Profile, error) {
	var file MappingFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return domain.Profile{}, fmt.Errorf("%w: parse mapping file: %v", domain.ErrConfiguration, err)
	}
	return file.Compile()
}

// Compile converts the file into the profile used by the transform
// pipeline.
func (f MappingFile) Compile() (domain.Profile, error) {
	profile := domain.Profile{
		Mappings:       make(map[domain.EntityKind]domain.MappingTable, len(f.Mappings)),
		Normalizations: make(map[domain.EntityKind]domain.NormalizationRuleSet, len(f.Normalizations)),
	}

	for rawKind, entries := range f.Mappings {
		kind, err := domain.ParseEntityKind(rawKind)
		if err != nil {
			return domain.Profile{}, err
		}
		table := make(domain.MappingTable, 0, len(entries))
		for i, entry := range entries {
			if strings.TrimSpace(entry.Target) == "" || strings.TrimSpace(entry.Source) == "" {
				return domain.Profile{}, fmt.Errorf("%w: mappings.%s[%d] needs target and source", domain.ErrConfiguration, rawKind, i)
			}
			transform, err := domain.ParseTransform(entry.Transform)
			if err != nil {
				return domain.Profile{}, fmt.Errorf("mappings.%s[%d]: %w", rawKind, i, err)
			}
			table = append(table, domain.MappingRule{
				Target:    strings.TrimSpace(entry.Target),
				Source:    strings.TrimSpace(entry.Source),
				Transform: transform,
			})
		}
		profile.Mappings[kind] = table
	}

	for rawKind, entries := range f.Normalizations {
		kind, err := domain.ParseEntityKind(rawKind)
		if err != nil {
			return domain.Profile{}, err
		}
		set := make(domain.NormalizationRuleSet, 0, len(entries))
		for i, entry := range entries {
			field, err := entry.compile()
			if err != nil {
				return domain.Profile{}, fmt.Errorf("normalizations.%s[%d]: %w", rawKind, i, err)
			}
			set = append(set, field)
		}
		profile.Normalizations[kind] = set
	}

	return profile, nil
}

func (e NormalizationEntry) compile() (domain.FieldNormalization, error) {
	if strings.TrimSpace(e.Field) == "" {
		return domain.FieldNormalization{}, fmt.Errorf("%w: field is required", domain.ErrConfiguration)
	}
	rules := make([]domain.NormalizationRule, 0, len(e.Rules))
	for i, entry := range e.Rules {
		match := domain.MatchSpec{Values: entry.Values}
		switch {
		case entry.Pattern != "" && len(entry.Values) > 0:
			return domain.FieldNormalization{}, fmt.Errorf("%w: rule %d sets both values and pattern", domain.ErrConfiguration, i)
		case entry.Pattern != "":
			pattern, err := regexp.Compile(entry.Pattern)
			if err != nil {
				return domain.FieldNormalization{}, fmt.Errorf("%w: rule %d pattern: %v", domain.ErrConfiguration, i, err)
			}
			match.Pattern = pattern
		case len(entry.Values) == 0:
			return domain.FieldNormalization{}, fmt.Errorf("%w: rule %d needs values or pattern", domain.ErrConfiguration, i)
		}
		rules = append(rules, domain.NormalizationRule{
			Match:       match,
			Replacement: entry.ReplaceWith,
			OutputField: strings.TrimSpace(entry.OutputField),
		})
	}
	return domain.FieldNormalization{
		Field:       strings.TrimSpace(e.Field),
		OutputField: strings.TrimSpace(e.OutputField),
		Rules:       rules,
	}, nil
}
