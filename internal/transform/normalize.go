package transform

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/rpattn/tripsync/internal/domain"
)

// Normalize rewrites field values according to rules. Rules for a field
// are tried in declaration order and the first match supplies the
// replacement. Unmatched values are kept, or copied to the field's output
// field when one is configured. Only scalar values are considered.
func Normalize(input *domain.Record, rules domain.NormalizationRuleSet) *domain.Record {
	out := input.Clone()
	if len(rules) == 0 {
		return out
	}
	folder := cases.Fold()
	for _, field := range rules {
		name := strings.TrimSpace(field.Field)
		if name == "" {
			continue
		}
		value, ok := out.Lookup(name)
		if !ok || value.Kind() != domain.KindScalar {
			continue
		}
		text := value.Text()
		folded := foldText(folder, text)

		result := value
		destination := name
		if field.OutputField != "" {
			destination = field.OutputField
		}
		for _, rule := range field.Rules {
			if !matches(rule.Match, text, folded, folder) {
				continue
			}
			result = domain.String(rule.Replacement)
			if rule.OutputField != "" {
				destination = rule.OutputField
			}
			break
		}
		if destination == name && result.Equal(value) {
			continue
		}
		out.SetPath(destination, result)
	}
	return out
}

func matches(spec domain.MatchSpec, text, folded string, folder cases.Caser) bool {
	if spec.Pattern != nil {
		return spec.Pattern.MatchString(text)
	}
	for _, candidate := range spec.Values {
		if foldText(folder, candidate) == folded {
			return true
		}
	}
	return false
}

// foldText trims, composes and case-folds s so that literal matches ignore
// case and Unicode representation.
func foldText(folder cases.Caser, s string) string {
	folder.Reset()
	return folder.String(norm.NFC.String(strings.TrimSpace(s)))
}
