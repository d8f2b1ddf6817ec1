package transform

import (
	"strings"
	"unicode/utf8"

	"github.com/rpattn/tripsync/internal/domain"
)

const (
	joinSeparator = "|"
	pairSeparator = ","
	pairDelimiter = ":"
)

// Map relocates fields according to table. Sources are resolved against
// the input so several rules may read the same field; every resolved source
// is removed from the output unless it is also the target. Fields no rule
// touches pass through unchanged. An empty table is the identity.
func Map(input *domain.Record, table domain.MappingTable) *domain.Record {
	out := input.Clone()
	for _, rule := range table {
		target := strings.TrimSpace(rule.Target)
		source := strings.TrimSpace(rule.Source)
		if target == "" || source == "" {
			continue
		}
		value, ok := input.Lookup(source)
		if !ok || value.IsNull() {
			continue
		}
		value = applyTransform(value.Clone(), rule.Transform)

		if source == target {
			out.SetPath(target, value)
			continue
		}
		anchor, _, _ := strings.Cut(source, ".")
		if strings.Contains(target, ".") {
			out.SetPath(target, value)
		} else {
			out.SetBefore(target, value, anchor)
		}
		out.Remove(source)
	}
	return out
}

func applyTransform(value domain.Value, transform domain.Transform) domain.Value {
	switch transform {
	case domain.TransformJoin:
		if value.Kind() != domain.KindSequence {
			return value
		}
		parts := make([]string, len(value.Items()))
		for i, item := range value.Items() {
			parts[i] = item.Text()
		}
		return domain.String(strings.Join(parts, joinSeparator))
	case domain.TransformPairs:
		if value.Kind() != domain.KindObject {
			return value
		}
		pairs := make([]string, 0, value.Record().Len())
		value.Record().Each(func(key string, item domain.Value) {
			pairs = append(pairs, key+pairDelimiter+item.Text())
		})
		return domain.String(strings.Join(pairs, pairSeparator))
	case domain.TransformFirstCharacter:
		if value.Kind() != domain.KindScalar {
			return value
		}
		text := value.Text()
		if text == "" {
			return value
		}
		r, _ := utf8.DecodeRuneInString(text)
		return domain.String(string(r))
	default:
		return value
	}
}
