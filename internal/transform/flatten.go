package transform

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rpattn/tripsync/internal/domain"
)

// FlatRecord is a single-level record whose values are scalars or null.
type FlatRecord = domain.Record

// Strategy decides how a field value becomes columns.
type Strategy uint8

const (
	// StrategyAuto picks by shape: objects explode as maps, sequences as
	// numbered columns, scalars pass through.
	StrategyAuto Strategy = iota
	// StrategyRecurse flattens a known nested object into prefix_key columns.
	StrategyRecurse
	// StrategyExplodeMap emits prefix_N_key / prefix_N_value column pairs.
	StrategyExplodeMap
	// StrategyExplodeSequence emits prefix_N columns.
	StrategyExplodeSequence
	// StrategyScalar emits one column; non-scalars are JSON encoded.
	StrategyScalar
)

// Layout maps field names to strategies. Fields not listed use StrategyAuto.
type Layout map[string]Strategy

// DefaultLayouts lists the structural objects of each entity kind. The
// address under originator is reached through the "address" entry.
var DefaultLayouts = map[domain.EntityKind]Layout{
	domain.KindTripTicket: {
		"customer_address":  StrategyRecurse,
		"pick_up_location":  StrategyRecurse,
		"drop_off_location": StrategyRecurse,
		"originator":        StrategyRecurse,
		"address":           StrategyRecurse,
	},
	domain.KindTripClaim:   {},
	domain.KindTripComment: {},
	domain.KindTripResult:  {},
}

// Flattener turns nested records into flat records using a fixed layout.
type Flattener struct {
	layout Layout
}

// NewFlattener builds a flattener for layout.
func NewFlattener(layout Layout) *Flattener {
	if layout == nil {
		layout = Layout{}
	}
	return &Flattener{layout: layout}
}

// NewFlattenerForKind uses the default layout for kind.
func NewFlattenerForKind(kind domain.EntityKind) *Flattener {
	return NewFlattener(DefaultLayouts[kind])
}

// Flatten converts rec into a single-level record. Column names join the
// prefix and the field path with "_". When two fields land on the same
// column, a literal scalar key keeps the bare name and derived columns are
// suffixed "__N" in order of their field path, so key order never changes
// which value a column holds.
func (f *Flattener) Flatten(rec *domain.Record, prefix string) *FlatRecord {
	var cells []cell
	rec.Each(func(key string, value domain.Value) {
		f.emit(&cells, joinName(prefix, key), []string{key}, value, f.strategyFor(key, value))
	})
	return assignColumns(cells)
}

// cell is one flattened value before column names are made unique.
type cell struct {
	name  string
	path  []string
	value domain.Value
}

func (c cell) literal() bool { return len(c.path) == 1 }

func (c cell) pathKey() string { return strings.Join(c.path, "\x00") }

func assignColumns(cells []cell) *FlatRecord {
	names := make([]string, len(cells))
	taken := make(map[string]bool, len(cells))
	derived := make([]int, 0, len(cells))
	for i, c := range cells {
		if c.literal() && !taken[c.name] {
			names[i] = c.name
			taken[c.name] = true
			continue
		}
		derived = append(derived, i)
	}
	sort.SliceStable(derived, func(a, b int) bool {
		return cells[derived[a]].pathKey() < cells[derived[b]].pathKey()
	})
	for _, i := range derived {
		name := cells[i].name
		for n := 2; taken[name]; n++ {
			name = cells[i].name + "__" + strconv.Itoa(n)
		}
		names[i] = name
		taken[name] = true
	}

	out := domain.NewRecord()
	for i, c := range cells {
		out.Set(names[i], c.value)
	}
	return out
}

func (f *Flattener) strategyFor(key string, value domain.Value) Strategy {
	if strategy, ok := f.layout[key]; ok && fits(strategy, value) {
		return strategy
	}
	return StrategyAuto
}

func fits(strategy Strategy, value domain.Value) bool {
	switch strategy {
	case StrategyRecurse, StrategyExplodeMap:
		return value.Kind() == domain.KindObject
	case StrategyExplodeSequence:
		return value.Kind() == domain.KindSequence
	default:
		return true
	}
}

func (f *Flattener) emit(out *[]cell, name string, path []string, value domain.Value, strategy Strategy) {
	if strategy == StrategyAuto {
		switch value.Kind() {
		case domain.KindObject:
			strategy = StrategyExplodeMap
		case domain.KindSequence:
			strategy = StrategyExplodeSequence
		default:
			strategy = StrategyScalar
		}
	}

	switch strategy {
	case StrategyRecurse:
		value.Record().Each(func(key string, child domain.Value) {
			f.emit(out, joinName(name, key), extend(path, key), child, f.strategyFor(key, child))
		})
	case StrategyExplodeMap:
		idx := 0
		value.Record().Each(func(key string, child domain.Value) {
			idx++
			pos := strconv.Itoa(idx)
			base := joinName(name, pos)
			*out = append(*out, cell{name: base + "_key", path: extend(path, pos, "key"), value: domain.String(key)})
			f.emit(out, base+"_value", extend(path, pos, "value"), child, StrategyAuto)
		})
	case StrategyExplodeSequence:
		for i, item := range value.Items() {
			pos := strconv.Itoa(i + 1)
			elementName := joinName(name, pos)
			if item.Kind() == domain.KindObject {
				f.emit(out, elementName, extend(path, pos), item, StrategyRecurse)
				continue
			}
			f.emit(out, elementName, extend(path, pos), item, StrategyAuto)
		}
	default:
		if value.Kind() == domain.KindSequence || value.Kind() == domain.KindObject {
			value = domain.String(value.Text())
		}
		*out = append(*out, cell{name: name, path: path, value: value})
	}
}

func extend(path []string, parts ...string) []string {
	out := make([]string, 0, len(path)+len(parts))
	out = append(out, path...)
	return append(out, parts...)
}

func joinName(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}
