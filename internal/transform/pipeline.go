package transform

import (
	"github.com/rpattn/tripsync/internal/domain"
)

// Pipeline applies mapping, then normalization, then flattening for each
// entity kind. Normalization runs on mapped output so rules can name
// mapped fields.
type Pipeline struct {
	profile    domain.Profile
	flatteners map[domain.EntityKind]*Flattener
}

// NewPipeline builds a pipeline from profile using DefaultLayouts.
func NewPipeline(profile domain.Profile) *Pipeline {
	flatteners := make(map[domain.EntityKind]*Flattener, len(domain.EntityKinds))
	for _, kind := range domain.EntityKinds {
		flatteners[kind] = NewFlattenerForKind(kind)
	}
	return &Pipeline{profile: profile, flatteners: flatteners}
}

// Prepare maps and normalizes rec without flattening it.
func (p *Pipeline) Prepare(kind domain.EntityKind, rec *domain.Record) *domain.Record {
	mapped := Map(rec, p.profile.MappingFor(kind))
	return Normalize(mapped, p.profile.NormalizationsFor(kind))
}

// Flatten prepares rec and flattens the result.
func (p *Pipeline) Flatten(kind domain.EntityKind, rec *domain.Record) *FlatRecord {
	flattener, ok := p.flatteners[kind]
	if !ok {
		flattener = NewFlattener(nil)
	}
	return flattener.Flatten(p.Prepare(kind, rec), "")
}

// Table flattens every record of kind and builds the batch table.
func (p *Pipeline) Table(kind domain.EntityKind, records []*domain.Record) Table {
	flat := make([]*FlatRecord, 0, len(records))
	for _, rec := range records {
		flat = append(flat, p.Flatten(kind, rec))
	}
	return BuildTable(flat)
}
