package store

import (
	"slices"
	"strings"
)

// DescriptionSeparator joins merged description fragments.
const DescriptionSeparator = "<SEP>"

// UnknownEntityType is used when extraction could not classify an entity.
const UnknownEntityType = "UNKNOWN"

// mergeEntity folds incoming into existing and returns the result. Either
// side may be nil.
func mergeEntity(existing, incoming *Entity) *Entity {
	if existing == nil {
		out := *incoming
		out.Description = unionFragments(nil, incoming.Description, DescriptionSeparator)
		out.SourceIDs = unionIDs(nil, incoming.SourceIDs)
		if out.Type == "" {
			out.Type = UnknownEntityType
		}
		return &out
	}
	out := *existing
	if out.Type == "" || out.Type == UnknownEntityType {
		if incoming.Type != "" {
			out.Type = incoming.Type
		}
	}
	out.Description = unionFragments(splitFragments(existing.Description, DescriptionSeparator), incoming.Description, DescriptionSeparator)
	out.SourceIDs = unionIDs(existing.SourceIDs, incoming.SourceIDs)
	return &out
}

// mergeRelation folds incoming into existing. Weights add up.
func mergeRelation(existing, incoming *Relation) *Relation {
	key := incoming.Key()
	if existing == nil {
		out := *incoming
		out.Source, out.Target = key.Source, key.Target
		out.Description = unionFragments(nil, incoming.Description, DescriptionSeparator)
		out.Keywords = unionFragments(nil, incoming.Keywords, ",")
		out.SourceIDs = unionIDs(nil, incoming.SourceIDs)
		if out.Weight <= 0 {
			out.Weight = 1
		}
		return &out
	}
	out := *existing
	out.Description = unionFragments(splitFragments(existing.Description, DescriptionSeparator), incoming.Description, DescriptionSeparator)
	out.Keywords = unionFragments(splitFragments(existing.Keywords, ","), incoming.Keywords, ",")
	w := incoming.Weight
	if w <= 0 {
		w = 1
	}
	out.Weight = existing.Weight + w
	out.SourceIDs = unionIDs(existing.SourceIDs, incoming.SourceIDs)
	return &out
}

func splitFragments(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// unionFragments appends the fragments of add that are not already in have.
func unionFragments(have []string, add, sep string) string {
	out := slices.Clone(have)
	for _, part := range splitFragments(add, sep) {
		if !slices.Contains(out, part) {
			out = append(out, part)
		}
	}
	return strings.Join(out, sep)
}

func unionIDs(have, add []string) []string {
	out := slices.Clone(have)
	for _, id := range add {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
