package filter

import "github.com/quarry-engine/quarry/types/component"

type not struct {
	filter ComponentFilter
}

// Not matches archetypes that do not satisfy the given filter.
func Not(filter ComponentFilter) ComponentFilter {
	return &not{filter: filter}
}

func (f *not) MatchesComponents(components []component.Metadata) bool {
	return !f.filter.MatchesComponents(components)
}
