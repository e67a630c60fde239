package filter

import "github.com/quarry-engine/quarry/types/component"

type or struct {
	filters []ComponentFilter
}

// Or matches archetypes that satisfy at least one of the given filters.
func Or(filters ...ComponentFilter) ComponentFilter {
	return &or{filters: filters}
}

func (f *or) MatchesComponents(components []component.Metadata) bool {
	for _, filter := range f.filters {
		if filter.MatchesComponents(components) {
			return true
		}
	}
	return false
}
