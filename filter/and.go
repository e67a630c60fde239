package filter

import "github.com/quarry-engine/quarry/types/component"

type and struct {
	filters []ComponentFilter
}

// And matches archetypes that satisfy every given filter.
func And(filters ...ComponentFilter) ComponentFilter {
	return &and{filters: filters}
}

func (f *and) MatchesComponents(components []component.Metadata) bool {
	for _, filter := range f.filters {
		if !filter.MatchesComponents(components) {
			return false
		}
	}
	return true
}
