package filter

import "github.com/quarry-engine/quarry/types/component"

type exact struct {
	components []component.Metadata
}

// Exact matches archetypes whose component set equals the specified set.
func Exact(components ...component.Metadata) ComponentFilter {
	return &exact{components: components}
}

func (f *exact) MatchesComponents(components []component.Metadata) bool {
	if len(components) != len(f.components) {
		return false
	}
	for _, c := range components {
		if !containsComponent(f.components, c) {
			return false
		}
	}
	return true
}
