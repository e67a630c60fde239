package filter

import "github.com/quarry-engine/quarry/types/component"

type containsAny struct {
	components []component.Metadata
}

// ContainsAny matches archetypes that contain at least one of the components
// specified. An empty component list matches everything.
func ContainsAny(components ...component.Metadata) ComponentFilter {
	return &containsAny{components: components}
}

func (f *containsAny) MatchesComponents(components []component.Metadata) bool {
	if len(f.components) == 0 {
		return true
	}
	for _, c := range f.components {
		if containsComponent(components, c) {
			return true
		}
	}
	return false
}
