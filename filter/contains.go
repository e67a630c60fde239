package filter

import "github.com/quarry-engine/quarry/types/component"

type contains struct {
	components []component.Metadata
}

// Contains matches archetypes that contain all the components specified.
func Contains(components ...component.Metadata) ComponentFilter {
	return &contains{components: components}
}

func (f *contains) MatchesComponents(components []component.Metadata) bool {
	for _, c := range f.components {
		if !containsComponent(components, c) {
			return false
		}
	}
	return true
}
