package filter

import "github.com/quarry-engine/quarry/types/component"

type all struct{}

// All matches every archetype.
func All() ComponentFilter {
	return &all{}
}

func (f *all) MatchesComponents(_ []component.Metadata) bool {
	return true
}
