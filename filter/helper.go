package filter

import "github.com/quarry-engine/quarry/types/component"

func containsComponent(components []component.Metadata, c component.Metadata) bool {
	for _, other := range components {
		if other.ID() == c.ID() {
			return true
		}
	}
	return false
}
