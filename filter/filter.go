package filter

import "github.com/quarry-engine/quarry/types/component"

// ComponentFilter is a predicate over an archetype's fixed component-type
// set. Filters are pure functions of the type set, which is what makes
// archetype-level matching cheap enough to run once per cache refresh
// instead of once per entity.
type ComponentFilter interface {
	// MatchesComponents returns true if the component set satisfies the filter.
	MatchesComponents(components []component.Metadata) bool
}
