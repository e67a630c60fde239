// Package query answers repeated "which entities satisfy this filter"
// questions cheaply. A query compiles its filter once and keeps two caches:
// a matched-archetype list for the fast path, and an incrementally
// maintained entity set for the fallback path used when no archetype store
// is attached.
package query

import (
	"github.com/quarry-engine/quarry/filter"
	"github.com/quarry-engine/quarry/storage"
	"github.com/quarry-engine/quarry/types/archetype"
	"github.com/quarry-engine/quarry/types/component"
	"github.com/quarry-engine/quarry/types/entity"
)

// Store is the archetype registry surface the fast path reads through.
// storage.Manager implements it.
type Store interface {
	SearchFrom(f filter.ComponentFilter, start int) *storage.ArchetypeIterator
	ArchetypeCount() int
	Archetype(id archetype.ID) *storage.Archetype
	Version() uint64
}

// TagReader answers tag membership for entities. Tags are not part of
// archetype identity, so the fast path consults this per entity during
// iteration.
type TagReader interface {
	HasTag(id entity.ID, tag string) bool
}

// ComponentReader fetches a component value for an entity regardless of
// storage mode. The fallback path uses it to hand values to callbacks.
type ComponentReader interface {
	ComponentByID(id entity.ID, tid component.TypeID) (any, error)
}

// EntityView is the read surface Match needs from an entity.
type EntityView interface {
	EntityID() entity.ID
	HasComponentID(tid component.TypeID) bool
	HasTag(tag string) bool
}

// Spec is the immutable filter specification for a query.
type Spec struct {
	// All components must be present. Components are handed to Each
	// callbacks in exactly this order.
	All []component.Metadata
	// Any requires at least one of these components, when non-empty.
	Any []component.Metadata
	// None excludes entities holding any of these components.
	None []component.Metadata
	// Tags must all be present on the entity.
	Tags []string
	// WithoutTags must all be absent.
	WithoutTags []string
}

// Filter compiles the component part of the spec into an archetype filter.
func (s Spec) Filter() filter.ComponentFilter {
	parts := []filter.ComponentFilter{filter.Contains(s.All...)}
	if len(s.Any) > 0 {
		parts = append(parts, filter.ContainsAny(s.Any...))
	}
	if len(s.None) > 0 {
		parts = append(parts, filter.Not(filter.ContainsAny(s.None...)))
	}
	return filter.And(parts...)
}

// Deps are the collaborators a query reads through. Store may be nil, which
// disables the archetype fast path and leaves only the entity-set path.
type Deps struct {
	Store      Store
	Tags       TagReader
	Components ComponentReader
}

type Query struct {
	spec Spec
	f    filter.ComponentFilter
	deps Deps

	// Archetype fast path: matched archetypes only ever grow (archetype
	// type sets are fixed and archetypes are never destroyed), so a seen
	// watermark is enough to keep the list current.
	matched []archetype.ID
	seen    int

	// Entity array cache for the fast path. Tag filtering is baked into the
	// array and tag-only mutations never bump the store's membership version,
	// so the cache is also dropped on every set-membership change: the world
	// routes tag mutations through Update, which lands there.
	entCache        []entity.ID
	entCacheVersion uint64
	entCacheValid   bool

	// Entity-set fallback path: insertion-ordered ids with an index map so
	// membership updates are O(1). Order is not stable across removals.
	setIDs     []entity.ID
	setPos     map[entity.ID]int
	setVersion uint64

	setCache        []entity.ID
	setCacheVersion uint64
	setCacheValid   bool
}

// New compiles the spec into a query.
func New(spec Spec, deps Deps) *Query {
	return &Query{
		spec:   spec,
		f:      spec.Filter(),
		deps:   deps,
		setPos: map[entity.ID]int{},
	}
}

// Spec returns the query's immutable filter specification.
func (q *Query) Spec() Spec {
	return q.spec
}

// Match runs the three-part test (component membership, tag membership, tag
// exclusion) against a single entity.
func (q *Query) Match(v EntityView) bool {
	for _, c := range q.spec.All {
		if !v.HasComponentID(c.ID()) {
			return false
		}
	}
	if len(q.spec.Any) > 0 {
		found := false
		for _, c := range q.spec.Any {
			if v.HasComponentID(c.ID()) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, c := range q.spec.None {
		if v.HasComponentID(c.ID()) {
			return false
		}
	}
	for _, tag := range q.spec.Tags {
		if !v.HasTag(tag) {
			return false
		}
	}
	for _, tag := range q.spec.WithoutTags {
		if v.HasTag(tag) {
			return false
		}
	}
	return true
}

// Update re-tests the entity and incrementally adjusts the cached entity
// set, bumping the set version only when membership actually changed. The
// world calls this on every component or tag mutation.
func (q *Query) Update(v EntityView) bool {
	if q.Match(v) {
		return q.add(v.EntityID())
	}
	return q.Forget(v.EntityID())
}

// Forget removes a despawned entity from the cached entity set.
func (q *Query) Forget(id entity.ID) bool {
	pos, ok := q.setPos[id]
	if !ok {
		return false
	}
	last := len(q.setIDs) - 1
	moved := q.setIDs[last]
	q.setIDs[pos] = moved
	q.setIDs = q.setIDs[:last]
	delete(q.setPos, id)
	if moved != id {
		q.setPos[moved] = pos
	}
	q.setVersion++
	q.entCacheValid = false
	return true
}

func (q *Query) add(id entity.ID) bool {
	if _, ok := q.setPos[id]; ok {
		return false
	}
	q.setPos[id] = len(q.setIDs)
	q.setIDs = append(q.setIDs, id)
	q.setVersion++
	q.entCacheValid = false
	return true
}

// Each iterates all matching entities, invoking fn with the entity and its
// component values in the order the spec's All list requested them.
// Returning false stops the pass.
//
// With a store attached, iteration walks matching archetypes' dense arrays
// by index with no per-entity map lookups; tag constraints are tested per
// entity since tags are not baked into archetype identity. Without a store,
// iteration walks the incrementally maintained entity set.
func (q *Query) Each(fn func(id entity.ID, comps []any) bool) error {
	if q.deps.Store != nil {
		return q.eachArchetype(fn)
	}
	return q.eachSet(fn)
}

func (q *Query) eachArchetype(fn func(id entity.ID, comps []any) bool) error {
	comps := make([]any, len(q.spec.All))
	// A callback may relocate the current entity into a matched archetype
	// later in this pass, where it would come up again as a fresh append.
	// Tracking delivered ids keeps the pass at-most-once per entity.
	delivered := make(map[entity.ID]struct{})
	for _, archID := range q.matchingArchetypes() {
		arch := q.deps.Store.Archetype(archID)

		// Fetch columns in the order the spec requested, which may differ
		// from the archetype's canonical sort order.
		columns := make([]component.Column, len(q.spec.All))
		ok := true
		for i, c := range q.spec.All {
			col, err := arch.Column(c.ID())
			if err != nil {
				// Archetype matching guarantees the column exists; a miss is
				// an internal invariant break, tolerated as an empty result.
				ok = false
				break
			}
			columns[i] = col
		}
		if !ok {
			continue
		}

		stopped := false
		arch.Each(func(id entity.ID, index int) bool {
			if _, done := delivered[id]; done {
				return true
			}
			if !q.tagsMatch(id) {
				return true
			}
			for i, col := range columns {
				value, err := col.Get(index)
				if err != nil {
					return true
				}
				comps[i] = value
			}
			delivered[id] = struct{}{}
			if !fn(id, comps) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return nil
		}
	}
	return nil
}

func (q *Query) eachSet(fn func(id entity.ID, comps []any) bool) error {
	// Snapshot the ids so callbacks that mutate membership do not disturb
	// this pass.
	ids := make([]entity.ID, len(q.setIDs))
	copy(ids, q.setIDs)

	comps := make([]any, len(q.spec.All))
	for _, id := range ids {
		if _, live := q.setPos[id]; !live {
			continue
		}
		ok := true
		for i, c := range q.spec.All {
			value, err := q.deps.Components.ComponentByID(id, c.ID())
			if err != nil {
				ok = false
				break
			}
			comps[i] = value
		}
		if !ok {
			continue
		}
		if !fn(id, comps) {
			return nil
		}
	}
	return nil
}

// GetEntitiesArray returns the matching entities. The returned slice is
// cached: consecutive calls with no intervening structural change return the
// same slice, so callers can compare references to detect staleness.
func (q *Query) GetEntitiesArray() []entity.ID {
	if q.deps.Store == nil {
		if q.setCacheValid && q.setCacheVersion == q.setVersion {
			return q.setCache
		}
		q.setCache = make([]entity.ID, len(q.setIDs))
		copy(q.setCache, q.setIDs)
		q.setCacheVersion = q.setVersion
		q.setCacheValid = true
		return q.setCache
	}

	version := q.deps.Store.Version()
	if q.entCacheValid && q.entCacheVersion == version {
		return q.entCache
	}
	out := make([]entity.ID, 0, 64)
	for _, archID := range q.matchingArchetypes() {
		arch := q.deps.Store.Archetype(archID)
		for _, id := range arch.Entities() {
			if !arch.HasEntity(id) {
				continue
			}
			if !q.tagsMatch(id) {
				continue
			}
			out = append(out, id)
		}
	}
	q.entCache = out
	q.entCacheVersion = version
	q.entCacheValid = true
	return q.entCache
}

// Count returns the number of matching entities.
func (q *Query) Count() int {
	return len(q.GetEntitiesArray())
}

// First returns the first matching entity, or (BadID, false) when the query
// matches nothing.
func (q *Query) First() (entity.ID, bool) {
	ids := q.GetEntitiesArray()
	if len(ids) == 0 {
		return entity.BadID, false
	}
	return ids[0], true
}

// Clear empties the entity set and drops every cache. Worlds call this when
// they reset to an empty state.
func (q *Query) Clear() {
	q.setIDs = q.setIDs[:0]
	clear(q.setPos)
	q.setVersion++
	q.InvalidateCache()
}

// InvalidateCache drops every cache, forcing full re-evaluation on next use.
// Needed after bulk administrative resets that bypass incremental updates.
func (q *Query) InvalidateCache() {
	q.matched = nil
	q.seen = 0
	q.entCacheValid = false
	q.setCacheValid = false
}

// matchingArchetypes extends the matched list with any archetypes created
// since the last evaluation.
func (q *Query) matchingArchetypes() []archetype.ID {
	for it := q.deps.Store.SearchFrom(q.f, q.seen); it.HasNext(); {
		q.matched = append(q.matched, it.Next())
	}
	q.seen = q.deps.Store.ArchetypeCount()
	return q.matched
}

func (q *Query) tagsMatch(id entity.ID) bool {
	if len(q.spec.Tags) == 0 && len(q.spec.WithoutTags) == 0 {
		return true
	}
	if q.deps.Tags == nil {
		return false
	}
	for _, tag := range q.spec.Tags {
		if !q.deps.Tags.HasTag(id, tag) {
			return false
		}
	}
	for _, tag := range q.spec.WithoutTags {
		if q.deps.Tags.HasTag(id, tag) {
			return false
		}
	}
	return true
}
