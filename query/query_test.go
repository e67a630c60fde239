package query_test

import (
	"testing"

	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"

	"github.com/quarry-engine/quarry/log"
	"github.com/quarry-engine/quarry/query"
	"github.com/quarry-engine/quarry/storage"
	"github.com/quarry-engine/quarry/types/component"
	"github.com/quarry-engine/quarry/types/entity"
)

type Position struct {
	X, Y float64
}

func (Position) Name() string { return "Position" }

type Velocity struct {
	DX, DY float64
}

func (Velocity) Name() string { return "Velocity" }

type Frozen struct{}

func (Frozen) Name() string { return "Frozen" }

// fakeView is a minimal EntityView for the set-path tests.
type fakeView struct {
	id    entity.ID
	comps map[component.TypeID]struct{}
	tags  map[string]struct{}
}

func (v *fakeView) EntityID() entity.ID { return v.id }

func (v *fakeView) HasComponentID(tid component.TypeID) bool {
	_, ok := v.comps[tid]
	return ok
}

func (v *fakeView) HasTag(tag string) bool {
	_, ok := v.tags[tag]
	return ok
}

// fakeTags answers tag lookups for the archetype-path tests.
type fakeTags map[entity.ID]map[string]struct{}

func (f fakeTags) HasTag(id entity.ID, tag string) bool {
	_, ok := f[id][tag]
	return ok
}

type fixture struct {
	manager *storage.Manager
	pos     component.Metadata
	vel     component.Metadata
	frozen  component.Metadata
	tags    fakeTags
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	nop := zerolog.Nop()
	fx := &fixture{
		manager: storage.NewManager(log.New(&nop)),
		tags:    fakeTags{},
	}
	fx.pos = component.NewMetadata[Position]()
	assert.NilError(t, fx.pos.SetID(1))
	fx.vel = component.NewMetadata[Velocity]()
	assert.NilError(t, fx.vel.SetID(2))
	fx.frozen = component.NewMetadata[Frozen]()
	assert.NilError(t, fx.frozen.SetID(3))
	return fx
}

func (fx *fixture) place(t *testing.T, id entity.ID, values map[component.TypeID]any, comps ...component.Metadata) {
	t.Helper()
	_, err := fx.manager.PlaceEntity(id, comps, values)
	assert.NilError(t, err)
}

func (fx *fixture) query(spec query.Spec) *query.Query {
	return query.New(spec, query.Deps{Store: fx.manager, Tags: fx.tags})
}

func TestQueryEachWalksMatchingArchetypes(t *testing.T) {
	fx := newFixture(t)
	fx.place(t, 10, map[component.TypeID]any{1: Position{X: 1}, 2: Velocity{DX: 10}}, fx.pos, fx.vel)
	fx.place(t, 20, map[component.TypeID]any{1: Position{X: 2}}, fx.pos)
	fx.place(t, 30, map[component.TypeID]any{1: Position{X: 3}, 2: Velocity{DX: 30}, 3: Frozen{}}, fx.pos, fx.vel, fx.frozen)

	q := fx.query(query.Spec{
		All:  []component.Metadata{fx.pos, fx.vel},
		None: []component.Metadata{fx.frozen},
	})

	visited := map[entity.ID]Position{}
	err := q.Each(func(id entity.ID, comps []any) bool {
		// Values arrive in the order the spec's All list requested.
		visited[id] = comps[0].(Position)
		_ = comps[1].(Velocity)
		return true
	})
	assert.NilError(t, err)
	assert.DeepEqual(t, map[entity.ID]Position{10: {X: 1}}, visited)
}

func TestQuerySeesArchetypesCreatedAfterIt(t *testing.T) {
	fx := newFixture(t)
	q := fx.query(query.Spec{All: []component.Metadata{fx.pos}})
	assert.Equal(t, 0, q.Count())

	fx.place(t, 10, map[component.TypeID]any{1: Position{}}, fx.pos)
	assert.Equal(t, 1, q.Count())

	fx.place(t, 20, map[component.TypeID]any{1: Position{}, 2: Velocity{}}, fx.pos, fx.vel)
	assert.Equal(t, 2, q.Count())
}

func TestQueryTagFiltering(t *testing.T) {
	fx := newFixture(t)
	fx.place(t, 10, map[component.TypeID]any{1: Position{}}, fx.pos)
	fx.place(t, 20, map[component.TypeID]any{1: Position{}}, fx.pos)
	fx.tags[10] = map[string]struct{}{"enemy": {}}
	fx.tags[20] = map[string]struct{}{"enemy": {}, "dead": {}}

	q := fx.query(query.Spec{
		All:         []component.Metadata{fx.pos},
		Tags:        []string{"enemy"},
		WithoutTags: []string{"dead"},
	})

	ids := q.GetEntitiesArray()
	assert.DeepEqual(t, []entity.ID{10}, ids)
}

func TestQueryCountRefreshesAfterTagOnlyMutation(t *testing.T) {
	fx := newFixture(t)
	fx.place(t, 10, map[component.TypeID]any{1: Position{}}, fx.pos)
	fx.place(t, 20, map[component.TypeID]any{1: Position{}}, fx.pos)
	fx.tags[10] = map[string]struct{}{"enemy": {}}
	fx.tags[20] = map[string]struct{}{"enemy": {}, "dead": {}}

	q := fx.query(query.Spec{
		All:         []component.Metadata{fx.pos},
		Tags:        []string{"enemy"},
		WithoutTags: []string{"dead"},
	})
	assert.Equal(t, 1, q.Count())

	// A tag-only mutation never bumps the store's membership version; the
	// update notification alone must refresh the cached array.
	delete(fx.tags[20], "dead")
	assert.Assert(t, q.Update(&fakeView{id: 20, comps: map[component.TypeID]struct{}{1: {}}, tags: fx.tags[20]}))
	assert.Equal(t, 2, q.Count())
	assert.DeepEqual(t, []entity.ID{10, 20}, q.GetEntitiesArray())
}

func TestQueryEachVisitsRelocatedEntityOnce(t *testing.T) {
	fx := newFixture(t)
	fx.place(t, 10, map[component.TypeID]any{1: Position{}}, fx.pos)
	fx.place(t, 20, map[component.TypeID]any{1: Position{}, 2: Velocity{}}, fx.pos, fx.vel)

	q := fx.query(query.Spec{All: []component.Metadata{fx.pos}})

	// Relocating the current entity into an archetype later in the pass must
	// not deliver it a second time there.
	visits := map[entity.ID]int{}
	err := q.Each(func(id entity.ID, _ []any) bool {
		visits[id]++
		if id == 10 {
			from, err := fx.manager.ArchetypeForComponents([]component.Metadata{fx.pos})
			assert.NilError(t, err)
			_, err = fx.manager.MoveEntity(10, from, []component.Metadata{fx.pos, fx.vel},
				map[component.TypeID]any{1: Position{}, 2: Velocity{}})
			assert.NilError(t, err)
		}
		return true
	})
	assert.NilError(t, err)
	assert.DeepEqual(t, map[entity.ID]int{10: 1, 20: 1}, visits)
}

func TestQueryEntitiesArrayIsCachedUntilMembershipChanges(t *testing.T) {
	fx := newFixture(t)
	fx.place(t, 10, map[component.TypeID]any{1: Position{}}, fx.pos)

	q := fx.query(query.Spec{All: []component.Metadata{fx.pos}})

	first := q.GetEntitiesArray()
	second := q.GetEntitiesArray()
	// Same backing slice while nothing changed; callers can compare
	// references to detect staleness.
	assert.Assert(t, &first[0] == &second[0])

	fx.place(t, 20, map[component.TypeID]any{1: Position{}}, fx.pos)
	third := q.GetEntitiesArray()
	assert.Equal(t, 2, len(third))
}

func TestQueryEachEarlyStop(t *testing.T) {
	fx := newFixture(t)
	fx.place(t, 10, map[component.TypeID]any{1: Position{}}, fx.pos)
	fx.place(t, 20, map[component.TypeID]any{1: Position{}}, fx.pos)

	count := 0
	err := fx.query(query.Spec{All: []component.Metadata{fx.pos}}).Each(func(entity.ID, []any) bool {
		count++
		return false
	})
	assert.NilError(t, err)
	assert.Equal(t, 1, count)
}

func TestQueryMatchThreePartTest(t *testing.T) {
	fx := newFixture(t)
	q := query.New(query.Spec{
		All:         []component.Metadata{fx.pos},
		Any:         []component.Metadata{fx.vel, fx.frozen},
		None:        []component.Metadata{},
		Tags:        []string{"enemy"},
		WithoutTags: []string{"dead"},
	}, query.Deps{})

	view := &fakeView{
		id:    10,
		comps: map[component.TypeID]struct{}{1: {}, 2: {}},
		tags:  map[string]struct{}{"enemy": {}},
	}
	assert.Assert(t, q.Match(view))

	delete(view.comps, 2)
	assert.Assert(t, !q.Match(view), "no Any component present")

	view.comps[3] = struct{}{}
	view.tags["dead"] = struct{}{}
	assert.Assert(t, !q.Match(view), "excluded tag present")
}

func TestQuerySetPathUpdateAndForget(t *testing.T) {
	fx := newFixture(t)
	q := query.New(query.Spec{All: []component.Metadata{fx.pos}}, query.Deps{})

	view := &fakeView{id: 10, comps: map[component.TypeID]struct{}{1: {}}, tags: map[string]struct{}{}}
	assert.Assert(t, q.Update(view))
	assert.DeepEqual(t, []entity.ID{10}, q.GetEntitiesArray())

	// Re-testing an unchanged entity must not disturb the set.
	assert.Assert(t, !q.Update(view))

	delete(view.comps, 1)
	assert.Assert(t, q.Update(view))
	assert.Equal(t, 0, q.Count())

	assert.Assert(t, !q.Forget(10), "already gone")
}

func TestQuerySetPathCacheIdentity(t *testing.T) {
	fx := newFixture(t)
	q := query.New(query.Spec{All: []component.Metadata{fx.pos}}, query.Deps{})

	a := &fakeView{id: 10, comps: map[component.TypeID]struct{}{1: {}}, tags: map[string]struct{}{}}
	b := &fakeView{id: 20, comps: map[component.TypeID]struct{}{1: {}}, tags: map[string]struct{}{}}
	q.Update(a)
	q.Update(b)

	first := q.GetEntitiesArray()
	second := q.GetEntitiesArray()
	assert.Assert(t, &first[0] == &second[0])

	q.Forget(10)
	third := q.GetEntitiesArray()
	assert.DeepEqual(t, []entity.ID{20}, third)
}

func TestQueryClear(t *testing.T) {
	fx := newFixture(t)
	q := query.New(query.Spec{All: []component.Metadata{fx.pos}}, query.Deps{})
	q.Update(&fakeView{id: 10, comps: map[component.TypeID]struct{}{1: {}}, tags: map[string]struct{}{}})

	q.Clear()
	assert.Equal(t, 0, q.Count())
}
