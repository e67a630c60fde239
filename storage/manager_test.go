package storage_test

import (
	"testing"

	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"

	"github.com/quarry-engine/quarry/filter"
	"github.com/quarry-engine/quarry/log"
	"github.com/quarry-engine/quarry/storage"
	"github.com/quarry-engine/quarry/types/component"
)

func newManager(t *testing.T) *storage.Manager {
	t.Helper()
	nop := zerolog.Nop()
	return storage.NewManager(log.New(&nop))
}

func TestManagerSeedsEmptyArchetype(t *testing.T) {
	m := newManager(t)

	assert.Equal(t, 1, m.ArchetypeCount())
	empty := m.EmptyArchetype()
	assert.Equal(t, 0, len(empty.Components()))

	// Asking for the zero-component shape resolves to the same archetype.
	arch, err := m.GetOrCreateArchetype(nil)
	assert.NilError(t, err)
	assert.Equal(t, empty.ID(), arch.ID())
}

func TestManagerArchetypeIdentityIsOrderIndependent(t *testing.T) {
	m := newManager(t)
	pos := newMetadata[Position](t, 1)
	vel := newMetadata[Velocity](t, 2)

	a, err := m.GetOrCreateArchetype([]component.Metadata{pos, vel})
	assert.NilError(t, err)
	b, err := m.GetOrCreateArchetype([]component.Metadata{vel, pos})
	assert.NilError(t, err)

	assert.Equal(t, a.ID(), b.ID())
	assert.Equal(t, 2, m.ArchetypeCount())
}

func TestManagerRejectsDuplicateComponents(t *testing.T) {
	m := newManager(t)
	pos := newMetadata[Position](t, 1)

	_, err := m.GetOrCreateArchetype([]component.Metadata{pos, pos})
	assert.ErrorIs(t, err, storage.ErrDuplicateComponents)
}

func TestManagerArchetypeForComponentsDoesNotCreate(t *testing.T) {
	m := newManager(t)
	pos := newMetadata[Position](t, 1)

	_, err := m.ArchetypeForComponents([]component.Metadata{pos})
	assert.ErrorIs(t, err, storage.ErrArchetypeNotFound)
	assert.Equal(t, 1, m.ArchetypeCount())
}

func TestManagerMoveEntityRelocates(t *testing.T) {
	m := newManager(t)
	pos := newMetadata[Position](t, 1)
	vel := newMetadata[Velocity](t, 2)

	from, err := m.PlaceEntity(10, []component.Metadata{pos}, map[component.TypeID]any{
		pos.ID(): Position{X: 1},
	})
	assert.NilError(t, err)

	dest, err := m.MoveEntity(10, from, []component.Metadata{pos, vel}, map[component.TypeID]any{
		pos.ID(): Position{X: 1},
		vel.ID(): Velocity{DX: 2},
	})
	assert.NilError(t, err)

	assert.Assert(t, !from.HasEntity(10))
	assert.Assert(t, dest.HasEntity(10))
	assert.Equal(t, uint64(1), m.MoveCount())

	got, err := dest.Component(10, vel.ID())
	assert.NilError(t, err)
	assert.Equal(t, Velocity{DX: 2}, got)
}

func TestManagerVersionTracksMembershipChanges(t *testing.T) {
	m := newManager(t)
	pos := newMetadata[Position](t, 1)

	v0 := m.Version()
	arch, err := m.PlaceEntity(10, []component.Metadata{pos}, map[component.TypeID]any{
		pos.ID(): Position{},
	})
	assert.NilError(t, err)
	assert.Assert(t, m.Version() > v0)

	v1 := m.Version()
	_, err = m.RemoveEntity(10, arch)
	assert.NilError(t, err)
	assert.Assert(t, m.Version() > v1)
}

func TestManagerSearchFrom(t *testing.T) {
	m := newManager(t)
	pos := newMetadata[Position](t, 1)
	vel := newMetadata[Velocity](t, 2)
	hp := newMetadata[Health](t, 3)

	_, err := m.GetOrCreateArchetype([]component.Metadata{pos})
	assert.NilError(t, err)
	_, err = m.GetOrCreateArchetype([]component.Metadata{pos, vel})
	assert.NilError(t, err)
	_, err = m.GetOrCreateArchetype([]component.Metadata{hp})
	assert.NilError(t, err)

	var matched int
	for it := m.SearchFrom(filter.Contains(pos), 0); it.HasNext(); {
		arch := m.Archetype(it.Next())
		assert.Assert(t, arch.Matches(filter.Contains(pos)))
		matched++
	}
	assert.Equal(t, 2, matched)

	// A scan starting past the existing archetypes sees nothing.
	it := m.SearchFrom(filter.Contains(pos), m.ArchetypeCount())
	assert.Assert(t, !it.HasNext())
}

func TestManagerReset(t *testing.T) {
	m := newManager(t)
	pos := newMetadata[Position](t, 1)

	_, err := m.PlaceEntity(10, []component.Metadata{pos}, map[component.TypeID]any{
		pos.ID(): Position{},
	})
	assert.NilError(t, err)
	assert.Equal(t, 2, m.ArchetypeCount())

	m.Reset()
	assert.Equal(t, 1, m.ArchetypeCount())
	assert.Equal(t, 0, m.EmptyArchetype().Count())
}
