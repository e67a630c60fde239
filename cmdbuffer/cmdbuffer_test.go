package cmdbuffer_test

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"

	"github.com/quarry-engine/quarry/cmdbuffer"
	"github.com/quarry-engine/quarry/log"
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

// recordingStore logs every call in order and fails on demand, so tests can
// observe replay order and failure handling without a live world.
type recordingStore struct {
	calls   []string
	nextID  entity.ID
	failOn  string
	deleted []entity.ID
}

func (s *recordingStore) record(format string, args ...any) error {
	call := fmt.Sprintf(format, args...)
	s.calls = append(s.calls, call)
	if s.failOn != "" && call == s.failOn {
		return fmt.Errorf("induced failure at %s", call)
	}
	return nil
}

func (s *recordingStore) CreateEntity(name string) (entity.ID, error) {
	s.nextID++
	if err := s.record("create %s", name); err != nil {
		return entity.BadID, err
	}
	return s.nextID, nil
}

func (s *recordingStore) DespawnEntity(id entity.ID) error {
	return s.record("despawn %d", id)
}

func (s *recordingStore) MarkForDeletion(id entity.ID) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *recordingStore) AddComponent(id entity.ID, c component.Metadata, _ any) error {
	return s.record("add %s to %d", c.Name(), id)
}

func (s *recordingStore) RemoveComponent(id entity.ID, c component.Metadata) error {
	return s.record("remove %s from %d", c.Name(), id)
}

func (s *recordingStore) AddTag(id entity.ID, tag string) error {
	return s.record("tag %d %s", id, tag)
}

func (s *recordingStore) RemoveTag(id entity.ID, tag string) error {
	return s.record("untag %d %s", id, tag)
}

func (s *recordingStore) SetParent(child, parent entity.ID) error {
	return s.record("parent %d under %d", child, parent)
}

func newBuffer(t *testing.T) (*cmdbuffer.Buffer, *recordingStore) {
	t.Helper()
	store := &recordingStore{}
	nop := zerolog.Nop()
	return cmdbuffer.New(store, log.New(&nop)), store
}

func metadataFixtures(t *testing.T) (pos, vel component.Metadata) {
	t.Helper()
	pos = component.NewMetadata[Position]()
	assert.NilError(t, pos.SetID(1))
	vel = component.NewMetadata[Velocity]()
	assert.NilError(t, vel.SetID(2))
	return pos, vel
}

func TestExecuteReplaysInInsertionOrder(t *testing.T) {
	buf, store := newBuffer(t)
	pos, vel := metadataFixtures(t)

	buf.Spawn().Named("hero").With(pos, Position{X: 1}).Tagged("player")
	buf.Entity(7).Add(vel, Velocity{DX: 2})
	buf.Despawn(8)

	res := buf.Execute(cmdbuffer.ExecuteOptions{})
	assert.Equal(t, 0, len(res.Errors))
	assert.Equal(t, 1, res.Spawned)
	assert.Equal(t, 1, res.Despawned)
	assert.Equal(t, 2, res.ComponentsAdded)
	assert.Equal(t, 1, res.TagsAdded)

	assert.DeepEqual(t, []string{
		"create hero",
		"add Position to 1",
		"tag 1 player",
		"add Velocity to 7",
		"despawn 8",
	}, store.calls)
	assert.Equal(t, 0, buf.Len())
}

func TestSpawnPositionIsFixedAtCreation(t *testing.T) {
	buf, store := newBuffer(t)
	pos, _ := metadataFixtures(t)

	// The spawn's slot in the batch is where Spawn() was called, not where
	// the builder was last touched.
	s := buf.Spawn()
	buf.Entity(7).Tag("first")
	s.With(pos, Position{})

	buf.Execute(cmdbuffer.ExecuteOptions{})
	assert.DeepEqual(t, []string{
		"create ",
		"add Position to 1",
		"tag 7 first",
	}, store.calls)
}

func TestSpawnThenCallbackReceivesID(t *testing.T) {
	buf, _ := newBuffer(t)

	var got entity.ID
	buf.Spawn().Named("npc").Then(func(id entity.ID) { got = id })
	res := buf.Execute(cmdbuffer.ExecuteOptions{})

	assert.Equal(t, 0, len(res.Errors))
	assert.Equal(t, entity.ID(1), got)
}

func TestSpawnBatch(t *testing.T) {
	buf, store := newBuffer(t)

	buf.SpawnBatch(3, func(i int, s *cmdbuffer.SpawnBuilder) {
		s.Named(fmt.Sprintf("mob-%d", i))
	})
	res := buf.Execute(cmdbuffer.ExecuteOptions{})

	assert.Equal(t, 3, res.Spawned)
	assert.DeepEqual(t, []string{"create mob-0", "create mob-1", "create mob-2"}, store.calls)
}

func TestExecuteContinuesPastFailuresByDefault(t *testing.T) {
	buf, store := newBuffer(t)
	pos, vel := metadataFixtures(t)

	buf.Entity(7).Add(pos, Position{})
	buf.Entity(7).Add(vel, Velocity{})
	buf.Entity(7).Tag("alive")
	store.failOn = "add Velocity to 7"

	res := buf.Execute(cmdbuffer.ExecuteOptions{})

	// One failure, later commands still ran, earlier effects kept.
	assert.Equal(t, 1, len(res.Errors))
	assert.Assert(t, !res.RolledBack)
	assert.Equal(t, 1, res.ComponentsAdded)
	assert.Equal(t, 1, res.TagsAdded)
	assert.Equal(t, 3, len(store.calls))
}

func TestExecuteRollbackMarksSpawnedEntities(t *testing.T) {
	buf, store := newBuffer(t)
	pos, _ := metadataFixtures(t)

	buf.Spawn().Named("a")
	buf.Spawn().Named("b")
	buf.Entity(99).Add(pos, Position{})
	buf.Entity(50).Tag("never-reached")
	store.failOn = "add Position to 99"

	res := buf.Execute(cmdbuffer.ExecuteOptions{RollbackOnError: true})

	assert.Assert(t, res.RolledBack)
	assert.Equal(t, 1, len(res.Errors))
	// Both spawns from this batch are marked, and replay stopped before the
	// tag command.
	assert.DeepEqual(t, []entity.ID{1, 2}, store.deleted)
	for _, call := range store.calls {
		assert.Assert(t, call != "tag 50 never-reached")
	}
}

func TestExecuteClearsBufferEvenOnRollback(t *testing.T) {
	buf, store := newBuffer(t)
	pos, _ := metadataFixtures(t)

	buf.Entity(7).Add(pos, Position{})
	store.failOn = "add Position to 7"

	buf.Execute(cmdbuffer.ExecuteOptions{RollbackOnError: true})
	assert.Equal(t, 0, buf.Len())

	// A second execute replays nothing.
	store.calls = nil
	res := buf.Execute(cmdbuffer.ExecuteOptions{})
	assert.Equal(t, 0, len(store.calls))
	assert.Equal(t, 0, len(res.Errors))
}

func TestSpawnChildOf(t *testing.T) {
	buf, store := newBuffer(t)

	buf.Spawn().Named("child").ChildOf(42)
	buf.Execute(cmdbuffer.ExecuteOptions{})

	assert.DeepEqual(t, []string{"create child", "parent 1 under 42"}, store.calls)
}
