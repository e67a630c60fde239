package cmdbuffer

import (
	"github.com/quarry-engine/quarry/types/component"
	"github.com/quarry-engine/quarry/types/entity"
)

// SpawnBuilder accumulates the directives of one queued spawn. Components
// and tags are applied in the order the builder methods were called.
type SpawnBuilder struct {
	payload *spawnPayload
}

// Named sets the entity's debug name.
func (s *SpawnBuilder) Named(name string) *SpawnBuilder {
	s.payload.name = name
	return s
}

// With attaches a component value to the spawned entity.
func (s *SpawnBuilder) With(c component.Metadata, value any) *SpawnBuilder {
	s.payload.directives = append(s.payload.directives, spawnDirective{
		comp: &ComponentValue{Metadata: c, Value: value},
	})
	return s
}

// Tagged adds tags to the spawned entity.
func (s *SpawnBuilder) Tagged(tags ...string) *SpawnBuilder {
	for _, tag := range tags {
		s.payload.directives = append(s.payload.directives, spawnDirective{tag: tag})
	}
	return s
}

// ChildOf parents the spawned entity under an existing entity.
func (s *SpawnBuilder) ChildOf(parent entity.ID) *SpawnBuilder {
	s.payload.parent = parent
	s.payload.hasParent = true
	return s
}

// Then registers a callback invoked with the new entity's ID after the
// spawn command has fully applied.
func (s *SpawnBuilder) Then(fn func(entity.ID)) *SpawnBuilder {
	s.payload.onCreate = fn
	return s
}

// EntityBuilder queues mutations against an existing entity. Every call
// appends one command at the buffer's current FIFO position.
type EntityBuilder struct {
	buffer *Buffer
	id     entity.ID
}

// Add queues a component addition.
func (e *EntityBuilder) Add(c component.Metadata, value any) *EntityBuilder {
	e.buffer.commands = append(e.buffer.commands, command{
		kind:   kindAddComponent,
		target: e.id,
		comp:   ComponentValue{Metadata: c, Value: value},
	})
	return e
}

// Remove queues a component removal.
func (e *EntityBuilder) Remove(c component.Metadata) *EntityBuilder {
	e.buffer.commands = append(e.buffer.commands, command{
		kind:   kindRemoveComponent,
		target: e.id,
		comp:   ComponentValue{Metadata: c},
	})
	return e
}

// Tag queues a tag addition.
func (e *EntityBuilder) Tag(tag string) *EntityBuilder {
	e.buffer.commands = append(e.buffer.commands, command{kind: kindAddTag, target: e.id, tag: tag})
	return e
}

// Untag queues a tag removal.
func (e *EntityBuilder) Untag(tag string) *EntityBuilder {
	e.buffer.commands = append(e.buffer.commands, command{kind: kindRemoveTag, target: e.id, tag: tag})
	return e
}

// SetParent queues a reparent.
func (e *EntityBuilder) SetParent(parent entity.ID) *EntityBuilder {
	e.buffer.commands = append(e.buffer.commands, command{kind: kindSetParent, target: e.id, parent: parent})
	return e
}

// Despawn queues the entity's removal.
func (e *EntityBuilder) Despawn() *EntityBuilder {
	e.buffer.Despawn(e.id)
	return e
}
