package world

import (
	"sort"

	"github.com/google/uuid"

	"github.com/quarry-engine/quarry/codec"
	"github.com/quarry-engine/quarry/types/archetype"
	"github.com/quarry-engine/quarry/types/component"
	"github.com/quarry-engine/quarry/types/entity"
)

// Entity is a handle on one live entity. Identity is the handle itself (and
// the numeric ID it carries), never the component values. An entity belongs
// to exactly one archetype at any time; in archetype mode its dense index is
// owned by the archetype because positions shift on every swap-and-pop, so
// the entity records only which archetype it is in.
type Entity struct {
	id    entity.ID
	guid  uuid.UUID
	name  string
	world *World

	comps map[component.TypeID]component.Metadata
	// compIndices records stable sparse-array slots, used only when the
	// archetype table is disabled.
	compIndices map[component.TypeID]int
	archID      archetype.ID

	tags              map[string]struct{}
	markedForDeletion bool

	parent    entity.ID
	hasParent bool
	children  []entity.ID
}

// EntityID returns the entity's numeric ID.
func (e *Entity) EntityID() entity.ID {
	return e.id
}

// GUID returns the entity's globally unique identity, stable across
// snapshot and restore.
func (e *Entity) GUID() uuid.UUID {
	return e.guid
}

// Name returns the entity's debug name.
func (e *Entity) Name() string {
	return e.name
}

// HasComponent reports whether the entity currently has the component.
func (e *Entity) HasComponent(c component.Metadata) bool {
	return e.HasComponentID(c.ID())
}

// HasComponentID reports component membership by type ID.
func (e *Entity) HasComponentID(tid component.TypeID) bool {
	_, ok := e.comps[tid]
	return ok
}

// ComponentTypes returns the entity's current component set, ordered by
// type ID.
func (e *Entity) ComponentTypes() []component.Metadata {
	out := make([]component.Metadata, 0, len(e.comps))
	for _, c := range e.comps {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// GetComponent returns the entity's current value for the component.
func (e *Entity) GetComponent(c component.Metadata) (any, error) {
	return e.world.componentFor(e, c.ID())
}

// SetComponent replaces the entity's value for a component it already has.
func (e *Entity) SetComponent(c component.Metadata, value any) error {
	return e.world.setComponent(e, c, value)
}

// AddComponent attaches a component value, relocating the entity to the
// archetype for its new shape. Registered validators run first; on
// rejection the entity's shape is unchanged.
func (e *Entity) AddComponent(c component.Metadata, value any) error {
	return e.world.addComponent(e, c, value)
}

// RemoveComponent detaches a component, relocating the entity to the
// archetype for its reduced shape.
func (e *Entity) RemoveComponent(c component.Metadata) error {
	return e.world.removeComponent(e, c)
}

// HasTag reports tag membership.
func (e *Entity) HasTag(tag string) bool {
	_, ok := e.tags[tag]
	return ok
}

// Tags returns the entity's tags in sorted order.
func (e *Entity) Tags() []string {
	out := make([]string, 0, len(e.tags))
	for tag := range e.tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// AddTag adds a tag. Tags affect query results but never archetype
// identity, so this is O(1) with no relocation.
func (e *Entity) AddTag(tag string) {
	if _, ok := e.tags[tag]; ok {
		return
	}
	e.tags[tag] = struct{}{}
	e.world.notifyQueries(e)
}

// RemoveTag removes a tag.
func (e *Entity) RemoveTag(tag string) {
	if _, ok := e.tags[tag]; !ok {
		return
	}
	delete(e.tags, tag)
	e.world.notifyQueries(e)
}

// QueueFree flags the entity for deletion. The actual release happens at
// the world's next FlushDeleted call, never synchronously, so in-flight
// iteration never observes a half-destroyed entity.
func (e *Entity) QueueFree() {
	e.markedForDeletion = true
}

// IsMarkedForDeletion reports whether QueueFree has been called.
func (e *Entity) IsMarkedForDeletion() bool {
	return e.markedForDeletion
}

// Parent returns the entity's parent ID, if any.
func (e *Entity) Parent() (entity.ID, bool) {
	return e.parent, e.hasParent
}

// Children returns the IDs parented under this entity.
func (e *Entity) Children() []entity.ID {
	return e.children
}

// serialRecord is the wire shape of one serialized entity.
type serialRecord struct {
	GUID       string         `json:"guid"`
	Name       string         `json:"name,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Components map[string]any `json:"components"`
}

// Serialize encodes the entity's identity, tags, and current component
// values. Values are read through the same component path as GetComponent,
// so a serialized entity is never observed mid-migration.
func (e *Entity) Serialize() ([]byte, error) {
	record := serialRecord{
		GUID:       e.guid.String(),
		Name:       e.name,
		Tags:       e.Tags(),
		Components: make(map[string]any, len(e.comps)),
	}
	for _, c := range e.ComponentTypes() {
		value, err := e.world.componentFor(e, c.ID())
		if err != nil {
			return nil, err
		}
		record.Components[c.Name()] = value
	}
	return codec.Encode(record)
}

// reset clears all component-index bookkeeping, tags, parent/child links,
// and the deletion flag so the wrapper object can be recycled by a pool.
func (e *Entity) reset() {
	clear(e.comps)
	clear(e.compIndices)
	clear(e.tags)
	e.archID = 0
	e.markedForDeletion = false
	e.parent = 0
	e.hasParent = false
	e.children = nil
	e.world = nil
}
