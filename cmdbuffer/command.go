package cmdbuffer

import (
	"github.com/quarry-engine/quarry/types/component"
	"github.com/quarry-engine/quarry/types/entity"
)

// kind discriminates the closed set of command variants. Execute dispatches
// on it exhaustively; adding a variant means extending the switch there.
type kind int

const (
	kindSpawn kind = iota
	kindDespawn
	kindAddComponent
	kindRemoveComponent
	kindAddTag
	kindRemoveTag
	kindSetParent
)

func (k kind) String() string {
	switch k {
	case kindSpawn:
		return "spawn"
	case kindDespawn:
		return "despawn"
	case kindAddComponent:
		return "add_component"
	case kindRemoveComponent:
		return "remove_component"
	case kindAddTag:
		return "add_tag"
	case kindRemoveTag:
		return "remove_tag"
	case kindSetParent:
		return "set_parent"
	}
	return "unknown"
}

// ComponentValue pairs a component type with the value to store.
type ComponentValue struct {
	Metadata component.Metadata
	Value    any
}

// spawnDirective is one ordered step of a queued spawn: either a component
// to attach or a tag to add.
type spawnDirective struct {
	comp *ComponentValue
	tag  string
}

// spawnPayload accumulates everything a deferred spawn needs. The command
// holds a pointer to it so builder methods keep mutating the payload after
// the command's FIFO position is fixed.
type spawnPayload struct {
	name       string
	directives []spawnDirective
	parent     entity.ID
	hasParent  bool
	onCreate   func(entity.ID)
}

// command is one deferred structural mutation. Only the fields relevant to
// its kind are set.
type command struct {
	kind   kind
	target entity.ID
	comp   ComponentValue
	tag    string
	parent entity.ID
	spawn  *spawnPayload
}
