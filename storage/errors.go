package storage

import "errors"

var (
	// ErrEntityNotFound is returned when an entity ID is not a member of the
	// archetype or storage it was looked up in.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrComponentNotOnEntity is returned when a component lookup names a type
	// the entity's archetype does not store.
	ErrComponentNotOnEntity = errors.New("component not on entity")

	// ErrComponentAlreadyOnEntity is returned when adding a component the
	// entity already has.
	ErrComponentAlreadyOnEntity = errors.New("component already on entity")

	// ErrComponentValueMissing is returned by Archetype.AddEntity when the
	// supplied value map lacks one of the archetype's required component
	// types. This is a caller bug, and the archetype entry is not created.
	ErrComponentValueMissing = errors.New("required component value missing")

	// ErrStaleIndex is returned when a slot index refers past the end of the
	// dense arrays, which happens when a caller holds an index across a
	// swap-and-pop.
	ErrStaleIndex = errors.New("stale storage index")

	// ErrArchetypeNotFound is returned when no archetype has been created for
	// a component set.
	ErrArchetypeNotFound = errors.New("archetype for components not found")

	// ErrSlotNotOccupied is returned by ComponentArray reads of a freed slot.
	ErrSlotNotOccupied = errors.New("component slot is not occupied")

	// ErrDuplicateComponents is returned when a component set contains the
	// same type twice.
	ErrDuplicateComponents = errors.New("duplicate components are not allowed")
)
