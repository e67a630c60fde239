package world

import (
	"github.com/rotisserie/eris"

	"github.com/quarry-engine/quarry/types/component"
)

// Validator inspects an entity and a candidate value before a component is
// attached. A non-nil error aborts the attach and leaves the entity's shape
// untouched.
type Validator func(e *Entity, value any) error

// RegisterValidator runs v whenever component c is about to be added to an
// entity. Validators run in registration order.
func (w *World) RegisterValidator(c component.Metadata, v Validator) {
	w.validators[c.ID()] = append(w.validators[c.ID()], v)
}

// Requires returns a validator that rejects the attach unless the entity
// already carries dep.
func Requires(dep component.Metadata) Validator {
	return func(e *Entity, _ any) error {
		if !e.HasComponentID(dep.ID()) {
			return eris.Errorf("requires component %q", dep.Name())
		}
		return nil
	}
}

// ConflictsWith returns a validator that rejects the attach when the entity
// already carries other.
func ConflictsWith(other component.Metadata) Validator {
	return func(e *Entity, _ any) error {
		if e.HasComponentID(other.ID()) {
			return eris.Errorf("conflicts with component %q", other.Name())
		}
		return nil
	}
}
