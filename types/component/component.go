package component

import (
	"fmt"
	"reflect"

	"github.com/rotisserie/eris"

	"github.com/quarry-engine/quarry/codec"
)

type (
	// TypeID is the process-unique numeric identity assigned to a component
	// type when it is registered. Archetype identity is keyed on (Name, TypeID)
	// pairs, so two distinct component structs that share a display name can
	// never collapse into the same archetype.
	TypeID int

	// Metadata is the engine's handle on a user-defined component struct.
	// One Metadata value exists per registered component type; it carries the
	// type's identity, its codec, and the factory for the typed dense buffers
	// that archetypes store values in.
	Metadata interface {
		// SetID assigns the type's ID. It may only be set once per registry.
		SetID(TypeID) error
		// ID returns the registered type ID.
		ID() TypeID
		// Name returns the component's display name.
		Name() string
		// New returns the encoded bytes of the component's default value.
		New() ([]byte, error)
		// NewColumn returns an empty typed buffer for values of this component.
		NewColumn() Column
		// ValidateValue reports whether v is assignable to this component type.
		ValidateValue(v any) error
		// Schema returns a JSON schema fingerprint of the component struct,
		// used to detect field layout drift across snapshots.
		Schema() ([]byte, error)

		Encode(any) ([]byte, error)
		Decode([]byte) (any, error)
	}

	// Component is the constraint user component structs must satisfy.
	Component interface {
		// Name returns the display name of the component.
		Name() string
	}
)

// NewMetadata creates the Metadata for component type T.
func NewMetadata[T Component](opts ...Option[T]) Metadata {
	var t T
	m := &metadata[T]{
		typ:  reflect.TypeOf(t),
		name: t.Name(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type metadata[T any] struct {
	isIDSet    bool
	id         TypeID
	typ        reflect.Type
	name       string
	defaultVal any
}

func (m *metadata[T]) SetID(id TypeID) error {
	if m.isIDSet {
		// Re-registering the same component in a fresh world (common in tests)
		// is allowed as long as the assigned ID does not change.
		if id == m.id {
			return nil
		}
		return eris.Errorf("id for component %q is already set to %v, cannot change to %v", m.name, m.id, id)
	}
	m.id = id
	m.isIDSet = true
	return nil
}

func (m *metadata[T]) ID() TypeID {
	return m.id
}

func (m *metadata[T]) Name() string {
	return m.name
}

func (m *metadata[T]) String() string {
	return m.name
}

func (m *metadata[T]) New() ([]byte, error) {
	var comp T
	if m.defaultVal != nil {
		var ok bool
		comp, ok = m.defaultVal.(T)
		if !ok {
			return nil, eris.Errorf("default value %T is not a %T", m.defaultVal, comp)
		}
	}
	return codec.Encode(comp)
}

func (m *metadata[T]) NewColumn() Column {
	return &column[T]{}
}

func (m *metadata[T]) ValidateValue(v any) error {
	if _, ok := v.(T); !ok {
		return eris.Errorf("value of type %T is not assignable to component %q", v, m.name)
	}
	return nil
}

func (m *metadata[T]) Encode(v any) ([]byte, error) {
	return codec.Encode(v)
}

func (m *metadata[T]) Decode(bz []byte) (any, error) {
	return codec.Decode[T](bz)
}

func (m *metadata[T]) validateDefaultVal() {
	if !reflect.TypeOf(m.defaultVal).AssignableTo(m.typ) {
		panic(fmt.Sprintf("default value is not assignable to component type %q", m.name))
	}
}

// Option augments the creation of a component's Metadata.
type Option[T any] func(m *metadata[T])

// WithDefault sets the value encoded by Metadata.New for components that
// should not start zero-valued.
func WithDefault[T any](defaultVal T) Option[T] {
	return func(m *metadata[T]) {
		m.defaultVal = defaultVal
		m.validateDefaultVal()
	}
}
