package log

import (
	"github.com/rs/zerolog"

	"github.com/quarry-engine/quarry/types/archetype"
	"github.com/quarry-engine/quarry/types/component"
	"github.com/quarry-engine/quarry/types/entity"
)

// Logger wraps a zerolog.Logger with helpers for emitting structured
// entity, component, and archetype events.
type Logger struct {
	*zerolog.Logger
}

func New(logger *zerolog.Logger) Logger {
	return Logger{logger}
}

func (l Logger) componentArray(comps []component.Metadata) *zerolog.Array {
	arr := zerolog.Arr()
	for _, c := range comps {
		arr = arr.Dict(zerolog.Dict().
			Int("component_id", int(c.ID())).
			Str("component_name", c.Name()))
	}
	return arr
}

// LogEntity emits an event describing an entity's current archetype and
// component set.
func (l Logger) LogEntity(level zerolog.Level, id entity.ID, archID archetype.ID, comps []component.Metadata) {
	l.WithLevel(level).
		Uint64("entity_id", uint64(id)).
		Int("archetype_id", int(archID)).
		Int("total_components", len(comps)).
		Array("components", l.componentArray(comps)).
		Send()
}

// LogArchetype emits an event describing a newly created archetype.
func (l Logger) LogArchetype(level zerolog.Level, archID archetype.ID, comps []component.Metadata) {
	l.WithLevel(level).
		Int("archetype_id", int(archID)).
		Array("components", l.componentArray(comps)).
		Msg("archetype created")
}

// CreateScopeLogger returns a sub-logger carrying the entry {"scope": name}.
// Systems and command buffers use it so their events are attributable.
func (l Logger) CreateScopeLogger(name string) Logger {
	sub := l.Logger.With().Str("scope", name).Logger()
	return Logger{&sub}
}
