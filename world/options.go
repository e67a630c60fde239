package world

import (
	"github.com/rs/zerolog"

	"github.com/quarry-engine/quarry/log"
	"github.com/quarry-engine/quarry/statsd"
)

// Option configures a World at construction time.
type Option func(w *World, archetypesDisabled *bool)

// WithLogger replaces the default global logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *World, _ *bool) {
		w.logger = log.New(&logger)
	}
}

// WithArchetypesDisabled switches the world to sparse per-component-type
// arrays. Structural edits stop paying the O(k) move cost; archetype-matched
// iteration and its cache layer are unavailable.
func WithArchetypesDisabled() Option {
	return func(_ *World, archetypesDisabled *bool) {
		*archetypesDisabled = true
	}
}

// WithMetrics connects the statsd client. A connection failure is logged and
// metrics stay on the no-op client.
func WithMetrics(address string, tags []string) Option {
	return func(w *World, _ *bool) {
		if err := statsd.Init(address, tags); err != nil {
			w.logger.Warn().Err(err).Str("address", address).Msg("statsd init failed, metrics disabled")
		}
	}
}
