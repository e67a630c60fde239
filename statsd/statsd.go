// Package statsd wraps the statsd methods the engine emits. It hides the
// datadog dependency so a future migration only needs to edit this file.
package statsd

import (
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

var client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{}

func Client() ddstatsd.ClientInterface {
	return client
}

// Init replaces the no-op client with a real statsd client. Metrics are
// best effort; the engine never fails an operation because a stat could
// not be emitted.
func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("statsd address must not be empty")
	}
	opts := []ddstatsd.Option{
		ddstatsd.WithNamespace("quarry"),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}
	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return eris.Wrap(err, "failed to create statsd client")
	}
	client = newClient
	return nil
}

// EmitEntityMoved counts one archetype relocation. High rates here mean
// component sets are churning and shapes should be revisited.
func EmitEntityMoved() {
	if err := Client().Incr("entity.moved", nil, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit entity move stat: %v", err)
	}
}

// EmitArchetypeCreated counts one new component-set combination.
func EmitArchetypeCreated() {
	if err := Client().Incr("archetype.created", nil, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit archetype stat: %v", err)
	}
}

// EmitExecuteStat times one command buffer execution.
func EmitExecuteStat(start time.Time, status string) {
	if err := Client().Timing("commandbuffer.execute", time.Since(start), []string{status}, 1); err != nil {
		log.Logger.Warn().Msgf("failed to emit command buffer stat: %v", err)
	}
}
