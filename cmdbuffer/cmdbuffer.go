// Package cmdbuffer defers structural mutations queued during iteration and
// replays them in FIFO order at a safe point. Direct mutation while a query
// walks the same storage is unsafe; buffered mutation is deferred past the
// iteration's lifetime, which is the entire reason this package exists.
package cmdbuffer

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/quarry-engine/quarry/log"
	"github.com/quarry-engine/quarry/statsd"
	"github.com/quarry-engine/quarry/types/component"
	"github.com/quarry-engine/quarry/types/entity"
)

// Store is the live storage surface commands replay against. Every command
// goes through the same entity-mutation APIs as direct mutation, so queued
// edits benefit from the same validators and invariants; the buffer is a
// scheduling mechanism, not a bypass.
type Store interface {
	CreateEntity(name string) (entity.ID, error)
	// DespawnEntity queues the entity for deletion at the next cleanup
	// point, consistent with the deferred-deletion convention.
	DespawnEntity(id entity.ID) error
	// MarkForDeletion flags an entity without going through despawn
	// bookkeeping; used to undo spawns during rollback.
	MarkForDeletion(id entity.ID) error
	AddComponent(id entity.ID, c component.Metadata, value any) error
	RemoveComponent(id entity.ID, c component.Metadata) error
	AddTag(id entity.ID, tag string) error
	RemoveTag(id entity.ID, tag string) error
	SetParent(child, parent entity.ID) error
}

// ExecuteOptions controls batch failure behavior.
type ExecuteOptions struct {
	// RollbackOnError stops replay at the first failing command and marks
	// every entity spawned earlier in the batch for deletion. When false,
	// replay continues past failures and prior effects are kept.
	RollbackOnError bool
}

// Result reports what one Execute pass did.
type Result struct {
	Spawned         int
	Despawned       int
	ComponentsAdded int
	TagsAdded       int
	Elapsed         time.Duration
	Errors          []error
	RolledBack      bool
}

// Buffer is an ordered log of deferred structural mutations. It is consumed
// exactly once: Execute replays and clears it.
type Buffer struct {
	store    Store
	logger   log.Logger
	commands []command
}

func New(store Store, logger log.Logger) *Buffer {
	return &Buffer{
		store:  store,
		logger: logger.CreateScopeLogger("cmdbuffer"),
	}
}

// Len returns the number of queued commands.
func (b *Buffer) Len() int {
	return len(b.commands)
}

// Spawn queues an entity creation and returns a builder for its components,
// tags, parent, and post-creation callback. The command's position in the
// batch is fixed now; builder calls refine the payload in place.
func (b *Buffer) Spawn() *SpawnBuilder {
	payload := &spawnPayload{}
	b.commands = append(b.commands, command{kind: kindSpawn, spawn: payload})
	return &SpawnBuilder{payload: payload}
}

// SpawnBatch queues n spawns, invoking fn to configure each one.
func (b *Buffer) SpawnBatch(n int, fn func(i int, s *SpawnBuilder)) {
	for i := 0; i < n; i++ {
		s := b.Spawn()
		if fn != nil {
			fn(i, s)
		}
	}
}

// Entity returns a builder that queues mutations of an existing entity.
func (b *Buffer) Entity(id entity.ID) *EntityBuilder {
	return &EntityBuilder{buffer: b, id: id}
}

// Despawn queues the entity's removal.
func (b *Buffer) Despawn(id entity.ID) {
	b.commands = append(b.commands, command{kind: kindDespawn, target: id})
}

// Execute replays every queued command in insertion order against the live
// storage layers and clears the buffer. Per-command failures are collected
// into the result; only a catastrophic internal invariant break would
// propagate by panic.
func (b *Buffer) Execute(opts ExecuteOptions) Result {
	start := time.Now()
	var res Result
	var spawned []entity.ID

	for i := range b.commands {
		err := b.apply(&b.commands[i], &res, &spawned)
		if err == nil {
			continue
		}
		res.Errors = append(res.Errors, eris.Wrapf(err, "command %d (%s)", i, b.commands[i].kind))
		if opts.RollbackOnError {
			for _, id := range spawned {
				// Mark, do not hard-delete: in-flight iteration must never
				// observe a half-destroyed entity.
				if markErr := b.store.MarkForDeletion(id); markErr != nil {
					res.Errors = append(res.Errors, markErr)
				}
			}
			res.RolledBack = true
			break
		}
	}

	b.commands = b.commands[:0]
	res.Elapsed = time.Since(start)

	status := "status:ok"
	if len(res.Errors) > 0 {
		status = "status:error"
	}
	statsd.EmitExecuteStat(start, status)
	b.logger.Debug().
		Int("spawned", res.Spawned).
		Int("despawned", res.Despawned).
		Int("components_added", res.ComponentsAdded).
		Int("tags_added", res.TagsAdded).
		Int("errors", len(res.Errors)).
		Bool("rolled_back", res.RolledBack).
		Dur("elapsed", res.Elapsed).
		Msg("executed")
	return res
}

func (b *Buffer) apply(cmd *command, res *Result, spawned *[]entity.ID) error {
	switch cmd.kind {
	case kindSpawn:
		return b.applySpawn(cmd.spawn, res, spawned)
	case kindDespawn:
		if err := b.store.DespawnEntity(cmd.target); err != nil {
			return err
		}
		res.Despawned++
		return nil
	case kindAddComponent:
		if err := b.store.AddComponent(cmd.target, cmd.comp.Metadata, cmd.comp.Value); err != nil {
			return err
		}
		res.ComponentsAdded++
		return nil
	case kindRemoveComponent:
		return b.store.RemoveComponent(cmd.target, cmd.comp.Metadata)
	case kindAddTag:
		if err := b.store.AddTag(cmd.target, cmd.tag); err != nil {
			return err
		}
		res.TagsAdded++
		return nil
	case kindRemoveTag:
		return b.store.RemoveTag(cmd.target, cmd.tag)
	case kindSetParent:
		return b.store.SetParent(cmd.target, cmd.parent)
	}
	return eris.Errorf("unknown command kind %d", cmd.kind)
}

func (b *Buffer) applySpawn(payload *spawnPayload, res *Result, spawned *[]entity.ID) error {
	id, err := b.store.CreateEntity(payload.name)
	if err != nil {
		return err
	}
	*spawned = append(*spawned, id)
	res.Spawned++

	for _, d := range payload.directives {
		if d.comp != nil {
			if err := b.store.AddComponent(id, d.comp.Metadata, d.comp.Value); err != nil {
				return err
			}
			res.ComponentsAdded++
			continue
		}
		if err := b.store.AddTag(id, d.tag); err != nil {
			return err
		}
		res.TagsAdded++
	}
	if payload.hasParent {
		if err := b.store.SetParent(id, payload.parent); err != nil {
			return err
		}
	}
	if payload.onCreate != nil {
		payload.onCreate(id)
	}
	return nil
}
