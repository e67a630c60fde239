// Package snapshot persists a world's entities to redis and restores them.
// Entity GUIDs survive the round trip; numeric IDs are reassigned on load.
// Each component type's JSON schema fingerprint is stored alongside the
// data so a restore fails loudly when a component's field layout changed
// since the snapshot was taken.
package snapshot

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/quarry-engine/quarry/codec"
	"github.com/quarry-engine/quarry/types/component"
	"github.com/quarry-engine/quarry/types/entity"
	"github.com/quarry-engine/quarry/world"
)

// ErrSchemaMismatch is returned by Load when a registered component's current
// schema fingerprint differs from the one stored with the snapshot.
var ErrSchemaMismatch = errors.New("component schema does not match snapshot")

// Store saves and loads world snapshots through a redis client.
type Store struct {
	client redis.Cmdable
}

// NewStore wraps a redis client. Cmdable is accepted so tests can point at a
// miniredis-backed client.
func NewStore(client redis.Cmdable) *Store {
	return &Store{client: client}
}

// entityRecord is the wire shape of one snapshotted entity. Component values
// are kept as raw JSON and decoded through each type's codec on load.
type entityRecord struct {
	ID         entity.ID         `json:"id"`
	GUID       string            `json:"guid"`
	Name       string            `json:"name,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Parent     entity.ID         `json:"parent,omitempty"`
	HasParent  bool              `json:"has_parent,omitempty"`
	Components map[string][]byte `json:"components"`
}

// Save writes every live entity and every registered component schema.
// Entities flagged for deletion are skipped; a restore should not resurrect
// them.
func (s *Store) Save(ctx context.Context, w *world.World) error {
	if err := s.client.Del(ctx, entityIDsKey()).Err(); err != nil {
		return eris.Wrap(err, "failed to clear snapshot id list")
	}

	for _, c := range w.Registry().All() {
		schema, err := c.Schema()
		if err != nil {
			return err
		}
		if err := s.client.Set(ctx, schemaKey(c.Name()), schema, 0).Err(); err != nil {
			return eris.Wrapf(err, "failed to store schema for component %q", c.Name())
		}
	}

	var ids []entity.ID
	for _, e := range w.Entities() {
		if e.IsMarkedForDeletion() {
			continue
		}
		record, err := recordFor(e)
		if err != nil {
			return err
		}
		bz, err := codec.Encode(record)
		if err != nil {
			return err
		}
		if err := s.client.Set(ctx, entityKey(e.EntityID()), bz, 0).Err(); err != nil {
			return eris.Wrapf(err, "failed to store entity %d", e.EntityID())
		}
		ids = append(ids, e.EntityID())
	}

	bz, err := codec.Encode(ids)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, entityIDsKey(), bz, 0).Err(); err != nil {
		return eris.Wrap(err, "failed to store snapshot id list")
	}
	return nil
}

// Load restores the snapshot into w and returns the number of entities
// spawned. Restore is two-pass: entities, components, and tags first, then
// parent links, since a child may be recorded before its parent. Numeric IDs
// are reassigned; parent references are remapped through the snapshot's IDs.
func (s *Store) Load(ctx context.Context, w *world.World) (int, error) {
	if err := s.verifySchemas(ctx, w); err != nil {
		return 0, err
	}

	bz, err := s.client.Get(ctx, entityIDsKey()).Bytes()
	if eris.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrap(err, "failed to read snapshot id list")
	}
	ids, err := codec.Decode[[]entity.ID](bz)
	if err != nil {
		return 0, err
	}

	restored := make(map[entity.ID]*world.Entity, len(ids))
	records := make(map[entity.ID]entityRecord, len(ids))
	for _, oldID := range ids {
		bz, err := s.client.Get(ctx, entityKey(oldID)).Bytes()
		if err != nil {
			return 0, eris.Wrapf(err, "failed to read entity %d", oldID)
		}
		record, err := codec.Decode[entityRecord](bz)
		if err != nil {
			return 0, err
		}

		guid, err := uuid.Parse(record.GUID)
		if err != nil {
			return 0, eris.Wrapf(err, "entity %d has malformed guid %q", oldID, record.GUID)
		}
		e, err := w.SpawnRestored(guid, record.Name)
		if err != nil {
			return 0, err
		}
		for name, raw := range record.Components {
			c, err := w.Registry().ByName(name)
			if err != nil {
				return 0, eris.Wrapf(err, "snapshot entity %d has unregistered component %q", oldID, name)
			}
			value, err := c.Decode(raw)
			if err != nil {
				return 0, err
			}
			if err := e.AddComponent(c, value); err != nil {
				return 0, err
			}
		}
		for _, tag := range record.Tags {
			e.AddTag(tag)
		}
		restored[oldID] = e
		records[oldID] = record
	}

	for oldID, record := range records {
		if !record.HasParent {
			continue
		}
		parent, ok := restored[record.Parent]
		if !ok {
			return 0, eris.Errorf("snapshot entity %d references missing parent %d", oldID, record.Parent)
		}
		if err := w.SetParent(restored[oldID].EntityID(), parent.EntityID()); err != nil {
			return 0, err
		}
	}
	return len(restored), nil
}

// verifySchemas checks every registered component against the fingerprints
// stored with the snapshot. Components absent from the snapshot are fine;
// a drifted fingerprint is not.
func (s *Store) verifySchemas(ctx context.Context, w *world.World) error {
	for _, c := range w.Registry().All() {
		stored, err := s.client.Get(ctx, schemaKey(c.Name())).Bytes()
		if eris.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return eris.Wrapf(err, "failed to read schema for component %q", c.Name())
		}
		current, err := c.Schema()
		if err != nil {
			return err
		}
		match, err := component.SchemaMatches(current, stored)
		if err != nil {
			return err
		}
		if !match {
			return eris.Wrapf(ErrSchemaMismatch, "component %q", c.Name())
		}
	}
	return nil
}

func recordFor(e *world.Entity) (entityRecord, error) {
	record := entityRecord{
		ID:         e.EntityID(),
		GUID:       e.GUID().String(),
		Name:       e.Name(),
		Tags:       e.Tags(),
		Components: make(map[string][]byte, len(e.ComponentTypes())),
	}
	if parent, ok := e.Parent(); ok {
		record.Parent = parent
		record.HasParent = true
	}
	for _, c := range e.ComponentTypes() {
		value, err := e.GetComponent(c)
		if err != nil {
			return entityRecord{}, err
		}
		bz, err := c.Encode(value)
		if err != nil {
			return entityRecord{}, err
		}
		record.Components[c.Name()] = bz
	}
	return record, nil
}
