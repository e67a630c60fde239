package component

import (
	"github.com/invopop/jsonschema"
	"github.com/rotisserie/eris"
	"github.com/wI2L/jsondiff"
)

// SerializeSchema produces a JSON schema fingerprint of a component struct.
// Snapshots store one fingerprint per registered component so a restore can
// detect that a component's field layout drifted since the snapshot was taken.
func SerializeSchema(c Component) ([]byte, error) {
	schema := jsonschema.Reflect(c)
	bz, err := schema.MarshalJSON()
	if err != nil {
		return nil, eris.Wrapf(err, "failed to reflect schema for component %q", c.Name())
	}
	return bz, nil
}

// IsSchemaValid reports whether the live definition of component c still
// matches the stored schema fingerprint.
func IsSchemaValid(c Component, storedSchema []byte) (bool, error) {
	current, err := SerializeSchema(c)
	if err != nil {
		return false, err
	}
	return SchemaMatches(current, storedSchema)
}

// SchemaMatches diffs two schema fingerprints and reports whether they are
// structurally identical.
func SchemaMatches(current, stored []byte) (bool, error) {
	patch, err := jsondiff.CompareJSON(current, stored)
	if err != nil {
		return false, eris.Wrap(err, "failed to diff component schemas")
	}
	return len(patch) == 0, nil
}

// Schema returns the JSON schema fingerprint for component type T.
func (m *metadata[T]) Schema() ([]byte, error) {
	var t T
	bz, err := jsonschema.Reflect(t).MarshalJSON()
	if err != nil {
		return nil, eris.Wrapf(err, "failed to reflect schema for component %q", m.name)
	}
	return bz, nil
}
