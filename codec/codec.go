// Package codec is the single place where component values are converted
// to and from bytes. Everything that needs a wire form (snapshots, the
// Entity.Serialize surface, component defaults) goes through here.
package codec

import (
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// Encode marshals v to JSON bytes.
func Encode(v any) ([]byte, error) {
	bz, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to encode %T", v)
	}
	return bz, nil
}

// Decode unmarshals bz into a freshly allocated T.
func Decode[T any](bz []byte) (T, error) {
	val := new(T)
	if err := json.Unmarshal(bz, val); err != nil {
		return *val, eris.Wrapf(err, "failed to decode %T", *val)
	}
	return *val, nil
}
