package entity

import "math"

// ID uniquely identifies an entity within a World for the entity's lifetime.
// IDs are assigned sequentially and are never reused while the World is live.
type ID uint64

// BadID is returned by operations that fail to produce a valid entity.
const BadID = ID(math.MaxUint64)
