package component

import "github.com/rotisserie/eris"

// Column is a dense, homogeneous buffer of values for a single component
// type. An archetype owns one Column per component type it stores, index
// aligned with its entity array: the value for the entity at position i
// always lives at index i of every column.
//
// Values cross the interface as `any`, but each implementation stores a
// typed []T, so the erased boundary is one type assertion deep.
type Column interface {
	Len() int
	// Append adds a value at the highest index. The value must be of the
	// column's component type.
	Append(value any) error
	Get(index int) (any, error)
	Set(index int, value any) error
	// SwapRemove removes the value at index by moving the last value into
	// its slot, returning the removed value.
	SwapRemove(index int) (any, error)
	// Reset discards all values.
	Reset()
}

type column[T any] struct {
	data []T
}

func (c *column[T]) Len() int {
	return len(c.data)
}

func (c *column[T]) Append(value any) error {
	val, ok := value.(T)
	if !ok {
		return eris.Errorf("cannot append %T to a column of %T", value, val)
	}
	c.data = append(c.data, val)
	return nil
}

func (c *column[T]) Get(index int) (any, error) {
	if index < 0 || index >= len(c.data) {
		return nil, eris.Errorf("column index %d out of range [0,%d)", index, len(c.data))
	}
	return c.data[index], nil
}

func (c *column[T]) Set(index int, value any) error {
	val, ok := value.(T)
	if !ok {
		return eris.Errorf("cannot store %T in a column of %T", value, val)
	}
	if index < 0 || index >= len(c.data) {
		return eris.Errorf("column index %d out of range [0,%d)", index, len(c.data))
	}
	c.data[index] = val
	return nil
}

func (c *column[T]) SwapRemove(index int) (any, error) {
	if index < 0 || index >= len(c.data) {
		return nil, eris.Errorf("column index %d out of range [0,%d)", index, len(c.data))
	}
	removed := c.data[index]
	last := len(c.data) - 1
	c.data[index] = c.data[last]
	var zero T
	c.data[last] = zero
	c.data = c.data[:last]
	return removed, nil
}

func (c *column[T]) Reset() {
	c.data = c.data[:0]
}
