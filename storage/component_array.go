package storage

import (
	"github.com/rotisserie/eris"

	"github.com/quarry-engine/quarry/types/entity"
)

// ComponentArray is the fallback storage for one component type, used when
// the archetype table is disabled. Slots are sparse and free-list backed: a
// slot's index is stable for the component's lifetime (no swap-and-pop),
// trading iteration locality for index stability.
//
// The array carries a monotonic version counter and a dirty-slot set so
// change listeners can find out what moved without rescanning everything.
type ComponentArray struct {
	slots    []any
	owners   []entity.ID
	occupied []bool
	free     []int
	count    int
	version  uint64
	dirty    map[int]struct{}
}

func NewComponentArray() *ComponentArray {
	return &ComponentArray{
		slots:    make([]any, 0, 256),
		owners:   make([]entity.ID, 0, 256),
		occupied: make([]bool, 0, 256),
		dirty:    map[int]struct{}{},
	}
}

// Insert stores value in a free slot and returns the slot index. The index
// stays valid until Remove is called for it.
func (ca *ComponentArray) Insert(owner entity.ID, value any) int {
	var index int
	if n := len(ca.free); n > 0 {
		index = ca.free[n-1]
		ca.free = ca.free[:n-1]
		ca.slots[index] = value
		ca.owners[index] = owner
		ca.occupied[index] = true
	} else {
		index = len(ca.slots)
		ca.slots = append(ca.slots, value)
		ca.owners = append(ca.owners, owner)
		ca.occupied = append(ca.occupied, true)
	}
	ca.count++
	ca.touch(index)
	return index
}

// Get returns the value stored at index.
func (ca *ComponentArray) Get(index int) (any, error) {
	if err := ca.check(index); err != nil {
		return nil, err
	}
	return ca.slots[index], nil
}

// Owner returns the entity a slot belongs to.
func (ca *ComponentArray) Owner(index int) (entity.ID, error) {
	if err := ca.check(index); err != nil {
		return entity.BadID, err
	}
	return ca.owners[index], nil
}

// Set replaces the value stored at index.
func (ca *ComponentArray) Set(index int, value any) error {
	if err := ca.check(index); err != nil {
		return err
	}
	ca.slots[index] = value
	ca.touch(index)
	return nil
}

// Remove frees the slot at index and pushes it onto the free stack.
func (ca *ComponentArray) Remove(index int) error {
	if err := ca.check(index); err != nil {
		return err
	}
	ca.slots[index] = nil
	ca.owners[index] = entity.BadID
	ca.occupied[index] = false
	ca.free = append(ca.free, index)
	ca.count--
	ca.touch(index)
	return nil
}

// Count returns the number of occupied slots.
func (ca *ComponentArray) Count() int {
	return ca.count
}

// Version returns the monotonic change counter.
func (ca *ComponentArray) Version() uint64 {
	return ca.version
}

// DirtyIndices returns the slots changed since the last ClearDirty call.
func (ca *ComponentArray) DirtyIndices() []int {
	out := make([]int, 0, len(ca.dirty))
	for i := range ca.dirty {
		out = append(out, i)
	}
	return out
}

func (ca *ComponentArray) ClearDirty() {
	clear(ca.dirty)
}

// Each visits every occupied slot in index order.
func (ca *ComponentArray) Each(fn func(index int, owner entity.ID, value any) bool) {
	for i := range ca.slots {
		if !ca.occupied[i] {
			continue
		}
		if !fn(i, ca.owners[i], ca.slots[i]) {
			return
		}
	}
}

// Reset discards all slots and change tracking.
func (ca *ComponentArray) Reset() {
	ca.slots = ca.slots[:0]
	ca.owners = ca.owners[:0]
	ca.occupied = ca.occupied[:0]
	ca.free = ca.free[:0]
	ca.count = 0
	ca.version++
	clear(ca.dirty)
}

func (ca *ComponentArray) check(index int) error {
	if index < 0 || index >= len(ca.slots) {
		return eris.Wrapf(ErrStaleIndex, "index %d out of range [0,%d)", index, len(ca.slots))
	}
	if !ca.occupied[index] {
		return eris.Wrapf(ErrSlotNotOccupied, "index %d", index)
	}
	return nil
}

func (ca *ComponentArray) touch(index int) {
	ca.version++
	ca.dirty[index] = struct{}{}
}
