package lighting

import "sort"

// Table maps palette slots to ordered light IDs. It is immutable after
// construction and safe for concurrent reads.
type Table struct {
	slots map[int][]string
}

// NewTable copies slots into a new Table.
func NewTable(slots map[int][]string) *Table {
	t := &Table{slots: make(map[int][]string, len(slots))}
	for slot, ids := range slots {
		if len(ids) == 0 {
			continue
		}
		t.slots[slot] = append([]string(nil), ids...)
	}
	return t
}

// Lights returns the light IDs assigned to slot, or nil.
func (t *Table) Lights(slot int) []string {
	if t == nil {
		return nil
	}
	return t.slots[slot]
}

// Slots returns a copy of the full mapping.
func (t *Table) Slots() map[int][]string {
	out := make(map[int][]string)
	if t == nil {
		return out
	}
	for slot, ids := range t.slots {
		out[slot] = append([]string(nil), ids...)
	}
	return out
}

// SortedSlots returns the assigned slot numbers in ascending order.
func (t *Table) SortedSlots() []int {
	if t == nil {
		return nil
	}
	slots := make([]int, 0, len(t.slots))
	for slot := range t.slots {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots
}

// LightCount returns the number of assigned lights, counting a light once
// per slot it appears in.
func (t *Table) LightCount() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, ids := range t.slots {
		n += len(ids)
	}
	return n
}
