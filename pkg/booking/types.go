// Package booking discovers bookable rooms, resolves slot availability into
// an ordered in-memory index, and executes the two-phase reservation
// transaction against the booking application.
package booking

import "fmt"

// Resource is a bookable room. Identity fields are immutable for the
// duration of a run and sourced once from the directory.
type Resource struct {
	ID     string `json:"RSRC_ID"`
	TypeID string `json:"RSRC_TYP_ID"`
	Name   string `json:"RSRC_NAME"`
}

// Slot is one bookable time window for a resource. The ID is
// server-assigned and opaque.
type Slot struct {
	ID             string
	TimeRange      string
	ResourceID     string
	ResourceTypeID string
}

// StartTime returns the start of the slot's HH:MM-HH:MM range.
func (s Slot) StartTime() string {
	for i := 0; i < len(s.TimeRange); i++ {
		if s.TimeRange[i] == '-' {
			return s.TimeRange[:i]
		}
	}
	return s.TimeRange
}

// Window is the date and time span an availability query covers.
type Window struct {
	Date      string
	StartTime string
	EndTime   string
}

// SlotIndex is a best-effort snapshot of available slots per room name,
// rebuilt on every query. Slot order within a room follows the server's
// response exactly; positional selection depends on it. The snapshot is
// never assumed consistent with server state beyond the moment of the
// query.
type SlotIndex struct {
	order []string
	slots map[string][]Slot
}

// NewSlotIndex returns an empty index.
func NewSlotIndex() *SlotIndex {
	return &SlotIndex{slots: make(map[string][]Slot)}
}

// Add appends a slot to a room's list, preserving insertion order.
func (si *SlotIndex) Add(room string, slot Slot) {
	if _, ok := si.slots[room]; !ok {
		si.order = append(si.order, room)
	}
	si.slots[room] = append(si.slots[room], slot)
}

// Slots returns a room's slots in the order they were added.
func (si *SlotIndex) Slots(room string) []Slot {
	return si.slots[room]
}

// Rooms returns room names in first-seen order.
func (si *SlotIndex) Rooms() []string {
	return si.order
}

// Len returns the number of rooms with at least one slot.
func (si *SlotIndex) Len() int {
	return len(si.order)
}

// String summarizes the index for logging.
func (si *SlotIndex) String() string {
	total := 0
	for _, slots := range si.slots {
		total += len(slots)
	}
	return fmt.Sprintf("%d rooms, %d slots", len(si.order), total)
}
