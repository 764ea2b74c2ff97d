package mdp

import "fmt"

// Entry is one in-flight instruction held by the Window. Entries are plain
// values overwritten in place when their slot is reused.
type Entry struct {
	// ID is the simulation-assigned instance number. It distinguishes two
	// dynamic instances that occupied the same slot at different times.
	ID uint64
	// PC is the instruction address.
	PC uint64
	// IsLoad and IsStore are mutually exclusive. Non-memory instructions
	// have both flags cleared.
	IsLoad  bool
	IsStore bool
	// Addr is the effective address, valid only for loads and stores.
	Addr uint64
	// Committed is set once the memory ordering of the instruction is final.
	Committed bool
	// Speculative is set for loads allowed to proceed before their true
	// dependence was known.
	Speculative bool
	// InsertedAt is the cycle in which the entry entered the window.
	InsertedAt uint64
}

// IsMemory returns true if the entry is a load or a store.
func (e Entry) IsMemory() bool {
	return e.IsLoad || e.IsStore
}

// Window is the fixed-capacity ring of in-flight instructions (the IBQ).
// The newest entry sits one slot before tail; once the ring is full the
// oldest entry is the one at tail.
type Window struct {
	entries []Entry
	tail    int
	count   int
}

// NewWindow creates a window holding up to capacity instructions.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		panic(fmt.Sprintf("mdp: window capacity must be > 0, got %d", capacity))
	}

	return &Window{
		entries: make([]Entry, capacity),
	}
}

// Capacity returns the number of slots.
func (w *Window) Capacity() int {
	return len(w.entries)
}

// Count returns the number of occupied slots.
func (w *Window) Count() int {
	return w.count
}

// Full returns true when the next Push evicts the oldest entry.
func (w *Window) Full() bool {
	return w.count == len(w.entries)
}

// NextSlot returns the slot the next Push writes to.
func (w *Window) NextSlot() int {
	return w.tail
}

// Oldest returns the entry the next Push would evict. ok is false while the
// window still has free slots.
func (w *Window) Oldest() (e Entry, slot int, ok bool) {
	if !w.Full() {
		return Entry{}, 0, false
	}
	return w.entries[w.tail], w.tail, true
}

// Push inserts e at tail and advances tail. If the window was full the
// previous occupant of the slot is returned as evicted.
func (w *Window) Push(e Entry) (slot int, evicted Entry, didEvict bool) {
	slot = w.tail
	if w.Full() {
		evicted = w.entries[slot]
		didEvict = true
	} else {
		w.count++
	}

	w.entries[slot] = e
	w.tail++
	if w.tail == len(w.entries) {
		w.tail = 0
	}

	return slot, evicted, didEvict
}

// SlotAt maps an age, counted in slots before tail, to a physical slot.
// Age 1 is the newest entry. Ages outside [1, Capacity()] are a caller bug.
func (w *Window) SlotAt(age int) int {
	if age < 1 || age > len(w.entries) {
		panic(fmt.Sprintf("mdp: window age %d out of range [1, %d]", age, len(w.entries)))
	}

	slot := w.tail - age
	if slot < 0 {
		slot += len(w.entries)
	}
	return slot
}

// Age returns how many slots before tail the given slot is. It is the
// inverse of SlotAt; the slot at tail itself has age Capacity().
func (w *Window) Age(slot int) int {
	age := w.tail - slot
	if age <= 0 {
		age += len(w.entries)
	}
	return age
}

// Distance returns the number of slots from slot `from` forward to slot `to`.
func (w *Window) Distance(from, to int) int {
	d := to - from
	if d < 0 {
		d += len(w.entries)
	}
	return d
}

// At returns the entry stored in a physical slot.
func (w *Window) At(slot int) *Entry {
	return &w.entries[slot]
}

// Entries returns a copy of the occupied entries, oldest first.
func (w *Window) Entries() []Entry {
	out := make([]Entry, 0, w.count)
	for age := w.count; age >= 1; age-- {
		out = append(out, w.entries[w.SlotAt(age)])
	}
	return out
}

// Reset empties the window.
func (w *Window) Reset() {
	for i := range w.entries {
		w.entries[i] = Entry{}
	}
	w.tail = 0
	w.count = 0
}
