package mdp

import "fmt"

// NoSlot marks a sync row whose load instance has not arrived yet.
const NoSlot = -1

// SyncEntry links one predicted-dependent load instance to the store
// instance it waits on (an MDST row).
type SyncEntry struct {
	Valid   bool
	LoadPC  uint64
	StorePC uint64

	StoreSlot int
	StoreID   uint64
	// LoadSlot is NoSlot until AttachLoad is called.
	LoadSlot int
	LoadID   uint64

	// Resolved is the full/empty flag: set once the store value is final.
	Resolved bool
	OpenedAt uint64
}

// HasLoad returns true once a load instance is attached.
func (e *SyncEntry) HasLoad() bool {
	return e.LoadSlot != NoSlot
}

// SyncTable is the memory-dependence synchronization table (MDST).
type SyncTable struct {
	entries []SyncEntry
}

// NewSyncTable creates a table with a fixed number of rows.
func NewSyncTable(capacity int) *SyncTable {
	if capacity <= 0 {
		panic(fmt.Sprintf("mdp: sync table capacity must be > 0, got %d", capacity))
	}

	return &SyncTable{
		entries: make([]SyncEntry, capacity),
	}
}

// Capacity returns the number of rows.
func (t *SyncTable) Capacity() int {
	return len(t.entries)
}

// Len returns the number of valid rows.
func (t *SyncTable) Len() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].Valid {
			n++
		}
	}
	return n
}

// Open creates an unresolved row for a store instance with no load attached.
// When the table is full a row is evicted and returned so that the caller
// can release a load still waiting on it.
func (t *SyncTable) Open(
	loadPC, storePC uint64,
	storeSlot int,
	storeID uint64,
	now uint64,
) (row *SyncEntry, evicted SyncEntry, didEvict bool) {
	i := t.victim()
	if t.entries[i].Valid {
		evicted = t.entries[i]
		didEvict = true
	}

	t.entries[i] = SyncEntry{
		Valid:     true,
		LoadPC:    loadPC,
		StorePC:   storePC,
		StoreSlot: storeSlot,
		StoreID:   storeID,
		LoadSlot:  NoSlot,
		OpenedAt:  now,
	}

	return &t.entries[i], evicted, didEvict
}

// victim prefers an invalid row, then the oldest resolved row, then the
// oldest row. Ties go to the lowest index.
func (t *SyncTable) victim() int {
	oldestResolved := -1
	oldest := -1
	for i := range t.entries {
		e := &t.entries[i]
		if !e.Valid {
			return i
		}
		if e.Resolved && (oldestResolved < 0 || e.OpenedAt < t.entries[oldestResolved].OpenedAt) {
			oldestResolved = i
		}
		if oldest < 0 || e.OpenedAt < t.entries[oldest].OpenedAt {
			oldest = i
		}
	}

	if oldestResolved >= 0 {
		return oldestResolved
	}
	return oldest
}

// Find returns a valid row for the store instance in storeSlot that is
// still waiting for its load.
func (t *SyncTable) Find(loadPC, storePC uint64, storeSlot int) (*SyncEntry, bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Valid && !e.HasLoad() &&
			e.LoadPC == loadPC && e.StorePC == storePC && e.StoreSlot == storeSlot {
			return e, true
		}
	}
	return nil, false
}

// AttachLoad records the load instance that consumes the row.
func (t *SyncTable) AttachLoad(e *SyncEntry, loadSlot int, loadID uint64) {
	e.LoadSlot = loadSlot
	e.LoadID = loadID
}

// Waiting reports whether an unresolved row holds the load instance in
// loadSlot.
func (t *SyncTable) Waiting(loadSlot int, loadID uint64) bool {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Valid && !e.Resolved && e.LoadSlot == loadSlot && e.LoadID == loadID {
			return true
		}
	}
	return false
}

// MarkResolved sets the full flag on every row naming storeSlot and returns
// the rows that changed.
func (t *SyncTable) MarkResolved(storeSlot int) []*SyncEntry {
	var out []*SyncEntry
	for i := range t.entries {
		e := &t.entries[i]
		if e.Valid && !e.Resolved && e.StoreSlot == storeSlot {
			e.Resolved = true
			out = append(out, e)
		}
	}
	return out
}

// CloseByStoreSlot invalidates every row naming storeSlot and returns how
// many rows were closed.
func (t *SyncTable) CloseByStoreSlot(storeSlot int) int {
	n := 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.Valid && e.StoreSlot == storeSlot {
			e.Valid = false
			n++
		}
	}
	return n
}

// Entries returns a copy of all rows.
func (t *SyncTable) Entries() []SyncEntry {
	out := make([]SyncEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Reset invalidates every row.
func (t *SyncTable) Reset() {
	for i := range t.entries {
		t.entries[i] = SyncEntry{}
	}
}
