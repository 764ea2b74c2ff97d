package mdp

import "fmt"

const (
	// MaxConfidence is the saturation value of the 2-bit confidence counter.
	MaxConfidence uint8 = 3
	// DependentThreshold is the confidence at and above which a load is
	// predicted to depend on its store.
	DependentThreshold uint8 = 2
	// InitialConfidence is the confidence of a freshly trained pair.
	InitialConfidence uint8 = 1
)

// PredictorEntry records a learned load/store pairing.
type PredictorEntry struct {
	Valid   bool
	LoadPC  uint64
	StorePC uint64
	// Distance is the number of window slots from the store to the
	// dependent load, observed when the entry was created.
	Distance int
	// Confidence is a 2-bit up/down counter.
	// States: 0=Strongly Independent, 1=Weakly Independent,
	//         2=Weakly Dependent, 3=Strongly Dependent
	Confidence uint8
	// LastAccess is the cycle of the most recent read or write.
	LastAccess uint64
}

// PredictsDependence returns true if the entry predicts the load must wait.
func (e *PredictorEntry) PredictsDependence() bool {
	return e.Confidence >= DependentThreshold
}

// PredictorTable is the fully associative memory-dependence prediction
// table (MDPT), keyed by (load PC, store PC) with LRU replacement.
type PredictorTable struct {
	entries []PredictorEntry
}

// NewPredictorTable creates a table with a fixed number of entries.
func NewPredictorTable(capacity int) *PredictorTable {
	if capacity <= 0 {
		panic(fmt.Sprintf("mdp: predictor table capacity must be > 0, got %d", capacity))
	}

	return &PredictorTable{
		entries: make([]PredictorEntry, capacity),
	}
}

// Capacity returns the number of entries.
func (t *PredictorTable) Capacity() int {
	return len(t.entries)
}

// Len returns the number of valid entries.
func (t *PredictorTable) Len() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].Valid {
			n++
		}
	}
	return n
}

// LookupLoad returns the first valid entry, in table order, trained on the
// given load PC. When several stores have trained the same load only that
// first entry is visible.
func (t *PredictorTable) LookupLoad(loadPC, now uint64) (*PredictorEntry, bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Valid && e.LoadPC == loadPC {
			e.LastAccess = now
			return e, true
		}
	}
	return nil, false
}

// Lookup returns the entry for an exact load/store pair.
func (t *PredictorTable) Lookup(loadPC, storePC, now uint64) (*PredictorEntry, bool) {
	i := t.find(loadPC, storePC)
	if i < 0 {
		return nil, false
	}

	e := &t.entries[i]
	e.LastAccess = now
	return e, true
}

// MatchStore returns every valid entry trained on the given store PC whose
// confidence is at least minConfidence, in table order.
func (t *PredictorTable) MatchStore(storePC uint64, minConfidence uint8, now uint64) []*PredictorEntry {
	var out []*PredictorEntry
	for i := range t.entries {
		e := &t.entries[i]
		if e.Valid && e.StorePC == storePC && e.Confidence >= minConfidence {
			e.LastAccess = now
			out = append(out, e)
		}
	}
	return out
}

// Insert places e into the table and returns the stored entry and its index.
// An existing entry for the same pair is replaced in place. Otherwise the
// first invalid entry is used, and only a full table evicts the least
// recently used entry (lowest index on ties).
func (t *PredictorTable) Insert(e PredictorEntry, now uint64) (*PredictorEntry, int) {
	e.Valid = true
	e.LastAccess = now
	if e.Confidence > MaxConfidence {
		e.Confidence = MaxConfidence
	}

	i := t.find(e.LoadPC, e.StorePC)
	if i < 0 {
		i = t.victim()
	}

	t.entries[i] = e
	return &t.entries[i], i
}

// victim returns the index of the first invalid entry, or of the least
// recently used valid entry when the table is full.
func (t *PredictorTable) victim() int {
	lru := -1
	for i := range t.entries {
		if !t.entries[i].Valid {
			return i
		}
		if lru < 0 || t.entries[i].LastAccess < t.entries[lru].LastAccess {
			lru = i
		}
	}
	return lru
}

func (t *PredictorTable) find(loadPC, storePC uint64) int {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Valid && e.LoadPC == loadPC && e.StorePC == storePC {
			return i
		}
	}
	return -1
}

// BumpUp saturates the confidence of e towards dependent.
func (t *PredictorTable) BumpUp(e *PredictorEntry, now uint64) {
	if e.Confidence < MaxConfidence {
		e.Confidence++
	}
	e.LastAccess = now
}

// BumpDown saturates the confidence of e towards independent.
func (t *PredictorTable) BumpDown(e *PredictorEntry, now uint64) {
	if e.Confidence > 0 {
		e.Confidence--
	}
	e.LastAccess = now
}

// Entries returns a copy of all entries, valid or not.
func (t *PredictorTable) Entries() []PredictorEntry {
	out := make([]PredictorEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Reset invalidates every entry.
func (t *PredictorTable) Reset() {
	for i := range t.entries {
		t.entries[i] = PredictorEntry{}
	}
}
