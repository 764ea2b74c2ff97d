// Package mdp models a memory-dependence predictor at cycle level.
//
// The Engine is fed one dynamic instruction per call. Each call advances the
// simulated cycle, resolves the store that has aged StoreResolveLatency
// cycles, checks the loads that depended or speculated on it, trains the
// prediction table, and classifies the incoming instruction.
package mdp

import (
	"github.com/go-logr/logr"
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets the logger used for table events. Events are logged at
// verbosity 1.
func WithLogger(log logr.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// Engine is the resolution engine. It owns the window and both tables for
// the lifetime of one simulation and is not safe for concurrent use.
type Engine struct {
	config Config

	window    *Window
	predictor *PredictorTable
	sync      *SyncTable

	log logr.Logger

	cycle             uint64
	lastID            uint64
	uncommittedStores int

	report Report
}

// NewEngine creates an engine with empty tables.
func NewEngine(config Config, opts ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config:    config,
		window:    NewWindow(config.WindowSize),
		predictor: NewPredictorTable(config.PredictorSize),
		sync:      NewSyncTable(config.SyncSize),
		log:       logr.Discard(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Cycle returns the current simulated cycle.
func (e *Engine) Cycle() uint64 {
	return e.cycle
}

// Window returns the instruction window.
func (e *Engine) Window() *Window {
	return e.window
}

// Predictor returns the prediction table.
func (e *Engine) Predictor() *PredictorTable {
	return e.predictor
}

// SyncTable returns the synchronization table.
func (e *Engine) SyncTable() *SyncTable {
	return e.sync
}

// OnInstruction simulates one cycle in which the given instruction enters
// the window. An instruction flagged as both load and store is treated as
// a store.
func (e *Engine) OnInstruction(pc uint64, isLoad, isStore bool, addr uint64) {
	e.cycle++
	e.report.Instructions++

	if isLoad && isStore {
		isLoad = false
	}

	e.resolveStore()

	// The previous occupant of the slot must release its sync rows before
	// the incoming store opens rows naming the same slot.
	e.evictOldest()

	e.lastID++
	entry := Entry{
		ID:         e.lastID,
		PC:         pc,
		IsLoad:     isLoad,
		IsStore:    isStore,
		InsertedAt: e.cycle,
		Committed:  true,
	}
	if entry.IsMemory() {
		entry.Addr = addr
	}

	switch {
	case isLoad:
		e.classifyLoad(&entry)
	case isStore:
		e.classifyStore(&entry)
	}

	e.window.Push(entry)
}

// Finalize returns the accumulated counters. It does not change state, so
// repeated calls return identical reports.
func (e *Engine) Finalize() Report {
	return e.report
}

// Reset clears all tables, the window and the counters.
func (e *Engine) Reset() {
	e.window.Reset()
	e.predictor.Reset()
	e.sync.Reset()
	e.cycle = 0
	e.lastID = 0
	e.uncommittedStores = 0
	e.report = Report{}
}

// resolveStore commits the store that entered the window
// StoreResolveLatency cycles ago and settles every load tied to it.
func (e *Engine) resolveStore() {
	latency := e.config.StoreResolveLatency
	if e.window.Count() < latency {
		return
	}

	storeSlot := e.window.SlotAt(latency)
	store := e.window.At(storeSlot)
	if !store.IsStore || store.Committed {
		return
	}

	store.Committed = true
	e.uncommittedStores--

	for _, row := range e.sync.MarkResolved(storeSlot) {
		e.log.V(1).Info("sync row resolved",
			"cycle", e.cycle, "loadPC", row.LoadPC, "storePC", row.StorePC,
			"loadSlot", row.LoadSlot, "storeSlot", row.StoreSlot)

		if row.StoreID != store.ID || !row.HasLoad() {
			continue
		}

		load := e.window.At(row.LoadSlot)
		if !load.IsLoad || load.ID != row.LoadID {
			continue
		}

		e.checkDependence(store, storeSlot, load, row.LoadSlot)
	}

	e.scanUnresolvedLoads(store, storeSlot)
}

// checkDependence compares a resolved store with a load that was tied to it
// through a sync row and trains the pair.
func (e *Engine) checkDependence(store *Entry, storeSlot int, load *Entry, loadSlot int) {
	// A load settled earlier keeps its outcome.
	if load.Committed && !load.Speculative {
		return
	}

	pe, found := e.predictor.Lookup(load.PC, store.PC, e.cycle)

	if load.Addr == store.Addr {
		if found {
			e.predictor.BumpUp(pe, e.cycle)
		} else {
			pe = e.train(load.PC, store.PC, e.window.Distance(storeSlot, loadSlot))
		}
		e.logPrediction("true dependency", pe)

		if load.Speculative {
			e.report.Mispredictions++
			e.report.MisSpeculations++
			e.replay(load)
			return
		}

		load.Committed = true
		e.report.LoadBufferTime += e.residency(load)
		return
	}

	if found {
		e.predictor.BumpDown(pe, e.cycle)
		e.logPrediction("false dependency", pe)
	}

	if load.Speculative {
		load.Speculative = false
		load.Committed = true
		return
	}

	e.report.Mispredictions++
	e.report.FalseDependencies++
	load.Committed = true
	e.report.LoadBufferTime += e.residency(load)
}

// scanUnresolvedLoads walks the loads younger than the resolving store and
// catches speculative loads that aliased it without any sync row. Loads
// still waiting on a row are settled when that row's store resolves.
func (e *Engine) scanUnresolvedLoads(store *Entry, storeSlot int) {
	for age := 1; age <= e.config.StoreResolveLatency; age++ {
		slot := e.window.SlotAt(age)
		load := e.window.At(slot)
		if !load.IsLoad || !load.Speculative || load.Addr != store.Addr {
			continue
		}
		if e.sync.Waiting(slot, load.ID) {
			continue
		}

		e.report.MisSpeculations++
		e.replay(load)

		if pe, found := e.predictor.Lookup(load.PC, store.PC, e.cycle); found {
			e.predictor.BumpUp(pe, e.cycle)
			e.logPrediction("uncaught conflict", pe)
			continue
		}

		e.train(load.PC, store.PC, e.window.Distance(storeSlot, slot))
	}
}

// residency returns the cycles a load has spent in the window so far.
func (e *Engine) residency(load *Entry) uint64 {
	return e.cycle - load.InsertedAt
}

// replay sends a mis-speculated load back through the buffer.
func (e *Engine) replay(load *Entry) {
	load.Speculative = false
	load.Committed = true
	e.report.LoadBufferTime++
}

// train creates a predictor entry for a newly observed pair.
func (e *Engine) train(loadPC, storePC uint64, distance int) *PredictorEntry {
	pe, index := e.predictor.Insert(PredictorEntry{
		LoadPC:     loadPC,
		StorePC:    storePC,
		Distance:   distance,
		Confidence: InitialConfidence,
	}, e.cycle)

	e.log.V(1).Info("predictor entry created",
		"cycle", e.cycle, "index", index, "loadPC", loadPC, "storePC", storePC,
		"distance", distance)

	return pe
}

func (e *Engine) logPrediction(reason string, pe *PredictorEntry) {
	e.log.V(1).Info("predictor entry updated",
		"cycle", e.cycle, "reason", reason, "loadPC", pe.LoadPC, "storePC", pe.StorePC,
		"distance", pe.Distance, "confidence", pe.Confidence)
}

// evictOldest retires the entry the next push overwrites.
func (e *Engine) evictOldest() {
	old, slot, ok := e.window.Oldest()
	if !ok {
		return
	}

	switch {
	case old.IsStore:
		closed := e.sync.CloseByStoreSlot(slot)
		if !old.Committed {
			e.uncommittedStores--
		}
		if closed > 0 {
			e.log.V(1).Info("sync rows closed", "cycle", e.cycle, "storeSlot", slot, "rows", closed)
		}
	case old.IsLoad && !old.Committed:
		e.report.LoadBufferTime += e.residency(&old)
	}
}

// classifyLoad decides whether the incoming load waits, speculates or
// commits at once.
func (e *Engine) classifyLoad(entry *Entry) {
	e.report.Loads++

	if pe, found := e.predictor.LookupLoad(entry.PC, e.cycle); found {
		if e.predictFromHistory(entry, pe) {
			return
		}
	}

	entry.Committed = true
	e.report.LoadBufferTime++
	if e.uncommittedStores > 0 {
		entry.Speculative = true
		e.report.Speculations++
	}
}

// predictFromHistory ties the load to the store instance its predictor
// entry points at. It returns false if that store is no longer in flight in
// the window, leaving the load to the no-history policy.
func (e *Engine) predictFromHistory(entry *Entry, pe *PredictorEntry) bool {
	distance := pe.Distance
	if distance < 1 || distance >= e.window.Capacity() || distance > e.window.Count() {
		return false
	}

	storeSlot := e.window.SlotAt(distance)
	store := e.window.At(storeSlot)
	if !store.IsStore || store.PC != pe.StorePC {
		return false
	}

	if store.Committed {
		entry.Committed = true
		e.report.LoadBufferTime++
		return true
	}

	row, found := e.sync.Find(pe.LoadPC, pe.StorePC, storeSlot)
	if !found {
		row = e.openSync(pe.LoadPC, pe.StorePC, storeSlot, store.ID)
	}
	e.sync.AttachLoad(row, e.window.NextSlot(), entry.ID)

	e.report.Predictions++

	if pe.PredictsDependence() {
		entry.Committed = false
		entry.Speculative = false
		return true
	}

	entry.Committed = true
	entry.Speculative = true
	e.report.Speculations++
	e.report.LoadBufferTime++
	return true
}

// classifyStore opens a sync row for every load predicted to depend on the
// incoming store.
func (e *Engine) classifyStore(entry *Entry) {
	e.report.Stores++
	e.uncommittedStores++
	entry.Committed = false

	slot := e.window.NextSlot()
	for _, pe := range e.predictor.MatchStore(entry.PC, DependentThreshold, e.cycle) {
		e.openSync(pe.LoadPC, entry.PC, slot, entry.ID)
	}
}

// openSync opens a sync row. A load stranded by the eviction of its row is
// released, since no store will ever resolve it.
func (e *Engine) openSync(loadPC, storePC uint64, storeSlot int, storeID uint64) *SyncEntry {
	row, evicted, didEvict := e.sync.Open(loadPC, storePC, storeSlot, storeID, e.cycle)

	e.log.V(1).Info("sync row opened",
		"cycle", e.cycle, "loadPC", loadPC, "storePC", storePC, "storeSlot", storeSlot)

	if !didEvict || evicted.Resolved || !evicted.HasLoad() {
		return row
	}

	load := e.window.At(evicted.LoadSlot)
	if load.IsLoad && load.ID == evicted.LoadID && !load.Committed {
		load.Committed = true
		e.report.LoadBufferTime += e.residency(load)
	}

	return row
}
