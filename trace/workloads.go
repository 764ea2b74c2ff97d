package trace

import (
	"fmt"
	"math/rand/v2"
)

// Workload defines a synthetic instruction stream.
type Workload struct {
	// Name identifies the workload.
	Name string

	// Description explains what dependence behavior the workload exercises.
	Description string

	// Generate produces length events. Generators are deterministic for a
	// given seed.
	Generate func(seed uint64, length int) []Event
}

// Source returns a fresh source over a generated stream.
func (w Workload) Source(seed uint64, length int) Source {
	return NewSliceSource(w.Generate(seed, length))
}

// Workloads returns the standard set of synthetic workloads.
func Workloads() []Workload {
	return []Workload{
		storeLoadPair(),
		independentStreams(),
		aliasingArray(),
		falseDependency(),
		mixedRandom(),
	}
}

// GetWorkload looks a workload up by name.
func GetWorkload(name string) (Workload, error) {
	for _, w := range Workloads() {
		if w.Name == name {
			return w, nil
		}
	}
	return Workload{}, fmt.Errorf("unknown workload %q", name)
}

// emitter accumulates events up to a fixed length.
type emitter struct {
	events []Event
	length int
}

func newEmitter(length int) *emitter {
	return &emitter{events: make([]Event, 0, length), length: length}
}

func (e *emitter) done() bool {
	return len(e.events) >= e.length
}

func (e *emitter) emit(ev Event) {
	if !e.done() {
		e.events = append(e.events, ev)
	}
}

func (e *emitter) load(pc, addr uint64)  { e.emit(Event{PC: pc, Kind: KindLoad, Addr: addr}) }
func (e *emitter) store(pc, addr uint64) { e.emit(Event{PC: pc, Kind: KindStore, Addr: addr}) }

func (e *emitter) alu(pc uint64, n int) {
	for i := 0; i < n; i++ {
		e.emit(Event{PC: pc + uint64(i)*4, Kind: KindOther})
	}
}

// 1. Store/Load Pair - a spill and reload through the same stack slot
func storeLoadPair() Workload {
	return Workload{
		Name:        "store_load_pair",
		Description: "Spill to a stack slot and reload it three instructions later - always dependent",
		Generate: func(seed uint64, length int) []Event {
			e := newEmitter(length)
			const slot = 0x7fff0010
			for !e.done() {
				e.store(0x1000, slot)
				e.alu(0x1004, 3)
				e.load(0x1010, slot)
				e.alu(0x1014, 2)
			}
			return e.events
		},
	}
}

// 2. Independent Streams - copy loop between disjoint arrays
func independentStreams() Workload {
	return Workload{
		Name:        "independent_streams",
		Description: "b[i] = a[i] over disjoint arrays - loads never alias earlier stores",
		Generate: func(seed uint64, length int) []Event {
			e := newEmitter(length)
			const a, b = 0x10000, 0x20000
			for i := uint64(0); !e.done(); i++ {
				e.load(0x2000, a+i*8)
				e.alu(0x2004, 1)
				e.store(0x2008, b+i*8)
				e.alu(0x200c, 2)
			}
			return e.events
		},
	}
}

// 3. Aliasing Array - loop-carried dependence at a fixed distance
func aliasingArray() Workload {
	return Workload{
		Name:        "aliasing_array",
		Description: "a[i] = a[i-1] + 1 - each load reads the store of the previous iteration",
		Generate: func(seed uint64, length int) []Event {
			e := newEmitter(length)
			const a = 0x30000
			for i := uint64(1); !e.done(); i++ {
				e.load(0x3000, a+(i-1)*8)
				e.alu(0x3004, 1)
				e.store(0x3008, a+i*8)
				e.alu(0x300c, 2)
			}
			return e.events
		},
	}
}

// 4. False Dependency - a pair that aliases in phases
func falseDependency() Workload {
	return Workload{
		Name:        "false_dependency",
		Description: "Pointer-chasing store/load pair that aliases for 32 iterations, then stops for 32",
		Generate: func(seed uint64, length int) []Event {
			e := newEmitter(length)
			const p, q = 0x40000, 0x48000
			for i := 0; !e.done(); i++ {
				loadAddr := uint64(p)
				if (i/32)%2 == 1 {
					loadAddr = q
				}
				e.store(0x4000, p)
				e.alu(0x4004, 2)
				e.load(0x400c, loadAddr)
				e.alu(0x4010, 3)
			}
			return e.events
		},
	}
}

// 5. Mixed Random - loads and stores over a small address pool
func mixedRandom() Workload {
	return Workload{
		Name:        "mixed_random",
		Description: "Random mix of 30% loads, 20% stores and ALU ops over 16 PCs and 8 addresses",
		Generate: func(seed uint64, length int) []Event {
			e := newEmitter(length)
			rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
			for !e.done() {
				pc := 0x5000 + uint64(rng.IntN(16))*4
				addr := 0x50000 + uint64(rng.IntN(8))*8
				switch r := rng.IntN(10); {
				case r < 3:
					e.load(pc, addr)
				case r < 5:
					e.store(pc, addr)
				default:
					e.emit(Event{PC: pc, Kind: KindOther})
				}
			}
			return e.events
		},
	}
}
