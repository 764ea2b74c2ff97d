package mdp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mdpsim/timing/mdp"
)

var _ = Describe("Window", func() {
	var w *mdp.Window

	BeforeEach(func() {
		w = mdp.NewWindow(4)
	})

	It("should start empty", func() {
		Expect(w.Capacity()).To(Equal(4))
		Expect(w.Count()).To(Equal(0))
		Expect(w.Full()).To(BeFalse())

		_, _, ok := w.Oldest()
		Expect(ok).To(BeFalse())
	})

	It("should insert at tail without evicting until full", func() {
		for i := 0; i < 4; i++ {
			slot, _, didEvict := w.Push(mdp.Entry{ID: uint64(i + 1)})
			Expect(slot).To(Equal(i))
			Expect(didEvict).To(BeFalse())
		}

		Expect(w.Count()).To(Equal(4))
		Expect(w.Full()).To(BeTrue())
		Expect(w.NextSlot()).To(Equal(0))
	})

	It("should overwrite the oldest slot once full", func() {
		for i := 0; i < 4; i++ {
			w.Push(mdp.Entry{ID: uint64(i + 1)})
		}

		oldest, slot, ok := w.Oldest()
		Expect(ok).To(BeTrue())
		Expect(slot).To(Equal(0))
		Expect(oldest.ID).To(Equal(uint64(1)))

		slot, evicted, didEvict := w.Push(mdp.Entry{ID: 5})
		Expect(didEvict).To(BeTrue())
		Expect(slot).To(Equal(0))
		Expect(evicted.ID).To(Equal(uint64(1)))
		Expect(w.Count()).To(Equal(4))
	})

	Describe("SlotAt", func() {
		It("should map ages to slots with wraparound", func() {
			for i := 0; i < 6; i++ {
				w.Push(mdp.Entry{ID: uint64(i + 1)})
			}
			// Slots now hold IDs 5, 6, 3, 4 and tail is 2.
			Expect(w.SlotAt(1)).To(Equal(1))
			Expect(w.SlotAt(2)).To(Equal(0))
			Expect(w.SlotAt(3)).To(Equal(3))
			Expect(w.At(w.SlotAt(1)).ID).To(Equal(uint64(6)))
			Expect(w.At(w.SlotAt(4)).ID).To(Equal(uint64(3)))
		})

		It("should be the inverse of Age", func() {
			for i := 0; i < 7; i++ {
				w.Push(mdp.Entry{})
			}
			for age := 1; age <= 4; age++ {
				Expect(w.Age(w.SlotAt(age))).To(Equal(age))
			}
		})

		It("should panic on out-of-range ages", func() {
			Expect(func() { w.SlotAt(0) }).To(Panic())
			Expect(func() { w.SlotAt(5) }).To(Panic())
		})
	})

	It("should measure forward distances across the wrap", func() {
		Expect(w.Distance(3, 1)).To(Equal(2))
		Expect(w.Distance(1, 3)).To(Equal(2))
		Expect(w.Distance(2, 2)).To(Equal(0))
	})

	It("should list entries oldest first", func() {
		for i := 0; i < 5; i++ {
			w.Push(mdp.Entry{ID: uint64(i + 1)})
		}

		ids := []uint64{}
		for _, e := range w.Entries() {
			ids = append(ids, e.ID)
		}
		Expect(ids).To(Equal([]uint64{2, 3, 4, 5}))
	})

	It("should reset to empty", func() {
		w.Push(mdp.Entry{ID: 1, IsStore: true})
		w.Reset()

		Expect(w.Count()).To(Equal(0))
		Expect(w.NextSlot()).To(Equal(0))
		Expect(w.At(0).IsStore).To(BeFalse())
	})
})
