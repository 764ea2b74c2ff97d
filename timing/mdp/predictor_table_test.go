package mdp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mdpsim/timing/mdp"
)

var _ = Describe("PredictorTable", func() {
	var table *mdp.PredictorTable

	BeforeEach(func() {
		table = mdp.NewPredictorTable(4)
	})

	pair := func(loadPC, storePC uint64) mdp.PredictorEntry {
		return mdp.PredictorEntry{
			LoadPC:     loadPC,
			StorePC:    storePC,
			Distance:   1,
			Confidence: mdp.InitialConfidence,
		}
	}

	Describe("Lookup", func() {
		It("should miss on an empty table", func() {
			_, found := table.LookupLoad(0x400, 1)
			Expect(found).To(BeFalse())

			_, found = table.Lookup(0x400, 0x500, 1)
			Expect(found).To(BeFalse())
		})

		It("should find an exact pair and touch it", func() {
			table.Insert(pair(0x400, 0x500), 1)

			e, found := table.Lookup(0x400, 0x500, 7)
			Expect(found).To(BeTrue())
			Expect(e.LastAccess).To(Equal(uint64(7)))

			_, found = table.Lookup(0x400, 0x504, 7)
			Expect(found).To(BeFalse())
		})

		It("should return the first entry trained on a load PC", func() {
			table.Insert(pair(0x400, 0x500), 1)
			table.Insert(pair(0x400, 0x600), 2)

			e, found := table.LookupLoad(0x400, 3)
			Expect(found).To(BeTrue())
			Expect(e.StorePC).To(Equal(uint64(0x500)))
		})

		It("should match stores above a confidence", func() {
			weak := pair(0x400, 0x500)
			strong := pair(0x404, 0x500)
			strong.Confidence = 2
			table.Insert(weak, 1)
			table.Insert(strong, 1)

			matches := table.MatchStore(0x500, mdp.DependentThreshold, 2)
			Expect(matches).To(HaveLen(1))
			Expect(matches[0].LoadPC).To(Equal(uint64(0x404)))

			Expect(table.MatchStore(0x500, 0, 2)).To(HaveLen(2))
		})
	})

	Describe("Insert", func() {
		It("should keep at most one entry per pair", func() {
			table.Insert(pair(0x400, 0x500), 1)
			updated := pair(0x400, 0x500)
			updated.Distance = 3
			e, _ := table.Insert(updated, 2)

			Expect(table.Len()).To(Equal(1))
			Expect(e.Distance).To(Equal(3))
		})

		It("should prefer an invalid slot over evicting", func() {
			for i := uint64(0); i < 3; i++ {
				table.Insert(pair(0x400+i*4, 0x500), i+1)
			}

			_, index := table.Insert(pair(0x800, 0x900), 10)
			Expect(index).To(Equal(3))
			Expect(table.Len()).To(Equal(4))

			for i := uint64(0); i < 3; i++ {
				_, found := table.Lookup(0x400+i*4, 0x500, 11)
				Expect(found).To(BeTrue())
			}
		})

		It("should evict the least recently used entry when full", func() {
			accesses := []uint64{5, 2, 9, 4}
			for i, at := range accesses {
				table.Insert(pair(0x400+uint64(i)*4, 0x500), at)
			}

			_, index := table.Insert(pair(0x800, 0x900), 20)
			Expect(index).To(Equal(1))

			_, found := table.Lookup(0x404, 0x500, 21)
			Expect(found).To(BeFalse())
			Expect(table.Len()).To(Equal(4))
		})

		It("should break LRU ties on the lowest index", func() {
			for i := uint64(0); i < 4; i++ {
				table.Insert(pair(0x400+i*4, 0x500), 3)
			}

			_, index := table.Insert(pair(0x800, 0x900), 4)
			Expect(index).To(Equal(0))
		})

		It("should treat a lookup as a use", func() {
			for i := uint64(0); i < 4; i++ {
				table.Insert(pair(0x400+i*4, 0x500), i+1)
			}
			table.LookupLoad(0x400, 10)

			_, index := table.Insert(pair(0x800, 0x900), 11)
			Expect(index).To(Equal(1))
		})
	})

	Describe("2-bit saturating counter", func() {
		It("should start at weakly independent", func() {
			e, _ := table.Insert(pair(0x400, 0x500), 1)
			Expect(e.Confidence).To(Equal(uint8(1)))
			Expect(e.PredictsDependence()).To(BeFalse())
		})

		It("should predict dependence from 2 upwards", func() {
			e, _ := table.Insert(pair(0x400, 0x500), 1)
			table.BumpUp(e, 2)
			Expect(e.PredictsDependence()).To(BeTrue())
			Expect(e.LastAccess).To(Equal(uint64(2)))
		})

		It("should stay within [0, 3] for any bump sequence", func() {
			e, _ := table.Insert(pair(0x400, 0x500), 1)
			ops := "uuuuuudddddddduduuuddduuuuuuudd"
			for i, op := range ops {
				if op == 'u' {
					table.BumpUp(e, uint64(i))
				} else {
					table.BumpDown(e, uint64(i))
				}
				Expect(e.Confidence).To(BeNumerically("<=", mdp.MaxConfidence))
			}
		})

		It("should saturate at both ends", func() {
			e, _ := table.Insert(pair(0x400, 0x500), 1)
			for i := 0; i < 5; i++ {
				table.BumpUp(e, 2)
			}
			Expect(e.Confidence).To(Equal(mdp.MaxConfidence))

			for i := 0; i < 5; i++ {
				table.BumpDown(e, 3)
			}
			Expect(e.Confidence).To(Equal(uint8(0)))
		})

		It("should clamp an out-of-range inserted confidence", func() {
			p := pair(0x400, 0x500)
			p.Confidence = 9
			e, _ := table.Insert(p, 1)
			Expect(e.Confidence).To(Equal(mdp.MaxConfidence))
		})
	})

	It("should reset all entries", func() {
		table.Insert(pair(0x400, 0x500), 1)
		table.Reset()
		Expect(table.Len()).To(Equal(0))
	})
})
