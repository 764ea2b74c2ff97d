package mdp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mdpsim/timing/mdp"
)

var _ = Describe("SyncTable", func() {
	var table *mdp.SyncTable

	BeforeEach(func() {
		table = mdp.NewSyncTable(3)
	})

	It("should open unresolved rows without a load", func() {
		row, _, didEvict := table.Open(0x400, 0x500, 2, 7, 1)

		Expect(didEvict).To(BeFalse())
		Expect(row.Valid).To(BeTrue())
		Expect(row.Resolved).To(BeFalse())
		Expect(row.HasLoad()).To(BeFalse())
		Expect(row.LoadSlot).To(Equal(mdp.NoSlot))
		Expect(row.StoreID).To(Equal(uint64(7)))
	})

	It("should find rows waiting for a load until one is attached", func() {
		table.Open(0x400, 0x500, 2, 7, 1)

		row, found := table.Find(0x400, 0x500, 2)
		Expect(found).To(BeTrue())

		table.AttachLoad(row, 3, 8)
		Expect(row.LoadSlot).To(Equal(3))
		Expect(row.LoadID).To(Equal(uint64(8)))

		_, found = table.Find(0x400, 0x500, 2)
		Expect(found).To(BeFalse())
	})

	It("should report a load as waiting only while its row is unresolved", func() {
		row, _, _ := table.Open(0x400, 0x500, 2, 7, 1)
		Expect(table.Waiting(3, 8)).To(BeFalse())

		table.AttachLoad(row, 3, 8)
		Expect(table.Waiting(3, 8)).To(BeTrue())
		Expect(table.Waiting(3, 9)).To(BeFalse())

		table.MarkResolved(2)
		Expect(table.Waiting(3, 8)).To(BeFalse())
	})

	It("should resolve every row naming a store slot together", func() {
		table.Open(0x400, 0x500, 2, 7, 1)
		table.Open(0x404, 0x500, 2, 7, 1)
		table.Open(0x408, 0x500, 5, 9, 1)

		resolved := table.MarkResolved(2)
		Expect(resolved).To(HaveLen(2))
		for _, row := range resolved {
			Expect(row.Resolved).To(BeTrue())
		}

		Expect(table.MarkResolved(2)).To(BeEmpty())
	})

	It("should close every row naming a store slot", func() {
		table.Open(0x400, 0x500, 2, 7, 1)
		table.Open(0x404, 0x500, 2, 7, 1)
		table.Open(0x408, 0x500, 5, 9, 1)

		Expect(table.CloseByStoreSlot(2)).To(Equal(2))
		Expect(table.Len()).To(Equal(1))
		for _, row := range table.Entries() {
			if row.Valid {
				Expect(row.StoreSlot).NotTo(Equal(2))
			}
		}
	})

	Describe("overflow", func() {
		It("should evict a resolved row before an unresolved one", func() {
			table.Open(0x400, 0x500, 1, 1, 1)
			table.Open(0x404, 0x500, 2, 2, 2)
			table.Open(0x408, 0x500, 3, 3, 3)
			table.MarkResolved(2)

			_, evicted, didEvict := table.Open(0x40C, 0x500, 4, 4, 4)
			Expect(didEvict).To(BeTrue())
			Expect(evicted.StoreSlot).To(Equal(2))
		})

		It("should evict the oldest row when none is resolved", func() {
			table.Open(0x400, 0x500, 1, 1, 5)
			table.Open(0x404, 0x500, 2, 2, 3)
			table.Open(0x408, 0x500, 3, 3, 4)

			_, evicted, didEvict := table.Open(0x40C, 0x500, 4, 4, 6)
			Expect(didEvict).To(BeTrue())
			Expect(evicted.StoreSlot).To(Equal(2))
			Expect(table.Len()).To(Equal(3))
		})

		It("should reuse closed rows", func() {
			table.Open(0x400, 0x500, 1, 1, 1)
			table.Open(0x404, 0x500, 2, 2, 2)
			table.Open(0x408, 0x500, 3, 3, 3)
			table.CloseByStoreSlot(1)

			_, _, didEvict := table.Open(0x40C, 0x500, 4, 4, 4)
			Expect(didEvict).To(BeFalse())
		})
	})
})
