package dbsp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/materialite/pkg/dbsp"
)

type pair struct {
	Key   int
	Label string
}

var _ = Describe("Index", func() {
	var (
		idx *dbsp.Index[int, pair]
	)

	BeforeEach(func() {
		idx = dbsp.IndexBy(dbsp.Multiset[pair]{
			{Value: pair{1, "a"}, Multiplicity: 1},
			{Value: pair{2, "b"}, Multiplicity: 1},
			{Value: pair{1, "c"}, Multiplicity: 2},
		}, func(p pair) int { return p.Key })
	})

	It("should group entries by key", func() {
		Expect(idx.Len()).To(Equal(2))
		Expect(idx.Keys()).To(Equal([]int{1, 2}))
		Expect(idx.Get(1)).To(HaveLen(2))
		Expect(idx.Has(3)).To(BeFalse())
		Expect(idx.All()).To(HaveLen(3))
	})

	It("should compact away cancelled keys", func() {
		idx.Add(2, dbsp.Entry[pair]{Value: pair{2, "b"}, Multiplicity: -1})
		idx.Add(1, dbsp.Entry[pair]{Value: pair{1, "c"}, Multiplicity: -1})
		idx.Compact(2)
		Expect(idx.Has(2)).To(BeFalse())
		Expect(idx.Get(1)).To(HaveLen(3))

		idx.CompactAll()
		Expect(idx.Get(1)).To(Equal(dbsp.Multiset[pair]{
			{Value: pair{1, "a"}, Multiplicity: 1},
			{Value: pair{1, "c"}, Multiplicity: 1},
		}))
		Expect(idx.Keys()).To(Equal([]int{1}))
	})

	It("should re-add a key after compaction removed it", func() {
		idx.Add(2, dbsp.Entry[pair]{Value: pair{2, "b"}, Multiplicity: -1})
		idx.CompactAll()
		idx.Add(2, dbsp.Entry[pair]{Value: pair{2, "z"}, Multiplicity: 1})
		Expect(idx.Keys()).To(Equal([]int{1, 2}))
	})

	It("should only compact the given keys", func() {
		idx.Add(2, dbsp.Entry[pair]{Value: pair{2, "b"}, Multiplicity: -1})
		idx.Compact()
		Expect(idx.Has(2)).To(BeTrue())
		idx.Compact(1)
		Expect(idx.Has(2)).To(BeTrue())
		idx.Compact(2)
		Expect(idx.Has(2)).To(BeFalse())
	})

	It("should keep insertion order across many removals", func() {
		big := dbsp.NewIndex[int, int]()
		for k := range 200 {
			big.Add(k, dbsp.Entry[int]{Value: k, Multiplicity: 1})
		}
		want := []int{}
		for k := range 200 {
			switch {
			case k%10 == 0:
				want = append(want, k)
			case k%2 == 0:
				big.Delete(k)
			default:
				big.Set(k, nil)
			}
		}
		Expect(big.Len()).To(Equal(20))
		Expect(big.Keys()).To(Equal(want))

		// removed keys come back at the end
		big.Set(3, dbsp.FromValues(3))
		big.Add(0, dbsp.Entry[int]{Value: 0, Multiplicity: -1})
		big.Compact(0)
		rest := append(want[1:], 3)
		Expect(big.Keys()).To(Equal(rest))
		Expect(big.All().Values()).To(Equal(rest))
	})

	It("should extend with another index", func() {
		other := dbsp.IndexBy(dbsp.FromValues(pair{3, "d"}), func(p pair) int { return p.Key })
		idx.Extend(other)
		Expect(idx.Keys()).To(Equal([]int{1, 2, 3}))
		idx.Clear()
		Expect(idx.Len()).To(BeZero())
	})

	It("should join two indexes with multiplied multiplicities", func() {
		right := dbsp.IndexBy(dbsp.Multiset[string]{
			{Value: "x1", Multiplicity: 3},
			{Value: "y2", Multiplicity: -1},
			{Value: "z9", Multiplicity: 1},
		}, func(s string) int { return int(s[1] - '0') })

		res := dbsp.JoinIndex(idx, right, func(_ int, p pair, s string) string { return p.Label + s })
		Expect(res.Equal(dbsp.Multiset[string]{
			{Value: "ax1", Multiplicity: 3},
			{Value: "cx1", Multiplicity: 6},
			{Value: "by2", Multiplicity: -1},
		})).To(BeTrue())

		// the result does not depend on which side drives the iteration
		rev := dbsp.JoinIndex(right, idx, func(_ int, s string, p pair) string { return p.Label + s })
		Expect(rev.Equal(res)).To(BeTrue())
	})

	It("should treat an empty index as the identity of the join", func() {
		res := dbsp.JoinIndex(idx, dbsp.NewIndex[int, string](), func(_ int, p pair, s string) string { return s })
		Expect(res).To(BeEmpty())
	})
})
