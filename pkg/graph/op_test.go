package graph

import (
	"cmp"
	"math/rand/v2"
	"slices"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/materialite/pkg/dbsp"
)

type pair struct {
	Key   int
	Value string
}

// randomDelta returns a delta that keeps every multiplicity in counts non-negative.
func randomDelta(rnd *rand.Rand, counts map[int]int, n, domain int) dbsp.Multiset[int] {
	ret := dbsp.Multiset[int]{}
	for range n {
		v := rnd.IntN(domain)
		m := 1
		if counts[v] > 0 && rnd.IntN(2) == 0 {
			m = -1
		}
		counts[v] += m
		ret = append(ret, dbsp.Entry[int]{Value: v, Multiplicity: m})
	}
	return ret
}

func asMultiset(counts map[int]int) dbsp.Multiset[int] {
	ret := dbsp.Multiset[int]{}
	for v, m := range counts {
		if m != 0 {
			ret = append(ret, dbsp.Entry[int]{Value: v, Multiplicity: m})
		}
	}
	return ret
}

var _ = Describe("Linear operators", func() {
	var src *root[int]

	BeforeEach(func() {
		src = newRoot[int]("src")
	})

	It("should map values", func() {
		c := collect(Map(src.stream, func(v int) int { return v % 2 }))
		src.writer.SendData(1, dbsp.FromValues(1, 2, 3))
		src.writer.Notify(1)
		Expect(c.data.Counts()).To(Equal(map[int]int{0: 1, 1: 2}))
	})

	It("should flatten values", func() {
		c := collect(FlatMap(src.stream, func(v int) []int { return []int{v, v * 10} }))
		src.writer.SendData(1, dbsp.Singleton(1, 2))
		src.writer.Notify(1)
		Expect(c.data.Counts()).To(Equal(map[int]int{1: 2, 10: 2}))
	})

	It("should filter values", func() {
		c := collect(src.stream.Filter(func(v int) bool { return v > 1 }))
		src.writer.SendData(1, dbsp.FromValues(1, 2, 3))
		src.writer.Notify(1)
		src.writer.SendData(2, dbsp.Singleton(3, -1))
		src.writer.Notify(2)
		Expect(c.data.Counts()).To(Equal(map[int]int{2: 1}))
		Expect(c.deltas).To(HaveLen(2))
	})

	It("should negate values", func() {
		c := collect(src.stream.Negate())
		src.writer.SendData(1, dbsp.FromValues(1, 2))
		src.writer.Notify(1)
		Expect(c.data.Counts()).To(Equal(map[int]int{1: -1, 2: -1}))
	})

	It("should cancel a stream with its negation", func() {
		c := collect(src.stream.Concat(src.stream.Negate()))
		src.writer.SendData(1, dbsp.FromValues(1, 2, 3))
		src.writer.Notify(1)
		Expect(c.runs).To(Equal([]Version{1}))
		Expect(c.data.IsZero()).To(BeTrue())
	})

	It("should keep the values after a cursor", func() {
		c := collect(src.stream.After(2, cmp.Compare[int]))
		src.writer.SendData(1, dbsp.FromValues(1, 2, 3, 4))
		src.writer.Notify(1)
		Expect(c.data.Counts()).To(Equal(map[int]int{3: 1, 4: 1}))
	})

	It("should run effects on committed deltas only", func() {
		seen := map[int]int{}
		c := collect(src.stream.Effect(func(v, m int) { seen[v] += m }))
		src.writer.SendData(1, dbsp.Multiset[int]{{Value: 1, Multiplicity: 1}, {Value: 1, Multiplicity: 1}, {Value: 2, Multiplicity: 1}})
		src.writer.Notify(1)
		Expect(seen).To(Equal(map[int]int{1: 2, 2: 1}))

		msg := NewMsg(CauseFullRecompute)
		c.reader.Pull(msg)
		Expect(src.pulls).To(HaveLen(1))
		src.writer.SendReply(2, dbsp.FromValues(1, 1, 2), src.pulls[0])
		src.writer.Notify(2)
		Expect(c.replies).To(HaveLen(1))
		Expect(seen).To(Equal(map[int]int{1: 2, 2: 1}))
	})

	It("should pass values through a debug operator", func() {
		c := collect(src.stream.Debug("test"))
		src.writer.SendData(1, dbsp.FromValues(1))
		src.writer.Notify(1)
		Expect(c.data.Counts()).To(Equal(map[int]int{1: 1}))
	})

	It("should rewrite pulls", func() {
		byInt := cmp.Compare[int]
		c := collect(src.stream.After(5, byInt).Filter(func(int) bool { return true }))
		c.reader.Pull(NewMsg(CausePartialRecompute, TakeExpr{Limit: 3, Comparator: byInt}))
		Expect(src.pulls).To(HaveLen(1))
		Expect(src.pulls[0].Cause).To(Equal(CausePartialRecompute))
		Expect(src.pulls[0].Hoisted).To(HaveLen(1))
		Expect(src.pulls[0].Hoisted[0]).To(BeAssignableToTypeOf(AfterExpr{}))

		m := collect(Map(src.stream, func(v int) int { return v }))
		m.reader.Pull(NewMsg(CausePartialRecompute, TakeExpr{Limit: 3}))
		Expect(src.pulls).To(HaveLen(2))
		Expect(src.pulls[1].Cause).To(Equal(CauseFullRecompute))
		Expect(src.pulls[1].Hoisted).To(BeEmpty())
	})
})

var _ = Describe("Concat", func() {
	It("should sum its inputs and merge replies", func() {
		a, b := newRoot[int]("a"), newRoot[int]("b")
		c := collect(a.stream.Concat(b.stream))
		deltas := map[*root[int]]dbsp.Multiset[int]{a: dbsp.FromValues(1, 2), b: dbsp.FromValues(2, 3)}
		commit(1, deltas, a, b)
		Expect(c.runs).To(Equal([]Version{1}))
		Expect(c.data.Counts()).To(Equal(map[int]int{1: 1, 2: 2, 3: 1}))

		msg := NewMsg(CauseFullRecompute)
		c.reader.Pull(msg)
		Expect(a.pulls).To(HaveLen(1))
		Expect(b.pulls).To(HaveLen(1))
		a.writer.SendReply(2, dbsp.FromValues(1, 2), msg)
		b.writer.SendReply(2, dbsp.FromValues(2, 3), msg)
		commit(2, nil, a, b)
		Expect(c.replies).To(HaveLen(1))
		Expect(c.replies[0].Reply.Cause).To(Equal(CauseFullRecompute))
		Expect(c.replies[0].Data.Counts()).To(Equal(map[int]int{1: 1, 2: 2, 3: 1}))
	})

	It("should wait for every input before running", func() {
		a, b := newRoot[int]("a"), newRoot[int]("b")
		c := collect(a.stream.Concat(b.stream))
		a.writer.SendData(1, dbsp.FromValues(1))
		a.writer.Notify(1)
		Expect(c.runs).To(BeEmpty())
		b.writer.Notify(1)
		Expect(c.runs).To(Equal([]Version{1}))
	})
})

var _ = Describe("Join", func() {
	var (
		left  *root[int]
		right *root[pair]
		v     Version
	)

	BeforeEach(func() {
		left, right = newRoot[int]("left"), newRoot[pair]("right")
		v = 0
	})

	step := func(da dbsp.Multiset[int], db dbsp.Multiset[pair]) {
		v++
		left.writer.SendData(v, da)
		right.writer.SendData(v, db)
		left.writer.Notify(v)
		right.writer.Notify(v)
	}

	It("should join matching values", func() {
		c := collect(Join(left.stream, right.stream, func(x int) int { return x }, func(p pair) int { return p.Key }))
		step(dbsp.FromValues(1, 1, 2, 2, 3), dbsp.FromValues(pair{2, "x"}, pair{3, "y"}))
		Expect(c.data.Counts()).To(Equal(map[JoinResult[int, pair]]int{
			{Left: 2, Right: pair{2, "x"}}: 2,
			{Left: 3, Right: pair{3, "y"}}: 1,
		}))

		step(dbsp.Singleton(2, -1), nil)
		Expect(c.data.Counts()).To(Equal(map[JoinResult[int, pair]]int{
			{Left: 2, Right: pair{2, "x"}}: 1,
			{Left: 3, Right: pair{3, "y"}}: 1,
		}))

		step(nil, dbsp.Singleton(pair{3, "y"}, -1))
		Expect(c.data.Counts()).To(Equal(map[JoinResult[int, pair]]int{
			{Left: 2, Right: pair{2, "x"}}: 1,
		}))
	})

	It("should combine matching values", func() {
		c := collect(JoinWith(left.stream, right.stream,
			func(x int) int { return x }, func(p pair) int { return p.Key },
			func(x int, p pair) string { return p.Value }))
		step(dbsp.FromValues(1, 2), dbsp.FromValues(pair{2, "x"}, pair{1, "z"}, pair{4, "w"}))
		Expect(c.data.Counts()).To(Equal(map[string]int{"x": 1, "z": 1}))
	})

	It("should match a recomputation from scratch", func() {
		rnd := rand.New(rand.NewPCG(1, 2))
		c := collect(Join(left.stream, right.stream, func(x int) int { return x % 7 }, func(p pair) int { return p.Key }))

		countsA, countsB := map[int]int{}, map[int]int{}
		for range 100 {
			da := randomDelta(rnd, countsA, 5, 30)
			raw := randomDelta(rnd, countsB, 3, 14)
			db := dbsp.Map(raw, func(x int) pair { return pair{Key: x % 7, Value: string(rune('a' + x))} })
			step(da, db)

			want := dbsp.Multiset[JoinResult[int, pair]]{}
			for a, ma := range countsA {
				for b, mb := range countsB {
					if a%7 == b%7 && ma*mb != 0 {
						want = append(want, dbsp.Entry[JoinResult[int, pair]]{
							Value:        JoinResult[int, pair]{Left: a, Right: pair{Key: b % 7, Value: string(rune('a' + b))}},
							Multiplicity: ma * mb,
						})
					}
				}
			}
			Expect(c.data.Equal(want)).To(BeTrue(), "version %d", v)
		}
	})

	It("should rebuild its state from upstream on the first pull", func() {
		c := collect(Join(left.stream, right.stream, func(x int) int { return x }, func(p pair) int { return p.Key }))

		msg := NewMsg(CausePartialRecompute, TakeExpr{Limit: 1})
		c.reader.Pull(msg)
		Expect(left.pulls).To(HaveLen(1))
		Expect(right.pulls).To(HaveLen(1))
		Expect(left.pulls[0].Cause).To(Equal(CauseFullRecompute))
		Expect(left.pulls[0].ID).To(Equal(msg.ID))

		v++
		left.writer.SendReply(v, dbsp.FromValues(1, 2), left.pulls[0])
		right.writer.SendReply(v, dbsp.FromValues(pair{2, "x"}), right.pulls[0])
		left.writer.Notify(v)
		right.writer.Notify(v)
		Expect(c.replies).To(HaveLen(1))
		Expect(c.replies[0].Reply.Cause).To(Equal(CauseFullRecompute))
		Expect(c.data.Counts()).To(Equal(map[JoinResult[int, pair]]int{{Left: 2, Right: pair{2, "x"}}: 1}))

		// primed: answered from state without going upstream
		c.reader.Pull(NewMsg(CauseFullRecompute))
		Expect(left.pulls).To(HaveLen(1))
		step(nil, nil)
		Expect(c.replies).To(HaveLen(2))
		Expect(c.data.Counts()).To(Equal(map[JoinResult[int, pair]]int{{Left: 2, Right: pair{2, "x"}}: 1}))

		// and the state keeps up with later deltas
		step(dbsp.FromValues(2), nil)
		Expect(c.data.Counts()).To(Equal(map[JoinResult[int, pair]]int{{Left: 2, Right: pair{2, "x"}}: 2}))
	})

	It("should keep the state of an input that does not reply", func() {
		j := Join(left.stream, right.stream, func(x int) int { return x }, func(p pair) int { return p.Key })
		c1 := collect(j)
		step(dbsp.FromValues(1, 2), dbsp.FromValues(pair{1, "a"}))
		Expect(c1.data.Counts()).To(Equal(map[JoinResult[int, pair]]int{{Left: 1, Right: pair{1, "a"}}: 1}))

		// a late reader pulls, only the left input answers
		c2 := collect(j)
		c2.reader.Pull(NewMsg(CauseFullRecompute))
		v++
		left.writer.SendReply(v, dbsp.FromValues(1, 2), left.pulls[0])
		left.writer.Notify(v)
		right.writer.Notify(v)
		Expect(c1.replies).To(BeEmpty())
		Expect(c2.replies).To(HaveLen(1))
		Expect(c2.data.Counts()).To(Equal(map[JoinResult[int, pair]]int{{Left: 1, Right: pair{1, "a"}}: 1}))

		step(dbsp.Singleton(1, -1), dbsp.FromValues(pair{2, "b"}))
		want := map[JoinResult[int, pair]]int{{Left: 2, Right: pair{2, "b"}}: 1}
		Expect(c1.data.Counts()).To(Equal(want))
		Expect(c2.data.Counts()).To(Equal(want))
	})
})

var _ = Describe("Reduce", func() {
	var (
		src *root[int]
		v   Version
	)

	BeforeEach(func() {
		src = newRoot[int]("src")
		v = 0
	})

	step := func(d dbsp.Multiset[int]) {
		v++
		src.writer.SendData(v, d)
		src.writer.Notify(v)
	}

	It("should count per key", func() {
		c := collect(Count(src.stream, func(x int) int { return x }))
		step(dbsp.FromValues(1, 1, 2, 2, 3))
		step(dbsp.Singleton(2, -1))
		Expect(c.data.Counts()).To(Equal(map[KeyCount[int]]int{
			{Key: 1, Count: 2}: 1,
			{Key: 2, Count: 1}: 1,
			{Key: 3, Count: 1}: 1,
		}))
		Expect(c.deltas[1].Counts()).To(Equal(map[KeyCount[int]]int{
			{Key: 2, Count: 2}: -1,
			{Key: 2, Count: 1}: 1,
		}))
	})

	It("should drop keys without entries", func() {
		c := collect(Count(src.stream, func(x int) int { return x }))
		step(dbsp.FromValues(1))
		step(dbsp.Singleton(1, -1))
		Expect(c.data.IsZero()).To(BeTrue())
	})

	It("should emit distinct values", func() {
		c := collect(src.stream.Distinct())
		step(dbsp.FromValues(1, 1, 2))
		Expect(c.data.Counts()).To(Equal(map[int]int{1: 1, 2: 1}))
		step(dbsp.Singleton(1, -1))
		Expect(c.data.Counts()).To(Equal(map[int]int{1: 1, 2: 1}))
		Expect(c.deltas).To(HaveLen(1))
		step(dbsp.Singleton(1, -1))
		Expect(c.data.Counts()).To(Equal(map[int]int{2: 1}))
	})

	It("should match a recomputation from scratch", func() {
		rnd := rand.New(rand.NewPCG(3, 4))
		sum := Reduce(src.stream, func(k int, es dbsp.Multiset[int]) dbsp.Multiset[int] {
			total := 0
			for _, e := range es {
				total += e.Value * e.Multiplicity
			}
			return dbsp.Singleton(total, 1)
		}, func(x int) int { return x % 5 })
		c := collect(sum)

		counts := map[int]int{}
		for range 100 {
			step(randomDelta(rnd, counts, 4, 25))
			sums := map[int]int{}
			present := map[int]bool{}
			for x, m := range counts {
				if m != 0 {
					sums[x%5] += x * m
					present[x%5] = true
				}
			}
			want := dbsp.Multiset[int]{}
			for k := range present {
				want = append(want, dbsp.Entry[int]{Value: sums[k], Multiplicity: 1})
			}
			Expect(c.data.Equal(want)).To(BeTrue(), "version %d", v)
		}
	})

	It("should answer pulls from its state once primed", func() {
		c := collect(Count(src.stream, func(x int) int { return x }))
		c.reader.Pull(NewMsg(CauseFullRecompute))
		Expect(src.pulls).To(HaveLen(1))
		v++
		src.writer.SendReply(v, dbsp.FromValues(1, 1, 2), src.pulls[0])
		src.writer.Notify(v)
		Expect(c.data.Counts()).To(Equal(map[KeyCount[int]]int{{Key: 1, Count: 2}: 1, {Key: 2, Count: 1}: 1}))

		c.reader.Pull(NewMsg(CauseFullRecompute))
		Expect(src.pulls).To(HaveLen(1))
		step(dbsp.FromValues(2))
		Expect(c.replies).To(HaveLen(2))
		Expect(c.data.Counts()).To(Equal(map[KeyCount[int]]int{{Key: 1, Count: 2}: 1, {Key: 2, Count: 2}: 1}))
	})
})

var _ = Describe("Late pulls", func() {
	var (
		src *root[int]
		v   Version
	)

	BeforeEach(func() {
		src = newRoot[int]("src")
		v = 0
	})

	step := func(d dbsp.Multiset[int]) {
		v++
		src.writer.SendData(v, d)
		src.writer.Notify(v)
	}

	// pull asks for the contents of s on behalf of a new reader while the upstream stays silent.
	pull := func(c *collector[int]) {
		c.reader.Pull(NewMsg(CauseFullRecompute))
		v++
		src.writer.Notify(v)
	}

	It("should keep the counts of an input that does not reply", func() {
		counts := Map(Count(src.stream, func(x int) int { return x }), func(kc KeyCount[int]) int { return kc.Count })
		c1 := collect(counts)
		step(dbsp.FromValues(1, 1))
		c2 := collect(counts)
		pull(c2)
		Expect(c2.data.Counts()).To(Equal(map[int]int{2: 1}))

		step(dbsp.Singleton(1, -1))
		Expect(c1.data.Counts()).To(Equal(map[int]int{1: 1}))
		Expect(c2.data.Counts()).To(Equal(map[int]int{1: 1}))
	})

	It("should keep the window of an input that does not reply", func() {
		top := src.stream.Take(2, cmp.Compare[int])
		c1 := collect(top)
		step(dbsp.FromValues(3, 1, 2))
		c2 := collect(top)
		pull(c2)
		Expect(c2.data.Counts()).To(Equal(map[int]int{1: 1, 2: 1}))

		step(dbsp.Singleton(1, -1))
		Expect(c1.data.Counts()).To(Equal(map[int]int{2: 1, 3: 1}))
		Expect(c2.data.Counts()).To(Equal(map[int]int{2: 1, 3: 1}))
	})

	It("should rebuild from an input that replies", func() {
		counts := Count(src.stream, func(x int) int { return x })
		c1 := collect(counts)
		step(dbsp.FromValues(1, 1))
		c2 := collect(counts)
		c2.reader.Pull(NewMsg(CauseFullRecompute))
		v++
		src.writer.SendReply(v, dbsp.FromValues(1, 1), src.pulls[0])
		src.writer.Notify(v)
		Expect(c2.data.Counts()).To(Equal(map[KeyCount[int]]int{{Key: 1, Count: 2}: 1}))

		step(dbsp.Singleton(1, -1))
		want := map[KeyCount[int]]int{{Key: 1, Count: 1}: 1}
		Expect(c1.data.Counts()).To(Equal(want))
		Expect(c2.data.Counts()).To(Equal(want))
	})
})

var _ = Describe("Take", func() {
	var (
		src *root[int]
		v   Version
	)

	BeforeEach(func() {
		src = newRoot[int]("src")
		v = 0
	})

	step := func(d dbsp.Multiset[int]) {
		v++
		src.writer.SendData(v, d)
		src.writer.Notify(v)
	}

	It("should keep the first values", func() {
		c := collect(src.stream.Take(2, cmp.Compare[int]))
		step(dbsp.FromValues(5, 3, 4))
		Expect(c.data.Counts()).To(Equal(map[int]int{3: 1, 4: 1}))
		step(dbsp.Singleton(3, -1))
		Expect(c.data.Counts()).To(Equal(map[int]int{4: 1, 5: 1}))
		step(dbsp.FromValues(1))
		Expect(c.data.Counts()).To(Equal(map[int]int{1: 1, 4: 1}))
	})

	It("should emit nothing with a zero limit", func() {
		c := collect(src.stream.Take(0, cmp.Compare[int]))
		step(dbsp.FromValues(1, 2))
		Expect(c.deltas).To(BeEmpty())
	})

	It("should match a recomputation from scratch", func() {
		rnd := rand.New(rand.NewPCG(5, 6))
		c := collect(src.stream.Take(4, cmp.Compare[int]))
		counts := map[int]int{}
		for range 100 {
			step(randomDelta(rnd, counts, 3, 20))
			all := asMultiset(counts)
			slices.SortFunc(all, func(a, b dbsp.Entry[int]) int { return cmp.Compare(a.Value, b.Value) })
			want := all[:min(4, len(all))]
			Expect(c.data.Equal(want)).To(BeTrue(), "version %d", v)
		}
	})
})

var _ = Describe("Teardown", func() {
	It("should destroy the operators feeding only a destroyed sink", func() {
		src := newRoot[int]("src")
		mapped := Map(src.stream, func(v int) int { return v })
		c1 := collect(mapped.Filter(func(int) bool { return true }))
		c2 := collect(mapped)

		c1.Destroy()
		Expect(mapped.Writer().Readers()).To(Equal(1))
		Expect(src.destroyed).To(BeFalse())

		c2.Destroy()
		Expect(mapped.Writer().Readers()).To(BeZero())
		Expect(src.writer.Readers()).To(BeZero())
		Expect(src.destroyed).To(BeTrue())
	})

	It("should tear down everything downstream of a closed writer", func() {
		a, b := newRoot[int]("a"), newRoot[int]("b")
		joined := Join(a.stream, b.stream, func(x int) int { return x }, func(x int) int { return x })
		c := collect(joined)
		Expect(a.stream.Downstream()).To(HaveLen(1))

		a.writer.Close()
		Expect(c.destroyed).To(BeTrue())
		Expect(b.writer.Readers()).To(BeZero())
		Expect(b.destroyed).To(BeTrue())
		Expect(a.destroyed).To(BeFalse())
	})
})
