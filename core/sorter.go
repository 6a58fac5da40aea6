package core

// Cmp is the interface for a bid comparator.
type Cmp interface {
	// Cmp returns an arbitrary number with the following semantics:
	// negative: i ranks ahead of j
	// zero: i and j are considered equal
	// positive: j ranks ahead of i
	Cmp(i, j Bid) int
}

// CmpFn is a helper which turns a function into a Cmp.
type CmpFn func(i, j Bid) int

// Cmp calls the wrapped function.
func (f CmpFn) Cmp(i, j Bid) int {
	return f(i, j)
}

type ordered struct {
	cmps []Cmp
}

// Ordered executes each comparator in order: if the first comparator judges
// the two bids equal, it continues to the next, and so on. Two bids are equal
// only when all comparators are exhausted.
func Ordered(cmps ...Cmp) Cmp {
	return ordered{cmps}
}

func (c ordered) Cmp(i, j Bid) int {
	for _, cmp := range c.cmps {
		if r := cmp.Cmp(i, j); r != 0 {
			return r
		}
	}
	return 0
}

// HigherPrice returns a comparator which prefers the higher-priced bid.
func HigherPrice() Cmp {
	return CmpFn(func(i, j Bid) int {
		return j.Price.Cmp(i.Price)
	})
}

// LowerBidID returns a comparator which prefers the lower bid id. Bid ids
// are assigned monotonically at admission, so the earlier-admitted bid wins.
func LowerBidID() Cmp {
	return CmpFn(func(i, j Bid) int {
		switch {
		case i.BidID < j.BidID:
			return -1
		case i.BidID > j.BidID:
			return 1
		default:
			return 0
		}
	})
}

// SelectionOrder is the total order used by the selection engine: price
// descending, ties broken by bid id ascending. The bid id tiebreak means no
// two distinct bids ever compare equal, so sorting is fully deterministic.
func SelectionOrder() Cmp {
	return Ordered(HigherPrice(), LowerBidID())
}
