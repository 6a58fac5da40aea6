package core

import (
	"sort"
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestHigherPrice(t *testing.T) {
	hi := bid(1, 10, 1)
	lo := bid(2, 5, 1)

	cmp := HigherPrice()
	check.True(t, cmp.Cmp(hi, lo) < 0)
	check.True(t, cmp.Cmp(lo, hi) > 0)
	check.Equal(t, 0, cmp.Cmp(hi, hi))
}

func TestLowerBidID(t *testing.T) {
	early := bid(1, 5, 1)
	late := bid(2, 5, 1)

	cmp := LowerBidID()
	check.True(t, cmp.Cmp(early, late) < 0)
	check.True(t, cmp.Cmp(late, early) > 0)
}

func TestOrdered_FallsThroughOnTies(t *testing.T) {
	cmp := Ordered(HigherPrice(), LowerBidID())

	// Different prices: first comparator decides.
	check.True(t, cmp.Cmp(bid(9, 10, 1), bid(1, 5, 1)) < 0)
	// Equal prices: bid id decides.
	check.True(t, cmp.Cmp(bid(1, 5, 1), bid(2, 5, 1)) < 0)
}

func TestSelectionOrder_TotalOrder(t *testing.T) {
	bids := []Bid{
		bid(3, 5, 1),
		bid(1, 5, 1),
		bid(4, 9, 1),
		bid(2, 5, 1),
	}
	cmp := SelectionOrder()
	sort.Slice(bids, func(i, j int) bool { return cmp.Cmp(bids[i], bids[j]) < 0 })

	got := make([]uint64, 0, len(bids))
	for _, b := range bids {
		got = append(got, b.BidID)
	}
	check.Equal(t, []uint64{4, 1, 2, 3}, got)
}
