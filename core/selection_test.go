package core

import (
	"reflect"
	"testing"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func newTestAuction(size uint64) *Auction {
	return &Auction{
		AuctionID:      "auction-1",
		ChainID:        1,
		BlockNumber:    100,
		BlockspaceSize: size,
		StartTime:      100,
		EndTime:        200,
		State:          StateClosed,
	}
}

func bid(id uint64, price int64, size uint64) Bid {
	return Bid{
		BidID:         id,
		AuctionID:     "auction-1",
		BidderAddress: "0xbidder",
		RequestedSize: size,
		Price:         decimal.NewFromInt(price),
		Nonce:         id,
	}
}

func TestSelect_GreedySkip(t *testing.T) {
	// B1 takes 90 of 100; B2 (needs 20) no longer fits and is skipped
	// entirely; B3 (needs 10) fills the remainder.
	a := newTestAuction(100)
	bids := []Bid{
		bid(1, 10, 90),
		bid(2, 9, 20),
		bid(3, 8, 10),
	}

	alloc := Select(a, bids)

	check.Equal(t, uint64(100), alloc.TotalAllocated)
	check.Equal(t, []AllocationItem{
		{BidID: 1, AllocatedSize: 90},
		{BidID: 3, AllocatedSize: 10},
	}, alloc.Items)
}

func TestSelect_TieBrokenByBidID(t *testing.T) {
	// Equal prices: the lower bid id (earlier admission) wins, and the loser
	// no longer fits.
	a := newTestAuction(100)
	bids := []Bid{
		bid(2, 5, 60),
		bid(1, 5, 60),
	}

	alloc := Select(a, bids)

	check.Equal(t, uint64(60), alloc.TotalAllocated)
	check.Equal(t, 1, len(alloc.Items))
	check.Equal(t, uint64(1), alloc.Items[0].BidID)
}

func TestSelect_ZeroBids(t *testing.T) {
	a := newTestAuction(100)

	alloc := Select(a, nil)

	check.Equal(t, uint64(0), alloc.TotalAllocated)
	check.Equal(t, 0, len(alloc.Items))
}

func TestSelect_OversizeBidNeverPartiallyFilled(t *testing.T) {
	a := newTestAuction(100)
	bids := []Bid{bid(1, 50, 150)}

	alloc := Select(a, bids)

	check.Equal(t, uint64(0), alloc.TotalAllocated)
	check.Equal(t, 0, len(alloc.Items))
}

func TestSelect_OutputInAcceptanceOrderNotPriceOrder(t *testing.T) {
	// Bid 3 has the highest price but the output sequence is ordered by bid
	// id, not by price rank.
	a := newTestAuction(100)
	bids := []Bid{
		bid(1, 2, 30),
		bid(2, 3, 30),
		bid(3, 9, 30),
	}

	alloc := Select(a, bids)

	check.Equal(t, uint64(90), alloc.TotalAllocated)
	check.Equal(t, []AllocationItem{
		{BidID: 1, AllocatedSize: 30},
		{BidID: 2, AllocatedSize: 30},
		{BidID: 3, AllocatedSize: 30},
	}, alloc.Items)
}

func TestSelect_Deterministic(t *testing.T) {
	// Running selection twice over the identical snapshot yields identical
	// output, including item order.
	a := newTestAuction(100)
	bids := []Bid{
		bid(4, 7, 25),
		bid(1, 7, 25),
		bid(3, 9, 40),
		bid(2, 7, 25),
	}

	first := Select(a, bids)
	second := Select(a, bids)

	check.True(t, reflect.DeepEqual(first, second))
}

func TestSelect_CapacityInvariant(t *testing.T) {
	// The sum of allocated sizes never exceeds the blockspace, whatever the
	// mix of sizes.
	a := newTestAuction(73)
	bids := []Bid{
		bid(1, 12, 40),
		bid(2, 11, 40),
		bid(3, 10, 20),
		bid(4, 9, 13),
		bid(5, 8, 1),
		bid(6, 7, 90),
	}

	alloc := Select(a, bids)

	var sum uint64
	for _, item := range alloc.Items {
		sum += item.AllocatedSize
	}
	check.Equal(t, sum, alloc.TotalAllocated)
	check.True(t, sum <= a.BlockspaceSize)
}

func TestSelect_InputSnapshotNotMutated(t *testing.T) {
	a := newTestAuction(100)
	bids := []Bid{
		bid(2, 5, 10),
		bid(1, 9, 10),
	}
	snapshot := make([]Bid, len(bids))
	copy(snapshot, bids)

	Select(a, bids)

	check.True(t, reflect.DeepEqual(snapshot, bids))
}
