package core

import (
	"testing"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func testListing() Listing {
	return Listing{
		ChainID:         1,
		BlockNumber:     4242,
		SellerAddress:   "0xseller",
		SellerSignature: []byte("sig"),
		BlockspaceSize:  30_000_000,
		StartTime:       1000,
		EndTime:         2000,
	}
}

func TestListingMessage_Canonical(t *testing.T) {
	msg := ListingMessage(1, 4242, 30_000_000, 1000, 2000)
	check.Equal(t, "1|4242|30000000|1000|2000", string(msg))
}

func TestBidMessage_PriceRenderingIsStable(t *testing.T) {
	// The same numeric price must produce the same signed bytes regardless of
	// how the decimal was constructed.
	fromString, err := decimal.NewFromString("1.5")
	check.Nil(t, err)
	fromFloat := decimal.NewFromFloat(1.5)

	a := BidMessage("auction-1", 100, fromString, 7)
	b := BidMessage("auction-1", 100, fromFloat, 7)
	check.Equal(t, string(a), string(b))
}

func TestComputeAuctionID_StableAndContentSensitive(t *testing.T) {
	l := testListing()

	first := ComputeAuctionID(l)
	second := ComputeAuctionID(l)
	check.Equal(t, first, second)
	check.Equal(t, 64, len(first)) // hex SHA-256

	l.BlockNumber++
	check.NotEqual(t, first, ComputeAuctionID(l))
}

func TestComputeInputHash_CoversBidsAndAllocation(t *testing.T) {
	bids := []Bid{
		bid(1, 10, 50),
		bid(2, 8, 30),
	}
	alloc := Allocation{
		Items:          []AllocationItem{{BidID: 1, AllocatedSize: 50}, {BidID: 2, AllocatedSize: 30}},
		TotalAllocated: 80,
	}

	base := ComputeInputHash("auction-1", bids, alloc)
	check.Equal(t, base, ComputeInputHash("auction-1", bids, alloc))

	// Changing any input changes the hash.
	check.NotEqual(t, base, ComputeInputHash("auction-2", bids, alloc))

	mutated := make([]Bid, len(bids))
	copy(mutated, bids)
	mutated[0].Price = decimal.NewFromInt(11)
	check.NotEqual(t, base, ComputeInputHash("auction-1", mutated, alloc))

	smaller := Allocation{
		Items:          []AllocationItem{{BidID: 1, AllocatedSize: 50}},
		TotalAllocated: 50,
	}
	check.NotEqual(t, base, ComputeInputHash("auction-1", bids, smaller))
}

func TestComputeInputHash_OrderSensitive(t *testing.T) {
	// The hash commits to the finalized snapshot order.
	bids := []Bid{bid(1, 10, 50), bid(2, 8, 30)}
	reversed := []Bid{bid(2, 8, 30), bid(1, 10, 50)}
	alloc := Allocation{}

	check.NotEqual(t,
		ComputeInputHash("auction-1", bids, alloc),
		ComputeInputHash("auction-1", reversed, alloc))
}
