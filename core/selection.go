package core

import (
	"sort"
)

// Select computes the winning allocation for a closed auction. It is a pure
// function: given the same auction and the same finalized bid snapshot it
// always produces the same output, which is what lets a verifier re-run it
// later from disclosed inputs.
//
// Algorithm: greedy whole-bid knapsack over the auction's blockspace.
//
//  1. Sort bids by price descending, ties broken by bid id ascending
//     (earlier admission wins), giving a total order with no nondeterminism.
//  2. Walk the sorted sequence, granting each bid its full requested size if
//     the remaining capacity covers it; otherwise skip it entirely. Bids are
//     never partially filled, at the cost of possible leftover capacity.
//  3. Stop when capacity is exhausted or all bids are visited.
//
// The returned items are in acceptance order (bid id ascending), not price
// order: the auction decides which bids win, not their final position in the
// block, which downstream assembly may reorder under separate rules.
//
// Zero bids yield an empty, valid allocation.
func Select(a *Auction, bids []Bid) Allocation {
	ranked := make([]Bid, len(bids))
	copy(ranked, bids)
	cmp := SelectionOrder()
	sort.Slice(ranked, func(i, j int) bool {
		return cmp.Cmp(ranked[i], ranked[j]) < 0
	})

	remaining := a.BlockspaceSize
	accepted := make([]AllocationItem, 0, len(ranked))
	for _, b := range ranked {
		if remaining == 0 {
			break
		}
		if b.RequestedSize > remaining {
			continue
		}
		accepted = append(accepted, AllocationItem{
			BidID:         b.BidID,
			AllocatedSize: b.RequestedSize,
		})
		remaining -= b.RequestedSize
	}

	sort.Slice(accepted, func(i, j int) bool {
		return accepted[i].BidID < accepted[j].BidID
	})

	alloc := Allocation{Items: accepted}
	for _, item := range accepted {
		alloc.TotalAllocated += item.AllocatedSize
	}
	return alloc
}
