package core

import (
	"crypto/sha256"
	"fmt"

	"github.com/shopspring/decimal"
)

// ListingMessage builds the canonical byte message a seller signs when
// listing blockspace.
//
// Format: "chain_id|block_number|blockspace_size|start_time|end_time"
//
// All values are rendered in base-10 so the message is identical regardless
// of how the caller held the numbers in memory.
func ListingMessage(chainID, blockNumber, blockspaceSize uint64, startTime, endTime int64) []byte {
	return []byte(fmt.Sprintf("%d|%d|%d|%d|%d", chainID, blockNumber, blockspaceSize, startTime, endTime))
}

// BidMessage builds the canonical byte message a bidder signs.
//
// Format: "auction_id|requested_size|price|nonce"
//
// The price is rendered via decimal.String so trailing zeros and exponent
// form never change the signed bytes.
func BidMessage(auctionID string, requestedSize uint64, price decimal.Decimal, nonce uint64) []byte {
	return []byte(fmt.Sprintf("%s|%d|%s|%d", auctionID, requestedSize, price.String(), nonce))
}

// ComputeAuctionID derives the auction id from the listing content.
//
// Formula: SHA256(seller_address || seller_signature || canonical listing message)
//
// Deriving the id from content (rather than assigning a random id) lets any
// party holding the listing recompute it, and makes one listing map to
// exactly one id.
func ComputeAuctionID(l Listing) string {
	h := sha256.New()
	h.Write([]byte(l.SellerAddress))
	h.Write(l.SellerSignature)
	h.Write(ListingMessage(l.ChainID, l.BlockNumber, l.BlockspaceSize, l.StartTime, l.EndTime))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ComputeInputHash commits to everything the selection engine saw and
// produced: the auction id, the finalized bid snapshot, and the allocation.
// A verifier who is later shown the snapshot can recompute this hash and
// re-run selection to check the sealed outcome.
//
// The bid snapshot must already be in finalized order (bid id ascending);
// the hash covers that order.
func ComputeInputHash(auctionID string, bids []Bid, alloc Allocation) string {
	h := sha256.New()
	h.Write([]byte(auctionID))
	for _, b := range bids {
		fmt.Fprintf(h, "|%d:%s:%d:%s:%d", b.BidID, b.BidderAddress, b.RequestedSize, b.Price.String(), b.Nonce)
	}
	h.Write([]byte("|alloc"))
	for _, item := range alloc.Items {
		fmt.Fprintf(h, "|%d:%d", item.BidID, item.AllocatedSize)
	}
	fmt.Fprintf(h, "|total:%d", alloc.TotalAllocated)
	return fmt.Sprintf("%x", h.Sum(nil))
}
