package core

import (
	"github.com/shopspring/decimal"
)

// AuctionState is the lifecycle state of an auction. Transitions are enforced
// by the registry; see CanTransitionTo for the allowed edges.
type AuctionState string

const (
	// StateCreated means the auction exists but the bid window has not opened.
	StateCreated AuctionState = "created"
	// StateOpen means the auction is accepting bids.
	StateOpen AuctionState = "open"
	// StateClosed means the bid window has ended and the pool is frozen.
	StateClosed AuctionState = "closed"
	// StateSelected means a winning allocation has been computed.
	StateSelected AuctionState = "selected"
	// StateSettled means the allocation has been sealed with an attestation
	// quote and persisted. Terminal.
	StateSettled AuctionState = "settled"
	// StateFailed means the auction hit an unrecoverable fault. Terminal.
	StateFailed AuctionState = "failed"
)

// CanTransitionTo reports whether the state machine permits moving from s to
// next. Every non-terminal state may move to StateFailed.
func (s AuctionState) CanTransitionTo(next AuctionState) bool {
	if next == StateFailed {
		return s != StateSettled && s != StateFailed
	}
	switch s {
	case StateCreated:
		return next == StateOpen
	case StateOpen:
		return next == StateClosed
	case StateClosed:
		return next == StateSelected
	case StateSelected:
		return next == StateSettled
	default:
		return false
	}
}

// Terminal reports whether no further transitions are permitted from s.
func (s AuctionState) Terminal() bool {
	return s == StateSettled || s == StateFailed
}

// Listing is a seller's signed offer of blockspace for one block slot. The
// seller signature covers (chain_id, block_number, blockspace_size,
// start_time, end_time); see ListingMessage.
type Listing struct {
	ChainID         uint64 `json:"chain_id"`
	BlockNumber     uint64 `json:"block_number"`
	SellerAddress   string `json:"seller_address"`
	SellerSignature []byte `json:"seller_signature"`
	BlockspaceSize  uint64 `json:"blockspace_size"`
	StartTime       int64  `json:"start_time"` // unix ms, inclusive
	EndTime         int64  `json:"end_time"`   // unix ms, exclusive
}

// Auction is a listing accepted into the system, keyed by a content-derived
// id. All fields except State are immutable after creation.
type Auction struct {
	AuctionID       string       `json:"auction_id"`
	ChainID         uint64       `json:"chain_id"`
	BlockNumber     uint64       `json:"block_number"`
	SellerAddress   string       `json:"seller_address"`
	SellerSignature []byte       `json:"seller_signature"`
	BlockspaceSize  uint64       `json:"blockspace_size"`
	StartTime       int64        `json:"start_time"`
	EndTime         int64        `json:"end_time"`
	State           AuctionState `json:"state"`
}

// Window reports whether t (unix ms) falls inside the bid-acceptance window
// [StartTime, EndTime).
func (a *Auction) Window(t int64) bool {
	return t >= a.StartTime && t < a.EndTime
}

// Bid is an admitted bid. BidID is assigned at admission time, monotonically
// increasing per auction, and is the deterministic tie-breaker during
// selection. The bid signature covers (auction_id, requested_size, price,
// nonce); see BidMessage.
type Bid struct {
	BidID         uint64          `json:"bid_id"`
	AuctionID     string          `json:"auction_id"`
	BidderAddress string          `json:"bidder_address"`
	BidSignature  []byte          `json:"bid_signature"`
	RequestedSize uint64          `json:"requested_size"`
	Price         decimal.Decimal `json:"price"`
	Nonce         uint64          `json:"nonce"`
	SubmittedAt   int64           `json:"submitted_at"` // audit only, never ranked on
	TxList        []string        `json:"tx_list,omitempty"`
}

// AllocationItem records one winning bid and the blockspace granted to it.
// Bids are never partially filled, so AllocatedSize always equals the bid's
// RequestedSize.
type AllocationItem struct {
	BidID         uint64 `json:"bid_id"`
	AllocatedSize uint64 `json:"allocated_size"`
}

// Allocation is the output of the selection engine: the winning items in
// acceptance order (bid id ascending) plus the total space granted.
type Allocation struct {
	Items          []AllocationItem `json:"items"`
	TotalAllocated uint64           `json:"total_allocated"`
}

// SettlementRecord is the sealed, attested outcome of an auction. Created
// once at seal time; immutable thereafter.
type SettlementRecord struct {
	AuctionID      string     `json:"auction_id"`
	Allocation     Allocation `json:"allocation"`
	TotalAllocated uint64     `json:"total_allocated"`
	InputHash      string     `json:"input_hash"`
	Nonce          string     `json:"nonce"`
	Quote          []byte     `json:"quote"`
}
