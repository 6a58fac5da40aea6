// Package store provides the durable append/read store backing the auction
// engine. Two implementations exist: a Postgres store for production and an
// in-memory store with the same constraint semantics for tests and for
// running the enclave without external storage.
package store

import (
	"context"
	"errors"

	"github.com/cloudx-io/blockauction/core"
)

var (
	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateSlot indicates a non-failed auction already holds the
	// (chain_id, block_number) slot.
	ErrDuplicateSlot = errors.New("auction slot already taken")

	// ErrNonceReplay indicates the (bidder_address, nonce) pair was already
	// used, anywhere in the system's lifetime.
	ErrNonceReplay = errors.New("bidder nonce already used")

	// ErrDuplicateSettlement indicates a settlement already exists for the
	// auction. Settlements are written exactly once.
	ErrDuplicateSettlement = errors.New("settlement already recorded")
)

// Store is the durable persistence boundary. Every method either completes
// its whole mutation or leaves the store unchanged; callers treat any error
// other than the sentinels above as a storage failure.
type Store interface {
	// CreateAuction persists a new auction. Returns ErrDuplicateSlot when a
	// non-failed auction already occupies the (chain_id, block_number) slot.
	CreateAuction(ctx context.Context, a *core.Auction) error

	// GetAuction returns the auction by id, or ErrNotFound.
	GetAuction(ctx context.Context, auctionID string) (*core.Auction, error)

	// UpdateAuctionState records the transition append-only and updates the
	// auction's current state in one atomic step.
	UpdateAuctionState(ctx context.Context, auctionID string, state core.AuctionState, errorCause string) error

	// CreateBid persists an admitted bid. Returns ErrNonceReplay when the
	// (bidder_address, nonce) pair has been seen before.
	CreateBid(ctx context.Context, b *core.Bid) error

	// HasNonce reports whether the (bidder_address, nonce) pair exists.
	HasNonce(ctx context.Context, bidderAddress string, nonce uint64) (bool, error)

	// ListBids returns all bids of an auction ordered by bid id ascending.
	ListBids(ctx context.Context, auctionID string) ([]core.Bid, error)

	// CreateSettlement persists the sealed settlement record. Returns
	// ErrDuplicateSettlement if one already exists for the auction.
	CreateSettlement(ctx context.Context, r *core.SettlementRecord) error

	// GetSettlement returns the settlement for an auction, or ErrNotFound.
	GetSettlement(ctx context.Context, auctionID string) (*core.SettlementRecord, error)

	Close() error
}
