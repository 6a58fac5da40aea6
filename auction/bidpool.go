package auction

import (
	"context"
	"errors"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/blockauction/core"
	"github.com/cloudx-io/blockauction/store"
)

// BidSubmission is a bidder's request to enter an open auction. The signature
// covers the canonical bid message; see core.BidMessage.
type BidSubmission struct {
	AuctionID     string
	BidderAddress string
	BidSignature  []byte
	RequestedSize uint64
	Price         decimal.Decimal
	Nonce         uint64
	TxList        []string
}

// BidPool holds the mutable bid set of each auction while it is open,
// enforcing the admission rules. Callers serialize Admit and Finalize for the
// same auction (the orchestrator holds the per-auction lock), so once
// Finalize runs no in-flight admission can slip into the snapshot.
type BidPool struct {
	store    store.Store
	verifier SignatureVerifier
	clk      clock.Clock

	mu    sync.Mutex
	pools map[string]*poolState
}

type poolState struct {
	nextBidID uint64
	bids      []core.Bid
	frozen    bool
}

// NewBidPool returns an empty pool persisting admitted bids through st.
func NewBidPool(st store.Store, verifier SignatureVerifier, clk clock.Clock) *BidPool {
	return &BidPool{
		store:    st,
		verifier: verifier,
		clk:      clk,
		pools:    make(map[string]*poolState),
	}
}

func (p *BidPool) pool(auctionID string) *poolState {
	if ps, ok := p.pools[auctionID]; ok {
		return ps
	}
	ps := &poolState{nextBidID: 1}
	p.pools[auctionID] = ps
	return ps
}

// Admit runs the admission checks in order and, if all pass, assigns the next
// bid id, persists the bid, and adds it to the pool. The checks are:
//
//	(a) auction is open and now is inside [start_time, end_time)
//	(b) signature valid over the canonical bid message
//	(c) requested size within the auction's blockspace
//	(d) (bidder_address, nonce) never seen anywhere in the system
//
// The first failing check determines the rejection reason; (b)-(d) are
// skipped once (a) fails, so a late bid never leaks whether its signature or
// nonce would have been acceptable.
func (p *BidPool) Admit(ctx context.Context, a *core.Auction, sub BidSubmission) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ps := p.pool(a.AuctionID)

	// (a) state and window
	if a.State != core.StateOpen || ps.frozen {
		return 0, rejected(ReasonAuctionNotOpen, "auction %s is %s", a.AuctionID, a.State)
	}
	now := p.clk.Now().UnixMilli()
	if !a.Window(now) {
		return 0, rejected(ReasonOutsideWindow, "bid at %d outside window [%d, %d)", now, a.StartTime, a.EndTime)
	}

	// (b) signature
	msg := core.BidMessage(a.AuctionID, sub.RequestedSize, sub.Price, sub.Nonce)
	if !p.verifier.Verify(msg, sub.BidSignature, sub.BidderAddress) {
		return 0, rejected(ReasonBadSignature, "bid signature does not verify against %s", sub.BidderAddress)
	}

	// (c) capacity
	if sub.RequestedSize > a.BlockspaceSize {
		return 0, rejected(ReasonOversize, "requested %d of %d", sub.RequestedSize, a.BlockspaceSize)
	}

	// (d) global replay protection
	seen, err := p.store.HasNonce(ctx, sub.BidderAddress, sub.Nonce)
	if err != nil {
		return 0, &StorageFailure{Op: "check nonce", Err: err}
	}
	if seen {
		return 0, rejected(ReasonNonceReplay, "nonce %d already used by %s", sub.Nonce, sub.BidderAddress)
	}

	bid := core.Bid{
		BidID:         ps.nextBidID,
		AuctionID:     a.AuctionID,
		BidderAddress: sub.BidderAddress,
		BidSignature:  sub.BidSignature,
		RequestedSize: sub.RequestedSize,
		Price:         sub.Price,
		Nonce:         sub.Nonce,
		SubmittedAt:   now,
		TxList:        sub.TxList,
	}

	// Persist before the bid becomes visible; the unique constraint backs
	// the in-memory check against concurrent submitters.
	if err := p.store.CreateBid(ctx, &bid); err != nil {
		if errors.Is(err, store.ErrNonceReplay) {
			return 0, rejected(ReasonNonceReplay, "nonce %d already used by %s", sub.Nonce, sub.BidderAddress)
		}
		return 0, &StorageFailure{Op: "create bid", Err: err}
	}

	ps.bids = append(ps.bids, bid)
	ps.nextBidID++
	log.Debugf("auction %s admitted bid %d from %s", a.AuctionID, bid.BidID, bid.BidderAddress)
	return bid.BidID, nil
}

// Finalize freezes the pool and returns the immutable snapshot ordered by
// bid id ascending. Bid ids are assigned in admission order, so the slice is
// already in that order; repeated calls return the same snapshot.
func (p *BidPool) Finalize(auctionID string) []core.Bid {
	p.mu.Lock()
	defer p.mu.Unlock()

	ps := p.pool(auctionID)
	ps.frozen = true

	snapshot := make([]core.Bid, len(ps.bids))
	copy(snapshot, ps.bids)
	return snapshot
}
