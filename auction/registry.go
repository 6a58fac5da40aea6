package auction

import (
	"context"
	"errors"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/cloudx-io/blockauction/core"
	"github.com/cloudx-io/blockauction/store"
)

var log = logging.Logger("blockauction/engine")

// Registry owns the set of auctions and their state transitions. State lives
// in memory keyed by auction id and every mutation is persisted append-only
// before it becomes visible, so a crash between decision and persistence
// never yields a visible-but-unpersisted state.
type Registry struct {
	store    store.Store
	chains   *ChainRegistry
	verifier SignatureVerifier

	mu       sync.Mutex
	auctions map[string]*core.Auction
}

// NewRegistry returns a registry validating listings against chains and
// verifier, persisting through st.
func NewRegistry(st store.Store, chains *ChainRegistry, verifier SignatureVerifier) *Registry {
	return &Registry{
		store:    st,
		chains:   chains,
		verifier: verifier,
		auctions: make(map[string]*core.Auction),
	}
}

// Create validates a listing and creates the auction in the created state.
// The auction id is derived from the listing content, so resubmitting the
// same listing maps to the same id and is rejected as a duplicate.
func (r *Registry) Create(ctx context.Context, l core.Listing) (*core.Auction, error) {
	if l.BlockspaceSize == 0 {
		return nil, rejected(ReasonInvalidListing, "blockspace size must be greater than zero")
	}
	if l.StartTime >= l.EndTime {
		return nil, rejected(ReasonInvalidListing, "start time %d is not before end time %d", l.StartTime, l.EndTime)
	}
	if err := r.chains.ValidateListing(l); err != nil {
		return nil, err
	}
	msg := core.ListingMessage(l.ChainID, l.BlockNumber, l.BlockspaceSize, l.StartTime, l.EndTime)
	if !r.verifier.Verify(msg, l.SellerSignature, l.SellerAddress) {
		return nil, rejected(ReasonBadSignature, "seller signature does not verify against %s", l.SellerAddress)
	}

	a := &core.Auction{
		AuctionID:       core.ComputeAuctionID(l),
		ChainID:         l.ChainID,
		BlockNumber:     l.BlockNumber,
		SellerAddress:   l.SellerAddress,
		SellerSignature: l.SellerSignature,
		BlockspaceSize:  l.BlockspaceSize,
		StartTime:       l.StartTime,
		EndTime:         l.EndTime,
		State:           core.StateCreated,
	}

	// Persist first; the store enforces one live auction per block slot.
	if err := r.store.CreateAuction(ctx, a); err != nil {
		if errors.Is(err, store.ErrDuplicateSlot) {
			return nil, rejected(ReasonDuplicateSlot, "slot (%d, %d) already has a live auction", l.ChainID, l.BlockNumber)
		}
		return nil, &StorageFailure{Op: "create auction", Err: err}
	}

	r.mu.Lock()
	r.auctions[a.AuctionID] = a
	r.mu.Unlock()

	log.Debugf("created auction %s for slot (%d, %d)", a.AuctionID, a.ChainID, a.BlockNumber)
	cp := *a
	return &cp, nil
}

// Get returns a copy of the auction, falling back to the durable store when
// the id is not cached (e.g. after a restart).
func (r *Registry) Get(ctx context.Context, auctionID string) (*core.Auction, error) {
	r.mu.Lock()
	if a, ok := r.auctions[auctionID]; ok {
		cp := *a
		r.mu.Unlock()
		return &cp, nil
	}
	r.mu.Unlock()

	a, err := r.store.GetAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, rejected(ReasonAuctionNotFound, "auction %s not found", auctionID)
		}
		return nil, &StorageFailure{Op: "get auction", Err: err}
	}

	r.mu.Lock()
	r.auctions[auctionID] = a
	r.mu.Unlock()
	cp := *a
	return &cp, nil
}

// Transition moves the auction to next, enforcing the state machine. It is
// the only mutation path: the transition is persisted before the in-memory
// state changes. Re-closing an already-closed auction is an idempotent no-op
// so callers can retry safely.
func (r *Registry) Transition(ctx context.Context, auctionID string, next core.AuctionState, cause string) (*core.Auction, error) {
	r.mu.Lock()
	a, ok := r.auctions[auctionID]
	r.mu.Unlock()
	if !ok {
		return nil, rejected(ReasonAuctionNotFound, "auction %s not found", auctionID)
	}

	if a.State == core.StateClosed && next == core.StateClosed {
		cp := *a
		return &cp, nil
	}
	if !a.State.CanTransitionTo(next) {
		return nil, &StateError{AuctionID: auctionID, From: a.State, To: next}
	}

	if err := r.store.UpdateAuctionState(ctx, auctionID, next, cause); err != nil {
		return nil, &StorageFailure{Op: "update auction state", Err: err}
	}

	r.mu.Lock()
	a.State = next
	cp := *a
	r.mu.Unlock()

	log.Debugf("auction %s -> %s", auctionID, next)
	return &cp, nil
}

// LiveAuctionIDs returns the ids of auctions not yet in a terminal state.
// Used by the orchestrator's best-effort scheduled wake.
func (r *Registry) LiveAuctionIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.auctions))
	for id, a := range r.auctions {
		if !a.State.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}
