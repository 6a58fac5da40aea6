package auction

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cloudx-io/blockauction/core"
	"github.com/cloudx-io/blockauction/store"
)

// DefaultWakeInterval is how often the orchestrator's background loop scans
// live auctions for due opens and closes. The wake is best-effort only:
// correctness never depends on it because every bid attempt also advances the
// auction it touches (lazy closing).
const DefaultWakeInterval = 250 * time.Millisecond

// Orchestrator drives the full auction lifecycle: listing -> created -> open
// -> closed -> selected -> settled, or failed on an unrecoverable fault. It
// is the only component that issues state transitions, and it serializes all
// work for one auction behind a per-auction lock shared with bid admission.
type Orchestrator struct {
	registry *Registry
	pool     *BidPool
	sealer   *Sealer
	store    store.Store
	clk      clock.Clock

	wakeInterval time.Duration

	lkMu  sync.Mutex
	locks map[string]*sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator wires the engine together. Call Start to run the
// best-effort scheduled wake; the engine is fully functional without it.
func NewOrchestrator(registry *Registry, pool *BidPool, sealer *Sealer, st store.Store, clk clock.Clock, wakeInterval time.Duration) *Orchestrator {
	if wakeInterval <= 0 {
		wakeInterval = DefaultWakeInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		registry:     registry,
		pool:         pool,
		sealer:       sealer,
		store:        st,
		clk:          clk,
		wakeInterval: wakeInterval,
		locks:        make(map[string]*sync.Mutex),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the background wake loop.
func (o *Orchestrator) Start() {
	o.wg.Add(1)
	go o.run()
}

// Close stops the wake loop and waits for it to finish.
func (o *Orchestrator) Close() error {
	o.cancel()
	o.wg.Wait()
	return nil
}

func (o *Orchestrator) run() {
	defer o.wg.Done()
	ticker := o.clk.Ticker(o.wakeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.wake()
		}
	}
}

// wake advances every live auction whose window boundary has passed.
func (o *Orchestrator) wake() {
	for _, id := range o.registry.LiveAuctionIDs() {
		lk := o.lockFor(id)
		lk.Lock()
		a, err := o.registry.Get(o.ctx, id)
		if err == nil {
			if _, err := o.touchLocked(o.ctx, a); err != nil {
				log.Errorf("advancing auction %s: %v", id, err)
			}
		}
		lk.Unlock()
	}
}

func (o *Orchestrator) lockFor(auctionID string) *sync.Mutex {
	o.lkMu.Lock()
	defer o.lkMu.Unlock()
	lk, ok := o.locks[auctionID]
	if !ok {
		lk = &sync.Mutex{}
		o.locks[auctionID] = lk
	}
	return lk
}

// SubmitListing validates and creates a new auction from a seller's listing.
func (o *Orchestrator) SubmitListing(ctx context.Context, l core.Listing) (*core.Auction, error) {
	return o.registry.Create(ctx, l)
}

// SubmitBid admits a bid into its auction. The touch before admission opens
// an auction whose start time has passed and closes (and settles) one whose
// end time has passed, so a late bid both triggers the close and is rejected
// by it.
func (o *Orchestrator) SubmitBid(ctx context.Context, sub BidSubmission) (uint64, error) {
	lk := o.lockFor(sub.AuctionID)
	lk.Lock()
	defer lk.Unlock()

	a, err := o.registry.Get(ctx, sub.AuctionID)
	if err != nil {
		return 0, err
	}
	a, err = o.touchLocked(ctx, a)
	if err != nil {
		return 0, err
	}
	return o.pool.Admit(ctx, a, sub)
}

// CloseAuction closes an open auction before its end time and runs the
// settlement pipeline. Closing an already-closed (or further advanced)
// auction is a no-op returning the current state.
func (o *Orchestrator) CloseAuction(ctx context.Context, auctionID string) (*core.Auction, error) {
	lk := o.lockFor(auctionID)
	lk.Lock()
	defer lk.Unlock()

	a, err := o.registry.Get(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	a, err = o.touchLocked(ctx, a)
	if err != nil {
		return nil, err
	}
	switch a.State {
	case core.StateOpen:
		return o.settleLocked(ctx, a)
	case core.StateClosed, core.StateSelected, core.StateSettled:
		return a, nil
	default:
		return nil, &StateError{AuctionID: auctionID, From: a.State, To: core.StateClosed}
	}
}

// touchLocked advances the auction past any window boundary the clock has
// crossed: created auctions whose start time passed are opened, open auctions
// whose end time passed are closed and settled. Caller holds the auction's
// lock.
func (o *Orchestrator) touchLocked(ctx context.Context, a *core.Auction) (*core.Auction, error) {
	now := o.clk.Now().UnixMilli()

	if a.State == core.StateCreated && now >= a.StartTime {
		opened, err := o.registry.Transition(ctx, a.AuctionID, core.StateOpen, "")
		if err != nil {
			return a, err
		}
		a = opened
	}
	if a.State == core.StateOpen && now >= a.EndTime {
		return o.settleLocked(ctx, a)
	}
	return a, nil
}

// settleLocked runs close -> finalize -> select -> seal -> settle for an open
// auction. Attestation failure (including timeout) drives the auction to
// failed; a storage failure propagates unmodified and leaves the auction in
// its last persisted state for a later retry.
func (o *Orchestrator) settleLocked(ctx context.Context, a *core.Auction) (*core.Auction, error) {
	a, err := o.registry.Transition(ctx, a.AuctionID, core.StateClosed, "")
	if err != nil {
		return a, err
	}

	bids := o.pool.Finalize(a.AuctionID)
	alloc := core.Select(a, bids)
	inputHash := core.ComputeInputHash(a.AuctionID, bids, alloc)

	a, err = o.registry.Transition(ctx, a.AuctionID, core.StateSelected, "")
	if err != nil {
		return a, err
	}
	log.Infof("auction %s selected %d of %d bids, allocated %d/%d",
		a.AuctionID, len(alloc.Items), len(bids), alloc.TotalAllocated, a.BlockspaceSize)

	record, err := o.sealer.Seal(ctx, a, alloc, inputHash)
	if err != nil {
		return o.failLocked(ctx, a, err)
	}

	if err := o.store.CreateSettlement(ctx, record); err != nil {
		if errors.Is(err, store.ErrDuplicateSettlement) {
			// A settlement already persisted for this auction means a prior
			// seal completed; finish the transition rather than fail.
			log.Warnf("auction %s already has a settlement", a.AuctionID)
		} else {
			return a, &StorageFailure{Op: "create settlement", Err: err}
		}
	}

	return o.registry.Transition(ctx, a.AuctionID, core.StateSettled, "")
}

// failLocked drives the auction to failed, recording the cause. The original
// error is returned so callers see what actually went wrong.
func (o *Orchestrator) failLocked(ctx context.Context, a *core.Auction, cause error) (*core.Auction, error) {
	log.Errorf("auction %s failed: %v", a.AuctionID, cause)
	failed, terr := o.registry.Transition(ctx, a.AuctionID, core.StateFailed, cause.Error())
	if terr != nil {
		log.Errorf("recording failure of auction %s: %v", a.AuctionID, terr)
		return a, cause
	}
	return failed, cause
}

// AuctionState returns the auction and its admitted bids so far. Purely
// observational: it does not advance the lifecycle.
func (o *Orchestrator) AuctionState(ctx context.Context, auctionID string) (*core.Auction, []core.Bid, error) {
	a, err := o.registry.Get(ctx, auctionID)
	if err != nil {
		return nil, nil, err
	}
	bids, err := o.store.ListBids(ctx, auctionID)
	if err != nil {
		return nil, nil, &StorageFailure{Op: "list bids", Err: err}
	}
	return a, bids, nil
}

// Settlement returns the sealed settlement record of a settled auction.
func (o *Orchestrator) Settlement(ctx context.Context, auctionID string) (*core.SettlementRecord, error) {
	record, err := o.store.GetSettlement(ctx, auctionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, rejected(ReasonAuctionNotFound, "no settlement for auction %s", auctionID)
		}
		return nil, &StorageFailure{Op: "get settlement", Err: err}
	}
	return record, nil
}

// WinnerTxList returns the transaction payloads of the winning bids in
// allocation order, ready for block assembly. Empty until the auction is
// settled; an empty allocation yields an empty list.
func (o *Orchestrator) WinnerTxList(ctx context.Context, auctionID string) ([]string, error) {
	record, err := o.Settlement(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	bids, err := o.store.ListBids(ctx, auctionID)
	if err != nil {
		return nil, &StorageFailure{Op: "list bids", Err: err}
	}
	byID := make(map[uint64]core.Bid, len(bids))
	for _, b := range bids {
		byID[b.BidID] = b
	}

	var txs []string
	for _, item := range record.Allocation.Items {
		if b, ok := byID[item.BidID]; ok {
			txs = append(txs, b.TxList...)
		}
	}
	return txs, nil
}
