package auction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/blockauction/core"
	"github.com/cloudx-io/blockauction/store"
)

type testEngine struct {
	orch     *Orchestrator
	store    *store.MemStore
	clk      *clock.Mock
	attester *mockAttester
	seller   *signer
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	seller := newSigner(t)
	st := store.NewMemStore()
	clk := clock.NewMock()

	verifier := Secp256k1Verifier{}
	registry := NewRegistry(st, testChains(seller), verifier)
	pool := NewBidPool(st, verifier, clk)
	attester := &mockAttester{}
	sealer, err := NewSealer(attester, testAttestTimeout, clk)
	if err != nil {
		t.Fatalf("creating sealer: %v", err)
	}

	return &testEngine{
		orch:     NewOrchestrator(registry, pool, sealer, st, clk, 0),
		store:    st,
		clk:      clk,
		attester: attester,
		seller:   seller,
	}
}

func (e *testEngine) listAuction(t *testing.T, blockNumber uint64) *core.Auction {
	t.Helper()
	a, err := e.orch.SubmitListing(context.Background(), signedListing(t, e.seller, blockNumber))
	if err != nil {
		t.Fatalf("submitting listing: %v", err)
	}
	return a
}

func TestOrchestrator_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a := e.listAuction(t, 100)
	check.Equal(t, core.StateCreated, a.State)

	// A bid inside the window lazily opens the auction.
	e.clk.Set(time.UnixMilli(testStartTime + 50_000))
	b1 := newSigner(t)
	sub := signedBid(t, b1, a.AuctionID, 20_000_000, "5", 1)
	sub.TxList = []string{"0x01", "0x02"}
	id, err := e.orch.SubmitBid(ctx, sub)
	assert.Nil(t, err)
	check.Equal(t, uint64(1), id)

	got, bids, err := e.orch.AuctionState(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, core.StateOpen, got.State)
	check.Equal(t, 1, len(bids))

	// A bid after the window lazily closes and settles, and is rejected.
	e.clk.Set(time.UnixMilli(testEndTime + 1))
	late := signedBid(t, newSigner(t), a.AuctionID, 1000, "99", 1)
	_, err = e.orch.SubmitBid(ctx, late)
	check.Equal(t, ReasonAuctionNotOpen, reasonOf(t, err))

	got, _, err = e.orch.AuctionState(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, core.StateSettled, got.State)

	record, err := e.orch.Settlement(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, uint64(20_000_000), record.TotalAllocated)
	check.Equal(t, 1, len(record.Allocation.Items))
	check.Equal(t, uint64(1), record.Allocation.Items[0].BidID)

	txs, err := e.orch.WinnerTxList(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, []string{"0x01", "0x02"}, txs)

	// Every transition was persisted in order.
	check.Equal(t, []core.AuctionState{
		core.StateCreated, core.StateOpen, core.StateClosed, core.StateSelected, core.StateSettled,
	}, e.store.StateHistory(a.AuctionID))
}

func TestOrchestrator_GreedySelectionAcrossBids(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a := e.listAuction(t, 100)

	e.clk.Set(time.UnixMilli(testStartTime))

	// b2 has the middle price but does not fit once b1 wins; b3 fits the
	// remainder.
	subs := []BidSubmission{
		signedBid(t, newSigner(t), a.AuctionID, 20_000_000, "5", 1),
		signedBid(t, newSigner(t), a.AuctionID, 15_000_000, "4", 1),
		signedBid(t, newSigner(t), a.AuctionID, 9_000_000, "3", 1),
	}
	subs[0].TxList = []string{"0xaa"}
	subs[2].TxList = []string{"0xcc", "0xdd"}
	for _, sub := range subs {
		_, err := e.orch.SubmitBid(ctx, sub)
		assert.Nil(t, err)
	}

	_, err := e.orch.CloseAuction(ctx, a.AuctionID)
	assert.Nil(t, err)

	record, err := e.orch.Settlement(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, uint64(29_000_000), record.TotalAllocated)
	assert.Equal(t, 2, len(record.Allocation.Items))
	check.Equal(t, uint64(1), record.Allocation.Items[0].BidID)
	check.Equal(t, uint64(3), record.Allocation.Items[1].BidID)

	// Winning tx lists concatenate in allocation order.
	txs, err := e.orch.WinnerTxList(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, []string{"0xaa", "0xcc", "0xdd"}, txs)
}

func TestOrchestrator_EarlyCloseStopsBidding(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a := e.listAuction(t, 100)

	e.clk.Set(time.UnixMilli(testStartTime + 10))
	bidder := newSigner(t)
	_, err := e.orch.SubmitBid(ctx, signedBid(t, bidder, a.AuctionID, 1000, "2", 1))
	assert.Nil(t, err)

	closed, err := e.orch.CloseAuction(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, core.StateSettled, closed.State)

	// Still inside the window, but the auction is done.
	_, err = e.orch.SubmitBid(ctx, signedBid(t, bidder, a.AuctionID, 1000, "2", 2))
	check.Equal(t, ReasonAuctionNotOpen, reasonOf(t, err))
}

func TestOrchestrator_CloseBeforeOpenIsStateError(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a := e.listAuction(t, 100)

	_, err := e.orch.CloseAuction(ctx, a.AuctionID)
	var serr *StateError
	check.True(t, errors.As(err, &serr))
}

func TestOrchestrator_CloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a := e.listAuction(t, 100)

	e.clk.Set(time.UnixMilli(testStartTime))
	_, err := e.orch.SubmitBid(ctx, signedBid(t, newSigner(t), a.AuctionID, 1000, "1", 1))
	assert.Nil(t, err)

	first, err := e.orch.CloseAuction(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, core.StateSettled, first.State)

	second, err := e.orch.CloseAuction(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, core.StateSettled, second.State)
}

func TestOrchestrator_ZeroBidsSettlesEmpty(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a := e.listAuction(t, 100)

	// CloseAuction advances the auction past the start boundary itself, so
	// no bid ever has to touch it.
	e.clk.Set(time.UnixMilli(testStartTime))
	_, err := e.orch.CloseAuction(ctx, a.AuctionID)
	assert.Nil(t, err)

	record, err := e.orch.Settlement(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, uint64(0), record.TotalAllocated)
	check.Equal(t, 0, len(record.Allocation.Items))

	txs, err := e.orch.WinnerTxList(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, 0, len(txs))
}

func TestOrchestrator_AttestationFailureFailsAuction(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	e.attester.err = errAttestUnavailable
	a := e.listAuction(t, 100)

	e.clk.Set(time.UnixMilli(testStartTime))
	_, err := e.orch.SubmitBid(ctx, signedBid(t, newSigner(t), a.AuctionID, 1000, "1", 1))
	assert.Nil(t, err)

	_, err = e.orch.CloseAuction(ctx, a.AuctionID)
	var afail *AttestationFailure
	assert.True(t, errors.As(err, &afail))

	got, _, err := e.orch.AuctionState(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, core.StateFailed, got.State)

	// No settlement was persisted.
	_, err = e.orch.Settlement(ctx, a.AuctionID)
	check.Equal(t, ReasonAuctionNotFound, reasonOf(t, err))

	// The slot is free for a replacement listing.
	_, err = e.orch.SubmitListing(ctx, func() core.Listing {
		l := signedListing(t, e.seller, 100)
		l.EndTime = testEndTime + 5
		msg := core.ListingMessage(l.ChainID, l.BlockNumber, l.BlockspaceSize, l.StartTime, l.EndTime)
		l.SellerSignature = e.seller.sign(t, msg)
		return l
	}())
	check.Nil(t, err)
}

func TestOrchestrator_WakeAdvancesDueAuctions(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	a := e.listAuction(t, 100)

	// The wake after start opens the auction without any bid touching it.
	e.clk.Set(time.UnixMilli(testStartTime + 1))
	e.orch.wake()
	got, _, err := e.orch.AuctionState(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, core.StateOpen, got.State)

	// The wake after end closes and settles it.
	e.clk.Set(time.UnixMilli(testEndTime + 1))
	e.orch.wake()
	got, _, err = e.orch.AuctionState(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, core.StateSettled, got.State)

	// Terminal auctions are skipped by later wakes.
	e.orch.wake()
	got, _, err = e.orch.AuctionState(ctx, a.AuctionID)
	assert.Nil(t, err)
	check.Equal(t, core.StateSettled, got.State)
}

func TestOrchestrator_StartAndClose(t *testing.T) {
	e := newTestEngine(t)
	e.orch.Start()
	check.Nil(t, e.orch.Close())
}

func TestOrchestrator_BidOnUnknownAuction(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, err := e.orch.SubmitBid(ctx, signedBid(t, newSigner(t), "no-such-auction", 1000, "1", 1))
	check.Equal(t, ReasonAuctionNotFound, reasonOf(t, err))
}
