package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudx-io/blockauction/core"
)

type nonceKey struct {
	bidder string
	nonce  uint64
}

type slotKey struct {
	chainID     uint64
	blockNumber uint64
}

// MemStore is an in-memory Store. It enforces the same uniqueness constraints
// as the Postgres schema so engine behavior is identical under test.
type MemStore struct {
	mu          sync.Mutex
	auctions    map[string]core.Auction
	slots       map[slotKey]string // slot -> auction id currently holding it
	bids        map[string][]core.Bid
	nonces      map[nonceKey]struct{}
	settlements map[string]core.SettlementRecord
	stateLog    []stateLogEntry
}

type stateLogEntry struct {
	auctionID  string
	state      core.AuctionState
	errorCause string
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		auctions:    make(map[string]core.Auction),
		slots:       make(map[slotKey]string),
		bids:        make(map[string][]core.Bid),
		nonces:      make(map[nonceKey]struct{}),
		settlements: make(map[string]core.SettlementRecord),
	}
}

// CreateAuction persists a new auction, enforcing one non-failed auction per
// (chain_id, block_number).
func (s *MemStore) CreateAuction(_ context.Context, a *core.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[a.AuctionID]; ok {
		return ErrDuplicateSlot
	}
	slot := slotKey{a.ChainID, a.BlockNumber}
	if holder, ok := s.slots[slot]; ok {
		if existing := s.auctions[holder]; existing.State != core.StateFailed {
			return ErrDuplicateSlot
		}
	}
	s.auctions[a.AuctionID] = *a
	s.slots[slot] = a.AuctionID
	s.stateLog = append(s.stateLog, stateLogEntry{a.AuctionID, a.State, ""})
	return nil
}

func (s *MemStore) GetAuction(_ context.Context, auctionID string) (*core.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s *MemStore) UpdateAuctionState(_ context.Context, auctionID string, state core.AuctionState, errorCause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return ErrNotFound
	}
	a.State = state
	s.auctions[auctionID] = a
	s.stateLog = append(s.stateLog, stateLogEntry{auctionID, state, errorCause})
	return nil
}

func (s *MemStore) CreateBid(_ context.Context, b *core.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := nonceKey{b.BidderAddress, b.Nonce}
	if _, ok := s.nonces[key]; ok {
		return ErrNonceReplay
	}
	s.nonces[key] = struct{}{}
	s.bids[b.AuctionID] = append(s.bids[b.AuctionID], *b)
	return nil
}

func (s *MemStore) HasNonce(_ context.Context, bidderAddress string, nonce uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.nonces[nonceKey{bidderAddress, nonce}]
	return ok, nil
}

func (s *MemStore) ListBids(_ context.Context, auctionID string) ([]core.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bids := make([]core.Bid, len(s.bids[auctionID]))
	copy(bids, s.bids[auctionID])
	sort.Slice(bids, func(i, j int) bool { return bids[i].BidID < bids[j].BidID })
	return bids, nil
}

func (s *MemStore) CreateSettlement(_ context.Context, r *core.SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settlements[r.AuctionID]; ok {
		return ErrDuplicateSettlement
	}
	if _, ok := s.auctions[r.AuctionID]; !ok {
		return fmt.Errorf("settlement for unknown auction %s: %w", r.AuctionID, ErrNotFound)
	}
	s.settlements[r.AuctionID] = *r
	return nil
}

func (s *MemStore) GetSettlement(_ context.Context, auctionID string) (*core.SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.settlements[auctionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// StateHistory returns the append-only transition log for an auction. Test
// hook; the Postgres store keeps the same log in auction_state_log.
func (s *MemStore) StateHistory(auctionID string) []core.AuctionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	var states []core.AuctionState
	for _, e := range s.stateLog {
		if e.auctionID == auctionID {
			states = append(states, e.state)
		}
	}
	return states
}

func (s *MemStore) Close() error {
	return nil
}
