package main

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/blockauction/auction"
	"github.com/cloudx-io/blockauction/auctionapi"
	"github.com/cloudx-io/blockauction/core"
	"github.com/cloudx-io/blockauction/store"
)

const (
	testChainID    = uint64(8453)
	testBlockspace = uint64(30_000_000)
	testStartTime  = int64(100_000)
	testEndTime    = int64(200_000)
)

// MockEnclaveHandle implements the Attest method for testing.
type MockEnclaveHandle struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)
}

func (m *MockEnclaveHandle) Attest(options enclave.AttestationOptions) ([]byte, error) {
	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}
	// A minimal COSE_Sign1 wrapping the user data, good enough for wire
	// round-trips.
	nested, err := cbor.Marshal(map[string]any{
		"module_id": "test-enclave",
		"user_data": options.UserData,
		"nonce":     options.Nonce,
	})
	if err != nil {
		return nil, err
	}
	return cbor.Marshal([]any{
		[]byte{0x01}, map[string]any{}, nested, []byte{0x02},
	})
}

type testSigner struct {
	key     *ecdsa.PrivateKey
	address string
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return &testSigner{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey).Hex()}
}

func (s *testSigner) sign(t *testing.T, message []byte) []byte {
	t.Helper()
	sig, err := ethcrypto.Sign(ethcrypto.Keccak256(message), s.key)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return sig
}

func testListing(t *testing.T, seller *testSigner, blockNumber uint64) core.Listing {
	t.Helper()
	l := core.Listing{
		ChainID:        testChainID,
		BlockNumber:    blockNumber,
		SellerAddress:  seller.address,
		BlockspaceSize: testBlockspace,
		StartTime:      testStartTime,
		EndTime:        testEndTime,
	}
	msg := core.ListingMessage(l.ChainID, l.BlockNumber, l.BlockspaceSize, l.StartTime, l.EndTime)
	l.SellerSignature = seller.sign(t, msg)
	return l
}

func testBidRequest(t *testing.T, bidder *testSigner, auctionID string, size uint64, price string, nonce uint64) auctionapi.BidRequest {
	t.Helper()
	p, err := decimal.NewFromString(price)
	if err != nil {
		t.Fatalf("parsing price %q: %v", price, err)
	}
	return auctionapi.BidRequest{
		Type:          auctionapi.TypeBid,
		AuctionID:     auctionID,
		BidderAddress: bidder.address,
		BidSignature:  bidder.sign(t, core.BidMessage(auctionID, size, p, nonce)),
		RequestedSize: size,
		Price:         p,
		Nonce:         nonce,
	}
}

// newTestServer builds a full server over in-memory storage with a mock
// attester and a mock clock positioned inside the standard test window.
func newTestServer(t *testing.T, seller *testSigner) (*EnclaveServer, *clock.Mock) {
	t.Helper()
	st := store.NewMemStore()
	clk := clock.NewMock()
	clk.Set(time.UnixMilli(testStartTime + 1000))

	verifier := auction.Secp256k1Verifier{}
	chains := auction.NewChainRegistry(map[uint64]auction.ChainConfig{
		testChainID: {MaxBlockspace: testBlockspace, Sellers: []string{seller.address}},
	})
	registry := auction.NewRegistry(st, chains, verifier)
	pool := auction.NewBidPool(st, verifier, clk)
	attester := &MockEnclaveHandle{}
	sealer, err := auction.NewSealer(attester, 5*time.Second, clk)
	if err != nil {
		t.Fatalf("creating sealer: %v", err)
	}
	engine := auction.NewOrchestrator(registry, pool, sealer, st, clk, 0)

	keys, err := NewKeyManager()
	if err != nil {
		t.Fatalf("creating key manager: %v", err)
	}

	cfg := &Config{
		VsockPort:     defaultVsockPort,
		MaxWorkers:    4,
		AttestTimeout: 5 * time.Second,
		ConnReadLimit: defaultConnReadLimit,
	}
	return NewEnclaveServer(cfg, engine, keys, attester), clk
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parsing decimal %q: %v", s, err)
	}
	return d
}

// decimalZero is the price a client submits when the real price travels
// encrypted.
func decimalZero() decimal.Decimal {
	return decimal.Decimal{}
}
