package auction

import (
	"crypto/ecdsa"
	"errors"
	"sync"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/blockauction/core"
)

// Test window used across the package: auctions open at t=100000ms and close
// at t=200000ms. The mock clock starts well before the window.
const (
	testStartTime  = int64(100_000)
	testEndTime    = int64(200_000)
	testChainID    = uint64(8453)
	testBlockspace = uint64(30_000_000)
)

// signer is a funded test identity: a secp256k1 key plus its derived address.
type signer struct {
	key     *ecdsa.PrivateKey
	address string
}

func newSigner(t *testing.T) *signer {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return &signer{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
}

// sign produces a 65-byte recovery signature over the keccak-256 digest of
// message, the format Secp256k1Verifier expects.
func (s *signer) sign(t *testing.T, message []byte) []byte {
	t.Helper()
	sig, err := ethcrypto.Sign(ethcrypto.Keccak256(message), s.key)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return sig
}

// signedListing builds a listing for (testChainID, blockNumber) with a valid
// seller signature over the canonical listing message.
func signedListing(t *testing.T, seller *signer, blockNumber uint64) core.Listing {
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

// signedBid builds a submission with a valid bid signature. Price is given as
// a string to keep decimal literals readable in tests.
func signedBid(t *testing.T, bidder *signer, auctionID string, size uint64, price string, nonce uint64) BidSubmission {
	t.Helper()
	p, err := decimal.NewFromString(price)
	if err != nil {
		t.Fatalf("parsing price %q: %v", price, err)
	}
	sub := BidSubmission{
		AuctionID:     auctionID,
		BidderAddress: bidder.address,
		RequestedSize: size,
		Price:         p,
		Nonce:         nonce,
	}
	sub.BidSignature = bidder.sign(t, core.BidMessage(auctionID, size, p, nonce))
	return sub
}

// testChains returns a single-chain registry that accepts the given sellers.
func testChains(sellers ...*signer) *ChainRegistry {
	addrs := make([]string, len(sellers))
	for i, s := range sellers {
		addrs[i] = s.address
	}
	return NewChainRegistry(map[uint64]ChainConfig{
		testChainID: {MaxBlockspace: testBlockspace, Sellers: addrs},
	})
}

// mockAttester returns a canned quote, or fails, or blocks until released.
// Thread-safe; records every call's options for inspection.
type mockAttester struct {
	mu       sync.Mutex
	quote    []byte
	err      error
	block    chan struct{} // when non-nil, Attest blocks until closed
	nonces   []string
	payloads [][]byte
}

func (m *mockAttester) Attest(options enclave.AttestationOptions) ([]byte, error) {
	m.mu.Lock()
	m.nonces = append(m.nonces, string(options.Nonce))
	m.payloads = append(m.payloads, options.UserData)
	block := m.block
	m.mu.Unlock()

	if block != nil {
		<-block
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.quote != nil {
		return m.quote, nil
	}
	return []byte("mock-quote"), nil
}

func (m *mockAttester) seenNonces() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.nonces))
	copy(out, m.nonces)
	return out
}

var errAttestUnavailable = errors.New("NSM device unavailable")

const testAttestTimeout = 5 * time.Second
