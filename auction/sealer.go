package auction

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/blockauction/core"
)

// Attester is the external TEE quote capability. Inside an AWS Nitro enclave
// the NSM handle implements it; tests inject a mock.
type Attester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// SealedPayload is the canonical content committed to by the attestation
// quote. Encoded as deterministic CBOR so verifiers can re-derive the exact
// bytes.
type SealedPayload struct {
	AuctionID      string                `cbor:"auction_id"`
	Allocation     []core.AllocationItem `cbor:"allocation"`
	TotalAllocated uint64                `cbor:"total_allocated"`
	InputHash      string                `cbor:"input_hash"`
	Nonce          string                `cbor:"nonce"`
	Timestamp      int64                 `cbor:"timestamp"`
}

// Sealer packages a selection result into an attested settlement record.
type Sealer struct {
	attester Attester
	timeout  time.Duration
	clk      clock.Clock
	encMode  cbor.EncMode
}

// NewSealer returns a sealer calling attester with the given bounded timeout.
func NewSealer(attester Attester, timeout time.Duration, clk clock.Clock) (*Sealer, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("creating canonical CBOR encoder: %w", err)
	}
	return &Sealer{attester: attester, timeout: timeout, clk: clk, encMode: encMode}, nil
}

// Seal builds the canonical payload with a fresh 256-bit nonce and requests a
// quote. A timeout is treated exactly like an explicit attestation error, and
// sealing is never retried with the same payload: a stale quote could be
// replayed, so any retry goes back through Seal and gets a new nonce.
func (s *Sealer) Seal(ctx context.Context, a *core.Auction, alloc core.Allocation, inputHash string) (*core.SettlementRecord, error) {
	nonce, err := freshNonce()
	if err != nil {
		return nil, &AttestationFailure{AuctionID: a.AuctionID, Err: err}
	}

	payload := SealedPayload{
		AuctionID:      a.AuctionID,
		Allocation:     alloc.Items,
		TotalAllocated: alloc.TotalAllocated,
		InputHash:      inputHash,
		Nonce:          nonce,
		Timestamp:      s.clk.Now().UnixMilli(),
	}
	payloadBytes, err := s.encMode.Marshal(payload)
	if err != nil {
		return nil, &AttestationFailure{AuctionID: a.AuctionID, Err: fmt.Errorf("encoding payload: %w", err)}
	}

	quote, err := s.attest(ctx, payloadBytes, nonce)
	if err != nil {
		return nil, &AttestationFailure{AuctionID: a.AuctionID, Err: err}
	}
	log.Debugf("auction %s sealed: %d byte quote", a.AuctionID, len(quote))

	return &core.SettlementRecord{
		AuctionID:      a.AuctionID,
		Allocation:     alloc,
		TotalAllocated: alloc.TotalAllocated,
		InputHash:      inputHash,
		Nonce:          nonce,
		Quote:          quote,
	}, nil
}

type attestResult struct {
	quote []byte
	err   error
}

// attest runs the capability under the bounded timeout. The capability has no
// context of its own, so a late result after timeout is discarded.
func (s *Sealer) attest(ctx context.Context, payload []byte, nonce string) ([]byte, error) {
	resCh := make(chan attestResult, 1)
	go func() {
		quote, err := s.attester.Attest(enclave.AttestationOptions{
			UserData: payload,
			Nonce:    []byte(nonce),
		})
		resCh <- attestResult{quote: quote, err: err}
	}()

	timer := s.clk.Timer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		if res.err != nil {
			return nil, fmt.Errorf("attest capability: %w", res.err)
		}
		return res.quote, nil
	case <-timer.C:
		return nil, fmt.Errorf("attest capability timed out after %s", s.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// freshNonce returns 32 bytes of entropy hex-encoded. Inside a Nitro enclave
// crypto/rand draws from the NSM-enhanced kernel entropy pool.
func freshNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("entropy generation failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
