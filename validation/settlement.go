package validation

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/blockauction/auction"
	"github.com/cloudx-io/blockauction/auctionapi"
	"github.com/cloudx-io/blockauction/core"
)

// SettlementValidationInput is everything a verifier needs: the attestation
// as delivered by the enclave, the auction parameters the verifier trusts
// (e.g. from the original listing), and the finalized bid snapshot disclosed
// for audit, in bid id ascending order.
type SettlementValidationInput struct {
	Attestation   auctionapi.AttestationCOSEBase64
	Auction       core.Auction
	Bids          []core.Bid
	PCRConfigPath string // empty means DefaultPCRConfigPath
}

// ValidateSettlement checks a sealed settlement end to end:
//
//   - PCR measurements against the known-good enclave image sets
//   - certificate chain up to the AWS Nitro root CA
//   - COSE_Sign1 signature over the attestation document
//   - the sealed payload commits to this auction and to the disclosed inputs
//     (recomputed input hash)
//   - winner selection re-run over the snapshot reproduces the sealed
//     allocation exactly
//
// Returns an error only when validation cannot be performed at all; check
// failures are reported in the result.
func ValidateSettlement(input *SettlementValidationInput) (*SettlementValidationResult, error) {
	coseBytes, err := input.Attestation.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode attestation: %w", err)
	}

	doc, userData, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, fmt.Errorf("parse attestation document: %w", err)
	}

	result := &SettlementValidationResult{ValidationDetails: []string{}}

	result.PCRsValid, result.CertificateValid, result.SignatureValid, err =
		validateEnclaveTrust(input.Attestation, doc, input.PCRConfigPath, result.detail)
	if err != nil {
		return nil, err
	}

	var payload auction.SealedPayload
	if err := cbor.Unmarshal(userData, &payload); err != nil {
		result.PayloadValid = false
		result.SelectionValid = false
		result.detail("Sealed payload is not valid CBOR: %v", err)
		return result, nil
	}

	result.PayloadValid = validatePayload(input, doc, &payload, result)
	result.SelectionValid = validateSelection(input, &payload, result)
	return result, nil
}

// validatePayload checks the payload commits to this auction and to the
// disclosed bid snapshot.
func validatePayload(input *SettlementValidationInput, doc auctionapi.AttestationDoc, payload *auction.SealedPayload, result *SettlementValidationResult) bool {
	valid := true

	if payload.AuctionID != input.Auction.AuctionID {
		result.detail("Auction id mismatch: payload has %s, expected %s", payload.AuctionID, input.Auction.AuctionID)
		valid = false
	}

	if doc.Nonce != payload.Nonce {
		result.detail("Nonce mismatch: attestation has %s, payload has %s", doc.Nonce, payload.Nonce)
		valid = false
	}

	alloc := core.Allocation{Items: payload.Allocation, TotalAllocated: payload.TotalAllocated}
	computedHash := core.ComputeInputHash(input.Auction.AuctionID, input.Bids, alloc)
	if computedHash != payload.InputHash {
		result.detail("Input hash mismatch: computed %s, payload has %s", computedHash, payload.InputHash)
		valid = false
	}

	if valid {
		result.detail("Sealed payload commits to auction %s and the disclosed bid snapshot", payload.AuctionID)
	}
	return valid
}

// validateSelection re-runs winner selection over the disclosed snapshot and
// compares against the sealed allocation item by item.
func validateSelection(input *SettlementValidationInput, payload *auction.SealedPayload, result *SettlementValidationResult) bool {
	expected := core.Select(&input.Auction, input.Bids)

	if expected.TotalAllocated != payload.TotalAllocated {
		result.detail("Total allocated mismatch: recomputed %d, payload has %d", expected.TotalAllocated, payload.TotalAllocated)
		return false
	}
	if len(expected.Items) != len(payload.Allocation) {
		result.detail("Allocation length mismatch: recomputed %d items, payload has %d", len(expected.Items), len(payload.Allocation))
		return false
	}
	for i, item := range expected.Items {
		if item != payload.Allocation[i] {
			result.detail("Allocation item %d mismatch: recomputed %+v, payload has %+v", i, item, payload.Allocation[i])
			return false
		}
	}

	result.detail("Winner selection reproduced: %d items, %d total", len(expected.Items), expected.TotalAllocated)
	return true
}
