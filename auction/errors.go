package auction

import (
	"fmt"

	"github.com/cloudx-io/blockauction/core"
)

// RejectReason identifies why a listing or bid was rejected. The admission
// checks run in a fixed order and the first failing check determines the
// reason.
type RejectReason string

const (
	ReasonInvalidListing      RejectReason = "invalid_listing"
	ReasonUnknownChain        RejectReason = "unknown_chain"
	ReasonSellerNotRegistered RejectReason = "seller_not_registered"
	ReasonDuplicateSlot       RejectReason = "duplicate_slot"
	ReasonAuctionNotFound     RejectReason = "auction_not_found"
	ReasonAuctionNotOpen      RejectReason = "auction_not_open"
	ReasonOutsideWindow       RejectReason = "outside_window"
	ReasonBadSignature        RejectReason = "bad_signature"
	ReasonOversize            RejectReason = "requested_size_exceeds_blockspace"
	ReasonNonceReplay         RejectReason = "nonce_replay"
)

// ValidationError is a local rejection returned to the caller. It never
// aborts the auction.
type ValidationError struct {
	Reason RejectReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Reason, e.Detail)
}

func rejected(reason RejectReason, format string, args ...any) error {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// StateError reports a transition request the state machine forbids. It is an
// ordering fault in the caller; the auction is left unchanged.
type StateError struct {
	AuctionID string
	From      core.AuctionState
	To        core.AuctionState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("auction %s: invalid transition %s -> %s", e.AuctionID, e.From, e.To)
}

// AttestationFailure means the TEE quote could not be produced. It is
// terminal for the auction: the orchestrator drives it to failed and a retry
// must rebuild the payload with a fresh nonce.
type AttestationFailure struct {
	AuctionID string
	Err       error
}

func (e *AttestationFailure) Error() string {
	return fmt.Sprintf("auction %s: attestation failed: %v", e.AuctionID, e.Err)
}

func (e *AttestationFailure) Unwrap() error {
	return e.Err
}

// StorageFailure wraps an error from the persistence layer. The component
// that encountered it performed no partial state mutation.
type StorageFailure struct {
	Op  string
	Err error
}

func (e *StorageFailure) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageFailure) Unwrap() error {
	return e.Err
}
