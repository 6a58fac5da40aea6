// Package auctionapi defines the wire format spoken over the vsock boundary
// between the host and the enclave, plus the attestation document types a
// settlement consumer needs to verify an auction outcome.
package auctionapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/blockauction/core"
)

// Request types routed by the enclave server.
const (
	TypePing       = "ping"
	TypeListing    = "listing_request"
	TypeBid        = "bid_request"
	TypeClose      = "close_request"
	TypeState      = "state_request"
	TypeWinner     = "winner_request"
	TypeSettlement = "settlement_request"
	TypeKey        = "key_request"
	TypeError      = "error"
)

// EncryptedBidPrice carries a bid price encrypted with hybrid
// RSA-OAEP/AES-256-GCM. Bidders fetch the enclave's public key via a
// key_request and encrypt their price so it is only ever visible inside the
// TEE.
type EncryptedBidPrice struct {
	AESKeyEncrypted  string `json:"aes_key_encrypted"`        // base64-encoded RSA-OAEP encrypted AES key
	EncryptedPayload string `json:"encrypted_payload"`        // base64-encoded AES-GCM encrypted {"price": "X"}
	Nonce            string `json:"nonce"`                    // base64-encoded GCM nonce (12 bytes)
	HashAlgorithm    string `json:"hash_algorithm,omitempty"` // Optional: "SHA-256" (default) or "SHA-1" for RSA-OAEP
}

// ListingRequest asks the enclave to create an auction from a signed seller
// listing.
type ListingRequest struct {
	Type    string       `json:"type"`
	Listing core.Listing `json:"listing"`
}

// ListingResponse returns the created auction, including its content-derived
// id the seller could also compute independently.
type ListingResponse struct {
	Type    string       `json:"type"`
	Auction core.Auction `json:"auction"`
}

// BidRequest submits one bid. The plaintext price is used directly; when
// EncryptedPrice is set it takes precedence and Price must be absent.
type BidRequest struct {
	Type           string             `json:"type"`
	AuctionID      string             `json:"auction_id"`
	BidderAddress  string             `json:"bidder_address"`
	BidSignature   []byte             `json:"bid_signature"`
	RequestedSize  uint64             `json:"requested_size"`
	Price          decimal.Decimal    `json:"price"`
	EncryptedPrice *EncryptedBidPrice `json:"encrypted_price,omitempty"`
	Nonce          uint64             `json:"nonce"`
	TxList         []string           `json:"tx_list,omitempty"`
}

// BidResponse acknowledges an admitted bid with its assigned id.
type BidResponse struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
	BidID     uint64 `json:"bid_id"`
}

// CloseRequest closes an open auction before its end time.
type CloseRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
}

// StateRequest queries an auction's current state and admitted bids.
type StateRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
}

// StateResponse reports the auction and its bids in admission order.
type StateResponse struct {
	Type    string       `json:"type"`
	Auction core.Auction `json:"auction"`
	Bids    []core.Bid   `json:"bids"`
}

// WinnerRequest asks for the winning transaction payloads of a settled
// auction.
type WinnerRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
}

// WinnerResponse carries the winning tx payloads in allocation order, ready
// for block assembly.
type WinnerResponse struct {
	Type      string   `json:"type"`
	AuctionID string   `json:"auction_id"`
	TxList    []string `json:"tx_list"`
}

// SettlementRequest asks for a settled auction's sealed outcome.
type SettlementRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
}

// SettlementResponse carries the settlement record; the embedded quote is the
// raw COSE_Sign1 attestation, additionally exposed base64-encoded so clients
// can pass it to offline validators unchanged.
type SettlementResponse struct {
	Type        string                `json:"type"`
	Settlement  core.SettlementRecord `json:"settlement"`
	Attestation AttestationCOSEBase64 `json:"attestation"`
}

// KeyResponse answers a key_request with the enclave's bid-encryption public
// key and an attestation binding that key to the enclave image.
type KeyResponse struct {
	Type           string                `json:"type"`
	PublicKey      string                `json:"public_key"` // PEM format
	KeyAttestation AttestationCOSEBase64 `json:"key_attestation"`
}

// ErrorResponse is returned for any request the enclave rejects.
type ErrorResponse struct {
	Type    string `json:"type"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// PongResponse answers a ping.
type PongResponse struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// PCRs are the Platform Configuration Registers from an AWS Nitro attestation
// document, hex-encoded.
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc is the parsed form of a Nitro attestation document. The
// sealed settlement payload travels in the document's user_data field and is
// returned separately by ParseAttestationDoc.
type AttestationDoc struct {
	// Module ID identifies the enclave.
	ModuleID string `json:"module_id"`

	// Timestamp when the attestation was generated.
	Timestamp time.Time `json:"timestamp"`

	// Digest algorithm used (e.g. "SHA384").
	DigestAlgorithm string `json:"digest"`

	// PCRs containing the enclave measurements.
	PCRs PCRs `json:"pcrs"`

	// Certificate containing the attestation signature, base64 DER.
	Certificate string `json:"certificate"`

	// CABundle for certificate chain validation, base64 DER.
	CABundle []string `json:"cabundle"`

	// Nonce for replay protection; matches the settlement record's nonce.
	Nonce string `json:"nonce"`
}
