package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudx-io/blockauction/auctionapi"
)

// keyAttestationUserData mirrors the JSON the enclave embeds in a key
// attestation's user data.
type keyAttestationUserData struct {
	KeyAlgorithm string `json:"key_algorithm"`
	PublicKey    string `json:"public_key"`
	KeyID        string `json:"key_id"`
}

// ValidateKeyAttestation checks that an enclave public key really belongs to
// a measured enclave image: PCR measurements, certificate chain, COSE
// signature, and the binding between the delivered PEM key and the key
// embedded in the attestation's user data.
//
// Returns an error only when validation cannot be performed at all; check
// failures are reported in the result.
func ValidateKeyAttestation(attestation auctionapi.AttestationCOSEBase64, expectedPublicKey, pcrConfigPath string) (*KeyValidationResult, error) {
	coseBytes, err := attestation.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode attestation: %w", err)
	}

	doc, userData, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, fmt.Errorf("parse attestation document: %w", err)
	}

	result := &KeyValidationResult{ValidationDetails: []string{}}

	result.PCRsValid, result.CertificateValid, result.SignatureValid, err =
		validateEnclaveTrust(attestation, doc, pcrConfigPath, result.detail)
	if err != nil {
		return nil, err
	}

	var bound keyAttestationUserData
	if len(userData) > 0 {
		if err := json.Unmarshal(userData, &bound); err != nil {
			return nil, fmt.Errorf("parse key attestation user data: %w", err)
		}
	}

	switch {
	case bound.PublicKey == "":
		result.PublicKeyMatch = false
		result.detail("Public key missing from attestation")
	case strings.TrimSpace(bound.PublicKey) != strings.TrimSpace(expectedPublicKey):
		// TrimSpace tolerates trailing newlines from PEM encoding.
		result.PublicKeyMatch = false
		result.detail("Public key mismatch: provided key does not match attested key")
	default:
		result.PublicKeyMatch = true
		result.detail("Public key matches attestation (algorithm %s, key id %s)", bound.KeyAlgorithm, bound.KeyID)
	}

	return result, nil
}
