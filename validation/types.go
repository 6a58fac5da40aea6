// Package validation lets a party outside the enclave verify a sealed
// settlement: the attestation's enclave measurements, certificate chain, and
// COSE signature, and the auction outcome itself by recomputing the input
// hash and re-running winner selection over the disclosed bid snapshot.
package validation

import "fmt"

// SettlementValidationResult contains the per-check results of validating a
// sealed settlement. Call IsValid for the overall verdict.
type SettlementValidationResult struct {
	PCRsValid        bool
	CertificateValid bool
	SignatureValid   bool
	PayloadValid     bool
	SelectionValid   bool

	ValidationDetails []string
}

// IsValid reports whether every check passed.
func (r *SettlementValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid && r.PayloadValid && r.SelectionValid
}

func (r *SettlementValidationResult) detail(format string, args ...any) {
	r.ValidationDetails = append(r.ValidationDetails, fmt.Sprintf(format, args...))
}

// KeyValidationResult contains the per-check results of validating a key
// attestation delivered with the enclave's public encryption key.
type KeyValidationResult struct {
	PCRsValid        bool
	CertificateValid bool
	SignatureValid   bool
	PublicKeyMatch   bool

	ValidationDetails []string
}

// IsValid reports whether every check passed.
func (r *KeyValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid && r.PublicKeyMatch
}

func (r *KeyValidationResult) detail(format string, args ...any) {
	r.ValidationDetails = append(r.ValidationDetails, fmt.Sprintf(format, args...))
}

// PCRSet is a known-good set of PCR measurements for one enclave image
// build.
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // source commit used to build the enclave image
}

// PCRConfig is the PCR configuration file structure.
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
