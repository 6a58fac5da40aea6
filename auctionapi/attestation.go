package auctionapi

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// AttestationCOSE is a raw COSE_Sign1 attestation document as returned by the
// Nitro Security Module.
type AttestationCOSE []byte

// AttestationCOSEBase64 is the standard-base64 transport form used in JSON
// responses.
type AttestationCOSEBase64 string

func (a AttestationCOSEBase64) String() string {
	return string(a)
}

// EncodeBase64 encodes the raw COSE bytes for JSON transport.
func (a AttestationCOSE) EncodeBase64() AttestationCOSEBase64 {
	return AttestationCOSEBase64(base64.StdEncoding.EncodeToString(a))
}

// Decode returns the raw COSE bytes.
func (a AttestationCOSEBase64) Decode() (AttestationCOSE, error) {
	data, err := base64.StdEncoding.DecodeString(string(a))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return AttestationCOSE(data), nil
}

// nitroAttestationDocument is the raw CBOR structure AWS Nitro embeds as the
// COSE_Sign1 payload.
type nitroAttestationDocument struct {
	ModuleID    string            `cbor:"module_id"`
	Digest      string            `cbor:"digest"`
	Timestamp   uint64            `cbor:"timestamp"`
	PCRs        map[uint64][]byte `cbor:"pcrs"`
	Certificate []byte            `cbor:"certificate"`
	CABundle    [][]byte          `cbor:"cabundle"`
	PublicKey   []byte            `cbor:"public_key"`
	UserData    []byte            `cbor:"user_data"`
	Nonce       []byte            `cbor:"nonce"`
}

// ExtractCOSEPayload extracts the payload from a COSE_Sign1 4-element array
// [protected, unprotected, payload, signature]. AWS Nitro returns the array
// untagged.
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	var coseArray []any
	if err := cbor.Unmarshal(coseBytes, &coseArray); err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}
	if len(coseArray) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}
	payload, ok := coseArray[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}
	return payload, nil
}

// ParseAttestationDoc extracts the COSE_Sign1 payload and decodes the Nitro
// attestation document inside it. The document's user_data (the sealed
// settlement payload, canonical CBOR) is returned unparsed for the caller to
// decode. Parsing does NOT verify the signature or the certificate chain.
func (a AttestationCOSE) ParseAttestationDoc() (AttestationDoc, []byte, error) {
	payload, err := ExtractCOSEPayload(a)
	if err != nil {
		return AttestationDoc{}, nil, err
	}

	var raw nitroAttestationDocument
	if err := cbor.Unmarshal(payload, &raw); err != nil {
		return AttestationDoc{}, nil, fmt.Errorf("parse attestation document: %w", err)
	}

	doc := AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)),
		DigestAlgorithm: raw.Digest,
		PCRs:            extractPCRs(raw.PCRs),
		Certificate:     base64.StdEncoding.EncodeToString(raw.Certificate),
		CABundle:        encodeCertificateBundle(raw.CABundle),
		Nonce:           string(raw.Nonce),
	}
	return doc, raw.UserData, nil
}

// formatPCR formats PCR bytes as a hex string.
func formatPCR(pcrData []byte) string {
	if len(pcrData) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", pcrData)
}

// encodeCertificateBundle converts the certificate bundle to base64 strings.
func encodeCertificateBundle(bundle [][]byte) []string {
	result := make([]string, len(bundle))
	for i, cert := range bundle {
		result[i] = base64.StdEncoding.EncodeToString(cert)
	}
	return result
}

// extractPCRs formats the PCR values from the raw CBOR PCR map.
func extractPCRs(rawPCRs map[uint64][]byte) PCRs {
	return PCRs{
		ImageFileHash:   formatPCR(rawPCRs[0]),
		KernelHash:      formatPCR(rawPCRs[1]),
		ApplicationHash: formatPCR(rawPCRs[2]),
		IAMRoleHash:     formatPCR(rawPCRs[3]),
		InstanceIDHash:  formatPCR(rawPCRs[4]),
		SigningCertHash: formatPCR(rawPCRs[8]),
	}
}
