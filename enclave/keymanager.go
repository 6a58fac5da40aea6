package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"log"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/google/uuid"

	"github.com/cloudx-io/blockauction/auction"
	"github.com/cloudx-io/blockauction/auctionapi"
)

// KeyManager holds the enclave's RSA key pair for encrypted bid prices.
type KeyManager struct {
	privateKey *rsa.PrivateKey // Keep private - sensitive!
	PublicKey  *rsa.PublicKey
}

// NewKeyManager generates a fresh RSA key pair. Key material exists only
// inside the enclave and dies with it.
func NewKeyManager() (*KeyManager, error) {
	privateKey, err := GenerateRSAKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return &KeyManager{
		privateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// PublicKeyPEM returns the public key in PEM format.
func (km *KeyManager) PublicKeyPEM() (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(km.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}
	return string(pem.EncodeToMemory(pemBlock)), nil
}

// keyAttestationUserData is embedded in the key attestation so a bidder can
// verify the public key really belongs to a measured enclave image.
type keyAttestationUserData struct {
	KeyAlgorithm string `json:"key_algorithm"` // e.g. "RSA-2048"
	PublicKey    string `json:"public_key"`    // PEM-encoded public key
	KeyID        string `json:"key_id"`        // identifies this key generation
}

// HandleKeyRequest answers a key_request with the public key and an
// attestation binding that key to the enclave image.
func HandleKeyRequest(attester auction.Attester, keyManager *KeyManager) (*auctionapi.KeyResponse, error) {
	publicKeyPEM, err := keyManager.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("failed to export public key: %w", err)
	}

	attestation, err := generateKeyAttestation(attester, publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key attestation: %w", err)
	}

	return &auctionapi.KeyResponse{
		Type:           "key_response",
		PublicKey:      publicKeyPEM,
		KeyAttestation: attestation.EncodeBase64(),
	}, nil
}

func generateKeyAttestation(attester auction.Attester, publicKeyPEM string) (auctionapi.AttestationCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	userData := &keyAttestationUserData{
		KeyAlgorithm: "RSA-2048",
		PublicKey:    publicKeyPEM,
		KeyID:        uuid.New().String(),
	}
	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key user data: %w", err)
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	attestationCBOR, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(nonce),
	})
	if err != nil {
		log.Printf("ERROR: NSM key attestation failed: %v", err)
		return nil, fmt.Errorf("NSM key attestation failed: %w", err)
	}

	log.Printf("Key attestation generated: %d bytes", len(attestationCBOR))
	return auctionapi.AttestationCOSE(attestationCBOR), nil
}

func generateNonce() (string, error) {
	randomBytes := make([]byte, 32) // 256 bits of entropy
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("entropy generation failed: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}
