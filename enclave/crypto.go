package main

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/blockauction/auctionapi"
)

// HashAlgorithm specifies which hash function to use in RSA-OAEP decryption.
type HashAlgorithm string

const (
	// HashAlgorithmSHA256 uses SHA-256 (recommended, default).
	HashAlgorithmSHA256 HashAlgorithm = "SHA-256"
	// HashAlgorithmSHA1 uses SHA-1 (legacy support for client compatibility).
	HashAlgorithmSHA1 HashAlgorithm = "SHA-1"
)

// GenerateRSAKeyPair generates a new RSA-2048 key pair using crypto/rand.
// In a TEE environment, crypto/rand uses NSM-enhanced entropy.
func GenerateRSAKeyPair() (*rsa.PrivateKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}
	return privateKey, nil
}

// newHash creates the appropriate implementation of hash.Hash, or returns an
// error if the algorithm is unsupported.
func newHash(hashAlg HashAlgorithm) (hash.Hash, error) {
	switch hashAlg {
	case HashAlgorithmSHA256:
		return sha256.New(), nil
	case HashAlgorithmSHA1:
		return sha1.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", hashAlg)
	}
}

// DecryptHybrid decrypts data encrypted with hybrid RSA-OAEP + AES-256-GCM:
// the RSA key unwraps a one-time AES-256 key, which decrypts and
// authenticates the payload under GCM.
func DecryptHybrid(encryptedAESKey, encryptedPayload, nonceB64 string, privateKey *rsa.PrivateKey, hashAlg HashAlgorithm) ([]byte, error) {
	encryptedAESKeyBytes, err := base64.StdEncoding.DecodeString(encryptedAESKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted AES key: %w", err)
	}

	encryptedPayloadBytes, err := base64.StdEncoding.DecodeString(encryptedPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted payload: %w", err)
	}

	nonceBytes, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}

	hasher, err := newHash(hashAlg)
	if err != nil {
		return nil, err
	}

	aesKey, err := rsa.DecryptOAEP(hasher, rand.Reader, privateKey, encryptedAESKeyBytes, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt AES key: %w", err)
	}
	if len(aesKey) != 32 {
		return nil, fmt.Errorf("invalid AES key length: expected 32 bytes, got %d", len(aesKey))
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	if len(nonceBytes) != aesgcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce length: expected %d bytes, got %d", aesgcm.NonceSize(), len(nonceBytes))
	}

	plaintext, err := aesgcm.Open(nil, nonceBytes, encryptedPayloadBytes, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}
	return plaintext, nil
}

// encryptedPricePayload is the plaintext inside an encrypted bid price.
type encryptedPricePayload struct {
	Price decimal.Decimal `json:"price"`
}

// DecryptBidPrice recovers the plaintext price from an encrypted bid price
// envelope. The price never leaves the enclave in the clear.
func DecryptBidPrice(enc *auctionapi.EncryptedBidPrice, privateKey *rsa.PrivateKey) (decimal.Decimal, error) {
	hashAlg := HashAlgorithmSHA256
	if enc.HashAlgorithm != "" {
		hashAlg = HashAlgorithm(enc.HashAlgorithm)
	}

	plaintext, err := DecryptHybrid(enc.AESKeyEncrypted, enc.EncryptedPayload, enc.Nonce, privateKey, hashAlg)
	if err != nil {
		return decimal.Decimal{}, err
	}

	var payload encryptedPricePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse decrypted price payload: %w", err)
	}
	return payload.Price, nil
}
