package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// HashAlgorithm represents the hashing algorithm to use
type HashAlgorithm string

const (
	SHA256  HashAlgorithm = "sha256"
	BLAKE2b HashAlgorithm = "blake2b"
)

// Hasher computes hex digests for ETags and webhook signatures
type Hasher struct {
	algorithm HashAlgorithm
}

// NewHasher creates a new hasher with the specified algorithm
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{algorithm: algorithm}
}

// DefaultHasher returns a hasher with the default algorithm
func DefaultHasher() *Hasher {
	return NewHasher(BLAKE2b)
}

// Algorithm returns the configured algorithm
func (h *Hasher) Algorithm() HashAlgorithm {
	return h.algorithm
}

// Hash computes a hash of the input data
func (h *Hasher) Hash(data []byte) string {
	switch h.algorithm {
	case BLAKE2b:
		sum := blake2b.Sum256(data)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	}
}

// HashString computes a hash of a string
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// Sign computes a keyed digest of data: keyed BLAKE2b-256 or HMAC-SHA256.
// BLAKE2b keys are limited to 64 bytes.
func (h *Hasher) Sign(key, data []byte) (string, error) {
	var mac hash.Hash
	switch h.algorithm {
	case BLAKE2b:
		m, err := blake2b.New256(key)
		if err != nil {
			return "", err
		}
		mac = m
	default:
		mac = hmac.New(sha256.New, key)
	}
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}
