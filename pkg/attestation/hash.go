package attestation

import (
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// Algorithm names a hash function.
type Algorithm string

const (
	// AlgorithmKeccak256 is the legacy Keccak-256 hash (pre-standard SHA-3 padding).
	AlgorithmKeccak256 Algorithm = "keccak256"

	// AlgorithmBlake3 is BLAKE3 with a 32 byte output.
	AlgorithmBlake3 Algorithm = "blake3"
)

// Size is the output length of every supported hash.
const Size = 32

// ParseAlgorithm parses an algorithm name. An empty name selects keccak256.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(name))); a {
	case "":
		return AlgorithmKeccak256, nil
	case AlgorithmKeccak256, AlgorithmBlake3:
		return a, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %s", name)
	}
}

// Hasher produces fixed-size digests.
type Hasher interface {
	Hash(data []byte) []byte
}

// Keccak256 hashes with legacy Keccak-256.
type Keccak256 struct{}

// Hash implements Hasher.
func (Keccak256) Hash(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// Blake3 hashes with BLAKE3.
type Blake3 struct{}

// Hash implements Hasher.
func (Blake3) Hash(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// NewHasher returns the Hasher for an algorithm.
func NewHasher(alg Algorithm) (Hasher, error) {
	switch alg {
	case AlgorithmKeccak256:
		return Keccak256{}, nil
	case AlgorithmBlake3:
		return Blake3{}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", alg)
	}
}
