package attestation

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrNotTrustedHost is returned when an attestation is required but none was supplied.
	ErrNotTrustedHost = errors.New("not a trusted host")
)

// Service combines a hash function with ed25519 signature verification.
type Service struct {
	hasher    Hasher
	algorithm Algorithm
}

// NewService creates a service hashing with alg.
func NewService(alg Algorithm) (*Service, error) {
	hasher, err := NewHasher(alg)
	if err != nil {
		return nil, err
	}
	return &Service{hasher: hasher, algorithm: alg}, nil
}

// Algorithm returns the configured hash algorithm.
func (s *Service) Algorithm() Algorithm {
	return s.algorithm
}

// Hash digests data.
func (s *Service) Hash(data []byte) []byte {
	return s.hasher.Hash(data)
}

// Verify reports whether sig is a valid ed25519 signature of hash under pub.
func (s *Service) Verify(pub ed25519.PublicKey, hash, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, hash, sig)
}

// Message is the set of proposal fields a trusted host signs.
type Message struct {
	Proposer      string
	Entity        string
	TrustedHostID []byte
	ContentHash   []byte
	ActionsHash   []byte
	Permissions   []string
}

// Bytes returns the order-sensitive concatenation of the message fields.
func (m Message) Bytes() []byte {
	size := len(m.Proposer) + len(m.Entity) + len(m.TrustedHostID) + len(m.ContentHash) + len(m.ActionsHash)
	for _, p := range m.Permissions {
		size += len(p)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, m.Proposer...)
	buf = append(buf, m.Entity...)
	buf = append(buf, m.TrustedHostID...)
	buf = append(buf, m.ContentHash...)
	buf = append(buf, m.ActionsHash...)
	for _, p := range m.Permissions {
		buf = append(buf, p...)
	}
	return buf
}

// Verifier checks attestations against a single trusted host key.
type Verifier struct {
	service *Service
	key     ed25519.PublicKey
}

// NewVerifier creates a verifier. A nil or empty key disables verification.
func NewVerifier(service *Service, key ed25519.PublicKey) *Verifier {
	return &Verifier{service: service, key: key}
}

// ParsePublicKey decodes a hex encoded ed25519 public key. An empty string yields a nil key.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode trusted host key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("trusted host key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// Enabled reports whether a trusted host key is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.key) > 0
}

// Host returns the hex encoded trusted host key, used as the replay namespace.
func (v *Verifier) Host() string {
	if !v.Enabled() {
		return ""
	}
	return hex.EncodeToString(v.key)
}

// Digest returns the hash of the message that the trusted host signs.
func (v *Verifier) Digest(msg Message) []byte {
	return v.service.Hash(msg.Bytes())
}

// Verify checks signature over msg. It is a no-op when the verifier is disabled.
func (v *Verifier) Verify(msg Message, signature []byte) error {
	if !v.Enabled() {
		return nil
	}
	if len(signature) == 0 {
		return ErrNotTrustedHost
	}
	if !v.service.Verify(v.key, v.Digest(msg), signature) {
		return ErrInvalidSignature
	}
	return nil
}
