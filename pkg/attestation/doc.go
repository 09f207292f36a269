// Package attestation provides the hashing and signature services used to bind a proposal
// to its author through a trusted host.
//
// A trusted host is an off-chain attester holding an ed25519 key. It signs the canonical
// concatenation of the proposal's fields:
//
//	proposer || entity || trusted_host_id || content_hash || actions_hash || permission_1 || ... || permission_n
//
// The message is hashed with the configured algorithm (keccak-256 or BLAKE3) and the signature
// is checked against the hash. A Verifier without a key is disabled and accepts everything.
//
// # Usage
//
//	svc, err := attestation.NewService(attestation.AlgorithmKeccak256)
//	if err != nil {
//	    return err
//	}
//	verifier := attestation.NewVerifier(svc, trustedHostKey)
//	if err := verifier.Verify(msg, signature); err != nil {
//	    return err
//	}
package attestation
