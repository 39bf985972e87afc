// Package escrow wraps the symmetric content key behind an identity-based
// encryption policy. The wrap itself is performed by an external
// threshold key service; this package defines the collaborator interface,
// generates access-policy identifiers, and ships the HTTP client used
// against the service. Unwrapping happens player-side against an on-chain
// authorization check and is out of scope here.
package escrow

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
)

// PolicyIDSize is the access-policy identifier length in bytes.
const PolicyIDSize = 32

var ErrEmptyPlaintext = errors.New("escrow: empty plaintext")

// Service wraps plaintext under an identity derived from the policy
// identifier and the application identifier the implementation is bound
// to. The ciphertext can only be opened by callers who pass the on-chain
// authorization check for that policy.
type Service interface {
	Wrap(ctx context.Context, plaintext []byte, policyID []byte) (wrapped []byte, err error)
}

// NewPolicyID draws the random identifier that binds a wrapped key to its
// on-chain access policy. Generated once per upload session.
func NewPolicyID() ([]byte, error) {
	id := make([]byte, PolicyIDSize)
	if _, err := rand.Read(id); err != nil {
		return nil, fmt.Errorf("generate policy id: %w", err)
	}
	return id, nil
}
