package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// LocalSigner signs with an in-process ed25519 key and submits through
// the node client. It backs the server deployment, where no interactive
// wallet exists; browser-style interactive wallets satisfy Signer through
// their own adapters.
type LocalSigner struct {
	priv    ed25519.PrivateKey
	client  Client
	address string
}

// NewLocalSigner derives a keypair from the 32-byte seed.
func NewLocalSigner(seed []byte, client Client) (*LocalSigner, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("chain: signer seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &LocalSigner{
		priv:    priv,
		client:  client,
		address: "0x" + hex.EncodeToString(pub),
	}, nil
}

func (s *LocalSigner) Address() string {
	return s.address
}

func (s *LocalSigner) SignAndSubmit(ctx context.Context, tx *Transaction) (SubmitResult, error) {
	if tx.Sender == "" {
		tx.Sender = s.address
	}
	payload, err := json.Marshal(tx)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("serialize transaction: %w", err)
	}
	signature := ed25519.Sign(s.priv, payload)
	return s.client.SubmitTransaction(ctx, tx, signature)
}

func (s *LocalSigner) SignMessage(ctx context.Context, msg []byte) (SignedMessage, error) {
	if err := ctx.Err(); err != nil {
		return SignedMessage{}, err
	}
	return SignedMessage{
		Bytes:     msg,
		Signature: ed25519.Sign(s.priv, msg),
	}, nil
}

var _ Signer = (*LocalSigner)(nil)
