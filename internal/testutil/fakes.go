package testutil

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/suistream/suistream/pkg/chain"
	"github.com/suistream/suistream/pkg/relay"
)

// FakeChain is an in-memory chain.Client. Submitted registration
// transactions synthesize their created blob objects.
type FakeChain struct {
	mu       sync.Mutex
	Txs      []*chain.Transaction
	objects  map[string][]chain.BlobObject
	WaitErrs map[string]error
	Shards   int
}

func NewFakeChain() *FakeChain {
	return &FakeChain{
		objects:  make(map[string][]chain.BlobObject),
		WaitErrs: make(map[string]error),
		Shards:   1000,
	}
}

func (f *FakeChain) ShardCount(context.Context) (int, error) { return f.Shards, nil }

func (f *FakeChain) SubmitTransaction(_ context.Context, tx *chain.Transaction, _ []byte) (chain.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Txs = append(f.Txs, tx)
	digest := fmt.Sprintf("0xtx-%d", len(f.Txs))

	var created []chain.BlobObject
	for _, cmd := range tx.Commands {
		if reg, ok := cmd.(chain.RegisterBlob); ok {
			created = append(created, chain.BlobObject{
				ObjectID:  "0xobj-" + reg.BlobID,
				BlobID:    reg.BlobID,
				Size:      reg.Size,
				Deletable: reg.Deletable,
			})
		}
	}
	f.objects[digest] = created
	return chain.SubmitResult{Digest: digest}, nil
}

func (f *FakeChain) WaitForTransaction(_ context.Context, digest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.WaitErrs[digest]
}

func (f *FakeChain) CreatedBlobObjects(_ context.Context, digest string) ([]chain.BlobObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[digest], nil
}

// FakeSigner submits through a FakeChain and counts signing prompts.
type FakeSigner struct {
	Chain   *FakeChain
	Prompts int
}

func (s *FakeSigner) Address() string { return "0xtester" }

func (s *FakeSigner) SignAndSubmit(ctx context.Context, tx *chain.Transaction) (chain.SubmitResult, error) {
	s.Prompts++
	if tx.Sender == "" {
		tx.Sender = s.Address()
	}
	return s.Chain.SubmitTransaction(ctx, tx, []byte("sig"))
}

func (s *FakeSigner) SignMessage(_ context.Context, msg []byte) (chain.SignedMessage, error) {
	return chain.SignedMessage{Bytes: msg, Signature: make([]byte, ed25519.SignatureSize)}, nil
}

// FakeRelay records uploads and certifies everything unless FailFor
// vetoes an attempt.
type FakeRelay struct {
	Tip relay.TipConfig

	mu       sync.Mutex
	Uploads  []relay.UploadParams
	Attempts map[string]int
	FailFor  func(p relay.UploadParams, attempt int) error
}

func NewFakeRelay(tipAmount uint64) *FakeRelay {
	return &FakeRelay{
		Tip:      relay.TipConfig{Recipient: "0xrelay", Amount: tipAmount},
		Attempts: make(map[string]int),
	}
}

func (f *FakeRelay) TipConfig(context.Context) (relay.TipConfig, error) { return f.Tip, nil }

func (f *FakeRelay) Upload(_ context.Context, p relay.UploadParams) (chain.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Uploads = append(f.Uploads, p)
	f.Attempts[p.BlobID]++
	if f.FailFor != nil {
		if err := f.FailFor(p, f.Attempts[p.BlobID]); err != nil {
			return chain.Certificate{}, err
		}
	}
	return chain.Certificate{
		Signers:           []uint16{1},
		SerializedMessage: chain.B64Bytes("msg-" + p.BlobID),
		Signature:         chain.B64Bytes("sig"),
	}, nil
}

// FakeEscrow wraps by prefixing, enough to observe that wrapping
// happened and is bound to the policy.
type FakeEscrow struct{}

func (FakeEscrow) Wrap(_ context.Context, plaintext, policyID []byte) ([]byte, error) {
	out := append([]byte("wrapped:"), policyID[:4]...)
	return append(out, plaintext...), nil
}
