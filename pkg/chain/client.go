package chain

import "context"

// SubmitResult identifies an executed transaction.
type SubmitResult struct {
	Digest string
}

// SignedMessage is the output of a detached message signature.
type SignedMessage struct {
	Bytes     []byte
	Signature []byte
}

// Signer is the wallet collaborator. Each SignAndSubmit call corresponds
// to exactly one interactive signing prompt, which is why the
// orchestrator never signs concurrently.
type Signer interface {
	SignAndSubmit(ctx context.Context, tx *Transaction) (SubmitResult, error)
	SignMessage(ctx context.Context, msg []byte) (SignedMessage, error)

	// Address returns the account the signer submits from.
	Address() string
}

// BlobObject is the strict projection of an on-chain blob registration
// object.
type BlobObject struct {
	ObjectID  string
	BlobID    string
	Size      uint64
	Deletable bool
}

// Client is the node read endpoint the orchestrator depends on. The
// endpoint used for queries may lag the one used for submission, so
// WaitForTransaction bounds its poll and fails with
// *VisibilityTimeoutError rather than blocking forever.
type Client interface {
	// ShardCount reads the network-wide shard count. Fetched once per
	// session; address computation must not mix shard counts.
	ShardCount(ctx context.Context) (int, error)

	// SubmitTransaction executes a pre-signed transaction.
	SubmitTransaction(ctx context.Context, tx *Transaction, signature []byte) (SubmitResult, error)

	// WaitForTransaction blocks until the read endpoint sees the digest.
	WaitForTransaction(ctx context.Context, digest string) error

	// CreatedBlobObjects lists the blob registration objects created by a
	// transaction, decoded strictly.
	CreatedBlobObjects(ctx context.Context, digest string) ([]BlobObject, error)
}
