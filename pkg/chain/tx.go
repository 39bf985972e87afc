// Package chain models the on-chain side of the upload protocol: typed
// transaction commands, the signing collaborator, and the node read
// endpoint the orchestrator polls. The ledger itself is an external
// system; everything here is the interface the pipeline needs plus a
// JSON-RPC client and a local ed25519 signer for non-interactive use.
package chain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Command is one instruction inside a transaction. The concrete types
// below are the full command vocabulary of the upload protocol.
type Command interface {
	kind() string
}

// SwapForSettlement converts AmountIn native units into settlement
// currency through the exchange step. It must precede any command that
// spends settlement funds.
type SwapForSettlement struct {
	AmountIn uint64 `json:"amountIn"`
}

// RegisterBlob reserves storage for one asset and records its content
// address on chain.
type RegisterBlob struct {
	BlobID      string `json:"blobId"`
	Root        []byte `json:"root"`
	Size        uint64 `json:"size"`
	Epochs      uint64 `json:"epochs"`
	Deletable   bool   `json:"deletable"`
	ContentType string `json:"contentType,omitempty"`
}

// TransferRemainder returns unspent settlement currency to the recipient.
// The network's execution model rejects a transaction that drops value
// without explicit disposal, so registration plans always end their
// spending with this command.
type TransferRemainder struct {
	Recipient string `json:"recipient"`
}

// WriteVideoMetadata records the application-level entry binding the four
// asset identifiers, the access policy and the price.
type WriteVideoMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	VideoID     string `json:"videoId"`
	ManifestID  string `json:"manifestId"`
	CoverID     string `json:"coverId"`
	KeyID       string `json:"keyId"`
	PolicyID    []byte `json:"policyId"`
	Price       uint64 `json:"price"`
}

// PayRelayTip pays the relay fee for one asset. AuthPayload carries the
// integrity root, nonce digest and size so the relay can verify that the
// bytes it later receives are the ones this fee paid for.
type PayRelayTip struct {
	Recipient   string `json:"recipient"`
	Amount      uint64 `json:"amount"`
	AuthPayload []byte `json:"authPayload"`
}

// CertifyBlob submits the relay certificate for one registered asset.
type CertifyBlob struct {
	BlobID      string      `json:"blobId"`
	ObjectID    string      `json:"objectId"`
	Deletable   bool        `json:"deletable"`
	Certificate Certificate `json:"certificate"`
}

func (SwapForSettlement) kind() string  { return "swapForSettlement" }
func (RegisterBlob) kind() string       { return "registerBlob" }
func (TransferRemainder) kind() string  { return "transferRemainder" }
func (WriteVideoMetadata) kind() string { return "writeVideoMetadata" }
func (PayRelayTip) kind() string        { return "payRelayTip" }
func (CertifyBlob) kind() string        { return "certifyBlob" }

// Transaction is an ordered command list executed atomically: either
// every command takes effect or none do.
type Transaction struct {
	Sender   string
	Commands []Command
}

// Add appends a command, preserving order.
func (t *Transaction) Add(cmd Command) {
	t.Commands = append(t.Commands, cmd)
}

type wireCommand struct {
	Type string          `json:"type"`
	Args json.RawMessage `json:"args"`
}

type wireTransaction struct {
	Sender   string        `json:"sender"`
	Commands []wireCommand `json:"commands"`
}

// MarshalJSON encodes the transaction as a tagged command list.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	wire := wireTransaction{Sender: t.Sender}
	for i, cmd := range t.Commands {
		args, err := json.Marshal(cmd)
		if err != nil {
			return nil, fmt.Errorf("encode command %d (%s): %w", i, cmd.kind(), err)
		}
		wire.Commands = append(wire.Commands, wireCommand{Type: cmd.kind(), Args: args})
	}
	return json.Marshal(wire)
}

// Certificate is the relay's proof that the bytes for a blob were
// received and distributed. It is opaque to the pipeline and forwarded
// verbatim into the certification transaction.
type Certificate struct {
	Signers           []uint16 `json:"signers"`
	SerializedMessage B64Bytes `json:"serializedMessage"`
	Signature         B64Bytes `json:"signature"`
}

// Valid reports whether the certificate carries the fields the
// certification step needs.
func (c Certificate) Valid() bool {
	return len(c.Signers) > 0 && len(c.SerializedMessage) > 0 && len(c.Signature) > 0
}

// B64Bytes is a byte slice encoded as url-safe base64 in JSON, with or
// without padding on the wire.
type B64Bytes []byte

func (b B64Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(b))
}

func (b *B64Bytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := base64.RawURLEncoding.DecodeString(trimPadding(s))
	if err != nil {
		return fmt.Errorf("decode base64 field: %w", err)
	}
	*b = decoded
	return nil
}

func trimPadding(s string) string {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return s
}
