package chain

import (
	"encoding/json"
	"fmt"
	"time"
)

// VisibilityTimeoutError reports that a submitted transaction did not
// become visible on the read endpoint within the bounded wait. Submission
// and query may hit different replicas, so this is a distinct condition
// from a rejected transaction; the caller may retry the whole flow.
type VisibilityTimeoutError struct {
	Digest string
	Waited time.Duration
}

func (e *VisibilityTimeoutError) Error() string {
	return fmt.Sprintf("chain: transaction %s not visible after %s", e.Digest, e.Waited)
}

// FieldDecodeError reports a malformed or missing field while decoding an
// on-chain object. Decoding fails closed: a field that cannot be decoded
// is an error, never a silent zero value.
type FieldDecodeError struct {
	Object string
	Field  string
	Reason string
}

func (e *FieldDecodeError) Error() string {
	return fmt.Sprintf("chain: decode %s.%s: %s", e.Object, e.Field, e.Reason)
}

// InsufficientFundsError reports that the funded amount fell short of the
// network requirement, with the shortfall when the node provides it.
type InsufficientFundsError struct {
	Shortfall uint64
}

func (e *InsufficientFundsError) Error() string {
	if e.Shortfall > 0 {
		return fmt.Sprintf("chain: insufficient funds, short by %d", e.Shortfall)
	}
	return "chain: insufficient funds"
}

// RPCError is a structured error returned by the node endpoint.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("chain: rpc error %d: %s", e.Code, e.Message)
}
