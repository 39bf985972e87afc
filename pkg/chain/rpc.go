package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	rpcCodeNotFound          = -32004
	rpcCodeInsufficientFunds = -32010
)

// RPCClient implements Client over the node's JSON-RPC endpoint.
type RPCClient struct {
	url string
	hc  *http.Client
	log *slog.Logger

	// PollInterval and VisibilityTimeout bound WaitForTransaction.
	PollInterval      time.Duration
	VisibilityTimeout time.Duration

	nextID int64
}

// NewRPCClient builds a client for the node endpoint at url. A nil logger
// disables request logging.
func NewRPCClient(url string, logger *slog.Logger) *RPCClient {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RPCClient{
		url:               url,
		hc:                &http.Client{Timeout: 30 * time.Second},
		log:               logger,
		PollInterval:      time.Second,
		VisibilityTimeout: 60 * time.Second,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (c *RPCClient) call(ctx context.Context, method string, params any, result any) error {
	c.nextID++
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d: %s", method, resp.StatusCode, respBody)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if decoded.Error != nil {
		return c.mapError(decoded.Error)
	}
	if result != nil {
		if err := json.Unmarshal(decoded.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

func (c *RPCClient) mapError(rpcErr *RPCError) error {
	if rpcErr.Code == rpcCodeInsufficientFunds {
		var data struct {
			Shortfall uint64 `json:"shortfall"`
		}
		// Absence of the data blob degrades to a zero shortfall, not a
		// decode failure.
		if len(rpcErr.Data) > 0 {
			_ = json.Unmarshal(rpcErr.Data, &data)
		}
		return &InsufficientFundsError{Shortfall: data.Shortfall}
	}
	return rpcErr
}

func (c *RPCClient) ShardCount(ctx context.Context) (int, error) {
	var result struct {
		ShardCount *int `json:"shardCount"`
	}
	if err := c.call(ctx, "system_state", nil, &result); err != nil {
		return 0, err
	}
	if result.ShardCount == nil {
		return 0, &FieldDecodeError{Object: "systemState", Field: "shardCount", Reason: "missing"}
	}
	if *result.ShardCount <= 0 {
		return 0, &FieldDecodeError{Object: "systemState", Field: "shardCount", Reason: fmt.Sprintf("non-positive value %d", *result.ShardCount)}
	}
	return *result.ShardCount, nil
}

func (c *RPCClient) SubmitTransaction(ctx context.Context, tx *Transaction, signature []byte) (SubmitResult, error) {
	params := struct {
		Transaction *Transaction `json:"transaction"`
		Signature   B64Bytes     `json:"signature"`
	}{Transaction: tx, Signature: signature}

	var result struct {
		Digest *string `json:"digest"`
	}
	if err := c.call(ctx, "tx_submit", params, &result); err != nil {
		return SubmitResult{}, err
	}
	if result.Digest == nil || *result.Digest == "" {
		return SubmitResult{}, &FieldDecodeError{Object: "submitResult", Field: "digest", Reason: "missing"}
	}

	c.log.Debug("transaction submitted", "digest", *result.Digest, "commands", len(tx.Commands))
	return SubmitResult{Digest: *result.Digest}, nil
}

// WaitForTransaction polls the read endpoint until the digest is visible,
// the visibility ceiling is exceeded, or ctx is done.
func (c *RPCClient) WaitForTransaction(ctx context.Context, digest string) error {
	deadline := time.Now().Add(c.VisibilityTimeout)
	params := struct {
		Digest string `json:"digest"`
	}{Digest: digest}

	for {
		var result struct {
			Status string `json:"status"`
		}
		err := c.call(ctx, "tx_get", params, &result)
		if err == nil {
			return nil
		}

		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) || rpcErr.Code != rpcCodeNotFound {
			return err
		}

		if time.Now().After(deadline) {
			return &VisibilityTimeoutError{Digest: digest, Waited: c.VisibilityTimeout}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
}

func (c *RPCClient) CreatedBlobObjects(ctx context.Context, digest string) ([]BlobObject, error) {
	params := struct {
		Digest string `json:"digest"`
	}{Digest: digest}

	var result struct {
		Objects []struct {
			ObjectID  *string `json:"objectId"`
			BlobID    *string `json:"blobId"`
			Size      *uint64 `json:"size"`
			Deletable *bool   `json:"deletable"`
		} `json:"objects"`
	}
	if err := c.call(ctx, "tx_createdBlobObjects", params, &result); err != nil {
		return nil, err
	}

	objects := make([]BlobObject, 0, len(result.Objects))
	for i, obj := range result.Objects {
		if obj.ObjectID == nil || *obj.ObjectID == "" {
			return nil, &FieldDecodeError{Object: fmt.Sprintf("blobObject[%d]", i), Field: "objectId", Reason: "missing"}
		}
		if obj.BlobID == nil || *obj.BlobID == "" {
			return nil, &FieldDecodeError{Object: fmt.Sprintf("blobObject[%d]", i), Field: "blobId", Reason: "missing"}
		}
		if obj.Size == nil {
			return nil, &FieldDecodeError{Object: fmt.Sprintf("blobObject[%d]", i), Field: "size", Reason: "missing"}
		}
		deletable := false
		if obj.Deletable != nil {
			deletable = *obj.Deletable
		}
		objects = append(objects, BlobObject{
			ObjectID:  *obj.ObjectID,
			BlobID:    *obj.BlobID,
			Size:      *obj.Size,
			Deletable: deletable,
		})
	}
	return objects, nil
}

var _ Client = (*RPCClient)(nil)
