package escrow

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a key-escrow service over HTTP.
type Client struct {
	baseURL string
	appID   string
	hc      *http.Client
}

// NewClient builds a client for the escrow service at baseURL. The
// application identifier is part of the encryption identity alongside the
// policy identifier.
func NewClient(baseURL, appID string) *Client {
	return &Client{
		baseURL: baseURL,
		appID:   appID,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

type wrapRequest struct {
	AppID     string `json:"appId"`
	PolicyID  string `json:"policyId"`  // url-safe base64
	Plaintext string `json:"plaintext"` // url-safe base64
}

type wrapResponse struct {
	Wrapped string `json:"wrapped"` // url-safe base64
}

// Wrap sends the plaintext to the escrow service and returns the
// identity-bound ciphertext.
func (c *Client) Wrap(ctx context.Context, plaintext []byte, policyID []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, ErrEmptyPlaintext
	}
	if len(policyID) != PolicyIDSize {
		return nil, fmt.Errorf("escrow: policy id must be %d bytes, got %d", PolicyIDSize, len(policyID))
	}

	body, err := json.Marshal(wrapRequest{
		AppID:     c.appID,
		PolicyID:  base64.RawURLEncoding.EncodeToString(policyID),
		Plaintext: base64.RawURLEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return nil, fmt.Errorf("encode wrap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/wrap", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build wrap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("escrow wrap: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read wrap response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("escrow wrap: HTTP %d: %s", resp.StatusCode, respBody)
	}

	var decoded wrapResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode wrap response: %w", err)
	}
	wrapped, err := base64.RawURLEncoding.DecodeString(decoded.Wrapped)
	if err != nil {
		return nil, fmt.Errorf("decode wrapped key: %w", err)
	}
	if len(wrapped) == 0 {
		return nil, fmt.Errorf("escrow wrap: empty ciphertext in response")
	}

	return wrapped, nil
}

var _ Service = (*Client)(nil)
