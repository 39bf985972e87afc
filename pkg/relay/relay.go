// Package relay talks to the upload relay: the HTTP service that accepts
// asset bytes on behalf of the storage network and returns a certificate
// once enough storage nodes hold them. Errors are classified as transient
// or fatal so the orchestrator knows which transmissions to retry.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/suistream/suistream/pkg/address"
	"github.com/suistream/suistream/pkg/chain"
)

// relayCodeNonceRace is returned when the relay saw the registration
// before its nonce index caught up. It resolves on its own.
const relayCodeNonceRace = 4102

// TransientError wraps a failure that a later attempt may resolve:
// network timeouts, stale auth windows, the relay's own nonce race.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "relay: transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// FatalError wraps a failure no retry will fix, such as a rejected
// payload or a malformed request.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "relay: fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// TipConfig is the relay's advertised fee requirement.
type TipConfig struct {
	// Recipient is the relay's fee address.
	Recipient string
	// Amount is the flat fee per asset in native units. Zero means the
	// relay works for free and no tip command is needed.
	Amount uint64
}

// The relay serves the fee address under "address" and the amount as
// either a JSON number or a decimal string, depending on its version.
// "recipient" is accepted as an alternative address key.
func (t *TipConfig) UnmarshalJSON(data []byte) error {
	var wire struct {
		Address   string          `json:"address"`
		Recipient string          `json:"recipient"`
		Amount    json.RawMessage `json:"amount"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	t.Recipient = wire.Address
	if t.Recipient == "" {
		t.Recipient = wire.Recipient
	}
	t.Amount = 0
	if len(wire.Amount) == 0 || string(wire.Amount) == "null" {
		return nil
	}
	if wire.Amount[0] == '"' {
		var s string
		if err := json.Unmarshal(wire.Amount, &s); err != nil {
			return err
		}
		amount, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse tip amount %q: %w", s, err)
		}
		t.Amount = amount
		return nil
	}
	return json.Unmarshal(wire.Amount, &t.Amount)
}

// UploadParams carries everything one blob transmission needs.
type UploadParams struct {
	BlobID string
	Nonce  [address.NonceSize]byte
	// TipTx is the digest of the transaction that paid the relay fee.
	TipTx string
	// ObjectID is the on-chain blob object created by registration.
	ObjectID     string
	Deletable    bool
	EncodingType string
	Body         []byte
}

// Client is an HTTP client for one relay host.
type Client struct {
	host string
	hc   *http.Client
	log  *slog.Logger
}

// NewClient builds a client for the relay at host, e.g.
// "https://relay.example.org". A nil logger disables request logging.
func NewClient(host string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		host: host,
		hc:   &http.Client{Timeout: 5 * time.Minute},
		log:  logger,
	}
}

// TipConfig fetches the relay's current fee requirement.
func (c *Client) TipConfig(ctx context.Context) (TipConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/v1/tip-config", nil)
	if err != nil {
		return TipConfig{}, &FatalError{Err: err}
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return TipConfig{}, classifyNetError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TipConfig{}, &TransientError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return TipConfig{}, classifyStatus(resp.StatusCode, body)
	}

	var cfg TipConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return TipConfig{}, &FatalError{Err: fmt.Errorf("decode tip config: %w", err)}
	}
	return cfg, nil
}

// Upload transmits one blob's bytes and returns the relay certificate.
func (c *Client) Upload(ctx context.Context, p UploadParams) (chain.Certificate, error) {
	if p.BlobID == "" || p.ObjectID == "" || len(p.Body) == 0 {
		return chain.Certificate{}, &FatalError{Err: fmt.Errorf("incomplete upload params for blob %q", p.BlobID)}
	}

	q := url.Values{}
	q.Set("blob_id", p.BlobID)
	q.Set("nonce", address.NonceBase64(p.Nonce))
	q.Set("tx_id", p.TipTx)
	q.Set("blob_object_id", p.ObjectID)
	q.Set("deletable", strconv.FormatBool(p.Deletable))
	if p.EncodingType != "" {
		q.Set("encoding_type", p.EncodingType)
	}

	endpoint := c.host + "/v1/blob-upload-relay?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(p.Body))
	if err != nil {
		return chain.Certificate{}, &FatalError{Err: err}
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return chain.Certificate{}, classifyNetError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return chain.Certificate{}, &TransientError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return chain.Certificate{}, classifyStatus(resp.StatusCode, body)
	}

	var decoded struct {
		Certificate *chain.Certificate `json:"certificate"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return chain.Certificate{}, &FatalError{Err: fmt.Errorf("decode upload response: %w", err)}
	}
	if decoded.Certificate == nil || !decoded.Certificate.Valid() {
		return chain.Certificate{}, &FatalError{Err: fmt.Errorf("relay returned no usable certificate for blob %s", p.BlobID)}
	}

	c.log.Info("blob transmitted",
		"blobID", p.BlobID,
		"bytes", len(p.Body),
		"took", time.Since(start))
	return *decoded.Certificate, nil
}

func classifyNetError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransientError{Err: err}
	}
	// Connection-level failures (refused, reset, DNS) can clear up too.
	return &TransientError{Err: err}
}

func classifyStatus(status int, body []byte) error {
	err := fmt.Errorf("HTTP %d: %s", status, bytes.TrimSpace(body))
	switch {
	case status == http.StatusUnauthorized:
		// The auth window expired or the relay has not yet seen the tip
		// transaction; a retry with the same nonce can succeed.
		return &TransientError{Err: err}
	case status == http.StatusTooManyRequests:
		return &TransientError{Err: err}
	case status >= 500:
		return &TransientError{Err: err}
	case hasRelayCode(body, relayCodeNonceRace):
		return &TransientError{Err: err}
	default:
		return &FatalError{Err: err}
	}
}

func hasRelayCode(body []byte, code int) bool {
	var decoded struct {
		Code int `json:"code"`
	}
	if json.Unmarshal(body, &decoded) != nil {
		return false
	}
	return decoded.Code == code
}
