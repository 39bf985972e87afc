package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suistream/suistream/pkg/address"
	"github.com/suistream/suistream/pkg/chain"
)

func testCertificate() chain.Certificate {
	return chain.Certificate{
		Signers:           []uint16{0, 2, 5},
		SerializedMessage: chain.B64Bytes("confirmation"),
		Signature:         chain.B64Bytes("aggregate-sig"),
	}
}

func TestTipConfigNumberAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/tip-config", r.URL.Path)
		_, _ = w.Write([]byte(`{"address":"0xrelay","amount":105}`))
	}))
	defer srv.Close()

	cfg, err := NewClient(srv.URL, nil).TipConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xrelay", cfg.Recipient)
	assert.Equal(t, uint64(105), cfg.Amount)
}

func TestTipConfigStringAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"address":"0xrelay","amount":"9000000"}`))
	}))
	defer srv.Close()

	cfg, err := NewClient(srv.URL, nil).TipConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xrelay", cfg.Recipient)
	assert.Equal(t, uint64(9000000), cfg.Amount)
}

func TestTipConfigRecipientKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"recipient":"0xrelay","amount":7}`))
	}))
	defer srv.Close()

	cfg, err := NewClient(srv.URL, nil).TipConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xrelay", cfg.Recipient)
	assert.Equal(t, uint64(7), cfg.Amount)
}

func TestTipConfigFreeRelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"address":"0xrelay"}`))
	}))
	defer srv.Close()

	cfg, err := NewClient(srv.URL, nil).TipConfig(context.Background())
	require.NoError(t, err)
	assert.Zero(t, cfg.Amount)
}

func TestUploadSendsQueryParamsAndBody(t *testing.T) {
	var nonce [address.NonceSize]byte
	nonce[0] = 0xAB

	var got *http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		gotBody, _ = io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(map[string]any{"certificate": testCertificate()})
	}))
	defer srv.Close()

	cert, err := NewClient(srv.URL, nil).Upload(context.Background(), UploadParams{
		BlobID:       "blob-1",
		Nonce:        nonce,
		TipTx:        "0xd1",
		ObjectID:     "0xo1",
		Deletable:    true,
		EncodingType: "RS2",
		Body:         []byte("encrypted-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, testCertificate(), cert)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/v1/blob-upload-relay", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "blob-1", q.Get("blob_id"))
	assert.Equal(t, address.NonceBase64(nonce), q.Get("nonce"))
	assert.Equal(t, "0xd1", q.Get("tx_id"))
	assert.Equal(t, "0xo1", q.Get("blob_object_id"))
	assert.Equal(t, "true", q.Get("deletable"))
	assert.Equal(t, "RS2", q.Get("encoding_type"))
	assert.Equal(t, "application/octet-stream", got.Header.Get("Content-Type"))
	assert.Equal(t, []byte("encrypted-bytes"), gotBody)
}

func TestUploadRejectsIncompleteParams(t *testing.T) {
	_, err := NewClient("http://unused", nil).Upload(context.Background(), UploadParams{BlobID: "blob-1"})
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
}

func TestUploadMissingCertificateIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Upload(context.Background(), UploadParams{
		BlobID: "blob-1", ObjectID: "0xo1", Body: []byte("x"),
	})
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"unauthorized", http.StatusUnauthorized, "auth window expired", true},
		{"rate limited", http.StatusTooManyRequests, "slow down", true},
		{"server error", http.StatusBadGateway, "upstream down", true},
		{"nonce race", http.StatusConflict, `{"code":4102,"message":"nonce not yet indexed"}`, true},
		{"bad request", http.StatusBadRequest, "malformed blob id", false},
		{"payload rejected", http.StatusUnprocessableEntity, "root mismatch", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, nil).Upload(context.Background(), UploadParams{
				BlobID: "blob-1", ObjectID: "0xo1", Body: []byte("x"),
			})
			require.Error(t, err)
			var transient *TransientError
			var fatal *FatalError
			if tc.transient {
				assert.ErrorAs(t, err, &transient)
			} else {
				assert.ErrorAs(t, err, &fatal)
			}
		})
	}
}

func TestConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connect will be refused

	_, err := NewClient(srv.URL, nil).Upload(context.Background(), UploadParams{
		BlobID: "blob-1", ObjectID: "0xo1", Body: []byte("x"),
	})
	var transient *TransientError
	require.ErrorAs(t, err, &transient)
}
