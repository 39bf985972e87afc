package address

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIdempotentIDAndRoot(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i)
	}

	a, err := Compute(data, 10)
	require.NoError(t, err)
	b, err := Compute(data, 10)
	require.NoError(t, err)

	assert.Equal(t, a.BlobID, b.BlobID)
	assert.Equal(t, a.Root, b.Root)
	assert.Equal(t, a.Size, b.Size)

	// The nonce binds one registration and must differ per call.
	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.AuthDigest, b.AuthDigest)
}

func TestComputeShardCountChangesID(t *testing.T) {
	data := make([]byte, 4096)
	a, err := Compute(data, 10)
	require.NoError(t, err)
	b, err := Compute(data, 11)
	require.NoError(t, err)

	assert.NotEqual(t, a.BlobID, b.BlobID)
	assert.NotEqual(t, a.Root, b.Root)
}

func TestComputeDifferentBytesDifferentID(t *testing.T) {
	a, err := Compute([]byte("hello world"), 4)
	require.NoError(t, err)
	b, err := Compute([]byte("hello worle"), 4)
	require.NoError(t, err)
	assert.NotEqual(t, a.BlobID, b.BlobID)
}

func TestComputeValidation(t *testing.T) {
	var computeErr *ComputeError

	_, err := Compute(nil, 10)
	require.ErrorAs(t, err, &computeErr)

	_, err = Compute([]byte("x"), 0)
	require.ErrorAs(t, err, &computeErr)

	_, err = Compute([]byte("x"), -3)
	require.ErrorAs(t, err, &computeErr)
}

func TestComputeTinyInput(t *testing.T) {
	// Fewer bytes than shards must still address cleanly.
	a, err := Compute([]byte{0xAB}, 1000)
	require.NoError(t, err)
	assert.NotEmpty(t, a.BlobID)
	assert.Equal(t, uint64(1), a.Size)
}

func TestAuthPayloadExactLayout(t *testing.T) {
	var root [32]byte
	var nonce [NonceSize]byte
	for i := range root {
		root[i] = byte(i)
	}
	for i := range nonce {
		nonce[i] = byte(0xF0 - i)
	}
	const size = uint64(123456789)

	payload := AuthPayload(root, nonce, size)
	require.Len(t, payload, 72)

	nonceDigest := sha256.Sum256(nonce[:])
	assert.Equal(t, root[:], payload[:32])
	assert.Equal(t, nonceDigest[:], payload[32:64])
	assert.Equal(t, size, binary.LittleEndian.Uint64(payload[64:]))
}

func TestAuthDigestOrderSensitive(t *testing.T) {
	var root [32]byte
	var nonce [NonceSize]byte
	root[0] = 1
	nonce[0] = 2
	const size = uint64(42)

	payload := AuthPayload(root, nonce, size)
	digest := sha256.Sum256(payload)

	// Swapping root and hash(nonce) in the concatenation must change the
	// digest: the relay recomputes the exact byte layout.
	nonceDigest := sha256.Sum256(nonce[:])
	swapped := make([]byte, 0, len(payload))
	swapped = append(swapped, nonceDigest[:]...)
	swapped = append(swapped, root[:]...)
	swapped = binary.LittleEndian.AppendUint64(swapped, size)
	swappedDigest := sha256.Sum256(swapped)

	assert.NotEqual(t, digest, swappedDigest)
}

func TestComputeAuthDigestMatchesPayload(t *testing.T) {
	addr, err := Compute([]byte("some asset bytes"), 4)
	require.NoError(t, err)

	want := sha256.Sum256(AuthPayload(addr.Root, addr.Nonce, addr.Size))
	assert.Equal(t, want, addr.AuthDigest)
}

func TestNonceBase64IsURLSafe(t *testing.T) {
	var nonce [NonceSize]byte
	for i := range nonce {
		nonce[i] = 0xFF
	}
	s := NonceBase64(nonce)
	assert.NotContains(t, s, "+")
	assert.NotContains(t, s, "/")
	assert.NotContains(t, s, "=")
}
