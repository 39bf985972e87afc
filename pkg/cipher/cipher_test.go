package cipher

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suistream/suistream/pkg/media"
)

func testSegments(sizes ...int) []media.Segment {
	segments := make([]media.Segment, len(sizes))
	for i, size := range sizes {
		data := make([]byte, size)
		for j := range data {
			data[j] = byte(i + j)
		}
		segments[i] = media.Segment{Index: i, Data: data, Duration: 10}
	}
	return segments
}

func TestEncryptSegmentsPadsToBlockSize(t *testing.T) {
	segments := testSegments(100, 160, 1)
	key, err := NewKey()
	require.NoError(t, err)

	require.NoError(t, EncryptSegments(context.Background(), segments, key))

	// 100 -> 112, 160 -> 176 (full extra block on the boundary), 1 -> 16.
	assert.Equal(t, 112, len(segments[0].Data))
	assert.Equal(t, 176, len(segments[1].Data))
	assert.Equal(t, 16, len(segments[2].Data))

	for _, seg := range segments {
		assert.Equal(t, 0, len(seg.Data)%16)
		assert.Len(t, seg.IV, IVSize)
	}
}

func TestEncryptSegmentsFreshIVs(t *testing.T) {
	segments := testSegments(32, 32, 32, 32)
	key, err := NewKey()
	require.NoError(t, err)
	require.NoError(t, EncryptSegments(context.Background(), segments, key))

	seen := make(map[string]bool)
	for _, seg := range segments {
		require.False(t, seen[string(seg.IV)], "iv reused across segments")
		seen[string(seg.IV)] = true
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	segments := testSegments(1000)
	original := bytes.Clone(segments[0].Data)
	key, err := NewKey()
	require.NoError(t, err)
	require.NoError(t, EncryptSegments(context.Background(), segments, key))

	assert.NotEqual(t, original, segments[0].Data)

	plain, err := DecryptSegment(segments[0].Data, key, segments[0].IV)
	require.NoError(t, err)
	assert.Equal(t, original, plain)
}

func TestEncryptSegmentsKeyLength(t *testing.T) {
	segments := testSegments(16)
	err := EncryptSegments(context.Background(), segments, []byte("short"))
	assert.ErrorIs(t, err, ErrKeyLength)

	err = EncryptSegments(context.Background(), segments, make([]byte, 32))
	assert.ErrorIs(t, err, ErrKeyLength)
}

func TestDecryptSegmentValidation(t *testing.T) {
	key := make([]byte, KeySize)
	_, err := DecryptSegment(make([]byte, 16), key, make([]byte, 8))
	assert.ErrorIs(t, err, ErrIVLength)

	_, err = DecryptSegment(make([]byte, 15), key, make([]byte, IVSize))
	assert.Error(t, err)
}

func TestEncryptSegmentsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	key, err := NewKey()
	require.NoError(t, err)
	err = EncryptSegments(ctx, testSegments(16, 16), key)
	assert.ErrorIs(t, err, context.Canceled)
}
