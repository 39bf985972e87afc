package suistream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suistream/suistream/internal/testutil"
	"github.com/suistream/suistream/pkg/cost"
	"github.com/suistream/suistream/pkg/media"
	"github.com/suistream/suistream/pkg/relay"
	"github.com/suistream/suistream/pkg/uploader"
)

func testHandle(t *testing.T, fr *testutil.FakeRelay) *SuiStream {
	t.Helper()
	fc := testutil.NewFakeChain()

	s, err := New(Config{
		DataDir:    t.TempDir(),
		Epochs:     5,
		Estimator:  cost.Estimator{RatePerByteEpoch: 1, ExchangeNum: 1, ExchangeDen: 1},
		Chain:      fc,
		Signer:     &testutil.FakeSigner{Chain: fc},
		Relay:      fr,
		Escrow:     testutil.FakeEscrow{},
		Transcoder: media.FixedSplitter{TotalDuration: 25},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func testPublishRequest() uploader.Request {
	return uploader.Request{
		Title: "clip",
		Price: 50,
		Media: bytes.Repeat([]byte{0xAB}, 2500),
		Cover: []byte("cover-image"),
	}
}

func TestPublishStoresCertifiedRecord(t *testing.T) {
	s := testHandle(t, testutil.NewFakeRelay(10))

	result, err := s.Publish(context.Background(), testPublishRequest())
	require.NoError(t, err)
	assert.True(t, result.Record.Certified)
	assert.NotEmpty(t, result.Record.VideoID)
	assert.NotEmpty(t, result.Record.ManifestID)
	assert.NotEmpty(t, result.Record.CoverID)
	assert.NotEmpty(t, result.Record.KeyID)
	assert.NotEmpty(t, result.Record.Digest)
	assert.Equal(t, uint64(5), result.Record.Epochs)

	got, err := s.Video(result.Record.VideoID)
	require.NoError(t, err)
	assert.Equal(t, "clip", got.Title)

	videos, err := s.Videos()
	require.NoError(t, err)
	assert.Len(t, videos, 1)
}

func TestPublishKeepsUncertifiedRecordOnFailure(t *testing.T) {
	fr := testutil.NewFakeRelay(10)
	fr.FailFor = func(relay.UploadParams, int) error {
		return &relay.FatalError{Err: errors.New("rejected")}
	}
	s := testHandle(t, fr)

	result, err := s.Publish(context.Background(), testPublishRequest())
	require.Error(t, err)
	require.NotNil(t, result.Session)
	assert.False(t, result.Record.Certified)

	// The registration made it on chain, so the record is findable.
	got, err := s.Video(result.Record.VideoID)
	require.NoError(t, err)
	assert.False(t, got.Certified)
}

func TestEstimate(t *testing.T) {
	s := testHandle(t, testutil.NewFakeRelay(0))

	settlement, funding, err := s.Estimate(1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), settlement)
	assert.Equal(t, uint64(5000), funding)
}

func TestForget(t *testing.T) {
	s := testHandle(t, testutil.NewFakeRelay(0))

	result, err := s.Publish(context.Background(), testPublishRequest())
	require.NoError(t, err)

	require.NoError(t, s.Forget(result.Record.VideoID))
	_, err = s.Video(result.Record.VideoID)
	assert.Error(t, err)
}

func TestLifecycle(t *testing.T) {
	s, err := New(Config{
		DataDir:    t.TempDir(),
		Epochs:     1,
		Chain:      testutil.NewFakeChain(),
		Signer:     &testutil.FakeSigner{Chain: testutil.NewFakeChain()},
		Relay:      testutil.NewFakeRelay(0),
		Escrow:     testutil.FakeEscrow{},
		Transcoder: media.FixedSplitter{TotalDuration: 10},
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	// Catalog access before Start fails cleanly.
	_, err = s.Videos()
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background())) // idempotent

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background())) // idempotent

	_, err = s.Videos()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{DataDir: t.TempDir()})
	assert.Error(t, err) // no endpoints, no collaborators
}
