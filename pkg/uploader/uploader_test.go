package uploader

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suistream/suistream/internal/testutil"
	"github.com/suistream/suistream/pkg/chain"
	"github.com/suistream/suistream/pkg/cost"
	"github.com/suistream/suistream/pkg/media"
	"github.com/suistream/suistream/pkg/relay"
)

// isManifest and isCover spot assets by their payload so tests can
// script failures for one specific asset without knowing blob ids up
// front.
func isManifest(p relay.UploadParams) bool {
	return bytes.HasPrefix(p.Body, []byte("#EXTM3U"))
}

func isCover(p relay.UploadParams) bool {
	return bytes.Equal(p.Body, []byte("cover-image"))
}

func testConfig(fc *testutil.FakeChain, fr *testutil.FakeRelay) Config {
	return Config{
		Chain:        fc,
		Signer:       &testutil.FakeSigner{Chain: fc},
		Relay:        fr,
		Escrow:       testutil.FakeEscrow{},
		Transcoder:   media.FixedSplitter{TotalDuration: 25},
		Estimator:    cost.Estimator{RatePerByteEpoch: 1, ExchangeNum: 1, ExchangeDen: 1},
		Epochs:       5,
		SplitSeconds: 10,
		BackoffBase:  time.Millisecond,
	}
}

func testRequest() Request {
	return Request{
		Title: "clip",
		Price: 100,
		Media: bytes.Repeat([]byte{0xC3}, 2500),
		Cover: []byte("cover-image"),
	}
}

func countTipCommands(fc *testutil.FakeChain) int {
	tips := 0
	for _, tx := range fc.Txs {
		for _, cmd := range tx.Commands {
			if _, ok := cmd.(chain.PayRelayTip); ok {
				tips++
			}
		}
	}
	return tips
}

func TestRunHappyPath(t *testing.T) {
	fc := testutil.NewFakeChain()
	fr := testutil.NewFakeRelay(25)
	cfg := testConfig(fc, fr)
	signer := cfg.Signer.(*testutil.FakeSigner)

	u, err := New(cfg)
	require.NoError(t, err)

	session, err := u.Run(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, session.Assets, 4)
	labels := []string{LabelVideo, LabelManifest, LabelCover, LabelKey}
	for i, asset := range session.Assets {
		assert.Equal(t, labels[i], asset.Label)
		assert.NotEmpty(t, asset.Address.BlobID)
		assert.Equal(t, "0xobj-"+asset.Address.BlobID, asset.ObjectID)
		assert.Contains(t, session.Certificates, asset.Address.BlobID)
	}

	// One registration, one fee per asset, one certification; each a
	// separate prompt.
	assert.Equal(t, 6, signer.Prompts)
	require.Len(t, fc.Txs, 6)

	reg := fc.Txs[0]
	var swaps, registers, transfers, metadata int
	for _, cmd := range reg.Commands {
		switch cmd.(type) {
		case chain.SwapForSettlement:
			swaps++
		case chain.RegisterBlob:
			registers++
		case chain.TransferRemainder:
			transfers++
		case chain.WriteVideoMetadata:
			metadata++
		case chain.PayRelayTip:
			t.Fatal("relay fee inside the registration transaction")
		}
	}
	assert.Equal(t, 1, swaps)
	assert.Equal(t, 4, registers)
	assert.Equal(t, 1, transfers)
	assert.Equal(t, 1, metadata)

	// Fee transactions carry the auth payload binding root, nonce and
	// size for their asset.
	for _, tx := range fc.Txs[1:5] {
		require.Len(t, tx.Commands, 1)
		tip, ok := tx.Commands[0].(chain.PayRelayTip)
		require.True(t, ok)
		assert.Equal(t, "0xrelay", tip.Recipient)
		assert.Equal(t, uint64(25), tip.Amount)
		assert.Len(t, tip.AuthPayload, 72)
	}

	// Every upload cites its own fee transaction as proof of payment.
	require.Len(t, fr.Uploads, 4)
	for i, up := range fr.Uploads {
		assert.Equal(t, session.Assets[i].TipTx, up.TipTx)
		assert.NotEqual(t, session.RegistrationDigest, up.TipTx)
		assert.NotEmpty(t, up.ObjectID)
	}

	// Certification is one transaction with one instruction per asset.
	certifyTx := fc.Txs[5]
	require.Len(t, certifyTx.Commands, 4)
	for _, cmd := range certifyTx.Commands {
		certify, ok := cmd.(chain.CertifyBlob)
		require.True(t, ok)
		assert.True(t, certify.Certificate.Valid())
	}
}

func TestFreeRelaySkipsFeeTransactions(t *testing.T) {
	fc := testutil.NewFakeChain()
	fr := testutil.NewFakeRelay(0)
	u, err := New(testConfig(fc, fr))
	require.NoError(t, err)

	session, err := u.Run(context.Background(), testRequest())
	require.NoError(t, err)

	// Registration and certification only; uploads cite registration.
	assert.Len(t, fc.Txs, 2)
	assert.Zero(t, countTipCommands(fc))
	for _, up := range fr.Uploads {
		assert.Equal(t, session.RegistrationDigest, up.TipTx)
	}
}

func TestTransmitRetriesTransientFailures(t *testing.T) {
	fr := testutil.NewFakeRelay(25)
	fr.FailFor = func(p relay.UploadParams, attempt int) error {
		if isManifest(p) && attempt < 3 {
			return &relay.TransientError{Err: errors.New("relay busy")}
		}
		return nil
	}

	u, err := New(testConfig(testutil.NewFakeChain(), fr))
	require.NoError(t, err)

	session, err := u.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Len(t, session.Certificates, 4)

	manifest := session.Assets[1]
	assert.Equal(t, 3, fr.Attempts[manifest.Address.BlobID])
}

func TestTransmitFatalFailureStopsFlow(t *testing.T) {
	fc := testutil.NewFakeChain()
	fr := testutil.NewFakeRelay(25)
	fr.FailFor = func(p relay.UploadParams, _ int) error {
		if isCover(p) {
			return &relay.FatalError{Err: errors.New("payload rejected")}
		}
		return nil
	}

	u, err := New(testConfig(fc, fr))
	require.NoError(t, err)

	session, err := u.Prepare(context.Background(), testRequest())
	require.NoError(t, err)

	err = session.Transmit(context.Background())
	var failed *TransmissionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, LabelCover, failed.Label)
	assert.Equal(t, 1, failed.Attempts)

	// The flow stopped at the cover: the first two certificates survive,
	// the key was never attempted.
	assert.Len(t, session.Certificates, 2)
	require.Len(t, fr.Uploads, 3)

	// Certification refuses to run on the incomplete set.
	err = session.Certify(context.Background())
	var precondition *CertificationPreconditionError
	require.ErrorAs(t, err, &precondition)
	assert.Equal(t, []string{LabelCover, LabelKey}, precondition.Missing)

	// After the relay recovers, only the outstanding assets go over the
	// wire, and the cover's fee is not paid a second time.
	fr.FailFor = nil
	require.NoError(t, session.Transmit(context.Background()))
	assert.Len(t, fr.Uploads, 5)
	assert.Len(t, session.Certificates, 4)
	assert.Equal(t, 4, countTipCommands(fc))

	require.NoError(t, session.Certify(context.Background()))
}

func TestTransmitExhaustsAttemptBudget(t *testing.T) {
	fr := testutil.NewFakeRelay(25)
	fr.FailFor = func(p relay.UploadParams, _ int) error {
		if isManifest(p) {
			return &relay.TransientError{Err: errors.New("still busy")}
		}
		return nil
	}

	u, err := New(testConfig(testutil.NewFakeChain(), fr))
	require.NoError(t, err)

	session, err := u.Prepare(context.Background(), testRequest())
	require.NoError(t, err)

	err = session.Transmit(context.Background())
	var failed *TransmissionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, LabelManifest, failed.Label)
	assert.Equal(t, 3, failed.Attempts)
	assert.Len(t, session.Certificates, 1)
}

func TestPrepareRequiresCover(t *testing.T) {
	u, err := New(testConfig(testutil.NewFakeChain(), testutil.NewFakeRelay(0)))
	require.NoError(t, err)

	req := testRequest()
	req.Cover = nil // FixedSplitter extracts no frame either
	_, err = u.Prepare(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cover")
}

func TestTransmitBeforePrepareState(t *testing.T) {
	s := &Session{u: &Uploader{cfg: Config{}}}
	require.Error(t, s.Transmit(context.Background()))
}

func TestConfigValidation(t *testing.T) {
	fc := testutil.NewFakeChain()
	fr := testutil.NewFakeRelay(0)

	_, err := New(Config{})
	assert.Error(t, err)

	cfg := testConfig(fc, fr)
	cfg.Epochs = 0
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = testConfig(fc, fr)
	cfg.MaxAttempts = 0
	u, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, u.cfg.MaxAttempts)
	assert.Equal(t, time.Millisecond, u.cfg.BackoffBase)
}

func TestStatusPhasesInOrder(t *testing.T) {
	var phases []Phase
	cfg := testConfig(testutil.NewFakeChain(), testutil.NewFakeRelay(0))
	cfg.OnStatus = func(s Status) {
		if len(phases) == 0 || phases[len(phases)-1] != s.Phase {
			phases = append(phases, s.Phase)
		}
	}

	u, err := New(cfg)
	require.NoError(t, err)
	_, err = u.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, []Phase{
		PhaseEncoding,
		PhaseAddressing,
		PhaseCostEstimated,
		PhaseRegistrationBuilt,
		PhaseRegistrationSubmitted,
		PhaseAwaitingVisibility,
		PhasePerAssetTransmission,
		PhaseCertifying,
		PhaseDone,
	}, phases)
}
