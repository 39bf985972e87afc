package uploader

import (
	"context"
	"errors"
	"fmt"

	"github.com/suistream/suistream/pkg/address"
	"github.com/suistream/suistream/pkg/chain"
	"github.com/suistream/suistream/pkg/relay"
)

// Transmit delivers every asset to the relay, in order, one at a time:
// pay the relay fee with a dedicated signed transaction, wait until the
// fee is visible, then upload the bytes citing the fee digest. Transient
// relay failures retry with quadratic backoff up to the attempt budget;
// any other failure stops the flow at that asset. Assets whose
// certificates are already cached are skipped, so calling Transmit again
// after a failure only repeats the outstanding work.
//
// Registration is already on chain at this point, so the flow runs to
// completion or hard-fails regardless of the caller's cancellation.
func (s *Session) Transmit(ctx context.Context) error {
	if s.RegistrationDigest == "" {
		return fmt.Errorf("uploader: transmit before registration")
	}
	ctx = context.WithoutCancel(ctx)
	s.u.status(Status{Phase: PhasePerAssetTransmission})

	for i := range s.Assets {
		asset := &s.Assets[i]
		if _, ok := s.Certificates[asset.Address.BlobID]; ok {
			continue
		}
		if err := s.payTip(ctx, asset); err != nil {
			return err
		}
		cert, err := s.transmitOne(ctx, asset)
		if err != nil {
			return err
		}
		s.Certificates[asset.Address.BlobID] = cert
	}
	return nil
}

// payTip settles the relay fee for one asset. The fee transaction
// carries the auth payload binding root, nonce and size, so the relay
// can verify the transmitted bytes match what was paid for. The digest
// sticks to the asset; a repeated Transmit never pays twice. A free
// relay is proven by the registration transaction instead.
func (s *Session) payTip(ctx context.Context, asset *Asset) error {
	if asset.TipTx != "" {
		return nil
	}
	if s.Tip.Amount == 0 {
		asset.TipTx = s.RegistrationDigest
		return nil
	}

	cfg := s.u.cfg
	tx := &chain.Transaction{Sender: cfg.Signer.Address()}
	tx.Add(chain.PayRelayTip{
		Recipient:   s.Tip.Recipient,
		Amount:      s.Tip.Amount,
		AuthPayload: address.AuthPayload(asset.Address.Root, asset.Address.Nonce, asset.Address.Size),
	})

	result, err := cfg.Signer.SignAndSubmit(ctx, tx)
	if err != nil {
		return fmt.Errorf("pay relay fee for %s: %w", asset.Label, err)
	}
	if err := cfg.Chain.WaitForTransaction(ctx, result.Digest); err != nil {
		return fmt.Errorf("await relay fee %s: %w", result.Digest, err)
	}
	asset.TipTx = result.Digest
	return nil
}

func (s *Session) transmitOne(ctx context.Context, asset *Asset) (chain.Certificate, error) {
	cfg := s.u.cfg
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		s.u.status(Status{Phase: PhasePerAssetTransmission, Asset: asset.Label, Attempt: attempt})

		cert, err := cfg.Relay.Upload(ctx, relay.UploadParams{
			BlobID:       asset.Address.BlobID,
			Nonce:        asset.Address.Nonce,
			TipTx:        asset.TipTx,
			ObjectID:     asset.ObjectID,
			Deletable:    cfg.Deletable,
			EncodingType: cfg.EncodingType,
			Body:         asset.Blob,
		})
		if err == nil {
			return cert, nil
		}
		lastErr = err
		s.u.status(Status{Phase: PhasePerAssetTransmission, Asset: asset.Label, Attempt: attempt, Err: err})

		var transient *relay.TransientError
		if !errors.As(err, &transient) {
			return chain.Certificate{}, &TransmissionFailedError{Label: asset.Label, Attempts: attempt, Err: err}
		}
		if attempt < cfg.MaxAttempts {
			if err := s.u.backoff(ctx, attempt); err != nil {
				return chain.Certificate{}, &TransmissionFailedError{Label: asset.Label, Attempts: attempt, Err: err}
			}
		}
	}
	return chain.Certificate{}, &TransmissionFailedError{Label: asset.Label, Attempts: cfg.MaxAttempts, Err: lastErr}
}

// Certify submits one final transaction carrying a certification
// instruction per asset, with a single signing prompt. It refuses to
// start unless every asset holds a certificate, so a video is never
// certified from a known-incomplete transmission.
func (s *Session) Certify(ctx context.Context) error {
	var missing []string
	for _, asset := range s.Assets {
		if _, ok := s.Certificates[asset.Address.BlobID]; !ok {
			missing = append(missing, asset.Label)
		}
	}
	if len(missing) > 0 {
		return &CertificationPreconditionError{Missing: missing}
	}
	if s.certified {
		return nil
	}

	s.u.status(Status{Phase: PhaseCertifying})
	cfg := s.u.cfg
	tx := &chain.Transaction{Sender: cfg.Signer.Address()}
	for _, asset := range s.Assets {
		tx.Add(chain.CertifyBlob{
			BlobID:      asset.Address.BlobID,
			ObjectID:    asset.ObjectID,
			Deletable:   cfg.Deletable,
			Certificate: s.Certificates[asset.Address.BlobID],
		})
	}

	result, err := cfg.Signer.SignAndSubmit(ctx, tx)
	if err != nil {
		return s.certifyError(fmt.Errorf("submit certification: %w", err))
	}
	if err := cfg.Chain.WaitForTransaction(context.WithoutCancel(ctx), result.Digest); err != nil {
		return s.certifyError(fmt.Errorf("await certification %s: %w", result.Digest, err))
	}
	s.certified = true

	s.u.status(Status{Phase: PhaseDone})
	return nil
}

// certifyError reports a failed certification transaction. The
// transaction is atomic, so every asset remains uncertified.
func (s *Session) certifyError(err error) error {
	labels := make([]string, len(s.Assets))
	for i, asset := range s.Assets {
		labels[i] = asset.Label
	}
	return &CertificationSubmissionError{Uncertified: labels, Err: err}
}
