package uploader

import (
	"context"
	"fmt"
	"sync"

	"github.com/suistream/suistream/pkg/address"
	"github.com/suistream/suistream/pkg/chain"
	"github.com/suistream/suistream/pkg/cipher"
	"github.com/suistream/suistream/pkg/escrow"
	"github.com/suistream/suistream/pkg/playlist"
	"github.com/suistream/suistream/pkg/relay"
)

// Asset is one of the four blobs a session registers and transmits.
type Asset struct {
	Label       string
	Blob        []byte
	ContentType string
	Address     address.Address
	// ObjectID is the on-chain registration object, known after the
	// registration transaction becomes visible.
	ObjectID string
	// TipTx is the digest of the relay fee transaction for this asset,
	// cited by the upload as proof of payment. For a free relay it is
	// the registration digest.
	TipTx string
}

// Session is one publish in flight. Prepare builds it; Transmit and
// Certify advance it. Certificates earned so far stay cached on the
// session, so a retried Transmit skips assets the relay already
// confirmed.
type Session struct {
	Assets             []Asset
	PolicyID           []byte
	RegistrationDigest string
	Tip                relay.TipConfig
	// SettlementCost is the estimated storage price in settlement units.
	SettlementCost uint64
	// FundingAmount is the native amount swapped to cover it.
	FundingAmount uint64

	Certificates map[string]chain.Certificate

	u         *Uploader
	certified bool
}

// Prepare runs the local pipeline and the registration transaction:
// segment, encrypt, assemble, wrap the key, address all four assets,
// estimate cost, then register them atomically and wait until the
// created objects are visible.
func (u *Uploader) Prepare(ctx context.Context, req Request) (*Session, error) {
	if len(req.Media) == 0 {
		return nil, fmt.Errorf("uploader: empty media input")
	}

	u.status(Status{Phase: PhaseEncoding})
	segments, frame, err := u.cfg.Transcoder.Split(ctx, req.Media, u.cfg.SplitSeconds, req.Duration)
	if err != nil {
		return nil, fmt.Errorf("split media: %w", err)
	}

	key, err := cipher.NewKey()
	if err != nil {
		return nil, err
	}
	if err := cipher.EncryptSegments(ctx, segments, key); err != nil {
		return nil, fmt.Errorf("encrypt segments: %w", err)
	}

	assembled, err := playlist.Assemble(segments, u.cfg.SplitSeconds)
	if err != nil {
		return nil, err
	}

	policyID, err := escrow.NewPolicyID()
	if err != nil {
		return nil, err
	}
	wrappedKey, err := u.cfg.Escrow.Wrap(ctx, key, policyID)
	if err != nil {
		return nil, fmt.Errorf("wrap content key: %w", err)
	}

	cover := req.Cover
	if len(cover) == 0 {
		cover = frame
	}
	if len(cover) == 0 {
		return nil, fmt.Errorf("uploader: no cover image: transcoder produced no frame and none was supplied")
	}

	session := &Session{
		Assets: []Asset{
			{Label: LabelVideo, Blob: assembled.Merged, ContentType: "application/octet-stream"},
			{Label: LabelManifest, Blob: []byte(assembled.Manifest), ContentType: "application/vnd.apple.mpegurl"},
			{Label: LabelCover, Blob: cover, ContentType: "image/jpeg"},
			{Label: LabelKey, Blob: wrappedKey, ContentType: "application/octet-stream"},
		},
		PolicyID:     policyID,
		Certificates: make(map[string]chain.Certificate),
		u:            u,
	}

	u.status(Status{Phase: PhaseAddressing})
	if err := session.computeAddresses(ctx); err != nil {
		return nil, err
	}

	if err := session.estimate(ctx); err != nil {
		return nil, err
	}
	u.status(Status{Phase: PhaseCostEstimated})

	if err := session.register(ctx, req); err != nil {
		return nil, err
	}
	return session, nil
}

// computeAddresses derives all four content addresses under one shard
// count snapshot. The computations are independent and CPU-bound, so
// they run concurrently and join before anything touches the chain.
func (s *Session) computeAddresses(ctx context.Context) error {
	shardCount, err := s.u.cfg.Chain.ShardCount(ctx)
	if err != nil {
		return fmt.Errorf("read shard count: %w", err)
	}

	errs := make([]error, len(s.Assets))
	var wg sync.WaitGroup
	for i := range s.Assets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr, err := address.Compute(s.Assets[i].Blob, shardCount)
			if err != nil {
				errs[i] = fmt.Errorf("address %s: %w", s.Assets[i].Label, err)
				return
			}
			s.Assets[i].Address = addr
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) estimate(ctx context.Context) error {
	var settlement uint64
	for _, asset := range s.Assets {
		c, err := s.u.cfg.Estimator.StorageCost(asset.Address.Size, s.u.cfg.Epochs)
		if err != nil {
			return fmt.Errorf("estimate %s: %w", asset.Label, err)
		}
		settlement += c
	}
	funding, err := s.u.cfg.Estimator.FundingAmount(settlement)
	if err != nil {
		return err
	}
	s.SettlementCost = settlement
	s.FundingAmount = funding

	tip, err := s.u.cfg.Relay.TipConfig(ctx)
	if err != nil {
		return fmt.Errorf("fetch tip config: %w", err)
	}
	s.Tip = tip
	return nil
}

// register builds and submits the single atomic registration
// transaction. Once submitted, visibility polling runs detached from the
// caller's cancellation: the transaction is already on its way, and
// abandoning the wait would orphan the session state.
func (s *Session) register(ctx context.Context, req Request) error {
	cfg := s.u.cfg
	tx := &chain.Transaction{Sender: cfg.Signer.Address()}
	tx.Add(chain.SwapForSettlement{AmountIn: s.FundingAmount})
	for _, asset := range s.Assets {
		tx.Add(chain.RegisterBlob{
			BlobID:      asset.Address.BlobID,
			Root:        asset.Address.Root[:],
			Size:        asset.Address.Size,
			Epochs:      cfg.Epochs,
			Deletable:   cfg.Deletable,
			ContentType: asset.ContentType,
		})
	}
	tx.Add(chain.TransferRemainder{Recipient: cfg.Signer.Address()})
	tx.Add(chain.WriteVideoMetadata{
		Title:       req.Title,
		Description: req.Description,
		VideoID:     s.asset(LabelVideo).Address.BlobID,
		ManifestID:  s.asset(LabelManifest).Address.BlobID,
		CoverID:     s.asset(LabelCover).Address.BlobID,
		KeyID:       s.asset(LabelKey).Address.BlobID,
		PolicyID:    s.PolicyID,
		Price:       req.Price,
	})
	s.u.status(Status{Phase: PhaseRegistrationBuilt})

	result, err := cfg.Signer.SignAndSubmit(ctx, tx)
	if err != nil {
		return fmt.Errorf("submit registration: %w", err)
	}
	s.RegistrationDigest = result.Digest
	s.u.status(Status{Phase: PhaseRegistrationSubmitted})

	detached := context.WithoutCancel(ctx)
	s.u.status(Status{Phase: PhaseAwaitingVisibility})
	if err := cfg.Chain.WaitForTransaction(detached, result.Digest); err != nil {
		return fmt.Errorf("await registration %s: %w", result.Digest, err)
	}

	objects, err := cfg.Chain.CreatedBlobObjects(detached, result.Digest)
	if err != nil {
		return fmt.Errorf("read registration objects: %w", err)
	}
	byBlobID := make(map[string]chain.BlobObject, len(objects))
	for _, obj := range objects {
		byBlobID[obj.BlobID] = obj
	}
	for i := range s.Assets {
		obj, ok := byBlobID[s.Assets[i].Address.BlobID]
		if !ok {
			return fmt.Errorf("registration %s created no object for %s blob %s",
				result.Digest, s.Assets[i].Label, s.Assets[i].Address.BlobID)
		}
		s.Assets[i].ObjectID = obj.ObjectID
	}
	return nil
}

func (s *Session) asset(label string) *Asset {
	for i := range s.Assets {
		if s.Assets[i].Label == label {
			return &s.Assets[i]
		}
	}
	return nil
}
