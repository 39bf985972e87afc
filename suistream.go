// Package suistream prepares videos for a content-addressed storage
// network and publishes them end to end: segmentation, per-segment
// encryption, manifest generation, key escrow, cost estimation, the
// atomic registration transaction, relay transmission and certification.
// The handle owns the pipeline collaborators and a local catalog of
// published videos.
package suistream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/suistream/suistream/pkg/chain"
	"github.com/suistream/suistream/pkg/escrow"
	"github.com/suistream/suistream/pkg/library"
	"github.com/suistream/suistream/pkg/relay"
	"github.com/suistream/suistream/pkg/uploader"
)

var (
	ErrNotStarted = errors.New("suistream: not started")
	ErrClosed     = errors.New("suistream: closed")
)

// SuiStream is the main handle. It owns the uploader pipeline and the
// local catalog, and the lifecycle of both.
type SuiStream struct {
	log    *slog.Logger
	config Config

	up    *uploader.Uploader
	libMu sync.RWMutex
	lib   *library.Library

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// PublishResult reports one completed (or partially completed) publish.
type PublishResult struct {
	Record  library.Record
	Session *uploader.Session
}

// New constructs a handle. New does not perform I/O or talk to the
// network. Call Start to open the catalog and wire the pipeline.
func New(conf Config) (*SuiStream, error) {
	if conf.DataDir == "" {
		return nil, fmt.Errorf("suistream: config needs a data directory")
	}
	if err := conf.applyDefaults(); err != nil {
		return nil, err
	}
	return &SuiStream{
		log:    conf.Logger,
		config: conf,
	}, nil
}

// Start opens the catalog and builds the pipeline from the configured
// endpoints. Safe to call multiple times; only the first call has
// effect.
func (s *SuiStream) Start(ctx context.Context) error {
	var startErr error
	s.startOnce.Do(func() {
		if err := os.MkdirAll(s.config.DataDir, 0o700); err != nil {
			startErr = fmt.Errorf("mkdir %s: %w", s.config.DataDir, err)
			return
		}

		lib, err := library.New(library.Config{
			Path:             filepath.Join(s.config.DataDir, "catalog"),
			MinimumFreeSpace: int(s.config.MinimumFreeGB),
		})
		if err != nil {
			startErr = fmt.Errorf("open catalog: %w", err)
			return
		}

		chainClient := s.config.Chain
		if chainClient == nil {
			chainClient = chain.NewRPCClient(s.config.NodeURL, s.log)
		}
		signer := s.config.Signer
		if signer == nil {
			signer, err = chain.NewLocalSigner(s.config.SignerSeed, chainClient)
			if err != nil {
				_ = lib.Close()
				startErr = err
				return
			}
		}
		relayClient := s.config.Relay
		if relayClient == nil {
			relayClient = relay.NewClient(s.config.RelayHost, s.log)
		}
		escrowService := s.config.Escrow
		if escrowService == nil {
			escrowService = escrow.NewClient(s.config.EscrowURL, s.config.EscrowAppID)
		}

		up, err := uploader.New(uploader.Config{
			Chain:        chainClient,
			Signer:       signer,
			Relay:        relayClient,
			Escrow:       escrowService,
			Transcoder:   s.config.Transcoder,
			Estimator:    s.config.Estimator,
			Epochs:       s.config.Epochs,
			SplitSeconds: s.config.SplitSeconds,
			MaxAttempts:  s.config.MaxAttempts,
			BackoffBase:  s.config.BackoffBase,
			Deletable:    s.config.Deletable,
			EncodingType: s.config.EncodingType,
			Logger:       s.log,
			OnStatus:     s.config.OnStatus,
		})
		if err != nil {
			_ = lib.Close()
			startErr = err
			return
		}

		s.libMu.Lock()
		s.lib = lib
		s.libMu.Unlock()
		s.up = up
		s.started.Store(true)
		s.log.Info("suistream started", "dataDir", s.config.DataDir)
	})
	return startErr
}

// Run starts the handle, blocks until ctx is canceled, then shuts down
// with a bounded deadline. A convenience for services.
func (s *SuiStream) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Close(shutdownCtx)
}

// Close releases the catalog. Idempotent.
func (s *SuiStream) Close(_ context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.libMu.Lock()
		lib := s.lib
		s.lib = nil
		s.libMu.Unlock()
		if lib != nil {
			if err := lib.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close catalog: %w", err))
			}
		}
		s.log.Info("suistream closed")
	})
	return closeErr
}

func (s *SuiStream) catalog() (*library.Library, error) {
	if !s.started.Load() {
		return nil, ErrNotStarted
	}
	s.libMu.RLock()
	lib := s.lib
	s.libMu.RUnlock()
	if lib == nil {
		return nil, ErrClosed
	}
	return lib, nil
}

// Publish runs the full pipeline for one video and records the result in
// the catalog. When transmission or certification fails after
// registration, the record is still stored (uncertified) so the session
// can be resumed or inspected later.
func (s *SuiStream) Publish(ctx context.Context, req uploader.Request) (PublishResult, error) {
	lib, err := s.catalog()
	if err != nil {
		return PublishResult{}, err
	}

	session, runErr := s.up.Run(ctx, req)
	if session == nil {
		return PublishResult{}, runErr
	}

	rec := recordFromSession(req, session, s.config.Epochs, runErr == nil)
	if err := lib.Put(rec); err != nil {
		return PublishResult{Session: session}, errors.Join(runErr, err)
	}
	return PublishResult{Record: rec, Session: session}, runErr
}

// Estimate prices size bytes of stored content for the configured epoch
// count, returning the settlement cost and the native funding amount
// including the swap buffer.
func (s *SuiStream) Estimate(size uint64) (settlement, funding uint64, err error) {
	settlement, err = s.config.Estimator.StorageCost(size, s.config.Epochs)
	if err != nil {
		return 0, 0, err
	}
	funding, err = s.config.Estimator.FundingAmount(settlement)
	if err != nil {
		return 0, 0, err
	}
	return settlement, funding, nil
}

// Videos lists the catalog, newest first.
func (s *SuiStream) Videos() ([]library.Record, error) {
	lib, err := s.catalog()
	if err != nil {
		return nil, err
	}
	return lib.List()
}

// Video reads one catalog record.
func (s *SuiStream) Video(videoID string) (library.Record, error) {
	lib, err := s.catalog()
	if err != nil {
		return library.Record{}, err
	}
	return lib.Get(videoID)
}

// Export writes the catalog as a compressed backup stream.
func (s *SuiStream) Export(w io.Writer) (int, error) {
	lib, err := s.catalog()
	if err != nil {
		return 0, err
	}
	return lib.Export(w)
}

// Import restores records from an Export stream.
func (s *SuiStream) Import(r io.Reader) (int, error) {
	lib, err := s.catalog()
	if err != nil {
		return 0, err
	}
	return lib.Import(r)
}

// Forget removes a catalog record. The published blobs are untouched.
func (s *SuiStream) Forget(videoID string) error {
	lib, err := s.catalog()
	if err != nil {
		return err
	}
	return lib.Delete(videoID)
}

func recordFromSession(req uploader.Request, session *uploader.Session, epochs uint64, certified bool) library.Record {
	rec := library.Record{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		PolicyID:    session.PolicyID,
		Digest:      session.RegistrationDigest,
		Epochs:      epochs,
		Certified:   certified,
	}
	var total uint64
	for _, asset := range session.Assets {
		total += asset.Address.Size
		switch asset.Label {
		case uploader.LabelVideo:
			rec.VideoID = asset.Address.BlobID
		case uploader.LabelManifest:
			rec.ManifestID = asset.Address.BlobID
		case uploader.LabelCover:
			rec.CoverID = asset.Address.BlobID
		case uploader.LabelKey:
			rec.KeyID = asset.Address.BlobID
		}
	}
	rec.TotalBytes = total
	return rec
}
