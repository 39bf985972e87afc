// Package uploader orchestrates the whole publish pipeline: media
// preparation, content addressing, the atomic registration transaction,
// per-asset transmission through the relay, and final certification.
//
// A publish always produces exactly four assets: the merged encrypted
// video binary, the m3u8 manifest, the cover image, and the wrapped
// content key. They are registered together in one transaction so a
// half-registered video can never exist on chain.
package uploader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/suistream/suistream/pkg/chain"
	"github.com/suistream/suistream/pkg/cost"
	"github.com/suistream/suistream/pkg/escrow"
	"github.com/suistream/suistream/pkg/media"
	"github.com/suistream/suistream/pkg/relay"
)

// Phase names one stage of the pipeline, reported through OnStatus.
type Phase string

const (
	PhaseEncoding               Phase = "encoding"
	PhaseAddressing             Phase = "addressing"
	PhaseCostEstimated          Phase = "cost-estimated"
	PhaseRegistrationBuilt      Phase = "registration-built"
	PhaseRegistrationSubmitted  Phase = "registration-submitted"
	PhaseAwaitingVisibility     Phase = "awaiting-registration-visibility"
	PhasePerAssetTransmission   Phase = "per-asset-transmission"
	PhaseCertifying             Phase = "certifying"
	PhaseDone                   Phase = "done"
	PhaseFailed                 Phase = "failed"
)

// Asset labels, also used as transmission order.
const (
	LabelVideo    = "video"
	LabelManifest = "manifest"
	LabelCover    = "cover"
	LabelKey      = "key"
)

// Relay is the transmission collaborator. *relay.Client satisfies it.
type Relay interface {
	TipConfig(ctx context.Context) (relay.TipConfig, error)
	Upload(ctx context.Context, p relay.UploadParams) (chain.Certificate, error)
}

// Status is one progress report.
type Status struct {
	Phase   Phase
	Asset   string
	Attempt int
	Err     error
}

// Config wires the pipeline's collaborators. Chain, Signer, Relay,
// Escrow, Transcoder and Epochs are required; the rest default.
type Config struct {
	Chain      chain.Client
	Signer     chain.Signer
	Relay      Relay
	Escrow     escrow.Service
	Transcoder media.Transcoder
	Estimator  cost.Estimator

	// Epochs is the storage duration for every asset.
	Epochs uint64

	// SplitSeconds is the target segment duration. Default 10.
	SplitSeconds float64

	// MaxAttempts bounds transmission retries per asset. Default 3.
	MaxAttempts int
	// BackoffBase scales the quadratic retry delay. Default 1s.
	BackoffBase time.Duration

	Deletable    bool
	EncodingType string

	Logger   *slog.Logger
	OnStatus func(Status)
}

func (c *Config) validate() error {
	switch {
	case c.Chain == nil:
		return fmt.Errorf("uploader: config missing chain client")
	case c.Signer == nil:
		return fmt.Errorf("uploader: config missing signer")
	case c.Relay == nil:
		return fmt.Errorf("uploader: config missing relay")
	case c.Escrow == nil:
		return fmt.Errorf("uploader: config missing escrow service")
	case c.Transcoder == nil:
		return fmt.Errorf("uploader: config missing transcoder")
	case c.Epochs == 0:
		return fmt.Errorf("uploader: epochs must be positive")
	}
	if c.SplitSeconds == 0 {
		c.SplitSeconds = 10
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return nil
}

// Uploader runs publish sessions.
type Uploader struct {
	cfg Config
	log *slog.Logger
}

// New validates the configuration and builds an Uploader.
func New(cfg Config) (*Uploader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Uploader{cfg: cfg, log: cfg.Logger}, nil
}

// Request describes one video to publish.
type Request struct {
	Title       string
	Description string
	// Price in application units; zero publishes a free video.
	Price uint64

	// Media is the raw video input handed to the transcoder.
	Media []byte
	// Cover overrides the transcoder's extracted frame when set.
	Cover []byte
	// Duration is the clip length hint in seconds, for transcoders that
	// cannot probe it from the bytes.
	Duration float64
}

func (u *Uploader) status(s Status) {
	if s.Err != nil {
		u.log.Warn("pipeline status", "phase", s.Phase, "asset", s.Asset, "attempt", s.Attempt, "err", s.Err)
	} else {
		u.log.Debug("pipeline status", "phase", s.Phase, "asset", s.Asset, "attempt", s.Attempt)
	}
	if u.cfg.OnStatus != nil {
		u.cfg.OnStatus(s)
	}
}

// backoff waits the quadratic delay after a failed attempt, or returns
// early when ctx ends.
func (u *Uploader) backoff(ctx context.Context, attempt int) error {
	delay := time.Duration(attempt*attempt) * u.cfg.BackoffBase
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// Run executes the full pipeline for one request.
func (u *Uploader) Run(ctx context.Context, req Request) (*Session, error) {
	session, err := u.Prepare(ctx, req)
	if err != nil {
		u.status(Status{Phase: PhaseFailed, Err: err})
		return nil, err
	}
	if err := session.Transmit(ctx); err != nil {
		u.status(Status{Phase: PhaseFailed, Err: err})
		return session, err
	}
	if err := session.Certify(ctx); err != nil {
		u.status(Status{Phase: PhaseFailed, Err: err})
		return session, err
	}
	return session, nil
}
