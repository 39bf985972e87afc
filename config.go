package suistream

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/suistream/suistream/pkg/chain"
	"github.com/suistream/suistream/pkg/cost"
	"github.com/suistream/suistream/pkg/escrow"
	"github.com/suistream/suistream/pkg/media"
	"github.com/suistream/suistream/pkg/uploader"
)

// Config configures the handle. Endpoint fields build the default
// collaborators; injected collaborators take precedence and make the
// corresponding endpoint field optional.
type Config struct {
	// DataDir holds the local catalog.
	DataDir string
	// MinimumFreeGB is a free-space threshold for the catalog volume.
	MinimumFreeGB uint

	// NodeURL is the chain JSON-RPC endpoint.
	NodeURL string
	// RelayHost is the upload relay base URL.
	RelayHost string
	// EscrowURL and EscrowAppID locate the key escrow service.
	EscrowURL   string
	EscrowAppID string
	// SignerSeed is the 32-byte ed25519 seed for the local signer.
	SignerSeed []byte

	// Epochs is the storage duration for every published asset.
	Epochs uint64
	// SplitSeconds is the target segment duration. If 0, 10 is used.
	SplitSeconds float64
	// Estimator prices storage; set at least the exchange rate, its zero
	// value rejects estimation.
	Estimator cost.Estimator

	MaxAttempts  int
	BackoffBase  time.Duration
	Deletable    bool
	EncodingType string

	// Logger is an optional structured logger. If nil, a stderr logger
	// is used.
	Logger   *slog.Logger
	OnStatus func(uploader.Status)

	// Optional collaborator overrides, mainly for tests and custom
	// wallet integrations.
	Chain      chain.Client
	Signer     chain.Signer
	Relay      uploader.Relay
	Escrow     escrow.Service
	Transcoder media.Transcoder
}

func defaultLogger() *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h)
}

func (c *Config) applyDefaults() error {
	if c.Logger == nil {
		c.Logger = defaultLogger()
	}
	if c.Chain == nil && c.NodeURL == "" {
		return fmt.Errorf("suistream: config needs a node URL or a chain client")
	}
	if c.Signer == nil && len(c.SignerSeed) == 0 {
		return fmt.Errorf("suistream: config needs a signer seed or a signer")
	}
	if c.Relay == nil && c.RelayHost == "" {
		return fmt.Errorf("suistream: config needs a relay host or a relay client")
	}
	if c.Escrow == nil && c.EscrowURL == "" {
		return fmt.Errorf("suistream: config needs an escrow URL or an escrow service")
	}
	if c.Transcoder == nil {
		return fmt.Errorf("suistream: config needs a transcoder")
	}
	return nil
}
