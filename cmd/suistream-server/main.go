package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	suistream "github.com/suistream/suistream"
	"github.com/suistream/suistream/apiServer"
	"github.com/suistream/suistream/internal/config"
	"github.com/suistream/suistream/pkg/cost"
	"github.com/suistream/suistream/pkg/media"
	"github.com/suistream/suistream/pkg/uploader"
)

func main() {
	confPath := flag.String("config", "config.yaml", "config file")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := run(*confPath, log); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(confPath string, log *slog.Logger) error {
	conf, err := config.Load(confPath)
	if err != nil {
		return err
	}
	seed, err := conf.SeedBytes()
	if err != nil {
		return err
	}

	// The tracker exists only after the server is built, so status
	// reports go through this indirection.
	var statusSink func(uploader.Status)

	app, err := suistream.New(suistream.Config{
		DataDir:       conf.DataDir,
		MinimumFreeGB: conf.MinimumFreeGB,
		NodeURL:       conf.NodeURL,
		RelayHost:     conf.RelayHost,
		EscrowURL:     conf.EscrowURL,
		EscrowAppID:   conf.EscrowAppID,
		SignerSeed:    seed,
		Epochs:        conf.Epochs,
		SplitSeconds:  conf.SplitSeconds,
		Deletable:     conf.Deletable,
		EncodingType:  conf.EncodingType,
		Estimator: cost.Estimator{
			RatePerByteEpoch: conf.RatePerByteEpoch,
			ExchangeNum:      conf.ExchangeNum,
			ExchangeDen:      conf.ExchangeDen,
			BufferBps:        conf.BufferBps,
		},
		Transcoder: media.FixedSplitter{},
		Logger:     log,
		OnStatus: func(s uploader.Status) {
			if statusSink != nil {
				statusSink(s)
			}
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Close(context.Background())

	opts := []apiServer.Option{apiServer.WithLogger(log)}
	if conf.Token != "" {
		opts = append(opts, apiServer.WithToken(conf.Token))
	}
	server := apiServer.New(app, opts...)
	statusSink = server.Tracker().OnStatus

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", conf.Port),
		Handler: server,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	log.Info("server stopped")
	return nil
}
