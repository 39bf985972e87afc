package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	suistream "github.com/suistream/suistream"
	"github.com/suistream/suistream/internal/config"
	"github.com/suistream/suistream/pkg/cost"
	"github.com/suistream/suistream/pkg/media"
	"github.com/suistream/suistream/pkg/uploader"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "publish":
		runPublish(os.Args[2:])
	case "estimate":
		runEstimate(os.Args[2:])
	case "list":
		runList(os.Args[2:])
	case "show":
		runShow(os.Args[2:])
	case "forget":
		runForget(os.Args[2:])
	case "export":
		runExport(os.Args[2:])
	case "import":
		runImport(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: suistream <command> [arguments]")
	fmt.Println("Commands:")
	fmt.Println("  publish  -config <file> -title <title> -duration <seconds> <media-file> [cover-file]")
	fmt.Println("  estimate -config <file> -size <bytes>")
	fmt.Println("  list     -config <file>")
	fmt.Println("  show     -config <file> <video-id>")
	fmt.Println("  forget   -config <file> <video-id>")
	fmt.Println("  export   -config <file> <output-file>")
	fmt.Println("  import   -config <file> <input-file>")
}

func newApp(conf config.Config) (*suistream.SuiStream, error) {
	seed, err := conf.SeedBytes()
	if err != nil {
		return nil, err
	}
	return suistream.New(suistream.Config{
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
		OnStatus: func(s uploader.Status) {
			if s.Asset != "" {
				fmt.Printf("  %s: %s (attempt %d)\n", s.Phase, s.Asset, s.Attempt)
			} else {
				fmt.Printf("  %s\n", s.Phase)
			}
		},
	})
}

func startApp(confPath string) *suistream.SuiStream {
	conf, err := config.Load(confPath)
	if err != nil {
		fatal(err)
	}
	app, err := newApp(conf)
	if err != nil {
		fatal(err)
	}
	if err := app.Start(context.Background()); err != nil {
		fatal(err)
	}
	return app
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runPublish(args []string) {
	cmd := flag.NewFlagSet("publish", flag.ExitOnError)
	confPath := cmd.String("config", "config.yaml", "config file")
	title := cmd.String("title", "", "video title")
	desc := cmd.String("desc", "", "video description")
	price := cmd.Uint64("price", 0, "access price, 0 for free")
	duration := cmd.Float64("duration", 0, "clip duration in seconds")
	cmd.Parse(args)

	if cmd.NArg() < 1 || *title == "" || *duration <= 0 {
		fmt.Println("Usage: suistream publish -config <file> -title <title> -duration <seconds> <media-file> [cover-file]")
		os.Exit(1)
	}

	mediaBytes, err := os.ReadFile(cmd.Arg(0))
	if err != nil {
		fatal(err)
	}
	var coverBytes []byte
	if cmd.NArg() > 1 {
		coverBytes, err = os.ReadFile(cmd.Arg(1))
		if err != nil {
			fatal(err)
		}
	}

	app := startApp(*confPath)
	defer app.Close(context.Background())

	fmt.Printf("Publishing %s...\n", cmd.Arg(0))
	result, err := app.Publish(context.Background(), uploader.Request{
		Title:       *title,
		Description: *desc,
		Price:       *price,
		Media:       mediaBytes,
		Cover:       coverBytes,
		Duration:    *duration,
	})
	if err != nil {
		if result.Record.VideoID != "" {
			fmt.Fprintf(os.Stderr, "Publish incomplete, video %s recorded uncertified\n", result.Record.VideoID)
		}
		fatal(err)
	}

	fmt.Println("Published:")
	fmt.Printf("  Video ID:    %s\n", result.Record.VideoID)
	fmt.Printf("  Manifest ID: %s\n", result.Record.ManifestID)
	fmt.Printf("  Cover ID:    %s\n", result.Record.CoverID)
	fmt.Printf("  Key ID:      %s\n", result.Record.KeyID)
	fmt.Printf("  Tx digest:   %s\n", result.Record.Digest)
}

func runEstimate(args []string) {
	cmd := flag.NewFlagSet("estimate", flag.ExitOnError)
	confPath := cmd.String("config", "config.yaml", "config file")
	size := cmd.Uint64("size", 0, "content size in bytes")
	cmd.Parse(args)

	if *size == 0 {
		fmt.Println("Usage: suistream estimate -config <file> -size <bytes>")
		os.Exit(1)
	}

	conf, err := config.Load(*confPath)
	if err != nil {
		fatal(err)
	}
	estimator := cost.Estimator{
		RatePerByteEpoch: conf.RatePerByteEpoch,
		ExchangeNum:      conf.ExchangeNum,
		ExchangeDen:      conf.ExchangeDen,
		BufferBps:        conf.BufferBps,
	}
	settlement, err := estimator.StorageCost(*size, conf.Epochs)
	if err != nil {
		fatal(err)
	}
	funding, err := estimator.FundingAmount(settlement)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("Size:            %d bytes for %d epochs\n", *size, conf.Epochs)
	fmt.Printf("Settlement cost: %d\n", settlement)
	fmt.Printf("Funding amount:  %d\n", funding)
}

func runList(args []string) {
	cmd := flag.NewFlagSet("list", flag.ExitOnError)
	confPath := cmd.String("config", "config.yaml", "config file")
	cmd.Parse(args)

	app := startApp(*confPath)
	defer app.Close(context.Background())

	videos, err := app.Videos()
	if err != nil {
		fatal(err)
	}
	if len(videos) == 0 {
		fmt.Println("No published videos.")
		return
	}
	for _, rec := range videos {
		state := "certified"
		if !rec.Certified {
			state = "uncertified"
		}
		fmt.Printf("%s  %-11s  %s\n", rec.VideoID, state, rec.Title)
	}
}

func runShow(args []string) {
	cmd := flag.NewFlagSet("show", flag.ExitOnError)
	confPath := cmd.String("config", "config.yaml", "config file")
	cmd.Parse(args)

	if cmd.NArg() < 1 {
		fmt.Println("Usage: suistream show -config <file> <video-id>")
		os.Exit(1)
	}

	app := startApp(*confPath)
	defer app.Close(context.Background())

	rec, err := app.Video(cmd.Arg(0))
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Title:       %s\n", rec.Title)
	fmt.Printf("Video ID:    %s\n", rec.VideoID)
	fmt.Printf("Manifest ID: %s\n", rec.ManifestID)
	fmt.Printf("Cover ID:    %s\n", rec.CoverID)
	fmt.Printf("Key ID:      %s\n", rec.KeyID)
	fmt.Printf("Price:       %d\n", rec.Price)
	fmt.Printf("Epochs:      %d\n", rec.Epochs)
	fmt.Printf("Total bytes: %d\n", rec.TotalBytes)
	fmt.Printf("Certified:   %v\n", rec.Certified)
	fmt.Printf("Tx digest:   %s\n", rec.Digest)
}

func runForget(args []string) {
	cmd := flag.NewFlagSet("forget", flag.ExitOnError)
	confPath := cmd.String("config", "config.yaml", "config file")
	cmd.Parse(args)

	if cmd.NArg() < 1 {
		fmt.Println("Usage: suistream forget -config <file> <video-id>")
		os.Exit(1)
	}

	app := startApp(*confPath)
	defer app.Close(context.Background())

	if err := app.Forget(cmd.Arg(0)); err != nil {
		fatal(err)
	}
	fmt.Println("Record removed from the local catalog. Published blobs are untouched.")
}

func runExport(args []string) {
	cmd := flag.NewFlagSet("export", flag.ExitOnError)
	confPath := cmd.String("config", "config.yaml", "config file")
	cmd.Parse(args)

	if cmd.NArg() < 1 {
		fmt.Println("Usage: suistream export -config <file> <output-file>")
		os.Exit(1)
	}

	app := startApp(*confPath)
	defer app.Close(context.Background())

	out, err := os.Create(cmd.Arg(0))
	if err != nil {
		fatal(err)
	}
	defer out.Close()

	n, err := app.Export(out)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Exported %d records to %s\n", n, cmd.Arg(0))
}

func runImport(args []string) {
	cmd := flag.NewFlagSet("import", flag.ExitOnError)
	confPath := cmd.String("config", "config.yaml", "config file")
	cmd.Parse(args)

	if cmd.NArg() < 1 {
		fmt.Println("Usage: suistream import -config <file> <input-file>")
		os.Exit(1)
	}

	app := startApp(*confPath)
	defer app.Close(context.Background())

	in, err := os.Open(cmd.Arg(0))
	if err != nil {
		fatal(err)
	}
	defer in.Close()

	n, err := app.Import(in)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Imported %d records from %s\n", n, cmd.Arg(0))
}
