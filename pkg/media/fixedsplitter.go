package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"

	chunker "github.com/ipfs/boxo/chunker"
)

// FixedSplitter is a byte-rate fallback for environments without a real
// transcoder. It derives a segment count from the clip duration and cuts
// the raw bytes into equal-sized pieces, so segment boundaries do not
// align with keyframes and the per-segment durations are nominal only.
// It produces no cover image.
type FixedSplitter struct {
	// TotalDuration is the clip length in seconds, used when the caller
	// passes no totalSeconds hint. The splitter has no way to probe it
	// from raw bytes.
	TotalDuration float64
}

func (f FixedSplitter) Split(ctx context.Context, raw []byte, splitSeconds, totalSeconds float64) ([]Segment, []byte, error) {
	if len(raw) == 0 {
		return nil, nil, ErrEmptyInput
	}
	if splitSeconds <= 0 {
		return nil, nil, ErrSplitDuration
	}
	if totalSeconds <= 0 {
		totalSeconds = f.TotalDuration
	}
	if totalSeconds <= 0 {
		return nil, nil, fmt.Errorf("media: fixed splitter needs a total duration")
	}

	count := int(math.Ceil(totalSeconds / splitSeconds))
	if count < 1 {
		count = 1
	}
	size := (len(raw) + count - 1) / count

	spl := chunker.NewSizeSplitter(bytes.NewReader(raw), int64(size))

	var segments []Segment
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		data, err := spl.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("split chunk %d: %w", index, err)
		}
		segments = append(segments, Segment{
			Index:    index,
			Data:     data,
			Duration: splitSeconds,
		})
	}

	// The tail segment covers whatever duration is left over.
	if n := len(segments); n > 0 {
		tail := totalSeconds - splitSeconds*float64(n-1)
		if tail > 0 && tail < splitSeconds {
			segments[n-1].Duration = tail
		}
	}

	return segments, nil, nil
}

var _ Transcoder = FixedSplitter{}
