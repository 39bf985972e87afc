// Package media defines the segment model produced by the transcoder and
// consumed by the rest of the upload pipeline.
package media

import (
	"context"
	"errors"
)

// Segment is one piece of the source video. The transcoder fills Index,
// Data and Duration; the cipher replaces Data with ciphertext and attaches
// the IV used for it.
type Segment struct {
	Index    int
	Data     []byte
	Duration float64 // nominal duration in seconds, keyframe-aligned so only approximate
	IV       []byte  // nil until the segment is encrypted
}

// Transcoder splits raw video bytes into ordered segments of roughly
// splitSeconds each and extracts a cover image. totalSeconds is a caller
// hint for implementations that cannot probe the clip length from the
// bytes; probing implementations ignore it. Exact duration fidelity is
// not guaranteed.
type Transcoder interface {
	Split(ctx context.Context, raw []byte, splitSeconds, totalSeconds float64) (segments []Segment, cover []byte, err error)
}

var (
	ErrEmptyInput    = errors.New("media: empty input")
	ErrSplitDuration = errors.New("media: split duration must be positive")
)
