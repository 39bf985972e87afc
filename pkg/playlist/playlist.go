// Package playlist merges encrypted segments into a single addressable
// blob and generates the byte-range m3u8 manifest that describes it.
//
// The manifest references two fixed placeholder names: the merged binary
// and the decryption key. The player substitutes real network locations
// at playback time, which keeps manifest generation independent of the
// storage addresses that are only known after registration.
package playlist

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/suistream/suistream/pkg/media"
)

const (
	// BinaryPlaceholder is the media URI written for every segment.
	BinaryPlaceholder = "video.bin"
	// KeyPlaceholder is the URI written in EXT-X-KEY directives.
	KeyPlaceholder = "video.key"
)

var ErrNoSegments = errors.New("playlist: no segments")

// ByteRange locates one segment inside the merged blob.
type ByteRange struct {
	Length int
	Offset int
}

// Result is the output of Assemble.
type Result struct {
	Merged   []byte
	Manifest string
	Ranges   []ByteRange
}

// Assemble concatenates the segments in order and emits the manifest.
// Offsets are contiguous by construction: each segment starts exactly
// where the previous one ended.
func Assemble(segments []media.Segment, splitSeconds float64) (Result, error) {
	if len(segments) == 0 {
		return Result{}, ErrNoSegments
	}

	total := 0
	for _, seg := range segments {
		total += len(seg.Data)
	}
	merged := make([]byte, total)

	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(splitSeconds)))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")

	ranges := make([]ByteRange, 0, len(segments))
	offset := 0
	for _, seg := range segments {
		copy(merged[offset:], seg.Data)

		if len(seg.IV) > 0 {
			fmt.Fprintf(&b, "#EXT-X-KEY:METHOD=AES-128,URI=%q,IV=0x%s\n",
				KeyPlaceholder, hex.EncodeToString(seg.IV))
		}
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", seg.Duration)
		fmt.Fprintf(&b, "#EXT-X-BYTERANGE:%d@%d\n", len(seg.Data), offset)
		b.WriteString(BinaryPlaceholder + "\n")

		ranges = append(ranges, ByteRange{Length: len(seg.Data), Offset: offset})
		offset += len(seg.Data)
	}
	b.WriteString("#EXT-X-ENDLIST\n")

	return Result{Merged: merged, Manifest: b.String(), Ranges: ranges}, nil
}

// ParseByteRanges extracts the EXT-X-BYTERANGE directives from a manifest.
// Used to verify round-trips; the player side has its own parser.
func ParseByteRanges(manifest string) ([]ByteRange, error) {
	var ranges []ByteRange
	for _, line := range strings.Split(manifest, "\n") {
		rest, ok := strings.CutPrefix(line, "#EXT-X-BYTERANGE:")
		if !ok {
			continue
		}
		lengthStr, offsetStr, ok := strings.Cut(rest, "@")
		if !ok {
			return nil, fmt.Errorf("playlist: malformed byterange %q", line)
		}
		length, err := strconv.Atoi(lengthStr)
		if err != nil {
			return nil, fmt.Errorf("playlist: malformed byterange length %q: %w", line, err)
		}
		off, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, fmt.Errorf("playlist: malformed byterange offset %q: %w", line, err)
		}
		ranges = append(ranges, ByteRange{Length: length, Offset: off})
	}
	return ranges, nil
}
