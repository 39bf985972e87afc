package library

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// Export writes the whole catalog as lzma-compressed JSON lines, one
// record per line.
func (l *Library) Export(w io.Writer) (int, error) {
	records, err := l.List()
	if err != nil {
		return 0, err
	}

	lw, err := lzma.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("open compressed stream: %w", err)
	}

	enc := json.NewEncoder(lw)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("encode record %s: %w", rec.VideoID, err)
		}
	}
	if err := lw.Close(); err != nil {
		return 0, fmt.Errorf("close compressed stream: %w", err)
	}

	l.log.WithField("records", len(records)).Info("catalog exported")
	return len(records), nil
}

// Import reads an Export stream and stores every record, replacing any
// existing record with the same video id.
func (l *Library) Import(r io.Reader) (int, error) {
	lr, err := lzma.NewReader(bufio.NewReader(r))
	if err != nil {
		return 0, fmt.Errorf("open compressed stream: %w", err)
	}

	count := 0
	dec := json.NewDecoder(lr)
	for {
		var rec Record
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return count, fmt.Errorf("decode record %d: %w", count, err)
		}
		if err := l.Put(rec); err != nil {
			return count, err
		}
		count++
	}

	l.log.WithField("records", count).Info("catalog imported")
	return count, nil
}
