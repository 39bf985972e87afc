// Package library keeps the local catalog of published videos: for each
// upload session that reached certification, one record binding the four
// blob identifiers, the access policy and the on-chain metadata entry.
// The catalog is the only place this information exists off chain, so it
// persists in an embedded store and supports compressed export/import
// for backup.
package library

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

var recordPrefix = []byte("record/")

// Record is one published video.
type Record struct {
	VideoID     string    `json:"videoId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Price       uint64    `json:"price"`
	ManifestID  string    `json:"manifestId"`
	CoverID     string    `json:"coverId"`
	KeyID       string    `json:"keyId"`
	PolicyID    []byte    `json:"policyId"`
	Digest      string    `json:"registrationDigest"`
	Epochs      uint64    `json:"epochs"`
	TotalBytes  uint64    `json:"totalBytes"`
	Certified   bool      `json:"certified"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ErrNotFound reports a lookup for a video the catalog does not hold.
type ErrNotFound struct {
	VideoID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("library: no record for video %s", e.VideoID)
}

// Config for the catalog store.
type Config struct {
	// Path is the store directory.
	Path string
	// MinimumFreeSpace in GB on the volume holding Path. Zero disables
	// the check.
	MinimumFreeSpace int
	Logger           *logrus.Logger
}

// Library is the embedded catalog store.
type Library struct {
	db  *badger.DB
	log *logrus.Logger
}

// New opens or creates the catalog at config.Path.
func New(config Config) (*Library, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("library: config needs a path")
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log := config.Logger

	if config.MinimumFreeSpace > 0 {
		usage, err := disk.Usage(config.Path)
		if err == nil {
			freeGB := float64(usage.Free) / 1e9
			log.WithFields(logrus.Fields{
				"path":      config.Path,
				"free (GB)": fmt.Sprintf("%.2f", freeGB),
			}).Info("catalog volume usage")
			if freeGB < float64(config.MinimumFreeSpace) {
				return nil, fmt.Errorf("library: %.2f GB free on %s, need %d GB", freeGB, config.Path, config.MinimumFreeSpace)
			}
		} else {
			// A fresh path may not exist yet; the open below creates it.
			log.WithField("path", config.Path).Warnf("could not read disk usage: %v", err)
		}
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open catalog at %s: %w", config.Path, err)
	}

	return &Library{db: db, log: log}, nil
}

func recordKey(videoID string) []byte {
	return append(append([]byte{}, recordPrefix...), videoID...)
}

// Put stores or replaces one record.
func (l *Library) Put(rec Record) error {
	if rec.VideoID == "" {
		return fmt.Errorf("library: record needs a video id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.VideoID, err)
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.VideoID), value)
	})
	if err != nil {
		return fmt.Errorf("store record %s: %w", rec.VideoID, err)
	}
	return nil
}

// Get reads one record.
func (l *Library) Get(videoID string) (Record, error) {
	var rec Record
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(videoID))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &rec)
		})
	})
	if err == badger.ErrKeyNotFound {
		return Record{}, &ErrNotFound{VideoID: videoID}
	}
	if err != nil {
		return Record{}, fmt.Errorf("read record %s: %w", videoID, err)
	}
	return rec, nil
}

// List returns every record, newest first.
func (l *Library) List() ([]Record, error) {
	var records []Record
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(recordPrefix); it.ValidForPrefix(recordPrefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Delete removes one record. Deleting an absent record is not an error.
func (l *Library) Delete(videoID string) error {
	err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(videoID))
	})
	if err != nil {
		return fmt.Errorf("delete record %s: %w", videoID, err)
	}
	return nil
}

// MarkCertified flips the certification flag on an existing record.
func (l *Library) MarkCertified(videoID string) error {
	rec, err := l.Get(videoID)
	if err != nil {
		return err
	}
	rec.Certified = true
	return l.Put(rec)
}

// Close syncs and closes the store.
func (l *Library) Close() error {
	if err := l.db.Sync(); err != nil {
		l.log.Errorf("sync catalog: %v", err)
	}
	return l.db.Close()
}
