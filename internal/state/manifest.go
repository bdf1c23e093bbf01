package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketPages = []byte("pages")
	bucketRuns  = []byte("runs")
)

// PageRecord describes one saved mirror file.
type PageRecord struct {
	URL         string    `json:"url"`
	LocalPath   string    `json:"local_path"`
	Title       string    `json:"title,omitempty"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type,omitempty"`
	Bytes       int       `json:"bytes"`
	Depth       int       `json:"depth"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// RunRecord summarizes one finished run.
type RunRecord struct {
	StartURL   string    `json:"start_url"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Attempted  int64     `json:"attempted"`
	OK         int64     `json:"ok"`
	Failed     int64     `json:"failed"`
	OutputDir  string    `json:"output_dir"`
	Stopped    bool      `json:"stopped,omitempty"`
}

// Manifest is a BoltDB store of saved pages, keyed by dedup key, and of
// run summaries in insertion order.
type Manifest struct {
	db   *bolt.DB
	path string
}

// OpenManifest opens or creates the manifest database at path.
func OpenManifest(path string) (*Manifest, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketPages, bucketRuns} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Manifest{db: db, path: path}, nil
}

// Path returns the database file path.
func (m *Manifest) Path() string {
	return m.path
}

// PutPage stores rec under key, replacing an earlier record.
func (m *Manifest) PutPage(key string, rec PageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal page: %w", err)
	}
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPages).Put([]byte(key), data)
	})
}

// Page returns the record for key, or nil when absent.
func (m *Manifest) Page(key string) (*PageRecord, error) {
	var rec *PageRecord
	err := m.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPages).Get([]byte(key))
		if data == nil {
			return nil
		}
		rec = &PageRecord{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// PageCount returns the number of stored pages.
func (m *Manifest) PageCount() (int, error) {
	var n int
	err := m.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketPages).Stats().KeyN
		return nil
	})
	return n, err
}

// ForEachPage calls fn for every page in key order. Returning an error
// stops the iteration.
func (m *Manifest) ForEachPage(fn func(key string, rec PageRecord) error) error {
	return m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPages).ForEach(func(k, v []byte) error {
			var rec PageRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("page %s: %w", k, err)
			}
			return fn(string(k), rec)
		})
	})
}

// AddRun appends a run record and returns its sequence number.
func (m *Manifest) AddRun(rec RunRecord) (uint64, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal run: %w", err)
	}

	var seq uint64
	err = m.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		seq, err = b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
	return seq, err
}

// LastRun returns the most recent run record, or nil when there is none.
func (m *Manifest) LastRun() (*RunRecord, error) {
	var rec *RunRecord
	err := m.db.View(func(tx *bolt.Tx) error {
		_, v := tx.Bucket(bucketRuns).Cursor().Last()
		if v == nil {
			return nil
		}
		rec = &RunRecord{}
		return json.Unmarshal(v, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Close closes the database.
func (m *Manifest) Close() error {
	return m.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
