package routing

import (
	"compress/flate"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// DiskStore keeps the last good directions response per cache key as
// flate-compressed msgpack files under Dir.
type DiskStore struct {
	Dir string
}

// NewDiskStore creates dir if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating route store: %w", err)
	}
	return &DiskStore{Dir: dir}, nil
}

func (d *DiskStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(d.Dir, hex.EncodeToString(sum[:16])+".msgpack.z")
}

// Put writes resp atomically, replacing any previous entry for key.
func (d *DiskStore) Put(key string, resp *DirectionsResponse) error {
	final := d.path(key)
	f, err := os.CreateTemp(d.Dir, ".route-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp) //nolint:errcheck // no-op after rename

	fw, err := flate.NewWriter(f, flate.BestSpeed)
	if err != nil {
		f.Close()
		return err
	}
	if err := msgpack.NewEncoder(fw).Encode(resp); err != nil {
		f.Close()
		return fmt.Errorf("encoding directions: %w", err)
	}
	if err := fw.Close(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

// Get returns the stored response for key and when it was written.
func (d *DiskStore) Get(key string) (*DirectionsResponse, time.Time, error) {
	f, err := os.Open(d.path(key))
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, err
	}

	fr := flate.NewReader(f)
	defer fr.Close()

	var resp DirectionsResponse
	if err := msgpack.NewDecoder(fr).Decode(&resp); err != nil {
		return nil, time.Time{}, fmt.Errorf("decoding directions: %w", err)
	}
	return &resp, fi.ModTime(), nil
}

var _ Store = (*DiskStore)(nil)
