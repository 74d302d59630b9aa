package duplicates

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// maskFileName is the cache artifact holding the duplicate removal mask
// inside the caller's save directory
const maskFileName = "duplicate_spike_mask.bin"

// MaskCache persists the duplicate removal mask so repeated runs on the same
// recording skip the batch scan. The artifact carries no parameter
// fingerprint: callers must force a recompute when the duplicate-detection
// parameters change.
type MaskCache struct {
	path string
}

// NewMaskCache creates a cache rooted at the given save directory
func NewMaskCache(saveDir string) *MaskCache {
	return &MaskCache{path: filepath.Join(saveDir, maskFileName)}
}

// Load returns the cached mask, or ok=false when no usable artifact exists.
// A mask whose length disagrees with the current spike count is treated as
// absent rather than an error: the recording has changed under the cache.
func (c *MaskCache) Load(expectLen int) (mask []bool, ok bool) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&mask); err != nil {
		return nil, false
	}
	if len(mask) != expectLen {
		return nil, false
	}
	return mask, true
}

// Store writes the mask atomically: a partial write can never be read back
// as a valid artifact.
func (c *MaskCache) Store(mask []bool) error {
	tmp, err := os.CreateTemp(filepath.Dir(c.path), maskFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating mask cache temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(mask); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding duplicate mask: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("flushing duplicate mask: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("committing duplicate mask: %w", err)
	}
	return nil
}
