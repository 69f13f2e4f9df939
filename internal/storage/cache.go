package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// IndexFile is the cache index kept in every download directory.
const IndexFile = ".index.json"

// CacheIndex maps remote file ids to the names they were downloaded as, so
// a cached download needs no remote lookup even where ids are opaque.
type CacheIndex struct {
	path    string
	Entries map[string]string `json:"files"`
}

// LoadCacheIndex reads the index of dir. A missing or unreadable index is
// empty.
func LoadCacheIndex(dir string) *CacheIndex {
	idx := &CacheIndex{path: filepath.Join(dir, IndexFile), Entries: map[string]string{}}
	data, err := os.ReadFile(idx.path)
	if err != nil {
		return idx
	}
	if err := json.Unmarshal(data, idx); err != nil || idx.Entries == nil {
		idx.Entries = map[string]string{}
	}
	return idx
}

// Lookup returns the local path of fileID if it was downloaded before and
// is still present.
func (c *CacheIndex) Lookup(fileID string) (string, bool) {
	name, ok := c.Entries[fileID]
	if !ok {
		return "", false
	}
	path := filepath.Join(filepath.Dir(c.path), name)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// Record remembers that fileID was stored as name and saves the index.
func (c *CacheIndex) Record(fileID, name string) error {
	c.Entries[fileID] = name
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Annotate(os.WriteFile(c.path, data, 0644), "saving cache index")
}

// namer is implemented by remotes whose file ids determine the local name.
type namer interface {
	localName(fileID string) string
}

// WithCache wraps remote so downloads consult the cache index first.
func WithCache(remote Remote) Remote {
	if _, ok := remote.(cached); ok {
		return remote
	}
	return cached{Remote: remote}
}

// cached consults the index of the download directory before asking the
// wrapped remote.
type cached struct {
	Remote
}

func (c cached) Download(ctx context.Context, fileID, localDir string, useCache bool, progress ProgressFunc) (string, error) {
	idx := LoadCacheIndex(localDir)
	if useCache {
		path, ok := idx.Lookup(fileID)
		if !ok {
			if n, isNamer := c.Remote.(namer); isNamer {
				candidate := filepath.Join(localDir, n.localName(fileID))
				if _, err := os.Stat(candidate); err == nil {
					path, ok = candidate, true
				}
			}
		}
		if ok {
			progress.report(Status{Name: filepath.Base(path)})
			return path, nil
		}
	}

	path, err := c.Remote.Download(ctx, fileID, localDir, useCache, progress)
	if err != nil {
		return "", errors.Trace(err)
	}
	if err := idx.Record(fileID, filepath.Base(path)); err != nil {
		return "", errors.Trace(err)
	}
	return path, nil
}
