package backup

import (
	"context"
	"os"
	"strings"

	"github.com/juju/errors"

	"github.com/ypeckstadt/cobra/internal/storage"
)

// ListOptions select local or remote archives.
type ListOptions struct {
	Remote    bool
	BackupDir string
	Storage   storage.Config
	// Filter keeps names containing it; "not <pattern>" drops them instead.
	Filter string
}

// List returns the entries of the backup directory sorted by name, or the
// files of the remote folder oldest first. Local entries only carry a name.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]storage.File, error) {
	var files []storage.File
	if opts.Remote {
		if err := opts.Storage.Validate(); err != nil {
			return nil, errors.Trace(err)
		}
		remote, err := c.openRemote(ctx, &opts.Storage)
		if err != nil {
			return nil, errors.Trace(err)
		}
		defer func() { _ = remote.Close() }()
		if files, err = remote.List(ctx); err != nil {
			return nil, errors.Trace(err)
		}
	} else {
		entries, err := os.ReadDir(opts.BackupDir)
		if err != nil {
			return nil, errors.Annotate(err, "listing backup directory")
		}
		for _, e := range entries {
			files = append(files, storage.File{Name: e.Name()})
		}
	}
	return filter(files, opts.Filter), nil
}

func filter(files []storage.File, pattern string) []storage.File {
	if pattern == "" {
		return files
	}
	keep := true
	if rest, ok := strings.CutPrefix(pattern, "not "); ok {
		pattern, keep = rest, false
	}
	var out []storage.File
	for _, f := range files {
		if strings.Contains(f.Name, pattern) == keep {
			out = append(out, f)
		}
	}
	return out
}
