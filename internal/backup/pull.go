package backup

import (
	"context"
	"os"

	"github.com/juju/errors"

	"github.com/ypeckstadt/cobra/internal/crypto"
	"github.com/ypeckstadt/cobra/internal/hooks"
	"github.com/ypeckstadt/cobra/internal/storage"
)

// PullOptions select the remote archive to download.
type PullOptions struct {
	FileID string
	// Latest pulls the newest file of the remote folder instead of FileID.
	Latest   bool
	Remote   storage.Config
	CacheDir string
	NoCache  bool
	// Restore restores the archive once downloaded.
	Restore bool
}

// PullResult describes a finished pull. Path is empty when Latest found an
// empty folder.
type PullResult struct {
	Path     string
	Restored *Result
}

// Pull downloads an archive into the cache directory.
func (c *Client) Pull(ctx context.Context, opts PullOptions) (*PullResult, error) {
	var remote storage.Remote
	defer func() {
		if remote != nil {
			_ = remote.Close()
		}
	}()

	fileID := opts.FileID
	if opts.Latest {
		if err := opts.Remote.Validate(); err != nil {
			return nil, errors.Trace(err)
		}
		var err error
		if remote, err = c.openRemote(ctx, &opts.Remote); err != nil {
			return nil, errors.Trace(err)
		}
		files, err := remote.List(ctx)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if len(files) == 0 {
			return &PullResult{}, nil
		}
		fileID = files[len(files)-1].ID
	}

	if err := opts.Remote.ValidateFile(fileID); err != nil {
		return nil, errors.Trace(err)
	}

	cacheDir, err := absDir(opts.CacheDir)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := os.MkdirAll(cacheDir, 0750); err != nil {
		return nil, errors.Annotate(err, "creating cache directory")
	}

	if remote == nil {
		if remote, err = c.openRemote(ctx, &opts.Remote); err != nil {
			return nil, errors.Trace(err)
		}
	}

	if err := c.callHook(ctx, hooks.BeforePull, hooks.KV("cache_dir", cacheDir), hooks.KV("filename", fileID)); err != nil {
		return nil, errors.Trace(err)
	}

	bar := c.newTransferBar(fileID)
	path, err := remote.Download(ctx, fileID, cacheDir, !opts.NoCache, bar.Update)
	bar.Finish()
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.logger.Info().Str("file", path).Msg("pulled")

	if err := c.decrypt(path); err != nil {
		return nil, errors.Trace(err)
	}

	if err := c.callHook(ctx, hooks.AfterPull, hooks.KV("cache_dir", cacheDir), hooks.KV("filename", path)); err != nil {
		return nil, errors.Trace(err)
	}

	result := &PullResult{Path: path}
	if opts.Restore {
		if result.Restored, err = c.Restore(ctx, path, cacheDir); err != nil {
			return result, errors.Trace(err)
		}
	}
	return result, nil
}

// decrypt replaces an encrypted download with its plaintext.
func (c *Client) decrypt(path string) error {
	encrypted, err := crypto.IsEncryptedFile(path)
	if err != nil || !encrypted {
		return errors.Trace(err)
	}
	if c.password == "" {
		return errors.NotValidf("missing password for encrypted archive %q (--password or COBRA_PASSWORD)", path)
	}
	c.logger.Info().Str("file", path).Msg("decrypting")
	return errors.Annotatef(crypto.DecryptFile(path, c.password), "decrypting %q", path)
}
