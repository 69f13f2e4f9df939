package backup

import (
	"context"
	"os"
	"path/filepath"

	"github.com/juju/errors"

	"github.com/ypeckstadt/cobra/internal/crypto"
	"github.com/ypeckstadt/cobra/internal/hooks"
	"github.com/ypeckstadt/cobra/internal/storage"
)

// PushOptions select the archives to upload and where to.
type PushOptions struct {
	// Files defaults to every archive in BackupDir. Names without a path
	// separator are looked up in BackupDir.
	Files     []string
	BackupDir string
	Remote    storage.Config
	// Remove deletes each local archive once uploaded.
	Remove bool
}

// Push uploads archives to the remote folder.
func (c *Client) Push(ctx context.Context, opts PushOptions) error {
	if err := opts.Remote.Validate(); err != nil {
		return errors.Trace(err)
	}

	backupDir, err := absDir(opts.BackupDir)
	if err != nil {
		return errors.Trace(err)
	}

	var files []string
	if len(opts.Files) == 0 {
		files, err = archives(backupDir)
		if err != nil {
			return errors.Trace(err)
		}
	}
	for _, f := range opts.Files {
		full, err := resolveFile(f, backupDir)
		if err != nil {
			return errors.Trace(err)
		}
		files = append(files, full)
	}
	return errors.Trace(c.pushFiles(ctx, files, opts))
}

// archives lists the regular, non hidden files of dir. The metadata
// sentinel and temporary files are hidden.
func archives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Annotate(err, "listing backup directory")
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || e.Name()[0] == '.' {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

func (c *Client) pushFiles(ctx context.Context, files []string, opts PushOptions) error {
	if len(files) == 0 {
		c.logger.Info().Msg("nothing to push")
		return nil
	}

	remote, err := c.openRemote(ctx, &opts.Remote)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = remote.Close() }()

	for _, file := range files {
		if err := c.pushFile(ctx, remote, file, opts.Remove); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (c *Client) pushFile(ctx context.Context, remote storage.Remote, file string, remove bool) error {
	dir, name := filepath.Dir(file), filepath.Base(file)
	hookArgs := []hooks.Arg{hooks.KV("backup_dir", dir), hooks.KV("filename", name)}
	if err := c.callHook(ctx, hooks.BeforePush, hookArgs...); err != nil {
		return errors.Trace(err)
	}

	upload := file
	if c.password != "" {
		upload = file + ".enc"
		if err := crypto.EncryptFile(file, upload, c.password); err != nil {
			return errors.Annotatef(err, "encrypting %q", name)
		}
		defer func() { _ = os.Remove(upload) }()
	}

	c.logger.Info().Str("file", name).Bool("encrypted", c.password != "").Msg("uploading")
	bar := c.newTransferBar(name)
	err := remote.Upload(ctx, upload, storage.MimeType, name, bar.Update)
	bar.Finish()
	if err != nil {
		return errors.Trace(err)
	}

	if err := c.callHook(ctx, hooks.AfterPush, hookArgs...); err != nil {
		return errors.Trace(err)
	}

	if remove {
		// The metadata sentinel and extracted directories stay behind.
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			return errors.Trace(err)
		}
	}
	return nil
}
