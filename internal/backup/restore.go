package backup

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/kballard/go-shellquote"

	"github.com/ypeckstadt/cobra/internal/archive"
	"github.com/ypeckstadt/cobra/internal/docker"
	"github.com/ypeckstadt/cobra/internal/hooks"
	"github.com/ypeckstadt/cobra/internal/metadata"
	"github.com/ypeckstadt/cobra/internal/models"
)

// Restore unpacks file and copies its content back into the volumes and
// directories it was built from, creating any that are missing. A file
// name without a path separator is looked up in baseDir.
func (c *Client) Restore(ctx context.Context, file, baseDir string) (*Result, error) {
	if err := c.needEngine(); err != nil {
		return nil, errors.Trace(err)
	}

	full, err := resolveFile(file, baseDir)
	if err != nil {
		return nil, errors.Trace(err)
	}
	archiveDir := filepath.Dir(full)
	archiveName := filepath.Base(full)

	hookArgs := []hooks.Arg{hooks.KV("cache_dir", archiveDir), hooks.KV("filename", archiveName)}
	if err := c.callHook(ctx, hooks.BeforeRestore, hookArgs...); err != nil {
		return nil, errors.Trace(err)
	}

	c.logger.Info().Str("archive", full).Msg("restoring archive")
	extracted, err := archive.Extract(ctx, full, archiveDir)
	if err != nil {
		return nil, errors.Annotatef(err, "extracting %q", full)
	}

	name := metadata.TrimArchiveExt(archiveName)
	doc, err := metadata.Read(filepath.Join(archiveDir, name, metadata.FileName))
	if err != nil {
		return nil, errors.Trace(err)
	}

	mounts := make(models.Mounts, len(doc)+1)
	for key, entry := range doc {
		if models.IsDir(key) {
			if err := os.MkdirAll(key, 0755); err != nil {
				return nil, errors.Annotatef(err, "creating directory %q", key)
			}
		} else if err := c.createVolume(ctx, key, entry); err != nil {
			return nil, errors.Trace(err)
		}
		mnt := entry.Mount()
		mnt.Mode = models.ReadWrite
		mounts[key] = mnt
	}
	mounts[archiveDir] = models.Mount{Bind: ContainerBackupDir, Mode: models.ReadOnly}

	spinner := c.newSpinner("Restoring " + archiveName)
	output, err := c.engine.Run(ctx, docker.RunOptions{
		Image: HelperImage,
		Cmd:   []string{"sh", "-c", restoreCommand(name)},
		Binds: mounts.Binds(),
	})
	spinner.Stop()
	if err != nil {
		return nil, errors.Annotate(err, "restoring archive")
	}

	if err := c.callHook(ctx, hooks.AfterRestore, hookArgs...); err != nil {
		return nil, errors.Trace(err)
	}
	return &Result{Archive: full, Output: extracted + output}, nil
}

func (c *Client) createVolume(ctx context.Context, name string, entry models.Entry) error {
	exists, err := c.engine.VolumeExists(ctx, name)
	if err != nil {
		return errors.Trace(err)
	}
	if exists {
		c.logger.Warn().Str("volume", name).Msg("volume already exists, its content will be overwritten")
	}
	return errors.Trace(c.engine.CreateVolume(ctx, models.Volume{
		Name:    name,
		Driver:  entry.Driver,
		Options: entry.Options,
		Labels:  entry.Labels,
	}))
}

// restoreCommand copies the extracted backup into the mount root. The glob
// stays unquoted so the shell expands it.
func restoreCommand(name string) string {
	return "cp -rf " + shellquote.Join(path.Join(ContainerBackupDir, name)) + "/* " + shellquote.Join("/"+name)
}
