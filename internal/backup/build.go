package backup

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/kballard/go-shellquote"

	"github.com/ypeckstadt/cobra/internal/docker"
	"github.com/ypeckstadt/cobra/internal/hooks"
	"github.com/ypeckstadt/cobra/internal/metadata"
	"github.com/ypeckstadt/cobra/internal/models"
)

// BuildOptions select what goes into an archive.
type BuildOptions struct {
	Include   []string
	Exclude   []string
	Dirs      []string
	Basename  string
	BackupDir string
	// Push uploads the archive once built. Its Files and BackupDir are
	// ignored.
	Push *PushOptions
}

// Build snapshots the selected volumes and directories into
// <BackupDir>/<basename>@<UTC timestamp>.tar.gz. Partial output of a failed
// build is left in place.
func (c *Client) Build(ctx context.Context, opts BuildOptions) (*Result, error) {
	if opts.Push != nil {
		if err := opts.Push.Remote.Validate(); err != nil {
			return nil, errors.Trace(err)
		}
	}

	volumes, err := c.Volumes(ctx, opts.Include, opts.Exclude)
	if err != nil {
		return nil, errors.Trace(err)
	}

	name := metadata.BackupName(opts.Basename, c.clock.Now())
	root := "/" + name
	archiveName := metadata.ArchiveName(name)

	backupDir, err := filepath.Abs(opts.BackupDir)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := os.MkdirAll(backupDir, 0750); err != nil {
		return nil, errors.Annotate(err, "creating backup directory")
	}

	mounts := metadata.VolumeMounts(volumes, root)
	dirs, err := metadata.DirMounts(opts.Dirs, volumes, root)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for src, m := range dirs {
		mounts[src] = m
	}
	doc := metadata.Build(volumes, mounts)
	if err := metadata.Write(doc, filepath.Join(backupDir, metadata.FileName)); err != nil {
		return nil, errors.Trace(err)
	}
	mounts[backupDir] = models.Mount{Bind: ContainerBackupDir, Mode: models.ReadWrite}

	c.logger.Info().Str("archive", archiveName).Int("volumes", len(volumes)).Int("dirs", len(dirs)).Msg("building archive")

	hookArgs := []hooks.Arg{hooks.KV("backup_dir", backupDir), hooks.KV("filename", archiveName)}
	if err := c.callHook(ctx, hooks.BeforeBuild, hookArgs...); err != nil {
		return nil, errors.Trace(err)
	}

	spinner := c.newSpinner("Building " + archiveName)
	output, err := c.engine.Run(ctx, docker.RunOptions{
		Image: HelperImage,
		Cmd:   []string{"sh", "-c", buildCommand(name)},
		Binds: mounts.Binds(),
	})
	spinner.Stop()
	if err != nil {
		return nil, errors.Annotate(err, "building archive")
	}

	if err := c.callHook(ctx, hooks.AfterBuild, hookArgs...); err != nil {
		return nil, errors.Trace(err)
	}

	result := &Result{Archive: filepath.Join(backupDir, archiveName), Output: output}
	if opts.Push != nil {
		if err := c.pushFiles(ctx, []string{result.Archive}, *opts.Push); err != nil {
			return result, errors.Trace(err)
		}
	}
	return result, nil
}

// buildCommand moves the metadata document into the mount root and archives
// the root into the backup directory.
func buildCommand(name string) string {
	root := "/" + name
	archive := path.Join(ContainerBackupDir, metadata.ArchiveName(name))
	return shellquote.Join("mv", path.Join(ContainerBackupDir, metadata.FileName), root) +
		" && " + shellquote.Join("tar", "-czvf", archive, root)
}
