package main

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/ypeckstadt/cobra/internal/backup"
)

func (a *app) createBackupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Build, push, pull and restore backups",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  noCommand,
	}
	cmd.PersistentFlags().StringVar(&a.cfg.HooksDir, "hooks-dir", a.cfg.HooksDir, "Directory to search for hooks")
	cmd.PersistentFlags().StringSliceVar(&a.hookOff, "hook-off", a.cfg.HookOff, "Hooks to disable, comma separated or repeated; '*' disables all")

	cmd.AddCommand(a.createBuildCommand())
	cmd.AddCommand(a.createPushCommand())
	cmd.AddCommand(a.createListCommand())
	cmd.AddCommand(a.createPullCommand())
	cmd.AddCommand(a.createRestoreCommand())
	return cmd
}

func (a *app) createBuildCommand() *cobra.Command {
	var (
		opts   backup.BuildOptions
		rf     remoteFlags
		push   bool
		remove bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a backup, by default of every volume available",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if push {
				opts.Push = &backup.PushOptions{Remote: a.remote(rf), Remove: remove}
			}

			client, err := a.backupClient(ctx, true)
			if err != nil {
				return err
			}
			result, err := client.Build(ctx, opts)
			if err != nil {
				return err
			}
			a.logger.Debug().Str("output", result.Output).Msg("archive contents")
			fmt.Fprintln(a.stdout, result.Archive)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Include, "include", "i", nil, "Volumes to include into the backup, comma separated or repeated")
	cmd.Flags().StringSliceVarP(&opts.Exclude, "exclude", "x", nil, "Volumes to exclude from the backup, comma separated or repeated")
	cmd.Flags().StringSliceVarP(&opts.Dirs, "dir", "d", nil, "Host directories to back up, comma separated or repeated")
	cmd.Flags().StringVar(&opts.BackupDir, "backup-dir", a.cfg.BackupDir, "Directory to store backups")
	cmd.Flags().StringVar(&opts.Basename, "basename", a.cfg.Basename, "Backup file prefix")
	cmd.Flags().BoolVar(&push, "push", false, "Upload the backup to remote storage once built")
	cmd.Flags().BoolVar(&remove, "rm", false, "Remove the local backup once pushed")
	a.addRemoteFlags(cmd, &rf)
	return cmd
}

func (a *app) createPushCommand() *cobra.Command {
	var (
		opts backup.PushOptions
		rf   remoteFlags
	)
	cmd := &cobra.Command{
		Use:   "push [files...]",
		Short: "Push backup files to remote storage",
		Long: "Push backup files to remote storage. Names without a path are looked up in the backup directory. " +
			"Without files every archive of the backup directory is pushed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts.Files = args
			opts.Remote = a.remote(rf)

			client, err := a.backupClient(ctx, false)
			if err != nil {
				return err
			}
			return client.Push(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.BackupDir, "backup-dir", a.cfg.BackupDir, "Directory to store backups")
	cmd.Flags().BoolVar(&opts.Remove, "rm", false, "Remove the local backups once pushed")
	a.addRemoteFlags(cmd, &rf)
	return cmd
}

func (a *app) createListCommand() *cobra.Command {
	var (
		opts backup.ListOptions
		rf   remoteFlags
		out  listFormat
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backup files, by default the local ones",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts.Storage = a.remote(rf)

			client, err := a.backupClient(ctx, false)
			if err != nil {
				return err
			}
			files, err := client.List(ctx, opts)
			if err != nil {
				return err
			}
			return printFiles(a.stdout, files, opts.Remote, out)
		},
	}

	cmd.Flags().BoolVar(&opts.Remote, "remote", false, "List remote files instead of local ones")
	cmd.Flags().StringVar(&opts.BackupDir, "backup-dir", a.cfg.BackupDir, "Directory to store backups")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "Keep names containing the pattern, prefix it with 'not ' to drop them instead")
	cmd.Flags().BoolVar(&out.json, "json", false, "Print in json format")
	cmd.Flags().BoolVar(&out.plain, "plain", false, "Print one file name per line")
	cmd.Flags().BoolVar(&out.id, "id", false, "Print file ids instead of names with --plain")
	a.addRemoteFlags(cmd, &rf)
	return cmd
}

func (a *app) createPullCommand() *cobra.Command {
	var (
		opts backup.PullOptions
		rf   remoteFlags
	)
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pull a backup from remote storage",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if opts.FileID != "" && opts.Latest {
				return errors.NewNotValid(nil, "--file-id and --latest are mutually exclusive")
			}
			opts.Remote = a.remote(rf)

			client, err := a.backupClient(ctx, opts.Restore)
			if err != nil {
				return err
			}
			result, err := client.Pull(ctx, opts)
			if err != nil {
				return err
			}
			if result.Path == "" {
				fmt.Fprintln(a.stdout, "No files found")
				return nil
			}
			fmt.Fprintln(a.stdout, result.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.FileID, "file-id", "", "Remote file id to pull")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "Pull the newest file of the remote folder. The file name is not checked")
	cmd.Flags().BoolVar(&opts.Restore, "restore", false, "Restore the backup once pulled")
	cmd.Flags().StringVar(&opts.CacheDir, "cache-dir", a.cfg.CacheDir, "Directory to store pulled backups")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false, "Download even when the file is already in the cache directory")
	a.addRemoteFlags(cmd, &rf)
	return cmd
}

func (a *app) createRestoreCommand() *cobra.Command {
	var cacheDir string
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore a backup archive",
		Long:  "Restore a backup archive. A file name without a path is looked up in the cache directory.",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.backupClient(ctx, true)
			if err != nil {
				return err
			}
			result, err := client.Restore(ctx, args[0], cacheDir)
			if err != nil {
				return err
			}
			a.logger.Debug().Str("output", result.Output).Msg("restored files")
			a.logger.Info().Str("archive", result.Archive).Msg("restored")
			return nil
		},
	}

	cmd.Flags().StringVar(&cacheDir, "cache-dir", a.cfg.CacheDir, "Directory holding pulled backups")
	return cmd
}
