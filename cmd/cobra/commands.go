package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ypeckstadt/cobra/internal/hooks"
	"github.com/ypeckstadt/cobra/pkg/version"
)

func (a *app) createVolumeCommand() *cobra.Command {
	var asJSON bool
	list := func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, err := a.newEngine(ctx)
		if err != nil {
			return err
		}
		volumes, err := engine.ListVolumes(ctx)
		if err != nil {
			return err
		}
		return printVolumes(a.stdout, volumes, asJSON)
	}

	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Docker volume actions, by default lists every volume",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  list,
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print in json format")
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List docker volumes",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  list,
	})
	return cmd
}

func (a *app) createHooksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Hook management",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  noCommand,
	}

	var dir string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default hooks into the hooks directory, overwriting existing ones",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := hooks.Init(dir); err != nil {
				return err
			}
			a.logger.Info().Str("dir", dir).Msg("hooks initialized")
			return nil
		},
	}
	initCmd.Flags().StringVar(&dir, "hooks-dir", a.cfg.HooksDir, "Directory to write the hooks to")
	cmd.AddCommand(initCmd)
	return cmd
}

func (a *app) createDirsCommand() *cobra.Command {
	printDirs := func(cmd *cobra.Command, args []string) error {
		for _, dir := range a.cfg.Dirs() {
			fmt.Fprintln(a.stdout, dir)
		}
		return nil
	}

	cmd := &cobra.Command{
		Use:   "dirs",
		Short: "Print the default backup, cache and hooks directories",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  printDirs,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the default directories",
		Args:  usageArgs(cobra.NoArgs),
		RunE:  printDirs,
	})
	return cmd
}

func createVersionCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(w, version.Info())
		},
	}
}
