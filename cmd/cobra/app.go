package main

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ypeckstadt/cobra/internal/backup"
	"github.com/ypeckstadt/cobra/internal/config"
	"github.com/ypeckstadt/cobra/internal/docker"
	"github.com/ypeckstadt/cobra/internal/hooks"
	"github.com/ypeckstadt/cobra/internal/storage"
	"github.com/ypeckstadt/cobra/pkg/version"
)

// app carries the configuration and the global flags of one invocation.
type app struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
	logger zerolog.Logger

	logLevel string
	quiet    bool
	password string
	hookOff  []string

	// newEngine connects to the container engine. Replaced in tests.
	newEngine func(ctx context.Context) (backup.Engine, error)
}

func newApp(cfg *config.Config, stdout, stderr io.Writer) *app {
	a := &app{
		cfg:    cfg,
		stdout: stdout,
		stderr: stderr,
		logger: zerolog.Nop(),
	}
	a.newEngine = a.dockerEngine
	return a
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "cobra",
		Short:         "Comprehensive Backing up and Restoration Archiver",
		Long:          "cobra backs up docker volumes and host directories into archives, pushes them to remote storage and restores them.",
		Version:       version.Version,
		Args:          usageArgs(cobra.NoArgs),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setupLogger()
		},
		RunE: noCommand,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.NewNotValid(err, "invalid flags")
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.Docker.BaseURL, "base-url", a.cfg.Docker.BaseURL, "Docker daemon socket base url (DOCKER_HOST)")
	flags.BoolVar(&a.cfg.Docker.TLS, "tls", a.cfg.Docker.TLS, "Use TLS to reach the docker daemon (DOCKER_TLS_VERIFY)")
	flags.StringVar(&a.cfg.Docker.CertDir, "cert-dir", a.cfg.Docker.CertDir, "Path to ca and client certificates (DOCKER_CERT_PATH)")
	flags.StringVar(&a.logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	flags.StringVar(&a.cfg.Storage, "storage", a.cfg.Storage, "Remote storage type (drive, gcs, s3, local)")
	flags.StringVar(&a.password, "password", "", "Password to encrypt pushed archives and decrypt pulled ones (COBRA_PASSWORD)")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "Do not draw progress bars")

	root.AddCommand(a.createBackupCommand())
	root.AddCommand(a.createVolumeCommand())
	root.AddCommand(a.createHooksCommand())
	root.AddCommand(a.createDirsCommand())
	root.AddCommand(createVersionCommand(a.stdout))
	return root
}

func (a *app) setupLogger() error {
	level, err := zerolog.ParseLevel(strings.ToLower(a.logLevel))
	if err != nil {
		return errors.NotValidf("log level %q", a.logLevel)
	}
	out := zerolog.ConsoleWriter{Out: a.stderr, TimeFormat: time.RFC3339}
	a.logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return nil
}

func (a *app) dockerEngine(ctx context.Context) (backup.Engine, error) {
	client, err := docker.NewClient(ctx, docker.Options{
		Host:    a.cfg.Docker.BaseURL,
		TLS:     a.cfg.Docker.TLS,
		CertDir: a.cfg.Docker.CertDir,
	}, a.logger)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return client, nil
}

// backupClient assembles a client with the hooks of the hooks directory.
// The engine is only connected when withEngine is set.
func (a *app) backupClient(ctx context.Context, withEngine bool) (*backup.Client, error) {
	dispatcher, err := hooks.New(a.cfg.HooksDir, a.hookOff, hooks.WithLogger(a.logger))
	if err != nil {
		return nil, errors.Trace(err)
	}

	password := a.password
	if password == "" {
		password = a.cfg.Password
	}
	cfg := backup.Config{
		Hooks:    dispatcher,
		Logger:   a.logger,
		Password: password,
		Quiet:    a.quiet,
	}
	if withEngine {
		engine, err := a.newEngine(ctx)
		if err != nil {
			return nil, errors.Annotate(err, "connecting to docker")
		}
		cfg.Engine = engine
	}
	return backup.NewClient(cfg), nil
}

// remoteFlags are the flags addressing the remote folder.
type remoteFlags struct {
	creds    string
	folderID string
}

func (a *app) addRemoteFlags(cmd *cobra.Command, rf *remoteFlags) {
	cmd.Flags().StringVar(&rf.creds, "creds", a.cfg.Credentials, "Credentials file of the remote storage")
	cmd.Flags().StringVar(&rf.folderID, "folder-id", a.cfg.FolderID, "Remote folder id (drive folder, bucket[/prefix] or directory)")
}

func (a *app) remote(rf remoteFlags) storage.Config {
	return storage.Config{Type: a.cfg.Storage, Credentials: rf.creds, Folder: rf.folderID}
}

// usageArgs marks positional argument errors as configuration errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return errors.NewNotValid(err, "invalid arguments")
		}
		return nil
	}
}

func noCommand(cmd *cobra.Command, args []string) error {
	return errors.NewNotValid(nil, "no command specified")
}
