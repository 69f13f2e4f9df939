// Package backup builds archives of docker volumes and host directories,
// restores them, and moves them to and from remote storage.
package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/ypeckstadt/cobra/internal/docker"
	"github.com/ypeckstadt/cobra/internal/hooks"
	"github.com/ypeckstadt/cobra/internal/models"
	"github.com/ypeckstadt/cobra/internal/storage"
)

const (
	// HelperImage runs the build and restore commands.
	HelperImage = "busybox"

	// ContainerBackupDir is where the host backup or cache directory is
	// bound inside helper containers.
	ContainerBackupDir = "/backup"
)

// Engine is the container engine used to read and write volumes.
type Engine interface {
	ListVolumes(ctx context.Context) ([]models.Volume, error)
	VolumeExists(ctx context.Context, name string) (bool, error)
	CreateVolume(ctx context.Context, vol models.Volume) error
	Run(ctx context.Context, opts docker.RunOptions) (string, error)
}

// Hooks runs the hook for a phase.
type Hooks interface {
	Call(ctx context.Context, name hooks.Name, args ...hooks.Arg) error
}

// OpenRemoteFunc connects to remote storage.
type OpenRemoteFunc func(ctx context.Context, cfg *storage.Config) (storage.Remote, error)

// Config holds the collaborators of a Client. Engine may be nil for
// clients that only push and pull.
type Config struct {
	Engine     Engine
	Hooks      Hooks
	Clock      clock.Clock
	Logger     zerolog.Logger
	OpenRemote OpenRemoteFunc
	// Password enables encryption of pushed archives.
	Password string
	// Quiet disables progress bars.
	Quiet bool
}

// Client runs the backup operations.
type Client struct {
	engine     Engine
	hooks      Hooks
	clock      clock.Clock
	logger     zerolog.Logger
	openRemote OpenRemoteFunc
	password   string
	quiet      bool
}

// Result is the outcome of a build or restore.
type Result struct {
	// Archive is the absolute path of the archive built or restored.
	Archive string
	// Output is what the helper tools printed.
	Output string
}

// NewClient creates a new backup client
func NewClient(cfg Config) *Client {
	c := &Client{
		engine:     cfg.Engine,
		hooks:      cfg.Hooks,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		openRemote: cfg.OpenRemote,
		password:   cfg.Password,
		quiet:      cfg.Quiet,
	}
	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.openRemote == nil {
		c.openRemote = storage.Open
	}
	return c
}

func (c *Client) callHook(ctx context.Context, name hooks.Name, args ...hooks.Arg) error {
	if c.hooks == nil {
		return nil
	}
	c.logger.Debug().Str("hook", string(name)).Msg("calling hook")
	return c.hooks.Call(ctx, name, args...)
}

func (c *Client) needEngine() error {
	if c.engine == nil {
		return errors.New("no container engine configured")
	}
	return nil
}

// absDir makes dir absolute and resolves symlinks when dir exists.
func absDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Trace(err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	} else if !os.IsNotExist(err) {
		return "", errors.Trace(err)
	}
	return abs, nil
}

// resolveFile returns the absolute path of name. A name with a path
// separator is taken as is, any other is looked up in dir.
func resolveFile(name, dir string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		return absDir(name)
	}
	base, err := absDir(dir)
	if err != nil {
		return "", errors.Trace(err)
	}
	return filepath.Join(base, name), nil
}
