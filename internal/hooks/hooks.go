// Package hooks resolves and runs the user hooks wrapped around every
// build, push, pull and restore phase.
package hooks

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// Handler runs one hook.
type Handler interface {
	Run(ctx context.Context, name Name, hooksDir string, args []Arg) error
}

// Error is returned when a hook in the stop-on-error class fails. It aborts
// the enclosing operation.
type Error struct {
	Name Name
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("interrupted by %s hook: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Dispatcher resolves a hook name to a scripted hook when one exists, and to
// the shell hook otherwise.
type Dispatcher struct {
	dir         string
	disabled    map[Name]bool
	stopOnError map[Name]bool
	script      *StarlarkHandler
	shell       *ShellHandler
	logger      zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*dispatcherOptions)

type dispatcherOptions struct {
	logger         zerolog.Logger
	commandContext CommandContextFunc
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *dispatcherOptions) { o.logger = logger }
}

// WithCommandContext replaces exec.CommandContext for shell hooks.
func WithCommandContext(f CommandContextFunc) Option {
	return func(o *dispatcherOptions) { o.commandContext = f }
}

// New returns a dispatcher for the hooks in dir. disabled may hold hook
// names or All.
func New(dir string, disabled []string, opts ...Option) (*Dispatcher, error) {
	o := dispatcherOptions{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	off := make(map[Name]bool)
	for _, s := range disabled {
		if s == All {
			for _, n := range Names {
				off[n] = true
			}
			continue
		}
		n, err := ParseName(s)
		if err != nil {
			return nil, errors.Trace(err)
		}
		off[n] = true
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Annotatef(err, "resolving hooks directory %q", dir)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	// Every hook currently stops the enclosing operation on failure.
	stop := make(map[Name]bool, len(Names))
	for _, n := range Names {
		stop[n] = true
	}

	shell := NewShellHandler(o.commandContext)
	return &Dispatcher{
		dir:         abs,
		disabled:    off,
		stopOnError: stop,
		script:      NewStarlarkHandler(shell, o.logger),
		shell:       shell,
		logger:      o.logger,
	}, nil
}

// Dir returns the hooks directory.
func (d *Dispatcher) Dir() string {
	return d.dir
}

// Call runs the hook called name with args as context. Disabled hooks are
// silently skipped.
func (d *Dispatcher) Call(ctx context.Context, name Name, args ...Arg) (err error) {
	if !name.Valid() {
		return errors.NotValidf("hook name %q", name)
	}
	if d.disabled[name] {
		d.logger.Debug().Str("hook", name.String()).Msg("hook disabled")
		return nil
	}

	var handler Handler = d.shell
	if d.script.Has(d.dir, name) {
		handler = d.script
	}

	d.logger.Debug().Str("hook", name.String()).Str("dir", d.dir).Msg("calling hook")
	defer func() {
		if r := recover(); r != nil {
			err = d.fail(name, errors.Errorf("panic: %v", r))
		}
	}()
	if err := handler.Run(ctx, name, d.dir, args); err != nil {
		return d.fail(name, err)
	}
	return nil
}

func (d *Dispatcher) fail(name Name, err error) error {
	if d.stopOnError[name] {
		return &Error{Name: name, Err: err}
	}
	d.logger.Warn().Str("hook", name.String()).Err(err).Msg("hook failed")
	return nil
}
