package hooks

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/juju/errors"
)

// CommandContextFunc creates the command for a hook script. It matches
// exec.CommandContext so tests can substitute a helper process.
type CommandContextFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

// ShellHandler runs <hooks_dir>/<hook_name>.sh with the positional
// arguments hook_name, hooks_dir and then every context value in order.
// A missing script is a no-op.
type ShellHandler struct {
	commandContext CommandContextFunc
	stdout         io.Writer
	stderr         io.Writer
}

// NewShellHandler returns a ShellHandler using commandContext, or
// exec.CommandContext when nil.
func NewShellHandler(commandContext CommandContextFunc) *ShellHandler {
	if commandContext == nil {
		commandContext = exec.CommandContext
	}
	return &ShellHandler{
		commandContext: commandContext,
		stdout:         os.Stdout,
		stderr:         os.Stderr,
	}
}

// Script returns the shell script path for name.
func (h *ShellHandler) Script(dir string, name Name) string {
	return filepath.Join(dir, string(name)+".sh")
}

// Run implements Handler.
func (h *ShellHandler) Run(ctx context.Context, name Name, dir string, args []Arg) error {
	script := h.Script(dir, name)
	if _, err := os.Stat(script); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Annotatef(err, "checking %s", script)
	}

	argv := append([]string{string(name), dir}, values(args)...)
	cmd := h.commandContext(ctx, script, argv...)
	cmd.Stdout = h.stdout
	cmd.Stderr = h.stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Annotatef(err, "running %s", script)
	}
	return nil
}
