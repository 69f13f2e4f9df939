package hooks

import (
	"context"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
)

// EntryPoint is the function a scripted hook must define. It is called with
// keyword arguments hook_name, hooks_dir and every context value.
const EntryPoint = "hook"

// StarlarkHandler runs <hooks_dir>/<hook_name>.star. Scripts can relay to
// the shell hook through the predeclared default_hook builtin.
type StarlarkHandler struct {
	shell  *ShellHandler
	logger zerolog.Logger
}

// NewStarlarkHandler returns a handler whose default_hook builtin relays to
// shell.
func NewStarlarkHandler(shell *ShellHandler, logger zerolog.Logger) *StarlarkHandler {
	return &StarlarkHandler{shell: shell, logger: logger}
}

// Script returns the script path for name.
func (h *StarlarkHandler) Script(dir string, name Name) string {
	return filepath.Join(dir, string(name)+".star")
}

// Has reports whether a script exists for name.
func (h *StarlarkHandler) Has(dir string, name Name) bool {
	info, err := os.Stat(h.Script(dir, name))
	return err == nil && info.Mode().IsRegular()
}

// Run implements Handler.
func (h *StarlarkHandler) Run(ctx context.Context, name Name, dir string, args []Arg) error {
	file := h.Script(dir, name)
	thread := &starlark.Thread{
		Name: string(name),
		Print: func(_ *starlark.Thread, msg string) {
			h.logger.Info().Str("hook", string(name)).Msg(msg)
		},
	}
	predeclared := starlark.StringDict{
		"default_hook": starlark.NewBuiltin("default_hook", h.defaultHook(ctx)),
	}

	globals, err := starlark.ExecFile(thread, file, nil, predeclared)
	if err != nil {
		return errors.Annotatef(err, "loading %s", file)
	}
	fn, ok := globals[EntryPoint].(starlark.Callable)
	if !ok {
		return errors.NotFoundf("function %q in %s", EntryPoint, file)
	}

	kwargs := []starlark.Tuple{
		{starlark.String("hook_name"), starlark.String(name)},
		{starlark.String("hooks_dir"), starlark.String(dir)},
	}
	for _, a := range args {
		kwargs = append(kwargs, starlark.Tuple{starlark.String(a.Key), starlark.String(a.Value)})
	}

	if _, err := starlark.Call(thread, fn, nil, kwargs); err != nil {
		return errors.Annotatef(err, "running %s", file)
	}
	return nil
}

// defaultHook relays default_hook(hook_name=..., hooks_dir=..., **context)
// to the shell handler, keeping keyword order as positional order.
func (h *StarlarkHandler) defaultHook(ctx context.Context) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) > 0 {
			return nil, errors.Errorf("%s: only keyword arguments are accepted", b.Name())
		}

		var (
			name Name
			dir  string
			rest []Arg
		)
		for _, kv := range kwargs {
			key, _ := starlark.AsString(kv[0])
			val, ok := starlark.AsString(kv[1])
			if !ok {
				val = kv[1].String()
			}
			switch key {
			case "hook_name":
				name = Name(val)
			case "hooks_dir":
				dir = val
			default:
				rest = append(rest, KV(key, val))
			}
		}
		if !name.Valid() || dir == "" {
			return nil, errors.Errorf("%s: hook_name and hooks_dir are required", b.Name())
		}

		if err := h.shell.Run(ctx, name, dir, rest); err != nil {
			return nil, err
		}
		return starlark.None, nil
	}
}
