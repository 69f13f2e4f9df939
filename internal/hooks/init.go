package hooks

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// DefaultScriptHook is written as <hook_name>.star by Init.
const DefaultScriptHook = `# By default scripted hooks relay the call to the same named shell script
# (hook_name.sh) located in the hooks directory, e.g. before_build.star calls
# before_build.sh with the same arguments.
#
# Define a custom hook as follows
#
# def hook(hook_name, hooks_dir, **kwargs):
#     print(hook_name, kwargs)

def hook(**kwargs):
    default_hook(**kwargs)
`

// DefaultShellHook is written as <hook_name>.sh by Init.
const DefaultShellHook = `#!/usr/bin/env bash

# By default cobra stops on error i.e. exit 1

HOOK_NAME="${1}"
HOOKS_DIR="${2}"
BACKUP_DIR="${3}"
BACKUP_NAME="${4}"

# Note for pull and restore hooks BACKUP_DIR is the CACHE_DIR or
# the directory where the file resides actually

echo "${@}" > "${HOOKS_DIR}/${HOOK_NAME}.log"
`

// Init writes the default scripted and shell hook for every name into dir,
// overwriting whatever is there.
func Init(dir string) error {
	if dir == "" {
		return errors.NotValidf("empty hooks directory")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return errors.Annotatef(err, "creating hooks directory %q", dir)
	}

	for _, name := range Names {
		script := filepath.Join(dir, string(name)+".star")
		if err := os.WriteFile(script, []byte(DefaultScriptHook), 0644); err != nil { // #nosec G306
			return errors.Annotatef(err, "writing %s", script)
		}

		shell := filepath.Join(dir, string(name)+".sh")
		if err := os.WriteFile(shell, []byte(DefaultShellHook), 0755); err != nil { // #nosec G306 - hook must be executable
			return errors.Annotatef(err, "writing %s", shell)
		}
		// WriteFile keeps the mode of an existing file.
		if err := os.Chmod(shell, 0755); err != nil { // #nosec G302
			return errors.Annotatef(err, "making %s executable", shell)
		}
	}
	return nil
}
