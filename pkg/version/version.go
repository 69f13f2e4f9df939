// Package version reports build information. Version, Commit and Date are
// set with -ldflags "-X" at release time.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Name is the binary name.
const Name = "cobra"

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// UserAgent identifies the binary to remote storage APIs.
func UserAgent() string {
	return Name + "/" + Version
}

// Info returns the multi-line version report printed by the version command.
func Info() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s version %s\n", Name, Version)
	for _, kv := range [][2]string{
		{"Git commit", Commit},
		{"Build date", Date},
		{"Go version", runtime.Version()},
		{"Platform", runtime.GOOS + "/" + runtime.GOARCH},
	} {
		fmt.Fprintf(&b, "%s: %s\n", kv[0], kv[1])
	}
	return strings.TrimSuffix(b.String(), "\n")
}
