package hooks

import (
	"strings"

	"github.com/juju/errors"
)

// Name identifies an extension point around a backup phase.
type Name string

const (
	BeforeBuild   Name = "before_build"
	AfterBuild    Name = "after_build"
	BeforePush    Name = "before_push"
	AfterPush     Name = "after_push"
	BeforePull    Name = "before_pull"
	AfterPull     Name = "after_pull"
	BeforeRestore Name = "before_restore"
	AfterRestore  Name = "after_restore"
)

// Names lists every valid hook name in phase order.
var Names = []Name{
	BeforeBuild, AfterBuild,
	BeforePush, AfterPush,
	BeforePull, AfterPull,
	BeforeRestore, AfterRestore,
}

// All disables every hook when passed in the disable set.
const All = "*"

// Valid reports whether n is one of Names.
func (n Name) Valid() bool {
	for _, name := range Names {
		if n == name {
			return true
		}
	}
	return false
}

func (n Name) String() string {
	return string(n)
}

// ParseName validates s as a hook name.
func ParseName(s string) (Name, error) {
	n := Name(s)
	if !n.Valid() {
		return "", errors.NotValidf("hook name %q (allowed: %s)", s, namesList())
	}
	return n, nil
}

func namesList() string {
	s := make([]string, len(Names))
	for i, n := range Names {
		s[i] = string(n)
	}
	return strings.Join(s, ", ")
}

// Arg is one named piece of context passed to a hook. Hooks receive
// context in call order.
type Arg struct {
	Key   string
	Value string
}

// KV builds an Arg.
func KV(key, value string) Arg {
	return Arg{Key: key, Value: value}
}

func values(args []Arg) []string {
	vals := make([]string, len(args))
	for i, a := range args {
		vals[i] = a.Value
	}
	return vals
}
