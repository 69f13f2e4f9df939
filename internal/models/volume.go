package models

import (
	"fmt"
	"sort"
)

// Volume describes a named docker volume as reported by the engine.
type Volume struct {
	Name       string            `json:"name"`
	Driver     string            `json:"driver"`
	Options    map[string]string `json:"options"`
	Labels     map[string]string `json:"labels"`
	Mountpoint string            `json:"mountpoint,omitempty"`
	CreatedAt  string            `json:"created_at,omitempty"`
}

// Mount modes.
const (
	ReadOnly  = "ro"
	ReadWrite = "rw"
)

// Mount binds a volume or host directory into a container.
type Mount struct {
	Bind string `json:"bind"`
	Mode string `json:"mode"`
}

// Mounts maps a source (volume name or absolute host path) to its mount.
type Mounts map[string]Mount

// Binds renders the mounts as docker bind specifications, ordered by source.
func (m Mounts) Binds() []string {
	sources := make([]string, 0, len(m))
	for src := range m {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	binds := make([]string, 0, len(sources))
	for _, src := range sources {
		mnt := m[src]
		binds = append(binds, fmt.Sprintf("%s:%s:%s", src, mnt.Bind, mnt.Mode))
	}
	return binds
}
