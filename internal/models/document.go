package models

import "strings"

// Entry holds the restore instructions for one backed-up item. Driver,
// Options and Labels are only set for volumes.
type Entry struct {
	Bind    string            `json:"bind"`
	Mode    string            `json:"mode"`
	Driver  string            `json:"driver,omitempty"`
	Options map[string]string `json:"options,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// Mount returns the bind-only part of the entry.
func (e Entry) Mount() Mount {
	return Mount{Bind: e.Bind, Mode: e.Mode}
}

// Document is the metadata sidecar embedded in every archive. Keys are
// volume names or absolute host directory paths.
type Document map[string]Entry

// IsDir reports whether key names a host directory rather than a volume.
func IsDir(key string) bool {
	return strings.Contains(key, "/")
}
