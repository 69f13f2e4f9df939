// Package metadata builds, writes and reads the sidecar document that makes
// an archive self-describing.
package metadata

import (
	"encoding/json"
	"os"
	"path"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"

	"github.com/ypeckstadt/cobra/internal/models"
)

// SuffixLen is the length of the random suffix appended to a directory
// whose base name collides with a volume name.
const SuffixLen = 8

// randomSuffix is swapped out in tests.
var randomSuffix = func() string {
	return utils.RandomString(SuffixLen, utils.LowerAlpha)
}

// VolumeMounts binds every volume read-only under root.
func VolumeMounts(volumes []models.Volume, root string) models.Mounts {
	mounts := make(models.Mounts, len(volumes))
	for _, v := range volumes {
		mounts[v.Name] = models.Mount{Bind: path.Join(root, v.Name), Mode: models.ReadOnly}
	}
	return mounts
}

// DirMounts binds every host directory read-only under root. The mount is
// keyed by the absolute, symlink-free path of the directory, and the bind
// uses its base name. A base name already taken by a volume or by an earlier
// directory gets a random lowercase suffix.
func DirMounts(dirs []string, volumes []models.Volume, root string) (models.Mounts, error) {
	taken := make(map[string]bool, len(volumes)+len(dirs))
	for _, v := range volumes {
		taken[v.Name] = true
	}

	mounts := make(models.Mounts, len(dirs))
	for _, dir := range dirs {
		full, err := filepath.Abs(dir)
		if err != nil {
			return nil, errors.Annotatef(err, "resolving directory %q", dir)
		}
		full, err = filepath.EvalSymlinks(full)
		if os.IsNotExist(err) {
			return nil, errors.NotFoundf("directory %q", dir)
		} else if err != nil {
			return nil, errors.Annotatef(err, "resolving directory %q", dir)
		}

		name := filepath.Base(full)
		for taken[name] {
			name = filepath.Base(full) + randomSuffix()
		}
		taken[name] = true

		mounts[full] = models.Mount{Bind: path.Join(root, name), Mode: models.ReadOnly}
	}
	return mounts, nil
}

// Build turns mounts into a document, recording driver, options and labels
// for every key that names one of the given volumes.
func Build(volumes []models.Volume, mounts models.Mounts) models.Document {
	doc := make(models.Document, len(mounts))
	for src, m := range mounts {
		doc[src] = models.Entry{Bind: m.Bind, Mode: m.Mode}
	}
	for _, v := range volumes {
		entry, ok := doc[v.Name]
		if !ok {
			continue
		}
		entry.Driver = v.Driver
		entry.Options = v.Options
		entry.Labels = v.Labels
		doc[v.Name] = entry
	}
	return doc
}

// Write stores doc as JSON in file.
func Write(doc models.Document, file string) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Annotate(err, "encoding metadata")
	}
	if err := os.WriteFile(file, data, 0644); err != nil { // #nosec G306 - read back by the restore container
		return errors.Annotatef(err, "writing metadata %q", file)
	}
	return nil
}

// Read loads the document stored in file. No validation is performed.
func Read(file string) (models.Document, error) {
	data, err := os.ReadFile(file) // #nosec G304 - path derived from the archive being restored
	if os.IsNotExist(err) {
		return nil, errors.NotFoundf("metadata file %q", file)
	} else if err != nil {
		return nil, errors.Annotatef(err, "reading metadata %q", file)
	}

	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Annotatef(err, "decoding metadata %q", file)
	}
	return doc, nil
}
