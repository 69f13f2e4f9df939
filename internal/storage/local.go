package storage

import (
	"context"
	"crypto/md5" // #nosec G501 - checksum only, matches the Drive listing
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/juju/errors"
)

// LocalRemote is a directory standing in for a remote folder, for example
// a mounted network share. File ids are file names.
type LocalRemote struct {
	basePath string
}

// NewLocalRemote uses basePath, creating it when needed.
func NewLocalRemote(basePath string) (*LocalRemote, error) {
	if basePath == "" {
		return nil, errors.NotValidf("empty folder path")
	}
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, errors.Annotate(err, "creating folder")
	}
	return &LocalRemote{basePath: basePath}, nil
}

func (l *LocalRemote) localName(fileID string) string {
	return filepath.Base(fileID)
}

// Upload copies localPath into the folder.
func (l *LocalRemote) Upload(ctx context.Context, localPath, _ string, remoteName string, progress ProgressFunc) error {
	r, err := openUpload(localPath, remoteName, progress)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = r.Close() }()

	_, err = fetch(l.basePath, filepath.Base(remoteName), r.status.Total, false, nil, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
	return errors.Annotatef(err, "uploading %q", remoteName)
}

// Download copies the file named fileID out of the folder.
func (l *LocalRemote) Download(ctx context.Context, fileID, localDir string, useCache bool, progress ProgressFunc) (string, error) {
	src := filepath.Join(l.basePath, l.localName(fileID))
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return "", errors.NotFoundf("file %q", fileID)
	} else if err != nil {
		return "", errors.Trace(err)
	}

	return fetch(localDir, info.Name(), info.Size(), useCache, progress, func(w io.Writer) error {
		f, err := os.Open(src) // #nosec G304 - inside the folder
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		_, err = io.Copy(w, f)
		return err
	})
}

// List returns the regular files of the folder, oldest first.
func (l *LocalRemote) List(ctx context.Context) ([]File, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, errors.Annotate(err, "listing folder")
	}

	var files []File
	modified := map[string]time.Time{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || entry.Name()[0] == '.' {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, errors.Trace(err)
		}
		sum, err := checksum(filepath.Join(l.basePath, entry.Name()))
		if err != nil {
			return nil, errors.Trace(err)
		}
		ts := info.ModTime().UTC()
		modified[entry.Name()] = ts
		files = append(files, File{
			ID:           entry.Name(),
			Name:         entry.Name(),
			CreatedTime:  ts.Format(time.RFC3339),
			ModifiedTime: ts.Format(time.RFC3339),
			Size:         info.Size(),
			MD5:          sum,
		})
	}
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if ta, tb := modified[a.ID], modified[b.ID]; !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return a.Name < b.Name
	})
	return files, nil
}

func checksum(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - inside the folder
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := md5.New() // #nosec G401
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (l *LocalRemote) Close() error {
	return nil
}
