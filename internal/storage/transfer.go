package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// progressWriter counts bytes written through it.
type progressWriter struct {
	w      io.Writer
	status Status
	fn     ProgressFunc
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.status.Current += int64(n)
	pw.fn.report(pw.status)
	return n, err
}

// progressReader counts bytes read from a file. Seeking restarts the count
// so request signing that rewinds the body reports sensible progress.
type progressReader struct {
	f      *os.File
	status Status
	fn     ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.f.Read(p)
	pr.status.Current += int64(n)
	if n > 0 {
		pr.fn.report(pr.status)
	}
	return n, err
}

func (pr *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := pr.f.Seek(offset, whence)
	if err == nil {
		pr.status.Current = pos
	}
	return pos, err
}

// openUpload opens localPath for an upload named remoteName.
func openUpload(localPath, remoteName string, progress ProgressFunc) (*progressReader, error) {
	f, err := os.Open(localPath) // #nosec G304 - archive path chosen by the caller
	if err != nil {
		return nil, errors.Trace(err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Trace(err)
	}
	return &progressReader{
		f:      f,
		status: Status{Name: remoteName, Total: info.Size()},
		fn:     progress,
	}, nil
}

func (pr *progressReader) Close() error {
	return pr.f.Close()
}

// fetch downloads name into localDir. copyFn writes the remote content; it
// is not called when useCache is set and the file is already there. The
// content lands in a temporary file that is renamed into place once
// complete.
func fetch(localDir, name string, size int64, useCache bool, progress ProgressFunc, copyFn func(io.Writer) error) (string, error) {
	target := filepath.Join(localDir, name)
	progress.report(Status{Name: name, Total: size})

	if useCache {
		if _, err := os.Stat(target); err == nil {
			return target, nil
		}
	}

	tmp, err := os.CreateTemp(localDir, "."+name+".*.part")
	if err != nil {
		return "", errors.Trace(err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	pw := &progressWriter{w: tmp, status: Status{Name: name, Total: size}, fn: progress}
	if err := copyFn(pw); err != nil {
		_ = tmp.Close()
		return "", errors.Annotatef(err, "downloading %q", name)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Trace(err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", errors.Trace(err)
	}
	return target, nil
}
