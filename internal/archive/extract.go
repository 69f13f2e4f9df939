// Package archive unpacks backup archives on the host.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/klauspost/pgzip"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Extract unpacks the tar archive at file into dest and returns the entry
// names in archive order, one per line like a verbose tar. Gzip compression
// is detected from the content. Entries escaping dest are rejected.
func Extract(ctx context.Context, file, dest string) (string, error) {
	f, err := os.Open(file) // #nosec G304 - archive chosen by the caller
	if err != nil {
		return "", errors.Trace(err)
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if magic, _ := br.Peek(len(gzipMagic)); bytes.Equal(magic, gzipMagic) {
		gz, err := pgzip.NewReader(br)
		if err != nil {
			return "", errors.Annotatef(err, "reading %q", file)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return "", errors.Trace(err)
	}

	var out strings.Builder
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return out.String(), err
		}

		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out.String(), errors.Annotatef(err, "reading %q", file)
		}

		target, err := within(root, header.Name)
		if err != nil {
			return out.String(), errors.Trace(err)
		}
		if err := noLinkedParents(root, target, header.Name); err != nil {
			return out.String(), errors.Trace(err)
		}
		if err := write(tr, header, root, target); err != nil {
			return out.String(), errors.Annotatef(err, "extracting %q", header.Name)
		}
		out.WriteString(header.Name)
		out.WriteByte('\n')
	}
	return out.String(), nil
}

func within(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", errors.NotValidf("path %q in archive", name)
	}
	return target, nil
}

// noLinkedParents rejects a target whose existing parent directories below
// root include a symlink, since writing there would land outside root.
func noLinkedParents(root, target, name string) error {
	rel, err := filepath.Rel(root, filepath.Dir(target))
	if err != nil || rel == "." {
		return errors.Trace(err)
	}
	dir := root
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		dir = filepath.Join(dir, part)
		info, err := os.Lstat(dir)
		if os.IsNotExist(err) {
			return nil
		} else if err != nil {
			return errors.Trace(err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return errors.NotValidf("path %q in archive (through symlink %q)", name, dir)
		}
	}
	return nil
}

func write(tr *tar.Reader, header *tar.Header, root, target string) error {
	// setuid and setgid bits are not restored.
	mode := os.FileMode(header.Mode).Perm()

	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, mode|0700)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		// Never write through a symlink left by an earlier entry.
		_ = os.Remove(target)
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode) // #nosec G304
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil { // #nosec G110 - archives are our own
			_ = out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		return os.Chtimes(target, header.AccessTime, header.ModTime)
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Symlink(header.Linkname, target)
	case tar.TypeLink:
		source, err := within(root, header.Linkname)
		if err != nil {
			return err
		}
		if err := noLinkedParents(root, source, header.Linkname); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Link(source, target)
	}
	return nil
}
