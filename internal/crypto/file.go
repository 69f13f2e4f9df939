package crypto

import (
	"io"
	"os"

	"github.com/juju/errors"
)

// EncryptFile writes the encrypted form of src to dst.
func EncryptFile(src, dst, password string) error {
	in, err := os.Open(src) // #nosec G304 - archive path chosen by the caller
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = in.Close() }()

	r, err := NewEncryptReader(in, password)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(writeFile(dst, r))
}

// DecryptFile replaces the encrypted file at path with its plaintext.
func DecryptFile(path, password string) error {
	in, err := os.Open(path) // #nosec G304 - archive path chosen by the caller
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = in.Close() }()

	r, err := NewDecryptReader(in, password)
	if err != nil {
		return errors.Trace(err)
	}
	tmp := path + ".dec"
	if err := writeFile(tmp, r); err != nil {
		_ = os.Remove(tmp)
		return errors.Trace(err)
	}
	return errors.Trace(os.Rename(tmp, path))
}

// IsEncryptedFile reports whether the file at path starts with the
// encryption magic.
func IsEncryptedFile(path string) (bool, error) {
	f, err := os.Open(path) // #nosec G304 - archive path chosen by the caller
	if err != nil {
		return false, errors.Trace(err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, len(Magic))
	if _, err := io.ReadFull(f, buf); err == io.EOF || err == io.ErrUnexpectedEOF {
		return false, nil
	} else if err != nil {
		return false, errors.Trace(err)
	}
	return IsEncrypted(buf), nil
}

func writeFile(path string, r io.Reader) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) // #nosec G304
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return errors.Annotatef(err, "writing %q", path)
	}
	return errors.Trace(out.Close())
}
