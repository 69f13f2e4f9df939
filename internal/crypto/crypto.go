// Package crypto encrypts archives for remote storage with AES-256-GCM.
// The stream is split into fixed size chunks, each sealed with a nonce
// derived from the header nonce and the chunk counter. The last chunk is
// sealed with its own additional data, so a stream cut at a chunk boundary
// fails to decrypt.
package crypto

import (
	"bufio"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/juju/errors"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the size of the salt for key derivation
	SaltSize = 32
	// KeySize is the size of the AES key (256 bits)
	KeySize = 32
	// NonceSize is the size of the GCM nonce
	NonceSize = 12
	// Iterations for PBKDF2
	Iterations = 100000
	// ChunkSize is the plaintext size of every sealed chunk but the last.
	ChunkSize = 64 * 1024
	// TagSize is the GCM tag appended to every sealed chunk.
	TagSize = 16

	version = 2
)

// Additional data of the chunks.
var (
	moreChunks = []byte{0}
	lastChunk  = []byte{1}
)

// Magic starts every encrypted archive.
var Magic = []byte("COBRAENC")

// HeaderSize is the encoded size of a Header.
var HeaderSize = len(Magic) + 1 + SaltSize + NonceSize

// Header carries what a reader needs to rebuild the key and nonces.
type Header struct {
	Salt  []byte
	Nonce []byte
}

// DeriveKey derives an encryption key from a password using PBKDF2
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
}

// NewHeader returns a header with a fresh salt and nonce.
func NewHeader() (*Header, error) {
	h := &Header{Salt: make([]byte, SaltSize), Nonce: make([]byte, NonceSize)}
	if _, err := io.ReadFull(rand.Reader, h.Salt); err != nil {
		return nil, errors.Annotate(err, "generating salt")
	}
	if _, err := io.ReadFull(rand.Reader, h.Nonce); err != nil {
		return nil, errors.Annotate(err, "generating nonce")
	}
	return h, nil
}

func newAEAD(password string, h *Header) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(password, h.Salt))
	if err != nil {
		return nil, errors.Annotate(err, "creating cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Annotate(err, "creating GCM")
	}
	return gcm, nil
}

// chunkNonce xors the counter into the low bytes of the base nonce.
func chunkNonce(base []byte, counter uint64) []byte {
	nonce := make([]byte, len(base))
	copy(nonce, base)
	for i := 0; i < 8 && i < len(nonce); i++ {
		nonce[len(nonce)-1-i] ^= byte(counter >> (8 * i))
	}
	return nonce
}

// chunkReader turns a stream into sealed or opened chunks. Every chunk but
// the last is read in full so chunk boundaries match between writer and
// reader regardless of how the underlying reader splits its data. A chunk
// is the last one when the source ends after it.
type chunkReader struct {
	reader  *bufio.Reader
	aead    cipher.AEAD
	nonce   []byte
	counter uint64
	buffer  []byte
	pending []byte
	done    bool
	seal    bool
}

func (cr *chunkReader) Read(p []byte) (int, error) {
	for len(cr.pending) == 0 {
		if cr.done {
			return 0, io.EOF
		}
		if err := cr.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, cr.pending)
	cr.pending = cr.pending[n:]
	return n, nil
}

func (cr *chunkReader) next() error {
	n, err := io.ReadFull(cr.reader, cr.buffer)
	last := false
	switch err {
	case nil:
		if _, err := cr.reader.Peek(1); err == io.EOF {
			last = true
		} else if err != nil {
			return errors.Trace(err)
		}
	case io.EOF, io.ErrUnexpectedEOF:
		last = true
	default:
		return errors.Trace(err)
	}

	ad := moreChunks
	if last {
		ad = lastChunk
	}
	nonce := chunkNonce(cr.nonce, cr.counter)
	cr.counter++
	if cr.seal {
		// An empty source still yields one sealed, empty last chunk.
		cr.pending = cr.aead.Seal(nil, nonce, cr.buffer[:n], ad)
		cr.done = last
		return nil
	}

	if n == 0 {
		return errors.NotValidf("encrypted archive (truncated)")
	}
	plain, err := cr.aead.Open(nil, nonce, cr.buffer[:n], ad)
	if err != nil {
		return errors.NotValidf("password or archive (decryption failed)")
	}
	cr.pending = plain
	cr.done = last
	return nil
}

// NewEncryptReader returns a reader yielding the header followed by the
// encrypted content of r.
func NewEncryptReader(r io.Reader, password string) (io.Reader, error) {
	h, err := NewHeader()
	if err != nil {
		return nil, errors.Trace(err)
	}
	aead, err := newAEAD(password, h)
	if err != nil {
		return nil, errors.Trace(err)
	}

	var header bytes.Buffer
	if err := WriteHeader(&header, h); err != nil {
		return nil, errors.Trace(err)
	}
	return io.MultiReader(&header, &chunkReader{
		reader: bufio.NewReader(r),
		aead:   aead,
		nonce:  h.Nonce,
		buffer: make([]byte, ChunkSize),
		seal:   true,
	}), nil
}

// NewDecryptReader reads the header from r and returns a reader yielding the
// plaintext.
func NewDecryptReader(r io.Reader, password string) (io.Reader, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	aead, err := newAEAD(password, h)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &chunkReader{
		reader: bufio.NewReader(r),
		aead:   aead,
		nonce:  h.Nonce,
		buffer: make([]byte, ChunkSize+aead.Overhead()),
	}, nil
}

// WriteHeader writes magic, version, salt and nonce.
func WriteHeader(w io.Writer, h *Header) error {
	buf := make([]byte, 0, HeaderSize)
	buf = append(buf, Magic...)
	buf = append(buf, version)
	buf = append(buf, h.Salt...)
	buf = append(buf, h.Nonce...)
	if _, err := w.Write(buf); err != nil {
		return errors.Annotate(err, "writing encryption header")
	}
	return nil
}

// ReadHeader reads and checks a header written by WriteHeader.
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Annotate(err, "reading encryption header")
	}
	if !IsEncrypted(buf) {
		return nil, errors.NotValidf("encrypted archive header")
	}
	if v := buf[len(Magic)]; v != version {
		return nil, errors.NotSupportedf("encryption version %d", v)
	}
	off := len(Magic) + 1
	return &Header{
		Salt:  append([]byte(nil), buf[off:off+SaltSize]...),
		Nonce: append([]byte(nil), buf[off+SaltSize:]...),
	}, nil
}

// IsEncrypted checks if data starts with the encryption magic.
func IsEncrypted(data []byte) bool {
	return bytes.HasPrefix(data, Magic)
}
