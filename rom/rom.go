package rom

import (
	"errors"
	"io"
)

// Mode is the direction of a transform.
type Mode int

const (
	Decrypt Mode = iota
	Encrypt
)

func (m Mode) String() string {
	if m == Encrypt {
		return "encrypt"
	}
	return "decrypt"
}

// Done returns the past tense used in console messages ("decrypted"/"encrypted").
func (m Mode) Done() string {
	return m.String() + "ed"
}

// Outcome of a transform.
type Outcome int

const (
	// Unknown goes with a non-nil error; the data may be untouched or partially transformed.
	Unknown Outcome = iota
	Transformed
	// AlreadyDone means the data was already in the requested state and was left untouched.
	AlreadyDone
)

// ReadWriterAt is the random access view of a ROM image the transforms work on.
// *os.File satisfies it.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// ErrShortImage is returned when a region lies beyond the end of the image.
var ErrShortImage = errors.New("image is too short")

// ReadFull reads len(p) bytes at off, converting a short read into ErrShortImage.
func ReadFull(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		return ErrShortImage
	}
	return err
}
