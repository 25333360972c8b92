package ctrfs

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/giwty/ndecrypt/rom"
)

const chunkSize = 1 << 20

// Region is a byte range of an image transformed with one key and counter.
// Counter mode is symmetric: the same call encrypts and decrypts.
type Region struct {
	Name    string
	Offset  int64
	Size    int64
	Key     [16]byte
	Counter [16]byte
	// Phase is the number of keystream bytes of the first block to skip.
	Phase int
}

// SubRegion returns the part of r starting at off with the given size, with the counter
// advanced accordingly.
func (r Region) SubRegion(name string, key [16]byte, off, size int64) Region {
	ctr, phase := advanceCounter(r.Counter, off+int64(r.Phase))
	return Region{
		Name:    name,
		Offset:  r.Offset + off,
		Size:    size,
		Key:     key,
		Counter: ctr,
		Phase:   phase,
	}
}

func (r Region) stream() (cipher.Stream, error) {
	block, err := aes.NewCipher(r.Key[:])
	if err != nil {
		return nil, err
	}
	ctr := r.Counter
	stream := cipher.NewCTR(block, ctr[:])
	if r.Phase > 0 {
		skip := make([]byte, r.Phase)
		stream.XORKeyStream(skip, skip)
	}
	return stream, nil
}

// TransformRegion applies AES-CTR over the region in place.
func TransformRegion(rw rom.ReadWriterAt, r Region) error {
	stream, err := r.stream()
	if err != nil {
		return fmt.Errorf("%v: failed to initialize cipher: %w", r.Name, err)
	}

	buf := make([]byte, chunkSize)
	for done := int64(0); done < r.Size; {
		n := r.Size - done
		if n > chunkSize {
			n = chunkSize
		}
		chunk := buf[:n]
		if err := rom.ReadFull(rw, chunk, r.Offset+done); err != nil {
			return fmt.Errorf("%v: failed to read at 0x%X: %w", r.Name, r.Offset+done, err)
		}
		stream.XORKeyStream(chunk, chunk)
		if _, err := rw.WriteAt(chunk, r.Offset+done); err != nil {
			return fmt.Errorf("%v: failed to write at 0x%X: %w", r.Name, r.Offset+done, err)
		}
		done += n
	}
	return nil
}

// transformBytes applies the region keystream to an in-memory copy.
func transformBytes(r Region, data []byte) error {
	stream, err := r.stream()
	if err != nil {
		return err
	}
	stream.XORKeyStream(data, data)
	return nil
}
