package fileio

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/avast/retry-go"
)

const (
	openAttempts = 5
	openDelay    = 100 * time.Millisecond
)

// RomFile is a ROM image opened for in-place transformation.
type RomFile interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Size() int64
}

type romFile struct {
	*os.File
	size int64
}

func (f *romFile) Size() int64 {
	return f.size
}

// OpenRom opens path for reading and writing. Transient open failures (a file briefly
// locked by another program) are retried; a missing file or a permission error is not.
func OpenRom(path string) (RomFile, error) {
	file, err := openWithRetry(func() (*os.File, error) {
		return os.OpenFile(path, os.O_RDWR, 0)
	})
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	return &romFile{File: file, size: info.Size()}, nil
}

// ReadFile reads a whole key or seed file.
func ReadFile(path string) ([]byte, error) {
	file, err := openWithRetry(func() (*os.File, error) {
		return os.Open(path)
	})
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func openWithRetry(open func() (*os.File, error)) (*os.File, error) {
	var file *os.File
	err := retry.Do(
		func() error {
			var err error
			file, err = open()
			return err
		},
		retry.Attempts(openAttempts),
		retry.Delay(openDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrPermission)
		}),
	)
	return file, err
}
