package ndsfs

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/connesc/cipherio"
	"github.com/giwty/ndecrypt/rom"
	"go.uber.org/zap"
)

const (
	decryptedMarker = 0xE7FFDEFF

	// pre-decrypted pattern found on a couple of dumps
	altMarkerLo = 0xD0D48B67
	altMarkerHi = 0x39392F23

	magic30 = 0x72636E65
	magic34 = 0x6A624F79
)

// IsDecrypted checks the first block of the secure area for a decrypted marker.
func IsDecrypted(lo, hi uint32) bool {
	return (lo == decryptedMarker && hi == decryptedMarker) ||
		(lo == altMarkerLo && hi == altMarkerHi)
}

// TransformSecureArea encrypts or decrypts the 2KB secure area of an NDS/NDSi image in place.
func TransformSecureArea(rw rom.ReadWriterAt, header *Header, seed *Seed, mode rom.Mode) (rom.Outcome, error) {
	if !header.HasSecureArea() {
		return rom.Unknown, ErrNoSecureArea
	}

	lo, hi, err := firstBlock(rw)
	if err != nil {
		return rom.Unknown, fmt.Errorf("failed to read secure area: %w", err)
	}
	first := make([]byte, blockSize)

	if IsDecrypted(lo, hi) == (mode == rom.Decrypt) {
		zap.S().Infof("secure area of [%v] is already %v", header.GameCodeString(), mode.Done())
		return rom.AlreadyDone, nil
	}

	table, err := NewKeyTable(seed, header.GameCode)
	if err != nil {
		return rom.Unknown, err
	}

	table.Init1()
	if mode == rom.Decrypt {
		hi, lo = table.DecryptPair(hi, lo)
	}
	table.shiftKeyCode()
	table.Init2()

	if mode == rom.Decrypt {
		hi, lo = table.DecryptPair(hi, lo)
		if lo == magic30 && hi == magic34 {
			lo, hi = decryptedMarker, decryptedMarker
		}
		writeBlock(first, lo, hi)
		if _, err := rw.WriteAt(first, SecureAreaOffset); err != nil {
			return rom.Unknown, fmt.Errorf("failed to write secure area: %w", err)
		}
	}

	blockMode := NewECBDecrypter(table)
	if mode == rom.Encrypt {
		blockMode = NewECBEncrypter(table)
	}
	body := make([]byte, SecureAreaSize-blockSize)
	src := io.NewSectionReader(rw, SecureAreaOffset+blockSize, int64(len(body)))
	if _, err := io.ReadFull(cipherio.NewBlockReader(src, blockMode), body); err != nil {
		return rom.Unknown, fmt.Errorf("failed to read secure area: %w", err)
	}
	if _, err := rw.WriteAt(body, SecureAreaOffset+blockSize); err != nil {
		return rom.Unknown, fmt.Errorf("failed to write secure area: %w", err)
	}

	if mode == rom.Encrypt {
		// the first block is encrypted under both schedules, the initial one last
		if lo == decryptedMarker && hi == decryptedMarker {
			lo, hi = magic30, magic34
		}
		hi, lo = table.EncryptPair(hi, lo)
		table.Init1()
		hi, lo = table.EncryptPair(hi, lo)
		writeBlock(first, lo, hi)
		if _, err := rw.WriteAt(first, SecureAreaOffset); err != nil {
			return rom.Unknown, fmt.Errorf("failed to write secure area: %w", err)
		}
	}

	zap.S().Infof("secure area of [%v] has been %v", header.GameCodeString(), mode.Done())
	return rom.Transformed, nil
}

// firstBlock returns the first secure area block as two words.
func firstBlock(r io.ReaderAt) (uint32, uint32, error) {
	var b [blockSize]byte
	if err := rom.ReadFull(r, b[:], SecureAreaOffset); err != nil {
		return 0, 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), binary.LittleEndian.Uint32(b[4:]), nil
}
