package ctrfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/giwty/ndecrypt/rom"
	"lukechampine.com/uint128"
)

//https://www.3dbrew.org/wiki/NCCH

const (
	ncchHeaderSize     = 0x200
	ncchFlagsOffset    = 0x188
	exHeaderOffset     = 0x200
	exHeaderRegionSize = 0x800
)

// NCCH flags[7] bits.
const (
	FlagFixedCryptoKey   byte = 0x01
	FlagNoMountRomFS     byte = 0x02
	FlagNoCrypto         byte = 0x04
	FlagNewKeyYGenerator byte = 0x20
)

var ErrNotNCCH = errors.New("not an NCCH partition")

// Flags is the 8 byte flag field of an NCCH header.
type Flags [8]byte

func parseFlags(b []byte) Flags {
	var f Flags
	copy(f[:], b)
	return f
}

func (f Flags) CryptoMethod() byte {
	return f[3]
}

func (f Flags) ContentUnitSize() int64 {
	return int64(mediaUnit) << f[6]
}

func (f Flags) NoCrypto() bool {
	return f[7]&FlagNoCrypto != 0
}

func (f Flags) FixedCryptoKey() bool {
	return f[7]&FlagFixedCryptoKey != 0
}

func (f Flags) SeedCrypto() bool {
	return f[7]&FlagNewKeyYGenerator != 0
}

// decrypted returns the flags marking the content as not encrypted.
func (f Flags) decrypted() Flags {
	f[3] = CryptoOriginal
	f[7] = f[7]&^(FlagFixedCryptoKey|FlagNewKeyYGenerator) | FlagNoCrypto
	return f
}

// encrypted returns the flags with the crypto fields restored from backup.
func (f Flags) encrypted(backup Flags) Flags {
	f[3] = backup[3]
	f[7] = backup[7]
	return f
}

type NCCHHeader struct {
	Signature    []byte
	ContentSize  int64
	PartitionID  uint64
	MakerCode    string
	Version      uint16
	ProgramID    uint64
	ProductCode  string
	ExHeaderSize uint32
	Flags        Flags
	ExeFSOffset  int64
	ExeFSSize    int64
	RomFSOffset  int64
	RomFSSize    int64
}

// ReadNCCH reads the NCCH header found at offset.
func ReadNCCH(r io.ReaderAt, offset int64) (*NCCHHeader, error) {
	buf := make([]byte, ncchHeaderSize)
	if err := rom.ReadFull(r, buf, offset); err != nil {
		return nil, fmt.Errorf("failed to read NCCH header: %w", err)
	}

	if string(buf[0x100:0x104]) != "NCCH" {
		return nil, ErrNotNCCH
	}

	flags := parseFlags(buf[ncchFlagsOffset : ncchFlagsOffset+8])
	unit := flags.ContentUnitSize()
	units := func(off int) int64 {
		return int64(binary.LittleEndian.Uint32(buf[off:])) * unit
	}

	return &NCCHHeader{
		Signature:    buf[:0x100],
		ContentSize:  units(0x104),
		PartitionID:  binary.LittleEndian.Uint64(buf[0x108:]),
		MakerCode:    string(buf[0x110:0x112]),
		Version:      binary.LittleEndian.Uint16(buf[0x112:]),
		ProgramID:    binary.LittleEndian.Uint64(buf[0x118:]),
		ProductCode:  strings.TrimRight(string(buf[0x150:0x160]), "\x00"),
		ExHeaderSize: binary.LittleEndian.Uint32(buf[0x180:]),
		Flags:        flags,
		ExeFSOffset:  units(0x1A0),
		ExeFSSize:    units(0x1A4),
		RomFSOffset:  units(0x1B0),
		RomFSSize:    units(0x1B4),
	}, nil
}

// KeyY is the first 16 bytes of the header signature, big endian.
func (h *NCCHHeader) KeyY() uint128.Uint128 {
	return uint128.FromBytesBE(h.Signature[:16])
}
