package ctrfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/giwty/ndecrypt/rom"
)

//https://www.3dbrew.org/wiki/NCSD

const (
	ncsdHeaderSize   = 0x200
	mediaUnit        = 0x200
	partitionCount   = 8
	backupFlagOffset = 0x1100 + ncchFlagsOffset
)

var ErrNotNCSD = errors.New("not an NCSD image")

type Partition struct {
	Index  int
	FSType byte
	Crypt  byte
	Offset int64
	Size   int64
}

type NCSDHeader struct {
	ImageSize  int64
	MediaID    uint64
	MediaUnit  int64
	Partitions []Partition
	// BackupFlags are the NCCH flags of partition 0 as shipped, used to restore encryption.
	BackupFlags Flags
}

// ReadNCSD reads the NCSD header and the backup NCCH flags of a 3DS card image.
func ReadNCSD(r io.ReaderAt) (*NCSDHeader, error) {
	buf := make([]byte, ncsdHeaderSize)
	if err := rom.ReadFull(r, buf, 0); err != nil {
		return nil, fmt.Errorf("failed to read NCSD header: %w", err)
	}

	if string(buf[0x100:0x104]) != "NCSD" {
		return nil, ErrNotNCSD
	}

	flags := buf[0x188:0x190]
	unit := int64(mediaUnit) << flags[6]

	header := &NCSDHeader{
		ImageSize: int64(binary.LittleEndian.Uint32(buf[0x104:])) * unit,
		MediaID:   binary.LittleEndian.Uint64(buf[0x108:]),
		MediaUnit: unit,
	}

	for i := 0; i < partitionCount; i++ {
		entry := buf[0x120+i*8 : 0x120+(i+1)*8]
		size := int64(binary.LittleEndian.Uint32(entry[4:])) * unit
		if size == 0 {
			continue
		}
		header.Partitions = append(header.Partitions, Partition{
			Index:  i,
			FSType: buf[0x110+i],
			Crypt:  buf[0x118+i],
			Offset: int64(binary.LittleEndian.Uint32(entry)) * unit,
			Size:   size,
		})
	}

	backup := make([]byte, 8)
	if err := rom.ReadFull(r, backup, backupFlagOffset); err != nil {
		return nil, fmt.Errorf("failed to read backup header: %w", err)
	}
	header.BackupFlags = parseFlags(backup)

	return header, nil
}
