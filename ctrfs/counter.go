package ctrfs

import (
	"encoding/binary"

	"lukechampine.com/uint128"
)

// RegionTag identifies the NCCH region a counter is built for.
type RegionTag byte

const (
	TagPlain RegionTag = 0x01
	TagExeFS RegionTag = 0x02
	TagRomFS RegionTag = 0x03
)

func (t RegionTag) String() string {
	switch t {
	case TagPlain:
		return "ExHeader"
	case TagExeFS:
		return "ExeFS"
	case TagRomFS:
		return "RomFS"
	}
	return "unknown"
}

// NewCounter returns the initial counter of a region: the partition id big endian followed
// by the region tag.
func NewCounter(partitionID uint64, tag RegionTag) [16]byte {
	var ctr [16]byte
	binary.BigEndian.PutUint64(ctr[:], partitionID)
	ctr[8] = byte(tag)
	return ctr
}

// newCounterV1 is the layout used by NCCH version 1: partition id little endian followed
// by the region offset big endian.
func newCounterV1(partitionID uint64, regionOffset int64) [16]byte {
	var ctr [16]byte
	binary.LittleEndian.PutUint64(ctr[:], partitionID)
	binary.BigEndian.PutUint64(ctr[8:], uint64(regionOffset))
	return ctr
}

// Counter returns the initial counter of a region of this NCCH.
func (h *NCCHHeader) Counter(tag RegionTag) [16]byte {
	if h.Version != 1 {
		return NewCounter(h.PartitionID, tag)
	}
	switch tag {
	case TagExeFS:
		return newCounterV1(h.PartitionID, h.ExeFSOffset)
	case TagRomFS:
		return newCounterV1(h.PartitionID, h.RomFSOffset)
	}
	return newCounterV1(h.PartitionID, exHeaderOffset)
}

// advanceCounter moves ctr forward to the block holding byte offset and returns the
// position of that byte inside the block.
func advanceCounter(ctr [16]byte, offset int64) ([16]byte, int) {
	v := uint128.FromBytesBE(ctr[:]).AddWrap64(uint64(offset / 16))
	var out [16]byte
	v.PutBytesBE(out[:])
	return out, int(offset % 16)
}
