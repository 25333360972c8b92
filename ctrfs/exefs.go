package ctrfs

import (
	"encoding/binary"
	"sort"
	"strings"
)

//https://www.3dbrew.org/wiki/ExeFS

const (
	exefsHeaderSize = 0x200
	exefsFileCount  = 10
	exefsEntrySize  = 16
)

type ExeFSFile struct {
	Name   string
	Offset int64
	Size   int64
}

// usesPrimaryKey reports files that stay under the 0x2C key whatever the crypto method.
func (f ExeFSFile) usesPrimaryKey() bool {
	return f.Name == "icon" || f.Name == "banner"
}

// ParseExeFSHeader reads the file table from a plaintext ExeFS header.
// Offsets are relative to the ExeFS start.
func ParseExeFSHeader(header []byte) []ExeFSFile {
	var files []ExeFSFile
	for i := 0; i < exefsFileCount; i++ {
		entry := header[i*exefsEntrySize : (i+1)*exefsEntrySize]
		size := int64(binary.LittleEndian.Uint32(entry[12:]))
		if size == 0 {
			continue
		}
		files = append(files, ExeFSFile{
			Name:   strings.TrimRight(string(entry[:8]), "\x00"),
			Offset: exefsHeaderSize + int64(binary.LittleEndian.Uint32(entry[8:])),
			Size:   size,
		})
	}
	return files
}

type exefsSegment struct {
	name      string
	start     int64
	end       int64
	secondary bool
}

// exefsSegments splits the ExeFS into ranges by key. Files other than icon and banner use
// the secondary key; the header, icon, banner and padding use the primary key.
func exefsSegments(files []ExeFSFile, size int64) []exefsSegment {
	var secondary []ExeFSFile
	for _, f := range files {
		if !f.usesPrimaryKey() {
			secondary = append(secondary, f)
		}
	}
	sort.Slice(secondary, func(i, j int) bool {
		return secondary[i].Offset < secondary[j].Offset
	})

	var segments []exefsSegment
	cursor := int64(0)
	for _, f := range secondary {
		start, end := f.Offset, f.Offset+f.Size
		if start < cursor {
			start = cursor
		}
		if end > size {
			end = size
		}
		if start >= end {
			continue
		}
		if start > cursor {
			segments = append(segments, exefsSegment{name: "ExeFS", start: cursor, end: start})
		}
		segments = append(segments, exefsSegment{name: "ExeFS/" + f.Name, start: start, end: end, secondary: true})
		cursor = end
	}
	if cursor < size {
		segments = append(segments, exefsSegment{name: "ExeFS", start: cursor, end: size})
	}
	return segments
}

func needsSecondaryKey(segments []exefsSegment) bool {
	for _, s := range segments {
		if s.secondary {
			return true
		}
	}
	return false
}
