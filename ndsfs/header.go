package ndsfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/giwty/ndecrypt/rom"
)

//https://problemkaputt.de/gbatek.htm#dscartridgeheader

const (
	headerSize       = 0x200
	SecureAreaOffset = 0x4000
	SecureAreaSize   = 0x800
)

type UnitCode byte

const (
	UnitNDS        UnitCode = 0x00
	UnitNDSPlusDSi UnitCode = 0x02
	UnitDSi        UnitCode = 0x03
)

func (u UnitCode) String() string {
	switch u {
	case UnitNDS:
		return "NDS"
	case UnitNDSPlusDSi:
		return "NDS+DSi"
	case UnitDSi:
		return "DSi"
	}
	return fmt.Sprintf("unknown (0x%02X)", byte(u))
}

// ErrNoSecureArea is returned for images whose ARM9 binary does not live in the secure area,
// typically homebrew.
var ErrNoSecureArea = errors.New("image has no secure area")

// Header holds the NDS/NDSi header fields the secure area transform needs.
type Header struct {
	GameTitle     string
	GameCode      uint32
	MakerCode     string
	UnitCode      UnitCode
	ARM9Offset    uint32
	ARM9Size      uint32
	SecureAreaCRC uint16
}

// GameCodeString returns the 4 character game code, e.g. "ASME".
func (h *Header) GameCodeString() string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], h.GameCode)
	return string(b[:])
}

// ReadHeader reads the cartridge header at the start of the image.
func ReadHeader(r io.ReaderAt) (*Header, error) {
	buf := make([]byte, headerSize)
	if err := rom.ReadFull(r, buf, 0); err != nil {
		return nil, fmt.Errorf("failed to read NDS header: %w", err)
	}

	return &Header{
		GameTitle:     string(bytes.TrimRight(buf[0x00:0x0C], "\x00")),
		GameCode:      binary.LittleEndian.Uint32(buf[0x0C:]),
		MakerCode:     string(buf[0x10:0x12]),
		UnitCode:      UnitCode(buf[0x12]),
		ARM9Offset:    binary.LittleEndian.Uint32(buf[0x20:]),
		ARM9Size:      binary.LittleEndian.Uint32(buf[0x2C:]),
		SecureAreaCRC: binary.LittleEndian.Uint16(buf[0x6C:]),
	}, nil
}

// HasSecureArea reports if the ARM9 binary starts inside or after the secure area.
func (h *Header) HasSecureArea() bool {
	return h.ARM9Offset >= SecureAreaOffset
}
