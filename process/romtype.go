package process

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

type RomType int

const (
	RomUnknown RomType = iota
	RomNDS
	RomNDSi
	Rom3DS
)

func (t RomType) String() string {
	switch t {
	case RomNDS:
		return "NDS"
	case RomNDSi:
		return "NDSi"
	case Rom3DS:
		return "3DS"
	}
	return "unknown"
}

// IsDS reports types handled by the secure area transform.
func (t RomType) IsDS() bool {
	return t == RomNDS || t == RomNDSi
}

var ErrUnsupportedFormat = errors.New("unrecognized file format, expected *.nds, *.srl, *.dsi, *.3ds, *.cci")

var romTypesByExt = map[string]RomType{
	".nds": RomNDS,
	".srl": RomNDS,
	".dsi": RomNDSi,
	".3ds": Rom3DS,
	".cci": Rom3DS,
}

// DetermineRomType derives the ROM type from the file extension, ignoring case.
func DetermineRomType(path string) (RomType, error) {
	if t, ok := romTypesByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return t, nil
	}
	return RomUnknown, fmt.Errorf("%w: %v", ErrUnsupportedFormat, filepath.Base(path))
}
