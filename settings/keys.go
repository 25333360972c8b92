package settings

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/giwty/ndecrypt/fileio"
	"github.com/giwty/ndecrypt/ndsfs"
	"github.com/magiconair/properties"
	"go.uber.org/zap"
	"lukechampine.com/uint128"
)

type KeyFileFormat int

const (
	// KeyFileBinary is keys.bin: generator, retail KeyX 0x18/0x1B/0x25/0x2C, then the
	// development KeyX for the same slots, each 16 bytes little endian.
	KeyFileBinary KeyFileFormat = iota
	// KeyFileText is the citra aes_keys.txt format: name=hex, big endian.
	KeyFileText
)

func (f KeyFileFormat) String() string {
	if f == KeyFileText {
		return "aes_keys.txt"
	}
	return "keys.bin"
}

type KeyState int

const (
	KeysUninitialized KeyState = iota
	KeysReady
	KeysFailed
)

var (
	ErrKeysNotReady = errors.New("key material is not ready")
	ErrKeyNotFound  = errors.New("key not found")
)

var (
	keysInstance = &KeyStore{}
	binarySlots  = []byte{0x18, 0x1B, 0x25, 0x2C}
	keyXNames    = keyXSlotNames()
	ignoredKeys  = knownUnusedKeys()
)

// KeyStore holds the 3DS generator and KeyX values. It is loaded once and read-only after.
type KeyStore struct {
	once      sync.Once
	state     KeyState
	err       error
	generator uint128.Uint128
	retail    map[byte]uint128.Uint128
	dev       map[byte]uint128.Uint128
}

// Keys returns the process wide key store.
func Keys() *KeyStore {
	return keysInstance
}

// Init loads the key file. Only the first call loads anything; later calls return the
// outcome of the first.
func (k *KeyStore) Init(path string, format KeyFileFormat) error {
	k.once.Do(func() {
		var err error
		switch format {
		case KeyFileText:
			err = k.loadText(path)
		default:
			err = k.loadBinary(path)
		}
		if err != nil {
			k.state = KeysFailed
			k.err = fmt.Errorf("%w: %v: %v", ErrKeysNotReady, path, err)
			zap.S().Errorf("failed to load %v from %v - %v", format, path, err)
			return
		}
		k.state = KeysReady
		zap.S().Infof("loaded %v from %v (%d retail, %d development KeyX)", format, path, len(k.retail), len(k.dev))
	})
	return k.err
}

func (k *KeyStore) State() KeyState {
	return k.state
}

func (k *KeyStore) ready() error {
	switch k.state {
	case KeysReady:
		return nil
	case KeysFailed:
		return k.err
	}
	return ErrKeysNotReady
}

func (k *KeyStore) Generator() (uint128.Uint128, error) {
	if err := k.ready(); err != nil {
		return uint128.Zero, err
	}
	return k.generator, nil
}

func (k *KeyStore) KeyX(slot byte, development bool) (uint128.Uint128, error) {
	if err := k.ready(); err != nil {
		return uint128.Zero, err
	}
	keys := k.retail
	kind := "retail"
	if development {
		keys = k.dev
		kind = "development"
	}
	key, ok := keys[slot]
	if !ok {
		return uint128.Zero, fmt.Errorf("%w: %v KeyX for slot 0x%02X", ErrKeyNotFound, kind, slot)
	}
	return key, nil
}

func (k *KeyStore) loadBinary(path string) error {
	data, err := fileio.ReadFile(path)
	if err != nil {
		return err
	}
	need := 16 * (1 + 2*len(binarySlots))
	if len(data) < need {
		return fmt.Errorf("file is %d bytes, expected %d", len(data), need)
	}

	value := func(i int) uint128.Uint128 {
		return uint128.FromBytes(data[i*16 : (i+1)*16])
	}
	k.generator = value(0)
	k.retail = map[byte]uint128.Uint128{}
	k.dev = map[byte]uint128.Uint128{}
	for i, slot := range binarySlots {
		k.retail[slot] = value(1 + i)
		k.dev[slot] = value(1 + len(binarySlots) + i)
	}
	return nil
}

func (k *KeyStore) loadText(path string) error {
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return err
	}

	retail := map[byte]uint128.Uint128{}
	var generator *uint128.Uint128
	for _, name := range p.Keys() {
		lower := strings.ToLower(name)
		slot, isKeyX := keyXNames[lower]
		isGenerator := lower == "generator"
		if !isGenerator && !isKeyX {
			if _, ok := ignoredKeys[lower]; ok {
				zap.S().Debugf("ignoring unused key %v", name)
			} else {
				zap.S().Debugf("ignoring unrecognised key %v", name)
			}
			continue
		}

		value, err := parseHexKey(p.GetString(name, ""))
		if err != nil {
			return fmt.Errorf("%v: %w", name, err)
		}
		if isGenerator {
			generator = &value
		} else {
			retail[slot] = value
		}
	}

	if generator == nil {
		return errors.New("generator is missing")
	}
	k.generator = *generator
	k.retail = retail
	k.dev = map[byte]uint128.Uint128{}
	return nil
}

func parseHexKey(s string) (uint128.Uint128, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return uint128.Zero, err
	}
	if len(b) != 16 {
		return uint128.Zero, fmt.Errorf("key is %d bytes, expected 16", len(b))
	}
	return uint128.FromBytesBE(b), nil
}

func keyXSlotNames() map[string]byte {
	names := map[string]byte{}
	for _, slot := range binarySlots {
		names[strings.ToLower(fmt.Sprintf("slot0x%02XKeyX", slot))] = slot
	}
	return names
}

// knownUnusedKeys lists the aes_keys.txt entries that are valid but not needed here.
func knownUnusedKeys() map[string]struct{} {
	keys := map[string]struct{}{}
	add := func(kind string, slots ...byte) {
		for _, s := range slots {
			keys[strings.ToLower(fmt.Sprintf("slot0x%02X%v", s, kind))] = struct{}{}
		}
	}
	span := func(from, to byte) []byte {
		var s []byte
		for i := from; i <= to; i++ {
			s = append(s, i)
		}
		return s
	}

	add("KeyX", 0x03, 0x3A, 0x3B)
	add("KeyX", 0x19, 0x1A)
	add("KeyX", span(0x1C, 0x1F)...)
	add("KeyX", span(0x2D, 0x38)...)
	add("KeyY", 0x03, 0x06, 0x07, 0x2E, 0x2F, 0x31)
	add("KeyN", 0x0D, 0x15, 0x16, 0x24, 0x31, 0x32, 0x3B)
	add("KeyN", span(0x19, 0x1F)...)
	add("KeyN", span(0x2D, 0x2F)...)
	add("KeyN", span(0x36, 0x38)...)
	return keys
}

// LoadNDSSeed reads the NDS key table seed dump.
func LoadNDSSeed(path string) (*ndsfs.Seed, error) {
	data, err := fileio.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read NDS seed: %w", err)
	}
	return ndsfs.ParseSeed(data)
}
