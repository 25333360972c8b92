package ctrfs

import (
	"errors"
	"fmt"

	"lukechampine.com/uint128"
)

// Keyslots holding the KeyX values used for NCCH content.
const (
	Keyslot0x18 byte = 0x18
	Keyslot0x1B byte = 0x1B
	Keyslot0x25 byte = 0x25
	Keyslot0x2C byte = 0x2C
)

// Crypto methods as found in NCCH flags[3].
const (
	CryptoOriginal  byte = 0x00
	CryptoSeven     byte = 0x01
	CryptoNineThree byte = 0x0A
	CryptoNineSix   byte = 0x0B
)

var (
	ErrUnknownCryptoMethod   = errors.New("unknown crypto method")
	ErrSeedCryptoUnsupported = errors.New("seed crypto is not supported")
)

// KeyProvider gives access to the hardware constant and KeyX values.
type KeyProvider interface {
	Generator() (uint128.Uint128, error)
	KeyX(slot byte, development bool) (uint128.Uint128, error)
}

// ScrambleKey derives the normal key from keyX and keyY the way the AES engine does:
// rol((rol(keyX, 2) ^ keyY) + generator, 87), all mod 2^128.
func ScrambleKey(keyX, keyY, generator uint128.Uint128) uint128.Uint128 {
	return keyX.RotateLeft(2).Xor(keyY).AddWrap(generator).RotateLeft(87)
}

// KeyBytes returns the big endian AES key for a normal key.
func KeyBytes(key uint128.Uint128) [16]byte {
	var b [16]byte
	key.PutBytesBE(b[:])
	return b
}

// KeyslotForMethod returns the keyslot holding the secondary KeyX for a crypto method.
func KeyslotForMethod(method byte) (byte, error) {
	switch method {
	case CryptoOriginal:
		return Keyslot0x2C, nil
	case CryptoSeven:
		return Keyslot0x25, nil
	case CryptoNineThree:
		return Keyslot0x18, nil
	case CryptoNineSix:
		return Keyslot0x1B, nil
	}
	return 0, fmt.Errorf("%w: 0x%02X", ErrUnknownCryptoMethod, method)
}

// DeriveKey selects the KeyX for slot and scrambles it with keyY.
func DeriveKey(keys KeyProvider, slot byte, keyY uint128.Uint128, development bool) ([16]byte, error) {
	generator, err := keys.Generator()
	if err != nil {
		return [16]byte{}, err
	}
	keyX, err := keys.KeyX(slot, development)
	if err != nil {
		return [16]byte{}, err
	}
	return KeyBytes(ScrambleKey(keyX, keyY, generator)), nil
}
