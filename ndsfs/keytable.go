package ndsfs

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// KeyTableWords is the size of the key table: 18 P-words followed by 4 S-boxes of 256 words.
	KeyTableWords = 18 + 4*256
	// SeedSize is the size in bytes of the seed table dump.
	SeedSize  = KeyTableWords * 4
	blockSize = 8
	sboxBase  = 18
)

// Seed is the static table every per-title key table is derived from.
type Seed [KeyTableWords]uint32

// ParseSeed decodes a little endian seed table dump.
func ParseSeed(data []byte) (*Seed, error) {
	if len(data) != SeedSize {
		return nil, fmt.Errorf("nds seed must be %d bytes, got %d", SeedSize, len(data))
	}
	seed := &Seed{}
	for i := range seed {
		seed[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return seed, nil
}

// KeyTable is the key table for one title, derived from the seed and the game code.
// It is mutated by Init1/Init2 and must not be shared between transforms.
type KeyTable struct {
	table    [KeyTableWords]uint32
	keyCode  [3]uint32
	seed     *Seed
	gameCode uint32
}

var _ cipher.Block = &KeyTable{}

// NewKeyTable returns a table for gameCode. Init1 must be called before use.
func NewKeyTable(seed *Seed, gameCode uint32) (*KeyTable, error) {
	if seed == nil {
		return nil, errors.New("missing nds seed table")
	}
	return &KeyTable{seed: seed, gameCode: gameCode}, nil
}

// Init1 resets the table to the seed and applies the game code twice.
func (t *KeyTable) Init1() {
	t.table = *t.seed
	t.keyCode = [3]uint32{t.gameCode, t.gameCode >> 1, t.gameCode << 1}
	t.Init2()
	t.Init2()
}

// Init2 encrypts the key code register in place and mixes it into the table.
func (t *KeyTable) Init2() {
	t.keyCode[2], t.keyCode[1] = t.EncryptPair(t.keyCode[2], t.keyCode[1])
	t.keyCode[1], t.keyCode[0] = t.EncryptPair(t.keyCode[1], t.keyCode[0])

	var key [12]byte
	binary.LittleEndian.PutUint32(key[0:], t.keyCode[0])
	binary.LittleEndian.PutUint32(key[4:], t.keyCode[1])
	binary.LittleEndian.PutUint32(key[8:], t.keyCode[2])
	t.update(key)
}

// shiftKeyCode applies the key code adjustment done between the two priming passes.
func (t *KeyTable) shiftKeyCode() {
	t.keyCode[1] <<= 1
	t.keyCode[2] >>= 1
}

// update only consults the first 8 key bytes.
func (t *KeyTable) update(key [12]byte) {
	for j := 0; j < 18; j++ {
		var r uint32
		for i := 0; i < 4; i++ {
			r = r<<8 | uint32(key[(j*4+i)&7])
		}
		t.table[j] ^= r
	}

	var x, y uint32
	for i := 0; i < 18; i += 2 {
		x, y = t.EncryptPair(x, y)
		t.table[i], t.table[i+1] = x, y
	}
	for i := 0; i < 4*256; i += 2 {
		x, y = t.EncryptPair(x, y)
		t.table[sboxBase+i], t.table[sboxBase+i+1] = x, y
	}
}

func (t *KeyTable) lookup(v uint32) uint32 {
	a := t.table[sboxBase+int(v>>24)]
	b := t.table[sboxBase+256+int(v>>16&0xff)]
	c := t.table[sboxBase+512+int(v>>8&0xff)]
	d := t.table[sboxBase+768+int(v&0xff)]
	return d + (c ^ (b + a))
}

// EncryptPair runs the 16 forward rounds on (x, y) and returns the new pair.
func (t *KeyTable) EncryptPair(x, y uint32) (uint32, uint32) {
	a, b := x, y
	for i := 0; i < 16; i++ {
		c := t.table[i] ^ a
		a = b ^ t.lookup(c)
		b = c
	}
	return b ^ t.table[17], a ^ t.table[16]
}

// DecryptPair is the inverse of EncryptPair under the same table.
func (t *KeyTable) DecryptPair(x, y uint32) (uint32, uint32) {
	a, b := x, y
	for i := 17; i > 1; i-- {
		c := t.table[i] ^ a
		a = b ^ t.lookup(c)
		b = c
	}
	return b ^ t.table[0], a ^ t.table[1]
}

// BlockSize implements cipher.Block.
func (t *KeyTable) BlockSize() int {
	return blockSize
}

// Encrypt implements cipher.Block. A block is two little endian words, the second one
// being the first cipher argument.
func (t *KeyTable) Encrypt(dst, src []byte) {
	lo, hi := readBlock(src)
	hi, lo = t.EncryptPair(hi, lo)
	writeBlock(dst, lo, hi)
}

// Decrypt implements cipher.Block.
func (t *KeyTable) Decrypt(dst, src []byte) {
	lo, hi := readBlock(src)
	hi, lo = t.DecryptPair(hi, lo)
	writeBlock(dst, lo, hi)
}

func readBlock(b []byte) (uint32, uint32) {
	return binary.LittleEndian.Uint32(b), binary.LittleEndian.Uint32(b[4:])
}

func writeBlock(b []byte, lo, hi uint32) {
	binary.LittleEndian.PutUint32(b, lo)
	binary.LittleEndian.PutUint32(b[4:], hi)
}

type ecbMode struct {
	b       cipher.Block
	encrypt bool
}

// NewECBEncrypter returns a BlockMode encrypting each block independently with b.
func NewECBEncrypter(b cipher.Block) cipher.BlockMode {
	return &ecbMode{b: b, encrypt: true}
}

// NewECBDecrypter returns a BlockMode decrypting each block independently with b.
func NewECBDecrypter(b cipher.Block) cipher.BlockMode {
	return &ecbMode{b: b}
}

func (m *ecbMode) BlockSize() int {
	return m.b.BlockSize()
}

func (m *ecbMode) CryptBlocks(dst, src []byte) {
	bs := m.b.BlockSize()
	if len(src)%bs != 0 {
		panic("ndsfs: input not full blocks")
	}
	if len(dst) < len(src) {
		panic("ndsfs: output smaller than input")
	}
	for i := 0; i < len(src); i += bs {
		if m.encrypt {
			m.b.Encrypt(dst[i:i+bs], src[i:i+bs])
		} else {
			m.b.Decrypt(dst[i:i+bs], src[i:i+bs])
		}
	}
}
