package ndsfs

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/giwty/ndecrypt/rom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testImageSize = 0x8000

// newTestImage returns an image with a minimal header and the given secure area plaintext.
func newTestImage(gameCode uint32, secureArea []byte) rom.Memory {
	img := make(rom.Memory, testImageSize)
	copy(img, "TESTTITLE")
	binary.LittleEndian.PutUint32(img[0x0C:], gameCode)
	copy(img[0x10:], "01")
	binary.LittleEndian.PutUint32(img[0x20:], SecureAreaOffset)
	binary.LittleEndian.PutUint32(img[0x2C:], 0x1000)
	copy(img[SecureAreaOffset:], secureArea)
	return img
}

func markerSecureArea() []byte {
	area := make([]byte, SecureAreaSize)
	binary.LittleEndian.PutUint32(area, decryptedMarker)
	binary.LittleEndian.PutUint32(area[4:], decryptedMarker)
	return area
}

func transform(t *testing.T, img rom.Memory, seed *Seed, mode rom.Mode) rom.Outcome {
	t.Helper()
	header, err := ReadHeader(img)
	require.NoError(t, err)
	outcome, err := TransformSecureArea(img, header, seed, mode)
	require.NoError(t, err)
	return outcome
}

func TestIsDecrypted(t *testing.T) {
	assert.True(t, IsDecrypted(0xE7FFDEFF, 0xE7FFDEFF))
	assert.True(t, IsDecrypted(0xD0D48B67, 0x39392F23))
	assert.False(t, IsDecrypted(0x72636E65, 0x6A624F79))
	assert.False(t, IsDecrypted(0xE7FFDEFF, 0))
}

func TestReadHeader(t *testing.T) {
	img := newTestImage(0x454D5341, nil)
	img[0x12] = byte(UnitNDSPlusDSi)

	header, err := ReadHeader(img)
	require.NoError(t, err)
	assert.Equal(t, "TESTTITLE", header.GameTitle)
	assert.Equal(t, "ASME", header.GameCodeString())
	assert.Equal(t, "01", header.MakerCode)
	assert.Equal(t, UnitNDSPlusDSi, header.UnitCode)
	assert.True(t, header.HasSecureArea())
}

func TestReadHeader_Short(t *testing.T) {
	_, err := ReadHeader(make(rom.Memory, 0x100))
	require.ErrorIs(t, err, rom.ErrShortImage)
}

func TestSecureArea_MarkerScenario(t *testing.T) {
	seed := testSeed(t)
	img := newTestImage(0x12345678, markerSecureArea())

	require.Equal(t, rom.Transformed, transform(t, img, seed, rom.Encrypt))
	lo, hi := readBlock(img[SecureAreaOffset:])
	require.False(t, IsDecrypted(lo, hi))
	ciphertext := append([]byte(nil), img...)

	require.Equal(t, rom.Transformed, transform(t, img, seed, rom.Decrypt))
	lo, hi = readBlock(img[SecureAreaOffset:])
	assert.Equal(t, uint32(0xE7FFDEFF), lo)
	assert.Equal(t, uint32(0xE7FFDEFF), hi)
	assert.Equal(t, []byte{0xFF, 0xDE, 0xFF, 0xE7, 0xFF, 0xDE, 0xFF, 0xE7}, []byte(img[SecureAreaOffset:SecureAreaOffset+8]))
	assert.Equal(t, make([]byte, SecureAreaSize-8), []byte(img[SecureAreaOffset+8:SecureAreaOffset+SecureAreaSize]))

	require.Equal(t, rom.Transformed, transform(t, img, seed, rom.Encrypt))
	assert.Equal(t, ciphertext, []byte(img))
}

func TestSecureArea_MagicPairIsEncryptedForm(t *testing.T) {
	seed := testSeed(t)
	img := newTestImage(0x12345678, markerSecureArea())
	transform(t, img, seed, rom.Encrypt)

	// undo the header encryption by hand: the block must hold the magic pair
	table, _ := NewKeyTable(seed, 0x12345678)
	table.Init1()
	lo, hi := readBlock(img[SecureAreaOffset:])
	hi, lo = table.DecryptPair(hi, lo)
	table.shiftKeyCode()
	table.Init2()
	hi, lo = table.DecryptPair(hi, lo)
	assert.Equal(t, uint32(magic30), lo)
	assert.Equal(t, uint32(magic34), hi)
}

func TestSecureArea_RandomContentRoundTrip(t *testing.T) {
	seed := testSeed(t)
	area := markerSecureArea()
	rand.New(rand.NewSource(7)).Read(area[8:])

	for _, code := range []uint32{0x12345678, 0x4A415041, 0x00000001} {
		img := newTestImage(code, area)
		original := append([]byte(nil), img...)

		transform(t, img, seed, rom.Encrypt)
		require.False(t, bytes.Equal(original, img), "game code %08X", code)
		transform(t, img, seed, rom.Decrypt)
		assert.Equal(t, original, []byte(img), "game code %08X", code)
	}
}

func TestSecureArea_AltMarkerRoundTrip(t *testing.T) {
	seed := testSeed(t)
	area := make([]byte, SecureAreaSize)
	binary.LittleEndian.PutUint32(area, altMarkerLo)
	binary.LittleEndian.PutUint32(area[4:], altMarkerHi)
	img := newTestImage(0x12345678, area)
	original := append([]byte(nil), img...)

	transform(t, img, seed, rom.Encrypt)
	transform(t, img, seed, rom.Decrypt)
	assert.Equal(t, original, []byte(img))
}

func TestSecureArea_AlreadyDecrypted(t *testing.T) {
	seed := testSeed(t)
	img := newTestImage(0x12345678, markerSecureArea())
	transform(t, img, seed, rom.Encrypt)
	transform(t, img, seed, rom.Decrypt)
	decrypted := append([]byte(nil), img...)

	assert.Equal(t, rom.AlreadyDone, transform(t, img, seed, rom.Decrypt))
	assert.Equal(t, decrypted, []byte(img))
}

func TestSecureArea_AlreadyEncrypted(t *testing.T) {
	seed := testSeed(t)
	img := newTestImage(0x12345678, markerSecureArea())
	transform(t, img, seed, rom.Encrypt)
	encrypted := append([]byte(nil), img...)

	assert.Equal(t, rom.AlreadyDone, transform(t, img, seed, rom.Encrypt))
	assert.Equal(t, encrypted, []byte(img))
}

func TestSecureArea_OnlyTouchesSecureArea(t *testing.T) {
	seed := testSeed(t)
	img := newTestImage(0x12345678, markerSecureArea())
	for i := SecureAreaOffset + SecureAreaSize; i < len(img); i++ {
		img[i] = 0xAA
	}
	before := append([]byte(nil), img...)

	transform(t, img, seed, rom.Encrypt)
	assert.Equal(t, before[:SecureAreaOffset], []byte(img[:SecureAreaOffset]))
	assert.Equal(t, before[SecureAreaOffset+SecureAreaSize:], []byte(img[SecureAreaOffset+SecureAreaSize:]))
}

func TestSecureArea_NoSecureArea(t *testing.T) {
	img := newTestImage(0x12345678, markerSecureArea())
	binary.LittleEndian.PutUint32(img[0x20:], 0x200)
	header, err := ReadHeader(img)
	require.NoError(t, err)

	outcome, err := TransformSecureArea(img, header, testSeed(t), rom.Decrypt)
	require.ErrorIs(t, err, ErrNoSecureArea)
	assert.Equal(t, rom.Unknown, outcome)
}

func TestSecureArea_TruncatedImage(t *testing.T) {
	img := newTestImage(0x12345678, markerSecureArea())
	short := img[:SecureAreaOffset+0x100]
	header, err := ReadHeader(short)
	require.NoError(t, err)

	outcome, err := TransformSecureArea(short, header, testSeed(t), rom.Encrypt)
	require.Error(t, err)
	assert.Equal(t, rom.Unknown, outcome)
}
