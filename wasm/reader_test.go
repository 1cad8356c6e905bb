package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_ReadByteAndBytes(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03})

	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), b)
	assert.Equal(t, 1, r.Pos())

	bs, err := r.ReadBytes(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x03}, bs)

	_, err = r.ReadByte()
	require.ErrorIs(t, err, ErrEndOfFile)

	_, err = r.ReadBytes(1)
	require.ErrorIs(t, err, ErrEndOfFile)
}

func TestReader_ReadName(t *testing.T) {
	r := NewReader(concat([]byte{0x03}, []byte("abc")))
	name, err := r.ReadName()
	require.NoError(t, err)
	assert.Equal(t, "abc", name)

	// Truncated.
	r = NewReader([]byte{0x05, 'a'})
	_, err = r.ReadName()
	require.ErrorIs(t, err, ErrEndOfFile)

	// Invalid UTF-8.
	r = NewReader([]byte{0x02, 0xff, 0xfe})
	_, err = r.ReadName()
	require.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestReader_MalformedLEB(t *testing.T) {
	r := NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x1f})
	_, err := r.ReadUint32()
	require.ErrorIs(t, err, ErrMalformedLEB)

	r = NewReader([]byte{0x80})
	_, err = r.ReadUint32()
	require.ErrorIs(t, err, ErrEndOfFile)
}

func TestReader_Floats(t *testing.T) {
	r := NewReader([]byte{0x00, 0x00, 0x80, 0x3f})
	f32, err := r.ReadFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(1.0), f32)

	r = NewReader([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf0, 0x3f})
	f64, err := r.ReadFloat64()
	require.NoError(t, err)
	assert.Equal(t, 1.0, f64)

	r = NewReader([]byte{0x00})
	_, err = r.ReadFloat32()
	require.ErrorIs(t, err, ErrEndOfFile)
}
