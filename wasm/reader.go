package wasm

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/wasmvm/wasmvm/wasm/ieee754"
	"github.com/wasmvm/wasmvm/wasm/leb128"
)

// Reader is a position-tracking cursor over a module binary. All section and
// instruction loaders consume bytes through it so that decode errors can
// report the exact offset.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the number of bytes consumed so far.
func (r *Reader) Pos() int {
	return r.pos
}

// Read implements io.Reader so the leb128 and ieee754 decoders can share the
// cursor.
func (r *Reader) Read(p []byte) (int, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	return n, nil
}

func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrEndOfFile
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) ReadBytes(n uint32) ([]byte, error) {
	if uint64(r.pos)+uint64(n) > uint64(len(r.buf)) {
		return nil, ErrEndOfFile
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// Skip advances the cursor without interpreting the bytes.
func (r *Reader) Skip(n uint32) error {
	if uint64(r.pos)+uint64(n) > uint64(len(r.buf)) {
		return ErrEndOfFile
	}
	r.pos += int(n)
	return nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	v, _, err := leb128.DecodeUint32(r)
	return v, r.lebErr(err)
}

func (r *Reader) ReadInt32() (int32, error) {
	v, _, err := leb128.DecodeInt32(r)
	return v, r.lebErr(err)
}

func (r *Reader) ReadUint64() (uint64, error) {
	v, _, err := leb128.DecodeUint64(r)
	return v, r.lebErr(err)
}

func (r *Reader) ReadInt64() (int64, error) {
	v, _, err := leb128.DecodeInt64(r)
	return v, r.lebErr(err)
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := ieee754.DecodeFloat32(r)
	if err != nil {
		return 0, ErrEndOfFile
	}
	return v, nil
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := ieee754.DecodeFloat64(r)
	if err != nil {
		return 0, ErrEndOfFile
	}
	return v, nil
}

// ReadName reads a length-prefixed UTF-8 string.
func (r *Reader) ReadName() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", fmt.Errorf("read name size: %w", err)
	}
	b, err := r.ReadBytes(n)
	if err != nil {
		return "", fmt.Errorf("read name: %w", err)
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

func (r *Reader) lebErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, leb128.ErrOverflow) {
		return ErrMalformedLEB
	}
	return ErrEndOfFile
}
