package leb128

import (
	"errors"
	"fmt"
	"io"
)

// ErrOverflow is returned when an encoding exceeds the bit width of the
// requested integer, either by using too many bytes or by setting bits
// beyond the declared width in the final byte.
var ErrOverflow = errors.New("overflows the declared bit width")

func DecodeUint32(r io.Reader) (ret uint32, num uint64, err error) {
	const (
		uint32Mask  uint32 = 1 << 7
		uint32Mask2        = ^uint32Mask
	)

	for shift := 0; shift < 35; shift += 7 {
		b, err := readByteAsUint32(r)
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		num++
		if shift == 28 && b&0xf0 != 0 {
			// The fifth byte holds the topmost four bits of a uint32: the
			// continuation bit and anything above bit 31 must be clear.
			return 0, 0, ErrOverflow
		}
		ret |= (b & uint32Mask2) << shift
		if b&uint32Mask == 0 {
			return ret, num, nil
		}
	}
	return 0, 0, ErrOverflow
}

func DecodeUint64(r io.Reader) (ret uint64, num uint64, err error) {
	const (
		uint64Mask  uint64 = 1 << 7
		uint64Mask2        = ^uint64Mask
	)
	for shift := 0; shift < 64; shift += 7 {
		b, err := readByteAsUint64(r)
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		num++
		if shift == 63 && b&0xfe != 0 {
			// The tenth byte holds only bit 63.
			return 0, 0, ErrOverflow
		}
		ret |= (b & uint64Mask2) << shift
		if b&uint64Mask == 0 {
			return ret, num, nil
		}
	}
	return 0, 0, ErrOverflow
}

func DecodeInt32(r io.Reader) (ret int32, num uint64, err error) {
	const (
		int32Mask  int32 = 1 << 7
		int32Mask2       = ^int32Mask
		int32Mask3       = 1 << 6
		int32Mask4       = ^0
	)
	var shift int
	var b int32
	for shift < 35 {
		b, err = readByteAsInt32(r)
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		num++
		if shift == 28 {
			if b&0x80 != 0 {
				return 0, 0, ErrOverflow
			}
			// Bits 32..34 of the fifth byte must sign-extend bit 31.
			if high := b & 0x78; high != 0 && high != 0x78 {
				return 0, 0, ErrOverflow
			}
		}
		ret |= (b & int32Mask2) << shift
		shift += 7
		if b&int32Mask == 0 {
			break
		}
	}

	if shift < 32 && (b&int32Mask3) == int32Mask3 {
		ret |= int32Mask4 << shift
	}
	return
}

func DecodeInt64(r io.Reader) (ret int64, num uint64, err error) {
	const (
		int64Mask  int64 = 1 << 7
		int64Mask2       = ^int64Mask
		int64Mask3       = 1 << 6
		int64Mask4       = ^0
	)
	var shift int
	var b int64
	for shift < 64 {
		b, err = readByteAsInt64(r)
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		num++
		if shift == 63 && b != 0x00 && b != 0x7f {
			// The tenth byte holds bit 63 only; the rest must sign-extend it.
			return 0, 0, ErrOverflow
		}
		ret |= (b & int64Mask2) << shift
		shift += 7
		if b&int64Mask == 0 {
			break
		}
	}

	if shift < 64 && (b&int64Mask3) == int64Mask3 {
		ret |= int64Mask4 << shift
	}
	return
}

func readByteAsUint32(r io.Reader) (uint32, error) {
	b := make([]byte, 1)
	_, err := io.ReadFull(r, b)
	return uint32(b[0]), err
}

func readByteAsInt32(r io.Reader) (int32, error) {
	b := make([]byte, 1)
	_, err := io.ReadFull(r, b)
	return int32(b[0]), err
}

func readByteAsUint64(r io.Reader) (uint64, error) {
	b := make([]byte, 1)
	_, err := io.ReadFull(r, b)
	return uint64(b[0]), err
}

func readByteAsInt64(r io.Reader) (int64, error) {
	b := make([]byte, 1)
	_, err := io.ReadFull(r, b)
	return int64(b[0]), err
}
