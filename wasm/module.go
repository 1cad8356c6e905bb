package wasm

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wasmvm/wasmvm/wasm/leb128"
)

var (
	magic   = []byte{0x00, 0x61, 0x73, 0x6d}
	version = []byte{0x01, 0x00, 0x00, 0x00}
)

// Module is the static binary representation of a decoded module, one field
// per section. Index spaces are resolved at instantiation, not here.
type Module struct {
	TypeSection     []*FunctionType
	ImportSection   []*ImportSegment
	FunctionSection []uint32
	TableSection    []*TableType
	MemorySection   []*MemoryType
	GlobalSection   []*GlobalSegment
	ExportSection   map[string]*ExportSegment
	StartSection    *uint32
	ElementSection  []*ElementSegment
	CodeSection     []*CodeSegment
	DataSection     []*DataSegment
	CustomSections  map[string][]byte
}

// DecodeModule decodes a module in the WebAssembly 1.0 (MVP) binary format.
func DecodeModule(binary []byte) (*Module, error) {
	r := NewReader(binary)

	buf, err := r.ReadBytes(4)
	if err != nil || !bytes.Equal(buf, magic) {
		return nil, ErrInvalidMagicNumber
	}

	buf, err = r.ReadBytes(4)
	if err != nil || !bytes.Equal(buf, version) {
		return nil, ErrInvalidVersion
	}

	ret := &Module{CustomSections: map[string][]byte{}}
	if err := ret.readSections(r); err != nil {
		return nil, fmt.Errorf("readSections failed: %w", err)
	}

	if len(ret.FunctionSection) != len(ret.CodeSection) {
		return nil, fmt.Errorf("%w: function and code section have inconsistent lengths", ErrInvalidGrammar)
	}
	return ret, nil
}

// FunctionNames parses the function name subsection of the "name" custom
// section, mapping function index to its name.
func (m *Module) FunctionNames() (map[uint32]string, error) {
	namesec, ok := m.CustomSections["name"]
	if !ok {
		return nil, fmt.Errorf("'name' %w", ErrCustomSectionNotFound)
	}

	r := bytes.NewReader(namesec)
	for {
		id, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("failed to read subsection ID: %w", err)
		}

		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read the size of subsection %d: %w", id, err)
		}

		if id == 1 {
			// ID = 1 is the function name subsection.
			break
		}
		// Skip other subsections.
		if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("failed to skip subsection %d: %w", id, err)
		}
	}

	nameVectorSize, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read the size of name vector: %w", err)
	}

	ret := make(map[uint32]string, nameVectorSize)
	for i := uint32(0); i < nameVectorSize; i++ {
		functionIndex, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read function index: %w", err)
		}

		functionNameSize, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read function name size: %w", err)
		}

		namebuf := make([]byte, functionNameSize)
		if _, err := io.ReadFull(r, namebuf); err != nil {
			return nil, fmt.Errorf("failed to read function name: %w", err)
		}
		ret[functionIndex] = string(namebuf)
	}

	return ret, nil
}
