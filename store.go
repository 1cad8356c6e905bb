package wasmvm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wasmvm/wasmvm/wasm"
)

type (
	// Store owns every runtime instance, addressed by index into flat
	// append-only pools. Instances reference each other through these
	// addresses rather than direct pointers, so the object graph built at
	// instantiation stays valid for the store's lifetime.
	Store struct {
		ModuleInstances map[string]*ModuleInstance

		Functions []*FunctionInstance
		Globals   []*GlobalInstance
		Memories  []*MemoryInstance
		Tables    []*TableInstance
	}

	// ModuleInstance maps the module's index spaces onto store addresses.
	ModuleInstance struct {
		Name  string
		Types []*wasm.FunctionType

		FunctionAddrs []uint32
		GlobalAddrs   []uint32
		MemoryAddrs   []uint32
		TableAddrs    []uint32

		Exports map[string]*ExportInstance
	}

	ExportInstance struct {
		Kind wasm.ExportKind
		Addr uint32
	}

	// FunctionInstance is either a Wasm function (Body non-nil) or a host
	// function (HostFunction non-nil).
	FunctionInstance struct {
		Name           string
		ModuleInstance *ModuleInstance
		Signature      *wasm.FunctionType
		LocalTypes     []wasm.ValueType
		Body           []wasm.Instruction
		HostFunction   HostFunction
	}

	GlobalInstance struct {
		Type *wasm.GlobalType
		Val  Value
	}

	// TableInstance slots hold function addresses; nil marks an
	// uninitialized element.
	TableInstance struct {
		ElemType byte
		Min      uint32
		Max      *uint32
		Table    []*uint32
	}

	MemoryInstance struct {
		Min    uint32
		Max    *uint32
		Buffer []byte
	}
)

func NewStore() *Store {
	return &Store{ModuleInstances: map[string]*ModuleInstance{}}
}

func (s *Store) GetFunction(addr uint32) (*FunctionInstance, error) {
	if uint64(addr) >= uint64(len(s.Functions)) {
		return nil, fmt.Errorf("%w: function %d", ErrWrongInstanceAddress, addr)
	}
	return s.Functions[addr], nil
}

func (s *Store) GetGlobal(addr uint32) (*GlobalInstance, error) {
	if uint64(addr) >= uint64(len(s.Globals)) {
		return nil, fmt.Errorf("%w: global %d", ErrWrongInstanceAddress, addr)
	}
	return s.Globals[addr], nil
}

func (s *Store) GetMemory(addr uint32) (*MemoryInstance, error) {
	if uint64(addr) >= uint64(len(s.Memories)) {
		return nil, fmt.Errorf("%w: memory %d", ErrWrongInstanceAddress, addr)
	}
	return s.Memories[addr], nil
}

func (s *Store) GetTable(addr uint32) (*TableInstance, error) {
	if uint64(addr) >= uint64(len(s.Tables)) {
		return nil, fmt.Errorf("%w: table %d", ErrWrongInstanceAddress, addr)
	}
	return s.Tables[addr], nil
}

// IsHost reports whether the function dispatches to native code.
func (f *FunctionInstance) IsHost() bool {
	return f.HostFunction != nil
}

// Len returns the memory size in bytes.
func (m *MemoryInstance) Len() uint32 {
	return uint32(len(m.Buffer))
}

// PageCount returns the memory size in 64KiB pages.
func (m *MemoryInstance) PageCount() uint32 {
	return uint32(uint64(len(m.Buffer)) / wasm.PageSize)
}

// Grow adds delta pages of zeroes, returning the previous page count, or -1
// when the optional maximum (or the 4GiB hard bound) would be exceeded.
func (m *MemoryInstance) Grow(delta uint32) int32 {
	prev := m.PageCount()
	limit := wasm.MemoryMaxPages
	if m.Max != nil && *m.Max < limit {
		limit = *m.Max
	}
	if uint64(prev)+uint64(delta) > uint64(limit) {
		return -1
	}
	m.Buffer = append(m.Buffer, make([]byte, uint64(delta)*wasm.PageSize)...)
	return int32(prev)
}

// hasLen returns true if Len is sufficient for sizeInBytes at the given offset.
func (m *MemoryInstance) hasLen(offset uint32, sizeInBytes uint32) bool {
	return uint64(offset)+uint64(sizeInBytes) <= uint64(m.Len())
}

// GetBytes returns a borrowed view of [offset, offset+byteCount). The view
// is invalidated by memory.grow; host functions must not retain it across
// calls back into Wasm.
func (m *MemoryInstance) GetBytes(offset, byteCount uint32) ([]byte, error) {
	if !m.hasLen(offset, byteCount) {
		return nil, ErrMemoryOutOfBounds
	}
	return m.Buffer[offset : offset+byteCount], nil
}

// GetBytesOrNil treats offset zero as the absent-pointer sentinel.
func (m *MemoryInstance) GetBytesOrNil(offset, byteCount uint32) ([]byte, error) {
	if offset == 0 {
		return nil, nil
	}
	return m.GetBytes(offset, byteCount)
}

func (m *MemoryInstance) SetBytes(offset uint32, data []byte) error {
	if !m.hasLen(offset, uint32(len(data))) {
		return ErrMemoryOutOfBounds
	}
	copy(m.Buffer[offset:], data)
	return nil
}

func (m *MemoryInstance) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.hasLen(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.Buffer[offset : offset+4]), true
}

func (m *MemoryInstance) ReadFloat32Le(offset uint32) (float32, bool) {
	v, ok := m.ReadUint32Le(offset)
	if !ok {
		return 0, false
	}
	return math.Float32frombits(v), true
}

func (m *MemoryInstance) ReadUint64Le(offset uint32) (uint64, bool) {
	if !m.hasLen(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.Buffer[offset : offset+8]), true
}

func (m *MemoryInstance) ReadFloat64Le(offset uint32) (float64, bool) {
	v, ok := m.ReadUint64Le(offset)
	if !ok {
		return 0, false
	}
	return math.Float64frombits(v), true
}

func (m *MemoryInstance) WriteUint32Le(offset, v uint32) bool {
	if !m.hasLen(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.Buffer[offset:], v)
	return true
}

func (m *MemoryInstance) WriteFloat32Le(offset uint32, v float32) bool {
	return m.WriteUint32Le(offset, math.Float32bits(v))
}

func (m *MemoryInstance) WriteUint64Le(offset uint32, v uint64) bool {
	if !m.hasLen(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.Buffer[offset:], v)
	return true
}

func (m *MemoryInstance) WriteFloat64Le(offset uint32, v float64) bool {
	return m.WriteUint64Le(offset, math.Float64bits(v))
}
