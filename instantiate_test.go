package wasmvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmvm/wasmvm/wasm"
)

func TestInstantiate_ElementBoundsChecked(t *testing.T) {
	module := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{{}},
		FunctionSection: []uint32{0},
		TableSection:    []*wasm.TableType{{ElemType: 0x70, Limit: &wasm.LimitsType{Min: 1}}},
		ElementSection: []*wasm.ElementSegment{{
			TableIndex: 0,
			OffsetExpr: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Value: 1},
			Init:       []uint32{0},
		}},
		ExportSection: map[string]*wasm.ExportSegment{},
		CodeSection:   []*wasm.CodeSegment{{}},
	}

	s := NewStore()
	_, err := s.Instantiate(module, "m", nil)
	require.ErrorIs(t, err, ErrInstantiationFailed)

	// Rollback: nothing stays behind.
	assert.Empty(t, s.Functions)
	assert.Empty(t, s.Tables)
	assert.Empty(t, s.ModuleInstances)
}

func TestInstantiate_DataBoundsChecked(t *testing.T) {
	module := &wasm.Module{
		MemorySection: []*wasm.MemoryType{{Min: 1}},
		DataSection: []*wasm.DataSegment{{
			OffsetExpression: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Value: 65534},
			Init:             []byte{1, 2, 3, 4},
		}},
		ExportSection: map[string]*wasm.ExportSegment{},
	}

	s := NewStore()
	_, err := s.Instantiate(module, "m", nil)
	require.ErrorIs(t, err, ErrInstantiationFailed)
	assert.Empty(t, s.Memories)
}

func TestInstantiate_DataCopied(t *testing.T) {
	module := &wasm.Module{
		MemorySection: []*wasm.MemoryType{{Min: 1}},
		DataSection: []*wasm.DataSegment{{
			OffsetExpression: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Value: 8},
			Init:             []byte{0xca, 0xfe},
		}},
		ExportSection: map[string]*wasm.ExportSegment{},
	}

	s := NewStore()
	inst, err := s.Instantiate(module, "m", nil)
	require.NoError(t, err)

	mem, err := s.GetMemory(inst.MemoryAddrs[0])
	require.NoError(t, err)
	assert.Equal(t, []byte{0xca, 0xfe}, mem.Buffer[8:10])
	assert.Equal(t, uint32(1), mem.PageCount())
}

func TestInstantiate_GlobalInitTypeMismatch(t *testing.T) {
	module := &wasm.Module{
		GlobalSection: []*wasm.GlobalSegment{{
			Type: &wasm.GlobalType{ValType: wasm.ValueTypeI64, Mut: wasm.ValueMutConst},
			Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Value: 1},
		}},
		ExportSection: map[string]*wasm.ExportSegment{},
	}

	s := NewStore()
	_, err := s.Instantiate(module, "m", nil)
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.Empty(t, s.Globals)
}

func TestInstantiate_GlobalGetInitRequiresResolvedGlobal(t *testing.T) {
	module := &wasm.Module{
		GlobalSection: []*wasm.GlobalSegment{{
			Type: &wasm.GlobalType{ValType: wasm.ValueTypeI32, Mut: wasm.ValueMutConst},
			Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeGlobalGet, Value: 5},
		}},
		ExportSection: map[string]*wasm.ExportSegment{},
	}

	s := NewStore()
	_, err := s.Instantiate(module, "m", nil)
	require.ErrorIs(t, err, ErrInstantiationFailed)
}

func TestInstantiate_ImportTypeMismatch(t *testing.T) {
	registry := NewHostFunctionRegistry()
	require.NoError(t, registry.Register(NewGoFunc("env", "f",
		[]wasm.ValueType{wasm.ValueTypeI64}, wasm.ValueTypeNone, 0,
		func(env *Env, mem *MemoryInstance, args []Value) (Value, error) {
			return Value{}, nil
		})))

	typeIdx := uint32(0)
	module := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{Params: []wasm.ValueType{wasm.ValueTypeI32}}},
		ImportSection: []*wasm.ImportSegment{{
			Module: "env", Name: "f",
			Desc: &wasm.ImportDesc{Kind: wasm.ImportKindFunction, TypeIndexPtr: &typeIdx},
		}},
		ExportSection: map[string]*wasm.ExportSegment{},
	}

	s := NewStore()
	_, err := s.Instantiate(module, "m", registry)
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.Empty(t, s.Functions)
}

func TestInstantiate_NonFunctionImportRejected(t *testing.T) {
	module := &wasm.Module{
		ImportSection: []*wasm.ImportSegment{{
			Module: "env", Name: "mem",
			Desc: &wasm.ImportDesc{Kind: wasm.ImportKindMemory, MemTypePtr: &wasm.MemoryType{Min: 1}},
		}},
		ExportSection: map[string]*wasm.ExportSegment{},
	}

	s := NewStore()
	_, err := s.Instantiate(module, "m", NewHostFunctionRegistry())
	require.ErrorIs(t, err, ErrImportNotFound)
}

func TestInstantiate_NameConflict(t *testing.T) {
	module := &wasm.Module{ExportSection: map[string]*wasm.ExportSegment{}}
	s := NewStore()
	_, err := s.Instantiate(module, "m", nil)
	require.NoError(t, err)
	_, err = s.Instantiate(module, "m", nil)
	require.ErrorIs(t, err, ErrModuleNameConflict)
}

func TestMemoryInstance_HostView(t *testing.T) {
	m := &MemoryInstance{Min: 1, Buffer: make([]byte, wasm.PageSize)}

	require.True(t, m.WriteUint32Le(0, 0xdeadbeef))
	v, ok := m.ReadUint32Le(0)
	require.True(t, ok)
	assert.Equal(t, uint32(0xdeadbeef), v)

	require.True(t, m.WriteFloat64Le(8, 6.5))
	f, ok := m.ReadFloat64Le(8)
	require.True(t, ok)
	assert.Equal(t, 6.5, f)

	_, ok = m.ReadUint64Le(uint32(wasm.PageSize) - 4)
	assert.False(t, ok)

	b, err := m.GetBytes(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xef, 0xbe, 0xad, 0xde}, b)

	_, err = m.GetBytes(uint32(wasm.PageSize), 1)
	require.ErrorIs(t, err, ErrMemoryOutOfBounds)

	b, err = m.GetBytesOrNil(0, 4)
	require.NoError(t, err)
	assert.Nil(t, b)

	require.NoError(t, m.SetBytes(16, []byte{1, 2}))
	assert.Equal(t, []byte{1, 2}, m.Buffer[16:18])
}

func TestMemoryInstance_Grow(t *testing.T) {
	two := uint32(2)
	m := &MemoryInstance{Min: 1, Max: &two, Buffer: make([]byte, wasm.PageSize)}

	assert.Equal(t, int32(1), m.Grow(1))
	assert.Equal(t, uint32(2), m.PageCount())
	assert.Equal(t, int32(-1), m.Grow(1))
	assert.Equal(t, uint32(2), m.PageCount())
}
