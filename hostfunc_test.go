package wasmvm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmvm/wasmvm/wasm"
)

func TestHostFunctionRegistry(t *testing.T) {
	r := NewHostFunctionRegistry()

	f := NewGoFunc("env", "f", nil, wasm.ValueTypeNone, 0,
		func(env *Env, mem *MemoryInstance, args []Value) (Value, error) {
			return Value{}, nil
		})
	require.NoError(t, r.Register(f))
	require.Error(t, r.Register(f))

	got, ok := r.Lookup("env", "f")
	require.True(t, ok)
	assert.Equal(t, "env", got.ModuleName())

	_, ok = r.Lookup("env", "g")
	assert.False(t, ok)
}

func TestGoFunc_Call(t *testing.T) {
	f := NewGoFunc("env", "sub",
		[]wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, wasm.ValueTypeI32, 0,
		func(env *Env, mem *MemoryInstance, args []Value) (Value, error) {
			return NewI32(args[0].I32() - args[1].I32()), nil
		})

	assert.Equal(t, "i32i32_i32", f.Type().String())

	stack := NewStackManager()
	stack.Push(NewI32(10))
	stack.Push(NewI32(4))
	require.NoError(t, f.Call(&Env{}, stack, nil))

	require.Equal(t, 1, stack.Len())
	v, err := stack.Pop()
	require.NoError(t, err)
	assert.Equal(t, NewI32(6), v)
}

func TestGoFunc_CallArgumentMismatch(t *testing.T) {
	f := NewGoFunc("env", "f",
		[]wasm.ValueType{wasm.ValueTypeI32}, wasm.ValueTypeNone, 0,
		func(env *Env, mem *MemoryInstance, args []Value) (Value, error) {
			return Value{}, nil
		})

	// Too few operands.
	err := f.Call(&Env{}, NewStackManager(), nil)
	require.ErrorIs(t, err, ErrCallFunctionError)

	// Wrong operand tag.
	stack := NewStackManager()
	stack.Push(NewF64(1.0))
	err = f.Call(&Env{}, stack, nil)
	require.ErrorIs(t, err, ErrCallFunctionError)
}

func TestGoFunc_CallBodyError(t *testing.T) {
	bodyErr := errors.New("host side failure")
	f := NewGoFunc("env", "f", nil, wasm.ValueTypeNone, 0,
		func(env *Env, mem *MemoryInstance, args []Value) (Value, error) {
			return Value{}, bodyErr
		})

	err := f.Call(&Env{}, NewStackManager(), nil)
	require.ErrorIs(t, err, bodyErr)
}

// Host functions read and write module memory through the borrowed view.
func TestHostFunction_MemoryAccess(t *testing.T) {
	peek := NewGoFunc("env", "peek",
		[]wasm.ValueType{wasm.ValueTypeI32}, wasm.ValueTypeI32, 0,
		func(env *Env, mem *MemoryInstance, args []Value) (Value, error) {
			v, ok := mem.ReadUint32Le(args[0].U32())
			if !ok {
				return Value{}, ErrMemoryOutOfBounds
			}
			return NewI32(int32(v)), nil
		})

	typeIdx := uint32(0)
	module := &wasm.Module{
		TypeSection: []*wasm.FunctionType{
			{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		},
		ImportSection: []*wasm.ImportSegment{{
			Module: "env", Name: "peek",
			Desc: &wasm.ImportDesc{Kind: wasm.ImportKindFunction, TypeIndexPtr: &typeIdx},
		}},
		FunctionSection: []uint32{0},
		MemorySection:   []*wasm.MemoryType{{Min: 1}},
		DataSection: []*wasm.DataSegment{{
			OffsetExpression: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Value: 4},
			Init:             []byte{0x2a, 0x00, 0x00, 0x00},
		}},
		ExportSection: exportFunc("run", 1),
		CodeSection: []*wasm.CodeSegment{{
			Body: []wasm.Instruction{
				localGet(0),
				&wasm.CallControlInstruction{Op: wasm.OpcodeCall, Index: 0},
			},
		}},
	}

	ex := NewExecutor()
	require.NoError(t, ex.SetHostFunction(peek))
	rets, err := runExecutor(t, ex, module, "run", []Value{NewI32(4)})
	require.NoError(t, err)
	assert.Equal(t, NewI32(42), rets[0])
}

// A host error observed mid-run unwinds the whole Wasm stack.
func TestHostFunction_ErrorTrapsInvoker(t *testing.T) {
	boom := NewGoFunc("env", "boom", nil, wasm.ValueTypeNone, 0,
		func(env *Env, mem *MemoryInstance, args []Value) (Value, error) {
			return Value{}, errors.New("kaboom")
		})

	typeIdx := uint32(0)
	module := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{}},
		ImportSection: []*wasm.ImportSegment{{
			Module: "env", Name: "boom",
			Desc: &wasm.ImportDesc{Kind: wasm.ImportKindFunction, TypeIndexPtr: &typeIdx},
		}},
		FunctionSection: []uint32{0},
		ExportSection:   exportFunc("run", 1),
		CodeSection: []*wasm.CodeSegment{{
			Body: []wasm.Instruction{
				&wasm.CallControlInstruction{Op: wasm.OpcodeCall, Index: 0},
			},
		}},
	}

	ex := NewExecutor()
	require.NoError(t, ex.SetHostFunction(boom))
	_, err := runExecutor(t, ex, module, "run", nil)
	require.ErrorIs(t, err, ErrFunctionTrapped)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestHostFunction_CostAccounted(t *testing.T) {
	pricey := NewGoFunc("env", "pricey", nil, wasm.ValueTypeNone, 100,
		func(env *Env, mem *MemoryInstance, args []Value) (Value, error) {
			return Value{}, nil
		})

	typeIdx := uint32(0)
	module := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{}},
		ImportSection: []*wasm.ImportSegment{{
			Module: "env", Name: "pricey",
			Desc: &wasm.ImportDesc{Kind: wasm.ImportKindFunction, TypeIndexPtr: &typeIdx},
		}},
		FunctionSection: []uint32{0},
		ExportSection:   exportFunc("run", 1),
		CodeSection: []*wasm.CodeSegment{{
			Body: []wasm.Instruction{
				&wasm.CallControlInstruction{Op: wasm.OpcodeCall, Index: 0},
			},
		}},
	}

	ex := NewExecutor(WithCostLimit(50))
	require.NoError(t, ex.SetHostFunction(pricey))
	_, err := runExecutor(t, ex, module, "run", nil)
	require.ErrorIs(t, err, ErrCostLimitExceeded)
}
