package wasmvm

import (
	"fmt"
	"math"

	"github.com/wasmvm/wasmvm/wasm"
)

// Value is one operand: a type tag plus a 64-bit payload. i32 values are
// stored zero-extended, i64 raw, and floats as their IEEE754 bits. The tag
// always reflects the producing instruction; conversions are explicit.
type Value struct {
	Type wasm.ValueType
	Data uint64
}

func NewI32(v int32) Value {
	return Value{Type: wasm.ValueTypeI32, Data: uint64(uint32(v))}
}

func NewI64(v int64) Value {
	return Value{Type: wasm.ValueTypeI64, Data: uint64(v)}
}

func NewF32(v float32) Value {
	return Value{Type: wasm.ValueTypeF32, Data: uint64(math.Float32bits(v))}
}

func NewF64(v float64) Value {
	return Value{Type: wasm.ValueTypeF64, Data: math.Float64bits(v)}
}

// ZeroValue returns the default value of t, used for declared locals and
// host-provided globals.
func ZeroValue(t wasm.ValueType) Value {
	return Value{Type: t}
}

func (v Value) I32() int32 {
	return int32(uint32(v.Data))
}

func (v Value) U32() uint32 {
	return uint32(v.Data)
}

func (v Value) I64() int64 {
	return int64(v.Data)
}

func (v Value) U64() uint64 {
	return v.Data
}

func (v Value) F32() float32 {
	return math.Float32frombits(uint32(v.Data))
}

func (v Value) F64() float64 {
	return math.Float64frombits(v.Data)
}

func (v Value) String() string {
	switch v.Type {
	case wasm.ValueTypeI32:
		return fmt.Sprintf("i32:%d", v.I32())
	case wasm.ValueTypeI64:
		return fmt.Sprintf("i64:%d", v.I64())
	case wasm.ValueTypeF32:
		return fmt.Sprintf("f32:%g", v.F32())
	case wasm.ValueTypeF64:
		return fmt.Sprintf("f64:%g", v.F64())
	}
	return fmt.Sprintf("unknown:%#x", v.Data)
}
