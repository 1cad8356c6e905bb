package wasmvm

import (
	"math"
	"math/bits"

	"github.com/wasmvm/wasmvm/wasm"
)

func (e *engine) execNumeric(op wasm.Opcode) {
	switch op {
	case wasm.OpcodeI32Eqz:
		e.pushBool(e.popU32() == 0)
	case wasm.OpcodeI32Eq:
		v2, v1 := e.popU32(), e.popU32()
		e.pushBool(v1 == v2)
	case wasm.OpcodeI32Ne:
		v2, v1 := e.popU32(), e.popU32()
		e.pushBool(v1 != v2)
	case wasm.OpcodeI32LtS:
		v2, v1 := e.popI32(), e.popI32()
		e.pushBool(v1 < v2)
	case wasm.OpcodeI32LtU:
		v2, v1 := e.popU32(), e.popU32()
		e.pushBool(v1 < v2)
	case wasm.OpcodeI32GtS:
		v2, v1 := e.popI32(), e.popI32()
		e.pushBool(v1 > v2)
	case wasm.OpcodeI32GtU:
		v2, v1 := e.popU32(), e.popU32()
		e.pushBool(v1 > v2)
	case wasm.OpcodeI32LeS:
		v2, v1 := e.popI32(), e.popI32()
		e.pushBool(v1 <= v2)
	case wasm.OpcodeI32LeU:
		v2, v1 := e.popU32(), e.popU32()
		e.pushBool(v1 <= v2)
	case wasm.OpcodeI32GeS:
		v2, v1 := e.popI32(), e.popI32()
		e.pushBool(v1 >= v2)
	case wasm.OpcodeI32GeU:
		v2, v1 := e.popU32(), e.popU32()
		e.pushBool(v1 >= v2)

	case wasm.OpcodeI64Eqz:
		e.pushBool(e.popU64() == 0)
	case wasm.OpcodeI64Eq:
		v2, v1 := e.popU64(), e.popU64()
		e.pushBool(v1 == v2)
	case wasm.OpcodeI64Ne:
		v2, v1 := e.popU64(), e.popU64()
		e.pushBool(v1 != v2)
	case wasm.OpcodeI64LtS:
		v2, v1 := e.popI64(), e.popI64()
		e.pushBool(v1 < v2)
	case wasm.OpcodeI64LtU:
		v2, v1 := e.popU64(), e.popU64()
		e.pushBool(v1 < v2)
	case wasm.OpcodeI64GtS:
		v2, v1 := e.popI64(), e.popI64()
		e.pushBool(v1 > v2)
	case wasm.OpcodeI64GtU:
		v2, v1 := e.popU64(), e.popU64()
		e.pushBool(v1 > v2)
	case wasm.OpcodeI64LeS:
		v2, v1 := e.popI64(), e.popI64()
		e.pushBool(v1 <= v2)
	case wasm.OpcodeI64LeU:
		v2, v1 := e.popU64(), e.popU64()
		e.pushBool(v1 <= v2)
	case wasm.OpcodeI64GeS:
		v2, v1 := e.popI64(), e.popI64()
		e.pushBool(v1 >= v2)
	case wasm.OpcodeI64GeU:
		v2, v1 := e.popU64(), e.popU64()
		e.pushBool(v1 >= v2)

	case wasm.OpcodeF32Eq:
		v2, v1 := e.popF32(), e.popF32()
		e.pushBool(v1 == v2)
	case wasm.OpcodeF32Ne:
		v2, v1 := e.popF32(), e.popF32()
		e.pushBool(v1 != v2)
	case wasm.OpcodeF32Lt:
		v2, v1 := e.popF32(), e.popF32()
		e.pushBool(v1 < v2)
	case wasm.OpcodeF32Gt:
		v2, v1 := e.popF32(), e.popF32()
		e.pushBool(v1 > v2)
	case wasm.OpcodeF32Le:
		v2, v1 := e.popF32(), e.popF32()
		e.pushBool(v1 <= v2)
	case wasm.OpcodeF32Ge:
		v2, v1 := e.popF32(), e.popF32()
		e.pushBool(v1 >= v2)

	case wasm.OpcodeF64Eq:
		v2, v1 := e.popF64(), e.popF64()
		e.pushBool(v1 == v2)
	case wasm.OpcodeF64Ne:
		v2, v1 := e.popF64(), e.popF64()
		e.pushBool(v1 != v2)
	case wasm.OpcodeF64Lt:
		v2, v1 := e.popF64(), e.popF64()
		e.pushBool(v1 < v2)
	case wasm.OpcodeF64Gt:
		v2, v1 := e.popF64(), e.popF64()
		e.pushBool(v1 > v2)
	case wasm.OpcodeF64Le:
		v2, v1 := e.popF64(), e.popF64()
		e.pushBool(v1 <= v2)
	case wasm.OpcodeF64Ge:
		v2, v1 := e.popF64(), e.popF64()
		e.pushBool(v1 >= v2)

	case wasm.OpcodeI32Clz:
		e.push(NewI32(int32(bits.LeadingZeros32(e.popU32()))))
	case wasm.OpcodeI32Ctz:
		e.push(NewI32(int32(bits.TrailingZeros32(e.popU32()))))
	case wasm.OpcodeI32Popcnt:
		e.push(NewI32(int32(bits.OnesCount32(e.popU32()))))
	case wasm.OpcodeI32Add:
		v2, v1 := e.popU32(), e.popU32()
		e.push(NewI32(int32(v1 + v2)))
	case wasm.OpcodeI32Sub:
		v2, v1 := e.popU32(), e.popU32()
		e.push(NewI32(int32(v1 - v2)))
	case wasm.OpcodeI32Mul:
		v2, v1 := e.popU32(), e.popU32()
		e.push(NewI32(int32(v1 * v2)))
	case wasm.OpcodeI32DivS:
		v2, v1 := e.popI32(), e.popI32()
		if v2 == 0 {
			e.throw(ErrIntegerDivideByZero)
		}
		if v1 == math.MinInt32 && v2 == -1 {
			e.throw(ErrIntegerOverflow)
		}
		e.push(NewI32(v1 / v2))
	case wasm.OpcodeI32DivU:
		v2, v1 := e.popU32(), e.popU32()
		if v2 == 0 {
			e.throw(ErrIntegerDivideByZero)
		}
		e.push(NewI32(int32(v1 / v2)))
	case wasm.OpcodeI32RemS:
		v2, v1 := e.popI32(), e.popI32()
		if v2 == 0 {
			e.throw(ErrIntegerDivideByZero)
		}
		if v1 == math.MinInt32 && v2 == -1 {
			e.push(NewI32(0))
		} else {
			e.push(NewI32(v1 % v2))
		}
	case wasm.OpcodeI32RemU:
		v2, v1 := e.popU32(), e.popU32()
		if v2 == 0 {
			e.throw(ErrIntegerDivideByZero)
		}
		e.push(NewI32(int32(v1 % v2)))
	case wasm.OpcodeI32And:
		v2, v1 := e.popU32(), e.popU32()
		e.push(NewI32(int32(v1 & v2)))
	case wasm.OpcodeI32Or:
		v2, v1 := e.popU32(), e.popU32()
		e.push(NewI32(int32(v1 | v2)))
	case wasm.OpcodeI32Xor:
		v2, v1 := e.popU32(), e.popU32()
		e.push(NewI32(int32(v1 ^ v2)))
	case wasm.OpcodeI32Shl:
		v2, v1 := e.popU32(), e.popU32()
		e.push(NewI32(int32(v1 << (v2 & 31))))
	case wasm.OpcodeI32ShrS:
		v2, v1 := e.popU32(), e.popI32()
		e.push(NewI32(v1 >> (v2 & 31)))
	case wasm.OpcodeI32ShrU:
		v2, v1 := e.popU32(), e.popU32()
		e.push(NewI32(int32(v1 >> (v2 & 31))))
	case wasm.OpcodeI32Rotl:
		v2, v1 := e.popU32(), e.popU32()
		e.push(NewI32(int32(bits.RotateLeft32(v1, int(v2&31)))))
	case wasm.OpcodeI32Rotr:
		v2, v1 := e.popU32(), e.popU32()
		e.push(NewI32(int32(bits.RotateLeft32(v1, -int(v2&31)))))

	case wasm.OpcodeI64Clz:
		e.push(NewI64(int64(bits.LeadingZeros64(e.popU64()))))
	case wasm.OpcodeI64Ctz:
		e.push(NewI64(int64(bits.TrailingZeros64(e.popU64()))))
	case wasm.OpcodeI64Popcnt:
		e.push(NewI64(int64(bits.OnesCount64(e.popU64()))))
	case wasm.OpcodeI64Add:
		v2, v1 := e.popU64(), e.popU64()
		e.push(NewI64(int64(v1 + v2)))
	case wasm.OpcodeI64Sub:
		v2, v1 := e.popU64(), e.popU64()
		e.push(NewI64(int64(v1 - v2)))
	case wasm.OpcodeI64Mul:
		v2, v1 := e.popU64(), e.popU64()
		e.push(NewI64(int64(v1 * v2)))
	case wasm.OpcodeI64DivS:
		v2, v1 := e.popI64(), e.popI64()
		if v2 == 0 {
			e.throw(ErrIntegerDivideByZero)
		}
		if v1 == math.MinInt64 && v2 == -1 {
			e.throw(ErrIntegerOverflow)
		}
		e.push(NewI64(v1 / v2))
	case wasm.OpcodeI64DivU:
		v2, v1 := e.popU64(), e.popU64()
		if v2 == 0 {
			e.throw(ErrIntegerDivideByZero)
		}
		e.push(NewI64(int64(v1 / v2)))
	case wasm.OpcodeI64RemS:
		v2, v1 := e.popI64(), e.popI64()
		if v2 == 0 {
			e.throw(ErrIntegerDivideByZero)
		}
		if v1 == math.MinInt64 && v2 == -1 {
			e.push(NewI64(0))
		} else {
			e.push(NewI64(v1 % v2))
		}
	case wasm.OpcodeI64RemU:
		v2, v1 := e.popU64(), e.popU64()
		if v2 == 0 {
			e.throw(ErrIntegerDivideByZero)
		}
		e.push(NewI64(int64(v1 % v2)))
	case wasm.OpcodeI64And:
		v2, v1 := e.popU64(), e.popU64()
		e.push(NewI64(int64(v1 & v2)))
	case wasm.OpcodeI64Or:
		v2, v1 := e.popU64(), e.popU64()
		e.push(NewI64(int64(v1 | v2)))
	case wasm.OpcodeI64Xor:
		v2, v1 := e.popU64(), e.popU64()
		e.push(NewI64(int64(v1 ^ v2)))
	case wasm.OpcodeI64Shl:
		v2, v1 := e.popU64(), e.popU64()
		e.push(NewI64(int64(v1 << (v2 & 63))))
	case wasm.OpcodeI64ShrS:
		v2, v1 := e.popU64(), e.popI64()
		e.push(NewI64(v1 >> (v2 & 63)))
	case wasm.OpcodeI64ShrU:
		v2, v1 := e.popU64(), e.popU64()
		e.push(NewI64(int64(v1 >> (v2 & 63))))
	case wasm.OpcodeI64Rotl:
		v2, v1 := e.popU64(), e.popU64()
		e.push(NewI64(int64(bits.RotateLeft64(v1, int(v2&63)))))
	case wasm.OpcodeI64Rotr:
		v2, v1 := e.popU64(), e.popU64()
		e.push(NewI64(int64(bits.RotateLeft64(v1, -int(v2&63)))))

	case wasm.OpcodeF32Abs:
		e.push(NewF32(float32(math.Abs(float64(e.popF32())))))
	case wasm.OpcodeF32Neg:
		e.push(NewF32(-e.popF32()))
	case wasm.OpcodeF32Ceil:
		e.push(NewF32(float32(math.Ceil(float64(e.popF32())))))
	case wasm.OpcodeF32Floor:
		e.push(NewF32(float32(math.Floor(float64(e.popF32())))))
	case wasm.OpcodeF32Trunc:
		e.push(NewF32(float32(math.Trunc(float64(e.popF32())))))
	case wasm.OpcodeF32Nearest:
		e.push(NewF32(float32(math.RoundToEven(float64(e.popF32())))))
	case wasm.OpcodeF32Sqrt:
		e.push(NewF32(float32(math.Sqrt(float64(e.popF32())))))
	case wasm.OpcodeF32Add:
		v2, v1 := e.popF32(), e.popF32()
		e.push(NewF32(v1 + v2))
	case wasm.OpcodeF32Sub:
		v2, v1 := e.popF32(), e.popF32()
		e.push(NewF32(v1 - v2))
	case wasm.OpcodeF32Mul:
		v2, v1 := e.popF32(), e.popF32()
		e.push(NewF32(v1 * v2))
	case wasm.OpcodeF32Div:
		v2, v1 := e.popF32(), e.popF32()
		e.push(NewF32(v1 / v2))
	case wasm.OpcodeF32Min:
		v2, v1 := e.popF32(), e.popF32()
		e.push(NewF32(float32(wasmMin(float64(v1), float64(v2)))))
	case wasm.OpcodeF32Max:
		v2, v1 := e.popF32(), e.popF32()
		e.push(NewF32(float32(wasmMax(float64(v1), float64(v2)))))
	case wasm.OpcodeF32Copysign:
		v2, v1 := e.popF32(), e.popF32()
		e.push(NewF32(float32(math.Copysign(float64(v1), float64(v2)))))

	case wasm.OpcodeF64Abs:
		e.push(NewF64(math.Abs(e.popF64())))
	case wasm.OpcodeF64Neg:
		e.push(NewF64(-e.popF64()))
	case wasm.OpcodeF64Ceil:
		e.push(NewF64(math.Ceil(e.popF64())))
	case wasm.OpcodeF64Floor:
		e.push(NewF64(math.Floor(e.popF64())))
	case wasm.OpcodeF64Trunc:
		e.push(NewF64(math.Trunc(e.popF64())))
	case wasm.OpcodeF64Nearest:
		e.push(NewF64(math.RoundToEven(e.popF64())))
	case wasm.OpcodeF64Sqrt:
		e.push(NewF64(math.Sqrt(e.popF64())))
	case wasm.OpcodeF64Add:
		v2, v1 := e.popF64(), e.popF64()
		e.push(NewF64(v1 + v2))
	case wasm.OpcodeF64Sub:
		v2, v1 := e.popF64(), e.popF64()
		e.push(NewF64(v1 - v2))
	case wasm.OpcodeF64Mul:
		v2, v1 := e.popF64(), e.popF64()
		e.push(NewF64(v1 * v2))
	case wasm.OpcodeF64Div:
		v2, v1 := e.popF64(), e.popF64()
		e.push(NewF64(v1 / v2))
	case wasm.OpcodeF64Min:
		v2, v1 := e.popF64(), e.popF64()
		e.push(NewF64(wasmMin(v1, v2)))
	case wasm.OpcodeF64Max:
		v2, v1 := e.popF64(), e.popF64()
		e.push(NewF64(wasmMax(v1, v2)))
	case wasm.OpcodeF64Copysign:
		v2, v1 := e.popF64(), e.popF64()
		e.push(NewF64(math.Copysign(v1, v2)))

	case wasm.OpcodeI32WrapI64:
		e.push(NewI32(int32(uint32(e.popU64()))))
	case wasm.OpcodeI32TruncF32S:
		e.push(NewI32(int32(e.truncToInt(float64(e.popF32()), -2147483648, 2147483648))))
	case wasm.OpcodeI32TruncF32U:
		e.push(NewI32(int32(uint32(e.truncToUint(float64(e.popF32()), 4294967296)))))
	case wasm.OpcodeI32TruncF64S:
		e.push(NewI32(int32(e.truncToInt(e.popF64(), -2147483648, 2147483648))))
	case wasm.OpcodeI32TruncF64U:
		e.push(NewI32(int32(uint32(e.truncToUint(e.popF64(), 4294967296)))))
	case wasm.OpcodeI64ExtendI32S:
		e.push(NewI64(int64(e.popI32())))
	case wasm.OpcodeI64ExtendI32U:
		e.push(NewI64(int64(e.popU32())))
	case wasm.OpcodeI64TruncF32S:
		e.push(NewI64(e.truncToInt(float64(e.popF32()), -9223372036854775808, 9223372036854775808)))
	case wasm.OpcodeI64TruncF32U:
		e.push(NewI64(int64(e.truncToUint(float64(e.popF32()), 18446744073709551616))))
	case wasm.OpcodeI64TruncF64S:
		e.push(NewI64(e.truncToInt(e.popF64(), -9223372036854775808, 9223372036854775808)))
	case wasm.OpcodeI64TruncF64U:
		e.push(NewI64(int64(e.truncToUint(e.popF64(), 18446744073709551616))))
	case wasm.OpcodeF32ConvertI32S:
		e.push(NewF32(float32(e.popI32())))
	case wasm.OpcodeF32ConvertI32U:
		e.push(NewF32(float32(e.popU32())))
	case wasm.OpcodeF32ConvertI64S:
		e.push(NewF32(float32(e.popI64())))
	case wasm.OpcodeF32ConvertI64U:
		e.push(NewF32(float32(e.popU64())))
	case wasm.OpcodeF32DemoteF64:
		e.push(NewF32(float32(e.popF64())))
	case wasm.OpcodeF64ConvertI32S:
		e.push(NewF64(float64(e.popI32())))
	case wasm.OpcodeF64ConvertI32U:
		e.push(NewF64(float64(e.popU32())))
	case wasm.OpcodeF64ConvertI64S:
		e.push(NewF64(float64(e.popI64())))
	case wasm.OpcodeF64ConvertI64U:
		e.push(NewF64(float64(e.popU64())))
	case wasm.OpcodeF64PromoteF32:
		e.push(NewF64(float64(e.popF32())))

	case wasm.OpcodeI32ReinterpretF32:
		v := e.popTyped(wasm.ValueTypeF32)
		e.push(Value{Type: wasm.ValueTypeI32, Data: v.Data})
	case wasm.OpcodeI64ReinterpretF64:
		v := e.popTyped(wasm.ValueTypeF64)
		e.push(Value{Type: wasm.ValueTypeI64, Data: v.Data})
	case wasm.OpcodeF32ReinterpretI32:
		v := e.popTyped(wasm.ValueTypeI32)
		e.push(Value{Type: wasm.ValueTypeF32, Data: v.Data})
	case wasm.OpcodeF64ReinterpretI64:
		v := e.popTyped(wasm.ValueTypeI64)
		e.push(Value{Type: wasm.ValueTypeF64, Data: v.Data})
	}
}

// truncToInt implements iNN.trunc_fMM_s: NaN and values whose truncation
// lies outside [min, max) trap.
func (e *engine) truncToInt(v float64, min, max float64) int64 {
	if math.IsNaN(v) {
		e.throw(ErrInvalidConversion)
	}
	truncated := math.Trunc(v)
	if truncated < min || truncated >= max {
		e.throw(ErrIntegerOverflow)
	}
	return int64(truncated)
}

// truncToUint implements iNN.trunc_fMM_u: NaN and values whose truncation
// lies outside [0, max) trap.
func (e *engine) truncToUint(v float64, max float64) uint64 {
	if math.IsNaN(v) {
		e.throw(ErrInvalidConversion)
	}
	truncated := math.Trunc(v)
	if truncated < 0 || truncated >= max {
		e.throw(ErrIntegerOverflow)
	}
	return uint64(truncated)
}

// wasmMin is the IEEE754 minimum with the WebAssembly NaN and signed-zero
// rules: any NaN operand yields NaN, and -0 is smaller than +0.
func wasmMin(x, y float64) float64 {
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.NaN()
	}
	if x == y {
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

func wasmMax(x, y float64) float64 {
	if math.IsNaN(x) || math.IsNaN(y) {
		return math.NaN()
	}
	if x == y {
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}
