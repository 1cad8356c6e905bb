package wasmvm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wasmvm/wasmvm/wasm"
)

func (e *engine) memoryInstance(frame *Frame) *MemoryInstance {
	m := frame.Function.ModuleInstance
	if len(m.MemoryAddrs) == 0 {
		e.throw(fmt.Errorf("%w: memory 0", ErrWrongInstanceAddress))
	}
	mem, err := e.store.GetMemory(m.MemoryAddrs[0])
	if err != nil {
		e.throw(err)
	}
	return mem
}

// effectiveAddr pops the i32 base and adds the static offset in 64 bits so
// the sum cannot wrap; the bounds check then decides the trap.
func (e *engine) effectiveAddr(offset uint32) uint64 {
	return uint64(e.popU32()) + uint64(offset)
}

func (e *engine) memoryView(mem *MemoryInstance, base uint64, width uint64) []byte {
	if base+width > uint64(len(mem.Buffer)) {
		e.throw(ErrMemoryOutOfBounds)
	}
	return mem.Buffer[base : base+width]
}

func (e *engine) execMemory(frame *Frame, ins *wasm.MemoryInstruction) {
	switch ins.Op {
	case wasm.OpcodeMemorySize:
		e.push(NewI32(int32(e.memoryInstance(frame).PageCount())))
		return
	case wasm.OpcodeMemoryGrow:
		delta := e.popU32()
		e.push(NewI32(e.memoryInstance(frame).Grow(delta)))
		return
	}

	mem := e.memoryInstance(frame)

	switch ins.Op {
	case wasm.OpcodeI32Load:
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 4)
		e.push(Value{Type: wasm.ValueTypeI32, Data: uint64(binary.LittleEndian.Uint32(b))})
	case wasm.OpcodeI64Load:
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 8)
		e.push(Value{Type: wasm.ValueTypeI64, Data: binary.LittleEndian.Uint64(b)})
	case wasm.OpcodeF32Load:
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 4)
		e.push(Value{Type: wasm.ValueTypeF32, Data: uint64(binary.LittleEndian.Uint32(b))})
	case wasm.OpcodeF64Load:
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 8)
		e.push(Value{Type: wasm.ValueTypeF64, Data: binary.LittleEndian.Uint64(b)})
	case wasm.OpcodeI32Load8S:
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 1)
		e.push(NewI32(int32(int8(b[0]))))
	case wasm.OpcodeI32Load8U:
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 1)
		e.push(Value{Type: wasm.ValueTypeI32, Data: uint64(b[0])})
	case wasm.OpcodeI32Load16S:
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 2)
		e.push(NewI32(int32(int16(binary.LittleEndian.Uint16(b)))))
	case wasm.OpcodeI32Load16U:
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 2)
		e.push(Value{Type: wasm.ValueTypeI32, Data: uint64(binary.LittleEndian.Uint16(b))})
	case wasm.OpcodeI64Load8S:
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 1)
		e.push(NewI64(int64(int8(b[0]))))
	case wasm.OpcodeI64Load8U:
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 1)
		e.push(Value{Type: wasm.ValueTypeI64, Data: uint64(b[0])})
	case wasm.OpcodeI64Load16S:
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 2)
		e.push(NewI64(int64(int16(binary.LittleEndian.Uint16(b)))))
	case wasm.OpcodeI64Load16U:
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 2)
		e.push(Value{Type: wasm.ValueTypeI64, Data: uint64(binary.LittleEndian.Uint16(b))})
	case wasm.OpcodeI64Load32S:
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 4)
		e.push(NewI64(int64(int32(binary.LittleEndian.Uint32(b)))))
	case wasm.OpcodeI64Load32U:
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 4)
		e.push(Value{Type: wasm.ValueTypeI64, Data: uint64(binary.LittleEndian.Uint32(b))})

	case wasm.OpcodeI32Store:
		v := e.popU32()
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 4)
		binary.LittleEndian.PutUint32(b, v)
	case wasm.OpcodeI64Store:
		v := e.popU64()
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 8)
		binary.LittleEndian.PutUint64(b, v)
	case wasm.OpcodeF32Store:
		v := e.popF32()
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	case wasm.OpcodeF64Store:
		v := e.popF64()
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	case wasm.OpcodeI32Store8:
		v := e.popU32()
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 1)
		b[0] = byte(v)
	case wasm.OpcodeI32Store16:
		v := e.popU32()
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
	case wasm.OpcodeI64Store8:
		v := e.popU64()
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 1)
		b[0] = byte(v)
	case wasm.OpcodeI64Store16:
		v := e.popU64()
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
	case wasm.OpcodeI64Store32:
		v := e.popU64()
		b := e.memoryView(mem, e.effectiveAddr(ins.Offset), 4)
		binary.LittleEndian.PutUint32(b, uint32(v))
	}
}
