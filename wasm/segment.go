package wasm

import (
	"fmt"
	"math"
)

// ConstantExpression is a decoded init expression: a single const or
// global.get, already reduced at decode time. Value holds the constant's bit
// pattern, or the global index for global.get.
type ConstantExpression struct {
	Opcode Opcode
	Value  uint64
}

func readConstantExpression(r *Reader) (*ConstantExpression, error) {
	op, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read opcode: %w", err)
	}

	ret := &ConstantExpression{Opcode: op}
	switch op {
	case OpcodeI32Const:
		v, err := r.ReadInt32()
		if err != nil {
			return nil, fmt.Errorf("read i32: %w", err)
		}
		ret.Value = uint64(uint32(v))
	case OpcodeI64Const:
		v, err := r.ReadInt64()
		if err != nil {
			return nil, fmt.Errorf("read i64: %w", err)
		}
		ret.Value = uint64(v)
	case OpcodeF32Const:
		v, err := r.ReadFloat32()
		if err != nil {
			return nil, fmt.Errorf("read f32: %w", err)
		}
		ret.Value = uint64(math.Float32bits(v))
	case OpcodeF64Const:
		v, err := r.ReadFloat64()
		if err != nil {
			return nil, fmt.Errorf("read f64: %w", err)
		}
		ret.Value = math.Float64bits(v)
	case OpcodeGlobalGet:
		v, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("read index of global: %w", err)
		}
		ret.Value = uint64(v)
	default:
		return nil, fmt.Errorf("%w for const expression opcode: %#x", ErrInvalidByte, op)
	}

	end, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("look for end opcode: %w", err)
	}
	if end != OpcodeEnd {
		return nil, fmt.Errorf("%w: constant expression has not been terminated", ErrInvalidGrammar)
	}
	return ret, nil
}

// ResultType returns the value type the expression evaluates to, without
// resolving global.get (which depends on the importing module).
func (c *ConstantExpression) ResultType() (ValueType, bool) {
	switch c.Opcode {
	case OpcodeI32Const:
		return ValueTypeI32, true
	case OpcodeI64Const:
		return ValueTypeI64, true
	case OpcodeF32Const:
		return ValueTypeF32, true
	case OpcodeF64Const:
		return ValueTypeF64, true
	}
	return 0, false
}

type ImportDesc struct {
	Kind ImportKind

	TypeIndexPtr  *uint32
	TableTypePtr  *TableType
	MemTypePtr    *MemoryType
	GlobalTypePtr *GlobalType
}

func readImportDesc(r *Reader) (*ImportDesc, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read import kind: %w", err)
	}

	switch b {
	case ImportKindFunction:
		tID, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("read typeindex: %w", err)
		}
		return &ImportDesc{
			Kind:         ImportKindFunction,
			TypeIndexPtr: &tID,
		}, nil
	case ImportKindTable:
		tt, err := readTableType(r)
		if err != nil {
			return nil, fmt.Errorf("read table type: %w", err)
		}
		return &ImportDesc{
			Kind:         ImportKindTable,
			TableTypePtr: tt,
		}, nil
	case ImportKindMemory:
		mt, err := readMemoryType(r)
		if err != nil {
			return nil, fmt.Errorf("read memory type: %w", err)
		}
		return &ImportDesc{
			Kind:       ImportKindMemory,
			MemTypePtr: mt,
		}, nil
	case ImportKindGlobal:
		gt, err := readGlobalType(r)
		if err != nil {
			return nil, fmt.Errorf("read global type: %w", err)
		}
		return &ImportDesc{
			Kind:          ImportKindGlobal,
			GlobalTypePtr: gt,
		}, nil
	default:
		return nil, fmt.Errorf("%w: invalid byte for importdesc: %#x", ErrInvalidByte, b)
	}
}

type ImportSegment struct {
	Module, Name string
	Desc         *ImportDesc
}

func readImportSegment(r *Reader) (*ImportSegment, error) {
	mn, err := r.ReadName()
	if err != nil {
		return nil, fmt.Errorf("read name of imported module: %w", err)
	}

	n, err := r.ReadName()
	if err != nil {
		return nil, fmt.Errorf("read name of imported module component: %w", err)
	}

	d, err := readImportDesc(r)
	if err != nil {
		return nil, fmt.Errorf("read import description: %w", err)
	}

	return &ImportSegment{Module: mn, Name: n, Desc: d}, nil
}

type GlobalSegment struct {
	Type *GlobalType
	Init *ConstantExpression
}

func readGlobalSegment(r *Reader) (*GlobalSegment, error) {
	gt, err := readGlobalType(r)
	if err != nil {
		return nil, fmt.Errorf("read global type: %w", err)
	}

	init, err := readConstantExpression(r)
	if err != nil {
		return nil, fmt.Errorf("get init expression: %w", err)
	}

	return &GlobalSegment{
		Type: gt,
		Init: init,
	}, nil
}

type ExportDesc struct {
	Kind  ExportKind
	Index uint32
}

func readExportDesc(r *Reader) (*ExportDesc, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read export kind: %w", err)
	}
	if kind >= 0x04 {
		return nil, fmt.Errorf("%w: invalid byte for exportdesc: %#x", ErrInvalidByte, kind)
	}

	id, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("read export index: %w", err)
	}

	return &ExportDesc{
		Kind:  kind,
		Index: id,
	}, nil
}

type ExportSegment struct {
	Name string
	Desc *ExportDesc
}

func readExportSegment(r *Reader) (*ExportSegment, error) {
	name, err := r.ReadName()
	if err != nil {
		return nil, fmt.Errorf("read name of export: %w", err)
	}

	d, err := readExportDesc(r)
	if err != nil {
		return nil, fmt.Errorf("read export description: %w", err)
	}

	return &ExportSegment{Name: name, Desc: d}, nil
}

type ElementSegment struct {
	TableIndex uint32
	OffsetExpr *ConstantExpression
	Init       []uint32
}

func readElementSegment(r *Reader) (*ElementSegment, error) {
	ti, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("get table index: %w", err)
	}

	expr, err := readConstantExpression(r)
	if err != nil {
		return nil, fmt.Errorf("read expr for offset: %w", err)
	}

	vs, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}

	init := make([]uint32, vs)
	for i := range init {
		fIdx, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("read function index: %w", err)
		}
		init[i] = fIdx
	}

	return &ElementSegment{
		TableIndex: ti,
		OffsetExpr: expr,
		Init:       init,
	}, nil
}

type CodeSegment struct {
	// LocalTypes has one entry per declared local, already expanded from the
	// (count, type) groups of the binary format. Parameters are not included.
	LocalTypes []ValueType
	Body       []Instruction
}

func readCodeSegment(r *Reader) (*CodeSegment, error) {
	ss, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("get the size of code segment: %w", err)
	}
	start := r.Pos()

	// parse locals
	ls, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("get the size of locals: %w", err)
	}

	var localTypes []ValueType
	var sum uint64
	for i := uint32(0); i < ls; i++ {
		n, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("read n of locals: %w", err)
		}
		sum += uint64(n)
		if sum > math.MaxUint32 {
			return nil, fmt.Errorf("%w: too many locals: %d", ErrInvalidGrammar, sum)
		}

		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read type of local: %w", err)
		}
		switch vt := ValueType(b); vt {
		case ValueTypeI32, ValueTypeF32, ValueTypeI64, ValueTypeF64:
			for j := uint32(0); j < n; j++ {
				localTypes = append(localTypes, vt)
			}
		default:
			return nil, fmt.Errorf("%w: invalid local type: %#x", ErrInvalidGrammar, vt)
		}
	}

	body, err := readExpression(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if consumed := r.Pos() - start; uint64(consumed) != uint64(ss) {
		return nil, fmt.Errorf("%w: code segment size mismatch: declared %d, consumed %d", ErrInvalidGrammar, ss, consumed)
	}

	return &CodeSegment{
		Body:       body,
		LocalTypes: localTypes,
	}, nil
}

type DataSegment struct {
	MemoryIndex      uint32 // supposed to be zero
	OffsetExpression *ConstantExpression
	Init             []byte
}

func readDataSegment(r *Reader) (*DataSegment, error) {
	d, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("read memory index: %w", err)
	}

	if d != 0 {
		return nil, fmt.Errorf("%w: invalid memory index: %d", ErrInvalidGrammar, d)
	}

	expr, err := readConstantExpression(r)
	if err != nil {
		return nil, fmt.Errorf("read offset expression: %w", err)
	}

	vs, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("get the size of vector: %w", err)
	}

	b, err := r.ReadBytes(vs)
	if err != nil {
		return nil, fmt.Errorf("read bytes for init: %w", err)
	}

	init := make([]byte, len(b))
	copy(init, b)

	return &DataSegment{
		OffsetExpression: expr,
		Init:             init,
	}, nil
}
