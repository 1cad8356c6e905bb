package wasm

import (
	"fmt"
)

// PageSize is the unit of linear memory: 64KiB.
const PageSize uint64 = 65536

// MemoryMaxPages bounds memory limits: 65536 pages = 4GiB.
const MemoryMaxPages uint32 = 65536

// ValueType is the binary encoding of a type such as i32.
// See https://www.w3.org/TR/wasm-core-1/#binary-valtype
//
// Note: This is a type alias as it is easier to encode and decode in the binary format.
type ValueType = byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
	// ValueTypeNone is the empty block type 0x40.
	ValueTypeNone ValueType = 0x40
)

// ValueTypeName returns the type name of the given ValueType as a string.
// These type names match the names used in the WebAssembly text format.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeNone:
		return "none"
	}
	return "unknown"
}

// ValueMut is the mutability flag of a global.
type ValueMut = byte

const (
	ValueMutConst ValueMut = 0x00
	ValueMutVar   ValueMut = 0x01
)

// ImportKind indicates which import description is present.
type ImportKind = byte

const (
	ImportKindFunction ImportKind = 0x00
	ImportKindTable    ImportKind = 0x01
	ImportKindMemory   ImportKind = 0x02
	ImportKindGlobal   ImportKind = 0x03
)

// ExportKind indicates which index an export description points to.
type ExportKind = byte

const (
	ExportKindFunction ExportKind = 0x00
	ExportKindTable    ExportKind = 0x01
	ExportKindMemory   ExportKind = 0x02
	ExportKindGlobal   ExportKind = 0x03
)

// ExportKindName returns the canonical name of the exportdesc.
func ExportKindName(ek ExportKind) string {
	switch ek {
	case ExportKindFunction:
		return "func"
	case ExportKindTable:
		return "table"
	case ExportKindMemory:
		return "mem"
	case ExportKindGlobal:
		return "global"
	}
	return "unknown"
}

type FunctionType struct {
	Params, Results []ValueType
}

func (t *FunctionType) String() (ret string) {
	for _, b := range t.Params {
		ret += ValueTypeName(b)
	}
	if len(t.Params) == 0 {
		ret += "null"
	}
	ret += "_"
	for _, b := range t.Results {
		ret += ValueTypeName(b)
	}
	if len(t.Results) == 0 {
		ret += "null"
	}
	return
}

// HasSameSignature reports whether two value type vectors are equal.
func HasSameSignature(a []ValueType, b []ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EqualTypes reports whether two function types have the same params and results.
func (t *FunctionType) EqualTypes(other *FunctionType) bool {
	return HasSameSignature(t.Params, other.Params) &&
		HasSameSignature(t.Results, other.Results)
}

func readValueTypes(r *Reader, num uint32) ([]ValueType, error) {
	ret := make([]ValueType, 0, num)
	for i := uint32(0); i < num; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read value type: %w", err)
		}
		switch vt := ValueType(b); vt {
		case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64:
			ret = append(ret, vt)
		default:
			return nil, fmt.Errorf("%w: invalid value type %#x", ErrInvalidGrammar, vt)
		}
	}
	return ret, nil
}

func readFunctionType(r *Reader) (*FunctionType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read leading byte: %w", err)
	}

	if b != 0x60 {
		return nil, fmt.Errorf("%w: %#x != 0x60", ErrInvalidByte, b)
	}

	s, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("get the size of input value types: %w", err)
	}

	paramTypes, err := readValueTypes(r, s)
	if err != nil {
		return nil, fmt.Errorf("read value types of inputs: %w", err)
	}

	s, err = r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("get the size of output value types: %w", err)
	} else if s > 1 {
		return nil, fmt.Errorf("%w: multi value results not supported", ErrInvalidGrammar)
	}

	resultTypes, err := readValueTypes(r, s)
	if err != nil {
		return nil, fmt.Errorf("read value types of outputs: %w", err)
	}

	return &FunctionType{
		Params:  paramTypes,
		Results: resultTypes,
	}, nil
}

type LimitsType struct {
	Min uint32
	Max *uint32
}

func readLimitsType(r *Reader) (*LimitsType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read leading byte: %w", err)
	}

	ret := &LimitsType{}
	switch b {
	case 0x00:
		ret.Min, err = r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("read min of limit: %w", err)
		}
	case 0x01:
		ret.Min, err = r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("read min of limit: %w", err)
		}
		m, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("read max of limit: %w", err)
		}
		ret.Max = &m
	default:
		return nil, fmt.Errorf("%w for limits: %#x != 0x00 or 0x01", ErrInvalidByte, b)
	}
	return ret, nil
}

type TableType struct {
	ElemType byte
	Limit    *LimitsType
}

func readTableType(r *Reader) (*TableType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read leading byte: %w", err)
	}

	if b != 0x70 {
		return nil, fmt.Errorf("%w: invalid element type %#x != %#x", ErrInvalidByte, b, 0x70)
	}

	lm, err := readLimitsType(r)
	if err != nil {
		return nil, fmt.Errorf("read limits: %w", err)
	}

	return &TableType{
		ElemType: 0x70, // funcref
		Limit:    lm,
	}, nil
}

type MemoryType = LimitsType

func readMemoryType(r *Reader) (*MemoryType, error) {
	ret, err := readLimitsType(r)
	if err != nil {
		return nil, err
	}
	if ret.Min > MemoryMaxPages {
		return nil, fmt.Errorf("%w: memory min must be at most 65536 pages (4GiB)", ErrInvalidGrammar)
	}
	if ret.Max != nil {
		if *ret.Max < ret.Min {
			return nil, fmt.Errorf("%w: memory size minimum must not be greater than maximum", ErrInvalidGrammar)
		} else if *ret.Max > MemoryMaxPages {
			return nil, fmt.Errorf("%w: memory max must be at most 65536 pages (4GiB)", ErrInvalidGrammar)
		}
	}
	return ret, nil
}

type GlobalType struct {
	ValType ValueType
	Mut     ValueMut
}

func readGlobalType(r *Reader) (*GlobalType, error) {
	vt, err := readValueTypes(r, 1)
	if err != nil {
		return nil, fmt.Errorf("read value type: %w", err)
	}

	ret := &GlobalType{
		ValType: vt[0],
	}

	b, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read mutability: %w", err)
	}

	switch mut := b; mut {
	case ValueMutConst, ValueMutVar:
		ret.Mut = mut
	default:
		return nil, fmt.Errorf("%w for mutability: %#x != 0x00 or 0x01", ErrInvalidByte, mut)
	}
	return ret, nil
}
