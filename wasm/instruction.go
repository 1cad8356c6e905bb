package wasm

import (
	"fmt"
	"math"
)

// Instruction is one decoded instruction. The concrete type is one variant
// per opcode family; the engine dispatches on it with a single type switch.
//
// Bodies of structured instructions never contain the terminating `end`
// opcode: it is consumed during decode.
type Instruction interface {
	Opcode() Opcode
	// load consumes the instruction's immediates from r. The opcode byte
	// itself has already been read by the caller.
	load(r *Reader) error
}

// BlockControlInstruction is `block` or `loop`.
type BlockControlInstruction struct {
	Op        Opcode
	BlockType ValueType
	Body      []Instruction
}

// IfElseControlInstruction is `if` with an optional `else` arm.
type IfElseControlInstruction struct {
	BlockType ValueType
	Then      []Instruction
	Else      []Instruction
}

// BrControlInstruction is `br` or `br_if`.
type BrControlInstruction struct {
	Op       Opcode
	LabelIdx uint32
}

// BrTableControlInstruction is `br_table`.
type BrTableControlInstruction struct {
	LabelTable   []uint32
	DefaultLabel uint32
}

// CallControlInstruction is `call` (Index is a function index) or
// `call_indirect` (Index is a type index; the reserved table byte is
// checked and dropped at decode).
type CallControlInstruction struct {
	Op    Opcode
	Index uint32
}

// VariableInstruction is local/global get/set/tee.
type VariableInstruction struct {
	Op     Opcode
	VarIdx uint32
}

// MemoryInstruction is a load/store with align/offset immediates, or
// memory.size/memory.grow whose reserved byte is checked and dropped.
type MemoryInstruction struct {
	Op     Opcode
	Align  uint32
	Offset uint32
}

// ConstInstruction carries the constant's bit pattern: i32 values are
// sign-extended into the low 32 bits then zero-extended, i64 raw, floats as
// their IEEE754 bits.
type ConstInstruction struct {
	Op  Opcode
	Num uint64
}

// NumericInstruction is any numeric operator; no immediates.
type NumericInstruction struct {
	Op Opcode
}

// ParametricInstruction is `drop` or `select`.
type ParametricInstruction struct {
	Op Opcode
}

// ControlInstruction is `unreachable`, `nop` or `return`.
type ControlInstruction struct {
	Op Opcode
}

func (i *BlockControlInstruction) Opcode() Opcode  { return i.Op }
func (i *IfElseControlInstruction) Opcode() Opcode { return OpcodeIf }
func (i *BrControlInstruction) Opcode() Opcode     { return i.Op }
func (i *BrTableControlInstruction) Opcode() Opcode {
	return OpcodeBrTable
}
func (i *CallControlInstruction) Opcode() Opcode { return i.Op }
func (i *VariableInstruction) Opcode() Opcode    { return i.Op }
func (i *MemoryInstruction) Opcode() Opcode      { return i.Op }
func (i *ConstInstruction) Opcode() Opcode       { return i.Op }
func (i *NumericInstruction) Opcode() Opcode     { return i.Op }
func (i *ParametricInstruction) Opcode() Opcode  { return i.Op }
func (i *ControlInstruction) Opcode() Opcode     { return i.Op }

func readBlockType(r *Reader) (ValueType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("read block type: %w", err)
	}
	switch vt := ValueType(b); vt {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64, ValueTypeNone:
		return vt, nil
	default:
		return 0, fmt.Errorf("%w: invalid block type %#x", ErrInvalidGrammar, vt)
	}
}

// BlockArity returns how many results a block of the given type yields.
func BlockArity(blockType ValueType) int {
	if blockType == ValueTypeNone {
		return 0
	}
	return 1
}

func (i *BlockControlInstruction) load(r *Reader) error {
	bt, err := readBlockType(r)
	if err != nil {
		return err
	}
	i.BlockType = bt

	body, _, err := readInstructionSequence(r, false)
	if err != nil {
		return err
	}
	i.Body = body
	return nil
}

func (i *IfElseControlInstruction) load(r *Reader) error {
	bt, err := readBlockType(r)
	if err != nil {
		return err
	}
	i.BlockType = bt

	then, sawElse, err := readInstructionSequence(r, true)
	if err != nil {
		return err
	}
	i.Then = then
	if sawElse {
		elseBody, _, err := readInstructionSequence(r, false)
		if err != nil {
			return err
		}
		i.Else = elseBody
	}
	return nil
}

func (i *BrControlInstruction) load(r *Reader) error {
	l, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("read label index: %w", err)
	}
	i.LabelIdx = l
	return nil
}

func (i *BrTableControlInstruction) load(r *Reader) error {
	n, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("read size of label vector: %w", err)
	}
	i.LabelTable = make([]uint32, n)
	for j := range i.LabelTable {
		l, err := r.ReadUint32()
		if err != nil {
			return fmt.Errorf("read %d-th label: %w", j, err)
		}
		i.LabelTable[j] = l
	}
	d, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("read default label: %w", err)
	}
	i.DefaultLabel = d
	return nil
}

func (i *CallControlInstruction) load(r *Reader) error {
	idx, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}
	i.Index = idx
	if i.Op == OpcodeCallIndirect {
		b, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("read reserved byte: %w", err)
		}
		if b != 0x00 {
			return fmt.Errorf("%w: call_indirect reserved byte must be zero but got %#x", ErrInvalidGrammar, b)
		}
	}
	return nil
}

func (i *VariableInstruction) load(r *Reader) error {
	idx, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("read variable index: %w", err)
	}
	i.VarIdx = idx
	return nil
}

func (i *MemoryInstruction) load(r *Reader) error {
	if i.Op == OpcodeMemorySize || i.Op == OpcodeMemoryGrow {
		b, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("read reserved byte: %w", err)
		}
		if b != 0x00 {
			return fmt.Errorf("%w: memory instruction reserved byte must be zero but got %#x", ErrInvalidGrammar, b)
		}
		return nil
	}

	align, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("read align: %w", err)
	}
	offset, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("read offset: %w", err)
	}
	i.Align = align
	i.Offset = offset
	return nil
}

func (i *ConstInstruction) load(r *Reader) error {
	switch i.Op {
	case OpcodeI32Const:
		v, err := r.ReadInt32()
		if err != nil {
			return fmt.Errorf("read i32 immediate: %w", err)
		}
		i.Num = uint64(uint32(v))
	case OpcodeI64Const:
		v, err := r.ReadInt64()
		if err != nil {
			return fmt.Errorf("read i64 immediate: %w", err)
		}
		i.Num = uint64(v)
	case OpcodeF32Const:
		v, err := r.ReadFloat32()
		if err != nil {
			return fmt.Errorf("read f32 immediate: %w", err)
		}
		i.Num = uint64(math.Float32bits(v))
	case OpcodeF64Const:
		v, err := r.ReadFloat64()
		if err != nil {
			return fmt.Errorf("read f64 immediate: %w", err)
		}
		i.Num = math.Float64bits(v)
	}
	return nil
}

func (i *NumericInstruction) load(*Reader) error    { return nil }
func (i *ParametricInstruction) load(*Reader) error { return nil }
func (i *ControlInstruction) load(*Reader) error    { return nil }

// makeInstruction creates the concrete variant for op; the caller invokes
// its load method to consume any immediates.
func makeInstruction(op Opcode) (Instruction, error) {
	switch {
	case op == OpcodeUnreachable, op == OpcodeNop, op == OpcodeReturn:
		return &ControlInstruction{Op: op}, nil
	case op == OpcodeBlock, op == OpcodeLoop:
		return &BlockControlInstruction{Op: op}, nil
	case op == OpcodeIf:
		return &IfElseControlInstruction{}, nil
	case op == OpcodeBr, op == OpcodeBrIf:
		return &BrControlInstruction{Op: op}, nil
	case op == OpcodeBrTable:
		return &BrTableControlInstruction{}, nil
	case op == OpcodeCall, op == OpcodeCallIndirect:
		return &CallControlInstruction{Op: op}, nil
	case op == OpcodeDrop, op == OpcodeSelect:
		return &ParametricInstruction{Op: op}, nil
	case op >= OpcodeLocalGet && op <= OpcodeGlobalSet:
		return &VariableInstruction{Op: op}, nil
	case op >= OpcodeI32Load && op <= OpcodeMemoryGrow:
		return &MemoryInstruction{Op: op}, nil
	case op >= OpcodeI32Const && op <= OpcodeF64Const:
		return &ConstInstruction{Op: op}, nil
	case op >= OpcodeI32Eqz && op <= OpcodeF64ReinterpretI64:
		return &NumericInstruction{Op: op}, nil
	default:
		return nil, fmt.Errorf("%w: unknown opcode %#x", ErrInvalidGrammar, op)
	}
}

// readInstructionSequence decodes instructions until `end` (always consumed,
// never stored). When stopAtElse is set, an `else` opcode also terminates
// the sequence; sawElse reports which terminator was hit.
func readInstructionSequence(r *Reader, stopAtElse bool) (body []Instruction, sawElse bool, err error) {
	for {
		op, err := r.ReadByte()
		if err != nil {
			return nil, false, fmt.Errorf("read opcode: %w", err)
		}

		if op == OpcodeEnd {
			return body, false, nil
		}
		if op == OpcodeElse {
			if !stopAtElse {
				return nil, false, fmt.Errorf("%w: unexpected else opcode", ErrInvalidGrammar)
			}
			return body, true, nil
		}

		instr, err := makeInstruction(op)
		if err != nil {
			return nil, false, err
		}
		if err := instr.load(r); err != nil {
			return nil, false, fmt.Errorf("load %s: %w", OpcodeName(op), err)
		}
		body = append(body, instr)
	}
}

// readExpression decodes a function body or init expression terminated by `end`.
func readExpression(r *Reader) ([]Instruction, error) {
	body, _, err := readInstructionSequence(r, false)
	return body, err
}
