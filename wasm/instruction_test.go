package wasm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, body []byte) []Instruction {
	t.Helper()
	bin := concat(
		preamble(),
		section(SectionIDType, vec([]byte{0x60, 0x00, 0x00})),
		section(SectionIDFunction, vec([]byte{0x00})),
		section(SectionIDCode, vec(concat(
			[]byte{byte(len(body) + 2), 0x00}, // body size, no locals
			body,
			[]byte{OpcodeEnd},
		))),
	)
	m, err := DecodeModule(bin)
	require.NoError(t, err)
	require.Len(t, m.CodeSection, 1)
	return m.CodeSection[0].Body
}

func decodeBodyErr(t *testing.T, body []byte) error {
	t.Helper()
	bin := concat(
		preamble(),
		section(SectionIDType, vec([]byte{0x60, 0x00, 0x00})),
		section(SectionIDFunction, vec([]byte{0x00})),
		section(SectionIDCode, vec(concat(
			[]byte{byte(len(body) + 2), 0x00},
			body,
			[]byte{OpcodeEnd},
		))),
	)
	_, err := DecodeModule(bin)
	require.Error(t, err)
	return err
}

func TestDecodeNestedBlocks(t *testing.T) {
	body := decodeBody(t, []byte{
		OpcodeBlock, byte(ValueTypeNone),
		OpcodeLoop, byte(ValueTypeNone),
		OpcodeBr, 0x01,
		OpcodeEnd,
		OpcodeEnd,
		OpcodeNop,
	})

	require.Len(t, body, 2)
	block, ok := body[0].(*BlockControlInstruction)
	require.True(t, ok)
	assert.Equal(t, OpcodeBlock, block.Op)
	assert.Equal(t, ValueTypeNone, block.BlockType)

	require.Len(t, block.Body, 1)
	loop, ok := block.Body[0].(*BlockControlInstruction)
	require.True(t, ok)
	assert.Equal(t, OpcodeLoop, loop.Op)
	require.Len(t, loop.Body, 1)
	assert.Equal(t, &BrControlInstruction{Op: OpcodeBr, LabelIdx: 1}, loop.Body[0])

	assert.Equal(t, &ControlInstruction{Op: OpcodeNop}, body[1])
}

func TestDecodeIfElse(t *testing.T) {
	body := decodeBody(t, []byte{
		OpcodeI32Const, 0x01,
		OpcodeIf, byte(ValueTypeI32),
		OpcodeI32Const, 0x02,
		OpcodeElse,
		OpcodeI32Const, 0x03,
		OpcodeEnd,
		OpcodeDrop,
	})

	require.Len(t, body, 3)
	ifElse, ok := body[1].(*IfElseControlInstruction)
	require.True(t, ok)
	assert.Equal(t, ValueTypeI32, ifElse.BlockType)
	require.Len(t, ifElse.Then, 1)
	assert.Equal(t, &ConstInstruction{Op: OpcodeI32Const, Num: 2}, ifElse.Then[0])
	require.Len(t, ifElse.Else, 1)
	assert.Equal(t, &ConstInstruction{Op: OpcodeI32Const, Num: 3}, ifElse.Else[0])
}

func TestDecodeIfWithoutElse(t *testing.T) {
	body := decodeBody(t, []byte{
		OpcodeI32Const, 0x00,
		OpcodeIf, byte(ValueTypeNone),
		OpcodeNop,
		OpcodeEnd,
	})
	ifElse, ok := body[1].(*IfElseControlInstruction)
	require.True(t, ok)
	require.Len(t, ifElse.Then, 1)
	assert.Empty(t, ifElse.Else)
}

func TestDecodeBrTable(t *testing.T) {
	body := decodeBody(t, []byte{
		OpcodeBlock, byte(ValueTypeNone),
		OpcodeI32Const, 0x00,
		OpcodeBrTable, 0x02, 0x00, 0x00, 0x00, // two labels, default 0
		OpcodeEnd,
	})
	block := body[0].(*BlockControlInstruction)
	require.Len(t, block.Body, 2)
	bt, ok := block.Body[1].(*BrTableControlInstruction)
	require.True(t, ok)
	assert.Equal(t, []uint32{0, 0}, bt.LabelTable)
	assert.Equal(t, uint32(0), bt.DefaultLabel)
}

func TestDecodeMemoryInstruction(t *testing.T) {
	body := decodeBody(t, []byte{
		OpcodeI32Const, 0x00,
		OpcodeI32Load, 0x02, 0x08, // align=2, offset=8
		OpcodeDrop,
	})
	load, ok := body[1].(*MemoryInstruction)
	require.True(t, ok)
	assert.Equal(t, uint32(2), load.Align)
	assert.Equal(t, uint32(8), load.Offset)
}

func TestDecodeConstInstructions(t *testing.T) {
	body := decodeBody(t, []byte{
		OpcodeI32Const, 0x7f, // -1
		OpcodeDrop,
		OpcodeI64Const, 0x2a,
		OpcodeDrop,
		OpcodeF32Const, 0x00, 0x00, 0x80, 0x3f, // 1.0
		OpcodeDrop,
		OpcodeF64Const, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xf0, 0x3f, // 1.0
		OpcodeDrop,
	})

	require.Len(t, body, 8)
	assert.Equal(t, uint64(0xffffffff), body[0].(*ConstInstruction).Num) // i32 -1, zero-extended
	assert.Equal(t, uint64(42), body[2].(*ConstInstruction).Num)
	assert.Equal(t, uint64(math.Float32bits(1.0)), body[4].(*ConstInstruction).Num)
	assert.Equal(t, math.Float64bits(1.0), body[6].(*ConstInstruction).Num)
}

func TestDecodeReservedBytes(t *testing.T) {
	// call_indirect's table byte must be zero.
	err := decodeBodyErr(t, []byte{
		OpcodeI32Const, 0x00,
		OpcodeCallIndirect, 0x00, 0x01,
	})
	require.ErrorIs(t, err, ErrInvalidGrammar)

	// memory.grow's reserved byte must be zero.
	err = decodeBodyErr(t, []byte{
		OpcodeI32Const, 0x01,
		OpcodeMemoryGrow, 0x01,
		OpcodeDrop,
	})
	require.ErrorIs(t, err, ErrInvalidGrammar)
}

func TestDecodeInvalidBlockType(t *testing.T) {
	err := decodeBodyErr(t, []byte{
		OpcodeBlock, 0x7b, // v128 is not an MVP block type
		OpcodeEnd,
	})
	require.ErrorIs(t, err, ErrInvalidGrammar)
}

func TestDecodeUnknownOpcode(t *testing.T) {
	err := decodeBodyErr(t, []byte{0xd0})
	require.ErrorIs(t, err, ErrInvalidGrammar)
}

func TestDecodeTruncatedBody(t *testing.T) {
	// A block whose end never arrives runs the reader into its size limit.
	err := decodeBodyErr(t, []byte{OpcodeBlock, byte(ValueTypeNone)})
	require.Error(t, err)
}

func TestDecodeLocals(t *testing.T) {
	bin := concat(
		preamble(),
		section(SectionIDType, vec([]byte{0x60, 0x00, 0x00})),
		section(SectionIDFunction, vec([]byte{0x00})),
		section(SectionIDCode, vec([]byte{
			0x06, // body size
			0x02, // two local groups
			0x02, ValueTypeI32,
			0x01, ValueTypeF64,
			OpcodeEnd,
		})),
	)
	m, err := DecodeModule(bin)
	require.NoError(t, err)
	assert.Equal(t, []ValueType{ValueTypeI32, ValueTypeI32, ValueTypeF64}, m.CodeSection[0].LocalTypes)
}
