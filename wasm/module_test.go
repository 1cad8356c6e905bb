package wasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helpers to hand-assemble module binaries. All numbers used in fixtures fit
// a single LEB byte unless encoded explicitly.

func concat(bs ...[]byte) (ret []byte) {
	for _, b := range bs {
		ret = append(ret, b...)
	}
	return
}

func section(id SectionID, payload []byte) []byte {
	return concat([]byte{id, byte(len(payload))}, payload)
}

func vec(items ...[]byte) []byte {
	return concat([]byte{byte(len(items))}, concat(items...))
}

func encodeName(s string) []byte {
	return concat([]byte{byte(len(s))}, []byte(s))
}

func preamble() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}

// addModuleBin exports add(i32,i32)->i32 = local.get 0; local.get 1; i32.add.
func addModuleBin() []byte {
	return concat(
		preamble(),
		section(SectionIDType, vec(
			[]byte{0x60, 0x02, ValueTypeI32, ValueTypeI32, 0x01, ValueTypeI32},
		)),
		section(SectionIDFunction, vec([]byte{0x00})),
		section(SectionIDExport, vec(
			concat(encodeName("add"), []byte{ExportKindFunction, 0x00}),
		)),
		section(SectionIDCode, vec(
			[]byte{0x07, // body size
				0x00, // no locals
				OpcodeLocalGet, 0x00,
				OpcodeLocalGet, 0x01,
				OpcodeI32Add,
				OpcodeEnd},
		)),
	)
}

func TestDecodeModule(t *testing.T) {
	m, err := DecodeModule(addModuleBin())
	require.NoError(t, err)

	require.Len(t, m.TypeSection, 1)
	assert.Equal(t, []ValueType{ValueTypeI32, ValueTypeI32}, m.TypeSection[0].Params)
	assert.Equal(t, []ValueType{ValueTypeI32}, m.TypeSection[0].Results)

	require.Equal(t, []uint32{0}, m.FunctionSection)

	exp, ok := m.ExportSection["add"]
	require.True(t, ok)
	assert.Equal(t, ExportKindFunction, exp.Desc.Kind)
	assert.Equal(t, uint32(0), exp.Desc.Index)

	require.Len(t, m.CodeSection, 1)
	body := m.CodeSection[0].Body
	require.Len(t, body, 3)
	assert.Equal(t, &VariableInstruction{Op: OpcodeLocalGet, VarIdx: 0}, body[0])
	assert.Equal(t, &VariableInstruction{Op: OpcodeLocalGet, VarIdx: 1}, body[1])
	assert.Equal(t, &NumericInstruction{Op: OpcodeI32Add}, body[2])
}

func TestDecodeModule_Preamble(t *testing.T) {
	_, err := DecodeModule([]byte{0x00, 0x61, 0x73})
	require.ErrorIs(t, err, ErrInvalidMagicNumber)

	_, err = DecodeModule([]byte{0x01, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})
	require.ErrorIs(t, err, ErrInvalidMagicNumber)

	_, err = DecodeModule([]byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00})
	require.ErrorIs(t, err, ErrInvalidVersion)

	m, err := DecodeModule(preamble())
	require.NoError(t, err)
	assert.Empty(t, m.TypeSection)
}

func TestDecodeModule_SectionOrder(t *testing.T) {
	// Export section before the type section violates the prescribed order.
	bin := concat(
		preamble(),
		section(SectionIDExport, vec(concat(encodeName("x"), []byte{ExportKindFunction, 0x00}))),
		section(SectionIDType, vec([]byte{0x60, 0x00, 0x00})),
	)
	_, err := DecodeModule(bin)
	require.ErrorIs(t, err, ErrInvalidGrammar)

	// Duplicate section id.
	bin = concat(
		preamble(),
		section(SectionIDType, vec([]byte{0x60, 0x00, 0x00})),
		section(SectionIDType, vec([]byte{0x60, 0x00, 0x00})),
	)
	_, err = DecodeModule(bin)
	require.ErrorIs(t, err, ErrInvalidGrammar)
}

func TestDecodeModule_InvalidSectionID(t *testing.T) {
	bin := concat(preamble(), section(12, []byte{0x00}))
	_, err := DecodeModule(bin)
	require.ErrorIs(t, err, ErrInvalidSectionID)
}

func TestDecodeModule_SectionSizeMismatch(t *testing.T) {
	// Type section declaring more bytes than its vector consumes.
	bin := concat(
		preamble(),
		[]byte{SectionIDType, 0x05, 0x01, 0x60, 0x00, 0x00},
	)
	_, err := DecodeModule(bin)
	require.Error(t, err)
}

func TestDecodeModule_CustomSection(t *testing.T) {
	bin := concat(
		preamble(),
		section(SectionIDCustom, concat(encodeName("meta"), []byte{0xde, 0xad})),
		section(SectionIDType, vec([]byte{0x60, 0x00, 0x00})),
	)
	m, err := DecodeModule(bin)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, m.CustomSections["meta"])
	require.Len(t, m.TypeSection, 1)
}

func TestDecodeModule_StartSection(t *testing.T) {
	bin := concat(
		preamble(),
		section(SectionIDType, vec([]byte{0x60, 0x00, 0x00})),
		section(SectionIDFunction, vec([]byte{0x00})),
		section(SectionIDStart, []byte{0x00}),
		section(SectionIDCode, vec([]byte{0x02, 0x00, OpcodeEnd})),
	)
	m, err := DecodeModule(bin)
	require.NoError(t, err)
	require.NotNil(t, m.StartSection)
	assert.Equal(t, uint32(0), *m.StartSection)
}

func TestDecodeModule_InconsistentFunctionAndCode(t *testing.T) {
	bin := concat(
		preamble(),
		section(SectionIDType, vec([]byte{0x60, 0x00, 0x00})),
		section(SectionIDFunction, vec([]byte{0x00})),
	)
	_, err := DecodeModule(bin)
	require.ErrorIs(t, err, ErrInvalidGrammar)
}

func TestDecodeModule_MemoryAndData(t *testing.T) {
	bin := concat(
		preamble(),
		section(SectionIDMemory, vec([]byte{0x00, 0x01})), // min 1, no max
		section(SectionIDData, vec(concat(
			[]byte{0x00},                        // memory index
			[]byte{OpcodeI32Const, 0x04, OpcodeEnd}, // offset
			[]byte{0x03, 0xaa, 0xbb, 0xcc},      // three bytes
		))),
	)
	m, err := DecodeModule(bin)
	require.NoError(t, err)
	require.Len(t, m.MemorySection, 1)
	assert.Equal(t, uint32(1), m.MemorySection[0].Min)
	require.Len(t, m.DataSection, 1)
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc}, m.DataSection[0].Init)
	assert.Equal(t, OpcodeI32Const, m.DataSection[0].OffsetExpression.Opcode)
	assert.Equal(t, uint64(4), m.DataSection[0].OffsetExpression.Value)
}

func TestDecodeModule_GlobalSection(t *testing.T) {
	bin := concat(
		preamble(),
		section(SectionIDGlobal, vec(
			[]byte{ValueTypeI64, ValueMutVar, OpcodeI64Const, 0x2a, OpcodeEnd},
			[]byte{ValueTypeF32, ValueMutConst, OpcodeF32Const, 0x00, 0x00, 0x80, 0x3f, OpcodeEnd},
		)),
	)
	m, err := DecodeModule(bin)
	require.NoError(t, err)
	require.Len(t, m.GlobalSection, 2)
	assert.Equal(t, ValueTypeI64, m.GlobalSection[0].Type.ValType)
	assert.Equal(t, ValueMutVar, m.GlobalSection[0].Type.Mut)
	assert.Equal(t, uint64(42), m.GlobalSection[0].Init.Value)
	assert.Equal(t, ValueMutConst, m.GlobalSection[1].Type.Mut)
	assert.Equal(t, uint64(0x3f800000), m.GlobalSection[1].Init.Value) // 1.0f
}

func TestDecodeModule_ImportSection(t *testing.T) {
	bin := concat(
		preamble(),
		section(SectionIDType, vec([]byte{0x60, 0x01, ValueTypeI32, 0x00})),
		section(SectionIDImport, vec(concat(
			encodeName("env"), encodeName("print"),
			[]byte{ImportKindFunction, 0x00},
		))),
	)
	m, err := DecodeModule(bin)
	require.NoError(t, err)
	require.Len(t, m.ImportSection, 1)
	imp := m.ImportSection[0]
	assert.Equal(t, "env", imp.Module)
	assert.Equal(t, "print", imp.Name)
	assert.Equal(t, ImportKindFunction, imp.Desc.Kind)
	assert.Equal(t, uint32(0), *imp.Desc.TypeIndexPtr)
}

func TestFunctionNames(t *testing.T) {
	// Function name subsection (id=1) mapping index 0 to "fib".
	namePayload := concat(
		[]byte{0x01, 0x06}, // subsection id, size
		[]byte{0x01},       // one entry
		[]byte{0x00},       // function index
		encodeName("fib"),
	)
	bin := concat(
		preamble(),
		section(SectionIDCustom, concat(encodeName("name"), namePayload)),
	)
	m, err := DecodeModule(bin)
	require.NoError(t, err)

	names, err := m.FunctionNames()
	require.NoError(t, err)
	assert.Equal(t, map[uint32]string{0: "fib"}, names)
}

func TestFunctionNames_Missing(t *testing.T) {
	m, err := DecodeModule(preamble())
	require.NoError(t, err)
	_, err = m.FunctionNames()
	require.ErrorIs(t, err, ErrCustomSectionNotFound)
}
