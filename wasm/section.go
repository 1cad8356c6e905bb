package wasm

import (
	"fmt"
)

type SectionID = byte

const (
	SectionIDCustom   SectionID = 0
	SectionIDType     SectionID = 1
	SectionIDImport   SectionID = 2
	SectionIDFunction SectionID = 3
	SectionIDTable    SectionID = 4
	SectionIDMemory   SectionID = 5
	SectionIDGlobal   SectionID = 6
	SectionIDExport   SectionID = 7
	SectionIDStart    SectionID = 8
	SectionIDElement  SectionID = 9
	SectionIDCode     SectionID = 10
	SectionIDData     SectionID = 11
)

// SectionIDName returns the canonical name of a module section.
func SectionIDName(sectionID SectionID) string {
	switch sectionID {
	case SectionIDCustom:
		return "custom"
	case SectionIDType:
		return "type"
	case SectionIDImport:
		return "import"
	case SectionIDFunction:
		return "function"
	case SectionIDTable:
		return "table"
	case SectionIDMemory:
		return "memory"
	case SectionIDGlobal:
		return "global"
	case SectionIDExport:
		return "export"
	case SectionIDStart:
		return "start"
	case SectionIDElement:
		return "element"
	case SectionIDCode:
		return "code"
	case SectionIDData:
		return "data"
	}
	return "unknown"
}

func (m *Module) readSections(r *Reader) error {
	// Non-custom sections must appear at most once, in increasing id order.
	var lastID SectionID
	for r.Pos() < len(r.buf) {
		if err := m.readSection(r, &lastID); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) readSection(r *Reader, lastID *SectionID) error {
	id, err := r.ReadByte()
	if err != nil {
		return err
	}

	ss, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("get size of section for id=%d: %w", id, err)
	}

	if id > SectionIDData {
		return fmt.Errorf("%w: %d", ErrInvalidSectionID, id)
	}
	if id != SectionIDCustom {
		if *lastID >= id {
			return fmt.Errorf("%w: section id %d out of order", ErrInvalidGrammar, id)
		}
		*lastID = id
	}

	start := r.Pos()
	switch id {
	case SectionIDCustom:
		err = m.readSectionCustom(r, ss, start)
	case SectionIDType:
		err = m.readSectionTypes(r)
	case SectionIDImport:
		err = m.readSectionImports(r)
	case SectionIDFunction:
		err = m.readSectionFunctions(r)
	case SectionIDTable:
		err = m.readSectionTables(r)
	case SectionIDMemory:
		err = m.readSectionMemories(r)
	case SectionIDGlobal:
		err = m.readSectionGlobals(r)
	case SectionIDExport:
		err = m.readSectionExports(r)
	case SectionIDStart:
		err = m.readSectionStart(r)
	case SectionIDElement:
		err = m.readSectionElement(r)
	case SectionIDCode:
		err = m.readSectionCodes(r)
	case SectionIDData:
		err = m.readSectionData(r)
	}

	if err != nil {
		return fmt.Errorf("read %s section: %w", SectionIDName(id), err)
	}
	if consumed := r.Pos() - start; uint64(consumed) != uint64(ss) {
		return fmt.Errorf("%w: %s section size mismatch: declared %d, consumed %d",
			ErrInvalidGrammar, SectionIDName(id), ss, consumed)
	}
	return nil
}

func (m *Module) readSectionCustom(r *Reader, size uint32, start int) error {
	name, err := r.ReadName()
	if err != nil {
		return fmt.Errorf("read custom section name: %w", err)
	}
	nameLen := r.Pos() - start
	if uint64(nameLen) > uint64(size) {
		return fmt.Errorf("%w: custom section name exceeds section size", ErrInvalidGrammar)
	}
	payload, err := r.ReadBytes(size - uint32(nameLen))
	if err != nil {
		return fmt.Errorf("read custom section payload: %w", err)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.CustomSections[name] = cp
	return nil
}

func (m *Module) readSectionTypes(r *Reader) error {
	vs, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.TypeSection = make([]*FunctionType, vs)
	for i := range m.TypeSection {
		m.TypeSection[i], err = readFunctionType(r)
		if err != nil {
			return fmt.Errorf("read %d-th function type: %w", i, err)
		}
	}
	return nil
}

func (m *Module) readSectionImports(r *Reader) error {
	vs, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.ImportSection = make([]*ImportSegment, vs)
	for i := range m.ImportSection {
		m.ImportSection[i], err = readImportSegment(r)
		if err != nil {
			return fmt.Errorf("read import: %w", err)
		}
	}
	return nil
}

func (m *Module) readSectionFunctions(r *Reader) error {
	vs, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.FunctionSection = make([]uint32, vs)
	for i := range m.FunctionSection {
		m.FunctionSection[i], err = r.ReadUint32()
		if err != nil {
			return fmt.Errorf("get typeidx: %w", err)
		}
	}
	return nil
}

func (m *Module) readSectionTables(r *Reader) error {
	vs, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.TableSection = make([]*TableType, vs)
	for i := range m.TableSection {
		m.TableSection[i], err = readTableType(r)
		if err != nil {
			return fmt.Errorf("read table type: %w", err)
		}
	}
	return nil
}

func (m *Module) readSectionMemories(r *Reader) error {
	vs, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.MemorySection = make([]*MemoryType, vs)
	for i := range m.MemorySection {
		m.MemorySection[i], err = readMemoryType(r)
		if err != nil {
			return fmt.Errorf("read memory type: %w", err)
		}
	}
	return nil
}

func (m *Module) readSectionGlobals(r *Reader) error {
	vs, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.GlobalSection = make([]*GlobalSegment, vs)
	for i := range m.GlobalSection {
		m.GlobalSection[i], err = readGlobalSegment(r)
		if err != nil {
			return fmt.Errorf("read global segment: %w", err)
		}
	}
	return nil
}

func (m *Module) readSectionExports(r *Reader) error {
	vs, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.ExportSection = make(map[string]*ExportSegment, vs)
	for i := uint32(0); i < vs; i++ {
		expDesc, err := readExportSegment(r)
		if err != nil {
			return fmt.Errorf("read export: %w", err)
		}
		if _, ok := m.ExportSection[expDesc.Name]; ok {
			return fmt.Errorf("%w: duplicate export name %q", ErrInvalidGrammar, expDesc.Name)
		}
		m.ExportSection[expDesc.Name] = expDesc
	}
	return nil
}

func (m *Module) readSectionStart(r *Reader) error {
	idx, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("read function index: %w", err)
	}
	m.StartSection = &idx
	return nil
}

func (m *Module) readSectionElement(r *Reader) error {
	vs, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.ElementSection = make([]*ElementSegment, vs)
	for i := range m.ElementSection {
		m.ElementSection[i], err = readElementSegment(r)
		if err != nil {
			return fmt.Errorf("read element: %w", err)
		}
	}
	return nil
}

func (m *Module) readSectionCodes(r *Reader) error {
	vs, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}
	m.CodeSection = make([]*CodeSegment, vs)

	for i := range m.CodeSection {
		m.CodeSection[i], err = readCodeSegment(r)
		if err != nil {
			return fmt.Errorf("read code segment: %w", err)
		}
	}
	return nil
}

func (m *Module) readSectionData(r *Reader) error {
	vs, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.DataSection = make([]*DataSegment, vs)
	for i := range m.DataSection {
		m.DataSection[i], err = readDataSegment(r)
		if err != nil {
			return fmt.Errorf("read data segment: %w", err)
		}
	}
	return nil
}
