package wasmvm

import (
	"fmt"

	"github.com/wasmvm/wasmvm/wasm"
)

// Instantiate allocates a module instance and its function, global, table
// and memory instances in the store. Each step can fail; mutations are
// rolled back so a failed instantiation leaves no partial instance visible.
//
// Imports resolve against the host registry: only function imports are
// supported (single-host-module model).
func (s *Store) Instantiate(module *wasm.Module, name string, registry *HostFunctionRegistry) (inst *ModuleInstance, errRet error) {
	if _, ok := s.ModuleInstances[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrModuleNameConflict, name)
	}

	instance := &ModuleInstance{
		Name:    name,
		Types:   module.TypeSection,
		Exports: map[string]*ExportInstance{},
	}

	var rollbackFuncs []func()
	defer func() {
		for _, f := range rollbackFuncs {
			f()
		}
	}()

	rs, err := s.resolveImports(module, instance, registry)
	rollbackFuncs = append(rollbackFuncs, rs...)
	if err != nil {
		return nil, fmt.Errorf("resolve imports: %w", err)
	}

	rs, err = s.buildFunctionInstances(module, instance)
	rollbackFuncs = append(rollbackFuncs, rs...)
	if err != nil {
		return nil, fmt.Errorf("functions: %w", err)
	}

	rs, err = s.buildGlobalInstances(module, instance)
	rollbackFuncs = append(rollbackFuncs, rs...)
	if err != nil {
		return nil, fmt.Errorf("globals: %w", err)
	}

	rs, err = s.buildTableInstances(module, instance)
	rollbackFuncs = append(rollbackFuncs, rs...)
	if err != nil {
		return nil, fmt.Errorf("tables: %w", err)
	}

	rs, err = s.buildMemoryInstances(module, instance)
	rollbackFuncs = append(rollbackFuncs, rs...)
	if err != nil {
		return nil, fmt.Errorf("memories: %w", err)
	}

	if err := s.buildExportInstances(module, instance); err != nil {
		return nil, fmt.Errorf("exports: %w", err)
	}

	if module.StartSection != nil {
		if uint64(*module.StartSection) >= uint64(len(instance.FunctionAddrs)) {
			return nil, fmt.Errorf("%w: invalid start function index: %d", ErrInstantiationFailed, *module.StartSection)
		}
	}

	s.ModuleInstances[name] = instance
	rollbackFuncs = nil
	return instance, nil
}

func (s *Store) resolveImports(module *wasm.Module, target *ModuleInstance, registry *HostFunctionRegistry) (rollbackFuncs []func(), err error) {
	prevLen := len(s.Functions)
	rollbackFuncs = append(rollbackFuncs, func() {
		s.Functions = s.Functions[:prevLen]
	})
	for _, is := range module.ImportSection {
		if err := s.resolveImport(module, target, is, registry); err != nil {
			return rollbackFuncs, fmt.Errorf("%s.%s: %w", is.Module, is.Name, err)
		}
	}
	return rollbackFuncs, nil
}

func (s *Store) resolveImport(module *wasm.Module, target *ModuleInstance, is *wasm.ImportSegment, registry *HostFunctionRegistry) error {
	if is.Desc.Kind != wasm.ImportKindFunction {
		return fmt.Errorf("%w: only function imports are supported, got kind %#x", ErrImportNotFound, is.Desc.Kind)
	}
	if registry == nil {
		return ErrImportNotFound
	}

	hf, ok := registry.Lookup(is.Module, is.Name)
	if !ok {
		return ErrImportNotFound
	}

	typeIndex := *is.Desc.TypeIndexPtr
	if uint64(typeIndex) >= uint64(len(module.TypeSection)) {
		return fmt.Errorf("%w: unknown type for function import", ErrInstantiationFailed)
	}
	declared := module.TypeSection[typeIndex]
	if !declared.EqualTypes(hf.Type()) {
		return fmt.Errorf("%w: import %s.%s declared %s but registered %s",
			ErrTypeMismatch, is.Module, is.Name, declared.String(), hf.Type().String())
	}

	f := &FunctionInstance{
		Name:           fmt.Sprintf("%s.%s", is.Module, is.Name),
		ModuleInstance: target,
		Signature:      declared,
		HostFunction:   hf,
	}
	addr := uint32(len(s.Functions))
	s.Functions = append(s.Functions, f)
	target.FunctionAddrs = append(target.FunctionAddrs, addr)
	return nil
}

func (s *Store) buildFunctionInstances(module *wasm.Module, target *ModuleInstance) (rollbackFuncs []func(), err error) {
	prevLen := len(s.Functions)
	rollbackFuncs = append(rollbackFuncs, func() {
		s.Functions = s.Functions[:prevLen]
	})

	var names map[uint32]string
	if _, ok := module.CustomSections["name"]; ok {
		names, _ = module.FunctionNames()
	}

	importedCount := uint32(len(target.FunctionAddrs))
	for codeIndex, typeIndex := range module.FunctionSection {
		if uint64(typeIndex) >= uint64(len(module.TypeSection)) {
			return rollbackFuncs, fmt.Errorf("%w: function type index out of range", ErrInstantiationFailed)
		}

		funcIndex := importedCount + uint32(codeIndex)
		name, ok := names[funcIndex]
		if !ok {
			name = fmt.Sprintf("%s.func[%d]", target.Name, funcIndex)
		}

		code := module.CodeSection[codeIndex]
		f := &FunctionInstance{
			Name:           name,
			ModuleInstance: target,
			Signature:      module.TypeSection[typeIndex],
			LocalTypes:     code.LocalTypes,
			Body:           code.Body,
		}
		addr := uint32(len(s.Functions))
		s.Functions = append(s.Functions, f)
		target.FunctionAddrs = append(target.FunctionAddrs, addr)
	}
	return rollbackFuncs, nil
}

// evalConstExpression reduces an init expression to a value. global.get may
// reference any global already allocated for the instance; it does not check
// that the referenced global is an import.
func (s *Store) evalConstExpression(target *ModuleInstance, expr *wasm.ConstantExpression) (Value, error) {
	switch expr.Opcode {
	case wasm.OpcodeI32Const:
		return Value{Type: wasm.ValueTypeI32, Data: expr.Value}, nil
	case wasm.OpcodeI64Const:
		return Value{Type: wasm.ValueTypeI64, Data: expr.Value}, nil
	case wasm.OpcodeF32Const:
		return Value{Type: wasm.ValueTypeF32, Data: expr.Value}, nil
	case wasm.OpcodeF64Const:
		return Value{Type: wasm.ValueTypeF64, Data: expr.Value}, nil
	case wasm.OpcodeGlobalGet:
		id := uint32(expr.Value)
		if uint64(id) >= uint64(len(target.GlobalAddrs)) {
			return Value{}, fmt.Errorf("%w: global index out of range", ErrInstantiationFailed)
		}
		g, err := s.GetGlobal(target.GlobalAddrs[id])
		if err != nil {
			return Value{}, err
		}
		return g.Val, nil
	}
	return Value{}, fmt.Errorf("%w: invalid opcode for const expression: %#x", ErrInstantiationFailed, expr.Opcode)
}

func (s *Store) buildGlobalInstances(module *wasm.Module, target *ModuleInstance) (rollbackFuncs []func(), err error) {
	prevLen := len(s.Globals)
	rollbackFuncs = append(rollbackFuncs, func() {
		s.Globals = s.Globals[:prevLen]
	})
	for _, gs := range module.GlobalSection {
		v, err := s.evalConstExpression(target, gs.Init)
		if err != nil {
			return rollbackFuncs, fmt.Errorf("evaluate init expression: %w", err)
		}
		if v.Type != gs.Type.ValType {
			return rollbackFuncs, fmt.Errorf("%w: global initialized with %s but declared %s",
				ErrTypeMismatch, wasm.ValueTypeName(v.Type), wasm.ValueTypeName(gs.Type.ValType))
		}
		g := &GlobalInstance{
			Type: gs.Type,
			Val:  v,
		}
		addr := uint32(len(s.Globals))
		s.Globals = append(s.Globals, g)
		target.GlobalAddrs = append(target.GlobalAddrs, addr)
	}
	return rollbackFuncs, nil
}

func (s *Store) buildTableInstances(module *wasm.Module, target *ModuleInstance) (rollbackFuncs []func(), err error) {
	prevLen := len(s.Tables)
	rollbackFuncs = append(rollbackFuncs, func() {
		s.Tables = s.Tables[:prevLen]
	})

	for _, tableSeg := range module.TableSection {
		tableInst := &TableInstance{
			Table:    make([]*uint32, tableSeg.Limit.Min),
			Min:      tableSeg.Limit.Min,
			Max:      tableSeg.Limit.Max,
			ElemType: tableSeg.ElemType,
		}
		addr := uint32(len(s.Tables))
		s.Tables = append(s.Tables, tableInst)
		target.TableAddrs = append(target.TableAddrs, addr)
	}
	if len(target.TableAddrs) > 1 {
		return rollbackFuncs, fmt.Errorf("%w: multiple tables not supported", ErrInstantiationFailed)
	}

	for _, elem := range module.ElementSection {
		if uint64(elem.TableIndex) >= uint64(len(target.TableAddrs)) {
			return rollbackFuncs, fmt.Errorf("%w: table index out of range", ErrInstantiationFailed)
		}

		v, err := s.evalConstExpression(target, elem.OffsetExpr)
		if err != nil {
			return rollbackFuncs, fmt.Errorf("calculate offset: %w", err)
		}
		if v.Type != wasm.ValueTypeI32 {
			return rollbackFuncs, fmt.Errorf("%w: offset must be i32 but got %s", ErrTypeMismatch, wasm.ValueTypeName(v.Type))
		}
		offset := v.I32()
		if offset < 0 {
			return rollbackFuncs, fmt.Errorf("%w: negative element offset: %d", ErrInstantiationFailed, offset)
		}

		tableInst, err := s.GetTable(target.TableAddrs[elem.TableIndex])
		if err != nil {
			return rollbackFuncs, err
		}
		if uint64(offset)+uint64(len(elem.Init)) > uint64(len(tableInst.Table)) {
			return rollbackFuncs, fmt.Errorf("%w: out of bounds table access: %d + %d > %d",
				ErrInstantiationFailed, offset, len(elem.Init), len(tableInst.Table))
		}

		for i, funcIdx := range elem.Init {
			if uint64(funcIdx) >= uint64(len(target.FunctionAddrs)) {
				return rollbackFuncs, fmt.Errorf("%w: unknown function specified by element", ErrInstantiationFailed)
			}
			pos := int(offset) + i
			original := tableInst.Table[pos]
			rollbackFuncs = append(rollbackFuncs, func() {
				tableInst.Table[pos] = original
			})
			funcAddr := target.FunctionAddrs[funcIdx]
			tableInst.Table[pos] = &funcAddr
		}
	}
	return rollbackFuncs, nil
}

func (s *Store) buildMemoryInstances(module *wasm.Module, target *ModuleInstance) (rollbackFuncs []func(), err error) {
	prevLen := len(s.Memories)
	rollbackFuncs = append(rollbackFuncs, func() {
		s.Memories = s.Memories[:prevLen]
	})

	for _, memSec := range module.MemorySection {
		if len(target.MemoryAddrs) > 0 {
			return rollbackFuncs, ErrMultipleMemoriesSupported
		}
		memInst := &MemoryInstance{
			Buffer: make([]byte, uint64(memSec.Min)*wasm.PageSize),
			Min:    memSec.Min,
			Max:    memSec.Max,
		}
		addr := uint32(len(s.Memories))
		s.Memories = append(s.Memories, memInst)
		target.MemoryAddrs = append(target.MemoryAddrs, addr)
	}

	for _, d := range module.DataSection {
		if len(target.MemoryAddrs) == 0 {
			return rollbackFuncs, fmt.Errorf("%w: data segment without memory", ErrInstantiationFailed)
		}

		v, err := s.evalConstExpression(target, d.OffsetExpression)
		if err != nil {
			return rollbackFuncs, fmt.Errorf("calculate offset: %w", err)
		}
		if v.Type != wasm.ValueTypeI32 {
			return rollbackFuncs, fmt.Errorf("%w: offset must be i32 but got %s", ErrTypeMismatch, wasm.ValueTypeName(v.Type))
		}
		offset := v.I32()
		if offset < 0 {
			return rollbackFuncs, fmt.Errorf("%w: negative data offset: %d", ErrInstantiationFailed, offset)
		}

		memInst, err := s.GetMemory(target.MemoryAddrs[d.MemoryIndex])
		if err != nil {
			return rollbackFuncs, err
		}
		if uint64(offset)+uint64(len(d.Init)) > uint64(len(memInst.Buffer)) {
			return rollbackFuncs, fmt.Errorf("%w: out of bounds memory access: %d + %d > %d",
				ErrInstantiationFailed, offset, len(d.Init), len(memInst.Buffer))
		}

		// Set up the rollback before mutating the actual memory.
		original := make([]byte, len(d.Init))
		copy(original, memInst.Buffer[offset:])
		rollbackFuncs = append(rollbackFuncs, func() {
			copy(memInst.Buffer[offset:], original)
		})
		copy(memInst.Buffer[offset:], d.Init)
	}
	return rollbackFuncs, nil
}

func (s *Store) buildExportInstances(module *wasm.Module, target *ModuleInstance) error {
	for name, exp := range module.ExportSection {
		index := uint64(exp.Desc.Index)
		var addr uint32
		switch exp.Desc.Kind {
		case wasm.ExportKindFunction:
			if index >= uint64(len(target.FunctionAddrs)) {
				return fmt.Errorf("%w: unknown function for export %q", ErrInstantiationFailed, name)
			}
			addr = target.FunctionAddrs[index]
		case wasm.ExportKindGlobal:
			if index >= uint64(len(target.GlobalAddrs)) {
				return fmt.Errorf("%w: unknown global for export %q", ErrInstantiationFailed, name)
			}
			addr = target.GlobalAddrs[index]
		case wasm.ExportKindMemory:
			if index >= uint64(len(target.MemoryAddrs)) {
				return fmt.Errorf("%w: unknown memory for export %q", ErrInstantiationFailed, name)
			}
			addr = target.MemoryAddrs[index]
		case wasm.ExportKindTable:
			if index >= uint64(len(target.TableAddrs)) {
				return fmt.Errorf("%w: unknown table for export %q", ErrInstantiationFailed, name)
			}
			addr = target.TableAddrs[index]
		}
		target.Exports[name] = &ExportInstance{
			Kind: exp.Desc.Kind,
			Addr: addr,
		}
	}
	return nil
}
