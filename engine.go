package wasmvm

import (
	"fmt"

	"github.com/wasmvm/wasmvm/wasm"
)

const defaultMaxCallStackDepth = 512

// engine interprets one activation at a time by walking the instruction
// tree. Traps panic with a trap payload and are recovered at the Call
// boundary, unwinding the whole Wasm stack.
type engine struct {
	store        *Store
	stack        *StackManager
	env          *Env
	maxCallDepth int
}

type trap struct {
	err error
}

func newEngine(store *Store, stack *StackManager, env *Env, maxCallDepth int) *engine {
	if maxCallDepth <= 0 {
		maxCallDepth = defaultMaxCallStackDepth
	}
	return &engine{store: store, stack: stack, env: env, maxCallDepth: maxCallDepth}
}

func (e *engine) throw(err error) {
	panic(trap{err: err})
}

// control is the outcome of executing an instruction sequence: controlNone
// falls through, controlReturn unwinds to the activation, and values >= 0
// count the labels a branch still has to cross on its way out.
type control int

const (
	controlNone   control = -1
	controlReturn control = -2
)

// Call runs f with its arguments already pushed on the operand stack. On a
// trap the whole Wasm stack is unwound and the trap surfaces wrapped in
// ErrFunctionTrapped together with the offending function's name.
func (e *engine) Call(f *FunctionInstance) (errRet error) {
	prevFrameDepth := e.stack.FrameDepth()
	defer func() {
		if r := recover(); r != nil {
			t, ok := r.(trap)
			if !ok {
				panic(r)
			}
			name := f.Name
			if active := e.stack.CurrentFrame(); active != nil && e.stack.FrameDepth() > prevFrameDepth {
				name = active.Function.Name
			}
			e.stack.Reset()
			errRet = fmt.Errorf("%w: %w (in %s)", ErrFunctionTrapped, t.err, name)
		}
	}()
	e.execFunction(f)
	return nil
}

// execFunction dispatches one call: host functions marshal through the
// registry descriptor; Wasm functions get a fresh frame whose locals are the
// popped arguments followed by zero-initialized declared locals.
func (e *engine) execFunction(f *FunctionInstance) {
	if f.IsHost() {
		e.execHostFunction(f)
		return
	}

	if e.stack.FrameDepth() >= e.maxCallDepth {
		e.throw(ErrCallStackOverflow)
	}

	paramCount := len(f.Signature.Params)
	locals := make([]Value, paramCount+len(f.LocalTypes))
	for i := paramCount - 1; i >= 0; i-- {
		v, err := e.stack.PopTyped(f.Signature.Params[i])
		if err != nil {
			e.throw(err)
		}
		locals[i] = v
	}
	for i, t := range f.LocalTypes {
		locals[paramCount+i] = ZeroValue(t)
	}

	frame := &Frame{
		Function: f,
		Locals:   locals,
		Arity:    len(f.Signature.Results),
	}
	e.stack.PushFrame(frame)
	e.stack.PushLabel(frame.Arity, false)

	e.execBody(frame, f.Body)

	if _, err := e.stack.PopFrame(); err != nil {
		e.throw(err)
	}
}

func (e *engine) execHostFunction(f *FunctionInstance) {
	hf := f.HostFunction
	if !e.env.AddCost(hf.Cost()) {
		e.throw(ErrCostLimitExceeded)
	}

	var mem *MemoryInstance
	if len(f.ModuleInstance.MemoryAddrs) > 0 {
		m, err := e.store.GetMemory(f.ModuleInstance.MemoryAddrs[0])
		if err != nil {
			e.throw(err)
		}
		mem = m
	}

	if err := hf.Call(e.env, e.stack, mem); err != nil {
		e.throw(err)
	}
}

// execBody interprets one instruction sequence, the single dispatch point of
// the interpreter.
func (e *engine) execBody(frame *Frame, body []wasm.Instruction) control {
	for _, raw := range body {
		if !e.env.AddCost(1) {
			e.throw(ErrCostLimitExceeded)
		}

		switch ins := raw.(type) {
		case *wasm.ControlInstruction:
			switch ins.Op {
			case wasm.OpcodeUnreachable:
				e.throw(ErrUnreachable)
			case wasm.OpcodeNop:
			case wasm.OpcodeReturn:
				return controlReturn
			}
		case *wasm.BlockControlInstruction:
			if c := e.execBlock(frame, ins); c != controlNone {
				return c
			}
		case *wasm.IfElseControlInstruction:
			if c := e.execIf(frame, ins); c != controlNone {
				return c
			}
		case *wasm.BrControlInstruction:
			if ins.Op == wasm.OpcodeBrIf && e.popU32() == 0 {
				continue
			}
			return e.branch(ins.LabelIdx)
		case *wasm.BrTableControlInstruction:
			s := e.popU32()
			if uint64(s) < uint64(len(ins.LabelTable)) {
				return e.branch(ins.LabelTable[s])
			}
			return e.branch(ins.DefaultLabel)
		case *wasm.CallControlInstruction:
			if ins.Op == wasm.OpcodeCall {
				e.execCall(frame, ins.Index)
			} else {
				e.execCallIndirect(frame, ins.Index)
			}
		case *wasm.ParametricInstruction:
			e.execParametric(ins.Op)
		case *wasm.VariableInstruction:
			e.execVariable(frame, ins)
		case *wasm.MemoryInstruction:
			e.execMemory(frame, ins)
		case *wasm.ConstInstruction:
			e.execConst(ins)
		case *wasm.NumericInstruction:
			e.execNumeric(ins.Op)
		}
	}
	return controlNone
}

func (e *engine) execBlock(frame *Frame, ins *wasm.BlockControlInstruction) control {
	isLoop := ins.Op == wasm.OpcodeLoop
	arity := wasm.BlockArity(ins.BlockType)
	if isLoop {
		// A branch to a loop label re-enters the loop, carrying nothing.
		arity = 0
	}
	e.stack.PushLabel(arity, isLoop)

	for {
		c := e.execBody(frame, ins.Body)
		switch {
		case c == controlNone:
			e.popLabel()
			return controlNone
		case c == controlReturn:
			return controlReturn
		case c == 0:
			if isLoop {
				// The loop label survived the branch; next iteration.
				continue
			}
			// Forward branch landed here; the label is already gone.
			return controlNone
		default:
			return c - 1
		}
	}
}

func (e *engine) execIf(frame *Frame, ins *wasm.IfElseControlInstruction) control {
	body := ins.Then
	if e.popU32() == 0 {
		body = ins.Else
	}

	e.stack.PushLabel(wasm.BlockArity(ins.BlockType), false)
	c := e.execBody(frame, body)
	switch {
	case c == controlNone:
		e.popLabel()
		return controlNone
	case c == controlReturn:
		return controlReturn
	case c == 0:
		return controlNone
	default:
		return c - 1
	}
}

// branch performs the stack unwinding for a taken branch and hands the
// remaining label distance to the recursion to unwind structurally.
func (e *engine) branch(labelIdx uint32) control {
	if _, err := e.stack.BranchTo(labelIdx); err != nil {
		e.throw(err)
	}
	return control(labelIdx)
}

func (e *engine) execCall(frame *Frame, funcIdx uint32) {
	m := frame.Function.ModuleInstance
	if uint64(funcIdx) >= uint64(len(m.FunctionAddrs)) {
		e.throw(fmt.Errorf("%w: function %d", ErrWrongInstanceAddress, funcIdx))
	}
	f, err := e.store.GetFunction(m.FunctionAddrs[funcIdx])
	if err != nil {
		e.throw(err)
	}
	e.execFunction(f)
}

func (e *engine) execCallIndirect(frame *Frame, typeIdx uint32) {
	m := frame.Function.ModuleInstance
	if uint64(typeIdx) >= uint64(len(m.Types)) {
		e.throw(fmt.Errorf("%w: type %d", ErrWrongInstanceAddress, typeIdx))
	}
	expType := m.Types[typeIdx]

	// The MVP limits the table index space to one table.
	if len(m.TableAddrs) == 0 {
		e.throw(fmt.Errorf("%w: table 0", ErrWrongInstanceAddress))
	}
	tableInst, err := e.store.GetTable(m.TableAddrs[0])
	if err != nil {
		e.throw(err)
	}

	index := e.popU32()
	if uint64(index) >= uint64(len(tableInst.Table)) {
		e.throw(ErrTableOutOfBounds)
	}
	funcAddr := tableInst.Table[index]
	if funcAddr == nil {
		e.throw(ErrUninitializedElement)
	}

	f, err := e.store.GetFunction(*funcAddr)
	if err != nil {
		e.throw(err)
	}
	if !f.Signature.EqualTypes(expType) {
		e.throw(fmt.Errorf("%w: (%s) != (%s)", ErrIndirectCallTypeMismatch,
			f.Signature.String(), expType.String()))
	}
	e.execFunction(f)
}

func (e *engine) execParametric(op wasm.Opcode) {
	switch op {
	case wasm.OpcodeDrop:
		e.pop()
	case wasm.OpcodeSelect:
		c := e.popU32()
		v2 := e.pop()
		v1 := e.pop()
		if c != 0 {
			e.push(v1)
		} else {
			e.push(v2)
		}
	}
}

func (e *engine) execConst(ins *wasm.ConstInstruction) {
	switch ins.Op {
	case wasm.OpcodeI32Const:
		e.push(Value{Type: wasm.ValueTypeI32, Data: ins.Num})
	case wasm.OpcodeI64Const:
		e.push(Value{Type: wasm.ValueTypeI64, Data: ins.Num})
	case wasm.OpcodeF32Const:
		e.push(Value{Type: wasm.ValueTypeF32, Data: ins.Num})
	case wasm.OpcodeF64Const:
		e.push(Value{Type: wasm.ValueTypeF64, Data: ins.Num})
	}
}

func (e *engine) execVariable(frame *Frame, ins *wasm.VariableInstruction) {
	switch ins.Op {
	case wasm.OpcodeLocalGet:
		if uint64(ins.VarIdx) >= uint64(len(frame.Locals)) {
			e.throw(fmt.Errorf("%w: local %d", ErrWrongInstanceAddress, ins.VarIdx))
		}
		e.push(frame.Locals[ins.VarIdx])
	case wasm.OpcodeLocalSet, wasm.OpcodeLocalTee:
		if uint64(ins.VarIdx) >= uint64(len(frame.Locals)) {
			e.throw(fmt.Errorf("%w: local %d", ErrWrongInstanceAddress, ins.VarIdx))
		}
		var v Value
		if ins.Op == wasm.OpcodeLocalTee {
			peeked, err := e.stack.Peek()
			if err != nil {
				e.throw(err)
			}
			v = peeked
		} else {
			v = e.pop()
		}
		if v.Type != frame.Locals[ins.VarIdx].Type {
			e.throw(fmt.Errorf("%w: local %d is %s but got %s", ErrTypeMismatch, ins.VarIdx,
				wasm.ValueTypeName(frame.Locals[ins.VarIdx].Type), wasm.ValueTypeName(v.Type)))
		}
		frame.Locals[ins.VarIdx] = v
	case wasm.OpcodeGlobalGet:
		g := e.globalInstance(frame, ins.VarIdx)
		e.push(g.Val)
	case wasm.OpcodeGlobalSet:
		g := e.globalInstance(frame, ins.VarIdx)
		if g.Type.Mut != wasm.ValueMutVar {
			e.throw(ErrModifyConstGlobal)
		}
		v := e.popTyped(g.Type.ValType)
		g.Val = v
	}
}

func (e *engine) globalInstance(frame *Frame, idx uint32) *GlobalInstance {
	m := frame.Function.ModuleInstance
	if uint64(idx) >= uint64(len(m.GlobalAddrs)) {
		e.throw(fmt.Errorf("%w: global %d", ErrWrongInstanceAddress, idx))
	}
	g, err := e.store.GetGlobal(m.GlobalAddrs[idx])
	if err != nil {
		e.throw(err)
	}
	return g
}

func (e *engine) popLabel() {
	if _, err := e.stack.PopLabel(); err != nil {
		e.throw(err)
	}
}

func (e *engine) push(v Value) {
	e.stack.Push(v)
}

func (e *engine) pop() Value {
	v, err := e.stack.Pop()
	if err != nil {
		e.throw(err)
	}
	return v
}

func (e *engine) popTyped(t wasm.ValueType) Value {
	v, err := e.stack.PopTyped(t)
	if err != nil {
		e.throw(err)
	}
	return v
}

func (e *engine) popI32() int32 {
	return e.popTyped(wasm.ValueTypeI32).I32()
}

func (e *engine) popU32() uint32 {
	return e.popTyped(wasm.ValueTypeI32).U32()
}

func (e *engine) popI64() int64 {
	return e.popTyped(wasm.ValueTypeI64).I64()
}

func (e *engine) popU64() uint64 {
	return e.popTyped(wasm.ValueTypeI64).U64()
}

func (e *engine) popF32() float32 {
	return e.popTyped(wasm.ValueTypeF32).F32()
}

func (e *engine) popF64() float64 {
	return e.popTyped(wasm.ValueTypeF64).F64()
}

func (e *engine) pushBool(b bool) {
	if b {
		e.push(NewI32(1))
	} else {
		e.push(NewI32(0))
	}
}
