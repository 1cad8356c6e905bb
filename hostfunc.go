package wasmvm

import (
	"fmt"

	"github.com/wasmvm/wasmvm/wasm"
)

// HostFunction is a native function exposed to Wasm. Call receives borrowed
// handles scoped to the invocation: the environment for cost accounting, the
// stack manager for argument marshalling and the importing module's memory
// (nil when the module has none). A non-nil error traps the invoker.
type HostFunction interface {
	ModuleName() string
	FuncName() string
	Type() *wasm.FunctionType
	Cost() uint64
	Call(env *Env, stack *StackManager, mem *MemoryInstance) error
}

// HostFunctionRegistry maps (module name, function name) to a descriptor.
// Registration must be quiesced before instantiation runs concurrently.
type HostFunctionRegistry struct {
	funcs map[string]HostFunction
}

func NewHostFunctionRegistry() *HostFunctionRegistry {
	return &HostFunctionRegistry{funcs: map[string]HostFunction{}}
}

func hostFuncKey(moduleName, funcName string) string {
	return moduleName + "." + funcName
}

func (r *HostFunctionRegistry) Register(f HostFunction) error {
	key := hostFuncKey(f.ModuleName(), f.FuncName())
	if _, ok := r.funcs[key]; ok {
		return fmt.Errorf("host function %s already registered", key)
	}
	r.funcs[key] = f
	return nil
}

func (r *HostFunctionRegistry) Lookup(moduleName, funcName string) (HostFunction, bool) {
	f, ok := r.funcs[hostFuncKey(moduleName, funcName)]
	return f, ok
}

// GoFunc adapts a Go function to the host ABI: the declared parameter types
// drive a typed bottom-N pop, and the optional single result is pushed with
// the declared tag.
type GoFunc struct {
	module string
	name   string
	typ    *wasm.FunctionType
	cost   uint64
	fn     func(env *Env, mem *MemoryInstance, args []Value) (Value, error)
}

// NewGoFunc builds a descriptor. result is wasm.ValueTypeNone for a void
// function; fn's returned Value is then ignored.
func NewGoFunc(module, name string, params []wasm.ValueType, result wasm.ValueType, cost uint64,
	fn func(env *Env, mem *MemoryInstance, args []Value) (Value, error)) *GoFunc {
	results := []wasm.ValueType{}
	if result != wasm.ValueTypeNone {
		results = []wasm.ValueType{result}
	}
	return &GoFunc{
		module: module,
		name:   name,
		typ:    &wasm.FunctionType{Params: params, Results: results},
		cost:   cost,
		fn:     fn,
	}
}

func (g *GoFunc) ModuleName() string       { return g.module }
func (g *GoFunc) FuncName() string         { return g.name }
func (g *GoFunc) Type() *wasm.FunctionType { return g.typ }
func (g *GoFunc) Cost() uint64             { return g.cost }

// Call marshals arguments off the stack, invokes the body and pushes the
// result. The bottom N operands of the top-of-stack region are read in
// declaration order; tag mismatches fail the call rather than silently
// reinterpreting.
func (g *GoFunc) Call(env *Env, stack *StackManager, mem *MemoryInstance) error {
	n := len(g.typ.Params)
	if stack.Len() < n {
		return fmt.Errorf("%w: %s.%s needs %d arguments but stack holds %d",
			ErrCallFunctionError, g.module, g.name, n, stack.Len())
	}

	base := stack.Len() - n
	args := make([]Value, n)
	for i := 0; i < n; i++ {
		v, err := stack.GetBottomN(base + i)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCallFunctionError, err)
		}
		if v.Type != g.typ.Params[i] {
			return fmt.Errorf("%w: argument %d of %s.%s is %s but declared %s",
				ErrCallFunctionError, i, g.module, g.name,
				wasm.ValueTypeName(v.Type), wasm.ValueTypeName(g.typ.Params[i]))
		}
		args[i] = v
	}
	for i := 0; i < n; i++ {
		if _, err := stack.Pop(); err != nil {
			return fmt.Errorf("%w: %v", ErrCallFunctionError, err)
		}
	}

	ret, err := g.fn(env, mem, args)
	if err != nil {
		return err
	}

	if len(g.typ.Results) == 1 {
		if ret.Type != g.typ.Results[0] {
			return fmt.Errorf("%w: result of %s.%s is %s but declared %s",
				ErrCallFunctionError, g.module, g.name,
				wasm.ValueTypeName(ret.Type), wasm.ValueTypeName(g.typ.Results[0]))
		}
		stack.Push(ret)
	}
	return nil
}
