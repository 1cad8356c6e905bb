// Package wasmvm executes WebAssembly 1.0 (MVP) modules with an AST-walking
// interpreter. An Executor owns one store, one stack and one in-flight
// activation: it is single-threaded by contract, though distinct executors
// may run in parallel as long as they share no mutable state.
package wasmvm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wasmvm/wasmvm/wasm"
)

// State is the executor's lifecycle position. Transitions are monotonic
// except for Reset.
type State int

const (
	StateInited State = iota
	StateModuleSet
	StateInstantiated
	StateArgsSet
	StateExecuted
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateInited:
		return "Inited"
	case StateModuleSet:
		return "ModuleSet"
	case StateInstantiated:
		return "Instantiated"
	case StateArgsSet:
		return "ArgsSet"
	case StateExecuted:
		return "Executed"
	case StateFinished:
		return "Finished"
	}
	return "unknown"
}

// mainModuleName names the instance created by Instantiate in the store.
const mainModuleName = "main"

// Executor drives one module through
// SetModule -> Instantiate -> SetArgs -> Run -> GetRets -> Reset.
type Executor struct {
	state    State
	logger   *zap.Logger
	env      *Env
	registry *HostFunctionRegistry
	store    *Store
	stack    *StackManager

	maxCallDepth  int
	startFuncName string

	module    *wasm.Module
	modInst   *ModuleInstance
	startFunc *FunctionInstance
}

type Option func(*Executor)

func WithLogger(l *zap.Logger) Option {
	return func(ex *Executor) { ex.logger = l }
}

// WithCostLimit enables metering: every instruction costs one unit and host
// functions add their declared cost. Zero disables metering.
func WithCostLimit(limit uint64) Option {
	return func(ex *Executor) { ex.env.CostLimit = limit }
}

// WithCallStackDepth bounds the number of nested activations.
func WithCallStackDepth(depth int) Option {
	return func(ex *Executor) { ex.maxCallDepth = depth }
}

func NewExecutor(opts ...Option) *Executor {
	ex := &Executor{
		state:        StateInited,
		logger:       zap.NewNop(),
		env:          &Env{},
		registry:     NewHostFunctionRegistry(),
		store:        NewStore(),
		stack:        NewStackManager(),
		maxCallDepth: defaultMaxCallStackDepth,
	}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

// State returns the current lifecycle state.
func (ex *Executor) State() State {
	return ex.state
}

// Env returns the executor's environment, exposing cost accounting.
func (ex *Executor) Env() *Env {
	return ex.env
}

// Store returns the executor's store. External collaborators (snapshot
// encoders, host libraries) read instances through it; mutating it outside
// the documented restore hooks is undefined.
func (ex *Executor) Store() *Store {
	return ex.store
}

// SetHostFunction registers a host function descriptor. Legal in any state
// except while Run is in flight.
func (ex *Executor) SetHostFunction(f HostFunction) error {
	if err := ex.registry.Register(f); err != nil {
		return err
	}
	ex.logger.Debug("host function registered",
		zap.String("module", f.ModuleName()),
		zap.String("func", f.FuncName()),
		zap.String("type", f.Type().String()))
	return nil
}

// SetStartFuncName overrides the binary's start section with an exported
// function name. Legal up to and including the Instantiated state.
func (ex *Executor) SetStartFuncName(name string) error {
	if ex.state > StateInstantiated {
		return fmt.Errorf("%w: SetStartFuncName in %s", ErrWrongExecutorState, ex.state)
	}
	ex.startFuncName = name
	return nil
}

// SetModule takes ownership of a decoded module.
func (ex *Executor) SetModule(module *wasm.Module) error {
	if ex.state != StateInited {
		return fmt.Errorf("%w: SetModule in %s", ErrWrongExecutorState, ex.state)
	}
	ex.module = module
	ex.state = StateModuleSet
	ex.logger.Debug("module set")
	return nil
}

// Instantiate allocates the runtime instances and resolves the start
// function: an explicit SetStartFuncName wins over the binary's start
// section.
func (ex *Executor) Instantiate() error {
	if ex.state != StateModuleSet {
		return fmt.Errorf("%w: Instantiate in %s", ErrWrongExecutorState, ex.state)
	}

	inst, err := ex.store.Instantiate(ex.module, mainModuleName, ex.registry)
	if err != nil {
		ex.state = StateFinished
		ex.logger.Warn("instantiation failed", zap.Error(err))
		return err
	}
	ex.modInst = inst

	start, err := ex.resolveStartFunction(inst)
	if err != nil {
		ex.state = StateFinished
		return err
	}
	ex.startFunc = start

	ex.state = StateInstantiated
	ex.logger.Debug("module instantiated",
		zap.String("start", start.Name),
		zap.Int("functions", len(inst.FunctionAddrs)),
		zap.Int("memories", len(inst.MemoryAddrs)))
	return nil
}

func (ex *Executor) resolveStartFunction(inst *ModuleInstance) (*FunctionInstance, error) {
	if ex.startFuncName != "" {
		exp, ok := inst.Exports[ex.startFuncName]
		if !ok {
			return nil, fmt.Errorf("%w: export %q", ErrFuncNotFound, ex.startFuncName)
		}
		if exp.Kind != wasm.ExportKindFunction {
			return nil, fmt.Errorf("%w: export %q is a %s", ErrFuncNotFound,
				ex.startFuncName, wasm.ExportKindName(exp.Kind))
		}
		return ex.store.GetFunction(exp.Addr)
	}
	if ex.module.StartSection != nil {
		return ex.store.GetFunction(inst.FunctionAddrs[*ex.module.StartSection])
	}
	return nil, fmt.Errorf("%w: no start function", ErrFuncNotFound)
}

// SetArgs pushes the start function's arguments; arity and types must match
// its signature.
func (ex *Executor) SetArgs(args []Value) error {
	if ex.state != StateInstantiated {
		return fmt.Errorf("%w: SetArgs in %s", ErrWrongExecutorState, ex.state)
	}

	params := ex.startFunc.Signature.Params
	if len(args) != len(params) {
		return fmt.Errorf("%w: want %d but got %d", ErrWrongArgumentsCount, len(params), len(args))
	}
	for i, arg := range args {
		if arg.Type != params[i] {
			return fmt.Errorf("%w: argument %d is %s but declared %s", ErrTypeMismatch,
				i, wasm.ValueTypeName(arg.Type), wasm.ValueTypeName(params[i]))
		}
	}

	for _, arg := range args {
		ex.stack.Push(arg)
	}
	ex.state = StateArgsSet
	return nil
}

// Run interprets the start function. On success the operand stack holds
// exactly the declared return arity; on a trap the stack is unwound and the
// executor finishes.
func (ex *Executor) Run() error {
	if ex.state != StateArgsSet {
		return fmt.Errorf("%w: Run in %s", ErrWrongExecutorState, ex.state)
	}

	eng := newEngine(ex.store, ex.stack, ex.env, ex.maxCallDepth)
	if err := eng.Call(ex.startFunc); err != nil {
		ex.state = StateFinished
		ex.stack.Reset()
		ex.logger.Warn("execution trapped", zap.Error(err))
		return err
	}

	if n := ex.stack.Len(); n != len(ex.startFunc.Signature.Results) {
		ex.state = StateFinished
		ex.stack.Reset()
		return fmt.Errorf("%w: %d values left for %d results",
			ErrStackWrongEmpty, n, len(ex.startFunc.Signature.Results))
	}

	ex.state = StateExecuted
	ex.logger.Debug("execution finished", zap.Uint64("cost", ex.env.Cost()))
	return nil
}

// GetRets drains the start function's return values, bottom-up.
func (ex *Executor) GetRets() ([]Value, error) {
	if ex.state != StateExecuted {
		return nil, fmt.Errorf("%w: GetRets in %s", ErrWrongExecutorState, ex.state)
	}

	arity := len(ex.startFunc.Signature.Results)
	rets := make([]Value, arity)
	for i := arity - 1; i >= 0; i-- {
		v, err := ex.stack.Pop()
		if err != nil {
			return nil, err
		}
		rets[i] = v
	}
	ex.state = StateFinished
	return rets, nil
}

// Reset clears the stack and cost accounting from any state; force also
// drops the loaded module and the whole store. Either way the executor is
// back at Inited.
func (ex *Executor) Reset(force bool) {
	ex.stack.Reset()
	ex.env.ResetCost()
	if force {
		ex.module = nil
		ex.modInst = nil
		ex.startFunc = nil
		ex.store = NewStore()
	}
	ex.state = StateInited
	ex.logger.Debug("executor reset", zap.Bool("force", force))
}
