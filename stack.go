package wasmvm

import (
	"fmt"

	"github.com/wasmvm/wasmvm/wasm"
)

const (
	initialValueStackHeight = 1024
	initialLabelStackHeight = 16
	initialFrameStackHeight = 16
)

// Label marks the continuation of a structured block on the stack. Arity is
// the number of operands a branch to it must preserve; for a loop label the
// continuation is the start of the loop, so branches preserve nothing and
// the label survives the branch.
type Label struct {
	Arity   int
	IsLoop  bool
	ValueSP int
}

// Frame is the activation record of a function call.
type Frame struct {
	Function *FunctionInstance
	Locals   []Value
	Arity    int

	// ValueSP and LabelSP record stack heights at activation entry; popping
	// the frame unwinds both, keeping Arity return operands.
	ValueSP int
	LabelSP int
}

// StackManager owns the operand values, control labels and call frames of
// one executor. The three regions share one manager so that label arities
// and frame heights are always consulted together on a branch, as required
// by the structured control-flow rules.
type StackManager struct {
	values []Value
	labels []*Label
	frames []*Frame
}

func NewStackManager() *StackManager {
	return &StackManager{
		values: make([]Value, 0, initialValueStackHeight),
		labels: make([]*Label, 0, initialLabelStackHeight),
		frames: make([]*Frame, 0, initialFrameStackHeight),
	}
}

func (s *StackManager) Push(v Value) {
	s.values = append(s.values, v)
}

func (s *StackManager) Pop() (Value, error) {
	if len(s.values) == 0 {
		return Value{}, ErrStackUnderflow
	}
	v := s.values[len(s.values)-1]
	s.values = s.values[:len(s.values)-1]
	return v, nil
}

// PopTyped pops a value and verifies its tag.
func (s *StackManager) PopTyped(t wasm.ValueType) (Value, error) {
	v, err := s.Pop()
	if err != nil {
		return Value{}, err
	}
	if v.Type != t {
		return Value{}, fmt.Errorf("%w: expected %s but got %s",
			ErrTypeMismatch, wasm.ValueTypeName(t), wasm.ValueTypeName(v.Type))
	}
	return v, nil
}

func (s *StackManager) Peek() (Value, error) {
	if len(s.values) == 0 {
		return Value{}, ErrStackUnderflow
	}
	return s.values[len(s.values)-1], nil
}

// Len returns the operand count.
func (s *StackManager) Len() int {
	return len(s.values)
}

// GetBottomN returns the operand at absolute index n from the stack bottom.
// Host-call marshalling reads arguments this way: bottom-up, in declaration
// order.
func (s *StackManager) GetBottomN(n int) (Value, error) {
	if n < 0 || n >= len(s.values) {
		return Value{}, ErrStackUnderflow
	}
	return s.values[n], nil
}

func (s *StackManager) PushLabel(arity int, isLoop bool) {
	s.labels = append(s.labels, &Label{
		Arity:   arity,
		IsLoop:  isLoop,
		ValueSP: len(s.values),
	})
}

// PopLabel removes the top label, leaving operands in place: reaching the
// `end` of a block keeps its results on the stack.
func (s *StackManager) PopLabel() (*Label, error) {
	if len(s.labels) == 0 {
		return nil, ErrStackUnderflow
	}
	l := s.labels[len(s.labels)-1]
	s.labels = s.labels[:len(s.labels)-1]
	return l, nil
}

// LabelAt returns the label at relative depth from the top (0 = innermost).
func (s *StackManager) LabelAt(depth uint32) (*Label, error) {
	if uint64(depth) >= uint64(len(s.labels)) {
		return nil, ErrStackUnderflow
	}
	return s.labels[len(s.labels)-1-int(depth)], nil
}

// LabelDepth returns the number of labels on the stack, across all
// activations.
func (s *StackManager) LabelDepth() int {
	return len(s.labels)
}

// BranchTo unwinds to the label at relative depth: the top Arity operands
// are preserved (none for a loop label, whose continuation re-enters the
// loop body), everything above the label's recorded height is popped, then
// the preserved operands are pushed back. Forward labels are popped along
// with everything above them; a loop label stays for the next iteration.
func (s *StackManager) BranchTo(depth uint32) (*Label, error) {
	target, err := s.LabelAt(depth)
	if err != nil {
		return nil, err
	}

	preserve := target.Arity
	if target.IsLoop {
		preserve = 0
	}
	if len(s.values) < preserve || len(s.values)-preserve < target.ValueSP {
		return nil, ErrStackUnderflow
	}

	preserved := make([]Value, preserve)
	copy(preserved, s.values[len(s.values)-preserve:])
	s.values = s.values[:target.ValueSP]
	s.values = append(s.values, preserved...)

	popLabels := int(depth)
	if !target.IsLoop {
		popLabels++
	}
	s.labels = s.labels[:len(s.labels)-popLabels]
	return target, nil
}

func (s *StackManager) PushFrame(f *Frame) {
	f.ValueSP = len(s.values)
	f.LabelSP = len(s.labels)
	s.frames = append(s.frames, f)
}

// PopFrame unwinds the activation: the top Arity operands are preserved as
// the call's results, labels and operands above the frame are discarded.
func (s *StackManager) PopFrame() (*Frame, error) {
	if len(s.frames) == 0 {
		return nil, ErrStackUnderflow
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]

	if len(s.values) < f.Arity || len(s.values)-f.Arity < f.ValueSP {
		return nil, ErrStackUnderflow
	}
	preserved := make([]Value, f.Arity)
	copy(preserved, s.values[len(s.values)-f.Arity:])
	s.values = s.values[:f.ValueSP]
	s.values = append(s.values, preserved...)
	s.labels = s.labels[:f.LabelSP]
	return f, nil
}

// CurrentFrame returns the active frame, or nil outside any activation.
func (s *StackManager) CurrentFrame() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// FrameDepth returns the activation count.
func (s *StackManager) FrameDepth() int {
	return len(s.frames)
}

// Reset drops every value, label and frame.
func (s *StackManager) Reset() {
	s.values = s.values[:0]
	s.labels = s.labels[:0]
	s.frames = s.frames[:0]
}
