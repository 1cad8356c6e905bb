package wasmvm

import (
	"fmt"

	"github.com/wasmvm/wasmvm/wasm"
)

// The snapshot hooks expose the instantiated module's globals and memories
// by module-local index, in ascending order. The payload format lives
// outside the core (see the snapshot package); these iterators and restore
// entry points are the whole contract.

func (ex *Executor) requireInstantiated(op string) error {
	if ex.state < StateInstantiated || ex.modInst == nil {
		return fmt.Errorf("%w: %s in %s", ErrWrongExecutorState, op, ex.state)
	}
	return nil
}

// IterateGlobals visits the module's globals in ascending index order.
func (ex *Executor) IterateGlobals(fn func(idx uint32, g *GlobalInstance) error) error {
	if err := ex.requireInstantiated("IterateGlobals"); err != nil {
		return err
	}
	for i, addr := range ex.modInst.GlobalAddrs {
		g, err := ex.store.GetGlobal(addr)
		if err != nil {
			return err
		}
		if err := fn(uint32(i), g); err != nil {
			return err
		}
	}
	return nil
}

// IterateMemories visits the module's memories in ascending index order.
func (ex *Executor) IterateMemories(fn func(idx uint32, m *MemoryInstance) error) error {
	if err := ex.requireInstantiated("IterateMemories"); err != nil {
		return err
	}
	for i, addr := range ex.modInst.MemoryAddrs {
		m, err := ex.store.GetMemory(addr)
		if err != nil {
			return err
		}
		if err := fn(uint32(i), m); err != nil {
			return err
		}
	}
	return nil
}

// RestoreGlobal overwrites the value of the module's idx-th global.
func (ex *Executor) RestoreGlobal(idx uint32, val Value) error {
	if err := ex.requireInstantiated("RestoreGlobal"); err != nil {
		return err
	}
	if uint64(idx) >= uint64(len(ex.modInst.GlobalAddrs)) {
		return fmt.Errorf("%w: global %d", ErrWrongInstanceAddress, idx)
	}
	g, err := ex.store.GetGlobal(ex.modInst.GlobalAddrs[idx])
	if err != nil {
		return err
	}
	if g.Type.ValType != val.Type {
		return fmt.Errorf("%w: global %d is %s but got %s", ErrTypeMismatch, idx,
			wasm.ValueTypeName(g.Type.ValType), wasm.ValueTypeName(val.Type))
	}
	g.Val = val
	return nil
}

// SetMemoryDataPageSize resizes the module's idx-th memory to the given page
// count, zero-filling on growth. Restores use it before writing page bytes.
func (ex *Executor) SetMemoryDataPageSize(idx uint32, pages uint32) error {
	if err := ex.requireInstantiated("SetMemoryDataPageSize"); err != nil {
		return err
	}
	m, err := ex.memoryAt(idx)
	if err != nil {
		return err
	}
	if pages > wasm.MemoryMaxPages {
		return fmt.Errorf("%w: %d pages", ErrMemoryOutOfBounds, pages)
	}
	want := uint64(pages) * wasm.PageSize
	switch have := uint64(len(m.Buffer)); {
	case want > have:
		m.Buffer = append(m.Buffer, make([]byte, want-have)...)
	case want < have:
		m.Buffer = m.Buffer[:want]
	}
	return nil
}

// SetMemoryWithBytes copies src into the module's idx-th memory at offset.
func (ex *Executor) SetMemoryWithBytes(src []byte, idx uint32, offset uint32) error {
	if err := ex.requireInstantiated("SetMemoryWithBytes"); err != nil {
		return err
	}
	m, err := ex.memoryAt(idx)
	if err != nil {
		return err
	}
	return m.SetBytes(offset, src)
}

// GetMemoryToBytes copies size bytes starting at offset out of the module's
// idx-th memory.
func (ex *Executor) GetMemoryToBytes(idx uint32, offset uint32, size uint64) ([]byte, error) {
	if err := ex.requireInstantiated("GetMemoryToBytes"); err != nil {
		return nil, err
	}
	m, err := ex.memoryAt(idx)
	if err != nil {
		return nil, err
	}
	if uint64(offset)+size > uint64(len(m.Buffer)) {
		return nil, ErrMemoryOutOfBounds
	}
	out := make([]byte, size)
	copy(out, m.Buffer[offset:])
	return out, nil
}

// GetMemoryToBytesAll copies out the module's idx-th memory and reports its
// page count.
func (ex *Executor) GetMemoryToBytesAll(idx uint32) ([]byte, uint32, error) {
	if err := ex.requireInstantiated("GetMemoryToBytesAll"); err != nil {
		return nil, 0, err
	}
	m, err := ex.memoryAt(idx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]byte, len(m.Buffer))
	copy(out, m.Buffer)
	return out, m.PageCount(), nil
}

func (ex *Executor) memoryAt(idx uint32) (*MemoryInstance, error) {
	if uint64(idx) >= uint64(len(ex.modInst.MemoryAddrs)) {
		return nil, fmt.Errorf("%w: memory %d", ErrWrongInstanceAddress, idx)
	}
	return ex.store.GetMemory(ex.modInst.MemoryAddrs[idx])
}
