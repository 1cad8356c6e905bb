// Package snapshot materialises an executor's globals and linear memory as
// a JSON document, and restores them onto an instantiated executor whose
// module matches. The core only contracts the iteration order (ascending
// index); the encoding here is one collaborator among possible others.
package snapshot

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/wasmvm/wasmvm"
	"github.com/wasmvm/wasmvm/wasm"
)

type Snapshot struct {
	Memories []Memory `json:"memories"`
	Globals  []Global `json:"globals"`
}

type Memory struct {
	Index     uint32 `json:"idx"`
	PageCount uint32 `json:"page_count"`
	// Data is the base64 encoding of the full page bytes.
	Data string `json:"data"`
}

type Global struct {
	Index uint32 `json:"idx"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Take captures the executor's memories and globals.
func Take(ex *wasmvm.Executor) (*Snapshot, error) {
	s := &Snapshot{}

	err := ex.IterateMemories(func(idx uint32, m *wasmvm.MemoryInstance) error {
		s.Memories = append(s.Memories, Memory{
			Index:     idx,
			PageCount: m.PageCount(),
			Data:      base64.StdEncoding.EncodeToString(m.Buffer),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot memories: %w", err)
	}

	err = ex.IterateGlobals(func(idx uint32, g *wasmvm.GlobalInstance) error {
		enc, err := encodeValue(g.Val)
		if err != nil {
			return err
		}
		s.Globals = append(s.Globals, Global{
			Index: idx,
			Type:  wasm.ValueTypeName(g.Type.ValType),
			Value: enc,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot globals: %w", err)
	}
	return s, nil
}

// Restore writes a snapshot back. The executor must be instantiated with a
// module whose globals and memories match the snapshot's shape.
func Restore(ex *wasmvm.Executor, s *Snapshot) error {
	for _, m := range s.Memories {
		data, err := base64.StdEncoding.DecodeString(m.Data)
		if err != nil {
			return fmt.Errorf("memory %d: decode data: %w", m.Index, err)
		}
		if uint64(len(data)) != uint64(m.PageCount)*wasm.PageSize {
			return fmt.Errorf("memory %d: %d bytes inconsistent with %d pages", m.Index, len(data), m.PageCount)
		}
		if err := ex.SetMemoryDataPageSize(m.Index, m.PageCount); err != nil {
			return fmt.Errorf("memory %d: %w", m.Index, err)
		}
		if err := ex.SetMemoryWithBytes(data, m.Index, 0); err != nil {
			return fmt.Errorf("memory %d: %w", m.Index, err)
		}
	}

	for _, g := range s.Globals {
		v, err := decodeValue(g.Type, g.Value)
		if err != nil {
			return fmt.Errorf("global %d: %w", g.Index, err)
		}
		if err := ex.RestoreGlobal(g.Index, v); err != nil {
			return fmt.Errorf("global %d: %w", g.Index, err)
		}
	}
	return nil
}

// Encode writes the snapshot as JSON.
func (s *Snapshot) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Decode reads a snapshot from JSON.
func Decode(r io.Reader) (*Snapshot, error) {
	s := &Snapshot{}
	if err := json.NewDecoder(r).Decode(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Values are stringified per type. Floats round-trip through their bit
// pattern so NaN payloads and signed zeroes survive.
func encodeValue(v wasmvm.Value) (string, error) {
	switch v.Type {
	case wasm.ValueTypeI32:
		return strconv.FormatInt(int64(v.I32()), 10), nil
	case wasm.ValueTypeI64:
		return strconv.FormatInt(v.I64(), 10), nil
	case wasm.ValueTypeF32:
		return strconv.FormatUint(uint64(math.Float32bits(v.F32())), 10), nil
	case wasm.ValueTypeF64:
		return strconv.FormatUint(math.Float64bits(v.F64()), 10), nil
	}
	return "", fmt.Errorf("unknown value type %#x", v.Type)
}

func decodeValue(typ, s string) (wasmvm.Value, error) {
	switch typ {
	case "i32":
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return wasmvm.Value{}, err
		}
		return wasmvm.NewI32(int32(v)), nil
	case "i64":
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return wasmvm.Value{}, err
		}
		return wasmvm.NewI64(v), nil
	case "f32":
		bits, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return wasmvm.Value{}, err
		}
		return wasmvm.NewF32(math.Float32frombits(uint32(bits))), nil
	case "f64":
		bits, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return wasmvm.Value{}, err
		}
		return wasmvm.NewF64(math.Float64frombits(bits)), nil
	}
	return wasmvm.Value{}, fmt.Errorf("unknown value type %q", typ)
}
