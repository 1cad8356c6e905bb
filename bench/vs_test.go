//go:build amd64 && cgo && !windows

// Wasmtime can only be used in amd64 with CGO.
// Wasmer doesn't link on Windows.
package bench

import (
	"errors"
	"testing"

	"github.com/bytecodealliance/wasmtime-go"
	"github.com/stretchr/testify/require"
	"github.com/wasmerio/wasmer-go/wasmer"
)

// TestFacIter_Runtimes ensures the code in the comparison benchmarks works
// as expected.
func TestFacIter_Runtimes(t *testing.T) {
	t.Run("wasmer-go", func(t *testing.T) {
		store, instance, fn, err := newWasmerForFacIterBench()
		require.NoError(t, err)
		defer store.Close()
		defer instance.Close()

		res, err := fn(int64(facIterIn))
		require.NoError(t, err)
		require.Equal(t, int64(facIterExp), res)
	})

	t.Run("wasmtime-go", func(t *testing.T) {
		store, run, err := newWasmtimeForFacIterBench()
		require.NoError(t, err)

		res, err := run.Call(store, facIterIn)
		require.NoError(t, err)
		require.Equal(t, int64(facIterExp), res)
	})
}

func BenchmarkFacIter_Init_WasmerGo(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store, instance, _, err := newWasmerForFacIterBench()
		if err != nil {
			b.Fatal(err)
		}
		store.Close()
		instance.Close()
	}
}

func BenchmarkFacIter_Init_WasmtimeGo(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := newWasmtimeForFacIterBench(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFacIter_Invoke_WasmerGo(b *testing.B) {
	store, instance, fn, err := newWasmerForFacIterBench()
	if err != nil {
		b.Fatal(err)
	}
	defer store.Close()
	defer instance.Close()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := fn(int64(facIterIn)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFacIter_Invoke_WasmtimeGo(b *testing.B) {
	store, run, err := newWasmtimeForFacIterBench()
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := run.Call(store, facIterIn); err != nil {
			b.Fatal(err)
		}
	}
}

// newWasmerForFacIterBench returns the store and instance that scope the
// factorial function. Note: these should be closed.
func newWasmerForFacIterBench() (*wasmer.Store, *wasmer.Instance, wasmer.NativeFunction, error) {
	store := wasmer.NewStore(wasmer.NewEngine())
	importObject := wasmer.NewImportObject()
	module, err := wasmer.NewModule(store, facWasm)
	if err != nil {
		return nil, nil, nil, err
	}
	instance, err := wasmer.NewInstance(module, importObject)
	if err != nil {
		return nil, nil, nil, err
	}
	f, err := instance.Exports.GetFunction("fac-iter")
	if err != nil {
		return nil, nil, nil, err
	}
	if f == nil {
		return nil, nil, nil, errors.New("not a function")
	}
	return store, instance, f, nil
}

func newWasmtimeForFacIterBench() (*wasmtime.Store, *wasmtime.Func, error) {
	store := wasmtime.NewStore(wasmtime.NewEngine())
	module, err := wasmtime.NewModule(store.Engine, facWasm)
	if err != nil {
		return nil, nil, err
	}

	instance, err := wasmtime.NewInstance(store, module, nil)
	if err != nil {
		return nil, nil, err
	}

	run := instance.GetFunc(store, "fac-iter")
	if run == nil {
		return nil, nil, errors.New("not a function")
	}
	return store, run, nil
}
