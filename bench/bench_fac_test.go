package bench

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmvm/wasmvm"
	"github.com/wasmvm/wasmvm/wasm"
)

const facIterIn = 25

// facIterExp is 25! modulo 2^64: 25! does not fit 64 bits, and the i64
// multiplication in fac-iter wraps.
const facIterExp = uint64(7034535277573963776)

func newFacIterExecutor() (*wasmvm.Executor, error) {
	module, err := wasm.DecodeModule(facWasm)
	if err != nil {
		return nil, err
	}
	ex := wasmvm.NewExecutor()
	if err := ex.SetStartFuncName("fac-iter"); err != nil {
		return nil, err
	}
	if err := ex.SetModule(module); err != nil {
		return nil, err
	}
	if err := ex.Instantiate(); err != nil {
		return nil, err
	}
	return ex, nil
}

// TestFacIter ensures the code in BenchmarkFacIter works as expected.
func TestFacIter(t *testing.T) {
	for i := 0; i < 1000; i++ {
		ex, err := newFacIterExecutor()
		require.NoError(t, err)
		require.NoError(t, ex.SetArgs([]wasmvm.Value{wasmvm.NewI64(facIterIn)}))
		require.NoError(t, ex.Run())
		rets, err := ex.GetRets()
		require.NoError(t, err)
		require.Equal(t, facIterExp, rets[0].U64())
	}
}

// BenchmarkFacIter_Init tracks the time spent readying a function for use.
func BenchmarkFacIter_Init(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := newFacIterExecutor(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFacIter_Invoke measures the interpretation itself.
func BenchmarkFacIter_Invoke(b *testing.B) {
	ex, err := newFacIterExecutor()
	if err != nil {
		b.Fatal(err)
	}
	module, err := wasm.DecodeModule(facWasm)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := ex.SetArgs([]wasmvm.Value{wasmvm.NewI64(facIterIn)}); err != nil {
			b.Fatal(err)
		}
		if err := ex.Run(); err != nil {
			b.Fatal(err)
		}
		if _, err := ex.GetRets(); err != nil {
			b.Fatal(err)
		}
		b.StopTimer()
		ex = wasmvm.NewExecutor()
		if err := ex.SetStartFuncName("fac-iter"); err != nil {
			b.Fatal(err)
		}
		if err := ex.SetModule(module); err != nil {
			b.Fatal(err)
		}
		if err := ex.Instantiate(); err != nil {
			b.Fatal(err)
		}
		b.StartTimer()
	}
}
