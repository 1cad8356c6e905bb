package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wasmvm/wasmvm"
	"github.com/wasmvm/wasmvm/snapshot"
	"github.com/wasmvm/wasmvm/wasm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "wasmvm",
		Short:        "Run WebAssembly modules with the wasmvm interpreter",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd())
	return root
}

type runFlags struct {
	funcName    string
	args        []string
	costLimit   uint64
	snapshotOut string
	restoreIn   string
	verbose     bool
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <module.wasm>",
		Short: "Instantiate a module and invoke its start function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.funcName, "func", "", "exported function to run instead of the start section")
	cmd.Flags().StringSliceVar(&flags.args, "args", nil, "arguments as type:value, e.g. i32:3,i64:42")
	cmd.Flags().Uint64Var(&flags.costLimit, "cost-limit", 0, "trap after this many cost units (0 = unlimited)")
	cmd.Flags().StringVar(&flags.snapshotOut, "snapshot-out", "", "write a JSON snapshot of globals and memory after the run")
	cmd.Flags().StringVar(&flags.restoreIn, "restore", "", "restore a JSON snapshot before the run")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func run(path string, flags *runFlags) error {
	logger := zap.NewNop()
	if flags.verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer l.Sync() //nolint:errcheck
		logger = l
	}

	binary, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	module, err := wasm.DecodeModule(binary)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	ex := wasmvm.NewExecutor(
		wasmvm.WithLogger(logger),
		wasmvm.WithCostLimit(flags.costLimit),
	)

	if err := ex.SetHostFunction(printI32()); err != nil {
		return err
	}
	if flags.funcName != "" {
		if err := ex.SetStartFuncName(flags.funcName); err != nil {
			return err
		}
	}

	if err := ex.SetModule(module); err != nil {
		return err
	}
	if err := ex.Instantiate(); err != nil {
		return err
	}

	if flags.restoreIn != "" {
		if err := restoreSnapshot(ex, flags.restoreIn); err != nil {
			return err
		}
	}

	args, err := parseArgs(flags.args)
	if err != nil {
		return err
	}
	if err := ex.SetArgs(args); err != nil {
		return err
	}
	if err := ex.Run(); err != nil {
		return err
	}

	if flags.snapshotOut != "" {
		if err := writeSnapshot(ex, flags.snapshotOut); err != nil {
			return err
		}
	}

	rets, err := ex.GetRets()
	if err != nil {
		return err
	}
	for _, ret := range rets {
		fmt.Println(ret)
	}
	return nil
}

// printI32 is the one built-in host function: env.print_i32 writes its
// argument to stdout.
func printI32() wasmvm.HostFunction {
	return wasmvm.NewGoFunc("env", "print_i32",
		[]wasm.ValueType{wasm.ValueTypeI32}, wasm.ValueTypeNone, 1,
		func(env *wasmvm.Env, mem *wasmvm.MemoryInstance, args []wasmvm.Value) (wasmvm.Value, error) {
			fmt.Println(args[0].I32())
			return wasmvm.Value{}, nil
		})
}

func parseArgs(raw []string) ([]wasmvm.Value, error) {
	args := make([]wasmvm.Value, 0, len(raw))
	for _, s := range raw {
		typ, val, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("argument %q is not type:value", s)
		}
		switch typ {
		case "i32":
			v, err := strconv.ParseInt(val, 0, 32)
			if err != nil {
				return nil, fmt.Errorf("argument %q: %w", s, err)
			}
			args = append(args, wasmvm.NewI32(int32(v)))
		case "i64":
			v, err := strconv.ParseInt(val, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %q: %w", s, err)
			}
			args = append(args, wasmvm.NewI64(v))
		case "f32":
			v, err := strconv.ParseFloat(val, 32)
			if err != nil {
				return nil, fmt.Errorf("argument %q: %w", s, err)
			}
			args = append(args, wasmvm.NewF32(float32(v)))
		case "f64":
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %q: %w", s, err)
			}
			args = append(args, wasmvm.NewF64(v))
		default:
			return nil, fmt.Errorf("argument %q: unknown type %q", s, typ)
		}
	}
	return args, nil
}

func writeSnapshot(ex *wasmvm.Executor, path string) error {
	s, err := snapshot.Take(ex)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.Encode(f)
}

func restoreSnapshot(ex *wasmvm.Executor, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s, err := snapshot.Decode(f)
	if err != nil {
		return err
	}
	return snapshot.Restore(ex, s)
}
