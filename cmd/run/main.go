package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/wippyai/jitlink/objlink"
	"github.com/wippyai/jitlink/runtime"
	"github.com/wippyai/jitlink/wasm"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to a relocatable wasm object")
		demo        = flag.Bool("demo", false, "Use the built-in two-function object")
		funcName    = flag.String("func", "", "Function to call (optional)")
		argsStr     = flag.String("args", "", "Integer arguments, comma-separated")
		list        = flag.Bool("list", false, "List exported functions and exit")
		dump        = flag.Bool("dump", false, "Dump link graphs before and after fixup to stderr")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *wasmFile == "" && !*demo {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-func name] [-args 1,2] [-dump]")
		fmt.Fprintln(os.Stderr, "       run -demo [-dump]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	name, data, err := loadObject(*wasmFile, *demo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "run: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(name, data); err != nil {
			fmt.Fprintf(os.Stderr, "run: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(name, data, *funcName, *argsStr, *list, *dump); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
}

// loadObject reads the object from disk, or builds the two-function
// demo: callee returns 7, entry calls callee.
func loadObject(wasmFile string, demo bool) (string, []byte, error) {
	if demo {
		b := wasm.NewBuilder()
		sig := wasm.FuncType{Results: []wasm.ValType{wasm.I32}}
		b.Func("entry", sig).Call("callee").Export()
		b.Func("callee", sig).I32Const(7).Export()
		return "demo", b.Encode(), nil
	}

	data, err := os.ReadFile(wasmFile)
	if err != nil {
		return "", nil, fmt.Errorf("read file: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(wasmFile), filepath.Ext(wasmFile))
	return name, data, nil
}

func run(name string, data []byte, funcName, argsStr string, listOnly, dump bool) error {
	ctx := context.Background()

	rt, err := runtime.New(ctx)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	if dump {
		rt.AddPlugin(objlink.NewDumpPlugin(os.Stderr))
	}

	if err := rt.AddObject(ctx, name, data); err != nil {
		return fmt.Errorf("add object: %w", err)
	}

	symbols := rt.Symbols(name)
	fmt.Printf("Object: %s\n", name)
	fmt.Printf("Exported functions:\n")
	for _, sym := range symbols {
		fmt.Printf("  %s\n", sym)
	}

	if listOnly {
		return nil
	}

	// No function specified: try common entry points, then a sole
	// export.
	if funcName == "" {
		for _, candidate := range []string{"entry", "_start", "run", "main"} {
			for _, sym := range symbols {
				if sym == candidate {
					funcName = candidate
					break
				}
			}
			if funcName != "" {
				break
			}
		}
		if funcName == "" && len(symbols) == 1 {
			funcName = symbols[0]
		}
		if funcName == "" {
			fmt.Printf("\nNo function specified and no common entry point found.\n")
			fmt.Printf("Use -func to specify a function to call.\n")
			return nil
		}
	}

	var args []uint64
	if argsStr != "" {
		for _, field := range strings.Split(argsStr, ",") {
			v, err := strconv.ParseUint(strings.TrimSpace(field), 10, 64)
			if err != nil {
				return fmt.Errorf("parse argument %q: %w", field, err)
			}
			args = append(args, v)
		}
	}

	fn, err := rt.Lookup(name, funcName)
	if err != nil {
		return err
	}
	res, err := fn.Call(ctx, args...)
	if err != nil {
		return err
	}

	argText := make([]string, len(args))
	for i, a := range args {
		argText[i] = strconv.FormatUint(a, 10)
	}
	fmt.Printf("\n---Result---\n")
	if len(res) == 0 {
		fmt.Printf("%s(%s) = ok\n", funcName, strings.Join(argText, ", "))
		return nil
	}
	resText := make([]string, len(res))
	for i, r := range res {
		resText[i] = strconv.FormatUint(r, 10)
	}
	fmt.Printf("%s(%s) = %s\n", funcName, strings.Join(argText, ", "), strings.Join(resText, ", "))
	return nil
}
