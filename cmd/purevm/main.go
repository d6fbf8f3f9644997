// purevm CLI - assemble, inspect and execute pure stack-machine programs
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/holiman/uint256"
	"github.com/tliron/commonlog"

	"github.com/purevm/purevm/asm"
	"github.com/purevm/purevm/config"
	"github.com/purevm/purevm/server"
	"github.com/purevm/purevm/sexpr"
	"github.com/purevm/purevm/store"
	"github.com/purevm/purevm/vm"

	_ "github.com/tliron/commonlog/simple"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: purevm <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  asm <file>     Assemble source to hex bytecode\n")
	fmt.Fprintf(os.Stderr, "  dis <file>     Disassemble hex bytecode to a listing\n")
	fmt.Fprintf(os.Stderr, "  run [options] <file>   Assemble and execute\n")
	fmt.Fprintf(os.Stderr, "  serve [options]        Start the HTTP service\n\n")
	fmt.Fprintf(os.Stderr, "A file argument of \"-\" reads standard input.\n\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  purevm asm program.pvm\n")
	fmt.Fprintf(os.Stderr, "  echo '(mstore 0 42) (return 0 32)' | purevm run -\n")
	fmt.Fprintf(os.Stderr, "  purevm run -code -calldata 0xaabb bytecode.hex\n")
	fmt.Fprintf(os.Stderr, "  purevm serve -config purevm.toml\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "asm":
		err = cmdAsm(os.Args[2:])
	case "dis":
		err = cmdDis(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:])
	case "serve":
		err = cmdServe(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdAsm(args []string) error {
	fs := flag.NewFlagSet("asm", flag.ExitOnError)
	listing := fs.Bool("l", false, "Print an offset-annotated listing instead of hex")
	fs.Parse(args)

	src, err := readInput(fs.Args())
	if err != nil {
		return err
	}
	code, err := sexpr.Build(string(src))
	if err != nil {
		return err
	}
	if *listing {
		out, err := asm.FormatBytecode(code)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}
	fmt.Printf("%x\n", code)
	return nil
}

func cmdDis(args []string) error {
	fs := flag.NewFlagSet("dis", flag.ExitOnError)
	fs.Parse(args)

	in, err := readInput(fs.Args())
	if err != nil {
		return err
	}
	code, err := parseHex(string(in))
	if err != nil {
		return err
	}
	out, err := asm.FormatBytecode(code)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	rawCode := fs.Bool("code", false, "Treat the input as hex bytecode, not source")
	calldataHex := fs.String("calldata", "", "Hex calldata for the execution")
	valueDec := fs.String("value", "0", "Call value as a decimal integer")
	memLimit := fs.Int("mem", vm.DefaultMemoryLimit, "Memory growth limit in bytes")
	fs.Parse(args)

	in, err := readInput(fs.Args())
	if err != nil {
		return err
	}
	var code []byte
	if *rawCode {
		if code, err = parseHex(string(in)); err != nil {
			return err
		}
	} else {
		if code, err = sexpr.Build(string(in)); err != nil {
			return err
		}
	}
	calldata, err := parseHex(*calldataHex)
	if err != nil {
		return fmt.Errorf("calldata: %w", err)
	}
	value, err := uint256.FromDecimal(*valueDec)
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}

	res, err := vm.New(vm.WithMemoryLimit(*memLimit)).ExecBytecode(code, calldata, value)
	if err != nil {
		return err
	}
	for i := range res.Stack {
		fmt.Printf("stack[%d]: 0x%x\n", i, res.Stack[i].Bytes())
	}
	if res.Reverted {
		fmt.Printf("reverted: 0x%x\n", res.ReturnData)
		os.Exit(1)
	}
	if len(res.ReturnData) > 0 {
		fmt.Printf("return: 0x%x\n", res.ReturnData)
	}
	return nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "purevm.toml", "Configuration file")
	verbose := fs.Bool("v", false, "Verbose logging")
	fs.Parse(args)

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	artifacts, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer artifacts.Close()

	interp := vm.New(vm.WithMemoryLimit(cfg.VM.MemoryLimit))
	srv := server.New(interp, artifacts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	return srv.ListenAndServe(cfg.Server.Listen)
}

// readInput reads the single file argument, with "-" meaning stdin.
func readInput(args []string) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected exactly one input file, got %d", len(args))
	}
	if args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(args[0])
}

// parseHex decodes a hex string, tolerating a 0x prefix and whitespace.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
