// lunac - compiles Lua sources to register bytecode
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/chazu/lunac/cache"
	"github.com/chazu/lunac/compiler"
	"github.com/chazu/lunac/server"
	"github.com/chazu/lunac/vm"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.1.0"

var log = commonlog.GetLogger("lunac")

// countFlag is a boolean flag that counts how often it is given.
type countFlag int

func (c *countFlag) String() string   { return strconv.Itoa(int(*c)) }
func (c *countFlag) IsBoolFlag() bool { return true }
func (c *countFlag) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if v {
		*c++
	} else {
		*c = 0
	}
	return nil
}

// options are the flags of a plain compile run.
type options struct {
	list      int
	parseOnly bool
	strip     bool
	output    string
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "build":
			os.Exit(handleBuildCommand(os.Args[2:]))
		case "doctest":
			os.Exit(handleDoctestCommand(os.Args[2:]))
		}
	}

	var list, verbose countFlag
	flag.Var(&list, "l", "List the generated bytecode (twice for constants, locals and upvalues)")
	parseOnly := flag.Bool("p", false, "Parse only, do not write output")
	strip := flag.Bool("s", false, "Strip debug information")
	output := flag.String("o", "lunac.out", "Output file")
	flag.Var(&verbose, "v", "Verbose logging (repeat for more)")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	serveMode := flag.Bool("serve", false, "Start language server on stdio")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: lunac [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles Lua source files. A file named '-' is read from stdin.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		fmt.Fprintf(os.Stderr, "  lunac build [-o dir] [-force]  # Compile the project described by lunac.toml\n")
		fmt.Fprintf(os.Stderr, "  lunac doctest files.md...      # Compile the ```lua blocks of markdown files\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lunac -l hello.lua             # Compile and list\n")
		fmt.Fprintf(os.Stderr, "  lunac -p src/*.lua             # Syntax check only\n")
		fmt.Fprintf(os.Stderr, "  lunac -i                       # Start REPL\n")
	}
	flag.Parse()

	commonlog.Configure(int(verbose), nil)

	if *showVersion {
		fmt.Printf("lunac %s\n", version)
		return
	}

	if *serveMode {
		if err := server.NewLSP(version).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	paths := flag.Args()
	if *interactive || len(paths) == 0 {
		runREPL(os.Stdout)
		return
	}

	opts := options{list: int(list), parseOnly: *parseOnly, strip: *strip, output: *output}
	if err := compileFiles(paths, opts, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "lunac: %v\n", err)
		os.Exit(1)
	}
}

// compileFiles compiles every path, printing listings to out. Unless
// parseOnly is set the single compiled chunk is written to opts.output.
func compileFiles(paths []string, opts options, stdin io.Reader, out io.Writer) error {
	if !opts.parseOnly && len(paths) > 1 {
		return errors.New("only one input file may be written; use -p to check several")
	}

	strs := vm.NewStringTable()
	var last *vm.Prototype
	for _, path := range paths {
		p, err := compileFile(path, strs, stdin)
		if err != nil {
			return err
		}
		log.Debugf("compiled %s: %d instructions, %d functions", path, len(p.Code), len(p.Prototypes))
		if opts.strip {
			vm.Strip(p)
		}
		if opts.list > 0 {
			if err := vm.Listing(out, p, opts.list > 1); err != nil {
				return err
			}
		}
		last = p
	}

	if opts.parseOnly || last == nil {
		return nil
	}
	data, err := cache.MarshalPrototype(last)
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.output, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", opts.output, err)
	}
	return nil
}

func compileFile(path string, strs *vm.StringTable, stdin io.Reader) (*vm.Prototype, error) {
	if path == "-" {
		return compiler.Compile(stdin, "=stdin", &compiler.Options{Strings: strs})
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", path, err)
	}
	return compiler.Compile(bytes.NewReader(skipShebang(src)), "@"+path, &compiler.Options{Strings: strs})
}

// skipShebang blanks a leading "#" line, keeping the newline so line
// numbers stay right.
func skipShebang(src []byte) []byte {
	if len(src) == 0 || src[0] != '#' {
		return src
	}
	if i := bytes.IndexByte(src, '\n'); i >= 0 {
		return src[i:]
	}
	return nil
}
