package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/lunac/compiler"
	"github.com/chazu/lunac/compiler/hash"
	"github.com/chazu/lunac/vm"
)

const (
	historyFile = ".lunac_history"
	promptMain  = "> "
	promptCont  = ">> "
)

// replSession holds the settings a REPL user can toggle.
type replSession struct {
	strs  *vm.StringTable
	full  bool // list constants, locals and upvalues
	strip bool
}

// runREPL reads chunks from the terminal and prints their bytecode.
func runREPL(out io.Writer) {
	fmt.Fprintf(out, "lunac %s  (:help for commands)\n", version)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	s := &replSession{strs: vm.NewStringTable()}
	for {
		code, ok := readChunk(ln, s.strs)
		if !ok {
			fmt.Fprintln(out)
			break
		}
		if strings.TrimSpace(code) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))

		if strings.HasPrefix(strings.TrimSpace(code), ":") {
			if done := s.command(out, code); done {
				break
			}
			continue
		}
		s.eval(out, code)
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
}

// readChunk reads lines until they form a complete chunk or fail with an
// error that more input cannot fix.
func readChunk(ln *liner.State, strs *vm.StringTable) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			// Ctrl+C aborts the current input.
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if b.Len() == len(line) && strings.HasPrefix(strings.TrimSpace(line), ":") {
			return src, true
		}
		if needsMore(src, strs) {
			continue
		}
		return src, true
	}
}

// needsMore reports whether src is an unfinished chunk.
func needsMore(src string, strs *vm.StringTable) bool {
	_, err := compiler.Compile(strings.NewReader(src), "=stdin", &compiler.Options{Strings: strs})
	return compiler.IsIncomplete(err)
}

// eval compiles one chunk and prints its listing or the error.
func (s *replSession) eval(out io.Writer, code string) {
	p, err := compiler.Compile(strings.NewReader(code), "=stdin", &compiler.Options{Strings: s.strs})
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}
	if s.strip {
		vm.Strip(p)
	}
	if err := vm.Listing(out, p, s.full); err != nil {
		fmt.Fprintln(out, err)
		return
	}
	fmt.Fprintf(out, "fingerprint %s\n", hash.Hex(p))
}

// command handles :help, :full, :strip and :quit.
func (s *replSession) command(out io.Writer, line string) (exit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":help", ":h", ":?":
		fmt.Fprintln(out, "  :full    toggle listing of constants, locals and upvalues")
		fmt.Fprintln(out, "  :strip   toggle stripping of debug information")
		fmt.Fprintln(out, "  :quit    leave")
	case ":full":
		s.full = !s.full
		fmt.Fprintf(out, "full listing %s\n", onOff(s.full))
	case ":strip":
		s.strip = !s.strip
		fmt.Fprintf(out, "strip %s\n", onOff(s.strip))
	case ":quit", ":q":
		return true
	default:
		fmt.Fprintf(out, "unknown command %s\n", fields[0])
	}
	return false
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
