package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/chazu/lunac/vm"
)

func TestNeedsMore(t *testing.T) {
	strs := vm.NewStringTable()
	tests := []struct {
		src  string
		want bool
	}{
		{"x = 1", false},
		{"function f()", true},
		{"if x then", true},
		{"t = {1, 2,", true},
		{"s = [[open", true},
		{"x = = 1", false},
		{"for i = 1, 3 do print(i) end", false},
	}
	for _, tc := range tests {
		be.Equal(t, needsMore(tc.src, strs), tc.want)
	}
}

func TestReplEval(t *testing.T) {
	s := &replSession{strs: vm.NewStringTable()}
	var out bytes.Buffer

	s.eval(&out, "local a = 1")
	be.True(t, strings.Contains(out.String(), "main <stdin:0,0>"))
	be.True(t, strings.Contains(out.String(), "LOADI"))
	be.True(t, strings.Contains(out.String(), "fingerprint "))

	out.Reset()
	s.eval(&out, "x = = 1")
	be.Equal(t, out.String(), "stdin:1: unexpected symbol near '='\n")
}

func TestReplCommands(t *testing.T) {
	s := &replSession{strs: vm.NewStringTable()}
	var out bytes.Buffer

	be.Equal(t, s.command(&out, ":full"), false)
	be.True(t, s.full)
	be.Equal(t, s.command(&out, ":strip"), false)
	be.True(t, s.strip)

	out.Reset()
	s.eval(&out, "local a = 'k'")
	be.True(t, strings.Contains(out.String(), "main <?:0,0>"))
	be.True(t, strings.Contains(out.String(), "constants (1)"))

	out.Reset()
	be.Equal(t, s.command(&out, ":bogus"), false)
	be.Equal(t, out.String(), "unknown command :bogus\n")

	be.Equal(t, s.command(&out, ":quit"), true)
}
