package compiler

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/chazu/lunac/vm"
)

// Options configures a compilation. The zero value is usable.
type Options struct {
	// Strings interns names and string constants. A table may be shared
	// by concurrent compilations; nil means a private table.
	Strings *vm.StringTable

	// Barrier is told about every object stored into a prototype.
	// Nil means vm.NoBarrier.
	Barrier vm.Barrier
}

// Compile translates one chunk read from r into the prototype of its main
// function. chunkName is used in error messages and debug information:
// "@file" names a file and "=name" a literal name.
//
// On failure it returns a *Error describing the first problem found, or
// the reader's error wrapped.
func Compile(r io.Reader, chunkName string, opts *Options) (proto *vm.Prototype, err error) {
	if opts == nil {
		opts = &Options{}
	}
	strs := opts.Strings
	if strs == nil {
		strs = vm.NewStringTable()
	}
	barrier := opts.Barrier
	if barrier == nil {
		barrier = vm.NoBarrier
	}
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}

	defer func() {
		if rec := recover(); rec != nil {
			switch e := rec.(type) {
			case *Error:
				proto, err = nil, e
			case readError:
				proto, err = nil, fmt.Errorf("reading %s: %w", ChunkID(chunkName), e.err)
			default:
				panic(rec)
			}
		}
	}()

	lx := newLexer(br, chunkName, strs)
	p := &parser{
		lx:        lx,
		dyd:       &dynData{},
		envName:   strs.Intern("_ENV"),
		breakName: strs.Intern("break"),
		barrier:   barrier,
	}
	fs := &funcState{f: &vm.Prototype{}}
	p.mainFunc(fs)
	return fs.f, nil
}

// CompileString compiles source held in memory.
func CompileString(source, chunkName string) (*vm.Prototype, error) {
	return Compile(strings.NewReader(source), chunkName, nil)
}
