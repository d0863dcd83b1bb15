// Markdown example checker.
//
// Extracts ```lua fences from markdown files and compiles each one. A fence
// whose info string carries error=<text> must fail with a message containing
// <text>; every other fence must compile.
//
// Usage:
//
//	lunac doctest README.md docs/*.md
//	lunac doctest -v README.md      # Show each block as it runs
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/chazu/lunac/compiler"
	"github.com/chazu/lunac/vm"
)

// ---------------------------------------------------------------------------
// Test model
// ---------------------------------------------------------------------------

// luaBlock is one ```lua fence.
type luaBlock struct {
	File      string
	Line      int    // line of the first source line in the markdown file
	Source    string
	WantError string // expected error substring, empty when the block must compile
}

// doctestResult captures the outcome of a single block.
type doctestResult struct {
	Block  luaBlock
	Passed bool
	Detail string // why the block failed
}

// ---------------------------------------------------------------------------
// Entry point
// ---------------------------------------------------------------------------

// handleDoctestCommand is the entry point for `lunac doctest`.
func handleDoctestCommand(args []string) int {
	fset := flag.NewFlagSet("doctest", flag.ContinueOnError)
	verbose := fset.Bool("v", false, "Show every block")
	if err := fset.Parse(args); err != nil {
		return 2
	}
	if fset.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: doctest needs at least one markdown file")
		return 2
	}

	startTime := time.Now()
	var results []doctestResult
	for _, path := range fset.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		strs := vm.NewStringTable()
		for _, b := range extractLuaBlocks(path, data) {
			results = append(results, runLuaBlock(b, strs))
		}
	}
	elapsed := time.Since(startTime)

	printDoctestResults(results, *verbose)

	passed, failed := tallyDoctestResults(results)
	fmt.Println(dtColorDim + strings.Repeat("─", 40) + dtColorReset)
	switch {
	case failed > 0:
		fmt.Printf("Results: %s%d passed%s, %s%d failed%s, %d total (%s)\n",
			dtColorGreen, passed, dtColorReset, dtColorRed, failed, dtColorReset,
			len(results), elapsed.Round(time.Millisecond))
		return 1
	case len(results) > 0:
		fmt.Printf("Results: %s%d passed%s, %d total (%s)\n",
			dtColorGreen, passed, dtColorReset, len(results), elapsed.Round(time.Millisecond))
	default:
		fmt.Println("No lua blocks found.")
	}
	return 0
}

// ---------------------------------------------------------------------------
// Extraction
// ---------------------------------------------------------------------------

// extractLuaBlocks returns the ```lua fences of a markdown document in
// document order.
func extractLuaBlocks(file string, source []byte) []luaBlock {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var blocks []luaBlock
	ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fence, ok := node.(*ast.FencedCodeBlock)
		if !ok || string(fence.Language(source)) != "lua" {
			return ast.WalkContinue, nil
		}
		b := luaBlock{
			File:   file,
			Line:   fenceLine(fence, source),
			Source: fenceContent(fence, source),
		}
		if fence.Info != nil {
			for _, field := range strings.Fields(string(fence.Info.Segment.Value(source)))[1:] {
				if want, ok := strings.CutPrefix(field, "error="); ok {
					b.WantError = strings.ReplaceAll(want, "_", " ")
				}
			}
		}
		blocks = append(blocks, b)
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

func fenceContent(fence *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := fence.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

// fenceLine returns the markdown line holding the first line of the
// fence's content.
func fenceLine(fence *ast.FencedCodeBlock, source []byte) int {
	if fence.Lines().Len() == 0 {
		return 1
	}
	start := fence.Lines().At(0).Start
	return 1 + bytes.Count(source[:start], []byte("\n"))
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// runLuaBlock compiles one block. Error messages name the block by its
// position in the markdown file.
func runLuaBlock(b luaBlock, strs *vm.StringTable) doctestResult {
	chunk := fmt.Sprintf("=%s:%d", b.File, b.Line)
	_, err := compiler.Compile(strings.NewReader(b.Source), chunk, &compiler.Options{Strings: strs})

	switch {
	case b.WantError == "" && err != nil:
		return doctestResult{Block: b, Detail: err.Error()}
	case b.WantError == "":
		return doctestResult{Block: b, Passed: true}
	case err == nil:
		return doctestResult{Block: b, Detail: fmt.Sprintf("compiled, expected error containing %q", b.WantError)}
	case !strings.Contains(err.Error(), b.WantError):
		return doctestResult{Block: b, Detail: fmt.Sprintf("error %q does not contain %q", err, b.WantError)}
	default:
		return doctestResult{Block: b, Passed: true}
	}
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

// ANSI color codes.
const (
	dtColorReset = "\033[0m"
	dtColorBold  = "\033[1m"
	dtColorRed   = "\033[31m"
	dtColorGreen = "\033[32m"
	dtColorDim   = "\033[90m"
)

// printDoctestResults renders the results grouped by file.
func printDoctestResults(results []doctestResult, verbose bool) {
	lastFile := ""
	for _, r := range results {
		if !verbose && r.Passed {
			continue
		}
		if r.Block.File != lastFile {
			if lastFile != "" {
				fmt.Println()
			}
			fmt.Printf("%s%s%s\n", dtColorBold, r.Block.File, dtColorReset)
			lastFile = r.Block.File
		}
		first, _, _ := strings.Cut(strings.TrimSpace(r.Block.Source), "\n")
		if r.Passed {
			fmt.Printf("  %s✓%s line %d: %s\n", dtColorGreen, dtColorReset, r.Block.Line, first)
			continue
		}
		fmt.Printf("  %s✗%s line %d: %s\n", dtColorRed, dtColorReset, r.Block.Line, first)
		fmt.Printf("    %s%s%s\n", dtColorRed, r.Detail, dtColorReset)
	}
	if lastFile != "" {
		fmt.Println()
	}
}

// tallyDoctestResults counts passed and failed blocks.
func tallyDoctestResults(results []doctestResult) (passed, failed int) {
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}
	return
}
