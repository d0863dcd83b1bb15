package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/lunac/compiler"
	"github.com/chazu/lunac/vm"
)

func mustCompile(t *testing.T, src string) *vm.Prototype {
	t.Helper()
	p, err := compiler.CompileString(src, "=test")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return p
}

// ---------------------------------------------------------------------------
// Text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix_SimpleWord(t *testing.T) {
	prefix := extractPrefix("local value", protocol.Position{Line: 0, Character: 11})
	if prefix != "value" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "value")
	}
}

func TestExtractPrefix_MultiLine(t *testing.T) {
	text := "first line\nsecond line\nprin"
	prefix := extractPrefix(text, protocol.Position{Line: 2, Character: 4})
	if prefix != "prin" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "prin")
	}
}

func TestExtractPrefix_StopsAtPunctuation(t *testing.T) {
	prefix := extractPrefix("t.field_1", protocol.Position{Line: 0, Character: 9})
	if prefix != "field_1" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "field_1")
	}
}

func TestExtractPrefix_CursorAtBeginning(t *testing.T) {
	prefix := extractPrefix("hello", protocol.Position{Line: 0, Character: 0})
	if prefix != "" {
		t.Errorf("extractPrefix at position 0 = %q, want empty string", prefix)
	}
}

func TestExtractPrefix_LineBeyondDocument(t *testing.T) {
	prefix := extractPrefix("single line", protocol.Position{Line: 5, Character: 0})
	if prefix != "" {
		t.Errorf("extractPrefix beyond document = %q, want empty string", prefix)
	}
}

func TestExtractPrefix_CharacterBeyondLine(t *testing.T) {
	prefix := extractPrefix("abc", protocol.Position{Line: 0, Character: 40})
	if prefix != "abc" {
		t.Errorf("extractPrefix = %q, want %q", prefix, "abc")
	}
}

func TestIsName(t *testing.T) {
	for name, want := range map[string]bool{
		"print": true,
		"_x1":   true,
		"1x":    false,
		"a b":   false,
		"end":   false,
		"":      false,
	} {
		if got := isName(name); got != want {
			t.Errorf("isName(%q) = %v, want %v", name, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestDiagnostics_None(t *testing.T) {
	d := diagnostics(nil, "x = 1")
	if d == nil || len(d) != 0 {
		t.Fatalf("diagnostics(nil) = %#v, want empty non-nil slice", d)
	}
}

func TestDiagnostics_SpansLine(t *testing.T) {
	text := "local a = 1\nlocal b = = 2\n"
	_, err := compiler.CompileString(text, "=test")
	ce, ok := err.(*compiler.Error)
	if !ok {
		t.Fatalf("expected *compiler.Error, got %v", err)
	}
	d := diagnostics(ce, text)
	if len(d) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(d))
	}
	if d[0].Range.Start.Line != 1 || d[0].Range.End.Line != 1 {
		t.Errorf("range = %+v, want line 1", d[0].Range)
	}
	if d[0].Range.End.Character != protocol.UInteger(len("local b = = 2")) {
		t.Errorf("end character = %d", d[0].Range.End.Character)
	}
	if d[0].Message != "unexpected symbol near '='" {
		t.Errorf("message = %q", d[0].Message)
	}
	if d[0].Code == nil || d[0].Code.Value != "syntax" {
		t.Errorf("code = %+v, want syntax", d[0].Code)
	}
}

// ---------------------------------------------------------------------------
// Prototype-backed features
// ---------------------------------------------------------------------------

const sample = `local function add(a, b)
  return a + b
end
total = add(1, 2)
`

func TestInnermost(t *testing.T) {
	p := mustCompile(t, sample)
	if q := innermost(p, 2); q != p.Prototypes[0] {
		t.Errorf("line 2 should be inside add")
	}
	if q := innermost(p, 4); q != p {
		t.Errorf("line 4 should be in the main chunk")
	}
}

func TestHoverText(t *testing.T) {
	p := mustCompile(t, sample)

	body := hoverText(p, 2)
	if !strings.Contains(body, "function <1,3>") {
		t.Errorf("hover should name the enclosing function:\n%s", body)
	}
	if !strings.Contains(body, "ADD") || !strings.Contains(body, "RETURN1") {
		t.Errorf("hover should list ADD and RETURN1:\n%s", body)
	}

	body = hoverText(p, 4)
	if !strings.Contains(body, "main chunk") || !strings.Contains(body, "SETTABUP") {
		t.Errorf("hover for line 4:\n%s", body)
	}

	if body := hoverText(p, 40); body != "" {
		t.Errorf("hover past the end = %q, want empty", body)
	}
}

func TestGlobalNames(t *testing.T) {
	p := mustCompile(t, "print(x)\ny = 1\nlocal t = {}\nt.field = 2\n")
	got := globalNames(p)
	want := []string{"print", "x", "y"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("globalNames = %v, want %v", got, want)
	}
}

func TestComplete(t *testing.T) {
	p := mustCompile(t, "local counter = 0\ncount_all = counter\n")
	labels := map[string]string{}
	for _, item := range complete(p, 2, "co") {
		labels[item.Label] = *item.Detail
	}
	if labels["counter"] != "local" {
		t.Errorf("counter: %q", labels["counter"])
	}
	if labels["count_all"] != "global" {
		t.Errorf("count_all: %q", labels["count_all"])
	}
	if _, ok := labels["end"]; ok {
		t.Errorf("'end' does not match prefix 'co'")
	}

	kw := complete(nil, 1, "whi")
	if len(kw) != 1 || kw[0].Label != "while" {
		t.Errorf("keyword completion = %+v", kw)
	}
}

func TestSymbols(t *testing.T) {
	src := "local function outer()\n  local function inner() end\nend\n"
	p := mustCompile(t, src)
	syms := symbols(p, strings.Split(src, "\n"))
	if len(syms) != 1 {
		t.Fatalf("got %d symbols, want 1", len(syms))
	}
	if syms[0].Name != "local function outer()" {
		t.Errorf("name = %q", syms[0].Name)
	}
	if syms[0].Range.Start.Line != 0 || syms[0].Range.End.Line != 2 {
		t.Errorf("range = %+v", syms[0].Range)
	}
	if len(syms[0].Children) != 1 || syms[0].Children[0].Name != "local function inner() end" {
		t.Errorf("children = %+v", syms[0].Children)
	}
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

func TestWorker_KeepsLastGoodPrototype(t *testing.T) {
	w := NewWorker()
	defer w.Stop()

	uri := "file:///tmp/a.lua"
	res, err := w.Do(func(ws *workspace) any { return ws.update(uri, "x = 1") })
	if err != nil {
		t.Fatal(err)
	}
	doc := res.(*document)
	if doc.err != nil || doc.proto == nil {
		t.Fatalf("first compile: err=%v proto=%v", doc.err, doc.proto)
	}
	good := doc.proto

	res, _ = w.Do(func(ws *workspace) any { return ws.update(uri, "x = ") })
	doc = res.(*document)
	if doc.err == nil {
		t.Fatal("expected a compile error")
	}
	if doc.err.Source != "@/tmp/a.lua" {
		t.Errorf("chunk name = %q", doc.err.Source)
	}
	if doc.proto != good {
		t.Error("failed compile should keep the previous prototype")
	}
}

func TestWorker_RecoversPanics(t *testing.T) {
	w := NewWorker()
	defer w.Stop()

	_, err := w.Do(func(ws *workspace) any { panic("boom") })
	if err == nil || err.Error() != "boom" {
		t.Fatalf("err = %v, want boom", err)
	}
	// The worker keeps serving after a panic.
	res, err := w.Do(func(ws *workspace) any { return len(ws.docs) })
	if err != nil || res.(int) != 0 {
		t.Fatalf("res=%v err=%v", res, err)
	}
}
