// Package server implements a language server for lunac sources. Every
// open document is compiled on each change; compile errors are published
// as diagnostics and the generated bytecode is shown on hover.
package server

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/lunac/compiler"
	"github.com/chazu/lunac/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "lunac-lsp"

var log = commonlog.GetLogger("lunac.lsp")

// LspServer bridges LSP editor features to the compiler via Worker.
type LspServer struct {
	worker *Worker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP(version string) *LspServer {
	s := &LspServer{
		worker:  NewWorker(),
		docs:    make(map[string]string),
		version: version,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion:     s.textDocumentCompletion,
		TextDocumentHover:          s.textDocumentHover,
		TextDocumentDocumentSymbol: s.textDocumentDocumentSymbol,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Infof("initializing %s %s", lspName, s.version)

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DocumentSymbolProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	s.worker.Do(func(ws *workspace) any {
		delete(ws.docs, string(uri))
		return nil
	})

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

// compiled returns the last good prototype for uri, or nil.
func (s *LspServer) compiled(uri protocol.DocumentUri) *vm.Prototype {
	res, err := s.worker.Do(func(ws *workspace) any {
		if doc, ok := ws.docs[string(uri)]; ok {
			return doc.proto
		}
		return (*vm.Prototype)(nil)
	})
	if err != nil {
		return nil
	}
	p, _ := res.(*vm.Prototype)
	return p
}

func (s *LspServer) text(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.text(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(s.compiled(params.TextDocument.URI), int(params.Position.Line)+1, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	if _, ok := s.text(params.TextDocument.URI); !ok {
		return nil, nil
	}
	p := s.compiled(params.TextDocument.URI)
	if p == nil {
		return nil, nil
	}
	body := hoverText(p, int(params.Position.Line)+1)
	if body == "" {
		return nil, nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: body,
		},
	}, nil
}

func (s *LspServer) textDocumentDocumentSymbol(ctx *glsp.Context, params *protocol.DocumentSymbolParams) (any, error) {
	text, ok := s.text(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	p := s.compiled(params.TextDocument.URI)
	if p == nil {
		return nil, nil
	}
	return symbols(p, strings.Split(text, "\n")), nil
}

// --- Prototype-backed logic ---

// innermost returns the most deeply nested function whose body spans line.
func innermost(p *vm.Prototype, line int) *vm.Prototype {
	for _, child := range p.Prototypes {
		if child.LineDefined <= line && line <= child.LastLineDefined {
			return innermost(child, line)
		}
	}
	return p
}

// hoverText renders the instructions generated for a source line as a
// markdown code block.
func hoverText(p *vm.Prototype, line int) string {
	q := innermost(p, line)
	var b strings.Builder
	for pc := range q.Code {
		if q.Line(pc) == line {
			fmt.Fprintf(&b, "%s\n", vm.FormatInstruction(q, pc))
		}
	}
	if b.Len() == 0 {
		return ""
	}
	where := "main chunk"
	if q != p {
		where = fmt.Sprintf("function <%d,%d>", q.LineDefined, q.LastLineDefined)
	}
	return fmt.Sprintf("**%s**, %d registers\n\n```\n%s```", where, q.MaxStackSize, b.String())
}

// complete offers reserved words, the locals of the function enclosing
// line and the names the chunk reads from _ENV.
func complete(p *vm.Prototype, line int, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	seen := map[string]bool{}
	add := func(name string, kind protocol.CompletionItemKind, detail string) {
		if seen[name] || !strings.HasPrefix(name, prefix) {
			return
		}
		seen[name] = true
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}

	if p != nil {
		q := innermost(p, line)
		for _, lv := range q.LocVars {
			if lv.Name != nil && !strings.HasPrefix(lv.Name.String(), "(") {
				add(lv.Name.String(), protocol.CompletionItemKindVariable, "local")
			}
		}
		for _, name := range globalNames(p) {
			add(name, protocol.CompletionItemKindVariable, "global")
		}
	}
	for _, word := range compiler.ReservedWords() {
		add(word, protocol.CompletionItemKindKeyword, "keyword")
	}

	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

// globalNames collects the string keys the chunk indexes _ENV with.
func globalNames(p *vm.Prototype) []string {
	var names []string
	p.Walk(func(q *vm.Prototype) {
		for _, i := range q.Code {
			op := i.Opcode()
			if op != vm.OpGetTabUp && op != vm.OpSetTabUp {
				continue
			}
			b := i.B()
			if op == vm.OpSetTabUp {
				b = i.A()
			}
			if b >= len(q.Upvalues) || q.Upvalues[b].Name == nil || q.Upvalues[b].Name.String() != "_ENV" {
				continue
			}
			key := i.C()
			if op == vm.OpSetTabUp {
				key = i.B()
			}
			if key < len(q.K) {
				if k := q.K[key]; k.Type == vm.TypeString && isName(k.Str.String()) {
					names = append(names, k.Str.String())
				}
			}
		}
	})
	slices.Sort(names)
	return slices.Compact(names)
}

// symbols lists every function in the chunk, named after the first line
// of its definition.
func symbols(p *vm.Prototype, lines []string) []protocol.DocumentSymbol {
	var out []protocol.DocumentSymbol
	for _, child := range p.Prototypes {
		name := fmt.Sprintf("function <%d>", child.LineDefined)
		if l := child.LineDefined - 1; l >= 0 && l < len(lines) {
			if t := strings.TrimSpace(lines[l]); t != "" {
				name = t
			}
		}
		const maxName = 60
		if len(name) > maxName {
			name = name[:maxName] + "..."
		}
		rng := lineRange(child.LineDefined, child.LastLineDefined)
		detail := fmt.Sprintf("%d params, %d instructions", child.NumParams, len(child.Code))
		out = append(out, protocol.DocumentSymbol{
			Name:           name,
			Detail:         &detail,
			Kind:           protocol.SymbolKindFunction,
			Range:          rng,
			SelectionRange: lineRange(child.LineDefined, child.LineDefined),
			Children:       symbols(child, lines),
		})
	}
	return out
}

func lineRange(first, last int) protocol.Range {
	start := max(first-1, 0)
	end := max(last-1, start)
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(start), Character: 0},
		End:   protocol.Position{Line: protocol.UInteger(end), Character: 0},
	}
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	res, err := s.worker.Do(func(ws *workspace) any {
		return ws.update(string(uri), text).err
	})
	if err != nil {
		log.Errorf("compiling %s: %s", uri, err)
		return
	}
	ce, _ := res.(*compiler.Error)

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics(ce, text),
	})
}

// diagnostics converts a compile error into a diagnostic spanning the
// offending line.
func diagnostics(ce *compiler.Error, text string) []protocol.Diagnostic {
	if ce == nil {
		return []protocol.Diagnostic{}
	}
	lines := strings.Split(text, "\n")
	line := max(ce.Line-1, 0)
	width := 0
	if line < len(lines) {
		width = len(lines[line])
	}
	msg := ce.Msg
	if ce.Near != "" {
		msg += " near " + ce.Near
	}
	severity := protocol.DiagnosticSeverityError
	source := lspName
	code := protocol.IntegerOrString{Value: ce.Kind.String()}
	return []protocol.Diagnostic{{
		Range: protocol.Range{
			Start: protocol.Position{Line: protocol.UInteger(line), Character: 0},
			End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(width)},
		},
		Severity: &severity,
		Code:     &code,
		Source:   &source,
		Message:  msg,
	}}
}

// --- Text extraction helpers ---

// extractPrefix returns the identifier fragment before the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))

	start := col
	for start > 0 && isNameByte(line[start-1]) {
		start--
	}
	return line[start:col]
}

func isNameByte(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}

func isName(s string) bool {
	if s == "" || unicode.IsDigit(rune(s[0])) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isNameByte(s[i]) || s[i] >= 0x80 {
			return false
		}
	}
	return !compiler.IsReserved(s)
}

func boolPtr(b bool) *bool {
	return &b
}
