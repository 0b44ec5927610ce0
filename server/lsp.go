// Package server exposes template editing features over the Language
// Server Protocol.
package server

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/leafkit/compiler"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "leaf-lsp"

// Locator maps a template name to its file, for go-to-definition on
// #inline targets. render.FileSource implements it.
type Locator interface {
	Path(name string) (string, bool)
}

// LspServer serves diagnostics, completion, hover and navigation for open
// templates.
type LspServer struct {
	compiler *compiler.Compiler
	locator  Locator

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
	log     commonlog.Logger
}

// NewLSP creates a language server compiling with c. locator may be nil,
// which disables #inline navigation.
func NewLSP(c *compiler.Compiler, locator Locator) *LspServer {
	s := &LspServer{
		compiler: c,
		locator:  locator,
		docs:     make(map[string]string),
		version:  "0.1.0",
		log:      commonlog.GetLogger("leafkit.server"),
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
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
	s.log.Infof("%s initializing", lspName)

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"#", "."},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

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

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	prefix, tag := extractPrefix(text, params.Position)
	if prefix == "" && !tag {
		return nil, nil
	}
	return s.complete(prefix, tag), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	word, tag := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return s.hover(word, tag), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}
	if locs := s.definition(uri, text, params.Position); len(locs) > 0 {
		return locs, nil
	}
	return nil, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	word, _ := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return s.references(word), nil
}

// --- Registry-backed logic ---

func (s *LspServer) complete(prefix string, tag bool) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)
	reg := s.compiler.Registry()

	if tag {
		// Block names after '#'
		for _, name := range reg.BlockNames() {
			if !strings.HasPrefix(strings.ToLower(name), lowerPrefix) {
				continue
			}
			kind := protocol.CompletionItemKindKeyword
			detail := "block"
			if k, ok := reg.Block(name); ok {
				detail = "#" + k.Signature()
			}
			nameCopy := name
			items = append(items, protocol.CompletionItem{
				Label:      name,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &nameCopy,
			})
		}
		return items
	}

	// Functions and methods
	for _, name := range reg.FunctionNames() {
		if !strings.HasPrefix(strings.ToLower(name), lowerPrefix) {
			continue
		}
		kind := protocol.CompletionItemKindFunction
		detail := "function"
		if len(reg.Functions(name)) == 0 {
			detail = "method"
		}
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}
	return items
}

func (s *LspServer) hover(word string, tag bool) *protocol.Hover {
	reg := s.compiler.Registry()
	var b strings.Builder

	if tag {
		// "#endfor" describes #for.
		k, ok := reg.Block(word)
		if !ok {
			k, ok = reg.Block(strings.TrimPrefix(word, "end"))
		}
		if !ok {
			return nil
		}
		fmt.Fprintf(&b, "**#%s** block\n\n`#%s`", k.Name(), k.Signature())
	} else {
		functions := reg.Functions(word)
		methods := reg.Methods(word)
		if len(functions) == 0 && len(methods) == 0 {
			return nil
		}
		fmt.Fprintf(&b, "**%s**\n\n", word)
		for _, f := range functions {
			fmt.Fprintf(&b, "- `%s%s -> %s`\n", word, f.Signature(), f.Returns())
		}
		for _, f := range methods {
			fmt.Fprintf(&b, "- `x.%s%s -> %s` (method)\n", word, f.Signature()[1:], f.Returns())
		}
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

var (
	inlinePattern = regexp.MustCompile(`#inline\(\s*"([^"]*)"`)
	// definePattern matches #define and #evaluate names; group 2 is the name.
	definePattern = regexp.MustCompile(`#(define|evaluate)\(\s*([A-Za-z_][A-Za-z0-9_]*)`)
)

// definition resolves #inline("name") to the template file and a name
// used in #evaluate to its #define in the same document.
func (s *LspServer) definition(uri protocol.DocumentUri, text string, pos protocol.Position) []protocol.Location {
	offset, ok := offsetOf(text, pos)
	if !ok {
		return nil
	}

	for _, m := range inlinePattern.FindAllStringSubmatchIndex(text, -1) {
		if offset < m[2] || offset > m[3] {
			continue
		}
		if s.locator == nil {
			return nil
		}
		p, ok := s.locator.Path(text[m[2]:m[3]])
		if !ok {
			return nil
		}
		return []protocol.Location{{URI: fileURI(p)}}
	}

	word, _ := extractWord(text, pos)
	if word == "" {
		return nil
	}
	var locations []protocol.Location
	for _, m := range definePattern.FindAllStringSubmatchIndex(text, -1) {
		if text[m[2]:m[3]] == "define" && text[m[4]:m[5]] == word {
			locations = append(locations, protocol.Location{
				URI:   uri,
				Range: rangeOf(text, m[4], m[5]),
			})
		}
	}
	return locations
}

// references finds #define and #evaluate uses of name across open
// documents.
func (s *LspServer) references(name string) []protocol.Location {
	s.mu.Lock()
	uris := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	docs := make([]string, len(uris))
	for i, uri := range uris {
		docs[i] = s.docs[uri]
	}
	s.mu.Unlock()

	var locations []protocol.Location
	for i, text := range docs {
		for _, m := range definePattern.FindAllStringSubmatchIndex(text, -1) {
			if text[m[4]:m[5]] == name {
				locations = append(locations, protocol.Location{
					URI:   protocol.DocumentUri(uris[i]),
					Range: rangeOf(text, m[4], m[5]),
				})
			}
		}
	}
	return locations
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := s.diagnose(uri, text)
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnose compiles text and reports its error, if any.
func (s *LspServer) diagnose(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	name := strings.TrimSuffix(path.Base(string(uri)), path.Ext(string(uri)))
	_, err := s.compiler.Compile(name, text)
	if err == nil {
		return []protocol.Diagnostic{}
	}

	var r protocol.Range
	msg := err.Error()
	var se *compiler.SyntaxError
	if errors.As(err, &se) {
		start := protocol.Position{
			Line:      protocol.UInteger(max(se.Pos.Line-1, 0)),
			Character: protocol.UInteger(max(se.Pos.Column-1, 0)),
		}
		end := start
		end.Character++
		r = protocol.Range{Start: start, End: end}
		msg = se.Message
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	return []protocol.Diagnostic{{
		Range:    r,
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	}}
}

// --- Text extraction helpers ---

func isIdentRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// extractPrefix returns the identifier fragment before the cursor for
// completion, and whether it directly follows '#'.
func extractPrefix(text string, pos protocol.Position) (string, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", false
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}

	tag := start > 0 && line[start-1] == '#'
	return line[start:col], tag
}

// extractWord returns the full identifier under the cursor, and whether it
// is a tag name.
func extractWord(text string, pos protocol.Position) (string, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", false
	}
	line := lines[pos.Line]
	col := min(int(pos.Character), len(line))

	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isIdentRune(rune(line[end])) {
		end++
	}

	if start == end {
		return "", false
	}
	return line[start:end], start > 0 && line[start-1] == '#'
}

// offsetOf converts a position to a byte offset in text.
func offsetOf(text string, pos protocol.Position) (int, bool) {
	offset := 0
	for line := 0; line < int(pos.Line); line++ {
		i := strings.IndexByte(text[offset:], '\n')
		if i < 0 {
			return 0, false
		}
		offset += i + 1
	}
	lineEnd := len(text)
	if i := strings.IndexByte(text[offset:], '\n'); i >= 0 {
		lineEnd = offset + i
	}
	return min(offset+int(pos.Character), lineEnd), true
}

func positionOf(text string, offset int) protocol.Position {
	before := text[:offset]
	line := strings.Count(before, "\n")
	col := offset - (strings.LastIndexByte(before, '\n') + 1)
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)}
}

func rangeOf(text string, start, end int) protocol.Range {
	return protocol.Range{Start: positionOf(text, start), End: positionOf(text, end)}
}

func fileURI(p string) protocol.DocumentUri {
	return protocol.DocumentUri("file://" + filepath.ToSlash(p))
}

func boolPtr(b bool) *bool {
	return &b
}
