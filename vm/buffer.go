package vm

import (
	"bytes"
	"fmt"
	"html"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// ---------------------------------------------------------------------------
// Buffer: the output sink
// ---------------------------------------------------------------------------

// Buffer kinds registered by DefaultRegistry.
const (
	TextBufferKind = "text"
	HTMLBufferKind = "html"
)

// Buffer accumulates render output in a character encoding. A buffer
// that returned an error is left in a defined but incomplete state and
// must not be used as output.
type Buffer interface {
	Kind() string
	Encoding() encoding.Encoding
	// WriteRaw appends UTF-8 template bytes, encoding them as needed.
	WriteRaw(p []byte) error
	// WriteData formats and appends a value.
	WriteData(d Data) error
	// Append merges o, transcoding if its encoding differs.
	Append(o Buffer) error
	Len() int
	Bytes() []byte
	// Spawn returns an empty buffer of the same kind and encoding.
	Spawn() Buffer
}

// BufferFactory creates an empty buffer.
type BufferFactory func(enc encoding.Encoding, f Formatters) Buffer

// ParseEncoding looks up an encoding by its WHATWG name or label.
func ParseEncoding(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("vm: unknown encoding %q: %w", name, err)
	}
	return enc, nil
}

func encodingName(enc encoding.Encoding) string {
	if enc == nil {
		return "utf-8"
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return ""
	}
	return name
}

type textBuffer struct {
	kind   string
	enc    encoding.Encoding
	utf8   bool
	format Formatters
	escape func(string) string
	buf    bytes.Buffer
}

// NewTextBuffer returns a buffer that writes values unescaped.
func NewTextBuffer(enc encoding.Encoding, f Formatters) Buffer {
	return newTextBuffer(TextBufferKind, enc, f, nil)
}

// NewHTMLBuffer returns a buffer that HTML-escapes written values. Raw
// template bytes are written unchanged.
func NewHTMLBuffer(enc encoding.Encoding, f Formatters) Buffer {
	return newTextBuffer(HTMLBufferKind, enc, f, html.EscapeString)
}

func newTextBuffer(kind string, enc encoding.Encoding, f Formatters, escape func(string) string) *textBuffer {
	if enc == nil {
		enc = unicode.UTF8
	}
	return &textBuffer{
		kind:   kind,
		enc:    enc,
		utf8:   encodingName(enc) == "utf-8",
		format: f.withDefaults(),
		escape: escape,
	}
}

func (b *textBuffer) Kind() string                { return b.kind }
func (b *textBuffer) Encoding() encoding.Encoding { return b.enc }
func (b *textBuffer) Len() int                    { return b.buf.Len() }
func (b *textBuffer) Bytes() []byte               { return b.buf.Bytes() }

func (b *textBuffer) Spawn() Buffer {
	return newTextBuffer(b.kind, b.enc, b.format, b.escape)
}

func (b *textBuffer) WriteRaw(p []byte) error {
	if b.utf8 {
		b.buf.Write(p)
		return nil
	}
	out, err := b.enc.NewEncoder().Bytes(p)
	if err != nil {
		return fmt.Errorf("vm: encoding output as %s: %w", encodingName(b.enc), err)
	}
	b.buf.Write(out)
	return nil
}

func (b *textBuffer) WriteData(d Data) error {
	s := b.format.Format(d)
	if b.escape != nil {
		s = b.escape(s)
	}
	return b.WriteRaw([]byte(s))
}

func (b *textBuffer) Append(o Buffer) error {
	if encodingName(o.Encoding()) == encodingName(b.enc) && encodingName(b.enc) != "" {
		b.buf.Write(o.Bytes())
		return nil
	}
	src := o.Encoding()
	if src == nil {
		src = unicode.UTF8
	}
	decoded, err := src.NewDecoder().Bytes(o.Bytes())
	if err != nil {
		return fmt.Errorf("vm: decoding %s buffer: %w", encodingName(src), err)
	}
	return b.WriteRaw(decoded)
}
