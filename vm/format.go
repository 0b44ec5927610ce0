package vm

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// Formatters turn scalar values into output text. Collections are
// rendered as `[v, v]` and `["k": v]` (keys sorted) around these.
type Formatters struct {
	Bool   func(bool) string
	Int    func(int64) string
	Double func(float64) string
	String func(string) string
	Bytes  func([]byte) string
	Nil    func() string
}

// DefaultFormatters renders nil as the empty string and bytes as base64.
func DefaultFormatters() Formatters {
	return Formatters{
		Bool:   strconv.FormatBool,
		Int:    func(i int64) string { return strconv.FormatInt(i, 10) },
		Double: formatDouble,
		String: func(s string) string { return s },
		Bytes:  base64.StdEncoding.EncodeToString,
		Nil:    func() string { return "" },
	}
}

var defaultFormatters = DefaultFormatters()

func formatDouble(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// withDefaults fills unset formatter functions.
func (f Formatters) withDefaults() Formatters {
	def := defaultFormatters
	if f.Bool == nil {
		f.Bool = def.Bool
	}
	if f.Int == nil {
		f.Int = def.Int
	}
	if f.Double == nil {
		f.Double = def.Double
	}
	if f.String == nil {
		f.String = def.String
	}
	if f.Bytes == nil {
		f.Bytes = def.Bytes
	}
	if f.Nil == nil {
		f.Nil = def.Nil
	}
	return f
}

// Format renders d.
func (f Formatters) Format(d Data) string {
	var b strings.Builder
	f.write(&b, d, false)
	return b.String()
}

func (f Formatters) write(b *strings.Builder, d Data, nested bool) {
	d = d.Force()
	switch d.kind {
	case kindBool:
		b.WriteString(f.Bool(d.b))
	case kindInt:
		b.WriteString(f.Int(d.i))
	case kindDouble:
		b.WriteString(f.Double(d.f))
	case kindString:
		if nested {
			b.WriteString(strconv.Quote(f.String(d.s)))
		} else {
			b.WriteString(f.String(d.s))
		}
	case kindBytes:
		b.WriteString(f.Bytes(d.raw))
	case kindArray:
		b.WriteByte('[')
		for i, v := range d.arr {
			if i > 0 {
				b.WriteString(", ")
			}
			f.write(b, v, true)
		}
		b.WriteByte(']')
	case kindDictionary:
		if len(d.dict) == 0 {
			b.WriteString("[:]")
			return
		}
		b.WriteByte('[')
		for i, k := range sortedKeys(d.dict) {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(": ")
			f.write(b, d.dict[k], true)
		}
		b.WriteByte(']')
	case kindError:
		b.WriteString(d.err.Error())
	default:
		b.WriteString(f.Nil())
	}
}
