package vm

import (
	"bytes"
	"testing"

	"golang.org/x/text/encoding/unicode"
)

func TestBuffer_Transcoding(t *testing.T) {
	latin, err := ParseEncoding("windows-1252")
	if err != nil {
		t.Fatalf("ParseEncoding: %v", err)
	}
	buf := NewTextBuffer(latin, DefaultFormatters())
	if err := buf.WriteRaw([]byte("é")); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	if err := buf.WriteData(String("€")); err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	if got := buf.Bytes(); !bytes.Equal(got, []byte{0xe9, 0x80}) {
		t.Errorf("bytes = % x", got)
	}
	if err := buf.WriteRaw([]byte("日")); err == nil {
		t.Error("unencodable rune should fail")
	}
}

func TestBuffer_AppendAcrossEncodings(t *testing.T) {
	latin, _ := ParseEncoding("latin1")
	child := NewTextBuffer(latin, DefaultFormatters())
	_ = child.WriteRaw([]byte("café"))

	parent := NewTextBuffer(unicode.UTF8, DefaultFormatters())
	_ = parent.WriteRaw([]byte("> "))
	if err := parent.Append(child); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := string(parent.Bytes()); got != "> café" {
		t.Errorf("got %q", got)
	}

	same := parent.Spawn()
	_ = same.WriteRaw([]byte("!"))
	if err := parent.Append(same); err != nil {
		t.Fatalf("Append same encoding: %v", err)
	}
	if got := string(parent.Bytes()); got != "> café!" {
		t.Errorf("got %q", got)
	}
}

func TestBuffer_HTMLEscapesValuesOnly(t *testing.T) {
	buf := NewHTMLBuffer(nil, Formatters{})
	_ = buf.WriteRaw([]byte(`<p class="x">`))
	_ = buf.WriteData(String(`"a" & <b>`))
	if got, want := string(buf.Bytes()), `<p class="x">&#34;a&#34; &amp; &lt;b&gt;`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if buf.Kind() != HTMLBufferKind || buf.Spawn().Kind() != HTMLBufferKind {
		t.Error("kind not preserved")
	}
}

func TestParseEncoding_Unknown(t *testing.T) {
	if _, err := ParseEncoding("klingon"); err == nil {
		t.Error("unknown encoding should fail")
	}
}
