package vm

import (
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Timeout bounds.
const (
	DefaultTimeout = 50 * time.Millisecond
	MinimumTimeout = time.Millisecond
)

// Options configures a Serializer. It is a plain value: build it once
// before the first render and pass it around; nothing reads process-wide
// settings.
type Options struct {
	// Timeout is the execution budget of one Serialize call. Values below
	// MinimumTimeout are raised to it.
	Timeout time.Duration
	// MissingVariableThrows makes an unresolved variable fail the render.
	// When false it renders as nil.
	MissingVariableThrows bool
	Encoding              encoding.Encoding
	Formatters            Formatters
	// Buffer is the registered buffer kind of the root output.
	Buffer   string
	Registry *Registry
}

// DefaultOptions returns UTF-8 text output, missing variables failing the
// render, and DefaultTimeout.
func DefaultOptions() Options {
	return Options{
		Timeout:               DefaultTimeout,
		MissingVariableThrows: true,
		Encoding:              unicode.UTF8,
		Formatters:            DefaultFormatters(),
		Buffer:                TextBufferKind,
	}
}

// normalized fills zero fields and enforces the timeout floor.
func (o Options) normalized() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Timeout < MinimumTimeout {
		o.Timeout = MinimumTimeout
	}
	if o.Encoding == nil {
		o.Encoding = unicode.UTF8
	}
	o.Formatters = o.Formatters.withDefaults()
	if o.Buffer == "" {
		o.Buffer = TextBufferKind
	}
	if o.Registry == nil {
		o.Registry = defaultRegistry
	}
	return o
}

var defaultRegistry = DefaultRegistry()
