package compiler

import "fmt"

// SyntaxError is a compile failure at a template location.
type SyntaxError struct {
	Name    string // template name, when known
	Pos     Position
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("compiler: %s:%s: %s", e.Name, e.Pos, e.Message)
	}
	return fmt.Sprintf("compiler: %s: %s", e.Pos, e.Message)
}

func syntaxErrorf(pos Position, format string, args ...any) *SyntaxError {
	return &SyntaxError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}
