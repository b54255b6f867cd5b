package errors

import "fmt"

// CompileError is one compile-time diagnostic: a source line plus the
// reason, formatted the way the reference driver prints it to stderr.
type CompileError struct {
	Line   int
	Reason string
	// Lexeme is what the error points at: the offending token's text, or
	// "end" for EOF. SuppressLexeme drops the lexeme from the output (set
	// for TErr tokens, whose Reason already carries the lexer's own message).
	Lexeme         string
	SuppressLexeme bool
}

func (e *CompileError) Error() string {
	if e.SuppressLexeme {
		return fmt.Sprintf("[line %d] error: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("[line %d] error at '%s': %s", e.Line, e.Lexeme, e.Reason)
}

// RuntimeError halts execution. Its Error() form matches the reference
// driver's two-line stderr output: the message, then the script line.
type RuntimeError struct {
	Line   int
	Reason string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s\n[line %d] in script", e.Reason, e.Line)
}

var Unreachable = fmt.Errorf("internal error: entered unreachable code")
