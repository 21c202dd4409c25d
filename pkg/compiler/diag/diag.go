// Package diag carries positioned compiler diagnostics and renders them in
// the fixed header format the tooling parses:
//
//	Error (Line: 3, Column: 5): unknown variable name 'y'
//	    return y
//	        ^
package diag

import (
	"fmt"
	"strings"
)

// Error is a diagnostic anchored to a source position. Line and Column are
// 1-based; Column 0 means "no column" and suppresses the caret.
type Error struct {
	Line   int
	Column int
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("Error (Line: %d, Column: %d): %s", e.Line, e.Column, e.Msg)
}

// Errorf builds a positioned diagnostic.
func Errorf(line, col int, format string, args ...interface{}) *Error {
	return &Error{Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

// Render formats the diagnostic with the offending source line and a caret
// under the column. Falls back to the bare header when the position does not
// land inside src.
func (e *Error) Render(src []byte) string {
	var b strings.Builder
	b.WriteString(e.Error())

	line, ok := sourceLine(src, e.Line)
	if !ok {
		return b.String()
	}
	b.WriteByte('\n')
	b.WriteString(line)
	if e.Column > 0 {
		b.WriteByte('\n')
		for i := 1; i < e.Column && i <= len(line); i++ {
			if line[i-1] == '\t' {
				b.WriteByte('\t')
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteByte('^')
	}
	return b.String()
}

func sourceLine(src []byte, n int) (string, bool) {
	if n < 1 {
		return "", false
	}
	cur := 1
	start := 0
	for i := 0; i <= len(src); i++ {
		if i == len(src) || src[i] == '\n' {
			if cur == n {
				line := string(src[start:i])
				return strings.TrimSuffix(line, "\r"), start < len(src)
			}
			cur++
			start = i + 1
		}
	}
	return "", false
}
