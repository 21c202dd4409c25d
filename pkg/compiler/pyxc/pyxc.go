// Package pyxc drives compilation: it feeds tokens through the parser one
// declaration at a time, lowers each to IR, and keeps going past failures
// so a unit reports every diagnostic it can.
package pyxc

import (
	"fmt"
	"io"

	"github.com/pyxlang/pyx/pkg/compiler/ast"
	"github.com/pyxlang/pyx/pkg/compiler/codegen"
	"github.com/pyxlang/pyx/pkg/compiler/lexer"
	"github.com/pyxlang/pyx/pkg/compiler/parser"
	"github.com/pyxlang/pyx/pkg/ir"
)

// Session holds the state that outlives a single unit: the operator table
// and the generator with its module and prototype registry. A REPL compiles
// many units into one session; batch compilation uses a session per file.
// Sessions are single-goroutine.
type Session struct {
	ops     *parser.Table
	gen     *codegen.Generator
	anonSeq int
}

func NewSession() *Session {
	return &Session{
		ops: parser.NewTable(),
		gen: codegen.New(),
	}
}

// Module returns the IR built by every unit compiled so far.
func (s *Session) Module() *ir.Module { return s.gen.Module() }

// Operators returns the live operator table.
func (s *Session) Operators() *parser.Table { return s.ops }

// Result is the outcome of one unit: the functions that made it to IR and
// every diagnostic hit along the way.
type Result struct {
	Funcs  []*ir.Function
	Errors []error
}

// CompileUnit runs src through the whole pipeline. A declaration that fails
// to parse is discarded up to the next top-level line; one that fails to
// generate is discarded whole, rolling back any operator table entry its
// definition added. Later declarations still compile either way.
func (s *Session) CompileUnit(src []byte) *Result {
	res := &Result{}
	scanner := lexer.NewScanner(src)
	p := parser.NewParser(scanner, s.ops)

	for {
		decl, err := p.Next()
		if err != nil {
			res.Errors = append(res.Errors, err)
			p.Sync()
			continue
		}
		if decl == nil {
			return res
		}

		if fd, ok := decl.(*ast.Function); ok && fd.Proto.Name == parser.AnonName {
			// each bare expression gets its own function in the module
			fd.Proto.Name = fmt.Sprintf("%s.%d", parser.AnonName, s.anonSeq)
			s.anonSeq++
		}

		fn, err := s.gen.Generate(decl)
		if err != nil {
			res.Errors = append(res.Errors, err)
			s.removeOperator(decl)
			continue
		}
		res.Funcs = append(res.Funcs, fn)
	}
}

// removeOperator undoes the table entry parsing added for a decorated
// definition whose code generation failed. If an earlier definition of the
// same operator is still live in the module the entry belongs to it, so it
// stays.
func (s *Session) removeOperator(decl ast.Decl) {
	fd, ok := decl.(*ast.Function)
	if !ok || fd.Proto.Operator == ast.OpNone {
		return
	}
	if fn := s.gen.Module().Lookup(fd.Proto.Name); fn != nil && !fn.IsDeclaration() {
		return
	}
	arity := parser.Unary
	if fd.Proto.Operator == ast.OpBinary {
		arity = parser.Binary
	}
	s.ops.Remove(fd.Proto.Symbol, arity)
}

// Compile is the one-shot form: a fresh session, one unit, verified.
func Compile(src []byte) (*ir.Module, []error) {
	s := NewSession()
	res := s.CompileUnit(src)
	errs := res.Errors
	if len(errs) == 0 {
		if err := s.Module().Verify(); err != nil {
			errs = append(errs, err)
		}
	}
	return s.Module(), errs
}

// DumpTokens writes the token stream for src, one token per line, the way
// the lexer sees it. Used by the tokens subcommand and handy in bug
// reports about indentation.
func DumpTokens(src []byte, w io.Writer) {
	scanner := lexer.NewScanner(src)
	for {
		tok := scanner.Next()
		switch tok.Kind {
		case lexer.KindIdentifier, lexer.KindOperator, lexer.KindString, lexer.KindError:
			fmt.Fprintf(w, "%d:%d\t%s %q\n", tok.Line, tok.Column, tok.Kind, tok.Text)
		case lexer.KindNumber:
			fmt.Fprintf(w, "%d:%d\t%s %g\n", tok.Line, tok.Column, tok.Kind, tok.Num)
		default:
			fmt.Fprintf(w, "%d:%d\t%s\n", tok.Line, tok.Column, tok.Kind)
		}
		if tok.Kind == lexer.KindEOF {
			return
		}
	}
}
