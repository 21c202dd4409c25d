package pyxc_test

import (
	"strings"
	"testing"

	"github.com/pyxlang/pyx/pkg/compiler/parser"
	"github.com/pyxlang/pyx/pkg/compiler/pyxc"
)

func TestCompile(t *testing.T) {
	src := []byte(`extern def printd(x)
def fib(x):
    if x < 2:
        return x
    return fib(x - 1) + fib(x - 2)
printd(fib(10))
`)
	mod, errs := pyxc.Compile(src)
	if len(errs) != 0 {
		t.Fatalf("errors = %v, want none", errs)
	}
	if mod.Lookup("fib") == nil {
		t.Error("fib missing from module")
	}
	if !strings.Contains(mod.String(), "declare @printd") {
		t.Error("printd declaration missing from dump")
	}
}

// A unit with a broken declaration still compiles the declarations after
// it, reporting exactly the one diagnostic.
func TestRecoveryAcrossDeclarations(t *testing.T) {
	s := pyxc.NewSession()
	res := s.CompileUnit([]byte(`def broken(:
    return 1
def ok(x):
    return x
`))
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly one", res.Errors)
	}
	if len(res.Funcs) != 1 || res.Funcs[0].Name != "ok" {
		t.Fatalf("funcs = %v, want just ok", res.Funcs)
	}
}

// Codegen failures discard only the offending declaration.
func TestCodegenFailureDoesNotStopUnit(t *testing.T) {
	s := pyxc.NewSession()
	res := s.CompileUnit([]byte(`def bad(x):
    return y
def good(x):
    return x
`))
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %v, want exactly one", res.Errors)
	}
	if s.Module().Lookup("bad") != nil {
		t.Error("failed declaration survived in the module")
	}
	if s.Module().Lookup("good") == nil {
		t.Error("later declaration was lost")
	}
}

// Broken indentation must end the unit with a diagnostic, not stall it.
func TestMixedIndentationEndsUnit(t *testing.T) {
	s := pyxc.NewSession()
	res := s.CompileUnit([]byte("def f(x):\n  return x\n\treturn 1\n"))
	if len(res.Errors) == 0 {
		t.Fatal("expected a diagnostic")
	}
	if !strings.Contains(res.Errors[0].Error(), "cannot mix tabs and spaces") {
		t.Errorf("error = %v, want the mixed indentation message", res.Errors[0])
	}

	res = s.CompileUnit([]byte("if a:\n  b\n\tc\n"))
	if len(res.Errors) == 0 {
		t.Error("expected diagnostics for the broken unit")
	}
}

// Operators defined in one unit stay usable in the next: the REPL case.
func TestSessionPersistsOperators(t *testing.T) {
	s := pyxc.NewSession()
	res := s.CompileUnit([]byte("@binary(precedence=50)\ndef |(a, b):\n    return a + b\n"))
	if len(res.Errors) != 0 {
		t.Fatalf("first unit errors = %v", res.Errors)
	}

	res = s.CompileUnit([]byte("def f(x):\n    return x | 2\n"))
	if len(res.Errors) != 0 {
		t.Fatalf("second unit errors = %v", res.Errors)
	}
	if err := s.Module().Verify(); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

// A rejected redeclaration must leave the original operator intact.
func TestOperatorRedeclarationNonCorrupting(t *testing.T) {
	s := pyxc.NewSession()
	res := s.CompileUnit([]byte("@binary(precedence=50)\ndef |(a, b):\n    return a + b\n"))
	if len(res.Errors) != 0 {
		t.Fatalf("first unit errors = %v", res.Errors)
	}

	res = s.CompileUnit([]byte("@binary(precedence=60)\ndef |(a, b):\n    return a - b\n"))
	if len(res.Errors) != 1 {
		t.Fatalf("redeclaration errors = %v, want exactly one", res.Errors)
	}

	// the original registration still drives parsing and resolution
	res = s.CompileUnit([]byte("def f(x):\n    return x | 2\n"))
	if len(res.Errors) != 0 {
		t.Fatalf("use after rejected redeclaration: %v", res.Errors)
	}
	if e, ok := s.Operators().Lookup("|", parser.Binary); !ok || e.Precedence != 50 {
		t.Errorf("table entry = %+v, want the original at precedence 50", e)
	}
}

// Each bare expression becomes its own anonymous function.
func TestAnonymousExpressions(t *testing.T) {
	s := pyxc.NewSession()
	res := s.CompileUnit([]byte("1 + 2\n3 * 4\n"))
	if len(res.Errors) != 0 {
		t.Fatalf("errors = %v", res.Errors)
	}
	if len(res.Funcs) != 2 {
		t.Fatalf("funcs = %d, want 2", len(res.Funcs))
	}
	if res.Funcs[0].Name == res.Funcs[1].Name {
		t.Errorf("anonymous functions share the name %q", res.Funcs[0].Name)
	}
}

func TestDumpTokens(t *testing.T) {
	var b strings.Builder
	pyxc.DumpTokens([]byte("if x:\n    y\n"), &b)
	out := b.String()
	for _, want := range []string{"<if>", "<indent>", "<dedent>", "<eof>"} {
		if !strings.Contains(out, want) {
			t.Errorf("token dump missing %s:\n%s", want, out)
		}
	}
}
