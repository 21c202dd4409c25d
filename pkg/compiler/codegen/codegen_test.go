package codegen_test

import (
	"strings"
	"testing"

	"github.com/pyxlang/pyx/pkg/compiler/codegen"
	"github.com/pyxlang/pyx/pkg/compiler/lexer"
	"github.com/pyxlang/pyx/pkg/compiler/parser"
	"github.com/pyxlang/pyx/pkg/ir"
)

// gen runs src through the parser and generator, collecting errors the way
// the driver does but without its recovery policy.
func gen(t *testing.T, src string) (*ir.Module, []error) {
	t.Helper()
	g := codegen.New()
	p := parser.NewParser(lexer.NewScanner([]byte(src)), parser.NewTable())
	var errs []error
	for {
		decl, err := p.Next()
		if err != nil {
			errs = append(errs, err)
			p.Sync()
			continue
		}
		if decl == nil {
			return g.Module(), errs
		}
		if _, err := g.Generate(decl); err != nil {
			errs = append(errs, err)
		}
	}
}

func mustGen(t *testing.T, src string) *ir.Module {
	t.Helper()
	mod, errs := gen(t, src)
	for _, err := range errs {
		t.Fatalf("generate: %v", err)
	}
	if err := mod.Verify(); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	return mod
}

func findBlock(fn *ir.Function, name string) *ir.Block {
	for _, blk := range fn.Blocks {
		if blk.Name == name {
			return blk
		}
	}
	return nil
}

func predecessors(fn *ir.Function, target *ir.Block) int {
	n := 0
	for _, blk := range fn.Blocks {
		if t := blk.Terminator(); t != nil {
			for _, tgt := range t.Targets {
				if tgt == target {
					n++
				}
			}
		}
	}
	return n
}

func countPhis(fn *ir.Function) int {
	n := 0
	for _, blk := range fn.Blocks {
		for _, in := range blk.Instrs {
			if in.Op == ir.OpPhi {
				n++
			}
		}
	}
	return n
}

func TestRecursion(t *testing.T) {
	mod := mustGen(t, `def fib(x):
    if x < 2:
        return x
    return fib(x - 1) + fib(x - 2)
`)
	fn := mod.Lookup("fib")
	if fn == nil || fn.IsDeclaration() {
		t.Fatal("fib not defined")
	}
}

func TestMutualRecursionThroughForwardDeclaration(t *testing.T) {
	mod := mustGen(t, `extern def isodd(n)
def iseven(n):
    if n < 1:
        return 1
    return isodd(n - 1)
def isodd(n):
    if n < 1:
        return 0
    return iseven(n - 1)
`)
	if fn := mod.Lookup("isodd"); fn == nil || fn.IsDeclaration() {
		t.Fatal("isodd declaration was not filled in by its definition")
	}
	if fn := mod.Lookup("iseven"); fn == nil || fn.IsDeclaration() {
		t.Fatal("iseven not defined")
	}
}

// When both branches return, no merge block may be reachable.
func TestBothBranchesReturn(t *testing.T) {
	mod := mustGen(t, `def f(x):
    if x:
        return 1
    else:
        return 2
`)
	fn := mod.Lookup("f")
	if blk := findBlock(fn, "ifcont"); blk != nil {
		t.Error("merge block created although both branches returned")
	}
	dead := findBlock(fn, "ifcont.dead")
	if dead == nil {
		t.Fatal("dead continuation block missing")
	}
	if n := predecessors(fn, dead); n != 0 {
		t.Errorf("dead continuation has %d predecessors, want 0", n)
	}
}

// When one branch returns, the merge takes the other side's value directly
// with no phi.
func TestOneBranchReturns(t *testing.T) {
	mod := mustGen(t, `def f(x):
    if x:
        return 1
    return x + 1
`)
	fn := mod.Lookup("f")
	if findBlock(fn, "ifcont") == nil {
		t.Fatal("merge block missing")
	}
	if n := countPhis(fn); n != 0 {
		t.Errorf("phi count = %d, want 0", n)
	}
}

// Only the two-fall-through case produces a phi.
func TestBothBranchesFallThrough(t *testing.T) {
	mod := mustGen(t, `def f(x):
    if x:
        1
    else:
        2
`)
	fn := mod.Lookup("f")
	merge := findBlock(fn, "ifcont")
	if merge == nil {
		t.Fatal("merge block missing")
	}
	phi := merge.Instrs[0]
	if phi.Op != ir.OpPhi || len(phi.Incomings) != 2 {
		t.Fatalf("merge head = %v with %d incomings, want phi with 2", phi.Op, len(phi.Incomings))
	}
}

// A branch yielding a non-numeric value is a positioned diagnostic, not a
// verifier failure after the fact.
func TestBranchValueTypeMismatch(t *testing.T) {
	mod, errs := gen(t, "def f(x):\n    if x:\n        \"a\"\n    else:\n        2\n")
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want exactly one", errs)
	}
	if !strings.Contains(errs[0].Error(), "yields str") {
		t.Errorf("error = %v, want a str branch diagnostic", errs[0])
	}
	if mod.Lookup("f") != nil {
		t.Error("failed definition left a function in the module")
	}
}

func TestShortCircuitStructure(t *testing.T) {
	tests := []struct {
		name string
		src  string
		// index in the lhs condbr targets that must be the merge block,
		// i.e. the edge that skips the rhs
		skipIdx int
	}{
		{name: "and skips on false", src: "def f(a, b):\n    return a and b\n", skipIdx: 1},
		{name: "or skips on true", src: "def f(a, b):\n    return a or b\n", skipIdx: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := mustGen(t, tt.src).Lookup("f")
			rhs := findBlock(fn, "logic.rhs")
			merge := findBlock(fn, "logic.cont")
			if rhs == nil || merge == nil {
				t.Fatal("short-circuit blocks missing")
			}

			entry := fn.Entry()
			br := entry.Terminator()
			if br == nil || br.Op != ir.OpCondBr {
				t.Fatalf("entry terminator = %v, want condbr", br)
			}
			if br.Targets[tt.skipIdx] != merge {
				t.Errorf("skip edge goes to %%%s, want %%%s", br.Targets[tt.skipIdx].Name, merge.Name)
			}

			phi := merge.Instrs[0]
			if phi.Op != ir.OpPhi || phi.Ty != ir.I1 {
				t.Fatalf("merge head = %v %v, want i1 phi", phi.Op, phi.Ty)
			}
			if len(phi.Incomings) != 2 {
				t.Errorf("phi incomings = %d, want 2", len(phi.Incomings))
			}
		})
	}
}

func TestWhileStructure(t *testing.T) {
	fn := mustGen(t, `def count(n):
    while n > 0:
        n = n - 1
    return n
`).Lookup("count")
	cond := findBlock(fn, "while.cond")
	body := findBlock(fn, "while.body")
	if cond == nil || body == nil || findBlock(fn, "while.exit") == nil {
		t.Fatal("loop blocks missing")
	}
	// the back edge re-evaluates the condition
	if br := body.Terminator(); br.Op != ir.OpBr || br.Targets[0] != cond {
		t.Error("loop body does not branch back to the condition block")
	}
}

func TestForStructure(t *testing.T) {
	fn := mustGen(t, `extern def printd(x)
def f(n):
    for i in range(0, n):
        printd(i)
    return 0
`).Lookup("f")
	for _, name := range []string{"loopcond", "loop", "loopstep", "endloop"} {
		if findBlock(fn, name) == nil {
			t.Fatalf("block %q missing", name)
		}
	}
	step := findBlock(fn, "loopstep")
	if br := step.Terminator(); br.Op != ir.OpBr || br.Targets[0] != findBlock(fn, "loopcond") {
		t.Error("step block does not branch back to the precondition")
	}
	// induction variable lives in an entry slot
	hasSlot := false
	for _, in := range fn.Entry().Instrs {
		if in.Op == ir.OpAlloca && in.Slot == "i" {
			hasSlot = true
		}
	}
	if !hasSlot {
		t.Error("loop variable has no entry-block slot")
	}
}

func TestUserOperators(t *testing.T) {
	mod := mustGen(t, `@binary(precedence=50)
def |(a, b):
    return a + b
@unary
def ^(v):
    return 0 - v
def f(x):
    return ^x | 1
`)
	if mod.Lookup("binary|") == nil {
		t.Error("binary operator function missing")
	}
	if mod.Lookup("unary^") == nil {
		t.Error("unary operator function missing")
	}
}

func TestVarExpression(t *testing.T) {
	mod := mustGen(t, `def f(x):
    return var a = x + 1, b in a + b
`)
	fn := mod.Lookup("f")
	slots := 0
	for _, in := range fn.Entry().Instrs {
		if in.Op == ir.OpAlloca {
			slots++
		}
	}
	// parameter x plus locals a and b
	if slots != 3 {
		t.Errorf("entry slots = %d, want 3", slots)
	}
}

func TestExterns(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "known extern", src: "extern def printd(x)\n"},
		{name: "variadic extern", src: "extern def printfd(fmt, ...)\nextern def putchard(c)\n"},
		{name: "call with string literal", src: "extern def fopend(path, mode)\ndef f(x):\n    return fopend(\"data.txt\", \"r\")\n"},
		{
			name:    "signature mismatch",
			src:     "extern def printfd(fmt)\n",
			wantErr: "does not match its runtime signature",
		},
		{
			name:    "arity change rejected",
			src:     "extern def g(x)\nextern def g(x, y)\n",
			wantErr: "incompatible redeclaration of 'g'",
		},
		{
			name:    "string where number expected",
			src:     "extern def fopend(path, mode)\ndef f(x):\n    return fopend(\"data.txt\", 1)\n",
			wantErr: "argument 2 of 'fopend' must be str",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := gen(t, tt.src)
			if tt.wantErr == "" {
				if len(errs) != 0 {
					t.Fatalf("errors = %v, want none", errs)
				}
				return
			}
			if len(errs) == 0 {
				t.Fatal("expected an error")
			}
			if !strings.Contains(errs[len(errs)-1].Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", errs[len(errs)-1], tt.wantErr)
			}
		})
	}
}

// A failed definition must leave no trace in the module.
func TestFailureRollsBackFunction(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{
			name:    "unknown variable",
			src:     "def f(x):\n    return y\n",
			wantErr: "unknown variable name 'y'",
		},
		{
			name:    "call arity mismatch",
			src:     "def f(x):\n    return f(1, 2)\n",
			wantErr: "incorrect number of arguments passed to 'f'",
		},
		{
			name:    "assignment to non-variable",
			src:     "def f(x):\n    return (x + 1) = 2\n",
			wantErr: "destination of '=' must be a variable",
		},
		{
			name:    "unknown callee",
			src:     "def f(x):\n    return missing(x)\n",
			wantErr: "unknown function referenced 'missing'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, errs := gen(t, tt.src)
			if len(errs) != 1 {
				t.Fatalf("errors = %v, want exactly one", errs)
			}
			if !strings.Contains(errs[0].Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", errs[0], tt.wantErr)
			}
			if mod.Lookup("f") != nil {
				t.Error("failed definition left a function in the module")
			}
		})
	}
}

// A definition that fills in an earlier declaration and then fails must
// drop back to the declaration, not disappear.
func TestFailureRestoresDeclaration(t *testing.T) {
	mod, errs := gen(t, `extern def g(x)
def g(x):
    return y
`)
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want exactly one", errs)
	}
	fn := mod.Lookup("g")
	if fn == nil {
		t.Fatal("declaration vanished after failed definition")
	}
	if !fn.IsDeclaration() {
		t.Error("failed definition left a body behind")
	}
}

func TestRedefinitionRejected(t *testing.T) {
	_, errs := gen(t, `def f(x):
    return x
def f(x):
    return x + 1
`)
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "already defined") {
		t.Fatalf("errors = %v, want one 'already defined' error", errs)
	}
}
