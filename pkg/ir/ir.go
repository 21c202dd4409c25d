// Package ir is an in-memory intermediate representation shaped like a
// classical three-address SSA-with-slots form: functions hold basic blocks,
// blocks hold instructions, mutable locals live in entry-block alloca slots
// that a later backend pass is free to promote to registers.
package ir

import (
	"fmt"
	"strings"
)

// Type is one of the primitive value types the IR knows about. Str is an
// opaque byte pointer used only to feed string literals to externs.
type Type uint8

const (
	Void Type = iota
	I1
	I64
	F64
	Str
)

var typeNames = [...]string{"void", "i1", "i64", "f64", "str"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "?"
}

// Value is anything an instruction can take as an operand.
type Value interface {
	Type() Type
	operandString() string
}

// Const is a literal value.
type Const struct {
	Ty    Type
	Float float64 // F64
	Int   int64   // I1, I64
	Text  string  // Str
}

func (c *Const) Type() Type { return c.Ty }

func (c *Const) operandString() string {
	switch c.Ty {
	case F64:
		return fmt.Sprintf("%g", c.Float)
	case Str:
		return fmt.Sprintf("%q", c.Text)
	default:
		return fmt.Sprintf("%d", c.Int)
	}
}

// ConstFloat returns an f64 literal.
func ConstFloat(v float64) *Const { return &Const{Ty: F64, Float: v} }

// ConstBool returns an i1 literal.
func ConstBool(b bool) *Const {
	c := &Const{Ty: I1}
	if b {
		c.Int = 1
	}
	return c
}

// ConstInt returns an i64 literal.
func ConstInt(v int64) *Const { return &Const{Ty: I64, Int: v} }

// ConstString returns a str literal.
func ConstString(s string) *Const { return &Const{Ty: Str, Text: s} }

// Param is a formal parameter of a function.
type Param struct {
	Name string
	Ty   Type
}

func (p *Param) Type() Type            { return p.Ty }
func (p *Param) operandString() string { return "%" + p.Name }

// Op enumerates instruction opcodes.
type Op uint8

const (
	OpAlloca Op = iota + 1
	OpLoad
	OpStore

	OpFAdd
	OpFSub
	OpFMul
	OpFDiv

	// comparisons yield i1
	OpCmpLT
	OpCmpGT
	OpCmpNE

	// casts
	OpI1ToF64

	OpCall
	OpPhi

	// terminators
	OpBr
	OpCondBr
	OpRet
	OpRetVoid
)

var opNames = map[Op]string{
	OpAlloca:  "alloca",
	OpLoad:    "load",
	OpStore:   "store",
	OpFAdd:    "fadd",
	OpFSub:    "fsub",
	OpFMul:    "fmul",
	OpFDiv:    "fdiv",
	OpCmpLT:   "fcmp lt",
	OpCmpGT:   "fcmp gt",
	OpCmpNE:   "fcmp ne",
	OpI1ToF64: "uitofp",
	OpCall:    "call",
	OpPhi:     "phi",
	OpBr:      "br",
	OpCondBr:  "condbr",
	OpRet:     "ret",
	OpRetVoid: "ret void",
}

func (o Op) String() string { return opNames[o] }

// Incoming is one phi edge: the value the phi takes when control arrives
// from Block.
type Incoming struct {
	Value Value
	Block *Block
}

// Instr is a single instruction. Its result (when Ty != Void) is usable as
// an operand. Slot is the variable name for allocas; Callee is set for
// calls; Targets holds branch destinations; Incomings holds phi edges.
type Instr struct {
	Op        Op
	Ty        Type
	Args      []Value
	Slot      string
	Elem      Type // alloca element type
	Callee    *Function
	Targets   []*Block
	Incomings []Incoming

	id int
}

func (i *Instr) Type() Type { return i.Ty }

func (i *Instr) operandString() string {
	if i.Op == OpAlloca && i.Slot != "" {
		return fmt.Sprintf("%%%s.addr", i.Slot)
	}
	return fmt.Sprintf("%%t%d", i.id)
}

// IsTerminator reports whether the instruction ends a basic block.
func (i *Instr) IsTerminator() bool {
	switch i.Op {
	case OpBr, OpCondBr, OpRet, OpRetVoid:
		return true
	}
	return false
}

// Block is a basic block: a straight-line instruction sequence ending in
// one terminator.
type Block struct {
	Name   string
	Fn     *Function
	Instrs []*Instr
}

// Terminated reports whether the block already ends in a terminator. The
// code generator consults this after emitting a branch to decide whether a
// jump to the merge block is still needed.
func (b *Block) Terminated() bool {
	n := len(b.Instrs)
	return n > 0 && b.Instrs[n-1].IsTerminator()
}

// Terminator returns the block's final instruction when it is a
// terminator, else nil.
func (b *Block) Terminator() *Instr {
	if b.Terminated() {
		return b.Instrs[len(b.Instrs)-1]
	}
	return nil
}

// Function is a named signature plus, for definitions, a block list. A
// function with no blocks is a declaration.
type Function struct {
	Name     string
	Params   []*Param
	Ret      Type
	Variadic bool
	Blocks   []*Block

	nextID    int
	nextBlock map[string]int
}

// IsDeclaration reports whether the function has no body.
func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

// Entry returns the function's entry block.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// Module is an ordered collection of functions.
type Module struct {
	Funcs  []*Function
	byName map[string]*Function
}

func NewModule() *Module {
	return &Module{byName: make(map[string]*Function)}
}

// Lookup finds a function by name.
func (m *Module) Lookup(name string) *Function {
	return m.byName[name]
}

// NewFunction registers a function with the given signature. The name must
// not already be taken; callers resolve redeclarations before this point.
func (m *Module) NewFunction(name string, ret Type, params []*Param, variadic bool) *Function {
	f := &Function{
		Name:      name,
		Params:    params,
		Ret:       ret,
		Variadic:  variadic,
		nextBlock: make(map[string]int),
	}
	m.Funcs = append(m.Funcs, f)
	m.byName[name] = f
	return f
}

// Remove deletes a function, discarding a definition that failed part way
// through code generation.
func (m *Module) Remove(f *Function) {
	if m.byName[f.Name] != f {
		return
	}
	delete(m.byName, f.Name)
	for i, g := range m.Funcs {
		if g == f {
			m.Funcs = append(m.Funcs[:i], m.Funcs[i+1:]...)
			return
		}
	}
}

// String renders the whole module. The format is for humans and tests, not
// a stable interchange contract.
func (m *Module) String() string {
	var b strings.Builder
	for i, f := range m.Funcs {
		if i > 0 {
			b.WriteByte('\n')
		}
		writeFunction(&b, f)
	}
	return b.String()
}

// String renders a single function in the same form as Module.String.
func (f *Function) String() string {
	var b strings.Builder
	writeFunction(&b, f)
	return b.String()
}

func writeFunction(b *strings.Builder, f *Function) {
	kw := "def"
	if f.IsDeclaration() {
		kw = "declare"
	}
	fmt.Fprintf(b, "%s @%s(", kw, f.Name)
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s %%%s", p.Ty, p.Name)
	}
	if f.Variadic {
		if len(f.Params) > 0 {
			b.WriteString(", ")
		}
		b.WriteString("...")
	}
	fmt.Fprintf(b, ") -> %s", f.Ret)
	if f.IsDeclaration() {
		b.WriteByte('\n')
		return
	}
	b.WriteString(" {\n")
	for _, blk := range f.Blocks {
		fmt.Fprintf(b, "%s:\n", blk.Name)
		for _, in := range blk.Instrs {
			b.WriteString("  ")
			writeInstr(b, in)
			b.WriteByte('\n')
		}
	}
	b.WriteString("}\n")
}

func writeInstr(b *strings.Builder, in *Instr) {
	if in.Ty != Void {
		fmt.Fprintf(b, "%s = ", in.operandString())
	}
	switch in.Op {
	case OpAlloca:
		fmt.Fprintf(b, "alloca %s", in.Elem)
	case OpStore:
		fmt.Fprintf(b, "store %s %s, %s", in.Args[0].Type(), in.Args[0].operandString(), in.Args[1].operandString())
	case OpLoad:
		fmt.Fprintf(b, "load %s, %s", in.Ty, in.Args[0].operandString())
	case OpCall:
		fmt.Fprintf(b, "call %s @%s(", in.Ty, in.Callee.Name)
		for i, a := range in.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s %s", a.Type(), a.operandString())
		}
		b.WriteByte(')')
	case OpPhi:
		fmt.Fprintf(b, "phi %s ", in.Ty)
		for i, inc := range in.Incomings {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "[%s, %%%s]", inc.Value.operandString(), inc.Block.Name)
		}
	case OpBr:
		fmt.Fprintf(b, "br label %%%s", in.Targets[0].Name)
	case OpCondBr:
		fmt.Fprintf(b, "br i1 %s, label %%%s, label %%%s",
			in.Args[0].operandString(), in.Targets[0].Name, in.Targets[1].Name)
	case OpRet:
		fmt.Fprintf(b, "ret %s %s", in.Args[0].Type(), in.Args[0].operandString())
	case OpRetVoid:
		b.WriteString("ret void")
	default:
		fmt.Fprintf(b, "%s", in.Op)
		for i, a := range in.Args {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, " %s %s", a.Type(), a.operandString())
		}
	}
}
