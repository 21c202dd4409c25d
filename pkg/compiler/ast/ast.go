// Package ast defines the syntax tree produced by the parser. The parser
// owns every node; the code generator walks the tree read-only.
package ast

import "github.com/pyxlang/pyx/pkg/compiler/lexer"

// Node represents any node in the Abstract Syntax Tree.
type Node interface {
	Pos() lexer.Token
}

// Expr represents an expression that yields a value.
type Expr interface {
	Node
	exprNode()
}

// Stmt represents a standalone unit of execution inside a suite.
type Stmt interface {
	Node
	stmtNode()
}

// Decl represents a top-level declaration.
type Decl interface {
	Node
	declNode()
}

// NumberLit is a numeric literal like 1.0.
type NumberLit struct {
	Token lexer.Token
	Value float64
}

func (n *NumberLit) Pos() lexer.Token { return n.Token }
func (n *NumberLit) exprNode()        {}

// StringLit is a double-quoted literal with escapes already decoded.
type StringLit struct {
	Token lexer.Token
	Value string
}

func (s *StringLit) Pos() lexer.Token { return s.Token }
func (s *StringLit) exprNode()        {}

// VariableExpr references a named binding.
type VariableExpr struct {
	Token lexer.Token
	Name  string
}

func (v *VariableExpr) Pos() lexer.Token { return v.Token }
func (v *VariableExpr) exprNode()        {}

// UnaryExpr applies a prefix operator.
type UnaryExpr struct {
	Token   lexer.Token
	Op      string
	Operand Expr
}

func (u *UnaryExpr) Pos() lexer.Token { return u.Token }
func (u *UnaryExpr) exprNode()        {}

// BinaryExpr applies an infix operator. Op is the operator-table symbol,
// which for the short-circuit forms is "and" or "or".
type BinaryExpr struct {
	Token lexer.Token
	Op    string
	LHS   Expr
	RHS   Expr
}

func (b *BinaryExpr) Pos() lexer.Token { return b.Token }
func (b *BinaryExpr) exprNode()        {}

// CallExpr invokes a named function.
type CallExpr struct {
	Token  lexer.Token
	Callee string
	Args   []Expr
}

func (c *CallExpr) Pos() lexer.Token { return c.Token }
func (c *CallExpr) exprNode()        {}

// VarExpr introduces scoped locals: var a = 1, b in body.
type VarExpr struct {
	Token lexer.Token
	Names []VarInit
	Body  Expr
}

// VarInit is one name = initializer pair in a VarExpr; Init may be nil.
type VarInit struct {
	Name string
	Init Expr
}

func (v *VarExpr) Pos() lexer.Token { return v.Token }
func (v *VarExpr) exprNode()        {}

// ExprStmt evaluates an expression for its value or side effects.
type ExprStmt struct {
	Token lexer.Token
	Expr  Expr
}

func (e *ExprStmt) Pos() lexer.Token { return e.Token }
func (e *ExprStmt) stmtNode()        {}

// AssignStmt stores into an existing binding: name = expr.
type AssignStmt struct {
	Token lexer.Token
	Name  string
	Value Expr
}

func (a *AssignStmt) Pos() lexer.Token { return a.Token }
func (a *AssignStmt) stmtNode()        {}

// ReturnStmt leaves the enclosing function, optionally with a value.
type ReturnStmt struct {
	Token lexer.Token
	Value Expr // nil for a bare return
}

func (r *ReturnStmt) Pos() lexer.Token { return r.Token }
func (r *ReturnStmt) stmtNode()        {}

// Terminates reports that the statement ends its block's control flow.
func (r *ReturnStmt) Terminates() bool { return true }

// IfStmt is a conditional with one then-suite and one optional else-suite.
// elif chains are desugared by the parser into an else holding a single
// nested IfStmt, so every conditional node has this uniform shape.
type IfStmt struct {
	Token lexer.Token
	Cond  Expr
	Then  *BlockSuite
	Else  *BlockSuite // nil when absent
}

func (i *IfStmt) Pos() lexer.Token { return i.Token }
func (i *IfStmt) stmtNode()        {}

// ForStmt is for name in range(start, end[, step]): suite.
type ForStmt struct {
	Token lexer.Token
	Var   string
	Start Expr
	End   Expr
	Step  Expr // nil when omitted, generator supplies 1
	Body  *BlockSuite
}

func (f *ForStmt) Pos() lexer.Token { return f.Token }
func (f *ForStmt) stmtNode()        {}

// WhileStmt re-evaluates Cond before every iteration.
type WhileStmt struct {
	Token lexer.Token
	Cond  Expr
	Body  *BlockSuite
}

func (w *WhileStmt) Pos() lexer.Token { return w.Token }
func (w *WhileStmt) stmtNode()        {}

// BlockSuite is either an inline single statement or an indented block.
type BlockSuite struct {
	Token lexer.Token
	Stmts []Stmt
}

func (b *BlockSuite) Pos() lexer.Token { return b.Token }
func (b *BlockSuite) stmtNode()        {}

// OpKind classifies an operator prototype.
type OpKind uint8

const (
	OpNone OpKind = iota
	OpUnary
	OpBinary
)

// Prototype captures a function's name and parameter names, plus operator
// metadata when the definition was decorated with @unary or @binary.
type Prototype struct {
	Token      lexer.Token
	Name       string
	Params     []string
	Operator   OpKind
	Symbol     string // operator spelling when Operator != OpNone
	Precedence int    // binary operator precedence
	Variadic   bool   // externs only
}

func (p *Prototype) Pos() lexer.Token { return p.Token }
func (p *Prototype) declNode()        {}

// Function is a full definition: prototype plus body suite.
type Function struct {
	Proto *Prototype
	Body  *BlockSuite
}

func (f *Function) Pos() lexer.Token { return f.Proto.Token }
func (f *Function) declNode()        {}

// Extern declares a function implemented outside the unit.
type Extern struct {
	Proto *Prototype
}

func (e *Extern) Pos() lexer.Token { return e.Proto.Token }
func (e *Extern) declNode()        {}
