// Package parser turns the token stream into declarations, driving
// expression parsing from a mutable operator table.
package parser

import (
	"github.com/pyxlang/pyx/pkg/compiler/ast"
	"github.com/pyxlang/pyx/pkg/compiler/diag"
	"github.com/pyxlang/pyx/pkg/compiler/lexer"
)

// AnonName is the function name given to a bare top-level expression.
const AnonName = "__anon_expr"

type Parser struct {
	scanner *lexer.Scanner
	ops     *Table
	curTok  lexer.Token
	peekTok lexer.Token
}

// NewParser wraps a scanner. The operator table is shared with the caller,
// which needs it to roll back entries when code generation fails.
func NewParser(s *lexer.Scanner, ops *Table) *Parser {
	p := &Parser{scanner: s, ops: ops}
	// Read two tokens, so curTok and peekTok are both set
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curTok = p.peekTok
	p.peekTok = p.scanner.Next()
}

// Next parses one top-level declaration: a definition (optionally with an
// operator decorator), an extern, or a bare expression wrapped as an
// anonymous nullary function. It returns (nil, nil) at end of input.
func (p *Parser) Next() (ast.Decl, error) {
	for {
		switch p.curTok.Kind {
		case lexer.KindEOF:
			return nil, nil
		case lexer.KindEOL, lexer.KindDedent:
			p.nextToken()
			continue
		case lexer.KindError:
			return nil, p.takeErrorToken()
		}
		break
	}

	switch {
	case p.curTok.IsChar('@'):
		return p.parseDecoratedDefinition()
	case p.curTok.Kind == lexer.KindDef:
		return p.parseDefinition(ast.OpNone, 0)
	case p.curTok.Kind == lexer.KindExtern:
		return p.parseExtern()
	default:
		return p.parseTopLevelExpr()
	}
}

// Sync discards tokens through the rest of the broken declaration: the
// current line plus any indented suite hanging off it. It stops with the
// first token of the next top-level line current.
func (p *Parser) Sync() {
	depth := 0
	atLineStart := false
	for {
		switch p.curTok.Kind {
		case lexer.KindEOF:
			return
		case lexer.KindIndent:
			depth++
			atLineStart = false
		case lexer.KindDedent:
			if depth > 0 {
				depth--
			}
			if depth == 0 {
				atLineStart = true
			}
		case lexer.KindEOL:
			if depth == 0 {
				atLineStart = true
			}
		default:
			if atLineStart {
				return
			}
		}
		p.nextToken()
	}
}

func (p *Parser) takeErrorToken() error {
	tok := p.curTok
	p.nextToken()
	return diag.Errorf(tok.Line, tok.Column, "%s", tok.Text)
}

func (p *Parser) errHere(format string, args ...interface{}) error {
	return diag.Errorf(p.curTok.Line, p.curTok.Column, format, args...)
}

// opSymbol maps a token to its operator-table spelling, or "" when the
// token can never be an operator. The word operators arrive as keywords.
func opSymbol(tok lexer.Token) string {
	switch tok.Kind {
	case lexer.KindOperator:
		return tok.Text
	case lexer.KindAnd:
		return "and"
	case lexer.KindOr:
		return "or"
	case lexer.KindNot:
		return "not"
	}
	return ""
}

func (p *Parser) expectChar(c byte, where string) error {
	if !p.curTok.IsChar(c) {
		return p.errHere("expected '%c' %s, got %s", c, where, p.curTok.Describe())
	}
	p.nextToken()
	return nil
}

//
// Declarations
//

// parseDecoratedDefinition handles @unary and @binary(precedence=N) ahead
// of a def. The decorator only fixes the prototype's operator metadata;
// registration into the table happens in parseDefinition.
func (p *Parser) parseDecoratedDefinition() (ast.Decl, error) {
	p.nextToken() // eat '@'

	if p.curTok.Kind != lexer.KindIdentifier {
		return nil, p.errHere("expected decorator name after '@'")
	}
	var kind ast.OpKind
	switch p.curTok.Text {
	case "unary":
		kind = ast.OpUnary
	case "binary":
		kind = ast.OpBinary
	default:
		return nil, p.errHere("unknown decorator '%s'", p.curTok.Text)
	}
	p.nextToken() // eat decorator name

	prec := DefaultBinaryPrecedence
	if kind == ast.OpBinary && p.curTok.IsChar('(') {
		p.nextToken() // eat '('
		if !p.curTok.IsChar(')') {
			if p.curTok.Kind != lexer.KindIdentifier || p.curTok.Text != "precedence" {
				return nil, p.errHere("expected 'precedence' parameter in decorator")
			}
			p.nextToken() // eat 'precedence'
			if err := p.expectChar('=', "after 'precedence'"); err != nil {
				return nil, err
			}
			if p.curTok.Kind != lexer.KindNumber {
				return nil, p.errHere("expected number for precedence value")
			}
			prec = int(p.curTok.Num)
			p.nextToken() // eat number
		}
		if err := p.expectChar(')', "after precedence value"); err != nil {
			return nil, err
		}
	}

	for p.curTok.Kind == lexer.KindEOL {
		p.nextToken()
	}
	return p.parseDefinition(kind, prec)
}

func (p *Parser) parseDefinition(opKind ast.OpKind, prec int) (ast.Decl, error) {
	if p.curTok.Kind != lexer.KindDef {
		return nil, p.errHere("expected 'def', got %s", p.curTok.Describe())
	}
	p.nextToken() // eat def

	proto, err := p.parsePrototype(opKind, prec, false)
	if err != nil {
		return nil, err
	}

	// An operator definition is visible to the rest of its own body, so
	// register before parsing the suite. A parse failure rolls it back;
	// a later codegen failure is rolled back by the driver.
	if proto.Operator != ast.OpNone {
		arity := Unary
		if proto.Operator == ast.OpBinary {
			arity = Binary
		}
		entry := Entry{
			Symbol:     proto.Symbol,
			Arity:      arity,
			Precedence: proto.Precedence,
			Target:     proto.Name,
		}
		if err := p.ops.Register(entry); err != nil {
			return nil, diag.Errorf(proto.Token.Line, proto.Token.Column, "%s", err)
		}
		defer func() {
			if err != nil {
				p.ops.Remove(entry.Symbol, entry.Arity)
			}
		}()
	}

	if err = p.expectChar(':', "in function definition"); err != nil {
		return nil, err
	}
	var body *ast.BlockSuite
	body, err = p.parseSuite()
	if err != nil {
		return nil, err
	}
	return &ast.Function{Proto: proto, Body: body}, nil
}

func (p *Parser) parseExtern() (ast.Decl, error) {
	p.nextToken() // eat extern
	if p.curTok.Kind != lexer.KindDef {
		return nil, p.errHere("expected 'def' after extern")
	}
	p.nextToken() // eat def
	proto, err := p.parsePrototype(ast.OpNone, 0, true)
	if err != nil {
		return nil, err
	}
	return &ast.Extern{Proto: proto}, nil
}

// parsePrototype reads name(params). Operator definitions name a single
// operator character instead of an identifier and get the mangled
// "unary!" / "binary|" function name.
func (p *Parser) parsePrototype(opKind ast.OpKind, prec int, allowVariadic bool) (*ast.Prototype, error) {
	proto := &ast.Prototype{Token: p.curTok, Operator: opKind, Precedence: prec}

	if opKind != ast.OpNone {
		if p.curTok.Kind != lexer.KindOperator || len(p.curTok.Text) != 1 {
			return nil, p.errHere("expected single character operator, got %s", p.curTok.Describe())
		}
		proto.Symbol = p.curTok.Text
		if opKind == ast.OpUnary {
			proto.Name = "unary" + proto.Symbol
		} else {
			proto.Name = "binary" + proto.Symbol
		}
		p.nextToken()
	} else {
		if p.curTok.Kind != lexer.KindIdentifier {
			return nil, p.errHere("expected function name in prototype, got %s", p.curTok.Describe())
		}
		proto.Name = p.curTok.Text
		p.nextToken()
	}

	if err := p.expectChar('(', "in prototype"); err != nil {
		return nil, err
	}
	for !p.curTok.IsChar(')') {
		if allowVariadic && p.curTok.IsChar('.') {
			for i := 0; i < 3; i++ {
				if !p.curTok.IsChar('.') {
					return nil, p.errHere("expected '...' in parameter list")
				}
				p.nextToken()
			}
			proto.Variadic = true
			break
		}
		if p.curTok.Kind != lexer.KindIdentifier {
			return nil, p.errHere("expected parameter name, got %s", p.curTok.Describe())
		}
		proto.Params = append(proto.Params, p.curTok.Text)
		p.nextToken()
		if p.curTok.IsChar(')') {
			break
		}
		if err := p.expectChar(',', "in parameter list"); err != nil {
			return nil, err
		}
	}
	if err := p.expectChar(')', "in prototype"); err != nil {
		return nil, err
	}

	switch {
	case opKind == ast.OpUnary && len(proto.Params) != 1:
		return nil, diag.Errorf(proto.Token.Line, proto.Token.Column,
			"unary operator '%s' must take exactly one parameter", proto.Symbol)
	case opKind == ast.OpBinary && len(proto.Params) != 2:
		return nil, diag.Errorf(proto.Token.Line, proto.Token.Column,
			"binary operator '%s' must take exactly two parameters", proto.Symbol)
	}
	return proto, nil
}

func (p *Parser) parseTopLevelExpr() (ast.Decl, error) {
	tok := p.curTok
	expr, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	proto := &ast.Prototype{Token: tok, Name: AnonName}
	body := &ast.BlockSuite{Token: tok, Stmts: []ast.Stmt{
		&ast.ReturnStmt{Token: tok, Value: expr},
	}}
	return &ast.Function{Proto: proto, Body: body}, nil
}

//
// Statements
//

// parseSuite reads the body after ':'. An eol opens an indented block;
// anything else is a single inline statement.
func (p *Parser) parseSuite() (*ast.BlockSuite, error) {
	tok := p.curTok
	if p.curTok.Kind != lexer.KindEOL {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		return &ast.BlockSuite{Token: tok, Stmts: []ast.Stmt{stmt}}, nil
	}
	p.nextToken() // eat eol
	if p.curTok.Kind != lexer.KindIndent {
		if p.curTok.Kind == lexer.KindError {
			return nil, p.takeErrorToken()
		}
		return nil, p.errHere("expected an indented block")
	}
	p.nextToken() // eat indent

	suite := &ast.BlockSuite{Token: tok}
	for p.curTok.Kind != lexer.KindDedent && p.curTok.Kind != lexer.KindEOF {
		if p.curTok.Kind == lexer.KindEOL {
			p.nextToken()
			continue
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		suite.Stmts = append(suite.Stmts, stmt)
	}
	if len(suite.Stmts) == 0 {
		return nil, p.errHere("expected at least one statement in block")
	}
	if p.curTok.Kind == lexer.KindDedent {
		p.nextToken() // eat dedent
	}
	return suite, nil
}

func (p *Parser) parseStmt() (ast.Stmt, error) {
	switch p.curTok.Kind {
	case lexer.KindError:
		return nil, p.takeErrorToken()
	case lexer.KindIf:
		return p.parseIfStmt()
	case lexer.KindElif:
		return nil, p.errHere("unexpected 'elif' without matching 'if'")
	case lexer.KindElse:
		return nil, p.errHere("unexpected 'else' without matching 'if'")
	case lexer.KindFor:
		return p.parseForStmt()
	case lexer.KindWhile:
		return p.parseWhileStmt()
	case lexer.KindReturn:
		return p.parseReturnStmt()
	case lexer.KindIdentifier:
		return p.parseIdentifierLeadingStmt()
	default:
		tok := p.curTok
		expr, err := p.ParseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.ExprStmt{Token: tok, Expr: expr}, nil
	}
}

// parseIdentifierLeadingStmt disambiguates assignment from an expression
// statement that merely starts with a name.
func (p *Parser) parseIdentifierLeadingStmt() (ast.Stmt, error) {
	tok := p.curTok
	lhs, err := p.parseIdentifierExpr()
	if err != nil {
		return nil, err
	}

	if v, ok := lhs.(*ast.VariableExpr); ok && p.curTok.IsChar('=') {
		p.nextToken() // eat '='
		value, err := p.ParseExpression()
		if err != nil {
			return nil, err
		}
		return &ast.AssignStmt{Token: tok, Name: v.Name, Value: value}, nil
	}

	expr, err := p.parseBinOpRHS(0, lhs)
	if err != nil {
		return nil, err
	}
	return &ast.ExprStmt{Token: tok, Expr: expr}, nil
}

// parseIfStmt also accepts elif so a chain parses by recursion: each elif
// becomes an else suite holding exactly one nested if.
func (p *Parser) parseIfStmt() (ast.Stmt, error) {
	tok := p.curTok
	p.nextToken() // eat 'if' or 'elif'

	cond, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectChar(':', "after if condition"); err != nil {
		return nil, err
	}
	then, err := p.parseSuite()
	if err != nil {
		return nil, err
	}

	// An inline then-suite leaves its eol unconsumed; look past it so the
	// chain can continue on the next line.
	if p.curTok.Kind == lexer.KindEOL &&
		(p.peekTok.Kind == lexer.KindElif || p.peekTok.Kind == lexer.KindElse) {
		p.nextToken()
	}

	stmt := &ast.IfStmt{Token: tok, Cond: cond, Then: then}
	switch p.curTok.Kind {
	case lexer.KindElif:
		nested, err := p.parseIfStmt()
		if err != nil {
			return nil, err
		}
		stmt.Else = &ast.BlockSuite{Token: nested.Pos(), Stmts: []ast.Stmt{nested}}
	case lexer.KindElse:
		p.nextToken() // eat 'else'
		if err := p.expectChar(':', "after else"); err != nil {
			return nil, err
		}
		stmt.Else, err = p.parseSuite()
		if err != nil {
			return nil, err
		}
	}
	return stmt, nil
}

func (p *Parser) parseForStmt() (ast.Stmt, error) {
	tok := p.curTok
	p.nextToken() // eat for

	if p.curTok.Kind != lexer.KindIdentifier {
		return nil, p.errHere("expected identifier after for, got %s", p.curTok.Describe())
	}
	name := p.curTok.Text
	p.nextToken()

	if p.curTok.Kind != lexer.KindIn {
		return nil, p.errHere("expected 'in' after identifier in for")
	}
	p.nextToken()
	if p.curTok.Kind != lexer.KindRange {
		return nil, p.errHere("expected 'range' after 'in' in for")
	}
	p.nextToken()
	if err := p.expectChar('(', "after 'range'"); err != nil {
		return nil, err
	}

	start, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectChar(',', "after range start"); err != nil {
		return nil, err
	}
	end, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	var step ast.Expr
	if p.curTok.IsChar(',') {
		p.nextToken()
		step, err = p.ParseExpression()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expectChar(')', "after range arguments"); err != nil {
		return nil, err
	}
	if err := p.expectChar(':', "after range"); err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	return &ast.ForStmt{Token: tok, Var: name, Start: start, End: end, Step: step, Body: body}, nil
}

func (p *Parser) parseWhileStmt() (ast.Stmt, error) {
	tok := p.curTok
	p.nextToken() // eat while

	cond, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectChar(':', "after while condition"); err != nil {
		return nil, err
	}
	body, err := p.parseSuite()
	if err != nil {
		return nil, err
	}
	return &ast.WhileStmt{Token: tok, Cond: cond, Body: body}, nil
}

func (p *Parser) parseReturnStmt() (ast.Stmt, error) {
	tok := p.curTok
	p.nextToken() // eat return

	stmt := &ast.ReturnStmt{Token: tok}
	switch p.curTok.Kind {
	case lexer.KindEOL, lexer.KindDedent, lexer.KindEOF:
	default:
		value, err := p.ParseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Value = value
	}
	return stmt, nil
}

//
// Expressions
//

// ParseExpression is the precedence-climbing entry point.
func (p *Parser) ParseExpression() (ast.Expr, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return p.parseBinOpRHS(0, lhs)
}

// parseBinOpRHS folds operators at or above minPrec onto lhs, recursing at
// prec+1 whenever the operator after the operand binds tighter.
func (p *Parser) parseBinOpRHS(minPrec int, lhs ast.Expr) (ast.Expr, error) {
	for {
		sym := opSymbol(p.curTok)
		prec := -1
		if sym != "" {
			prec = p.ops.Precedence(sym)
		}
		if prec < minPrec {
			return lhs, nil
		}

		opTok := p.curTok
		p.nextToken() // eat the operator

		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		if next := p.ops.Precedence(opSymbol(p.curTok)); prec < next {
			rhs, err = p.parseBinOpRHS(prec+1, rhs)
			if err != nil {
				return nil, err
			}
		}
		lhs = &ast.BinaryExpr{Token: opTok, Op: sym, LHS: lhs, RHS: rhs}
	}
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	sym := opSymbol(p.curTok)
	if sym != "" {
		if _, ok := p.ops.Lookup(sym, Unary); ok {
			tok := p.curTok
			p.nextToken()
			operand, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &ast.UnaryExpr{Token: tok, Op: sym, Operand: operand}, nil
		}
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	switch {
	case p.curTok.Kind == lexer.KindError:
		return nil, p.takeErrorToken()
	case p.curTok.Kind == lexer.KindNumber:
		tok := p.curTok
		p.nextToken()
		return &ast.NumberLit{Token: tok, Value: tok.Num}, nil
	case p.curTok.Kind == lexer.KindString:
		tok := p.curTok
		p.nextToken()
		return &ast.StringLit{Token: tok, Value: tok.Text}, nil
	case p.curTok.Kind == lexer.KindIdentifier:
		return p.parseIdentifierExpr()
	case p.curTok.Kind == lexer.KindVar:
		return p.parseVarExpr()
	case p.curTok.IsChar('('):
		p.nextToken() // eat '('
		expr, err := p.ParseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectChar(')', "to close expression"); err != nil {
			return nil, err
		}
		return expr, nil
	default:
		return nil, p.errHere("unknown token when expecting an expression, got %s", p.curTok.Describe())
	}
}

func (p *Parser) parseIdentifierExpr() (ast.Expr, error) {
	tok := p.curTok
	p.nextToken() // eat identifier
	if !p.curTok.IsChar('(') {
		return &ast.VariableExpr{Token: tok, Name: tok.Text}, nil
	}
	p.nextToken() // eat '('

	call := &ast.CallExpr{Token: tok, Callee: tok.Text}
	for !p.curTok.IsChar(')') {
		arg, err := p.ParseExpression()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if p.curTok.IsChar(')') {
			break
		}
		if err := p.expectChar(',', "in argument list"); err != nil {
			return nil, err
		}
	}
	p.nextToken() // eat ')'
	return call, nil
}

// parseVarExpr reads var a = init, b in body. Uninitialized names default
// to 0.0 at code generation.
func (p *Parser) parseVarExpr() (ast.Expr, error) {
	tok := p.curTok
	p.nextToken() // eat var

	expr := &ast.VarExpr{Token: tok}
	if p.curTok.Kind != lexer.KindIdentifier {
		return nil, p.errHere("expected identifier after var")
	}
	for {
		init := ast.VarInit{Name: p.curTok.Text}
		p.nextToken() // eat identifier
		if p.curTok.IsChar('=') {
			p.nextToken() // eat '='
			value, err := p.ParseExpression()
			if err != nil {
				return nil, err
			}
			init.Init = value
		}
		expr.Names = append(expr.Names, init)
		if !p.curTok.IsChar(',') {
			break
		}
		p.nextToken() // eat ','
		if p.curTok.Kind != lexer.KindIdentifier {
			return nil, p.errHere("expected identifier list after var")
		}
	}

	if p.curTok.Kind != lexer.KindIn {
		return nil, p.errHere("expected 'in' keyword after 'var'")
	}
	p.nextToken() // eat 'in'
	for p.curTok.Kind == lexer.KindEOL {
		p.nextToken()
	}
	body, err := p.ParseExpression()
	if err != nil {
		return nil, err
	}
	expr.Body = body
	return expr, nil
}
