// Package codegen lowers declarations to IR. Mutable locals live in
// entry-block stack slots with a load/store at every use; promoting them to
// registers is the backend's job, which keeps every lowering here a local
// rewrite with no dominance bookkeeping.
package codegen

import (
	"fmt"

	"github.com/pyxlang/pyx/pkg/compiler/ast"
	"github.com/pyxlang/pyx/pkg/compiler/diag"
	"github.com/pyxlang/pyx/pkg/ir"
)

// Generator lowers one declaration at a time into a persistent module. The
// prototype registry outlives individual declarations so a definition can
// call anything declared earlier in the session; per-function state is
// reset on every definition. Single-goroutine use only.
type Generator struct {
	mod    *ir.Module
	b      *ir.Builder
	protos map[string]*ast.Prototype

	// per-function
	fn    *ir.Function
	named map[string]*ir.Instr
}

func New() *Generator {
	mod := ir.NewModule()
	return &Generator{
		mod:    mod,
		b:      ir.NewBuilder(mod),
		protos: make(map[string]*ast.Prototype),
	}
}

// Module returns the module built so far.
func (g *Generator) Module() *ir.Module { return g.mod }

// Generate lowers one declaration. On failure the module is left exactly
// as it was before the call.
func (g *Generator) Generate(decl ast.Decl) (*ir.Function, error) {
	switch d := decl.(type) {
	case *ast.Extern:
		return g.genExtern(d)
	case *ast.Function:
		return g.genFunction(d)
	default:
		return nil, fmt.Errorf("unsupported declaration %T", decl)
	}
}

func errAt(n ast.Node, format string, args ...interface{}) error {
	tok := n.Pos()
	return diag.Errorf(tok.Line, tok.Column, format, args...)
}

// registerProto records a prototype, rejecting an arity change against any
// earlier registration of the same name. It returns an undo closure.
func (g *Generator) registerProto(proto *ast.Prototype) (func(), error) {
	old, existed := g.protos[proto.Name]
	if existed && (len(old.Params) != len(proto.Params) || old.Variadic != proto.Variadic) {
		return nil, errAt(proto, "incompatible redeclaration of '%s'", proto.Name)
	}
	g.protos[proto.Name] = proto
	return func() {
		if existed {
			g.protos[proto.Name] = old
		} else {
			delete(g.protos, proto.Name)
		}
	}, nil
}

// declare emits a declaration for proto. Known runtime externs get their
// real signatures; everything else is f64 throughout.
func (g *Generator) declare(proto *ast.Prototype) (*ir.Function, error) {
	if sig, ok := runtimeExterns[proto.Name]; ok {
		if len(proto.Params) != len(sig.params) || proto.Variadic != sig.variadic {
			return nil, errAt(proto, "extern '%s' does not match its runtime signature", proto.Name)
		}
		params := make([]*ir.Param, len(sig.params))
		for i, ty := range sig.params {
			name := fmt.Sprintf("arg%d", i)
			if i < len(proto.Params) {
				name = proto.Params[i]
			}
			params[i] = &ir.Param{Name: name, Ty: ty}
		}
		return g.mod.NewFunction(proto.Name, sig.ret, params, sig.variadic), nil
	}
	params := make([]*ir.Param, len(proto.Params))
	for i, name := range proto.Params {
		params[i] = &ir.Param{Name: name, Ty: ir.F64}
	}
	return g.mod.NewFunction(proto.Name, ir.F64, params, proto.Variadic), nil
}

func (g *Generator) genExtern(d *ast.Extern) (*ir.Function, error) {
	undo, err := g.registerProto(d.Proto)
	if err != nil {
		return nil, err
	}
	if fn := g.mod.Lookup(d.Proto.Name); fn != nil {
		if len(fn.Params) != len(d.Proto.Params) || fn.Variadic != d.Proto.Variadic {
			undo()
			return nil, errAt(d.Proto, "incompatible redeclaration of '%s'", d.Proto.Name)
		}
		return fn, nil
	}
	fn, err := g.declare(d.Proto)
	if err != nil {
		undo()
		return nil, err
	}
	return fn, nil
}

// getFunction resolves a callee: the module first, then the prototype
// registry, which re-emits a declaration stub so forward references keep
// working after the original declaration's unit is gone.
func (g *Generator) getFunction(name string) *ir.Function {
	if fn := g.mod.Lookup(name); fn != nil {
		return fn
	}
	if proto, ok := g.protos[name]; ok {
		fn, err := g.declare(proto)
		if err == nil {
			return fn
		}
	}
	return nil
}

func (g *Generator) genFunction(d *ast.Function) (*ir.Function, error) {
	proto := d.Proto
	undo, err := g.registerProto(proto)
	if err != nil {
		return nil, err
	}

	fn := g.mod.Lookup(proto.Name)
	created := fn == nil
	switch {
	case created:
		if fn, err = g.declare(proto); err != nil {
			undo()
			return nil, err
		}
	case !fn.IsDeclaration():
		undo()
		return nil, errAt(proto, "function '%s' is already defined", proto.Name)
	case len(fn.Params) != len(proto.Params):
		undo()
		return nil, errAt(proto, "incompatible redeclaration of '%s'", proto.Name)
	}

	rollback := func() {
		if created {
			g.mod.Remove(fn)
		} else {
			fn.Blocks = nil
		}
		undo()
	}

	g.fn = fn
	g.named = make(map[string]*ir.Instr)
	entry := g.b.NewBlock(fn, "entry")
	g.b.SetInsertPoint(entry)
	for _, p := range fn.Params {
		slot := g.b.CreateAlloca(p.Ty, p.Name)
		g.b.CreateStore(p, slot)
		g.named[p.Name] = slot
	}

	val, err := g.genSuite(d.Body)
	if err != nil {
		rollback()
		return nil, err
	}
	if !g.b.InsertPoint().Terminated() {
		g.b.CreateRet(val)
	}
	return fn, nil
}

//
// Statements
//

// genSuite lowers the statements in order, stopping at an explicit return;
// a warning-free alternative to generating into provably dead code.
func (g *Generator) genSuite(suite *ast.BlockSuite) (ir.Value, error) {
	var last ir.Value = ir.ConstFloat(0)
	for _, stmt := range suite.Stmts {
		v, err := g.genStmt(stmt)
		if err != nil {
			return nil, err
		}
		last = v
		if r, ok := stmt.(*ast.ReturnStmt); ok && r.Terminates() {
			break
		}
	}
	return last, nil
}

func (g *Generator) genStmt(stmt ast.Stmt) (ir.Value, error) {
	switch s := stmt.(type) {
	case *ast.ExprStmt:
		return g.genExpr(s.Expr)
	case *ast.AssignStmt:
		slot, ok := g.named[s.Name]
		if !ok {
			return nil, errAt(s, "unknown variable name '%s'", s.Name)
		}
		val, err := g.genExpr(s.Value)
		if err != nil {
			return nil, err
		}
		g.b.CreateStore(val, slot)
		return val, nil
	case *ast.ReturnStmt:
		return g.genReturn(s)
	case *ast.IfStmt:
		return g.genIf(s)
	case *ast.ForStmt:
		return g.genFor(s)
	case *ast.WhileStmt:
		return g.genWhile(s)
	case *ast.BlockSuite:
		return g.genSuite(s)
	default:
		return nil, errAt(stmt, "unsupported statement %T", stmt)
	}
}

func (g *Generator) genReturn(s *ast.ReturnStmt) (ir.Value, error) {
	if s.Value == nil {
		if g.fn.Ret != ir.Void {
			return nil, errAt(s, "missing return value for non-void function")
		}
		g.b.CreateRetVoid()
		return ir.ConstFloat(0), nil
	}
	val, err := g.genExpr(s.Value)
	if err != nil {
		return nil, err
	}
	g.b.CreateRet(val)
	return val, nil
}

// genIf lowers a conditional. The terminator check happens after each
// branch is generated, so a branch that returned gets no jump to the merge
// block. The merge block is created only for a branch that actually falls
// through; when both sides terminated there is no reachable continuation
// and the remaining statements land in a dead block.
func (g *Generator) genIf(s *ast.IfStmt) (ir.Value, error) {
	cond, err := g.genCondition(s.Cond)
	if err != nil {
		return nil, err
	}

	thenBB := g.b.NewBlock(g.fn, "then")
	elseBB := g.b.NewBlock(g.fn, "else")
	var mergeBB *ir.Block
	merge := func() *ir.Block {
		if mergeBB == nil {
			mergeBB = g.b.NewBlock(g.fn, "ifcont")
		}
		return mergeBB
	}
	g.b.CreateCondBr(cond, thenBB, elseBB)

	g.b.SetInsertPoint(thenBB)
	thenV, err := g.genSuite(s.Then)
	if err != nil {
		return nil, err
	}
	thenTerminated := g.b.InsertPoint().Terminated()
	if !thenTerminated {
		g.b.CreateBr(merge())
	}
	// generation may have moved the insert point; the phi wants the block
	// control actually arrives from
	thenBB = g.b.InsertPoint()

	g.b.SetInsertPoint(elseBB)
	var elseV ir.Value = ir.ConstFloat(0)
	elseTerminated := false
	if s.Else != nil {
		elseV, err = g.genSuite(s.Else)
		if err != nil {
			return nil, err
		}
		elseTerminated = g.b.InsertPoint().Terminated()
	}
	if !elseTerminated {
		g.b.CreateBr(merge())
	}
	elseBB = g.b.InsertPoint()

	if thenTerminated && elseTerminated {
		dead := g.b.NewBlock(g.fn, "ifcont.dead")
		g.b.SetInsertPoint(dead)
		return ir.ConstFloat(0), nil
	}

	g.b.SetInsertPoint(mergeBB)
	if !thenTerminated && !elseTerminated {
		for _, v := range []ir.Value{thenV, elseV} {
			if v.Type() != ir.F64 {
				return nil, errAt(s, "branch of 'if' yields %s, expected f64", v.Type())
			}
		}
		return g.b.CreatePhi(ir.F64, []ir.Incoming{
			{Value: thenV, Block: thenBB},
			{Value: elseV, Block: elseBB},
		}), nil
	}
	if thenTerminated {
		return elseV, nil
	}
	return thenV, nil
}

// genWhile lowers cond/body/exit blocks, re-evaluating the condition at
// every back edge. The loop yields 0.0; no merge node is involved.
func (g *Generator) genWhile(s *ast.WhileStmt) (ir.Value, error) {
	condBB := g.b.NewBlock(g.fn, "while.cond")
	bodyBB := g.b.NewBlock(g.fn, "while.body")
	exitBB := g.b.NewBlock(g.fn, "while.exit")

	g.b.CreateBr(condBB)
	g.b.SetInsertPoint(condBB)
	cond, err := g.genCondition(s.Cond)
	if err != nil {
		return nil, err
	}
	g.b.CreateCondBr(cond, bodyBB, exitBB)

	g.b.SetInsertPoint(bodyBB)
	if _, err := g.genSuite(s.Body); err != nil {
		return nil, err
	}
	if !g.b.InsertPoint().Terminated() {
		g.b.CreateBr(condBB)
	}

	g.b.SetInsertPoint(exitBB)
	return ir.ConstFloat(0), nil
}

// genFor lowers for i in range(start, end[, step]). The induction variable
// is an entry-block slot rewritten in a dedicated step block; the
// precondition block re-reads end each iteration, so the bound is live.
func (g *Generator) genFor(s *ast.ForStmt) (ir.Value, error) {
	start, err := g.genExpr(s.Start)
	if err != nil {
		return nil, err
	}
	slot := g.b.CreateEntryAlloca(g.fn, ir.F64, s.Var)
	g.b.CreateStore(start, slot)

	// the loop variable may shadow an outer binding
	oldSlot, hadOld := g.named[s.Var]
	g.named[s.Var] = slot

	condBB := g.b.NewBlock(g.fn, "loopcond")
	loopBB := g.b.NewBlock(g.fn, "loop")
	stepBB := g.b.NewBlock(g.fn, "loopstep")
	endBB := g.b.NewBlock(g.fn, "endloop")

	g.b.CreateBr(condBB)
	g.b.SetInsertPoint(condBB)
	end, err := g.genExpr(s.End)
	if err != nil {
		return nil, err
	}
	cur := g.b.CreateLoad(slot)
	g.b.CreateCondBr(g.b.CreateCmp(ir.OpCmpLT, cur, end), loopBB, endBB)

	g.b.SetInsertPoint(loopBB)
	if _, err := g.genSuite(s.Body); err != nil {
		return nil, err
	}
	if !g.b.InsertPoint().Terminated() {
		g.b.CreateBr(stepBB)
	}

	g.b.SetInsertPoint(stepBB)
	var step ir.Value = ir.ConstFloat(1)
	if s.Step != nil {
		if step, err = g.genExpr(s.Step); err != nil {
			return nil, err
		}
	}
	next := g.b.CreateBinOp(ir.OpFAdd, g.b.CreateLoad(slot), step)
	g.b.CreateStore(next, slot)
	g.b.CreateBr(condBB)

	g.b.SetInsertPoint(endBB)
	if hadOld {
		g.named[s.Var] = oldSlot
	} else {
		delete(g.named, s.Var)
	}
	return ir.ConstFloat(0), nil
}

//
// Expressions
//

func (g *Generator) genExpr(expr ast.Expr) (ir.Value, error) {
	switch e := expr.(type) {
	case *ast.NumberLit:
		return ir.ConstFloat(e.Value), nil
	case *ast.StringLit:
		return ir.ConstString(e.Value), nil
	case *ast.VariableExpr:
		slot, ok := g.named[e.Name]
		if !ok {
			return nil, errAt(e, "unknown variable name '%s'", e.Name)
		}
		return g.b.CreateLoad(slot), nil
	case *ast.UnaryExpr:
		return g.genUnary(e)
	case *ast.BinaryExpr:
		return g.genBinary(e)
	case *ast.CallExpr:
		return g.genCall(e)
	case *ast.VarExpr:
		return g.genVar(e)
	default:
		return nil, errAt(expr, "unsupported expression %T", expr)
	}
}

// genCondition evaluates an expression for branching, truth being != 0.
func (g *Generator) genCondition(expr ast.Expr) (ir.Value, error) {
	v, err := g.genExpr(expr)
	if err != nil {
		return nil, err
	}
	return g.toBool(v), nil
}

func (g *Generator) toBool(v ir.Value) ir.Value {
	if v.Type() == ir.I1 {
		return v
	}
	return g.b.CreateF64ToI1(v)
}

func (g *Generator) genUnary(e *ast.UnaryExpr) (ir.Value, error) {
	operand, err := g.genExpr(e.Operand)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case "-":
		return g.b.CreateBinOp(ir.OpFSub, ir.ConstFloat(0), operand), nil
	case "!", "not":
		inverted := g.b.CreateCmp(ir.OpCmpNE, g.toBool(operand), ir.ConstBool(true))
		return g.b.CreateI1ToF64(inverted), nil
	}
	fn := g.getFunction("unary" + e.Op)
	if fn == nil {
		return nil, errAt(e, "unknown unary operator '%s'", e.Op)
	}
	return g.b.CreateCall(fn, []ir.Value{operand}), nil
}

func (g *Generator) genBinary(e *ast.BinaryExpr) (ir.Value, error) {
	switch e.Op {
	case "=":
		return g.genExprAssign(e)
	case "and", "or":
		return g.genShortCircuit(e)
	}

	lhs, err := g.genExpr(e.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := g.genExpr(e.RHS)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case "+":
		return g.b.CreateBinOp(ir.OpFAdd, lhs, rhs), nil
	case "-":
		return g.b.CreateBinOp(ir.OpFSub, lhs, rhs), nil
	case "*":
		return g.b.CreateBinOp(ir.OpFMul, lhs, rhs), nil
	case "/":
		return g.b.CreateBinOp(ir.OpFDiv, lhs, rhs), nil
	case "<":
		return g.b.CreateI1ToF64(g.b.CreateCmp(ir.OpCmpLT, lhs, rhs)), nil
	case ">":
		return g.b.CreateI1ToF64(g.b.CreateCmp(ir.OpCmpGT, lhs, rhs)), nil
	}

	fn := g.getFunction("binary" + e.Op)
	if fn == nil {
		return nil, errAt(e, "unknown binary operator '%s'", e.Op)
	}
	return g.b.CreateCall(fn, []ir.Value{lhs, rhs}), nil
}

func (g *Generator) genExprAssign(e *ast.BinaryExpr) (ir.Value, error) {
	target, ok := e.LHS.(*ast.VariableExpr)
	if !ok {
		return nil, errAt(e, "destination of '=' must be a variable")
	}
	val, err := g.genExpr(e.RHS)
	if err != nil {
		return nil, err
	}
	slot, ok := g.named[target.Name]
	if !ok {
		return nil, errAt(target, "unknown variable name '%s'", target.Name)
	}
	g.b.CreateStore(val, slot)
	return val, nil
}

// genShortCircuit lowers and/or without evaluating the right side unless
// control needs it. The merge phi carries i1, picking the lhs constant when
// the rhs was skipped; the result widens back to f64.
func (g *Generator) genShortCircuit(e *ast.BinaryExpr) (ir.Value, error) {
	lhs, err := g.genCondition(e.LHS)
	if err != nil {
		return nil, err
	}
	lhsBB := g.b.InsertPoint()
	rhsBB := g.b.NewBlock(g.fn, "logic.rhs")
	mergeBB := g.b.NewBlock(g.fn, "logic.cont")

	shortValue := ir.ConstBool(false) // "and": false lhs skips rhs
	if e.Op == "and" {
		g.b.CreateCondBr(lhs, rhsBB, mergeBB)
	} else {
		shortValue = ir.ConstBool(true) // "or": true lhs skips rhs
		g.b.CreateCondBr(lhs, mergeBB, rhsBB)
	}

	g.b.SetInsertPoint(rhsBB)
	rhs, err := g.genCondition(e.RHS)
	if err != nil {
		return nil, err
	}
	g.b.CreateBr(mergeBB)
	rhsBB = g.b.InsertPoint()

	g.b.SetInsertPoint(mergeBB)
	phi := g.b.CreatePhi(ir.I1, []ir.Incoming{
		{Value: shortValue, Block: lhsBB},
		{Value: rhs, Block: rhsBB},
	})
	return g.b.CreateI1ToF64(phi), nil
}

func (g *Generator) genCall(e *ast.CallExpr) (ir.Value, error) {
	fn := g.getFunction(e.Callee)
	if fn == nil {
		return nil, errAt(e, "unknown function referenced '%s'", e.Callee)
	}
	if fn.Variadic {
		if len(e.Args) < len(fn.Params) {
			return nil, errAt(e, "incorrect number of arguments passed to '%s'", e.Callee)
		}
	} else if len(e.Args) != len(fn.Params) {
		return nil, errAt(e, "incorrect number of arguments passed to '%s'", e.Callee)
	}

	args := make([]ir.Value, 0, len(e.Args))
	for i, arg := range e.Args {
		v, err := g.genExpr(arg)
		if err != nil {
			return nil, err
		}
		if i < len(fn.Params) && v.Type() != fn.Params[i].Ty {
			return nil, errAt(arg, "argument %d of '%s' must be %s", i+1, e.Callee, fn.Params[i].Ty)
		}
		args = append(args, v)
	}
	call := g.b.CreateCall(fn, args)
	if fn.Ret == ir.Void {
		return ir.ConstFloat(0), nil
	}
	return call, nil
}

// genVar lowers var a = init, b in body: fresh slots scoped to the body
// expression, restoring shadowed bindings afterwards. Initializers run
// before their own name is visible, so var a = a in ... reads the outer a.
func (g *Generator) genVar(e *ast.VarExpr) (ir.Value, error) {
	type saved struct {
		name string
		slot *ir.Instr
		had  bool
	}
	var old []saved

	for _, v := range e.Names {
		var init ir.Value = ir.ConstFloat(0)
		if v.Init != nil {
			var err error
			if init, err = g.genExpr(v.Init); err != nil {
				return nil, err
			}
		}
		slot := g.b.CreateEntryAlloca(g.fn, ir.F64, v.Name)
		g.b.CreateStore(init, slot)

		prev, had := g.named[v.Name]
		old = append(old, saved{v.Name, prev, had})
		g.named[v.Name] = slot
	}

	body, err := g.genExpr(e.Body)
	if err != nil {
		return nil, err
	}

	for _, s := range old {
		if s.had {
			g.named[s.name] = s.slot
		} else {
			delete(g.named, s.name)
		}
	}
	return body, nil
}
