package ir

import (
	"errors"
	"fmt"
)

// Verify checks the structural invariants the rest of the toolchain relies
// on: one terminator per block, placed last; phi incomings agreeing with
// the block's predecessors; allocas confined to entry blocks; operand
// types matching. All violations found are reported.
func (m *Module) Verify() error {
	var errs []error
	for _, f := range m.Funcs {
		if f.IsDeclaration() {
			continue
		}
		errs = append(errs, verifyFunction(f)...)
	}
	return errors.Join(errs...)
}

func verifyFunction(f *Function) []error {
	var errs []error
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("@%s: %s", f.Name, fmt.Sprintf(format, args...)))
	}

	preds := make(map[*Block]map[*Block]bool)
	for _, blk := range f.Blocks {
		if t := blk.Terminator(); t != nil {
			for _, target := range t.Targets {
				if preds[target] == nil {
					preds[target] = make(map[*Block]bool)
				}
				preds[target][blk] = true
			}
		}
	}

	for _, blk := range f.Blocks {
		if len(blk.Instrs) == 0 || !blk.Instrs[len(blk.Instrs)-1].IsTerminator() {
			fail("block %%%s has no terminator", blk.Name)
		}
		seenNonPhi := false
		for idx, in := range blk.Instrs {
			if in.IsTerminator() && idx != len(blk.Instrs)-1 {
				fail("block %%%s has a terminator before its end", blk.Name)
			}
			if in.Op != OpPhi {
				seenNonPhi = true
			}
			switch in.Op {
			case OpAlloca:
				if blk != f.Entry() {
					fail("alloca for '%s' outside the entry block", in.Slot)
				}
			case OpPhi:
				if seenNonPhi {
					fail("phi in block %%%s after a non-phi instruction", blk.Name)
				}
				verifyPhi(fail, blk, in, preds[blk])
			case OpLoad:
				if slot, ok := in.Args[0].(*Instr); !ok || slot.Op != OpAlloca {
					fail("load in block %%%s not from an alloca slot", blk.Name)
				}
			case OpStore:
				slot, ok := in.Args[1].(*Instr)
				if !ok || slot.Op != OpAlloca {
					fail("store in block %%%s not to an alloca slot", blk.Name)
				} else if in.Args[0].Type() != slot.Elem {
					fail("store of %s into %s slot '%s'", in.Args[0].Type(), slot.Elem, slot.Slot)
				}
			case OpFAdd, OpFSub, OpFMul, OpFDiv:
				if in.Args[0].Type() != F64 || in.Args[1].Type() != F64 {
					fail("%s on non-f64 operands in block %%%s", in.Op, blk.Name)
				}
			case OpCmpLT, OpCmpGT, OpCmpNE:
				if in.Args[0].Type() != in.Args[1].Type() {
					fail("comparison of %s against %s in block %%%s",
						in.Args[0].Type(), in.Args[1].Type(), blk.Name)
				}
			case OpI1ToF64:
				if in.Args[0].Type() != I1 {
					fail("uitofp of non-i1 value in block %%%s", blk.Name)
				}
			case OpCall:
				verifyCall(fail, blk, in)
			case OpCondBr:
				if in.Args[0].Type() != I1 {
					fail("conditional branch on non-i1 value in block %%%s", blk.Name)
				}
			case OpRet:
				if in.Args[0].Type() != f.Ret {
					fail("returning %s from a %s function", in.Args[0].Type(), f.Ret)
				}
			case OpRetVoid:
				if f.Ret != Void {
					fail("bare return in a %s function", f.Ret)
				}
			}
		}
	}
	return errs
}

func verifyPhi(fail func(string, ...interface{}), blk *Block, in *Instr, preds map[*Block]bool) {
	if len(in.Incomings) != len(preds) {
		fail("phi in block %%%s has %d incomings for %d predecessors",
			blk.Name, len(in.Incomings), len(preds))
		return
	}
	seen := make(map[*Block]bool)
	for _, inc := range in.Incomings {
		if !preds[inc.Block] {
			fail("phi in block %%%s names %%%s, not a predecessor", blk.Name, inc.Block.Name)
		}
		if seen[inc.Block] {
			fail("phi in block %%%s names %%%s twice", blk.Name, inc.Block.Name)
		}
		seen[inc.Block] = true
		if inc.Value.Type() != in.Ty {
			fail("phi in block %%%s mixes %s and %s", blk.Name, in.Ty, inc.Value.Type())
		}
	}
}

func verifyCall(fail func(string, ...interface{}), blk *Block, in *Instr) {
	callee := in.Callee
	if callee.Variadic {
		if len(in.Args) < len(callee.Params) {
			fail("call to @%s with %d arguments, needs at least %d",
				callee.Name, len(in.Args), len(callee.Params))
		}
	} else if len(in.Args) != len(callee.Params) {
		fail("call to @%s with %d arguments, expected %d",
			callee.Name, len(in.Args), len(callee.Params))
	}
	for i, p := range callee.Params {
		if i < len(in.Args) && in.Args[i].Type() != p.Ty {
			fail("argument %d of call to @%s is %s, expected %s",
				i+1, callee.Name, in.Args[i].Type(), p.Ty)
		}
	}
}
