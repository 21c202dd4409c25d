package ir

import "strconv"

// Builder appends instructions at an insertion point. All Create methods
// emit into the current block; moving the point never rewrites what was
// already emitted.
type Builder struct {
	mod   *Module
	block *Block
}

func NewBuilder(mod *Module) *Builder {
	return &Builder{mod: mod}
}

// Module returns the module being built.
func (b *Builder) Module() *Module { return b.mod }

// NewBlock appends a fresh block to fn. Names are uniqued per function so
// lowering can reuse mnemonic names like "then" freely.
func (b *Builder) NewBlock(fn *Function, name string) *Block {
	if n := fn.nextBlock[name]; n > 0 {
		fn.nextBlock[name] = n + 1
		name += strconv.Itoa(n)
	} else {
		fn.nextBlock[name] = 1
	}
	blk := &Block{Name: name, Fn: fn}
	fn.Blocks = append(fn.Blocks, blk)
	return blk
}

// SetInsertPoint directs subsequent instructions into blk.
func (b *Builder) SetInsertPoint(blk *Block) { b.block = blk }

// InsertPoint returns the current block.
func (b *Builder) InsertPoint() *Block { return b.block }

func (b *Builder) emit(in *Instr) *Instr {
	in.id = b.block.Fn.nextID
	b.block.Fn.nextID++
	b.block.Instrs = append(b.block.Instrs, in)
	return in
}

// CreateAlloca reserves a stack slot for one elem value. The verifier
// requires every alloca to sit in its function's entry block.
func (b *Builder) CreateAlloca(elem Type, name string) *Instr {
	return b.emit(&Instr{Op: OpAlloca, Ty: elem, Elem: elem, Slot: name})
}

// CreateEntryAlloca emits the alloca at the top of fn's entry block no
// matter where the insertion point currently is.
func (b *Builder) CreateEntryAlloca(fn *Function, elem Type, name string) *Instr {
	in := &Instr{Op: OpAlloca, Ty: elem, Elem: elem, Slot: name, id: fn.nextID}
	fn.nextID++
	entry := fn.Entry()
	// keep allocas clustered before any real instruction
	idx := 0
	for idx < len(entry.Instrs) && entry.Instrs[idx].Op == OpAlloca {
		idx++
	}
	entry.Instrs = append(entry.Instrs, nil)
	copy(entry.Instrs[idx+1:], entry.Instrs[idx:])
	entry.Instrs[idx] = in
	return in
}

func (b *Builder) CreateLoad(slot *Instr) *Instr {
	return b.emit(&Instr{Op: OpLoad, Ty: slot.Elem, Args: []Value{slot}})
}

func (b *Builder) CreateStore(v Value, slot *Instr) *Instr {
	return b.emit(&Instr{Op: OpStore, Ty: Void, Args: []Value{v, slot}})
}

// CreateBinOp emits an f64 arithmetic instruction (OpFAdd..OpFDiv).
func (b *Builder) CreateBinOp(op Op, lhs, rhs Value) *Instr {
	return b.emit(&Instr{Op: op, Ty: F64, Args: []Value{lhs, rhs}})
}

// CreateCmp emits an i1-valued comparison (OpCmpLT, OpCmpGT, OpCmpNE).
func (b *Builder) CreateCmp(op Op, lhs, rhs Value) *Instr {
	return b.emit(&Instr{Op: op, Ty: I1, Args: []Value{lhs, rhs}})
}

// CreateI1ToF64 widens a truth value to 0.0 or 1.0.
func (b *Builder) CreateI1ToF64(v Value) *Instr {
	return b.emit(&Instr{Op: OpI1ToF64, Ty: F64, Args: []Value{v}})
}

// CreateF64ToI1 narrows a number to its truth value, true when != 0.
func (b *Builder) CreateF64ToI1(v Value) *Instr {
	return b.CreateCmp(OpCmpNE, v, ConstFloat(0))
}

func (b *Builder) CreateCall(callee *Function, args []Value) *Instr {
	return b.emit(&Instr{Op: OpCall, Ty: callee.Ret, Callee: callee, Args: args})
}

func (b *Builder) CreateBr(target *Block) *Instr {
	return b.emit(&Instr{Op: OpBr, Ty: Void, Targets: []*Block{target}})
}

func (b *Builder) CreateCondBr(cond Value, then, els *Block) *Instr {
	return b.emit(&Instr{Op: OpCondBr, Ty: Void, Args: []Value{cond}, Targets: []*Block{then, els}})
}

func (b *Builder) CreatePhi(ty Type, incomings []Incoming) *Instr {
	return b.emit(&Instr{Op: OpPhi, Ty: ty, Incomings: incomings})
}

func (b *Builder) CreateRet(v Value) *Instr {
	return b.emit(&Instr{Op: OpRet, Ty: Void, Args: []Value{v}})
}

func (b *Builder) CreateRetVoid() *Instr {
	return b.emit(&Instr{Op: OpRetVoid, Ty: Void})
}
