package ir

import (
	"slices"

	"toyir/internal/errors"
)

// Builder appends instructions at a single insertion point: a function, one
// of its blocks, and a position within that block. Every emission inserts at
// the cursor and advances it past the new instruction.
//
// A construction error leaves the graph as it was before the call and marks
// the function as aborted; the verifier will refuse it.
type Builder struct {
	ctx *Context

	currentFunc  *Function
	currentBlock *BasicBlock
	pos          int
}

// NewBuilder creates a builder with no insertion point
func NewBuilder(ctx *Context) *Builder {
	return &Builder{ctx: ctx}
}

// Context returns the context the builder emits into
func (b *Builder) Context() *Context { return b.ctx }

// CurrentFunction returns the function under the cursor, or nil
func (b *Builder) CurrentFunction() *Function { return b.currentFunc }

// CurrentBlock returns the block under the cursor, or NoBlock
func (b *Builder) CurrentBlock() BlockID {
	if b.currentBlock == nil {
		return NoBlock
	}
	return b.currentBlock.ID
}

// Cursor positioning

// SetInsertionPoint moves the cursor to the end of block. A terminated block
// cannot be appended to.
func (b *Builder) SetInsertionPoint(id BlockID) error {
	block, err := b.ctx.checkBlock(id)
	if err != nil {
		return err
	}
	fn := b.ctx.Func(block.Func)
	if block.IsTerminated() {
		return errors.BlockTerminatedError(fn.Name, block.Label(), len(block.Instructions))
	}
	b.currentFunc = fn
	b.currentBlock = block
	b.pos = len(block.Instructions)
	return nil
}

// SetInsertionPointAt moves the cursor before the index-th instruction of
// block. Positions up to, but not past, the terminator are allowed.
func (b *Builder) SetInsertionPointAt(id BlockID, index int) error {
	block, err := b.ctx.checkBlock(id)
	if err != nil {
		return err
	}
	fn := b.ctx.Func(block.Func)
	if index < 0 || index > len(block.Instructions) {
		return errors.BlockTerminatedError(fn.Name, block.Label(), index)
	}
	b.currentFunc = fn
	b.currentBlock = block
	b.pos = index
	return nil
}

// CreateBlock appends a new block to the current function without moving the
// cursor.
func (b *Builder) CreateBlock(name string) (BlockID, error) {
	if b.currentFunc == nil {
		return NoBlock, noInsertionPoint()
	}
	return b.ctx.CreateBlock(b.currentFunc, name)
}

// cursor returns the insertion point, failing when there is none, the
// function is sealed or aborted, or the cursor sits past a terminator.
func (b *Builder) cursor() (*Function, *BasicBlock, error) {
	if b.currentFunc == nil || b.currentBlock == nil {
		return nil, nil, noInsertionPoint()
	}
	fn, block := b.currentFunc, b.currentBlock
	if fn.sealed {
		return nil, nil, sealedError(fn)
	}
	if block.IsTerminated() && b.pos > len(block.Instructions) {
		return nil, nil, b.fail(fn, block, errors.BlockTerminatedError(fn.Name, block.Label(), b.pos))
	}
	return fn, block, nil
}

// fail marks the current function aborted and returns err
func (b *Builder) fail(fn *Function, block *BasicBlock, err *errors.IRError) error {
	if fn != nil {
		err.Location.Function = fn.Name
		if block != nil && err.Location.Block == "" {
			err.Location.Block = block.Label()
			err.Location.Index = b.pos
		}
		fn.abort(err)
	}
	return err
}

// operand checks that v is a value of this context
func (b *Builder) operand(fn *Function, block *BasicBlock, v Value, what string) (*ValueDef, error) {
	def := b.ctx.Def(v)
	if def == nil {
		return nil, b.fail(fn, block, errors.NewIRError(errors.InvalidHandle, errors.ErrorInvalidHandle,
			"%s does not refer to a value of this context", what).Build())
	}
	return def, nil
}

// target checks that id is a block of fn
func (b *Builder) target(fn *Function, block *BasicBlock, id BlockID) (*BasicBlock, error) {
	t := b.ctx.Block(id)
	if t == nil || t.Func != fn.ID {
		return nil, b.fail(fn, block, errors.NewIRError(errors.InvalidHandle, errors.ErrorInvalidHandle,
			"block #%d is not a block of '%s'", id, fn.Name).Build())
	}
	return t, nil
}

// checkPlacement enforces phi ordering at the cursor: phis may only follow
// phis, and nothing else may be inserted in front of a phi.
func (b *Builder) checkPlacement(fn *Function, block *BasicBlock, isPhi bool, what string) error {
	if isPhi {
		for _, prev := range block.Instructions[:b.pos] {
			if _, ok := prev.(*PhiInstruction); !ok {
				return b.fail(fn, block, errors.NewIRError(errors.PhiPlacementError, errors.ErrorPhiPlacement,
					"phi inserted after non-phi instruction %s", prev).
					WithHelp("emit phis before any other instruction of the block").
					Build())
			}
		}
		return nil
	}
	if b.pos < len(block.Instructions) {
		if next, ok := block.Instructions[b.pos].(*PhiInstruction); ok {
			return b.fail(fn, block, errors.NewIRError(errors.PhiPlacementError, errors.ErrorPhiPlacement,
				"%s would precede phi %s", what, next).Build())
		}
	}
	return nil
}

// insert places a checked non-terminator at the cursor
func (b *Builder) insert(block *BasicBlock, inst Instruction) {
	block.Instructions = slices.Insert(block.Instructions, b.pos, inst)
	b.ctx.insts = append(b.ctx.insts, inst)
	b.pos++
}

// result allocates the value produced by the next instruction
func (b *Builder) result(fn *Function, typ *IntType) (Value, InstID) {
	id := InstID(len(b.ctx.insts))
	def := b.ctx.newValue(ValueInstruction, typ, "")
	def.Func = fn.ID
	def.Inst = id
	return def.Handle(), id
}

// Arithmetic and comparison

// EmitBinaryOp emits lhs op rhs. Both operands must have the same type.
func (b *Builder) EmitBinaryOp(op BinaryOp, lhs, rhs Value) (Value, error) {
	fn, block, err := b.cursor()
	if err != nil {
		return Value{}, err
	}
	if !op.Valid() {
		return Value{}, b.fail(fn, block, errors.NewIRError(errors.TypeMismatch, errors.ErrorTypeMismatch,
			"unknown binary operation %q", op).Build())
	}
	if err := b.sameType(fn, block, string(op)+" operands", lhs, rhs); err != nil {
		return Value{}, err
	}
	if err := b.checkPlacement(fn, block, false, string(op)); err != nil {
		return Value{}, err
	}

	res, id := b.result(fn, lhs.Type)
	inst := &BinaryInstruction{
		ID:     id,
		Result: res,
		Block:  block.ID,
		Op:     op,
		Left:   lhs,
		Right:  rhs,
	}
	b.insert(block, inst)
	return res, nil
}

// EmitCompare emits an integer comparison producing an i1
func (b *Builder) EmitCompare(pred Predicate, lhs, rhs Value) (Value, error) {
	fn, block, err := b.cursor()
	if err != nil {
		return Value{}, err
	}
	if !pred.Valid() {
		return Value{}, b.fail(fn, block, errors.NewIRError(errors.TypeMismatch, errors.ErrorTypeMismatch,
			"unknown comparison predicate %q", pred).Build())
	}
	if err := b.sameType(fn, block, "icmp "+string(pred)+" operands", lhs, rhs); err != nil {
		return Value{}, err
	}
	if err := b.checkPlacement(fn, block, false, "icmp"); err != nil {
		return Value{}, err
	}

	res, id := b.result(fn, b.ctx.Bool())
	inst := &CompareInstruction{
		ID:     id,
		Result: res,
		Block:  block.ID,
		Pred:   pred,
		Left:   lhs,
		Right:  rhs,
	}
	b.insert(block, inst)
	return res, nil
}

func (b *Builder) sameType(fn *Function, block *BasicBlock, what string, lhs, rhs Value) error {
	if _, err := b.operand(fn, block, lhs, what); err != nil {
		return err
	}
	if _, err := b.operand(fn, block, rhs, what); err != nil {
		return err
	}
	if lhs.Type != rhs.Type {
		return b.fail(fn, block, errors.TypeMismatchError(what, lhs.Type.String(), rhs.Type.String()))
	}
	return nil
}

// Terminators

// EmitBranch closes the current block with an unconditional jump
func (b *Builder) EmitBranch(target BlockID) error {
	fn, block, err := b.terminatorCursor()
	if err != nil {
		return err
	}
	if _, err := b.target(fn, block, target); err != nil {
		return err
	}

	b.terminate(block, &JumpTerminator{
		ID:     InstID(len(b.ctx.insts)),
		Block:  block.ID,
		Target: target,
	})
	return nil
}

// EmitCondBranch closes the current block with a two-way branch on an i1
func (b *Builder) EmitCondBranch(cond Value, thenBlock, elseBlock BlockID) error {
	fn, block, err := b.terminatorCursor()
	if err != nil {
		return err
	}
	if _, err := b.operand(fn, block, cond, "branch condition"); err != nil {
		return err
	}
	if !cond.Type.IsBool() {
		return b.fail(fn, block, errors.InvalidConditionError(cond.Type.String()))
	}
	if _, err := b.target(fn, block, thenBlock); err != nil {
		return err
	}
	if _, err := b.target(fn, block, elseBlock); err != nil {
		return err
	}

	b.terminate(block, &BranchTerminator{
		ID:         InstID(len(b.ctx.insts)),
		Block:      block.ID,
		Condition:  cond,
		TrueBlock:  thenBlock,
		FalseBlock: elseBlock,
	})
	return nil
}

// EmitReturn closes the current block with a return. Pass Value{} to return
// from a void function.
func (b *Builder) EmitReturn(v Value) error {
	fn, block, err := b.terminatorCursor()
	if err != nil {
		return err
	}
	if v.IsValid() {
		if _, err := b.operand(fn, block, v, "return value"); err != nil {
			return err
		}
	}
	if fn.ReturnType != v.Type {
		return b.fail(fn, block, errors.TypeMismatchError("return value",
			typeString(fn.ReturnType), typeString(v.Type)))
	}

	b.terminate(block, &ReturnTerminator{
		ID:    InstID(len(b.ctx.insts)),
		Block: block.ID,
		Value: v,
	})
	return nil
}

// terminatorCursor is cursor plus the check that the block is still open
func (b *Builder) terminatorCursor() (*Function, *BasicBlock, error) {
	fn, block, err := b.cursor()
	if err != nil {
		return nil, nil, err
	}
	if block.IsTerminated() {
		return nil, nil, b.fail(fn, block, errors.BlockTerminatedError(fn.Name, block.Label(), b.pos))
	}
	if b.pos != len(block.Instructions) {
		return nil, nil, b.fail(fn, block, errors.NewIRError(errors.BlockAlreadyTerminated, errors.ErrorBlockAlreadyTerminated,
			"terminator must be the last instruction of '%s'", block.Label()).Build())
	}
	return fn, block, nil
}

func (b *Builder) terminate(block *BasicBlock, term Terminator) {
	b.ctx.setTerminator(block, term)
	b.pos = len(block.Instructions) + 1
	log.Debugf("terminated %s with %s", block.Label(), term)
}

// Phi nodes

// EmitPhi emits a phi of type typ with the given incoming pairs. More pairs
// may be added with AddIncoming until the function is verified.
func (b *Builder) EmitPhi(typ *IntType, incoming ...PhiIncoming) (Value, error) {
	phi, err := b.emitPhi(typ, incoming)
	if err != nil {
		return Value{}, err
	}
	return phi.Result, nil
}

func (b *Builder) emitPhi(typ *IntType, incoming []PhiIncoming) (*PhiInstruction, error) {
	fn, block, err := b.cursor()
	if err != nil {
		return nil, err
	}
	typ, err = b.ctx.resolveType(typ, "phi")
	if err != nil {
		return nil, b.fail(fn, block, err.(*errors.IRError))
	}

	var pairs []PhiIncoming
	for _, inc := range incoming {
		if err := b.checkIncoming(fn, block, typ, pairs, inc); err != nil {
			return nil, err
		}
		pairs = append(pairs, inc)
	}
	if err := b.checkPlacement(fn, block, true, "phi"); err != nil {
		return nil, err
	}

	res, id := b.result(fn, typ)
	phi := &PhiInstruction{
		ID:       id,
		Result:   res,
		Block:    block.ID,
		Incoming: pairs,
	}
	b.insert(block, phi)
	return phi, nil
}

// AddIncoming appends a (predecessor, value) pair to an existing phi
func (b *Builder) AddIncoming(phiValue Value, pred BlockID, v Value) error {
	fn, phi, err := b.lookupPhi(phiValue)
	if err != nil {
		return err
	}
	block := b.ctx.Block(phi.Block)
	inc := PhiIncoming{Block: pred, Value: v}
	if err := b.checkIncoming(fn, block, phi.Result.Type, phi.Incoming, inc); err != nil {
		return err
	}
	phi.Incoming = append(phi.Incoming, inc)
	log.Debugf("phi %s in %s gained incoming from block #%d", b.ctx.valueName(phiValue), block.Label(), pred)
	return nil
}

func (b *Builder) lookupPhi(phiValue Value) (*Function, *PhiInstruction, error) {
	def := b.ctx.Def(phiValue)
	if def == nil || def.Kind != ValueInstruction {
		return nil, nil, errors.NewIRError(errors.PhiPlacementError, errors.ErrorPhiPlacement,
			"value is not the result of a phi").Build()
	}
	phi, ok := b.ctx.Inst(def.Inst).(*PhiInstruction)
	if !ok {
		return nil, nil, errors.NewIRError(errors.PhiPlacementError, errors.ErrorPhiPlacement,
			"%s is not the result of a phi", b.ctx.valueName(phiValue)).Build()
	}
	fn := b.ctx.Func(def.Func)
	if fn.sealed {
		return nil, nil, sealedError(fn)
	}
	return fn, phi, nil
}

func (b *Builder) checkIncoming(fn *Function, block *BasicBlock, typ *IntType, existing []PhiIncoming, inc PhiIncoming) error {
	if _, err := b.target(fn, block, inc.Block); err != nil {
		return err
	}
	if _, err := b.operand(fn, block, inc.Value, "phi incoming value"); err != nil {
		return err
	}
	if inc.Value.Type != typ {
		return b.fail(fn, block, errors.TypeMismatchError("phi incoming value",
			typ.String(), inc.Value.Type.String()))
	}
	for _, prev := range existing {
		if prev.Block == inc.Block {
			return b.fail(fn, block, errors.NewIRError(errors.PhiPlacementError, errors.ErrorPhiPlacement,
				"phi already has an incoming value from %s", b.ctx.Block(inc.Block).Label()).Build())
		}
	}
	return nil
}

// PhiStub is a phi whose final incoming pair is supplied later, typically a
// loop header phi waiting for its back edge. A function holding a stub that
// was never finalized fails verification.
type PhiStub struct {
	phi       *PhiInstruction
	finalized bool
}

// Value returns the phi result, usable before the stub is finalized
func (s *PhiStub) Value() Value { return s.phi.Result }

// Block returns the block holding the phi
func (s *PhiStub) Block() BlockID { return s.phi.Block }

// Finalized reports whether FinalizePhi was called
func (s *PhiStub) Finalized() bool { return s.finalized }

// EmitPhiStub emits a phi seeded with the given pairs and registers it as
// open until FinalizePhi closes it.
func (b *Builder) EmitPhiStub(typ *IntType, seed ...PhiIncoming) (*PhiStub, error) {
	phi, err := b.emitPhi(typ, seed)
	if err != nil {
		return nil, err
	}
	b.currentFunc.stubs[phi.ID] = true
	return &PhiStub{phi: phi}, nil
}

// FinalizePhi adds the closing (predecessor, value) pair to a stub
func (b *Builder) FinalizePhi(stub *PhiStub, pred BlockID, v Value) error {
	if stub == nil || stub.phi == nil {
		return errors.NewIRError(errors.PhiPlacementError, errors.ErrorPhiPlacement, "nil phi stub").Build()
	}
	if stub.finalized {
		return errors.NewIRError(errors.PhiPlacementError, errors.ErrorPhiPlacement,
			"phi stub %s is already finalized", b.ctx.valueName(stub.Value())).Build()
	}
	if err := b.AddIncoming(stub.Value(), pred, v); err != nil {
		return err
	}
	stub.finalized = true
	delete(b.ctx.Func(b.ctx.Block(stub.phi.Block).Func).stubs, stub.phi.ID)
	return nil
}

func noInsertionPoint() error {
	return errors.NewIRError(errors.NoInsertionPoint, errors.ErrorNoInsertionPoint,
		"builder has no insertion point").
		WithHelp("call SetInsertionPoint with a block first").
		Build()
}
