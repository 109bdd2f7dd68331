package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toyir/internal/errors"
)

// ============================================================================
// Helpers
// ============================================================================

// newFunction declares foo with n i32 parameters returning i32, creates its
// entry block and returns a builder positioned there.
func newFunction(t *testing.T, n int) (*Context, *Builder, *Function) {
	t.Helper()
	ctx := NewContext("test")
	params := make([]*IntType, n)
	for i := range params {
		params[i] = ctx.Int32()
	}
	fn, err := ctx.DeclareFunction("foo", params, ctx.Int32())
	require.NoError(t, err)
	entry, err := ctx.CreateBlock(fn, "entry")
	require.NoError(t, err)

	b := NewBuilder(ctx)
	require.NoError(t, b.SetInsertionPoint(entry))
	return ctx, b, fn
}

// buildIfElse builds foo(a) -> i32 { a < 100 ? a + 1 : a + 2 }
func buildIfElse(t *testing.T) (*Context, *Function, *IfElse) {
	t.Helper()
	ctx, b, fn := newFunction(t, 1)
	require.NoError(t, ctx.BindParameters(fn, []string{"a"}))
	i32 := ctx.Int32()
	a := fn.Params[0].Value

	cond, err := b.EmitCompare(PredULT, a, ctx.Constant(i32, 100))
	require.NoError(t, err)
	ie, err := b.EmitIfElse(cond,
		func(b *Builder) (Value, error) { return b.EmitBinaryOp(OpAdd, a, ctx.Constant(i32, 1)) },
		func(b *Builder) (Value, error) { return b.EmitBinaryOp(OpAdd, a, ctx.Constant(i32, 2)) },
	)
	require.NoError(t, err)
	require.NoError(t, b.EmitReturn(ie.Result))
	return ctx, fn, ie
}

// buildLoop builds foo(a, b) -> i32 with a loop counting i from 1 while i < b
func buildLoop(t *testing.T) (*Context, *Function, *Loop) {
	t.Helper()
	ctx, b, fn := newFunction(t, 2)
	require.NoError(t, ctx.BindParameters(fn, []string{"a", "b"}))
	a, bound := fn.Params[0].Value, fn.Params[1].Value

	loop, err := b.EmitLoop(LoopSpec{
		Init:  ctx.Constant(ctx.Int32(), 1),
		Bound: bound,
		Body: func(b *Builder, iv Value) error {
			_, err := b.EmitBinaryOp(OpMul, a, iv)
			return err
		},
	})
	require.NoError(t, err)
	require.NoError(t, b.EmitReturn(loop.Induction))
	return ctx, fn, loop
}

// ============================================================================
// Cursor
// ============================================================================

func TestNewBuilder(t *testing.T) {
	ctx := NewContext("test")
	b := NewBuilder(ctx)

	assert.Same(t, ctx, b.Context())
	assert.Nil(t, b.CurrentFunction())
	assert.Equal(t, NoBlock, b.CurrentBlock())

	_, err := b.EmitBinaryOp(OpAdd, ctx.Constant(ctx.Int32(), 1), ctx.Constant(ctx.Int32(), 2))
	assert.ErrorIs(t, err, errors.ErrNoInsertionPoint)

	_, err = b.CreateBlock("orphan")
	assert.ErrorIs(t, err, errors.ErrNoInsertionPoint)
}

func TestBuilderCreateBlock(t *testing.T) {
	ctx, b, fn := newFunction(t, 0)
	entry := b.CurrentBlock()

	next, err := b.CreateBlock("next")
	require.NoError(t, err)

	assert.Equal(t, entry, b.CurrentBlock(), "creating a block must not move the cursor")
	assert.Equal(t, []BlockID{entry, next}, fn.Blocks)
	assert.Equal(t, entry, fn.Entry)
	assert.Equal(t, "next_1", ctx.Block(next).Label())
}

func TestSetInsertionPointTerminatedBlock(t *testing.T) {
	ctx, b, fn := newFunction(t, 0)
	entry := b.CurrentBlock()
	require.NoError(t, b.EmitReturn(ctx.Constant(ctx.Int32(), 0)))

	err := b.SetInsertionPoint(entry)
	assert.ErrorIs(t, err, errors.ErrBlockAlreadyTerminated)
	assert.NoError(t, fn.Aborted(), "repositioning is not a construction error")

	err = b.SetInsertionPoint(BlockID(42))
	assert.ErrorIs(t, err, errors.ErrInvalidHandle)
}

func TestSetInsertionPointAt(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value
	entry := b.CurrentBlock()

	first, err := b.EmitBinaryOp(OpAdd, a, a)
	require.NoError(t, err)

	require.NoError(t, b.SetInsertionPointAt(entry, 0))
	second, err := b.EmitBinaryOp(OpSub, a, a)
	require.NoError(t, err)

	insts := ctx.Block(entry).Instructions
	require.Len(t, insts, 2)
	assert.Equal(t, second, insts[0].GetResult())
	assert.Equal(t, first, insts[1].GetResult())

	assert.ErrorIs(t, b.SetInsertionPointAt(entry, 3), errors.ErrBlockAlreadyTerminated)
}

// ============================================================================
// Arithmetic and comparison
// ============================================================================

func TestEmitBinaryOp(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value
	one := ctx.Constant(ctx.Int32(), 1)

	sum, err := b.EmitBinaryOp(OpAdd, a, one)
	require.NoError(t, err)
	assert.Same(t, ctx.Int32(), sum.Type)

	def := ctx.Def(sum)
	require.NotNil(t, def)
	assert.Equal(t, ValueInstruction, def.Kind)
	assert.Equal(t, fn.ID, def.Func)

	inst, ok := ctx.Inst(def.Inst).(*BinaryInstruction)
	require.True(t, ok)
	assert.Equal(t, OpAdd, inst.Op)
	assert.Equal(t, []Value{a, one}, inst.GetOperands())
	assert.Equal(t, b.CurrentBlock(), inst.GetBlock())
	assert.False(t, inst.IsTerminator())
}

func TestEmitBinaryOpTypeMismatch(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value
	entry := b.CurrentBlock()

	_, err := b.EmitBinaryOp(OpAdd, a, ctx.Constant(ctx.Bool(), 1))
	require.ErrorIs(t, err, errors.ErrTypeMismatch)

	assert.Empty(t, ctx.Block(entry).Instructions, "the offending instruction is never inserted")
	assert.Error(t, fn.Aborted())

	ire, ok := errors.AsIRError(err)
	require.True(t, ok)
	assert.Equal(t, "foo", ire.Location.Function)
	assert.Equal(t, "entry_0", ire.Location.Block)
	assert.Equal(t, 0, ire.Location.Index)
}

func TestEmitBinaryOpUnknownOp(t *testing.T) {
	_, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value

	_, err := b.EmitBinaryOp(BinaryOp("pow"), a, a)
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestEmitBinaryOpInvalidOperand(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value

	_, err := b.EmitBinaryOp(OpAdd, a, Value{})
	assert.ErrorIs(t, err, errors.ErrInvalidHandle)

	_, err = b.EmitBinaryOp(OpAdd, a, Value{ID: 99, Type: ctx.Int32()})
	assert.ErrorIs(t, err, errors.ErrInvalidHandle)
}

func TestEmitCompare(t *testing.T) {
	ctx, b, fn := newFunction(t, 2)
	lhs, rhs := fn.Params[0].Value, fn.Params[1].Value

	for _, pred := range []Predicate{PredEQ, PredNE, PredULT, PredULE, PredUGT, PredUGE, PredSLT, PredSLE, PredSGT, PredSGE} {
		v, err := b.EmitCompare(pred, lhs, rhs)
		require.NoError(t, err, pred)
		assert.True(t, v.Type.IsBool(), pred)

		inst := ctx.Inst(ctx.Def(v).Inst).(*CompareInstruction)
		assert.Equal(t, pred, inst.Pred)
	}

	_, err := b.EmitCompare(Predicate("lt"), lhs, rhs)
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestEmitCompareTypeMismatch(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	i8, err := ctx.IntegerType(8)
	require.NoError(t, err)

	_, err = b.EmitCompare(PredEQ, fn.Params[0].Value, ctx.Constant(i8, 1))
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

// ============================================================================
// Terminators
// ============================================================================

func TestEmitBranchTwice(t *testing.T) {
	ctx, b, fn := newFunction(t, 0)
	next, err := b.CreateBlock("next")
	require.NoError(t, err)

	require.NoError(t, b.EmitBranch(next))
	err = b.EmitBranch(next)
	require.ErrorIs(t, err, errors.ErrBlockAlreadyTerminated)

	entry := ctx.Block(fn.Entry)
	jump, ok := entry.Terminator.(*JumpTerminator)
	require.True(t, ok, "the first terminator stays in place")
	assert.Equal(t, next, jump.Target)
	assert.Equal(t, []BlockID{next}, entry.Successors())
	assert.Equal(t, []BlockID{fn.Entry}, ctx.Block(next).Predecessors())
}

func TestEmitAfterTerminator(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value
	require.NoError(t, b.EmitReturn(a))

	_, err := b.EmitBinaryOp(OpAdd, a, a)
	assert.ErrorIs(t, err, errors.ErrBlockAlreadyTerminated)
	assert.Empty(t, ctx.Block(fn.Entry).Instructions)
}

func TestEmitCondBranch(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value
	then, _ := b.CreateBlock("then")
	els, _ := b.CreateBlock("else")

	err := b.EmitCondBranch(a, then, els)
	require.ErrorIs(t, err, errors.ErrInvalidCondition)
	assert.False(t, ctx.Block(fn.Entry).IsTerminated())
}

func TestEmitCondBranchSameTarget(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value
	next, _ := b.CreateBlock("next")

	cond, err := b.EmitCompare(PredEQ, a, a)
	require.NoError(t, err)
	require.NoError(t, b.EmitCondBranch(cond, next, next))

	assert.Equal(t, []BlockID{next}, ctx.Block(fn.Entry).Successors())
	assert.Equal(t, []BlockID{fn.Entry}, ctx.Block(next).Predecessors())
}

func TestEmitBranchForeignBlock(t *testing.T) {
	ctx, b, _ := newFunction(t, 0)
	other, err := ctx.DeclareFunction("bar", nil, nil)
	require.NoError(t, err)
	foreign, err := ctx.CreateBlock(other, "entry")
	require.NoError(t, err)

	assert.ErrorIs(t, b.EmitBranch(foreign), errors.ErrInvalidHandle)
}

func TestEmitReturnTypes(t *testing.T) {
	ctx := NewContext("test")
	void, err := ctx.DeclareFunction("void_fn", nil, nil)
	require.NoError(t, err)
	entry, err := ctx.CreateBlock(void, "entry")
	require.NoError(t, err)
	b := NewBuilder(ctx)
	require.NoError(t, b.SetInsertionPoint(entry))

	err = b.EmitReturn(ctx.Constant(ctx.Int32(), 0))
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)

	_, b2, fn := newFunction(t, 0)
	err = b2.EmitReturn(Value{})
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
	assert.Error(t, fn.Aborted())
}

func TestEmitReturnVoid(t *testing.T) {
	ctx := NewContext("test")
	fn, err := ctx.DeclareFunction("main", nil, nil)
	require.NoError(t, err)
	entry, err := ctx.CreateBlock(fn, "entry")
	require.NoError(t, err)
	b := NewBuilder(ctx)
	require.NoError(t, b.SetInsertionPoint(entry))

	require.NoError(t, b.EmitReturn(Value{}))
	ret := ctx.Block(entry).Terminator.(*ReturnTerminator)
	assert.Empty(t, ret.GetOperands())
	assert.NoError(t, ctx.VerifyFunction(fn))
}

// ============================================================================
// Phi nodes
// ============================================================================

func TestEmitPhiAfterNonPhi(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value

	_, err := b.EmitBinaryOp(OpAdd, a, a)
	require.NoError(t, err)
	_, err = b.EmitPhi(ctx.Int32())
	assert.ErrorIs(t, err, errors.ErrPhiPlacement)
	assert.Len(t, ctx.Block(fn.Entry).Instructions, 1)
}

func TestInsertBeforePhi(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value
	join, _ := b.CreateBlock("join")
	require.NoError(t, b.EmitBranch(join))
	require.NoError(t, b.SetInsertionPoint(join))

	_, err := b.EmitPhi(ctx.Int32(), PhiIncoming{Block: fn.Entry, Value: a})
	require.NoError(t, err)

	require.NoError(t, b.SetInsertionPointAt(join, 0))
	_, err = b.EmitBinaryOp(OpAdd, a, a)
	assert.ErrorIs(t, err, errors.ErrPhiPlacement)
}

func TestAddIncoming(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value
	left, _ := b.CreateBlock("left")
	right, _ := b.CreateBlock("right")
	join, _ := b.CreateBlock("join")

	cond, err := b.EmitCompare(PredEQ, a, a)
	require.NoError(t, err)
	require.NoError(t, b.EmitCondBranch(cond, left, right))
	for _, id := range []BlockID{left, right} {
		require.NoError(t, b.SetInsertionPoint(id))
		require.NoError(t, b.EmitBranch(join))
	}
	require.NoError(t, b.SetInsertionPoint(join))

	phi, err := b.EmitPhi(ctx.Int32(), PhiIncoming{Block: left, Value: a})
	require.NoError(t, err)
	require.NoError(t, b.AddIncoming(phi, right, ctx.Constant(ctx.Int32(), 7)))
	require.NoError(t, b.EmitReturn(phi))

	inst := ctx.Inst(ctx.Def(phi).Inst).(*PhiInstruction)
	require.Len(t, inst.Incoming, 2)
	assert.Equal(t, left, inst.Incoming[0].Block)
	assert.Equal(t, right, inst.Incoming[1].Block)
	assert.Equal(t, []*PhiInstruction{inst}, ctx.Block(join).Phis())

	assert.NoError(t, ctx.VerifyFunction(fn))
}

func TestAddIncomingRejected(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value
	join, _ := b.CreateBlock("join")
	require.NoError(t, b.EmitBranch(join))
	require.NoError(t, b.SetInsertionPoint(join))

	phi, err := b.EmitPhi(ctx.Int32(), PhiIncoming{Block: fn.Entry, Value: a})
	require.NoError(t, err)

	err = b.AddIncoming(a, fn.Entry, a)
	assert.ErrorIs(t, err, errors.ErrPhiPlacement, "parameter is not a phi")

	err = b.AddIncoming(phi, join, ctx.Constant(ctx.Bool(), 0))
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)

	err = b.AddIncoming(phi, fn.Entry, a)
	assert.ErrorIs(t, err, errors.ErrPhiPlacement, "duplicate predecessor")
}

func TestEmitPhiDuplicateSeed(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value

	_, err := b.EmitPhi(ctx.Int32(),
		PhiIncoming{Block: fn.Entry, Value: a},
		PhiIncoming{Block: fn.Entry, Value: a},
	)
	assert.ErrorIs(t, err, errors.ErrPhiPlacement)
	assert.Empty(t, ctx.Block(fn.Entry).Instructions)
}

func TestPhiStubLifecycle(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value
	header, _ := b.CreateBlock("header")
	exit, _ := b.CreateBlock("exit")
	require.NoError(t, b.EmitBranch(header))
	require.NoError(t, b.SetInsertionPoint(header))

	stub, err := b.EmitPhiStub(ctx.Int32(), PhiIncoming{Block: fn.Entry, Value: ctx.Constant(ctx.Int32(), 0)})
	require.NoError(t, err)
	assert.False(t, stub.Finalized())
	assert.Equal(t, header, stub.Block())

	next, err := b.EmitBinaryOp(OpAdd, stub.Value(), ctx.Constant(ctx.Int32(), 1))
	require.NoError(t, err)
	cond, err := b.EmitCompare(PredULT, next, a)
	require.NoError(t, err)
	require.NoError(t, b.EmitCondBranch(cond, header, exit))
	require.NoError(t, b.SetInsertionPoint(exit))
	require.NoError(t, b.EmitReturn(stub.Value()))

	err = ctx.VerifyFunction(fn)
	require.ErrorIs(t, err, errors.ErrUnfinalizedPhi)
	assert.False(t, fn.Sealed())

	require.NoError(t, b.FinalizePhi(stub, header, next))
	assert.True(t, stub.Finalized())
	assert.ErrorIs(t, b.FinalizePhi(stub, header, next), errors.ErrPhiPlacement)

	require.NoError(t, ctx.VerifyFunction(fn))
	assert.True(t, fn.Sealed())
}

// ============================================================================
// Sealing
// ============================================================================

func TestSealedFunctionRejectsChanges(t *testing.T) {
	ctx, fn, ie := buildIfElse(t)
	require.NoError(t, ctx.VerifyFunction(fn))

	_, err := ctx.CreateBlock(fn, "late")
	assert.ErrorIs(t, err, errors.ErrFunctionSealed)

	b := NewBuilder(ctx)
	err = b.AddIncoming(ie.Result, fn.Entry, ie.ThenValue)
	assert.ErrorIs(t, err, errors.ErrFunctionSealed)

	require.NoError(t, b.SetInsertionPointAt(ie.Merge, 0))
	_, err = b.EmitPhi(ctx.Int32())
	assert.ErrorIs(t, err, errors.ErrFunctionSealed)
}
