package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toyir/internal/errors"
)

// diamond builds entry -> (then | else) -> merge with an open merge block and
// the cursor left in it.
func diamond(t *testing.T) (*Context, *Builder, *Function, [3]BlockID) {
	t.Helper()
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value
	then, _ := b.CreateBlock("then")
	els, _ := b.CreateBlock("else")
	merge, _ := b.CreateBlock("merge")

	cond, err := b.EmitCompare(PredEQ, a, ctx.Constant(ctx.Int32(), 0))
	require.NoError(t, err)
	require.NoError(t, b.EmitCondBranch(cond, then, els))
	for _, id := range []BlockID{then, els} {
		require.NoError(t, b.SetInsertionPoint(id))
		require.NoError(t, b.EmitBranch(merge))
	}
	require.NoError(t, b.SetInsertionPoint(merge))
	return ctx, b, fn, [3]BlockID{then, els, merge}
}

func requireSubKind(t *testing.T, err error, sentinel error, block string, index int) {
	t.Helper()
	require.ErrorIs(t, err, sentinel)
	require.ErrorIs(t, err, errors.ErrVerificationFailure)
	ire, ok := errors.AsIRError(err)
	require.True(t, ok)
	assert.Equal(t, "foo", ire.Location.Function)
	assert.Equal(t, block, ire.Location.Block)
	assert.Equal(t, index, ire.Location.Index)
}

func TestVerifyScenarios(t *testing.T) {
	ctx, fn, _ := buildIfElse(t)
	assert.NoError(t, ctx.VerifyFunction(fn))
	assert.True(t, fn.Sealed())

	ctx, fn, _ = buildLoop(t)
	assert.NoError(t, ctx.VerifyFunction(fn))
	assert.True(t, fn.Sealed())

	assert.NoError(t, ctx.VerifyFunction(fn), "a sealed function that still verifies stays sealed")
	assert.True(t, fn.Sealed())
}

func TestVerifySealedFunctionAfterEdit(t *testing.T) {
	ctx, fn, _ := buildIfElse(t)
	require.NoError(t, ctx.VerifyFunction(fn))
	require.True(t, fn.Sealed())

	var merge *BasicBlock
	for _, id := range fn.Blocks {
		if block := ctx.Block(id); len(block.Phis()) > 0 {
			merge = block
		}
	}
	require.NotNil(t, merge)
	phi := merge.Phis()[0]
	dropped := phi.Incoming[1]
	phi.Incoming = phi.Incoming[:1]

	err := ctx.VerifyFunction(fn)
	require.ErrorIs(t, err, errors.ErrMalformedPhi)
	assert.False(t, fn.Sealed(), "a function that no longer verifies is unsealed")

	phi.Incoming = append(phi.Incoming, dropped)
	require.NoError(t, ctx.VerifyFunction(fn))
	assert.True(t, fn.Sealed())
}

func TestVerifyStraightLine(t *testing.T) {
	ctx := NewContext("foo")
	_, err := ctx.DeclareGlobal("x", ctx.Int32())
	require.NoError(t, err)
	fn, err := ctx.DeclareFunction("foo", nil, ctx.Int32())
	require.NoError(t, err)
	entry, err := ctx.CreateBlock(fn, "entry")
	require.NoError(t, err)

	b := NewBuilder(ctx)
	require.NoError(t, b.SetInsertionPoint(entry))
	require.NoError(t, b.EmitReturn(ctx.Constant(ctx.Int32(), 0)))

	require.NoError(t, ctx.VerifyModule())
	assert.True(t, fn.Sealed())
}

func TestVerifyUnterminatedBlock(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value
	_, err := b.EmitBinaryOp(OpAdd, a, a)
	require.NoError(t, err)

	err = ctx.VerifyFunction(fn)
	requireSubKind(t, err, errors.ErrUnterminatedBlock, "entry_0", 1)
	assert.False(t, fn.Sealed())

	// a failed verification changes nothing; finishing the block fixes it
	require.NoError(t, b.EmitReturn(a))
	assert.NoError(t, ctx.VerifyFunction(fn))
}

func TestVerifyMissingPhiPair(t *testing.T) {
	ctx, b, fn, blocks := diamond(t)
	phi, err := b.EmitPhi(ctx.Int32(), PhiIncoming{Block: blocks[0], Value: ctx.Constant(ctx.Int32(), 1)})
	require.NoError(t, err)
	require.NoError(t, b.EmitReturn(phi))

	err = ctx.VerifyFunction(fn)
	requireSubKind(t, err, errors.ErrMalformedPhi, "merge_3", 0)

	ire, _ := errors.AsIRError(err)
	assert.Contains(t, ire.Notes, "missing incoming value for else_2")
}

func TestVerifyExtraPhiPair(t *testing.T) {
	ctx, b, fn, blocks := diamond(t)
	one := ctx.Constant(ctx.Int32(), 1)
	phi, err := b.EmitPhi(ctx.Int32(),
		PhiIncoming{Block: blocks[0], Value: one},
		PhiIncoming{Block: blocks[1], Value: one},
		PhiIncoming{Block: fn.Entry, Value: one},
	)
	require.NoError(t, err)
	require.NoError(t, b.EmitReturn(phi))

	err = ctx.VerifyFunction(fn)
	requireSubKind(t, err, errors.ErrMalformedPhi, "merge_3", 0)

	ire, _ := errors.AsIRError(err)
	assert.Contains(t, ire.Notes, "entry_0 does not branch to 'merge_3'")
}

func TestVerifyPhiAfterNonPhi(t *testing.T) {
	ctx, b, fn, blocks := diamond(t)
	a := fn.Params[0].Value
	phi, err := b.EmitPhi(ctx.Int32(),
		PhiIncoming{Block: blocks[0], Value: a},
		PhiIncoming{Block: blocks[1], Value: a},
	)
	require.NoError(t, err)
	_, err = b.EmitBinaryOp(OpAdd, a, a)
	require.NoError(t, err)
	require.NoError(t, b.EmitReturn(phi))

	// reorder behind the builder's back
	merge := ctx.Block(blocks[2])
	merge.Instructions[0], merge.Instructions[1] = merge.Instructions[1], merge.Instructions[0]

	err = ctx.VerifyFunction(fn)
	requireSubKind(t, err, errors.ErrMalformedPhi, "merge_3", 1)
}

func TestVerifyDuplicatePhiPair(t *testing.T) {
	ctx, b, fn, blocks := diamond(t)
	a := fn.Params[0].Value
	phi, err := b.EmitPhi(ctx.Int32(),
		PhiIncoming{Block: blocks[0], Value: a},
		PhiIncoming{Block: blocks[1], Value: a},
	)
	require.NoError(t, err)
	require.NoError(t, b.EmitReturn(phi))

	// the builder refuses a second pair from then; add it directly
	inst := ctx.Block(blocks[2]).Phis()[0]
	inst.Incoming = append(inst.Incoming, PhiIncoming{Block: blocks[0], Value: a})

	err = ctx.VerifyFunction(fn)
	requireSubKind(t, err, errors.ErrMalformedPhi, "merge_3", 0)
	assert.Contains(t, err.Error(), "two incoming values from then_1")
}

func TestVerifyPhiIncomingTypeMismatch(t *testing.T) {
	ctx, b, fn, blocks := diamond(t)
	a := fn.Params[0].Value
	phi, err := b.EmitPhi(ctx.Int32(),
		PhiIncoming{Block: blocks[0], Value: a},
		PhiIncoming{Block: blocks[1], Value: a},
	)
	require.NoError(t, err)
	require.NoError(t, b.EmitReturn(phi))

	inst := ctx.Block(blocks[2]).Phis()[0]
	inst.Incoming[1].Value = ctx.Constant(ctx.Bool(), 1)

	err = ctx.VerifyFunction(fn)
	requireSubKind(t, err, errors.ErrMalformedPhi, "merge_3", 0)
	assert.Contains(t, err.Error(), "of type i32 has incoming i1 1 from else_2")
}

func TestVerifyTerminatorInsideBlock(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value
	_, err := b.EmitBinaryOp(OpAdd, a, a)
	require.NoError(t, err)
	require.NoError(t, b.EmitReturn(a))

	entry := ctx.Block(fn.Entry)
	entry.Instructions = append(entry.Instructions, &JumpTerminator{ID: 99, Block: fn.Entry, Target: fn.Entry})

	err = ctx.VerifyFunction(fn)
	requireSubKind(t, err, errors.ErrUnterminatedBlock, "entry_0", 1)
	assert.False(t, fn.Sealed())
}

func TestVerifyUseBeforeDefAcrossBlocks(t *testing.T) {
	ctx, b, fn, blocks := diamond(t)
	a := fn.Params[0].Value

	// define x in the then block, before its jump
	require.NoError(t, b.SetInsertionPointAt(blocks[0], 0))
	x, err := b.EmitBinaryOp(OpAdd, a, a)
	require.NoError(t, err)

	require.NoError(t, b.SetInsertionPoint(blocks[2]))
	y, err := b.EmitBinaryOp(OpMul, x, a)
	require.NoError(t, err)
	require.NoError(t, b.EmitReturn(y))

	err = ctx.VerifyFunction(fn)
	requireSubKind(t, err, errors.ErrUseBeforeDef, "merge_3", 0)
}

func TestVerifyUseBeforeDefSameBlock(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value

	x, err := b.EmitBinaryOp(OpAdd, a, a)
	require.NoError(t, err)
	require.NoError(t, b.SetInsertionPointAt(fn.Entry, 0))
	_, err = b.EmitBinaryOp(OpMul, x, a)
	require.NoError(t, err)
	require.NoError(t, b.SetInsertionPoint(fn.Entry))
	require.NoError(t, b.EmitReturn(x))

	err = ctx.VerifyFunction(fn)
	requireSubKind(t, err, errors.ErrUseBeforeDef, "entry_0", 0)
}

func TestVerifyForeignValue(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)

	other, err := ctx.DeclareFunction("bar", []*IntType{ctx.Int32()}, ctx.Int32())
	require.NoError(t, err)
	require.NoError(t, b.EmitReturn(other.Params[0].Value))

	err = ctx.VerifyFunction(fn)
	requireSubKind(t, err, errors.ErrUseBeforeDef, "entry_0", 0)
}

func TestVerifyPhiIncomingDominance(t *testing.T) {
	ctx, b, fn, blocks := diamond(t)
	a := fn.Params[0].Value

	// x lives in the then block but flows in from the else edge
	require.NoError(t, b.SetInsertionPointAt(blocks[0], 0))
	x, err := b.EmitBinaryOp(OpAdd, a, a)
	require.NoError(t, err)

	require.NoError(t, b.SetInsertionPoint(blocks[2]))
	phi, err := b.EmitPhi(ctx.Int32(),
		PhiIncoming{Block: blocks[0], Value: x},
		PhiIncoming{Block: blocks[1], Value: x},
	)
	require.NoError(t, err)
	require.NoError(t, b.EmitReturn(phi))

	err = ctx.VerifyFunction(fn)
	requireSubKind(t, err, errors.ErrUseBeforeDef, "merge_3", 0)
}

func TestVerifyInvalidEntry(t *testing.T) {
	ctx, b, fn := newFunction(t, 0)
	require.NoError(t, b.EmitBranch(fn.Entry))

	err := ctx.VerifyFunction(fn)
	requireSubKind(t, err, errors.ErrInvalidEntry, "entry_0", -1)
}

func TestVerifyIncompleteFunction(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value

	_, err := b.EmitBinaryOp(OpAdd, a, ctx.Constant(ctx.Bool(), 0))
	require.Error(t, err)
	require.NoError(t, b.EmitReturn(a))

	err = ctx.VerifyFunction(fn)
	require.ErrorIs(t, err, errors.ErrIncompleteFunction)

	ire, ok := errors.AsIRError(err)
	require.True(t, ok)
	require.Len(t, ire.Notes, 1)
	assert.Contains(t, ire.Notes[0], "TypeMismatch")
}

func TestVerifySkipsUnreachableBlocks(t *testing.T) {
	ctx, b, fn := newFunction(t, 1)
	a := fn.Params[0].Value
	dead, _ := b.CreateBlock("dead")

	x, err := b.EmitBinaryOp(OpAdd, a, a)
	require.NoError(t, err)
	require.NoError(t, b.EmitReturn(x))

	require.NoError(t, b.SetInsertionPoint(dead))
	y, err := b.EmitBinaryOp(OpMul, x, x)
	require.NoError(t, err)
	require.NoError(t, b.EmitReturn(y))

	assert.NoError(t, ctx.VerifyFunction(fn))
}

func TestVerifyDeclaration(t *testing.T) {
	ctx := NewContext("test")
	fn, err := ctx.DeclareFunction("ext", []*IntType{ctx.Int32()}, nil)
	require.NoError(t, err)

	assert.NoError(t, ctx.VerifyFunction(fn))
	assert.False(t, fn.Sealed(), "a declaration may still receive a body")

	assert.ErrorIs(t, ctx.VerifyFunction(nil), errors.ErrInvalidHandle)
}

func TestVerifyModuleStopsAtFirstFailure(t *testing.T) {
	ctx, _, good := newFunction(t, 0)
	b := NewBuilder(ctx)
	require.NoError(t, b.SetInsertionPoint(good.Entry))
	require.NoError(t, b.EmitReturn(ctx.Constant(ctx.Int32(), 0)))

	bad, err := ctx.DeclareFunction("bad", nil, ctx.Int32())
	require.NoError(t, err)
	_, err = ctx.CreateBlock(bad, "entry")
	require.NoError(t, err)

	err = ctx.VerifyModule()
	require.ErrorIs(t, err, errors.ErrUnterminatedBlock)
	ire, _ := errors.AsIRError(err)
	assert.Equal(t, "bad", ire.Location.Function)
	assert.True(t, good.Sealed())
	assert.False(t, bad.Sealed())
}

func TestVerificationPipeline(t *testing.T) {
	p := NewVerificationPipeline()
	names := make([]string, len(p.passes))
	for i, pass := range p.passes {
		names[i] = pass.Name()
		assert.NotEmpty(t, pass.Description())
	}
	assert.Equal(t, []string{"Completeness", "Phi Stubs", "Terminators", "Entry", "Phi Nodes", "Dominance"}, names)
}
