package ir

import (
	"toyir/internal/errors"
)

// ArmFunc emits one arm of an if/else at the builder's cursor and returns the
// value the arm yields, or Value{} when it yields nothing.
type ArmFunc func(b *Builder) (Value, error)

// IfElseState tracks how far an if/else emission got
type IfElseState int

const (
	IfElsePre IfElseState = iota
	IfElseBranchEmitted
	IfElseThenFilled
	IfElseElseFilled
	IfElseMerged
)

func (s IfElseState) String() string {
	switch s {
	case IfElsePre:
		return "Pre"
	case IfElseBranchEmitted:
		return "BranchEmitted"
	case IfElseThenFilled:
		return "ThenFilled"
	case IfElseElseFilled:
		return "ElseFilled"
	case IfElseMerged:
		return "Merged"
	}
	return "Unknown"
}

// IfElse describes an emitted if/else. ThenExit and ElseExit are the blocks
// each arm ended in, which differ from Then and Else when an arm contains
// control flow of its own.
type IfElse struct {
	State IfElseState

	Then  BlockID
	Else  BlockID
	Merge BlockID

	ThenExit BlockID
	ElseExit BlockID

	ThenValue Value
	ElseValue Value

	// Result is the merge phi, or Value{} when the arms yield nothing to join
	Result Value
}

// EmitIfElse branches on cond into fresh then and else blocks, fills them
// with the arms and joins both in an ifcont block. A nil arm is empty.
//
// An arm that terminates its own block does not branch to the merge block
// and contributes no phi pair. The merge phi is emitted only when every arm
// that falls through yields a value; its pairs are ordered then before else.
// On return the cursor sits in the merge block.
func (b *Builder) EmitIfElse(cond Value, thenArm, elseArm ArmFunc) (*IfElse, error) {
	ie := &IfElse{
		State:    IfElsePre,
		Then:     NoBlock,
		Else:     NoBlock,
		Merge:    NoBlock,
		ThenExit: NoBlock,
		ElseExit: NoBlock,
	}

	fn, block, err := b.cursor()
	if err != nil {
		return ie, err
	}
	if _, err := b.operand(fn, block, cond, "if condition"); err != nil {
		return ie, err
	}
	if !cond.Type.IsBool() {
		return ie, b.fail(fn, block, errors.InvalidConditionError(cond.Type.String()))
	}

	if ie.Then, err = b.ctx.CreateBlock(fn, "then"); err != nil {
		return ie, err
	}
	if ie.Else, err = b.ctx.CreateBlock(fn, "else"); err != nil {
		return ie, err
	}
	if ie.Merge, err = b.ctx.CreateBlock(fn, "ifcont"); err != nil {
		return ie, err
	}

	if err := b.EmitCondBranch(cond, ie.Then, ie.Else); err != nil {
		return ie, err
	}
	ie.State = IfElseBranchEmitted

	thenFalls, err := b.emitArm(ie.Then, ie.Merge, thenArm, &ie.ThenExit, &ie.ThenValue)
	if err != nil {
		return ie, err
	}
	ie.State = IfElseThenFilled

	elseFalls, err := b.emitArm(ie.Else, ie.Merge, elseArm, &ie.ElseExit, &ie.ElseValue)
	if err != nil {
		return ie, err
	}
	ie.State = IfElseElseFilled

	if err := b.SetInsertionPoint(ie.Merge); err != nil {
		return ie, err
	}

	var incoming []PhiIncoming
	joinable := thenFalls || elseFalls
	if thenFalls {
		joinable = joinable && ie.ThenValue.IsValid()
		incoming = append(incoming, PhiIncoming{Block: ie.ThenExit, Value: ie.ThenValue})
	}
	if elseFalls {
		joinable = joinable && ie.ElseValue.IsValid()
		incoming = append(incoming, PhiIncoming{Block: ie.ElseExit, Value: ie.ElseValue})
	}
	if joinable {
		ie.Result, err = b.EmitPhi(incoming[0].Value.Type, incoming...)
		if err != nil {
			return ie, err
		}
		if err := b.ctx.SetName(ie.Result, "iftmp"); err != nil {
			return ie, err
		}
	}

	ie.State = IfElseMerged
	return ie, nil
}

// emitArm fills one arm starting in entry and, unless the arm closed its
// own exit block, branches from that exit to merge. It reports whether the
// arm falls through to merge.
func (b *Builder) emitArm(entry, merge BlockID, arm ArmFunc, exit *BlockID, value *Value) (bool, error) {
	if err := b.SetInsertionPoint(entry); err != nil {
		return false, err
	}
	if arm != nil {
		v, err := arm(b)
		if err != nil {
			return false, err
		}
		*value = v
	}

	*exit = b.CurrentBlock()
	if b.ctx.Block(*exit).IsTerminated() {
		return false, nil
	}
	if err := b.EmitBranch(merge); err != nil {
		return false, err
	}
	return true, nil
}

// LoopSpec describes a counted loop. Step defaults to the constant 1 and
// Pred to unsigned less-than.
type LoopSpec struct {
	Init  Value
	Step  Value
	Bound Value
	Pred  Predicate

	// Body emits the loop body at the cursor; iv is the induction value
	Body func(b *Builder, iv Value) error
}

// Loop describes an emitted loop
type Loop struct {
	PreHeader BlockID
	Header    BlockID
	Exit      BlockID
	BodyExit  BlockID

	Induction Value
	Next      Value
	Cond      Value
	Phi       *PhiStub
}

// EmitLoop emits a pre-header -> header -> body -> back edge or exit loop.
// The block under the cursor becomes the pre-header. The header starts with
// the induction phi seeded from the pre-header with Init; its back edge pair
// is added only after the body and the exit branch exist. On return the
// cursor sits in the afterloop block.
func (b *Builder) EmitLoop(spec LoopSpec) (*Loop, error) {
	loop := &Loop{
		PreHeader: NoBlock,
		Header:    NoBlock,
		Exit:      NoBlock,
		BodyExit:  NoBlock,
	}

	fn, pre, err := b.cursor()
	if err != nil {
		return loop, err
	}
	if _, err := b.operand(fn, pre, spec.Init, "loop initial value"); err != nil {
		return loop, err
	}
	typ := spec.Init.Type
	if !spec.Step.IsValid() {
		spec.Step = b.ctx.Constant(typ, 1)
	}
	if spec.Pred == "" {
		spec.Pred = PredULT
	}
	if err := b.sameType(fn, pre, "loop step", spec.Init, spec.Step); err != nil {
		return loop, err
	}
	if err := b.sameType(fn, pre, "loop bound", spec.Init, spec.Bound); err != nil {
		return loop, err
	}
	loop.PreHeader = pre.ID

	if loop.Header, err = b.ctx.CreateBlock(fn, "loop"); err != nil {
		return loop, err
	}
	if loop.Exit, err = b.ctx.CreateBlock(fn, "afterloop"); err != nil {
		return loop, err
	}
	if err := b.EmitBranch(loop.Header); err != nil {
		return loop, err
	}

	if err := b.SetInsertionPoint(loop.Header); err != nil {
		return loop, err
	}
	loop.Phi, err = b.EmitPhiStub(typ, PhiIncoming{Block: loop.PreHeader, Value: spec.Init})
	if err != nil {
		return loop, err
	}
	loop.Induction = loop.Phi.Value()
	if err := b.ctx.SetName(loop.Induction, "i"); err != nil {
		return loop, err
	}

	if spec.Body != nil {
		if err := spec.Body(b, loop.Induction); err != nil {
			return loop, err
		}
	}
	loop.BodyExit = b.CurrentBlock()

	if loop.Next, err = b.EmitBinaryOp(OpAdd, loop.Induction, spec.Step); err != nil {
		return loop, err
	}
	if err := b.ctx.SetName(loop.Next, "nextval"); err != nil {
		return loop, err
	}
	if loop.Cond, err = b.EmitCompare(spec.Pred, loop.Induction, spec.Bound); err != nil {
		return loop, err
	}
	if err := b.ctx.SetName(loop.Cond, "loopcond"); err != nil {
		return loop, err
	}
	if err := b.EmitCondBranch(loop.Cond, loop.Header, loop.Exit); err != nil {
		return loop, err
	}

	if err := b.FinalizePhi(loop.Phi, loop.BodyExit, loop.Next); err != nil {
		return loop, err
	}
	log.Debugf("loop %s closed with back edge from %s",
		b.ctx.Block(loop.Header).Label(), b.ctx.Block(loop.BodyExit).Label())

	if err := b.SetInsertionPoint(loop.Exit); err != nil {
		return loop, err
	}
	return loop, nil
}
