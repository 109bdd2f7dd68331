package ir

import (
	"fmt"
	"slices"

	"toyir/internal/errors"
)

// Parameter represents a function parameter
type Parameter struct {
	Name  string
	Type  *IntType
	Value Value
}

// Function represents a function in IR form. A function with no blocks is a
// declaration; otherwise Entry is the first block created.
type Function struct {
	ID         FuncID
	Name       string
	Params     []*Parameter
	ReturnType *IntType
	Entry      BlockID
	Blocks     []BlockID

	aborted error           // first construction error, if any
	sealed  bool            // verified; no further changes
	stubs   map[InstID]bool // phi stubs not yet finalized
}

// Signature renders the function type, e.g. "i32 foo(i32, i32)"
func (f *Function) Signature() string {
	types := make([]*IntType, len(f.Params))
	for i, p := range f.Params {
		types[i] = p.Type
	}
	return signatureString(f.Name, types, f.ReturnType)
}

// IsDeclaration reports whether the function has no body
func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

// Sealed reports whether the function passed verification
func (f *Function) Sealed() bool { return f.sealed }

// Aborted returns the construction error that left the function unusable
func (f *Function) Aborted() error { return f.aborted }

// abort records the first construction error
func (f *Function) abort(err error) {
	if f.aborted == nil {
		f.aborted = err
		log.Warningf("function %s aborted: %v", f.Name, err)
	}
}

// BasicBlock is a straight-line sequence of instructions ending in one
// terminator. The terminator is kept apart from Instructions so it is always
// last; a block with no terminator is still open.
type BasicBlock struct {
	ID           BlockID
	Name         string
	Func         FuncID
	Instructions []Instruction
	Terminator   Terminator

	preds []BlockID
	succs []BlockID
}

// Label is the unique display name of the block
func (b *BasicBlock) Label() string { return fmt.Sprintf("%s_%d", b.Name, b.ID) }

// IsTerminated reports whether the block is closed
func (b *BasicBlock) IsTerminated() bool { return b.Terminator != nil }

// Predecessors returns the distinct blocks that branch to b, in the order
// their terminators were placed.
func (b *BasicBlock) Predecessors() []BlockID {
	out := make([]BlockID, len(b.preds))
	copy(out, b.preds)
	return out
}

// Successors returns the distinct targets of b's terminator
func (b *BasicBlock) Successors() []BlockID {
	out := make([]BlockID, len(b.succs))
	copy(out, b.succs)
	return out
}

// Phis returns the leading phi instructions of the block
func (b *BasicBlock) Phis() []*PhiInstruction {
	var phis []*PhiInstruction
	for _, inst := range b.Instructions {
		phi, ok := inst.(*PhiInstruction)
		if !ok {
			break
		}
		phis = append(phis, phi)
	}
	return phis
}

// CreateBlock appends a new empty block to fn. Names are for display only; a
// fresh id is always allocated.
func (c *Context) CreateBlock(fn *Function, name string) (BlockID, error) {
	if fn == nil || c.Func(fn.ID) != fn {
		return NoBlock, errors.NewIRError(errors.InvalidHandle, errors.ErrorInvalidHandle,
			"function is not part of this context").Build()
	}
	if fn.sealed {
		return NoBlock, sealedError(fn)
	}

	block := &BasicBlock{
		ID:   BlockID(len(c.blocks)),
		Name: name,
		Func: fn.ID,
	}
	c.blocks = append(c.blocks, block)
	fn.Blocks = append(fn.Blocks, block.ID)
	if fn.Entry == NoBlock {
		fn.Entry = block.ID
	}
	log.Debugf("created block %s in %s", block.Label(), fn.Name)
	return block.ID, nil
}

// setTerminator closes block and refreshes the cached edge sets
func (c *Context) setTerminator(block *BasicBlock, term Terminator) {
	block.Terminator = term
	c.insts = append(c.insts, term)

	block.succs = block.succs[:0]
	for _, s := range term.GetSuccessors() {
		if slices.Contains(block.succs, s) {
			continue
		}
		block.succs = append(block.succs, s)
		target := c.blocks[s]
		if !slices.Contains(target.preds, block.ID) {
			target.preds = append(target.preds, block.ID)
		}
	}
}

func sealedError(fn *Function) error {
	return errors.NewIRError(errors.FunctionSealed, errors.ErrorFunctionSealed,
		"function '%s' is verified and sealed", fn.Name).
		InFunction(fn.Name).
		Build()
}
