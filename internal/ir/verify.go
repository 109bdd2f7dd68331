package ir

import (
	"slices"
	"strings"

	"toyir/internal/errors"
)

// VerificationPass checks one well-formedness property of a function
type VerificationPass interface {
	Name() string
	Description() string
	Check(c *Context, fn *Function) error
}

// VerificationPipeline runs passes in order and stops at the first failure
type VerificationPipeline struct {
	passes []VerificationPass
}

// NewVerificationPipeline creates a pipeline with the default passes. Later
// passes rely on earlier ones: phi and dominance checks assume every block
// is terminated, so edge sets are final.
func NewVerificationPipeline() *VerificationPipeline {
	pipeline := &VerificationPipeline{}

	pipeline.AddPass(&CompletenessCheck{})
	pipeline.AddPass(&PhiStubCheck{})
	pipeline.AddPass(&TerminatorCheck{})
	pipeline.AddPass(&EntryCheck{})
	pipeline.AddPass(&PhiCheck{})
	pipeline.AddPass(&DominanceCheck{})

	return pipeline
}

// AddPass adds a verification pass to the pipeline
func (p *VerificationPipeline) AddPass(pass VerificationPass) {
	p.passes = append(p.passes, pass)
}

// Run executes every pass on fn and returns the first violation
func (p *VerificationPipeline) Run(c *Context, fn *Function) error {
	for _, pass := range p.passes {
		if err := pass.Check(c, fn); err != nil {
			log.Debugf("%s: %s failed: %v", fn.Name, pass.Name(), err)
			return err
		}
	}
	return nil
}

// VerifyFunction checks fn and seals it on success. Declarations have
// nothing to check and stay open. A sealed function is checked again, since
// its blocks and instructions can still be edited through their exported
// fields; if it no longer verifies it is unsealed and the error returned.
func (c *Context) VerifyFunction(fn *Function) error {
	if fn == nil || c.Func(fn.ID) != fn {
		return errors.NewIRError(errors.InvalidHandle, errors.ErrorInvalidHandle,
			"function is not part of this context").Build()
	}
	if fn.IsDeclaration() && fn.aborted == nil {
		return nil
	}

	if err := NewVerificationPipeline().Run(c, fn); err != nil {
		if fn.sealed {
			log.Warningf("%s no longer verifies, unsealing", fn.Name)
			fn.sealed = false
		}
		return err
	}
	fn.sealed = true
	log.Debugf("verified %s", fn.Signature())
	return nil
}

// VerifyModule verifies every function in declaration order and returns the
// first failure.
func (c *Context) VerifyModule() error {
	for _, fn := range c.module.functions {
		if err := c.VerifyFunction(fn); err != nil {
			return err
		}
	}
	return nil
}

// CompletenessCheck rejects functions whose construction was aborted
type CompletenessCheck struct{}

func (cc *CompletenessCheck) Name() string {
	return "Completeness"
}

func (cc *CompletenessCheck) Description() string {
	return "Rejects functions left unusable by a construction error"
}

func (cc *CompletenessCheck) Check(c *Context, fn *Function) error {
	if fn.aborted == nil {
		return nil
	}
	return errors.NewVerificationError(errors.IncompleteFunction, errors.ErrorIncompleteFunction,
		"construction of '%s' was aborted", fn.Name).
		InFunction(fn.Name).
		WithNote("first error: %v", fn.aborted).
		Build()
}

// PhiStubCheck rejects functions holding phi stubs that were never finalized
type PhiStubCheck struct{}

func (pc *PhiStubCheck) Name() string {
	return "Phi Stubs"
}

func (pc *PhiStubCheck) Description() string {
	return "Requires every phi stub to be finalized"
}

func (pc *PhiStubCheck) Check(c *Context, fn *Function) error {
	if len(fn.stubs) == 0 {
		return nil
	}
	// report the earliest stub so the result does not depend on map order
	ids := make([]InstID, 0, len(fn.stubs))
	for id := range fn.stubs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	phi := c.insts[ids[0]].(*PhiInstruction)
	block := c.blocks[phi.Block]
	return errors.NewVerificationError(errors.UnfinalizedPhi, errors.ErrorUnfinalizedPhi,
		"phi %s was never finalized", c.valueName(phi.Result)).
		InFunction(fn.Name).
		InBlock(block.Label(), slices.Index(block.Instructions, Instruction(phi))).
		WithHelp("call FinalizePhi once the back edge block is known").
		Build()
}

// TerminatorCheck requires every block to end in exactly one terminator
type TerminatorCheck struct{}

func (tc *TerminatorCheck) Name() string {
	return "Terminators"
}

func (tc *TerminatorCheck) Description() string {
	return "Every block ends in exactly one terminator"
}

func (tc *TerminatorCheck) Check(c *Context, fn *Function) error {
	for _, id := range fn.Blocks {
		block := c.blocks[id]
		for i, inst := range block.Instructions {
			if inst.IsTerminator() {
				return errors.NewVerificationError(errors.UnterminatedBlock, errors.ErrorUnterminatedBlock,
					"terminator %s is not the last instruction", inst).
					InFunction(fn.Name).
					InBlock(block.Label(), i).
					Build()
			}
		}
		if !block.IsTerminated() {
			return errors.NewVerificationError(errors.UnterminatedBlock, errors.ErrorUnterminatedBlock,
				"block '%s' has no terminator", block.Label()).
				InFunction(fn.Name).
				InBlock(block.Label(), len(block.Instructions)).
				WithHelp("end the block with a branch or a return").
				Build()
		}
	}
	return nil
}

// EntryCheck requires the entry block to have no predecessors
type EntryCheck struct{}

func (ec *EntryCheck) Name() string {
	return "Entry"
}

func (ec *EntryCheck) Description() string {
	return "The entry block is not a branch target"
}

func (ec *EntryCheck) Check(c *Context, fn *Function) error {
	entry := c.blocks[fn.Entry]
	if len(entry.preds) == 0 {
		return nil
	}
	return errors.NewVerificationError(errors.InvalidEntry, errors.ErrorInvalidEntry,
		"entry block '%s' is the target of %s", entry.Label(), c.blockList(entry.preds)).
		InFunction(fn.Name).
		InBlock(entry.Label(), -1).
		WithHelp("branch to a separate loop header instead of the entry block").
		Build()
}

// PhiCheck validates phi placement and incoming lists
type PhiCheck struct{}

func (pc *PhiCheck) Name() string {
	return "Phi Nodes"
}

func (pc *PhiCheck) Description() string {
	return "Phis lead their block and have one incoming value per predecessor"
}

func (pc *PhiCheck) Check(c *Context, fn *Function) error {
	for _, id := range fn.Blocks {
		block := c.blocks[id]
		seenNonPhi := false
		for i, inst := range block.Instructions {
			phi, ok := inst.(*PhiInstruction)
			if !ok {
				seenNonPhi = true
				continue
			}
			malformed := func(format string, args ...any) *errors.IRErrorBuilder {
				return errors.NewVerificationError(errors.MalformedPhi, errors.ErrorMalformedPhi, format, args...).
					InFunction(fn.Name).
					InBlock(block.Label(), i)
			}
			name := c.valueName(phi.Result)

			if seenNonPhi {
				return malformed("phi %s follows a non-phi instruction", name).Build()
			}

			var incoming []BlockID
			for _, inc := range phi.Incoming {
				if slices.Contains(incoming, inc.Block) {
					return malformed("phi %s has two incoming values from %s",
						name, c.blocks[inc.Block].Label()).Build()
				}
				incoming = append(incoming, inc.Block)
				if inc.Value.Type != phi.Result.Type {
					return malformed("phi %s of type %s has incoming %s from %s",
						name, phi.Result.Type, c.valueName(inc.Value), c.blocks[inc.Block].Label()).Build()
				}
			}

			var missing, extra []BlockID
			for _, p := range block.preds {
				if !slices.Contains(incoming, p) {
					missing = append(missing, p)
				}
			}
			for _, b := range incoming {
				if !slices.Contains(block.preds, b) {
					extra = append(extra, b)
				}
			}
			if len(missing) == 0 && len(extra) == 0 {
				continue
			}

			eb := malformed("phi %s incoming blocks do not match the predecessors of '%s'", name, block.Label()).
				WithNote("predecessors: %s", c.blockList(block.preds)).
				WithNote("incoming: %s", c.blockList(incoming))
			if len(missing) > 0 {
				eb = eb.WithNote("missing incoming value for %s", c.blockList(missing))
			}
			if len(extra) > 0 {
				eb = eb.WithNote("%s does not branch to '%s'", c.blockList(extra), block.Label())
			}
			return eb.Build()
		}
	}
	return nil
}

// DominanceCheck requires every use to be dominated by its definition
type DominanceCheck struct{}

func (dc *DominanceCheck) Name() string {
	return "Dominance"
}

func (dc *DominanceCheck) Description() string {
	return "Every operand is defined before it is used"
}

func (dc *DominanceCheck) Check(c *Context, fn *Function) error {
	dt := c.Dominators(fn)

	for _, id := range fn.Blocks {
		if !dt.Reachable(id) {
			continue
		}
		block := c.blocks[id]

		local := make(map[ValueID]int, len(block.Instructions))
		for i, inst := range block.Instructions {
			if res := inst.GetResult(); res.IsValid() {
				local[res.ID] = i
			}
		}

		fail := func(index int, format string, args ...any) error {
			return errors.NewVerificationError(errors.UseBeforeDef, errors.ErrorUseBeforeDef, format, args...).
				InFunction(fn.Name).
				InBlock(block.Label(), index).
				Build()
		}

		for i, inst := range block.Instructions {
			if phi, ok := inst.(*PhiInstruction); ok {
				for _, inc := range phi.Incoming {
					if !dt.Reachable(inc.Block) {
						continue
					}
					def, defBlock, msg := dc.definition(c, fn, inc.Value)
					if msg != "" {
						return fail(i, "phi incoming %s is %s", c.valueName(inc.Value), msg)
					}
					if def == nil {
						continue
					}
					if !dt.Dominates(defBlock, inc.Block) {
						return fail(i, "phi incoming %s is not available at the end of %s",
							c.valueName(inc.Value), c.blocks[inc.Block].Label())
					}
				}
				continue
			}
			for _, op := range inst.GetOperands() {
				if msg := dc.checkUse(c, fn, dt, block, local, i, op); msg != "" {
					return fail(i, "%s", msg)
				}
			}
		}

		term := block.Terminator
		for _, op := range term.GetOperands() {
			if msg := dc.checkUse(c, fn, dt, block, local, len(block.Instructions), op); msg != "" {
				return fail(len(block.Instructions), "%s", msg)
			}
		}
	}
	return nil
}

// definition resolves the defining instruction of v and its block. Constants
// and parameters of fn have no defining instruction and yield nil.
func (dc *DominanceCheck) definition(c *Context, fn *Function, v Value) (*ValueDef, BlockID, string) {
	def := c.Def(v)
	if def == nil {
		return nil, NoBlock, "not a value of this context"
	}
	switch def.Kind {
	case ValueConstant:
		return nil, NoBlock, ""
	case ValueParameter:
		if def.Func != fn.ID {
			return nil, NoBlock, "parameter of another function"
		}
		return nil, NoBlock, ""
	}
	if def.Func != fn.ID {
		return nil, NoBlock, "defined in another function"
	}
	inst := c.Inst(def.Inst)
	if inst == nil {
		return nil, NoBlock, "has no defining instruction"
	}
	return def, inst.GetBlock(), ""
}

func (dc *DominanceCheck) checkUse(c *Context, fn *Function, dt *DomTree, block *BasicBlock,
	local map[ValueID]int, index int, v Value) string {
	def, defBlock, msg := dc.definition(c, fn, v)
	if msg != "" {
		return c.valueName(v) + " is " + msg
	}
	if def == nil {
		return ""
	}
	if defBlock == block.ID {
		if at, ok := local[v.ID]; ok && at < index {
			return ""
		}
		return c.valueName(v) + " is used before its definition"
	}
	if !dt.StrictlyDominates(defBlock, block.ID) {
		return c.valueName(v) + " is defined in " + c.blocks[defBlock].Label() +
			", which does not dominate " + block.Label()
	}
	return ""
}

// blockList renders block labels for diagnostics
func (c *Context) blockList(ids []BlockID) string {
	if len(ids) == 0 {
		return "none"
	}
	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = c.blocks[id].Label()
	}
	return strings.Join(labels, ", ")
}
