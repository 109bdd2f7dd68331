// Package llvm lowers a verified toyir module to LLVM IR with
// github.com/llir/llvm. It is a second printer: nothing here changes the
// source graph, and functions that have not passed verification are refused.
package llvm

import (
	"fmt"

	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/tliron/commonlog"

	"toyir/internal/errors"
	"toyir/internal/ir"
)

var log = commonlog.GetLogger("toyir.llvm")

var binaryOps = map[ir.BinaryOp]func(*llir.Block, value.Value, value.Value) value.Value{
	ir.OpAdd:  func(b *llir.Block, x, y value.Value) value.Value { return b.NewAdd(x, y) },
	ir.OpSub:  func(b *llir.Block, x, y value.Value) value.Value { return b.NewSub(x, y) },
	ir.OpMul:  func(b *llir.Block, x, y value.Value) value.Value { return b.NewMul(x, y) },
	ir.OpUDiv: func(b *llir.Block, x, y value.Value) value.Value { return b.NewUDiv(x, y) },
	ir.OpSDiv: func(b *llir.Block, x, y value.Value) value.Value { return b.NewSDiv(x, y) },
	ir.OpURem: func(b *llir.Block, x, y value.Value) value.Value { return b.NewURem(x, y) },
	ir.OpSRem: func(b *llir.Block, x, y value.Value) value.Value { return b.NewSRem(x, y) },
	ir.OpAnd:  func(b *llir.Block, x, y value.Value) value.Value { return b.NewAnd(x, y) },
	ir.OpOr:   func(b *llir.Block, x, y value.Value) value.Value { return b.NewOr(x, y) },
	ir.OpXor:  func(b *llir.Block, x, y value.Value) value.Value { return b.NewXor(x, y) },
	ir.OpShl:  func(b *llir.Block, x, y value.Value) value.Value { return b.NewShl(x, y) },
	ir.OpLShr: func(b *llir.Block, x, y value.Value) value.Value { return b.NewLShr(x, y) },
	ir.OpAShr: func(b *llir.Block, x, y value.Value) value.Value { return b.NewAShr(x, y) },
}

var predicates = map[ir.Predicate]enum.IPred{
	ir.PredEQ:  enum.IPredEQ,
	ir.PredNE:  enum.IPredNE,
	ir.PredULT: enum.IPredULT,
	ir.PredULE: enum.IPredULE,
	ir.PredUGT: enum.IPredUGT,
	ir.PredUGE: enum.IPredUGE,
	ir.PredSLT: enum.IPredSLT,
	ir.PredSLE: enum.IPredSLE,
	ir.PredSGT: enum.IPredSGT,
	ir.PredSGE: enum.IPredSGE,
}

var linkages = map[ir.Linkage]enum.Linkage{
	ir.LinkageCommon:   enum.LinkageCommon,
	ir.LinkageExternal: enum.LinkageExternal,
}

// generator keeps track of the top-level entities of the module being lowered
type generator struct {
	ctx *ir.Context
	m   *llir.Module

	// types maps a bit width to its LLVM integer type
	types map[int]*types.IntType
	// funcs maps from toyir function to LLVM function
	funcs map[ir.FuncID]*llir.Func
}

// funcGen lowers the body of a single function
type funcGen struct {
	*generator
	fn *ir.Function
	f  *llir.Func

	blocks map[ir.BlockID]*llir.Block
	values map[ir.ValueID]value.Value
	phis   []pendingPhi
	// names holds every local name taken so far; blocks, parameters and
	// instruction results share one namespace in LLVM
	names map[string]bool
}

// pendingPhi is a phi created with a placeholder incoming value. Its real
// incoming list is filled once every block has been lowered.
type pendingPhi struct {
	src *ir.PhiInstruction
	dst *llir.InstPhi
}

// Emit lowers every global and function of ctx into a new LLVM module. Each
// defined function must have been verified.
func Emit(ctx *ir.Context) (*llir.Module, error) {
	gen := &generator{
		ctx:   ctx,
		m:     llir.NewModule(),
		types: make(map[int]*types.IntType),
		funcs: make(map[ir.FuncID]*llir.Func),
	}
	gen.m.SourceFilename = ctx.Module().Name

	for _, fn := range ctx.Module().Functions() {
		if !fn.Sealed() && !(fn.IsDeclaration() && fn.Aborted() == nil) {
			return nil, errors.NewIRError(errors.Unverified, errors.ErrorUnverified,
				"function '%s' has not been verified", fn.Name).
				InFunction(fn.Name).
				WithHelp("call VerifyFunction or VerifyModule before exporting").
				Build()
		}
	}

	for _, g := range ctx.Module().Globals() {
		gen.global(g)
	}

	for _, fn := range ctx.Module().Functions() {
		gen.declare(fn)
	}

	for _, fn := range ctx.Module().Functions() {
		if fn.IsDeclaration() {
			continue
		}
		if err := gen.define(fn); err != nil {
			return nil, err
		}
	}

	log.Debugf("lowered module %s: %d globals, %d functions",
		ctx.Module().Name, len(gen.m.Globals), len(gen.m.Funcs))
	return gen.m, nil
}

// Print lowers ctx and returns the LLVM IR assembly
func Print(ctx *ir.Context) (string, error) {
	m, err := Emit(ctx)
	if err != nil {
		return "", err
	}
	return m.String(), nil
}

func (gen *generator) intType(t *ir.IntType) *types.IntType {
	if typ, ok := gen.types[t.Bits]; ok {
		return typ
	}
	typ := types.NewInt(uint64(t.Bits))
	gen.types[t.Bits] = typ
	return typ
}

func (gen *generator) retType(t *ir.IntType) types.Type {
	if t == nil {
		return types.Void
	}
	return gen.intType(t)
}

// global emits a zero-initialized definition with the global's linkage and
// alignment
func (gen *generator) global(g *ir.GlobalVariable) {
	typ := gen.intType(g.Type)
	def := gen.m.NewGlobalDef(g.Name, constant.NewInt(typ, 0))
	def.Linkage = linkages[g.Linkage]
	def.Align = llir.Align(g.Align)
}

func (gen *generator) declare(fn *ir.Function) {
	names := make(map[string]bool)
	params := make([]*llir.Param, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = llir.NewParam(uniqueName(names, p.Name), gen.intType(p.Type))
	}
	gen.funcs[fn.ID] = gen.m.NewFunc(fn.Name, gen.retType(fn.ReturnType), params...)
}

// define lowers the body of fn in three passes: blocks, instructions, then
// phi incoming lists. Instructions are lowered in reverse postorder so every
// operand outside a phi is available when it is used. Blocks no path
// reaches are left out, together with the phi pairs flowing from them.
// Block labels claim their local names first; a parameter or result whose
// name is already taken gets a ".N" suffix.
func (gen *generator) define(fn *ir.Function) error {
	fg := &funcGen{
		generator: gen,
		fn:        fn,
		f:         gen.funcs[fn.ID],
		blocks:    make(map[ir.BlockID]*llir.Block),
		values:    make(map[ir.ValueID]value.Value),
		names:     make(map[string]bool),
	}

	reachable := gen.ctx.Reachable(fn)
	for _, id := range fn.Blocks {
		if !reachable[id] {
			log.Debugf("%s: dropping unreachable block %s", fn.Name, gen.ctx.Block(id).Label())
			continue
		}
		fg.blocks[id] = fg.f.NewBlock(uniqueName(fg.names, gen.ctx.Block(id).Label()))
	}

	for i, p := range fn.Params {
		param := fg.f.Params[i]
		if p.Name != "" {
			param.SetName(uniqueName(fg.names, p.Name))
		}
		fg.values[p.Value.ID] = param
	}

	for _, id := range gen.ctx.ReversePostorder(fn) {
		if err := fg.lowerBlock(gen.ctx.Block(id)); err != nil {
			return err
		}
	}

	for _, p := range fg.phis {
		if err := fg.fillPhi(p); err != nil {
			return err
		}
	}
	return nil
}

func (fg *funcGen) lowerBlock(block *ir.BasicBlock) error {
	bb := fg.blocks[block.ID]

	for _, inst := range block.Instructions {
		switch inst := inst.(type) {
		case *ir.PhiInstruction:
			typ := fg.intType(inst.Result.Type)
			phi := bb.NewPhi(llir.NewIncoming(constant.NewUndef(typ), bb))
			fg.bind(inst.Result, phi)
			fg.phis = append(fg.phis, pendingPhi{src: inst, dst: phi})

		case *ir.BinaryInstruction:
			x, y, err := fg.operands(inst.Left, inst.Right)
			if err != nil {
				return err
			}
			fg.bind(inst.Result, binaryOps[inst.Op](bb, x, y))

		case *ir.CompareInstruction:
			x, y, err := fg.operands(inst.Left, inst.Right)
			if err != nil {
				return err
			}
			fg.bind(inst.Result, bb.NewICmp(predicates[inst.Pred], x, y))

		default:
			return fmt.Errorf("unsupported instruction %s", inst)
		}
	}

	switch term := block.Terminator.(type) {
	case *ir.ReturnTerminator:
		if !term.Value.IsValid() {
			bb.NewRet(nil)
			return nil
		}
		v, err := fg.operand(term.Value)
		if err != nil {
			return err
		}
		bb.NewRet(v)

	case *ir.JumpTerminator:
		bb.NewBr(fg.blocks[term.Target])

	case *ir.BranchTerminator:
		cond, err := fg.operand(term.Condition)
		if err != nil {
			return err
		}
		bb.NewCondBr(cond, fg.blocks[term.TrueBlock], fg.blocks[term.FalseBlock])

	default:
		return fmt.Errorf("block %s has no terminator", block.Label())
	}
	return nil
}

// fillPhi replaces the placeholder incoming value of a lowered phi
func (fg *funcGen) fillPhi(p pendingPhi) error {
	incs := make([]*llir.Incoming, 0, len(p.src.Incoming))
	for _, inc := range p.src.Incoming {
		pred, ok := fg.blocks[inc.Block]
		if !ok {
			continue
		}
		v, err := fg.operand(inc.Value)
		if err != nil {
			return err
		}
		incs = append(incs, llir.NewIncoming(v, pred))
	}
	p.dst.Incs = incs
	return nil
}

// bind records the lowered value of a result, carrying over its display name
func (fg *funcGen) bind(result ir.Value, v value.Value) {
	if def := fg.ctx.Def(result); def != nil && def.Name != "" {
		if named, ok := v.(value.Named); ok {
			named.SetName(uniqueName(fg.names, fmt.Sprintf("%s_%d", def.Name, def.ID)))
		}
	}
	fg.values[result.ID] = v
}

// uniqueName claims name in names, suffixing it with ".1", ".2" and so on
// until it is free. The empty name stays empty so LLVM numbers the value.
func uniqueName(names map[string]bool, name string) string {
	if name == "" {
		return ""
	}
	candidate := name
	for n := 1; names[candidate]; n++ {
		candidate = fmt.Sprintf("%s.%d", name, n)
	}
	names[candidate] = true
	return candidate
}

func (fg *funcGen) operand(v ir.Value) (value.Value, error) {
	if lit, ok := fg.ctx.Literal(v); ok {
		return constant.NewInt(fg.intType(v.Type), lit), nil
	}
	if lowered, ok := fg.values[v.ID]; ok {
		return lowered, nil
	}
	return nil, errors.NewIRError(errors.InvalidHandle, errors.ErrorInvalidHandle,
		"value %%%d is not defined before its use", v.ID).
		InFunction(fg.fn.Name).
		Build()
}

func (fg *funcGen) operands(x, y ir.Value) (value.Value, value.Value, error) {
	lx, err := fg.operand(x)
	if err != nil {
		return nil, nil, err
	}
	ly, err := fg.operand(y)
	if err != nil {
		return nil, nil, err
	}
	return lx, ly, nil
}
