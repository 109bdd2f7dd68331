package ir

import (
	"fmt"
	"strings"
)

// Printer provides pretty-printing for IR
type Printer struct {
	ctx    *Context
	indent int
	output strings.Builder
}

// NewPrinter creates a new IR printer over ctx
func NewPrinter(ctx *Context) *Printer {
	return &Printer{ctx: ctx, indent: 0}
}

// Print returns the text dump of the module held by ctx. Output follows
// construction order and is identical for identical construction sequences.
func Print(ctx *Context) string {
	p := NewPrinter(ctx)
	p.printModule(ctx.Module())
	return p.output.String()
}

// PrintCFG returns the control flow summary of every defined function
func PrintCFG(ctx *Context) string {
	p := NewPrinter(ctx)
	p.printCFG(ctx.Module())
	return p.output.String()
}

func (c *Context) String() string {
	return Print(c)
}

// Helper methods

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

// printModule prints globals, then functions in declaration order
func (p *Printer) printModule(m *Module) {
	p.writeLine("MODULE %s", m.Name)
	p.writeLine("")

	if globals := m.Globals(); len(globals) > 0 {
		p.writeLine("GLOBALS:")
		p.indent++
		for _, g := range globals {
			p.writeLine("@%s : %s %s, align %d", g.Name, g.Type, g.Linkage, g.Align)
		}
		p.indent--
		p.writeLine("")
	}

	for _, fn := range m.Functions() {
		p.printFunction(fn)
		p.writeLine("")
	}
}

// printFunction prints a function signature and, for definitions, its body
func (p *Printer) printFunction(fn *Function) {
	params := make([]string, len(fn.Params))
	for i, param := range fn.Params {
		params[i] = fmt.Sprintf("%s: %s", p.valueString(param.Value), param.Type)
	}
	sig := fmt.Sprintf("%s(%s)", fn.Name, strings.Join(params, ", "))
	if fn.ReturnType != nil {
		sig += " -> " + fn.ReturnType.String()
	}

	if fn.IsDeclaration() {
		p.writeLine("DECLARE %s", sig)
		return
	}

	var metadata []string
	if fn.Sealed() {
		metadata = append(metadata, "verified")
	}
	if fn.Aborted() != nil {
		metadata = append(metadata, "aborted")
	}

	p.writeLine("FUNCTION %s", sig)
	if len(metadata) > 0 {
		p.writeLine("  [%s]", strings.Join(metadata, ", "))
	}
	p.writeLine("{")
	for _, id := range fn.Blocks {
		p.printBasicBlock(p.ctx.Block(id))
	}
	p.writeLine("}")
}

// printBasicBlock prints a basic block in IR form
func (p *Printer) printBasicBlock(block *BasicBlock) {
	p.writeLine("%s:", block.Label())

	p.indent++
	for _, inst := range block.Instructions {
		p.writeLine("%s", p.instructionString(inst))
	}
	if block.Terminator != nil {
		p.writeLine("%s", p.instructionString(block.Terminator))
	} else {
		p.writeLine("; unterminated")
	}
	p.indent--
}

// instructionString renders one instruction
func (p *Printer) instructionString(inst Instruction) string {
	switch i := inst.(type) {
	case *BinaryInstruction:
		return fmt.Sprintf("%s = %s %s, %s",
			p.valueString(i.Result), i.Op, p.valueString(i.Left), p.valueString(i.Right))
	case *CompareInstruction:
		return fmt.Sprintf("%s = icmp %s %s, %s",
			p.valueString(i.Result), i.Pred, p.valueString(i.Left), p.valueString(i.Right))
	case *PhiInstruction:
		return p.phiString(i)
	case *BranchTerminator:
		return fmt.Sprintf("br_if(%s, %s, %s)",
			p.valueString(i.Condition), p.blockLabel(i.TrueBlock), p.blockLabel(i.FalseBlock))
	case *JumpTerminator:
		return fmt.Sprintf("jump %s", p.blockLabel(i.Target))
	case *ReturnTerminator:
		if i.Value.IsValid() {
			return fmt.Sprintf("return %s", p.valueString(i.Value))
		}
		return "return"
	default:
		return fmt.Sprintf("UNKNOWN_INST<%T> %d", i, i.GetID())
	}
}

// phiString prints a phi with its incoming pairs in insertion order
func (p *Printer) phiString(phi *PhiInstruction) string {
	inputs := make([]string, 0, len(phi.Incoming))
	for _, inc := range phi.Incoming {
		inputs = append(inputs, fmt.Sprintf("[%s: %s]", p.blockLabel(inc.Block), p.valueString(inc.Value)))
	}
	return fmt.Sprintf("%s = phi %s %s", p.valueString(phi.Result), phi.Result.Type, strings.Join(inputs, ", "))
}

// printCFG prints control flow graph information
func (p *Printer) printCFG(m *Module) {
	p.writeLine("CONTROL FLOW GRAPH:")
	p.indent++

	for _, fn := range m.Functions() {
		if fn.IsDeclaration() {
			continue
		}
		p.writeLine("Function: %s", fn.Name)
		p.indent++

		p.writeLine("Entry: %s", p.blockLabel(fn.Entry))
		p.writeLine("Blocks: %d", len(fn.Blocks))

		dt := p.ctx.Dominators(fn)
		p.writeLine("Block Relationships:")
		p.indent++
		for _, id := range fn.Blocks {
			block := p.ctx.Block(id)
			succ := "[END]"
			if len(block.succs) > 0 {
				succ = p.blockLabels(block.succs)
			}
			idom := "-"
			if d := dt.Idom(id); d != NoBlock {
				idom = p.blockLabel(d)
			}
			if !dt.Reachable(id) {
				idom = "unreachable"
			}
			p.writeLine("%s -> %s  ; preds=[%s] idom=%s", block.Label(), succ, p.blockLabels(block.preds), idom)
		}
		p.indent--

		p.indent--
		p.writeLine("")
	}

	p.indent--
}

func (p *Printer) valueString(v Value) string {
	return p.ctx.valueName(v)
}

func (p *Printer) blockLabel(id BlockID) string {
	if block := p.ctx.Block(id); block != nil {
		return block.Label()
	}
	return fmt.Sprintf("<block #%d>", id)
}

func (p *Printer) blockLabels(ids []BlockID) string {
	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = p.blockLabel(id)
	}
	return strings.Join(labels, ", ")
}
