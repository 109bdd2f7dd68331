package samples

import (
	"fmt"
	"sort"

	"toyir/internal/ir"
)

// SampleDefinition defines a ready-made construction program
type SampleDefinition struct {
	Name        string       // Sample name (e.g., "straight", "ifelse")
	Module      string       // Name of the module the sample builds
	Description string       // One-line summary shown by the CLI
	Build       ir.BuildFunc // Populates the module
}

// GetSamples returns all known samples keyed by name
func GetSamples() map[string]*SampleDefinition {
	return map[string]*SampleDefinition{
		"straight": {
			Name:        "straight",
			Module:      "foo",
			Description: "global x and foo() -> i32 returning 0",
			Build:       StraightLine,
		},
		"ifelse": {
			Name:        "ifelse",
			Module:      "ifelse",
			Description: "foo(a) -> i32 selecting a+1 or a+2 on a < 100",
			Build:       IfElse,
		},
		"loop": {
			Name:        "loop",
			Module:      "loop",
			Description: "foo(a, b) -> i32 summing a*i for i counting from 1 while i < b",
			Build:       Loop,
		},
	}
}

// IsKnownSample checks if a sample name exists
func IsKnownSample(name string) bool {
	_, exists := GetSamples()[name]
	return exists
}

// GetSampleDefinition returns the definition for a sample, or nil if unknown
func GetSampleDefinition(name string) *SampleDefinition {
	return GetSamples()[name]
}

// Names returns the sample names in sorted order
func Names() []string {
	samples := GetSamples()
	names := make([]string, 0, len(samples))
	for name := range samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs and verifies the named sample
func Build(name string) (*ir.Context, error) {
	def := GetSampleDefinition(name)
	if def == nil {
		return nil, fmt.Errorf("unknown sample '%s' (available: %v)", name, Names())
	}
	return ir.BuildModule(def.Module, def.Build)
}

// StraightLine declares a common global x and foo() -> i32 { return 0 }
func StraightLine(ctx *ir.Context, b *ir.Builder) error {
	i32 := ctx.Int32()
	if _, err := ctx.DeclareGlobal("x", i32); err != nil {
		return err
	}

	fn, err := ctx.DeclareFunction("foo", nil, i32)
	if err != nil {
		return err
	}
	entry, err := ctx.CreateBlock(fn, "entry")
	if err != nil {
		return err
	}
	if err := b.SetInsertionPoint(entry); err != nil {
		return err
	}
	return b.EmitReturn(ctx.Constant(i32, 0))
}

// IfElse builds foo(a) -> i32 returning a+1 when a < 100 and a+2 otherwise
func IfElse(ctx *ir.Context, b *ir.Builder) error {
	i32 := ctx.Int32()
	fn, entry, err := function(ctx, "foo", "a")
	if err != nil {
		return err
	}
	if err := b.SetInsertionPoint(entry); err != nil {
		return err
	}
	a := fn.Params[0].Value

	cond, err := b.EmitCompare(ir.PredULT, a, ctx.Constant(i32, 100))
	if err != nil {
		return err
	}
	ie, err := b.EmitIfElse(cond,
		func(b *ir.Builder) (ir.Value, error) { return b.EmitBinaryOp(ir.OpAdd, a, ctx.Constant(i32, 1)) },
		func(b *ir.Builder) (ir.Value, error) { return b.EmitBinaryOp(ir.OpAdd, a, ctx.Constant(i32, 2)) },
	)
	if err != nil {
		return err
	}
	return b.EmitReturn(ie.Result)
}

// Loop builds foo(a, b) -> i32 returning the sum of a*i for i counting up
// from 1 while i < b. The running sum is a second header phi next to the
// induction variable, closed over the back edge once the loop exists.
func Loop(ctx *ir.Context, b *ir.Builder) error {
	i32 := ctx.Int32()
	fn, entry, err := function(ctx, "foo", "a", "b")
	if err != nil {
		return err
	}
	if err := b.SetInsertionPoint(entry); err != nil {
		return err
	}
	a, bound := fn.Params[0].Value, fn.Params[1].Value

	var acc *ir.PhiStub
	var sum ir.Value
	loop, err := b.EmitLoop(ir.LoopSpec{
		Init:  ctx.Constant(i32, 1),
		Bound: bound,
		Body: func(b *ir.Builder, iv ir.Value) error {
			var err error
			acc, err = b.EmitPhiStub(i32, ir.PhiIncoming{Block: entry, Value: ctx.Constant(i32, 0)})
			if err != nil {
				return err
			}
			if err := ctx.SetName(acc.Value(), "acc"); err != nil {
				return err
			}
			product, err := b.EmitBinaryOp(ir.OpMul, a, iv)
			if err != nil {
				return err
			}
			if sum, err = b.EmitBinaryOp(ir.OpAdd, acc.Value(), product); err != nil {
				return err
			}
			return ctx.SetName(sum, "sum")
		},
	})
	if err != nil {
		return err
	}
	if err := b.FinalizePhi(acc, loop.BodyExit, sum); err != nil {
		return err
	}
	return b.EmitReturn(sum)
}

// function declares name with one i32 parameter per entry of params, binds
// their names and creates the entry block
func function(ctx *ir.Context, name string, params ...string) (*ir.Function, ir.BlockID, error) {
	types := make([]*ir.IntType, len(params))
	for i := range types {
		types[i] = ctx.Int32()
	}

	fn, err := ctx.DeclareFunction(name, types, ctx.Int32())
	if err != nil {
		return nil, ir.NoBlock, err
	}
	if err := ctx.BindParameters(fn, params); err != nil {
		return nil, ir.NoBlock, err
	}
	entry, err := ctx.CreateBlock(fn, "entry")
	if err != nil {
		return nil, ir.NoBlock, err
	}
	return fn, entry, nil
}
