// Package ir builds functions in static single assignment form: integer
// typed values, basic blocks closed by exactly one terminator, and phi nodes
// at control-flow joins. All state lives in a Context; a Builder appends
// instructions at a cursor, EmitIfElse and EmitLoop wire the usual
// control-flow shapes, and the verifier checks the finished graph.
package ir

// BuildFunc populates a fresh context through the given builder
type BuildFunc func(ctx *Context, b *Builder) error

// BuildModule is the main entry point for constructing a module: it runs
// build against a new context and verifies every function.
func BuildModule(name string, build BuildFunc) (*Context, error) {
	ctx := NewContext(name)
	if err := build(ctx, NewBuilder(ctx)); err != nil {
		return ctx, err
	}
	if err := ctx.VerifyModule(); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// PrintModule returns a pretty-printed representation of the IR
func PrintModule(ctx *Context) string {
	return Print(ctx)
}
