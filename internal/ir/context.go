package ir

import (
	"fmt"

	"github.com/tliron/commonlog"
	"toyir/internal/errors"
)

var log = commonlog.GetLogger("toyir.ir")

// Context owns everything built for one module: the type registry, the
// constant table, the symbol table and the arenas of blocks, instructions and
// values. All construction goes through a Context; there is no package-level
// state.
//
// A Context is not safe for concurrent use. Building two functions of the
// same module from different goroutines requires external synchronization,
// since they share the symbol table and arenas. Once every function is
// verified the context is read-only and may be printed concurrently.
type Context struct {
	module *Module

	types     map[int]*IntType
	constants map[constKey]Value

	blocks []*BasicBlock
	insts  []Instruction
	values []*ValueDef
}

type constKey struct {
	bits    int
	literal int64
}

// NewContext creates an empty module named name
func NewContext(name string) *Context {
	return &Context{
		module:    newModule(name),
		types:     make(map[int]*IntType),
		constants: make(map[constKey]Value),
	}
}

// Module returns the module under construction
func (c *Context) Module() *Module { return c.module }

// Type registry

// IntegerType returns the interned integer type of the given width
func (c *Context) IntegerType(bits int) (*IntType, error) {
	if bits < 1 || bits > MaxIntWidth {
		return nil, errors.NewIRError(errors.UnsupportedType, errors.ErrorUnsupportedType,
			"integer width %d is outside 1..%d", bits, MaxIntWidth).Build()
	}
	if t, ok := c.types[bits]; ok {
		return t, nil
	}
	t := &IntType{Bits: bits}
	c.types[bits] = t
	return t, nil
}

// mustIntegerType is IntegerType for widths known to be valid
func (c *Context) mustIntegerType(bits int) *IntType {
	t, err := c.IntegerType(bits)
	if err != nil {
		panic(err)
	}
	return t
}

// resolveType maps t, possibly from another context, onto the interned type
// of the same width
func (c *Context) resolveType(t *IntType, what string) (*IntType, error) {
	if t == nil {
		return nil, errors.NewIRError(errors.UnsupportedType, errors.ErrorUnsupportedType,
			"%s has no type", what).Build()
	}
	return c.IntegerType(t.Bits)
}

// Int32 returns i32
func (c *Context) Int32() *IntType { return c.mustIntegerType(32) }

// Bool returns i1, the type of comparison results and branch conditions
func (c *Context) Bool() *IntType { return c.mustIntegerType(1) }

// Constant returns the interned constant of typ holding literal, truncated to
// the width of typ. A nil or unsupported type yields the invalid Value{},
// which every emitter rejects as InvalidHandle.
func (c *Context) Constant(typ *IntType, literal int64) Value {
	typ, err := c.resolveType(typ, "constant")
	if err != nil {
		log.Warningf("constant %d: %v", literal, err)
		return Value{}
	}
	key := constKey{bits: typ.Bits, literal: truncate(typ.Bits, literal)}
	if v, ok := c.constants[key]; ok {
		return v
	}
	def := c.newValue(ValueConstant, typ, "")
	def.Literal = key.literal
	v := def.Handle()
	c.constants[key] = v
	return v
}

// Arena access

// Func returns the function for id, or nil
func (c *Context) Func(id FuncID) *Function { return c.module.function(id) }

// Block returns the block for id, or nil
func (c *Context) Block(id BlockID) *BasicBlock {
	if id < 0 || int(id) >= len(c.blocks) {
		return nil
	}
	return c.blocks[id]
}

// Inst returns the instruction for id, or nil
func (c *Context) Inst(id InstID) Instruction {
	if id < 0 || int(id) >= len(c.insts) {
		return nil
	}
	return c.insts[id]
}

// Def returns the definition record behind v, or nil if v is not a value of
// this context.
func (c *Context) Def(v Value) *ValueDef {
	if !v.IsValid() || v.ID < 0 || int(v.ID) >= len(c.values) {
		return nil
	}
	def := c.values[v.ID]
	if def.Type != v.Type {
		return nil
	}
	return def
}

// SetName gives v a display name. Constants cannot be named.
func (c *Context) SetName(v Value, name string) error {
	def, err := c.checkValue(v, "value")
	if err != nil {
		return err
	}
	if def.Kind == ValueConstant {
		return errors.NewIRError(errors.InvalidHandle, errors.ErrorInvalidHandle,
			"constants cannot be named").Build()
	}
	def.Name = name
	if def.Kind == ValueParameter {
		c.Func(def.Func).Params[def.Param].Name = name
	}
	return nil
}

// Literal returns the literal of a constant value
func (c *Context) Literal(v Value) (int64, bool) {
	def := c.Def(v)
	if def == nil || def.Kind != ValueConstant {
		return 0, false
	}
	return def.Literal, true
}

func (c *Context) newValue(kind ValueKind, typ *IntType, name string) *ValueDef {
	def := &ValueDef{
		ID:   ValueID(len(c.values)),
		Kind: kind,
		Type: typ,
		Name: name,
		Func: NoFunc,
		Inst: NoInst,
	}
	c.values = append(c.values, def)
	return def
}

func (c *Context) checkValue(v Value, what string) (*ValueDef, error) {
	def := c.Def(v)
	if def == nil {
		return nil, errors.NewIRError(errors.InvalidHandle, errors.ErrorInvalidHandle,
			"%s does not refer to a value of this context", what).Build()
	}
	return def, nil
}

func (c *Context) checkBlock(id BlockID) (*BasicBlock, error) {
	blk := c.Block(id)
	if blk == nil {
		return nil, errors.NewIRError(errors.InvalidHandle, errors.ErrorInvalidHandle,
			"block #%d does not exist", id).Build()
	}
	return blk, nil
}

// valueName renders a value for diagnostics
func (c *Context) valueName(v Value) string {
	def := c.Def(v)
	if def == nil {
		return "<invalid>"
	}
	switch {
	case def.Kind == ValueConstant:
		return fmt.Sprintf("%s %d", def.Type, def.Literal)
	case def.Name != "":
		return fmt.Sprintf("%%%s_%d", def.Name, def.ID)
	default:
		return fmt.Sprintf("%%%d", def.ID)
	}
}
