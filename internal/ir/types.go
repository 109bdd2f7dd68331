package ir

import (
	"fmt"
)

// IR types and handles.
// Every graph object lives in an arena owned by a Context and is referred to by
// a small integer handle, so blocks can reference each other through branches
// without owning each other.

type (
	FuncID  int
	BlockID int
	InstID  int
	ValueID int
)

const (
	NoFunc  FuncID  = -1
	NoBlock BlockID = -1
	NoInst  InstID  = -1
)

// MaxIntWidth is the widest integer type the registry hands out
const MaxIntWidth = 64

// IntType is an interned integer type. Two requests for the same width from
// one Context return the same pointer.
type IntType struct {
	Bits int
}

func (i *IntType) String() string { return fmt.Sprintf("i%d", i.Bits) }

// IsBool reports whether the type is the 1-bit integer used for conditions
func (i *IntType) IsBool() bool { return i != nil && i.Bits == 1 }

// typeString renders a possibly-void type
func typeString(t *IntType) string {
	if t == nil {
		return "void"
	}
	return t.String()
}

// Value is a handle to an SSA value: an instruction result, a parameter or a
// constant. The zero Value means "no value".
type Value struct {
	ID   ValueID
	Type *IntType
}

// IsValid reports whether v refers to a value
func (v Value) IsValid() bool { return v.Type != nil }

// ValueKind says how a value is defined
type ValueKind int

const (
	ValueConstant ValueKind = iota
	ValueParameter
	ValueInstruction
)

func (k ValueKind) String() string {
	switch k {
	case ValueConstant:
		return "constant"
	case ValueParameter:
		return "parameter"
	case ValueInstruction:
		return "instruction"
	default:
		return "unknown"
	}
}

// ValueDef is the arena record behind a Value handle
type ValueDef struct {
	ID      ValueID
	Kind    ValueKind
	Type    *IntType
	Name    string
	Literal int64  // constants only
	Func    FuncID // parameters and instruction results
	Inst    InstID // instruction results only
	Param   int    // parameters only
}

// Handle returns the Value handle for the definition
func (d *ValueDef) Handle() Value { return Value{ID: d.ID, Type: d.Type} }

// truncate normalises a literal to the given width: i1 constants are 0 or 1,
// wider ones are sign-extended from their top bit.
func truncate(bits int, literal int64) int64 {
	if bits >= 64 {
		return literal
	}
	if bits == 1 {
		return literal & 1
	}
	shift := uint(64 - bits)
	return (literal << shift) >> shift
}

// naturalAlign is the byte alignment of an integer of the given width
func naturalAlign(t *IntType) int {
	align := (t.Bits + 7) / 8
	if align < 1 {
		align = 1
	}
	// round up to a power of two
	p := 1
	for p < align {
		p <<= 1
	}
	return p
}
