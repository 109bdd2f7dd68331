package ir

import "fmt"

// BinaryOp names an integer arithmetic or bitwise operation
type BinaryOp string

const (
	OpAdd  BinaryOp = "add"
	OpSub  BinaryOp = "sub"
	OpMul  BinaryOp = "mul"
	OpUDiv BinaryOp = "udiv"
	OpSDiv BinaryOp = "sdiv"
	OpURem BinaryOp = "urem"
	OpSRem BinaryOp = "srem"
	OpAnd  BinaryOp = "and"
	OpOr   BinaryOp = "or"
	OpXor  BinaryOp = "xor"
	OpShl  BinaryOp = "shl"
	OpLShr BinaryOp = "lshr"
	OpAShr BinaryOp = "ashr"
)

// Valid reports whether op is one of the known operations
func (op BinaryOp) Valid() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpUDiv, OpSDiv, OpURem, OpSRem,
		OpAnd, OpOr, OpXor, OpShl, OpLShr, OpAShr:
		return true
	}
	return false
}

// Predicate names an integer comparison
type Predicate string

const (
	PredEQ  Predicate = "eq"
	PredNE  Predicate = "ne"
	PredULT Predicate = "ult"
	PredULE Predicate = "ule"
	PredUGT Predicate = "ugt"
	PredUGE Predicate = "uge"
	PredSLT Predicate = "slt"
	PredSLE Predicate = "sle"
	PredSGT Predicate = "sgt"
	PredSGE Predicate = "sge"
)

// Valid reports whether p is one of the known predicates
func (p Predicate) Valid() bool {
	switch p {
	case PredEQ, PredNE, PredULT, PredULE, PredUGT, PredUGE,
		PredSLT, PredSLE, PredSGT, PredSGE:
		return true
	}
	return false
}

// Instruction is the closed set of IR instructions. Only the types in this
// file implement it.
type Instruction interface {
	GetID() InstID
	GetResult() Value
	GetOperands() []Value
	GetBlock() BlockID
	IsTerminator() bool
	String() string

	instruction()
}

// Terminators end basic blocks
type Terminator interface {
	Instruction
	GetSuccessors() []BlockID
}

// PhiIncoming is one (predecessor, value) pair of a phi
type PhiIncoming struct {
	Block BlockID
	Value Value
}

type BinaryInstruction struct {
	ID     InstID
	Result Value
	Block  BlockID
	Op     BinaryOp
	Left   Value
	Right  Value
}

type CompareInstruction struct {
	ID     InstID
	Result Value
	Block  BlockID
	Pred   Predicate
	Left   Value
	Right  Value
}

// PhiInstruction selects a value by the predecessor control arrived from.
// Incoming keeps insertion order.
type PhiInstruction struct {
	ID       InstID
	Result   Value
	Block    BlockID
	Incoming []PhiIncoming
}

// Terminators

type ReturnTerminator struct {
	ID    InstID
	Block BlockID
	Value Value
}

type BranchTerminator struct {
	ID         InstID
	Block      BlockID
	Condition  Value
	TrueBlock  BlockID
	FalseBlock BlockID
}

type JumpTerminator struct {
	ID     InstID
	Block  BlockID
	Target BlockID
}

// Implementation of interfaces

func (b *BinaryInstruction) GetID() InstID        { return b.ID }
func (b *BinaryInstruction) GetResult() Value     { return b.Result }
func (b *BinaryInstruction) GetOperands() []Value { return []Value{b.Left, b.Right} }
func (b *BinaryInstruction) GetBlock() BlockID    { return b.Block }
func (b *BinaryInstruction) IsTerminator() bool   { return false }
func (b *BinaryInstruction) String() string       { return fmt.Sprintf("BINARY %d", b.ID) }
func (b *BinaryInstruction) instruction()         {}

func (c *CompareInstruction) GetID() InstID        { return c.ID }
func (c *CompareInstruction) GetResult() Value     { return c.Result }
func (c *CompareInstruction) GetOperands() []Value { return []Value{c.Left, c.Right} }
func (c *CompareInstruction) GetBlock() BlockID    { return c.Block }
func (c *CompareInstruction) IsTerminator() bool   { return false }
func (c *CompareInstruction) String() string       { return fmt.Sprintf("ICMP %d", c.ID) }
func (c *CompareInstruction) instruction()         {}

func (p *PhiInstruction) GetID() InstID    { return p.ID }
func (p *PhiInstruction) GetResult() Value { return p.Result }
func (p *PhiInstruction) GetOperands() []Value {
	ops := make([]Value, 0, len(p.Incoming))
	for _, inc := range p.Incoming {
		ops = append(ops, inc.Value)
	}
	return ops
}
func (p *PhiInstruction) GetBlock() BlockID  { return p.Block }
func (p *PhiInstruction) IsTerminator() bool { return false }
func (p *PhiInstruction) String() string     { return fmt.Sprintf("PHI %d", p.ID) }
func (p *PhiInstruction) instruction()       {}

// Terminator implementations

func (r *ReturnTerminator) GetID() InstID    { return r.ID }
func (r *ReturnTerminator) GetResult() Value { return Value{} }
func (r *ReturnTerminator) GetOperands() []Value {
	if r.Value.IsValid() {
		return []Value{r.Value}
	}
	return []Value{}
}
func (r *ReturnTerminator) GetBlock() BlockID        { return r.Block }
func (r *ReturnTerminator) IsTerminator() bool       { return true }
func (r *ReturnTerminator) GetSuccessors() []BlockID { return []BlockID{} }
func (r *ReturnTerminator) String() string           { return fmt.Sprintf("RETURN %d", r.ID) }
func (r *ReturnTerminator) instruction()             {}

func (b *BranchTerminator) GetID() InstID        { return b.ID }
func (b *BranchTerminator) GetResult() Value     { return Value{} }
func (b *BranchTerminator) GetOperands() []Value { return []Value{b.Condition} }
func (b *BranchTerminator) GetBlock() BlockID    { return b.Block }
func (b *BranchTerminator) IsTerminator() bool   { return true }
func (b *BranchTerminator) GetSuccessors() []BlockID {
	return []BlockID{b.TrueBlock, b.FalseBlock}
}
func (b *BranchTerminator) String() string { return fmt.Sprintf("BRANCH %d", b.ID) }
func (b *BranchTerminator) instruction()   {}

func (j *JumpTerminator) GetID() InstID            { return j.ID }
func (j *JumpTerminator) GetResult() Value         { return Value{} }
func (j *JumpTerminator) GetOperands() []Value     { return []Value{} }
func (j *JumpTerminator) GetBlock() BlockID        { return j.Block }
func (j *JumpTerminator) IsTerminator() bool       { return true }
func (j *JumpTerminator) GetSuccessors() []BlockID { return []BlockID{j.Target} }
func (j *JumpTerminator) String() string           { return fmt.Sprintf("JUMP %d", j.ID) }
func (j *JumpTerminator) instruction()             {}
