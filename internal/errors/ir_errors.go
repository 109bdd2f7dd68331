package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Kind classifies an IR construction or verification failure
type Kind string

const (
	DuplicateSymbol        Kind = "DuplicateSymbol"
	ArityMismatch          Kind = "ArityMismatch"
	TypeMismatch           Kind = "TypeMismatch"
	InvalidCondition       Kind = "InvalidCondition"
	BlockAlreadyTerminated Kind = "BlockAlreadyTerminated"
	PhiPlacementError      Kind = "PhiPlacementError"
	VerificationFailure    Kind = "VerificationFailure"
	UnsupportedType        Kind = "UnsupportedType"
	InvalidHandle          Kind = "InvalidHandle"
	NoInsertionPoint       Kind = "NoInsertionPoint"
	FunctionSealed         Kind = "FunctionSealed"
	Unverified             Kind = "Unverified"
)

// SubKind narrows a VerificationFailure
type SubKind string

const (
	UnterminatedBlock  SubKind = "UnterminatedBlock"
	MalformedPhi       SubKind = "MalformedPhi"
	UseBeforeDef       SubKind = "UseBeforeDef"
	UnfinalizedPhi     SubKind = "UnfinalizedPhi"
	InvalidEntry       SubKind = "InvalidEntry"
	IncompleteFunction SubKind = "IncompleteFunction"
)

// Sentinels for errors.Is. A sentinel with an empty SubKind matches any sub-kind.
var (
	ErrDuplicateSymbol        = &IRError{Kind: DuplicateSymbol}
	ErrArityMismatch          = &IRError{Kind: ArityMismatch}
	ErrTypeMismatch           = &IRError{Kind: TypeMismatch}
	ErrInvalidCondition       = &IRError{Kind: InvalidCondition}
	ErrBlockAlreadyTerminated = &IRError{Kind: BlockAlreadyTerminated}
	ErrPhiPlacement           = &IRError{Kind: PhiPlacementError}
	ErrVerificationFailure    = &IRError{Kind: VerificationFailure}
	ErrUnsupportedType        = &IRError{Kind: UnsupportedType}
	ErrInvalidHandle          = &IRError{Kind: InvalidHandle}
	ErrNoInsertionPoint       = &IRError{Kind: NoInsertionPoint}
	ErrFunctionSealed         = &IRError{Kind: FunctionSealed}
	ErrUnverified             = &IRError{Kind: Unverified}

	ErrUnterminatedBlock  = &IRError{Kind: VerificationFailure, SubKind: UnterminatedBlock}
	ErrMalformedPhi       = &IRError{Kind: VerificationFailure, SubKind: MalformedPhi}
	ErrUseBeforeDef       = &IRError{Kind: VerificationFailure, SubKind: UseBeforeDef}
	ErrUnfinalizedPhi     = &IRError{Kind: VerificationFailure, SubKind: UnfinalizedPhi}
	ErrInvalidEntry       = &IRError{Kind: VerificationFailure, SubKind: InvalidEntry}
	ErrIncompleteFunction = &IRError{Kind: VerificationFailure, SubKind: IncompleteFunction}
)

// Location points at the offending part of the graph. Index is the position of
// the instruction within its block, with the terminator at len(Instructions);
// -1 means the whole block or function.
type Location struct {
	Function string
	Block    string
	Index    int
}

func (l Location) String() string {
	var parts []string
	if l.Function != "" {
		parts = append(parts, "@"+l.Function)
	}
	if l.Block != "" {
		parts = append(parts, l.Block)
	}
	if l.Index >= 0 && l.Block != "" {
		parts = append(parts, fmt.Sprintf("#%d", l.Index))
	}
	return strings.Join(parts, ":")
}

// IRError is the single error type returned by the ir package
type IRError struct {
	Level    ErrorLevel
	Kind     Kind
	SubKind  SubKind
	Code     string
	Message  string
	Location Location
	Notes    []string
	HelpText string
}

func (e *IRError) Error() string {
	var sb strings.Builder
	if e.Code != "" {
		sb.WriteString(fmt.Sprintf("[%s] ", e.Code))
	}
	sb.WriteString(string(e.Kind))
	if e.SubKind != "" {
		sb.WriteString("/" + string(e.SubKind))
	}
	if loc := e.Location.String(); loc != "" {
		sb.WriteString(" at " + loc)
	}
	if e.Message != "" {
		sb.WriteString(": " + e.Message)
	}
	return sb.String()
}

// Is reports whether target is an *IRError of the same kind and, when the
// target names one, the same sub-kind.
func (e *IRError) Is(target error) bool {
	t, ok := target.(*IRError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.SubKind == "" || t.SubKind == e.SubKind
}

// KindOf returns the kind of err, or "" if err is not an IR error
func KindOf(err error) Kind {
	var ire *IRError
	if asIRError(err, &ire) {
		return ire.Kind
	}
	return ""
}

// AsIRError unwraps err to an *IRError
func AsIRError(err error) (*IRError, bool) {
	var ire *IRError
	if asIRError(err, &ire) {
		return ire, true
	}
	return nil, false
}

func asIRError(err error, target **IRError) bool {
	return stderrors.As(err, target)
}

// IRErrorBuilder provides a fluent interface for creating IR errors
type IRErrorBuilder struct {
	err IRError
}

// NewIRError creates a new error builder for a construction-time failure
func NewIRError(kind Kind, code, format string, args ...any) *IRErrorBuilder {
	return &IRErrorBuilder{
		err: IRError{
			Level:    Error,
			Kind:     kind,
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
			Location: Location{Index: -1},
		},
	}
}

// NewVerificationError creates a new error builder for a verifier finding
func NewVerificationError(sub SubKind, code, format string, args ...any) *IRErrorBuilder {
	b := NewIRError(VerificationFailure, code, format, args...)
	b.err.SubKind = sub
	return b
}

// At sets the location of the error
func (b *IRErrorBuilder) At(loc Location) *IRErrorBuilder {
	b.err.Location = loc
	return b
}

// InFunction sets the function part of the location
func (b *IRErrorBuilder) InFunction(name string) *IRErrorBuilder {
	b.err.Location.Function = name
	return b
}

// InBlock sets the block and instruction index of the location
func (b *IRErrorBuilder) InBlock(block string, index int) *IRErrorBuilder {
	b.err.Location.Block = block
	b.err.Location.Index = index
	return b
}

// WithNote adds a note to the error
func (b *IRErrorBuilder) WithNote(format string, args ...any) *IRErrorBuilder {
	b.err.Notes = append(b.err.Notes, fmt.Sprintf(format, args...))
	return b
}

// WithHelp adds help text to the error
func (b *IRErrorBuilder) WithHelp(help string) *IRErrorBuilder {
	b.err.HelpText = help
	return b
}

// Build returns the completed error
func (b *IRErrorBuilder) Build() *IRError {
	e := b.err
	return &e
}

// Common error constructors

// DuplicateSymbolError reports a conflicting redeclaration of name
func DuplicateSymbolError(name, existing, requested string) *IRError {
	return NewIRError(DuplicateSymbol, ErrorDuplicateSymbol, "'%s' is already declared", name).
		WithNote("existing declaration: %s", existing).
		WithNote("requested declaration: %s", requested).
		WithHelp("re-declaring is only allowed with an identical signature").
		Build()
}

// ArityMismatchError reports a parameter name list of the wrong length
func ArityMismatchError(function string, want, got int) *IRError {
	return NewIRError(ArityMismatch, ErrorArityMismatch,
		"function has %d parameters but %d names were given", want, got).
		InFunction(function).
		Build()
}

// TypeMismatchError reports two types that must agree but do not
func TypeMismatchError(what, expected, found string) *IRError {
	return NewIRError(TypeMismatch, ErrorTypeMismatch, "%s: expected %s, found %s", what, expected, found).Build()
}

// InvalidConditionError reports a branch condition that is not i1
func InvalidConditionError(found string) *IRError {
	return NewIRError(InvalidCondition, ErrorInvalidCondition, "condition has type %s, expected i1", found).
		WithHelp("compare the value against zero to obtain an i1").
		Build()
}

// BlockTerminatedError reports an insertion into an already terminated block
func BlockTerminatedError(function, block string, index int) *IRError {
	return NewIRError(BlockAlreadyTerminated, ErrorBlockAlreadyTerminated, "block '%s' already has a terminator", block).
		InFunction(function).
		InBlock(block, index).
		WithHelp("move the insertion point to a new block first").
		Build()
}
