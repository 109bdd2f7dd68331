package errors

// Error codes for the toyir IR builder.
// Codes appear in formatted diagnostics and let tests and tooling identify a
// failure without matching on message text.
//
// Error code ranges:
// E1000-E1099: Symbol table errors
// E1100-E1199: Type errors
// E1200-E1299: Block and cursor errors
// E1300-E1399: Phi construction errors
// E1400-E1499: Verification errors
// E1900-E1999: Reserved for tooling errors

const (
	// E1000: Name already bound to an incompatible function or global
	ErrorDuplicateSymbol = "E1000"

	// E1001: Parameter name count differs from parameter count
	ErrorArityMismatch = "E1001"

	// E1002: Handle does not name a live function, block or value
	ErrorInvalidHandle = "E1002"

	// E1100: Operand or return types disagree
	ErrorTypeMismatch = "E1100"

	// E1101: Conditional branch on a non-boolean value
	ErrorInvalidCondition = "E1101"

	// E1102: Integer width outside the supported range
	ErrorUnsupportedType = "E1102"

	// E1200: Instruction emitted into or past a terminated block
	ErrorBlockAlreadyTerminated = "E1200"

	// E1201: Builder has no insertion point
	ErrorNoInsertionPoint = "E1201"

	// E1202: Function already verified and sealed
	ErrorFunctionSealed = "E1202"

	// E1300: Phi placed after a non-phi instruction, or malformed incoming list
	ErrorPhiPlacement = "E1300"

	// Verification errors (E1400-E1499)

	// E1400: Block has no terminator
	ErrorUnterminatedBlock = "E1400"

	// E1401: Phi incoming blocks differ from the block's predecessors
	ErrorMalformedPhi = "E1401"

	// E1402: Value used where its definition does not dominate
	ErrorUseBeforeDef = "E1402"

	// E1403: Loop-header phi stub never finalized
	ErrorUnfinalizedPhi = "E1403"

	// E1404: Entry block is the target of a branch
	ErrorInvalidEntry = "E1404"

	// E1405: Function construction was aborted by an earlier error
	ErrorIncompleteFunction = "E1405"

	// Tooling errors (E1900-E1999)

	// E1900: Export of a function that has not passed verification
	ErrorUnverified = "E1900"
)

// GetErrorDescription returns a human-readable description of the error code
func GetErrorDescription(code string) string {
	switch code {
	case ErrorDuplicateSymbol:
		return "Name is already declared with a different signature or kind"
	case ErrorArityMismatch:
		return "Number of names does not match number of parameters"
	case ErrorInvalidHandle:
		return "Handle does not refer to an object in this context"
	case ErrorTypeMismatch:
		return "Value type does not match the expected type"
	case ErrorInvalidCondition:
		return "Branch condition is not a boolean (i1) value"
	case ErrorUnsupportedType:
		return "Integer width is not supported"
	case ErrorBlockAlreadyTerminated:
		return "Block already ends in a terminator"
	case ErrorNoInsertionPoint:
		return "Builder has no current block"
	case ErrorFunctionSealed:
		return "Function has been verified and can no longer be changed"
	case ErrorPhiPlacement:
		return "Phi nodes must precede all other instructions in a block"
	case ErrorUnterminatedBlock:
		return "Block does not end in a terminator"
	case ErrorMalformedPhi:
		return "Phi incoming blocks do not match the block's predecessors"
	case ErrorUseBeforeDef:
		return "Value is used where its definition does not dominate the use"
	case ErrorUnfinalizedPhi:
		return "Phi stub was created but never finalized"
	case ErrorInvalidEntry:
		return "Entry block must not have predecessors"
	case ErrorIncompleteFunction:
		return "Function construction was aborted"
	case ErrorUnverified:
		return "Function must be verified before it is exported"
	default:
		return "Unknown error code"
	}
}

// GetErrorCategory returns the category of the error based on its code
func GetErrorCategory(code string) string {
	switch {
	case code >= "E1000" && code < "E1100":
		return "Symbol Table"
	case code >= "E1100" && code < "E1200":
		return "Type"
	case code >= "E1200" && code < "E1300":
		return "Block"
	case code >= "E1300" && code < "E1400":
		return "Phi"
	case code >= "E1400" && code < "E1500":
		return "Verification"
	case code >= "E1900" && code < "E2000":
		return "Tooling"
	default:
		return "Unknown"
	}
}
