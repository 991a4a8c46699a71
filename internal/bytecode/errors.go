package bytecode

import "fmt"

// FormatError reports a structural violation in a bytecode dump: bad magic,
// truncation, an out-of-range operand, or an invalid jump target. Offset is
// the byte offset (or instruction pc, for code-level checks) where the
// expectation failed.
type FormatError struct {
	Offset int
	Msg    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed bytecode at 0x%x: %s", e.Offset, e.Msg)
}

// formatErrf builds a FormatError at the given offset.
func formatErrf(offset int, format string, args ...any) *FormatError {
	return &FormatError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// OpcodeError reports an instruction byte that is not a recognized opcode
// under the configured format version. It aborts decoding of a single
// function; sibling prototypes in the same dump are unaffected.
type OpcodeError struct {
	PC   int
	Byte uint8
	Ver  Version
}

func (e *OpcodeError) Error() string {
	return fmt.Sprintf("unsupported opcode 0x%02x at pc %d (LuaJIT %s)", e.Byte, e.PC, e.Ver)
}
