package bytecode

import "fmt"

// Ins is one decoded instruction. Operand fields hold the raw unsigned
// values; interpretation (register, constant index, jump bias) follows the
// opcode's OpInfo.
type Ins struct {
	PC int
	Op Op
	A  int
	B  int
	C  int
	D  int // 16-bit combined field; equals B<<8|C
}

// jumpBias offsets the D field of jump instructions.
const jumpBias = 0x8000

// Target resolves a jump operand to an absolute pc. Only meaningful when
// the op's D operand is ArgJump.
func (x Ins) Target() int {
	return x.PC + 1 + x.D - jumpBias
}

func (x Ins) String() string {
	oi := x.Op.Info()
	if oi.IsAD() {
		if oi.C == ArgJump {
			return fmt.Sprintf("%-6s %3d => %04d", x.Op, x.A, x.Target())
		}
		return fmt.Sprintf("%-6s %3d %5d", x.Op, x.A, x.D)
	}
	return fmt.Sprintf("%-6s %3d %3d %3d", x.Op, x.A, x.B, x.C)
}

// DecodeCode decodes and validates a prototype's raw instruction words.
// An unrecognized opcode byte yields *OpcodeError; an operand referencing
// an out-of-range register, constant, upvalue or jump target yields
// *FormatError. Both abort only this prototype: callers keep decoding
// sibling prototypes in the same dump.
func DecodeCode(p *Proto, v Version) ([]Ins, error) {
	table := v.Opcodes()
	code := make([]Ins, len(p.Raw))
	for pc, w := range p.Raw {
		ob := uint8(w & 0xff)
		if int(ob) >= len(table) {
			return nil, &OpcodeError{PC: pc, Byte: ob, Ver: v}
		}
		x := Ins{
			PC: pc,
			Op: table[ob],
			A:  int(w >> 8 & 0xff),
			B:  int(w >> 24 & 0xff),
			C:  int(w >> 16 & 0xff),
			D:  int(w >> 16 & 0xffff),
		}
		if err := validateIns(p, x, len(p.Raw)); err != nil {
			return nil, err
		}
		code[pc] = x
	}
	return code, nil
}

// validateIns checks every operand of x against the prototype's frame size,
// constant pools and code length.
func validateIns(p *Proto, x Ins, codeLen int) error {
	oi := x.Op.Info()
	if err := validateArg(p, x, oi.A, x.A, codeLen); err != nil {
		return err
	}
	if oi.IsAD() {
		return validateArg(p, x, oi.C, x.D, codeLen)
	}
	if err := validateArg(p, x, oi.B, x.B, codeLen); err != nil {
		return err
	}
	return validateArg(p, x, oi.C, x.C, codeLen)
}

func validateArg(p *Proto, x Ins, kind ArgKind, val, codeLen int) error {
	switch kind {
	case ArgVar, ArgDst, ArgBase:
		if val >= p.FrameSize {
			return formatErrf(x.PC, "%s: register %d out of range (framesize %d)", x.Op, val, p.FrameSize)
		}
	case ArgRBase:
		// JMP, LOOP and RET carry the first free slot here, which the
		// compiler emits equal to the frame size when every slot is live.
		if val > p.FrameSize {
			return formatErrf(x.PC, "%s: register base %d out of range (framesize %d)", x.Op, val, p.FrameSize)
		}
	case ArgUV:
		if val >= len(p.UpvalRefs) {
			return formatErrf(x.PC, "%s: upvalue %d out of range (%d upvalues)", x.Op, val, len(p.UpvalRefs))
		}
	case ArgPri:
		if val > 2 {
			return formatErrf(x.PC, "%s: primitive tag %d out of range", x.Op, val)
		}
	case ArgNum:
		if val >= len(p.Num) {
			return formatErrf(x.PC, "%s: number constant %d out of range (%d)", x.Op, val, len(p.Num))
		}
	case ArgStr, ArgTab, ArgFunc, ArgCData:
		if val >= len(p.GC) {
			return formatErrf(x.PC, "%s: constant %d out of range (%d)", x.Op, val, len(p.GC))
		}
		var want GCKind
		switch kind {
		case ArgStr:
			want = GCString
		case ArgTab:
			want = GCTable
		case ArgFunc:
			want = GCChild
		default:
			return nil // cdata constants are opaque here
		}
		if p.GC[val].Kind != want {
			return formatErrf(x.PC, "%s: constant %d is %s, want %s", x.Op, val, p.GC[val].Kind, want)
		}
	case ArgJump:
		t := x.PC + 1 + val - jumpBias
		if t < 0 || t >= codeLen {
			return formatErrf(x.PC, "%s: jump target %d outside code [0,%d)", x.Op, t, codeLen)
		}
	}
	return nil
}

// StrConst returns the string constant referenced by a decoded operand.
// The operand must have been validated by DecodeCode.
func (p *Proto) StrConst(idx int) string { return p.GC[idx].Str }
