package bytecode

// Op is a canonical opcode, independent of the format version. The dump
// stores version-specific opcode numbers; the per-version tables below map
// raw bytes to canonical ops so the rest of the pipeline never sees the
// renumbering.
type Op int

// Canonical opcode set (LuaJIT 2.1 ordering). 2.0 dumps lack ISTYPE, ISNUM,
// TGETR and TSETR; every opcode after each gap is shifted down by one in
// the 2.0 encoding.
const (
	// Comparison ops. Each is immediately followed by a JMP that carries
	// the branch target; the pair is fused by the IR builder.
	OpISLT Op = iota
	OpISGE
	OpISLE
	OpISGT
	OpISEQV
	OpISNEV
	OpISEQS
	OpISNES
	OpISEQN
	OpISNEN
	OpISEQP
	OpISNEP

	// Unary test and copy ops, also JMP-fused.
	OpISTC
	OpISFC
	OpIST
	OpISF
	OpISTYPE // 2.1
	OpISNUM  // 2.1

	// Unary ops.
	OpMOV
	OpNOT
	OpUNM
	OpLEN

	// Binary ops.
	OpADDVN
	OpSUBVN
	OpMULVN
	OpDIVVN
	OpMODVN
	OpADDNV
	OpSUBNV
	OpMULNV
	OpDIVNV
	OpMODNV
	OpADDVV
	OpSUBVV
	OpMULVV
	OpDIVVV
	OpMODVV
	OpPOW
	OpCAT

	// Constant ops.
	OpKSTR
	OpKCDATA
	OpKSHORT
	OpKNUM
	OpKPRI
	OpKNIL

	// Upvalue and function ops.
	OpUGET
	OpUSETV
	OpUSETS
	OpUSETN
	OpUSETP
	OpUCLO
	OpFNEW

	// Table ops.
	OpTNEW
	OpTDUP
	OpGGET
	OpGSET
	OpTGETV
	OpTGETS
	OpTGETB
	OpTGETR // 2.1
	OpTSETV
	OpTSETS
	OpTSETB
	OpTSETM
	OpTSETR // 2.1

	// Calls and varargs.
	OpCALLM
	OpCALL
	OpCALLMT
	OpCALLT
	OpITERC
	OpITERN
	OpVARG
	OpISNEXT

	// Returns.
	OpRETM
	OpRET
	OpRET0
	OpRET1

	// Loops and branches.
	OpFORI
	OpJFORI
	OpFORL
	OpIFORL
	OpJFORL
	OpITERL
	OpIITERL
	OpJITERL
	OpLOOP
	OpILOOP
	OpJLOOP
	OpJMP

	// Function headers. Never appear in dumped code but kept for table
	// completeness.
	OpFUNCF
	OpIFUNCF
	OpJFUNCF
	OpFUNCV
	OpIFUNCV
	OpJFUNCV
	OpFUNCC
	OpFUNCCW

	opMax
)

// ArgKind describes how an operand field is interpreted.
type ArgKind uint8

const (
	ArgNone  ArgKind = iota
	ArgVar           // variable register slot (read)
	ArgDst           // destination register slot (write)
	ArgBase          // base register slot of a range
	ArgRBase         // base register slot, read-only range
	ArgUV            // upvalue index
	ArgLit           // unsigned literal
	ArgLitS          // signed literal
	ArgPri           // primitive: 0=nil 1=false 2=true
	ArgNum           // number constant index
	ArgStr           // string constant index (into GC pool)
	ArgTab           // table template constant index (into GC pool)
	ArgFunc          // child prototype constant index (into GC pool)
	ArgCData         // cdata constant index (into GC pool)
	ArgJump          // jump offset, biased by 0x8000
)

// OpInfo holds the mnemonic and operand kinds of a canonical opcode.
// B == ArgNone means the op uses the AD format (C field doubles as the
// 16-bit D field); otherwise the op is ABC.
type OpInfo struct {
	Name    string
	A, B, C ArgKind
}

// IsAD reports whether the op packs its second operand as the 16-bit D field.
func (oi OpInfo) IsAD() bool { return oi.B == ArgNone }

var opInfo = [opMax]OpInfo{
	OpISLT:  {"ISLT", ArgVar, ArgNone, ArgVar},
	OpISGE:  {"ISGE", ArgVar, ArgNone, ArgVar},
	OpISLE:  {"ISLE", ArgVar, ArgNone, ArgVar},
	OpISGT:  {"ISGT", ArgVar, ArgNone, ArgVar},
	OpISEQV: {"ISEQV", ArgVar, ArgNone, ArgVar},
	OpISNEV: {"ISNEV", ArgVar, ArgNone, ArgVar},
	OpISEQS: {"ISEQS", ArgVar, ArgNone, ArgStr},
	OpISNES: {"ISNES", ArgVar, ArgNone, ArgStr},
	OpISEQN: {"ISEQN", ArgVar, ArgNone, ArgNum},
	OpISNEN: {"ISNEN", ArgVar, ArgNone, ArgNum},
	OpISEQP: {"ISEQP", ArgVar, ArgNone, ArgPri},
	OpISNEP: {"ISNEP", ArgVar, ArgNone, ArgPri},

	OpISTC:   {"ISTC", ArgDst, ArgNone, ArgVar},
	OpISFC:   {"ISFC", ArgDst, ArgNone, ArgVar},
	OpIST:    {"IST", ArgNone, ArgNone, ArgVar},
	OpISF:    {"ISF", ArgNone, ArgNone, ArgVar},
	OpISTYPE: {"ISTYPE", ArgVar, ArgNone, ArgLit},
	OpISNUM:  {"ISNUM", ArgVar, ArgNone, ArgLit},

	OpMOV: {"MOV", ArgDst, ArgNone, ArgVar},
	OpNOT: {"NOT", ArgDst, ArgNone, ArgVar},
	OpUNM: {"UNM", ArgDst, ArgNone, ArgVar},
	OpLEN: {"LEN", ArgDst, ArgNone, ArgVar},

	OpADDVN: {"ADDVN", ArgDst, ArgVar, ArgNum},
	OpSUBVN: {"SUBVN", ArgDst, ArgVar, ArgNum},
	OpMULVN: {"MULVN", ArgDst, ArgVar, ArgNum},
	OpDIVVN: {"DIVVN", ArgDst, ArgVar, ArgNum},
	OpMODVN: {"MODVN", ArgDst, ArgVar, ArgNum},
	OpADDNV: {"ADDNV", ArgDst, ArgVar, ArgNum},
	OpSUBNV: {"SUBNV", ArgDst, ArgVar, ArgNum},
	OpMULNV: {"MULNV", ArgDst, ArgVar, ArgNum},
	OpDIVNV: {"DIVNV", ArgDst, ArgVar, ArgNum},
	OpMODNV: {"MODNV", ArgDst, ArgVar, ArgNum},
	OpADDVV: {"ADDVV", ArgDst, ArgVar, ArgVar},
	OpSUBVV: {"SUBVV", ArgDst, ArgVar, ArgVar},
	OpMULVV: {"MULVV", ArgDst, ArgVar, ArgVar},
	OpDIVVV: {"DIVVV", ArgDst, ArgVar, ArgVar},
	OpMODVV: {"MODVV", ArgDst, ArgVar, ArgVar},
	OpPOW:   {"POW", ArgDst, ArgVar, ArgVar},
	OpCAT:   {"CAT", ArgDst, ArgRBase, ArgRBase},

	OpKSTR:   {"KSTR", ArgDst, ArgNone, ArgStr},
	OpKCDATA: {"KCDATA", ArgDst, ArgNone, ArgCData},
	OpKSHORT: {"KSHORT", ArgDst, ArgNone, ArgLitS},
	OpKNUM:   {"KNUM", ArgDst, ArgNone, ArgNum},
	OpKPRI:   {"KPRI", ArgDst, ArgNone, ArgPri},
	OpKNIL:   {"KNIL", ArgBase, ArgNone, ArgBase},

	OpUGET:  {"UGET", ArgDst, ArgNone, ArgUV},
	OpUSETV: {"USETV", ArgUV, ArgNone, ArgVar},
	OpUSETS: {"USETS", ArgUV, ArgNone, ArgStr},
	OpUSETN: {"USETN", ArgUV, ArgNone, ArgNum},
	OpUSETP: {"USETP", ArgUV, ArgNone, ArgPri},
	OpUCLO:  {"UCLO", ArgRBase, ArgNone, ArgJump},
	OpFNEW:  {"FNEW", ArgDst, ArgNone, ArgFunc},

	OpTNEW:  {"TNEW", ArgDst, ArgNone, ArgLit},
	OpTDUP:  {"TDUP", ArgDst, ArgNone, ArgTab},
	OpGGET:  {"GGET", ArgDst, ArgNone, ArgStr},
	OpGSET:  {"GSET", ArgVar, ArgNone, ArgStr},
	OpTGETV: {"TGETV", ArgDst, ArgVar, ArgVar},
	OpTGETS: {"TGETS", ArgDst, ArgVar, ArgStr},
	OpTGETB: {"TGETB", ArgDst, ArgVar, ArgLit},
	OpTGETR: {"TGETR", ArgDst, ArgVar, ArgVar},
	OpTSETV: {"TSETV", ArgVar, ArgVar, ArgVar},
	OpTSETS: {"TSETS", ArgVar, ArgVar, ArgStr},
	OpTSETB: {"TSETB", ArgVar, ArgVar, ArgLit},
	OpTSETM: {"TSETM", ArgBase, ArgNone, ArgNum},
	OpTSETR: {"TSETR", ArgVar, ArgVar, ArgVar},

	OpCALLM:  {"CALLM", ArgBase, ArgLit, ArgLit},
	OpCALL:   {"CALL", ArgBase, ArgLit, ArgLit},
	OpCALLMT: {"CALLMT", ArgBase, ArgNone, ArgLit},
	OpCALLT:  {"CALLT", ArgBase, ArgNone, ArgLit},
	OpITERC:  {"ITERC", ArgBase, ArgLit, ArgLit},
	OpITERN:  {"ITERN", ArgBase, ArgLit, ArgLit},
	OpVARG:   {"VARG", ArgBase, ArgLit, ArgLit},
	OpISNEXT: {"ISNEXT", ArgBase, ArgNone, ArgJump},

	OpRETM: {"RETM", ArgBase, ArgNone, ArgLit},
	OpRET:  {"RET", ArgRBase, ArgNone, ArgLit},
	OpRET0: {"RET0", ArgRBase, ArgNone, ArgLit},
	OpRET1: {"RET1", ArgRBase, ArgNone, ArgLit},

	OpFORI:   {"FORI", ArgBase, ArgNone, ArgJump},
	OpJFORI:  {"JFORI", ArgBase, ArgNone, ArgJump},
	OpFORL:   {"FORL", ArgBase, ArgNone, ArgJump},
	OpIFORL:  {"IFORL", ArgBase, ArgNone, ArgJump},
	OpJFORL:  {"JFORL", ArgBase, ArgNone, ArgLit},
	OpITERL:  {"ITERL", ArgBase, ArgNone, ArgJump},
	OpIITERL: {"IITERL", ArgBase, ArgNone, ArgJump},
	OpJITERL: {"JITERL", ArgBase, ArgNone, ArgLit},
	OpLOOP:   {"LOOP", ArgRBase, ArgNone, ArgJump},
	OpILOOP:  {"ILOOP", ArgRBase, ArgNone, ArgJump},
	OpJLOOP:  {"JLOOP", ArgRBase, ArgNone, ArgLit},
	OpJMP:    {"JMP", ArgRBase, ArgNone, ArgJump},

	OpFUNCF:  {"FUNCF", ArgRBase, ArgNone, ArgNone},
	OpIFUNCF: {"IFUNCF", ArgRBase, ArgNone, ArgNone},
	OpJFUNCF: {"JFUNCF", ArgRBase, ArgNone, ArgLit},
	OpFUNCV:  {"FUNCV", ArgRBase, ArgNone, ArgNone},
	OpIFUNCV: {"IFUNCV", ArgRBase, ArgNone, ArgNone},
	OpJFUNCV: {"JFUNCV", ArgRBase, ArgNone, ArgLit},
	OpFUNCC:  {"FUNCC", ArgRBase, ArgNone, ArgNone},
	OpFUNCCW: {"FUNCCW", ArgRBase, ArgNone, ArgNone},
}

// Info returns the operand description for op.
func (op Op) Info() OpInfo { return opInfo[op] }

func (op Op) String() string {
	if op < 0 || op >= opMax {
		return "OP?"
	}
	return opInfo[op].Name
}

// IsComparison reports whether op is a fused comparison (always followed by
// a JMP carrying the branch target).
func (op Op) IsComparison() bool { return op >= OpISLT && op <= OpISNEP }

// IsTest reports whether op is a fused truth test (IST/ISF/ISTC/ISFC),
// also always followed by a JMP.
func (op Op) IsTest() bool { return op >= OpISTC && op <= OpISF }

// v21Only lists the opcodes absent from the 2.0 encoding, in canonical order.
var v21Only = map[Op]bool{
	OpISTYPE: true,
	OpISNUM:  true,
	OpTGETR:  true,
	OpTSETR:  true,
}

// opcodeTable maps a version-specific opcode byte to the canonical Op.
func opcodeTable(v Version) []Op {
	ops := make([]Op, 0, int(opMax))
	for op := Op(0); op < opMax; op++ {
		if v == V20 && v21Only[op] {
			continue
		}
		ops = append(ops, op)
	}
	return ops
}

var (
	ops20 = opcodeTable(V20)
	ops21 = opcodeTable(V21)
)

// Opcodes returns the raw-byte → canonical-op table for a version.
func (v Version) Opcodes() []Op {
	if v == V20 {
		return ops20
	}
	return ops21
}

// rawOp maps a canonical op back to its version-specific byte. Used by the
// dump writer. Returns -1 if op does not exist under v.
func rawOp(v Version, op Op) int {
	for raw, cop := range v.Opcodes() {
		if cop == op {
			return raw
		}
	}
	return -1
}
