// Package ir lowers decoded bytecode instructions into register-oriented
// statements grouped into basic blocks with explicit successor edges.
package ir

import "fmt"

// OperandKind tags an operand reference.
type OperandKind uint8

const (
	OperandNone  OperandKind = iota
	OperandReg               // register slot
	OperandNum               // number constant pool index
	OperandStr               // string constant pool index
	OperandTab               // table template constant index
	OperandProto             // child prototype constant index
	OperandUpval             // upvalue index
	OperandPri               // primitive: 0=nil 1=false 2=true
	OperandLit               // unsigned literal
	OperandLitS              // signed literal
	OperandCData             // cdata constant pool index (int64/uint64 literals)
)

// Operand references a register, constant, upvalue or literal by stable
// identifier. Operands are resolved to expressions by the recovery stage;
// the IR itself never dereferences constant pools.
type Operand struct {
	Kind OperandKind
	Val  int
}

func Reg(n int) Operand     { return Operand{Kind: OperandReg, Val: n} }
func NumK(idx int) Operand  { return Operand{Kind: OperandNum, Val: idx} }
func StrK(idx int) Operand  { return Operand{Kind: OperandStr, Val: idx} }
func Pri(v int) Operand     { return Operand{Kind: OperandPri, Val: v} }
func Lit(v int) Operand     { return Operand{Kind: OperandLit, Val: v} }
func LitS(v int) Operand    { return Operand{Kind: OperandLitS, Val: v} }
func Upval(idx int) Operand { return Operand{Kind: OperandUpval, Val: idx} }

func (o Operand) String() string {
	switch o.Kind {
	case OperandNone:
		return "_"
	case OperandReg:
		return fmt.Sprintf("r%d", o.Val)
	case OperandNum:
		return fmt.Sprintf("kn%d", o.Val)
	case OperandStr:
		return fmt.Sprintf("ks%d", o.Val)
	case OperandTab:
		return fmt.Sprintf("kt%d", o.Val)
	case OperandProto:
		return fmt.Sprintf("kp%d", o.Val)
	case OperandUpval:
		return fmt.Sprintf("uv%d", o.Val)
	case OperandPri:
		return [...]string{"nil", "false", "true"}[o.Val]
	case OperandLit, OperandLitS:
		return fmt.Sprintf("%d", o.Val)
	case OperandCData:
		return fmt.Sprintf("kc%d", o.Val)
	default:
		return "?"
	}
}

// StmtKind tags an IR statement.
type StmtKind uint8

const (
	KindNop StmtKind = iota
	KindMove
	KindLoad    // Dst ← constant operand X
	KindLoadNil // registers X..Y ← nil
	KindUnary
	KindBinary
	KindConcat   // Dst ← concat of register range [X,Y]
	KindNewTable // Dst ← {} with size hint X
	KindDupTable // Dst ← copy of template X
	KindGlobalGet
	KindGlobalSet // _G[X] ← Y
	KindUpvalGet
	KindUpvalSet // upvalue X ← Y
	KindIndexGet // Dst ← X[Y]
	KindIndexSet // X[Y] ← Z
	KindSetMulti // X[...] ← MULTRES starting at index Y (TSETM)
	KindClosure  // Dst ← closure of child prototype X
	KindCall
	KindIterCall // iterator invocation feeding an IterLoop terminator
	KindVararg
	KindLoopHint // LOOP marker; Target carries the compiler's exit hint

	// Terminators.
	KindJump
	KindBranch   // fused comparison/test + JMP
	KindTailCall // CALLT/CALLMT
	KindReturn
	KindUpvalClose // UCLO: close upvalues ≥ X, then jump
	KindForPrep    // FORI: taken edge exits the loop
	KindForLoop    // FORL: taken edge is the back edge
	KindIterLoop   // ITERL: taken edge is the back edge
)

// CompareOp is the boolean operator carried by a fused Branch statement.
type CompareOp uint8

const (
	CmpLT CompareOp = iota
	CmpGE
	CmpLE
	CmpGT
	CmpEQ
	CmpNE
	CmpTruthy // IST/ISTC
	CmpFalsy  // ISF/ISFC
)

func (c CompareOp) String() string {
	return [...]string{"<", ">=", "<=", ">", "==", "~=", "truthy", "falsy"}[c]
}

// Negate returns the operator matching the branch-not-taken sense.
func (c CompareOp) Negate() CompareOp {
	switch c {
	case CmpLT:
		return CmpGE
	case CmpGE:
		return CmpLT
	case CmpLE:
		return CmpGT
	case CmpGT:
		return CmpLE
	case CmpEQ:
		return CmpNE
	case CmpNE:
		return CmpEQ
	case CmpTruthy:
		return CmpFalsy
	default:
		return CmpTruthy
	}
}

// BinOp is an arithmetic or concatenation operator.
type BinOp uint8

const (
	BinAdd BinOp = iota
	BinSub
	BinMul
	BinDiv
	BinMod
	BinPow
)

func (b BinOp) String() string {
	return [...]string{"+", "-", "*", "/", "%", "^"}[b]
}

// UnOp is a unary operator.
type UnOp uint8

const (
	UnNot UnOp = iota
	UnMinus
	UnLen
)

func (u UnOp) String() string {
	return [...]string{"not ", "-", "#"}[u]
}

// Stmt is one IR statement. Produced once per instruction, or per fused
// compare+jump pair, and never mutated after Build returns.
type Stmt struct {
	PC   int
	Kind StmtKind

	Dst     Operand // destination register, when the statement writes one
	X, Y, Z Operand

	Cmp CompareOp // KindBranch
	Bin BinOp     // KindBinary
	Un  UnOp      // KindUnary

	// Call/return shape. NArgs/NRets are fixed counts; ArgM/RetM mark the
	// open-ended MULTRES extension (CALLM/RETM, or B==0 encodings).
	Base  int
	NArgs int
	ArgM  bool
	NRets int
	RetM  bool

	// Target is the taken-branch pc for terminators that jump. Successor
	// block edges are resolved by Build; Target survives for diagnostics.
	Target int
}

// IsTerminator reports whether s ends a basic block.
func (s *Stmt) IsTerminator() bool {
	switch s.Kind {
	case KindJump, KindBranch, KindTailCall, KindReturn, KindUpvalClose,
		KindForPrep, KindForLoop, KindIterLoop:
		return true
	}
	return false
}
