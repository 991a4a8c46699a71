package ir

import (
	"fmt"
	"sort"

	"unluajit/internal/bytecode"
)

// Build lowers one prototype into basic blocks. The algorithm:
//  1. Decode and validate the instruction stream.
//  2. Find block leaders: pc 0, every branch target, every instruction
//     after a terminator. Comparison/test instructions fuse with their
//     mandatory following JMP into a single conditional-branch statement.
//  3. Partition instructions into blocks and lower each to IR statements.
//  4. Compute successor edges from each block's terminator.
//
// A branch target that lands inside a fused pair, or control falling off
// the end of the function, is a *bytecode.FormatError; an unrecognized
// opcode is a *bytecode.OpcodeError. Both abort only this prototype.
func Build(p *bytecode.Proto, v bytecode.Version) (*Func, error) {
	code, err := bytecode.DecodeCode(p, v)
	if err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return nil, formatErrf(0, "empty instruction stream")
	}

	// Pass 1: fused pairs and leaders.
	fused := make([]bool, len(code)) // pc is the JMP half of a compare pair
	leaders := map[int]bool{0: true}
	addLeader := func(pc int) {
		if pc < len(code) {
			leaders[pc] = true
		}
	}
	for pc := 0; pc < len(code); pc++ {
		x := code[pc]
		switch {
		case x.Op.IsComparison() || x.Op.IsTest():
			if pc+1 >= len(code) || code[pc+1].Op != bytecode.OpJMP {
				return nil, formatErrf(pc, "%s is not followed by JMP", x.Op)
			}
			fused[pc+1] = true
			addLeader(code[pc+1].Target())
			addLeader(pc + 2)
			pc++ // consume the JMP

		case x.Op == bytecode.OpJMP, x.Op == bytecode.OpUCLO,
			x.Op == bytecode.OpISNEXT:
			addLeader(x.Target())
			addLeader(pc + 1)

		case x.Op == bytecode.OpFORI, x.Op == bytecode.OpJFORI,
			x.Op == bytecode.OpFORL, x.Op == bytecode.OpIFORL,
			x.Op == bytecode.OpITERL, x.Op == bytecode.OpIITERL:
			addLeader(x.Target())
			addLeader(pc + 1)

		case x.Op == bytecode.OpRET, x.Op == bytecode.OpRET0,
			x.Op == bytecode.OpRET1, x.Op == bytecode.OpRETM,
			x.Op == bytecode.OpCALLT, x.Op == bytecode.OpCALLMT:
			addLeader(pc + 1)

		case x.Op == bytecode.OpJFORL, x.Op == bytecode.OpJITERL,
			x.Op == bytecode.OpJLOOP:
			// JIT-patched variants carry trace numbers, not jump offsets;
			// they never appear in saved dumps.
			return nil, formatErrf(pc, "JIT-specialized opcode %s in dump", x.Op)

		case x.Op >= bytecode.OpFUNCF:
			return nil, formatErrf(pc, "function header opcode %s in code", x.Op)
		}
	}

	// A jump into the JMP half of a fused pair would split the comparison
	// from its branch; the stream decoded incorrectly or is corrupt.
	for pc := range code {
		if fused[pc] && leaders[pc] {
			return nil, formatErrf(pc, "branch target splits fused compare at pc %d", pc-1)
		}
	}

	sorted := make([]int, 0, len(leaders))
	for pc := range leaders {
		sorted = append(sorted, pc)
	}
	sort.Ints(sorted)

	// Pass 2: partition and lower.
	f := &Func{Proto: p}
	blockAt := make(map[int]int, len(sorted)) // leader pc → block ID
	for i, start := range sorted {
		end := len(code)
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		b := &BasicBlock{ID: i, StartPC: start, EndPC: end, IsEntry: start == 0}
		for pc := start; pc < end; pc++ {
			if fused[pc] {
				continue // lowered together with the comparison
			}
			s, err := lower(code, pc)
			if err != nil {
				return nil, err
			}
			b.Stmts = append(b.Stmts, s)
		}
		blockAt[start] = i
		f.Blocks = append(f.Blocks, b)
	}

	// Pass 3: successors.
	for _, b := range f.Blocks {
		succ := func(pc int, cond string) error {
			id, ok := blockAt[pc]
			if !ok {
				return formatErrf(b.EndPC-1, "branch target %d does not align with a block start", pc)
			}
			b.Succs = append(b.Succs, Succ{Block: id, Cond: cond})
			return nil
		}
		term := b.Term()
		if term == nil {
			if b.EndPC >= len(code) {
				return nil, formatErrf(b.EndPC-1, "control falls off the end of the function")
			}
			if err := succ(b.EndPC, ""); err != nil {
				return nil, err
			}
			continue
		}
		switch term.Kind {
		case KindJump, KindUpvalClose:
			if err := succ(term.Target, ""); err != nil {
				return nil, err
			}
		case KindBranch, KindForPrep, KindForLoop, KindIterLoop:
			if err := succ(term.Target, "T"); err != nil {
				return nil, err
			}
			if b.EndPC >= len(code) {
				return nil, formatErrf(b.EndPC-1, "conditional fallthrough off the end of the function")
			}
			if err := succ(b.EndPC, "F"); err != nil {
				return nil, err
			}
		case KindReturn, KindTailCall:
			// No successors.
		}
	}
	return f, nil
}

func formatErrf(pc int, format string, args ...any) error {
	return &bytecode.FormatError{Offset: pc, Msg: fmt.Sprintf(format, args...)}
}

// lower translates the instruction at pc (plus its fused JMP, for
// comparisons and tests) into one IR statement.
func lower(code []bytecode.Ins, pc int) (Stmt, error) {
	x := code[pc]
	s := Stmt{PC: pc}

	if x.Op.IsComparison() || x.Op.IsTest() {
		s.Kind = KindBranch
		s.Target = code[pc+1].Target()
		switch x.Op {
		case bytecode.OpISLT:
			s.Cmp, s.X, s.Y = CmpLT, Reg(x.A), Reg(x.D)
		case bytecode.OpISGE:
			s.Cmp, s.X, s.Y = CmpGE, Reg(x.A), Reg(x.D)
		case bytecode.OpISLE:
			s.Cmp, s.X, s.Y = CmpLE, Reg(x.A), Reg(x.D)
		case bytecode.OpISGT:
			s.Cmp, s.X, s.Y = CmpGT, Reg(x.A), Reg(x.D)
		case bytecode.OpISEQV:
			s.Cmp, s.X, s.Y = CmpEQ, Reg(x.A), Reg(x.D)
		case bytecode.OpISNEV:
			s.Cmp, s.X, s.Y = CmpNE, Reg(x.A), Reg(x.D)
		case bytecode.OpISEQS:
			s.Cmp, s.X, s.Y = CmpEQ, Reg(x.A), StrK(x.D)
		case bytecode.OpISNES:
			s.Cmp, s.X, s.Y = CmpNE, Reg(x.A), StrK(x.D)
		case bytecode.OpISEQN:
			s.Cmp, s.X, s.Y = CmpEQ, Reg(x.A), NumK(x.D)
		case bytecode.OpISNEN:
			s.Cmp, s.X, s.Y = CmpNE, Reg(x.A), NumK(x.D)
		case bytecode.OpISEQP:
			s.Cmp, s.X, s.Y = CmpEQ, Reg(x.A), Pri(x.D)
		case bytecode.OpISNEP:
			s.Cmp, s.X, s.Y = CmpNE, Reg(x.A), Pri(x.D)
		case bytecode.OpIST:
			s.Cmp, s.X = CmpTruthy, Reg(x.D)
		case bytecode.OpISF:
			s.Cmp, s.X = CmpFalsy, Reg(x.D)
		case bytecode.OpISTC:
			s.Cmp, s.X, s.Dst = CmpTruthy, Reg(x.D), Reg(x.A)
		case bytecode.OpISFC:
			s.Cmp, s.X, s.Dst = CmpFalsy, Reg(x.D), Reg(x.A)
		}
		return s, nil
	}

	switch x.Op {
	case bytecode.OpISTYPE, bytecode.OpISNUM:
		// Internal argument type assertions; no source-level form.
		s.Kind = KindNop

	case bytecode.OpMOV:
		s.Kind, s.Dst, s.X = KindMove, Reg(x.A), Reg(x.D)
	case bytecode.OpNOT:
		s.Kind, s.Un, s.Dst, s.X = KindUnary, UnNot, Reg(x.A), Reg(x.D)
	case bytecode.OpUNM:
		s.Kind, s.Un, s.Dst, s.X = KindUnary, UnMinus, Reg(x.A), Reg(x.D)
	case bytecode.OpLEN:
		s.Kind, s.Un, s.Dst, s.X = KindUnary, UnLen, Reg(x.A), Reg(x.D)

	case bytecode.OpADDVN, bytecode.OpSUBVN, bytecode.OpMULVN,
		bytecode.OpDIVVN, bytecode.OpMODVN:
		s.Kind, s.Dst = KindBinary, Reg(x.A)
		s.Bin = arithOp(x.Op, bytecode.OpADDVN)
		s.X, s.Y = Reg(x.B), NumK(x.C)
	case bytecode.OpADDNV, bytecode.OpSUBNV, bytecode.OpMULNV,
		bytecode.OpDIVNV, bytecode.OpMODNV:
		s.Kind, s.Dst = KindBinary, Reg(x.A)
		s.Bin = arithOp(x.Op, bytecode.OpADDNV)
		s.X, s.Y = NumK(x.C), Reg(x.B) // constant on the left
	case bytecode.OpADDVV, bytecode.OpSUBVV, bytecode.OpMULVV,
		bytecode.OpDIVVV, bytecode.OpMODVV:
		s.Kind, s.Dst = KindBinary, Reg(x.A)
		s.Bin = arithOp(x.Op, bytecode.OpADDVV)
		s.X, s.Y = Reg(x.B), Reg(x.C)
	case bytecode.OpPOW:
		s.Kind, s.Bin, s.Dst, s.X, s.Y = KindBinary, BinPow, Reg(x.A), Reg(x.B), Reg(x.C)
	case bytecode.OpCAT:
		s.Kind, s.Dst, s.X, s.Y = KindConcat, Reg(x.A), Reg(x.B), Reg(x.C)

	case bytecode.OpKSTR:
		s.Kind, s.Dst, s.X = KindLoad, Reg(x.A), StrK(x.D)
	case bytecode.OpKCDATA:
		s.Kind, s.Dst, s.X = KindLoad, Reg(x.A), Operand{Kind: OperandCData, Val: x.D}
	case bytecode.OpKSHORT:
		s.Kind, s.Dst, s.X = KindLoad, Reg(x.A), LitS(int(int16(x.D)))
	case bytecode.OpKNUM:
		s.Kind, s.Dst, s.X = KindLoad, Reg(x.A), NumK(x.D)
	case bytecode.OpKPRI:
		s.Kind, s.Dst, s.X = KindLoad, Reg(x.A), Pri(x.D)
	case bytecode.OpKNIL:
		s.Kind, s.X, s.Y = KindLoadNil, Reg(x.A), Reg(x.D)

	case bytecode.OpUGET:
		s.Kind, s.Dst, s.X = KindUpvalGet, Reg(x.A), Upval(x.D)
	case bytecode.OpUSETV:
		s.Kind, s.X, s.Y = KindUpvalSet, Upval(x.A), Reg(x.D)
	case bytecode.OpUSETS:
		s.Kind, s.X, s.Y = KindUpvalSet, Upval(x.A), StrK(x.D)
	case bytecode.OpUSETN:
		s.Kind, s.X, s.Y = KindUpvalSet, Upval(x.A), NumK(x.D)
	case bytecode.OpUSETP:
		s.Kind, s.X, s.Y = KindUpvalSet, Upval(x.A), Pri(x.D)
	case bytecode.OpUCLO:
		s.Kind, s.X, s.Target = KindUpvalClose, Reg(x.A), x.Target()
	case bytecode.OpFNEW:
		s.Kind, s.Dst, s.X = KindClosure, Reg(x.A), Operand{Kind: OperandProto, Val: x.D}

	case bytecode.OpTNEW:
		s.Kind, s.Dst, s.X = KindNewTable, Reg(x.A), Lit(x.D)
	case bytecode.OpTDUP:
		s.Kind, s.Dst, s.X = KindDupTable, Reg(x.A), Operand{Kind: OperandTab, Val: x.D}
	case bytecode.OpGGET:
		s.Kind, s.Dst, s.X = KindGlobalGet, Reg(x.A), StrK(x.D)
	case bytecode.OpGSET:
		s.Kind, s.X, s.Y = KindGlobalSet, StrK(x.D), Reg(x.A)
	case bytecode.OpTGETV, bytecode.OpTGETR:
		s.Kind, s.Dst, s.X, s.Y = KindIndexGet, Reg(x.A), Reg(x.B), Reg(x.C)
	case bytecode.OpTGETS:
		s.Kind, s.Dst, s.X, s.Y = KindIndexGet, Reg(x.A), Reg(x.B), StrK(x.C)
	case bytecode.OpTGETB:
		s.Kind, s.Dst, s.X, s.Y = KindIndexGet, Reg(x.A), Reg(x.B), Lit(x.C)
	case bytecode.OpTSETV, bytecode.OpTSETR:
		s.Kind, s.X, s.Y, s.Z = KindIndexSet, Reg(x.B), Reg(x.C), Reg(x.A)
	case bytecode.OpTSETS:
		s.Kind, s.X, s.Y, s.Z = KindIndexSet, Reg(x.B), StrK(x.C), Reg(x.A)
	case bytecode.OpTSETB:
		s.Kind, s.X, s.Y, s.Z = KindIndexSet, Reg(x.B), Lit(x.C), Reg(x.A)
	case bytecode.OpTSETM:
		s.Kind, s.Base, s.X = KindSetMulti, x.A, NumK(x.D)

	case bytecode.OpCALL:
		s.Kind, s.Base, s.NArgs = KindCall, x.A, x.C-1
		s.NRets, s.RetM = rets(x.B)
	case bytecode.OpCALLM:
		s.Kind, s.Base, s.NArgs, s.ArgM = KindCall, x.A, x.C, true
		s.NRets, s.RetM = rets(x.B)
	case bytecode.OpCALLT:
		s.Kind, s.Base, s.NArgs = KindTailCall, x.A, x.D-1
	case bytecode.OpCALLMT:
		s.Kind, s.Base, s.NArgs, s.ArgM = KindTailCall, x.A, x.D, true
	case bytecode.OpITERC, bytecode.OpITERN:
		s.Kind, s.Base, s.NArgs = KindIterCall, x.A, x.C-1
		s.NRets, s.RetM = rets(x.B)
	case bytecode.OpVARG:
		s.Kind, s.Base = KindVararg, x.A
		s.NRets, s.RetM = rets(x.B)
	case bytecode.OpISNEXT:
		s.Kind, s.Target = KindJump, x.Target()

	case bytecode.OpRET:
		s.Kind, s.Base, s.NRets = KindReturn, x.A, x.D-1
	case bytecode.OpRETM:
		s.Kind, s.Base, s.NRets, s.RetM = KindReturn, x.A, x.D, true
	case bytecode.OpRET0:
		s.Kind, s.Base, s.NRets = KindReturn, x.A, 0
	case bytecode.OpRET1:
		s.Kind, s.Base, s.NRets = KindReturn, x.A, 1

	case bytecode.OpFORI, bytecode.OpJFORI:
		s.Kind, s.Base, s.Target = KindForPrep, x.A, x.Target()
	case bytecode.OpFORL, bytecode.OpIFORL:
		s.Kind, s.Base, s.Target = KindForLoop, x.A, x.Target()
	case bytecode.OpITERL, bytecode.OpIITERL:
		s.Kind, s.Base, s.Target = KindIterLoop, x.A, x.Target()
	case bytecode.OpLOOP, bytecode.OpILOOP:
		s.Kind, s.Target = KindLoopHint, x.Target()
	case bytecode.OpJMP:
		s.Kind, s.Target = KindJump, x.Target()

	default:
		return s, formatErrf(pc, "no IR lowering for opcode %s", x.Op)
	}
	return s, nil
}

// arithOp maps an arithmetic opcode to its operator, given the ADD opcode
// that starts its group.
func arithOp(op, base bytecode.Op) BinOp {
	return BinOp(int(BinAdd) + int(op-base))
}

// rets decodes the B field of call-like instructions: 0 means all results
// (MULTRES), otherwise B-1 fixed results.
func rets(b int) (int, bool) {
	if b == 0 {
		return 0, true
	}
	return b - 1, false
}
