package structure

import (
	"fmt"

	"unluajit/internal/ast"
	"unluajit/internal/bytecode"
	"unluajit/internal/ir"
)

// lifter turns register-oriented ir statements into ast statements whose
// operands are ast.Slot references. Constant pool indices are resolved here;
// slot references survive until the recovery stage names or inlines them.
type lifter struct {
	p *bytecode.Proto

	// multi is the pending open-ended value producer (a call or vararg
	// with B==0 encoding). The next CALLM/CALLMT/RETM/TSETM consumes it.
	multi ast.Expr
}

func (l *lifter) operand(o ir.Operand) ast.Expr {
	switch o.Kind {
	case ir.OperandReg:
		return &ast.Slot{N: o.Val}
	case ir.OperandNum:
		k := l.p.Num[o.Val]
		if k.IsInt {
			return ast.Int(int64(k.Int))
		}
		return ast.Num(k.Num)
	case ir.OperandStr:
		return ast.Str(l.p.GC[o.Val].Str)
	case ir.OperandPri:
		switch o.Val {
		case 1:
			return ast.False()
		case 2:
			return ast.True()
		}
		return ast.Nil()
	case ir.OperandLit, ir.OperandLitS:
		return ast.Int(int64(o.Val))
	case ir.OperandUpval:
		return &ast.Upvalue{Name: l.upvalName(o.Val), N: o.Val}
	case ir.OperandTab:
		return l.template(l.p.GC[o.Val].Table)
	case ir.OperandProto:
		c := l.p.GC[o.Val].Child
		return &ast.Func{Proto: c.Index, Vararg: c.IsVararg()}
	case ir.OperandCData:
		return l.cdata(o.Val)
	}
	return ast.Nil()
}

func (l *lifter) upvalName(idx int) string {
	if idx < len(l.p.UpvalNames) {
		return l.p.UpvalNames[idx]
	}
	return fmt.Sprintf("uv%d", idx)
}

func (l *lifter) cdata(idx int) ast.Expr {
	c := l.p.GC[idx]
	switch c.Kind {
	case bytecode.GCInt64:
		return &ast.Const{Kind: ast.ConstCData, Str: fmt.Sprintf("%dLL", c.I64)}
	case bytecode.GCUint64:
		return &ast.Const{Kind: ast.ConstCData, Str: fmt.Sprintf("%dULL", c.U64)}
	}
	return ast.Nil()
}

func tvExpr(v bytecode.TValue) ast.Expr {
	switch v.Kind {
	case bytecode.TVFalse:
		return ast.False()
	case bytecode.TVTrue:
		return ast.True()
	case bytecode.TVInt:
		return ast.Int(int64(v.Int))
	case bytecode.TVNum:
		return ast.Num(v.Num)
	case bytecode.TVString:
		return ast.Str(v.Str)
	}
	return ast.Nil()
}

// template converts a constant table template into a constructor expression.
// Array slots 1..n print positionally; slot 0 and hash entries get explicit
// keys.
func (l *lifter) template(t *bytecode.TableTemplate) ast.Expr {
	tab := &ast.Table{}
	for i, v := range t.Array {
		if v.Kind == bytecode.TVNil {
			continue
		}
		f := ast.TableField{Value: tvExpr(v)}
		if i == 0 {
			f.Key = ast.Int(0)
		}
		tab.Fields = append(tab.Fields, f)
	}
	for _, e := range t.Hash {
		tab.Fields = append(tab.Fields, ast.TableField{Key: tvExpr(e.Key), Value: tvExpr(e.Val)})
	}
	return tab
}

func slotRange(base, n int) []ast.Expr {
	out := make([]ast.Expr, n)
	for i := range out {
		out[i] = &ast.Slot{N: base + i}
	}
	return out
}

func (l *lifter) callExpr(s *ir.Stmt) *ast.Call {
	c := &ast.Call{Fn: &ast.Slot{N: s.Base}}
	c.Args = slotRange(s.Base+1, s.NArgs)
	if s.ArgM && l.multi != nil {
		c.Args = append(c.Args, l.multi)
		l.multi = nil
	}
	return c
}

var binKinds = [...]ast.BinKind{
	ast.BinAdd, ast.BinSub, ast.BinMul, ast.BinDiv, ast.BinMod, ast.BinPow,
}

var unKinds = [...]ast.UnKind{ast.UnNot, ast.UnMinus, ast.UnLen}

var cmpKinds = map[ir.CompareOp]ast.BinKind{
	ir.CmpLT: ast.BinLt,
	ir.CmpGE: ast.BinGe,
	ir.CmpLE: ast.BinLe,
	ir.CmpGT: ast.BinGt,
	ir.CmpEQ: ast.BinEq,
	ir.CmpNE: ast.BinNe,
}

// cond lifts a fused Branch statement to its boolean expression (the sense
// in which the branch is taken).
func (l *lifter) cond(s *ir.Stmt) ast.Expr {
	switch s.Cmp {
	case ir.CmpTruthy:
		return l.operand(s.X)
	case ir.CmpFalsy:
		return ast.Not(l.operand(s.X))
	}
	return &ast.Bin{Kind: cmpKinds[s.Cmp], L: l.operand(s.X), R: l.operand(s.Y)}
}

func assign(pc int, lhs []ast.Expr, rhs ...ast.Expr) *ast.Assign {
	return &ast.Assign{PC: pc, LHS: lhs, RHS: rhs}
}

// stmt lifts one non-terminator ir statement. It may return nil when the
// statement is a marker or an open-ended producer stashed for fusion.
func (l *lifter) stmt(s *ir.Stmt) ast.Stmt {
	switch s.Kind {
	case ir.KindNop, ir.KindLoopHint:
		return nil

	case ir.KindMove, ir.KindLoad:
		return assign(s.PC, []ast.Expr{l.operand(s.Dst)}, l.operand(s.X))

	case ir.KindLoadNil:
		lo, hi := s.X.Val, s.Y.Val
		lhs := slotRange(lo, hi-lo+1)
		rhs := make([]ast.Expr, len(lhs))
		for i := range rhs {
			rhs[i] = ast.Nil()
		}
		return &ast.Assign{PC: s.PC, LHS: lhs, RHS: rhs}

	case ir.KindUnary:
		return assign(s.PC, []ast.Expr{l.operand(s.Dst)},
			&ast.Un{Kind: unKinds[s.Un], X: l.operand(s.X)})

	case ir.KindBinary:
		return assign(s.PC, []ast.Expr{l.operand(s.Dst)},
			&ast.Bin{Kind: binKinds[s.Bin], L: l.operand(s.X), R: l.operand(s.Y)})

	case ir.KindConcat:
		lo, hi := s.X.Val, s.Y.Val
		e := ast.Expr(&ast.Slot{N: lo})
		for n := lo + 1; n <= hi; n++ {
			e = &ast.Bin{Kind: ast.BinConcat, L: e, R: &ast.Slot{N: n}}
		}
		return assign(s.PC, []ast.Expr{l.operand(s.Dst)}, e)

	case ir.KindNewTable:
		return assign(s.PC, []ast.Expr{l.operand(s.Dst)}, &ast.Table{})

	case ir.KindDupTable:
		return assign(s.PC, []ast.Expr{l.operand(s.Dst)}, l.operand(s.X))

	case ir.KindGlobalGet:
		return assign(s.PC, []ast.Expr{l.operand(s.Dst)},
			&ast.Global{Name: l.p.GC[s.X.Val].Str})

	case ir.KindGlobalSet:
		return assign(s.PC, []ast.Expr{&ast.Global{Name: l.p.GC[s.X.Val].Str}},
			l.operand(s.Y))

	case ir.KindUpvalGet:
		return assign(s.PC, []ast.Expr{l.operand(s.Dst)}, l.operand(s.X))

	case ir.KindUpvalSet:
		return assign(s.PC, []ast.Expr{l.operand(s.X)}, l.operand(s.Y))

	case ir.KindIndexGet:
		return assign(s.PC, []ast.Expr{l.operand(s.Dst)},
			&ast.Index{X: l.operand(s.X), Key: l.operand(s.Y)})

	case ir.KindIndexSet:
		return assign(s.PC,
			[]ast.Expr{&ast.Index{X: l.operand(s.X), Key: l.operand(s.Y)}},
			l.operand(s.Z))

	case ir.KindSetMulti:
		// t[start], t[start+1], ... = f(); printed as a spread store at
		// the first index.
		start := int64(1)
		if k := l.p.Num[s.X.Val]; k.IsInt {
			start = int64(k.Int)
		}
		lhs := []ast.Expr{&ast.Index{X: &ast.Slot{N: s.Base - 1}, Key: ast.Int(start)}}
		rhs := l.multi
		l.multi = nil
		if rhs == nil {
			rhs = ast.Nil()
		}
		return &ast.Assign{PC: s.PC, LHS: lhs, RHS: []ast.Expr{rhs}}

	case ir.KindClosure:
		return assign(s.PC, []ast.Expr{l.operand(s.Dst)}, l.operand(s.X))

	case ir.KindIterCall:
		// ITERC copies the iterator triple from base-3..base-1 before the
		// call; reference the originals so every slot has a visible def.
		c := &ast.Call{Fn: &ast.Slot{N: s.Base - 3}, Args: slotRange(s.Base-2, 2)}
		return &ast.Assign{PC: s.PC, LHS: slotRange(s.Base, s.NRets), RHS: []ast.Expr{c}}

	case ir.KindCall:
		c := l.callExpr(s)
		if s.RetM {
			l.multi = c
			return nil
		}
		if s.NRets == 0 {
			return &ast.ExprStat{PC: s.PC, X: c}
		}
		return &ast.Assign{PC: s.PC, LHS: slotRange(s.Base, s.NRets), RHS: []ast.Expr{c}}

	case ir.KindVararg:
		if s.RetM {
			l.multi = &ast.Vararg{}
			return nil
		}
		return &ast.Assign{PC: s.PC, LHS: slotRange(s.Base, s.NRets), RHS: []ast.Expr{&ast.Vararg{}}}
	}
	return nil
}

// returnStmt lifts a Return or TailCall terminator.
func (l *lifter) returnStmt(s *ir.Stmt) *ast.Return {
	if s.Kind == ir.KindTailCall {
		return &ast.Return{PC: s.PC, Exprs: []ast.Expr{l.callExpr(s)}}
	}
	exprs := slotRange(s.Base, s.NRets)
	if s.RetM && l.multi != nil {
		exprs = append(exprs, l.multi)
		l.multi = nil
	}
	return &ast.Return{PC: s.PC, Exprs: exprs}
}
