package slots

import "unluajit/internal/ast"

// tempDef recognizes a statement that defines a single anonymous slot.
func (r *recoverer) tempDef(s ast.Stmt) (n int, rhs ast.Expr, ok bool) {
	a, isAssign := s.(*ast.Assign)
	if !isAssign || a.Local || len(a.LHS) != 1 || len(a.RHS) != 1 {
		return 0, nil, false
	}
	slot, isSlot := a.LHS[0].(*ast.Slot)
	if !isSlot || r.declared[slot.N] {
		return 0, nil, false
	}
	// A slot carrying a debug name is a real local; its write survives.
	if r.named(slot.N, a.PC+1) {
		return 0, nil, false
	}
	// Self-referential writes (slot reused in its own redefinition) stay.
	if countExpr(a.RHS[0], slot.N) > 0 {
		return 0, nil, false
	}
	return slot.N, a.RHS[0], true
}

// inlineBlock inlines single-use temporaries into their consumer. It
// returns true when any statement was folded; the caller iterates to a
// fixed point.
func (r *recoverer) inlineBlock(b *ast.Block) bool {
	if b == nil {
		return false
	}
	changed := false
	for i := 0; i < len(b.Stmts); i++ {
		switch x := b.Stmts[i].(type) {
		case *ast.If:
			changed = r.inlineBlock(x.Then) || changed
			changed = r.inlineBlock(x.Else) || changed
		case *ast.While:
			changed = r.inlineBlock(x.Body) || changed
		case *ast.RepeatUntil:
			changed = r.inlineBlock(x.Body) || changed
			changed = r.inlineUntil(x) || changed
		case *ast.NumericFor:
			changed = r.inlineBlock(x.Body) || changed
		case *ast.GenericFor:
			changed = r.inlineBlock(x.Body) || changed
		case *ast.Block:
			changed = r.inlineBlock(x) || changed
		}
		if r.inlineAt(b, i) {
			changed = true
			i-- // the def was removed; revisit this index
		}
	}
	return changed
}

// inlineAt tries to fold the temporary defined at b.Stmts[i] into the
// statement that consumes it.
func (r *recoverer) inlineAt(b *ast.Block, i int) bool {
	n, rhs, ok := r.tempDef(b.Stmts[i])
	if !ok {
		return false
	}
	if r.totalReads(n) != 1 {
		return false
	}
	rhsReads := readSlots(rhs)

	for j := i + 1; j < len(b.Stmts); j++ {
		s := b.Stmts[j]
		inl, blk := refs(s, n)
		if inl+blk == 0 {
			// No use here. Step over the statement only when doing so
			// cannot change what the pending expression would read.
			m, mr, ok := r.tempDef(s)
			if !ok || !pure(mr) || rhsReads[m] {
				return false
			}
			continue
		}
		if inl == 1 && blk == 0 {
			substitute(s, n, rhs)
			b.Stmts = append(b.Stmts[:i], b.Stmts[i+1:]...)
			return true
		}
		return false
	}
	return false
}

// inlineUntil folds a trailing temporary of a repeat body into the until
// condition, which is evaluated immediately after it.
func (r *recoverer) inlineUntil(x *ast.RepeatUntil) bool {
	if x.Body == nil || len(x.Body.Stmts) == 0 {
		return false
	}
	last := len(x.Body.Stmts) - 1
	n, rhs, ok := r.tempDef(x.Body.Stmts[last])
	if !ok || r.totalReads(n) != 1 || countExpr(x.Cond, n) != 1 {
		return false
	}
	x.Cond = rewriteExpr(x.Cond, n, rhs)
	x.Body.Stmts = x.Body.Stmts[:last]
	return true
}

// totalReads counts every read of slot n in the whole function.
func (r *recoverer) totalReads(n int) int {
	c := 0
	for _, s := range r.root.Stmts {
		a, b := refs(s, n)
		c += a + b
	}
	// Reads in repeat/while conditions at top level are already included
	// via refs; nothing else references slots.
	return c
}
