package slots

import "unluajit/internal/ast"

// countExpr counts reads of slot n inside e.
func countExpr(e ast.Expr, n int) int {
	c := 0
	visitExpr(e, func(x ast.Expr) {
		if s, ok := x.(*ast.Slot); ok && s.N == n {
			c++
		}
	})
	return c
}

func visitExpr(e ast.Expr, f func(ast.Expr)) {
	if e == nil {
		return
	}
	f(e)
	switch x := e.(type) {
	case *ast.Bin:
		visitExpr(x.L, f)
		visitExpr(x.R, f)
	case *ast.Un:
		visitExpr(x.X, f)
	case *ast.Index:
		visitExpr(x.X, f)
		visitExpr(x.Key, f)
	case *ast.Call:
		visitExpr(x.Fn, f)
		for _, a := range x.Args {
			visitExpr(a, f)
		}
	case *ast.Table:
		for _, fl := range x.Fields {
			visitExpr(fl.Key, f)
			visitExpr(fl.Value, f)
		}
	}
}

// rewriteExpr replaces every read of slot n in e with repl.
func rewriteExpr(e ast.Expr, n int, repl ast.Expr) ast.Expr {
	if e == nil {
		return nil
	}
	switch x := e.(type) {
	case *ast.Slot:
		if x.N == n {
			return repl
		}
	case *ast.Bin:
		x.L = rewriteExpr(x.L, n, repl)
		x.R = rewriteExpr(x.R, n, repl)
	case *ast.Un:
		x.X = rewriteExpr(x.X, n, repl)
	case *ast.Index:
		x.X = rewriteExpr(x.X, n, repl)
		x.Key = rewriteExpr(x.Key, n, repl)
	case *ast.Call:
		x.Fn = rewriteExpr(x.Fn, n, repl)
		for i := range x.Args {
			x.Args[i] = rewriteExpr(x.Args[i], n, repl)
		}
	case *ast.Table:
		for i := range x.Fields {
			x.Fields[i].Key = rewriteExpr(x.Fields[i].Key, n, repl)
			x.Fields[i].Value = rewriteExpr(x.Fields[i].Value, n, repl)
		}
	}
	return e
}

// refs classifies reads of slot n in one statement. Reads in positions
// evaluated exactly once on entry (assignment operands, if conditions,
// for-loop header expressions, returns) are inlinable; reads inside loop
// bodies, repeated conditions or branch arms are not.
func refs(s ast.Stmt, n int) (inlinable, blocked int) {
	blockRefs := func(b *ast.Block) int {
		c := 0
		if b == nil {
			return 0
		}
		for _, s := range b.Stmts {
			a, bl := refs(s, n)
			c += a + bl
		}
		return c
	}
	switch x := s.(type) {
	case *ast.Assign:
		for _, l := range x.LHS {
			if idx, ok := l.(*ast.Index); ok {
				inlinable += countExpr(idx.X, n) + countExpr(idx.Key, n)
			}
		}
		for _, r := range x.RHS {
			inlinable += countExpr(r, n)
		}
	case *ast.ExprStat:
		inlinable += countExpr(x.X, n)
	case *ast.Return:
		for _, e := range x.Exprs {
			inlinable += countExpr(e, n)
		}
	case *ast.If:
		inlinable += countExpr(x.Cond, n)
		blocked += blockRefs(x.Then) + blockRefs(x.Else)
	case *ast.While:
		blocked += countExpr(x.Cond, n) + blockRefs(x.Body)
	case *ast.RepeatUntil:
		blocked += countExpr(x.Cond, n) + blockRefs(x.Body)
	case *ast.NumericFor:
		inlinable += countExpr(x.Start, n) + countExpr(x.Stop, n) + countExpr(x.Step, n)
		blocked += blockRefs(x.Body)
	case *ast.GenericFor:
		for _, e := range x.Exprs {
			inlinable += countExpr(e, n)
		}
		blocked += blockRefs(x.Body)
	case *ast.Block:
		blocked += blockRefs(x)
	}
	return inlinable, blocked
}

// substitute replaces the reads of slot n in s's inlinable positions.
func substitute(s ast.Stmt, n int, repl ast.Expr) {
	switch x := s.(type) {
	case *ast.Assign:
		for _, l := range x.LHS {
			if idx, ok := l.(*ast.Index); ok {
				idx.X = rewriteExpr(idx.X, n, repl)
				idx.Key = rewriteExpr(idx.Key, n, repl)
			}
		}
		for i := range x.RHS {
			x.RHS[i] = rewriteExpr(x.RHS[i], n, repl)
		}
	case *ast.ExprStat:
		x.X = rewriteExpr(x.X, n, repl)
	case *ast.Return:
		for i := range x.Exprs {
			x.Exprs[i] = rewriteExpr(x.Exprs[i], n, repl)
		}
	case *ast.If:
		x.Cond = rewriteExpr(x.Cond, n, repl)
	case *ast.NumericFor:
		x.Start = rewriteExpr(x.Start, n, repl)
		x.Stop = rewriteExpr(x.Stop, n, repl)
		x.Step = rewriteExpr(x.Step, n, repl)
	case *ast.GenericFor:
		for i := range x.Exprs {
			x.Exprs[i] = rewriteExpr(x.Exprs[i], n, repl)
		}
	}
}

// stmtExprs lists the expressions held directly by s (not those of nested
// statements).
func stmtExprs(s ast.Stmt) []ast.Expr {
	switch x := s.(type) {
	case *ast.Assign:
		return append(append([]ast.Expr{}, x.LHS...), x.RHS...)
	case *ast.ExprStat:
		return []ast.Expr{x.X}
	case *ast.Return:
		return x.Exprs
	case *ast.If:
		return []ast.Expr{x.Cond}
	case *ast.While:
		return []ast.Expr{x.Cond}
	case *ast.RepeatUntil:
		return []ast.Expr{x.Cond}
	case *ast.NumericFor:
		return []ast.Expr{x.Var, x.Start, x.Stop, x.Step}
	case *ast.GenericFor:
		return append(append([]ast.Expr{}, x.Vars...), x.Exprs...)
	}
	return nil
}

// pure reports whether evaluating e cannot raise an error or run user code.
func pure(e ast.Expr) bool {
	switch x := e.(type) {
	case *ast.Const, *ast.Slot, *ast.Local, *ast.Upvalue, *ast.Global,
		*ast.Vararg, *ast.Func:
		return true
	case *ast.Un:
		return pure(x.X)
	case *ast.Bin:
		return pure(x.L) && pure(x.R)
	case *ast.Table:
		for _, f := range x.Fields {
			if (f.Key != nil && !pure(f.Key)) || !pure(f.Value) {
				return false
			}
		}
		return true
	}
	return false
}

// readSlots collects the slots read by e.
func readSlots(e ast.Expr) map[int]bool {
	out := make(map[int]bool)
	visitExpr(e, func(x ast.Expr) {
		if s, ok := x.(*ast.Slot); ok {
			out[s.N] = true
		}
	})
	return out
}
