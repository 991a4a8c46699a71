package structure

import "unluajit/internal/ast"

// Simplify cleans up shapes the reduction passes leave behind once slot
// recovery has inlined condition temporaries: `while true do if not c then
// break end ...` folds back into `while c do ...`, and the implicit bare
// return closing the function is dropped.
func Simplify(tree *ast.Block) {
	simplifyBlock(tree)
	if n := len(tree.Stmts); n > 0 {
		if ret, ok := tree.Stmts[n-1].(*ast.Return); ok && len(ret.Exprs) == 0 {
			tree.Stmts = tree.Stmts[:n-1]
		}
	}
}

func simplifyBlock(b *ast.Block) {
	if b == nil {
		return
	}
	for _, s := range b.Stmts {
		switch x := s.(type) {
		case *ast.If:
			simplifyBlock(x.Then)
			simplifyBlock(x.Else)
		case *ast.While:
			foldWhileTrue(x)
			simplifyBlock(x.Body)
		case *ast.RepeatUntil:
			simplifyBlock(x.Body)
		case *ast.NumericFor:
			simplifyBlock(x.Body)
		case *ast.GenericFor:
			simplifyBlock(x.Body)
		case *ast.Block:
			simplifyBlock(x)
		}
	}
}

func foldWhileTrue(w *ast.While) {
	c, ok := w.Cond.(*ast.Const)
	if !ok || c.Kind != ast.ConstTrue || w.Body == nil || len(w.Body.Stmts) == 0 {
		return
	}
	guard, ok := w.Body.Stmts[0].(*ast.If)
	if !ok || guard.Else != nil || guard.Then == nil || len(guard.Then.Stmts) != 1 {
		return
	}
	if _, isBreak := guard.Then.Stmts[0].(*ast.Break); !isBreak {
		return
	}
	w.Cond = ast.Not(guard.Cond)
	w.Body.Stmts = w.Body.Stmts[1:]
}
