package slots

import (
	"sort"

	"unluajit/internal/ast"
)

// hoist moves local declarations up to the innermost block enclosing every
// use of the variable. A slot first written inside a branch arm but read
// after the join would otherwise be declared in a scope its readers cannot
// see.
func (r *recoverer) hoist(tree *ast.Block) {
	occ := make(map[int][]occurrence)
	collect(tree, nil, occ)

	type insertion struct {
		index int
		name  string
	}
	inserts := make(map[*ast.Block][]insertion)

	for slot, os := range occ {
		// Debug-named locals carry compiler-accurate scopes already; only
		// synthesized names can land in the wrong block. Parameters are
		// declared by the function header itself.
		name, synthesized := r.synth[slot]
		if len(os) == 0 || !synthesized || slot < r.p.NumParams {
			continue
		}
		lca, idx := commonBlock(os)
		declOK := false
		for _, o := range os {
			a, ok := o.stmt.(*ast.Assign)
			if !ok || !a.Local {
				continue
			}
			if writesSlot(a, slot) {
				if o.path[len(o.path)-1] == lca {
					declOK = true
				} else {
					a.Local = false
				}
			}
		}
		if declOK {
			continue
		}
		inserts[lca] = append(inserts[lca], insertion{index: idx, name: name})
	}

	for blk, ins := range inserts {
		// Insert back-to-front so earlier indexes stay valid.
		sort.Slice(ins, func(i, j int) bool {
			if ins[i].index != ins[j].index {
				return ins[i].index < ins[j].index
			}
			return ins[i].name < ins[j].name
		})
		for i := len(ins) - 1; i >= 0; i-- {
			decl := &ast.Assign{Local: true, LHS: []ast.Expr{&ast.Local{Name: ins[i].name}}}
			blk.Stmts = append(blk.Stmts[:ins[i].index],
				append([]ast.Stmt{decl}, blk.Stmts[ins[i].index:]...)...)
		}
	}
}

type occurrence struct {
	path []*ast.Block // blocks from the root down to the statement
	stmt ast.Stmt
}

func writesSlot(a *ast.Assign, slot int) bool {
	for _, l := range a.LHS {
		if lo, ok := l.(*ast.Local); ok && lo.Slot == slot {
			return true
		}
	}
	return false
}

// collect records, per slot, every statement referencing it and the block
// path leading there.
func collect(b *ast.Block, parents []*ast.Block, occ map[int][]occurrence) {
	if b == nil {
		return
	}
	path := append(append([]*ast.Block{}, parents...), b)
	for _, s := range b.Stmts {
		for _, slot := range localSlots(s) {
			occ[slot] = append(occ[slot], occurrence{path: path, stmt: s})
		}
		switch x := s.(type) {
		case *ast.If:
			collect(x.Then, path, occ)
			collect(x.Else, path, occ)
		case *ast.While:
			collect(x.Body, path, occ)
		case *ast.RepeatUntil:
			collect(x.Body, path, occ)
		case *ast.NumericFor:
			collect(x.Body, path, occ)
		case *ast.GenericFor:
			collect(x.Body, path, occ)
		case *ast.Block:
			collect(x, path, occ)
		}
	}
}

// localSlots lists the slots of locals referenced directly by s (not by
// statements nested under it).
func localSlots(s ast.Stmt) []int {
	seen := make(map[int]bool)
	for _, e := range stmtExprs(s) {
		visitExpr(e, func(x ast.Expr) {
			if l, ok := x.(*ast.Local); ok {
				seen[l.Slot] = true
			}
		})
	}
	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out
}

// commonBlock returns the deepest block containing every occurrence and
// the statement index where the declaration must be inserted.
func commonBlock(os []occurrence) (*ast.Block, int) {
	prefix := os[0].path
	for _, o := range os[1:] {
		n := 0
		for n < len(prefix) && n < len(o.path) && prefix[n] == o.path[n] {
			n++
		}
		prefix = prefix[:n]
	}
	lca := prefix[len(prefix)-1]

	idx := len(lca.Stmts)
	for _, o := range os {
		// The statement at this occurrence that lives directly in lca:
		// either o.stmt itself, or the ancestor statement containing it.
		var top ast.Stmt
		if o.path[len(o.path)-1] == lca {
			top = o.stmt
		} else {
			// The child block right below lca identifies the statement.
			child := o.path[indexOf(o.path, lca)+1]
			top = stmtHolding(lca, child)
		}
		for i, s := range lca.Stmts {
			if s == top && i < idx {
				idx = i
			}
		}
	}
	return lca, idx
}

func indexOf(path []*ast.Block, b *ast.Block) int {
	for i, p := range path {
		if p == b {
			return i
		}
	}
	return -1
}

// stmtHolding finds the statement of b that contains child as a direct
// sub-block.
func stmtHolding(b *ast.Block, child *ast.Block) ast.Stmt {
	for _, s := range b.Stmts {
		switch x := s.(type) {
		case *ast.If:
			if x.Then == child || x.Else == child {
				return s
			}
		case *ast.While:
			if x.Body == child {
				return s
			}
		case *ast.RepeatUntil:
			if x.Body == child {
				return s
			}
		case *ast.NumericFor:
			if x.Body == child {
				return s
			}
		case *ast.GenericFor:
			if x.Body == child {
				return s
			}
		case *ast.Block:
			if x == child {
				return s
			}
		}
	}
	return nil
}
