// Package slots rewrites the raw register references left in a structured
// tree into source-level variables: single-use temporaries are inlined into
// their consumer, adjacent writes that form one multiple-assignment are
// merged, and surviving slots are named from debug info or synthesized.
package slots

import (
	"fmt"
	"strings"

	"unluajit/internal/ast"
	"unluajit/internal/bytecode"
	"unluajit/internal/diag"
)

type recoverer struct {
	p     *bytecode.Proto
	fnIdx int
	ds    *diag.Diags

	root     *ast.Block
	declared map[int]bool
	synth    map[int]string
	gapped   bool
}

// Recover materializes all slot references in tree and returns the
// function's parameter names.
func Recover(tree *ast.Block, p *bytecode.Proto, fnIdx int, ds *diag.Diags) []string {
	r := &recoverer{
		p:        p,
		fnIdx:    fnIdx,
		ds:       ds,
		root:     tree,
		declared: make(map[int]bool),
		synth:    make(map[int]string),
	}

	params := make([]string, p.NumParams)
	for i := range params {
		if name, ok := p.LocalName(i, 0); ok && validName(name) {
			params[i] = name
		} else {
			params[i] = fmt.Sprintf("a%d", i)
			r.gapped = true
		}
		r.declared[i] = true
		// Body references to a parameter slot must resolve to the same
		// name even when debug info is stripped.
		r.synth[i] = params[i]
	}

	for r.inlineBlock(tree) {
	}
	r.mergeBlock(tree)
	r.nameBlock(tree, 0)
	r.hoist(tree)

	if r.gapped && len(p.VarInfo) == 0 && ds != nil {
		ds.Add(fnIdx, -1, diag.KindNameGap, "debug info stripped; local names synthesized")
	}
	r.verify(tree)
	return params
}

// verify reports any slot reference that survived recovery. Naming should
// rewrite every slot, so a survivor escapes into the output as a raw
// register name.
func (r *recoverer) verify(tree *ast.Block) {
	if r.ds == nil {
		return
	}
	seen := make(map[int]bool)
	ast.Walk(tree, func(s ast.Stmt) {
		for _, e := range stmtExprs(s) {
			visitExpr(e, func(x ast.Expr) {
				if sl, ok := x.(*ast.Slot); ok && !seen[sl.N] {
					seen[sl.N] = true
					r.ds.Addf(r.fnIdx, -1, diag.KindSlotResidue, "slot %d escaped recovery", sl.N)
				}
			})
		}
	})
}

func validName(s string) bool {
	return s != "" && !strings.HasPrefix(s, "(")
}

// named reports whether the slot carries a debug name at pc, meaning it is
// a real local rather than an expression temporary.
func (r *recoverer) named(slot, pc int) bool {
	name, ok := r.p.LocalName(slot, pc)
	return ok && validName(name)
}
