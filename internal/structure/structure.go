// Package structure reduces an annotated control-flow graph to a structured
// statement tree. It runs region-matching passes over a worklist until a
// fixed point: sequences collapse, short-circuit jump cascades fold into
// compound conditions, two-way branches become if/else, and loop idioms are
// matched against a per-version table. Whatever cannot be reduced is emitted
// as labeled blocks with explicit gotos.
package structure

import (
	"fmt"
	"sort"

	"unluajit/internal/ast"
	"unluajit/internal/bytecode"
	"unluajit/internal/cfg"
	"unluajit/internal/diag"
	"unluajit/internal/ir"
)

type edge struct {
	to   int
	cond string // "", "T", "F"
}

// region is a partially structured subgraph collapsed to a single node.
// Initially one region per reachable basic block.
type region struct {
	id      int
	startPC int
	stmts   []ast.Stmt

	// term is the unreduced terminator: a Branch, ForPrep, ForLoop or
	// IterLoop. nil once the region ends in straight-line flow.
	term *ir.Stmt
	cond ast.Expr // lifted Branch condition (taken sense)

	// condCopy is the ISTC/ISFC destination copy; it executes on the
	// taken path and is placed there when the branch is reduced.
	condCopy ast.Stmt

	succs []edge
}

type builder struct {
	fn    *ir.Func
	fnIdx int
	ds    *diag.Diags

	regions map[int]*region
	entry   int
	preds   map[int][]int
	idioms  []loopIdiom
}

// Build structures one function. g supplies reachability; unreachable
// blocks are dropped here (they were already reported by the analyzer).
func Build(fn *ir.Func, g *cfg.Graph, v bytecode.Version, fnIdx int, ds *diag.Diags) *ast.Block {
	b := &builder{
		fn:      fn,
		fnIdx:   fnIdx,
		ds:      ds,
		regions: make(map[int]*region),
		idioms:  idiomsFor(v),
	}
	b.lift(g)

	// Every pass either removes a region or rewrites an edge into a
	// statement, so progress is bounded; the cap is a safety net against
	// a pass oscillating on adversarial input.
	max := 4*len(b.regions) + 8
	for i := 0; i < max; i++ {
		c1 := b.reduceSequence()
		c2 := b.reduceBreakContinue()
		c3 := b.reduceLoops()
		c4 := b.reduceShortCircuit()
		c5 := b.reduceIf()
		if !c1 && !c2 && !c3 && !c4 && !c5 {
			break
		}
	}

	if len(b.regions) == 1 {
		r := b.regions[b.entry]
		if r.term == nil && len(r.succs) == 0 {
			return &ast.Block{Stmts: r.stmts}
		}
	}
	return b.residue()
}

// lift converts reachable basic blocks into initial regions.
func (b *builder) lift(g *cfg.Graph) {
	lf := &lifter{p: b.fn.Proto}
	for i, blk := range b.fn.Blocks {
		if !g.Reachable(i) {
			continue
		}
		r := &region{id: i, startPC: blk.StartPC}
		lf.multi = nil
		n := len(blk.Stmts)
		term := blk.Term()
		if term != nil {
			n--
		}
		for j := range blk.Stmts[:n] {
			if st := lf.stmt(&blk.Stmts[j]); st != nil {
				r.stmts = append(r.stmts, st)
			}
		}
		if term != nil {
			switch term.Kind {
			case ir.KindReturn, ir.KindTailCall:
				r.stmts = append(r.stmts, lf.returnStmt(term))
			case ir.KindBranch:
				r.term = term
				r.cond = lf.cond(term)
				if term.Dst.Kind == ir.OperandReg {
					r.condCopy = assign(term.PC,
						[]ast.Expr{lf.operand(term.Dst)}, lf.operand(term.X))
				}
			case ir.KindForPrep, ir.KindForLoop, ir.KindIterLoop:
				r.term = term
			}
			// Jump and UpvalClose reduce to their successor edge.
		}
		for _, s := range blk.Succs {
			r.succs = append(r.succs, edge{to: s.Block, cond: s.Cond})
		}
		b.regions[i] = r
	}
	b.entry = 0
}

func (b *builder) ids() []int {
	out := make([]int, 0, len(b.regions))
	for id := range b.regions {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (b *builder) computePreds() {
	b.preds = make(map[int][]int)
	for _, id := range b.ids() {
		for _, e := range b.regions[id].succs {
			b.preds[e.to] = append(b.preds[e.to], id)
		}
	}
}

// onlyPred reports whether id's sole predecessor is from.
func (b *builder) onlyPred(id, from int) bool {
	p := b.preds[id]
	return len(p) == 1 && p[0] == from
}

func (b *builder) remove(id, absorber int) {
	delete(b.regions, id)
	if b.entry == id {
		b.entry = absorber
	}
}

// outEdge returns the single successor when the region ends in
// unconditional flow.
func (r *region) outEdge() (int, bool) {
	if r.term == nil && len(r.succs) == 1 && r.succs[0].cond == "" {
		return r.succs[0].to, true
	}
	return 0, false
}

// branchEdges returns the taken and fallthrough targets of a Branch region.
func (r *region) branchEdges() (t, f int, ok bool) {
	if r.term == nil || r.term.Kind != ir.KindBranch || len(r.succs) != 2 {
		return 0, 0, false
	}
	for _, e := range r.succs {
		switch e.cond {
		case "T":
			t = e.to
		case "F":
			f = e.to
		}
	}
	return t, f, true
}

func (b *builder) reduceSequence() bool {
	changed := false
	b.computePreds()
	for _, id := range b.ids() {
		a := b.regions[id]
		if a == nil {
			continue
		}
		for {
			next, ok := a.outEdge()
			if !ok || next == id {
				break
			}
			// Absorbing the entry would move it past the merge and turn a
			// header-tested loop into a tail-tested one.
			if next == b.entry {
				break
			}
			nb := b.regions[next]
			if !b.onlyPred(next, id) {
				break
			}
			a.stmts = append(a.stmts, nb.stmts...)
			a.term, a.cond, a.condCopy = nb.term, nb.cond, nb.condCopy
			a.succs = nb.succs
			b.remove(next, id)
			b.computePreds()
			changed = true
		}
	}
	return changed
}

// reduceShortCircuit folds a conditional region whose arm is another
// empty conditional sharing a final target into one compound condition.
func (b *builder) reduceShortCircuit() bool {
	changed := false
	b.computePreds()
	for _, id := range b.ids() {
		a := b.regions[id]
		if a == nil || a.condCopy != nil {
			continue
		}
		at, af, ok := a.branchEdges()
		if !ok {
			continue
		}
		for _, which := range []string{"F", "T"} {
			inner, other := af, at
			if which == "T" {
				inner, other = at, af
			}
			if inner == id {
				continue
			}
			nb := b.regions[inner]
			if nb == nil || nb.condCopy != nil || len(nb.stmts) != 0 {
				continue
			}
			bt, bf, ok := nb.branchEdges()
			if !ok || !b.onlyPred(inner, id) || (other != bt && other != bf) {
				continue
			}
			switch {
			case which == "F" && other == bt:
				a.cond = &ast.Bin{Kind: ast.BinOr, L: a.cond, R: nb.cond}
			case which == "F" && other == bf:
				a.cond = &ast.Bin{Kind: ast.BinAnd, L: ast.Not(a.cond), R: nb.cond}
			case which == "T" && other == bf:
				a.cond = &ast.Bin{Kind: ast.BinAnd, L: a.cond, R: nb.cond}
			default: // which == "T" && other == bt
				a.cond = &ast.Bin{Kind: ast.BinOr, L: ast.Not(a.cond), R: nb.cond}
			}
			a.succs = []edge{{to: bt, cond: "T"}, {to: bf, cond: "F"}}
			b.remove(inner, id)
			b.computePreds()
			changed = true
			break
		}
	}
	return changed
}

// armShape reports whether id can serve as an if arm hanging off `from`:
// single predecessor, fully reduced, ending either nowhere (return) or in
// one unconditional edge.
func (b *builder) armShape(id, from int) (join int, terminal, ok bool) {
	r := b.regions[id]
	if r == nil || r.term != nil || !b.onlyPred(id, from) {
		return 0, false, false
	}
	if len(r.succs) == 0 {
		return 0, true, true
	}
	if j, ok := r.outEdge(); ok && j != id {
		return j, false, true
	}
	return 0, false, false
}

func block(stmts []ast.Stmt) *ast.Block {
	return &ast.Block{Stmts: stmts}
}

func (b *builder) reduceIf() bool {
	changed := false
	b.computePreds()
	for _, id := range b.ids() {
		a := b.regions[id]
		if a == nil {
			continue
		}
		t, f, ok := a.branchEdges()
		if !ok || t == f || t == id || f == id {
			continue
		}

		tj, tTerm, tOK := b.armShape(t, id)
		fj, fTerm, fOK := b.armShape(f, id)

		switch {
		case tOK && fOK && (tTerm || fTerm || tj == fj):
			then := b.regions[t].stmts
			if a.condCopy != nil {
				then = append([]ast.Stmt{a.condCopy}, then...)
			}
			n := &ast.If{PC: a.term.PC, Cond: a.cond,
				Then: block(then), Else: block(b.regions[f].stmts)}
			if len(n.Else.Stmts) == 0 {
				n.Else = nil
			}
			a.stmts = append(a.stmts, n)
			a.term, a.cond, a.condCopy = nil, nil, nil
			switch {
			case !tTerm:
				a.succs = []edge{{to: tj}}
			case !fTerm:
				a.succs = []edge{{to: fj}}
			default:
				a.succs = nil
			}
			b.remove(t, id)
			b.remove(f, id)
			changed = true

		case tOK && (tTerm || tj == f):
			// Single-armed if on the taken path; f is the join.
			then := b.regions[t].stmts
			if a.condCopy != nil {
				then = append([]ast.Stmt{a.condCopy}, then...)
			}
			a.stmts = append(a.stmts, &ast.If{PC: a.term.PC, Cond: a.cond, Then: block(then)})
			a.term, a.cond, a.condCopy = nil, nil, nil
			a.succs = []edge{{to: f}}
			b.remove(t, id)
			changed = true

		case fOK && (fTerm || fj == t):
			// Arm on the fallthrough path; invert the condition.
			a.stmts = append(a.stmts, &ast.If{PC: a.term.PC, Cond: ast.Not(a.cond),
				Then: block(b.regions[f].stmts)})
			if a.condCopy != nil {
				// The copy runs on the taken path, which is the join.
				a.stmts = append(a.stmts, a.condCopy)
			}
			a.term, a.cond, a.condCopy = nil, nil, nil
			a.succs = []edge{{to: t}}
			b.remove(f, id)
			changed = true
		}
		if changed {
			b.computePreds()
		}
	}
	return changed
}

func (b *builder) reduceLoops() bool {
	changed := false
	b.computePreds()
	for _, id := range b.ids() {
		if b.regions[id] == nil {
			continue
		}
		var apply func()
		var names []string
		for _, idiom := range b.idioms {
			if fn, ok := idiom.match(b, id); ok {
				if apply == nil {
					apply = fn
				}
				names = append(names, idiom.name)
			}
		}
		if apply == nil {
			continue
		}
		if len(names) > 1 {
			b.ds.Addf(b.fnIdx, b.regions[id].startPC, diag.KindAmbiguous,
				"loop at pc %04d matches %v; using %s", b.regions[id].startPC, names, names[0])
		}
		apply()
		b.computePreds()
		changed = true
	}
	return changed
}

// residue emits the remaining regions as labeled blocks with explicit
// gotos and reports the irreducible shape.
func (b *builder) residue() *ast.Block {
	ids := b.ids()
	if b.ds != nil && len(ids) > 1 {
		pcs := make([]int, len(ids))
		for i, id := range ids {
			pcs[i] = b.regions[id].startPC
		}
		b.ds.Addf(b.fnIdx, b.regions[ids[0]].startPC, diag.KindIrreducible,
			"control flow not fully structured; %d blocks remain at pcs %v", len(ids), pcs)
	}

	sort.Slice(ids, func(i, j int) bool {
		return b.regions[ids[i]].startPC < b.regions[ids[j]].startPC
	})

	label := func(id int) string {
		return fmt.Sprintf("L%d", b.regions[id].startPC)
	}
	out := &ast.Block{}
	for _, id := range ids {
		r := b.regions[id]
		out.Stmts = append(out.Stmts, &ast.Label{PC: r.startPC, Name: label(id)})
		out.Stmts = append(out.Stmts, r.stmts...)

		if r.term != nil {
			t, f := -1, -1
			for _, e := range r.succs {
				switch e.cond {
				case "T":
					t = e.to
				case "F":
					f = e.to
				}
			}
			cond := r.cond
			if cond == nil {
				cond = residueCond(r.term)
			}
			then := []ast.Stmt{&ast.Goto{PC: r.term.PC, Name: label(t)}}
			if r.condCopy != nil {
				then = append([]ast.Stmt{r.condCopy}, then...)
			}
			out.Stmts = append(out.Stmts, &ast.If{PC: r.term.PC, Cond: cond, Then: block(then)})
			if f >= 0 {
				out.Stmts = append(out.Stmts, &ast.Goto{PC: r.term.PC, Name: label(f)})
			}
			continue
		}
		if next, ok := r.outEdge(); ok {
			out.Stmts = append(out.Stmts, &ast.Goto{PC: r.startPC, Name: label(next)})
		}
	}
	return out
}

// residueCond approximates the taken condition of a loop terminator that
// survived into the residue.
func residueCond(t *ir.Stmt) ast.Expr {
	switch t.Kind {
	case ir.KindForPrep:
		// Taken edge exits; the exit test is "counter past stop".
		return ast.Not(&ast.Bin{Kind: ast.BinLe,
			L: &ast.Slot{N: t.Base}, R: &ast.Slot{N: t.Base + 1}})
	case ir.KindForLoop:
		return &ast.Bin{Kind: ast.BinLe,
			L: &ast.Slot{N: t.Base}, R: &ast.Slot{N: t.Base + 1}}
	case ir.KindIterLoop:
		return &ast.Bin{Kind: ast.BinNe, L: &ast.Slot{N: t.Base}, R: ast.Nil()}
	}
	return ast.True()
}
