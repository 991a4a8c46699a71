package structure

import (
	"sort"

	"unluajit/internal/ast"
	"unluajit/internal/ir"
)

// reduceBreakContinue rewrites loop-escaping edges into Break statements
// and extra latch edges into Continue statements. Removing these edges is
// what lets the loop body collapse into the single region the idiom
// matchers expect.
func (b *builder) reduceBreakContinue() bool {
	changed := false
	for _, be := range b.backEdges() {
		if b.convertLoopEdges(be.from, be.to) {
			changed = true
		}
	}
	return changed
}

type backEdge struct {
	from, to int
}

// backEdges finds retreating edges with a DFS from the entry region.
func (b *builder) backEdges() []backEdge {
	const (
		white = iota
		grey
		black
	)
	color := make(map[int]int)
	var out []backEdge
	var dfs func(int)
	dfs = func(id int) {
		color[id] = grey
		r := b.regions[id]
		for _, e := range r.succs {
			switch color[e.to] {
			case white:
				dfs(e.to)
			case grey:
				out = append(out, backEdge{from: id, to: e.to})
			}
		}
		color[id] = black
	}
	if _, ok := b.regions[b.entry]; ok {
		dfs(b.entry)
	}
	return out
}

// loopBody collects the natural loop of the back edge latch→head: the head
// plus every region that reaches the latch without passing through the head.
func (b *builder) loopBody(latch, head int) map[int]bool {
	body := map[int]bool{head: true}
	stack := []int{latch}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if body[id] {
			continue
		}
		body[id] = true
		for _, p := range b.preds[id] {
			if !body[p] {
				stack = append(stack, p)
			}
		}
	}
	return body
}

// loopExit picks the canonical exit region of a loop: the external target
// of the head's or latch's own terminator, or, failing that, the external
// successor with the smallest start pc.
func (b *builder) loopExit(latch, head int, body map[int]bool) (int, bool) {
	external := func(id int) (int, bool) {
		r := b.regions[id]
		if r.term == nil {
			return 0, false
		}
		for _, e := range r.succs {
			if !body[e.to] {
				return e.to, true
			}
		}
		return 0, false
	}
	if x, ok := external(head); ok {
		return x, true
	}
	if x, ok := external(latch); ok {
		return x, true
	}
	var cands []int
	for id := range body {
		for _, e := range b.regions[id].succs {
			if !body[e.to] {
				cands = append(cands, e.to)
			}
		}
	}
	if len(cands) == 0 {
		return 0, false
	}
	sort.Slice(cands, func(i, j int) bool {
		return b.regions[cands[i]].startPC < b.regions[cands[j]].startPC
	})
	return cands[0], true
}

func (b *builder) convertLoopEdges(latch, head int) bool {
	b.computePreds()
	body := b.loopBody(latch, head)
	// When the loop has a second entry, the backward walk escapes past the
	// head and reaches the function entry. Such a retreating edge is not a
	// natural loop; leave it for the goto residue.
	if head != b.entry && body[b.entry] {
		return false
	}
	exit, hasExit := b.loopExit(latch, head, body)

	changed := false

	// In counted and iterator loops a source-level continue jumps to the
	// FORL/ITERL latch, not the head. Keep the lexically last edge into
	// the latch (the body's natural fallthrough) and divert the rest.
	if lr := b.regions[latch]; lr.term != nil &&
		(lr.term.Kind == ir.KindForLoop || lr.term.Kind == ir.KindIterLoop) {
		keep := -1
		for _, p := range b.preds[latch] {
			if p != latch && body[p] && (keep == -1 || b.regions[p].startPC > b.regions[keep].startPC) {
				keep = p
			}
		}
		for id := range body {
			if id == keep || id == latch {
				continue
			}
			r := b.regions[id]
			if r.term != nil && r.term.Kind != ir.KindBranch {
				continue
			}
			for _, e := range r.succs {
				if e.to == latch {
					if b.divert(r, e, &ast.Continue{PC: r.startPC}) {
						changed = true
					}
					break
				}
			}
		}
	}

	for id := range body {
		r := b.regions[id]
		// Loop terminators own their edges; and the head's and latch's
		// terminator edges are the loop mechanics themselves.
		if r.term != nil && r.term.Kind != ir.KindBranch {
			continue
		}
		edges := make([]edge, len(r.succs))
		copy(edges, r.succs)
		for _, e := range edges {
			var done bool
			switch {
			case hasExit && e.to == exit && id != head && id != latch:
				done = b.divert(r, e, &ast.Break{PC: r.startPC})
			case e.to == head && id != latch:
				done = b.divert(r, e, &ast.Continue{PC: r.startPC})
			}
			if done {
				changed = true
				break // divert rewrote r.succs; revisit on the next pass
			}
		}
	}
	return changed
}

// divert replaces one outgoing edge of r with a statement. A conditional
// edge becomes a guarded statement; an unconditional edge makes the region
// terminal.
func (b *builder) divert(r *region, e edge, stmt ast.Stmt) bool {
	switch e.cond {
	case "":
		if r.term != nil {
			return false
		}
		r.stmts = append(r.stmts, stmt)
		r.succs = nil
		return true
	case "T", "F":
		t, f, ok := r.branchEdges()
		if !ok {
			return false
		}
		cond, keep := r.cond, f
		if e.cond == "F" {
			cond, keep = ast.Not(r.cond), t
		}
		body := []ast.Stmt{stmt}
		if r.condCopy != nil && e.cond == "T" {
			body = append([]ast.Stmt{r.condCopy}, body...)
		}
		r.stmts = append(r.stmts, &ast.If{PC: r.term.PC, Cond: cond, Then: block(body)})
		if r.condCopy != nil && e.cond == "F" {
			r.stmts = append(r.stmts, r.condCopy)
		}
		r.term, r.cond, r.condCopy = nil, nil, nil
		r.succs = []edge{{to: keep}}
		return true
	}
	return false
}
