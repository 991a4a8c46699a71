package structure

import (
	"unluajit/internal/ast"
	"unluajit/internal/bytecode"
	"unluajit/internal/ir"
)

// loopIdiom matches one compiler loop shape against a candidate header
// region. Matchers are ordered most-specific first: the counted and
// iterator forms carry dedicated terminators and always win over a generic
// while reading of the same region pair.
type loopIdiom struct {
	name  string
	match func(b *builder, id int) (apply func(), ok bool)
}

// idiomsFor returns the loop idiom table for a dump version. Both
// supported encodings emit the same shapes today; the table is keyed by
// version so a future format can swap entries without touching the
// matcher loop.
func idiomsFor(v bytecode.Version) []loopIdiom {
	_ = v
	return []loopIdiom{
		{name: "numeric for", match: matchNumericFor},
		{name: "generic for", match: matchGenericFor},
		{name: "while", match: matchWhile},
		{name: "repeat", match: matchRepeat},
		{name: "forever", match: matchForever},
	}
}

// matchNumericFor matches FORI prep falling into a body region whose
// ForLoop terminator loops back onto itself.
//
//	A: ... FORI  T→exit F→B
//	B: body FORL T→B    F→exit
func matchNumericFor(b *builder, id int) (func(), bool) {
	a := b.regions[id]
	if a == nil || a.term == nil || a.term.Kind != ir.KindForPrep {
		return nil, false
	}
	var bodyID, exit int
	for _, e := range a.succs {
		switch e.cond {
		case "T":
			exit = e.to
		case "F":
			bodyID = e.to
		}
	}
	body := b.regions[bodyID]
	if body == nil || body.term == nil || body.term.Kind != ir.KindForLoop {
		return nil, false
	}
	selfOK, exitOK := false, false
	for _, e := range body.succs {
		switch e.cond {
		case "T":
			selfOK = e.to == bodyID
		case "F":
			exitOK = e.to == exit
		}
	}
	if !selfOK || !exitOK {
		return nil, false
	}
	for _, p := range b.preds[bodyID] {
		if p != id && p != bodyID {
			return nil, false
		}
	}
	return func() {
		base := a.term.Base
		a.stmts = append(a.stmts, &ast.NumericFor{
			PC:    a.term.PC,
			Var:   &ast.Slot{N: base + 3},
			Start: &ast.Slot{N: base},
			Stop:  &ast.Slot{N: base + 1},
			Step:  &ast.Slot{N: base + 2},
			Body:  block(body.stmts),
		})
		a.term = nil
		a.succs = []edge{{to: exit}}
		b.remove(bodyID, id)
	}, true
}

// matchGenericFor matches the ITERC/ITERL pair: the header region ends
// with the lifted iterator call followed by an IterLoop terminator whose
// taken edge re-enters the body (or the header itself when the body is
// empty).
func matchGenericFor(b *builder, id int) (func(), bool) {
	h := b.regions[id]
	if h == nil || h.term == nil || h.term.Kind != ir.KindIterLoop || len(h.stmts) == 0 {
		return nil, false
	}
	iter, ok := h.stmts[len(h.stmts)-1].(*ast.Assign)
	if !ok || len(iter.RHS) != 1 {
		return nil, false
	}
	call, ok := iter.RHS[0].(*ast.Call)
	if !ok {
		return nil, false
	}
	var bodyID, exit int
	for _, e := range h.succs {
		switch e.cond {
		case "T":
			bodyID = e.to
		case "F":
			exit = e.to
		}
	}

	mk := func(bodyStmts []ast.Stmt) *ast.GenericFor {
		return &ast.GenericFor{
			PC:    h.term.PC,
			Vars:  iter.LHS,
			Exprs: append([]ast.Expr{call.Fn}, call.Args...),
			Body:  block(bodyStmts),
		}
	}

	if bodyID == id {
		// Empty body: ITERL jumps straight back to its own ITERC.
		return func() {
			h.stmts = append(h.stmts[:len(h.stmts)-1], mk(nil))
			h.term = nil
			h.succs = []edge{{to: exit}}
		}, true
	}

	body := b.regions[bodyID]
	if body == nil || !b.onlyPred(bodyID, id) {
		return nil, false
	}
	if next, ok := body.outEdge(); !ok || next != id {
		return nil, false
	}
	return func() {
		h.stmts = append(h.stmts[:len(h.stmts)-1], mk(body.stmts))
		h.term = nil
		h.succs = []edge{{to: exit}}
		b.remove(bodyID, id)
	}, true
}

// matchWhile matches a conditional header with a single-region body
// falling back to it. When the header evaluates work before the test, the
// loop is emitted in `while true do ... if not c then break end` form so
// the per-iteration work stays inside the body.
func matchWhile(b *builder, id int) (func(), bool) {
	h := b.regions[id]
	if h == nil {
		return nil, false
	}
	t, f, ok := h.branchEdges()
	if !ok || t == id || f == id || t == f {
		return nil, false
	}
	bodyID, exit, onTaken := f, t, false
	if fits := b.whileBody(t, id); fits {
		bodyID, exit, onTaken = t, f, true
	} else if !b.whileBody(f, id) {
		return nil, false
	}
	body := b.regions[bodyID]

	return func() {
		cond := h.cond
		if !onTaken {
			cond = ast.Not(cond)
		}
		var w *ast.While
		if len(h.stmts) == 0 && h.condCopy == nil {
			w = &ast.While{PC: h.term.PC, Cond: cond, Body: block(body.stmts)}
			h.stmts = []ast.Stmt{w}
		} else {
			guard := &ast.If{PC: h.term.PC, Cond: ast.Not(cond),
				Then: block([]ast.Stmt{&ast.Break{PC: h.term.PC}})}
			inner := append(h.stmts, guard)
			if h.condCopy != nil {
				// ISTC/ISFC perform the copy on the taken edge. With the
				// body on the fallthrough edge the taken edge is the
				// exit, so the copy precedes the break.
				if onTaken {
					inner = append(inner, h.condCopy)
				} else {
					guard.Then.Stmts = []ast.Stmt{h.condCopy, &ast.Break{PC: h.term.PC}}
				}
			}
			inner = append(inner, body.stmts...)
			w = &ast.While{PC: h.term.PC, Cond: ast.True(), Body: block(inner)}
			h.stmts = []ast.Stmt{w}
		}
		h.term, h.cond, h.condCopy = nil, nil, nil
		h.succs = []edge{{to: exit}}
		b.remove(bodyID, id)
	}, true
}

// whileBody reports whether id is a reduced body region whose only exit
// falls back to the header.
func (b *builder) whileBody(id, header int) bool {
	r := b.regions[id]
	if r == nil || !b.onlyPred(id, header) {
		return false
	}
	next, ok := r.outEdge()
	return ok && next == header
}

// matchRepeat matches a tail-tested self loop: a single region whose
// conditional terminator branches back to itself.
func matchRepeat(b *builder, id int) (func(), bool) {
	h := b.regions[id]
	if h == nil {
		return nil, false
	}
	t, f, ok := h.branchEdges()
	if !ok || (t != id && f != id) || t == f {
		return nil, false
	}
	return func() {
		until, exit := ast.Not(h.cond), f
		if f == id {
			until, exit = h.cond, t
		}
		stmts := h.stmts
		if h.condCopy != nil {
			stmts = append(stmts, h.condCopy)
		}
		h.stmts = []ast.Stmt{&ast.RepeatUntil{PC: h.term.PC, Body: block(stmts), Cond: until}}
		h.term, h.cond, h.condCopy = nil, nil, nil
		h.succs = []edge{{to: exit}}
	}, true
}

// matchForever matches an unconditional self loop.
func matchForever(b *builder, id int) (func(), bool) {
	h := b.regions[id]
	if h == nil {
		return nil, false
	}
	next, ok := h.outEdge()
	if !ok || next != id {
		return nil, false
	}
	return func() {
		h.stmts = []ast.Stmt{&ast.While{PC: h.startPC, Cond: ast.True(), Body: block(h.stmts)}}
		h.succs = nil
	}, true
}
