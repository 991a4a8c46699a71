package slots

import (
	"fmt"

	"unluajit/internal/ast"
	"unluajit/internal/bytecode"
	"unluajit/internal/diag"
)

// liveRecord returns the debug record naming slot at pc: the slot-th
// record whose live range covers pc, mirroring the VM's lookup.
func liveRecord(p *bytecode.Proto, slot, pc int) (bytecode.VarInfo, bool) {
	n := 0
	for _, v := range p.VarInfo {
		if pc >= v.StartPC && pc < v.EndPC {
			if n == slot {
				return v, true
			}
			n++
		}
	}
	return bytecode.VarInfo{}, false
}

// mergeBlock joins adjacent single-slot writes that the compiler emitted
// for one `local a, b = ...` declaration: consecutive slots, pure operands,
// and debug records opening at the same pc.
func (r *recoverer) mergeBlock(b *ast.Block) {
	if b == nil {
		return
	}
	for i := 0; i < len(b.Stmts); i++ {
		switch x := b.Stmts[i].(type) {
		case *ast.If:
			r.mergeBlock(x.Then)
			r.mergeBlock(x.Else)
		case *ast.While:
			r.mergeBlock(x.Body)
		case *ast.RepeatUntil:
			r.mergeBlock(x.Body)
		case *ast.NumericFor:
			r.mergeBlock(x.Body)
		case *ast.GenericFor:
			r.mergeBlock(x.Body)
		case *ast.Block:
			r.mergeBlock(x)
		case *ast.Assign:
			for r.mergeAt(b, i) {
			}
		}
	}
}

func (r *recoverer) mergeAt(b *ast.Block, i int) bool {
	first, ok := b.Stmts[i].(*ast.Assign)
	if !ok || len(first.LHS) != 1 || len(first.RHS) != 1 || !pure(first.RHS[0]) {
		return false
	}
	slot0, ok := first.LHS[0].(*ast.Slot)
	if !ok {
		return false
	}

	// Collect the run of consecutive-slot pure writes.
	run := []*ast.Assign{first}
	for j := i + 1; j < len(b.Stmts); j++ {
		a, ok := b.Stmts[j].(*ast.Assign)
		if !ok || len(a.LHS) != 1 || len(a.RHS) != 1 || !pure(a.RHS[0]) {
			break
		}
		s, ok := a.LHS[0].(*ast.Slot)
		if !ok || s.N != slot0.N+len(run) {
			break
		}
		run = append(run, a)
	}
	if len(run) < 2 {
		return false
	}

	// All live ranges of a declaration group open together, right after
	// the group's last store. Anything else is separate statements.
	end := run[len(run)-1].PC + 1
	for k := range run {
		rec, ok := liveRecord(r.p, slot0.N+k, end)
		if !ok || rec.StartPC != end || !validName(rec.Name) {
			return false
		}
	}

	for _, a := range run[1:] {
		first.LHS = append(first.LHS, a.LHS[0])
		first.RHS = append(first.RHS, a.RHS[0])
	}
	// Name lookup happens at PC+1; the whole group's records open after
	// its last store.
	first.PC = run[len(run)-1].PC
	b.Stmts = append(b.Stmts[:i+1], b.Stmts[i+len(run):]...)
	return true
}

// lookupName resolves a slot to its source name at pc, synthesizing one
// when debug info has no answer.
func (r *recoverer) lookupName(slot, pc int) string {
	if name, ok := r.p.LocalName(slot, pc); ok && validName(name) {
		return name
	}
	if name, ok := r.synth[slot]; ok {
		return name
	}
	name := fmt.Sprintf("v%d", slot)
	r.synth[slot] = name
	r.gapped = true
	if r.ds != nil && len(r.p.VarInfo) > 0 {
		r.ds.Addf(r.fnIdx, pc, diag.KindNameGap, "no debug name for slot %d; using %s", slot, name)
	}
	return name
}

func (r *recoverer) nameExpr(e ast.Expr, pc int) ast.Expr {
	if e == nil {
		return nil
	}
	switch x := e.(type) {
	case *ast.Slot:
		return &ast.Local{Name: r.lookupName(x.N, pc), Slot: x.N}
	case *ast.Bin:
		x.L, x.R = r.nameExpr(x.L, pc), r.nameExpr(x.R, pc)
	case *ast.Un:
		x.X = r.nameExpr(x.X, pc)
	case *ast.Index:
		x.X, x.Key = r.nameExpr(x.X, pc), r.nameExpr(x.Key, pc)
	case *ast.Call:
		x.Fn = r.nameExpr(x.Fn, pc)
		for i := range x.Args {
			x.Args[i] = r.nameExpr(x.Args[i], pc)
		}
	case *ast.Table:
		for i := range x.Fields {
			if x.Fields[i].Key != nil {
				x.Fields[i].Key = r.nameExpr(x.Fields[i].Key, pc)
			}
			x.Fields[i].Value = r.nameExpr(x.Fields[i].Value, pc)
		}
	}
	return e
}

// nameBlock rewrites every surviving slot reference into a named local and
// marks first writes as declarations.
func (r *recoverer) nameBlock(b *ast.Block, pc int) {
	if b == nil {
		return
	}
	for _, s := range b.Stmts {
		switch x := s.(type) {
		case *ast.Assign:
			pc = at(x.PC, pc)
			for i := range x.RHS {
				x.RHS[i] = r.nameExpr(x.RHS[i], pc)
			}
			fresh := false
			for i, l := range x.LHS {
				if slot, ok := l.(*ast.Slot); ok {
					// Writes open a new live range; the record starts
					// after the defining instruction.
					name := r.lookupName(slot.N, pc+1)
					x.LHS[i] = &ast.Local{Name: name, Slot: slot.N}
					if !r.declared[slot.N] {
						fresh = true
						r.declared[slot.N] = true
					}
				} else {
					x.LHS[i] = r.nameExpr(l, pc)
				}
			}
			x.Local = fresh

		case *ast.ExprStat:
			x.X = r.nameExpr(x.X, at(x.PC, pc))
		case *ast.Return:
			pc = at(x.PC, pc)
			for i := range x.Exprs {
				x.Exprs[i] = r.nameExpr(x.Exprs[i], pc)
			}
		case *ast.If:
			pc = at(x.PC, pc)
			x.Cond = r.nameExpr(x.Cond, pc)
			r.nameBlock(x.Then, pc)
			r.nameBlock(x.Else, pc)
		case *ast.While:
			pc = at(x.PC, pc)
			x.Cond = r.nameExpr(x.Cond, pc)
			r.nameBlock(x.Body, pc)
		case *ast.RepeatUntil:
			pc = at(x.PC, pc)
			r.nameBlock(x.Body, pc)
			x.Cond = r.nameExpr(x.Cond, pc)
		case *ast.NumericFor:
			pc = at(x.PC, pc)
			x.Start = r.nameExpr(x.Start, pc)
			x.Stop = r.nameExpr(x.Stop, pc)
			x.Step = r.nameExpr(x.Step, pc)
			x.Var = r.loopVar(x.Var, bodyPC(x.Body, pc+1))
			r.nameBlock(x.Body, pc)
		case *ast.GenericFor:
			pc = at(x.PC, pc)
			for i := range x.Exprs {
				x.Exprs[i] = r.nameExpr(x.Exprs[i], pc)
			}
			for i := range x.Vars {
				x.Vars[i] = r.loopVar(x.Vars[i], bodyPC(x.Body, pc))
			}
			r.nameBlock(x.Body, pc)
		case *ast.Block:
			r.nameBlock(x, pc)
		}
	}
}

// loopVar names a for-loop variable; its live range opens inside the body,
// so the lookup uses a body pc rather than the loop statement's own.
func (r *recoverer) loopVar(e ast.Expr, pc int) ast.Expr {
	slot, ok := e.(*ast.Slot)
	if !ok {
		return r.nameExpr(e, pc)
	}
	name := r.lookupName(slot.N, pc)
	r.declared[slot.N] = true
	return &ast.Local{Name: name, Slot: slot.N}
}

// bodyPC returns the pc of the first statement in b, or fallback.
func bodyPC(b *ast.Block, fallback int) int {
	if b != nil {
		for _, s := range b.Stmts {
			switch x := s.(type) {
			case *ast.Assign:
				return x.PC
			case *ast.ExprStat:
				return x.PC
			case *ast.Return:
				return x.PC
			case *ast.If:
				return x.PC
			}
		}
	}
	return fallback
}

func at(stmtPC, cur int) int {
	if stmtPC > 0 {
		return stmtPC
	}
	return cur
}
