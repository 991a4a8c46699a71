package structure

import (
	"testing"

	"unluajit/internal/ast"
	"unluajit/internal/bytecode"
	"unluajit/internal/cfg"
	"unluajit/internal/diag"
	"unluajit/internal/ir"
)

const v = bytecode.V21

// structured runs the full lowering on raw instruction words: IR build,
// CFG analysis, then region reduction.
func structured(t *testing.T, frame int, raw ...uint32) (*ast.Block, *diag.Diags) {
	t.Helper()
	p := &bytecode.Proto{FrameSize: frame, Raw: raw}
	f, err := ir.Build(p, v)
	if err != nil {
		t.Fatal(err)
	}
	ds := &diag.Diags{}
	g := cfg.Analyze(f, 0, ds)
	return Build(f, g, v, 0, ds), ds
}

func count[T ast.Stmt](tree *ast.Block) []T {
	var out []T
	ast.Walk(tree, func(s ast.Stmt) {
		if x, ok := s.(T); ok {
			out = append(out, x)
		}
	})
	return out
}

func TestBuild_TrivialIsFlat(t *testing.T) {
	tree, ds := structured(t, 2,
		bytecode.AD(v, bytecode.OpKSHORT, 0, 5),
		bytecode.AD(v, bytecode.OpKSHORT, 1, 6),
		bytecode.AD(v, bytecode.OpRET1, 0, 2),
	)
	if ds.Len() != 0 {
		t.Fatalf("diags = %v, want none", ds.Items())
	}
	if len(tree.Stmts) != 3 {
		t.Fatalf("stmts = %d, want the three lifted statements", len(tree.Stmts))
	}
	for _, s := range tree.Stmts {
		switch s.(type) {
		case *ast.Assign, *ast.Return:
		default:
			t.Errorf("unexpected control statement %T in a straight-line function", s)
		}
	}
}

func TestBuild_Diamond(t *testing.T) {
	// if r0 < r1 then r2 = 2 else r2 = 1 end; return r2
	tree, ds := structured(t, 3,
		bytecode.AD(v, bytecode.OpISLT, 0, 1),
		bytecode.AD(v, bytecode.OpJMP, 2, bytecode.Jump(1, 4)),
		bytecode.AD(v, bytecode.OpKSHORT, 2, 1),
		bytecode.AD(v, bytecode.OpJMP, 2, bytecode.Jump(3, 5)),
		bytecode.AD(v, bytecode.OpKSHORT, 2, 2),
		bytecode.AD(v, bytecode.OpRET1, 2, 2),
	)
	if ds.Len() != 0 {
		t.Fatalf("diags = %v, want none", ds.Items())
	}

	ifs := count[*ast.If](tree)
	if len(ifs) != 1 {
		t.Fatalf("if count = %d, want exactly 1", len(ifs))
	}
	if ifs[0].Else == nil {
		t.Error("diamond lost its else arm")
	}
	if n := len(count[*ast.Goto](tree)); n != 0 {
		t.Errorf("gotos = %d, want 0", n)
	}
	if n := len(count[*ast.Return](tree)); n != 1 {
		t.Errorf("returns = %d, want 1", n)
	}
}

func TestBuild_NumericFor(t *testing.T) {
	// for i = 1, 10 do r4 = 7 end
	tree, ds := structured(t, 5,
		bytecode.AD(v, bytecode.OpKSHORT, 0, 1),
		bytecode.AD(v, bytecode.OpKSHORT, 1, 10),
		bytecode.AD(v, bytecode.OpKSHORT, 2, 1),
		bytecode.AD(v, bytecode.OpFORI, 0, bytecode.Jump(3, 6)),
		bytecode.AD(v, bytecode.OpKSHORT, 4, 7),
		bytecode.AD(v, bytecode.OpFORL, 0, bytecode.Jump(5, 4)),
		bytecode.AD(v, bytecode.OpRET0, 0, 1),
	)
	if ds.Len() != 0 {
		t.Fatalf("diags = %v, want none", ds.Items())
	}

	fors := count[*ast.NumericFor](tree)
	if len(fors) != 1 {
		t.Fatalf("numeric-for count = %d, want 1", len(fors))
	}
	f := fors[0]
	if f.Body == nil || len(f.Body.Stmts) != 1 {
		t.Fatalf("loop body = %+v, want one statement", f.Body)
	}
	if s, ok := f.Var.(*ast.Slot); !ok || s.N != 3 {
		t.Errorf("loop var = %+v, want slot 3", f.Var)
	}
	// A counted loop must never degrade into a generic while reading.
	if n := len(count[*ast.While](tree)); n != 0 {
		t.Errorf("whiles = %d, want 0", n)
	}
}

func TestBuild_While(t *testing.T) {
	// while r0 < r1 do r0 = r0 + r2 end
	tree, ds := structured(t, 3,
		bytecode.AD(v, bytecode.OpISGE, 0, 1),
		bytecode.AD(v, bytecode.OpJMP, 2, bytecode.Jump(1, 4)),
		bytecode.ABC(v, bytecode.OpADDVV, 0, 0, 2),
		bytecode.AD(v, bytecode.OpJMP, 2, bytecode.Jump(3, 0)),
		bytecode.AD(v, bytecode.OpRET0, 0, 1),
	)
	if ds.Len() != 0 {
		t.Fatalf("diags = %v, want none", ds.Items())
	}

	whiles := count[*ast.While](tree)
	if len(whiles) != 1 {
		t.Fatalf("while count = %d, want 1", len(whiles))
	}
	w := whiles[0]
	// ISGE exits on taken, so the loop condition is the inverted compare.
	cond, ok := w.Cond.(*ast.Bin)
	if !ok || cond.Kind != ast.BinLt {
		t.Errorf("cond = %+v, want slot0 < slot1", w.Cond)
	}
	if len(w.Body.Stmts) != 1 {
		t.Errorf("body stmts = %d, want 1", len(w.Body.Stmts))
	}
	// The test must stay ahead of the body; a tail-tested reading would
	// run the body once even when the condition starts out false.
	if n := len(count[*ast.RepeatUntil](tree)); n != 0 {
		t.Errorf("repeats = %d, want 0", n)
	}
}

func TestBuild_ShortCircuitAnd(t *testing.T) {
	// if r0 < r1 and r2 < r3 then r4 = 1 end
	tree, ds := structured(t, 5,
		bytecode.AD(v, bytecode.OpISGE, 0, 1),
		bytecode.AD(v, bytecode.OpJMP, 4, bytecode.Jump(1, 5)),
		bytecode.AD(v, bytecode.OpISGE, 2, 3),
		bytecode.AD(v, bytecode.OpJMP, 4, bytecode.Jump(3, 5)),
		bytecode.AD(v, bytecode.OpKSHORT, 4, 1),
		bytecode.AD(v, bytecode.OpRET0, 0, 1),
	)
	if ds.Len() != 0 {
		t.Fatalf("diags = %v, want none", ds.Items())
	}

	ifs := count[*ast.If](tree)
	if len(ifs) != 1 {
		t.Fatalf("if count = %d, want the cascade folded into 1", len(ifs))
	}
	cond, ok := ifs[0].Cond.(*ast.Bin)
	if !ok || cond.Kind != ast.BinAnd {
		t.Fatalf("cond = %+v, want a compound and", ifs[0].Cond)
	}
	l, lok := cond.L.(*ast.Bin)
	r, rok := cond.R.(*ast.Bin)
	if !lok || l.Kind != ast.BinLt || !rok || r.Kind != ast.BinLt {
		t.Errorf("cond arms = %+v / %+v, want both < compares", cond.L, cond.R)
	}
	if n := len(count[*ast.Goto](tree)); n != 0 {
		t.Errorf("gotos = %d, want 0", n)
	}
}

func TestBuild_GenericFor(t *testing.T) {
	// for r3, r4 in r0, r1, r2 do r5 = 7 end
	tree, ds := structured(t, 6,
		bytecode.AD(v, bytecode.OpKSHORT, 0, 1),
		bytecode.AD(v, bytecode.OpKSHORT, 1, 2),
		bytecode.AD(v, bytecode.OpKSHORT, 2, 3),
		bytecode.AD(v, bytecode.OpJMP, 3, bytecode.Jump(3, 5)),
		bytecode.AD(v, bytecode.OpKSHORT, 5, 7),
		bytecode.ABC(v, bytecode.OpITERC, 3, 3, 3),
		bytecode.AD(v, bytecode.OpITERL, 3, bytecode.Jump(6, 4)),
		bytecode.AD(v, bytecode.OpRET0, 0, 1),
	)
	if ds.Len() != 0 {
		t.Fatalf("diags = %v, want none", ds.Items())
	}

	fors := count[*ast.GenericFor](tree)
	if len(fors) != 1 {
		t.Fatalf("generic-for count = %d, want 1", len(fors))
	}
	f := fors[0]
	if len(f.Vars) != 2 {
		t.Fatalf("loop vars = %d, want 2", len(f.Vars))
	}
	if s, ok := f.Vars[0].(*ast.Slot); !ok || s.N != 3 {
		t.Errorf("first var = %+v, want slot 3", f.Vars[0])
	}
	if len(f.Exprs) != 3 {
		t.Fatalf("iterator exprs = %d, want the full triple", len(f.Exprs))
	}
	if s, ok := f.Exprs[0].(*ast.Slot); !ok || s.N != 0 {
		t.Errorf("iterator fn = %+v, want slot 0", f.Exprs[0])
	}
	if f.Body == nil || len(f.Body.Stmts) != 1 {
		t.Fatalf("loop body = %+v, want one statement", f.Body)
	}
	if n := len(count[*ast.While](tree)); n != 0 {
		t.Errorf("whiles = %d, want 0", n)
	}
}

func TestBuild_WhileWithCopiedTest(t *testing.T) {
	// ISTC performs its copy on the taken edge, which here is the loop
	// exit, so the copy must land inside the break guard.
	tree, ds := structured(t, 3,
		bytecode.AD(v, bytecode.OpISTC, 2, 0),
		bytecode.AD(v, bytecode.OpJMP, 3, bytecode.Jump(1, 4)),
		bytecode.ABC(v, bytecode.OpADDVV, 1, 1, 1),
		bytecode.AD(v, bytecode.OpJMP, 3, bytecode.Jump(3, 0)),
		bytecode.AD(v, bytecode.OpRET0, 0, 1),
	)
	if ds.Len() != 0 {
		t.Fatalf("diags = %v, want none", ds.Items())
	}

	whiles := count[*ast.While](tree)
	if len(whiles) != 1 {
		t.Fatalf("while count = %d, want 1", len(whiles))
	}
	w := whiles[0]
	if c, ok := w.Cond.(*ast.Const); !ok || c.Kind != ast.ConstTrue {
		t.Fatalf("cond = %+v, want the while-true form", w.Cond)
	}
	if len(w.Body.Stmts) != 2 {
		t.Fatalf("body stmts = %d, want guard plus body", len(w.Body.Stmts))
	}
	guard, ok := w.Body.Stmts[0].(*ast.If)
	if !ok || len(guard.Then.Stmts) != 2 {
		t.Fatalf("guard = %+v, want copy and break in its arm", w.Body.Stmts[0])
	}
	cp, ok := guard.Then.Stmts[0].(*ast.Assign)
	if !ok {
		t.Fatalf("guard arm head = %T, want the test copy", guard.Then.Stmts[0])
	}
	if s, ok := cp.LHS[0].(*ast.Slot); !ok || s.N != 2 {
		t.Errorf("copy target = %+v, want slot 2", cp.LHS[0])
	}
	if _, ok := guard.Then.Stmts[1].(*ast.Break); !ok {
		t.Errorf("guard arm tail = %T, want break", guard.Then.Stmts[1])
	}
	if _, ok := w.Body.Stmts[1].(*ast.Assign); !ok {
		t.Errorf("loop body tail = %T, want the body assign", w.Body.Stmts[1])
	}
}

func TestBuild_ConditionalBreak(t *testing.T) {
	// while r0 < r1 do if r2 < r3 then break end; r0 = r0 + r2 end
	tree, ds := structured(t, 4,
		bytecode.AD(v, bytecode.OpISGE, 0, 1),
		bytecode.AD(v, bytecode.OpJMP, 4, bytecode.Jump(1, 6)),
		bytecode.AD(v, bytecode.OpISLT, 2, 3),
		bytecode.AD(v, bytecode.OpJMP, 4, bytecode.Jump(3, 6)),
		bytecode.ABC(v, bytecode.OpADDVV, 0, 0, 2),
		bytecode.AD(v, bytecode.OpJMP, 4, bytecode.Jump(5, 0)),
		bytecode.AD(v, bytecode.OpRET0, 0, 1),
	)
	if ds.Len() != 0 {
		t.Fatalf("diags = %v, want none", ds.Items())
	}

	if n := len(count[*ast.While](tree)); n != 1 {
		t.Fatalf("while count = %d, want 1", n)
	}
	breaks := count[*ast.Break](tree)
	if len(breaks) != 1 {
		t.Fatalf("break count = %d, want 1", len(breaks))
	}
	checkLoopScoping(t, tree, 0)
}

// checkLoopScoping fails on any break or continue outside a loop body.
func checkLoopScoping(t *testing.T, b *ast.Block, depth int) {
	t.Helper()
	if b == nil {
		return
	}
	for _, s := range b.Stmts {
		switch x := s.(type) {
		case *ast.Break:
			if depth == 0 {
				t.Error("break outside any loop")
			}
		case *ast.Continue:
			if depth == 0 {
				t.Error("continue outside any loop")
			}
		case *ast.While:
			checkLoopScoping(t, x.Body, depth+1)
		case *ast.RepeatUntil:
			checkLoopScoping(t, x.Body, depth+1)
		case *ast.NumericFor:
			checkLoopScoping(t, x.Body, depth+1)
		case *ast.GenericFor:
			checkLoopScoping(t, x.Body, depth+1)
		case *ast.If:
			checkLoopScoping(t, x.Then, depth)
			checkLoopScoping(t, x.Else, depth)
		case *ast.Block:
			checkLoopScoping(t, x, depth)
		}
	}
}

func TestBuild_IrreducibleResidue(t *testing.T) {
	// Two blocks jumping into each other, both entered from the branch:
	// a loop with two entries has no structured rendering.
	tree, ds := structured(t, 3,
		bytecode.AD(v, bytecode.OpISLT, 0, 1),
		bytecode.AD(v, bytecode.OpJMP, 2, bytecode.Jump(1, 4)),
		bytecode.AD(v, bytecode.OpKSHORT, 2, 1),
		bytecode.AD(v, bytecode.OpJMP, 2, bytecode.Jump(3, 4)),
		bytecode.AD(v, bytecode.OpKSHORT, 2, 2),
		bytecode.AD(v, bytecode.OpJMP, 2, bytecode.Jump(5, 2)),
	)

	found := false
	for _, d := range ds.Items() {
		if d.Kind == diag.KindIrreducible {
			found = true
		}
	}
	if !found {
		t.Fatal("expected an irreducible-control-flow diagnostic")
	}
	if n := len(count[*ast.Goto](tree)); n == 0 {
		t.Error("residue should fall back to gotos")
	}
	if n := len(count[*ast.Label](tree)); n == 0 {
		t.Error("residue should emit labels for goto targets")
	}
}

func TestBuild_Repeat(t *testing.T) {
	// repeat r0 = r0 + r2 until r0 >= r1
	tree, ds := structured(t, 3,
		bytecode.ABC(v, bytecode.OpADDVV, 0, 0, 2),
		bytecode.AD(v, bytecode.OpISLT, 0, 1),
		bytecode.AD(v, bytecode.OpJMP, 3, bytecode.Jump(2, 0)),
		bytecode.AD(v, bytecode.OpRET0, 0, 1),
	)
	if ds.Len() != 0 {
		t.Fatalf("diags = %v, want none", ds.Items())
	}

	reps := count[*ast.RepeatUntil](tree)
	if len(reps) != 1 {
		t.Fatalf("repeat count = %d, want 1", len(reps))
	}
	// Back edge on the taken side: until is the inverted compare.
	cond, ok := reps[0].Cond.(*ast.Bin)
	if !ok || cond.Kind != ast.BinGe {
		t.Errorf("until = %+v, want slot0 >= slot1", reps[0].Cond)
	}
}

func TestSimplify_FoldsWhileTrueGuard(t *testing.T) {
	cond := &ast.Bin{Kind: ast.BinLt, L: &ast.Slot{N: 0}, R: &ast.Slot{N: 1}}
	w := &ast.While{
		Cond: ast.True(),
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.If{Cond: ast.Not(cond), Then: &ast.Block{Stmts: []ast.Stmt{&ast.Break{}}}},
			&ast.Assign{LHS: []ast.Expr{&ast.Slot{N: 0}}, RHS: []ast.Expr{ast.Int(1)}},
		}},
	}
	tree := &ast.Block{Stmts: []ast.Stmt{w}}

	Simplify(tree)
	Simplify(tree) // folding is a fixed point; a second run must not change it

	got, ok := w.Cond.(*ast.Bin)
	if !ok || got.Kind != ast.BinLt {
		t.Fatalf("cond = %+v, want the guard lifted back", w.Cond)
	}
	if len(w.Body.Stmts) != 1 {
		t.Errorf("body stmts = %d, want guard removed", len(w.Body.Stmts))
	}
}
