package slots

import (
	"testing"

	"unluajit/internal/ast"
	"unluajit/internal/bytecode"
	"unluajit/internal/diag"
)

func stripped(nparams int) *bytecode.Proto {
	return &bytecode.Proto{NumParams: nparams, FrameSize: 8}
}

func local(s ast.Stmt) *ast.Assign { a, _ := s.(*ast.Assign); return a }

func TestRecover_InlinesSingleUseTemp(t *testing.T) {
	tree := &ast.Block{Stmts: []ast.Stmt{
		&ast.Assign{PC: 0,
			LHS: []ast.Expr{&ast.Slot{N: 2}},
			RHS: []ast.Expr{&ast.Bin{Kind: ast.BinAdd, L: &ast.Slot{N: 0}, R: &ast.Slot{N: 1}}}},
		&ast.Return{PC: 1, Exprs: []ast.Expr{&ast.Slot{N: 2}}},
	}}
	ds := &diag.Diags{}
	params := Recover(tree, stripped(2), 0, ds)

	if len(params) != 2 || params[0] != "a0" || params[1] != "a1" {
		t.Fatalf("params = %v, want [a0 a1]", params)
	}
	if len(tree.Stmts) != 1 {
		t.Fatalf("stmts = %d, want the temp folded into the return", len(tree.Stmts))
	}
	ret := tree.Stmts[0].(*ast.Return)
	b, ok := ret.Exprs[0].(*ast.Bin)
	if !ok || b.Kind != ast.BinAdd {
		t.Fatalf("return expr = %+v, want a0 + a1", ret.Exprs[0])
	}
	if l, ok := b.L.(*ast.Local); !ok || l.Name != "a0" {
		t.Errorf("left operand = %+v, want parameter a0", b.L)
	}
}

func TestRecover_KeepsMultiUseTemp(t *testing.T) {
	tree := &ast.Block{Stmts: []ast.Stmt{
		&ast.Assign{PC: 0,
			LHS: []ast.Expr{&ast.Slot{N: 1}},
			RHS: []ast.Expr{&ast.Slot{N: 0}}},
		&ast.Return{PC: 1, Exprs: []ast.Expr{
			&ast.Bin{Kind: ast.BinMul, L: &ast.Slot{N: 1}, R: &ast.Slot{N: 1}},
		}},
	}}
	Recover(tree, stripped(1), 0, nil)

	if len(tree.Stmts) != 2 {
		t.Fatalf("stmts = %d, want the two-use temp kept", len(tree.Stmts))
	}
	a := local(tree.Stmts[0])
	if a == nil || !a.Local {
		t.Fatalf("stmt 0 = %+v, want a local declaration", tree.Stmts[0])
	}
	if l := a.LHS[0].(*ast.Local); l.Name != "v1" {
		t.Errorf("name = %q, want synthesized v1", l.Name)
	}
}

func TestRecover_DoesNotInlinePastImpureStatement(t *testing.T) {
	// r1 = f(); g(); return r1 — folding r1 into the return would reorder
	// the two calls.
	tree := &ast.Block{Stmts: []ast.Stmt{
		&ast.Assign{PC: 0,
			LHS: []ast.Expr{&ast.Slot{N: 1}},
			RHS: []ast.Expr{&ast.Call{Fn: &ast.Global{Name: "f"}}}},
		&ast.ExprStat{PC: 1, X: &ast.Call{Fn: &ast.Global{Name: "g"}}},
		&ast.Return{PC: 2, Exprs: []ast.Expr{&ast.Slot{N: 1}}},
	}}
	Recover(tree, stripped(0), 0, nil)

	if len(tree.Stmts) != 3 {
		t.Fatalf("stmts = %d, want no inlining across the call", len(tree.Stmts))
	}
}

func TestRecover_StepsOverPureUnrelatedDef(t *testing.T) {
	// r1 = f(); r2 = 7; return r1, r2 — the pure r2 def does not block
	// folding r1 into the return.
	tree := &ast.Block{Stmts: []ast.Stmt{
		&ast.Assign{PC: 0,
			LHS: []ast.Expr{&ast.Slot{N: 1}},
			RHS: []ast.Expr{&ast.Call{Fn: &ast.Global{Name: "f"}}}},
		&ast.Assign{PC: 1,
			LHS: []ast.Expr{&ast.Slot{N: 2}},
			RHS: []ast.Expr{ast.Int(7)}},
		&ast.Return{PC: 2, Exprs: []ast.Expr{&ast.Slot{N: 1}, &ast.Slot{N: 2}}},
	}}
	Recover(tree, stripped(0), 0, nil)

	if len(tree.Stmts) != 1 {
		t.Fatalf("stmts = %d, want both temps folded into the return", len(tree.Stmts))
	}
	ret := tree.Stmts[0].(*ast.Return)
	if _, ok := ret.Exprs[0].(*ast.Call); !ok {
		t.Errorf("return expr 0 = %+v, want the call", ret.Exprs[0])
	}
}

func TestRecover_NamesFromDebugInfo(t *testing.T) {
	p := stripped(0)
	p.VarInfo = []bytecode.VarInfo{{Name: "x", StartPC: 1, EndPC: 3}}
	tree := &ast.Block{Stmts: []ast.Stmt{
		&ast.Assign{PC: 0, LHS: []ast.Expr{&ast.Slot{N: 0}}, RHS: []ast.Expr{ast.Int(5)}},
		&ast.Return{PC: 1, Exprs: []ast.Expr{&ast.Slot{N: 0}}},
	}}
	ds := &diag.Diags{}
	Recover(tree, p, 0, ds)

	if ds.Len() != 0 {
		t.Fatalf("diags = %v, want none", ds.Items())
	}
	a := local(tree.Stmts[0])
	if a == nil || !a.Local {
		t.Fatalf("stmt 0 = %+v, want local declaration", tree.Stmts[0])
	}
	if l := a.LHS[0].(*ast.Local); l.Name != "x" {
		t.Errorf("name = %q, want debug name x", l.Name)
	}
}

func TestRecover_StrippedEmitsGapDiag(t *testing.T) {
	tree := &ast.Block{Stmts: []ast.Stmt{
		&ast.Assign{PC: 0, LHS: []ast.Expr{&ast.Slot{N: 0}}, RHS: []ast.Expr{ast.Int(1)}},
		&ast.Return{PC: 1, Exprs: []ast.Expr{&ast.Slot{N: 0}, &ast.Slot{N: 0}}},
	}}
	ds := &diag.Diags{}
	Recover(tree, stripped(0), 0, ds)

	if ds.Len() != 1 {
		t.Fatalf("diags = %v, want one stripped-debug note", ds.Items())
	}
	d := ds.Items()[0]
	if d.Kind != diag.KindNameGap || d.PC != -1 {
		t.Errorf("diag = %+v, want whole-function name gap", d)
	}
}

func TestRecover_MergesDeclarationGroup(t *testing.T) {
	// local a, b = 1, 2: two stores, both live ranges opening after the
	// second one.
	p := stripped(0)
	p.VarInfo = []bytecode.VarInfo{
		{Name: "a", StartPC: 2, EndPC: 5},
		{Name: "b", StartPC: 2, EndPC: 5},
	}
	tree := &ast.Block{Stmts: []ast.Stmt{
		&ast.Assign{PC: 0, LHS: []ast.Expr{&ast.Slot{N: 0}}, RHS: []ast.Expr{ast.Int(1)}},
		&ast.Assign{PC: 1, LHS: []ast.Expr{&ast.Slot{N: 1}}, RHS: []ast.Expr{ast.Int(2)}},
		&ast.Return{PC: 2, Exprs: []ast.Expr{
			&ast.Bin{Kind: ast.BinAdd, L: &ast.Slot{N: 0}, R: &ast.Slot{N: 1}},
		}},
	}}
	Recover(tree, p, 0, nil)

	if len(tree.Stmts) != 2 {
		t.Fatalf("stmts = %d, want group merged into one declaration", len(tree.Stmts))
	}
	a := local(tree.Stmts[0])
	if a == nil || !a.Local || len(a.LHS) != 2 {
		t.Fatalf("stmt 0 = %+v, want local a, b = 1, 2", tree.Stmts[0])
	}
	if a.LHS[0].(*ast.Local).Name != "a" || a.LHS[1].(*ast.Local).Name != "b" {
		t.Errorf("names = %v %v, want a and b", a.LHS[0], a.LHS[1])
	}
}

func TestRecover_HoistsBranchDeclaredLocal(t *testing.T) {
	// r0 is first written inside both if arms but read after the join; its
	// declaration must move out of the arm.
	tree := &ast.Block{Stmts: []ast.Stmt{
		&ast.If{PC: 0,
			Cond: &ast.Bin{Kind: ast.BinLt, L: ast.Int(1), R: ast.Int(2)},
			Then: &ast.Block{Stmts: []ast.Stmt{
				&ast.Assign{PC: 2, LHS: []ast.Expr{&ast.Slot{N: 0}}, RHS: []ast.Expr{ast.Int(1)}},
			}},
			Else: &ast.Block{Stmts: []ast.Stmt{
				&ast.Assign{PC: 4, LHS: []ast.Expr{&ast.Slot{N: 0}}, RHS: []ast.Expr{ast.Int(2)}},
			}},
		},
		&ast.Return{PC: 5, Exprs: []ast.Expr{&ast.Slot{N: 0}}},
	}}
	Recover(tree, stripped(0), 0, nil)

	if len(tree.Stmts) != 3 {
		t.Fatalf("stmts = %d, want a hoisted declaration before the if", len(tree.Stmts))
	}
	decl := local(tree.Stmts[0])
	if decl == nil || !decl.Local || len(decl.RHS) != 0 {
		t.Fatalf("stmt 0 = %+v, want bare local declaration", tree.Stmts[0])
	}
	ifs, ok := tree.Stmts[1].(*ast.If)
	if !ok {
		t.Fatalf("stmt 1 = %+v, want the if", tree.Stmts[1])
	}
	arm := local(ifs.Then.Stmts[0])
	if arm == nil || arm.Local {
		t.Errorf("arm write = %+v, must not redeclare the hoisted local", ifs.Then.Stmts[0])
	}
}
