package cfgdot

import (
	"testing"

	"unluajit/internal/bytecode"
	"unluajit/internal/ir"
)

const v = bytecode.V21

func TestBuildFuncCFG(t *testing.T) {
	// if r0 < r1 then io.write(r0) end
	p := &bytecode.Proto{
		NumParams: 2,
		FrameSize: 4,
		Raw: []uint32{
			bytecode.AD(v, bytecode.OpISGE, 0, 1),
			bytecode.AD(v, bytecode.OpJMP, 2, bytecode.Jump(1, 6)),
			bytecode.AD(v, bytecode.OpGGET, 2, 0),
			bytecode.ABC(v, bytecode.OpTGETS, 2, 2, 1),
			bytecode.AD(v, bytecode.OpMOV, 3, 0),
			bytecode.ABC(v, bytecode.OpCALL, 2, 1, 2),
			bytecode.AD(v, bytecode.OpRET0, 0, 1),
		},
		GC: []bytecode.GCConst{
			{Kind: bytecode.GCString, Str: "io"},
			{Kind: bytecode.GCString, Str: "write"},
		},
	}
	fn, err := ir.Build(p, v)
	if err != nil {
		t.Fatal(err)
	}

	cfg := BuildFuncCFG(fn, "chunk:1")
	if cfg.Name != "chunk:1" {
		t.Errorf("name = %q", cfg.Name)
	}
	if len(cfg.Blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(cfg.Blocks))
	}

	entry := cfg.Blocks[0]
	if len(entry.Succs) != 2 {
		t.Fatalf("entry succs = %d, want 2", len(entry.Succs))
	}
	conds := map[string]bool{}
	for _, s := range entry.Succs {
		conds[s.Cond] = true
	}
	if !conds["T"] || !conds["F"] {
		t.Errorf("entry succ conds = %v, want T and F", conds)
	}

	var callee string
	for _, b := range cfg.Blocks {
		for _, c := range b.Calls {
			callee = c.Callee
		}
	}
	if callee != "io.write" {
		t.Errorf("call site callee = %q, want io.write resolved from the loads", callee)
	}

	last := cfg.Blocks[len(cfg.Blocks)-1]
	if !last.Term {
		t.Error("return block should be terminal")
	}
}

func TestFuncName(t *testing.T) {
	if got := FuncName("", 2, 10); got != "proto2" {
		t.Errorf("anonymous = %q", got)
	}
	if got := FuncName("@a.lua", 0, 1); got != "@a.lua:1" {
		t.Errorf("with line = %q", got)
	}
	if got := FuncName("@a.lua", 3, 0); got != "@a.lua#3" {
		t.Errorf("stripped = %q", got)
	}
}
