package callgraph

import (
	"testing"

	"unluajit/internal/bytecode"
	"unluajit/internal/ir"
)

const v = bytecode.V21

func TestBuildCallGraph(t *testing.T) {
	child := &bytecode.Proto{
		Index:     1,
		FrameSize: 1,
		Raw:       []uint32{bytecode.AD(v, bytecode.OpRET0, 0, 1)},
	}
	root := &bytecode.Proto{
		Flags:     bytecode.ProtoChild,
		FrameSize: 3,
		Raw: []uint32{
			bytecode.AD(v, bytecode.OpFNEW, 0, 0),
			bytecode.AD(v, bytecode.OpGGET, 1, 1),
			bytecode.AD(v, bytecode.OpMOV, 2, 0),
			bytecode.ABC(v, bytecode.OpCALL, 1, 1, 2),
			bytecode.AD(v, bytecode.OpRET0, 0, 1),
		},
		GC: []bytecode.GCConst{
			{Kind: bytecode.GCChild, Child: child},
			{Kind: bytecode.GCString, Str: "print"},
		},
		Children: []*bytecode.Proto{child},
	}

	rootFn, err := ir.Build(root, v)
	if err != nil {
		t.Fatal(err)
	}
	childFn, err := ir.Build(child, v)
	if err != nil {
		t.Fatal(err)
	}

	g := BuildCallGraph([]FuncInfo{
		{Name: "main", Fn: rootFn},
		{Name: "helper", Fn: childFn},
	})

	if len(g.Nodes) != 2 {
		t.Fatalf("nodes = %v, want both prototypes", g.Nodes)
	}
	want := map[[2]string]bool{
		{"main", "helper"}: false, // FNEW edge
		{"main", "print"}:  false, // resolved global call
	}
	for _, e := range g.Edges {
		if _, ok := want[[2]string{e.Caller, e.Callee}]; ok {
			want[[2]string{e.Caller, e.Callee}] = true
		}
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("missing edge %s -> %s in %v", k[0], k[1], g.Edges)
		}
	}
}

func TestBuildCallGraph_SkipsUnresolvedCallees(t *testing.T) {
	// The callee register is a plain move, not a visible load; no edge.
	p := &bytecode.Proto{
		NumParams: 1,
		FrameSize: 2,
		Raw: []uint32{
			bytecode.AD(v, bytecode.OpMOV, 1, 0),
			bytecode.ABC(v, bytecode.OpCALL, 1, 1, 1),
			bytecode.AD(v, bytecode.OpRET0, 0, 1),
		},
	}
	fn, err := ir.Build(p, v)
	if err != nil {
		t.Fatal(err)
	}

	g := BuildCallGraph([]FuncInfo{{Name: "main", Fn: fn}})
	if len(g.Edges) != 0 {
		t.Errorf("edges = %v, want none for an unresolved callee", g.Edges)
	}
}
