package ir

import (
	"errors"
	"testing"

	"unluajit/internal/bytecode"
)

const v = bytecode.V21

// proto builds a synthetic prototype around raw instruction words.
func proto(frame int, raw ...uint32) *bytecode.Proto {
	return &bytecode.Proto{FrameSize: frame, Raw: raw}
}

func TestBuild_Linear(t *testing.T) {
	f, err := Build(proto(2,
		bytecode.AD(v, bytecode.OpKSHORT, 0, 42),
		bytecode.AD(v, bytecode.OpRET1, 0, 2),
	), v)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(f.Blocks))
	}
	b := f.Blocks[0]
	if b.StartPC != 0 || b.EndPC != 2 {
		t.Errorf("block range = [%d,%d), want [0,2)", b.StartPC, b.EndPC)
	}
	if term := b.Term(); term == nil || term.Kind != KindReturn {
		t.Fatalf("terminator = %+v, want Return", term)
	}
	if len(b.Succs) != 0 {
		t.Errorf("succs = %d, want 0", len(b.Succs))
	}
}

func TestBuild_FusedComparison(t *testing.T) {
	// 0: ISLT r0, r1   (fused with 1)
	// 1: JMP => 4
	// 2: KSHORT r2, 1
	// 3: RET1 r2
	// 4: RET0          (branch target)
	f, err := Build(proto(3,
		bytecode.AD(v, bytecode.OpISLT, 0, 1),
		bytecode.AD(v, bytecode.OpJMP, 2, bytecode.Jump(1, 4)),
		bytecode.AD(v, bytecode.OpKSHORT, 2, 1),
		bytecode.AD(v, bytecode.OpRET1, 2, 2),
		bytecode.AD(v, bytecode.OpRET0, 0, 1),
	), v)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(f.Blocks))
	}

	b0 := f.Blocks[0]
	if len(b0.Stmts) != 1 {
		t.Fatalf("block 0 stmts = %d, want 1 (fused pair)", len(b0.Stmts))
	}
	br := b0.Stmts[0]
	if br.Kind != KindBranch || br.Cmp != CmpLT {
		t.Fatalf("stmt = %+v, want Branch(<)", br)
	}
	if br.X != Reg(0) || br.Y != Reg(1) {
		t.Errorf("operands = %v %v, want r0 r1", br.X, br.Y)
	}
	// Fused pair covers both pcs.
	if b0.StartPC != 0 || b0.EndPC != 2 {
		t.Errorf("block 0 range = [%d,%d), want [0,2)", b0.StartPC, b0.EndPC)
	}

	var hasT, hasF bool
	for _, s := range b0.Succs {
		if s.Cond == "T" && f.Blocks[s.Block].StartPC == 4 {
			hasT = true
		}
		if s.Cond == "F" && f.Blocks[s.Block].StartPC == 2 {
			hasF = true
		}
	}
	if !hasT || !hasF {
		t.Errorf("block 0 succs = %+v, want T→pc4 and F→pc2", b0.Succs)
	}
}

func TestBuild_ComparisonWithoutJMP(t *testing.T) {
	_, err := Build(proto(2,
		bytecode.AD(v, bytecode.OpISLT, 0, 1),
		bytecode.AD(v, bytecode.OpRET0, 0, 1),
	), v)
	var fe *bytecode.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FormatError", err)
	}
}

func TestBuild_TargetSplitsFusedPair(t *testing.T) {
	// JMP at pc 3 targets pc 1, the JMP half of the ISLT pair.
	_, err := Build(proto(2,
		bytecode.AD(v, bytecode.OpISLT, 0, 1),
		bytecode.AD(v, bytecode.OpJMP, 2, bytecode.Jump(1, 3)),
		bytecode.AD(v, bytecode.OpRET0, 0, 1),
		bytecode.AD(v, bytecode.OpJMP, 2, bytecode.Jump(3, 1)),
	), v)
	var fe *bytecode.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FormatError", err)
	}
}

func TestBuild_FallsOffEnd(t *testing.T) {
	_, err := Build(proto(2,
		bytecode.AD(v, bytecode.OpKSHORT, 0, 1),
	), v)
	var fe *bytecode.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FormatError", err)
	}
}

func TestBuild_UnsupportedOpcode(t *testing.T) {
	_, err := Build(proto(2, 0xff), v)
	var oe *bytecode.OpcodeError
	if !errors.As(err, &oe) {
		t.Fatalf("err = %v, want OpcodeError", err)
	}
}

func TestBuild_NumericForShape(t *testing.T) {
	// 0: KSHORT r0, 1    (start)
	// 1: KSHORT r1, 10   (stop)
	// 2: KSHORT r2, 1    (step)
	// 3: FORI r0 => 6    (exit when done)
	// 4: KSHORT r4, 0    (body)
	// 5: FORL r0 => 4    (back edge)
	// 6: RET0
	f, err := Build(proto(5,
		bytecode.AD(v, bytecode.OpKSHORT, 0, 1),
		bytecode.AD(v, bytecode.OpKSHORT, 1, 10),
		bytecode.AD(v, bytecode.OpKSHORT, 2, 1),
		bytecode.AD(v, bytecode.OpFORI, 0, bytecode.Jump(3, 6)),
		bytecode.AD(v, bytecode.OpKSHORT, 4, 0),
		bytecode.AD(v, bytecode.OpFORL, 0, bytecode.Jump(5, 4)),
		bytecode.AD(v, bytecode.OpRET0, 0, 1),
	), v)
	if err != nil {
		t.Fatal(err)
	}
	// Blocks: [0,4) prep, [4,5) body, [5,6) forl, [6,7) exit.
	if len(f.Blocks) != 4 {
		t.Fatalf("blocks = %d, want 4", len(f.Blocks))
	}
	prep := f.Blocks[0].Term()
	if prep == nil || prep.Kind != KindForPrep {
		t.Fatalf("prep terminator = %+v, want ForPrep", prep)
	}
	forl := f.Blocks[2].Term()
	if forl == nil || forl.Kind != KindForLoop {
		t.Fatalf("tail terminator = %+v, want ForLoop", forl)
	}
	if forl.Target != 4 {
		t.Errorf("back edge target = %d, want 4", forl.Target)
	}
}

// Block ranges must exactly partition the instruction stream: no gaps, no
// overlaps, every block non-empty with at most one terminator (at the end).
func TestBuild_PartitionInvariant(t *testing.T) {
	raw := []uint32{
		bytecode.AD(v, bytecode.OpKSHORT, 0, 5),
		bytecode.AD(v, bytecode.OpISGE, 0, 1),
		bytecode.AD(v, bytecode.OpJMP, 2, bytecode.Jump(2, 6)),
		bytecode.AD(v, bytecode.OpKSHORT, 2, 1),
		bytecode.AD(v, bytecode.OpJMP, 2, bytecode.Jump(4, 7)),
		bytecode.AD(v, bytecode.OpKSHORT, 2, 2),
		bytecode.AD(v, bytecode.OpKSHORT, 3, 3),
		bytecode.AD(v, bytecode.OpRET0, 0, 1),
	}
	f, err := Build(proto(4, raw...), v)
	if err != nil {
		t.Fatal(err)
	}

	next := 0
	for _, b := range f.Blocks {
		if b.StartPC != next {
			t.Errorf("block %d starts at %d, want %d (gap or overlap)", b.ID, b.StartPC, next)
		}
		if b.EndPC <= b.StartPC {
			t.Errorf("block %d is empty", b.ID)
		}
		for i, s := range b.Stmts {
			if s.IsTerminator() && i != len(b.Stmts)-1 {
				t.Errorf("block %d has terminator %v before its end", b.ID, s.Kind)
			}
		}
		next = b.EndPC
	}
	if next != len(raw) {
		t.Errorf("blocks cover [0,%d), want [0,%d)", next, len(raw))
	}
}
