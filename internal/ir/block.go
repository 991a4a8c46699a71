package ir

import "unluajit/internal/bytecode"

// BasicBlock is a maximal straight-line run of statements with a single
// entry and a terminator naming its successors.
type BasicBlock struct {
	ID      int
	StartPC int // first instruction pc (inclusive); blocks are addressed by this
	EndPC   int // last instruction pc + 1 (exclusive)
	Stmts   []Stmt
	Succs   []Succ
	IsEntry bool
}

// Succ is a control-flow successor edge.
type Succ struct {
	Block int
	Cond  string // "" = unconditional, "T" = taken/true, "F" = fallthrough/false
}

// Term returns the block's terminator statement, or nil for blocks that end
// by falling through.
func (b *BasicBlock) Term() *Stmt {
	if len(b.Stmts) == 0 {
		return nil
	}
	last := &b.Stmts[len(b.Stmts)-1]
	if last.IsTerminator() {
		return last
	}
	return nil
}

// Func is one function's IR: the flow graph before normalization.
type Func struct {
	Proto  *bytecode.Proto
	Blocks []*BasicBlock
}

// BlockAt returns the block whose range contains pc, or nil.
func (f *Func) BlockAt(pc int) *BasicBlock {
	for _, b := range f.Blocks {
		if pc >= b.StartPC && pc < b.EndPC {
			return b
		}
	}
	return nil
}
