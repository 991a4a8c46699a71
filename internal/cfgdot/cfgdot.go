// Package cfgdot maps lowered functions onto lattice graphs for DOT export.
package cfgdot

import (
	"fmt"

	"github.com/zboralski/lattice"

	"unluajit/internal/ir"
)

// FuncName labels a prototype for graph output.
func FuncName(chunk string, fnIdx, firstLine int) string {
	if chunk == "" {
		return fmt.Sprintf("proto%d", fnIdx)
	}
	if firstLine > 0 {
		return fmt.Sprintf("%s:%d", chunk, firstLine)
	}
	return fmt.Sprintf("%s#%d", chunk, fnIdx)
}

// BuildFuncCFG converts one lowered function into a lattice.FuncCFG. Call
// sites are labelled with the global or field name the callee register was
// loaded from, when that load is visible in the same block.
func BuildFuncCFG(fn *ir.Func, name string) *lattice.FuncCFG {
	lcfg := &lattice.FuncCFG{Name: name}
	for _, b := range fn.Blocks {
		lb := &lattice.BasicBlock{
			ID:    b.ID,
			Start: b.StartPC,
			End:   b.EndPC,
			Term:  len(b.Succs) == 0,
		}
		for _, s := range b.Succs {
			lb.Succs = append(lb.Succs, lattice.Successor{
				BlockID: s.Block,
				Cond:    s.Cond,
			})
		}
		lb.Calls = callSites(fn, b)
		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}

// BuildCFG bundles per-function graphs for whole-dump rendering.
func BuildCFG(funcs []*lattice.FuncCFG) *lattice.CFGGraph {
	return &lattice.CFGGraph{Funcs: funcs}
}

// callSites extracts the calls in one block, resolving callee names from
// the register loads that precede them.
func callSites(fn *ir.Func, b *ir.BasicBlock) []lattice.CallSite {
	var calls []lattice.CallSite
	loads := make(map[int]string)
	for _, s := range b.Stmts {
		switch s.Kind {
		case ir.KindGlobalGet:
			loads[s.Dst.Val] = fn.Proto.StrConst(s.X.Val)
		case ir.KindIndexGet:
			if s.Y.Kind == ir.OperandStr {
				base := "?"
				if n, ok := loads[s.X.Val]; ok {
					base = n
				}
				loads[s.Dst.Val] = base + "." + fn.Proto.StrConst(s.Y.Val)
			} else {
				delete(loads, s.Dst.Val)
			}
		case ir.KindCall, ir.KindIterCall, ir.KindTailCall:
			callee := fmt.Sprintf("r%d", s.Base)
			if n, ok := loads[s.Base]; ok {
				callee = n
			}
			calls = append(calls, lattice.CallSite{Offset: s.PC, Callee: callee})
		default:
			if s.Dst.Kind == ir.OperandReg {
				delete(loads, s.Dst.Val)
			}
		}
	}
	return calls
}
