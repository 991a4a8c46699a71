// Package callgraph summarizes who calls whom across the prototypes of one
// dump: closure creation links parent to child, and call instructions link
// to the global or field name their callee register was loaded from.
package callgraph

import (
	"fmt"

	"github.com/zboralski/lattice"

	"unluajit/internal/ir"
)

// FuncInfo holds the data needed to graph one prototype.
type FuncInfo struct {
	Name string
	Fn   *ir.Func
}

// BuildCallGraph constructs a lattice.Graph from lowered functions. Each
// prototype becomes a node; FNEW sites add an edge to the child prototype
// and call sites add an edge to the resolved callee name. Calls through
// registers with no visible load are skipped.
func BuildCallGraph(funcs []FuncInfo) *lattice.Graph {
	g := &lattice.Graph{}
	names := make(map[int]string, len(funcs))
	for i, f := range funcs {
		names[i] = f.Name
	}

	for _, f := range funcs {
		g.Nodes = append(g.Nodes, f.Name)
		if f.Fn == nil {
			continue
		}
		for _, callee := range callees(f.Fn, names) {
			g.Edges = append(g.Edges, lattice.Edge{
				Caller: f.Name,
				Callee: callee,
			})
		}
	}
	g.Dedup()
	return g
}

// callees lists the resolvable call targets of one function. Callee names
// come from the global and field loads feeding the call's base register,
// tracked per block the same way the CFG export labels call sites.
func callees(fn *ir.Func, names map[int]string) []string {
	var out []string
	for _, b := range fn.Blocks {
		loads := make(map[int]string)
		for _, s := range b.Stmts {
			switch s.Kind {
			case ir.KindClosure:
				child := fn.Proto.GC[s.X.Val].Child
				name, ok := names[child.Index]
				if !ok {
					name = fmt.Sprintf("proto%d", child.Index)
				}
				out = append(out, name)
				delete(loads, s.Dst.Val)

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
				if n, ok := loads[s.Base]; ok {
					out = append(out, n)
				}

			default:
				if s.Dst.Kind == ir.OperandReg {
					delete(loads, s.Dst.Val)
				}
			}
		}
	}
	return out
}
