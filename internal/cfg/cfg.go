// Package cfg computes control-flow analyses over an ir.Func: predecessor
// lists, reverse postorder, dominators, back edges and loop membership.
package cfg

import (
	"sort"

	"unluajit/internal/diag"
	"unluajit/internal/ir"
)

// Graph holds analysis results for one function. Block indices refer to
// positions in Fn.Blocks.
type Graph struct {
	Fn *ir.Func

	Preds  [][]int // predecessors per block
	RPO    []int   // reverse postorder over reachable blocks
	rpoNum []int   // block -> position in RPO, -1 if unreachable

	Idom []int // immediate dominator per block, -1 for entry/unreachable

	// BackEdges lists edges tail->head where head dominates tail.
	BackEdges []Edge

	// LoopHead maps each block to the innermost loop header containing
	// it, or -1.
	LoopHead []int
}

// Edge is a directed edge between block indices.
type Edge struct {
	From, To int
	Cond     string
}

// Analyze builds the graph for fn. Unreachable blocks are reported to ds
// (one diagnostic per block) and excluded from RPO, dominators and loops;
// they keep their slots so block indices stay stable.
func Analyze(fn *ir.Func, fnIndex int, ds *diag.Diags) *Graph {
	g := &Graph{Fn: fn}
	n := len(fn.Blocks)
	g.Preds = make([][]int, n)
	for i, b := range fn.Blocks {
		for _, s := range b.Succs {
			g.Preds[s.Block] = append(g.Preds[s.Block], i)
		}
	}

	g.computeRPO()
	if ds != nil {
		for i, b := range fn.Blocks {
			if g.rpoNum[i] < 0 {
				ds.Addf(fnIndex, b.StartPC, diag.KindUnreachable,
					"block %d (pc %04d..%04d) is unreachable", i, b.StartPC, b.EndPC-1)
			}
		}
	}
	g.computeDominators()
	g.findBackEdges()
	g.computeLoops()
	return g
}

// Reachable reports whether block i is reachable from the entry.
func (g *Graph) Reachable(i int) bool { return g.rpoNum[i] >= 0 }

// Dominates reports whether a dominates b. Every block dominates itself.
func (g *Graph) Dominates(a, b int) bool {
	for b != -1 {
		if b == a {
			return true
		}
		b = g.Idom[b]
	}
	return false
}

func (g *Graph) computeRPO() {
	n := len(g.Fn.Blocks)
	g.rpoNum = make([]int, n)
	for i := range g.rpoNum {
		g.rpoNum[i] = -1
	}
	seen := make([]bool, n)
	var post []int
	var dfs func(int)
	dfs = func(i int) {
		seen[i] = true
		for _, s := range g.Fn.Blocks[i].Succs {
			if !seen[s.Block] {
				dfs(s.Block)
			}
		}
		post = append(post, i)
	}
	dfs(0)
	g.RPO = make([]int, len(post))
	for i := range post {
		b := post[len(post)-1-i]
		g.RPO[i] = b
		g.rpoNum[b] = i
	}
}

// computeDominators runs the Cooper-Harvey-Kennedy iterative algorithm
// over the reachable subgraph.
func (g *Graph) computeDominators() {
	n := len(g.Fn.Blocks)
	g.Idom = make([]int, n)
	for i := range g.Idom {
		g.Idom[i] = -1
	}
	changed := true
	for changed {
		changed = false
		for _, b := range g.RPO {
			if b == 0 {
				continue
			}
			newIdom := -1
			for _, p := range g.Preds[b] {
				if g.rpoNum[p] < 0 {
					continue
				}
				if p != 0 && g.Idom[p] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = p
				} else {
					newIdom = g.intersect(p, newIdom)
				}
			}
			if newIdom != -1 && g.Idom[b] != newIdom {
				g.Idom[b] = newIdom
				changed = true
			}
		}
	}
}

func (g *Graph) intersect(a, b int) int {
	for a != b {
		for g.rpoNum[a] > g.rpoNum[b] {
			a = g.Idom[a]
		}
		for g.rpoNum[b] > g.rpoNum[a] {
			b = g.Idom[b]
		}
	}
	return a
}

func (g *Graph) findBackEdges() {
	for _, b := range g.RPO {
		for _, s := range g.Fn.Blocks[b].Succs {
			if g.Dominates(s.Block, b) {
				g.BackEdges = append(g.BackEdges, Edge{From: b, To: s.Block, Cond: s.Cond})
			}
		}
	}
}

// computeLoops assigns each block its innermost natural-loop header by
// walking predecessors backward from each back edge tail. Inner loops are
// processed last so they overwrite outer headers.
func (g *Graph) computeLoops() {
	n := len(g.Fn.Blocks)
	g.LoopHead = make([]int, n)
	for i := range g.LoopHead {
		g.LoopHead[i] = -1
	}
	// Outer headers come first in RPO; walking edges in header order lets
	// inner loops overwrite the headers of the loops that enclose them.
	edges := make([]Edge, len(g.BackEdges))
	copy(edges, g.BackEdges)
	sort.Slice(edges, func(i, j int) bool {
		return g.rpoNum[edges[i].To] < g.rpoNum[edges[j].To]
	})
	for _, e := range edges {
		head, tail := e.To, e.From
		g.LoopHead[head] = head
		stack := []int{tail}
		inLoop := map[int]bool{head: true}
		for len(stack) > 0 {
			b := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if inLoop[b] {
				continue
			}
			inLoop[b] = true
			g.LoopHead[b] = head
			for _, p := range g.Preds[b] {
				if g.rpoNum[p] >= 0 && !inLoop[p] {
					stack = append(stack, p)
				}
			}
		}
	}
}

// LoopBlocks returns the blocks of the natural loop headed at head, in
// reverse postorder. All back edges into head contribute to the loop body.
func (g *Graph) LoopBlocks(head int) []int {
	inLoop := map[int]bool{head: true}
	var stack []int
	for _, e := range g.BackEdges {
		if e.To == head {
			stack = append(stack, e.From)
		}
	}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if inLoop[b] {
			continue
		}
		inLoop[b] = true
		for _, p := range g.Preds[b] {
			if g.rpoNum[p] >= 0 && !inLoop[p] {
				stack = append(stack, p)
			}
		}
	}
	var out []int
	for _, b := range g.RPO {
		if inLoop[b] {
			out = append(out, b)
		}
	}
	return out
}
