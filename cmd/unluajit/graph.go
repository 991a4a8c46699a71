package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"unluajit/internal/bytecode"
	"unluajit/internal/callgraph"
	"unluajit/internal/cfgdot"
	"unluajit/internal/ir"
	"unluajit/internal/output"
)

func cmdGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	in := fs.String("in", "", "path to compiled bytecode")
	out := fs.String("out", "", "output directory")
	version := fs.String("version", "2.1", "bytecode format version")
	calls := fs.Bool("calls", false, "also write a prototype call graph")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return fmt.Errorf("--in and --out are required")
	}
	v, err := parseVersion(*version)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	dump, err := bytecode.ParseDump(data, v)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	var funcs []*lattice.FuncCFG
	infos := make([]callgraph.FuncInfo, len(dump.Protos))
	for i, p := range dump.Protos {
		name := cfgdot.FuncName(dump.ChunkName, i, p.FirstLine)
		infos[i].Name = name
		fn, err := ir.Build(p, v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "function %d skipped: %v\n", i, err)
			continue
		}
		infos[i].Fn = fn
		funcs = append(funcs, cfgdot.BuildFuncCFG(fn, name))
	}
	if len(funcs) == 0 {
		return fmt.Errorf("no functions produced a graph")
	}

	g := cfgdot.BuildCFG(funcs)
	dot := render.DOTCFG(g, dump.ChunkName)
	if err := output.WriteDOT(*out, "cfg", dot); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d function graphs to %s/cfg.dot\n", len(funcs), *out)

	if *calls {
		cg := callgraph.BuildCallGraph(infos)
		cgDOT := render.DOT(cg, dump.ChunkName)
		if err := output.WriteDOT(*out, "callgraph", cgDOT); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote call graph to %s/callgraph.dot\n", *out)
	}
	return nil
}
