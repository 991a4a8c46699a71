// Package pipeline drives decompilation of one bytecode dump: decode,
// lower to IR, analyze control flow, structure, and recover slots, one
// function at a time. A failure in one function never aborts its siblings;
// only dump-level corruption is fatal.
package pipeline

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"unluajit/internal/ast"
	"unluajit/internal/bytecode"
	"unluajit/internal/cfg"
	"unluajit/internal/diag"
	"unluajit/internal/ir"
	"unluajit/internal/slots"
	"unluajit/internal/structure"
)

// Options configures one decompilation run.
type Options struct {
	// Version selects the dump encoding and must match the input.
	Version bytecode.Version

	// Jobs bounds concurrent per-function decompilation; values below 2
	// run sequentially.
	Jobs int

	Logger *zap.Logger
}

// FuncResult is the outcome for one prototype. Err is set when the
// function could not be decompiled; Tree is nil in that case.
type FuncResult struct {
	Proto  *bytecode.Proto
	Params []string
	Tree   *ast.Block
	Err    error
}

// Result pairs the decoded dump with per-function outcomes in dump order
// (root first, depth first) and the accumulated diagnostics.
type Result struct {
	Dump  *bytecode.Dump
	Funcs []FuncResult
	Diags []diag.Diag
}

// Decompile processes one dump. The returned error is non-nil only for
// dump-level structural corruption; per-function failures are reported in
// Result.Funcs and Result.Diags.
func Decompile(data []byte, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	dump, err := bytecode.ParseDump(data, opts.Version)
	if err != nil {
		return nil, err
	}
	log.Debug("parsed dump",
		zap.String("chunk", dump.ChunkName),
		zap.Int("protos", len(dump.Protos)),
		zap.Bool("stripped", dump.Stripped()))

	res := &Result{
		Dump:  dump,
		Funcs: make([]FuncResult, len(dump.Protos)),
	}
	perFn := make([]diag.Diags, len(dump.Protos))

	work := func(i int) {
		p := dump.Protos[i]
		fr := &res.Funcs[i]
		fr.Proto = p
		fr.Tree, fr.Params, fr.Err = decompileFunc(p, i, opts.Version, &perFn[i])
		if fr.Err != nil {
			perFn[i].Addf(i, -1, diag.KindUnsupportedOp, "function not decompiled: %v", fr.Err)
			log.Warn("function skipped", zap.Int("fn", i), zap.Error(fr.Err))
			return
		}
		log.Debug("decompiled function",
			zap.Int("fn", i),
			zap.Int("params", p.NumParams),
			zap.Int("instructions", len(p.Raw)))
	}

	if opts.Jobs > 1 {
		var g errgroup.Group
		g.SetLimit(opts.Jobs)
		for i := range dump.Protos {
			i := i
			g.Go(func() error {
				work(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range dump.Protos {
			work(i)
		}
	}

	// Merge per-function diagnostics in dump order so concurrent runs
	// stay deterministic.
	for i := range perFn {
		res.Diags = append(res.Diags, perFn[i].Items()...)
	}

	attachClosures(res)
	return res, nil
}

// decompileFunc runs the stages for one prototype.
func decompileFunc(p *bytecode.Proto, fnIdx int, v bytecode.Version, ds *diag.Diags) (tree *ast.Block, params []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("function %d: internal error: %v", fnIdx, r)
		}
	}()

	fn, err := ir.Build(p, v)
	if err != nil {
		var oe *bytecode.OpcodeError
		var fe *bytecode.FormatError
		if errors.As(err, &oe) || errors.As(err, &fe) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("function %d: %w", fnIdx, err)
	}

	g := cfg.Analyze(fn, fnIdx, ds)
	tree = structure.Build(fn, g, v, fnIdx, ds)
	params = slots.Recover(tree, p, fnIdx, ds)
	structure.Simplify(tree)
	return tree, params, nil
}

// attachClosures links every closure expression to its child function's
// recovered tree and parameter list so the printer can inline it.
func attachClosures(res *Result) {
	for i := range res.Funcs {
		if res.Funcs[i].Tree == nil {
			continue
		}
		ast.Walk(res.Funcs[i].Tree, func(s ast.Stmt) {
			visitStmtExprs(s, func(e ast.Expr) {
				f, ok := e.(*ast.Func)
				if !ok || f.Proto < 0 || f.Proto >= len(res.Funcs) {
					return
				}
				child := &res.Funcs[f.Proto]
				f.Body = child.Tree
				f.Params = child.Params
			})
		})
	}
}

func visitStmtExprs(s ast.Stmt, f func(ast.Expr)) {
	each := func(es ...ast.Expr) {
		for _, e := range es {
			visitExpr(e, f)
		}
	}
	switch x := s.(type) {
	case *ast.Assign:
		each(x.LHS...)
		each(x.RHS...)
	case *ast.ExprStat:
		each(x.X)
	case *ast.Return:
		each(x.Exprs...)
	case *ast.If:
		each(x.Cond)
	case *ast.While:
		each(x.Cond)
	case *ast.RepeatUntil:
		each(x.Cond)
	case *ast.NumericFor:
		each(x.Var, x.Start, x.Stop, x.Step)
	case *ast.GenericFor:
		each(x.Vars...)
		each(x.Exprs...)
	}
}

func visitExpr(e ast.Expr, f func(ast.Expr)) {
	if e == nil {
		return
	}
	f(e)
	switch x := e.(type) {
	case *ast.Bin:
		visitExpr(x.L, f)
		visitExpr(x.R, f)
	case *ast.Un:
		visitExpr(x.X, f)
	case *ast.Index:
		visitExpr(x.X, f)
		visitExpr(x.Key, f)
	case *ast.Call:
		visitExpr(x.Fn, f)
		for _, a := range x.Args {
			visitExpr(a, f)
		}
	case *ast.Table:
		for _, fl := range x.Fields {
			visitExpr(fl.Key, f)
			visitExpr(fl.Value, f)
		}
	}
}
