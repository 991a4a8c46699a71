// Package luafmt renders a structured tree back into Lua source text.
package luafmt

import (
	"fmt"
	"strings"

	"unluajit/internal/ast"
)

// Chunk prints a function body as a top-level chunk.
func Chunk(b *ast.Block) string {
	p := &printer{}
	p.block(b)
	return p.sb.String()
}

type printer struct {
	sb     strings.Builder
	indent int
}

func (p *printer) line(format string, args ...any) {
	p.sb.WriteString(strings.Repeat("\t", p.indent))
	fmt.Fprintf(&p.sb, format, args...)
	p.sb.WriteByte('\n')
}

func (p *printer) block(b *ast.Block) {
	if b == nil {
		return
	}
	for _, s := range b.Stmts {
		p.stmt(s)
	}
}

// loopBody prints a loop body, appending a continue label when the body
// jumps to the end of the iteration.
func (p *printer) loopBody(b *ast.Block) {
	p.indent++
	p.block(b)
	if hasContinue(b) {
		p.line("::continue::")
	}
	p.indent--
}

// hasContinue reports whether b contains a Continue belonging to this loop
// (nested loops own theirs).
func hasContinue(b *ast.Block) bool {
	if b == nil {
		return false
	}
	for _, s := range b.Stmts {
		switch x := s.(type) {
		case *ast.Continue:
			return true
		case *ast.If:
			if hasContinue(x.Then) || hasContinue(x.Else) {
				return true
			}
		case *ast.Block:
			if hasContinue(x) {
				return true
			}
		}
	}
	return false
}

func (p *printer) stmt(s ast.Stmt) {
	switch x := s.(type) {
	case *ast.Assign:
		lhs := make([]string, len(x.LHS))
		for i, e := range x.LHS {
			lhs[i] = p.expr(e, 0)
		}
		rhs := make([]string, len(x.RHS))
		for i, e := range x.RHS {
			rhs[i] = p.expr(e, 0)
		}
		kw := ""
		if x.Local {
			kw = "local "
		}
		if len(rhs) == 0 {
			p.line("%s%s", kw, strings.Join(lhs, ", "))
		} else {
			p.line("%s%s = %s", kw, strings.Join(lhs, ", "), strings.Join(rhs, ", "))
		}

	case *ast.ExprStat:
		p.line("%s", p.expr(x.X, 0))

	case *ast.If:
		p.line("if %s then", p.expr(x.Cond, 0))
		p.indent++
		p.block(x.Then)
		p.indent--
		if x.Else != nil {
			// Collapse `else if` chains into elseif.
			if inner, ok := elseIf(x.Else); ok {
				p.elseifChain(inner)
			} else {
				p.line("else")
				p.indent++
				p.block(x.Else)
				p.indent--
			}
		}
		p.line("end")

	case *ast.While:
		p.line("while %s do", p.expr(x.Cond, 0))
		p.loopBody(x.Body)
		p.line("end")

	case *ast.RepeatUntil:
		p.line("repeat")
		p.loopBody(x.Body)
		p.line("until %s", p.expr(x.Cond, 0))

	case *ast.NumericFor:
		head := fmt.Sprintf("%s = %s, %s", p.expr(x.Var, 0), p.expr(x.Start, 0), p.expr(x.Stop, 0))
		if !isConstOne(x.Step) {
			head += ", " + p.expr(x.Step, 0)
		}
		p.line("for %s do", head)
		p.loopBody(x.Body)
		p.line("end")

	case *ast.GenericFor:
		vars := make([]string, len(x.Vars))
		for i, v := range x.Vars {
			vars[i] = p.expr(v, 0)
		}
		exprs := make([]string, len(x.Exprs))
		for i, e := range x.Exprs {
			exprs[i] = p.expr(e, 0)
		}
		p.line("for %s in %s do", strings.Join(vars, ", "), strings.Join(exprs, ", "))
		p.loopBody(x.Body)
		p.line("end")

	case *ast.Break:
		p.line("break")
	case *ast.Continue:
		p.line("goto continue")
	case *ast.Goto:
		p.line("goto %s", x.Name)
	case *ast.Label:
		p.line("::%s::", x.Name)

	case *ast.Return:
		if len(x.Exprs) == 0 {
			p.line("return")
			return
		}
		out := make([]string, len(x.Exprs))
		for i, e := range x.Exprs {
			out[i] = p.expr(e, 0)
		}
		p.line("return %s", strings.Join(out, ", "))

	case *ast.Block:
		p.line("do")
		p.indent++
		p.block(x)
		p.indent--
		p.line("end")
	}
}

// elseIf matches an else arm holding exactly one if statement.
func elseIf(b *ast.Block) (*ast.If, bool) {
	if b != nil && len(b.Stmts) == 1 {
		if x, ok := b.Stmts[0].(*ast.If); ok {
			return x, true
		}
	}
	return nil, false
}

func (p *printer) elseifChain(x *ast.If) {
	p.line("elseif %s then", p.expr(x.Cond, 0))
	p.indent++
	p.block(x.Then)
	p.indent--
	if x.Else != nil {
		if inner, ok := elseIf(x.Else); ok {
			p.elseifChain(inner)
			return
		}
		p.line("else")
		p.indent++
		p.block(x.Else)
		p.indent--
	}
}

func isConstOne(e ast.Expr) bool {
	if e == nil {
		return true
	}
	c, ok := e.(*ast.Const)
	return ok && c.Kind == ast.ConstInt && c.Int == 1
}
