package luafmt

import (
	"testing"

	"unluajit/internal/ast"
)

func bin(k ast.BinKind, l, r ast.Expr) *ast.Bin { return &ast.Bin{Kind: k, L: l, R: r} }
func name(s string) *ast.Local                  { return &ast.Local{Name: s} }

func TestExpr_Precedence(t *testing.T) {
	p := &printer{}
	cases := []struct {
		e    ast.Expr
		want string
	}{
		// a + b * c needs no parens; (a + b) * c does.
		{bin(ast.BinAdd, name("a"), bin(ast.BinMul, name("b"), name("c"))), "a + b * c"},
		{bin(ast.BinMul, bin(ast.BinAdd, name("a"), name("b")), name("c")), "(a + b) * c"},
		// Subtraction is left associative.
		{bin(ast.BinSub, bin(ast.BinSub, name("a"), name("b")), name("c")), "a - b - c"},
		{bin(ast.BinSub, name("a"), bin(ast.BinSub, name("b"), name("c"))), "a - (b - c)"},
		// Concat and pow associate right.
		{bin(ast.BinConcat, name("a"), bin(ast.BinConcat, name("b"), name("c"))), "a .. b .. c"},
		{bin(ast.BinConcat, bin(ast.BinConcat, name("a"), name("b")), name("c")), "(a .. b) .. c"},
		{bin(ast.BinPow, name("a"), bin(ast.BinPow, name("b"), name("c"))), "a ^ b ^ c"},
		// not binds tighter than and.
		{bin(ast.BinAnd, &ast.Un{Kind: ast.UnNot, X: name("a")}, name("b")), "not a and b"},
		{&ast.Un{Kind: ast.UnNot, X: bin(ast.BinAnd, name("a"), name("b"))}, "not (a and b)"},
		// Unary minus of a negative must not form a comment.
		{&ast.Un{Kind: ast.UnMinus, X: &ast.Un{Kind: ast.UnMinus, X: name("a")}}, "-(-a)"},
		// Comparison under or.
		{bin(ast.BinOr, bin(ast.BinLt, name("a"), name("b")), name("c")), "a < b or c"},
	}
	for _, tc := range cases {
		if got := p.expr(tc.e, 0); got != tc.want {
			t.Errorf("expr = %q, want %q", got, tc.want)
		}
	}
}

func TestExpr_CallAndIndexSugar(t *testing.T) {
	p := &printer{}

	dot := &ast.Index{X: &ast.Global{Name: "io"}, Key: ast.Str("write")}
	if got := p.expr(dot, 0); got != "io.write" {
		t.Errorf("dot index = %q", got)
	}
	raw := &ast.Index{X: name("t"), Key: ast.Str("not")}
	if got := p.expr(raw, 0); got != `t["not"]` {
		t.Errorf("keyword key = %q", got)
	}
	m := &ast.Call{Fn: name("obj"), Method: "run", Args: []ast.Expr{ast.Int(1)}}
	if got := p.expr(m, 0); got != "obj:run(1)" {
		t.Errorf("method call = %q", got)
	}
}

func TestChunk_ElseifChain(t *testing.T) {
	tree := &ast.Block{Stmts: []ast.Stmt{
		&ast.If{
			Cond: bin(ast.BinEq, name("x"), ast.Int(1)),
			Then: &ast.Block{Stmts: []ast.Stmt{&ast.Return{Exprs: []ast.Expr{ast.Int(1)}}}},
			Else: &ast.Block{Stmts: []ast.Stmt{
				&ast.If{
					Cond: bin(ast.BinEq, name("x"), ast.Int(2)),
					Then: &ast.Block{Stmts: []ast.Stmt{&ast.Return{Exprs: []ast.Expr{ast.Int(2)}}}},
					Else: &ast.Block{Stmts: []ast.Stmt{&ast.Return{}}},
				},
			}},
		},
	}}
	want := `if x == 1 then
	return 1
elseif x == 2 then
	return 2
else
	return
end
`
	if got := Chunk(tree); got != want {
		t.Errorf("chunk:\n%s\nwant:\n%s", got, want)
	}
}

func TestChunk_ContinueLabel(t *testing.T) {
	tree := &ast.Block{Stmts: []ast.Stmt{
		&ast.While{
			Cond: ast.True(),
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.If{
					Cond: name("skip"),
					Then: &ast.Block{Stmts: []ast.Stmt{&ast.Continue{}}},
				},
				&ast.ExprStat{X: &ast.Call{Fn: name("work")}},
			}},
		},
	}}
	want := `while true do
	if skip then
		goto continue
	end
	work()
	::continue::
end
`
	if got := Chunk(tree); got != want {
		t.Errorf("chunk:\n%s\nwant:\n%s", got, want)
	}
}

func TestChunk_NumericForStepElision(t *testing.T) {
	body := &ast.Block{Stmts: []ast.Stmt{&ast.ExprStat{X: &ast.Call{Fn: name("f"), Args: []ast.Expr{name("i")}}}}}

	plain := &ast.Block{Stmts: []ast.Stmt{&ast.NumericFor{
		Var: name("i"), Start: ast.Int(1), Stop: ast.Int(10), Step: ast.Int(1), Body: body,
	}}}
	if got := Chunk(plain); got != "for i = 1, 10 do\n\tf(i)\nend\n" {
		t.Errorf("unit step chunk = %q", got)
	}

	stepped := &ast.Block{Stmts: []ast.Stmt{&ast.NumericFor{
		Var: name("i"), Start: ast.Int(10), Stop: ast.Int(1), Step: ast.Int(-1), Body: body,
	}}}
	if got := Chunk(stepped); got != "for i = 10, 1, -1 do\n\tf(i)\nend\n" {
		t.Errorf("stepped chunk = %q", got)
	}
}

func TestQuote_Escapes(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain", `"plain"`},
		{"a\"b", `"a\"b"`},
		{"line\n", `"line\n"`},
		{"\x01", `"\1"`},
		// A digit after a short decimal escape would be absorbed into it.
		{"\x012", `"\0012"`},
		{"\x01a", `"\1a"`},
		{`back\slash`, `"back\\slash"`},
	}
	for _, tc := range cases {
		if got := quote(tc.in); got != tc.want {
			t.Errorf("quote(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestChunk_StubClosure(t *testing.T) {
	tree := &ast.Block{Stmts: []ast.Stmt{
		&ast.Assign{Local: true,
			LHS: []ast.Expr{name("f")},
			RHS: []ast.Expr{&ast.Func{Proto: 3, Params: []string{"a"}}},
		},
	}}
	if got := Chunk(tree); got != "local f = function (a) --[[ proto 3 ]] end\n" {
		t.Errorf("chunk = %q", got)
	}
}
