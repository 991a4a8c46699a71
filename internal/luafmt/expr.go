package luafmt

import (
	"fmt"
	"strconv"
	"strings"

	"unluajit/internal/ast"
)

// Binding powers follow the Lua reference: or < and < comparison < .. <
// additive < multiplicative < unary < ^. Concat and pow associate right.
var binPrec = map[ast.BinKind]int{
	ast.BinOr:     1,
	ast.BinAnd:    2,
	ast.BinEq:     3,
	ast.BinNe:     3,
	ast.BinLt:     3,
	ast.BinLe:     3,
	ast.BinGt:     3,
	ast.BinGe:     3,
	ast.BinConcat: 4,
	ast.BinAdd:    5,
	ast.BinSub:    5,
	ast.BinMul:    6,
	ast.BinDiv:    6,
	ast.BinMod:    6,
	ast.BinPow:    8,
}

const unaryPrec = 7

func rightAssoc(k ast.BinKind) bool {
	return k == ast.BinConcat || k == ast.BinPow
}

// expr renders e, parenthesizing when its precedence is below the context.
func (p *printer) expr(e ast.Expr, prec int) string {
	switch x := e.(type) {
	case *ast.Const:
		return constText(x)
	case *ast.Slot:
		return x.String()
	case *ast.Local:
		return x.Name
	case *ast.Upvalue:
		return x.Name
	case *ast.Global:
		return x.Name
	case *ast.Vararg:
		return "..."

	case *ast.Index:
		base := p.prefix(x.X)
		if name, ok := fieldName(x.Key); ok {
			return base + "." + name
		}
		return base + "[" + p.expr(x.Key, 0) + "]"

	case *ast.Call:
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			args[i] = p.expr(a, 0)
		}
		if x.Method != "" {
			return fmt.Sprintf("%s:%s(%s)", p.prefix(x.Fn), x.Method, strings.Join(args, ", "))
		}
		return fmt.Sprintf("%s(%s)", p.prefix(x.Fn), strings.Join(args, ", "))

	case *ast.Table:
		if len(x.Fields) == 0 {
			return "{}"
		}
		parts := make([]string, len(x.Fields))
		for i, f := range x.Fields {
			v := p.expr(f.Value, 0)
			switch {
			case f.Key == nil:
				parts[i] = v
			default:
				if name, ok := fieldName(f.Key); ok {
					parts[i] = name + " = " + v
				} else {
					parts[i] = "[" + p.expr(f.Key, 0) + "] = " + v
				}
			}
		}
		return "{" + strings.Join(parts, ", ") + "}"

	case *ast.Func:
		return p.funcText(x)

	case *ast.Un:
		inner := p.expr(x.X, unaryPrec)
		// `--x` would read as a comment.
		if x.Kind == ast.UnMinus && strings.HasPrefix(inner, "-") {
			inner = "(" + inner + ")"
		}
		s := x.Kind.String() + inner
		if prec > unaryPrec {
			return "(" + s + ")"
		}
		return s

	case *ast.Bin:
		bp := binPrec[x.Kind]
		lp, rp := bp, bp+1
		if rightAssoc(x.Kind) {
			lp, rp = bp+1, bp
		}
		s := p.expr(x.L, lp) + " " + x.Kind.String() + " " + p.expr(x.R, rp)
		if prec > bp {
			return "(" + s + ")"
		}
		return s
	}
	return "nil"
}

// prefix renders a call or index base, parenthesizing anything that is not
// already a prefix expression.
func (p *printer) prefix(e ast.Expr) string {
	switch e.(type) {
	case *ast.Local, *ast.Upvalue, *ast.Global, *ast.Index, *ast.Call, *ast.Slot:
		return p.expr(e, 0)
	}
	return "(" + p.expr(e, 0) + ")"
}

func (p *printer) funcText(f *ast.Func) string {
	params := strings.Join(f.Params, ", ")
	if f.Vararg {
		if params != "" {
			params += ", "
		}
		params += "..."
	}
	if f.Body == nil {
		return fmt.Sprintf("function (%s) --[[ proto %d ]] end", params, f.Proto)
	}
	var sub printer
	sub.indent = p.indent + 1
	sub.block(f.Body)
	pad := strings.Repeat("\t", p.indent)
	return fmt.Sprintf("function (%s)\n%s%send", params, sub.sb.String(), pad)
}

func constText(c *ast.Const) string {
	switch c.Kind {
	case ast.ConstNil:
		return "nil"
	case ast.ConstTrue:
		return "true"
	case ast.ConstFalse:
		return "false"
	case ast.ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ast.ConstNum:
		return strconv.FormatFloat(c.Num, 'g', -1, 64)
	case ast.ConstStr:
		return quote(c.Str)
	case ast.ConstCData:
		return c.Str
	}
	return "nil"
}

// quote renders a Lua string literal.
func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch b {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if b < 0x20 || b == 0x7f {
				// A following digit would extend the escape; pad to
				// three digits so the literal reads back byte for byte.
				if i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9' {
					fmt.Fprintf(&sb, `\%03d`, b)
				} else {
					fmt.Fprintf(&sb, `\%d`, b)
				}
			} else {
				sb.WriteByte(b)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// fieldName returns the identifier form of a string key.
func fieldName(e ast.Expr) (string, bool) {
	c, ok := e.(*ast.Const)
	if !ok || c.Kind != ast.ConstStr || !identifier(c.Str) {
		return "", false
	}
	return c.Str, true
}

var keywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "goto": true,
	"if": true, "in": true, "local": true, "nil": true, "not": true,
	"or": true, "repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

func identifier(s string) bool {
	if s == "" || keywords[s] {
		return false
	}
	for i := 0; i < len(s); i++ {
		b := s[i]
		alpha := b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
		if !alpha && (i == 0 || b < '0' || b > '9') {
			return false
		}
	}
	return true
}
