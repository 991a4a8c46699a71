package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders a prototype's decoded instructions as stable text output.
// Each line: <pc>  <mnemonic>  <operands>  ; <comment>
// Comments resolve constant operands and jump targets.
func Format(p *Proto, code []Ins) string {
	var b strings.Builder
	for _, x := range code {
		fmt.Fprintf(&b, "%04d  %-6s ", x.PC, x.Op)
		oi := x.Op.Info()
		if oi.IsAD() {
			writeArg(&b, oi.A, x.A, x)
			b.WriteByte(' ')
			writeArg(&b, oi.C, x.D, x)
		} else {
			writeArg(&b, oi.A, x.A, x)
			b.WriteByte(' ')
			writeArg(&b, oi.B, x.B, x)
			b.WriteByte(' ')
			writeArg(&b, oi.C, x.C, x)
		}
		if c := comment(p, x); c != "" {
			fmt.Fprintf(&b, "  ; %s", c)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func writeArg(b *strings.Builder, kind ArgKind, val int, x Ins) {
	switch kind {
	case ArgNone:
		b.WriteString("  _")
	case ArgJump:
		fmt.Fprintf(b, "=> %04d", x.Target())
	case ArgLitS:
		fmt.Fprintf(b, "%3d", int16(val))
	default:
		fmt.Fprintf(b, "%3d", val)
	}
}

// comment resolves constant references for readability.
func comment(p *Proto, x Ins) string {
	oi := x.Op.Info()
	kind, val := oi.C, x.C
	if oi.IsAD() {
		val = x.D
	}
	switch kind {
	case ArgStr:
		return strconv.Quote(p.GC[val].Str)
	case ArgNum:
		k := p.Num[val]
		if k.IsInt {
			return strconv.Itoa(int(k.Int))
		}
		return strconv.FormatFloat(k.Num, 'g', -1, 64)
	case ArgPri:
		return [...]string{"nil", "false", "true"}[val]
	case ArgFunc:
		return fmt.Sprintf("function #%d", val)
	case ArgTab:
		return "table template"
	}
	return ""
}
