// Package diag provides shared diagnostics for the decompilation pipeline.
package diag

import "fmt"

// Kind classifies a diagnostic message.
type Kind string

const (
	KindUnreachable   Kind = "unreachable"
	KindIrreducible   Kind = "irreducible_control_flow"
	KindAmbiguous     Kind = "ambiguous_idiom"
	KindUnsupportedOp Kind = "unsupported_opcode"
	KindNameGap       Kind = "name_gap"
	KindSlotResidue   Kind = "slot_residue"
)

// Diag records a non-fatal issue encountered while decompiling a function.
// Fn is the prototype index within the dump; PC is the instruction the
// diagnostic applies to, or -1 when it concerns the function as a whole.
type Diag struct {
	Fn   int    `json:"fn"`
	PC   int    `json:"pc"`
	Kind Kind   `json:"kind"`
	Msg  string `json:"msg"`
}

func (d Diag) String() string {
	if d.PC < 0 {
		return fmt.Sprintf("[%s] fn %d: %s", d.Kind, d.Fn, d.Msg)
	}
	return fmt.Sprintf("[%s] fn %d pc %04d: %s", d.Kind, d.Fn, d.PC, d.Msg)
}

// Diags accumulates diagnostics.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(fn, pc int, kind Kind, msg string) {
	d.items = append(d.items, Diag{Fn: fn, PC: pc, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(fn, pc int, kind Kind, format string, args ...any) {
	d.items = append(d.items, Diag{Fn: fn, PC: pc, Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

func (d *Diags) Merge(other *Diags) {
	if other != nil {
		d.items = append(d.items, other.items...)
	}
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }
