package bytecode

import "fmt"

// GCKind tags a garbage-collected constant.
type GCKind int

const (
	GCChild GCKind = iota // nested prototype
	GCTable               // table template
	GCInt64
	GCUint64
	GCString
)

func (k GCKind) String() string {
	switch k {
	case GCChild:
		return "child"
	case GCTable:
		return "table"
	case GCInt64:
		return "int64"
	case GCUint64:
		return "uint64"
	case GCString:
		return "string"
	default:
		return fmt.Sprintf("GCKind(%d)", int(k))
	}
}

// GCConst is one entry of a prototype's GC constant pool. Exactly the field
// matching Kind is meaningful.
type GCConst struct {
	Kind  GCKind
	Str   string
	I64   int64
	U64   uint64
	Table *TableTemplate
	Child *Proto
}

// KNum is one entry of the number constant pool: either an int32 or a
// double, per the split encoding in the dump.
type KNum struct {
	IsInt bool
	Int   int32
	Num   float64
}

func (k KNum) Float() float64 {
	if k.IsInt {
		return float64(k.Int)
	}
	return k.Num
}

// TValueKind tags a table-template value.
type TValueKind int

const (
	TVNil TValueKind = iota
	TVFalse
	TVTrue
	TVInt
	TVNum
	TVString
)

// TValue is a constant value inside a table template.
type TValue struct {
	Kind TValueKind
	Int  int32
	Num  float64
	Str  string
}

// TableTemplate is a constant table constructor: a dense array part plus
// key/value hash pairs.
type TableTemplate struct {
	Array []TValue
	Hash  []TableEntry
}

// TableEntry is one hash-part pair of a table template.
type TableEntry struct {
	Key, Val TValue
}

// VarInfo is one debug local-variable record: the slot is live (and carries
// Name) for pcs in [StartPC, EndPC).
type VarInfo struct {
	Name    string
	StartPC int
	EndPC   int
}

// Internal variable names used by the compiler for loop control slots.
// Stored in debug info as small enum values rather than strings.
var internalVarNames = []string{
	"(for index)",
	"(for limit)",
	"(for step)",
	"(for generator)",
	"(for state)",
	"(for control)",
}

// Proto is one function prototype: metadata, constant pools, raw code and
// debug info. Immutable once the reader returns it; downstream stages hold
// references, never copies.
type Proto struct {
	// Index is the position in Dump.Protos (root first, depth first).
	Index int

	Flags     uint8
	NumParams int
	FrameSize int

	// Raw holds the undecoded instruction words. Instruction decoding is
	// deferred to DecodeCode so that an unsupported opcode aborts only
	// this prototype, not the whole dump.
	Raw []uint32

	// GC is the garbage-collected constant pool, indexed the way
	// instructions reference it (the dump stores it reversed; the reader
	// undoes that).
	GC []GCConst
	// Num is the number constant pool.
	Num []KNum
	// UpvalRefs holds the raw upvalue descriptors.
	UpvalRefs []uint16

	// Children are the nested prototypes, in dump order.
	Children []*Proto

	// Debug info; empty when the dump is stripped.
	FirstLine  int
	NumLines   int
	LineInfo   []int // source line per instruction
	UpvalNames []string
	VarInfo    []VarInfo
}

// IsVararg reports whether the prototype accepts variable arguments.
func (p *Proto) IsVararg() bool { return p.Flags&ProtoVararg != 0 }

// Line returns the source line for pc, or 0 if no debug info is present.
func (p *Proto) Line(pc int) int {
	if pc < 0 || pc >= len(p.LineInfo) {
		return 0
	}
	return p.LineInfo[pc]
}

// LocalName returns the debug name of a register slot live at pc, if the
// dump carries one. Records are ordered by StartPC; the n-th record live at
// pc names slot n, mirroring the VM's own debug lookup.
func (p *Proto) LocalName(slot, pc int) (string, bool) {
	n := 0
	for i := range p.VarInfo {
		v := &p.VarInfo[i]
		if v.StartPC > pc {
			break
		}
		if pc < v.EndPC {
			if n == slot {
				return v.Name, true
			}
			n++
		}
	}
	return "", false
}
