package bytecode

import "math"

// GC constant type tags in the dump.
const (
	kgcChild   = 0
	kgcTab     = 1
	kgcI64     = 2
	kgcU64     = 3
	kgcComplex = 4
	kgcStr     = 5 // type - kgcStr is the string length
)

// Table-template value type tags.
const (
	ktabNil   = 0
	ktabFalse = 1
	ktabTrue  = 2
	ktabInt   = 3
	ktabNum   = 4
	ktabStr   = 5 // type - ktabStr is the string length
)

// ParseDump decodes a complete bytecode dump. The format version must be
// supplied by the caller and must agree with the dump's version byte.
// Any structural violation aborts the whole dump with a *FormatError;
// per-instruction validation is deferred to DecodeCode so one bad function
// cannot sink its siblings.
func ParseDump(data []byte, v Version) (*Dump, error) {
	if !v.Valid() {
		return nil, formatErrf(0, "unsupported format version %d", int(v))
	}
	r := &reader{data: data}

	magic, err := r.bytes(3)
	if err != nil {
		return nil, err
	}
	if [3]byte(magic) != dumpMagic {
		return nil, formatErrf(0, "bad magic % x, want 1b 4c 4a", magic)
	}
	verByte, err := r.byte()
	if err != nil {
		return nil, err
	}
	if verByte != v.dumpByte() {
		return nil, formatErrf(r.pos-1, "dump version byte %d does not match configured LuaJIT %s (want %d)",
			verByte, v, v.dumpByte())
	}

	d := &Dump{Version: v}
	if d.Flags, err = r.uleb(); err != nil {
		return nil, err
	}
	if d.Flags&DumpBigEndian != 0 {
		return nil, formatErrf(r.pos, "big-endian dumps are not supported")
	}
	if !d.Stripped() {
		n, err := r.uleb()
		if err != nil {
			return nil, err
		}
		name, err := r.bytes(int(n))
		if err != nil {
			return nil, err
		}
		d.ChunkName = string(name)
	}

	// Prototypes are stored bottom-up; children are popped off a stack
	// when a parent's constant pool references them.
	var stack []*Proto
	for {
		if r.remaining() == 0 {
			return nil, formatErrf(r.pos, "truncated: missing dump terminator")
		}
		plen, err := r.uleb()
		if err != nil {
			return nil, err
		}
		if plen == 0 {
			break
		}
		start := r.pos
		body, err := r.bytes(int(plen))
		if err != nil {
			return nil, err
		}
		p, err := parseProto(body, start, d, &stack)
		if err != nil {
			return nil, err
		}
		stack = append(stack, p)
	}
	if len(stack) != 1 {
		return nil, formatErrf(r.pos, "dump ended with %d unparented prototypes, want 1", len(stack))
	}
	if r.remaining() != 0 {
		return nil, formatErrf(r.pos, "trailing garbage: %d bytes after dump terminator", r.remaining())
	}

	d.Root = stack[0]
	d.Protos = flattenProtos(d.Root)
	return d, nil
}

// flattenProtos orders prototypes root first, depth first — the order the
// pipeline hands results to the printer.
func flattenProtos(root *Proto) []*Proto {
	var out []*Proto
	var walk func(p *Proto)
	walk = func(p *Proto) {
		p.Index = len(out)
		out = append(out, p)
		for _, c := range p.Children {
			walk(c)
		}
	}
	walk(root)
	return out
}

// parseProto decodes one prototype body. base is the offset of the body
// within the dump, used to report absolute offsets in errors. Child
// prototypes are popped from the stack as the constant pool references them.
func parseProto(body []byte, base int, d *Dump, stack *[]*Proto) (*Proto, error) {
	r := &reader{data: body, base: base}
	abs := r.off

	p := &Proto{}
	flags, err := r.byte()
	if err != nil {
		return nil, formatErrf(abs(), "proto flags: truncated")
	}
	p.Flags = flags
	nparams, err := r.byte()
	if err != nil {
		return nil, formatErrf(abs(), "proto numparams: truncated")
	}
	p.NumParams = int(nparams)
	frame, err := r.byte()
	if err != nil {
		return nil, formatErrf(abs(), "proto framesize: truncated")
	}
	p.FrameSize = int(frame)
	sizeUV, err := r.byte()
	if err != nil {
		return nil, formatErrf(abs(), "proto sizeuv: truncated")
	}
	sizeKGC, err := r.uleb()
	if err != nil {
		return nil, err
	}
	sizeKN, err := r.uleb()
	if err != nil {
		return nil, err
	}
	sizeBC, err := r.uleb()
	if err != nil {
		return nil, err
	}

	var sizeDbg uint32
	if !d.Stripped() {
		if sizeDbg, err = r.uleb(); err != nil {
			return nil, err
		}
		if sizeDbg > 0 {
			fl, err := r.uleb()
			if err != nil {
				return nil, err
			}
			nl, err := r.uleb()
			if err != nil {
				return nil, err
			}
			p.FirstLine, p.NumLines = int(fl), int(nl)
		}
	}

	// Instruction words.
	p.Raw = make([]uint32, sizeBC)
	for i := range p.Raw {
		w, err := r.u32()
		if err != nil {
			return nil, formatErrf(abs(), "code: truncated at instruction %d of %d", i, sizeBC)
		}
		p.Raw[i] = w
	}

	// Upvalue descriptors.
	p.UpvalRefs = make([]uint16, sizeUV)
	for i := range p.UpvalRefs {
		uv, err := r.u16()
		if err != nil {
			return nil, formatErrf(abs(), "upvalues: truncated at %d of %d", i, sizeUV)
		}
		p.UpvalRefs[i] = uv
	}

	// GC constants. The dump stores them in reverse instruction-index
	// order; fill the pool back to front so instruction operands index it
	// directly.
	p.GC = make([]GCConst, sizeKGC)
	for i := int(sizeKGC) - 1; i >= 0; i-- {
		c, err := parseGCConst(r, d, stack)
		if err != nil {
			return nil, err
		}
		if c.Kind == GCChild {
			p.Children = append([]*Proto{c.Child}, p.Children...)
		}
		p.GC[i] = c
	}

	// Number constants.
	p.Num = make([]KNum, sizeKN)
	for i := range p.Num {
		lo, isNum, err := r.uleb33()
		if err != nil {
			return nil, err
		}
		if isNum {
			hi, err := r.uleb()
			if err != nil {
				return nil, err
			}
			p.Num[i] = KNum{Num: math.Float64frombits(uint64(hi)<<32 | uint64(lo))}
		} else {
			p.Num[i] = KNum{IsInt: true, Int: int32(lo)}
		}
	}

	// Debug section.
	if sizeDbg > 0 {
		dbg, err := r.bytes(int(sizeDbg))
		if err != nil {
			return nil, formatErrf(abs(), "debug info: truncated")
		}
		if err := parseDebug(p, dbg, r.off()-int(sizeDbg), int(sizeBC), int(sizeUV)); err != nil {
			return nil, err
		}
	}

	if r.remaining() != 0 {
		return nil, formatErrf(abs(), "proto body has %d trailing bytes", r.remaining())
	}
	return p, nil
}

func parseGCConst(r *reader, d *Dump, stack *[]*Proto) (GCConst, error) {
	abs := r.off()
	typ, err := r.uleb()
	if err != nil {
		return GCConst{}, err
	}
	switch {
	case typ == kgcChild:
		if len(*stack) == 0 {
			return GCConst{}, formatErrf(abs, "child prototype reference with empty prototype stack")
		}
		child := (*stack)[len(*stack)-1]
		*stack = (*stack)[:len(*stack)-1]
		return GCConst{Kind: GCChild, Child: child}, nil

	case typ == kgcTab:
		t, err := parseTableTemplate(r)
		if err != nil {
			return GCConst{}, err
		}
		return GCConst{Kind: GCTable, Table: t}, nil

	case typ == kgcI64, typ == kgcU64:
		lo, err := r.uleb()
		if err != nil {
			return GCConst{}, err
		}
		hi, err := r.uleb()
		if err != nil {
			return GCConst{}, err
		}
		u := uint64(hi)<<32 | uint64(lo)
		if typ == kgcI64 {
			return GCConst{Kind: GCInt64, I64: int64(u)}, nil
		}
		return GCConst{Kind: GCUint64, U64: u}, nil

	case typ == kgcComplex:
		// FFI complex constants require the FFI library state; dumps that
		// carry them must have the FFI flag and are out of scope.
		return GCConst{}, formatErrf(abs, "FFI complex constant is not supported")

	default: // string; length is typ - kgcStr
		b, err := r.bytes(int(typ - kgcStr))
		if err != nil {
			return GCConst{}, err
		}
		return GCConst{Kind: GCString, Str: string(b)}, nil
	}
}

func parseTableTemplate(r *reader) (*TableTemplate, error) {
	narray, err := r.uleb()
	if err != nil {
		return nil, err
	}
	nhash, err := r.uleb()
	if err != nil {
		return nil, err
	}
	t := &TableTemplate{}
	for i := uint32(0); i < narray; i++ {
		v, err := parseTValue(r)
		if err != nil {
			return nil, err
		}
		t.Array = append(t.Array, v)
	}
	for i := uint32(0); i < nhash; i++ {
		k, err := parseTValue(r)
		if err != nil {
			return nil, err
		}
		v, err := parseTValue(r)
		if err != nil {
			return nil, err
		}
		t.Hash = append(t.Hash, TableEntry{Key: k, Val: v})
	}
	return t, nil
}

func parseTValue(r *reader) (TValue, error) {
	typ, err := r.uleb()
	if err != nil {
		return TValue{}, err
	}
	switch typ {
	case ktabNil:
		return TValue{Kind: TVNil}, nil
	case ktabFalse:
		return TValue{Kind: TVFalse}, nil
	case ktabTrue:
		return TValue{Kind: TVTrue}, nil
	case ktabInt:
		v, err := r.uleb()
		if err != nil {
			return TValue{}, err
		}
		return TValue{Kind: TVInt, Int: int32(v)}, nil
	case ktabNum:
		lo, err := r.uleb()
		if err != nil {
			return TValue{}, err
		}
		hi, err := r.uleb()
		if err != nil {
			return TValue{}, err
		}
		return TValue{Kind: TVNum, Num: math.Float64frombits(uint64(hi)<<32 | uint64(lo))}, nil
	default:
		b, err := r.bytes(int(typ - ktabStr))
		if err != nil {
			return TValue{}, err
		}
		return TValue{Kind: TVString, Str: string(b)}, nil
	}
}

// Debug varinfo terminator and the range of internal variable name enums.
const (
	varnameEnd = 0
	varnameMax = 7 // first byte >= this starts an inline name string
)

// parseDebug decodes the per-instruction line table, upvalue names and
// local-variable records.
func parseDebug(p *Proto, dbg []byte, base, sizeBC, sizeUV int) error {
	r := &reader{data: dbg, base: base}
	abs := r.off

	// Line table entry width depends on the line count.
	p.LineInfo = make([]int, sizeBC)
	for i := 0; i < sizeBC; i++ {
		var delta uint32
		switch {
		case p.NumLines < 1<<8:
			b, err := r.byte()
			if err != nil {
				return formatErrf(abs(), "line table: truncated")
			}
			delta = uint32(b)
		case p.NumLines < 1<<16:
			v, err := r.u16()
			if err != nil {
				return formatErrf(abs(), "line table: truncated")
			}
			delta = uint32(v)
		default:
			v, err := r.u32()
			if err != nil {
				return formatErrf(abs(), "line table: truncated")
			}
			delta = v
		}
		p.LineInfo[i] = p.FirstLine + int(delta)
	}

	// Upvalue names.
	p.UpvalNames = make([]string, sizeUV)
	for i := 0; i < sizeUV; i++ {
		s, err := r.cstring()
		if err != nil {
			return formatErrf(abs(), "upvalue names: truncated")
		}
		p.UpvalNames[i] = s
	}

	// Local-variable records: (name, startpc delta, endpc delta), with
	// startpc deltas accumulating across records.
	lastPC := 0
	for {
		if r.remaining() == 0 {
			return formatErrf(abs(), "varinfo: missing terminator")
		}
		first := r.data[r.pos]
		var name string
		if first >= varnameMax {
			s, err := r.cstring()
			if err != nil {
				return formatErrf(abs(), "varinfo name: truncated")
			}
			name = s
		} else {
			r.pos++
			if first == varnameEnd {
				break
			}
			name = internalVarNames[first-1]
		}
		startDelta, err := r.uleb()
		if err != nil {
			return err
		}
		endDelta, err := r.uleb()
		if err != nil {
			return err
		}
		start := lastPC + int(startDelta)
		lastPC = start
		p.VarInfo = append(p.VarInfo, VarInfo{
			Name:    name,
			StartPC: start,
			EndPC:   start + int(endDelta),
		})
	}
	if r.remaining() != 0 {
		return formatErrf(abs(), "varinfo: %d trailing bytes", r.remaining())
	}
	return nil
}
