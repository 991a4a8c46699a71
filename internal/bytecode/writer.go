package bytecode

import (
	"bytes"
	"fmt"
	"math"
)

// EncodeDump serializes a Dump to the binary format. This is the inverse of
// ParseDump and is primarily used to build synthetic dumps for testing and
// round-trip verification.
func EncodeDump(d *Dump) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(dumpMagic[:])
	buf.WriteByte(d.Version.dumpByte())
	writeUleb(&buf, d.Flags)
	if !d.Stripped() {
		writeUleb(&buf, uint32(len(d.ChunkName)))
		buf.WriteString(d.ChunkName)
	}
	if err := encodeProtoTree(&buf, d, d.Root); err != nil {
		return nil, err
	}
	buf.WriteByte(0) // dump terminator
	return buf.Bytes(), nil
}

// encodeProtoTree writes prototypes bottom-up: children first, in ascending
// constant-pool index order, so the reader's stack pops resolve each
// parent's child references back to the right prototype.
func encodeProtoTree(buf *bytes.Buffer, d *Dump, p *Proto) error {
	for _, c := range p.Children {
		if err := encodeProtoTree(buf, d, c); err != nil {
			return err
		}
	}
	body, err := encodeProto(d, p)
	if err != nil {
		return err
	}
	writeUleb(buf, uint32(len(body)))
	buf.Write(body)
	return nil
}

func encodeProto(d *Dump, p *Proto) ([]byte, error) {
	var dbg []byte
	if !d.Stripped() {
		dbg = encodeDebug(p)
	}

	var buf bytes.Buffer
	buf.WriteByte(p.Flags)
	buf.WriteByte(byte(p.NumParams))
	buf.WriteByte(byte(p.FrameSize))
	buf.WriteByte(byte(len(p.UpvalRefs)))
	writeUleb(&buf, uint32(len(p.GC)))
	writeUleb(&buf, uint32(len(p.Num)))
	writeUleb(&buf, uint32(len(p.Raw)))
	if !d.Stripped() {
		writeUleb(&buf, uint32(len(dbg)))
		if len(dbg) > 0 {
			writeUleb(&buf, uint32(p.FirstLine))
			writeUleb(&buf, uint32(p.NumLines))
		}
	}

	for _, w := range p.Raw {
		buf.Write([]byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)})
	}
	for _, uv := range p.UpvalRefs {
		buf.Write([]byte{byte(uv), byte(uv >> 8)})
	}

	// GC constants in file order: descending pool index.
	for i := len(p.GC) - 1; i >= 0; i-- {
		if err := encodeGCConst(&buf, p.GC[i]); err != nil {
			return nil, err
		}
	}
	for _, k := range p.Num {
		if k.IsInt {
			writeUleb33(&buf, uint32(k.Int), false)
		} else {
			bits := math.Float64bits(k.Num)
			writeUleb33(&buf, uint32(bits), true)
			writeUleb(&buf, uint32(bits>>32))
		}
	}
	buf.Write(dbg)
	return buf.Bytes(), nil
}

func encodeGCConst(buf *bytes.Buffer, c GCConst) error {
	switch c.Kind {
	case GCChild:
		writeUleb(buf, kgcChild)
	case GCTable:
		writeUleb(buf, kgcTab)
		writeUleb(buf, uint32(len(c.Table.Array)))
		writeUleb(buf, uint32(len(c.Table.Hash)))
		for _, v := range c.Table.Array {
			encodeTValue(buf, v)
		}
		for _, e := range c.Table.Hash {
			encodeTValue(buf, e.Key)
			encodeTValue(buf, e.Val)
		}
	case GCInt64:
		writeUleb(buf, kgcI64)
		writeUleb(buf, uint32(uint64(c.I64)))
		writeUleb(buf, uint32(uint64(c.I64)>>32))
	case GCUint64:
		writeUleb(buf, kgcU64)
		writeUleb(buf, uint32(c.U64))
		writeUleb(buf, uint32(c.U64>>32))
	case GCString:
		writeUleb(buf, uint32(len(c.Str))+kgcStr)
		buf.WriteString(c.Str)
	default:
		return fmt.Errorf("cannot encode GC constant kind %v", c.Kind)
	}
	return nil
}

func encodeTValue(buf *bytes.Buffer, v TValue) {
	switch v.Kind {
	case TVNil:
		writeUleb(buf, ktabNil)
	case TVFalse:
		writeUleb(buf, ktabFalse)
	case TVTrue:
		writeUleb(buf, ktabTrue)
	case TVInt:
		writeUleb(buf, ktabInt)
		writeUleb(buf, uint32(v.Int))
	case TVNum:
		bits := math.Float64bits(v.Num)
		writeUleb(buf, ktabNum)
		writeUleb(buf, uint32(bits))
		writeUleb(buf, uint32(bits>>32))
	case TVString:
		writeUleb(buf, uint32(len(v.Str))+ktabStr)
		buf.WriteString(v.Str)
	}
}

func encodeDebug(p *Proto) []byte {
	if len(p.LineInfo) == 0 && len(p.UpvalNames) == 0 && len(p.VarInfo) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, line := range p.LineInfo {
		delta := uint32(line - p.FirstLine)
		switch {
		case p.NumLines < 1<<8:
			buf.WriteByte(byte(delta))
		case p.NumLines < 1<<16:
			buf.Write([]byte{byte(delta), byte(delta >> 8)})
		default:
			buf.Write([]byte{byte(delta), byte(delta >> 8), byte(delta >> 16), byte(delta >> 24)})
		}
	}
	for _, s := range p.UpvalNames {
		buf.WriteString(s)
		buf.WriteByte(0)
	}
	lastPC := 0
	for _, v := range p.VarInfo {
		if idx := internalVarIndex(v.Name); idx >= 0 {
			buf.WriteByte(byte(idx + 1))
		} else {
			buf.WriteString(v.Name)
			buf.WriteByte(0)
		}
		writeUleb(&buf, uint32(v.StartPC-lastPC))
		writeUleb(&buf, uint32(v.EndPC-v.StartPC))
		lastPC = v.StartPC
	}
	buf.WriteByte(varnameEnd)
	return buf.Bytes()
}

func internalVarIndex(name string) int {
	for i, n := range internalVarNames {
		if n == name {
			return i
		}
	}
	return -1
}

func writeUleb(buf *bytes.Buffer, v uint32) {
	for v >= 0x80 {
		buf.WriteByte(byte(v&0x7f) | 0x80)
		v >>= 7
	}
	buf.WriteByte(byte(v))
}

// writeUleb33 writes the 33-bit variant: tag in bit 0 of the first byte,
// 6 payload bits alongside it, then standard continuation bytes.
func writeUleb33(buf *bytes.Buffer, v uint32, tag bool) {
	b := byte(v&0x3f) << 1
	if tag {
		b |= 1
	}
	v >>= 6
	if v == 0 {
		buf.WriteByte(b)
		return
	}
	buf.WriteByte(b | 0x80)
	for v >= 0x80 {
		buf.WriteByte(byte(v&0x7f) | 0x80)
		v >>= 7
	}
	buf.WriteByte(byte(v))
}

// AD assembles an instruction word in the A/D format for version v.
// Panics if op does not exist under v; intended for building synthetic code.
func AD(v Version, op Op, a, d int) uint32 {
	raw := rawOp(v, op)
	if raw < 0 {
		panic(fmt.Sprintf("opcode %s does not exist in LuaJIT %s", op, v))
	}
	return uint32(raw) | uint32(a&0xff)<<8 | uint32(d&0xffff)<<16
}

// ABC assembles an instruction word in the A/B/C format for version v.
func ABC(v Version, op Op, a, b, c int) uint32 {
	raw := rawOp(v, op)
	if raw < 0 {
		panic(fmt.Sprintf("opcode %s does not exist in LuaJIT %s", op, v))
	}
	return uint32(raw) | uint32(a&0xff)<<8 | uint32(c&0xff)<<16 | uint32(b&0xff)<<24
}

// Jump computes the biased D operand for a jump from pc to target.
func Jump(pc, target int) int { return target - pc - 1 + jumpBias }
