package bytecode

// reader is a bounds-checked cursor over the raw dump bytes. Every read
// failure produces a FormatError carrying the current offset.
type reader struct {
	data []byte
	pos  int
	base int // offset of data[0] within the whole dump, for error reporting
}

// off is the absolute dump offset of the cursor.
func (r *reader) off() int { return r.base + r.pos }

func (r *reader) remaining() int { return len(r.data) - r.pos }

func (r *reader) byte() (uint8, error) {
	if r.pos >= len(r.data) {
		return 0, formatErrf(r.off(), "truncated: expected byte")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, formatErrf(r.off(), "truncated: expected %d bytes, have %d", n, r.remaining())
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// uleb reads a ULEB128-encoded value, capped at 32 bits.
func (r *reader) uleb() (uint32, error) {
	start := r.off()
	var v uint32
	for shift := uint(0); ; shift += 7 {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		if shift == 28 && b > 0x0f {
			return 0, formatErrf(start, "uleb128 value overflows 32 bits")
		}
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
}

// uleb33 reads the 33-bit ULEB128 variant used for number constants: the
// lowest bit of the first byte is a tag (returned separately), the rest is
// a 32-bit payload.
func (r *reader) uleb33() (v uint32, tag bool, err error) {
	b, err := r.byte()
	if err != nil {
		return 0, false, err
	}
	tag = b&1 != 0
	v = uint32(b>>1) & 0x3f
	if b&0x80 == 0 {
		return v, tag, nil
	}
	for shift := uint(6); ; shift += 7 {
		b, err = r.byte()
		if err != nil {
			return 0, false, err
		}
		if shift == 27 && b > 0x1f {
			return 0, false, formatErrf(r.off()-1, "uleb128 value overflows 33 bits")
		}
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, tag, nil
		}
	}
}

// cstring reads a NUL-terminated string.
func (r *reader) cstring() (string, error) {
	start := r.off()
	for i := r.pos; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[r.pos:i])
			r.pos = i + 1
			return s, nil
		}
	}
	return "", formatErrf(start, "truncated: unterminated string")
}
