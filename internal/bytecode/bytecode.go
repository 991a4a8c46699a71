// Package bytecode decodes LuaJIT binary bytecode dumps into typed
// prototype records.
package bytecode

import "fmt"

// Version selects the bytecode dump format. It must be supplied by the
// caller; dumps are never auto-detected across versions because the two
// encodings renumber opcodes.
type Version int

const (
	// V20 is the LuaJIT 2.0 dump format (dump version byte 1).
	V20 Version = 20
	// V21 is the LuaJIT 2.1 dump format (dump version byte 2).
	V21 Version = 21
)

func (v Version) String() string {
	switch v {
	case V20:
		return "2.0"
	case V21:
		return "2.1"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// dumpByte is the version byte stored in the dump header.
func (v Version) dumpByte() byte {
	if v == V20 {
		return 1
	}
	return 2
}

// Valid reports whether v is a supported format version.
func (v Version) Valid() bool {
	return v == V20 || v == V21
}

// Dump header magic: ESC 'L' 'J'.
var dumpMagic = [3]byte{0x1b, 0x4c, 0x4a}

// Dump-level flags (uleb128 after the version byte).
const (
	DumpBigEndian uint32 = 0x01
	DumpStripped  uint32 = 0x02
	DumpFFI       uint32 = 0x04
	DumpFR2       uint32 = 0x08 // 2.1 only: two-slot frame info
)

// Prototype flags.
const (
	ProtoChild  uint8 = 0x01 // has child prototypes
	ProtoVararg uint8 = 0x02
	ProtoFFI    uint8 = 0x04
	ProtoNoJIT  uint8 = 0x08
	ProtoILoop  uint8 = 0x10
)

// Dump is one decoded bytecode dump: the root prototype plus all nested
// prototypes. Protos is ordered root first, then depth first, which is the
// order the rest of the pipeline consumes; the on-disk dump stores
// prototypes bottom-up and the reader re-roots them.
type Dump struct {
	Version   Version
	Flags     uint32
	ChunkName string
	Root      *Proto
	Protos    []*Proto
}

// Stripped reports whether the dump was written without debug information.
func (d *Dump) Stripped() bool { return d.Flags&DumpStripped != 0 }
