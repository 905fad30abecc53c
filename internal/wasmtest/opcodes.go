package wasmtest

const (
	opUnreachable = 0x00
	opBlock       = 0x02
	opLoop        = 0x03
	opIf          = 0x04
	opEnd         = 0x0B
	opBr          = 0x0C
	opBrIf        = 0x0D
	opCall        = 0x10
	opDrop        = 0x1A
	opLocalGet    = 0x20
	opLocalSet    = 0x21
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Load     = 0x28
	opI32Load8U   = 0x2D
	opI32Store    = 0x36
	opI32Store8   = 0x3A
	opI32Const    = 0x41
	opI64Const    = 0x42
	opI32Eqz      = 0x45
	opI32GeU      = 0x4F
	opI32Add      = 0x6A
	opI32Sub      = 0x6B
	opI64Or       = 0x84
	opI64Shl      = 0x86
	opI64ShrU     = 0x88
	opI32WrapI64  = 0xA7
	opI64ExtendU  = 0xAD
	opPrefixFC    = 0xFC
	opMemoryCopy  = 0x0A
	blockEmpty    = 0x40
)

// I32Const pushes an i32.
func I32Const(v int32) []byte { return appendS64([]byte{opI32Const}, int64(v)) }

// I64Const pushes an i64.
func I64Const(v int64) []byte { return appendS64([]byte{opI64Const}, v) }

// Call calls function idx.
func Call(idx uint32) []byte { return appendU32([]byte{opCall}, idx) }

// LocalGet pushes local i.
func LocalGet(i uint32) []byte { return appendU32([]byte{opLocalGet}, i) }

// LocalSet pops into local i.
func LocalSet(i uint32) []byte { return appendU32([]byte{opLocalSet}, i) }

// GlobalGet pushes global i.
func GlobalGet(i uint32) []byte { return appendU32([]byte{opGlobalGet}, i) }

// GlobalSet pops into global i.
func GlobalSet(i uint32) []byte { return appendU32([]byte{opGlobalSet}, i) }

// Br branches to the label depth.
func Br(depth uint32) []byte { return appendU32([]byte{opBr}, depth) }

// BrIf branches to the label depth when the popped i32 is non-zero.
func BrIf(depth uint32) []byte { return appendU32([]byte{opBrIf}, depth) }

// Single-byte instructions.
var (
	Unreachable = []byte{opUnreachable}
	Block       = []byte{opBlock, blockEmpty}
	Loop        = []byte{opLoop, blockEmpty}
	If          = []byte{opIf, blockEmpty}
	End         = []byte{opEnd}
	Drop        = []byte{opDrop}
	I32Load     = []byte{opI32Load, 0x02, 0x00}
	I32Load8U   = []byte{opI32Load8U, 0x00, 0x00}
	I32Store    = []byte{opI32Store, 0x02, 0x00}
	I32Store8   = []byte{opI32Store8, 0x00, 0x00}
	I32Eqz      = []byte{opI32Eqz}
	I32GeU      = []byte{opI32GeU}
	I32Add      = []byte{opI32Add}
	I32Sub      = []byte{opI32Sub}
	I64Or       = []byte{opI64Or}
	I64Shl      = []byte{opI64Shl}
	I64ShrU     = []byte{opI64ShrU}
	I32WrapI64  = []byte{opI32WrapI64}
	I64ExtendU  = []byte{opI64ExtendU}
	MemoryCopy  = []byte{opPrefixFC, opMemoryCopy, 0x00, 0x00}
)
