// Package xir implements the two-operand translation intermediate
// representation and x86/x86-64 code generator used as the back end of a
// binary translator from a guest ISA to host machine code (spec §3.2,
// §4.2). The IR container, opcode metadata, constructors/mutators,
// shuffle transform, target lowering, register promotion and emitter all
// live here or in the target/x86 subpackage.
package xir

// RegType is the value type carried by a temp register descriptor.
type RegType int

const (
	TypeNone RegType = iota
	TypeLong
	TypeQuad
	TypeFloat
	TypeDouble
	TypeVec4
	TypeMatrix
	TypePtr
)

func (t RegType) String() string {
	switch t {
	case TypeLong:
		return "long"
	case TypeQuad:
		return "quad"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeVec4:
		return "vec4"
	case TypeMatrix:
		return "matrix"
	case TypePtr:
		return "ptr"
	default:
		return "none"
	}
}

// Register namespaces (spec §3.2): source registers 0..1023 (1024..1535
// are temporaries allocated during IR construction); target registers
// 0..127, named by the target machine.
const (
	MaxSourceReg = 1024
	TempRegBase  = 1024
	MaxTempReg   = 1536
	MaxTargetReg = 128
)

// CC is an IR condition code. True is the unconditional "always" code;
// the rest mirror the standard signed/unsigned comparisons plus overflow.
type CC int

const (
	CCTrue CC = iota - 1
	CCEQ
	CCNE
	CCGT
	CCGE
	CCLT
	CCLE
	CCUGT
	CCUGE
	CCULT
	CCULE
	CCOverflow
	CCNotOverflow
	CCNever
)

func (cc CC) String() string {
	names := map[CC]string{
		CCTrue: "true", CCEQ: "eq", CCNE: "ne", CCGT: "gt", CCGE: "ge",
		CCLT: "lt", CCLE: "le", CCUGT: "ugt", CCUGE: "uge", CCULT: "ult",
		CCULE: "ule", CCOverflow: "ov", CCNotOverflow: "nov", CCNever: "never",
	}
	if n, ok := names[cc]; ok {
		return n
	}
	return "cc?"
}

// Invert returns the condition code that is true exactly when cc is
// false, used by lowering passes that need to branch around a block.
func (cc CC) Invert() CC {
	switch cc {
	case CCTrue:
		return CCNever
	case CCNever:
		return CCTrue
	case CCEQ:
		return CCNE
	case CCNE:
		return CCEQ
	case CCGT:
		return CCLE
	case CCGE:
		return CCLT
	case CCLT:
		return CCGE
	case CCLE:
		return CCGT
	case CCUGT:
		return CCULE
	case CCUGE:
		return CCULT
	case CCULT:
		return CCUGE
	case CCULE:
		return CCUGT
	case CCOverflow:
		return CCNotOverflow
	case CCNotOverflow:
		return CCOverflow
	default:
		return cc
	}
}

// OperandKind is the tag of the Operand union.
type OperandKind int

const (
	OperandNone OperandKind = iota
	OperandSourceReg
	OperandTargetReg
	OperandTempReg
	OperandIntImm
	OperandQuadImm
	OperandFloatImm
	OperandDoubleImm
	OperandPtrImm
)

func (k OperandKind) String() string {
	switch k {
	case OperandSourceReg:
		return "sreg"
	case OperandTargetReg:
		return "treg"
	case OperandTempReg:
		return "tmp"
	case OperandIntImm:
		return "imm32"
	case OperandQuadImm:
		return "imm64"
	case OperandFloatImm:
		return "immf"
	case OperandDoubleImm:
		return "immd"
	case OperandPtrImm:
		return "immptr"
	default:
		return "none"
	}
}

// Operand is the tagged union described in spec §3.2. Reg is valid for
// the three register kinds (source/target/temp, all sharing the same
// numeric namespace allocation scheme); Imm carries the bit pattern for
// every immediate kind (float/double bits reinterpreted via
// math.Float32bits/Float64bits).
type Operand struct {
	Kind OperandKind
	Reg  int
	Imm  uint64
}

// None is the zero operand.
var None = Operand{Kind: OperandNone}

// SourceReg constructs a source-register operand.
func SourceReg(n int) Operand { return Operand{Kind: OperandSourceReg, Reg: n} }

// TargetReg constructs a target-register operand (named by the backend).
func TargetReg(n int) Operand { return Operand{Kind: OperandTargetReg, Reg: n} }

// TempReg constructs a temp-register operand; n is an index into the
// block's temp descriptor table, not added to TempRegBase by the caller.
func TempReg(n int) Operand { return Operand{Kind: OperandTempReg, Reg: n} }

// IntImm constructs a 32-bit immediate operand.
func IntImm(v int32) Operand { return Operand{Kind: OperandIntImm, Imm: uint64(uint32(v))} }

// QuadImm constructs a 64-bit immediate operand.
func QuadImm(v int64) Operand { return Operand{Kind: OperandQuadImm, Imm: uint64(v)} }

// PtrImm constructs a pointer-sized immediate operand.
func PtrImm(v uint64) Operand { return Operand{Kind: OperandPtrImm, Imm: v} }

// IsRegister reports whether op occupies a register position (as opposed
// to an immediate or the empty operand) - used by the verifier to check
// that writable operand positions hold a register.
func (op Operand) IsRegister() bool {
	switch op.Kind {
	case OperandSourceReg, OperandTargetReg, OperandTempReg:
		return true
	default:
		return false
	}
}

// IsImmediate reports whether op carries a constant value.
func (op Operand) IsImmediate() bool {
	switch op.Kind {
	case OperandIntImm, OperandQuadImm, OperandFloatImm, OperandDoubleImm, OperandPtrImm:
		return true
	default:
		return false
	}
}

func (op Operand) Int32() int32 { return int32(uint32(op.Imm)) }
func (op Operand) Int64() int64 { return int64(op.Imm) }

// RegDesc describes one allocated temporary register (spec §3.2's temp
// register descriptor table).
type RegDesc struct {
	Type RegType
	// Home is the source register this temp was materialized from, or -1
	// if it has no home (a pure scratch temp introduced by lowering).
	Home int
}
