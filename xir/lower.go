package xir

// lower.go implements the single reverse-order target lowering pass of
// spec §4.2.3, grounded on x86target.c's x86_target_lower: load/store ops
// become explicit address-translate-and-call sequences, flag-free ALU
// forms are promoted to their flag-setting counterpart (x86 has no
// flag-free form except the LEA-backed Add), shift/rotate counts are
// moved into the ABI's count register, and pointer operands wider than
// 32 bits are split into a preload plus register reference. It runs
// after promotion (promote.go) and before register allocation.

// ABI names the handful of target register slots the lowering pass
// itself must reference directly, independent of whatever numbering the
// backend eventually assigns to them (target/x86/emit.go owns that).
// Grounded on x86target.c's REG_ARG1/REG_ARG2/REG_RESULT1/REG_ECX, which
// are themselves abstract slot macros resolved by the x86 backend rather
// than literal register encodings.
type ABI struct {
	Arg1    int
	Arg2    int
	Result1 int
	Count   int // the register shift/rotate counts must be loaded into (x86's CL)
}

// MemFunc identifies which address-space accessor a lowered Load/Store
// should call through CallLut, mirroring the MEM_FUNC_OFFSET slots of
// struct mem_region_fn.
type MemFunc int

const (
	MemReadByte MemFunc = iota
	MemReadByteForWrite
	MemReadWord
	MemReadLong
	MemPrefetch
	MemWriteByte
	MemWriteWord
	MemWriteLong
)

// PointerWidth selects how pointer-sized operands are lowered: 4 for a
// 32-bit host (pointers fit as a 32-bit immediate everywhere), 8 for
// 64-bit (pointers at or above 2^32 need a preload into a register).
type PointerWidth int

// Lower runs the target lowering pass over the whole block, mirroring
// x86_target_lower's single backward walk. tmp1/tmp2 are scratch temp
// register indices reserved for shuffle lowering (REG_TMP3/REG_TMP4 in
// the source), tmp3 is the scratch used for pointer preloads and the
// NegF/NegD zero operand (REG_TMP4 reused), and flagsTmp holds the flags
// across a SaveFlags/RestFlags pair (REG_TMP5). Address translation uses
// the reserved pageIndexTemp slot, not any of these.
func Lower(bb *BasicBlock, abi ABI, width PointerWidth, tmp1, tmp2, tmp3, flagsTmp int) {
	flagsLive := false
	for ref := bb.Tail; ref != NoRef; {
		op := bb.Op(ref)
		prev := op.Prev

		switch op.Opcode {
		case OpAddC, OpAnd, OpDiv, OpMul, OpMulQ, OpNeg, OpNot, OpOr, OpXor, OpSub, OpSubB, OpSDiv:
			op.Opcode++
			if flagsLive {
				bb.InsertOp(OpSaveFlags, CCTrue, TempReg(flagsTmp), None, ref)
				bb.InsertAfter(ref, OpRestFlags, CCTrue, TempReg(flagsTmp), None)
			}

		case OpSar, OpSll, OpSlr, OpRol, OpRor:
			op.Opcode++
			lowerShiftCount(bb, ref, op, abi)

		case OpSarS, OpSllS, OpSlrS, OpRcl, OpRcr, OpRolS, OpRorS:
			lowerShiftCount(bb, ref, op, abi)

		case OpShad, OpShld:
			lowerVariableShift(bb, ref, op, abi)

		case OpCall1:
			bb.InsertOp(OpMov, CCTrue, op.Operand[1], TargetReg(abi.Arg1), ref)
			op.Opcode = OpCall0
			op.Operand[1] = None

		case OpCallR:
			bb.InsertAfter(ref, OpMov, CCTrue, TargetReg(abi.Result1), op.Operand[1])
			op.Opcode = OpCall0
			op.Operand[1] = None

		case OpLoadB:
			lowerMemLoad(bb, ref, op, abi, MemReadByte)
		case OpLoadBFW:
			lowerMemLoad(bb, ref, op, abi, MemReadByteForWrite)
		case OpLoadW:
			lowerMemLoad(bb, ref, op, abi, MemReadWord)
		case OpLoadL:
			lowerMemLoad(bb, ref, op, abi, MemReadLong)
		case OpPref:
			lowerMemLoad(bb, ref, op, abi, MemPrefetch)
		case OpLoadQ:
			lowerMemLoadQ(bb, ref, op, abi)
		case OpStoreB:
			lowerMemStore(bb, ref, op, abi, MemWriteByte)
		case OpStoreW:
			lowerMemStore(bb, ref, op, abi, MemWriteWord)
		case OpStoreL, OpStoreLCA:
			lowerMemStore(bb, ref, op, abi, MemWriteLong)
		case OpStoreQ:
			lowerMemStoreQ(bb, ref, op, abi)

		case OpShuffle:
			pattern := uint16(op.Operand[0].Imm)
			if pattern == 0x2134 {
				bb.InsertOp(OpMov, CCTrue, op.Operand[1], TargetReg(abi.Count), ref)
				op.Operand[1] = TargetReg(abi.Count)
			} else if pattern != 0x4321 {
				ref = ShuffleLower(bb, ref, tmp1, tmp2)
				op = bb.Op(ref)
			}

		case OpNegF:
			bb.InsertOp(OpMov, CCTrue, IntImm(0), TempReg(tmp3), ref)
			bb.InsertAfter(ref, OpMov, CCTrue, TempReg(tmp3), op.Operand[0])
			op.Opcode = OpSubF
			op.Operand[1] = TempReg(tmp3)

		case OpNegD:
			bb.InsertOp(OpMovQ, CCTrue, QuadImm(0), TempReg(tmp3), ref)
			bb.InsertAfter(ref, OpMovQ, CCTrue, TempReg(tmp3), op.Operand[0])
			op.Opcode = OpSubD
			op.Operand[1] = TempReg(tmp3)

		case OpXlat:
			if op.Operand[0].Kind == OperandPtrImm && width == 8 && op.Operand[0].Imm >= 1<<32 {
				bb.InsertOp(OpMovQ, CCTrue, op.Operand[0], TempReg(tmp3), ref)
				op.Operand[0] = TempReg(tmp3)
			}
		}

		if Info(op.Opcode).ReadsFlags() {
			flagsLive = true
		} else if Info(op.Opcode).WritesFlags() {
			flagsLive = false
		}

		lowerPointerOperand(bb, ref, op, width, tmp3)

		ref = prev
	}
}

func lowerShiftCount(bb *BasicBlock, ref OpRef, op *Op, abi ABI) {
	if op.Operand[0].Kind == OperandSourceReg || op.Operand[0].Kind == OperandTempReg {
		bb.InsertOp(OpMov, CCTrue, op.Operand[0], TargetReg(abi.Count), ref)
		op.Operand[0] = TargetReg(abi.Count)
	}
}

// lowerVariableShift lowers Shad/Shld (the SH4 arithmetic/logical
// "shift by signed amount" macro-ops): a register shift count goes
// through the ABI's count register as usual, while a constant count
// collapses to the plain Sll/Slr/Sar/Mov/Nop it's equivalent to.
func lowerVariableShift(bb *BasicBlock, ref OpRef, op *Op, abi ABI) {
	if op.Operand[0].Kind == OperandSourceReg || op.Operand[0].Kind == OperandTempReg {
		bb.InsertOp(OpMov, CCTrue, op.Operand[0], TargetReg(abi.Count), ref)
		op.Operand[0] = TargetReg(abi.Count)
		return
	}
	if op.Operand[0].Kind != OperandIntImm {
		return
	}
	amount := op.Operand[0].Int32()
	switch {
	case amount == 0:
		op.Opcode = OpNop
		op.Operand[0], op.Operand[1] = None, None
	case amount > 0:
		op.Opcode = OpSll
	case amount&0x1F == 0:
		if op.Opcode == OpShld {
			op.Opcode = OpMov
			op.Operand[0] = IntImm(0)
		} else {
			op.Opcode = OpSar
			op.Operand[0] = IntImm(31)
		}
	default:
		if op.Opcode == OpShld {
			op.Opcode = OpSlr
		} else {
			op.Opcode = OpSar
		}
		op.Operand[0] = IntImm((-amount) & 0x1F)
	}
}

// lowerMemLoad replaces a LoadB/LoadBFW/LoadW/LoadL/Pref op with the
// address-translate-and-call sequence of lower_mem_load: compute the
// page index, translate it through the block's address space, call the
// accessor, then (for ops that write a result) move it out of Result1.
func lowerMemLoad(bb *BasicBlock, ref OpRef, op *Op, abi ABI, fn MemFunc) {
	addr := op.Operand[0]
	writesResult := Info(op.Opcode).WritesOp2()
	result := op.Operand[1]

	bb.InsertOp(OpMov, CCTrue, addr, TargetReg(abi.Arg1), ref)
	tmp := appendXlat(bb, ref, addr)

	if writesResult {
		bb.InsertAfter(ref, OpMov, CCTrue, TargetReg(abi.Result1), result)
	}

	op.Opcode = OpCallLut
	op.Operand[0] = tmp
	op.Operand[1] = IntImm(int32(fn))
}

func lowerMemStore(bb *BasicBlock, ref OpRef, op *Op, abi ABI, fn MemFunc) {
	addr, val := op.Operand[0], op.Operand[1]

	bb.InsertOp(OpMov, CCTrue, addr, TargetReg(abi.Arg1), ref)
	bb.InsertOp(OpMov, CCTrue, val, TargetReg(abi.Arg2), ref)
	tmp := appendXlat(bb, ref, addr)

	op.Opcode = OpCallLut
	op.Operand[0] = tmp
	op.Operand[1] = IntImm(int32(fn))
}

// lowerMemLoadQ lowers a 64-bit load into two 32-bit accessor calls,
// mirroring lower_mem_loadq, which reads the high word from addr and the
// low word from addr+4 (the two results are later concatenated by
// whichever register pair the allocator assigns the quad temp).
func lowerMemLoadQ(bb *BasicBlock, ref OpRef, op *Op, abi ABI) {
	addr := op.Operand[0]
	result := op.Operand[1]
	exc := op.Exc

	bb.InsertOp(OpMov, CCTrue, addr, TargetReg(abi.Arg1), ref)
	tmp := appendXlat(bb, ref, addr)
	op.Opcode = OpCallLut
	op.Operand[0] = tmp
	op.Operand[1] = IntImm(int32(MemReadLong))

	hi := bb.InsertAfter(ref, OpMov, CCTrue, TargetReg(abi.Result1), quadHiHalf(result))
	add := bb.InsertAfter(hi, OpAdd, CCTrue, IntImm(4), TargetReg(abi.Arg1))
	callRef := bb.InsertAfter(add, OpCallLut, CCTrue, tmp, IntImm(int32(MemReadLong)))
	bb.Op(callRef).Exc = exc
	bb.InsertAfter(callRef, OpMov, CCTrue, TargetReg(abi.Result1), quadLoHalf(result))
}

func lowerMemStoreQ(bb *BasicBlock, ref OpRef, op *Op, abi ABI) {
	addr := op.Operand[0]
	val := op.Operand[1]
	exc := op.Exc

	bb.InsertOp(OpMov, CCTrue, addr, TargetReg(abi.Arg1), ref)
	bb.InsertOp(OpMov, CCTrue, quadHiHalf(val), TargetReg(abi.Arg2), ref)
	tmp := appendXlat(bb, ref, addr)
	op.Opcode = OpCallLut
	op.Operand[0] = tmp
	op.Operand[1] = IntImm(int32(MemWriteLong))

	mov := bb.InsertAfter(ref, OpMov, CCTrue, quadLoHalf(val), TargetReg(abi.Arg2))
	add := bb.InsertAfter(mov, OpAdd, CCTrue, IntImm(4), TargetReg(abi.Arg1))
	callRef := bb.InsertAfter(add, OpCallLut, CCTrue, tmp, IntImm(int32(MemWriteLong)))
	bb.Op(callRef).Exc = exc
}

// quadHiHalf/quadLoHalf split a quad-typed operand into the two 32-bit
// halves a 32-bit host addresses independently; for a temp/source quad
// register they advance to the paired register, for an immediate they
// split the bit pattern.
func quadHiHalf(op Operand) Operand {
	if op.IsImmediate() {
		return IntImm(int32(uint32(op.Imm >> 32)))
	}
	return Operand{Kind: op.Kind, Reg: op.Reg + 1}
}
func quadLoHalf(op Operand) Operand {
	if op.IsImmediate() {
		return IntImm(int32(uint32(op.Imm)))
	}
	return op
}

// appendXlat builds the address-translate sequence of xir_append_xlat:
// the address is copied into the pageIndexTemp slot, right-shifted by 12
// and translated through the table with Xlat. It inserts before ref and
// returns the register operand holding the translated function-table
// pointer. It inserts no MovQ preload of the table pointer: the Xlat's
// table operand is PtrImm(0), and the x86 emitter supplies the table
// base itself, loading it into a register when it does not fit a disp32.
func appendXlat(bb *BasicBlock, ref OpRef, addr Operand) Operand {
	const pageTemp = pageIndexTemp
	bb.InsertOp(OpMov, CCTrue, addr, SourceReg(pageTemp), ref)
	bb.InsertOp(OpSlr, CCTrue, IntImm(12), SourceReg(pageTemp), ref)
	bb.InsertOp(OpXlat, CCTrue, PtrImm(0), SourceReg(pageTemp), ref)
	return SourceReg(pageTemp)
}

// pageIndexTemp is the reserved source-register slot lowering uses to
// hold a translated page index across the mov/slr/xlat/calllut
// sequence; it is out of the guest's visible register range so the
// allocator treats it purely as scratch.
const pageIndexTemp = MaxSourceReg - 1

// lowerPointerOperand reclassifies a pointer-immediate operand[0] into a
// plain integer or quad immediate, inserting a preload through tmp when
// the value can't be encoded directly (a 64-bit host address at or above
// 2^32, used anywhere but a MovQ). Mirrors the tail of x86_target_lower,
// corrected: the source keeps reassigning operand[0] to QUAD_IMM_OPERAND
// even along the register-preload branch, which would silently discard
// the register it just loaded; here the preload branch leaves the
// operand as the register it loaded into.
func lowerPointerOperand(bb *BasicBlock, ref OpRef, op *Op, width PointerWidth, tmp3 int) {
	if op.Operand[0].Kind != OperandPtrImm {
		return
	}
	if width == 8 && op.Operand[0].Imm >= 1<<32 {
		switch {
		case op.Opcode == OpMov:
			op.Opcode = OpMovQ
			op.Operand[0] = Operand{Kind: OperandQuadImm, Imm: op.Operand[0].Imm}
		case op.Opcode != OpMovQ:
			bb.InsertOp(OpMovQ, CCTrue, Operand{Kind: OperandQuadImm, Imm: op.Operand[0].Imm}, TempReg(tmp3), ref)
			op.Operand[0] = TempReg(tmp3)
		default:
			op.Operand[0] = Operand{Kind: OperandQuadImm, Imm: op.Operand[0].Imm}
		}
	} else {
		if op.Opcode == OpMovQ {
			op.Opcode = OpMov
		}
		op.Operand[0] = IntImm(int32(uint32(op.Operand[0].Imm)))
	}
}
