package xir

// promote.go implements source-to-temp register promotion (spec §4.2.4),
// grounded on xlat/regalloc.c's xir_promote_source_registers: every
// source-register operand is replaced by a temp register, with a Mov
// inserted on first read and a writeback Mov inserted after the last op
// that touches the temp, if that temp was ever written.

// tempAccess tracks, for one allocated temp register, whether it still
// needs to be written back to its source-register home and which op last
// touched it (the point the writeback is inserted after).
type tempAccess struct {
	dirty      bool
	lastAccess OpRef
}

// PromoteSourceRegisters rewrites every SourceReg operand between start
// and end (inclusive) into a TempReg operand, allocating one temp per
// distinct source register on first sight. Mirrors
// xir_promote_source_registers's single forward walk.
//
// Partial-aliasing sub-registers (x86's AL/AH view of a 32-bit source
// register) are not modeled by Operand, which addresses only whole
// source registers; the spill-and-reload-on-alias-conflict behavior the
// original notes as "needs to be improved" therefore has nothing to
// trigger on here and is not reproduced.
func PromoteSourceRegisters(bb *BasicBlock, start, end OpRef) {
	sourceRegs := make(map[int]int)
	accesses := make(map[int]*tempAccess)

	for ref := start; ref != NoRef; {
		op := bb.Op(ref)
		info := Info(op.Opcode)

		if op.Operand[0].Kind == OperandSourceReg {
			promoteOperand(bb, ref, op, 0, sourceRegs, accesses, info.ReadsOp1(), info.WritesOp1())
		}
		if op.Operand[1].Kind == OperandSourceReg {
			promoteOperand(bb, ref, op, 1, sourceRegs, accesses, info.ReadsOp2(), info.WritesOp2())
		}

		if ref == end {
			break
		}
		ref = op.Next
	}

	for reg, t := range sourceRegs {
		acc := accesses[t]
		if acc != nil && acc.dirty {
			bb.InsertAfter(acc.lastAccess, OpMov, CCTrue, TempReg(t), SourceReg(reg))
		}
	}
}

func promoteOperand(bb *BasicBlock, ref OpRef, op *Op, pos int, sourceRegs map[int]int, accesses map[int]*tempAccess, reads, writes bool) {
	reg := op.Operand[pos].Reg
	t, ok := sourceRegs[reg]
	if !ok {
		// Source registers carry the guest's general-purpose width; every
		// temp allocated here is Long regardless of the op's own operand
		// type (FPU/vector ops never address the source-register file).
		t = bb.AllocTemp(TypeLong, reg)
		sourceRegs[reg] = t
		accesses[t] = &tempAccess{}
		if reads {
			bb.InsertOp(OpMov, CCTrue, SourceReg(reg), TempReg(t), ref)
		}
	}
	op.Operand[pos] = TempReg(t)
	acc := accesses[t]
	acc.lastAccess = ref
	acc.dirty = acc.dirty || writes
}
