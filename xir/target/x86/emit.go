package x86

import (
	"fmt"

	"github.com/lxdream/dreamxir/xir"
)

// emit.go is the per-opcode codegen switch of spec §4.2.5, grounded on
// x86gen.c's x86_target_codegen: one case per IR opcode, each branching
// further on its pair of operand forms. x86gen.c's SRC/TMP operand kinds
// are always memory (guest register file off RBP, temp stack frame off
// RSP) regardless of whether the allocator ever ran; only an operand
// already rewritten to a TargetReg addresses real hardware. This file
// reproduces that property directly rather than requiring the sketch-
// level allocator in regalloc.go to run first.

// RegSize is the byte width of one guest/temp register-file slot, used
// to compute each SourceReg/TempReg operand's frame displacement.
const RegSize = 4

const (
	ccEQ = iota
	ccNE
	ccGT
	ccGE
	ccLT
	ccLE
	ccUGT
	ccUGE
	ccULT
	ccULE
	ccOverflow
	ccNotOverflow
)

func ccIndex(cc xir.CC) int {
	switch cc {
	case xir.CCEQ:
		return ccEQ
	case xir.CCNE:
		return ccNE
	case xir.CCGT:
		return ccGT
	case xir.CCGE:
		return ccGE
	case xir.CCLT:
		return ccLT
	case xir.CCLE:
		return ccLE
	case xir.CCUGT:
		return ccUGT
	case xir.CCUGE:
		return ccUGE
	case xir.CCULT:
		return ccULT
	case xir.CCULE:
		return ccULE
	case xir.CCOverflow:
		return ccOverflow
	case xir.CCNotOverflow:
		return ccNotOverflow
	default:
		panic("x86: condition code has no Jcc encoding")
	}
}

// Emitter carries the handful of target-specific register slots and
// host pointer width emit.go's memory-trampoline/call cases need,
// alongside the CodeGen buffer they emit into.
type Emitter struct {
	*CodeGen
	ABI         xir.ABI
	Width       xir.PointerWidth
	TableBase   uint64
	FuncPtrSize int // byte width of one mem_region_fn slot entry (4 or 8)
}

// NewEmitter wraps a fresh CodeGen with the ABI/addressing parameters
// the lowering pass (xir.Lower) was run with, so emission addresses the
// same ARG1/ARG2/RESULT1/Count slots and table layout.
func NewEmitter(abi xir.ABI, width xir.PointerWidth, tableBase uint64) *Emitter {
	ptrSize := 4
	if width == 8 {
		ptrSize = 8
	}
	return &Emitter{CodeGen: NewCodeGen(), ABI: abi, Width: width, TableBase: tableBase, FuncPtrSize: ptrSize}
}

// operandLoc is a resolved frame-relative memory location for a
// SourceReg/TempReg operand (the only two kinds resolve ever sees; a
// TargetReg operand addresses a hardware register directly and never
// goes through it).
type operandLoc struct {
	base int
	disp int32
}

func (e *Emitter) resolve(op xir.Operand) operandLoc {
	switch op.Kind {
	case xir.OperandSourceReg:
		return operandLoc{base: regRBP, disp: int32(op.Reg * RegSize)}
	case xir.OperandTempReg:
		return operandLoc{base: regRSP, disp: int32(op.Reg * RegSize)}
	default:
		panic(fmt.Sprintf("x86: operand kind %v has no frame-relative location", op.Kind))
	}
}

// illegalForm mirrors x86gen.c's ILLOP macro: codegen for an
// unencodable operand-form pair is a fatal error, not a silent fallback.
func illegalForm(op *xir.Op) {
	panic(fmt.Sprintf("x86: illegal operand form for opcode %s: %v, %v", xir.Info(op.Opcode).Name, op.Operand[0].Kind, op.Operand[1].Kind))
}

// emitALU emits one of the eight operand-pattern rows of spec §4.2.5's
// table for a binary ALU opcode (Add/And/Sub/Xor/Or/Cmp and their
// flag-setting *S siblings, which share an encoding - the S suffix only
// changes what the IR considers the flags-liveness contract).
func (e *Emitter) emitALU(alu aluOp, op *xir.Op) {
	a, b := op.Operand[0], op.Operand[1]
	switch {
	case a.IsImmediate() && b.Kind == xir.OperandTargetReg:
		e.ALUImmReg(alu, a.Int32(), b.Reg)
	case a.IsImmediate() && (b.Kind == xir.OperandSourceReg || b.Kind == xir.OperandTempReg):
		loc := e.resolve(b)
		e.ALUImmToMem(alu, a.Int32(), loc.base, loc.disp)
	case a.Kind == xir.OperandTargetReg && b.Kind == xir.OperandTargetReg:
		e.ALURegReg(alu, a.Reg, b.Reg)
	case (a.Kind == xir.OperandSourceReg || a.Kind == xir.OperandTempReg) && b.Kind == xir.OperandTargetReg:
		loc := e.resolve(a)
		e.ALUMemToReg(alu, loc.base, loc.disp, b.Reg)
	case a.Kind == xir.OperandTargetReg && (b.Kind == xir.OperandSourceReg || b.Kind == xir.OperandTempReg):
		loc := e.resolve(b)
		e.ALURegToMem(alu, a.Reg, loc.base, loc.disp)
	default:
		illegalForm(op)
	}
}

// emitMov emits spec §4.2.5's Mov row, the same eight-way switch as
// emitALU but against the dedicated Mov* encoders (Mov has no /digit and
// no flag side effects).
func (e *Emitter) emitMov(op *xir.Op) {
	a, b := op.Operand[0], op.Operand[1]
	switch {
	case a.IsImmediate() && b.Kind == xir.OperandTargetReg:
		e.MovImmReg(a.Int32(), b.Reg)
	case a.IsImmediate() && (b.Kind == xir.OperandSourceReg || b.Kind == xir.OperandTempReg):
		loc := e.resolve(b)
		e.MovImmToMem(a.Int32(), loc.base, loc.disp)
	case a.Kind == xir.OperandTargetReg && b.Kind == xir.OperandTargetReg:
		e.MovRegReg(a.Reg, b.Reg)
	case (a.Kind == xir.OperandSourceReg || a.Kind == xir.OperandTempReg) && b.Kind == xir.OperandTargetReg:
		loc := e.resolve(a)
		e.MovMemToReg(loc.base, loc.disp, b.Reg)
	case a.Kind == xir.OperandTargetReg && (b.Kind == xir.OperandSourceReg || b.Kind == xir.OperandTempReg):
		loc := e.resolve(b)
		e.MovRegToMem(a.Reg, loc.base, loc.disp)
	default:
		illegalForm(op)
	}
}

func (e *Emitter) mustReg(op xir.Operand, opName string) int {
	if op.Kind != xir.OperandTargetReg {
		panic(fmt.Sprintf("x86: %s requires a target register operand, got %v", opName, op.Kind))
	}
	return op.Reg
}

// EmitOp emits the host code for a single op (excluding the four
// macro-ops, which emit_macro.go handles), mirroring one case of
// x86_target_codegen's switch. pcOffset is the guest PC this op
// originated from, threaded through to RaiseExt fixups for ops that may
// except.
func (e *Emitter) EmitOp(bb *xir.BasicBlock, op *xir.Op, pcOffset uint32) {
	switch op.Opcode {
	case xir.OpNop, xir.OpEnter, xir.OpBarrier:
		// No code to generate.

	case xir.OpMov:
		e.emitMov(op)
	case xir.OpMovQ:
		e.emitMovQ(op)

	case xir.OpAdd, xir.OpAddS:
		e.emitALU(aluAdd, op)
	case xir.OpAnd, xir.OpAndS:
		e.emitALU(aluAnd, op)
	case xir.OpOr, xir.OpOrS:
		e.emitALU(aluOr, op)
	case xir.OpSub, xir.OpSubS:
		e.emitALU(aluSub, op)
	case xir.OpXor, xir.OpXorS:
		e.emitALU(aluXor, op)
	case xir.OpCmp, xir.OpTst:
		e.emitALU(aluCmp, op)

	case xir.OpNeg, xir.OpNegS:
		e.NegReg(e.mustReg(op.Operand[0], "neg"))
	case xir.OpNot, xir.OpNotS:
		e.NotReg(e.mustReg(op.Operand[0], "not"))

	case xir.OpSll, xir.OpSllS:
		e.emitShift(4, op)
	case xir.OpSlr, xir.OpSlrS:
		e.emitShift(5, op)
	case xir.OpSar, xir.OpSarS:
		e.emitShift(7, op)

	case xir.OpBrRel, xir.OpBr, xir.OpBrCond, xir.OpBrCondDel:
		e.emitBranch(op)

	case xir.OpCall0:
		e.emitCall0(op)
	case xir.OpCallLut:
		e.emitCallLut(op)

	case xir.OpXlat:
		e.emitXlat(op)

	case xir.OpAddF:
		e.sseBinary(e.AddSS, op)
	case xir.OpSubF:
		e.sseBinary(e.SubSS, op)
	case xir.OpMulF:
		e.sseBinary(e.MulSS, op)
	case xir.OpDivF:
		e.sseBinary(e.DivSS, op)
	case xir.OpSqrtF:
		e.SqrtSS(e.mustReg(op.Operand[0], "sqrtf"), e.mustReg(op.Operand[1], "sqrtf"))
	case xir.OpCmpF:
		e.UComISS(e.mustReg(op.Operand[0], "cmpf"), e.mustReg(op.Operand[1], "cmpf"))
	case xir.OpAddD:
		e.sseBinary(e.AddSD, op)
	case xir.OpSubD:
		e.sseBinary(e.SubSD, op)
	case xir.OpMulD:
		e.sseBinary(e.MulSD, op)
	case xir.OpDivD:
		e.sseBinary(e.DivSD, op)
	case xir.OpSqrtD:
		e.SqrtSD(e.mustReg(op.Operand[0], "sqrtd"), e.mustReg(op.Operand[1], "sqrtd"))
	case xir.OpCmpD:
		e.UComISD(e.mustReg(op.Operand[0], "cmpd"), e.mustReg(op.Operand[1], "cmpd"))

	case xir.OpDiv1, xir.OpShad, xir.OpShld, xir.OpCmpStr:
		e.emitMacro(op)

	case xir.OpRaiseME, xir.OpRaiseMNE:
		e.emitRaise(op, pcOffset)

	default:
		panic(fmt.Sprintf("x86: opcode %s has no codegen (vector/matrix ops are out of scope for this emitter)", xir.Info(op.Opcode).Name))
	}
}

// emitRaise expands RaiseME/RaiseMNE per xir.h's documented semantics
// ("branch to exception if (reg & mask) == 0" / "!= 0" respectively,
// since x86gen.c's own case bodies for both are empty stubs): mask the
// register, then branch to the op's exception sub-block (op.Exc, set by
// whatever pass built the block - RaiseME/MNE always carry one, since a
// RaiseME with nowhere to raise to is meaningless) on that same raise
// condition, so the fallthrough path is the no-exception case. This is
// the only exception-raising op this emitter ever sees: Load/Store/OCB/
// Pref's own exceptions are detected inside the memory trampoline
// CallLut calls into and never reach codegen as MayExcept ops in their
// own right (x86gen.c's final default case confirms they're fully
// replaced by target_lower before emission runs).
func (e *Emitter) emitRaise(op *xir.Op, pcOffset uint32) {
	if op.Exc == xir.NoRef {
		panic("x86: raiseme/raisemne op has no exception target")
	}
	reg := e.mustReg(op.Operand[0], "raiseme")
	mask := op.Operand[1]
	if mask.IsImmediate() {
		e.ALUImmReg(aluAnd, mask.Int32(), reg)
	} else {
		e.ALURegReg(aluAnd, e.mustReg(mask, "raiseme"), reg)
	}
	cc := ccEQ
	if op.Opcode == xir.OpRaiseMNE {
		cc = ccNE
	}
	e.JccRel32(cc)
	e.RaiseExtFixup(ModeRel32, int(op.Exc), pcOffset)
}

func (e *Emitter) emitMovQ(op *xir.Op) {
	a, b := op.Operand[0], op.Operand[1]
	if a.Kind == xir.OperandQuadImm && b.Kind == xir.OperandTargetReg {
		e.MovQImm64Reg(a.Imm, b.Reg)
		return
	}
	if a.Kind == xir.OperandTargetReg && b.Kind == xir.OperandTargetReg {
		e.MovQRegReg(a.Reg, b.Reg)
		return
	}
	illegalForm(op)
}

func (e *Emitter) emitShift(digit byte, op *xir.Op) {
	count, dst := op.Operand[0], op.Operand[1]
	reg := e.mustReg(dst, "shift")
	if count.IsImmediate() {
		e.ShiftImmReg(digit, reg, uint8(count.Int32()))
		return
	}
	if count.Kind == xir.OperandTargetReg && count.Reg == e.ABI.Count {
		e.ShiftCLReg(digit, reg)
		return
	}
	illegalForm(op)
}

func (e *Emitter) sseBinary(fn func(src, dst int), op *xir.Op) {
	fn(e.mustReg(op.Operand[0], "sse"), e.mustReg(op.Operand[1], "sse"))
}

// emitBranch emits Br/BrRel/BrCond/BrCondDel as a Jcc/Jmp rel32 targeting
// an internal offset fixup; BrCondDel (delay-slot branch) is encoded
// identically at the instruction level, since the delay slot itself is
// just the op immediately preceding it in program order.
func (e *Emitter) emitBranch(op *xir.Op) {
	if op.Operand[0].Kind != xir.OperandIntImm {
		illegalForm(op)
	}
	if op.Cond == xir.CCNever {
		return
	}
	if op.Cond == xir.CCTrue {
		e.JmpRel32()
	} else {
		e.JccRel32(ccIndex(op.Cond))
	}
	e.OffsetFixup(ModeRel32, int(op.Operand[0].Int32()))
}

// emitCallLut emits the indirect call through the address-space
// function-pointer table a lowered Load/Store becomes (spec §4.2.3
// point 4, §6.5): operand 0 holds the already-translated table-entry
// register, operand 1 the MemFunc slot index, so the call target is
// [entryReg + slot*FuncPtrSize].
func (e *Emitter) emitCallLut(op *xir.Op) {
	entryReg := e.mustReg(op.Operand[0], "calllut")
	slot := op.Operand[1].Int32()
	e.CallIndirectMem(entryReg, slot*int32(e.FuncPtrSize))
}

// emitXlat emits the page-table lookup a lowered memory op's address
// translation becomes: shift the address right by 12 (the page index),
// then load the table[index] pointer from the process-global,
// TableBase-rooted address-space array (spec §6.5's "array indexed by
// the top 20 bits of the guest address" - the shift by 12 leaves exactly
// those 20 bits as the index).
func (e *Emitter) emitXlat(op *xir.Op) {
	addrReg := e.mustReg(op.Operand[0], "xlat")
	dstReg := e.mustReg(op.Operand[1], "xlat")
	e.ShiftImmReg(5, addrReg, 12) // shr addrReg, 12
	if e.Width == 8 && e.TableBase >= 1<<32 {
		// The table base doesn't fit in a disp32; materialize it as a
		// 64-bit base register and address [dstReg+addrReg*8] instead of
		// the disp32-only SIB form.
		e.MovQImm64Reg(e.TableBase, dstReg)
		e.MovMemBaseIndexToReg(dstReg, dstReg, addrReg, 8)
		return
	}
	e.MovMemIndexToReg(dstReg, addrReg, 8, int32(e.TableBase))
}

// emitCall0 emits a call to a fixed host helper function, mirroring
// OP_CALL0: the target is always a host-side pointer baked in at
// translation time (either as an immediate, matching CALL_imm32 for a
// near-enough target, or already materialized in a register by an
// earlier Mov, matching CALL_r32 for an arbitrary 64-bit address).
func (e *Emitter) emitCall0(op *xir.Op) {
	switch op.Operand[0].Kind {
	case xir.OperandPtrImm, xir.OperandQuadImm:
		e.CallRel32()
		e.PointerFixup(ModeRel32, op.Operand[0].Imm)
	case xir.OperandTargetReg:
		e.emitByte(0xFF)
		e.emitModRMReg(2, op.Operand[0].Reg)
	default:
		illegalForm(op)
	}
}
