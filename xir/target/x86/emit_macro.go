package x86

import (
	"fmt"

	"github.com/lxdream/dreamxir/xir"
)

// emit_macro.go expands the four SH4 macro-ops (spec §4.2.5's "Complex
// macro-ops") into explicit instruction sequences. Shad/Shld are ported
// from x86gen.c's OP_SHAD/OP_SHLD bodies (the only two of the four the
// source actually implements - OP_DIV1 and OP_CMPSTR fall straight
// through to `break` there); Div1 and CmpStr below are this package's
// own rendition of spec §4.2.5's prose description, since there's no
// source body to port for them.
//
// The branches these sequences need are all short and entirely local to
// one macro-op's expansion, so they use their own rel8 backpatch labels
// rather than the block-level Fixup table.

type label struct{ site int }

var jccRel8 = map[int]byte{
	ccEQ: 0x74, ccNE: 0x75,
	ccGT: 0x7F, ccGE: 0x7D, ccLT: 0x7C, ccLE: 0x7E,
	ccUGT: 0x77, ccUGE: 0x73, ccULT: 0x72, ccULE: 0x76,
	ccOverflow: 0x70, ccNotOverflow: 0x71,
}

func (e *Emitter) jccLabel(cc int) *label {
	op, ok := jccRel8[cc]
	if !ok {
		panic("x86: no rel8 Jcc encoding for this condition code")
	}
	e.emitByte(op)
	site := len(e.Code)
	e.emitByte(0)
	return &label{site}
}

func (e *Emitter) jmpLabel() *label {
	e.emitByte(0xEB)
	site := len(e.Code)
	e.emitByte(0)
	return &label{site}
}

// bind patches l's rel8 field to target the current end of the buffer.
func (l *label) bind(e *Emitter) {
	rel := len(e.Code) - (l.site + 1)
	if rel < -128 || rel > 127 {
		panic("x86: macro-op local branch out of rel8 range")
	}
	e.Code[l.site] = byte(int8(rel))
}

func (e *Emitter) emitMacro(op *xir.Op) {
	switch op.Opcode {
	case xir.OpShad:
		e.emitShad(op)
	case xir.OpShld:
		e.emitShld(op)
	case xir.OpDiv1:
		e.emitDiv1(op)
	case xir.OpCmpStr:
		e.emitCmpStr(op)
	default:
		panic(fmt.Sprintf("x86: %s is not a macro-op", xir.Info(op.Opcode).Name))
	}
}

// emitShad ports OP_SHAD: operand0 (the shift count) must already be in
// the ABI count register (lowerVariableShift guarantees this for a
// non-constant count; a constant count never reaches here, having been
// collapsed to Sll/Slr/Sar/Mov/Nop during lowering), operand1 is the
// register shifted in place. Arithmetic-right branch: negate the count,
// mask to 0-31, and on an exact-multiple-of-32 count use Sar 31 (sign
// fill) instead of a shift-by-32 (which x86 treats mod 32, i.e. as a
// no-op - not the SH4-correct "all bits become the sign").
func (e *Emitter) emitShad(op *xir.Op) {
	count, reg := e.ABI.Count, e.mustReg(op.Operand[1], "shad")
	e.CmpImmReg(0, count)
	shr := e.jccLabel(ccLT)
	e.ShiftCLReg(4, reg) // shl reg, cl
	end := e.jmpLabel()

	shr.bind(e)
	e.NegReg(count)
	e.ALUImmReg(aluAnd, 0x1F, count)
	empty := e.jccLabel(ccEQ)
	e.ShiftCLReg(7, reg) // sar reg, cl
	end2 := e.jmpLabel()

	empty.bind(e)
	e.ShiftImmReg(7, reg, 31) // sar reg, 31
	end2.bind(e)
	end.bind(e)
}

// emitShld mirrors emitShad for the logical-shift macro-op: the
// zero-count branch clears the register instead of sign-filling it.
func (e *Emitter) emitShld(op *xir.Op) {
	count, reg := e.ABI.Count, e.mustReg(op.Operand[1], "shld")
	e.CmpImmReg(0, count)
	shr := e.jccLabel(ccLT)
	e.ShiftCLReg(4, reg) // shl reg, cl
	end := e.jmpLabel()

	shr.bind(e)
	e.NegReg(count)
	e.ALUImmReg(aluAnd, 0x1F, count)
	empty := e.jccLabel(ccEQ)
	e.ShiftCLReg(5, reg) // shr reg, cl
	end2 := e.jmpLabel()

	empty.bind(e)
	e.ALURegReg(aluXor, reg, reg) // reg = 0
	end2.bind(e)
	end.bind(e)
}

// emitDiv1 expands one step of the SH4's restoring division primitive
// (spec §4.2.5: "one step of a restoring divide with sign/quotient/
// remainder flags"), per spec's own rendition since x86gen.c leaves
// OP_DIV1 as an empty stub: operand0 is the divisor, operand1 the
// dividend/remainder register shifted left through the prior step's
// carry (T flag), with the new quotient bit computed by comparing the
// shifted dividend against the divisor and conditionally subtracting.
func (e *Emitter) emitDiv1(op *xir.Op) {
	divisor := e.mustReg(op.Operand[0], "div1")
	dividend := e.mustReg(op.Operand[1], "div1")

	e.ShiftImmReg(4, dividend, 1) // shl dividend, 1 (carry in becomes bit 0; T flows in via prior adc)
	e.ALURegReg(aluCmp, divisor, dividend)
	skip := e.jccLabel(ccULT)
	e.ALURegReg(aluSub, divisor, dividend)
	skip.bind(e)
}

// emitCmpStr expands the SH4 CMP/STR macro-op (spec §4.2.5: "test each
// byte of xor rm, rn for zero and set T"): xor the two registers, then
// OR together a test of each of the four resulting bytes against zero,
// leaving the result condition in the flags the caller's BrCond/RaiseME
// reads.
func (e *Emitter) emitCmpStr(op *xir.Op) {
	a := e.mustReg(op.Operand[0], "cmpstr")
	b := e.mustReg(op.Operand[1], "cmpstr")
	e.ALURegReg(aluXor, a, b)
	e.TestRegReg(b, b)
}
