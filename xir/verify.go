package xir

import "fmt"

// VerifyError reports the first invariant violation found by Verify.
// Verification failures are a "should never happen" condition of the
// translator itself (spec §7); callers are expected to treat a non-nil
// result as fatal.
type VerifyError struct {
	Ref     OpRef
	Message string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("xir: verify failed at op %d: %s", e.Ref, e.Message)
}

func fail(ref OpRef, format string, args ...interface{}) error {
	return &VerifyError{Ref: ref, Message: fmt.Sprintf(format, args...)}
}

// Verify walks every op of bb (including exception sub-blocks,
// recursively) and checks the invariants of spec §3.2/§4.2.1. It aborts
// and returns on the first failure.
func Verify(bb *BasicBlock) error {
	return verifySubBlock(bb, bb.Head, true)
}

func verifySubBlock(bb *BasicBlock, start OpRef, isTop bool) error {
	flagsWritten := false
	for ref := start; ref != NoRef; ref = bb.ops[ref].Next {
		op := bb.ops[ref]
		info := Info(op.Opcode)

		switch info.NumOperands() {
		case 0:
			if op.Operand[0].Kind != OperandNone || op.Operand[1].Kind != OperandNone {
				return fail(ref, "opcode %s takes no operands", op.Opcode)
			}
		case 1:
			if op.Operand[0].Kind == OperandNone || op.Operand[1].Kind != OperandNone {
				return fail(ref, "opcode %s takes exactly one operand", op.Opcode)
			}
		case 2:
			if op.Operand[0].Kind == OperandNone || op.Operand[1].Kind == OperandNone {
				return fail(ref, "opcode %s takes exactly two operands", op.Opcode)
			}
		}

		if op.Opcode == OpEnter {
			if op.Prev != NoRef || ref != bb.Head || !isTop {
				return fail(ref, "Enter must be the first op of the block")
			}
			if !op.Operand[0].IsImmediate() {
				return fail(ref, "Enter requires an immediate operand")
			}
		}
		if op.Opcode == OpSt || op.Opcode == OpLd {
			if op.Cond == CCTrue {
				return fail(ref, "%s is not permitted with condition True", op.Opcode)
			}
		}

		if info.WritesOp1() && !op.Operand[0].IsRegister() {
			return fail(ref, "writable operand 1 requires a register")
		}
		if info.WritesOp2() && !op.Operand[1].IsRegister() {
			return fail(ref, "writable operand 2 requires a register")
		}

		if err := verifyRegRange(bb, ref, op.Operand[0]); err != nil {
			return err
		}
		if err := verifyRegRange(bb, ref, op.Operand[1]); err != nil {
			return err
		}

		readsFlags := info.ReadsFlags() || (op.Cond != CCTrue && op.Opcode != OpLd)
		if readsFlags && !flagsWritten {
			return fail(ref, "flags used without a prior write in this block")
		}
		if info.WritesFlags() {
			flagsWritten = true
		}

		if info.MayExcept() {
			if op.Exc == NoRef {
				return fail(ref, "opcode %s may raise but has no exception block", op.Opcode)
			}
			if bb.ops[op.Exc].Prev != ref {
				return fail(ref, "exception back-link broken")
			}
			if err := verifySubBlock(bb, op.Exc, false); err != nil {
				return err
			}
		} else if op.Exc != NoRef {
			return fail(ref, "opcode %s has an unexpected exception block", op.Opcode)
		}

		if info.IsTerminator() {
			if op.Next != NoRef {
				return fail(ref, "terminator %s has a successor", op.Opcode)
			}
		} else if op.Next == NoRef {
			return fail(ref, "missing terminator at end of block")
		}
	}
	return nil
}

func verifyRegRange(bb *BasicBlock, ref OpRef, operand Operand) error {
	switch operand.Kind {
	case OperandSourceReg:
		if operand.Reg >= MaxSourceReg {
			return fail(ref, "source register %d out of range", operand.Reg)
		}
	case OperandTempReg:
		if operand.Reg >= len(bb.TempRegs) {
			return fail(ref, "temp register %d undefined", operand.Reg)
		}
	case OperandTargetReg:
		if operand.Reg >= MaxTargetReg {
			return fail(ref, "target register %d out of range", operand.Reg)
		}
	}
	return nil
}
