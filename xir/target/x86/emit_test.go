package x86

import (
	"testing"

	"github.com/lxdream/dreamxir/xir"
)

func testEmitter() *Emitter {
	return NewEmitter(xir.ABI{Arg1: 0, Arg2: 1, Result1: 0, Count: 1}, xir.PointerWidth(8), 0x2000)
}

func opAt(opcode xir.Opcode, cc xir.CC, a, b xir.Operand) *xir.Op {
	return &xir.Op{Opcode: opcode, Cond: cc, Operand: [2]xir.Operand{a, b}, Next: xir.NoRef, Prev: xir.NoRef, Exc: xir.NoRef}
}

func TestEmitMovImmToTargetReg(t *testing.T) {
	e := testEmitter()
	e.EmitOp(nil, opAt(xir.OpMov, xir.CCTrue, xir.IntImm(42), xir.TargetReg(3)), 0)
	want := []byte{0xC7, modRM(3, 0, 3), 42, 0, 0, 0}
	assertBytes(t, e.Code, want)
}

func TestEmitMovSourceRegToTargetReg(t *testing.T) {
	e := testEmitter()
	e.EmitOp(nil, opAt(xir.OpMov, xir.CCTrue, xir.SourceReg(2), xir.TargetReg(0)), 0)
	want := []byte{0x8B, modRM(2, 0, regRBP), 8, 0, 0, 0}
	assertBytes(t, e.Code, want)
}

func TestEmitAddRegRegUsesOp1PlusDirectionByte(t *testing.T) {
	e := testEmitter()
	e.EmitOp(nil, opAt(xir.OpAdd, xir.CCTrue, xir.TargetReg(1), xir.TargetReg(0)), 0)
	want := []byte{0x01, modRM(3, 1, 0)}
	assertBytes(t, e.Code, want)
}

func TestEmitIllegalFormPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for an illegal operand form")
		}
	}()
	e := testEmitter()
	e.EmitOp(nil, opAt(xir.OpAdd, xir.CCTrue, xir.SourceReg(0), xir.SourceReg(1)), 0)
}

func TestEmitShiftByImmediate(t *testing.T) {
	e := testEmitter()
	e.EmitOp(nil, opAt(xir.OpSll, xir.CCTrue, xir.IntImm(3), xir.TargetReg(2)), 0)
	want := []byte{0xC1, modRM(3, 4, 2), 3}
	assertBytes(t, e.Code, want)
}

func TestEmitShiftByCountRegisterUsesCL(t *testing.T) {
	e := testEmitter()
	e.EmitOp(nil, opAt(xir.OpSar, xir.CCTrue, xir.TargetReg(1), xir.TargetReg(2)), 0)
	want := []byte{0xD3, modRM(3, 7, 2)}
	assertBytes(t, e.Code, want)
}

func TestEmitBranchRegistersOffsetFixup(t *testing.T) {
	e := testEmitter()
	op := opAt(xir.OpBrCond, xir.CCEQ, xir.IntImm(0x50), xir.Operand{})
	e.EmitOp(nil, op, 0)
	if len(e.Fixups) != 1 || e.Fixups[0].Kind != FixupOffset {
		t.Fatalf("expected one OffsetFixup, got %+v", e.Fixups)
	}
	if e.Fixups[0].Value != 0x50 {
		t.Fatalf("fixup target mismatch: %+v", e.Fixups[0])
	}
}

func TestEmitBranchNeverEmitsNothing(t *testing.T) {
	e := testEmitter()
	e.EmitOp(nil, opAt(xir.OpBrCond, xir.CCNever, xir.IntImm(0x50), xir.Operand{}), 0)
	if len(e.Code) != 0 {
		t.Fatalf("CCNever branch should emit no code, got %x", e.Code)
	}
}

func TestEmitCall0WithImmediateTargetRegistersPointerFixup(t *testing.T) {
	e := testEmitter()
	e.EmitOp(nil, opAt(xir.OpCall0, xir.CCTrue, xir.PtrImm(0x12345678), xir.Operand{}), 0)
	if len(e.Code) == 0 || e.Code[0] != 0xE8 {
		t.Fatalf("expected a near call opcode, got %x", e.Code)
	}
	if len(e.Fixups) != 1 || e.Fixups[0].Kind != FixupPointer {
		t.Fatalf("expected a PointerFixup, got %+v", e.Fixups)
	}
}

func TestEmitCall0WithRegisterTargetEmitsIndirectCall(t *testing.T) {
	e := testEmitter()
	e.EmitOp(nil, opAt(xir.OpCall0, xir.CCTrue, xir.TargetReg(2), xir.Operand{}), 0)
	want := []byte{0xFF, modRM(3, 2, 2)}
	assertBytes(t, e.Code, want)
}

func TestEmitCallLutIndexesByFuncPtrSize(t *testing.T) {
	e := testEmitter()
	e.EmitOp(nil, opAt(xir.OpCallLut, xir.CCTrue, xir.TargetReg(3), xir.IntImm(2)), 0)
	want := []byte{0xFF, modRM(2, 2, 3), byte(2 * e.FuncPtrSize), 0, 0, 0}
	assertBytes(t, e.Code, want)
}

func TestEmitRaiseMERequiresExceptionTarget(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic when RaiseME has no exception target")
		}
	}()
	e := testEmitter()
	op := opAt(xir.OpRaiseME, xir.CCTrue, xir.TargetReg(0), xir.IntImm(0xFF))
	op.Exc = xir.NoRef
	e.EmitOp(nil, op, 0)
}

func TestEmitRaiseMERegistersRaiseExtFixupWithPCOffset(t *testing.T) {
	e := testEmitter()
	op := opAt(xir.OpRaiseME, xir.CCTrue, xir.TargetReg(0), xir.IntImm(0xFF))
	op.Exc = 5
	e.EmitOp(nil, op, 0x400)

	if len(e.Fixups) != 1 || e.Fixups[0].Kind != FixupRaiseExt {
		t.Fatalf("expected a RaiseExtFixup, got %+v", e.Fixups)
	}
	if e.Fixups[0].PCOffset != 0x400 || e.Fixups[0].Value != 5 {
		t.Fatalf("fixup payload mismatch: %+v", e.Fixups[0])
	}
}

func TestEmitRaiseMEAndMNEUseOppositeConditions(t *testing.T) {
	me := testEmitter()
	opME := opAt(xir.OpRaiseME, xir.CCTrue, xir.TargetReg(0), xir.IntImm(1))
	opME.Exc = 1
	me.EmitOp(nil, opME, 0)

	mne := testEmitter()
	opMNE := opAt(xir.OpRaiseMNE, xir.CCTrue, xir.TargetReg(0), xir.IntImm(1))
	opMNE.Exc = 1
	mne.EmitOp(nil, opMNE, 0)

	// Both emit `and $1, reg` identically; only the trailing Jcc opcode
	// byte (the condition code) should differ.
	if me.Code[0] != mne.Code[0] {
		t.Fatalf("and-immediate prefix should be identical: %x vs %x", me.Code, mne.Code)
	}
	last := len(me.Code) - 1
	if me.Code[last-4] == mne.Code[last-4] {
		t.Fatalf("RaiseME/RaiseMNE should use inverted Jcc conditions: %x vs %x", me.Code, mne.Code)
	}
}

func TestUnimplementedOpcodePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for an opcode this emitter doesn't implement")
		}
	}()
	e := testEmitter()
	e.EmitOp(nil, opAt(xir.OpAddV, xir.CCTrue, xir.Operand{}, xir.Operand{}), 0)
}
