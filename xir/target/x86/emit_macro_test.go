package x86

import (
	"testing"

	"github.com/lxdream/dreamxir/xir"
)

func macroOp(opcode xir.Opcode, a, b xir.Operand) *xir.Op {
	return &xir.Op{Opcode: opcode, Cond: xir.CCTrue, Operand: [2]xir.Operand{a, b}, Next: xir.NoRef, Prev: xir.NoRef, Exc: xir.NoRef}
}

func TestEmitShadStartsWithCountComparedToZero(t *testing.T) {
	e := testEmitter()
	e.emitMacro(macroOp(xir.OpShad, xir.Operand{}, xir.TargetReg(0)))
	if e.Code[0] != 0x81 || e.Code[1] != modRM(3, aluCmp.digit, byte(e.ABI.Count)) {
		t.Fatalf("shad should open with cmp $0, count reg: %x", e.Code)
	}
}

func TestEmitShadProducesFourLocalBranches(t *testing.T) {
	e := testEmitter()
	before := len(e.Code)
	e.emitMacro(macroOp(xir.OpShad, xir.Operand{}, xir.TargetReg(0)))
	body := e.Code[before:]

	var jcc, jmp int
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case 0x7C: // jl rel8 (ccLT)
			jcc++
		case 0x74: // je rel8 (ccEQ)
			jcc++
		case 0xEB: // jmp rel8
			jmp++
		}
	}
	if jcc != 2 || jmp != 2 {
		t.Fatalf("expected 2 conditional + 2 unconditional local branches, got jcc=%d jmp=%d in %x", jcc, jmp, body)
	}
}

func TestEmitShldZeroCountClearsRegister(t *testing.T) {
	e := testEmitter()
	e.emitMacro(macroOp(xir.OpShld, xir.Operand{}, xir.TargetReg(3)))
	// The xor-self-clear form (0x31 /r) must appear somewhere in the
	// negative-count/zero-remainder path.
	found := false
	for i := 0; i+1 < len(e.Code); i++ {
		if e.Code[i] == aluXor.base+1 && e.Code[i+1] == modRM(3, 3, 3) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an xor reg,reg clear in shld's empty-shift path: %x", e.Code)
	}
}

func TestEmitDiv1ShiftsDividendThenConditionallySubtracts(t *testing.T) {
	e := testEmitter()
	e.emitMacro(macroOp(xir.OpDiv1, xir.TargetReg(0), xir.TargetReg(1)))
	if e.Code[0] != 0xC1 || e.Code[1] != modRM(3, 4, 1) || e.Code[2] != 1 {
		t.Fatalf("div1 should open with shl dividend,1: %x", e.Code)
	}
	// cmp divisor, dividend follows (0x39 /r, Ev,Gv reversed for this helper's ALURegReg)
	if e.Code[3] != aluCmp.base+1 {
		t.Fatalf("expected a cmp after the shift: %x", e.Code)
	}
}

func TestEmitCmpStrXorsThenTests(t *testing.T) {
	e := testEmitter()
	e.emitMacro(macroOp(xir.OpCmpStr, xir.TargetReg(0), xir.TargetReg(1)))
	want := []byte{aluXor.base + 1, modRM(3, 0, 1), 0x85, modRM(3, 1, 1)}
	assertBytes(t, e.Code, want)
}

func TestEmitMacroRejectsNonMacroOpcode(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a non-macro opcode")
		}
	}()
	e := testEmitter()
	e.emitMacro(macroOp(xir.OpAdd, xir.TargetReg(0), xir.TargetReg(1)))
}

func TestLabelBindOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic when a local branch target is unreachable in rel8")
		}
	}()
	e := testEmitter()
	l := e.jmpLabel()
	for i := 0; i < 200; i++ {
		e.emitByte(0x90)
	}
	l.bind(e)
}
