package x86

import "testing"

func TestALURegRegEncoding(t *testing.T) {
	g := NewCodeGen()
	g.ALURegReg(aluAdd, 1, 0) // add rax, rcx -> dst(rax) += src(rcx)
	want := []byte{0x01, modRM(3, 1, 0)}
	assertBytes(t, g.Code, want)
}

func TestALUImmRegEncoding(t *testing.T) {
	g := NewCodeGen()
	g.ALUImmReg(aluSub, 5, 2)
	want := []byte{0x81, modRM(3, aluSub.digit, 2), 5, 0, 0, 0}
	assertBytes(t, g.Code, want)
}

func TestMovRegToMemUsesRBPBaseWithoutSIB(t *testing.T) {
	g := NewCodeGen()
	g.MovRegToMem(3, regRBP, 16)
	want := []byte{0x89, modRM(2, 3, regRBP), 16, 0, 0, 0}
	assertBytes(t, g.Code, want)
}

func TestMovRegToMemUsesRSPBaseWithSIBByte(t *testing.T) {
	g := NewCodeGen()
	g.MovRegToMem(3, regRSP, 8)
	want := []byte{0x89, modRM(2, 3, regRSP), 0x24, 8, 0, 0, 0}
	assertBytes(t, g.Code, want)
}

func TestShiftCLRegEncodesDigit(t *testing.T) {
	g := NewCodeGen()
	g.ShiftCLReg(7, 1) // sar rcx, cl
	want := []byte{0xD3, modRM(3, 7, 1)}
	assertBytes(t, g.Code, want)
}

func TestMovQImm64RegEmitsRexWAndEightByteImmediate(t *testing.T) {
	g := NewCodeGen()
	g.MovQImm64Reg(0x1122334455667788, 0)
	want := []byte{0x48, 0xB8, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}
	assertBytes(t, g.Code, want)
}

func TestMovMemIndexToRegNoBaseForm(t *testing.T) {
	g := NewCodeGen()
	g.MovMemIndexToReg(2, 1, 8, 0x1000)
	want := []byte{0x8B, modRM(0, 2, 4), scaleBits(8)<<6 | byte(1)<<3 | 5, 0x00, 0x10, 0, 0}
	assertBytes(t, g.Code, want)
}

func TestJccRel32UnknownConditionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown condition code")
		}
	}()
	g := NewCodeGen()
	g.JccRel32(999)
}

func TestScaleBitsRejectsInvalidScale(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for invalid scale")
		}
	}()
	scaleBits(3)
}

func assertBytes(t *testing.T, got, want []byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %x, want %x", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d mismatch: got %x, want %x", i, got, want)
		}
	}
}
