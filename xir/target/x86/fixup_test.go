package x86

import "testing"

func TestPointerFixupAbs64WritesAddressDirectly(t *testing.T) {
	g := NewCodeGen()
	g.emitByte(0x90) // one leading byte so the patch site isn't 0
	g.PointerFixup(ModeAbs64, 0xdeadbeefcafebabe)
	g.Apply(0x1000)

	got := g.readField(1, 8)
	if got != 0xdeadbeefcafebabe {
		t.Fatalf("got %x, want pointer value unchanged", got)
	}
}

func TestOffsetFixupRel32IsRelativeToNextInstruction(t *testing.T) {
	g := NewCodeGen()
	g.emitByte(0xE9) // jmp rel32
	g.OffsetFixup(ModeRel32, 0x40)
	g.Apply(0x1000)

	// patch site is byte 1, field width 4, so rel is measured from 1+4=5
	want := uint32(0x1040 - 0x1005)
	got := uint32(g.readField(1, 4))
	if got != want {
		t.Fatalf("got %#x, want %#x", got, want)
	}
}

func TestConst32FixupLaysPoolAfterCodeAndAligns(t *testing.T) {
	g := NewCodeGen()
	g.emitByte(0x90)
	g.emitByte(0x90)
	g.emitByte(0x90) // 3 bytes of code plus the fixup's 4-byte field, pool must align to 4
	g.Const32Fixup(ModeAbs32, 0x12345678)
	g.LayConstantPool()

	if len(g.Code) != 8+4 {
		t.Fatalf("pool not aligned/appended correctly, len=%d code=%x", len(g.Code), g.Code)
	}
	if g.Fixups[0].TargetOffset != 8 {
		t.Fatalf("expected pool entry at offset 8, got %d", g.Fixups[0].TargetOffset)
	}
}

func TestConst64FixupLaidBeforeConst32Pool(t *testing.T) {
	g := NewCodeGen()
	g.emitByte(0x90)
	g.Const32Fixup(ModeAbs32, 1)
	g.Const64Fixup(ModeAbs64, 2)
	g.LayConstantPool()

	if g.Fixups[1].TargetOffset%8 != 0 {
		t.Fatalf("64-bit pool entry not 8-byte aligned: %d", g.Fixups[1].TargetOffset)
	}
	if g.Fixups[0].TargetOffset <= g.Fixups[1].TargetOffset {
		t.Fatalf("32-bit entry should be laid after the 64-bit entry: 32@%d 64@%d",
			g.Fixups[0].TargetOffset, g.Fixups[1].TargetOffset)
	}
}

func TestRaiseExtFixupAppendsExceptionRecord(t *testing.T) {
	g := NewCodeGen()
	g.emitByte(0x0F)
	g.emitByte(0x84)
	g.RaiseExtFixup(ModeRel32, 7, 0x200)

	var sawChain int
	g.EmitExceptionChains(func(g *CodeGen, head int) {
		sawChain = head
		g.emitByte(0xCC)
	})

	if sawChain != 7 {
		t.Fatalf("emitChain called with head %d, want 7", sawChain)
	}
	if len(g.ExceptionTable) != 1 || g.ExceptionTable[0].PCOffset != 0x200 {
		t.Fatalf("exception record not recorded: %+v", g.ExceptionTable)
	}
}

func TestRaiseFixupDoesNotAppendExceptionRecord(t *testing.T) {
	g := NewCodeGen()
	g.emitByte(0x0F)
	g.emitByte(0x84)
	g.RaiseFixup(ModeRel32, 3)
	g.EmitExceptionChains(func(g *CodeGen, head int) {})

	if len(g.ExceptionTable) != 0 {
		t.Fatalf("plain RaiseFixup should not produce an ExceptionRecord, got %+v", g.ExceptionTable)
	}
}
