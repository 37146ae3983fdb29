package xir

import "testing"

func TestCalculateLiveRangesWriteOpensRangeRedefinitionClosesIt(t *testing.T) {
	bb := newTestBlock()
	t0 := bb.AllocTemp(TypeLong, -1)

	// mov t0 <- imm; add reads t0; mov t0 <- imm (redefinition).
	bb.AppendOp2(OpMov, IntImm(1), TempReg(t0))
	bb.AppendOp2(OpAdd, TempReg(t0), IntImm(2))
	last := bb.AppendOp2(OpMov, IntImm(3), TempReg(t0))

	ranges := CalculateLiveRanges(bb, bb.Head, bb.Tail)

	var forT0 []*LiveRange
	for _, r := range ranges {
		if r.Reg == t0 {
			forT0 = append(forT0, r)
		}
	}
	if len(forT0) != 2 {
		t.Fatalf("got %d live ranges for t0, want 2 (one opened by the first mov, read by the add and closed by the final mov; one open at exit)", len(forT0))
	}
	if forT0[1].Def != last {
		t.Errorf("second range should be defined by the final write, got Def=%v want %v", forT0[1].Def, last)
	}
	if forT0[1].VisibleLength != -1 {
		t.Errorf("range still open at block exit should have VisibleLength -1, got %d", forT0[1].VisibleLength)
	}
}

func TestCalculateLiveRangesDeadRangeNeverRead(t *testing.T) {
	bb := newTestBlock()
	t0 := bb.AllocTemp(TypeLong, -1)

	bb.AppendOp2(OpMov, IntImm(1), TempReg(t0)) // write, never read
	bb.AppendOp2(OpMov, IntImm(2), TempReg(t0)) // immediately superseded

	ranges := CalculateLiveRanges(bb, bb.Head, bb.Tail)
	if len(ranges) == 0 {
		t.Fatalf("expected at least one live range")
	}
	if ranges[0].VisibleLength != 0 {
		t.Errorf("first range (written, never read, superseded) should have VisibleLength 0, got %d", ranges[0].VisibleLength)
	}
}

func TestCalculateLiveRangesMarksSpillAcrossException(t *testing.T) {
	bb := newTestBlock()
	t0 := bb.AllocTemp(TypeLong, -1)

	bb.AppendOp2(OpMov, IntImm(1), TempReg(t0))
	bb.AppendOp1(OpOCBI, TempReg(99)) // MayExcept(), unrelated operand
	bb.AppendOp2(OpMov, IntImm(2), TempReg(t0))

	ranges := CalculateLiveRanges(bb, bb.Head, bb.Tail)
	if !ranges[0].SpillRequired {
		t.Errorf("range spanning an exception-raising op before being overwritten should be SpillRequired")
	}
}

func TestAssignRegistersPrefersArgumentThenVolatileThenNonVolatile(t *testing.T) {
	pool := TargetRegisterPool{Argument: []int{0}, Volatile: []int{1}, NonVolatile: []int{2}}
	ranges := []*LiveRange{
		{Reg: 1, VisibleLength: 3, UsedAsArg: true},
		{Reg: 2, VisibleLength: 3},
		{Reg: 3, VisibleLength: 3, LiveAcrossCall: true},
		{Reg: 4, VisibleLength: 3, LiveAcrossCall: true}, // pools exhausted -> spill
	}

	got := AssignRegisters(ranges, pool)
	if len(got) != 4 {
		t.Fatalf("got %d assignments, want 4", len(got))
	}
	if got[0].Class != RegClassArgument || got[0].Target != 0 {
		t.Errorf("arg-used range should get the argument register, got %+v", got[0])
	}
	if got[1].Class != RegClassVolatile || got[1].Target != 1 {
		t.Errorf("call-free range should get the volatile register, got %+v", got[1])
	}
	if got[2].Class != RegClassNonVolatile || got[2].Target != 2 {
		t.Errorf("call-spanning range should get the non-volatile register, got %+v", got[2])
	}
	if !got[3].Spilled {
		t.Errorf("range with every pool exhausted should be reported spilled, got %+v", got[3])
	}
}

func TestAssignRegistersSkipsDeadRanges(t *testing.T) {
	pool := TargetRegisterPool{Argument: []int{0}, Volatile: []int{1}, NonVolatile: []int{2}}
	ranges := []*LiveRange{{Reg: 1, VisibleLength: 0}}
	got := AssignRegisters(ranges, pool)
	if len(got) != 0 {
		t.Errorf("dead range should not receive an assignment, got %+v", got)
	}
}
