package xir

// regalloc.go sketches the linear-scan register allocation framework of
// spec §4.2.7: per-value live range computation over a lowered block,
// followed by three-class target register assignment (argument /
// volatile / non-volatile). Grounded on xlat/livevar.c's
// live_range_calculate (the live-range data structures and forward walk)
// and xlat/regalloc.c's xir_promote_source_registers' sibling comment
// block describing the three register classes - regalloc.c itself never
// implements the class-assignment rules it documents, so AssignRegisters
// below is this package's own, working, rendition of those rules rather
// than a transliteration.

// LiveRange is the per-value live range of spec §4.2.7.
type LiveRange struct {
	Reg int // temp register index this range covers

	Def       OpRef
	DefOffset int
	LastUse   OpRef
	UseLength int

	// VisibleLength < 0 marks "live at block exit" (the range was still
	// open when the walk reached end - a loop-carried or exit-visible
	// value). VisibleLength == 0 marks "coherent, never visible" (written
	// and then immediately superseded by another write with no
	// intervening read - dead and droppable). Otherwise it holds the
	// range's interior length in op positions.
	VisibleLength int

	// SpillRequired is set when an exception-raising op executed between
	// this range's definition and the write that closed it: a handler
	// resuming mid-block may still observe the old value, so it can't be
	// treated as purely dead even with UseLength == 0.
	SpillRequired bool

	// UsedAsArg is set when this range was read as the first operand of a
	// Call0/Call1/CallR/CallLut at least once; the
	// allocator prefers an argument register for such values.
	UsedAsArg bool

	// LiveAcrossCall is set when the range spans an OpCall0/OpCallLut/
	// OpCall1/OpCallR without being redefined in between; such values
	// cannot use a caller-saved volatile register across the call.
	LiveAcrossCall bool
}

// CalculateLiveRanges walks the op chain [start, end] in list order,
// opening a new live range on each first read of a temp register with no
// currently-open range, and opening a fresh range on each write (closing
// whatever range preceded it), mirroring live_range_calculate. Unlike the
// source - whose walk iterator `it` is referenced by the loop condition
// before ever being assigned a starting value (see DESIGN.md's Open
// Question notes) - this walk explicitly begins at start.
func CalculateLiveRanges(bb *BasicBlock, start, end OpRef) []*LiveRange {
	current := make(map[int]*LiveRange)
	var ranges []*LiveRange
	position := 0
	lastExc := -1
	lastCall := -1

	touch := func(ref OpRef, reg int, reads, writes bool, isArgPos bool) {
		r, open := current[reg]
		if reads {
			if !open {
				r = &LiveRange{Reg: reg, Def: ref, DefOffset: position}
				current[reg] = r
				ranges = append(ranges, r)
				open = true
			}
			r.LastUse = ref
			r.UseLength = position - r.DefOffset
			if isArgPos {
				r.UsedAsArg = true
			}
			if lastCall > r.DefOffset {
				r.LiveAcrossCall = true
			}
		}
		if writes {
			if open && lastExc > r.DefOffset {
				r.SpillRequired = true
			}
			nr := &LiveRange{Reg: reg, Def: ref, DefOffset: position, LastUse: ref}
			current[reg] = nr
			ranges = append(ranges, nr)
		}
	}

	for ref := start; ref != NoRef; {
		op := bb.Op(ref)
		info := Info(op.Opcode)
		if info.MayExcept() {
			lastExc = position
		}
		isCall := op.Opcode == OpCall0 || op.Opcode == OpCall1 || op.Opcode == OpCallR || op.Opcode == OpCallLut
		if op.Operand[0].Kind == OperandTempReg {
			touch(ref, op.Operand[0].Reg, info.ReadsOp1(), info.WritesOp1(), isCall)
		}
		if op.Operand[1].Kind == OperandTempReg {
			touch(ref, op.Operand[1].Reg, info.ReadsOp2(), info.WritesOp2(), false)
		}
		if isCall {
			lastCall = position
		}

		if ref == end {
			break
		}
		ref = op.Next
		position++
	}

	for _, r := range ranges {
		switch {
		case current[r.Reg] == r:
			r.VisibleLength = -1
		case r.UseLength == 0:
			r.VisibleLength = 0
		default:
			r.VisibleLength = r.UseLength
		}
	}
	return ranges
}

// RegClass is one of the three target-register pools a value can be
// assigned to.
type RegClass int

const (
	RegClassArgument RegClass = iota
	RegClassVolatile
	RegClassNonVolatile
)

// TargetRegisterPool names the concrete target register numbers
// available in each class, e.g. {EAX, EDX} argument / {ECX} volatile /
// {ESI, EDI, EBX} non-volatile for x86, or the x86-64 equivalents - the
// caller supplies these since they're a backend concern.
type TargetRegisterPool struct {
	Argument    []int
	Volatile    []int
	NonVolatile []int
}

// Assignment is the allocator's verdict for one live range: either a
// target register, or Spilled if every pool was exhausted.
type Assignment struct {
	Reg      *LiveRange
	Target   int
	Class    RegClass
	Spilled  bool
}

// AssignRegisters implements the three-class assignment rule of spec
// §4.2.7: argument registers go first to ranges read as a call argument,
// volatile registers next to ranges that don't span a call, and
// non-volatile registers (more expensive - each costs a prologue/epilogue
// spill pair) to everything else. Ranges that exhaust all three pools are
// reported as spilled rather than assigned.
func AssignRegisters(ranges []*LiveRange, pool TargetRegisterPool) []Assignment {
	out := make([]Assignment, 0, len(ranges))
	argIdx, volIdx, nvIdx := 0, 0, 0

	for _, r := range ranges {
		if r.VisibleLength == 0 {
			continue // dead range, nothing to allocate
		}
		switch {
		case r.UsedAsArg && argIdx < len(pool.Argument):
			out = append(out, Assignment{Reg: r, Target: pool.Argument[argIdx], Class: RegClassArgument})
			argIdx++
		case !r.LiveAcrossCall && volIdx < len(pool.Volatile):
			out = append(out, Assignment{Reg: r, Target: pool.Volatile[volIdx], Class: RegClassVolatile})
			volIdx++
		case nvIdx < len(pool.NonVolatile):
			out = append(out, Assignment{Reg: r, Target: pool.NonVolatile[nvIdx], Class: RegClassNonVolatile})
			nvIdx++
		default:
			out = append(out, Assignment{Reg: r, Spilled: true})
		}
	}
	return out
}
