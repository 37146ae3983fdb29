package xir

// OpRef is an index into a BasicBlock's op arena. "No ref" is the NoRef
// sentinel (-1), so ref 0 (the first op in the arena) is a legal index
// like any other. Raw C pointer chains become
// arena indices here per spec §9's REDESIGN FLAG, so insert/remove are
// index splices rather than pointer patches, and the arena survives a
// grow without invalidating references.
type OpRef int

// NoRef is the null op reference.
const NoRef OpRef = -1

// Op is one IR instruction: opcode, condition code, two operands, and the
// doubly-linked-list position within the arena (spec §3.2). Exc, when
// set, is the head of a sub-list reached only by the abnormal control
// edge of this op.
type Op struct {
	Opcode   Opcode
	Cond     CC
	Operand  [2]Operand
	Next     OpRef
	Prev     OpRef
	Exc      OpRef
}

// BasicBlock is the IR container of spec §3.2: an arena of ops threaded
// by prev/next, a table of temp register descriptors, and a reference to
// the source machine and its address-space table. The arena stores *Op
// (one heap allocation per op) rather than a flat []Op so that a pointer
// returned by Op() stays valid even after later ops are appended and the
// index slice itself is reallocated.
type BasicBlock struct {
	ops   []*Op
	Head  OpRef
	Tail  OpRef

	TempRegs []RegDesc

	PCBegin uint32
	PCEnd   uint32

	Source       SourceMachine
	AddressSpace AddressSpace
}

// SourceMachine is the boundary to the guest CPU front end (out of
// scope per spec §1): it names source registers and supplies the home
// register for diagnostics.
type SourceMachine interface {
	RegisterName(reg int) string
}

// AddressSpace is the consumer-supplied memory model of spec §6.5: an
// array indexed by the top bits of a guest address, each entry a
// function table of read/write/prefetch handlers. XIR's lowering pass
// only needs the table's base offset layout, not its contents, so this
// interface exposes just what the core requires to build Xlat/CallLut
// trampolines.
type AddressSpace interface {
	// TableBase returns the host address of the lookup table. Nothing in
	// this module calls it: the x86 emitter receives the table base as a
	// NewEmitter argument and decides there whether it fits a disp32.
	TableBase() uint64
}

// NewBlock allocates an empty basic block covering the guest instruction
// range [pcBegin, pcEnd), mirroring xir_make_block. Five scratch
// temporaries are pre-allocated exactly as xir_clear_basic_block does
// (three Long, two Quad), matching the original driver's fixed scratch
// set used by lowering.
func NewBlock(pcBegin, pcEnd uint32, source SourceMachine, addressSpace AddressSpace) *BasicBlock {
	bb := &BasicBlock{
		Head: NoRef, Tail: NoRef,
		PCBegin: pcBegin, PCEnd: pcEnd,
		Source: source, AddressSpace: addressSpace,
	}
	for i := 0; i < 3; i++ {
		bb.AllocTemp(TypeLong, -1)
	}
	for i := 0; i < 2; i++ {
		bb.AllocTemp(TypeQuad, -1)
	}
	return bb
}

// AllocTemp allocates a new temporary register descriptor of the given
// type, recording home as the source register it was materialized from
// (-1 if it has none), and returns its index.
func (bb *BasicBlock) AllocTemp(ty RegType, home int) int {
	if len(bb.TempRegs)+TempRegBase >= MaxTempReg {
		panic("xir: temp register table exhausted")
	}
	bb.TempRegs = append(bb.TempRegs, RegDesc{Type: ty, Home: home})
	return len(bb.TempRegs) - 1
}

// Op returns the arena's *Op for ref (nil for NoRef). Because the arena
// holds pointers, the returned *Op stays valid across later
// AppendOp/InsertOp calls that grow the arena.
func (bb *BasicBlock) Op(ref OpRef) *Op {
	if ref == NoRef {
		return nil
	}
	return bb.ops[ref]
}

func (bb *BasicBlock) newOp(opcode Opcode, cc CC, a, b Operand) OpRef {
	bb.ops = append(bb.ops, &Op{Opcode: opcode, Cond: cc, Operand: [2]Operand{a, b}, Next: NoRef, Prev: NoRef, Exc: NoRef})
	return OpRef(len(bb.ops) - 1)
}

// AppendOp0 appends a zero-operand instruction to the end of the block.
func (bb *BasicBlock) AppendOp0(opcode Opcode) OpRef {
	return bb.AppendOp2CC(opcode, CCTrue, None, None)
}

// AppendOp1 appends a one-operand instruction.
func (bb *BasicBlock) AppendOp1(opcode Opcode, a Operand) OpRef {
	return bb.AppendOp2CC(opcode, CCTrue, a, None)
}

// AppendOp1CC appends a one-operand conditional instruction.
func (bb *BasicBlock) AppendOp1CC(opcode Opcode, cc CC, a Operand) OpRef {
	return bb.AppendOp2CC(opcode, cc, a, None)
}

// AppendOp2 appends a two-operand instruction with condition CCTrue,
// mirroring xir_append_op2.
func (bb *BasicBlock) AppendOp2(opcode Opcode, a, b Operand) OpRef {
	return bb.AppendOp2CC(opcode, CCTrue, a, b)
}

// AppendOp2CC appends a conditional two-operand instruction, mirroring
// xir_append_op2cc.
func (bb *BasicBlock) AppendOp2CC(opcode Opcode, cc CC, a, b Operand) OpRef {
	ref := bb.newOp(opcode, cc, a, b)
	if bb.Head == NoRef {
		bb.Head = ref
	} else {
		bb.ops[bb.Tail].Next = ref
		bb.ops[ref].Prev = bb.Tail
	}
	bb.Tail = ref
	return ref
}

// InsertOp splices a freshly-constructed op (built with newOp but not yet
// linked in) immediately before `before`, mirroring xir_insert_op's
// pointer splice but over arena indices.
func (bb *BasicBlock) InsertOp(opcode Opcode, cc CC, a, b Operand, before OpRef) OpRef {
	ref := bb.newOp(opcode, cc, a, b)
	bb.linkBefore(ref, before)
	return ref
}

func (bb *BasicBlock) linkBefore(ref, before OpRef) {
	beforeOp := bb.ops[before]
	prev := beforeOp.Prev
	bb.ops[ref].Prev = prev
	bb.ops[ref].Next = before
	if prev == NoRef {
		bb.Head = ref
	} else {
		bb.ops[prev].Next = ref
	}
	beforeOp.Prev = ref
}

// InsertBlock splices the already-linked chain [start, end] immediately
// before `before`, mirroring xir_insert_block.
func (bb *BasicBlock) InsertBlock(start, end, before OpRef) {
	prev := bb.ops[before].Prev
	bb.ops[start].Prev = prev
	bb.ops[end].Next = before
	if prev == NoRef {
		bb.Head = start
	} else {
		bb.ops[prev].Next = start
	}
	bb.ops[before].Prev = end
}

// RemoveOp unlinks ref from whichever chain it is in - the normal
// next/prev chain, or (if it is the head of an exception sub-block) the
// owning op's Exc pointer - mirroring xir_remove_op.
func (bb *BasicBlock) RemoveOp(ref OpRef) {
	op := bb.ops[ref]
	if op.Next != NoRef {
		bb.ops[op.Next].Prev = op.Prev
	} else if ref == bb.Tail {
		bb.Tail = op.Prev
	}
	if op.Prev != NoRef {
		prevOp := bb.ops[op.Prev]
		if prevOp.Next == ref {
			prevOp.Next = op.Next
		} else {
			prevOp.Exc = op.Next
		}
	} else if ref == bb.Head {
		bb.Head = op.Next
	}
}

// InsertAfter splices a freshly-built op immediately after cursor,
// returning its ref. Used by passes (shuffle lowering, target lowering,
// register promotion) that build a replacement sequence in place.
func (bb *BasicBlock) InsertAfter(cursor OpRef, opcode Opcode, cc CC, a, b Operand) OpRef {
	ref := bb.newOp(opcode, cc, a, b)
	next := bb.ops[cursor].Next
	bb.ops[cursor].Next = ref
	bb.ops[ref].Prev = cursor
	bb.ops[ref].Next = next
	if next != NoRef {
		bb.ops[next].Prev = ref
	} else if cursor == bb.Tail {
		bb.Tail = ref
	}
	return ref
}

// Walk calls fn for every op in list order starting at Head, not
// descending into exception sub-blocks. fn returning false stops the
// walk early.
func (bb *BasicBlock) Walk(fn func(ref OpRef, op *Op) bool) {
	for ref := bb.Head; ref != NoRef; ref = bb.ops[ref].Next {
		if !fn(ref, bb.ops[ref]) {
			return
		}
	}
}

// WalkAll calls fn for every op in the block, including exception
// sub-blocks, recursively, in the order the verifier traverses them.
func (bb *BasicBlock) WalkAll(fn func(ref OpRef, op *Op) bool) {
	var walk func(start OpRef) bool
	walk = func(start OpRef) bool {
		for ref := start; ref != NoRef; ref = bb.ops[ref].Next {
			op := bb.ops[ref]
			if !fn(ref, op) {
				return false
			}
			if op.Exc != NoRef {
				if !walk(op.Exc) {
					return false
				}
			}
		}
		return true
	}
	walk(bb.Head)
}
