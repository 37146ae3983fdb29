package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lxdream/dreamxir/xir"
	"github.com/lxdream/dreamxir/xir/target/x86"
)

// xirDumpCmd builds a small synthetic basic block by hand (there being
// no guest-instruction decoder in scope per spec §1's "source machine
// is out of scope") and prints both its op list and the x86 bytes the
// emitter produces for it - a smoke test for the translation pipeline
// that doesn't depend on a disc image, mirroring the teacher's one-
// command-per-tool layout.
var xirDumpCmd = &cobra.Command{
	Use:                   "xir-dump",
	Short:                 "Emit and dump a synthetic XIR test block",
	Long:                  `Builds a small hand-written basic block (r0 = r1 + 5; r2 = r0), runs it through the x86 emitter, and prints the op list alongside the generated machine code.`,
	Args:                  cobra.NoArgs,
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		bb := xir.NewBlock(0, 4, demoSource{}, demoAddressSpace{})
		bb.AppendOp2(xir.OpMov, xir.IntImm(5), xir.TargetReg(0))
		bb.AppendOp2(xir.OpAdd, xir.SourceReg(1), xir.TargetReg(0))
		bb.AppendOp2(xir.OpMov, xir.TargetReg(0), xir.SourceReg(2))

		fmt.Println("ops:")
		bb.Walk(func(ref xir.OpRef, op *xir.Op) bool {
			fmt.Printf("  %3d: %s %v, %v\n", ref, op.Opcode, op.Operand[0], op.Operand[1])
			return true
		})

		abi := xir.ABI{Arg1: 0, Arg2: 1, Result1: 0, Count: 1}
		e := x86.NewEmitter(abi, xir.PointerWidth(8), 0)
		bb.Walk(func(ref xir.OpRef, op *xir.Op) bool {
			e.EmitOp(bb, op, bb.PCBegin)
			return true
		})
		e.EmitExceptionChains(func(g *x86.CodeGen, head int) {})
		e.LayConstantPool()
		e.Apply(0)

		fmt.Println("code:")
		hexDump(os.Stdout, e.Code)
	},
}

// demoSource/demoAddressSpace satisfy xir.SourceMachine/xir.AddressSpace
// with placeholder behavior, since a real guest front end is out of
// scope for this tool.
type demoSource struct{}

func (demoSource) RegisterName(reg int) string { return fmt.Sprintf("r%d", reg) }

type demoAddressSpace struct{}

func (demoAddressSpace) TableBase() uint64 { return 0 }

func init() {
	rootCmd.AddCommand(xirDumpCmd)
}
