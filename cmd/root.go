// Package cmd wires the dreamxir CLI together: one cobra command per
// tool this repo exposes over the cdimg and xir packages. Grounded on
// retroio/cmd's flat var-per-command-plus-init() registration style.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dreamxir",
	Short: "Dreamcast CDROM image and XIR translation tooling",
}

// Execute runs the selected subcommand, printing any error to stdout and
// exiting non-zero - mirroring retroio's own Run funcs, which never
// return an error to cobra and instead print-and-exit themselves.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
