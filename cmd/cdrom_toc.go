package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lxdream/dreamxir/cdimg"
)

var cdromTOCCmd = &cobra.Command{
	Use:                   "toc FILE",
	Short:                 "Print a CDROM image's table of contents",
	Long:                  `Opens a CDROM disc image (GDI or NRG) and prints its track table of contents.`,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		filename := args[0]

		disc, err := cdimg.Open(filename)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		if err := disc.ReadTOC(); err != nil {
			fmt.Println("TOC read error!")
			fmt.Println(err)
			os.Exit(1)
		}

		disc.PrintTOC(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(cdromTOCCmd)
}
