package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lxdream/dreamxir/cdimg"
)

var (
	cdromReadLBA   uint32
	cdromReadCount uint32
)

var cdromReadCmd = &cobra.Command{
	Use:                   "read FILE",
	Short:                 "Read and hex-dump sectors from a CDROM image's last data track",
	Long:                  `Reads --count sectors starting at --lba from a CDROM disc image's last data track, using that track's default read mode, and hex-dumps them to stdout.`,
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

		track := disc.GetLastDataTrack()
		if track == nil {
			fmt.Println("no data track found")
			os.Exit(1)
		}

		sectorMode := track.Source.Mode()
		mode := cdimg.DefaultReadMode(sectorMode)
		buf := make([]byte, int(cdromReadCount)*sectorMode.BlockSize())
		n, err := disc.ReadSectors(track.LBA+cdimg.LBA(cdromReadLBA), cdromReadCount, mode, buf)
		if err != nil {
			fmt.Println("read error!")
			fmt.Println(err)
			os.Exit(1)
		}

		hexDump(os.Stdout, buf[:n])
	},
}

func hexDump(w io.Writer, buf []byte) {
	for off := 0; off < len(buf); off += 16 {
		end := off + 16
		if end > len(buf) {
			end = len(buf)
		}
		fmt.Fprintf(w, "%08x  ", off)
		for _, b := range buf[off:end] {
			fmt.Fprintf(w, "%02x ", b)
		}
		fmt.Fprintln(w)
	}
}

func init() {
	cdromReadCmd.Flags().Uint32VarP(&cdromReadLBA, "lba", "l", 0, "starting logical block address")
	cdromReadCmd.Flags().Uint32VarP(&cdromReadCount, "count", "c", 1, "number of sectors to read")
	rootCmd.AddCommand(cdromReadCmd)
}
