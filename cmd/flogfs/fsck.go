package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Format, mount, and summarize the resulting filesystem state",
	Long: `fsck runs format then mount against a fresh simulated medium and
reports the operation counters pkg/flogfs.Filesystem accumulated,
standing in for the integrity-check pass a real fsck would run against
a populated, possibly crash-interrupted, medium.`,
	Run: func(cmd *cobra.Command, args []string) {
		fsys, err := openFilesystem()
		cobra.CheckErr(err)
		cobra.CheckErr(fsys.Format())
		cobra.CheckErr(fsys.Mount())

		files, err := fsys.List()
		cobra.CheckErr(err)
		info, err := fsys.Info()
		cobra.CheckErr(err)

		stats := fsys.Stats()
		fmt.Printf("inode0=%d free_blocks=%d max_block_age=%d clock=%d\n",
			info.Inode0, info.NumFreeBlocks, info.MaxBlockAge, info.Clock)
		fmt.Printf("mounts=%d opens=%d reads=%d writes=%d removes=%d live_files=%d\n",
			stats.Mounts, stats.Opens, stats.Reads, stats.Writes, stats.Removes, len(files))
	},
}

func init() {
	rootCmd.AddCommand(fsckCmd)
}
