package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every live file on a freshly formatted demo medium",
	Run: func(cmd *cobra.Command, args []string) {
		fsys, err := openFilesystem()
		cobra.CheckErr(err)
		cobra.CheckErr(fsys.Format())
		cobra.CheckErr(fsys.Mount())

		files, err := fsys.List()
		cobra.CheckErr(err)
		for _, f := range files {
			fmt.Printf("%-32s id=%d first_block=%d ts=%d\n", f.Name, f.FileID, f.FirstBlock, f.Timestamp)
		}
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
