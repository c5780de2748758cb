package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Write then delete a file, demonstrating the delete path",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fsys, err := openFilesystem()
		cobra.CheckErr(err)
		cobra.CheckErr(fsys.Format())
		cobra.CheckErr(fsys.Mount())
		cobra.CheckErr(fsys.WriteAll(args[0], []byte("demo")))
		cobra.CheckErr(fsys.Remove(args[0]))
		fmt.Printf("removed %s\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
