package main

import "github.com/spf13/cobra"

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Erase the simulated medium and write a fresh filesystem",
	Run: func(cmd *cobra.Command, args []string) {
		fsys, err := openFilesystem()
		cobra.CheckErr(err)
		cobra.CheckErr(fsys.Format())
	},
}

func init() {
	rootCmd.AddCommand(formatCmd)
}
