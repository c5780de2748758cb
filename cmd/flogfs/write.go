package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var writeCmd = &cobra.Command{
	Use:   "write <name>",
	Short: "Create a file on a freshly formatted demo medium and write --data to it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := cmd.Flags().GetString("data")
		cobra.CheckErr(err)

		fsys, err := openFilesystem()
		cobra.CheckErr(err)
		cobra.CheckErr(fsys.Format())
		cobra.CheckErr(fsys.Mount())
		cobra.CheckErr(fsys.WriteAll(args[0], []byte(data)))
		fmt.Printf("wrote %d bytes to %s\n", len(data), args[0])
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)
	writeCmd.Flags().String("data", "", "payload to write")
}
