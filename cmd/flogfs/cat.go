package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat <name>",
	Short: "Write some data then print it back (single-invocation demo)",
	Long: `cat demonstrates the write/read round trip within one process: it
creates <name> with the given --data, then reads it back and prints it.
Because the simulated medium is process-local there is no separate
persisted file to read across invocations.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := cmd.Flags().GetString("data")
		cobra.CheckErr(err)

		fsys, err := openFilesystem()
		cobra.CheckErr(err)
		cobra.CheckErr(fsys.Format())
		cobra.CheckErr(fsys.Mount())
		cobra.CheckErr(fsys.WriteAll(args[0], []byte(data)))

		out, err := fsys.ReadAll(args[0])
		cobra.CheckErr(err)
		fmt.Fprintln(os.Stdout, string(out))
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
	catCmd.Flags().String("data", "", "payload to write before reading it back")
}
