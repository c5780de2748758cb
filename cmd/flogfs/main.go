// Command flogfs is a small CLI over a simulated flash image, grounded
// on the teacher's cmd/root.go + cmd/list.go cobra layout: one command
// struct per subcommand file, persistent global flags, cobra.CheckErr
// for top-level error reporting.
//
// Reference: SPEC_FULL.md §1 "cmd/flogfs".
package main

func main() {
	Execute()
}
